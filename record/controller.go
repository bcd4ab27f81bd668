package record

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jrwynneiii/rxcap/capture"
	"github.com/jrwynneiii/rxcap/oversample"
	"github.com/jrwynneiii/rxcap/writer"
)

var (
	ErrNoSampleRate = errors.New("no sample rate set")
	ErrNoFilename   = errors.New("no free filename matches the pattern")
)

type State int

const (
	// Idle: no sample rate, nothing to record.
	Idle State = iota
	// Armed: a sample rate is set and a capture can start.
	Armed
	Recording
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Recording:
		return "recording"
	case Stopping:
		return "stopping"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Baseband is the producer side that has to follow sample rate changes.
type Baseband interface {
	SetSampleRate(rate uint32, decimation oversample.Rate)
}

// BasebandFunc adapts a function to Baseband.
type BasebandFunc func(rate uint32, decimation oversample.Rate)

func (f BasebandFunc) SetSampleRate(rate uint32, decimation oversample.Rate) {
	f(rate, decimation)
}

type CreateFunc func(ft writer.FileType, path string, sampleRate uint32, tag string) (writer.Writer, error)

type Options struct {
	Folder          string
	FilenameStem    string
	FileType        writer.FileType
	WriteSize       int
	BufferCount     int
	TimestampFormat string
	Limits          oversample.Limits

	Baseband  Baseband
	Frequency func() uint64
	Now       func() time.Time
	FreeSpace func(path string) (uint64, error)
	Create    CreateFunc
	Observer  capture.Observer
	// OnError surfaces capture failures as a one-line status.
	OnError func(error)
}

// Telemetry is what the once-a-second refresh shows.
type Telemetry struct {
	State          State
	Filename       string
	Written        uint64
	Dropped        uint64
	DroppedPercent uint32
	Available      Available
	SampleRate     uint32
	EffectiveRate  uint64
	Decimation     oversample.Rate
	Warning        bool
	Err            error
}

func (t Telemetry) DroppedText() string {
	return fmt.Sprintf("%2d%%", t.DroppedPercent)
}

type Controller struct {
	opts Options

	mu            sync.Mutex
	state         State
	sampleRate    uint32
	selection     oversample.Selection
	dateFrequency bool
	filename      string
	lastErr       error
	thread        *capture.Thread
	ticks         []*TickHandle

	// current is read by the producer without taking mu.
	current     atomic.Pointer[capture.Thread]
	completions chan capture.Completion
}

func New(opts Options) (*Controller, error) {
	if opts.Limits == (oversample.Limits{}) {
		opts.Limits = oversample.DefaultLimits
	}
	if err := opts.Limits.Validate(); err != nil {
		return nil, err
	}
	if opts.WriteSize <= 0 {
		return nil, fmt.Errorf("invalid write size %d", opts.WriteSize)
	}
	if opts.BufferCount <= 0 {
		return nil, fmt.Errorf("invalid buffer count %d", opts.BufferCount)
	}
	if opts.TimestampFormat == "" {
		opts.TimestampFormat = "%Y%m%dT%H%M%S"
	}
	if opts.Frequency == nil {
		opts.Frequency = func() uint64 { return 0 }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.FreeSpace == nil {
		opts.FreeSpace = DiskFree
	}
	if opts.Create == nil {
		opts.Create = writer.Create
	}
	if err := os.MkdirAll(opts.Folder, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create capture folder: %w", err)
	}

	return &Controller{
		opts:        opts,
		completions: make(chan capture.Completion, 8),
	}, nil
}

// SetSampleRate picks the decimation for rate, pushes it to the baseband and
// returns the effective front-end rate. A changed rate ends any capture.
func (c *Controller) SetSampleRate(rate uint32) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.selection = c.opts.Limits.Select(rate, c.opts.FileType)
	if c.selection.Warning {
		log.Warnf("[record] Effective rate %d exceeds %d: capture will not be sample exact", c.selection.EffectiveRate, c.opts.Limits.SafeCaptureRate)
	}

	if rate != c.sampleRate {
		c.stopLocked()
		c.sampleRate = rate
		if c.opts.Baseband != nil {
			c.opts.Baseband.SetSampleRate(rate, c.selection.Rate)
		}
		c.state = c.idleState()
	}
	return c.selection.EffectiveRate
}

func (c *Controller) SetFilenameDateFrequency(set bool) {
	c.mu.Lock()
	c.dateFrequency = set
	c.mu.Unlock()
}

func (c *Controller) IsActive() bool {
	return c.current.Load() != nil
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Toggle() error {
	if c.IsActive() {
		c.Stop()
		return nil
	}
	return c.Start()
}

// Start begins a new capture, stopping the current one first.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()
	c.filename = ""
	c.lastErr = nil

	if c.sampleRate == 0 {
		return ErrNoSampleRate
	}

	base, err := c.basePath()
	if err != nil {
		return c.failLocked(err)
	}
	if base == "" {
		return c.failLocked(ErrNoFilename)
	}

	frequency := c.opts.Frequency()
	path := base + c.opts.FileType.Extension()
	if c.opts.FileType.IsRaw() {
		meta := writer.Metadata{CenterFrequency: frequency, SampleRate: c.sampleRate}
		if err := writer.WriteMetadata(writer.MetadataPath(path), meta); err != nil {
			return c.failLocked(err)
		}
	}

	w, err := c.opts.Create(c.opts.FileType, path, c.sampleRate, fmt.Sprintf("%dHz", frequency))
	if err != nil {
		if c.opts.FileType.IsRaw() {
			if rerr := os.Remove(writer.MetadataPath(path)); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
				log.Warnf("[record] Could not remove %s: %v", writer.MetadataPath(path), rerr)
			}
		}
		return c.failLocked(err)
	}

	th := capture.New(w, c.opts.WriteSize, c.opts.BufferCount, c.notify, c.opts.Observer)
	c.thread = th
	c.current.Store(th)
	c.filename = filepath.Base(path)
	c.state = Recording
	log.Infof("[record] Recording %s at %d S/s (%v, effective %d S/s)", path, c.sampleRate, c.selection.Rate, c.selection.EffectiveRate)
	return nil
}

// Stop ends the current capture and waits for its writer to close. Stopping
// an idle controller does nothing.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Controller) stopLocked() {
	th := c.thread
	if th == nil {
		return
	}
	c.state = Stopping
	c.current.Store(nil)
	th.Stop()
	c.thread = nil
	c.state = c.idleState()
	log.Debugf("[record] Stopped %s: %d written, %d dropped", th.Path(), th.State().Written(), th.State().Dropped())
}

func (c *Controller) idleState() State {
	if c.sampleRate == 0 {
		return Idle
	}
	return Armed
}

func (c *Controller) failLocked(err error) error {
	c.lastErr = err
	log.Errorf("[record] %v", err)
	if c.opts.OnError != nil {
		c.opts.OnError(err)
	}
	return err
}

func (c *Controller) basePath() (string, error) {
	if c.dateFrequency {
		return dateFrequencyFilename(c.opts.Folder, c.opts.FilenameStem, c.opts.TimestampFormat, c.opts.Now(), c.opts.Frequency())
	}
	return nextFilenameMatchingPattern(c.opts.Folder, c.opts.FilenameStem), nil
}

// notify runs on the capture goroutine; it must never block it.
func (c *Controller) notify(comp capture.Completion) {
	select {
	case c.completions <- comp:
	default:
		log.Warnf("[record] Completion queue full, dropping completion for %s", comp.Session)
	}
}

// Completions delivers capture thread exits. The owner drains it on its own
// schedule and passes each value to HandleCompletion.
func (c *Controller) Completions() <-chan capture.Completion {
	return c.completions
}

// HandleCompletion tears down the session the completion belongs to.
// Completions of sessions that were already stopped are ignored.
func (c *Controller) HandleCompletion(comp capture.Completion) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.thread == nil || c.thread.Session != comp.Session {
		return
	}
	c.stopLocked()
	if comp.Err != nil {
		c.failLocked(comp.Err)
	}
}

// Submit forwards a produced block to the active capture. It never blocks.
func (c *Controller) Submit(block []byte) bool {
	th := c.current.Load()
	if th == nil {
		return false
	}
	return th.Submit(block)
}

func (c *Controller) BlockSize() int {
	return c.opts.WriteSize
}

func (c *Controller) Refresh() Telemetry {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := Telemetry{
		State:         c.state,
		Filename:      c.filename,
		SampleRate:    c.sampleRate,
		EffectiveRate: c.selection.EffectiveRate,
		Decimation:    c.selection.Rate,
		Warning:       c.selection.Warning,
		Err:           c.lastErr,
	}
	if c.thread != nil {
		snap := c.thread.State().Snapshot()
		t.Written = snap.Written
		t.Dropped = snap.Dropped
		t.DroppedPercent = c.thread.State().DisplayDroppedPercent()
	}
	if c.sampleRate > 0 {
		free, err := c.opts.FreeSpace(c.opts.Folder)
		if err != nil {
			log.Debugf("[record] %v", err)
		} else {
			t.Available = EstimateAvailable(free, c.selection.EffectiveRate, c.opts.FileType.BytesPerSample())
		}
	}
	return t
}

// OnTick calls fn with fresh telemetry every interval until the handle or
// the controller is closed.
func (c *Controller) OnTick(interval time.Duration, fn func(Telemetry)) *TickHandle {
	h := newTickHandle(interval, func() {
		fn(c.Refresh())
	})
	c.mu.Lock()
	c.ticks = append(c.ticks, h)
	c.mu.Unlock()
	return h
}

// Close stops recording and releases every tick handle.
func (c *Controller) Close() {
	c.mu.Lock()
	ticks := c.ticks
	c.ticks = nil
	c.mu.Unlock()

	for _, h := range ticks {
		h.Close()
	}
	c.Stop()
}
