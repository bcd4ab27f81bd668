package radio

// #cgo CFLAGS: -g -Wall
// #cgo LDFLAGS: -lSoapySDR
import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/jrwynneiii/rxcap/config"

	"github.com/pothosware/go-soapy-sdr/pkg/device"
	"github.com/pothosware/go-soapy-sdr/pkg/modules"
	"github.com/pothosware/go-soapy-sdr/pkg/sdrlogger"
	"github.com/pothosware/go-soapy-sdr/pkg/version"
)

const readTimeoutUs = 100000

// Radio streams CF32 samples from a SoapySDR device.
type Radio struct {
	SamplesOutput chan []complex64

	conf      config.RadioConf
	chunkSize uint
	args      map[string]string

	mu         sync.Mutex
	device     *device.SDRDevice
	stream     *device.SDRStreamCF32
	buffer     [][]complex64
	sampleRate float64
	frequency  atomic.Uint64
	overflows  atomic.Uint64
}

func initSoapySDR() {
	log.Debugf("[radio] SoapySDR ABI %s, API %s, lib %s", version.GetABIVersion(), version.GetAPIVersion(), version.GetLibVersion())
	for i, path := range modules.ListSearchPaths() {
		log.Debugf("[radio] Module search path #%d: %v", i, path)
	}
	for _, module := range modules.ListModules() {
		log.Debugf("[radio] Module %v (%v)", module, moduleVersion(module))
	}
	sdrlogger.SetLogLevel(sdrlogger.Error)
}

func moduleVersion(module string) string {
	if v := modules.GetModuleVersion(module); v != "" {
		return v
	}
	return "no version"
}

// Probe logs every SoapySDR module and device with its RX capabilities.
func Probe() {
	log.Infof("SoapySDR ABI %s, API %s, lib %s", version.GetABIVersion(), version.GetAPIVersion(), version.GetLibVersion())
	log.Infof("Modules root: %v", modules.GetRootPath())
	found := modules.ListModules()
	if len(found) == 0 {
		log.Info("No SoapySDR modules found")
	}
	for _, module := range found {
		log.Infof("Module %v (%v)", module, moduleVersion(module))
	}
	sdrlogger.SetLogLevel(sdrlogger.Error)

	devices := device.Enumerate(nil)
	log.Infof("Found %d devices", len(devices))
	args := make([]map[string]string, len(devices))
	for i, dev := range devices {
		args[i] = map[string]string{"driver": dev["driver"]}
	}
	devs, err := device.MakeList(args)
	if err != nil {
		log.Errorf("SoapySDR could not open devices: %v", err)
		return
	}
	// UnmakeList double frees in the binding; the process exits right after
	// a probe anyway.
	for i, dev := range devs {
		log.Infof("Driver: %s", args[i]["driver"])
		logCapabilities(dev)
	}
}

func logCapabilities(dev *device.SDRDevice) {
	for _, setting := range dev.GetSettingInfo() {
		log.Infof("\t%s: %v", setting.Key, setting.Value)
	}
	channels := dev.GetNumChannels(device.DirectionRX)
	for ch := uint(0); ch < channels; ch++ {
		log.Infof("\tRX channel %d: rate %v, formats %v", ch, dev.GetSampleRate(device.DirectionRX, ch), dev.GetStreamFormats(device.DirectionRX, ch))
		for _, r := range dev.GetSampleRateRange(device.DirectionRX, ch) {
			log.Infof("\t\trate range %v", r.ToString())
		}
	}
}

func New(conf config.RadioConf, bufsize uint) *Radio {
	initSoapySDR()
	r := &Radio{
		SamplesOutput: make(chan []complex64, bufsize),
		conf:          conf,
		chunkSize:     conf.ChunkSize,
		sampleRate:    conf.SampleRate,
		buffer:        [][]complex64{make([]complex64, conf.ChunkSize)},
	}
	r.frequency.Store(uint64(conf.Frequency))
	return r
}

// Connect opens the device and activates the RX stream.
func (r *Radio) Connect() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.args = map[string]string{"driver": r.conf.Driver}
	if r.conf.Driver == "rtltcp" {
		r.args["rtltcp"] = r.conf.Address
	}
	if r.device == nil {
		dev, err := device.Make(r.args)
		if err != nil {
			return fmt.Errorf("could not create SoapySDR device: %w", err)
		}
		r.device = dev
	}
	if err := r.device.SetSampleRate(device.DirectionRX, 0, r.sampleRate); err != nil {
		return fmt.Errorf("could not set sample rate: %w", err)
	}
	if err := r.device.SetFrequency(device.DirectionRX, 0, float64(r.frequency.Load()), nil); err != nil {
		return fmt.Errorf("could not set frequency: %w", err)
	}
	if r.conf.Gain > 0 {
		if err := r.device.SetGain(device.DirectionRX, 0, float64(r.conf.Gain)); err != nil {
			return fmt.Errorf("could not set gain: %w", err)
		}
	}

	stream, err := r.device.SetupSDRStreamCF32(device.DirectionRX, []uint{0}, nil)
	if err != nil {
		return fmt.Errorf("could not set up IQ stream: %w", err)
	}
	if err := stream.Activate(0, 0, 0); err != nil {
		return fmt.Errorf("could not activate IQ stream: %w", err)
	}
	r.stream = stream
	log.Debugf("[radio] %s streaming at %.0f S/s, %d Hz", r.conf.Driver, r.sampleRate, r.frequency.Load())

	// The first samples after activation are settling junk.
	r.readLocked(1024)
	return nil
}

// SetSampleRate retunes the front end; the stream keeps running.
func (r *Radio) SetSampleRate(rate float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sampleRate = rate
	if r.device == nil {
		return nil
	}
	return r.device.SetSampleRate(device.DirectionRX, 0, rate)
}

func (r *Radio) SetFrequency(hz uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frequency.Store(hz)
	if r.device == nil {
		return nil
	}
	return r.device.SetFrequency(device.DirectionRX, 0, float64(hz), nil)
}

func (r *Radio) Frequency() uint64 {
	return r.frequency.Load()
}

func (r *Radio) SampleRate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sampleRate
}

func (r *Radio) Overflows() uint64 {
	return r.overflows.Load()
}

func (r *Radio) readLocked(num uint) []complex64 {
	if r.stream == nil {
		return nil
	}
	flags := make([]int, 1)
	_, n, err := r.stream.Read(r.buffer, min(num, r.chunkSize), flags, readTimeoutUs)
	if err != nil {
		log.Debugf("[radio] Read: %v", err)
		r.overflows.Add(1)
		return nil
	}
	out := make([]complex64, n)
	copy(out, r.buffer[0][:n])
	return out
}

// Start reads chunks into SamplesOutput until ctx is done, then closes the
// stream and the channel. A full channel drops the chunk.
func (r *Radio) Start(ctx context.Context) {
	defer close(r.SamplesOutput)
	defer r.close()

	var pending []complex64
	for ctx.Err() == nil {
		r.mu.Lock()
		pending = append(pending, r.readLocked(r.chunkSize)...)
		r.mu.Unlock()

		if uint(len(pending)) < r.chunkSize {
			continue
		}
		select {
		case r.SamplesOutput <- pending:
		default:
			r.overflows.Add(1)
		}
		pending = nil
	}
}

func (r *Radio) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stream == nil {
		return
	}
	if err := r.stream.Deactivate(0, 0); err != nil {
		log.Errorf("[radio] Could not deactivate IQ stream: %v", err)
	}
	if err := r.stream.Close(); err != nil {
		log.Errorf("[radio] Could not close IQ stream: %v", err)
	}
	r.stream = nil
}
