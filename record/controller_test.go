package record

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jrwynneiii/rxcap/capture"
	"github.com/jrwynneiii/rxcap/oversample"
	"github.com/jrwynneiii/rxcap/writer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBaseband struct {
	rate       uint32
	decimation oversample.Rate
	calls      int
}

func (b *fakeBaseband) SetSampleRate(rate uint32, decimation oversample.Rate) {
	b.rate = rate
	b.decimation = decimation
	b.calls++
}

type errorRecorder struct {
	mu   sync.Mutex
	errs []error
}

func (r *errorRecorder) record(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *errorRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}

func newController(t *testing.T, ft writer.FileType, mutate func(*Options)) (*Controller, *errorRecorder) {
	t.Helper()
	errs := &errorRecorder{}
	opts := Options{
		Folder:       filepath.Join(t.TempDir(), "CAPTURES"),
		FilenameStem: "BBD_????",
		FileType:     ft,
		WriteSize:    8,
		BufferCount:  3,
		Frequency:    func() uint64 { return 466175000 },
		FreeSpace:    func(string) (uint64, error) { return 1 << 30, nil },
		OnError:      errs.record,
	}
	if mutate != nil {
		mutate(&opts)
	}
	c, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c, errs
}

func TestStopWhenIdleIsNoop(t *testing.T) {
	c, errs := newController(t, writer.RawS16, nil)
	c.Stop()
	c.Stop()
	assert.Equal(t, Idle, c.State())
	assert.False(t, c.IsActive())
	assert.Zero(t, errs.count())
}

func TestStartWithoutSampleRateStaysIdle(t *testing.T) {
	c, _ := newController(t, writer.RawS16, nil)
	assert.ErrorIs(t, c.Start(), ErrNoSampleRate)
	assert.Equal(t, Idle, c.State())

	entries, err := os.ReadDir(c.opts.Folder)
	require.NoError(t, err)
	assert.Empty(t, entries, "no partial state on configuration errors")
}

func TestSetSampleRateConfiguresBaseband(t *testing.T) {
	bb := &fakeBaseband{}
	c, _ := newController(t, writer.RawS16, func(o *Options) { o.Baseband = bb })

	assert.Equal(t, uint64(1_600_000), c.SetSampleRate(200_000))
	assert.Equal(t, uint32(200_000), bb.rate)
	assert.Equal(t, oversample.X8, bb.decimation)
	assert.Equal(t, Armed, c.State())

	c.SetSampleRate(200_000)
	assert.Equal(t, 1, bb.calls, "unchanged rate does not reconfigure")

	c.SetSampleRate(0)
	assert.Equal(t, Idle, c.State())
}

func TestRateChangeStopsCapture(t *testing.T) {
	c, _ := newController(t, writer.RawS8, nil)
	c.SetSampleRate(500_000)
	require.NoError(t, c.Start())
	require.True(t, c.IsActive())

	c.SetSampleRate(250_000)
	assert.False(t, c.IsActive())
	assert.Equal(t, Armed, c.State())
}

func TestStartTwiceRestarts(t *testing.T) {
	c, errs := newController(t, writer.RawS16, nil)
	c.SetSampleRate(500_000)

	require.NoError(t, c.Start())
	first := c.Refresh().Filename
	require.NoError(t, c.Start())
	second := c.Refresh().Filename

	assert.Equal(t, "BBD_0000.C16", first)
	assert.Equal(t, "BBD_0001.C16", second)
	assert.Equal(t, Recording, c.State())

	// The first session's completion is stale and must not stop the second.
	comp := <-c.Completions()
	assert.NoError(t, comp.Err)
	c.HandleCompletion(comp)
	assert.True(t, c.IsActive())
	assert.Zero(t, errs.count())

	for _, name := range []string{"BBD_0000.C16", "BBD_0000.TXT", "BBD_0001.C16", "BBD_0001.TXT"} {
		assert.FileExists(t, filepath.Join(c.opts.Folder, name))
	}
	meta, err := writer.ReadMetadata(filepath.Join(c.opts.Folder, "BBD_0001.TXT"))
	require.NoError(t, err)
	assert.Equal(t, uint64(466175000), meta.CenterFrequency)
	assert.Equal(t, uint32(500_000), meta.SampleRate)
}

func TestToggle(t *testing.T) {
	c, _ := newController(t, writer.WAV, nil)
	c.SetSampleRate(48_000)

	require.NoError(t, c.Toggle())
	assert.Equal(t, Recording, c.State())

	block := make([]byte, c.BlockSize())
	assert.True(t, c.Submit(block))
	require.Eventually(t, func() bool { return c.Refresh().Written == 1 }, 5*time.Second, time.Millisecond)

	require.NoError(t, c.Toggle())
	assert.Equal(t, Armed, c.State())
	assert.False(t, c.Submit(block), "idle controller accepts nothing")

	f, err := os.Open(filepath.Join(c.opts.Folder, "BBD_0000.WAV"))
	require.NoError(t, err)
	defer f.Close()
	h, err := writer.ReadHeader(f)
	require.NoError(t, err)
	assert.Equal(t, uint32(48_000), h.SampleRate)
	assert.Equal(t, uint32(len(block)), h.DataSize)
	assert.Equal(t, "466175000Hz", h.Tag)
}

func TestSkipsUsedFilenames(t *testing.T) {
	c, _ := newController(t, writer.RawS16, nil)
	require.NoError(t, os.WriteFile(filepath.Join(c.opts.Folder, "BBD_0000.C8"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(c.opts.Folder, "BBD_0001.TXT"), nil, 0o644))

	c.SetSampleRate(500_000)
	require.NoError(t, c.Start())
	assert.Equal(t, "BBD_0002.C16", c.Refresh().Filename)
}

func TestExhaustedPattern(t *testing.T) {
	c, errs := newController(t, writer.RawS16, func(o *Options) { o.FilenameStem = "CAP_?" })
	for i := 0; i < 10; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(c.opts.Folder, "CAP_"+string(rune('0'+i))+".C16"), nil, 0o644))
	}
	c.SetSampleRate(500_000)
	assert.ErrorIs(t, c.Start(), ErrNoFilename)
	assert.Equal(t, 1, errs.count())
	assert.False(t, c.IsActive())
}

func TestDateFrequencyFilename(t *testing.T) {
	now := time.Date(2026, 10, 15, 9, 4, 5, 0, time.UTC)
	c, _ := newController(t, writer.RawS16, func(o *Options) {
		o.Now = func() time.Time { return now }
	})
	c.SetFilenameDateFrequency(true)
	c.SetSampleRate(500_000)
	require.NoError(t, c.Start())
	assert.Equal(t, "BBD_20261015T090405_466175000Hz.C16", c.Refresh().Filename)
}

func TestCreateFailureSurfacesAndStaysIdle(t *testing.T) {
	boom := errors.New("card removed")
	c, errs := newController(t, writer.WAV, func(o *Options) {
		o.Create = func(writer.FileType, string, uint32, string) (writer.Writer, error) {
			return nil, boom
		}
	})
	c.SetSampleRate(48_000)
	assert.ErrorIs(t, c.Start(), boom)
	assert.Equal(t, Armed, c.State())
	assert.False(t, c.IsActive())
	assert.Equal(t, 1, errs.count())
	assert.ErrorIs(t, c.Refresh().Err, boom)
}

func TestCreateFailureRemovesSidecar(t *testing.T) {
	var folder string
	c, _ := newController(t, writer.RawS16, func(o *Options) {
		folder = o.Folder
		o.Create = func(writer.FileType, string, uint32, string) (writer.Writer, error) {
			return nil, errors.New("card removed")
		}
	})
	c.SetSampleRate(500_000)
	require.Error(t, c.Start())

	entries, err := os.ReadDir(folder)
	if !errors.Is(err, os.ErrNotExist) {
		require.NoError(t, err)
	}
	assert.Empty(t, entries, "no metadata left behind for a capture that never opened")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) error { return errors.New("no space left on device") }
func (failingWriter) Close() error       { return nil }
func (failingWriter) Path() string       { return "failing" }

func TestFatalCompletionStopsCapture(t *testing.T) {
	c, errs := newController(t, writer.RawS8, func(o *Options) {
		o.Create = func(writer.FileType, string, uint32, string) (writer.Writer, error) {
			return failingWriter{}, nil
		}
	})
	c.SetSampleRate(500_000)
	require.NoError(t, c.Start())
	require.True(t, c.Submit(make([]byte, 8)))

	var comp capture.Completion
	select {
	case comp = <-c.Completions():
	case <-time.After(5 * time.Second):
		t.Fatal("no completion")
	}
	require.True(t, comp.Fatal())

	c.HandleCompletion(comp)
	assert.False(t, c.IsActive())
	assert.Equal(t, Armed, c.State())
	assert.Equal(t, 1, errs.count())
	assert.EqualError(t, c.Refresh().Err, "no space left on device")
}

func TestStorageEstimateScenario(t *testing.T) {
	c, _ := newController(t, writer.RawS16, nil)
	c.SetSampleRate(200_000)

	tel := c.Refresh()
	assert.Equal(t, uint64(1_600_000), tel.EffectiveRate)
	assert.Equal(t, Available{Hours: 0, Minutes: 2, Seconds: 47}, tel.Available)
	assert.Equal(t, "  0:02:47", tel.Available.String())
	assert.Equal(t, " 0%", tel.DroppedText())
}

func TestEstimateAvailable(t *testing.T) {
	assert.Equal(t, Available{}, EstimateAvailable(1<<30, 0, 2))
	a := EstimateAvailable(48_000*2*3725, 48_000, 2)
	assert.Equal(t, Available{Hours: 1, Minutes: 2, Seconds: 5}, a)
	assert.Equal(t, uint64(3725), a.TotalSeconds())
}

func TestOnTickDeliversTelemetry(t *testing.T) {
	c, _ := newController(t, writer.RawS16, nil)
	c.SetSampleRate(500_000)

	got := make(chan Telemetry, 16)
	h := c.OnTick(5*time.Millisecond, func(tel Telemetry) {
		select {
		case got <- tel:
		default:
		}
	})
	select {
	case tel := <-got:
		assert.Equal(t, Armed, tel.State)
	case <-time.After(5 * time.Second):
		t.Fatal("no tick")
	}
	h.Close()
	h.Close()
}

func TestBasebandFunc(t *testing.T) {
	var got oversample.Rate
	c, _ := newController(t, writer.RawS8, func(o *Options) {
		o.Baseband = BasebandFunc(func(_ uint32, d oversample.Rate) { got = d })
	})
	c.SetSampleRate(250_000)
	assert.Equal(t, oversample.X8, got)
}
