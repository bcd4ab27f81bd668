package demod

import (
	"sync"

	"github.com/charmbracelet/log"
	"github.com/jrwynneiii/rxcap/config"
	"github.com/jrwynneiii/rxcap/oversample"
	"github.com/jrwynneiii/rxcap/writer"
	"github.com/racerxdl/segdsp/dsp"
	"github.com/racerxdl/segdsp/tools"
)

// Tuner is the sample source side of a rate change.
type Tuner interface {
	SetSampleRate(rate float64) error
}

// Demodulator turns device IQ into capture blocks: it decimates the
// oversampled front end down to the requested rate and quantizes to the
// capture format, or FM demodulates to audio for WAV.
type Demodulator struct {
	SampleInput chan []complex64

	conf      config.DemodConf
	fileType  writer.FileType
	tuner     Tuner
	assembler *BlockAssembler

	mu            sync.Mutex
	sampleRate    uint32
	frontEndRate  float64
	decimation    int
	decimator     *dsp.FirFilter
	discriminator Discriminator
	audio         []float32
	scratch       []byte
	level         float32
	last          []complex64
}

func New(conf config.DemodConf, ft writer.FileType, tuner Tuner, sink Sink, bufsize uint) *Demodulator {
	return &Demodulator{
		SampleInput: make(chan []complex64, bufsize),
		conf:        conf,
		fileType:    ft,
		tuner:       tuner,
		assembler:   NewBlockAssembler(sink),
		decimation:  1,
	}
}

// SetSampleRate follows a record rate change: the front end runs at
// rate*decimation and a low pass decimator brings it back down. WAV captures
// decimate the demodulated channel to audio instead.
func (d *Demodulator) SetSampleRate(rate uint32, decimation oversample.Rate) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.sampleRate = rate
	d.assembler.Reset()
	d.discriminator.Reset()
	if rate == 0 {
		d.decimator = nil
		return
	}

	factor := int(decimation)
	if d.fileType == writer.WAV {
		factor = max(d.conf.AudioDecimation, 1)
	}
	d.decimation = factor
	d.frontEndRate = float64(rate) * float64(factor)

	if factor > 1 {
		cutoff := float64(rate)/2 - d.conf.LowPassTransitionWidth/2
		if cutoff <= 0 {
			cutoff = float64(rate) / 4
		}
		d.decimator = dsp.MakeDecimationFirFilter(factor, dsp.MakeLowPass(1, d.frontEndRate, cutoff, d.conf.LowPassTransitionWidth))
	} else {
		d.decimator = nil
	}
	log.Debugf("[demod] Front end %.0f S/s, decimating by %d to %d S/s", d.frontEndRate, factor, rate)

	if d.tuner != nil {
		if err := d.tuner.SetSampleRate(d.frontEndRate); err != nil {
			log.Errorf("[demod] Could not set front end rate: %v", err)
		}
	}
}

func (d *Demodulator) FrontEndRate() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frontEndRate
}

// Level is the mean power of the last block, in dBFS.
func (d *Demodulator) Level() float32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.level
}

// Spectrum returns the power spectrum of the most recent device block.
func (d *Demodulator) Spectrum(bins int) []float64 {
	d.mu.Lock()
	last := d.last
	d.mu.Unlock()
	return Spectrum(last, bins)
}

// Start processes blocks until SampleInput is closed.
func (d *Demodulator) Start() {
	for samples := range d.SampleInput {
		d.Process(samples)
	}
	log.Debugf("[demod] Sample input closed")
}

// Process runs one block of device samples through the chain and returns
// how many capture blocks the sink refused.
func (d *Demodulator) Process(samples []complex64) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.sampleRate == 0 || len(samples) == 0 {
		return 0
	}

	var power float32
	for _, s := range samples {
		power += tools.ComplexAbsSquared(s)
	}
	d.level = 10 * log10(power/float32(len(samples)))
	d.last = samples

	out := samples
	if d.decimator != nil {
		out = d.decimator.Work(samples)
	}

	d.scratch = d.scratch[:0]
	switch d.fileType {
	case writer.WAV:
		d.audio = d.discriminator.Work(out, d.audio)
		d.scratch = QuantizePCM16(d.scratch, d.audio, float32(d.conf.AudioGain))
	case writer.RawS8:
		d.scratch = QuantizeCS8(d.scratch, out)
	default:
		d.scratch = QuantizeCS16(d.scratch, out)
	}
	return d.assembler.Push(d.scratch)
}
