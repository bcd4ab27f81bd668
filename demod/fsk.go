package demod

import (
	"math"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/jrwynneiii/rxcap/config"
	"github.com/racerxdl/segdsp/dsp"
	"gonum.org/v1/gonum/stat"
)

// Slicer recovers NRZ bits from a frequency discriminator output. Every
// sign change re-centres the sampling point half a bit later.
type Slicer struct {
	samplesPerBit float64
	phase         float64
	prev          float64
	centred       []float64
}

func NewSlicer(sampleRate, baud int) *Slicer {
	spb := float64(sampleRate) / float64(baud)
	return &Slicer{samplesPerBit: spb, phase: spb / 2}
}

// Slice appends one bit per bit period to out. The block mean is removed
// first so a small frequency offset does not bias the decisions.
func (s *Slicer) Slice(freq []float32, out []byte) []byte {
	if len(freq) == 0 {
		return out
	}
	s.centred = s.centred[:0]
	for _, v := range freq {
		s.centred = append(s.centred, float64(v))
	}
	mean := stat.Mean(s.centred, nil)

	for _, v := range s.centred {
		x := v - mean
		if (x > 0) != (s.prev > 0) {
			s.phase = s.samplesPerBit / 2
		}
		s.prev = x
		s.phase--
		if s.phase <= 0 {
			if x > 0 {
				out = append(out, 1)
			} else {
				out = append(out, 0)
			}
			s.phase += s.samplesPerBit
		}
	}
	return out
}

// FSK demodulates pager traffic from device IQ into a bit channel.
type FSK struct {
	SampleInput chan []complex64
	BitsOutput  chan<- []byte

	decimator     *dsp.FirFilter
	discriminator Discriminator
	slicer        *Slicer
	snr           *SNREstimator
	freq          []float32

	quality     atomic.Uint64
	droppedBits atomic.Uint64
}

func NewFSK(conf config.PocsagConf, demodConf config.DemodConf, deviceRate float64, output chan<- []byte, bufsize uint) *FSK {
	f := &FSK{
		SampleInput: make(chan []complex64, bufsize),
		BitsOutput:  output,
		slicer:      NewSlicer(conf.SampleRate, conf.Baud),
		snr:         NewSNREstimator(0.001),
	}
	factor := int(math.Round(deviceRate / float64(conf.SampleRate)))
	if factor > 1 {
		rate := float64(conf.SampleRate)
		f.decimator = dsp.MakeDecimationFirFilter(factor, dsp.MakeLowPass(1, deviceRate, rate/2-demodConf.LowPassTransitionWidth/2, demodConf.LowPassTransitionWidth))
		log.Debugf("[fsk] Decimating %.0f S/s by %d", deviceRate, factor)
	}
	return f
}

// SNR is the latest channel estimate in dB.
func (f *FSK) SNR() float64 {
	return math.Float64frombits(f.quality.Load())
}

func (f *FSK) DroppedBits() uint64 {
	return f.droppedBits.Load()
}

func (f *FSK) Process(samples []complex64) []byte {
	if f.decimator != nil {
		samples = f.decimator.Work(samples)
	}
	f.quality.Store(math.Float64bits(f.snr.Update(samples)))
	f.freq = f.discriminator.Work(samples, f.freq)
	return f.slicer.Slice(f.freq, nil)
}

// Start runs until SampleInput is closed, then closes BitsOutput. Bits are
// dropped rather than stalling the sample source.
func (f *FSK) Start() {
	defer close(f.BitsOutput)
	for samples := range f.SampleInput {
		bits := f.Process(samples)
		if len(bits) == 0 {
			continue
		}
		select {
		case f.BitsOutput <- bits:
		default:
			f.droppedBits.Add(uint64(len(bits)))
			log.Debugf("[fsk] Decoder behind, dropped %d bits", len(bits))
		}
	}
}
