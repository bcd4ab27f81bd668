package demod

import (
	"math"
	"math/cmplx"
)

// Estimates are capped here; a noiseless signal would otherwise be infinite.
const snrCeiling = 60.0

func log10(v float32) float32 {
	if v <= 0 {
		return -100
	}
	return float32(math.Log10(float64(v)))
}

// SNREstimator is a running second and fourth moment (M2M4) estimator,
// after Pauluzzi and Beaulieu, "A comparison of SNR estimation techniques
// for the AWGN channel", IEEE Trans. Communications 48(10), 2000.
type SNREstimator struct {
	y1    float64
	y2    float64
	alpha float64
}

func NewSNREstimator(alpha float64) *SNREstimator {
	return &SNREstimator{alpha: alpha}
}

// Update folds in a block and returns the estimate in dB, never negative.
func (s *SNREstimator) Update(samples []complex64) float64 {
	beta := 1 - s.alpha
	for _, v := range samples {
		m2 := math.Pow(cmplx.Abs(complex128(v)), 2)
		s.y1 = s.alpha*m2 + beta*s.y1
		s.y2 = s.alpha*m2*m2 + beta*s.y2
	}
	if math.IsNaN(s.y1) {
		s.y1 = 0
	}
	if math.IsNaN(s.y2) {
		s.y2 = 0
	}

	radicand := 2*s.y1*s.y1 - s.y2
	if radicand <= 0 {
		return 0
	}
	signal := math.Sqrt(radicand)
	noise := s.y1 - signal
	if noise <= 0 {
		return snrCeiling
	}
	return min(snrCeiling, max(0, 10*math.Log10(signal/noise)))
}
