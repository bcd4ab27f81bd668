package demod

import (
	"math"

	"github.com/racerxdl/segdsp/tools"
	"gonum.org/v1/gonum/dsp/fourier"
)

// Spectrum averages the power spectrum of samples into bins, DC in the
// middle, in dB.
func Spectrum(samples []complex64, bins int) []float64 {
	n := len(samples)
	if n == 0 || bins <= 0 {
		return nil
	}
	bins = min(bins, n)

	input := make([]complex128, n)
	for i, s := range samples {
		input[i] = complex128(s)
	}
	fft := fourier.NewCmplxFFT(n)
	coeff := fft.Coefficients(nil, input)

	out := make([]float64, bins)
	per := n / bins
	for b := range out {
		var sum float64
		for k := b * per; k < (b+1)*per; k++ {
			sum += float64(tools.ComplexAbsSquared(complex64(coeff[fft.ShiftIdx(k)])))
		}
		out[b] = 10 * math.Log10(sum/float64(per*n)+1e-12)
	}
	return out
}
