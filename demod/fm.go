package demod

import (
	"math"
	"math/cmplx"
)

// Discriminator is a quadrature FM demodulator. Output is the phase step
// per sample scaled to [-1, 1] at +/- half the sample rate.
type Discriminator struct {
	last complex64
}

func (d *Discriminator) Work(samples []complex64, out []float32) []float32 {
	out = out[:0]
	for _, s := range samples {
		step := cmplx.Phase(complex128(s * complex(real(d.last), -imag(d.last))))
		out = append(out, float32(step/math.Pi))
		d.last = s
	}
	return out
}

func (d *Discriminator) Reset() {
	d.last = 0
}
