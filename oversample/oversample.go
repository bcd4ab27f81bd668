package oversample

import (
	"fmt"

	"github.com/jrwynneiii/rxcap/writer"
)

// Rate is the decimation factor the baseband applies between the front end
// and the recorded stream.
type Rate int

const (
	None Rate = 1
	X8   Rate = 8
	X16  Rate = 16
	X32  Rate = 32
	X64  Rate = 64
)

const maxSearchFactor = 128

func (r Rate) String() string {
	if r == None {
		return "none"
	}
	return fmt.Sprintf("x%d", int(r))
}

func (r Rate) Valid() bool {
	switch r {
	case None, X8, X16, X32, X64:
		return true
	}
	return false
}

// Limits are hardware properties of the decimator, not of this package.
type Limits struct {
	// MinFrontEndRate is the lowest rate the front end runs at faithfully.
	MinFrontEndRate uint32
	Min             Rate
	Max             Rate
	// SafeCaptureRate is the effective rate above which the decimator drops
	// samples periodically, so raw captures stop being replayable.
	SafeCaptureRate uint32
}

var DefaultLimits = Limits{
	MinFrontEndRate: 1_600_000,
	Min:             X8,
	Max:             X64,
	SafeCaptureRate: 8_000_000,
}

type Selection struct {
	Rate          Rate
	EffectiveRate uint64
	// Warning is set when the capture will not be sample-exact.
	Warning bool
}

func (l Limits) Validate() error {
	if !l.Min.Valid() || !l.Max.Valid() || l.Min == None {
		return fmt.Errorf("oversample bounds %v..%v are not supported decimation factors", l.Min, l.Max)
	}
	if l.Min > l.Max {
		return fmt.Errorf("oversample lower bound %v exceeds upper bound %v", l.Min, l.Max)
	}
	return nil
}

// Select picks the decimation for a requested output rate. Audio is already
// demodulated at its final rate and is never oversampled. Raw I/Q uses the
// smallest power of two that lifts the front end to MinFrontEndRate, clamped
// into [Min, Max].
func (l Limits) Select(requested uint32, ft writer.FileType) Selection {
	rate := None
	if ft.IsRaw() {
		factor := uint64(1)
		for uint64(requested)*factor < uint64(l.MinFrontEndRate) && factor < maxSearchFactor {
			factor *= 2
		}
		rate = Rate(factor)
		if rate < l.Min {
			rate = l.Min
		} else if rate > l.Max {
			rate = l.Max
		}
	}

	effective := uint64(requested) * uint64(rate)
	return Selection{
		Rate:          rate,
		EffectiveRate: effective,
		Warning:       effective > uint64(l.SafeCaptureRate),
	}
}

func Select(requested uint32, ft writer.FileType) Selection {
	return DefaultLimits.Select(requested, ft)
}
