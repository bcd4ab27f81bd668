package demod

import (
	"encoding/binary"
	"math"
)

func clamp(v float32, limit float32) float32 {
	if v > limit {
		return limit
	}
	if v < -limit-1 {
		return -limit - 1
	}
	return v
}

// QuantizeCS8 appends interleaved signed 8-bit I/Q.
func QuantizeCS8(dst []byte, samples []complex64) []byte {
	for _, s := range samples {
		i := int8(clamp(float32(math.Round(float64(real(s)*127))), 127))
		q := int8(clamp(float32(math.Round(float64(imag(s)*127))), 127))
		dst = append(dst, byte(i), byte(q))
	}
	return dst
}

// QuantizeCS16 appends interleaved signed 16-bit little endian I/Q.
func QuantizeCS16(dst []byte, samples []complex64) []byte {
	for _, s := range samples {
		i := int16(clamp(float32(math.Round(float64(real(s)*32767))), 32767))
		q := int16(clamp(float32(math.Round(float64(imag(s)*32767))), 32767))
		dst = binary.LittleEndian.AppendUint16(dst, uint16(i))
		dst = binary.LittleEndian.AppendUint16(dst, uint16(q))
	}
	return dst
}

// QuantizePCM16 appends mono signed 16-bit little endian audio.
func QuantizePCM16(dst []byte, audio []float32, gain float32) []byte {
	for _, v := range audio {
		s := int16(clamp(float32(math.Round(float64(v*gain*32767))), 32767))
		dst = binary.LittleEndian.AppendUint16(dst, uint16(s))
	}
	return dst
}

// Sink takes finished blocks. record.Controller is one.
type Sink interface {
	Submit(block []byte) bool
	BlockSize() int
}

// BlockAssembler cuts a byte stream into the fixed size blocks the capture
// thread writes. Each block handed to the sink is a fresh slice the sink
// owns.
type BlockAssembler struct {
	sink    Sink
	pending []byte
}

func NewBlockAssembler(sink Sink) *BlockAssembler {
	return &BlockAssembler{sink: sink}
}

// Push adds data and submits every complete block. It returns the number of
// blocks the sink refused.
func (a *BlockAssembler) Push(data []byte) int {
	size := a.sink.BlockSize()
	if size <= 0 {
		return 0
	}
	refused := 0
	for len(data) > 0 {
		if a.pending == nil {
			a.pending = make([]byte, 0, size)
		}
		n := min(size-len(a.pending), len(data))
		a.pending = append(a.pending, data[:n]...)
		data = data[n:]
		if len(a.pending) == size {
			if !a.sink.Submit(a.pending) {
				refused++
			}
			a.pending = nil
		}
	}
	return refused
}

// Reset drops a partial block, e.g. when the format changes.
func (a *BlockAssembler) Reset() {
	a.pending = nil
}

func (a *BlockAssembler) Pending() int {
	return len(a.pending)
}
