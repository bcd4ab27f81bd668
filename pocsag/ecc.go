package pocsag

import (
	"fmt"
	"math/bits"
)

// Codeword layout, MSB first:
//
//	bit 31      flag (0 address, 1 message)
//	bits 30..11 20 data bits
//	bits 10..1  BCH(31,21) check bits
//	bit 0       even parity over the whole word
const (
	SyncCodeword uint32 = 0x7CD215D8
	IdleCodeword uint32 = 0x7A89C197

	PreambleWord uint32 = 0xAAAAAAAA

	// x^10 + x^9 + x^8 + x^6 + x^5 + x^3 + 1
	bchGenerator uint32 = 0x769
	bchCheckBits        = 10

	messageFlag uint32 = 1 << 31
	dataMask    uint32 = 0xFFFFF
)

type Outcome int

const (
	Valid Outcome = iota
	Corrected
	Uncorrectable
)

func (o Outcome) String() string {
	switch o {
	case Valid:
		return "valid"
	case Corrected:
		return "corrected"
	case Uncorrectable:
		return "uncorrectable"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// syndromeTable maps the BCH syndrome of every single-bit error in the
// 31 BCH bits to the position of that bit in the 32-bit codeword.
var syndromeTable = buildSyndromeTable()

func buildSyndromeTable() [1 << bchCheckBits]int8 {
	var table [1 << bchCheckBits]int8
	for i := range table {
		table[i] = -1
	}
	for pos := 1; pos < 32; pos++ {
		table[syndrome(uint32(1)<<pos)] = int8(pos)
	}
	return table
}

// bchRemainder divides a 31-bit polynomial by the generator.
func bchRemainder(v uint32) uint32 {
	for bit := 30; bit >= bchCheckBits; bit-- {
		if v&(1<<bit) != 0 {
			v ^= bchGenerator << (bit - bchCheckBits)
		}
	}
	return v & (1<<bchCheckBits - 1)
}

func syndrome(cw uint32) uint32 {
	return bchRemainder(cw >> 1)
}

func parityOK(cw uint32) bool {
	return bits.OnesCount32(cw)%2 == 0
}

// DecodeCodeword checks one codeword and repairs a single bit error. Any
// other error pattern is returned untouched and flagged Uncorrectable.
func DecodeCodeword(cw uint32) (uint32, Outcome) {
	s := syndrome(cw)
	even := parityOK(cw)

	switch {
	case s == 0 && even:
		return cw, Valid
	case s == 0:
		return cw ^ 1, Corrected
	case !even && syndromeTable[s] >= 0:
		return cw ^ (1 << uint(syndromeTable[s])), Corrected
	}
	return cw, Uncorrectable
}

// Encode builds a codeword from the flag and 20 data bits held in the low
// 21 bits of v.
func Encode(v uint32) uint32 {
	v &= 1<<21 - 1
	full := v<<bchCheckBits | bchRemainder(v<<bchCheckBits)
	cw := full << 1
	if !parityOK(cw) {
		cw |= 1
	}
	return cw
}

// EncodeAddress builds the address codeword for a pager. The low three
// address bits are not sent; they select the frame the codeword goes in.
func EncodeAddress(address uint32, function uint8) uint32 {
	return Encode((address>>3)<<2 | uint32(function&3))
}

func EncodeMessage(data uint32) uint32 {
	return Encode(1<<20 | data&dataMask)
}

func IsMessage(cw uint32) bool {
	return cw&messageFlag != 0
}

func Data(cw uint32) uint32 {
	return (cw >> 11) & dataMask
}

// AddressFrame is the frame, within a batch, that carries address.
func AddressFrame(address uint32) int {
	return int(address & 7)
}
