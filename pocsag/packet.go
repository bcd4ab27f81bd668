package pocsag

import (
	"strings"
	"time"
)

const bitsPerWord = 20

// Packet is one page: an address codeword plus the message codewords that
// followed it. It is not modified after the decoder emits it.
type Packet struct {
	Address  uint32
	Function uint8
	// Payload holds the 20 data bits of each message codeword, in order.
	Payload []uint32
	// Codewords are the received words, address first, after correction.
	Codewords []uint32
	// ErrorCount counts codewords that were corrected or uncorrectable.
	ErrorCount    int
	Uncorrectable int
	Truncated     bool
	Timestamp     time.Time
}

func (p Packet) AddressOnly() bool {
	return len(p.Payload) == 0
}

// Degraded reports whether any codeword could not be repaired.
func (p Packet) Degraded() bool {
	return p.Uncorrectable > 0
}

func (p Packet) PayloadBits() int {
	return len(p.Payload) * bitsPerWord
}

// Text renders the payload the way the function code usually implies:
// numeric for function 0, alphanumeric otherwise.
func (p Packet) Text() string {
	if p.Function == 0 {
		return p.Numeric()
	}
	return p.Alphanumeric()
}

// forEachBit walks the payload in transmission order.
func (p Packet) forEachBit(fn func(bit uint32)) {
	for _, w := range p.Payload {
		for i := bitsPerWord - 1; i >= 0; i-- {
			fn((w >> i) & 1)
		}
	}
}

// Alphanumeric decodes 7-bit characters sent LSB first. A NUL ends the
// text; trailing partial characters are padding.
func (p Packet) Alphanumeric() string {
	var sb strings.Builder
	var c uint32
	n := 0
	done := false
	p.forEachBit(func(bit uint32) {
		if done {
			return
		}
		c |= bit << n
		n++
		if n < 7 {
			return
		}
		switch {
		case c == 0:
			done = true
		case c == '\n' || c == '\r':
			sb.WriteByte(' ')
		case c < 0x20 || c == 0x7F:
		default:
			sb.WriteByte(byte(c))
		}
		c, n = 0, 0
	})
	return strings.TrimRight(sb.String(), " ")
}

const bcdDigits = "0123456789*U -)("

// Numeric decodes 4-bit BCD digits sent LSB first.
func (p Packet) Numeric() string {
	var sb strings.Builder
	var c uint32
	n := 0
	p.forEachBit(func(bit uint32) {
		c |= bit << n
		n++
		if n == 4 {
			sb.WriteByte(bcdDigits[c])
			c, n = 0, 0
		}
	})
	return strings.TrimRight(sb.String(), " ")
}

// EncodeAlphanumeric packs text into message data words, padding the last
// word with zero bits.
func EncodeAlphanumeric(text string) []uint32 {
	return packChars(text, 7, func(r byte) uint32 { return uint32(r & 0x7F) })
}

// EncodeNumeric packs digits into message data words, padding with spaces.
func EncodeNumeric(digits string) []uint32 {
	words := packChars(digits, 4, func(r byte) uint32 {
		if i := strings.IndexByte(bcdDigits, r); i >= 0 {
			return uint32(i)
		}
		return 0xC
	})
	if rem := len(digits) * 4 % bitsPerWord; rem != 0 {
		last := len(words) - 1
		for bit := rem; bit < bitsPerWord; bit += 4 {
			// space is 0xC, LSB first: 0,0,1,1
			words[last] |= 0x3 << (bitsPerWord - bit - 4)
		}
	}
	return words
}

func packChars(s string, width int, code func(byte) uint32) []uint32 {
	var words []uint32
	var word uint32
	n := 0
	for i := 0; i < len(s); i++ {
		c := code(s[i])
		for b := 0; b < width; b++ {
			word = word<<1 | (c>>b)&1
			n++
			if n == bitsPerWord {
				words = append(words, word)
				word, n = 0, 0
			}
		}
	}
	if n > 0 {
		words = append(words, word<<(bitsPerWord-n))
	}
	return words
}
