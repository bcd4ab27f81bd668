package pocsag

// Page is one outgoing message for the transmission builder.
type Page struct {
	Address  uint32
	Function uint8
	// Message holds 20-bit data words, see EncodeNumeric and EncodeAlphanumeric.
	Message []uint32
}

// PreambleBits is the minimum preamble length a transmission starts with.
const PreambleBits = 576

type batchBuilder struct {
	words    []uint32
	batch    [codewordsPerBatch]uint32
	position int
}

func (b *batchBuilder) reset() {
	for i := range b.batch {
		b.batch[i] = IdleCodeword
	}
	b.position = 0
}

func (b *batchBuilder) flush() {
	b.words = append(b.words, SyncCodeword)
	b.words = append(b.words, b.batch[:]...)
	b.reset()
}

func (b *batchBuilder) put(cw uint32) {
	if b.position == codewordsPerBatch {
		b.flush()
	}
	b.batch[b.position] = cw
	b.position++
}

// Batches lays pages out as sync-prefixed batches. Each address lands in the
// frame its low three bits select; message words run on across frames and
// batches. Unused positions hold the idle codeword.
func Batches(pages []Page) []uint32 {
	b := &batchBuilder{}
	b.reset()
	for _, p := range pages {
		first := 2 * AddressFrame(p.Address)
		if b.position > first {
			b.flush()
		}
		b.position = first
		b.put(EncodeAddress(p.Address, p.Function))
		for _, data := range p.Message {
			b.put(EncodeMessage(data))
		}
	}
	// A trailing idle terminates the last message even when it filled the batch.
	if b.position == codewordsPerBatch {
		b.flush()
	}
	b.flush()
	return b.words
}

// Bits serializes codewords MSB first behind an alternating preamble.
func Bits(words []uint32, preambleBits int) []byte {
	out := make([]byte, 0, preambleBits+32*len(words))
	for i := 0; i < preambleBits; i++ {
		out = append(out, byte(1-i%2))
	}
	for _, w := range words {
		for i := 31; i >= 0; i-- {
			out = append(out, byte(w>>i&1))
		}
	}
	return out
}
