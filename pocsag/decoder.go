package pocsag

import (
	"fmt"
	"math/bits"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

const (
	codewordsPerBatch = 16
	framesPerBatch    = 8
	// Bits a synchronizing decoder waits past the end of a preamble before
	// falling back to a blind search.
	syncSearchLimit = 64
)

type DecoderState int

const (
	Unsynchronized DecoderState = iota
	Synchronizing
	BatchAligned
	Reading
)

func (s DecoderState) String() string {
	switch s {
	case Unsynchronized:
		return "unsynchronized"
	case Synchronizing:
		return "synchronizing"
	case BatchAligned:
		return "batch aligned"
	case Reading:
		return "reading"
	}
	return fmt.Sprintf("DecoderState(%d)", int(s))
}

// Observer is told about decoder events as they happen, on the decoding
// goroutine.
type Observer interface {
	CodewordDecoded(Outcome)
	SyncLost()
	PacketTorn()
	PacketEmitted(Packet)
}

type nopObserver struct{}

func (nopObserver) CodewordDecoded(Outcome) {}
func (nopObserver) SyncLost()               {}
func (nopObserver) PacketTorn()             {}
func (nopObserver) PacketEmitted(Packet)    {}

type Options struct {
	// SyncMaxBitErrors is the number of bit errors tolerated in a sync word.
	SyncMaxBitErrors int
	// MaxConsecutiveErrors uncorrectable codewords in a row count as lost
	// synchronization.
	MaxConsecutiveErrors int
	MaxMessageCodewords  int
	Now                  func() time.Time
	Observer             Observer
}

var DefaultOptions = Options{
	SyncMaxBitErrors:     1,
	MaxConsecutiveErrors: 8,
	MaxMessageCodewords:  128,
}

// Stats are safe to read while the decoder runs.
type Stats struct {
	Codewords       atomic.Uint64
	Valid           atomic.Uint64
	Corrected       atomic.Uint64
	Uncorrectable   atomic.Uint64
	Batches         atomic.Uint64
	Packets         atomic.Uint64
	SyncLosses      atomic.Uint64
	TornPackets     atomic.Uint64
	OrphanCodewords atomic.Uint64
	BadAddresses    atomic.Uint64
}

type slot struct {
	packet Packet
	open   bool
}

// Decoder turns a demodulated bitstream into packets. Feed it from a single
// goroutine.
type Decoder struct {
	opts  Options
	emit  func(Packet)
	stats Stats

	state      DecoderState
	window     uint32
	windowBits int
	inverted   bool
	searched   int

	word        uint32
	wordBits    int
	position    int
	consecutive int

	// One accumulator per frame, sized once.
	slots   [framesPerBatch]slot
	current int
}

func NewDecoder(opts Options, emit func(Packet)) *Decoder {
	if opts.SyncMaxBitErrors < 0 {
		opts.SyncMaxBitErrors = 0
	}
	if opts.MaxConsecutiveErrors <= 0 {
		opts.MaxConsecutiveErrors = DefaultOptions.MaxConsecutiveErrors
	}
	if opts.MaxMessageCodewords <= 0 {
		opts.MaxMessageCodewords = DefaultOptions.MaxMessageCodewords
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if emit == nil {
		emit = func(Packet) {}
	}

	d := &Decoder{opts: opts, emit: emit, current: -1}
	for i := range d.slots {
		d.slots[i].packet.Payload = make([]uint32, 0, opts.MaxMessageCodewords)
		d.slots[i].packet.Codewords = make([]uint32, 0, opts.MaxMessageCodewords+1)
	}
	return d
}

func (d *Decoder) Stats() *Stats {
	return &d.stats
}

func (d *Decoder) State() DecoderState {
	if d.state == BatchAligned && d.current >= 0 {
		return Reading
	}
	return d.state
}

// Inverted reports whether the last sync was found with inverted polarity.
func (d *Decoder) Inverted() bool {
	return d.inverted
}

// Feed consumes one bit; any non-zero value is a one.
func (d *Decoder) Feed(bit byte) {
	var b uint32
	if bit != 0 {
		b = 1
	}
	d.window = d.window<<1 | b
	if d.windowBits < 32 {
		d.windowBits++
	}

	switch d.state {
	case Unsynchronized, Synchronizing:
		d.search()
	case BatchAligned:
		if d.inverted {
			b ^= 1
		}
		d.word = d.word<<1 | b
		d.wordBits++
		if d.wordBits == 32 {
			w := d.word
			d.word, d.wordBits = 0, 0
			d.codeword(w)
		}
	}
}

func (d *Decoder) FeedBits(bits []byte) {
	for _, b := range bits {
		d.Feed(b)
	}
}

// FeedSoft slices soft symbols at zero.
func (d *Decoder) FeedSoft(soft []float32) {
	for _, s := range soft {
		if s > 0 {
			d.Feed(1)
		} else {
			d.Feed(0)
		}
	}
}

func (d *Decoder) nearSync(w uint32) bool {
	return bits.OnesCount32(w^SyncCodeword) <= d.opts.SyncMaxBitErrors
}

func isPreamble(w uint32) bool {
	return w == PreambleWord || w == ^PreambleWord
}

func (d *Decoder) search() {
	if d.windowBits < 32 {
		return
	}
	switch {
	case d.nearSync(d.window):
		d.align(false)
		return
	case d.nearSync(^d.window):
		d.align(true)
		return
	case isPreamble(d.window):
		if d.state == Unsynchronized {
			log.Debugf("[pocsag] Preamble detected")
		}
		d.state = Synchronizing
		d.searched = 0
		return
	}

	if d.state == Synchronizing {
		d.searched++
		if d.searched > syncSearchLimit {
			d.state = Unsynchronized
			d.searched = 0
		}
	}
}

func (d *Decoder) align(inverted bool) {
	if inverted != d.inverted {
		log.Debugf("[pocsag] Sync found, inverted polarity: %v", inverted)
	}
	d.inverted = inverted
	d.state = BatchAligned
	d.word, d.wordBits = 0, 0
	d.position = 0
	d.consecutive = 0
	d.searched = 0
	d.stats.Batches.Add(1)
}

func (d *Decoder) codeword(raw uint32) {
	if d.position == codewordsPerBatch {
		d.batchBoundary(raw)
		return
	}
	frame := d.position / 2
	d.position++

	cw, outcome := DecodeCodeword(raw)
	d.count(outcome)

	if outcome == Uncorrectable {
		d.consecutive++
		if d.consecutive >= d.opts.MaxConsecutiveErrors {
			d.tear()
			return
		}
	} else {
		d.consecutive = 0
	}

	switch {
	case outcome == Uncorrectable && !IsMessage(cw):
		// The address can't be trusted, so whatever it opened is lost too.
		d.stats.BadAddresses.Add(1)
		d.close()
	case outcome == Uncorrectable:
		d.appendMessage(cw, outcome)
	case cw == IdleCodeword:
		d.close()
	case cw == SyncCodeword:
		d.close()
		d.position = 0
		d.stats.Batches.Add(1)
	case IsMessage(cw):
		d.appendMessage(cw, outcome)
	default:
		d.openAddress(cw, frame, outcome)
	}
}

func (d *Decoder) batchBoundary(raw uint32) {
	if d.nearSync(raw) {
		d.position = 0
		d.stats.Batches.Add(1)
		return
	}
	log.Debugf("[pocsag] Sync missing at batch boundary (%08x)", raw)
	d.close()
	d.desync()
}

func (d *Decoder) count(o Outcome) {
	d.stats.Codewords.Add(1)
	switch o {
	case Valid:
		d.stats.Valid.Add(1)
	case Corrected:
		d.stats.Corrected.Add(1)
	default:
		d.stats.Uncorrectable.Add(1)
	}
	d.opts.Observer.CodewordDecoded(o)
}

func (d *Decoder) openAddress(cw uint32, frame int, o Outcome) {
	d.close()

	data := Data(cw)
	s := &d.slots[frame]
	s.open = true
	s.packet.Address = (data>>2)<<3 | uint32(frame)
	s.packet.Function = uint8(data & 3)
	s.packet.Payload = s.packet.Payload[:0]
	s.packet.Codewords = append(s.packet.Codewords[:0], cw)
	s.packet.ErrorCount = 0
	s.packet.Uncorrectable = 0
	s.packet.Truncated = false
	s.packet.Timestamp = d.opts.Now()
	if o != Valid {
		s.packet.ErrorCount++
	}
	d.current = frame
}

func (d *Decoder) appendMessage(cw uint32, o Outcome) {
	if d.current < 0 {
		d.stats.OrphanCodewords.Add(1)
		return
	}
	p := &d.slots[d.current].packet
	if len(p.Payload) == d.opts.MaxMessageCodewords {
		p.Truncated = true
		d.close()
		d.stats.OrphanCodewords.Add(1)
		return
	}
	p.Payload = append(p.Payload, Data(cw))
	p.Codewords = append(p.Codewords, cw)
	switch o {
	case Corrected:
		p.ErrorCount++
	case Uncorrectable:
		p.ErrorCount++
		p.Uncorrectable++
	}
}

// close emits the open packet, if any.
func (d *Decoder) close() {
	if d.current < 0 {
		return
	}
	s := &d.slots[d.current]
	d.current = -1
	s.open = false

	p := s.packet
	p.Payload = append([]uint32(nil), s.packet.Payload...)
	p.Codewords = append([]uint32(nil), s.packet.Codewords...)

	d.stats.Packets.Add(1)
	d.opts.Observer.PacketEmitted(p)
	d.emit(p)
}

// tear drops the open packet and goes back to searching.
func (d *Decoder) tear() {
	if d.current >= 0 {
		d.slots[d.current].open = false
		d.current = -1
		d.stats.TornPackets.Add(1)
		d.opts.Observer.PacketTorn()
		log.Debugf("[pocsag] Dropped torn packet after %d bad codewords", d.consecutive)
	}
	d.desync()
}

func (d *Decoder) desync() {
	d.state = Unsynchronized
	d.position = 0
	d.consecutive = 0
	d.word, d.wordBits = 0, 0
	d.stats.SyncLosses.Add(1)
	d.opts.Observer.SyncLost()
}

// Flush emits the packet in progress, for when the bitstream ends.
func (d *Decoder) Flush() {
	d.close()
}

// Reset discards all state, including any packet in progress.
func (d *Decoder) Reset() {
	for i := range d.slots {
		d.slots[i].open = false
	}
	d.current = -1
	d.state = Unsynchronized
	d.window, d.windowBits = 0, 0
	d.inverted = false
	d.searched = 0
	d.word, d.wordBits = 0, 0
	d.position = 0
	d.consecutive = 0
}
