package pocsag

import (
	"context"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/jrwynneiii/rxcap/config"
)

// Stream runs a Decoder on its own goroutine between two channels.
type Stream struct {
	BitsInput      chan []byte
	PacketsOutput  chan Packet
	Decoder        *Decoder
	droppedPackets atomic.Uint64
	state          atomic.Int32
}

func NewStream(conf config.PocsagConf, observer Observer) *Stream {
	s := &Stream{
		BitsInput:     make(chan []byte, conf.BitBufferSize),
		PacketsOutput: make(chan Packet, conf.PacketBufferSize),
	}
	s.Decoder = NewDecoder(Options{
		SyncMaxBitErrors:     conf.SyncMaxBitErrors,
		MaxConsecutiveErrors: conf.MaxConsecutiveErrors,
		MaxMessageCodewords:  conf.MaxMessageCodewords,
		Observer:             observer,
	}, s.publish)
	return s
}

// publish must not block the decoder; a full output channel drops packets.
func (s *Stream) publish(p Packet) {
	select {
	case s.PacketsOutput <- p:
	default:
		s.droppedPackets.Add(1)
		log.Warnf("[pocsag] Packet queue full, dropped packet for %d", p.Address)
	}
}

func (s *Stream) DroppedPackets() uint64 {
	return s.droppedPackets.Load()
}

// State is the decoder state as of the last block of bits, safe to read
// from any goroutine.
func (s *Stream) State() DecoderState {
	return DecoderState(s.state.Load())
}

func (s *Stream) Stats() *Stats {
	return s.Decoder.Stats()
}

// Start decodes until BitsInput is closed or ctx is done, then closes
// PacketsOutput.
func (s *Stream) Start(ctx context.Context) {
	defer close(s.PacketsOutput)
	for {
		select {
		case <-ctx.Done():
			return
		case bits, ok := <-s.BitsInput:
			if !ok {
				s.Decoder.Flush()
				s.state.Store(int32(s.Decoder.State()))
				log.Debugf("[pocsag] Input closed after %d codewords", s.Decoder.Stats().Codewords.Load())
				return
			}
			s.Decoder.FeedBits(bits)
			s.state.Store(int32(s.Decoder.State()))
		}
	}
}
