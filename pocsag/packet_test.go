package pocsag

import (
	"context"
	"testing"
	"time"

	"github.com/jrwynneiii/rxcap/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumericText(t *testing.T) {
	p := Packet{Function: 0, Payload: EncodeNumeric("0123456789*U -)(")}
	assert.Equal(t, "0123456789*U -)(", p.Text())

	p = Packet{Payload: EncodeNumeric("911")}
	assert.Equal(t, "911", p.Numeric(), "space padding is trimmed")
	assert.Equal(t, 20, p.PayloadBits())
}

func TestAlphanumericText(t *testing.T) {
	p := Packet{Function: 3, Payload: EncodeAlphanumeric("Line one\nline two\x01!")}
	assert.Equal(t, "Line one line two!", p.Text())

	p = Packet{Function: 1, Payload: EncodeAlphanumeric("AB\x00CD")}
	assert.Equal(t, "AB", p.Text(), "NUL ends the text")
}

func TestAddressOnlyPacket(t *testing.T) {
	p := Packet{Address: 1234}
	assert.True(t, p.AddressOnly())
	assert.Empty(t, p.Text())
}

func TestBatchesLayout(t *testing.T) {
	words := Batches([]Page{{Address: 1234, Function: 2, Message: []uint32{0x12345}}})
	require.Len(t, words, 1+codewordsPerBatch)
	assert.Equal(t, SyncCodeword, words[0])
	for i, w := range words[1:] {
		switch i {
		case 4:
			assert.Equal(t, EncodeAddress(1234, 2), w)
		case 5:
			assert.Equal(t, EncodeMessage(0x12345), w)
		default:
			assert.Equal(t, IdleCodeword, w, "position %d", i)
		}
	}

	assert.Len(t, Batches(nil), 1+codewordsPerBatch)

	// An address whose frame has already passed starts a new batch.
	words = Batches([]Page{{Address: 5}, {Address: 9}})
	require.Len(t, words, 2*(1+codewordsPerBatch))
	assert.Equal(t, EncodeAddress(5, 0), words[1+10])
	assert.Equal(t, EncodeAddress(9, 0), words[17+1+2])
}

func TestStreamDecodesAndClosesOutput(t *testing.T) {
	conf := config.Defaults().Pocsag
	s := NewStream(conf, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go s.Start(ctx)

	words := Batches([]Page{{Address: 2000, Function: 3, Message: EncodeAlphanumeric("OK")}})
	bits := Bits(words, PreambleBits)
	s.BitsInput <- bits[:100]
	s.BitsInput <- bits[100:]
	close(s.BitsInput)

	var got []Packet
	for p := range s.PacketsOutput {
		got = append(got, p)
	}
	require.Len(t, got, 1)
	assert.Equal(t, uint32(2000), got[0].Address)
	assert.Equal(t, "OK", got[0].Text())
	assert.Zero(t, s.DroppedPackets())
	assert.Equal(t, BatchAligned, s.State())
	assert.Equal(t, uint64(1), s.Stats().Packets.Load())
}

func TestStreamDropsWhenOutputIsFull(t *testing.T) {
	conf := config.Defaults().Pocsag
	conf.PacketBufferSize = 1
	s := NewStream(conf, nil)

	pages := []Page{{Address: 8}, {Address: 16}, {Address: 24}}
	s.Decoder.FeedBits(Bits(Batches(pages), PreambleBits))

	assert.Len(t, s.PacketsOutput, 1)
	assert.Equal(t, uint64(2), s.DroppedPackets())
}
