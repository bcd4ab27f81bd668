package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jrwynneiii/rxcap/config"
	"github.com/jrwynneiii/rxcap/pocsag"
	"github.com/jrwynneiii/rxcap/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelemetryTable(t *testing.T) {
	d := &TelemetryTableData{}
	assert.Equal(t, "idle", d.GetCell(0, 1).Text)
	assert.Equal(t, "-", d.GetCell(1, 1).Text)
	assert.Equal(t, "-", d.GetCell(2, 1).Text)

	d.Update(record.Telemetry{
		State:          record.Recording,
		Filename:       "CAPTURES/BBD_0001.C16",
		Written:        40,
		Dropped:        2,
		DroppedPercent: 5,
		Available:      record.Available{Hours: 1, Minutes: 2, Seconds: 3},
		SampleRate:     500000,
		EffectiveRate:  4000000,
	})
	assert.Equal(t, "recording", d.GetCell(0, 1).Text)
	assert.Equal(t, "CAPTURES/BBD_0001.C16", d.GetCell(1, 1).Text)
	assert.True(t, strings.HasPrefix(d.GetCell(2, 1).Text, "500000 S/s"))
	assert.Equal(t, "40 blocks", d.GetCell(3, 1).Text)
	assert.Equal(t, " 5% (2 blocks)", d.GetCell(4, 1).Text)
	assert.Equal(t, "  1:02:03", d.GetCell(5, 1).Text)
	assert.Equal(t, "ok", d.GetCell(6, 1).Text)
	assert.Equal(t, "ERROR", d.GetCell(7, 0).Text)

	d.Update(record.Telemetry{State: record.Armed, Err: errors.New("disk full")})
	assert.Equal(t, "disk full", d.GetCell(6, 1).Text)
}

func TestPacketTableNewestFirst(t *testing.T) {
	d := NewPacketTableData(2)
	stamp := time.Date(2024, 5, 1, 13, 14, 15, 0, time.UTC)
	for i, text := range []string{"ONE", "TWO", "THREE"} {
		d.Add(pocsag.Packet{
			Address:   uint32(100 + i),
			Function:  3,
			Payload:   pocsag.EncodeAlphanumeric(text),
			Timestamp: stamp,
		})
	}
	require.Equal(t, 3, d.GetRowCount())
	assert.Equal(t, "THREE", d.GetCell(1, 4).Text)
	assert.Equal(t, "TWO", d.GetCell(2, 4).Text)
	assert.Equal(t, "[lightskyblue]102", d.GetCell(1, 1).Text)
	assert.Equal(t, "13:14:15", d.GetCell(1, 0).Text)
	assert.Equal(t, "[green]0", d.GetCell(1, 3).Text)
	assert.Equal(t, "", d.GetCell(5, 0).Text)

	d.Add(pocsag.Packet{Address: 7, ErrorCount: 2, Uncorrectable: 1})
	assert.Equal(t, "[gray](tone only)", d.GetCell(1, 4).Text)
	assert.Equal(t, "[red]2", d.GetCell(1, 3).Text)
}

func TestDecoderTable(t *testing.T) {
	dec := pocsag.NewDecoder(pocsag.DefaultOptions, func(pocsag.Packet) {})
	words := pocsag.Batches([]pocsag.Page{{Address: 1234, Function: 3, Message: pocsag.EncodeAlphanumeric("HI")}})
	dec.FeedBits(pocsag.Bits(words, pocsag.PreambleBits))
	dec.Flush()

	d := &DecoderTableData{decoder: dec, snr: func() float64 { return 12.34 }}
	assert.Equal(t, "12.3 dB", d.GetCell(1, 1).Text)
	assert.Equal(t, "16", d.GetCell(2, 1).Text)
	assert.Equal(t, "[green]1", d.GetCell(5, 1).Text)

	d.snr = nil
	assert.Equal(t, "-", d.GetCell(1, 1).Text)
}

func TestFilterText(t *testing.T) {
	text := FilterText(config.PagerConf{EnableIgnore: true, AddressToIgnore: 42, HideBadData: true})
	assert.Contains(t, text, "Ignore: [red]42")
	assert.Contains(t, text, "Hide bad (b): [green]on")
	assert.Contains(t, text, "Hide address only (a): [gray]off")
}

func TestLevelPercent(t *testing.T) {
	assert.Equal(t, 0.0, levelPercent(-120))
	assert.Equal(t, 70.0, levelPercent(-30))
	assert.Equal(t, 100.0, levelPercent(3))
}
