package pager

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/jrwynneiii/rxcap/config"
	"github.com/jrwynneiii/rxcap/pocsag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var when = time.Date(2026, 10, 15, 9, 4, 5, 0, time.UTC)

func page(address uint32, function uint8, text string) pocsag.Packet {
	p := pocsag.Packet{
		Address:   address,
		Function:  function,
		Codewords: []uint32{pocsag.EncodeAddress(address, function)},
		Timestamp: when,
	}
	if text != "" {
		p.Payload = pocsag.EncodeAlphanumeric(text)
		for _, d := range p.Payload {
			p.Codewords = append(p.Codewords, pocsag.EncodeMessage(d))
		}
	}
	return p
}

func TestFilter(t *testing.T) {
	f := NewFilter(config.PagerConf{})
	_, ok := f.IgnoreLast()
	assert.False(t, ok, "nothing shown yet")

	assert.True(t, f.Allow(page(1234, 3, "HELLO")))
	addr, ok := f.IgnoreLast()
	require.True(t, ok)
	assert.Equal(t, uint32(1234), addr)
	assert.False(t, f.Allow(page(1234, 3, "AGAIN")))
	assert.True(t, f.Allow(page(1235, 3, "OTHER")))

	f.Update(func(c *config.PagerConf) { c.HideAddrOnly = true })
	assert.False(t, f.Allow(page(99, 0, "")))

	bad := page(100, 3, "X")
	bad.Uncorrectable = 1
	assert.True(t, f.Allow(bad))
	f.Update(func(c *config.PagerConf) { c.HideBadData = true })
	assert.False(t, f.Allow(bad))

	s := f.Settings()
	assert.True(t, s.EnableIgnore)
	assert.Equal(t, uint32(1234), s.AddressToIgnore)
}

func TestLoggerLines(t *testing.T) {
	var buf bytes.Buffer
	conf := config.Defaults().Pager
	conf.EnableRawLog = true
	l, err := NewLogger(&buf, conf, func() uint64 { return 466175000 })
	require.NoError(t, err)

	p := page(1234, 3, "HI")
	p.ErrorCount = 1
	require.NoError(t, l.Log(p))
	l.SetRaw(false)
	require.NoError(t, l.Log(page(8, 0, "")))
	require.NoError(t, l.Close())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "2026-10-15 09:04:05 466175000Hz RAW ADDR:1234 F:3 ERR:1 "+
		hex32(p.Codewords[0])+" "+hex32(p.Codewords[1]), lines[0])
	assert.Equal(t, "2026-10-15 09:04:05 ADDR:1234 F:3 ERR:1 HI", lines[1])
	assert.Equal(t, "2026-10-15 09:04:05 ADDR:8 F:0 (address only)", lines[2])
}

func hex32(v uint32) string {
	const digits = "0123456789ABCDEF"
	out := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		out[i] = digits[v&0xF]
		v >>= 4
	}
	return string(out)
}

func TestOpenLoggerAppends(t *testing.T) {
	conf := config.Defaults().Pager
	conf.LogFile = filepath.Join(t.TempDir(), "LOGS", "POCSAG.TXT")

	for i := 0; i < 2; i++ {
		l, err := OpenLogger(conf, nil)
		require.NoError(t, err)
		require.NoError(t, l.Log(page(16, 3, "X")))
		require.NoError(t, l.Close())
	}
	data, err := os.ReadFile(conf.LogFile)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "ADDR:16 F:3 X"))
}

func TestBadTimestampFormat(t *testing.T) {
	conf := config.Defaults().Pager
	conf.TimestampFormat = "%Q"
	_, err := NewLogger(&bytes.Buffer{}, conf, nil)
	assert.Error(t, err)
}

type fakeToken struct{}

func (fakeToken) Wait() bool                     { return true }
func (fakeToken) WaitTimeout(time.Duration) bool { return true }
func (fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (fakeToken) Error() error { return nil }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeClient struct {
	mqtt.Client
	mu   sync.Mutex
	sent []published
}

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	c.sent = append(c.sent, published{topic, qos, payload.([]byte)})
	c.mu.Unlock()
	return fakeToken{}
}

func TestPublisher(t *testing.T) {
	client := &fakeClient{}
	pub := newPublisher(client, config.MQTTConf{Topic: "rxcap/pocsag", QoS: 1}, func() uint64 { return 466175000 })
	require.NoError(t, pub.Publish(page(1234, 3, "HELLO")))

	require.Len(t, client.sent, 1)
	assert.Equal(t, "rxcap/pocsag/1234", client.sent[0].topic)
	assert.Equal(t, byte(1), client.sent[0].qos)

	var m Message
	require.NoError(t, json.Unmarshal(client.sent[0].payload, &m))
	assert.Equal(t, uint32(1234), m.Address)
	assert.Equal(t, "HELLO", m.Text)
	assert.Equal(t, uint64(466175000), m.Frequency)
	assert.Equal(t, when.Unix(), m.Timestamp)
	assert.Len(t, m.Codewords, 3)
}
