package pager

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jrwynneiii/rxcap/config"
	"github.com/jrwynneiii/rxcap/pocsag"
	"github.com/lestrrat-go/strftime"
)

// Logger appends received packets to a text log: optionally one raw line
// with the codewords, then one decoded line.
type Logger struct {
	mu        sync.Mutex
	out       io.Writer
	closer    io.Closer
	stamp     *strftime.Strftime
	raw       bool
	frequency func() uint64
}

func NewLogger(out io.Writer, conf config.PagerConf, frequency func() uint64) (*Logger, error) {
	stamp, err := strftime.New(conf.TimestampFormat)
	if err != nil {
		return nil, fmt.Errorf("bad pager timestamp format %q: %w", conf.TimestampFormat, err)
	}
	if frequency == nil {
		frequency = func() uint64 { return 0 }
	}
	l := &Logger{
		out:       out,
		stamp:     stamp,
		raw:       conf.EnableRawLog,
		frequency: frequency,
	}
	if c, ok := out.(io.Closer); ok {
		l.closer = c
	}
	return l, nil
}

// OpenLogger appends to conf.LogFile, creating its folder if needed.
func OpenLogger(conf config.PagerConf, frequency func() uint64) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(conf.LogFile), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log folder: %w", err)
	}
	f, err := os.OpenFile(conf.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open pager log: %w", err)
	}
	l, err := NewLogger(f, conf, frequency)
	if err != nil {
		f.Close()
		return nil, err
	}
	return l, nil
}

func (l *Logger) SetRaw(raw bool) {
	l.mu.Lock()
	l.raw = raw
	l.mu.Unlock()
}

func (l *Logger) Log(p pocsag.Packet) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := p.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	stamp := l.stamp.FormatString(ts)

	if l.raw {
		if _, err := io.WriteString(l.out, RawLine(stamp, l.frequency(), p)+"\n"); err != nil {
			return fmt.Errorf("failed to write pager log: %w", err)
		}
	}
	if _, err := io.WriteString(l.out, DecodedLine(stamp, p)+"\n"); err != nil {
		return fmt.Errorf("failed to write pager log: %w", err)
	}
	return nil
}

func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

func RawLine(stamp string, frequency uint64, p pocsag.Packet) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %dHz RAW ADDR:%d F:%d ERR:%d", stamp, frequency, p.Address, p.Function, p.ErrorCount)
	for _, cw := range p.Codewords {
		fmt.Fprintf(&sb, " %08X", cw)
	}
	return sb.String()
}

func DecodedLine(stamp string, p pocsag.Packet) string {
	line := fmt.Sprintf("%s ADDR:%d F:%d", stamp, p.Address, p.Function)
	if p.ErrorCount > 0 {
		line += fmt.Sprintf(" ERR:%d", p.ErrorCount)
	}
	if p.Degraded() {
		line += " BAD"
	}
	if p.AddressOnly() {
		return line + " (address only)"
	}
	return line + " " + p.Text()
}
