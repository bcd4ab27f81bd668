// Package replay plays recorded IQ files back as a sample source.
package replay

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

type Format int

const (
	CU8 Format = iota
	CS8
	CS16
	CF32
)

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "cu8", "u8":
		return CU8, nil
	case "cs8", "c8", "s8":
		return CS8, nil
	case "cs16", "c16", "s16":
		return CS16, nil
	case "cf32", "f32", "complex64":
		return CF32, nil
	}
	return CU8, fmt.Errorf("unknown IQ format %q", s)
}

func (f Format) String() string {
	switch f {
	case CU8:
		return "cu8"
	case CS8:
		return "cs8"
	case CS16:
		return "cs16"
	case CF32:
		return "cf32"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// FormatForPath guesses the sample format from the file extension.
func FormatForPath(path string) (Format, bool) {
	lower := strings.ToLower(path)
	for _, c := range []struct {
		ext string
		f   Format
	}{{".cu8", CU8}, {".c8", CS8}, {".cs8", CS8}, {".c16", CS16}, {".cs16", CS16}, {".cf32", CF32}, {".cfile", CF32}} {
		if strings.HasSuffix(lower, c.ext) {
			return c.f, true
		}
	}
	return CU8, false
}

func (f Format) bytesPerSample() int {
	switch f {
	case CS16:
		return 4
	case CF32:
		return 8
	}
	return 2
}

func (f Format) decode(dst []complex64, raw []byte) []complex64 {
	step := f.bytesPerSample()
	for i := 0; i+step <= len(raw); i += step {
		var s complex64
		switch f {
		case CU8:
			s = complex((float32(raw[i])-127.5)/127.5, (float32(raw[i+1])-127.5)/127.5)
		case CS8:
			s = complex(float32(int8(raw[i]))/127, float32(int8(raw[i+1]))/127)
		case CS16:
			re := int16(binary.LittleEndian.Uint16(raw[i:]))
			im := int16(binary.LittleEndian.Uint16(raw[i+2:]))
			s = complex(float32(re)/32767, float32(im)/32767)
		case CF32:
			re := math.Float32frombits(binary.LittleEndian.Uint32(raw[i:]))
			im := math.Float32frombits(binary.LittleEndian.Uint32(raw[i+4:]))
			s = complex(re, im)
		}
		dst = append(dst, s)
	}
	return dst
}

// File replays an IQ file in fixed chunks, optionally paced at the sample
// rate so downstream real-time behaviour matches a live device.
type File struct {
	SamplesOutput chan []complex64

	path      string
	format    Format
	chunkSize int
	frequency uint64
	loop      bool

	mu         sync.Mutex
	sampleRate float64
	paced      bool
}

type Options struct {
	Format     Format
	ChunkSize  int
	SampleRate float64
	Frequency  uint64
	Paced      bool
	Loop       bool
}

func Open(path string, opts Options, bufsize uint) (*File, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open IQ file: %w", err)
	}
	if opts.ChunkSize <= 0 {
		return nil, fmt.Errorf("invalid chunk size %d", opts.ChunkSize)
	}
	return &File{
		SamplesOutput: make(chan []complex64, bufsize),
		path:          path,
		format:        opts.Format,
		chunkSize:     opts.ChunkSize,
		frequency:     opts.Frequency,
		loop:          opts.Loop,
		sampleRate:    opts.SampleRate,
		paced:         opts.Paced && opts.SampleRate > 0,
	}, nil
}

// SetSampleRate only changes the pacing; a file's rate is what it is.
func (f *File) SetSampleRate(rate float64) error {
	f.mu.Lock()
	f.sampleRate = rate
	f.mu.Unlock()
	return nil
}

func (f *File) Frequency() uint64 {
	return f.frequency
}

func (f *File) chunkInterval() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.paced || f.sampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(f.chunkSize) / f.sampleRate * float64(time.Second))
}

// Start sends chunks until the file ends (or forever when looping) or ctx
// is done. Paced replay drops chunks on a full channel, as a live device
// would; unpaced replay waits for the consumer.
func (f *File) Start(ctx context.Context) error {
	defer close(f.SamplesOutput)
	for {
		if err := f.play(ctx); err != nil {
			return err
		}
		if !f.loop || ctx.Err() != nil {
			return nil
		}
	}
}

func (f *File) play(ctx context.Context) error {
	fh, err := os.Open(f.path)
	if err != nil {
		return fmt.Errorf("failed to open IQ file: %w", err)
	}
	defer fh.Close()

	reader := bufio.NewReader(fh)
	raw := make([]byte, f.chunkSize*f.format.bytesPerSample())
	next := time.Now()
	for {
		n, err := io.ReadFull(reader, raw)
		if n > 0 {
			chunk := f.format.decode(make([]complex64, 0, f.chunkSize), raw[:n])
			if interval := f.chunkInterval(); interval > 0 {
				next = next.Add(interval)
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(time.Until(next)):
				}
				select {
				case f.SamplesOutput <- chunk:
				default:
					log.Debugf("[replay] Consumer behind, dropped %d samples", len(chunk))
				}
			} else {
				select {
				case <-ctx.Done():
					return nil
				case f.SamplesOutput <- chunk:
				}
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read IQ file: %w", err)
		}
	}
}
