package writer

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

const (
	wavChannels      = 1
	wavBitsPerSample = 16
)

type fmtChunk struct {
	ChunkID       [4]byte // "fmt "
	ChunkSize     uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * NumChannels * BitsPerSample/8
	BlockAlign    uint16 // NumChannels * BitsPerSample/8
	BitsPerSample uint16
}

// Header is what ReadHeader recovers from a WAV file.
type Header struct {
	SampleRate    uint32
	Channels      uint16
	BitsPerSample uint16
	DataSize      uint32
	Tag           string
}

// WAVWriter writes mono 16-bit PCM. The RIFF and data lengths are written as
// zero on create and patched on Close.
type WAVWriter struct {
	file           *os.File
	path           string
	sampleRate     uint32
	headerSize     int64
	dataSizeOffset int64
	dataSize       int64
}

func CreateWAV(path string, sampleRate uint32, tag string) (*WAVWriter, error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create WAV file: %w", err)
	}

	w := &WAVWriter{
		file:       file,
		path:       path,
		sampleRate: sampleRate,
	}
	if err := w.writeHeader(tag); err != nil {
		file.Close()
		return nil, err
	}
	return w, nil
}

func (w *WAVWriter) writeHeader(tag string) error {
	var buf bytes.Buffer

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(0))
	buf.WriteString("WAVE")

	binary.Write(&buf, binary.LittleEndian, fmtChunk{
		ChunkID:       [4]byte{'f', 'm', 't', ' '},
		ChunkSize:     16,
		AudioFormat:   1,
		NumChannels:   wavChannels,
		SampleRate:    w.sampleRate,
		ByteRate:      w.sampleRate * wavChannels * wavBitsPerSample / 8,
		BlockAlign:    wavChannels * wavBitsPerSample / 8,
		BitsPerSample: wavBitsPerSample,
	})

	if tag != "" {
		name := append([]byte(tag), 0)
		if len(name)%2 != 0 {
			name = append(name, 0)
		}
		buf.WriteString("LIST")
		binary.Write(&buf, binary.LittleEndian, uint32(4+8+len(name)))
		buf.WriteString("INFO")
		buf.WriteString("INAM")
		binary.Write(&buf, binary.LittleEndian, uint32(len(name)))
		buf.Write(name)
	}

	buf.WriteString("data")
	w.dataSizeOffset = int64(buf.Len())
	binary.Write(&buf, binary.LittleEndian, uint32(0))
	w.headerSize = int64(buf.Len())

	if _, err := w.file.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write WAV header: %w", err)
	}
	return nil
}

func (w *WAVWriter) Write(block []byte) error {
	if w.file == nil {
		return ErrClosed
	}
	if !w.fits(int64(len(block))) {
		return fmt.Errorf("failed to write WAV block at %d bytes: %w", w.dataSize, ErrTooLarge)
	}
	n, err := w.file.Write(block)
	w.dataSize += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write WAV block: %w", err)
	}
	return nil
}

// fits reports whether n more data bytes, plus the pad byte Close may add,
// keep the RIFF length within 32 bits.
func (w *WAVWriter) fits(n int64) bool {
	data := w.dataSize + n
	return w.headerSize-8+data+data%2 <= math.MaxUint32
}

// Close patches the length fields and releases the file. Safe to call twice.
func (w *WAVWriter) Close() error {
	if w.file == nil {
		return nil
	}
	f := w.file
	w.file = nil

	if w.dataSize%2 != 0 {
		if _, err := f.Write([]byte{0}); err != nil {
			f.Close()
			return fmt.Errorf("failed to pad WAV data: %w", err)
		}
	}

	riffSize := uint32(w.headerSize - 8 + w.dataSize + w.dataSize%2)
	if err := patchUint32(f, 4, riffSize); err != nil {
		f.Close()
		return err
	}
	if err := patchUint32(f, w.dataSizeOffset, uint32(w.dataSize)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (w *WAVWriter) Path() string {
	return w.path
}

func (w *WAVWriter) DataSize() int64 {
	return w.dataSize
}

func patchUint32(f *os.File, offset int64, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	if _, err := f.WriteAt(b[:], offset); err != nil {
		return fmt.Errorf("failed to update WAV header: %w", err)
	}
	return nil
}

// ReadHeader walks the RIFF chunks of a WAV stream up to the data chunk.
func ReadHeader(r io.Reader) (Header, error) {
	var h Header
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return h, fmt.Errorf("failed to read RIFF header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return h, errors.New("not a RIFF/WAVE stream")
	}

	sawFmt := false
	for {
		var id [4]byte
		var size uint32
		if _, err := io.ReadFull(r, id[:]); err != nil {
			return h, fmt.Errorf("failed to read chunk id: %w", err)
		}
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			return h, fmt.Errorf("failed to read chunk size: %w", err)
		}
		body := int64(size) + int64(size%2)

		switch string(id[:]) {
		case "fmt ":
			var fc fmtChunk
			fc.ChunkID = id
			fc.ChunkSize = size
			rest := make([]byte, body)
			if _, err := io.ReadFull(r, rest); err != nil {
				return h, fmt.Errorf("failed to read fmt chunk: %w", err)
			}
			if size < 16 {
				return h, fmt.Errorf("short fmt chunk: %d bytes", size)
			}
			h.Channels = binary.LittleEndian.Uint16(rest[2:4])
			h.SampleRate = binary.LittleEndian.Uint32(rest[4:8])
			h.BitsPerSample = binary.LittleEndian.Uint16(rest[14:16])
			sawFmt = true
		case "LIST":
			rest := make([]byte, body)
			if _, err := io.ReadFull(r, rest); err != nil {
				return h, fmt.Errorf("failed to read LIST chunk: %w", err)
			}
			h.Tag = parseInfoName(rest)
		case "data":
			if !sawFmt {
				return h, errors.New("data chunk before fmt chunk")
			}
			h.DataSize = size
			return h, nil
		default:
			if _, err := io.CopyN(io.Discard, r, body); err != nil {
				return h, fmt.Errorf("failed to skip %q chunk: %w", id[:], err)
			}
		}
	}
}

func parseInfoName(list []byte) string {
	if len(list) < 4 || string(list[0:4]) != "INFO" {
		return ""
	}
	for p := 4; p+8 <= len(list); {
		id := string(list[p : p+4])
		size := int(binary.LittleEndian.Uint32(list[p+4 : p+8]))
		start := p + 8
		end := start + size
		if end > len(list) {
			return ""
		}
		if id == "INAM" {
			return string(bytes.TrimRight(list[start:end], "\x00"))
		}
		p = end + size%2
	}
	return ""
}
