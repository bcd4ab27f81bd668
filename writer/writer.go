package writer

import (
	"errors"
	"fmt"
	"strings"
)

type FileType int

const (
	WAV FileType = iota
	RawS8
	RawS16
)

var (
	ErrClosed            = errors.New("writer is closed")
	ErrUnsupportedFormat = errors.New("unsupported file type")
	ErrTooLarge          = errors.New("file would exceed the 4 GiB RIFF limit")
)

// Writer is a sequential sink bound to one output path for its whole life.
// Implementations are not safe for concurrent use; the capture thread owns them.
type Writer interface {
	Write(block []byte) error
	Close() error
	Path() string
}

func ParseFileType(s string) (FileType, error) {
	switch strings.ToLower(s) {
	case "wav", "audio":
		return WAV, nil
	case "c8", "raw8", "s8":
		return RawS8, nil
	case "c16", "raw16", "s16":
		return RawS16, nil
	}
	return WAV, fmt.Errorf("%w %q", ErrUnsupportedFormat, s)
}

func (t FileType) String() string {
	switch t {
	case WAV:
		return "wav"
	case RawS8:
		return "c8"
	case RawS16:
		return "c16"
	}
	return fmt.Sprintf("FileType(%d)", int(t))
}

func (t FileType) Extension() string {
	switch t {
	case RawS8:
		return ".C8"
	case RawS16:
		return ".C16"
	}
	return ".WAV"
}

// BytesPerSample is the storage cost of one sample period:
// one int16 for audio, an int8 I/Q pair for C8, an int16 I/Q pair for C16.
func (t FileType) BytesPerSample() int {
	if t == RawS16 {
		return 4
	}
	return 2
}

func (t FileType) IsRaw() bool {
	return t == RawS8 || t == RawS16
}

// Create opens the writer matching the file type. The tag is only stored by
// formats that have somewhere to put it.
func Create(t FileType, path string, sampleRate uint32, tag string) (Writer, error) {
	switch t {
	case WAV:
		w, err := CreateWAV(path, sampleRate, tag)
		if err != nil {
			return nil, err
		}
		return w, nil
	case RawS8, RawS16:
		w, err := CreateRaw(path)
		if err != nil {
			return nil, err
		}
		return w, nil
	}
	return nil, fmt.Errorf("unsupported file type %v", t)
}
