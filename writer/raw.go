package writer

import (
	"fmt"
	"os"
)

// RawWriter appends interleaved I/Q blocks verbatim. The sample width was
// already chosen upstream, so C8 and C16 captures share it.
type RawWriter struct {
	file *os.File
	path string
	size int64
}

func CreateRaw(path string) (*RawWriter, error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create raw capture file: %w", err)
	}
	return &RawWriter{file: file, path: path}, nil
}

func (w *RawWriter) Write(block []byte) error {
	if w.file == nil {
		return ErrClosed
	}
	n, err := w.file.Write(block)
	w.size += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write raw block: %w", err)
	}
	return nil
}

func (w *RawWriter) Close() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *RawWriter) Path() string {
	return w.path
}

func (w *RawWriter) Size() int64 {
	return w.size
}
