package replay

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
)

// ReadBits parses a text bitstream: '0' and '1' are bits, everything else is
// skipped so files can be wrapped or annotated with whitespace.
func ReadBits(r io.Reader, chunk int, emit func([]byte) bool) error {
	br := bufio.NewReader(r)
	buf := make([]byte, 0, chunk)
	for {
		c, err := br.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		switch c {
		case '0', '1':
			buf = append(buf, c-'0')
		default:
			continue
		}
		if len(buf) == chunk {
			if !emit(buf) {
				return nil
			}
			buf = make([]byte, 0, chunk)
		}
	}
	if len(buf) > 0 {
		emit(buf)
	}
	return nil
}

// SendBitFile feeds a bit file into out and closes it.
func SendBitFile(ctx context.Context, path string, out chan<- []byte) error {
	defer close(out)
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open bit file: %w", err)
	}
	defer f.Close()
	return ReadBits(f, 4096, func(bits []byte) bool {
		select {
		case out <- bits:
			return true
		case <-ctx.Done():
			return false
		}
	})
}
