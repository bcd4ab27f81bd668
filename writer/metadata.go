package writer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Metadata is the sidecar record stored next to raw I/Q captures so that a
// replay tool can recover the tuning.
type Metadata struct {
	CenterFrequency uint64 `yaml:"center_frequency"`
	SampleRate      uint32 `yaml:"sample_rate"`
}

func MetadataPath(base string) string {
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".TXT"
}

func WriteMetadata(path string, m Metadata) error {
	out, err := yaml.Marshal(&m)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}

func ReadMetadata(path string) (Metadata, error) {
	var m Metadata
	in, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	if err := yaml.Unmarshal(in, &m); err != nil {
		return m, fmt.Errorf("failed to parse metadata file %s: %w", path, err)
	}
	return m, nil
}
