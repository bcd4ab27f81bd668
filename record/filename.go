package record

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lestrrat-go/strftime"
)

// nextFilenameMatchingPattern replaces the run of '?' in the stem with the
// lowest counter not already used by any file in the folder, whatever its
// extension. Returns "" once the counter space is exhausted.
func nextFilenameMatchingPattern(folder, stem string) string {
	first := strings.IndexByte(stem, '?')
	if first < 0 {
		if !stemInUse(folder, stem) {
			return filepath.Join(folder, stem)
		}
		return ""
	}
	last := strings.LastIndexByte(stem, '?')
	digits := last - first + 1

	limit := 1
	for i := 0; i < digits; i++ {
		limit *= 10
	}
	for n := 0; n < limit; n++ {
		candidate := stem[:first] + fmt.Sprintf("%0*d", digits, n) + stem[last+1:]
		candidate = strings.ReplaceAll(candidate, "?", "0")
		if !stemInUse(folder, candidate) {
			return filepath.Join(folder, candidate)
		}
	}
	return ""
}

func stemInUse(folder, stem string) bool {
	if _, err := os.Stat(filepath.Join(folder, stem)); err == nil {
		return true
	}
	matches, err := filepath.Glob(filepath.Join(folder, globEscape(stem)+".*"))
	return err != nil || len(matches) > 0
}

func globEscape(s string) string {
	r := strings.NewReplacer("*", "\\*", "?", "\\?", "[", "\\[", "\\", "\\\\")
	return r.Replace(s)
}

// dateFrequencyFilename builds STEM_YYYYMMDDTHHMMSS_<freq>Hz. Counter
// placeholders in the stem make no sense here and are dropped.
func dateFrequencyFilename(folder, stem, format string, now time.Time, frequency uint64) (string, error) {
	stamp, err := strftime.Format(format, now)
	if err != nil {
		return "", fmt.Errorf("bad timestamp format %q: %w", format, err)
	}
	stem = strings.TrimRight(strings.ReplaceAll(stem, "?", ""), "_")
	name := fmt.Sprintf("%s_%s_%dHz", stem, stamp, frequency)
	return filepath.Join(folder, name), nil
}
