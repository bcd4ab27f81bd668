package record

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/disk"
)

// Available is the recording time left on the storage volume.
type Available struct {
	Hours   uint64
	Minutes uint64
	Seconds uint64
}

func (a Available) String() string {
	return fmt.Sprintf("%3d:%02d:%02d", a.Hours, a.Minutes, a.Seconds)
}

func (a Available) TotalSeconds() uint64 {
	return a.Hours*3600 + a.Minutes*60 + a.Seconds
}

// EstimateAvailable is free / (rate * bytesPerSample), split into h:m:s.
func EstimateAvailable(free, rate uint64, bytesPerSample int) Available {
	bytesPerSecond := rate * uint64(bytesPerSample)
	if bytesPerSecond == 0 {
		return Available{}
	}
	seconds := free / bytesPerSecond
	minutes := seconds / 60
	return Available{
		Hours:   minutes / 60,
		Minutes: minutes % 60,
		Seconds: seconds % 60,
	}
}

// DiskFree reports the free bytes on the volume holding path.
func DiskFree(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat volume for %s: %w", path, err)
	}
	return usage.Free, nil
}
