package hierarchy

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
)

// snapshotVersion tags the on-disk format. Loading a snapshot with a
// different version is an error, never a silent reinterpretation.
const snapshotVersion = 1

type snapshot struct {
	Version  int              `msgpack:"version"`
	Metric   string           `msgpack:"metric"`
	Lower    float64          `msgpack:"lower"`
	Upper    float64          `msgpack:"upper"`
	Leaves   []leaf           `msgpack:"leaves"`
	Buckets  []bucket         `msgpack:"buckets"`
	External map[string][]int `msgpack:"external"`
	MeanDist float64          `msgpack:"mean_dist"`
	Samples  int              `msgpack:"samples"`
}

// Save serializes the hierarchy to path. The write goes through a temp
// file and rename so a crash mid-save never leaves a truncated snapshot.
func (h *Hierarchy) Save(path string) error {
	data, err := msgpack.Marshal(snapshot{
		Version:  snapshotVersion,
		Metric:   h.metric,
		Lower:    h.lower,
		Upper:    h.upper,
		Leaves:   h.leaves,
		Buckets:  h.buckets,
		External: h.external,
		MeanDist: h.meanDist,
		Samples:  h.samples,
	})
	if err != nil {
		return fmt.Errorf("marshal hierarchy: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// Load restores a hierarchy from a snapshot file. Any query called on the
// restored instance reproduces the pre-save results exactly.
func Load(path string) (*Hierarchy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var snap snapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("snapshot version %d, want %d", snap.Version, snapshotVersion)
	}

	h := &Hierarchy{
		metric:   snap.Metric,
		lower:    snap.Lower,
		upper:    snap.Upper,
		leaves:   snap.Leaves,
		buckets:  snap.Buckets,
		external: snap.External,
		meanDist: snap.MeanDist,
		samples:  snap.Samples,
	}
	if h.external == nil {
		h.external = make(map[string][]int)
	}
	return h, nil
}

// LoadOrNew restores the snapshot at path, or builds an empty hierarchy
// from the configuration when no snapshot exists yet. A missing file is
// the normal first-run branch, not an error; any other read or decode
// failure is fatal.
func LoadOrNew(path, metric string, lowerLimitScale, upperLimitScale float64) (*Hierarchy, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return New(metric, lowerLimitScale, upperLimitScale), nil
	}
	return Load(path)
}
