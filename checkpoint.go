package etl

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// Checkpoint tracks which posts have already been processed so re-runs can
// skip them. State lives in a small JSON file; a missing or corrupt file
// simply starts fresh.
type Checkpoint struct {
	path string

	mu   sync.Mutex
	seen map[string]struct{}
	data checkpointData
}

type checkpointData struct {
	ProcessedPosts []string  `json:"processed_posts"`
	LastRun        time.Time `json:"last_run"`
}

// LoadCheckpoint reads checkpoint state from path. The file not existing is
// not an error.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	cp := &Checkpoint{
		path: path,
		seen: make(map[string]struct{}),
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cp, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(raw, &cp.data); err != nil {
		// Corrupt checkpoint: start fresh rather than failing the run.
		cp.data = checkpointData{}
		return cp, nil
	}

	for _, id := range cp.data.ProcessedPosts {
		cp.seen[id] = struct{}{}
	}

	return cp, nil
}

// Seen reports whether the post id was processed by a previous run.
func (cp *Checkpoint) Seen(id string) bool {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	_, ok := cp.seen[id]
	return ok
}

// Mark records the post id as processed and persists the state.
func (cp *Checkpoint) Mark(id string) error {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	if _, ok := cp.seen[id]; !ok {
		cp.seen[id] = struct{}{}
		cp.data.ProcessedPosts = append(cp.data.ProcessedPosts, id)
	}
	cp.data.LastRun = time.Now().UTC()

	return cp.save()
}

// Clear removes all checkpoint state, including the backing file.
func (cp *Checkpoint) Clear() error {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	cp.seen = make(map[string]struct{})
	cp.data = checkpointData{}

	if err := os.Remove(cp.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (cp *Checkpoint) save() error {
	raw, err := json.MarshalIndent(&cp.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(cp.path, raw, 0o644)
}
