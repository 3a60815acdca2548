package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// CheckpointStore persists GNN layer weights and training metadata to disk
// as a single JSON snapshot, using the same atomic-write-then-rename
// pattern regardless of what it is saving: write to a ".tmp" sibling,
// fsync is skipped (best-effort, not WAL-grade durability), then rename
// over the real path so readers never observe a partial file.
type CheckpointStore struct {
	mu   sync.RWMutex
	path string
}

// Checkpoint is the full persisted state of one GNN weight snapshot.
type Checkpoint struct {
	Version     string      `json:"version"`
	SavedAt     time.Time   `json:"saved_at"`
	Epoch       int         `json:"epoch"`
	BatchIndex  int         `json:"batch_index"`
	Loss        float64     `json:"loss"`
	LayerWeights [][][]float64 `json:"layer_weights"`
}

// NewCheckpointStore returns a store rooted at path. The containing
// directory is created lazily on first Save.
func NewCheckpointStore(path string) *CheckpointStore {
	return &CheckpointStore{path: path}
}

// Save writes cp to disk, replacing any existing checkpoint atomically.
func (cs *CheckpointStore) Save(cp *Checkpoint) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cp.SavedAt = time.Now()
	if cp.Version == "" {
		cp.Version = "1"
	}

	dir := filepath.Dir(cs.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tmp := cs.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, cs.path); err != nil {
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}

// Load reads the persisted checkpoint. ok is false if none exists yet.
func (cs *CheckpointStore) Load() (cp *Checkpoint, ok bool, err error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	data, err := os.ReadFile(cs.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read checkpoint: %w", err)
	}
	var out Checkpoint
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, false, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return &out, true, nil
}

// Backup copies the current checkpoint file to a timestamped sibling,
// returning the backup path. Returns an error if no checkpoint exists.
func (cs *CheckpointStore) Backup() (string, error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	data, err := os.ReadFile(cs.path)
	if err != nil {
		return "", fmt.Errorf("read checkpoint for backup: %w", err)
	}
	backupPath := fmt.Sprintf("%s.backup_%s", cs.path, time.Now().Format("20060102_150405"))
	if err := os.WriteFile(backupPath, data, 0o644); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}
	return backupPath, nil
}

// Info reports whether a checkpoint exists and, if so, its size and
// modification time, without fully decoding it.
func (cs *CheckpointStore) Info() (exists bool, size int64, modTime time.Time) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	fi, err := os.Stat(cs.path)
	if err != nil {
		return false, 0, time.Time{}
	}
	return true, fi.Size(), fi.ModTime()
}
