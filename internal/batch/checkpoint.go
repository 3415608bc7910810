package batch

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrCheckpointWrite marks a failed checkpoint write. It is fatal to the
// run: resumption correctness depends on the checkpoint matching what was
// durably written.
var ErrCheckpointWrite = errors.New("checkpoint write failed")

// Checkpoint bookmarks durable batch progress: the index of the next input
// row to process and the number of rows already written.
type Checkpoint struct {
	RunID       string    `json:"run_id"`
	NextRow     int       `json:"next_row"`
	RowsWritten int       `json:"rows_written"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// LoadCheckpoint reads a checkpoint file. A missing file yields nil, nil.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint '%s': %w", path, err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint '%s': %w", path, err)
	}
	return &cp, nil
}

// write persists the checkpoint atomically (temp file + rename) so a crash
// never leaves a torn bookmark behind.
func (c *Checkpoint) write(path string) error {
	c.UpdatedAt = time.Now().UTC()
	raw, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCheckpointWrite, err)
	}
	tmpPath := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	if err := os.WriteFile(tmpPath, raw, 0644); err != nil {
		return fmt.Errorf("%w: %v", ErrCheckpointWrite, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", ErrCheckpointWrite, err)
	}
	return nil
}
