package watcher

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Checkpoint tracks the last block whose Funded logs were all recorded.
type Checkpoint struct {
	Contract           string    `json:"contract"`
	LastProcessedBlock uint64    `json:"last_processed_block"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// CheckpointStore persists checkpoints to a JSON file. A disabled store loads
// nothing and saves nothing.
type CheckpointStore struct {
	path     string
	enabled  bool
	contract string
	now      func() time.Time
}

func NewCheckpointStore(path string, enabled bool, contract string) *CheckpointStore {
	return &CheckpointStore{
		path:     path,
		enabled:  enabled && path != "",
		contract: strings.ToLower(contract),
		now:      time.Now,
	}
}

// Load returns false when no checkpoint exists for the configured contract.
func (c *CheckpointStore) Load() (Checkpoint, bool, error) {
	if !c.enabled {
		return Checkpoint{}, false, nil
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Checkpoint{}, false, nil
		}
		return Checkpoint{}, false, fmt.Errorf("read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, false, fmt.Errorf("parse checkpoint: %w", err)
	}
	if cp.Contract != "" && c.contract != "" && !strings.EqualFold(cp.Contract, c.contract) {
		return Checkpoint{}, false, fmt.Errorf("checkpoint belongs to contract %s, not %s", cp.Contract, c.contract)
	}
	return cp, true, nil
}

// Save writes the checkpoint through a temp file and rename.
func (c *CheckpointStore) Save(lastProcessed uint64) error {
	if !c.enabled {
		return nil
	}

	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create checkpoint dir: %w", err)
		}
	}

	data, err := json.Marshal(Checkpoint{
		Contract:           c.contract,
		LastProcessedBlock: lastProcessed,
		UpdatedAt:          c.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tmpPath := c.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint tmp: %w", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}
