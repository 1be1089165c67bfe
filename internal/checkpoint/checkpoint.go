// Package checkpoint provides engine.Checkpointer implementations.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ChamsBouzaiene/stepwise/internal/engine"
)

var errNoThread = errors.New("checkpoint has no thread id")

// clone round-trips cp through JSON so stored and returned checkpoints never
// share slices or maps with the caller.
func clone(cp *engine.Checkpoint) (*engine.Checkpoint, error) {
	data, err := json.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("marshal checkpoint: %w", err)
	}
	return decode(data)
}

func decode(data []byte) (*engine.Checkpoint, error) {
	var out engine.Checkpoint
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return &out, nil
}

func notFound(threadID string) error {
	return fmt.Errorf("thread %s: %w", threadID, engine.ErrCheckpointNotFound)
}
