package checkpoint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ChamsBouzaiene/stepwise/internal/engine"
)

// FileSaver stores one JSON file per thread under a directory.
type FileSaver struct {
	basePath string
}

// NewFileSaver creates a saver rooted at dir, creating it if needed.
func NewFileSaver(dir string) (*FileSaver, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &FileSaver{basePath: dir}, nil
}

// fileName maps a thread id onto a safe file name. Ids that needed
// rewriting get a short hash so distinct ids never collide.
func fileName(threadID string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, threadID)
	if safe != threadID || safe == "" {
		sum := sha256.Sum256([]byte(threadID))
		safe += "-" + hex.EncodeToString(sum[:])[:12]
	}
	return safe + ".json"
}

func (s *FileSaver) path(threadID string) string {
	return filepath.Join(s.basePath, fileName(threadID))
}

func (s *FileSaver) Save(_ context.Context, cp *engine.Checkpoint) error {
	if cp.ThreadID == "" {
		return errNoThread
	}
	out := *cp
	if prev, err := s.read(s.path(cp.ThreadID)); err == nil && !prev.CreatedAt.IsZero() {
		out.CreatedAt = prev.CreatedAt
	}

	data, err := json.MarshalIndent(&out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	tmp, err := os.CreateTemp(s.basePath, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to write checkpoint file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write checkpoint file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(cp.ThreadID)); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %w", err)
	}
	return nil
}

func (s *FileSaver) read(name string) (*engine.Checkpoint, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	return decode(data)
}

func (s *FileSaver) Load(_ context.Context, threadID string) (*engine.Checkpoint, error) {
	cp, err := s.read(s.path(threadID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound(threadID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint for %s: %w", threadID, err)
	}
	return cp, nil
}

// List returns the ids of every readable checkpoint, sorted.
func (s *FileSaver) List(context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.basePath)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoint directory: %w", err)
	}

	ids := []string{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		cp, err := s.read(filepath.Join(s.basePath, entry.Name()))
		if err != nil {
			continue // Skip unreadable files
		}
		ids = append(ids, cp.ThreadID)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *FileSaver) Delete(_ context.Context, threadID string) error {
	err := os.Remove(s.path(threadID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete checkpoint for %s: %w", threadID, err)
	}
	return nil
}

func (s *FileSaver) Exists(_ context.Context, threadID string) (bool, error) {
	_, err := os.Stat(s.path(threadID))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
