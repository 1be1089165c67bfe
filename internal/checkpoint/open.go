package checkpoint

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/ChamsBouzaiene/stepwise/internal/engine"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open builds the saver named by kind: "memory", "file" (path is a
// directory) or "sqlite" (path is a database file). The closer releases
// any underlying handle.
func Open(ctx context.Context, kind, path string) (engine.Checkpointer, io.Closer, error) {
	switch kind {
	case "", "memory":
		return NewMemorySaver(), nopCloser{}, nil
	case "file":
		if path == "" {
			return nil, nil, fmt.Errorf("file checkpoints need a directory path")
		}
		s, err := NewFileSaver(path)
		if err != nil {
			return nil, nil, err
		}
		return s, nopCloser{}, nil
	case "sqlite":
		if path == "" {
			return nil, nil, fmt.Errorf("sqlite checkpoints need a database path")
		}
		if filepath.Ext(path) == "" {
			path = filepath.Join(path, "checkpoints.db")
		}
		s, err := NewSQLiteSaver(ctx, path)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("unknown checkpoint kind %q (want memory, file or sqlite)", kind)
	}
}
