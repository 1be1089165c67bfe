package checkpoint

import (
	"context"
	"sort"
	"sync"

	"github.com/ChamsBouzaiene/stepwise/internal/engine"
)

// MemorySaver keeps checkpoints in process memory.
type MemorySaver struct {
	mu  sync.RWMutex
	cps map[string]*engine.Checkpoint
}

func NewMemorySaver() *MemorySaver {
	return &MemorySaver{cps: map[string]*engine.Checkpoint{}}
}

func (m *MemorySaver) Save(_ context.Context, cp *engine.Checkpoint) error {
	if cp.ThreadID == "" {
		return errNoThread
	}
	c, err := clone(cp)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.cps[cp.ThreadID]; ok && !prev.CreatedAt.IsZero() {
		c.CreatedAt = prev.CreatedAt
	}
	m.cps[cp.ThreadID] = c
	return nil
}

func (m *MemorySaver) Load(_ context.Context, threadID string) (*engine.Checkpoint, error) {
	m.mu.RLock()
	c, ok := m.cps[threadID]
	m.mu.RUnlock()
	if !ok {
		return nil, notFound(threadID)
	}
	return clone(c)
}

func (m *MemorySaver) List(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.cps))
	for id := range m.cps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MemorySaver) Delete(_ context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cps, threadID)
	return nil
}

func (m *MemorySaver) Exists(_ context.Context, threadID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.cps[threadID]
	return ok, nil
}
