// Package state holds the mutable run state shared by the step loop, the
// backends and nested subagents: the todo list and the virtual file table.
package state

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// TodoStatus is the lifecycle status of a planning task.
type TodoStatus string

const (
	TodoPending    TodoStatus = "pending"
	TodoInProgress TodoStatus = "in_progress"
	TodoCompleted  TodoStatus = "completed"
	TodoCancelled  TodoStatus = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s TodoStatus) Valid() bool {
	switch s {
	case TodoPending, TodoInProgress, TodoCompleted, TodoCancelled:
		return true
	}
	return false
}

// TodoItem is one planning task.
type TodoItem struct {
	ID      string     `json:"id"`
	Content string     `json:"content"`
	Status  TodoStatus `json:"status"`
}

// FileRecord is one virtual file stored as ordered lines.
type FileRecord struct {
	Content    []string  `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// NewFileRecord splits content into lines and stamps both timestamps with now.
func NewFileRecord(content string, now time.Time) FileRecord {
	return FileRecord{
		Content:    SplitLines(content),
		CreatedAt:  now,
		ModifiedAt: now,
	}
}

// Text joins the record's lines back into a single string.
func (r FileRecord) Text() string {
	return strings.Join(r.Content, "\n")
}

// WithContent returns a copy of r holding content, keeping CreatedAt.
func (r FileRecord) WithContent(content string, now time.Time) FileRecord {
	created := r.CreatedAt
	if created.IsZero() {
		created = now
	}
	return FileRecord{Content: SplitLines(content), CreatedAt: created, ModifiedAt: now}
}

// Size returns the byte length of the joined content.
func (r FileRecord) Size() int {
	return len(r.Text())
}

// SplitLines splits on "\n". An empty string yields one empty line so that
// Text round-trips.
func SplitLines(content string) []string {
	return strings.Split(content, "\n")
}

// FileTable is the path-keyed virtual file map. A table is shared by pointer
// between a parent run and its subagents.
type FileTable struct {
	mu    sync.RWMutex
	files map[string]FileRecord
}

// NewFileTable creates an empty table.
func NewFileTable() *FileTable {
	return &FileTable{files: make(map[string]FileRecord)}
}

// Get returns the record stored at path.
func (t *FileTable) Get(path string) (FileRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.files[path]
	return rec, ok
}

// Put stores rec at path, replacing any previous record.
func (t *FileTable) Put(path string, rec FileRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.files[path] = rec
}

// Paths returns all stored paths in lexical order.
func (t *FileTable) Paths() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	paths := make([]string, 0, len(t.files))
	for p := range t.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Len returns the number of stored files.
func (t *FileTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.files)
}

// Snapshot returns a copy of the table contents.
func (t *FileTable) Snapshot() map[string]FileRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]FileRecord, len(t.files))
	for p, rec := range t.files {
		rec.Content = append([]string(nil), rec.Content...)
		out[p] = rec
	}
	return out
}

// Merge copies every record in src into t. Records in src win per path.
func (t *FileTable) Merge(src map[string]FileRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for p, rec := range src {
		t.files[p] = rec
	}
}

// AgentState is the mutable state of one run.
type AgentState struct {
	mu    sync.RWMutex
	todos []TodoItem
	Files *FileTable
}

// New creates an empty state with its own file table.
func New() *AgentState {
	return &AgentState{Files: NewFileTable()}
}

// NewChild creates a state for a nested run: it shares s's file table and
// starts with an empty, independent todo list.
func (s *AgentState) NewChild() *AgentState {
	return &AgentState{Files: s.Files}
}

// Todos returns a copy of the todo list.
func (s *AgentState) Todos() []TodoItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]TodoItem(nil), s.todos...)
}

// SetTodos replaces the todo list.
func (s *AgentState) SetTodos(items []TodoItem) error {
	if err := validateTodos(items); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.todos = append([]TodoItem(nil), items...)
	return nil
}

// MergeTodos updates items with a matching ID in place and appends the rest.
func (s *AgentState) MergeTodos(items []TodoItem) error {
	if err := validateTodos(items); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	index := make(map[string]int, len(s.todos))
	for i, it := range s.todos {
		index[it.ID] = i
	}
	for _, it := range items {
		if i, ok := index[it.ID]; ok {
			s.todos[i] = it
			continue
		}
		index[it.ID] = len(s.todos)
		s.todos = append(s.todos, it)
	}
	return nil
}

func validateTodos(items []TodoItem) error {
	seen := make(map[string]bool, len(items))
	for i, it := range items {
		if it.ID == "" {
			return fmt.Errorf("todo %d: id is required", i)
		}
		if seen[it.ID] {
			return fmt.Errorf("todo %d: duplicate id %q", i, it.ID)
		}
		seen[it.ID] = true
		if !it.Status.Valid() {
			return fmt.Errorf("todo %q: invalid status %q", it.ID, it.Status)
		}
	}
	return nil
}

// Snapshot is the serializable form of an AgentState.
type Snapshot struct {
	Todos []TodoItem            `json:"todos"`
	Files map[string]FileRecord `json:"files"`
}

// Snapshot copies the state into its serializable form.
func (s *AgentState) Snapshot() Snapshot {
	return Snapshot{Todos: s.Todos(), Files: s.Files.Snapshot()}
}

// Restore rebuilds an AgentState from a snapshot.
func Restore(snap Snapshot) *AgentState {
	st := New()
	st.todos = append([]TodoItem(nil), snap.Todos...)
	st.Files.Merge(snap.Files)
	return st
}
