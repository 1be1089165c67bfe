package backend

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/stepwise/internal/state"
)

// StateBackend keeps files in the run's AgentState. Files written here are
// checkpointed with the state and shared with subagents.
type StateBackend struct {
	files *state.FileTable
	now   func() time.Time
}

// NewStateBackend creates a backend over the file table of st.
func NewStateBackend(st *state.AgentState) *StateBackend {
	return &StateBackend{files: st.Files, now: time.Now}
}

// Ls lists files and implied directories directly under dir.
func (b *StateBackend) Ls(ctx context.Context, dir string) ([]FileInfo, error) {
	dir, err := normalizeDir(dir)
	if err != nil {
		return nil, err
	}
	if _, ok := b.files.Get(dir); ok {
		return nil, fileError("ls", dir, ErrInvalidPath)
	}

	seenDirs := make(map[string]bool)
	var out []FileInfo
	for _, p := range b.files.Paths() {
		if !underDir(p, dir) || p == dir {
			continue
		}
		rel := relTo(p, dir)
		if i := strings.IndexByte(rel, '/'); i >= 0 {
			sub := path.Join(dir, rel[:i])
			if !seenDirs[sub] {
				seenDirs[sub] = true
				out = append(out, FileInfo{Path: sub + "/", IsDir: true})
			}
			continue
		}
		rec, _ := b.files.Get(p)
		out = append(out, FileInfo{Path: p, Size: int64(rec.Size()), ModifiedAt: rec.ModifiedAt})
	}
	sortInfos(out)
	return out, nil
}

// Read returns numbered lines of the file at p.
func (b *StateBackend) Read(ctx context.Context, p string, offset, limit int) (string, error) {
	rec, err := b.ReadRaw(ctx, p)
	if err != nil {
		return "", err
	}
	return FormatLines(rec.Content, offset, limit)
}

// ReadRaw returns the stored record.
func (b *StateBackend) ReadRaw(ctx context.Context, p string) (state.FileRecord, error) {
	p, err := NormalizePath(p)
	if err != nil {
		return state.FileRecord{}, err
	}
	rec, ok := b.files.Get(p)
	if !ok {
		return state.FileRecord{}, fileError("read", p, ErrFileNotFound)
	}
	return rec, nil
}

// Write creates the file at p.
func (b *StateBackend) Write(ctx context.Context, p, content string) WriteResult {
	p, err := NormalizePath(p)
	if err != nil {
		return WriteResult{Path: p, Error: err.Error()}
	}
	if _, ok := b.files.Get(p); ok {
		return WriteResult{Path: p, Error: "cannot write to " + p + " because it already exists; read and then edit it instead"}
	}
	b.files.Put(p, state.NewFileRecord(content, b.now()))
	return WriteResult{Path: p}
}

// Edit replaces text inside the file at p.
func (b *StateBackend) Edit(ctx context.Context, p, old, new string, replaceAll bool) EditResult {
	p, err := NormalizePath(p)
	if err != nil {
		return EditResult{Path: p, Error: err.Error()}
	}
	rec, ok := b.files.Get(p)
	if !ok {
		return EditResult{Path: p, Error: fileError("edit", p, ErrFileNotFound).Error()}
	}
	updated, n, err := replaceText(rec.Text(), old, new, replaceAll)
	if err != nil {
		return EditResult{Path: p, Error: err.Error()}
	}
	b.files.Put(p, rec.WithContent(updated, b.now()))
	return EditResult{Path: p, Occurrences: n}
}

// Grep searches every stored file under dir.
func (b *StateBackend) Grep(ctx context.Context, pattern, dir, glob string) ([]GrepMatch, error) {
	dir, err := normalizeDir(dir)
	if err != nil {
		return nil, err
	}
	var out []GrepMatch
	for _, p := range b.files.Paths() {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if !underDir(p, dir) {
			continue
		}
		if glob != "" && !matchGlob(glob, relTo(p, dir)) {
			continue
		}
		rec, _ := b.files.Get(p)
		out = grepLines(out, p, rec.Content, pattern)
		if len(out) >= MaxGrepMatches {
			break
		}
	}
	return out, nil
}

// Glob matches stored paths under dir.
func (b *StateBackend) Glob(ctx context.Context, pattern, dir string) ([]FileInfo, error) {
	dir, err := normalizeDir(dir)
	if err != nil {
		return nil, err
	}
	var out []FileInfo
	for _, p := range b.files.Paths() {
		if !underDir(p, dir) || p == dir {
			continue
		}
		if !matchGlob(pattern, relTo(p, dir)) {
			continue
		}
		rec, _ := b.files.Get(p)
		out = append(out, FileInfo{Path: p, Size: int64(rec.Size()), ModifiedAt: rec.ModifiedAt})
	}
	return out, nil
}
