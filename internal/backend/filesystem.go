package backend

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"syscall"

	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/ChamsBouzaiene/stepwise/internal/state"
)

// defaultIgnores are skipped by listing, glob and grep walks.
var defaultIgnores = []string{
	".git/",
	"node_modules/",
	"__pycache__/",
	"vendor/",
	".venv/",
	".DS_Store",
}

// FilesystemBackend maps virtual paths onto a directory on disk. "/" is the
// root directory; nothing outside it is reachable.
type FilesystemBackend struct {
	root    string
	ignorer *gitignore.GitIgnore
}

// NewFilesystemBackend creates a backend rooted at root. The root's
// .gitignore, when present, is applied on top of the default ignore list.
func NewFilesystemBackend(root string) (*FilesystemBackend, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, wrapOSError("open", root, err)
	}
	if !info.IsDir() {
		return nil, fileError("open", root, ErrInvalidPath)
	}

	ignorer, err := gitignore.CompileIgnoreFileAndLines(filepath.Join(abs, ".gitignore"), defaultIgnores...)
	if err != nil {
		ignorer = gitignore.CompileIgnoreLines(defaultIgnores...)
	}
	return &FilesystemBackend{root: abs, ignorer: ignorer}, nil
}

// Root returns the absolute directory backing "/".
func (b *FilesystemBackend) Root() string { return b.root }

// resolve validates a virtual path and returns it with its host path.
func (b *FilesystemBackend) resolve(p string) (string, string, error) {
	vp, err := NormalizePath(p)
	if err != nil {
		return "", "", err
	}
	host := filepath.Join(b.root, filepath.FromSlash(vp))
	// Reject symlinks that lead outside the root.
	if real, err := filepath.EvalSymlinks(host); err == nil {
		if real != b.root && !strings.HasPrefix(real, b.root+string(filepath.Separator)) {
			return "", "", fileError("resolve", vp, ErrInvalidPath)
		}
	}
	return vp, host, nil
}

func (b *FilesystemBackend) ignored(rel string, isDir bool) bool {
	if rel == "" || rel == "." {
		return false
	}
	if isDir {
		rel += "/"
	}
	return b.ignorer.MatchesPath(rel)
}

// Ls lists the children of dir.
func (b *FilesystemBackend) Ls(ctx context.Context, dir string) ([]FileInfo, error) {
	if dir == "" {
		dir = "/"
	}
	vp, host, err := b.resolve(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(host)
	if err != nil {
		if errors.Is(err, syscall.ENOTDIR) {
			return nil, fileError("ls", vp, ErrInvalidPath)
		}
		return nil, wrapOSError("ls", vp, err)
	}

	out := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		child := path.Join(vp, e.Name())
		if b.ignored(relTo(child, "/"), e.IsDir()) {
			continue
		}
		fi := FileInfo{Path: child, IsDir: e.IsDir()}
		if info, err := e.Info(); err == nil {
			fi.Size = info.Size()
			fi.ModifiedAt = info.ModTime()
		}
		if fi.IsDir {
			fi.Path += "/"
			fi.Size = 0
		}
		out = append(out, fi)
	}
	sortInfos(out)
	return out, nil
}

// Read returns numbered lines of the file at p.
func (b *FilesystemBackend) Read(ctx context.Context, p string, offset, limit int) (string, error) {
	rec, err := b.ReadRaw(ctx, p)
	if err != nil {
		return "", err
	}
	return FormatLines(rec.Content, offset, limit)
}

// ReadRaw loads the file at p. CreatedAt is approximated by the mtime since
// portable creation times are not available.
func (b *FilesystemBackend) ReadRaw(ctx context.Context, p string) (state.FileRecord, error) {
	vp, host, err := b.resolve(p)
	if err != nil {
		return state.FileRecord{}, err
	}
	info, err := os.Stat(host)
	if err != nil {
		return state.FileRecord{}, wrapOSError("read", vp, err)
	}
	if info.IsDir() {
		return state.FileRecord{}, fileError("read", vp, ErrIsDirectory)
	}
	data, err := os.ReadFile(host)
	if err != nil {
		return state.FileRecord{}, wrapOSError("read", vp, err)
	}
	return state.FileRecord{
		Content:    state.SplitLines(string(data)),
		CreatedAt:  info.ModTime(),
		ModifiedAt: info.ModTime(),
	}, nil
}

// Write creates a new file, making parent directories as needed.
func (b *FilesystemBackend) Write(ctx context.Context, p, content string) WriteResult {
	vp, host, err := b.resolve(p)
	if err != nil {
		return WriteResult{Path: p, Error: err.Error()}
	}
	if _, err := os.Lstat(host); err == nil {
		return WriteResult{Path: vp, Error: "cannot write to " + vp + " because it already exists; read and then edit it instead"}
	}
	if err := os.MkdirAll(filepath.Dir(host), 0o755); err != nil {
		return WriteResult{Path: vp, Error: wrapOSError("write", vp, err).Error()}
	}
	f, err := os.OpenFile(host, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return WriteResult{Path: vp, Error: wrapOSError("write", vp, err).Error()}
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return WriteResult{Path: vp, Error: wrapOSError("write", vp, err).Error()}
	}
	if err := f.Close(); err != nil {
		return WriteResult{Path: vp, Error: wrapOSError("write", vp, err).Error()}
	}
	return WriteResult{Path: vp}
}

// Edit replaces text in the file at p, swapping the file in atomically.
func (b *FilesystemBackend) Edit(ctx context.Context, p, old, new string, replaceAll bool) EditResult {
	vp, host, err := b.resolve(p)
	if err != nil {
		return EditResult{Path: p, Error: err.Error()}
	}
	info, err := os.Stat(host)
	if err != nil {
		return EditResult{Path: vp, Error: wrapOSError("edit", vp, err).Error()}
	}
	if info.IsDir() {
		return EditResult{Path: vp, Error: fileError("edit", vp, ErrIsDirectory).Error()}
	}
	data, err := os.ReadFile(host)
	if err != nil {
		return EditResult{Path: vp, Error: wrapOSError("edit", vp, err).Error()}
	}
	updated, n, err := replaceText(string(data), old, new, replaceAll)
	if err != nil {
		return EditResult{Path: vp, Error: err.Error()}
	}
	if err := writeAtomic(host, []byte(updated), info.Mode().Perm()); err != nil {
		return EditResult{Path: vp, Error: wrapOSError("edit", vp, err).Error()}
	}
	return EditResult{Path: vp, Occurrences: n}
}

func writeAtomic(host string, data []byte, perm fs.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(host), ".stepwise-tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, host); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// walk visits every non-ignored regular file under the virtual dir.
func (b *FilesystemBackend) walk(ctx context.Context, dir string, fn func(vp, host string, d fs.DirEntry) error) error {
	if dir == "" {
		dir = "/"
	}
	vdir, hostDir, err := b.resolve(dir)
	if err != nil {
		return err
	}
	info, err := os.Stat(hostDir)
	if err != nil {
		return wrapOSError("walk", vdir, err)
	}
	if !info.IsDir() {
		if err := fn(vdir, hostDir, fs.FileInfoToDirEntry(info)); err != filepath.SkipAll {
			return err
		}
		return nil
	}
	return filepath.WalkDir(hostDir, func(host string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(b.root, host)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if b.ignored(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		return fn("/"+rel, host, d)
	})
}

// Grep searches text files under dir for the literal pattern.
func (b *FilesystemBackend) Grep(ctx context.Context, pattern, dir, glob string) ([]GrepMatch, error) {
	vdir, err := normalizeDir(dir)
	if err != nil {
		return nil, err
	}
	var out []GrepMatch
	err = b.walk(ctx, vdir, func(vp, host string, d fs.DirEntry) error {
		if glob != "" && !matchGlob(glob, relTo(vp, vdir)) {
			return nil
		}
		if isBinaryExt(strings.ToLower(filepath.Ext(vp))) {
			return nil
		}
		data, err := os.ReadFile(host)
		if err != nil || bytes.IndexByte(data, 0) >= 0 {
			return nil
		}
		out = grepLines(out, vp, state.SplitLines(string(data)), pattern)
		if len(out) >= MaxGrepMatches {
			return filepath.SkipAll
		}
		return nil
	})
	return out, err
}

// Glob returns files under dir whose relative path matches pattern.
func (b *FilesystemBackend) Glob(ctx context.Context, pattern, dir string) ([]FileInfo, error) {
	vdir, err := normalizeDir(dir)
	if err != nil {
		return nil, err
	}
	var out []FileInfo
	err = b.walk(ctx, vdir, func(vp, host string, d fs.DirEntry) error {
		if !matchGlob(pattern, relTo(vp, vdir)) {
			return nil
		}
		fi := FileInfo{Path: vp}
		if info, err := d.Info(); err == nil {
			fi.Size = info.Size()
			fi.ModifiedAt = info.ModTime()
		}
		out = append(out, fi)
		return nil
	})
	sortInfos(out)
	return out, err
}

// UploadFiles writes raw bytes to each path, overwriting existing files.
func (b *FilesystemBackend) UploadFiles(ctx context.Context, files []FileUpload) []UploadResult {
	results := make([]UploadResult, len(files))
	for i, f := range files {
		results[i] = UploadResult{Path: f.Path}
		vp, host, err := b.resolve(f.Path)
		if err != nil {
			results[i].Error = CodeOf(err)
			continue
		}
		results[i].Path = vp
		if info, err := os.Stat(host); err == nil && info.IsDir() {
			results[i].Error = ErrIsDirectory
			continue
		}
		if err := os.MkdirAll(filepath.Dir(host), 0o755); err != nil {
			results[i].Error = classifyOSError(err)
			continue
		}
		if err := os.WriteFile(host, f.Content, 0o644); err != nil {
			results[i].Error = classifyOSError(err)
		}
	}
	return results
}

// DownloadFiles reads raw bytes from each path.
func (b *FilesystemBackend) DownloadFiles(ctx context.Context, paths []string) []DownloadResult {
	results := make([]DownloadResult, len(paths))
	for i, p := range paths {
		results[i] = DownloadResult{Path: p}
		vp, host, err := b.resolve(p)
		if err != nil {
			results[i].Error = CodeOf(err)
			continue
		}
		results[i].Path = vp
		info, err := os.Stat(host)
		if err != nil {
			results[i].Error = classifyOSError(err)
			continue
		}
		if info.IsDir() {
			results[i].Error = ErrIsDirectory
			continue
		}
		data, err := os.ReadFile(host)
		if err != nil {
			results[i].Error = classifyOSError(err)
			continue
		}
		results[i].Content = data
	}
	return results
}

func isBinaryExt(ext string) bool {
	switch ext {
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".ico", ".webp",
		".zip", ".tar", ".gz", ".bz2", ".xz", ".7z",
		".pdf", ".so", ".dylib", ".dll", ".exe", ".o", ".a",
		".wasm", ".pyc", ".class", ".mp3", ".mp4", ".mov", ".wav":
		return true
	}
	return false
}
