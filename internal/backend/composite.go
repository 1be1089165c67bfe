package backend

import (
	"context"
	"path"
	"sort"
	"strings"

	"github.com/ChamsBouzaiene/stepwise/internal/state"
)

type route struct {
	prefix  string
	backend Backend
}

// CompositeBackend routes each path to the backend registered for its
// longest matching prefix, or to the default backend. Routed backends see
// paths with their prefix stripped, so "/memories/a.md" routed at
// "/memories/" arrives as "/a.md".
type CompositeBackend struct {
	def    Backend
	routes []route
}

// NewCompositeBackend creates a composite over def. Route prefixes should end
// in "/".
func NewCompositeBackend(def Backend, routes map[string]Backend) *CompositeBackend {
	c := &CompositeBackend{def: def}
	for prefix, b := range routes {
		if !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		c.routes = append(c.routes, route{prefix: prefix, backend: b})
	}
	sort.Slice(c.routes, func(i, j int) bool {
		return len(c.routes[i].prefix) > len(c.routes[j].prefix)
	})
	return c
}

// pick returns the backend for p, the path to hand it, and the prefix to put
// back on results ("" for the default backend).
func (c *CompositeBackend) pick(p string) (Backend, string, string) {
	for _, r := range c.routes {
		if p+"/" == r.prefix {
			return r.backend, "/", r.prefix
		}
		if strings.HasPrefix(p, r.prefix) {
			return r.backend, "/" + strings.TrimPrefix(p, r.prefix), r.prefix
		}
	}
	return c.def, p, ""
}

func restore(prefix, p string) string {
	if prefix == "" {
		return p
	}
	return path.Join(prefix, p) + trailingSlash(p)
}

func trailingSlash(p string) string {
	if strings.HasSuffix(p, "/") && p != "/" {
		return "/"
	}
	return ""
}

func (c *CompositeBackend) Ls(ctx context.Context, dir string) ([]FileInfo, error) {
	vp, err := normalizeDir(dir)
	if err != nil {
		return nil, err
	}
	b, inner, prefix := c.pick(vp)
	infos, err := b.Ls(ctx, inner)
	if err != nil {
		return nil, err
	}
	for i := range infos {
		infos[i].Path = restore(prefix, infos[i].Path)
	}
	if prefix == "" {
		// Surface route roots that sit directly under the listed directory.
		for _, r := range c.routes {
			parent := path.Dir(strings.TrimSuffix(r.prefix, "/"))
			if parent == vp {
				infos = append(infos, FileInfo{Path: r.prefix, IsDir: true})
			}
		}
		sortInfos(infos)
	}
	return infos, nil
}

func (c *CompositeBackend) Read(ctx context.Context, p string, offset, limit int) (string, error) {
	b, inner, _ := c.pick(p)
	return b.Read(ctx, inner, offset, limit)
}

func (c *CompositeBackend) ReadRaw(ctx context.Context, p string) (state.FileRecord, error) {
	b, inner, _ := c.pick(p)
	return b.ReadRaw(ctx, inner)
}

func (c *CompositeBackend) Write(ctx context.Context, p, content string) WriteResult {
	b, inner, prefix := c.pick(p)
	res := b.Write(ctx, inner, content)
	res.Path = restore(prefix, res.Path)
	return res
}

func (c *CompositeBackend) Edit(ctx context.Context, p, old, new string, replaceAll bool) EditResult {
	b, inner, prefix := c.pick(p)
	res := b.Edit(ctx, inner, old, new, replaceAll)
	res.Path = restore(prefix, res.Path)
	return res
}

// Grep searches the routed backend for dir. Searching from the default
// backend also searches every routed backend.
func (c *CompositeBackend) Grep(ctx context.Context, pattern, dir, glob string) ([]GrepMatch, error) {
	vp, err := normalizeDir(dir)
	if err != nil {
		return nil, err
	}
	b, inner, prefix := c.pick(vp)
	matches, err := b.Grep(ctx, pattern, inner, glob)
	if err != nil {
		return nil, err
	}
	for i := range matches {
		matches[i].Path = restore(prefix, matches[i].Path)
	}
	if prefix != "" {
		return matches, nil
	}
	for _, r := range c.routes {
		if !underDir(strings.TrimSuffix(r.prefix, "/"), vp) {
			continue
		}
		more, err := r.backend.Grep(ctx, pattern, "/", glob)
		if err != nil {
			return nil, err
		}
		for _, m := range more {
			m.Path = restore(r.prefix, m.Path)
			matches = append(matches, m)
		}
	}
	return matches, nil
}

func (c *CompositeBackend) Glob(ctx context.Context, pattern, dir string) ([]FileInfo, error) {
	vp, err := normalizeDir(dir)
	if err != nil {
		return nil, err
	}
	b, inner, prefix := c.pick(vp)
	infos, err := b.Glob(ctx, pattern, inner)
	if err != nil {
		return nil, err
	}
	for i := range infos {
		infos[i].Path = restore(prefix, infos[i].Path)
	}
	if prefix != "" {
		return infos, nil
	}
	for _, r := range c.routes {
		if !underDir(strings.TrimSuffix(r.prefix, "/"), vp) {
			continue
		}
		more, err := r.backend.Glob(ctx, "**", "/")
		if err != nil {
			return nil, err
		}
		for _, fi := range more {
			fi.Path = restore(r.prefix, fi.Path)
			if matchGlob(pattern, relTo(fi.Path, vp)) {
				infos = append(infos, fi)
			}
		}
	}
	sortInfos(infos)
	return infos, nil
}

func (c *CompositeBackend) executor() (Executor, bool) { return AsExecutor(c.def) }

func (c *CompositeBackend) transferer() (FileTransferer, bool) { return AsTransferer(c.def) }
