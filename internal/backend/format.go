package backend

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
)

const (
	// DefaultReadLimit is the number of lines Read returns when limit <= 0.
	DefaultReadLimit = 500
	// MaxLineLength is the longest row Read returns, in runes. Longer lines
	// continue on rows numbered N.1, N.2 and so on.
	MaxLineLength = 2000
	// MaxGrepMatches bounds a single Grep call.
	MaxGrepMatches = 500

	emptyFileNotice = "System reminder: File exists but has empty contents"
)

// FormatLines renders lines cat -n style starting at offset. offset and
// limit count file lines, so a long line is always returned whole.
func FormatLines(lines []string, offset, limit int) (string, error) {
	if limit <= 0 {
		limit = DefaultReadLimit
	}
	if len(lines) == 0 || (len(lines) == 1 && lines[0] == "") {
		return emptyFileNotice, nil
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(lines) {
		return "", fmt.Errorf("line offset %d exceeds file length (%d lines)", offset, len(lines))
	}
	end := offset + limit
	if end > len(lines) {
		end = len(lines)
	}

	var b strings.Builder
	for i := offset; i < end; i++ {
		for k, chunk := range splitRunes(lines[i], MaxLineLength) {
			if k == 0 {
				fmt.Fprintf(&b, "%6d\t%s", i+1, chunk)
			} else {
				fmt.Fprintf(&b, "\n%6s\t%s", fmt.Sprintf("%d.%d", i+1, k), chunk)
			}
		}
		if i < end-1 {
			b.WriteByte('\n')
		}
	}
	return b.String(), nil
}

// splitRunes cuts s into pieces of at most n runes, never inside a rune.
func splitRunes(s string, n int) []string {
	if utf8.RuneCountInString(s) <= n {
		return []string{s}
	}
	var out []string
	for len(s) > 0 {
		cut, count := 0, 0
		for cut < len(s) && count < n {
			_, size := utf8.DecodeRuneInString(s[cut:])
			cut += size
			count++
		}
		out = append(out, s[:cut])
		s = s[cut:]
	}
	return out
}

// replaceText applies an edit to content and returns the new content and the
// number of replaced occurrences.
func replaceText(content, old, new string, replaceAll bool) (string, int, error) {
	if old == "" {
		return "", 0, fmt.Errorf("old_string must not be empty")
	}
	if old == new {
		return "", 0, fmt.Errorf("old_string and new_string are identical")
	}
	n := strings.Count(content, old)
	switch {
	case n == 0:
		return "", 0, fmt.Errorf("string not found in file: %q", old)
	case n > 1 && !replaceAll:
		return "", 0, fmt.Errorf("string %q appears %d times; pass replace_all or add surrounding context to make it unique", old, n)
	}
	if replaceAll {
		return strings.ReplaceAll(content, old, new), n, nil
	}
	return strings.Replace(content, old, new, 1), 1, nil
}

// grepLines appends matches of pattern in lines to out.
func grepLines(out []GrepMatch, p string, lines []string, pattern string) []GrepMatch {
	for i, line := range lines {
		if len(out) >= MaxGrepMatches {
			break
		}
		if strings.Contains(line, pattern) {
			out = append(out, GrepMatch{Path: p, Line: i + 1, Text: line})
		}
	}
	return out
}

// underDir reports whether p is dir itself or inside it.
func underDir(p, dir string) bool {
	if dir == "/" {
		return true
	}
	return p == dir || strings.HasPrefix(p, dir+"/")
}

// relTo returns p relative to dir. Both must be clean virtual paths.
func relTo(p, dir string) string {
	if dir == "/" {
		return strings.TrimPrefix(p, "/")
	}
	return strings.TrimPrefix(strings.TrimPrefix(p, dir), "/")
}

// matchGlob matches rel (slash separated) against a doublestar pattern. A
// pattern without a slash also matches against the base name, so "*.go"
// finds files in subdirectories the way grep --include does.
func matchGlob(pattern, rel string) bool {
	pattern = strings.TrimPrefix(pattern, "/")
	if ok, _ := doublestar.Match(pattern, rel); ok {
		return true
	}
	if !strings.Contains(pattern, "/") {
		ok, _ := doublestar.Match(pattern, path.Base(rel))
		return ok
	}
	return false
}

func sortInfos(infos []FileInfo) {
	sort.Slice(infos, func(i, j int) bool { return infos[i].Path < infos[j].Path })
}
