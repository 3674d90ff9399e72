package scan

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// FileVisit carries per-entry metadata to user callbacks.
type FileVisit struct {
	// Repo-relative path using forward slashes (e.g., "src/app.go").
	Path string
	// Absolute filesystem path.
	AbsPath string
	// Lowercased extension (e.g., ".go", ".md"); empty for no-ext files.
	Ext string
	// File size in bytes.
	Size int64
}

// VisitFunc is an optional callback invoked for every relevant file.
type VisitFunc func(f FileVisit)

// Options controls which entries a walk yields. Zero values fall back to
// the package defaults.
type Options struct {
	IgnoreDirs []string
	Extensions []string
	// MaxSize skips files larger than this many bytes when > 0.
	MaxSize int64
}

func (o Options) ignore() map[string]bool {
	dirs := o.IgnoreDirs
	if len(dirs) == 0 {
		dirs = IgnoreDirs
	}
	m := make(map[string]bool, len(dirs))
	for _, d := range dirs {
		m[d] = true
	}
	return m
}

func (o Options) exts() map[string]bool {
	exts := o.Extensions
	if len(exts) == 0 {
		exts = RelevantExtensions
	}
	m := make(map[string]bool, len(exts))
	for _, e := range exts {
		m[strings.ToLower(e)] = true
	}
	return m
}

// Walk visits every relevant file under root in lexical order, skipping
// ignored directories. Unreadable entries are skipped silently.
func Walk(ctx context.Context, root string, opts Options, cb VisitFunc) error {
	ignore := opts.ignore()
	exts := opts.exts()
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() {
			if path != root && ignore[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(d.Name()))
		if !exts[ext] {
			return nil
		}
		fi, err := d.Info()
		if err != nil || !fi.Mode().IsRegular() {
			return nil
		}
		if opts.MaxSize > 0 && fi.Size() > opts.MaxSize {
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		cb(FileVisit{Path: filepath.ToSlash(rel), AbsPath: path, Ext: ext, Size: fi.Size()})
		return nil
	})
}

// Files returns the repo-relative paths of every relevant file, sorted.
func Files(ctx context.Context, root string, opts Options) ([]string, error) {
	var out []string
	err := Walk(ctx, root, opts, func(f FileVisit) { out = append(out, f.Path) })
	sort.Strings(out)
	return out, err
}

// ExtensionCounts tallies relevant files by extension.
func ExtensionCounts(ctx context.Context, root string, opts Options) (map[string]int, error) {
	counts := make(map[string]int)
	err := Walk(ctx, root, opts, func(f FileVisit) { counts[f.Ext]++ })
	return counts, err
}
