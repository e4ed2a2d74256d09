package fs

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"ctxpipe/internal/port"
)

var _ port.FileWalker = (*Walker)(nil)

// Walker lists the files under a root that match at least one include glob.
// Files that also match an exclude glob are returned with Denied set so the
// caller can report them.
type Walker struct {
	includes []string
	excludes []string
}

func NewWalker(includes, excludes []string) *Walker {
	if len(includes) == 0 {
		includes = []string{"**"}
	}
	return &Walker{
		includes: includes,
		excludes: excludes,
	}
}

func (w *Walker) Walk(root string) ([]port.FileInfo, error) {
	var files []port.FileInfo

	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, &fs.PathError{Op: "walk", Path: root, Err: fs.ErrInvalid}
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		symlink := d.Type()&fs.ModeSymlink != 0
		if !symlink && !d.Type().IsRegular() {
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)

		if !w.Included(relPath) {
			return nil
		}

		file := port.FileInfo{
			Path:    path,
			RelPath: relPath,
			Denied:  w.Excluded(relPath),
		}

		// Symlinks are staged by their target; links to directories or
		// missing targets are reported instead of copied.
		var fi fs.FileInfo
		if symlink {
			fi, err = os.Stat(path)
			if err != nil || !fi.Mode().IsRegular() {
				file.Denied = true
				file.Reason = "symlink target is not a regular file"
				files = append(files, file)
				return nil
			}
		} else if fi, err = d.Info(); err != nil {
			return err
		}
		file.Size = fi.Size()

		files = append(files, file)
		return nil
	})

	return files, err
}

// Included reports whether path matches any include pattern.
func (w *Walker) Included(path string) bool {
	return matchAny(w.includes, path)
}

// Excluded reports whether path matches any exclude pattern.
func (w *Walker) Excluded(path string) bool {
	return matchAny(w.excludes, path)
}

func matchAny(patterns []string, path string) bool {
	for _, pattern := range patterns {
		matched, err := doublestar.Match(pattern, path)
		if err == nil && matched {
			return true
		}
	}
	return false
}

// DefaultTextExts is the allow-list of text-like extensions picked up for embedding.
var DefaultTextExts = []string{".md", ".yaml", ".yml", ".txt", ".conf", ".html", ".js", ".ts", ".sh", ".py"}

// TextFiles returns regular files under root whose extension is in exts,
// in lexical order.
func TextFiles(root string, exts []string) ([]string, error) {
	allowed := make(map[string]bool, len(exts))
	for _, e := range exts {
		allowed[strings.ToLower(e)] = true
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if allowed[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// ReadFile reads a file as text, dropping invalid UTF-8 sequences.
func ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(data), ""), nil
}
