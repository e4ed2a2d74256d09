package port

import (
	"context"

	"ctxpipe/internal/domain"
)

// FileWalker enumerates the files of a source tree and classifies them
// against include/exclude globs.
type FileWalker interface {
	Walk(root string) ([]FileInfo, error)
}

type FileInfo struct {
	Path    string // absolute
	RelPath string // slash-separated, relative to the walked root
	Size    int64
	Denied  bool // matched include and an exclude pattern, or cannot be staged
	Reason  string
}

// Checkout materializes a source tree on local disk. The returned cleanup
// must be called once staging of that source is done.
type Checkout interface {
	Materialize(ctx context.Context, src domain.Source) (root string, cleanup func(), err error)
}
