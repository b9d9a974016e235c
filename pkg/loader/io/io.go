package io

import (
	"context"
	"os"
	"strings"

	"github.com/OFFIS-RIT/litgraph/pkg/loader"
)

// IOPaperLoader loads files directly from the local filesystem with caching.
type IOPaperLoader struct {
	cache *loader.Cache
}

// NewIOPaperLoader creates a new filesystem-based file loader.
func NewIOPaperLoader() *IOPaperLoader {
	return &IOPaperLoader{cache: loader.NewCache()}
}

// GetFileText reads the file content from the filesystem. A file:// prefix
// is accepted.
func (l *IOPaperLoader) GetFileText(ctx context.Context, file loader.PaperFile) ([]byte, error) {
	return l.cache.Load(loader.CacheKey(file), func() ([]byte, error) {
		return os.ReadFile(strings.TrimPrefix(file.FilePath, "file://"))
	})
}
