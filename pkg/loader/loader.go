package loader

import (
	"context"
	"errors"
)

type PaperFileType string

const (
	PaperFileTypePDF  PaperFileType = "pdf"
	PaperFileTypeWeb  PaperFileType = "web"
	PaperFileTypeText PaperFileType = "text"
)

// ErrNoSource is returned when no full-text location is known for a paper.
var ErrNoSource = errors.New("no full-text source")

// PaperFile points at the full text of one paper. FilePath is a local path,
// an http(s) URL or an s3://bucket/key location depending on the Loader.
//
// The actual content is retrieved via the associated PaperFileLoader.
type PaperFile struct {
	PaperID  string
	FilePath string
	FileType PaperFileType
	Loader   PaperFileLoader
}

// NewPaperFileParams defines the input parameters for creating a PaperFile.
type NewPaperFileParams struct {
	PaperID  string
	FilePath string
	Loader   PaperFileLoader
}

// NewPDFFile creates a PaperFile whose content is a PDF document.
func NewPDFFile(params NewPaperFileParams) PaperFile {
	return PaperFile{
		PaperID:  params.PaperID,
		FilePath: params.FilePath,
		FileType: PaperFileTypePDF,
		Loader:   params.Loader,
	}
}

// NewWebFile creates a PaperFile for an article landing page.
func NewWebFile(params NewPaperFileParams) PaperFile {
	return PaperFile{
		PaperID:  params.PaperID,
		FilePath: params.FilePath,
		FileType: PaperFileTypeWeb,
		Loader:   params.Loader,
	}
}

// GetText retrieves the text content of the file using its Loader.
//
// Example:
//
//	text, err := file.GetText(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(string(text))
func (f *PaperFile) GetText(ctx context.Context) ([]byte, error) {
	if f.Loader == nil {
		return nil, ErrNoSource
	}
	return f.Loader.GetFileText(ctx, *f)
}

// PaperFileLoader defines the interface for loading the contents of a
// PaperFile. Implementations may load from disk, the web or object storage.
type PaperFileLoader interface {
	GetFileText(ctx context.Context, file PaperFile) ([]byte, error)
}

// CacheKey generates a cache key for a PaperFile based on its paper and path.
func CacheKey(file PaperFile) string {
	return file.PaperID + ":" + file.FilePath
}
