package loader

import (
	"context"
	"fmt"
	"strings"
)

// SchemeLoader dispatches on the location scheme of a file: http(s) to Web,
// s3:// to S3 and everything else to Local. A nil backend rejects its scheme.
type SchemeLoader struct {
	Local PaperFileLoader
	Web   PaperFileLoader
	S3    PaperFileLoader
}

func (s SchemeLoader) GetFileText(ctx context.Context, file PaperFile) ([]byte, error) {
	var (
		target PaperFileLoader
		scheme string
	)
	switch path := file.FilePath; {
	case strings.HasPrefix(path, "http://"), strings.HasPrefix(path, "https://"):
		target, scheme = s.Web, "http"
	case strings.HasPrefix(path, "s3://"):
		target, scheme = s.S3, "s3"
	default:
		target, scheme = s.Local, "file"
	}
	if target == nil {
		return nil, fmt.Errorf("no loader configured for %s location %q", scheme, file.FilePath)
	}
	return target.GetFileText(ctx, file)
}
