package pdf

import (
	"context"
	"errors"
	"testing"

	"github.com/OFFIS-RIT/litgraph/pkg/loader"
)

type bytesLoader struct {
	content []byte
	err     error
	calls   int
}

func (b *bytesLoader) GetFileText(ctx context.Context, file loader.PaperFile) ([]byte, error) {
	b.calls++
	return b.content, b.err
}

func TestGetFileTextRejectsNonPDF(t *testing.T) {
	src := &bytesLoader{content: []byte("<html>not a pdf</html>")}
	l := NewPDFPaperLoader(src, 0)

	file := loader.NewPDFFile(loader.NewPaperFileParams{PaperID: "p1", FilePath: "paper.pdf", Loader: l})
	if _, err := file.GetText(context.Background()); err == nil {
		t.Fatal("expected a parse error")
	}
	if _, err := file.GetText(context.Background()); err == nil {
		t.Fatal("failures must not be cached")
	}
	if src.calls != 2 {
		t.Fatalf("source calls = %d, want 2", src.calls)
	}
}

func TestGetFileTextPropagatesSourceError(t *testing.T) {
	want := errors.New("object missing")
	l := NewPDFPaperLoader(&bytesLoader{err: want}, 0)

	_, err := l.GetFileText(context.Background(), loader.PaperFile{PaperID: "p1", FilePath: "x.pdf"})
	if !errors.Is(err, want) {
		t.Fatalf("expected source error, got %v", err)
	}
}
