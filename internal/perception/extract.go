// internal/perception/extract.go
package perception

import (
	"context"

	"github.com/xkilldash9x/taskpilot/api/schemas"
)

// ExtractResult is the output of a text extraction pass over a screenshot.
type ExtractResult struct {
	Text    string
	Regions []schemas.TextRegion
}

// TextExtractor is the optional OCR collaborator. Its absence, or any error
// it returns, degrades perception to empty text regions; it never aborts a
// snapshot.
type TextExtractor interface {
	Extract(ctx context.Context, image []byte) (*ExtractResult, error)
}

// ExtractorFunc adapts a function to the TextExtractor interface.
type ExtractorFunc func(ctx context.Context, image []byte) (*ExtractResult, error)

func (f ExtractorFunc) Extract(ctx context.Context, image []byte) (*ExtractResult, error) {
	return f(ctx, image)
}
