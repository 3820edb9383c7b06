package ocr

import (
	"context"

	"github.com/JoeYatesss/invoice/internal/document"
)

// Engine is one optical-character-recognition backend. Implementations
// are purely functional transformations of one page's image, so
// concurrent calls across pages and requests are independent.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, imagePath string, pageIndex int) ([]document.TextToken, error)
}
