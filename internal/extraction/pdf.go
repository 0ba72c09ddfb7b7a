// Package extraction renders PDF documents into per-page JPEG images and
// drives the asynchronous extraction workers.
package extraction

import (
	"errors"
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"

	"github.com/gen2brain/go-fitz"
)

// ErrUnreadableDocument marks a document that can never be rendered, no
// matter how often the job is retried. Jobs failing with it go straight to
// failed instead of the retry path.
var ErrUnreadableDocument = errors.New("document cannot be rendered")

// IsTerminal reports whether a render error is permanent for the document
func IsTerminal(err error) bool {
	return errors.Is(err, ErrUnreadableDocument)
}

// RenderedPage describes one page image written to disk
type RenderedPage struct {
	Sequence  int
	Path      string
	SizeBytes int64
}

// Renderer renders PDF pages to JPEG files
type Renderer struct {
	quality int
}

// NewRenderer creates a renderer with the given JPEG quality (1-100)
func NewRenderer(quality int) *Renderer {
	if quality < 1 || quality > 100 {
		quality = jpeg.DefaultQuality
	}
	return &Renderer{quality: quality}
}

// Render renders every page of the PDF at sourcePath into destDir as
// page_NNN.jpg files and returns them in page order. A document that cannot
// be opened or has no pages fails with ErrUnreadableDocument.
func (r *Renderer) Render(sourcePath, destDir string) ([]RenderedPage, error) {
	doc, err := fitz.New(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableDocument, err)
	}
	defer doc.Close()

	total := doc.NumPage()
	if total == 0 {
		return nil, fmt.Errorf("%w: document has no pages", ErrUnreadableDocument)
	}

	pages := make([]RenderedPage, 0, total)
	for n := 0; n < total; n++ {
		img, err := doc.Image(n)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %v", ErrUnreadableDocument, n+1, err)
		}

		sequence := n + 1
		path := filepath.Join(destDir, fmt.Sprintf("page_%03d.jpg", sequence))

		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create page file: %w", err)
		}

		err = jpeg.Encode(f, img, &jpeg.Options{Quality: r.quality})
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return nil, fmt.Errorf("failed to encode page %d: %w", sequence, err)
		}

		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat page file: %w", err)
		}

		pages = append(pages, RenderedPage{
			Sequence:  sequence,
			Path:      path,
			SizeBytes: info.Size(),
		})
	}

	return pages, nil
}
