// Package ocr extracts text from scanned documents. Tesseract is the primary
// engine; Claude vision serves as the fallback for low-confidence or
// unreadable scans.
package ocr

import (
	"context"
	"path/filepath"
	"strings"
)

// Result holds extracted text and a confidence score in [0, 1].
type Result struct {
	Text       string
	Confidence float64
}

// Engine recognizes text in a document file (PDF or image).
type Engine interface {
	Recognize(ctx context.Context, path string) (Result, error)
}

// PageBreak separates per-page text in multi-page extractions.
const PageBreak = "\n\n--- PAGE BREAK ---\n\n"

// MediaTypeFor maps a file extension to the image media type sent to the
// vision model. Unknown extensions default to PNG.
func MediaTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".tiff", ".tif":
		return "image/tiff"
	case ".bmp":
		return "image/bmp"
	default:
		return "image/png"
	}
}

// IsPDF reports whether the path looks like a PDF.
func IsPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}
