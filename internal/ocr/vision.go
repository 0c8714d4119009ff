package ocr

import (
	"context"
	"encoding/base64"
	"os"

	"github.com/rotisserie/eris"

	"github.com/sells-group/agentt/pkg/anthropic"
)

// VisionConfidence is the fixed confidence reported for vision extractions.
// The model does not expose word-level scores, and in practice it reads
// scans that defeat Tesseract.
const VisionConfidence = 0.95

const visionPrompt = "Extract ALL text from this document image. Preserve the layout and structure as much as possible. Return only the extracted text, nothing else."

// Vision extracts text with the Claude vision API. For PDFs, only the first
// page is sent.
type Vision struct {
	client       anthropic.Client
	model        string
	pdftoppmPath string
}

// NewVision creates a Vision engine.
func NewVision(client anthropic.Client, model, pdftoppmPath string) *Vision {
	if pdftoppmPath == "" {
		pdftoppmPath = "pdftoppm"
	}
	return &Vision{client: client, model: model, pdftoppmPath: pdftoppmPath}
}

func (v *Vision) Recognize(ctx context.Context, path string) (Result, error) {
	imagePath := path
	mediaType := MediaTypeFor(path)

	if IsPDF(path) {
		pages, cleanup, err := renderPDF(ctx, v.pdftoppmPath, path, true)
		if err != nil {
			return Result{}, err
		}
		defer cleanup()
		imagePath = pages[0]
		mediaType = "image/png"
	}

	raw, err := os.ReadFile(imagePath)
	if err != nil {
		return Result{}, eris.Wrapf(err, "ocr: read image %s", imagePath)
	}
	encoded := base64.StdEncoding.EncodeToString(raw)

	resp, err := v.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     v.model,
		MaxTokens: 4096,
		Messages: []anthropic.Message{
			anthropic.ImageMessage(mediaType, encoded, visionPrompt),
		},
	})
	if err != nil {
		return Result{}, eris.Wrapf(err, "ocr: vision extraction for %s", path)
	}
	resp.Usage.LogCost(v.model, "ocr_vision")

	return Result{Text: resp.Text(), Confidence: VisionConfidence}, nil
}
