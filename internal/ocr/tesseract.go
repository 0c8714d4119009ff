package ocr

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Tesseract runs the tesseract CLI. PDFs are rasterized one page at a time
// with pdftoppm before recognition.
type Tesseract struct {
	tesseractPath string
	pdftoppmPath  string
}

// NewTesseract creates a Tesseract engine. Empty paths fall back to the
// binaries on PATH.
func NewTesseract(tesseractPath, pdftoppmPath string) *Tesseract {
	if tesseractPath == "" {
		tesseractPath = "tesseract"
	}
	if pdftoppmPath == "" {
		pdftoppmPath = "pdftoppm"
	}
	return &Tesseract{tesseractPath: tesseractPath, pdftoppmPath: pdftoppmPath}
}

// Recognize extracts text from the file. Multi-page PDFs are joined with
// PageBreak; the confidence is the mean word confidence across all pages.
func (t *Tesseract) Recognize(ctx context.Context, path string) (Result, error) {
	if !IsPDF(path) {
		return t.recognizeImage(ctx, path)
	}

	pages, cleanup, err := renderPDF(ctx, t.pdftoppmPath, path, false)
	if err != nil {
		return Result{}, err
	}
	defer cleanup()

	var texts []string
	var confidences []float64
	for _, page := range pages {
		res, err := t.recognizeImage(ctx, page)
		if err != nil {
			return Result{}, err
		}
		texts = append(texts, res.Text)
		if res.Confidence > 0 {
			confidences = append(confidences, res.Confidence)
		}
	}

	var avg float64
	for _, c := range confidences {
		avg += c
	}
	if len(confidences) > 0 {
		avg /= float64(len(confidences))
	}
	return Result{Text: strings.Join(texts, PageBreak), Confidence: avg}, nil
}

func (t *Tesseract) recognizeImage(ctx context.Context, path string) (Result, error) {
	text, err := t.run(ctx, path, "txt")
	if err != nil {
		return Result{}, err
	}
	tsv, err := t.run(ctx, path, "tsv")
	if err != nil {
		return Result{}, err
	}
	return Result{Text: text, Confidence: meanTSVConfidence(tsv)}, nil
}

func (t *Tesseract) run(ctx context.Context, path, format string) (string, error) {
	args := []string{path, "stdout"}
	if format != "txt" {
		args = append(args, format)
	}
	cmd := exec.CommandContext(ctx, t.tesseractPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", eris.Wrapf(err, "ocr: tesseract failed for %s: %s", path, stderr.String())
	}
	return stdout.String(), nil
}

// meanTSVConfidence averages word-level confidences from tesseract TSV
// output, scaled to [0, 1]. Rows with non-positive confidence or empty text
// are skipped.
func meanTSVConfidence(tsv string) float64 {
	var sum float64
	var n int
	for _, line := range strings.Split(tsv, "\n") {
		fields := strings.Split(line, "\t")
		if len(fields) < 12 {
			continue
		}
		conf, err := strconv.ParseFloat(fields[10], 64)
		if err != nil || conf <= 0 {
			continue
		}
		if strings.TrimSpace(fields[11]) == "" {
			continue
		}
		sum += conf
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n) / 100.0
}

// renderPDF rasterizes a PDF to PNG pages in a temp directory. The returned
// cleanup removes the directory. With firstOnly set, only page one is
// rendered.
func renderPDF(ctx context.Context, pdftoppmPath, pdfPath string, firstOnly bool) ([]string, func(), error) {
	dir, err := os.MkdirTemp("", "agentt-pages-*")
	if err != nil {
		return nil, nil, eris.Wrap(err, "ocr: create temp dir")
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			zap.L().Warn("ocr: temp dir cleanup failed", zap.String("dir", dir), zap.Error(err))
		}
	}

	args := []string{"-png", "-r", "300"}
	if firstOnly {
		args = append(args, "-f", "1", "-l", "1")
	}
	args = append(args, pdfPath, filepath.Join(dir, "page"))

	cmd := exec.CommandContext(ctx, pdftoppmPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		cleanup()
		return nil, nil, eris.Wrapf(err, "ocr: pdftoppm failed for %s: %s", pdfPath, stderr.String())
	}

	pages, err := filepath.Glob(filepath.Join(dir, "page*.png"))
	if err != nil {
		cleanup()
		return nil, nil, eris.Wrap(err, "ocr: glob rendered pages")
	}
	if len(pages) == 0 {
		cleanup()
		return nil, nil, eris.Errorf("ocr: pdftoppm produced no pages for %s", pdfPath)
	}
	// pdftoppm zero-pads page numbers, so lexicographic order is page order.
	sort.Strings(pages)
	return pages, cleanup, nil
}
