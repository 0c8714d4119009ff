package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/agentt/internal/audit"
	"github.com/sells-group/agentt/internal/bus"
	"github.com/sells-group/agentt/internal/ocr"
	"github.com/sells-group/agentt/internal/store"
)

// OCRStage turns arrived files into text. Tesseract runs first; when its
// confidence falls below the threshold (or it fails outright), the vision
// engine takes over. Only a double failure marks the document as errored.
type OCRStage struct {
	BaseModule

	store     store.Store
	audit     *audit.Logger
	primary   ocr.Engine
	fallback  ocr.Engine
	threshold float64
	emitter   bus.Emitter
}

// NewOCRStage creates the OCR stage. fallback may be nil when no vision
// engine is configured.
func NewOCRStage(s store.Store, auditLog *audit.Logger, primary, fallback ocr.Engine, threshold float64) *OCRStage {
	return &OCRStage{
		store:     s,
		audit:     auditLog,
		primary:   primary,
		fallback:  fallback,
		threshold: threshold,
	}
}

func (o *OCRStage) Name() string { return "ocr" }

func (o *OCRStage) Setup(b *bus.Bus) {
	o.emitter = b
	b.Subscribe(bus.EventFileArrived, "ocr.handle_file_arrived", o.handleFileArrived)
}

func (o *OCRStage) handleFileArrived(ev bus.Event) error {
	payload, ok := ev.Data.(bus.FileArrived)
	if !ok {
		return eris.Errorf("ocr: unexpected payload %T", ev.Data)
	}
	ctx := context.Background()

	zap.L().Info("ocr: starting", zap.String("filename", payload.Filename))

	doc, err := o.store.CreateDocument(ctx, payload.Filename, payload.FilePath)
	if err != nil {
		return eris.Wrap(err, "ocr: create document record")
	}

	res, usedFallback, err := o.recognize(ctx, payload.FilePath)
	if err != nil {
		if serr := o.store.SetDocumentError(ctx, doc.ID, err.Error()); serr != nil {
			zap.L().Error("ocr: mark document errored failed", zap.String("doc_id", doc.ID), zap.Error(serr))
		}
		o.audit.Error(ctx, "scanner", "ocr_failed", "", map[string]any{
			"doc_id":   doc.ID,
			"filename": payload.Filename,
			"error":    err.Error(),
		})
		return nil
	}

	if err := o.store.UpdateDocumentOCR(ctx, doc.ID, res.Text, res.Confidence); err != nil {
		return eris.Wrap(err, "ocr: update document")
	}

	o.audit.Info(ctx, "scanner", "ocr_complete", "", map[string]any{
		"doc_id":        doc.ID,
		"filename":      payload.Filename,
		"confidence":    res.Confidence,
		"used_fallback": usedFallback,
		"text_length":   len(res.Text),
	})
	zap.L().Info("ocr: complete",
		zap.String("filename", payload.Filename),
		zap.Float64("confidence", res.Confidence),
		zap.Bool("used_fallback", usedFallback),
	)

	o.emitter.Emit(bus.Event{
		Name: bus.EventOCRComplete,
		Data: bus.OCRComplete{
			DocID:      doc.ID,
			FilePath:   payload.FilePath,
			Filename:   payload.Filename,
			Text:       res.Text,
			Confidence: res.Confidence,
		},
	})
	return nil
}

// recognize applies the fallback matrix. The returned error is non-nil only
// when every available engine failed.
func (o *OCRStage) recognize(ctx context.Context, path string) (ocr.Result, bool, error) {
	res, primaryErr := o.primary.Recognize(ctx, path)
	if primaryErr == nil {
		if res.Confidence >= o.threshold || strings.TrimSpace(res.Text) == "" || o.fallback == nil {
			return res, false, nil
		}
		zap.L().Info("ocr: low confidence, trying vision fallback",
			zap.String("path", path),
			zap.Float64("confidence", res.Confidence),
		)
		fres, err := o.fallback.Recognize(ctx, path)
		if err != nil {
			// Keep the primary result.
			zap.L().Warn("ocr: vision fallback failed", zap.String("path", path), zap.Error(err))
			return res, false, nil
		}
		return fres, true, nil
	}

	zap.L().Error("ocr: primary engine failed", zap.String("path", path), zap.Error(primaryErr))
	if o.fallback == nil {
		return ocr.Result{}, false, eris.Wrap(primaryErr, "OCR failed")
	}
	fres, fallbackErr := o.fallback.Recognize(ctx, path)
	if fallbackErr != nil {
		return ocr.Result{}, false, eris.New(fmt.Sprintf(
			"OCR failed: %s; vision fallback: %s", primaryErr.Error(), fallbackErr.Error()))
	}
	return fres, true, nil
}
