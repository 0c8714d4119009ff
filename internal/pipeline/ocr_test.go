package pipeline

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/agentt/internal/bus"
	"github.com/sells-group/agentt/internal/model"
	"github.com/sells-group/agentt/internal/ocr"
	"github.com/sells-group/agentt/internal/store"
)

func emitFileArrived(b *bus.Bus) {
	b.Emit(bus.Event{
		Name: bus.EventFileArrived,
		Data: bus.FileArrived{FilePath: "/scans/scan.pdf", Filename: "scan.pdf"},
	})
}

func TestOCRStage_HighConfidenceSkipsFallback(t *testing.T) {
	s := newPipelineStore(t)
	primary := &fakeEngine{result: ocr.Result{Text: "Invoice #42", Confidence: 0.92}}
	fallback := &fakeEngine{result: ocr.Result{Text: "vision text", Confidence: ocr.VisionConfidence}}

	stage := NewOCRStage(s, newTestAudit(s), primary, fallback, 0.60)
	b := bus.New()
	stage.Setup(b)
	rec := recordEvents(b, bus.EventOCRComplete)

	emitFileArrived(b)

	events := rec.all()
	require.Len(t, events, 1)
	payload := events[0].Data.(bus.OCRComplete)
	assert.Equal(t, "Invoice #42", payload.Text)
	assert.Equal(t, 0.92, payload.Confidence)
	assert.Zero(t, fallback.calls)

	doc, err := s.GetDocument(context.Background(), payload.DocID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusOCRComplete, doc.Status)
	assert.Equal(t, "Invoice #42", doc.OCRText)
}

func TestOCRStage_LowConfidenceUsesFallback(t *testing.T) {
	s := newPipelineStore(t)
	primary := &fakeEngine{result: ocr.Result{Text: "bl urry te xt", Confidence: 0.35}}
	fallback := &fakeEngine{result: ocr.Result{Text: "clear vision text", Confidence: ocr.VisionConfidence}}

	stage := NewOCRStage(s, newTestAudit(s), primary, fallback, 0.60)
	b := bus.New()
	stage.Setup(b)
	rec := recordEvents(b, bus.EventOCRComplete)

	emitFileArrived(b)

	events := rec.all()
	require.Len(t, events, 1)
	payload := events[0].Data.(bus.OCRComplete)
	assert.Equal(t, "clear vision text", payload.Text)
	assert.Equal(t, ocr.VisionConfidence, payload.Confidence)
	assert.Equal(t, 1, fallback.calls)
}

func TestOCRStage_EmptyTextSkipsFallback(t *testing.T) {
	s := newPipelineStore(t)
	primary := &fakeEngine{result: ocr.Result{Text: "   \n", Confidence: 0.0}}
	fallback := &fakeEngine{}

	stage := NewOCRStage(s, newTestAudit(s), primary, fallback, 0.60)
	b := bus.New()
	stage.Setup(b)
	rec := recordEvents(b, bus.EventOCRComplete)

	emitFileArrived(b)

	require.Len(t, rec.all(), 1)
	assert.Zero(t, fallback.calls)
}

func TestOCRStage_FallbackFailureKeepsPrimaryResult(t *testing.T) {
	s := newPipelineStore(t)
	primary := &fakeEngine{result: ocr.Result{Text: "low conf text", Confidence: 0.40}}
	fallback := &fakeEngine{err: eris.New("vision down")}

	stage := NewOCRStage(s, newTestAudit(s), primary, fallback, 0.60)
	b := bus.New()
	stage.Setup(b)
	rec := recordEvents(b, bus.EventOCRComplete)

	emitFileArrived(b)

	events := rec.all()
	require.Len(t, events, 1)
	payload := events[0].Data.(bus.OCRComplete)
	assert.Equal(t, "low conf text", payload.Text)
	assert.Equal(t, 0.40, payload.Confidence)
}

func TestOCRStage_PrimaryFailureFallsBack(t *testing.T) {
	s := newPipelineStore(t)
	primary := &fakeEngine{err: eris.New("tesseract crashed")}
	fallback := &fakeEngine{result: ocr.Result{Text: "vision rescue", Confidence: ocr.VisionConfidence}}

	stage := NewOCRStage(s, newTestAudit(s), primary, fallback, 0.60)
	b := bus.New()
	stage.Setup(b)
	rec := recordEvents(b, bus.EventOCRComplete)

	emitFileArrived(b)

	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, "vision rescue", events[0].Data.(bus.OCRComplete).Text)
}

func TestOCRStage_DoubleFailureMarksError(t *testing.T) {
	s := newPipelineStore(t)
	primary := &fakeEngine{err: eris.New("tesseract crashed")}
	fallback := &fakeEngine{err: eris.New("vision down")}

	stage := NewOCRStage(s, newTestAudit(s), primary, fallback, 0.60)
	b := bus.New()
	stage.Setup(b)
	rec := recordEvents(b, bus.EventOCRComplete)

	emitFileArrived(b)

	assert.Empty(t, rec.all())

	docs, err := s.ListDocuments(context.Background(), store.DocumentFilter{Status: model.StatusError})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Contains(t, docs[0].ErrorMessage, "OCR failed: ")
	assert.Contains(t, docs[0].ErrorMessage, "vision fallback: ")
}

func TestOCRStage_NoFallbackConfigured(t *testing.T) {
	s := newPipelineStore(t)
	primary := &fakeEngine{result: ocr.Result{Text: "text", Confidence: 0.30}}

	stage := NewOCRStage(s, newTestAudit(s), primary, nil, 0.60)
	b := bus.New()
	stage.Setup(b)
	rec := recordEvents(b, bus.EventOCRComplete)

	emitFileArrived(b)

	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, 0.30, events[0].Data.(bus.OCRComplete).Confidence)
}
