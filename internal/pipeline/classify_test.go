package pipeline

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/agentt/internal/bus"
	"github.com/sells-group/agentt/internal/model"
	"github.com/sells-group/agentt/internal/store"
)

func seedEntity(t *testing.T, s store.Store, slug, name string) {
	t.Helper()
	require.NoError(t, s.UpsertEntity(context.Background(), model.Entity{
		Slug:       slug,
		Name:       name,
		EntityType: "row_crop_farm",
		State:      "LA",
		Active:     true,
	}))
}

func createOCRDoc(t *testing.T, s store.Store, text string) string {
	t.Helper()
	doc, err := s.CreateDocument(context.Background(), "scan.pdf", "/scans/scan.pdf")
	require.NoError(t, err)
	require.NoError(t, s.UpdateDocumentOCR(context.Background(), doc.ID, text, 0.9))
	return doc.ID
}

func emitOCRComplete(b *bus.Bus, docID, text string) {
	b.Emit(bus.Event{
		Name: bus.EventOCRComplete,
		Data: bus.OCRComplete{
			DocID:      docID,
			FilePath:   "/scans/scan.pdf",
			Filename:   "scan.pdf",
			Text:       text,
			Confidence: 0.9,
		},
	})
}

func TestClassifier_HappyPath(t *testing.T) {
	s := newPipelineStore(t)
	seedEntity(t, s, "farm_1", "Farm Entity 1")
	docID := createOCRDoc(t, s, "ACME Seed Co Invoice #123 for Farm Entity 1")

	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{"document_type": "invoice", "entity_slug": "farm_1", "confidence": 0.92, "summary": "Seed invoice"}`), nil)

	c := NewClassifier(s, newTestAudit(s), client, "claude-sonnet-4-5-20250929")
	b := bus.New()
	c.Setup(b)
	rec := recordEvents(b, bus.EventDocumentClassified)

	emitOCRComplete(b, docID, "ACME Seed Co Invoice #123 for Farm Entity 1")

	events := rec.all()
	require.Len(t, events, 1)
	payload := events[0].Data.(bus.DocumentClassified)
	assert.Equal(t, model.DocTypeInvoice, payload.DocumentType)
	assert.Equal(t, "farm_1", payload.EntitySlug)
	assert.Equal(t, "Seed invoice", payload.Summary)

	doc, err := s.GetDocument(context.Background(), docID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusClassified, doc.Status)
	assert.Equal(t, model.DocTypeInvoice, doc.DocumentType)
	assert.Equal(t, 0.92, doc.ClassificationConfidence)
	assert.Equal(t, "farm_1", doc.EntitySlug)
}

func TestClassifier_EmptyTextStillEmits(t *testing.T) {
	s := newPipelineStore(t)
	docID := createOCRDoc(t, s, "")

	client := &mockAnthropicClient{}

	c := NewClassifier(s, newTestAudit(s), client, "claude-sonnet-4-5-20250929")
	b := bus.New()
	c.Setup(b)
	rec := recordEvents(b, bus.EventDocumentClassified)

	emitOCRComplete(b, docID, "   \n  ")

	events := rec.all()
	require.Len(t, events, 1)
	payload := events[0].Data.(bus.DocumentClassified)
	assert.Equal(t, model.DocTypeUnknown, payload.DocumentType)
	assert.Empty(t, payload.EntitySlug)

	doc, err := s.GetDocument(context.Background(), docID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusClassified, doc.Status)
	assert.Zero(t, doc.ClassificationConfidence)

	// The model was never called.
	client.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestClassifier_UnknownEntitySlugDropped(t *testing.T) {
	s := newPipelineStore(t)
	seedEntity(t, s, "farm_1", "Farm Entity 1")
	docID := createOCRDoc(t, s, "some text")

	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{"document_type": "receipt", "entity_slug": "hallucinated_llc", "confidence": 0.7, "summary": "x"}`), nil)

	c := NewClassifier(s, newTestAudit(s), client, "claude-sonnet-4-5-20250929")
	b := bus.New()
	c.Setup(b)
	rec := recordEvents(b, bus.EventDocumentClassified)

	emitOCRComplete(b, docID, "some text")

	events := rec.all()
	require.Len(t, events, 1)
	assert.Empty(t, events[0].Data.(bus.DocumentClassified).EntitySlug)

	doc, err := s.GetDocument(context.Background(), docID)
	require.NoError(t, err)
	assert.Empty(t, doc.EntitySlug)
}

func TestClassifier_APIErrorDegradesToUnknown(t *testing.T) {
	s := newPipelineStore(t)
	docID := createOCRDoc(t, s, "some text")

	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, eris.New("invalid_request_error"))

	c := NewClassifier(s, newTestAudit(s), client, "claude-sonnet-4-5-20250929")
	b := bus.New()
	c.Setup(b)
	rec := recordEvents(b, bus.EventDocumentClassified)

	emitOCRComplete(b, docID, "some text")

	events := rec.all()
	require.Len(t, events, 1)
	payload := events[0].Data.(bus.DocumentClassified)
	assert.Equal(t, model.DocTypeUnknown, payload.DocumentType)
	assert.Contains(t, payload.Summary, "API error")
}

func TestParseClassification(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantType model.DocumentType
		wantConf float64
	}{
		{
			"plain json",
			`{"document_type": "invoice", "entity_slug": null, "confidence": 0.8, "summary": "x"}`,
			model.DocTypeInvoice, 0.8,
		},
		{
			"fenced json",
			"```json\n{\"document_type\": \"receipt\", \"confidence\": 0.9, \"summary\": \"x\"}\n```",
			model.DocTypeReceipt, 0.9,
		},
		{
			"prose around json",
			"Here is my answer: {\"document_type\": \"lease\", \"confidence\": 0.75, \"summary\": \"x\"} Hope that helps!",
			model.DocTypeLease, 0.75,
		},
		{
			"invalid type degrades",
			`{"document_type": "pizza_menu", "confidence": 0.5, "summary": "x"}`,
			model.DocTypeUnknown, 0.5,
		},
		{
			"uppercase type normalized",
			`{"document_type": "INVOICE", "confidence": 0.6, "summary": "x"}`,
			model.DocTypeInvoice, 0.6,
		},
		{
			"garbage degrades",
			"I couldn't classify this document, sorry.",
			model.DocTypeUnknown, 0.0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseClassification(tt.input)
			assert.Equal(t, tt.wantType, got.DocumentType)
			assert.Equal(t, tt.wantConf, got.Confidence)
		})
	}
}

func TestExcerpt(t *testing.T) {
	short := "short text"
	assert.Equal(t, short, excerpt(short))

	long := make([]byte, excerptLimit+100)
	for i := range long {
		long[i] = 'a'
	}
	assert.Len(t, excerpt(string(long)), excerptLimit)
}
