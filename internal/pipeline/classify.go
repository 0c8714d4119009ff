package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/agentt/internal/audit"
	"github.com/sells-group/agentt/internal/bus"
	"github.com/sells-group/agentt/internal/model"
	"github.com/sells-group/agentt/internal/resilience"
	"github.com/sells-group/agentt/internal/store"
	"github.com/sells-group/agentt/pkg/anthropic"
)

// excerptLimit caps how much OCR text is sent to the model per call.
const excerptLimit = 8000

const classifyPromptTemplate = `You are a document classifier for a farm office. Analyze the following OCR text from a scanned document and determine:

1. **document_type**: One of: %s
2. **entity_slug**: Which business entity this document belongs to. Options: %s. Use null if you cannot determine.
3. **confidence**: Your confidence in the classification (0.0 to 1.0)
4. **summary**: A brief one-line summary of what this document is

The business entities are:
%s

Respond with ONLY valid JSON in this exact format:
{
    "document_type": "...",
    "entity_slug": "..." or null,
    "confidence": 0.0,
    "summary": "..."
}

--- DOCUMENT TEXT ---
%s`

// Classifier assigns a document type and entity to OCR'd documents. Model
// failures degrade to unknown/0.0 instead of stalling the pipeline.
type Classifier struct {
	BaseModule

	store   store.Store
	audit   *audit.Logger
	client  anthropic.Client
	model   string
	retry   resilience.RetryConfig
	emitter bus.Emitter
}

// NewClassifier creates the classification stage.
func NewClassifier(s store.Store, auditLog *audit.Logger, client anthropic.Client, modelID string) *Classifier {
	return &Classifier{
		store:  s,
		audit:  auditLog,
		client: client,
		model:  modelID,
		retry:  resilience.DefaultRetryConfig(),
	}
}

func (c *Classifier) Name() string { return "classifier" }

func (c *Classifier) Setup(b *bus.Bus) {
	c.emitter = b
	b.Subscribe(bus.EventOCRComplete, "classifier.handle_ocr_complete", c.handleOCRComplete)
}

type classification struct {
	DocumentType model.DocumentType
	EntitySlug   string
	Confidence   float64
	Summary      string
}

func (c *Classifier) handleOCRComplete(ev bus.Event) error {
	payload, ok := ev.Data.(bus.OCRComplete)
	if !ok {
		return eris.Errorf("classifier: unexpected payload %T", ev.Data)
	}
	ctx := context.Background()

	var result classification
	if strings.TrimSpace(payload.Text) == "" {
		zap.L().Warn("classifier: empty OCR text, marking unknown", zap.String("filename", payload.Filename))
		result = classification{DocumentType: model.DocTypeUnknown, Summary: "Empty document"}
	} else {
		result = c.classify(ctx, payload.Text, payload.Filename)
	}

	// An entity slug from the model only sticks if it names a known active
	// entity.
	if result.EntitySlug != "" {
		entity, err := c.store.GetEntityBySlug(ctx, result.EntitySlug)
		if err != nil {
			return eris.Wrap(err, "classifier: resolve entity")
		}
		if entity == nil {
			zap.L().Warn("classifier: model named unknown entity",
				zap.String("entity_slug", result.EntitySlug),
				zap.String("filename", payload.Filename),
			)
			result.EntitySlug = ""
		}
	}

	if err := c.store.UpdateDocumentClassification(ctx, payload.DocID, result.DocumentType, result.Confidence, result.EntitySlug); err != nil {
		return eris.Wrap(err, "classifier: update document")
	}

	c.audit.Info(ctx, "scanner", "document_classified", result.EntitySlug, map[string]any{
		"doc_id":        payload.DocID,
		"filename":      payload.Filename,
		"document_type": string(result.DocumentType),
		"confidence":    result.Confidence,
		"summary":       result.Summary,
	})
	zap.L().Info("classifier: classified",
		zap.String("filename", payload.Filename),
		zap.String("document_type", string(result.DocumentType)),
		zap.Float64("confidence", result.Confidence),
	)

	c.emitter.Emit(bus.Event{
		Name: bus.EventDocumentClassified,
		Data: bus.DocumentClassified{
			DocID:        payload.DocID,
			FilePath:     payload.FilePath,
			Filename:     payload.Filename,
			Text:         payload.Text,
			DocumentType: result.DocumentType,
			EntitySlug:   result.EntitySlug,
			Summary:      result.Summary,
		},
	})
	return nil
}

func (c *Classifier) classify(ctx context.Context, text, filename string) classification {
	prompt, err := c.buildPrompt(ctx, text)
	if err != nil {
		zap.L().Error("classifier: build prompt failed", zap.Error(err))
		return classification{DocumentType: model.DocTypeUnknown, Summary: "Classification failed"}
	}

	resp, err := resilience.DoVal(ctx, c.retry, "classify", func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return c.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     c.model,
			MaxTokens: 500,
			Messages:  []anthropic.Message{anthropic.TextMessage("user", prompt)},
		})
	})
	if err != nil {
		zap.L().Error("classifier: api call failed", zap.String("filename", filename), zap.Error(err))
		return classification{
			DocumentType: model.DocTypeUnknown,
			Summary:      fmt.Sprintf("API error: %s", err.Error()),
		}
	}
	resp.Usage.LogCost(c.model, "classify")

	return parseClassification(resp.Text())
}

func (c *Classifier) buildPrompt(ctx context.Context, text string) (string, error) {
	entities, err := c.store.ListEntities(ctx)
	if err != nil {
		return "", eris.Wrap(err, "list entities")
	}

	var types []string
	for _, t := range model.AllDocumentTypes() {
		types = append(types, string(t))
	}

	var slugs []string
	var descriptions []string
	for _, e := range entities {
		slugs = append(slugs, e.Slug)
		descriptions = append(descriptions,
			fmt.Sprintf("- %s: %s (%s, %s)", e.Slug, e.Name, e.EntityType, e.State))
	}

	return fmt.Sprintf(classifyPromptTemplate,
		strings.Join(types, ", "),
		strings.Join(slugs, ", "),
		strings.Join(descriptions, "\n"),
		excerpt(text),
	), nil
}

// parseClassification decodes the model's JSON reply. Anything unparseable
// degrades to unknown with zero confidence.
func parseClassification(text string) classification {
	text = cleanJSON(text)

	var result struct {
		DocumentType string  `json:"document_type"`
		EntitySlug   *string `json:"entity_slug"`
		Confidence   float64 `json:"confidence"`
		Summary      string  `json:"summary"`
	}
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return classification{DocumentType: model.DocTypeUnknown, Summary: "Classification failed"}
	}

	out := classification{
		DocumentType: model.ParseDocumentType(strings.ToLower(result.DocumentType)),
		Confidence:   result.Confidence,
		Summary:      result.Summary,
	}
	if result.EntitySlug != nil {
		out.EntitySlug = *result.EntitySlug
	}
	return out
}

// excerpt truncates text to the per-call limit.
func excerpt(text string) string {
	if len(text) > excerptLimit {
		return text[:excerptLimit]
	}
	return text
}

// cleanJSON strips markdown code fences and any prose around the outermost
// JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
