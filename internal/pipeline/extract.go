package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/agentt/internal/audit"
	"github.com/sells-group/agentt/internal/bus"
	"github.com/sells-group/agentt/internal/model"
	"github.com/sells-group/agentt/internal/resilience"
	"github.com/sells-group/agentt/internal/store"
	"github.com/sells-group/agentt/pkg/anthropic"
)

// extractionPrompts holds the per-type field specifications. Types without
// an entry use the default prompt.
var extractionPrompts = map[model.DocumentType]string{
	model.DocTypeInvoice: `Extract the following from this vendor invoice:
- vendor_name: The company or person who sent the invoice
- invoice_number: The invoice number
- invoice_date: Date of the invoice (YYYY-MM-DD)
- due_date: Payment due date (YYYY-MM-DD) or null
- line_items: Array of {"description": "...", "quantity": 0, "unit_price": 0.00, "amount": 0.00}
- subtotal: Subtotal before tax
- tax: Tax amount or 0
- total: Total amount due
- notes: Any additional notes or terms

Respond with ONLY valid JSON.`,

	model.DocTypeReceipt: `Extract the following from this receipt:
- vendor_name: Store/vendor name
- date: Date of purchase (YYYY-MM-DD)
- items: Array of {"description": "...", "amount": 0.00}
- subtotal: Subtotal
- tax: Tax amount or 0
- total: Total paid
- payment_method: cash, check, card, or unknown

Respond with ONLY valid JSON.`,

	model.DocTypeBankStatement: `Extract the following from this bank statement:
- bank_name: Name of the bank
- account_number_last4: Last 4 digits of account number
- statement_period_start: Start date (YYYY-MM-DD)
- statement_period_end: End date (YYYY-MM-DD)
- beginning_balance: Starting balance
- ending_balance: Ending balance
- total_deposits: Total deposits
- total_withdrawals: Total withdrawals
- transaction_count: Number of transactions

Respond with ONLY valid JSON.`,
}

const defaultExtractionPrompt = `Extract any structured data you can from this document:
- document_date: Date on the document (YYYY-MM-DD) or null
- parties: Array of names/companies mentioned
- amounts: Array of {"description": "...", "amount": 0.00}
- key_details: Object with any other important fields

Respond with ONLY valid JSON.`

// Extractor pulls structured fields out of classified documents. Like the
// classifier, it degrades on model failure: the error lands in the extracted
// data under "error" and the document still moves forward.
type Extractor struct {
	BaseModule

	store   store.Store
	audit   *audit.Logger
	client  anthropic.Client
	model   string
	retry   resilience.RetryConfig
	emitter bus.Emitter
}

// NewExtractor creates the extraction stage.
func NewExtractor(s store.Store, auditLog *audit.Logger, client anthropic.Client, modelID string) *Extractor {
	return &Extractor{
		store:  s,
		audit:  auditLog,
		client: client,
		model:  modelID,
		retry:  resilience.DefaultRetryConfig(),
	}
}

func (e *Extractor) Name() string { return "extractor" }

func (e *Extractor) Setup(b *bus.Bus) {
	e.emitter = b
	b.Subscribe(bus.EventDocumentClassified, "extractor.handle_classified", e.handleClassified)
}

func (e *Extractor) handleClassified(ev bus.Event) error {
	payload, ok := ev.Data.(bus.DocumentClassified)
	if !ok {
		return eris.Errorf("extractor: unexpected payload %T", ev.Data)
	}
	ctx := context.Background()

	zap.L().Info("extractor: extracting",
		zap.String("filename", payload.Filename),
		zap.String("document_type", string(payload.DocumentType)),
	)

	extracted := e.extract(ctx, payload.DocumentType, payload.Text, payload.Filename)

	if err := e.store.UpdateDocumentExtraction(ctx, payload.DocID, extracted); err != nil {
		return eris.Wrap(err, "extractor: update document")
	}

	keys := make([]string, 0, len(extracted))
	for k := range extracted {
		keys = append(keys, k)
	}
	e.audit.Info(ctx, "scanner", "data_extracted", payload.EntitySlug, map[string]any{
		"doc_id":         payload.DocID,
		"filename":       payload.Filename,
		"document_type":  string(payload.DocumentType),
		"extracted_keys": keys,
	})

	e.emitter.Emit(bus.Event{
		Name: bus.EventDataExtracted,
		Data: bus.DataExtracted{
			DocID:         payload.DocID,
			FilePath:      payload.FilePath,
			Filename:      payload.Filename,
			DocumentType:  payload.DocumentType,
			EntitySlug:    payload.EntitySlug,
			ExtractedData: extracted,
		},
	})
	return nil
}

func (e *Extractor) extract(ctx context.Context, docType model.DocumentType, text, filename string) map[string]any {
	promptTemplate, ok := extractionPrompts[docType]
	if !ok {
		promptTemplate = defaultExtractionPrompt
	}
	prompt := fmt.Sprintf("%s\n\n--- DOCUMENT TEXT ---\n%s", promptTemplate, excerpt(text))

	resp, err := resilience.DoVal(ctx, e.retry, "extract", func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return e.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     e.model,
			MaxTokens: 2000,
			Messages:  []anthropic.Message{anthropic.TextMessage("user", prompt)},
		})
	})
	if err != nil {
		zap.L().Error("extractor: api call failed", zap.String("filename", filename), zap.Error(err))
		return map[string]any{"error": fmt.Sprintf("api_error: %s", err.Error())}
	}
	resp.Usage.LogCost(e.model, "extract")

	raw := resp.Text()
	var extracted map[string]any
	if err := json.Unmarshal([]byte(cleanJSON(raw)), &extracted); err != nil {
		zap.L().Error("extractor: parse failed", zap.String("filename", filename), zap.Error(err))
		return map[string]any{
			"error": "extraction_parse_failed",
			"raw":   excerptN(raw, 500),
		}
	}
	return extracted
}

// excerptN truncates text to at most n bytes.
func excerptN(text string, n int) string {
	if len(text) > n {
		return text[:n]
	}
	return text
}
