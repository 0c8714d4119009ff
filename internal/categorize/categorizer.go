package categorize

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/agentt/internal/model"
	"github.com/sells-group/agentt/internal/resilience"
	"github.com/sells-group/agentt/internal/store"
	"github.com/sells-group/agentt/pkg/anthropic"
)

// docTextLimit caps how much document text rides along in the prompt.
const docTextLimit = 4000

// fuzzyDistanceMax is the edit distance tolerated when matching a vendor
// against the built-in defaults ("NAPA Auto Part" still hits "napa auto
// parts").
const fuzzyDistanceMax = 2

const categorizationPromptTemplate = `You are a farm accountant categorizing transactions for Schedule F tax reporting.

Given the following transaction details, determine the most appropriate Schedule F category.

Transaction details:
- Vendor: %s
- Description: %s
- Amount: $%.2f
- Transaction type: %s

%s

Available %s categories:
%s

Respond with ONLY valid JSON:
{
    "category": "category_slug_from_list_above",
    "confidence": 0.0 to 1.0,
    "reasoning": "brief explanation"
}
`

// Result is a categorization outcome. Source records which tier decided:
// "vendor_lookup", "claude_api", or "fallback".
type Result struct {
	Category   string  `json:"category"`
	QBAccount  string  `json:"qb_account"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// Categorizer resolves transactions to Schedule F categories. Learned vendor
// mappings win, then built-in vendor defaults (exact, then fuzzy), then the
// model; anything else lands in the catch-all category. It is a plain
// service, not an event handler.
type Categorizer struct {
	store  store.Store
	client anthropic.Client
	model  string
	retry  resilience.RetryConfig
}

// New creates a categorizer. client may be nil, in which case unknown vendors
// go straight to the fallback category.
func New(s store.Store, client anthropic.Client, modelID string) *Categorizer {
	return &Categorizer{
		store:  s,
		client: client,
		model:  modelID,
		retry:  resilience.DefaultRetryConfig(),
	}
}

// Categorize resolves a transaction to a category and QB account.
func (c *Categorizer) Categorize(ctx context.Context, vendor, description string, amount float64, documentText string, txnType model.TransactionType) Result {
	if cat := c.lookupVendor(ctx, vendor, txnType); cat != "" {
		return Result{
			Category:   cat,
			QBAccount:  QBAccountFor(cat, txnType),
			Confidence: 1.0,
			Source:     "vendor_lookup",
		}
	}

	if c.client != nil {
		if res, ok := c.classifyWithModel(ctx, vendor, description, amount, documentText, txnType); ok {
			return res
		}
	}

	fallback := FallbackCategoryFor(txnType)
	return Result{
		Category:  fallback,
		QBAccount: QBAccountFor(fallback, txnType),
		Source:    "fallback",
	}
}

// LearnVendor saves a manual vendor-to-category mapping for future lookups.
func (c *Categorizer) LearnVendor(ctx context.Context, vendor, categorySlug string) error {
	if strings.TrimSpace(vendor) == "" {
		return eris.New("categorize: vendor name is required")
	}
	if !validCategory(categorySlug, model.TransactionExpense) && !validCategory(categorySlug, model.TransactionIncome) {
		return eris.Errorf("categorize: unknown category %q", categorySlug)
	}

	normalized := strings.ToLower(strings.TrimSpace(vendor))
	if err := c.store.SaveVendorMapping(ctx, normalized, strings.TrimSpace(vendor), categorySlug, "manual"); err != nil {
		return eris.Wrap(err, "categorize: save vendor mapping")
	}
	zap.L().Info("categorize: learned vendor mapping",
		zap.String("vendor", normalized),
		zap.String("category", categorySlug),
	)
	return nil
}

// lookupVendor checks the learned mapping table, then the built-in defaults,
// then fuzzy-matches against the defaults. Income transactions skip the
// defaults since those only cover expense vendors.
func (c *Categorizer) lookupVendor(ctx context.Context, vendor string, txnType model.TransactionType) string {
	normalized := strings.ToLower(strings.TrimSpace(vendor))
	if normalized == "" {
		return ""
	}

	cat, err := c.store.GetVendorCategory(ctx, normalized)
	if err != nil {
		zap.L().Warn("categorize: vendor lookup failed", zap.String("vendor", normalized), zap.Error(err))
	} else if cat != "" && validCategory(cat, txnType) {
		return cat
	}

	if txnType == model.TransactionIncome {
		return ""
	}
	if cat, ok := vendorCategoryDefaults[normalized]; ok {
		return cat
	}
	return fuzzyDefault(normalized)
}

// fuzzyDefault returns the default category for the closest known vendor
// within the tolerated edit distance. Candidates are scanned in sorted order
// so equal-distance ties always resolve to the same vendor.
func fuzzyDefault(vendor string) string {
	known := make([]string, 0, len(vendorCategoryDefaults))
	for k := range vendorCategoryDefaults {
		known = append(known, k)
	}
	sort.Strings(known)

	best := ""
	bestDist := fuzzyDistanceMax + 1
	for _, k := range known {
		if d := levenshtein.ComputeDistance(vendor, k); d < bestDist {
			best = vendorCategoryDefaults[k]
			bestDist = d
		}
	}
	return best
}

func (c *Categorizer) classifyWithModel(ctx context.Context, vendor, description string, amount float64, documentText string, txnType model.TransactionType) (Result, bool) {
	prompt := buildCategorizationPrompt(vendor, description, amount, documentText, txnType)

	resp, err := resilience.DoVal(ctx, c.retry, "categorize", func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return c.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     c.model,
			MaxTokens: 300,
			Messages:  []anthropic.Message{anthropic.TextMessage("user", prompt)},
		})
	})
	if err != nil {
		zap.L().Error("categorize: api call failed", zap.String("vendor", vendor), zap.Error(err))
		return Result{}, false
	}
	resp.Usage.LogCost(c.model, "categorize")

	var parsed struct {
		Category   string  `json:"category"`
		Confidence float64 `json:"confidence"`
		Reasoning  string  `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(cleanModelJSON(resp.Text())), &parsed); err != nil {
		zap.L().Error("categorize: unparseable model reply", zap.String("vendor", vendor), zap.Error(err))
		return Result{}, false
	}

	category := parsed.Category
	if !validCategory(category, txnType) {
		category = FallbackCategoryFor(txnType)
	}

	zap.L().Info("categorize: model categorized",
		zap.String("vendor", vendor),
		zap.String("category", category),
		zap.Float64("confidence", parsed.Confidence),
	)
	return Result{
		Category:   category,
		QBAccount:  QBAccountFor(category, txnType),
		Confidence: parsed.Confidence,
		Source:     "claude_api",
		Reasoning:  parsed.Reasoning,
	}, true
}

func buildCategorizationPrompt(vendor, description string, amount float64, documentText string, txnType model.TransactionType) string {
	if vendor == "" {
		vendor = "Unknown"
	}
	if description == "" {
		description = "No description"
	}

	docSection := ""
	if documentText != "" {
		if len(documentText) > docTextLimit {
			documentText = documentText[:docTextLimit]
		}
		docSection = fmt.Sprintf("Document text (first %d chars):\n%s", docTextLimit, documentText)
	}

	var categories []string
	for _, cat := range CategoriesFor(txnType) {
		categories = append(categories, "- "+cat)
	}

	return fmt.Sprintf(categorizationPromptTemplate,
		vendor, description, amount, txnType, docSection, txnType,
		strings.Join(categories, "\n"),
	)
}

// cleanModelJSON strips markdown code fences and any prose around the
// outermost JSON object.
func cleanModelJSON(text string) string {
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
