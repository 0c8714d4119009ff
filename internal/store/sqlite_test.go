package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/agentt/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLite_DocumentLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc, err := s.CreateDocument(ctx, "invoice_acme.pdf", "/scans/invoice_acme.pdf")
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, model.StatusPending, doc.Status)
	assert.Equal(t, model.DocTypeUnknown, doc.DocumentType)

	require.NoError(t, s.UpdateDocumentOCR(ctx, doc.ID, "ACME Seed Co Invoice #123", 0.91))

	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusOCRComplete, got.Status)
	assert.Equal(t, "ACME Seed Co Invoice #123", got.OCRText)
	assert.Equal(t, 0.91, got.OCRConfidence)
	require.NotNil(t, got.ProcessedAt)

	require.NoError(t, s.UpdateDocumentClassification(ctx, doc.ID, model.DocTypeInvoice, 0.85, "farm_1"))

	got, err = s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusClassified, got.Status)
	assert.Equal(t, model.DocTypeInvoice, got.DocumentType)
	assert.Equal(t, "farm_1", got.EntitySlug)

	data := map[string]any{"vendor": "ACME Seed Co", "amount": 1250.00}
	require.NoError(t, s.UpdateDocumentExtraction(ctx, doc.ID, data))

	got, err = s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusExtracted, got.Status)
	assert.Equal(t, "ACME Seed Co", got.ExtractedData["vendor"])

	require.NoError(t, s.UpdateDocumentFiled(ctx, doc.ID, "/filed/farm_1/invoice/2026-08/invoice_acme.pdf"))

	got, err = s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFiled, got.Status)
	assert.Equal(t, "/filed/farm_1/invoice/2026-08/invoice_acme.pdf", got.StoredPath)
	require.NotNil(t, got.FiledAt)
}

func TestSQLite_SetDocumentError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc, err := s.CreateDocument(ctx, "blurry.png", "/scans/blurry.png")
	require.NoError(t, err)

	require.NoError(t, s.SetDocumentError(ctx, doc.ID, "OCR failed: exit status 1"))

	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusError, got.Status)
	assert.Equal(t, "OCR failed: exit status 1", got.ErrorMessage)
}

func TestSQLite_UpdateMissingDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.UpdateDocumentOCR(ctx, "no-such-id", "text", 0.5)
	assert.ErrorContains(t, err, "document not found")
}

func TestSQLite_ListDocumentsFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.CreateDocument(ctx, "a.pdf", "/scans/a.pdf")
	require.NoError(t, err)
	_, err = s.CreateDocument(ctx, "b.pdf", "/scans/b.pdf")
	require.NoError(t, err)

	require.NoError(t, s.UpdateDocumentOCR(ctx, a.ID, "text", 0.9))
	require.NoError(t, s.UpdateDocumentClassification(ctx, a.ID, model.DocTypeReceipt, 0.8, "farm_1"))

	docs, err := s.ListDocuments(ctx, DocumentFilter{Status: model.StatusClassified})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, a.ID, docs[0].ID)

	docs, err = s.ListDocuments(ctx, DocumentFilter{EntitySlug: "farm_1"})
	require.NoError(t, err)
	require.Len(t, docs, 1)

	docs, err = s.ListDocuments(ctx, DocumentFilter{})
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	docs, err = s.ListDocuments(ctx, DocumentFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestSQLite_TransactionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	txn := &model.Transaction{
		EntitySlug:     "farm_1",
		Type:           model.TransactionExpense,
		Date:           time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		VendorCustomer: "ACME Seed Co",
		Description:    "Spring seed order",
		Amount:         1250.00,
		Category:       "seeds_plants",
		QBAccount:      "Seeds and Plants Purchased",
		IIFType:        model.IIFBill,
	}

	created, err := s.CreateTransaction(ctx, txn)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, model.SyncPending, created.SyncStatus)

	got, err := s.GetTransaction(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "ACME Seed Co", got.VendorCustomer)
	assert.Equal(t, 1250.00, got.Amount)
	assert.Equal(t, model.IIFBill, got.IIFType)
}

func TestSQLite_CreateTransactionValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateTransaction(ctx, &model.Transaction{
		EntitySlug: "farm_1",
		Type:       model.TransactionExpense,
		Date:       time.Now(),
		Amount:     0,
	})
	assert.ErrorContains(t, err, "amount must be positive")

	_, err = s.CreateTransaction(ctx, &model.Transaction{
		Type:   model.TransactionExpense,
		Date:   time.Now(),
		Amount: 10,
	})
	assert.ErrorContains(t, err, "requires an entity")
}

func TestSQLite_MarkIIFGenerated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateTransaction(ctx, &model.Transaction{
		EntitySlug: "farm_1",
		Type:       model.TransactionExpense,
		Date:       time.Now().UTC(),
		Amount:     42.00,
		IIFType:    model.IIFBill,
	})
	require.NoError(t, err)

	require.NoError(t, s.MarkIIFGenerated(ctx, created.ID, "/exports/iif/farm_1_bill.iif"))

	got, err := s.GetTransaction(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncIIFGenerated, got.SyncStatus)
	assert.Equal(t, "/exports/iif/farm_1_bill.iif", got.IIFFilePath)

	// Regenerating before sync is allowed.
	require.NoError(t, s.MarkIIFGenerated(ctx, created.ID, "/exports/iif/farm_1_bill_2.iif"))
}

func TestSQLite_MarkIIFGenerated_SyncedGuard(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateTransaction(ctx, &model.Transaction{
		EntitySlug: "farm_1",
		Type:       model.TransactionIncome,
		Date:       time.Now().UTC(),
		Amount:     500.00,
		IIFType:    model.IIFDeposit,
		SyncStatus: model.SyncSynced,
	})
	require.NoError(t, err)

	err = s.MarkIIFGenerated(ctx, created.ID, "/exports/iif/late.iif")
	assert.ErrorContains(t, err, "transaction already synced")

	got, err := s.GetTransaction(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncSynced, got.SyncStatus)

	// A missing transaction is reported as missing, not as synced.
	err = s.MarkIIFGenerated(ctx, "no-such-txn", "/exports/iif/late.iif")
	assert.ErrorContains(t, err, "transaction not found")
}

func TestSQLite_ListTransactionsFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, entity := range []string{"farm_1", "farm_1", "ga_real_estate"} {
		_, err := s.CreateTransaction(ctx, &model.Transaction{
			EntitySlug: entity,
			Type:       model.TransactionExpense,
			Date:       time.Now().UTC(),
			Amount:     10.00,
			IIFType:    model.IIFBill,
		})
		require.NoError(t, err)
	}

	txns, err := s.ListTransactions(ctx, TransactionFilter{EntitySlug: "farm_1"})
	require.NoError(t, err)
	assert.Len(t, txns, 2)

	txns, err = s.ListTransactions(ctx, TransactionFilter{SyncStatus: model.SyncPending})
	require.NoError(t, err)
	assert.Len(t, txns, 3)

	txns, err = s.ListTransactions(ctx, TransactionFilter{SyncStatus: model.SyncSynced})
	require.NoError(t, err)
	assert.Empty(t, txns)
}

func TestSQLite_EntityUpsertAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e := model.Entity{
		Slug:             "farm_1",
		Name:             "Farm Entity 1",
		EntityType:       "row_crop_farm",
		State:            "LA",
		AccountingMethod: "cash",
		InvoicePrefix:    "PFP",
		FilingKeywords:   []string{"farm 1", "pfp"},
		Active:           true,
	}
	require.NoError(t, s.UpsertEntity(ctx, e))

	got, err := s.GetEntityBySlug(ctx, "farm_1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Farm Entity 1", got.Name)
	assert.Equal(t, []string{"farm 1", "pfp"}, got.FilingKeywords)
	assert.Equal(t, model.DefaultAPAccount, got.AccountsPayable())
	assert.Equal(t, model.DefaultCheckingAccount, got.Checking())

	// Upsert updates in place.
	e.Name = "Farm Entity One"
	e.APAccount = "AP - Farm One"
	require.NoError(t, s.UpsertEntity(ctx, e))

	got, err = s.GetEntityBySlug(ctx, "farm_1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Farm Entity One", got.Name)
	assert.Equal(t, "AP - Farm One", got.AccountsPayable())

	list, err := s.ListEntities(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSQLite_GetEntityBySlug_Missing(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetEntityBySlug(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_GetEntityBySlug_Inactive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertEntity(ctx, model.Entity{Slug: "old_farm", Name: "Old Farm", Active: false}))

	got, err := s.GetEntityBySlug(ctx, "old_farm")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_VendorMappings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cat, err := s.GetVendorCategory(ctx, "ACME Seed Co")
	require.NoError(t, err)
	assert.Empty(t, cat)

	require.NoError(t, s.SaveVendorMapping(ctx, "ACME Seed Co", "ACME Seed Co", "seeds_plants", "ai"))

	// Lookup is case-insensitive on the stored key.
	cat, err = s.GetVendorCategory(ctx, "  acme seed co ")
	require.NoError(t, err)
	assert.Equal(t, "seeds_plants", cat)

	// Re-save overwrites.
	require.NoError(t, s.SaveVendorMapping(ctx, "acme seed co", "ACME Seed Co", "chemicals", "manual"))
	cat, err = s.GetVendorCategory(ctx, "ACME SEED CO")
	require.NoError(t, err)
	assert.Equal(t, "chemicals", cat)
}

func TestSQLite_AppendAudit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.AppendAudit(ctx, model.AuditEntry{
		EntitySlug: "farm_1",
		Module:     "scanner",
		Action:     "file_arrived",
		Detail:     map[string]any{"filename": "a.pdf"},
		Severity:   model.SeverityInfo,
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM audit_log`).Scan(&count))
	assert.Equal(t, 1, count)
}
