package store

import (
	"context"

	"github.com/sells-group/agentt/internal/model"
)

// DocumentFilter specifies criteria for listing documents.
type DocumentFilter struct {
	Status       model.DocumentStatus `json:"status,omitempty"`
	DocumentType model.DocumentType   `json:"document_type,omitempty"`
	EntitySlug   string               `json:"entity_slug,omitempty"`
	Limit        int                  `json:"limit,omitempty"`
	Offset       int                  `json:"offset,omitempty"`
}

// TransactionFilter specifies criteria for listing transactions.
type TransactionFilter struct {
	EntitySlug string           `json:"entity_slug,omitempty"`
	SyncStatus model.SyncStatus `json:"sync_status,omitempty"`
	Limit      int              `json:"limit,omitempty"`
	Offset     int              `json:"offset,omitempty"`
}

// Store defines the persistence interface for documents, transactions,
// entities, vendor mappings, and the audit trail. Every update method is a
// single statement so each "read record, mutate, persist" step stays atomic
// per record.
type Store interface {
	// Documents
	CreateDocument(ctx context.Context, filename, storedPath string) (*model.Document, error)
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	ListDocuments(ctx context.Context, filter DocumentFilter) ([]model.Document, error)
	UpdateDocumentOCR(ctx context.Context, id, text string, confidence float64) error
	UpdateDocumentClassification(ctx context.Context, id string, docType model.DocumentType, confidence float64, entitySlug string) error
	UpdateDocumentExtraction(ctx context.Context, id string, data map[string]any) error
	UpdateDocumentFiled(ctx context.Context, id, storedPath string) error
	SetDocumentError(ctx context.Context, id, message string) error

	// Transactions
	CreateTransaction(ctx context.Context, txn *model.Transaction) (*model.Transaction, error)
	GetTransaction(ctx context.Context, id string) (*model.Transaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]model.Transaction, error)
	// MarkIIFGenerated records the generated file path and flips the sync
	// status in one statement. Transactions already synced are never
	// reverted; marking one is an error.
	MarkIIFGenerated(ctx context.Context, id, filePath string) error

	// Entities
	UpsertEntity(ctx context.Context, e model.Entity) error
	// GetEntityBySlug returns the active entity with the given slug, or
	// (nil, nil) when none exists.
	GetEntityBySlug(ctx context.Context, slug string) (*model.Entity, error)
	ListEntities(ctx context.Context) ([]model.Entity, error)

	// Vendor mappings
	// GetVendorCategory returns the learned category slug for a vendor
	// (matched case-insensitively), or "" when no mapping exists.
	GetVendorCategory(ctx context.Context, vendor string) (string, error)
	SaveVendorMapping(ctx context.Context, vendor, displayName, categorySlug, source string) error

	// Audit
	AppendAudit(ctx context.Context, entry model.AuditEntry) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
