package model

import "time"

// TransactionType distinguishes income from expense entries.
type TransactionType string

const (
	TransactionIncome  TransactionType = "income"
	TransactionExpense TransactionType = "expense"
)

// IIFType is the QuickBooks transaction subtype used in IIF output.
type IIFType string

const (
	IIFBill    IIFType = "bill"
	IIFCheck   IIFType = "check"
	IIFDeposit IIFType = "deposit"
)

// DefaultIIFType returns the subtype used when a transaction has none:
// income becomes a deposit, everything else a bill.
func DefaultIIFType(tt TransactionType) IIFType {
	if tt == TransactionIncome {
		return IIFDeposit
	}
	return IIFBill
}

// SyncStatus tracks a transaction's QuickBooks export state.
type SyncStatus string

const (
	SyncPending      SyncStatus = "pending"
	SyncIIFGenerated SyncStatus = "iif_generated"
	SyncSynced       SyncStatus = "synced"
	SyncError        SyncStatus = "error"
)

// Transaction is a financial entry derived from a document or entered
// directly. Amount is always stored positive; direction is implied by Type.
type Transaction struct {
	ID              string          `json:"id"`
	EntitySlug      string          `json:"entity_slug"`
	DocumentID      string          `json:"document_id,omitempty"`
	Type            TransactionType `json:"transaction_type"`
	Date            time.Time       `json:"date"`
	VendorCustomer  string          `json:"vendor_customer"`
	Description     string          `json:"description,omitempty"`
	Amount          float64         `json:"amount"`
	Category        string          `json:"category,omitempty"`
	QBAccount       string          `json:"qb_account,omitempty"`
	IIFType         IIFType         `json:"iif_type,omitempty"`
	SyncStatus      SyncStatus      `json:"qb_sync_status"`
	IIFFilePath     string          `json:"iif_file_path,omitempty"`
	ReferenceNumber string          `json:"reference_number,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}
