package model

import "time"

// DocumentStatus tracks a document through the scan pipeline. Statuses are
// monotonic except for StatusError, which is terminal and reachable from
// any stage.
type DocumentStatus string

const (
	StatusPending     DocumentStatus = "pending"
	StatusOCRComplete DocumentStatus = "ocr_complete"
	StatusClassified  DocumentStatus = "classified"
	StatusExtracted   DocumentStatus = "extracted"
	StatusFiled       DocumentStatus = "filed"
	StatusError       DocumentStatus = "error"
)

// DocumentType is the closed vocabulary of document categories the
// classifier may assign.
type DocumentType string

const (
	DocTypeInvoice        DocumentType = "invoice"
	DocTypeReceipt        DocumentType = "receipt"
	DocTypeBankStatement  DocumentType = "bank_statement"
	DocTypeLease          DocumentType = "lease"
	DocTypeContract       DocumentType = "contract"
	DocTypeFSAForm        DocumentType = "fsa_form"
	DocTypeTaxDocument    DocumentType = "tax_document"
	DocTypeInsurance      DocumentType = "insurance"
	DocTypeUtilityBill    DocumentType = "utility_bill"
	DocTypeCorrespondence DocumentType = "correspondence"
	DocTypeUnknown        DocumentType = "unknown"
)

// AllDocumentTypes returns the full document type vocabulary.
func AllDocumentTypes() []DocumentType {
	return []DocumentType{
		DocTypeInvoice,
		DocTypeReceipt,
		DocTypeBankStatement,
		DocTypeLease,
		DocTypeContract,
		DocTypeFSAForm,
		DocTypeTaxDocument,
		DocTypeInsurance,
		DocTypeUtilityBill,
		DocTypeCorrespondence,
		DocTypeUnknown,
	}
}

// ParseDocumentType maps a string to a DocumentType. Anything outside the
// vocabulary degrades to DocTypeUnknown rather than failing.
func ParseDocumentType(s string) DocumentType {
	dt := DocumentType(s)
	for _, t := range AllDocumentTypes() {
		if t == dt {
			return dt
		}
	}
	return DocTypeUnknown
}

// Document is one scanned artifact moving through the pipeline.
type Document struct {
	ID                       string         `json:"id"`
	OriginalFilename         string         `json:"original_filename"`
	StoredPath               string         `json:"stored_path"`
	DocumentType             DocumentType   `json:"document_type"`
	OCRText                  string         `json:"ocr_text,omitempty"`
	OCRConfidence            float64        `json:"ocr_confidence"`
	ClassificationConfidence float64        `json:"classification_confidence"`
	ExtractedData            map[string]any `json:"extracted_data,omitempty"`
	Status                   DocumentStatus `json:"status"`
	ErrorMessage             string         `json:"error_message,omitempty"`
	EntitySlug               string         `json:"entity_slug,omitempty"`
	ScannedAt                time.Time      `json:"scanned_at"`
	ProcessedAt              *time.Time     `json:"processed_at,omitempty"`
	FiledAt                  *time.Time     `json:"filed_at,omitempty"`
}
