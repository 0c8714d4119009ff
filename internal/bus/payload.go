package bus

import (
	"github.com/sells-group/agentt/internal/model"
)

// FileArrived is emitted by the watcher when a qualifying file lands in
// the drop folder.
type FileArrived struct {
	FilePath string
	Filename string
}

// OCRComplete carries the OCR result into classification.
type OCRComplete struct {
	DocID      string
	FilePath   string
	Filename   string
	Text       string
	Confidence float64
}

// DocumentClassified carries the classification forward into extraction.
// EntitySlug is empty when assignment was ambiguous.
type DocumentClassified struct {
	DocID        string
	FilePath     string
	Filename     string
	Text         string
	DocumentType model.DocumentType
	EntitySlug   string
	Summary      string
}

// DataExtracted carries extracted fields forward into filing.
type DataExtracted struct {
	DocID         string
	FilePath      string
	Filename      string
	DocumentType  model.DocumentType
	EntitySlug    string
	ExtractedData map[string]any
}

// DocumentFiled announces a document's archival destination.
type DocumentFiled struct {
	DocID        string
	Filename     string
	DocumentType model.DocumentType
	EntitySlug   string
	FiledPath    string
}

// ApprovalDecided is emitted by the (external) approval workflow. The IIF
// generator reacts only to Decision == "approved" with a TransactionID.
type ApprovalDecided struct {
	ApprovalID    string
	Decision      string
	EntitySlug    string
	TransactionID string
}

// TransactionCreated announces a new transaction derived from a document.
type TransactionCreated struct {
	TransactionID string
	EntitySlug    string
}

// IIFGenerated announces a written IIF file.
type IIFGenerated struct {
	TransactionID string
	FilePath      string
	IIFType       model.IIFType
}

// ErrorPayload describes a handler failure, dispatched as EventError.
type ErrorPayload struct {
	OriginalEvent string
	Handler       string
	Error         string
}
