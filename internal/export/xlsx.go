// Package export writes transaction and document registers as XLSX
// workbooks for the bookkeeper.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/agentt/internal/model"
	"github.com/sells-group/agentt/internal/store"
)

// Exporter writes XLSX reports under a fixed output directory.
type Exporter struct {
	store  store.Store
	outDir string
	now    func() time.Time
}

// New creates an exporter writing into outDir.
func New(s store.Store, outDir string) *Exporter {
	return &Exporter{store: s, outDir: outDir, now: time.Now}
}

var transactionHeader = []string{
	"Date", "Entity", "Type", "Vendor/Customer", "Description",
	"Amount", "Category", "QB Account", "Sync Status", "Reference",
}

// Transactions exports transactions matching the filter to one workbook and
// returns the written path.
func (e *Exporter) Transactions(ctx context.Context, filter store.TransactionFilter) (string, error) {
	txns, err := e.store.ListTransactions(ctx, filter)
	if err != nil {
		return "", eris.Wrap(err, "export: list transactions")
	}

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Transactions")
	if err != nil {
		return "", eris.Wrap(err, "export: add sheet")
	}

	addHeaderRow(sheet, transactionHeader)
	for _, txn := range txns {
		row := sheet.AddRow()
		if txn.Date.IsZero() {
			row.AddCell().SetString("")
		} else {
			row.AddCell().SetString(txn.Date.Format("2006-01-02"))
		}
		row.AddCell().SetString(txn.EntitySlug)
		row.AddCell().SetString(string(txn.Type))
		row.AddCell().SetString(txn.VendorCustomer)
		row.AddCell().SetString(txn.Description)
		row.AddCell().SetFloatWithFormat(txn.Amount, "0.00")
		row.AddCell().SetString(txn.Category)
		row.AddCell().SetString(txn.QBAccount)
		row.AddCell().SetString(string(txn.SyncStatus))
		row.AddCell().SetString(txn.ReferenceNumber)
	}

	path, err := e.save(f, "transactions")
	if err != nil {
		return "", err
	}
	zap.L().Info("export: transactions written",
		zap.Int("count", len(txns)),
		zap.String("file", path),
	)
	return path, nil
}

var documentHeader = []string{
	"Scanned", "Filename", "Type", "Entity", "Status",
	"OCR Confidence", "Classification Confidence", "Filed Path", "Error",
}

// Documents exports documents matching the filter to one workbook and
// returns the written path.
func (e *Exporter) Documents(ctx context.Context, filter store.DocumentFilter) (string, error) {
	docs, err := e.store.ListDocuments(ctx, filter)
	if err != nil {
		return "", eris.Wrap(err, "export: list documents")
	}

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Documents")
	if err != nil {
		return "", eris.Wrap(err, "export: add sheet")
	}

	addHeaderRow(sheet, documentHeader)
	for _, doc := range docs {
		row := sheet.AddRow()
		row.AddCell().SetString(doc.ScannedAt.Format("2006-01-02 15:04"))
		row.AddCell().SetString(doc.OriginalFilename)
		row.AddCell().SetString(string(doc.DocumentType))
		row.AddCell().SetString(doc.EntitySlug)
		row.AddCell().SetString(string(doc.Status))
		row.AddCell().SetFloatWithFormat(doc.OCRConfidence, "0.00")
		row.AddCell().SetFloatWithFormat(doc.ClassificationConfidence, "0.00")
		if doc.Status == model.StatusFiled {
			row.AddCell().SetString(doc.StoredPath)
		} else {
			row.AddCell().SetString("")
		}
		row.AddCell().SetString(doc.ErrorMessage)
	}

	path, err := e.save(f, "documents")
	if err != nil {
		return "", err
	}
	zap.L().Info("export: documents written",
		zap.Int("count", len(docs)),
		zap.String("file", path),
	)
	return path, nil
}

func addHeaderRow(sheet *xlsx.Sheet, headers []string) {
	row := sheet.AddRow()
	for _, h := range headers {
		row.AddCell().SetString(h)
	}
}

func (e *Exporter) save(f *xlsx.File, kind string) (string, error) {
	if err := os.MkdirAll(e.outDir, 0o755); err != nil {
		return "", eris.Wrapf(err, "export: create dir %s", e.outDir)
	}
	path := filepath.Join(e.outDir, fmt.Sprintf("%s_%s.xlsx", kind, e.now().Format("20060102_150405")))
	if err := f.Save(path); err != nil {
		return "", eris.Wrapf(err, "export: save %s", path)
	}
	return path, nil
}
