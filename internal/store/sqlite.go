package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/agentt/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS documents (
	id                        TEXT PRIMARY KEY,
	original_filename         TEXT NOT NULL,
	stored_path               TEXT NOT NULL,
	document_type             TEXT NOT NULL DEFAULT 'unknown',
	ocr_text                  TEXT,
	ocr_confidence            REAL NOT NULL DEFAULT 0,
	classification_confidence REAL NOT NULL DEFAULT 0,
	extracted_data            TEXT,
	status                    TEXT NOT NULL DEFAULT 'pending',
	error_message             TEXT,
	entity_slug               TEXT,
	scanned_at                DATETIME NOT NULL DEFAULT (datetime('now')),
	processed_at              DATETIME,
	filed_at                  DATETIME
);

CREATE TABLE IF NOT EXISTS transactions (
	id               TEXT PRIMARY KEY,
	entity_slug      TEXT NOT NULL,
	document_id      TEXT,
	transaction_type TEXT NOT NULL,
	txn_date         DATETIME NOT NULL,
	vendor_customer  TEXT NOT NULL DEFAULT '',
	description      TEXT NOT NULL DEFAULT '',
	amount           REAL NOT NULL,
	category         TEXT NOT NULL DEFAULT '',
	qb_account       TEXT NOT NULL DEFAULT '',
	iif_type         TEXT NOT NULL DEFAULT '',
	qb_sync_status   TEXT NOT NULL DEFAULT 'pending',
	iif_file_path    TEXT NOT NULL DEFAULT '',
	reference_number TEXT NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS entities (
	slug              TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	entity_type       TEXT NOT NULL DEFAULT '',
	state             TEXT NOT NULL DEFAULT '',
	accounting_method TEXT NOT NULL DEFAULT '',
	ap_account        TEXT NOT NULL DEFAULT '',
	checking_account  TEXT NOT NULL DEFAULT '',
	invoice_prefix    TEXT NOT NULL DEFAULT '',
	filing_keywords   TEXT NOT NULL DEFAULT '[]',
	active            INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS vendor_mappings (
	vendor_name         TEXT PRIMARY KEY,
	vendor_display_name TEXT NOT NULL,
	category_slug       TEXT NOT NULL,
	source              TEXT NOT NULL DEFAULT 'manual',
	updated_at          DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS audit_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp   DATETIME NOT NULL,
	entity_slug TEXT,
	module      TEXT NOT NULL,
	action      TEXT NOT NULL,
	detail      TEXT,
	user        TEXT NOT NULL DEFAULT 'system',
	severity    TEXT NOT NULL DEFAULT 'info'
);

CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
CREATE INDEX IF NOT EXISTS idx_documents_entity ON documents(entity_slug);
CREATE INDEX IF NOT EXISTS idx_transactions_entity ON transactions(entity_slug);
CREATE INDEX IF NOT EXISTS idx_transactions_sync ON transactions(qb_sync_status);
CREATE INDEX IF NOT EXISTS idx_audit_log_module ON audit_log(module);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Documents ---

func (s *SQLiteStore) CreateDocument(ctx context.Context, filename, storedPath string) (*model.Document, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, original_filename, stored_path, status, scanned_at) VALUES (?, ?, ?, ?, ?)`,
		id, filename, storedPath, string(model.StatusPending), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert document")
	}

	return &model.Document{
		ID:               id,
		OriginalFilename: filename,
		StoredPath:       storedPath,
		DocumentType:     model.DocTypeUnknown,
		Status:           model.StatusPending,
		ScannedAt:        now,
	}, nil
}

const documentColumns = `id, original_filename, stored_path, document_type, ocr_text,
	ocr_confidence, classification_confidence, extracted_data, status,
	error_message, entity_slug, scanned_at, processed_at, filed_at`

func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	return scanDocument(row)
}

func (s *SQLiteStore) ListDocuments(ctx context.Context, filter DocumentFilter) ([]model.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.DocumentType != "" {
		query += ` AND document_type = ?`
		args = append(args, string(filter.DocumentType))
	}
	if filter.EntitySlug != "" {
		query += ` AND entity_slug = ?`
		args = append(args, filter.EntitySlug)
	}
	query += ` ORDER BY scanned_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list documents")
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *d)
	}
	return docs, eris.Wrap(rows.Err(), "sqlite: list documents iterate")
}

func (s *SQLiteStore) UpdateDocumentOCR(ctx context.Context, id, text string, confidence float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET ocr_text = ?, ocr_confidence = ?, status = ?, processed_at = ? WHERE id = ?`,
		text, confidence, string(model.StatusOCRComplete), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update document ocr %s", id)
	}
	return checkRowsAffected(res, "document", id)
}

func (s *SQLiteStore) UpdateDocumentClassification(ctx context.Context, id string, docType model.DocumentType, confidence float64, entitySlug string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET document_type = ?, classification_confidence = ?, entity_slug = ?, status = ? WHERE id = ?`,
		string(docType), confidence, nullString(entitySlug), string(model.StatusClassified), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update document classification %s", id)
	}
	return checkRowsAffected(res, "document", id)
}

func (s *SQLiteStore) UpdateDocumentExtraction(ctx context.Context, id string, data map[string]any) error {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal extracted data")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET extracted_data = ?, status = ? WHERE id = ?`,
		string(dataJSON), string(model.StatusExtracted), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update document extraction %s", id)
	}
	return checkRowsAffected(res, "document", id)
}

func (s *SQLiteStore) UpdateDocumentFiled(ctx context.Context, id, storedPath string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET stored_path = ?, status = ?, filed_at = ? WHERE id = ?`,
		storedPath, string(model.StatusFiled), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update document filed %s", id)
	}
	return checkRowsAffected(res, "document", id)
}

func (s *SQLiteStore) SetDocumentError(ctx context.Context, id, message string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, error_message = ? WHERE id = ?`,
		string(model.StatusError), message, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set document error %s", id)
	}
	return checkRowsAffected(res, "document", id)
}

// --- Transactions ---

func (s *SQLiteStore) CreateTransaction(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	if txn.Amount <= 0 {
		return nil, eris.New("store: transaction amount must be positive")
	}
	if txn.EntitySlug == "" {
		return nil, eris.New("store: transaction requires an entity")
	}

	out := *txn
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	if out.SyncStatus == "" {
		out.SyncStatus = model.SyncPending
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (id, entity_slug, document_id, transaction_type, txn_date,
			vendor_customer, description, amount, category, qb_account, iif_type,
			qb_sync_status, iif_file_path, reference_number, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		out.ID, out.EntitySlug, nullString(out.DocumentID), string(out.Type), out.Date,
		out.VendorCustomer, out.Description, out.Amount, out.Category, out.QBAccount,
		string(out.IIFType), string(out.SyncStatus), out.IIFFilePath, out.ReferenceNumber,
		out.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert transaction")
	}
	return &out, nil
}

const transactionColumns = `id, entity_slug, document_id, transaction_type, txn_date,
	vendor_customer, description, amount, category, qb_account, iif_type,
	qb_sync_status, iif_file_path, reference_number, created_at`

func (s *SQLiteStore) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	return scanTransaction(row)
}

func (s *SQLiteStore) ListTransactions(ctx context.Context, filter TransactionFilter) ([]model.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE 1=1`
	var args []any

	if filter.EntitySlug != "" {
		query += ` AND entity_slug = ?`
		args = append(args, filter.EntitySlug)
	}
	if filter.SyncStatus != "" {
		query += ` AND qb_sync_status = ?`
		args = append(args, string(filter.SyncStatus))
	}
	query += ` ORDER BY txn_date DESC, created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list transactions")
	}
	defer rows.Close()

	var txns []model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, *t)
	}
	return txns, eris.Wrap(rows.Err(), "sqlite: list transactions iterate")
}

func (s *SQLiteStore) MarkIIFGenerated(ctx context.Context, id, filePath string) error {
	// One statement covers both the path and the status flip; the guard on
	// qb_sync_status keeps synced transactions from being reverted.
	res, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET iif_file_path = ?, qb_sync_status = ?
		 WHERE id = ? AND qb_sync_status != ?`,
		filePath, string(model.SyncIIFGenerated), id, string(model.SyncSynced),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark iif generated %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		// Zero rows means the transaction is missing or the guard held.
		if txn, getErr := s.GetTransaction(ctx, id); getErr == nil && txn.SyncStatus == model.SyncSynced {
			return eris.Errorf("transaction already synced: %s", id)
		}
		return eris.Errorf("transaction not found: %s", id)
	}
	return nil
}

// --- Entities ---

func (s *SQLiteStore) UpsertEntity(ctx context.Context, e model.Entity) error {
	keywordsJSON, err := json.Marshal(e.FilingKeywords)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal filing keywords")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO entities (slug, name, entity_type, state, accounting_method,
			ap_account, checking_account, invoice_prefix, filing_keywords, active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(slug) DO UPDATE SET
			name = excluded.name,
			entity_type = excluded.entity_type,
			state = excluded.state,
			accounting_method = excluded.accounting_method,
			ap_account = excluded.ap_account,
			checking_account = excluded.checking_account,
			invoice_prefix = excluded.invoice_prefix,
			filing_keywords = excluded.filing_keywords,
			active = excluded.active`,
		e.Slug, e.Name, e.EntityType, e.State, e.AccountingMethod,
		e.APAccount, e.CheckingAccount, e.InvoicePrefix, string(keywordsJSON), boolToInt(e.Active),
	)
	return eris.Wrapf(err, "sqlite: upsert entity %s", e.Slug)
}

const entityColumns = `slug, name, entity_type, state, accounting_method,
	ap_account, checking_account, invoice_prefix, filing_keywords, active`

func (s *SQLiteStore) GetEntityBySlug(ctx context.Context, slug string) (*model.Entity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE slug = ? AND active = 1`, slug)

	e, err := scanEntity(row)
	if err == errNoRows {
		return nil, nil
	}
	return e, err
}

func (s *SQLiteStore) ListEntities(ctx context.Context) ([]model.Entity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE active = 1 ORDER BY slug`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list entities")
	}
	defer rows.Close()

	var entities []model.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, *e)
	}
	return entities, eris.Wrap(rows.Err(), "sqlite: list entities iterate")
}

// --- Vendor mappings ---

func (s *SQLiteStore) GetVendorCategory(ctx context.Context, vendor string) (string, error) {
	var category string
	err := s.db.QueryRowContext(ctx,
		`SELECT category_slug FROM vendor_mappings WHERE vendor_name = ?`,
		strings.ToLower(strings.TrimSpace(vendor)),
	).Scan(&category)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrap(err, "sqlite: get vendor category")
	}
	return category, nil
}

func (s *SQLiteStore) SaveVendorMapping(ctx context.Context, vendor, displayName, categorySlug, source string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO vendor_mappings (vendor_name, vendor_display_name, category_slug, source, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(vendor_name) DO UPDATE SET
			category_slug = excluded.category_slug,
			source = excluded.source,
			updated_at = excluded.updated_at`,
		strings.ToLower(strings.TrimSpace(vendor)), strings.TrimSpace(displayName),
		categorySlug, source, time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: save vendor mapping")
}

// --- Audit ---

func (s *SQLiteStore) AppendAudit(ctx context.Context, entry model.AuditEntry) error {
	detailJSON, err := json.Marshal(entry.Detail)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal audit detail")
	}

	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	user := entry.User
	if user == "" {
		user = "system"
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_log (timestamp, entity_slug, module, action, detail, user, severity)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ts, nullString(entry.EntitySlug), entry.Module, entry.Action,
		string(detailJSON), user, string(entry.Severity),
	)
	return eris.Wrap(err, "sqlite: append audit")
}

// --- helpers ---

var errNoRows = sql.ErrNoRows

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scannable interface {
	Scan(dest ...any) error
}

func scanDocument(row scannable) (*model.Document, error) {
	var d model.Document
	var docType, status string
	var ocrText, errMsg, entitySlug, extractedJSON sql.NullString
	var processedAt, filedAt sql.NullTime

	err := row.Scan(&d.ID, &d.OriginalFilename, &d.StoredPath, &docType, &ocrText,
		&d.OCRConfidence, &d.ClassificationConfidence, &extractedJSON, &status,
		&errMsg, &entitySlug, &d.ScannedAt, &processedAt, &filedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("document not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan document")
	}

	d.DocumentType = model.DocumentType(docType)
	d.Status = model.DocumentStatus(status)
	d.OCRText = ocrText.String
	d.ErrorMessage = errMsg.String
	d.EntitySlug = entitySlug.String
	if extractedJSON.Valid && extractedJSON.String != "" {
		if err := json.Unmarshal([]byte(extractedJSON.String), &d.ExtractedData); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal extracted data")
		}
	}
	if processedAt.Valid {
		t := processedAt.Time
		d.ProcessedAt = &t
	}
	if filedAt.Valid {
		t := filedAt.Time
		d.FiledAt = &t
	}
	return &d, nil
}

func scanTransaction(row scannable) (*model.Transaction, error) {
	var t model.Transaction
	var txnType, iifType, syncStatus string
	var docID sql.NullString

	err := row.Scan(&t.ID, &t.EntitySlug, &docID, &txnType, &t.Date,
		&t.VendorCustomer, &t.Description, &t.Amount, &t.Category, &t.QBAccount,
		&iifType, &syncStatus, &t.IIFFilePath, &t.ReferenceNumber, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("transaction not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan transaction")
	}

	t.DocumentID = docID.String
	t.Type = model.TransactionType(txnType)
	t.IIFType = model.IIFType(iifType)
	t.SyncStatus = model.SyncStatus(syncStatus)
	return &t, nil
}

func scanEntity(row scannable) (*model.Entity, error) {
	var e model.Entity
	var keywordsJSON string
	var active int

	err := row.Scan(&e.Slug, &e.Name, &e.EntityType, &e.State, &e.AccountingMethod,
		&e.APAccount, &e.CheckingAccount, &e.InvoicePrefix, &keywordsJSON, &active)
	if err == sql.ErrNoRows {
		return nil, errNoRows
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan entity")
	}

	if err := json.Unmarshal([]byte(keywordsJSON), &e.FilingKeywords); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal filing keywords")
	}
	e.Active = active == 1
	return &e, nil
}
