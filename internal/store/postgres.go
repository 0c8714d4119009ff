package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/agentt/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it
// for unit tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, maxConns, minConns int32) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	if maxConns <= 0 {
		maxConns = 10
	}
	if minConns <= 0 {
		minConns = 2
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS documents (
	id                        TEXT PRIMARY KEY,
	original_filename         TEXT NOT NULL,
	stored_path               TEXT NOT NULL,
	document_type             TEXT NOT NULL DEFAULT 'unknown',
	ocr_text                  TEXT,
	ocr_confidence            DOUBLE PRECISION NOT NULL DEFAULT 0,
	classification_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	extracted_data            JSONB,
	status                    TEXT NOT NULL DEFAULT 'pending',
	error_message             TEXT,
	entity_slug               TEXT,
	scanned_at                TIMESTAMPTZ NOT NULL DEFAULT now(),
	processed_at              TIMESTAMPTZ,
	filed_at                  TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS transactions (
	id               TEXT PRIMARY KEY,
	entity_slug      TEXT NOT NULL,
	document_id      TEXT,
	transaction_type TEXT NOT NULL,
	txn_date         TIMESTAMPTZ NOT NULL,
	vendor_customer  TEXT NOT NULL DEFAULT '',
	description      TEXT NOT NULL DEFAULT '',
	amount           DOUBLE PRECISION NOT NULL,
	category         TEXT NOT NULL DEFAULT '',
	qb_account       TEXT NOT NULL DEFAULT '',
	iif_type         TEXT NOT NULL DEFAULT '',
	qb_sync_status   TEXT NOT NULL DEFAULT 'pending',
	iif_file_path    TEXT NOT NULL DEFAULT '',
	reference_number TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
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
	filing_keywords   JSONB NOT NULL DEFAULT '[]',
	active            BOOLEAN NOT NULL DEFAULT true
);

CREATE TABLE IF NOT EXISTS vendor_mappings (
	vendor_name         TEXT PRIMARY KEY,
	vendor_display_name TEXT NOT NULL,
	category_slug       TEXT NOT NULL,
	source              TEXT NOT NULL DEFAULT 'manual',
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS audit_log (
	id          BIGSERIAL PRIMARY KEY,
	timestamp   TIMESTAMPTZ NOT NULL,
	entity_slug TEXT,
	module      TEXT NOT NULL,
	action      TEXT NOT NULL,
	detail      JSONB,
	"user"      TEXT NOT NULL DEFAULT 'system',
	severity    TEXT NOT NULL DEFAULT 'info'
);

CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
CREATE INDEX IF NOT EXISTS idx_documents_entity ON documents(entity_slug);
CREATE INDEX IF NOT EXISTS idx_transactions_entity ON transactions(entity_slug);
CREATE INDEX IF NOT EXISTS idx_transactions_sync ON transactions(qb_sync_status);
CREATE INDEX IF NOT EXISTS idx_audit_log_module ON audit_log(module);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Documents ---

func (s *PostgresStore) CreateDocument(ctx context.Context, filename, storedPath string) (*model.Document, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (id, original_filename, stored_path, status, scanned_at) VALUES ($1, $2, $3, $4, $5)`,
		id, filename, storedPath, string(model.StatusPending), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert document")
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

func (s *PostgresStore) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)

	d, err := scanPgDocument(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get document %s", id)
	}
	return d, nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context, filter DocumentFilter) ([]model.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return placeholder(len(args))
	}

	if filter.Status != "" {
		query += ` AND status = ` + arg(string(filter.Status))
	}
	if filter.DocumentType != "" {
		query += ` AND document_type = ` + arg(string(filter.DocumentType))
	}
	if filter.EntitySlug != "" {
		query += ` AND entity_slug = ` + arg(filter.EntitySlug)
	}
	query += ` ORDER BY scanned_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ` + arg(limit)
	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list documents")
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		d, err := scanPgDocument(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: list documents scan")
		}
		docs = append(docs, *d)
	}
	return docs, eris.Wrap(rows.Err(), "postgres: list documents iterate")
}

func (s *PostgresStore) UpdateDocumentOCR(ctx context.Context, id, text string, confidence float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET ocr_text = $1, ocr_confidence = $2, status = $3, processed_at = $4 WHERE id = $5`,
		text, confidence, string(model.StatusOCRComplete), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update document ocr %s", id)
	}
	return checkPgRowsAffected(tag, "document", id)
}

func (s *PostgresStore) UpdateDocumentClassification(ctx context.Context, id string, docType model.DocumentType, confidence float64, entitySlug string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET document_type = $1, classification_confidence = $2, entity_slug = $3, status = $4 WHERE id = $5`,
		string(docType), confidence, nullString(entitySlug), string(model.StatusClassified), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update document classification %s", id)
	}
	return checkPgRowsAffected(tag, "document", id)
}

func (s *PostgresStore) UpdateDocumentExtraction(ctx context.Context, id string, data map[string]any) error {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal extracted data")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET extracted_data = $1, status = $2 WHERE id = $3`,
		string(dataJSON), string(model.StatusExtracted), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update document extraction %s", id)
	}
	return checkPgRowsAffected(tag, "document", id)
}

func (s *PostgresStore) UpdateDocumentFiled(ctx context.Context, id, storedPath string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET stored_path = $1, status = $2, filed_at = $3 WHERE id = $4`,
		storedPath, string(model.StatusFiled), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update document filed %s", id)
	}
	return checkPgRowsAffected(tag, "document", id)
}

func (s *PostgresStore) SetDocumentError(ctx context.Context, id, message string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET status = $1, error_message = $2 WHERE id = $3`,
		string(model.StatusError), message, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set document error %s", id)
	}
	return checkPgRowsAffected(tag, "document", id)
}

// --- Transactions ---

func (s *PostgresStore) CreateTransaction(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
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

	_, err := s.pool.Exec(ctx,
		`INSERT INTO transactions (id, entity_slug, document_id, transaction_type, txn_date,
			vendor_customer, description, amount, category, qb_account, iif_type,
			qb_sync_status, iif_file_path, reference_number, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		out.ID, out.EntitySlug, nullString(out.DocumentID), string(out.Type), out.Date,
		out.VendorCustomer, out.Description, out.Amount, out.Category, out.QBAccount,
		string(out.IIFType), string(out.SyncStatus), out.IIFFilePath, out.ReferenceNumber,
		out.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert transaction")
	}
	return &out, nil
}

func (s *PostgresStore) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)

	t, err := scanPgTransaction(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get transaction %s", id)
	}
	return t, nil
}

func (s *PostgresStore) ListTransactions(ctx context.Context, filter TransactionFilter) ([]model.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return placeholder(len(args))
	}

	if filter.EntitySlug != "" {
		query += ` AND entity_slug = ` + arg(filter.EntitySlug)
	}
	if filter.SyncStatus != "" {
		query += ` AND qb_sync_status = ` + arg(string(filter.SyncStatus))
	}
	query += ` ORDER BY txn_date DESC, created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ` + arg(limit)
	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list transactions")
	}
	defer rows.Close()

	var txns []model.Transaction
	for rows.Next() {
		t, err := scanPgTransaction(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: list transactions scan")
		}
		txns = append(txns, *t)
	}
	return txns, eris.Wrap(rows.Err(), "postgres: list transactions iterate")
}

func (s *PostgresStore) MarkIIFGenerated(ctx context.Context, id, filePath string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE transactions SET iif_file_path = $1, qb_sync_status = $2
		 WHERE id = $3 AND qb_sync_status != $4`,
		filePath, string(model.SyncIIFGenerated), id, string(model.SyncSynced),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark iif generated %s", id)
	}
	if tag.RowsAffected() == 0 {
		// Zero rows means the transaction is missing or the guard held.
		if txn, getErr := s.GetTransaction(ctx, id); getErr == nil && txn.SyncStatus == model.SyncSynced {
			return eris.Errorf("transaction already synced: %s", id)
		}
		return eris.Errorf("transaction not found: %s", id)
	}
	return nil
}

// --- Entities ---

func (s *PostgresStore) UpsertEntity(ctx context.Context, e model.Entity) error {
	keywordsJSON, err := json.Marshal(e.FilingKeywords)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal filing keywords")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO entities (slug, name, entity_type, state, accounting_method,
			ap_account, checking_account, invoice_prefix, filing_keywords, active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
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
		e.APAccount, e.CheckingAccount, e.InvoicePrefix, string(keywordsJSON), e.Active,
	)
	return eris.Wrapf(err, "postgres: upsert entity %s", e.Slug)
}

func (s *PostgresStore) GetEntityBySlug(ctx context.Context, slug string) (*model.Entity, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE slug = $1 AND active = true`, slug)

	e, err := scanPgEntity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get entity %s", slug)
	}
	return e, nil
}

func (s *PostgresStore) ListEntities(ctx context.Context) ([]model.Entity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE active = true ORDER BY slug`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list entities")
	}
	defer rows.Close()

	var entities []model.Entity
	for rows.Next() {
		e, err := scanPgEntity(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: list entities scan")
		}
		entities = append(entities, *e)
	}
	return entities, eris.Wrap(rows.Err(), "postgres: list entities iterate")
}

// --- Vendor mappings ---

func (s *PostgresStore) GetVendorCategory(ctx context.Context, vendor string) (string, error) {
	var category string
	err := s.pool.QueryRow(ctx,
		`SELECT category_slug FROM vendor_mappings WHERE vendor_name = $1`,
		strings.ToLower(strings.TrimSpace(vendor)),
	).Scan(&category)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrap(err, "postgres: get vendor category")
	}
	return category, nil
}

func (s *PostgresStore) SaveVendorMapping(ctx context.Context, vendor, displayName, categorySlug, source string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO vendor_mappings (vendor_name, vendor_display_name, category_slug, source, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT(vendor_name) DO UPDATE SET
			category_slug = excluded.category_slug,
			source = excluded.source,
			updated_at = excluded.updated_at`,
		strings.ToLower(strings.TrimSpace(vendor)), strings.TrimSpace(displayName),
		categorySlug, source, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: save vendor mapping")
}

// --- Audit ---

func (s *PostgresStore) AppendAudit(ctx context.Context, entry model.AuditEntry) error {
	detailJSON, err := json.Marshal(entry.Detail)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal audit detail")
	}

	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	user := entry.User
	if user == "" {
		user = "system"
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO audit_log (timestamp, entity_slug, module, action, detail, "user", severity)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ts, nullString(entry.EntitySlug), entry.Module, entry.Action,
		string(detailJSON), user, string(entry.Severity),
	)
	return eris.Wrap(err, "postgres: append audit")
}

// --- helpers ---

func placeholder(n int) string {
	const digits = "0123456789"
	if n < 10 {
		return "$" + digits[n:n+1]
	}
	return "$" + digits[n/10:n/10+1] + digits[n%10:n%10+1]
}

func checkPgRowsAffected(tag pgconn.CommandTag, entity, id string) error {
	if tag.RowsAffected() == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func scanPgDocument(row pgx.Row) (*model.Document, error) {
	var d model.Document
	var docType, status string
	var ocrText, errMsg, entitySlug, extractedJSON *string
	var processedAt, filedAt *time.Time

	err := row.Scan(&d.ID, &d.OriginalFilename, &d.StoredPath, &docType, &ocrText,
		&d.OCRConfidence, &d.ClassificationConfidence, &extractedJSON, &status,
		&errMsg, &entitySlug, &d.ScannedAt, &processedAt, &filedAt)
	if err != nil {
		return nil, err
	}

	d.DocumentType = model.DocumentType(docType)
	d.Status = model.DocumentStatus(status)
	if ocrText != nil {
		d.OCRText = *ocrText
	}
	if errMsg != nil {
		d.ErrorMessage = *errMsg
	}
	if entitySlug != nil {
		d.EntitySlug = *entitySlug
	}
	if extractedJSON != nil && *extractedJSON != "" {
		if err := json.Unmarshal([]byte(*extractedJSON), &d.ExtractedData); err != nil {
			return nil, eris.Wrap(err, "unmarshal extracted data")
		}
	}
	d.ProcessedAt = processedAt
	d.FiledAt = filedAt
	return &d, nil
}

func scanPgTransaction(row pgx.Row) (*model.Transaction, error) {
	var t model.Transaction
	var txnType, iifType, syncStatus string
	var docID *string

	err := row.Scan(&t.ID, &t.EntitySlug, &docID, &txnType, &t.Date,
		&t.VendorCustomer, &t.Description, &t.Amount, &t.Category, &t.QBAccount,
		&iifType, &syncStatus, &t.IIFFilePath, &t.ReferenceNumber, &t.CreatedAt)
	if err != nil {
		return nil, err
	}

	if docID != nil {
		t.DocumentID = *docID
	}
	t.Type = model.TransactionType(txnType)
	t.IIFType = model.IIFType(iifType)
	t.SyncStatus = model.SyncStatus(syncStatus)
	return &t, nil
}

func scanPgEntity(row pgx.Row) (*model.Entity, error) {
	var e model.Entity
	var keywordsJSON []byte

	err := row.Scan(&e.Slug, &e.Name, &e.EntityType, &e.State, &e.AccountingMethod,
		&e.APAccount, &e.CheckingAccount, &e.InvoicePrefix, &keywordsJSON, &e.Active)
	if err != nil {
		return nil, err
	}

	if len(keywordsJSON) > 0 {
		if err := json.Unmarshal(keywordsJSON, &e.FilingKeywords); err != nil {
			return nil, eris.Wrap(err, "unmarshal filing keywords")
		}
	}
	return &e, nil
}
