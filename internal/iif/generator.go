package iif

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/agentt/internal/audit"
	"github.com/sells-group/agentt/internal/bus"
	"github.com/sells-group/agentt/internal/model"
	"github.com/sells-group/agentt/internal/pipeline"
	"github.com/sells-group/agentt/internal/store"
)

// Generator writes IIF files for approved transactions. It subscribes to
// approval decisions and also serves the CLI's generate/batch/preview
// commands directly.
type Generator struct {
	pipeline.BaseModule

	store     store.Store
	audit     *audit.Logger
	outputDir string
	emitter   bus.Emitter

	// now is swappable for tests.
	now func() time.Time
}

// NewGenerator creates the IIF generation module.
func NewGenerator(s store.Store, auditLog *audit.Logger, outputDir string) *Generator {
	return &Generator{
		store:     s,
		audit:     auditLog,
		outputDir: outputDir,
		now:       time.Now,
	}
}

func (g *Generator) Name() string { return "quickbooks" }

func (g *Generator) Setup(b *bus.Bus) {
	g.emitter = b
	b.Subscribe(bus.EventApprovalDecided, "quickbooks.handle_approval_decided", g.handleApprovalDecided)
}

// handleApprovalDecided generates an IIF file when a transaction's approval
// comes back approved. Other decisions and approvals without a transaction
// are ignored. A generation failure is logged, not propagated, so the
// decision itself always stands.
func (g *Generator) handleApprovalDecided(ev bus.Event) error {
	payload, ok := ev.Data.(bus.ApprovalDecided)
	if !ok {
		return eris.Errorf("iif: unexpected payload %T", ev.Data)
	}
	if payload.Decision != "approved" || payload.TransactionID == "" {
		return nil
	}

	if _, err := g.Generate(context.Background(), payload.TransactionID); err != nil {
		zap.L().Error("iif: generation after approval failed",
			zap.String("transaction_id", payload.TransactionID),
			zap.Error(err),
		)
	}
	return nil
}

// Generate writes a single-transaction IIF file and marks the transaction.
// It returns the written file path.
func (g *Generator) Generate(ctx context.Context, transactionID string) (string, error) {
	txn, entity, err := g.load(ctx, transactionID)
	if err != nil {
		return "", err
	}

	body, err := formatBody(txn, entity)
	if err != nil {
		return "", err
	}
	content := Header() + crlf + body + crlf

	txnDate := txn.Date
	if txnDate.IsZero() {
		txnDate = g.now()
	}
	filename := fmt.Sprintf("%s_%s_%s_%s.iif",
		entity.Slug, EffectiveIIFType(txn), txnDate.Format("20060102"), txn.ID)

	filePath, err := g.write(entity.Slug, txnDate, filename, content)
	if err != nil {
		return "", err
	}

	if err := g.store.MarkIIFGenerated(ctx, txn.ID, filePath); err != nil {
		return "", eris.Wrap(err, "iif: mark generated")
	}

	g.audit.Info(ctx, "quickbooks", "iif_generated", entity.Slug, map[string]any{
		"transaction_id": txn.ID,
		"file_path":      filePath,
		"iif_type":       string(EffectiveIIFType(txn)),
	})
	if g.emitter != nil {
		g.emitter.Emit(bus.Event{
			Name: bus.EventIIFGenerated,
			Data: bus.IIFGenerated{
				TransactionID: txn.ID,
				FilePath:      filePath,
				IIFType:       EffectiveIIFType(txn),
			},
		})
	}

	zap.L().Info("iif: generated", zap.String("file", filePath))
	return filePath, nil
}

// GenerateBatch writes one IIF file containing every listed transaction.
// All transactions must belong to the same entity; validation runs before
// anything touches disk.
func (g *Generator) GenerateBatch(ctx context.Context, transactionIDs []string) (string, error) {
	if len(transactionIDs) == 0 {
		return "", eris.New("iif: no transaction ids provided")
	}

	var entity *model.Entity
	txns := make([]*model.Transaction, 0, len(transactionIDs))
	for _, id := range transactionIDs {
		txn, txnEntity, err := g.load(ctx, id)
		if err != nil {
			return "", err
		}
		if entity == nil {
			entity = txnEntity
		} else if txnEntity.Slug != entity.Slug {
			return "", eris.New("iif: all transactions must belong to the same entity")
		}
		txns = append(txns, txn)
	}

	lines := []string{Header()}
	for _, txn := range txns {
		body, err := formatBody(txn, entity)
		if err != nil {
			return "", err
		}
		lines = append(lines, body)
	}
	content := strings.Join(lines, crlf) + crlf

	batchDate := g.now()
	filename := fmt.Sprintf("%s_batch_%s.iif", entity.Slug, batchDate.Format("20060102"))

	filePath, err := g.write(entity.Slug, batchDate, filename, content)
	if err != nil {
		return "", err
	}

	for _, txn := range txns {
		if err := g.store.MarkIIFGenerated(ctx, txn.ID, filePath); err != nil {
			return "", eris.Wrapf(err, "iif: mark generated %s", txn.ID)
		}
	}

	g.audit.Info(ctx, "quickbooks", "iif_batch_generated", entity.Slug, map[string]any{
		"transaction_count": len(txns),
		"file_path":         filePath,
	})
	zap.L().Info("iif: batch generated",
		zap.Int("transactions", len(txns)),
		zap.String("file", filePath),
	)
	return filePath, nil
}

// Preview renders the IIF content for a transaction without writing to disk
// or mutating any state.
func (g *Generator) Preview(ctx context.Context, transactionID string) (string, error) {
	txn, entity, err := g.load(ctx, transactionID)
	if err != nil {
		return "", err
	}
	body, err := formatBody(txn, entity)
	if err != nil {
		return "", err
	}
	return Header() + crlf + body + crlf, nil
}

func (g *Generator) load(ctx context.Context, transactionID string) (*model.Transaction, *model.Entity, error) {
	txn, err := g.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "iif: load transaction %s", transactionID)
	}
	entity, err := g.store.GetEntityBySlug(ctx, txn.EntitySlug)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "iif: load entity %s", txn.EntitySlug)
	}
	if entity == nil {
		return nil, nil, eris.Errorf("iif: entity not found for transaction %s", transactionID)
	}
	return txn, entity, nil
}

// write puts content at {outputDir}/{entity}/{YYYY-MM}/{filename}, creating
// directories as needed. Content is written verbatim: UTF-8, no BOM, CRLF
// endings already embedded.
func (g *Generator) write(entitySlug string, date time.Time, filename, content string) (string, error) {
	dir := filepath.Join(g.outputDir, entitySlug, date.Format("2006-01"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "iif: create dir %s", dir)
	}
	filePath := filepath.Join(dir, filename)
	if err := os.WriteFile(filePath, []byte(content), 0o644); err != nil {
		return "", eris.Wrapf(err, "iif: write %s", filePath)
	}
	return filePath, nil
}
