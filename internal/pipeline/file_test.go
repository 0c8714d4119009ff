package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/agentt/internal/bus"
	"github.com/sells-group/agentt/internal/model"
)

func newTestFiler(t *testing.T) (*Filer, *bus.Bus, string) {
	t.Helper()
	s := newPipelineStore(t)
	root := t.TempDir()
	f := NewFiler(s, newTestAudit(s), root)
	f.now = func() time.Time { return time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC) }
	b := bus.New()
	f.Setup(b)
	return f, b, root
}

func writeSource(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 content"), 0o644))
	return path
}

func emitExtracted(b *bus.Bus, docID, filePath, filename, entitySlug string, docType model.DocumentType) {
	b.Emit(bus.Event{
		Name: bus.EventDataExtracted,
		Data: bus.DataExtracted{
			DocID:         docID,
			FilePath:      filePath,
			Filename:      filename,
			DocumentType:  docType,
			EntitySlug:    entitySlug,
			ExtractedData: map[string]any{"total": 10.0},
		},
	})
}

func TestFiler_FilesDocument(t *testing.T) {
	f, b, root := newTestFiler(t)
	src := writeSource(t, "acme invoice.pdf")

	ctx := context.Background()
	doc, err := f.store.CreateDocument(ctx, "acme invoice.pdf", src)
	require.NoError(t, err)
	require.NoError(t, f.store.UpdateDocumentOCR(ctx, doc.ID, "text", 0.9))
	require.NoError(t, f.store.UpdateDocumentClassification(ctx, doc.ID, model.DocTypeInvoice, 0.9, "farm_1"))
	require.NoError(t, f.store.UpdateDocumentExtraction(ctx, doc.ID, map[string]any{"total": 10.0}))

	rec := recordEvents(b, bus.EventDocumentFiled)
	emitExtracted(b, doc.ID, src, "acme invoice.pdf", "farm_1", model.DocTypeInvoice)

	want := filepath.Join(root, "farm_1", "invoice", "2026-08", "acme_invoice.pdf")
	events := rec.all()
	require.Len(t, events, 1)
	payload := events[0].Data.(bus.DocumentFiled)
	assert.Equal(t, want, payload.FiledPath)

	// Copy, not move.
	assert.FileExists(t, src)
	assert.FileExists(t, want)

	got, err := f.store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFiled, got.Status)
	assert.Equal(t, want, got.StoredPath)
	require.NotNil(t, got.FiledAt)
}

func TestFiler_UnassignedEntity(t *testing.T) {
	f, _, _ := newTestFiler(t)
	src := writeSource(t, "letter.pdf")

	path, err := f.fileDocument("", model.DocTypeCorrespondence, "letter.pdf", src)
	require.NoError(t, err)
	assert.Contains(t, path, filepath.Join("unassigned", "correspondence", "2026-08"))
	assert.FileExists(t, path)
}

func TestFiler_CollisionSuffix(t *testing.T) {
	f, _, _ := newTestFiler(t)
	src := writeSource(t, "receipt.pdf")

	first, err := f.fileDocument("farm_1", model.DocTypeReceipt, "receipt.pdf", src)
	require.NoError(t, err)

	second, err := f.fileDocument("farm_1", model.DocTypeReceipt, "receipt.pdf", src)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(first), "receipt_1.pdf"), second)

	third, err := f.fileDocument("farm_1", model.DocTypeReceipt, "receipt.pdf", src)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(first), "receipt_2.pdf"), third)
}

func TestFiler_ConcurrentSameNameNeverOverwrites(t *testing.T) {
	f, _, root := newTestFiler(t)

	// Several workers filing documents that share a filename must each land
	// in their own archive file with content intact.
	const workers = 8
	srcDir := t.TempDir()
	want := make(map[string]bool, workers)
	sources := make([]string, workers)
	for i := range sources {
		content := fmt.Sprintf("document %d", i)
		want[content] = true
		sources[i] = filepath.Join(srcDir, fmt.Sprintf("src_%d.pdf", i))
		require.NoError(t, os.WriteFile(sources[i], []byte(content), 0o644))
	}

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i, src := range sources {
		wg.Add(1)
		go func(i int, src string) {
			defer wg.Done()
			_, errs[i] = f.fileDocument("farm_1", model.DocTypeInvoice, "scan.pdf", src)
		}(i, src)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "worker %d", i)
	}

	destDir := filepath.Join(root, "farm_1", "invoice", "2026-08")
	entries, err := os.ReadDir(destDir)
	require.NoError(t, err)
	require.Len(t, entries, workers)

	got := make(map[string]bool, workers)
	for _, entry := range entries {
		raw, err := os.ReadFile(filepath.Join(destDir, entry.Name()))
		require.NoError(t, err)
		got[string(raw)] = true
	}
	assert.Equal(t, want, got)
}

func TestFiler_CopyFailureLeavesStatus(t *testing.T) {
	f, b, _ := newTestFiler(t)

	ctx := context.Background()
	doc, err := f.store.CreateDocument(ctx, "gone.pdf", "/nonexistent/gone.pdf")
	require.NoError(t, err)
	require.NoError(t, f.store.UpdateDocumentOCR(ctx, doc.ID, "text", 0.9))
	require.NoError(t, f.store.UpdateDocumentClassification(ctx, doc.ID, model.DocTypeInvoice, 0.9, "farm_1"))
	require.NoError(t, f.store.UpdateDocumentExtraction(ctx, doc.ID, map[string]any{}))

	rec := recordEvents(b, bus.EventDocumentFiled)
	emitExtracted(b, doc.ID, "/nonexistent/gone.pdf", "gone.pdf", "farm_1", model.DocTypeInvoice)

	assert.Empty(t, rec.all())

	got, err := f.store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusExtracted, got.Status)

	// The reserved destination is cleaned up, so a retry reuses the name.
	assert.NoFileExists(t, filepath.Join(f.filedRoot, "farm_1", "invoice", "2026-08", "gone.pdf"))
}
