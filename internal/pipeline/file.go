package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/agentt/internal/audit"
	"github.com/sells-group/agentt/internal/bus"
	"github.com/sells-group/agentt/internal/model"
	"github.com/sells-group/agentt/internal/store"
)

// Filer copies processed documents into the organized archive:
// {filed_root}/{entity|unassigned}/{doc_type}/{YYYY-MM}/{filename}. The
// original stays in the drop folder; the archive copy becomes the document's
// stored path.
type Filer struct {
	BaseModule

	store     store.Store
	audit     *audit.Logger
	filedRoot string
	emitter   bus.Emitter

	// now is swappable for tests.
	now func() time.Time
}

// NewFiler creates the filing stage.
func NewFiler(s store.Store, auditLog *audit.Logger, filedRoot string) *Filer {
	return &Filer{
		store:     s,
		audit:     auditLog,
		filedRoot: filedRoot,
		now:       time.Now,
	}
}

func (f *Filer) Name() string { return "documents" }

func (f *Filer) Setup(b *bus.Bus) {
	f.emitter = b
	b.Subscribe(bus.EventDataExtracted, "documents.handle_data_extracted", f.handleDataExtracted)
}

func (f *Filer) handleDataExtracted(ev bus.Event) error {
	payload, ok := ev.Data.(bus.DataExtracted)
	if !ok {
		return eris.Errorf("filer: unexpected payload %T", ev.Data)
	}
	ctx := context.Background()

	destPath, err := f.fileDocument(payload.EntitySlug, payload.DocumentType, payload.Filename, payload.FilePath)
	if err != nil {
		// The document stays in its extracted state; the source file is
		// still in the drop folder for a manual retry.
		zap.L().Error("filer: filing failed", zap.String("filename", payload.Filename), zap.Error(err))
		f.audit.Error(ctx, "documents", "filing_failed", payload.EntitySlug, map[string]any{
			"doc_id":   payload.DocID,
			"filename": payload.Filename,
			"error":    err.Error(),
		})
		return nil
	}

	if err := f.store.UpdateDocumentFiled(ctx, payload.DocID, destPath); err != nil {
		return eris.Wrap(err, "filer: update document")
	}

	entity := payload.EntitySlug
	if entity == "" {
		entity = "unassigned"
	}
	f.audit.Info(ctx, "documents", "document_filed", payload.EntitySlug, map[string]any{
		"doc_id":        payload.DocID,
		"filename":      payload.Filename,
		"document_type": string(payload.DocumentType),
		"entity":        entity,
		"destination":   destPath,
	})
	zap.L().Info("filer: filed",
		zap.String("filename", payload.Filename),
		zap.String("destination", destPath),
	)

	f.emitter.Emit(bus.Event{
		Name: bus.EventDocumentFiled,
		Data: bus.DocumentFiled{
			DocID:        payload.DocID,
			Filename:     payload.Filename,
			DocumentType: payload.DocumentType,
			EntitySlug:   payload.EntitySlug,
			FiledPath:    destPath,
		},
	})
	return nil
}

// fileDocument copies the source into a collision-free destination. The
// destination is opened with O_EXCL inside the suffix loop so reserving a
// name and creating the file are one atomic step; concurrent workers filing
// the same filename can never overwrite each other.
func (f *Filer) fileDocument(entitySlug string, docType model.DocumentType, filename, srcPath string) (string, error) {
	entityDir := entitySlug
	if entityDir == "" {
		entityDir = "unassigned"
	}
	monthDir := f.now().Format("2006-01")
	safeName := strings.ReplaceAll(filename, " ", "_")

	destDir := filepath.Join(f.filedRoot, entityDir, string(docType), monthDir)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", eris.Wrapf(err, "filer: create dir %s", destDir)
	}

	ext := filepath.Ext(safeName)
	stem := strings.TrimSuffix(safeName, ext)
	for counter := 0; ; counter++ {
		name := safeName
		if counter > 0 {
			name = fmt.Sprintf("%s_%d%s", stem, counter, ext)
		}
		destPath := filepath.Join(destDir, name)

		out, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if os.IsExist(err) {
			continue
		}
		if err != nil {
			return "", eris.Wrapf(err, "filer: create %s", destPath)
		}

		if err := copyInto(out, srcPath); err != nil {
			os.Remove(destPath)
			return "", err
		}
		return destPath, nil
	}
}

// copyInto fills the already-created destination from the source and closes
// it.
func copyInto(out *os.File, src string) error {
	defer out.Close()

	in, err := os.Open(src)
	if err != nil {
		return eris.Wrapf(err, "filer: open %s", src)
	}
	defer in.Close()

	if _, err := io.Copy(out, in); err != nil {
		return eris.Wrapf(err, "filer: copy %s", out.Name())
	}
	return eris.Wrap(out.Close(), "filer: close destination")
}
