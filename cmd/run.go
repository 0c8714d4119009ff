package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/agentt/internal/audit"
	"github.com/sells-group/agentt/internal/bus"
	"github.com/sells-group/agentt/internal/config"
	"github.com/sells-group/agentt/internal/iif"
	"github.com/sells-group/agentt/internal/ocr"
	"github.com/sells-group/agentt/internal/pipeline"
	"github.com/sells-group/agentt/internal/store"
	"github.com/sells-group/agentt/internal/watcher"
	"github.com/sells-group/agentt/pkg/anthropic"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Watch the drop folder and process documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		if err := seedEntities(ctx, st); err != nil {
			return err
		}

		auditLog := audit.New(st, "system")
		client := anthropic.NewClient(cfg.Anthropic.Key, cfg.Anthropic.MaxRPS)

		b := bus.New()
		agent := pipeline.NewAgent(b, auditLog)
		agent.Register(pipeline.NewOCRStage(st, auditLog,
			ocr.NewTesseract(cfg.OCR.TesseractPath, cfg.OCR.PdfToPpmPath),
			ocr.NewVision(client, cfg.Anthropic.VisionModel, cfg.OCR.PdfToPpmPath),
			cfg.OCR.ConfidenceThreshold,
		))
		agent.Register(pipeline.NewClassifier(st, auditLog, client, cfg.Anthropic.ClassifyModel))
		agent.Register(pipeline.NewExtractor(st, auditLog, client, cfg.Anthropic.ExtractModel))
		agent.Register(pipeline.NewFiler(st, auditLog, cfg.Scanner.FiledDir))
		agent.Register(iif.NewGenerator(st, auditLog, cfg.IIF.OutputDir))

		if err := agent.Start(ctx); err != nil {
			return eris.Wrap(err, "start agent")
		}
		defer agent.Stop()

		pool := newWorkerPool(b, cfg.Scanner.Workers)
		w, err := watcher.New(cfg.Scanner.WatchDir, time.Duration(cfg.Scanner.GraceSecs)*time.Second, pool)
		if err != nil {
			return eris.Wrap(err, "init watcher")
		}
		if err := w.Start(ctx); err != nil {
			return eris.Wrap(err, "start watcher")
		}

		zap.L().Info("agent running",
			zap.String("watch_dir", cfg.Scanner.WatchDir),
			zap.Int("workers", cfg.Scanner.Workers),
		)

		<-ctx.Done()
		zap.L().Info("shutting down")
		w.Stop()
		pool.Wait()
		return nil
	},
}

// workerPool fans incoming file events out to a bounded set of goroutines.
// Each document then moves through the synchronous pipeline on its worker's
// goroutine, so per-document ordering is preserved while documents process
// concurrently.
type workerPool struct {
	bus *bus.Bus
	g   *errgroup.Group
}

func newWorkerPool(b *bus.Bus, workers int) *workerPool {
	g := new(errgroup.Group)
	if workers > 0 {
		g.SetLimit(workers)
	}
	return &workerPool{bus: b, g: g}
}

func (p *workerPool) Emit(ev bus.Event) {
	p.g.Go(func() error {
		p.bus.Emit(ev)
		return nil
	})
}

func (p *workerPool) Wait() {
	_ = p.g.Wait()
}

// seedEntities syncs entities.yaml into the store so classification and IIF
// generation see the current entity set. A missing file is not fatal when
// entities were seeded on a previous start.
func seedEntities(ctx context.Context, st store.Store) error {
	entities, err := config.LoadEntities(cfg.Entities.Path)
	if err != nil {
		if os.IsNotExist(eris.Cause(err)) {
			zap.L().Warn("entities file not found, using previously seeded entities",
				zap.String("path", cfg.Entities.Path))
			return nil
		}
		return err
	}
	for _, e := range entities {
		if err := st.UpsertEntity(ctx, e); err != nil {
			return eris.Wrapf(err, "seed entity %s", e.Slug)
		}
	}
	zap.L().Info("entities seeded", zap.Int("count", len(entities)))
	return nil
}

func init() {
	rootCmd.AddCommand(runCmd)
}
