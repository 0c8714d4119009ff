// Package pipeline contains the document processing stages: OCR,
// classification, extraction, and filing. Stages communicate only through
// bus events, so each can be tested and replaced in isolation.
package pipeline

import (
	"context"

	"github.com/sells-group/agentt/internal/bus"
)

// Module is one pipeline stage. Setup registers event subscriptions; Start
// and Stop bracket any background work the stage owns.
type Module interface {
	Name() string
	Setup(b *bus.Bus)
	Start(ctx context.Context) error
	Stop()
}

// BaseModule provides no-op Start/Stop for stages that only react to events.
type BaseModule struct{}

func (BaseModule) Start(context.Context) error { return nil }
func (BaseModule) Stop()                       {}
