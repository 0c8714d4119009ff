package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/agentt/internal/audit"
	"github.com/sells-group/agentt/internal/bus"
	"github.com/sells-group/agentt/internal/model"
)

// Agent owns the bus and the registered modules. It wires subscriptions,
// starts modules in registration order, and stops them in reverse.
type Agent struct {
	bus     *bus.Bus
	audit   *audit.Logger
	modules []Module
	started []Module
}

// NewAgent creates an Agent. Handler failures surfacing as error events are
// recorded in the audit trail.
func NewAgent(b *bus.Bus, auditLog *audit.Logger) *Agent {
	a := &Agent{bus: b, audit: auditLog}
	b.Subscribe(bus.EventError, "agent.audit_errors", a.handleError)
	return a
}

// Register adds a module. Call before Start.
func (a *Agent) Register(m Module) {
	a.modules = append(a.modules, m)
}

// Bus returns the event bus modules are wired to.
func (a *Agent) Bus() *bus.Bus {
	return a.bus
}

// Start sets up every module's subscriptions and then starts them in
// registration order. A start failure stops the modules already started.
func (a *Agent) Start(ctx context.Context) error {
	for _, m := range a.modules {
		m.Setup(a.bus)
	}
	for _, m := range a.modules {
		if err := m.Start(ctx); err != nil {
			a.Stop()
			return eris.Wrapf(err, "agent: start module %s", m.Name())
		}
		a.started = append(a.started, m)
		zap.L().Info("agent: module started", zap.String("module", m.Name()))
	}
	return nil
}

// Stop stops started modules in reverse order.
func (a *Agent) Stop() {
	for i := len(a.started) - 1; i >= 0; i-- {
		m := a.started[i]
		m.Stop()
		zap.L().Info("agent: module stopped", zap.String("module", m.Name()))
	}
	a.started = nil
}

func (a *Agent) handleError(ev bus.Event) error {
	payload, ok := ev.Data.(bus.ErrorPayload)
	if !ok {
		return nil
	}
	a.audit.Log(context.Background(), model.SeverityError, "agent", "handler_failed", "",
		map[string]any{
			"event":   payload.OriginalEvent,
			"handler": payload.Handler,
			"error":   payload.Error,
		})
	return nil
}
