// Package bus implements the synchronous in-process event bus that wires
// the pipeline stages together. Handlers run on the emitter's goroutine in
// subscription order; a handler failure is logged and converted into a
// secondary error event rather than propagated to the emitter.
package bus

import (
	"sync"

	"go.uber.org/zap"
)

// Standard event names.
const (
	EventFileArrived        = "file_arrived"
	EventOCRComplete        = "ocr_complete"
	EventDocumentClassified = "document_classified"
	EventDataExtracted      = "data_extracted"
	EventDocumentFiled      = "document_filed"
	EventApprovalDecided    = "approval_decided"
	EventTransactionCreated = "transaction_created"
	EventIIFGenerated       = "iif_generated"
	EventError              = "error_occurred"
)

// Event is a named payload dispatched through the bus. Data holds one of
// the typed payload structs below.
type Event struct {
	Name string
	Data any
}

// Emitter is the emit-only side of the Bus, for components that publish but
// never subscribe.
type Emitter interface {
	Emit(ev Event)
}

// HandlerFunc processes one event. A returned error is converted into an
// EventError emission; it never reaches the original emitter.
type HandlerFunc func(Event) error

type subscription struct {
	name    string
	handler HandlerFunc
}

// Bus is a synchronous publish/subscribe dispatcher. Subscription order is
// dispatch order. Emit returns only after every handler (and any resulting
// error-event handlers) has run.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]subscription
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{handlers: make(map[string][]subscription)}
}

// Subscribe registers a named handler for an event. Registration order is
// preserved and is the dispatch order.
func (b *Bus) Subscribe(event, handlerName string, h HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[event] = append(b.handlers[event], subscription{name: handlerName, handler: h})
	zap.L().Debug("bus: handler subscribed",
		zap.String("event", event),
		zap.String("handler", handlerName),
	)
}

// Emit dispatches an event to every registered handler, in order, on the
// caller's goroutine. A handler error is logged and re-emitted as an
// EventError with an ErrorPayload. Errors raised while handling an
// EventError are swallowed so error emission always terminates.
func (b *Bus) Emit(ev Event) {
	b.mu.RLock()
	subs := b.handlers[ev.Name]
	b.mu.RUnlock()

	zap.L().Debug("bus: event fired",
		zap.String("event", ev.Name),
		zap.Int("handlers", len(subs)),
	)

	for _, sub := range subs {
		if err := sub.handler(ev); err != nil {
			zap.L().Error("bus: handler failed",
				zap.String("event", ev.Name),
				zap.String("handler", sub.name),
				zap.Error(err),
			)
			if ev.Name != EventError {
				b.Emit(Event{
					Name: EventError,
					Data: ErrorPayload{
						OriginalEvent: ev.Name,
						Handler:       sub.name,
						Error:         err.Error(),
					},
				})
			}
		}
	}
}
