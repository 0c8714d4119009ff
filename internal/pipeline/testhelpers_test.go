package pipeline

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/agentt/internal/audit"
	"github.com/sells-group/agentt/internal/bus"
	"github.com/sells-group/agentt/internal/ocr"
	"github.com/sells-group/agentt/internal/store"
	"github.com/sells-group/agentt/pkg/anthropic"
)

func newPipelineStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestAudit(s store.Store) *audit.Logger {
	return audit.New(s, "test")
}

// mockAnthropicClient mocks the anthropic.Client interface.
type mockAnthropicClient struct {
	mock.Mock
}

func (m *mockAnthropicClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

// textResponse wraps raw model output in a single-text-block response.
func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
	}
}

// fakeEngine is a canned OCR engine.
type fakeEngine struct {
	result ocr.Result
	err    error
	calls  int
}

func (f *fakeEngine) Recognize(ctx context.Context, path string) (ocr.Result, error) {
	f.calls++
	if f.err != nil {
		return ocr.Result{}, f.err
	}
	return f.result, nil
}

// eventRecorder subscribes to an event and collects its payloads.
type eventRecorder struct {
	mu     sync.Mutex
	events []bus.Event
}

func recordEvents(b *bus.Bus, names ...string) *eventRecorder {
	r := &eventRecorder{}
	for _, name := range names {
		b.Subscribe(name, "test.recorder", func(ev bus.Event) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events = append(r.events, ev)
			return nil
		})
	}
	return r
}

func (r *eventRecorder) all() []bus.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]bus.Event, len(r.events))
	copy(out, r.events)
	return out
}
