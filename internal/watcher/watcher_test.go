package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/agentt/internal/bus"
)

// recordingEmitter collects emitted events for assertions.
type recordingEmitter struct {
	mu     sync.Mutex
	events []bus.Event
}

func (r *recordingEmitter) Emit(ev bus.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingEmitter) snapshot() []bus.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]bus.Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recordingEmitter) waitFor(t *testing.T, n int) []bus.Event {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if evs := r.snapshot(); len(evs) >= n {
			return evs
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d events, got %d", n, len(r.snapshot()))
	return nil
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("scan.pdf"))
	assert.True(t, Supported("IMG_0042.JPG"))
	assert.True(t, Supported("/tmp/a/b/receipt.tiff"))
	assert.False(t, Supported("notes.txt"))
	assert.False(t, Supported("archive.zip"))
	assert.False(t, Supported("no_extension"))
}

func TestWatcher_EmitsOnCreate(t *testing.T) {
	dir := t.TempDir()
	emitter := &recordingEmitter{}

	w, err := New(dir, 0, emitter)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	path := filepath.Join(dir, "scan_001.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o644))

	events := emitter.waitFor(t, 1)
	assert.Equal(t, bus.EventFileArrived, events[0].Name)
	payload := events[0].Data.(bus.FileArrived)
	assert.Equal(t, path, payload.FilePath)
	assert.Equal(t, "scan_001.pdf", payload.Filename)
}

func TestWatcher_IgnoresUnsupportedFiles(t *testing.T) {
	dir := t.TempDir()
	emitter := &recordingEmitter{}

	w, err := New(dir, 0, emitter)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scan.png"), []byte("png"), 0o644))

	events := emitter.waitFor(t, 1)
	for _, ev := range events {
		payload := ev.Data.(bus.FileArrived)
		assert.Equal(t, "scan.png", payload.Filename)
	}
}

func TestWatcher_IgnoresDirectories(t *testing.T) {
	dir := t.TempDir()
	emitter := &recordingEmitter{}

	w, err := New(dir, 0, emitter)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	// A directory with a document extension must not be treated as an
	// arrival.
	require.NoError(t, os.Mkdir(filepath.Join(dir, "batch.pdf"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "real.pdf"), []byte("%PDF"), 0o644))

	events := emitter.waitFor(t, 1)
	for _, ev := range events {
		payload := ev.Data.(bus.FileArrived)
		assert.Equal(t, "real.pdf", payload.Filename)
	}
}

func TestWatcher_EmitsBacklogOnStart(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old_scan.pdf"), []byte("%PDF"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skip.txt"), []byte("x"), 0o644))

	emitter := &recordingEmitter{}
	w, err := New(dir, 0, emitter)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	events := emitter.waitFor(t, 1)
	payload := events[0].Data.(bus.FileArrived)
	assert.Equal(t, "old_scan.pdf", payload.Filename)
}

func TestWatcher_CreatesMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "scans")
	_, err := New(dir, 0, &recordingEmitter{})
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestWatcher_StartStopIdempotent(t *testing.T) {
	w, err := New(t.TempDir(), 0, &recordingEmitter{})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, w.Start(ctx))
	require.NoError(t, w.Start(ctx))

	w.Stop()
	w.Stop()
}

func TestWatcher_StopDuringGrace(t *testing.T) {
	dir := t.TempDir()
	emitter := &recordingEmitter{}

	w, err := New(dir, 10*time.Second, emitter)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "slow.pdf"), []byte("%PDF"), 0o644))
	time.Sleep(100 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked on grace period")
	}
	assert.Empty(t, emitter.snapshot())
}

func TestNew_RequiresDir(t *testing.T) {
	_, err := New("", 0, &recordingEmitter{})
	assert.Error(t, err)
}
