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

	"github.com/conneroisu/wisp/internal/logging"
)

func TestEventTypeString(t *testing.T) {
	testCases := []struct {
		eventType EventType
		expected  string
	}{
		{EventTypeCreated, "created"},
		{EventTypeModified, "modified"},
		{EventTypeDeleted, "deleted"},
		{EventTypeRenamed, "renamed"},
		{EventType(99), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.eventType.String())
		})
	}
}

func TestNewFileWatcher(t *testing.T) {
	watcher, err := NewFileWatcher(100*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	assert.NotNil(t, watcher.watcher)
	assert.NotNil(t, watcher.debouncer)
	assert.Empty(t, watcher.filters)
	assert.Empty(t, watcher.handlers)

	// Stop is idempotent
	assert.NoError(t, watcher.Stop())
	assert.NoError(t, watcher.Stop())
}

func TestFileWatcherFilters(t *testing.T) {
	watcher, err := NewFileWatcher(100*time.Millisecond, logging.NewNop())
	require.NoError(t, err)
	defer watcher.Stop()

	watcher.AddFilter(DefinitionFilter)
	watcher.AddFilter(NoGitFilter)
	watcher.AddFilter(ExcludeFilter([]string{"*_test.wisp.yml"}))
	assert.Len(t, watcher.filters, 3)

	assert.True(t, watcher.accept("components/card.wisp.yml"))
	assert.True(t, watcher.accept("components/card.wisp.yaml"))
	assert.False(t, watcher.accept("components/card_test.wisp.yml"))
	assert.False(t, watcher.accept("repo/.git/card.wisp.yml"))
	assert.False(t, watcher.accept("components/card.go"))
}

func TestFileWatcherAddPath(t *testing.T) {
	watcher, err := NewFileWatcher(100*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	assert.NoError(t, watcher.AddPath(t.TempDir()))
	assert.Error(t, watcher.AddPath("/non/existent/path"))
	assert.Error(t, watcher.AddPath("../outside"))
}

func TestFileWatcherDeliversDefinitionChanges(t *testing.T) {
	watcher, err := NewFileWatcher(50*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	require.NoError(t, watcher.AddRecursive(dir))
	watcher.AddFilter(DefinitionFilter)

	var mu sync.Mutex
	var got []ChangeEvent
	watcher.AddHandler(func(events []ChangeEvent) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, events...)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, watcher.Start(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "card.wisp.yml"), []byte("tag: x-card\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0
	}, 2*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for _, event := range got {
		assert.Equal(t, "card.wisp.yml", filepath.Base(event.Path))
	}
}

func TestDebouncerCoalesces(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)

	d.Add(ChangeEvent{Type: EventTypeCreated, Path: "b.wisp.yml"})
	d.Add(ChangeEvent{Type: EventTypeModified, Path: "a.wisp.yml"})
	d.Add(ChangeEvent{Type: EventTypeModified, Path: "b.wisp.yml"})

	select {
	case batch := <-d.Output():
		require.Len(t, batch, 2)
		assert.Equal(t, "a.wisp.yml", batch[0].Path)
		assert.Equal(t, "b.wisp.yml", batch[1].Path)
		assert.Equal(t, EventTypeModified, batch[1].Type, "latest event per path wins")
	case <-time.After(time.Second):
		t.Fatal("debouncer did not flush")
	}

	select {
	case batch := <-d.Output():
		t.Fatalf("unexpected second batch: %v", batch)
	case <-time.After(80 * time.Millisecond):
	}
}
