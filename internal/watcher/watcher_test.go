package watcher

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
		{EventType(42), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.eventType.String())
		})
	}
}

func TestNewFileWatcher(t *testing.T) {
	watcher, err := NewFileWatcher(100 * time.Millisecond)
	require.NoError(t, err)
	defer watcher.Stop()

	assert.NotNil(t, watcher.watcher)
	assert.NotNil(t, watcher.debouncer)
	assert.Empty(t, watcher.filters)
	assert.Empty(t, watcher.handlers)
}

func TestFileWatcherAddFilter(t *testing.T) {
	watcher, err := NewFileWatcher(100 * time.Millisecond)
	require.NoError(t, err)
	defer watcher.Stop()

	watcher.AddFilter(TemplateFilter)
	assert.Len(t, watcher.filters, 1)

	watcher.AddFilter(NoHiddenFilter)
	assert.Len(t, watcher.filters, 2)
}

func TestFileWatcherAddHandler(t *testing.T) {
	watcher, err := NewFileWatcher(100 * time.Millisecond)
	require.NoError(t, err)
	defer watcher.Stop()

	handlerCalled := false
	handler := func(events []ChangeEvent) error {
		handlerCalled = true
		return nil
	}

	watcher.AddHandler(handler)
	assert.Len(t, watcher.handlers, 1)

	watcher.mutex.RLock()
	for _, h := range watcher.handlers {
		h([]ChangeEvent{{Type: EventTypeCreated, Path: "starter.yml"}})
	}
	watcher.mutex.RUnlock()

	assert.True(t, handlerCalled)
}

func TestFileWatcherAddPath(t *testing.T) {
	watcher, err := NewFileWatcher(100 * time.Millisecond)
	require.NoError(t, err)
	defer watcher.Stop()

	tempDir := t.TempDir()

	err = watcher.AddPath(tempDir)
	assert.NoError(t, err)

	err = watcher.AddPath(filepath.Join(tempDir, "does-not-exist"))
	assert.Error(t, err)
}

func TestFileWatcherRejectsTraversal(t *testing.T) {
	watcher, err := NewFileWatcher(100 * time.Millisecond)
	require.NoError(t, err)
	defer watcher.Stop()

	err = watcher.AddPath("../../../etc")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "path")

	err = watcher.AddRecursive("./../../..")
	assert.Error(t, err)
}

func TestFileWatcherTemplateChange(t *testing.T) {
	watcher, err := NewFileWatcher(50 * time.Millisecond)
	require.NoError(t, err)
	defer watcher.Stop()

	tempDir := t.TempDir()
	err = watcher.AddPath(tempDir)
	require.NoError(t, err)

	watcher.AddFilter(TemplateFilter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var received []ChangeEvent

	watcher.AddHandler(func(events []ChangeEvent) error {
		mu.Lock()
		received = append(received, events...)
		mu.Unlock()
		return nil
	})

	err = watcher.Start(ctx)
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)

	// A template file passes the filter; a stray note does not.
	err = os.WriteFile(filepath.Join(tempDir, "demo.yml"), []byte("name: demo"), 0644)
	require.NoError(t, err)
	err = os.WriteFile(filepath.Join(tempDir, "notes.txt"), []byte("ignore me"), 0644)
	require.NoError(t, err)

	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, received)
	for _, event := range received {
		assert.Equal(t, ".yml", filepath.Ext(event.Path))
	}
}

func TestAddRecursiveSkipsHiddenDirs(t *testing.T) {
	watcher, err := NewFileWatcher(100 * time.Millisecond)
	require.NoError(t, err)
	defer watcher.Stop()

	tempDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(tempDir, "assets"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(tempDir, ".git", "objects"), 0755))

	err = watcher.AddRecursive(tempDir)
	assert.NoError(t, err)

	watched := watcher.watcher.WatchList()
	for _, path := range watched {
		assert.NotContains(t, path, ".git")
	}
	assert.Contains(t, watched, filepath.Join(tempDir, "assets"))
}

func TestTemplateFilter(t *testing.T) {
	testCases := []struct {
		path     string
		expected bool
	}{
		{"starter.yml", true},
		{"templates/card.yaml", true},
		{"main.go", false},
		{"index.html", false},
		{"style.css", false},
		{"README.md", false},
		{"noext", false},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			assert.Equal(t, tc.expected, TemplateFilter(tc.path))
		})
	}
}

func TestStaticAssetFilter(t *testing.T) {
	testCases := []struct {
		path     string
		expected bool
	}{
		{"static/index.html", true},
		{"static/playground.css", true},
		{"static/playground.js", true},
		{"static/logo.svg", true},
		{"static/favicon.ico", true},
		{"static/screenshot.png", true},
		{"starter.yml", false},
		{"main.go", false},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			assert.Equal(t, tc.expected, StaticAssetFilter(tc.path))
		})
	}
}

func TestNoHiddenFilter(t *testing.T) {
	testCases := []struct {
		path     string
		expected bool
	}{
		{"templates/starter.yml", true},
		{".fiddle.yml", false},
		{"templates/.starter.yml.swx", false},
		{filepath.Join("static", ".cache", "x.css"), false},
		{"main.go", true},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			assert.Equal(t, tc.expected, NoHiddenFilter(tc.path))
		})
	}
}

func TestNoTempFilter(t *testing.T) {
	testCases := []struct {
		path     string
		expected bool
	}{
		{"starter.yml", true},
		{"starter.yml~", false},
		{"starter.yml.swp", false},
		{"starter.yml.tmp", false},
		{"#starter.yml#", false},
		{"card.yaml", true},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			assert.Equal(t, tc.expected, NoTempFilter(tc.path))
		})
	}
}

func TestDebouncerBatchesRapidChanges(t *testing.T) {
	debouncer := &Debouncer{
		delay:   50 * time.Millisecond,
		events:  make(chan ChangeEvent, 100),
		output:  make(chan []ChangeEvent, 10),
		pending: make([]ChangeEvent, 0),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go debouncer.start(ctx)

	debouncer.events <- ChangeEvent{Path: "starter.yml", Type: EventTypeModified}
	debouncer.events <- ChangeEvent{Path: "starter.yml", Type: EventTypeModified}
	debouncer.events <- ChangeEvent{Path: "card.yaml", Type: EventTypeModified}

	select {
	case batch := <-debouncer.output:
		// starter.yml deduplicated, card.yaml kept
		assert.LessOrEqual(t, len(batch), 2)
		assert.NotEmpty(t, batch)
	case <-time.After(time.Second):
		t.Fatal("debouncer never flushed")
	}
}

func TestDebouncerKeepsLatestEventPerPath(t *testing.T) {
	debouncer := &Debouncer{
		delay:   20 * time.Millisecond,
		events:  make(chan ChangeEvent, 100),
		output:  make(chan []ChangeEvent, 10),
		pending: make([]ChangeEvent, 0),
	}

	debouncer.addEvent(ChangeEvent{Path: "starter.yml", Type: EventTypeCreated})
	debouncer.addEvent(ChangeEvent{Path: "starter.yml", Type: EventTypeDeleted})
	debouncer.flush()

	select {
	case batch := <-debouncer.output:
		require.Len(t, batch, 1)
		assert.Equal(t, EventTypeDeleted, batch[0].Type)
	case <-time.After(time.Second):
		t.Fatal("debouncer never flushed")
	}
}

func TestFileWatcherConcurrency(t *testing.T) {
	watcher, err := NewFileWatcher(50 * time.Millisecond)
	require.NoError(t, err)
	defer watcher.Stop()

	tempDir := t.TempDir()
	err = watcher.AddPath(tempDir)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var eventCount int
	var eventMutex sync.Mutex

	watcher.AddHandler(func(events []ChangeEvent) error {
		eventMutex.Lock()
		eventCount += len(events)
		eventMutex.Unlock()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = watcher.Start(ctx)
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := filepath.Join(tempDir, fmt.Sprintf("tpl%d.yml", i))
			assert.NoError(t, os.WriteFile(name, []byte("name: x"), 0644))
		}(i)
	}

	wg.Wait()
	time.Sleep(200 * time.Millisecond)

	eventMutex.Lock()
	finalCount := eventCount
	eventMutex.Unlock()

	assert.Greater(t, finalCount, 0)
	assert.LessOrEqual(t, finalCount, 10)
}

func TestFileWatcherStopIsIdempotent(t *testing.T) {
	watcher, err := NewFileWatcher(100 * time.Millisecond)
	require.NoError(t, err)

	err = watcher.Stop()
	assert.NoError(t, err)
	err = watcher.Stop()
	assert.NoError(t, err)
}
