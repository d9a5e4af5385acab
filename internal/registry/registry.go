// Package registry holds the named template presets a playground can
// load. The set is fixed at startup: built-in templates plus any YAML
// definitions loaded from a directory. Lookups of unknown names are
// reported to the caller, never fatal.
package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/conneroisu/fiddle/internal/workspace"
)

// TemplateRegistry manages all available templates
type TemplateRegistry struct {
	templates map[string]Template
	order     []string
	fallback  workspace.Triple
	mutex     sync.RWMutex
	watchers  []chan TemplateEvent
}

// TemplateEvent represents a change in the template registry
type TemplateEvent struct {
	Type      EventType
	Template  Template
	Timestamp time.Time
}

// EventType represents the type of template event
type EventType int

const (
	EventTypeAdded EventType = iota
	EventTypeUpdated
	EventTypeRemoved
)

func (e EventType) String() string {
	switch e {
	case EventTypeAdded:
		return "added"
	case EventTypeUpdated:
		return "updated"
	case EventTypeRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// NewTemplateRegistry creates a registry seeded with the built-in
// templates.
func NewTemplateRegistry() *TemplateRegistry {
	r := &TemplateRegistry{
		templates: make(map[string]Template),
		watchers:  make([]chan TemplateEvent, 0),
	}
	for _, t := range builtinTemplates {
		r.templates[t.Name] = t
		r.order = append(r.order, t.Name)
	}
	r.fallback = r.templates[DefaultName].Content
	return r
}

// Register adds or updates a template in the registry
func (r *TemplateRegistry) Register(t Template) error {
	if err := ValidateName(t.Name); err != nil {
		return err
	}
	if t.DisplayName == "" {
		t.DisplayName = displayNameFor(t.Name)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	eventType := EventTypeAdded
	if _, exists := r.templates[t.Name]; exists {
		eventType = EventTypeUpdated
	} else {
		r.order = append(r.order, t.Name)
	}

	r.templates[t.Name] = t
	r.notify(TemplateEvent{Type: eventType, Template: t, Timestamp: time.Now()})
	return nil
}

// Get retrieves a template by name
func (r *TemplateRegistry) Get(name string) (Template, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	t, exists := r.templates[name]
	return t, exists
}

// All returns every template in stable registration order, built-ins
// first.
func (r *TemplateRegistry) All() []Template {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make([]Template, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.templates[name])
	}
	return out
}

// Names returns the registered template names in listing order.
func (r *TemplateRegistry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Remove removes a template from the registry
func (r *TemplateRegistry) Remove(name string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	t, exists := r.templates[name]
	if !exists {
		return
	}

	delete(r.templates, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	r.notify(TemplateEvent{Type: EventTypeRemoved, Template: t, Timestamp: time.Now()})
}

// Default returns the buffer contents a fresh session starts from: the
// starter template, or its built-in content if that entry was removed.
func (r *TemplateRegistry) Default() workspace.Triple {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if t, exists := r.templates[DefaultName]; exists {
		return t.Content
	}
	return r.fallback
}

// Count returns the number of registered templates
func (r *TemplateRegistry) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.templates)
}

// Watch returns a channel that receives template events
func (r *TemplateRegistry) Watch() <-chan TemplateEvent {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	ch := make(chan TemplateEvent, 100)
	r.watchers = append(r.watchers, ch)
	return ch
}

// UnWatch removes a watcher channel and closes it
func (r *TemplateRegistry) UnWatch(ch <-chan TemplateEvent) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for i, watcher := range r.watchers {
		if watcher == ch {
			close(watcher)
			r.watchers = append(r.watchers[:i], r.watchers[i+1:]...)
			break
		}
	}
}

// notify broadcasts an event to all watchers. Callers must hold the
// write lock.
func (r *TemplateRegistry) notify(event TemplateEvent) {
	for _, watcher := range r.watchers {
		select {
		case watcher <- event:
		default:
			// Skip if channel is full
		}
	}
}

// LoadDir registers every YAML template definition found directly in
// dir. Files that fail to parse, and files whose name collides with a
// built-in template, are skipped so one bad definition cannot take
// down the rest; their errors come back joined for the caller to log.
// A missing directory loads nothing and is not an error.
func (r *TemplateRegistry) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading template directory %s: %w", dir, err)
	}

	var loaded int
	var problems []error
	for _, entry := range entries {
		if entry.IsDir() || !isTemplateFile(entry.Name()) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			problems = append(problems, fmt.Errorf("%s: %w", path, err))
			continue
		}

		t, err := ParseTemplate(data)
		if err != nil {
			problems = append(problems, fmt.Errorf("%s: %w", path, err))
			continue
		}
		if IsBuiltin(t.Name) {
			problems = append(problems, fmt.Errorf("%s: template %q shadows a built-in, skipped", path, t.Name))
			continue
		}
		if err := r.Register(t); err != nil {
			problems = append(problems, fmt.Errorf("%s: %w", path, err))
			continue
		}
		loaded++
	}

	return loaded, errors.Join(problems...)
}

func isTemplateFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yml" || ext == ".yaml"
}
