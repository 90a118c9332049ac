// Package events dispatches pipeline lifecycle notifications to handlers
// registered at startup.
package events

import (
	"context"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// Event names emitted by the pipeline
const (
	EventScanStarted       = "scan_started"
	EventScanCompleted     = "scan_completed"
	EventScanFailed        = "scan_failed"
	EventCacheHit          = "cache_hit"
	EventCriticalConflicts = "critical_conflicts"
	EventSnapshotArchived  = "snapshot_archived"
	EventScansPruned       = "scans_pruned"
	EventPluginsChanged    = "plugins_changed"
)

// AllEvents lists all known event names
var AllEvents = []string{
	EventScanStarted,
	EventScanCompleted,
	EventScanFailed,
	EventCacheHit,
	EventCriticalConflicts,
	EventSnapshotArchived,
	EventScansPruned,
	EventPluginsChanged,
}

// Payload carries event data to handlers
type Payload struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
}

// Handler handles one event. A returned error is logged and does not stop
// the remaining handlers.
type Handler func(ctx context.Context, p Payload) error

// Manager maps event names to their handlers
type Manager struct {
	mu       sync.RWMutex
	handlers map[string][]namedHandler
	log      *logrus.Logger
}

type namedHandler struct {
	name    string
	handler Handler
}

// NewManager creates an event manager
func NewManager(log *logrus.Logger) *Manager {
	if log == nil {
		log = logrus.New()
	}
	return &Manager{
		handlers: make(map[string][]namedHandler),
		log:      log,
	}
}

// On registers a handler for event. The name identifies it in logs and Off.
func (m *Manager) On(event, name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], namedHandler{name: name, handler: handler})
	m.log.WithFields(logrus.Fields{"event": event, "handler": name}).Debug("Event handler registered")
}

// Off removes all handlers with the given name from event
func (m *Manager) Off(event, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	handlers := m.handlers[event]
	filtered := make([]namedHandler, 0, len(handlers))
	for _, h := range handlers {
		if h.name != name {
			filtered = append(filtered, h)
		}
	}
	m.handlers[event] = filtered
}

// Emit calls the handlers of event synchronously in registration order
func (m *Manager) Emit(ctx context.Context, event string, data map[string]any) {
	handlers := m.snapshot(event)
	if len(handlers) == 0 {
		return
	}

	payload := Payload{Event: event, Data: data}
	for _, h := range handlers {
		m.call(ctx, h, payload)
	}
}

func (m *Manager) snapshot(event string) []namedHandler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	handlers := make([]namedHandler, len(m.handlers[event]))
	copy(handlers, m.handlers[event])
	return handlers
}

func (m *Manager) call(ctx context.Context, h namedHandler, p Payload) {
	defer func() {
		if r := recover(); r != nil {
			m.log.WithFields(logrus.Fields{
				"event":   p.Event,
				"handler": h.name,
				"panic":   r,
			}).Error("Event handler panicked")
		}
	}()

	if err := h.handler(ctx, p); err != nil {
		m.log.WithError(err).WithFields(logrus.Fields{
			"event":   p.Event,
			"handler": h.name,
		}).Warn("Event handler error")
	}
}

// Count returns the number of handlers registered for event
func (m *Manager) Count(event string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers[event])
}

// Events returns the sorted names of events with at least one handler
func (m *Manager) Events() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]string, 0, len(m.handlers))
	for event, handlers := range m.handlers {
		if len(handlers) > 0 {
			events = append(events, event)
		}
	}
	sort.Strings(events)
	return events
}

// LogHandler returns a handler that logs every payload at info level
func LogHandler(log *logrus.Logger) Handler {
	return func(_ context.Context, p Payload) error {
		log.WithFields(logrus.Fields(p.Data)).Info("Event: " + p.Event)
		return nil
	}
}
