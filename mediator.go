package ripple

import (
	"fmt"
	"slices"
	"sync"
)

// Mediator holds the plugins of one stage in registration order.
type Mediator struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  LoggerAdapter
}

func newMediator(logger LoggerAdapter) *Mediator {
	return &Mediator{logger: logger}
}

func (m *Mediator) add(plugin Plugin) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plugins = append(m.plugins, plugin)
}

func (m *Mediator) remove(plugin Plugin) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	before := len(m.plugins)
	m.plugins = slices.DeleteFunc(slices.Clone(m.plugins), func(p Plugin) bool { return p == plugin })
	return len(m.plugins) != before
}

func (m *Mediator) snapshot() []Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.plugins)
}

// Size returns the number of registered plugins.
func (m *Mediator) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.plugins)
}

// execute folds event through the stage's plugins. A nil result stops the
// fold; an error aborts it and is returned to the caller.
func (m *Mediator) execute(event *Event) (*Event, error) {
	result := event
	for _, p := range m.snapshot() {
		if result == nil {
			return nil, nil
		}
		var err error
		if ep, ok := p.(EventPlugin); ok {
			result, err = dispatchByKind(ep, result)
		} else {
			result, err = p.Execute(result)
		}
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

// executeDestinations hands a copy of the same input to every destination.
// Failures are logged and never stop the remaining destinations.
func (m *Mediator) executeDestinations(event *Event) {
	for _, p := range m.snapshot() {
		if err := m.runDestination(p, event.Clone()); err != nil {
			m.logger.Error("destination plugin failed", "plugin", pluginName(p), "event_type", event.EventType, "error", err)
		}
	}
}

func (m *Mediator) runDestination(p Plugin, event *Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	switch d := p.(type) {
	case Destination:
		_, err = processDestination(d, event)
	case EventPlugin:
		_, err = dispatchByKind(d, event)
	default:
		_, err = p.Execute(event)
	}
	return err
}

func (m *Mediator) applyClosure(fn func(Plugin)) {
	for _, p := range m.snapshot() {
		fn(p)
	}
}

func pluginName(p Plugin) string {
	if n, ok := p.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", p)
}
