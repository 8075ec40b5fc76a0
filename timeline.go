package ripple

import (
	"fmt"
	"sync"

	"github.com/Tap30/ripple-core-go/adapters"
)

// Timeline applies plugins to events stage by stage: Before, Enrichment,
// then Destination. Utility plugins are reached only through ApplyClosure.
type Timeline struct {
	client *Client
	stages map[PluginType]*Mediator

	// pending holds plugins added before the timeline had a client.
	mu      sync.Mutex
	pending []Plugin
}

// NewTimeline creates an empty timeline bound to client, which may be nil
// for nested destination timelines until their destination is set up.
func NewTimeline(client *Client) *Timeline {
	var logger LoggerAdapter = adapters.NewNoOpLoggerAdapter()
	if client != nil {
		logger = client.logger
	}
	t := &Timeline{client: client, stages: make(map[PluginType]*Mediator, len(pluginTypes))}
	for _, pt := range pluginTypes {
		t.stages[pt] = newMediator(logger)
	}
	return t
}

// Process runs event through Before, Enrichment and Destination and returns
// the enrichment result. A nil return means a plugin dropped the event.
func (t *Timeline) Process(event *Event) (*Event, error) {
	before, err := t.applyStage(PluginTypeBefore, event)
	if err != nil || before == nil {
		return nil, err
	}
	enriched, err := t.applyStage(PluginTypeEnrichment, before)
	if err != nil || enriched == nil {
		return nil, err
	}
	t.stages[PluginTypeDestination].executeDestinations(enriched)
	return enriched, nil
}

func (t *Timeline) applyStage(pt PluginType, event *Event) (*Event, error) {
	if event == nil {
		return nil, nil
	}
	result, err := t.stages[pt].execute(event)
	if err != nil {
		return nil, fmt.Errorf("%s stage: %w", pt, err)
	}
	return result, nil
}

// Add sets up plugin and registers it in its stage.
func (t *Timeline) Add(plugin Plugin) error {
	mediator, ok := t.stages[plugin.Type()]
	if !ok {
		return fmt.Errorf("unknown plugin type %d", plugin.Type())
	}

	t.mu.Lock()
	client := t.client
	if client == nil {
		t.pending = append(t.pending, plugin)
	}
	t.mu.Unlock()

	if client != nil {
		if err := plugin.Setup(client); err != nil {
			return fmt.Errorf("setup %s: %w", pluginName(plugin), err)
		}
	}
	mediator.add(plugin)
	return nil
}

// bind attaches the client and sets up plugins added before it was known.
func (t *Timeline) bind(client *Client) error {
	t.mu.Lock()
	t.client = client
	pending := t.pending
	t.pending = nil
	t.mu.Unlock()

	for _, pt := range pluginTypes {
		t.stages[pt].logger = client.logger
	}
	for _, p := range pending {
		if err := p.Setup(client); err != nil {
			return fmt.Errorf("setup %s: %w", pluginName(p), err)
		}
	}
	return nil
}

// Remove unregisters plugin from every stage and tears it down.
func (t *Timeline) Remove(plugin Plugin) {
	removed := false
	for _, pt := range pluginTypes {
		if t.stages[pt].remove(plugin) {
			removed = true
		}
	}
	if removed {
		plugin.Teardown()
	}
}

// ApplyClosure calls fn for every plugin of every stage, Utility included.
func (t *Timeline) ApplyClosure(fn func(Plugin)) {
	for _, pt := range pluginTypes {
		t.stages[pt].applyClosure(fn)
	}
}

// Stage exposes the mediator of one stage.
func (t *Timeline) Stage(pt PluginType) *Mediator {
	return t.stages[pt]
}

// Find returns the first Named plugin called name.
func (t *Timeline) Find(name string) Plugin {
	var found Plugin
	t.ApplyClosure(func(p Plugin) {
		if found != nil {
			return
		}
		if n, ok := p.(Named); ok && n.Name() == name {
			found = p
		}
	})
	return found
}
