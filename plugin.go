package ripple

import (
	"sync"
	"sync/atomic"

	"github.com/Tap30/ripple-core-go/identity"
)

// PluginType is the stage a plugin is registered into.
type PluginType int

const (
	PluginTypeBefore PluginType = iota
	PluginTypeEnrichment
	PluginTypeDestination
	PluginTypeUtility
)

var pluginTypes = []PluginType{PluginTypeBefore, PluginTypeEnrichment, PluginTypeDestination, PluginTypeUtility}

func (t PluginType) String() string {
	switch t {
	case PluginTypeBefore:
		return "before"
	case PluginTypeEnrichment:
		return "enrichment"
	case PluginTypeDestination:
		return "destination"
	case PluginTypeUtility:
		return "utility"
	default:
		return "unknown"
	}
}

// Plugin transforms events in one stage of a Timeline. Execute may return the
// same event, a replacement, or nil to stop processing of the event.
type Plugin interface {
	Type() PluginType
	Setup(client *Client) error
	Execute(event *Event) (*Event, error)
	Teardown()
}

// EventPlugin receives events dispatched by their runtime kind instead of Execute.
type EventPlugin interface {
	Plugin
	Track(event *Event) (*Event, error)
	Identify(event *Event) (*Event, error)
	GroupIdentify(event *Event) (*Event, error)
	Revenue(event *Event) (*Event, error)
	Flush()
}

// Destination forwards events to a sink. Each destination owns a nested
// timeline whose Before and Enrichment stages run before its own handlers.
type Destination interface {
	EventPlugin
	Timeline() *Timeline
	Enabled() bool
}

// Named plugins can be looked up with Client.Plugin.
type Named interface {
	Name() string
}

// IdentityObserver is notified when the client's identity changes.
type IdentityObserver interface {
	OnIdentityChanged(id identity.Identity, updateType identity.UpdateType)
}

// OptOutObserver is notified when the client's opt-out state changes.
type OptOutObserver interface {
	OnOptOutChanged(optOut bool)
}

// BasePlugin provides pass-through defaults. Embed it and override what the
// plugin needs.
type BasePlugin struct {
	PluginType PluginType
	Client     *Client
}

func (p *BasePlugin) Type() PluginType { return p.PluginType }

func (p *BasePlugin) Setup(client *Client) error {
	p.Client = client
	return nil
}

func (p *BasePlugin) Execute(event *Event) (*Event, error) { return event, nil }

func (p *BasePlugin) Teardown() {}

// BaseEventPlugin provides pass-through event handlers.
type BaseEventPlugin struct {
	BasePlugin
}

func (p *BaseEventPlugin) Track(event *Event) (*Event, error)         { return event, nil }
func (p *BaseEventPlugin) Identify(event *Event) (*Event, error)      { return event, nil }
func (p *BaseEventPlugin) GroupIdentify(event *Event) (*Event, error) { return event, nil }
func (p *BaseEventPlugin) Revenue(event *Event) (*Event, error)       { return event, nil }
func (p *BaseEventPlugin) Flush()                                     {}

// DestinationPlugin is the embeddable base for destinations. Its nested
// timeline is created on first use and shares the client of the destination.
type DestinationPlugin struct {
	BaseEventPlugin
	timelineOnce sync.Once
	timeline     *Timeline
	disabled     atomic.Bool
}

func (d *DestinationPlugin) Type() PluginType { return PluginTypeDestination }

func (d *DestinationPlugin) Setup(client *Client) error {
	d.Client = client
	return d.Timeline().bind(client)
}

// Execute is not used for destinations; the mediator calls processDestination.
func (d *DestinationPlugin) Execute(*Event) (*Event, error) { return nil, nil }

func (d *DestinationPlugin) Timeline() *Timeline {
	d.timelineOnce.Do(func() { d.timeline = NewTimeline(nil) })
	return d.timeline
}

// Enabled reports whether the destination receives events.
func (d *DestinationPlugin) Enabled() bool { return !d.disabled.Load() }

// SetEnabled toggles delivery to the destination.
// It is safe to call while events are being processed.
func (d *DestinationPlugin) SetEnabled(enabled bool) { d.disabled.Store(!enabled) }

// Add registers a plugin in the destination's nested timeline.
func (d *DestinationPlugin) Add(plugin Plugin) error {
	return d.Timeline().Add(plugin)
}

// Remove unregisters a plugin from the nested timeline.
func (d *DestinationPlugin) Remove(plugin Plugin) {
	d.Timeline().Remove(plugin)
}

func (d *DestinationPlugin) Teardown() {
	d.Timeline().ApplyClosure(func(p Plugin) { p.Teardown() })
}

// processDestination runs the destination's nested Before and Enrichment
// stages, then its handler for the event kind.
func processDestination(d Destination, event *Event) (*Event, error) {
	if event == nil || !d.Enabled() {
		return nil, nil
	}
	nested := d.Timeline()
	result, err := nested.applyStage(PluginTypeBefore, event)
	if err != nil || result == nil {
		return nil, err
	}
	result, err = nested.applyStage(PluginTypeEnrichment, result)
	if err != nil || result == nil {
		return nil, err
	}
	return dispatchByKind(d, result)
}

func dispatchByKind(p EventPlugin, event *Event) (*Event, error) {
	switch event.Kind() {
	case KindIdentify:
		return p.Identify(event)
	case KindGroupIdentify:
		return p.GroupIdentify(event)
	case KindRevenue:
		return p.Revenue(event)
	default:
		return p.Track(event)
	}
}
