package ripple

import (
	"maps"

	"github.com/Tap30/ripple-core-go/eventbridge"
)

// identityEventSender publishes events that change user properties on the
// bridge's identify channel so other modules of the instance can follow.
type identityEventSender struct {
	BasePlugin
	bridge *eventbridge.Bridge
}

func newIdentityEventSender() *identityEventSender {
	return &identityEventSender{BasePlugin: BasePlugin{PluginType: PluginTypeBefore}}
}

func (p *identityEventSender) Name() string { return "identity-event-sender" }

func (p *identityEventSender) Setup(client *Client) error {
	p.Client = client
	p.bridge = client.bridge
	return nil
}

func (p *identityEventSender) Execute(event *Event) (*Event, error) {
	if p.bridge == nil || len(event.UserProperties) == 0 {
		return event, nil
	}
	if !p.bridge.SendEvent(eventbridge.ChannelIdentify, toBridgeEvent(event)) {
		p.Client.logger.Warn("identify channel full, dropping bridge event", "event_type", event.EventType)
	}
	return event, nil
}

func toBridgeEvent(e *Event) eventbridge.Event {
	return eventbridge.Event{
		EventType:       e.EventType,
		EventProperties: maps.Clone(e.EventProperties),
		UserProperties:  maps.Clone(e.UserProperties),
		Groups:          maps.Clone(e.Groups),
		GroupProperties: maps.Clone(e.GroupProperties),
	}
}

func fromBridgeEvent(e eventbridge.Event) *Event {
	return &Event{
		EventType:       e.EventType,
		EventProperties: maps.Clone(e.EventProperties),
		UserProperties:  maps.Clone(e.UserProperties),
		Groups:          maps.Clone(e.Groups),
		GroupProperties: maps.Clone(e.GroupProperties),
	}
}
