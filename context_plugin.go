package ripple

import (
	"time"

	"github.com/google/uuid"
)

// contextPlugin always sets the library. Insert id, time, identity and the
// configured context are filled only where the event has no value yet.
type contextPlugin struct {
	BasePlugin
	now func() time.Time
}

func newContextPlugin() *contextPlugin {
	return &contextPlugin{BasePlugin: BasePlugin{PluginType: PluginTypeBefore}, now: time.Now}
}

func (p *contextPlugin) Name() string { return "context" }

func (p *contextPlugin) Execute(event *Event) (*Event, error) {
	event.Library = SDKLibrary + "/" + SDKVersion
	if event.Timestamp == 0 {
		event.Timestamp = p.now().UnixMilli()
	}
	if event.InsertID == "" {
		event.InsertID = uuid.NewString()
	}

	c := p.Client
	if c == nil {
		return event, nil
	}
	id := c.identityManager().Identity()
	if event.UserID == "" {
		event.UserID = id.UserID
	}
	if event.DeviceID == "" {
		event.DeviceID = id.DeviceID
	}

	cfg := c.config
	if event.Plan == nil && cfg.Plan != nil {
		plan := *cfg.Plan
		event.Plan = &plan
	}
	if event.IngestionMetadata == nil && cfg.IngestionMetadata != nil {
		md := *cfg.IngestionMetadata
		event.IngestionMetadata = &md
	}
	if event.PartnerID == "" {
		event.PartnerID = cfg.PartnerID
	}
	return event, nil
}
