package adapters

import "maps"

// Reserved event types with dedicated handling in the pipeline.
const (
	IdentifyEventType      = "$identify"
	GroupIdentifyEventType = "$groupidentify"
	RevenueEventType       = "revenue_amount"
)

// EventKind is the runtime variant of an event, derived from its type.
type EventKind int

const (
	KindTrack EventKind = iota
	KindIdentify
	KindGroupIdentify
	KindRevenue
)

func (k EventKind) String() string {
	switch k {
	case KindIdentify:
		return "identify"
	case KindGroupIdentify:
		return "group_identify"
	case KindRevenue:
		return "revenue"
	default:
		return "track"
	}
}

// EventCallback reports the delivery outcome of a single event.
type EventCallback func(event *Event, status int, message string)

// Plan describes the tracking plan an event belongs to.
type Plan struct {
	Branch    string `json:"branch,omitempty" yaml:"branch,omitempty" mapstructure:"branch"`
	Source    string `json:"source,omitempty" yaml:"source,omitempty" mapstructure:"source"`
	Version   string `json:"version,omitempty" yaml:"version,omitempty" mapstructure:"version"`
	VersionID string `json:"versionId,omitempty" yaml:"version_id,omitempty" mapstructure:"version_id"`
}

// IngestionMetadata identifies the source that produced an event.
type IngestionMetadata struct {
	SourceName    string `json:"source_name,omitempty" yaml:"source_name,omitempty" mapstructure:"source_name"`
	SourceVersion string `json:"source_version,omitempty" yaml:"source_version,omitempty" mapstructure:"source_version"`
}

// EventOptions holds the optional attributes of an event. The same type is
// used as a standalone options object merged onto events at track time.
type EventOptions struct {
	UserID             string   `json:"user_id,omitempty"`
	DeviceID           string   `json:"device_id,omitempty"`
	Timestamp          int64    `json:"time,omitempty"`
	EventID            int64    `json:"event_id,omitempty"`
	SessionID          int64    `json:"session_id,omitempty"`
	InsertID           string   `json:"insert_id,omitempty"`
	LocationLat        *float64 `json:"location_lat,omitempty"`
	LocationLng        *float64 `json:"location_lng,omitempty"`
	AppVersion         string   `json:"app_version,omitempty"`
	VersionName        string   `json:"version_name,omitempty"`
	Platform           string   `json:"platform,omitempty"`
	OSName             string   `json:"os_name,omitempty"`
	OSVersion          string   `json:"os_version,omitempty"`
	DeviceBrand        string   `json:"device_brand,omitempty"`
	DeviceManufacturer string   `json:"device_manufacturer,omitempty"`
	DeviceModel        string   `json:"device_model,omitempty"`
	Carrier            string   `json:"carrier,omitempty"`
	Country            string   `json:"country,omitempty"`
	Region             string   `json:"region,omitempty"`
	City               string   `json:"city,omitempty"`
	DMA                string   `json:"dma,omitempty"`
	Language           string   `json:"language,omitempty"`
	IDFA               string   `json:"idfa,omitempty"`
	IDFV               string   `json:"idfv,omitempty"`
	ADID               string   `json:"adid,omitempty"`
	AndroidID          string   `json:"android_id,omitempty"`
	IP                 string   `json:"ip,omitempty"`
	Library            string   `json:"library,omitempty"`
	PartnerID          string   `json:"partner_id,omitempty"`
	Price              *float64 `json:"price,omitempty"`
	Quantity           int      `json:"quantity,omitempty"`
	Revenue            *float64 `json:"revenue,omitempty"`
	ProductID          string   `json:"productId,omitempty"`
	RevenueType        string   `json:"revenueType,omitempty"`

	Plan              *Plan              `json:"plan,omitempty"`
	IngestionMetadata *IngestionMetadata `json:"ingestion_metadata,omitempty"`

	// Extra is carried through the pipeline for plugins and never uploaded.
	Extra map[string]any `json:"-"`
	// Callback overrides the client-level callback for this event.
	Callback EventCallback `json:"-"`
	// Attempts counts how many times the event has been handed to the pipeline.
	Attempts int `json:"-"`
}

// Event represents a tracked event in its wire shape.
type Event struct {
	EventType       string         `json:"event_type"`
	EventProperties map[string]any `json:"event_properties,omitempty"`
	UserProperties  map[string]any `json:"user_properties,omitempty"`
	Groups          map[string]any `json:"groups,omitempty"`
	GroupProperties map[string]any `json:"group_properties,omitempty"`
	EventOptions
}

// Kind derives the runtime variant from the event type.
func (e *Event) Kind() EventKind {
	switch e.EventType {
	case IdentifyEventType:
		return KindIdentify
	case GroupIdentifyEventType:
		return KindGroupIdentify
	case RevenueEventType:
		return KindRevenue
	default:
		return KindTrack
	}
}

// IsValid reports whether the event can be delivered: it needs a type and at
// least one of user ID or device ID.
func (e *Event) IsValid() bool {
	if e == nil || e.EventType == "" {
		return false
	}
	return e.UserID != "" || e.DeviceID != ""
}

// Clone returns a copy of the event whose maps can be mutated independently.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	c := *e
	c.EventProperties = maps.Clone(e.EventProperties)
	c.UserProperties = maps.Clone(e.UserProperties)
	c.Groups = maps.Clone(e.Groups)
	c.GroupProperties = maps.Clone(e.GroupProperties)
	c.Extra = maps.Clone(e.Extra)
	if e.Plan != nil {
		p := *e.Plan
		c.Plan = &p
	}
	if e.IngestionMetadata != nil {
		m := *e.IngestionMetadata
		c.IngestionMetadata = &m
	}
	return &c
}

// MergeEventOptions copies every option that is set onto the event. Fields
// absent from opts leave the event untouched.
func (e *Event) MergeEventOptions(opts *EventOptions) {
	if opts == nil {
		return
	}
	o := &e.EventOptions

	mergeString(&o.UserID, opts.UserID)
	mergeString(&o.DeviceID, opts.DeviceID)
	mergeInt64(&o.Timestamp, opts.Timestamp)
	mergeInt64(&o.EventID, opts.EventID)
	mergeInt64(&o.SessionID, opts.SessionID)
	mergeString(&o.InsertID, opts.InsertID)
	mergeFloat(&o.LocationLat, opts.LocationLat)
	mergeFloat(&o.LocationLng, opts.LocationLng)
	mergeString(&o.AppVersion, opts.AppVersion)
	mergeString(&o.VersionName, opts.VersionName)
	mergeString(&o.Platform, opts.Platform)
	mergeString(&o.OSName, opts.OSName)
	mergeString(&o.OSVersion, opts.OSVersion)
	mergeString(&o.DeviceBrand, opts.DeviceBrand)
	mergeString(&o.DeviceManufacturer, opts.DeviceManufacturer)
	mergeString(&o.DeviceModel, opts.DeviceModel)
	mergeString(&o.Carrier, opts.Carrier)
	mergeString(&o.Country, opts.Country)
	mergeString(&o.Region, opts.Region)
	mergeString(&o.City, opts.City)
	mergeString(&o.DMA, opts.DMA)
	mergeString(&o.Language, opts.Language)
	mergeString(&o.IDFA, opts.IDFA)
	mergeString(&o.IDFV, opts.IDFV)
	mergeString(&o.ADID, opts.ADID)
	mergeString(&o.AndroidID, opts.AndroidID)
	mergeString(&o.IP, opts.IP)
	mergeString(&o.Library, opts.Library)
	mergeString(&o.PartnerID, opts.PartnerID)
	mergeFloat(&o.Price, opts.Price)
	if opts.Quantity != 0 {
		o.Quantity = opts.Quantity
	}
	mergeFloat(&o.Revenue, opts.Revenue)
	mergeString(&o.ProductID, opts.ProductID)
	mergeString(&o.RevenueType, opts.RevenueType)

	if opts.Plan != nil {
		p := *opts.Plan
		o.Plan = &p
	}
	if opts.IngestionMetadata != nil {
		m := *opts.IngestionMetadata
		o.IngestionMetadata = &m
	}
	if len(opts.Extra) > 0 {
		if o.Extra == nil {
			o.Extra = make(map[string]any, len(opts.Extra))
		}
		maps.Copy(o.Extra, opts.Extra)
	}
	if opts.Callback != nil {
		o.Callback = opts.Callback
	}
}

func mergeString(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

func mergeInt64(dst *int64, src int64) {
	if src != 0 {
		*dst = src
	}
}

func mergeFloat(dst **float64, src *float64) {
	if src != nil {
		v := *src
		*dst = &v
	}
}
