package ripple

import (
	"github.com/Tap30/ripple-core-go/adapters"
)

// Re-export adapter types for convenience
type (
	Event             = adapters.Event
	EventOptions      = adapters.EventOptions
	EventCallback     = adapters.EventCallback
	EventKind         = adapters.EventKind
	Plan              = adapters.Plan
	IngestionMetadata = adapters.IngestionMetadata
	HTTPAdapter       = adapters.HTTPAdapter
	HTTPResponse      = adapters.HTTPResponse
	StorageAdapter    = adapters.StorageAdapter
	LoggerAdapter     = adapters.LoggerAdapter
	LogLevel          = adapters.LogLevel
)

const (
	SDKLibrary = "ripple-go"
	SDKVersion = "0.3.0"

	DefaultAPIHost   = "https://api2.amplitude.com/2/httpapi"
	EUDefaultAPIHost = "https://api.eu.amplitude.com/2/httpapi"
	BatchAPIHost     = "https://api2.amplitude.com/batch"
	EUBatchAPIHost   = "https://api.eu.amplitude.com/batch"

	IdentifyEventType      = adapters.IdentifyEventType
	GroupIdentifyEventType = adapters.GroupIdentifyEventType
	RevenueEventType       = adapters.RevenueEventType

	MaxPropertyKeys = 1024
	MaxStringLength = 1024
)

const (
	KindTrack         = adapters.KindTrack
	KindIdentify      = adapters.KindIdentify
	KindGroupIdentify = adapters.KindGroupIdentify
	KindRevenue       = adapters.KindRevenue
)

// ServerZone selects the regional collection endpoint.
type ServerZone string

const (
	ServerZoneUS ServerZone = "US"
	ServerZoneEU ServerZone = "EU"
)
