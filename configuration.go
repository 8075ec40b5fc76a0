package ripple

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Tap30/ripple-core-go/adapters"
	"github.com/Tap30/ripple-core-go/eventbridge"
	"github.com/Tap30/ripple-core-go/identity"
)

const (
	DefaultFlushQueueSize  = 30
	DefaultFlushInterval   = 30 * time.Second
	DefaultFlushMaxRetries = 5
	DefaultInstanceName    = "$default_instance"
	DefaultThrottleBackoff = 30 * time.Second
)

var (
	ErrInvalidAPIKey         = errors.New("api key must not be blank")
	ErrInvalidFlushQueueSize = errors.New("flush queue size must be positive")
	ErrInvalidFlushInterval  = errors.New("flush interval must be positive")
	ErrInvalidMaxRetries     = errors.New("flush max retries must not be negative")
	ErrInvalidMinIDLength    = errors.New("min id length must be positive when set")
	ErrInvalidServerZone     = errors.New("server zone must be US or EU")
)

// Configuration controls a Client. Zero values are replaced by defaults in
// NewClient, except APIKey which is required.
type Configuration struct {
	APIKey string

	FlushQueueSize  int
	FlushInterval   time.Duration
	// FlushMaxRetries is the number of upload attempts an event gets before it
	// is dropped. Zero selects DefaultFlushMaxRetries; 1 disables retries.
	FlushMaxRetries int
	// MinIDLength is sent as a request option when non-zero.
	MinIDLength int

	OptOut  bool
	Offline bool

	ServerURL  string
	ServerZone ServerZone
	UseBatch   bool

	InstanceName      string
	Plan              *Plan
	IngestionMetadata *IngestionMetadata
	PartnerID         string

	EnableRequestBodyCompression bool
	// ThrottleBackoff delays the retry of events throttled by the server.
	ThrottleBackoff time.Duration

	// Callback receives the delivery outcome of every event without its own callback.
	Callback EventCallback

	LogLevel LogLevel

	Adapters struct {
		HTTPAdapter    HTTPAdapter
		StorageAdapter StorageAdapter
		LoggerAdapter  LoggerAdapter
	}

	// IdentityStorage persists ids; in-memory when nil.
	IdentityStorage identity.Storage

	// Registries default to process-wide instances so modules sharing an
	// instance name find each other.
	IdentityRegistry *identity.Registry
	BridgeRegistry   *eventbridge.Registry

	// MetricsRegisterer receives the client's collectors; a private registry is used when nil.
	MetricsRegisterer prometheus.Registerer
}

var (
	defaultIdentityRegistry = identity.NewRegistry()
	defaultBridgeRegistry   = eventbridge.NewRegistry()
)

// DefaultIdentityRegistry is shared by clients that do not configure one.
func DefaultIdentityRegistry() *identity.Registry { return defaultIdentityRegistry }

// DefaultBridgeRegistry is shared by clients that do not configure one.
func DefaultBridgeRegistry() *eventbridge.Registry { return defaultBridgeRegistry }

func (c *Configuration) applyDefaults() {
	if c.FlushQueueSize == 0 {
		c.FlushQueueSize = DefaultFlushQueueSize
	}
	if c.FlushInterval == 0 {
		c.FlushInterval = DefaultFlushInterval
	}
	if c.FlushMaxRetries == 0 {
		c.FlushMaxRetries = DefaultFlushMaxRetries
	}
	if c.InstanceName == "" {
		c.InstanceName = DefaultInstanceName
	}
	if c.ServerZone == "" {
		c.ServerZone = ServerZoneUS
	}
	if c.ThrottleBackoff == 0 {
		c.ThrottleBackoff = DefaultThrottleBackoff
	}
	if c.LogLevel == "" {
		c.LogLevel = adapters.LogLevelWarn
	}
	if c.IdentityRegistry == nil {
		c.IdentityRegistry = defaultIdentityRegistry
	}
	if c.BridgeRegistry == nil {
		c.BridgeRegistry = defaultBridgeRegistry
	}
}

// Validate reports every configuration problem at once.
func (c *Configuration) Validate() error {
	var errs []error
	if strings.TrimSpace(c.APIKey) == "" {
		errs = append(errs, ErrInvalidAPIKey)
	}
	if c.FlushQueueSize <= 0 {
		errs = append(errs, fmt.Errorf("%w: %d", ErrInvalidFlushQueueSize, c.FlushQueueSize))
	}
	if c.FlushInterval <= 0 {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidFlushInterval, c.FlushInterval))
	}
	if c.FlushMaxRetries < 0 {
		errs = append(errs, fmt.Errorf("%w: %d", ErrInvalidMaxRetries, c.FlushMaxRetries))
	}
	if c.MinIDLength < 0 {
		errs = append(errs, fmt.Errorf("%w: %d", ErrInvalidMinIDLength, c.MinIDLength))
	}
	if c.ServerZone != ServerZoneUS && c.ServerZone != ServerZoneEU {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidServerZone, c.ServerZone))
	}
	return errors.Join(errs...)
}

// Endpoint resolves the upload URL from ServerURL, ServerZone and UseBatch.
func (c *Configuration) Endpoint() string {
	if c.ServerURL != "" {
		return c.ServerURL
	}
	switch {
	case c.ServerZone == ServerZoneEU && c.UseBatch:
		return EUBatchAPIHost
	case c.ServerZone == ServerZoneEU:
		return EUDefaultAPIHost
	case c.UseBatch:
		return BatchAPIHost
	default:
		return DefaultAPIHost
	}
}
