package ripple

import (
	"context"
	"errors"
	"maps"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Tap30/ripple-core-go/adapters"
	"github.com/Tap30/ripple-core-go/eventbridge"
	"github.com/Tap30/ripple-core-go/identity"
)

// Client is the entry point of the SDK. Event calls return immediately; the
// events are processed in call order on a dedicated goroutine.
type Client struct {
	config         Configuration
	logger         LoggerAdapter
	httpAdapter    HTTPAdapter
	storageAdapter StorageAdapter
	ownsStorage    bool
	metrics        *Metrics
	diagnostics    *Diagnostics

	timeline    *Timeline
	processing  *Executor
	bridge      *eventbridge.Bridge
	idContainer *identity.Container
	listener    identity.Listener
	destination *rippleDestination

	optOut atomic.Bool
	closed atomic.Bool
}

// NewClient validates config and starts a client.
func NewClient(config Configuration) (*Client, error) {
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		config:      config,
		diagnostics: NewDiagnostics(),
	}

	if config.Adapters.LoggerAdapter != nil {
		c.logger = config.Adapters.LoggerAdapter
	} else {
		c.logger = adapters.NewSlogLoggerAdapter(config.LogLevel)
	}
	if config.Adapters.HTTPAdapter != nil {
		c.httpAdapter = config.Adapters.HTTPAdapter
	} else {
		c.httpAdapter = adapters.NewNetHTTPAdapter(adapters.WithCompression(config.EnableRequestBodyCompression))
	}
	if config.Adapters.StorageAdapter != nil {
		c.storageAdapter = config.Adapters.StorageAdapter
	} else {
		c.storageAdapter = adapters.NewMemoryStorageAdapter(0)
		c.ownsStorage = true
	}

	container, err := config.IdentityRegistry.Get(config.InstanceName, config.IdentityStorage)
	if err != nil {
		return nil, err
	}
	c.idContainer = container
	c.bridge = config.BridgeRegistry.Get(config.InstanceName)
	c.metrics = NewMetrics(config.MetricsRegisterer, config.InstanceName, func() float64 {
		return float64(c.bridge.Dropped())
	})
	c.optOut.Store(config.OptOut)

	if c.identityManager().Identity().DeviceID == "" {
		if err := c.identityManager().EditIdentity().SetDeviceID(uuid.NewString()).Commit(); err != nil {
			c.logger.Warn("failed to persist generated device id", "error", err)
		}
	}

	c.timeline = NewTimeline(c)
	c.processing = NewExecutor("processing", c.logger)
	c.destination = newRippleDestination()
	for _, p := range []Plugin{newContextPlugin(), c.destination} {
		if err := c.timeline.Add(p); err != nil {
			c.processing.Stop()
			return nil, err
		}
	}

	c.listener = &identity.ListenerFuncs{IdentityChanged: c.onIdentityChanged}
	c.identityManager().AddListener(c.listener)

	bound := c.bridge.SetEventReceiver(eventbridge.ChannelEvent, eventbridge.ReceiverFunc(func(_ eventbridge.Channel, e eventbridge.Event) {
		c.TrackEvent(fromBridgeEvent(e), nil, nil)
	}))
	if !bound {
		c.logger.Debug("event channel already has a receiver", "instance", config.InstanceName)
	}

	c.logger.Info("client initialized", "instance", config.InstanceName, "endpoint", config.Endpoint())
	return c, nil
}

func (c *Client) identityManager() *identity.Manager {
	return c.idContainer.Manager
}

// Configuration returns a copy of the effective configuration.
func (c *Client) Configuration() Configuration {
	return c.config
}

// Metrics exposes the client's collectors.
func (c *Client) Metrics() *Metrics {
	return c.metrics
}

// Track records an event of eventType.
func (c *Client) Track(eventType string, props map[string]any, opts *EventOptions) {
	c.TrackEvent(&Event{EventType: eventType, EventProperties: maps.Clone(props)}, opts, nil)
}

// TrackEvent records a prepared event. Options overwrite the event fields they
// set and callback, when not nil, receives the delivery outcome.
func (c *Client) TrackEvent(event *Event, opts *EventOptions, callback EventCallback) {
	if event == nil {
		return
	}
	if opts != nil {
		event.MergeEventOptions(opts)
	}
	if callback != nil {
		event.Callback = callback
	}
	c.process(event)
}

// Identify sets the given user properties.
func (c *Client) Identify(userProps map[string]any, opts *EventOptions) {
	c.IdentifyWith(identifyFromMap(userProps), opts)
}

// IdentifyWith sends the user property operations of id.
func (c *Client) IdentifyWith(id *Identify, opts *EventOptions) {
	if id == nil {
		return
	}
	c.TrackEvent(&Event{EventType: IdentifyEventType, UserProperties: id.Properties()}, opts, nil)
}

// GroupIdentify sets properties of the group groupType:groupName.
func (c *Client) GroupIdentify(groupType, groupName string, props map[string]any, opts *EventOptions) {
	c.GroupIdentifyWith(groupType, groupName, identifyFromMap(props), opts)
}

// GroupIdentifyWith sends the group property operations of id.
func (c *Client) GroupIdentifyWith(groupType, groupName string, id *Identify, opts *EventOptions) {
	if id == nil {
		return
	}
	c.TrackEvent(&Event{
		EventType:       GroupIdentifyEventType,
		Groups:          map[string]any{groupType: groupName},
		GroupProperties: id.Properties(),
	}, opts, nil)
}

// SetGroup assigns the current user to groupName, which is a string or a
// slice of strings.
func (c *Client) SetGroup(groupType string, groupName any, opts *EventOptions) {
	c.TrackEvent(&Event{
		EventType:      IdentifyEventType,
		Groups:         map[string]any{groupType: groupName},
		UserProperties: map[string]any{string(OpSet): map[string]any{groupType: groupName}},
	}, opts, nil)
}

// Revenue records a purchase. Revenue without a price is dropped.
func (c *Client) Revenue(r *Revenue, opts *EventOptions) {
	if !r.IsValid() {
		c.logger.Warn("invalid revenue object, missing required fields")
		c.metrics.dropped(DropReasonInvalid, 1)
		return
	}
	c.TrackEvent(r.ToEvent(), opts, nil)
}

// SetUserID changes the user id and keeps the user properties.
func (c *Client) SetUserID(userID string) {
	c.submit(func() {
		id := c.identityManager().Identity()
		id.UserID = userID
		if err := c.identityManager().SetIdentity(id, identity.UpdateUpdated); err != nil {
			c.logger.Warn("failed to persist user id", "error", err)
		}
	})
}

// SetDeviceID changes the device id and keeps the user properties.
func (c *Client) SetDeviceID(deviceID string) {
	c.submit(func() {
		id := c.identityManager().Identity()
		id.DeviceID = deviceID
		if err := c.identityManager().SetIdentity(id, identity.UpdateUpdated); err != nil {
			c.logger.Warn("failed to persist device id", "error", err)
		}
	})
}

func (c *Client) UserID() string {
	return c.identityManager().Identity().UserID
}

func (c *Client) DeviceID() string {
	return c.identityManager().Identity().DeviceID
}

// Reset forgets the user: the user id and properties are cleared and a new
// device id ending in "R" is generated.
func (c *Client) Reset() {
	c.submit(func() {
		err := c.identityManager().EditIdentity().
			SetUserID("").
			SetDeviceID(uuid.NewString() + "R").
			SetUserProperties(map[string]any{}).
			Commit()
		if err != nil {
			c.logger.Warn("failed to persist reset identity", "error", err)
		}
	})
}

// Add registers a plugin.
func (c *Client) Add(plugin Plugin) error {
	return c.timeline.Add(plugin)
}

// Remove unregisters and tears down a plugin.
func (c *Client) Remove(plugin Plugin) {
	c.timeline.Remove(plugin)
}

// Plugin finds a registered plugin by name.
func (c *Client) Plugin(name string) Plugin {
	return c.timeline.Find(name)
}

// Flush asks every event plugin to flush, after the events tracked before it
// have been processed.
func (c *Client) Flush() {
	c.submit(func() {
		c.timeline.ApplyClosure(func(p Plugin) {
			if ep, ok := p.(EventPlugin); ok {
				ep.Flush()
			}
		})
	})
}

// SetOptOut stops or resumes event processing.
func (c *Client) SetOptOut(optOut bool) {
	if c.optOut.Swap(optOut) == optOut {
		return
	}
	c.timeline.ApplyClosure(func(p Plugin) {
		if o, ok := p.(OptOutObserver); ok {
			o.OnOptOutChanged(optOut)
		}
	})
}

func (c *Client) OptOut() bool {
	return c.optOut.Load()
}

// SetOffline suspends or resumes uploads. Events are still buffered while offline.
func (c *Client) SetOffline(offline bool) {
	c.destination.setOffline(offline)
}

// Shutdown processes the events already tracked, uploads what is buffered
// and releases resources. The client cannot be used afterwards.
func (c *Client) Shutdown(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.processing.Stop()
	c.identityManager().RemoveListener(c.listener)

	err := c.destination.shutdown(ctx)
	c.timeline.ApplyClosure(func(p Plugin) { p.Teardown() })
	if c.ownsStorage {
		err = errors.Join(err, c.storageAdapter.Close())
	}
	c.logger.Info("client shut down", "instance", c.config.InstanceName)
	return err
}

func (c *Client) submit(task func()) {
	if !c.processing.Submit(task) {
		c.logger.Warn("client is shut down, ignoring call")
	}
}

func (c *Client) process(event *Event) {
	if c.optOut.Load() {
		c.logger.Info("skipping event, client is opted out", "event_type", event.EventType)
		c.metrics.dropped(DropReasonOptOut, 1)
		return
	}
	c.submit(func() {
		if event.Timestamp == 0 {
			event.Timestamp = time.Now().UnixMilli()
		}
		c.updateIdentityFromIdentifyEvent(event)

		c.logger.Debug("processing event", "event_type", event.EventType)
		if _, err := c.timeline.Process(event); err != nil {
			c.logger.Error("event processing failed", "event_type", event.EventType, "error", err)
			c.diagnostics.AddErrorLog(err.Error())
		}
	})
}

func (c *Client) updateIdentityFromIdentifyEvent(event *Event) {
	if event.Kind() != KindIdentify {
		return
	}
	current := c.identityManager().Identity()
	userID, deviceID := event.UserID, event.DeviceID
	if userID == "" {
		userID = current.UserID
	}
	if deviceID == "" {
		deviceID = current.DeviceID
	}
	err := c.identityManager().EditIdentity().
		SetUserID(userID).
		SetDeviceID(deviceID).
		SetUserProperties(applyUserPropertyOperations(current.UserProperties, event.UserProperties)).
		Commit()
	if err != nil {
		c.logger.Warn("failed to persist identity from identify event", "error", err)
	}
}

func (c *Client) onIdentityChanged(id identity.Identity, updateType identity.UpdateType) {
	c.timeline.ApplyClosure(func(p Plugin) {
		if o, ok := p.(IdentityObserver); ok {
			o.OnIdentityChanged(id, updateType)
		}
	})
}
