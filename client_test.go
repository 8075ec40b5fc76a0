package ripple

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tap30/ripple-core-go/adapters"
	"github.com/Tap30/ripple-core-go/eventbridge"
	"github.com/Tap30/ripple-core-go/identity"
	"github.com/Tap30/ripple-core-go/internal/collectortest"
)

func testClientConfig(server *collectortest.Server) Configuration {
	cfg := Configuration{
		APIKey:           "test-api-key",
		ServerURL:        server.URL,
		FlushQueueSize:   10,
		FlushInterval:    time.Hour,
		IdentityRegistry: identity.NewRegistry(),
		BridgeRegistry:   eventbridge.NewRegistry(),
	}
	cfg.Adapters.LoggerAdapter = adapters.NewNoOpLoggerAdapter()
	return cfg
}

func newTestClient(t *testing.T, server *collectortest.Server, mutate func(*Configuration)) *Client {
	t.Helper()
	cfg := testClientConfig(server)
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := NewClient(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Shutdown(context.Background()) })
	return c
}

func newCollector(t *testing.T) *collectortest.Server {
	t.Helper()
	server := collectortest.NewServer()
	t.Cleanup(server.Close)
	return server
}

// flushAndWait flushes c and waits until server holds n events.
func flushAndWait(t *testing.T, c *Client, server *collectortest.Server, n int) []map[string]any {
	t.Helper()
	c.Flush()
	require.Eventually(t, func() bool { return len(server.Events()) >= n }, waitFor, tick)
	return server.Events()
}

type identityRecorder struct {
	BasePlugin
	mu      sync.Mutex
	changes []identity.Identity
}

func (r *identityRecorder) OnIdentityChanged(id identity.Identity, _ identity.UpdateType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, id)
}

func (r *identityRecorder) last() (identity.Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.changes) == 0 {
		return identity.Identity{}, false
	}
	return r.changes[len(r.changes)-1], true
}

func TestNewClient(t *testing.T) {
	t.Run("should reject a blank api key", func(t *testing.T) {
		_, err := NewClient(Configuration{APIKey: "  "})
		require.ErrorIs(t, err, ErrInvalidAPIKey)
	})

	t.Run("should apply defaults", func(t *testing.T) {
		server := newCollector(t)
		c := newTestClient(t, server, func(cfg *Configuration) {
			cfg.FlushQueueSize = 0
			cfg.FlushInterval = 0
		})

		got := c.Configuration()
		assert.Equal(t, DefaultFlushQueueSize, got.FlushQueueSize)
		assert.Equal(t, DefaultFlushInterval, got.FlushInterval)
		assert.Equal(t, DefaultFlushMaxRetries, got.FlushMaxRetries)
		assert.Equal(t, DefaultInstanceName, got.InstanceName)
		assert.Equal(t, ServerZoneUS, got.ServerZone)
	})

	t.Run("should keep a single upload attempt", func(t *testing.T) {
		server := newCollector(t)
		c := newTestClient(t, server, func(cfg *Configuration) { cfg.FlushMaxRetries = 1 })

		assert.Equal(t, 1, c.Configuration().FlushMaxRetries)
	})

	t.Run("should generate a device id", func(t *testing.T) {
		c := newTestClient(t, newCollector(t), nil)
		assert.NotEmpty(t, c.DeviceID())
		assert.Empty(t, c.UserID())
	})

	t.Run("should keep a stored device id", func(t *testing.T) {
		storage := identity.NewMemoryStorage()
		require.NoError(t, storage.SaveDeviceID("stored-device"))

		c := newTestClient(t, newCollector(t), func(cfg *Configuration) { cfg.IdentityStorage = storage })

		assert.Equal(t, "stored-device", c.DeviceID())
	})

	t.Run("should register the built-in plugins", func(t *testing.T) {
		c := newTestClient(t, newCollector(t), nil)
		assert.NotNil(t, c.Plugin("context"))
		assert.NotNil(t, c.Plugin("ripple"))
		assert.Nil(t, c.Plugin("missing"))
	})
}

func TestClient_Track(t *testing.T) {
	t.Run("should upload tracked events with context", func(t *testing.T) {
		server := newCollector(t)
		c := newTestClient(t, server, func(cfg *Configuration) {
			cfg.PartnerID = "partner"
			cfg.Plan = &Plan{Branch: "main"}
		})

		c.SetUserID("user-1")
		c.Track("page_view", map[string]any{"page": "/home"}, nil)
		events := flushAndWait(t, c, server, 1)

		e := events[0]
		assert.Equal(t, "page_view", e["event_type"])
		assert.Equal(t, map[string]any{"page": "/home"}, e["event_properties"])
		assert.Equal(t, "user-1", e["user_id"])
		assert.Equal(t, c.DeviceID(), e["device_id"])
		assert.Equal(t, "ripple-go/0.3.0", e["library"])
		assert.Equal(t, "partner", e["partner_id"])
		assert.Equal(t, map[string]any{"branch": "main"}, e["plan"])
		assert.NotEmpty(t, e["insert_id"])
		assert.NotZero(t, e["time"])

		req := server.Requests()[0]
		assert.Equal(t, "test-api-key", req.APIKey)
		assert.NotEmpty(t, req.ClientUploadTime)
	})

	t.Run("should keep options over identity", func(t *testing.T) {
		server := newCollector(t)
		c := newTestClient(t, server, nil)

		c.SetUserID("user-1")
		c.Track("click", nil, &EventOptions{UserID: "override", Platform: "cli"})
		events := flushAndWait(t, c, server, 1)

		assert.Equal(t, "override", events[0]["user_id"])
		assert.Equal(t, "cli", events[0]["platform"])
	})

	t.Run("should upload once the queue reaches the flush size", func(t *testing.T) {
		server := newCollector(t)
		c := newTestClient(t, server, func(cfg *Configuration) { cfg.FlushQueueSize = 3 })

		for range 3 {
			c.Track("click", nil, nil)
		}

		require.Eventually(t, func() bool { return len(server.Events()) == 3 }, waitFor, tick)
		assert.Len(t, server.Requests(), 1)
	})

	t.Run("should report delivery to callbacks", func(t *testing.T) {
		server := newCollector(t)
		configRec, eventRec := &callbackRecorder{}, &callbackRecorder{}
		c := newTestClient(t, server, func(cfg *Configuration) { cfg.Callback = configRec.callback })

		c.TrackEvent(&Event{EventType: "purchase"}, nil, eventRec.callback)
		c.Flush()

		require.Eventually(t, func() bool { return len(eventRec.all()) == 1 }, waitFor, tick)
		assert.Equal(t, 200, eventRec.all()[0].status)
		assert.Equal(t, "Event sent success.", eventRec.all()[0].message)
		assert.Len(t, configRec.all(), 1)
	})

	t.Run("should drop invalid events", func(t *testing.T) {
		server := newCollector(t)
		c := newTestClient(t, server, nil)

		c.Track("", nil, nil)
		c.Track("valid", nil, nil)
		flushAndWait(t, c, server, 1)

		assert.Len(t, server.Events(), 1)
		assert.Equal(t, 1.0, testutil.ToFloat64(c.Metrics().EventsDropped.WithLabelValues(DropReasonInvalid)))
		assert.Equal(t, 1.0, testutil.ToFloat64(c.Metrics().EventsEnqueued))
	})

	t.Run("should forward events from the bridge", func(t *testing.T) {
		server := newCollector(t)
		c := newTestClient(t, server, nil)

		require.True(t, c.bridge.SendEvent(eventbridge.ChannelEvent, eventbridge.Event{EventType: "bridged"}))
		events := flushAndWait(t, c, server, 1)

		assert.Equal(t, "bridged", events[0]["event_type"])
	})
}

func TestClient_OptOut(t *testing.T) {
	server := newCollector(t)
	c := newTestClient(t, server, func(cfg *Configuration) { cfg.OptOut = true })

	assert.True(t, c.OptOut())
	c.Track("ignored", nil, nil)
	c.SetOptOut(false)
	c.Track("kept", nil, nil)
	events := flushAndWait(t, c, server, 1)

	require.Len(t, events, 1)
	assert.Equal(t, "kept", events[0]["event_type"])
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Metrics().EventsDropped.WithLabelValues(DropReasonOptOut)))
}

func TestClient_Identify(t *testing.T) {
	t.Run("should fold operations into the identity", func(t *testing.T) {
		server := newCollector(t)
		c := newTestClient(t, server, nil)
		props := func() map[string]any { return c.identityManager().Identity().UserProperties }

		c.Identify(map[string]any{"plan": "pro", "seats": 3}, nil)
		require.Eventually(t, func() bool { return len(props()) == 2 }, waitFor, tick)

		c.IdentifyWith(NewIdentify().Unset("plan").Set("tier", "gold"), nil)
		require.Eventually(t, func() bool { return props()["tier"] == "gold" }, waitFor, tick)
		assert.Equal(t, map[string]any{"seats": 3, "tier": "gold"}, props())

		c.IdentifyWith(NewIdentify().ClearAll(), nil)
		require.Eventually(t, func() bool { return len(props()) == 0 }, waitFor, tick)
	})

	t.Run("should upload the identify event", func(t *testing.T) {
		server := newCollector(t)
		c := newTestClient(t, server, nil)

		c.Identify(map[string]any{"plan": "pro"}, &EventOptions{UserID: "user-2"})
		events := flushAndWait(t, c, server, 1)

		assert.Equal(t, IdentifyEventType, events[0]["event_type"])
		assert.Equal(t, map[string]any{"$set": map[string]any{"plan": "pro"}}, events[0]["user_properties"])
		assert.Equal(t, "user-2", c.UserID())
	})

	t.Run("should publish user property changes on the bridge", func(t *testing.T) {
		server := newCollector(t)
		c := newTestClient(t, server, nil)
		var mu sync.Mutex
		var received []eventbridge.Event
		c.bridge.SetEventReceiver(eventbridge.ChannelIdentify, eventbridge.ReceiverFunc(func(_ eventbridge.Channel, e eventbridge.Event) {
			mu.Lock()
			defer mu.Unlock()
			received = append(received, e)
		}))

		c.Identify(map[string]any{"plan": "pro"}, nil)

		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(received) == 1
		}, waitFor, tick)
	})

	t.Run("should send group identify and set group", func(t *testing.T) {
		server := newCollector(t)
		c := newTestClient(t, server, nil)

		c.GroupIdentify("org", "tap30", map[string]any{"size": "large"}, nil)
		c.SetGroup("org", []string{"tap30", "ripple"}, nil)
		events := flushAndWait(t, c, server, 2)

		assert.Equal(t, GroupIdentifyEventType, events[0]["event_type"])
		assert.Equal(t, map[string]any{"org": "tap30"}, events[0]["groups"])
		assert.Equal(t, map[string]any{"$set": map[string]any{"size": "large"}}, events[0]["group_properties"])

		assert.Equal(t, IdentifyEventType, events[1]["event_type"])
		assert.Equal(t, map[string]any{"org": []any{"tap30", "ripple"}}, events[1]["groups"])
		assert.Equal(t, map[string]any{"$set": map[string]any{"org": []any{"tap30", "ripple"}}}, events[1]["user_properties"])
	})
}

func TestClient_Identity(t *testing.T) {
	t.Run("should keep user properties when ids change", func(t *testing.T) {
		c := newTestClient(t, newCollector(t), nil)

		c.Identify(map[string]any{"plan": "pro"}, nil)
		c.SetUserID("user-1")
		c.SetDeviceID("device-1")

		require.Eventually(t, func() bool { return c.DeviceID() == "device-1" }, waitFor, tick)
		assert.Equal(t, "user-1", c.UserID())
		assert.Equal(t, map[string]any{"plan": "pro"}, c.identityManager().Identity().UserProperties)
	})

	t.Run("should reset to an anonymous device", func(t *testing.T) {
		c := newTestClient(t, newCollector(t), nil)
		c.Identify(map[string]any{"plan": "pro"}, &EventOptions{UserID: "user-1"})
		previous := c.DeviceID()

		c.Reset()

		require.Eventually(t, func() bool { return c.UserID() == "" && c.DeviceID() != previous }, waitFor, tick)
		assert.True(t, strings.HasSuffix(c.DeviceID(), "R"))
		assert.Empty(t, c.identityManager().Identity().UserProperties)
	})

	t.Run("should notify identity observers", func(t *testing.T) {
		c := newTestClient(t, newCollector(t), nil)
		rec := &identityRecorder{BasePlugin: BasePlugin{PluginType: PluginTypeUtility}}
		require.NoError(t, c.Add(rec))

		c.SetUserID("observed")

		require.Eventually(t, func() bool {
			id, ok := rec.last()
			return ok && id.UserID == "observed"
		}, waitFor, tick)
	})
}

func TestClient_Revenue(t *testing.T) {
	t.Run("should upload revenue events", func(t *testing.T) {
		server := newCollector(t)
		c := newTestClient(t, server, nil)
		price := 9.99

		c.Revenue(&Revenue{ProductID: "sku-1", Price: &price, Quantity: 2}, nil)
		events := flushAndWait(t, c, server, 1)

		assert.Equal(t, RevenueEventType, events[0]["event_type"])
		assert.Equal(t, map[string]any{"$productId": "sku-1", "$price": 9.99, "$quantity": 2.0}, events[0]["event_properties"])
	})

	t.Run("should drop revenue without a price", func(t *testing.T) {
		c := newTestClient(t, newCollector(t), nil)

		c.Revenue(&Revenue{ProductID: "sku-1"}, nil)

		assert.Equal(t, 1.0, testutil.ToFloat64(c.Metrics().EventsDropped.WithLabelValues(DropReasonInvalid)))
	})
}

func TestClient_Plugins(t *testing.T) {
	server := newCollector(t)
	c := newTestClient(t, server, nil)
	tagger := newFuncPlugin(PluginTypeEnrichment, "tagger", func(e *Event) (*Event, error) {
		if e.EventProperties == nil {
			e.EventProperties = map[string]any{}
		}
		e.EventProperties["tagged"] = true
		return e, nil
	})
	require.NoError(t, c.Add(tagger))
	assert.Same(t, tagger, c.Plugin("tagger"))

	c.Track("first", nil, nil)
	flushAndWait(t, c, server, 1)
	c.Remove(tagger)
	c.Track("second", nil, nil)
	events := flushAndWait(t, c, server, 2)

	assert.Equal(t, true, events[0]["event_properties"].(map[string]any)["tagged"])
	assert.Nil(t, events[1]["event_properties"])
	assert.True(t, tagger.tornDown)
}

func TestClient_Offline(t *testing.T) {
	server := newCollector(t)
	c := newTestClient(t, server, func(cfg *Configuration) { cfg.Offline = true })

	c.Track("buffered", nil, nil)
	c.Flush()
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, server.Requests())

	c.SetOffline(false)

	require.Eventually(t, func() bool { return len(server.Events()) == 1 }, waitFor, tick)
}

func TestClient_Shutdown(t *testing.T) {
	t.Run("should upload buffered events", func(t *testing.T) {
		server := newCollector(t)
		c := newTestClient(t, server, nil)

		c.Track("one", nil, nil)
		c.Track("two", nil, nil)
		require.NoError(t, c.Shutdown(context.Background()))

		assert.Len(t, server.Events(), 2)
	})

	t.Run("should ignore calls after shutdown", func(t *testing.T) {
		server := newCollector(t)
		c := newTestClient(t, server, nil)
		require.NoError(t, c.Shutdown(context.Background()))

		c.Track("late", nil, nil)
		c.Flush()

		assert.NoError(t, c.Shutdown(context.Background()))
		assert.Empty(t, server.Requests())
	})
}
