package ripple

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfiguration_Validate(t *testing.T) {
	valid := func() Configuration {
		cfg := Configuration{APIKey: "key"}
		cfg.applyDefaults()
		return cfg
	}

	t.Run("should accept defaults", func(t *testing.T) {
		cfg := valid()
		assert.NoError(t, cfg.Validate())
	})

	cases := []struct {
		name   string
		mutate func(*Configuration)
		want   error
	}{
		{"blank api key", func(c *Configuration) { c.APIKey = "" }, ErrInvalidAPIKey},
		{"negative flush queue size", func(c *Configuration) { c.FlushQueueSize = -1 }, ErrInvalidFlushQueueSize},
		{"negative flush interval", func(c *Configuration) { c.FlushInterval = -1 }, ErrInvalidFlushInterval},
		{"negative max retries", func(c *Configuration) { c.FlushMaxRetries = -1 }, ErrInvalidMaxRetries},
		{"negative min id length", func(c *Configuration) { c.MinIDLength = -5 }, ErrInvalidMinIDLength},
		{"unknown server zone", func(c *Configuration) { c.ServerZone = "APAC" }, ErrInvalidServerZone},
	}
	for _, tc := range cases {
		t.Run("should reject "+tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			require.ErrorIs(t, cfg.Validate(), tc.want)
		})
	}

	t.Run("should report every problem", func(t *testing.T) {
		cfg := Configuration{FlushQueueSize: -1, ServerZone: ServerZoneUS, FlushInterval: 1}
		err := cfg.Validate()
		assert.ErrorIs(t, err, ErrInvalidAPIKey)
		assert.ErrorIs(t, err, ErrInvalidFlushQueueSize)
	})
}

func TestConfiguration_Endpoint(t *testing.T) {
	cases := []struct {
		name string
		cfg  Configuration
		want string
	}{
		{"default", Configuration{ServerZone: ServerZoneUS}, DefaultAPIHost},
		{"eu", Configuration{ServerZone: ServerZoneEU}, EUDefaultAPIHost},
		{"batch", Configuration{ServerZone: ServerZoneUS, UseBatch: true}, BatchAPIHost},
		{"eu batch", Configuration{ServerZone: ServerZoneEU, UseBatch: true}, EUBatchAPIHost},
		{"server url wins", Configuration{ServerZone: ServerZoneEU, UseBatch: true, ServerURL: "http://localhost:8080"}, "http://localhost:8080"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.cfg.Endpoint())
		})
	}
}
