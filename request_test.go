package ripple

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyticsRequest_BodyString(t *testing.T) {
	t.Run("should encode the minimal body", func(t *testing.T) {
		req := AnalyticsRequest{APIKey: "KEY", Events: `{"event_type":"test"}`, ClientUploadTime: 1629849600000}

		body, err := req.BodyString()
		require.NoError(t, err)
		assert.Equal(t, `{"api_key":"KEY","client_upload_time":"2021-08-25T00:00:00.000Z","events":{"event_type":"test"}}`, body)
	})

	t.Run("should include min id length when set", func(t *testing.T) {
		req := AnalyticsRequest{APIKey: "KEY", Events: `[]`, ClientUploadTime: 1629849600123, MinIDLength: 3}

		body, err := req.BodyString()
		require.NoError(t, err)
		assert.Equal(t, `{"api_key":"KEY","client_upload_time":"2021-08-25T00:00:00.123Z","events":[],"options":{"min_id_length":3}}`, body)
	})

	t.Run("should include diagnostics as request metadata", func(t *testing.T) {
		req := AnalyticsRequest{APIKey: "KEY", Events: `[]`, ClientUploadTime: 0, Diagnostics: `{"error_logs":["log"]}`}

		body, err := req.BodyString()
		require.NoError(t, err)
		assert.Equal(t, `{"api_key":"KEY","client_upload_time":"1970-01-01T00:00:00.000Z","events":[],"request_metadata":{"sdk":{"error_logs":["log"]}}}`, body)
	})
}

func TestNewAnalyticsRequest(t *testing.T) {
	t.Run("should encode events without escaping html", func(t *testing.T) {
		events := []*Event{{EventType: "<click>", EventOptions: EventOptions{UserID: "u&1"}}}

		req, err := NewAnalyticsRequest("KEY", events, 0, "", time.UnixMilli(1629849600000))
		require.NoError(t, err)
		assert.Equal(t, int64(1629849600000), req.ClientUploadTime)
		assert.Contains(t, req.Events, `"event_type":"<click>"`)
		assert.Contains(t, req.Events, `"user_id":"u&1"`)
	})
}
