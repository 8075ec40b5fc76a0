package ripple

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAnalyticsResponse(t *testing.T) {
	t.Run("should classify status codes", func(t *testing.T) {
		cases := map[int]HTTPStatus{
			200: StatusSuccess,
			204: StatusSuccess,
			299: StatusSuccess,
			400: StatusBadRequest,
			408: StatusTimeout,
			413: StatusPayloadTooLarge,
			429: StatusTooManyRequests,
			500: StatusFailed,
			503: StatusFailed,
			404: StatusFailed,
			302: StatusFailed,
		}
		for code, want := range cases {
			resp := NewAnalyticsResponse(code, "")
			assert.Equal(t, want, resp.Status(), "code %d", code)
			assert.Equal(t, code, resp.Code())
		}
	})

	t.Run("should parse bad request payload", func(t *testing.T) {
		body := `{
			"code": 400,
			"error": "Request missing required field",
			"missing_field": "api_key",
			"events_with_invalid_fields": {"time": [3, 4, 7]},
			"events_with_missing_fields": {"event_type": [3, 5, 6]},
			"silenced_events": [2],
			"silenced_devices": ["d1"]
		}`

		resp, ok := NewAnalyticsResponse(400, body).(BadRequestResponse)
		require.True(t, ok)
		assert.Equal(t, "Request missing required field", resp.Error)
		assert.Equal(t, []int{3, 4, 7}, resp.EventsWithInvalidFields)
		assert.Equal(t, []int{3, 5, 6}, resp.EventsWithMissingFields)
		assert.Equal(t, map[int]struct{}{2: {}, 3: {}, 4: {}, 5: {}, 6: {}, 7: {}}, resp.EventIndicesToDrop())
		assert.True(t, resp.IsEventSilenced(&Event{EventOptions: EventOptions{DeviceID: "d1"}}))
		assert.False(t, resp.IsEventSilenced(&Event{EventOptions: EventOptions{DeviceID: "d2"}}))
		assert.False(t, resp.IsInvalidAPIKey())
	})

	t.Run("should detect invalid api key", func(t *testing.T) {
		resp := NewAnalyticsResponse(400, `{"error":"Invalid API key: abc"}`).(BadRequestResponse)
		assert.True(t, resp.IsInvalidAPIKey())
	})

	t.Run("should parse too many requests payload", func(t *testing.T) {
		body := `{
			"code": 429,
			"error": "Too many requests for some devices and users",
			"eps_threshold": 30,
			"throttled_devices": {"d1": 31},
			"throttled_users": {"u1": 32},
			"exceeded_daily_quota_devices": {"d2": 500000},
			"exceeded_daily_quota_users": {"u2": 500000},
			"throttled_events": [3, 4, 7]
		}`

		resp, ok := NewAnalyticsResponse(429, body).(TooManyRequestsResponse)
		require.True(t, ok)
		assert.Equal(t, 30, resp.EPSThreshold)
		assert.Equal(t, []string{"d1"}, resp.ThrottledDevices)
		assert.Equal(t, []string{"u1"}, resp.ThrottledUsers)
		assert.Equal(t, []int{3, 4, 7}, resp.ThrottledEvents)

		assert.True(t, resp.IsEventExceedDailyQuota(&Event{EventOptions: EventOptions{UserID: "u2"}}))
		assert.True(t, resp.IsEventExceedDailyQuota(&Event{EventOptions: EventOptions{DeviceID: "d2"}}))
		assert.False(t, resp.IsEventExceedDailyQuota(&Event{EventOptions: EventOptions{UserID: "u1"}}))

		assert.True(t, resp.IsEventThrottled(3, &Event{}))
		assert.True(t, resp.IsEventThrottled(0, &Event{EventOptions: EventOptions{UserID: "u1"}}))
		assert.False(t, resp.IsEventThrottled(0, &Event{EventOptions: EventOptions{UserID: "u9"}}))
	})

	t.Run("should parse payload too large error", func(t *testing.T) {
		resp := NewAnalyticsResponse(413, `{"code":413,"error":"Payload too large"}`).(PayloadTooLargeResponse)
		assert.Equal(t, "Payload too large", resp.Error)
	})

	t.Run("should wrap non json failure bodies", func(t *testing.T) {
		resp := NewAnalyticsResponse(502, "Bad Gateway").(FailedResponse)
		assert.Equal(t, map[string]any{"error": "Bad Gateway"}, resp.Body)
		assert.Equal(t, "Bad Gateway", resp.Error)
	})

	t.Run("should tolerate malformed bodies", func(t *testing.T) {
		resp := NewAnalyticsResponse(400, "not json").(BadRequestResponse)
		assert.Empty(t, resp.Error)
		assert.Empty(t, resp.EventIndicesToDrop())
	})
}

func TestHTTPError_Error(t *testing.T) {
	assert.Equal(t, "HTTP request failed with status 500", (&HTTPError{Status: 500}).Error())
	assert.Equal(t, "HTTP request failed with status 400: bad", (&HTTPError{Status: 400, Message: "bad"}).Error())
}
