package ripple

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// HTTPStatus classifies an upload response.
type HTTPStatus int

const (
	StatusSuccess HTTPStatus = iota
	StatusBadRequest
	StatusTimeout
	StatusPayloadTooLarge
	StatusTooManyRequests
	StatusFailed
)

func (s HTTPStatus) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusBadRequest:
		return "bad_request"
	case StatusTimeout:
		return "timeout"
	case StatusPayloadTooLarge:
		return "payload_too_large"
	case StatusTooManyRequests:
		return "too_many_requests"
	default:
		return "failed"
	}
}

// AnalyticsResponse is one of SuccessResponse, BadRequestResponse,
// PayloadTooLargeResponse, TooManyRequestsResponse, TimeoutResponse or
// FailedResponse.
type AnalyticsResponse interface {
	Status() HTTPStatus
	Code() int
	isAnalyticsResponse()
}

type responseCode int

func (c responseCode) Code() int          { return int(c) }
func (responseCode) isAnalyticsResponse() {}

type SuccessResponse struct {
	responseCode
}

func (SuccessResponse) Status() HTTPStatus { return StatusSuccess }

type BadRequestResponse struct {
	responseCode
	Error                   string
	EventsWithInvalidFields []int
	EventsWithMissingFields []int
	SilencedEvents          []int
	SilencedDevices         []string
}

func (BadRequestResponse) Status() HTTPStatus { return StatusBadRequest }

// IsInvalidAPIKey reports a request-level rejection that no retry can fix.
func (r BadRequestResponse) IsInvalidAPIKey() bool {
	return strings.Contains(strings.ToLower(r.Error), "invalid api key")
}

// EventIndicesToDrop merges the invalid, missing-field and silenced indices.
func (r BadRequestResponse) EventIndicesToDrop() map[int]struct{} {
	drop := make(map[int]struct{})
	for _, set := range [][]int{r.EventsWithInvalidFields, r.EventsWithMissingFields, r.SilencedEvents} {
		for _, i := range set {
			drop[i] = struct{}{}
		}
	}
	return drop
}

// IsEventSilenced reports whether the event's device was silenced.
func (r BadRequestResponse) IsEventSilenced(e *Event) bool {
	return e.DeviceID != "" && slices.Contains(r.SilencedDevices, e.DeviceID)
}

type PayloadTooLargeResponse struct {
	responseCode
	Error string
}

func (PayloadTooLargeResponse) Status() HTTPStatus { return StatusPayloadTooLarge }

type TooManyRequestsResponse struct {
	responseCode
	Error                     string
	EPSThreshold              int
	ExceededDailyQuotaUsers   []string
	ExceededDailyQuotaDevices []string
	ThrottledEvents           []int
	ThrottledUsers            []string
	ThrottledDevices          []string
}

func (TooManyRequestsResponse) Status() HTTPStatus { return StatusTooManyRequests }

// IsEventExceedDailyQuota reports whether the event's user or device is over quota.
func (r TooManyRequestsResponse) IsEventExceedDailyQuota(e *Event) bool {
	return (e.UserID != "" && slices.Contains(r.ExceededDailyQuotaUsers, e.UserID)) ||
		(e.DeviceID != "" && slices.Contains(r.ExceededDailyQuotaDevices, e.DeviceID))
}

// IsEventThrottled reports whether the event at index was throttled.
func (r TooManyRequestsResponse) IsEventThrottled(index int, e *Event) bool {
	return slices.Contains(r.ThrottledEvents, index) ||
		(e.UserID != "" && slices.Contains(r.ThrottledUsers, e.UserID)) ||
		(e.DeviceID != "" && slices.Contains(r.ThrottledDevices, e.DeviceID))
}

type TimeoutResponse struct {
	responseCode
}

// transportTimeout stands in for a response when the request itself failed.
func transportTimeout() TimeoutResponse {
	return TimeoutResponse{responseCode(408)}
}

func (TimeoutResponse) Status() HTTPStatus { return StatusTimeout }

type FailedResponse struct {
	responseCode
	Error string
	// Body is the parsed response body, or {"error": raw} when it is not JSON.
	Body map[string]any
}

func (FailedResponse) Status() HTTPStatus { return StatusFailed }

type responseFields struct {
	Error                     string                 `json:"error"`
	EventsWithInvalidFields   map[string][]int       `json:"events_with_invalid_fields"`
	EventsWithMissingFields   map[string][]int       `json:"events_with_missing_fields"`
	SilencedEvents            []int                  `json:"silenced_events"`
	SilencedDevices           []string               `json:"silenced_devices"`
	EPSThreshold              int                    `json:"eps_threshold"`
	ExceededDailyQuotaUsers   map[string]json.Number `json:"exceeded_daily_quota_users"`
	ExceededDailyQuotaDevices map[string]json.Number `json:"exceeded_daily_quota_devices"`
	ThrottledEvents           []int                  `json:"throttled_events"`
	ThrottledUsers            map[string]json.Number `json:"throttled_users"`
	ThrottledDevices          map[string]json.Number `json:"throttled_devices"`
}

// HTTPError describes an upload that the server did not accept.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP request failed with status %d", e.Status)
	}
	return fmt.Sprintf("HTTP request failed with status %d: %s", e.Status, e.Message)
}

// NewAnalyticsResponse classifies a status code and body. Unparseable bodies
// yield empty payloads rather than errors.
func NewAnalyticsResponse(code int, body string) AnalyticsResponse {
	rc := responseCode(code)
	switch {
	case code >= 200 && code < 300:
		return SuccessResponse{rc}
	case code == 408:
		return TimeoutResponse{rc}
	}

	var fields responseFields
	_ = json.Unmarshal([]byte(body), &fields)

	switch code {
	case 400:
		return BadRequestResponse{
			responseCode:            rc,
			Error:                   fields.Error,
			EventsWithInvalidFields: collectIndices(fields.EventsWithInvalidFields),
			EventsWithMissingFields: collectIndices(fields.EventsWithMissingFields),
			SilencedEvents:          fields.SilencedEvents,
			SilencedDevices:         fields.SilencedDevices,
		}
	case 413:
		return PayloadTooLargeResponse{responseCode: rc, Error: fields.Error}
	case 429:
		return TooManyRequestsResponse{
			responseCode:              rc,
			Error:                     fields.Error,
			EPSThreshold:              fields.EPSThreshold,
			ExceededDailyQuotaUsers:   sortedKeys(fields.ExceededDailyQuotaUsers),
			ExceededDailyQuotaDevices: sortedKeys(fields.ExceededDailyQuotaDevices),
			ThrottledEvents:           fields.ThrottledEvents,
			ThrottledUsers:            sortedKeys(fields.ThrottledUsers),
			ThrottledDevices:          sortedKeys(fields.ThrottledDevices),
		}
	default:
		parsed := make(map[string]any)
		if err := json.Unmarshal([]byte(body), &parsed); err != nil {
			parsed = map[string]any{"error": body}
		}
		errMsg, _ := parsed["error"].(string)
		return FailedResponse{responseCode: rc, Error: errMsg, Body: parsed}
	}
}

// collectIndices flattens a field -> indices object into a sorted, deduplicated list.
func collectIndices(byField map[string][]int) []int {
	var out []int
	for _, indices := range byField {
		out = append(out, indices...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func sortedKeys[V any](m map[string]V) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
