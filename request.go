package ripple

import (
	"bytes"
	"encoding/json"
	"time"
)

const clientUploadTimeLayout = "2006-01-02T15:04:05.000Z"

// AnalyticsRequest is one upload to the collection endpoint.
type AnalyticsRequest struct {
	APIKey string
	// ClientUploadTime is in Unix milliseconds.
	ClientUploadTime int64
	// Events is the JSON-encoded event payload.
	Events string
	// MinIDLength is sent as an option when positive.
	MinIDLength int
	// Diagnostics is a JSON document sent as request metadata when non-empty.
	Diagnostics string
}

type requestOptions struct {
	MinIDLength int `json:"min_id_length"`
}

type requestMetadata struct {
	SDK json.RawMessage `json:"sdk"`
}

type requestBody struct {
	APIKey           string           `json:"api_key"`
	ClientUploadTime string           `json:"client_upload_time"`
	Events           json.RawMessage  `json:"events"`
	Options          *requestOptions  `json:"options,omitempty"`
	RequestMetadata  *requestMetadata `json:"request_metadata,omitempty"`
}

// NewAnalyticsRequest encodes events into a request stamped with uploadTime.
func NewAnalyticsRequest(apiKey string, events []*Event, minIDLength int, diagnostics string, uploadTime time.Time) (AnalyticsRequest, error) {
	data, err := marshalJSON(events)
	if err != nil {
		return AnalyticsRequest{}, err
	}
	return AnalyticsRequest{
		APIKey:           apiKey,
		ClientUploadTime: uploadTime.UnixMilli(),
		Events:           string(data),
		MinIDLength:      minIDLength,
		Diagnostics:      diagnostics,
	}, nil
}

// FormattedClientUploadTime renders ClientUploadTime as UTC with millisecond precision.
func (r AnalyticsRequest) FormattedClientUploadTime() string {
	return time.UnixMilli(r.ClientUploadTime).UTC().Format(clientUploadTimeLayout)
}

// BodyString returns the wire body. Fields keep a fixed order and optional
// sections are omitted when unset.
func (r AnalyticsRequest) BodyString() (string, error) {
	body := requestBody{
		APIKey:           r.APIKey,
		ClientUploadTime: r.FormattedClientUploadTime(),
		Events:           json.RawMessage(r.Events),
	}
	if r.MinIDLength > 0 {
		body.Options = &requestOptions{MinIDLength: r.MinIDLength}
	}
	if r.Diagnostics != "" {
		body.RequestMetadata = &requestMetadata{SDK: json.RawMessage(r.Diagnostics)}
	}
	data, err := marshalJSON(body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// marshalJSON encodes v without HTML escaping and without a trailing newline.
func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
