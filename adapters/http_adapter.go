package adapters

import "context"

// HTTPResponse represents the response from an upload request.
type HTTPResponse struct {
	Status int
	Body   string
}

// HTTPAdapter is an interface for HTTP communication.
// Implement this interface to use custom HTTP clients.
type HTTPAdapter interface {
	// Send posts a serialized request body to the specified endpoint.
	//
	// Parameters:
	//   - ctx: Bounds the whole round trip
	//   - endpoint: The collection endpoint URL
	//   - body: The JSON request body
	//   - headers: Optional custom headers to merge with defaults
	//
	// Returns the HTTP response for any status code, or an error when the
	// request could not be completed at the transport level.
	Send(ctx context.Context, endpoint string, body []byte, headers map[string]string) (*HTTPResponse, error)
}
