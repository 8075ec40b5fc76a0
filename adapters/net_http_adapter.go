package adapters

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzip"
)

const (
	DefaultConnectTimeout = 15 * time.Second
	DefaultReadTimeout    = 20 * time.Second
)

// NetHTTPAdapter is the standard HTTP adapter implementation using net/http package.
type NetHTTPAdapter struct {
	client   *http.Client
	compress bool
}

// Ensure NetHTTPAdapter implements HTTPAdapter interface
var _ HTTPAdapter = (*NetHTTPAdapter)(nil)

// NetHTTPOption configures a NetHTTPAdapter.
type NetHTTPOption func(*NetHTTPAdapter)

// WithCompression gzips request bodies and sets Content-Encoding accordingly.
func WithCompression(enabled bool) NetHTTPOption {
	return func(h *NetHTTPAdapter) {
		h.compress = enabled
	}
}

// WithHTTPClient replaces the underlying client, including its timeouts.
func WithHTTPClient(client *http.Client) NetHTTPOption {
	return func(h *NetHTTPAdapter) {
		h.client = client
	}
}

// NewNetHTTPAdapter creates a new NetHTTPAdapter with a 15s connect timeout
// and a 20s response timeout.
func NewNetHTTPAdapter(opts ...NetHTTPOption) *NetHTTPAdapter {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: DefaultConnectTimeout}).DialContext
	transport.ResponseHeaderTimeout = DefaultReadTimeout

	h := &NetHTTPAdapter{
		client: &http.Client{Transport: transport},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Send posts body to endpoint with the given headers.
func (h *NetHTTPAdapter) Send(ctx context.Context, endpoint string, body []byte, headers map[string]string) (*HTTPResponse, error) {
	payload := body
	if h.compress {
		compressed, err := gzipBytes(body)
		if err != nil {
			return nil, fmt.Errorf("failed to compress body: %w", err)
		}
		payload = compressed
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Accept", "application/json")
	if h.compress {
		req.Header.Set("Content-Encoding", "gzip")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &HTTPResponse{
		Status: resp.StatusCode,
		Body:   string(respBody),
	}, nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
