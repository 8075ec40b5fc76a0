// Package collectortest runs an in-process collection endpoint for tests.
package collectortest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// Request is one upload received by the server.
type Request struct {
	APIKey           string           `json:"api_key"`
	ClientUploadTime string           `json:"client_upload_time"`
	Events           []map[string]any `json:"events"`
	Options          map[string]any   `json:"options,omitempty"`
	RequestMetadata  map[string]any   `json:"request_metadata,omitempty"`
	Header           http.Header      `json:"-"`
	Raw              []byte           `json:"-"`
}

// Response is a scripted reply.
type Response struct {
	Status int
	Body   any
}

// Responder decides the reply for a request. Returning nil falls through to
// the default behavior.
type Responder func(req *Request) *Response

// Server records uploads and answers with scripted responses, then with the
// Responder, then with 200. An event whose event_properties contain
// "trigger_error": true makes the default reply a 500.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	requests  []*Request
	scripted  []Response
	responder Responder
}

// NewServer starts a server. Close it when done.
func NewServer() *Server {
	s := &Server{}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// Enqueue scripts the next replies in order.
func (s *Server) Enqueue(responses ...Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripted = append(s.scripted, responses...)
}

// SetResponder installs r for requests without a scripted reply.
func (s *Server) SetResponder(r Responder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responder = r
}

// Requests returns the uploads received so far.
func (s *Server) Requests() []*Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Events returns every event received so far, in arrival order.
func (s *Server) Events() []map[string]any {
	var out []map[string]any
	for _, r := range s.Requests() {
		out = append(out, r.Events...)
	}
	return out
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var reader io.Reader = r.Body
	if r.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(r.Body)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid gzip body"})
			return
		}
		defer gz.Close()
		reader = gz
	}
	raw, err := io.ReadAll(reader)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "failed to read body"})
		return
	}

	req := &Request{Header: r.Header.Clone(), Raw: raw}
	if err := json.Unmarshal(raw, req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON"})
		return
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	var resp *Response
	if len(s.scripted) > 0 {
		next := s.scripted[0]
		s.scripted = s.scripted[1:]
		resp = &next
	}
	responder := s.responder
	s.mu.Unlock()

	if resp == nil && responder != nil {
		resp = responder(req)
	}
	if resp == nil {
		resp = defaultResponse(req)
	}
	writeJSON(w, resp.Status, resp.Body)
}

func defaultResponse(req *Request) *Response {
	for _, e := range req.Events {
		if props, ok := e["event_properties"].(map[string]any); ok && props["trigger_error"] == true {
			return &Response{Status: http.StatusInternalServerError, Body: map[string]any{"error": "Simulated server error"}}
		}
	}
	return &Response{Status: http.StatusOK, Body: map[string]any{"code": 200, "events_ingested": len(req.Events)}}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if raw, ok := body.(string); ok {
		_, _ = io.WriteString(w, raw)
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}
