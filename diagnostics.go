package ripple

import (
	"slices"
	"sync"
)

const maxDiagnosticErrorLogs = 10

// Diagnostics collects SDK-side problems that are reported to the server
// with the next upload.
type Diagnostics struct {
	mu              sync.RWMutex
	malformedEvents []string
	errorLogs       []string
}

// NewDiagnostics creates an empty collector.
func NewDiagnostics() *Diagnostics {
	return &Diagnostics{}
}

// AddMalformedEvent records an event rejected before upload.
func (d *Diagnostics) AddMalformedEvent(event string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.malformedEvents = append(d.malformedEvents, event)
}

// AddErrorLog records an error message. Duplicates are ignored and only the
// first ten distinct messages are kept.
func (d *Diagnostics) AddErrorLog(log string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.errorLogs) >= maxDiagnosticErrorLogs || slices.Contains(d.errorLogs, log) {
		return
	}
	d.errorLogs = append(d.errorLogs, log)
}

// HasDiagnostics returns true if anything was recorded since the last extraction.
func (d *Diagnostics) HasDiagnostics() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.malformedEvents) > 0 || len(d.errorLogs) > 0
}

type diagnosticsPayload struct {
	ErrorLogs       []string `json:"error_logs,omitempty"`
	MalformedEvents []string `json:"malformed_events,omitempty"`
}

// Extract returns the recorded diagnostics as JSON and clears them. It returns
// an empty string when nothing was recorded.
func (d *Diagnostics) Extract() string {
	d.mu.Lock()
	payload := diagnosticsPayload{ErrorLogs: d.errorLogs, MalformedEvents: d.malformedEvents}
	d.errorLogs = nil
	d.malformedEvents = nil
	d.mu.Unlock()

	if len(payload.ErrorLogs) == 0 && len(payload.MalformedEvents) == 0 {
		return ""
	}
	data, err := marshalJSON(payload)
	if err != nil {
		return ""
	}
	return string(data)
}
