package ripple

import (
	"time"
)

const (
	successMessage        = "Event sent success."
	maxRetriesMessage     = "Event reached max retry times"
	timeoutMessage        = "Request timed out"
	payloadTooLargeReason = "Payload too large"
)

// ResponseHandler decides the fate of a batch after an upload. Handlers run on
// the upload goroutine. The default handler puts retried events back before
// reporting dropped ones to callbacks.
type ResponseHandler interface {
	HandleSuccess(resp SuccessResponse, events []*Event)
	// HandleBadRequest returns whether the upload cycle should back off.
	HandleBadRequest(resp BadRequestResponse, events []*Event) bool
	HandlePayloadTooLarge(resp PayloadTooLargeResponse, events []*Event)
	HandleTooManyRequests(resp TooManyRequestsResponse, events []*Event)
	HandleTimeout(resp TimeoutResponse, events []*Event)
	HandleFailed(resp FailedResponse, events []*Event)
}

// HandleResponse dispatches resp to handler and reports whether the upload
// should be retried with backoff.
func HandleResponse(handler ResponseHandler, resp AnalyticsResponse, events []*Event) bool {
	switch r := resp.(type) {
	case SuccessResponse:
		handler.HandleSuccess(r, events)
		return false
	case BadRequestResponse:
		return handler.HandleBadRequest(r, events)
	case PayloadTooLargeResponse:
		handler.HandlePayloadTooLarge(r, events)
	case TooManyRequestsResponse:
		handler.HandleTooManyRequests(r, events)
	case TimeoutResponse:
		handler.HandleTimeout(r, events)
	case FailedResponse:
		handler.HandleFailed(r, events)
	}
	return true
}

// eventQueue is what the default handler needs from the pipeline to put
// events back.
type eventQueue interface {
	requeue(events []*Event)
	requeueAfter(events []*Event, delay time.Duration)
	split(first, second []*Event)
	increaseFlushDivider() int
}

type eventsResponseHandler struct {
	queue           eventQueue
	callback        EventCallback
	maxRetries      int
	throttleBackoff time.Duration
	logger          LoggerAdapter
	metrics         *Metrics
}

var _ ResponseHandler = (*eventsResponseHandler)(nil)

func (h *eventsResponseHandler) HandleSuccess(resp SuccessResponse, events []*Event) {
	h.metrics.EventsDelivered.Add(float64(len(events)))
	h.notify(events, resp.Code(), successMessage)
}

func (h *eventsResponseHandler) HandleBadRequest(resp BadRequestResponse, events []*Event) bool {
	if resp.IsInvalidAPIKey() || len(events) == 1 {
		h.logger.Error("upload rejected", "status", resp.Code(), "error", resp.Error, "events", len(events))
		h.drop(events, DropReasonBadRequest, resp.Code(), resp.Error)
		return false
	}

	toDrop := resp.EventIndicesToDrop()
	var dropped, retry []*Event
	for i, e := range events {
		if _, ok := toDrop[i]; ok || resp.IsEventSilenced(e) {
			dropped = append(dropped, e)
		} else {
			retry = append(retry, e)
		}
	}
	h.logger.Warn("upload partially rejected", "status", resp.Code(), "dropped", len(dropped), "requeued", len(retry))
	h.queue.requeue(retry)
	h.drop(dropped, DropReasonBadRequest, resp.Code(), resp.Error)
	return false
}

func (h *eventsResponseHandler) HandlePayloadTooLarge(resp PayloadTooLargeResponse, events []*Event) {
	if len(events) == 1 {
		msg := resp.Error
		if msg == "" {
			msg = payloadTooLargeReason
		}
		h.drop(events, DropReasonPayloadTooLarge, resp.Code(), msg)
		return
	}
	divider := h.queue.increaseFlushDivider()
	mid := len(events) / 2
	h.logger.Warn("payload too large, splitting batch", "events", len(events), "flush_size_divider", divider)
	h.queue.split(events[:mid], events[mid:])
}

func (h *eventsResponseHandler) HandleTooManyRequests(resp TooManyRequestsResponse, events []*Event) {
	var dropped, now, later []*Event
	for i, e := range events {
		switch {
		case resp.IsEventExceedDailyQuota(e):
			dropped = append(dropped, e)
		case resp.IsEventThrottled(i, e):
			later = append(later, e)
		default:
			now = append(now, e)
		}
	}
	h.logger.Warn("upload throttled", "dropped", len(dropped), "delayed", len(later), "requeued", len(now))
	h.queue.requeue(now)
	if len(later) > 0 {
		h.queue.requeueAfter(later, h.throttleBackoff)
	}
	h.drop(dropped, DropReasonDailyQuota, resp.Code(), resp.Error)
}

func (h *eventsResponseHandler) HandleTimeout(resp TimeoutResponse, events []*Event) {
	h.retryOrDrop(events, resp.Code(), timeoutMessage)
}

func (h *eventsResponseHandler) HandleFailed(resp FailedResponse, events []*Event) {
	msg := resp.Error
	if msg == "" {
		msg = maxRetriesMessage
	}
	h.retryOrDrop(events, resp.Code(), msg)
}

func (h *eventsResponseHandler) retryOrDrop(events []*Event, code int, msg string) {
	var dropped, retry []*Event
	for _, e := range events {
		if e.Attempts >= h.maxRetries {
			dropped = append(dropped, e)
		} else {
			retry = append(retry, e)
		}
	}
	if len(dropped) > 0 {
		h.logger.Warn("dropping events after max retries", "status", code, "events", len(dropped))
	}
	h.queue.requeue(retry)
	h.drop(dropped, DropReasonMaxRetries, code, msg)
}

func (h *eventsResponseHandler) drop(events []*Event, reason string, code int, msg string) {
	h.metrics.dropped(reason, len(events))
	h.notify(events, code, msg)
}

// notify calls the configured callback and then the event's own callback.
func (h *eventsResponseHandler) notify(events []*Event, code int, msg string) {
	for _, e := range events {
		if h.callback != nil {
			h.callback(e, code, msg)
		}
		if e.Callback != nil {
			e.Callback(e, code, msg)
		}
	}
}
