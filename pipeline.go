package ripple

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// PipelineConfig holds the settings an EventPipeline reads.
type PipelineConfig struct {
	APIKey          string
	Endpoint        string
	FlushQueueSize  int
	FlushInterval   time.Duration
	FlushMaxRetries int
	MinIDLength     int
	ThrottleBackoff time.Duration
	Callback        EventCallback
	Offline         bool
	// RetryBaseDelay is the first retry delay; one second when zero.
	RetryBaseDelay time.Duration
}

// EventPipeline buffers events in storage and uploads them in batches.
//
// Writes run in order on a storage goroutine and uploads on a single network
// goroutine. Upload requests are coalesced: any number of flush requests made
// while an upload is running result in exactly one more upload.
type EventPipeline struct {
	config      PipelineConfig
	http        HTTPAdapter
	storage     StorageAdapter
	logger      LoggerAdapter
	metrics     *Metrics
	diagnostics *Diagnostics
	handler     ResponseHandler
	retry       *retryHandler

	writes       *Executor
	uploadSignal chan struct{}
	stopChan     chan struct{}
	stopOnce     sync.Once
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup

	offline          atomic.Bool
	flushSizeDivider atomic.Int32
	// eventCount is owned by the storage goroutine.
	eventCount int
	// splits is owned by the upload goroutine.
	splits [][]*Event

	timerMu      sync.Mutex
	ticker       *time.Ticker
	timerStarted bool

	timersMu   sync.Mutex
	stopped    bool
	retryTimer *time.Timer
	delayed    map[uint64]*delayedRequeue
	delayedSeq uint64
}

type delayedRequeue struct {
	timer  *time.Timer
	events []*Event
}

var _ eventQueue = (*EventPipeline)(nil)

// NewEventPipeline creates a pipeline. Call Start before putting events.
func NewEventPipeline(config PipelineConfig, http HTTPAdapter, storage StorageAdapter, logger LoggerAdapter, metrics *Metrics, diagnostics *Diagnostics) *EventPipeline {
	if config.RetryBaseDelay <= 0 {
		config.RetryBaseDelay = defaultRetryBaseDelay
	}
	if diagnostics == nil {
		diagnostics = NewDiagnostics()
	}
	if metrics == nil {
		metrics = NewMetrics(nil, "", nil)
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &EventPipeline{
		config:       config,
		http:         http,
		storage:      storage,
		logger:       logger,
		metrics:      metrics,
		diagnostics:  diagnostics,
		retry:        newRetryHandler(config.FlushMaxRetries, config.RetryBaseDelay),
		writes:       NewExecutor("storage", logger),
		uploadSignal: make(chan struct{}, 1),
		stopChan:     make(chan struct{}),
		ctx:          ctx,
		cancel:       cancel,
		delayed:      make(map[uint64]*delayedRequeue),
	}
	p.flushSizeDivider.Store(1)
	p.offline.Store(config.Offline)
	p.handler = &eventsResponseHandler{
		queue:           p,
		callback:        config.Callback,
		maxRetries:      config.FlushMaxRetries,
		throttleBackoff: config.ThrottleBackoff,
		logger:          logger,
		metrics:         metrics,
	}
	return p
}

// SetResponseHandler replaces the default handler. It must be called before Start.
func (p *EventPipeline) SetResponseHandler(h ResponseHandler) {
	p.handler = h
}

// Start launches the upload goroutine.
func (p *EventPipeline) Start() {
	p.wg.Go(p.uploadLoop)
}

// Put counts an attempt for event and queues it for storage.
func (p *EventPipeline) Put(event *Event) {
	event.Attempts++
	p.startTimerIfNeeded()
	if !p.writes.Submit(func() { p.write(event, false) }) {
		p.writeDirect(event)
	}
}

// Flush requests an upload of everything buffered so far.
func (p *EventPipeline) Flush() {
	p.writes.Submit(func() { p.write(nil, true) })
}

// SetOffline suspends or resumes uploads. Going online requests a flush.
func (p *EventPipeline) SetOffline(offline bool) {
	if p.offline.Swap(offline) && !offline {
		p.Flush()
	}
}

// IsOffline reports whether uploads are suspended.
func (p *EventPipeline) IsOffline() bool {
	return p.offline.Load()
}

// FlushSizeDivider returns the current batch size divider.
func (p *EventPipeline) FlushSizeDivider() int {
	return int(p.flushSizeDivider.Load())
}

func (p *EventPipeline) flushCount() int {
	count := p.config.FlushQueueSize / int(p.flushSizeDivider.Load())
	if count < 1 {
		return 1
	}
	return count
}

func (p *EventPipeline) startTimerIfNeeded() {
	p.timerMu.Lock()
	defer p.timerMu.Unlock()

	if p.timerStarted || p.isStopped() {
		return
	}
	p.ticker = time.NewTicker(p.config.FlushInterval)
	p.timerStarted = true
	ticker := p.ticker
	p.wg.Go(func() {
		for {
			select {
			case <-ticker.C:
				p.Flush()
			case <-p.stopChan:
				return
			}
		}
	})
}

// write runs on the storage goroutine.
func (p *EventPipeline) write(event *Event, flush bool) {
	if event != nil {
		p.writeDirect(event)
		p.eventCount++
	}
	if p.offline.Load() {
		return
	}
	if flush || p.eventCount >= p.flushCount() {
		p.eventCount = 0
		p.signalUpload()
	}
}

func (p *EventPipeline) writeDirect(event *Event) {
	if err := p.storage.Write(event); err != nil {
		p.logger.Error("failed to write event to storage", "event_type", event.EventType, "error", err)
		p.diagnostics.AddErrorLog(fmt.Sprintf("storage write: %v", err))
		p.metrics.dropped(DropReasonStorage, 1)
	}
}

func (p *EventPipeline) signalUpload() {
	select {
	case p.uploadSignal <- struct{}{}:
	default:
	}
}

func (p *EventPipeline) uploadLoop() {
	for {
		select {
		case <-p.stopChan:
			return
		case <-p.uploadSignal:
			if p.uploadCycle(p.ctx) {
				p.scheduleRetry()
			}
		}
	}
}

// uploadCycle uploads every buffered batch and reports whether it stopped
// early on a retryable response. Batches it did not reach go back to storage.
func (p *EventPipeline) uploadCycle(ctx context.Context) bool {
	if err := p.storage.Rollover(); err != nil {
		p.logger.Warn("failed to roll over event storage", "error", err)
	}
	batches, err := p.storage.ReadEvents()
	if err != nil {
		p.logger.Error("failed to read events from storage", "batches", len(batches), "error", err)
		p.diagnostics.AddErrorLog(fmt.Sprintf("storage read: %v", err))
	}

	work := p.chunk(batches)
	for len(work) > 0 {
		batch := work[0]
		work = work[1:]

		resp := p.send(ctx, batch)
		p.splits = nil
		retry := HandleResponse(p.handler, resp, batch)
		if len(p.splits) > 0 {
			work = append(p.splits, work...)
			p.splits = nil
			continue
		}
		if resp.Status() == StatusPayloadTooLarge {
			continue
		}
		if retry {
			p.restore(work)
			return true
		}
		p.retry.reset()
	}
	return false
}

func (p *EventPipeline) chunk(batches [][]*Event) [][]*Event {
	size := p.flushCount()
	var out [][]*Event
	for _, batch := range batches {
		for start := 0; start < len(batch); start += size {
			end := min(start+size, len(batch))
			out = append(out, batch[start:end])
		}
	}
	return out
}

func (p *EventPipeline) send(ctx context.Context, events []*Event) AnalyticsResponse {
	req, err := NewAnalyticsRequest(p.config.APIKey, events, p.config.MinIDLength, p.diagnostics.Extract(), time.Now())
	var body string
	if err == nil {
		body, err = req.BodyString()
	}
	if err != nil {
		p.logger.Error("failed to encode upload request", "events", len(events), "error", err)
		return FailedResponse{Error: err.Error(), Body: map[string]any{"error": err.Error()}}
	}

	start := time.Now()
	httpResp, err := p.http.Send(ctx, p.config.Endpoint, []byte(body), nil)
	p.metrics.UploadDuration.Observe(time.Since(start).Seconds())

	var resp AnalyticsResponse
	if err != nil {
		p.logger.Warn("upload request failed", "endpoint", p.config.Endpoint, "error", err)
		resp = transportTimeout()
	} else {
		resp = NewAnalyticsResponse(httpResp.Status, httpResp.Body)
		if resp.Status() != StatusSuccess {
			p.logger.Debug("upload not accepted", "events", len(events), "error", &HTTPError{Status: httpResp.Status, Message: httpResp.Body})
		}
	}
	p.metrics.UploadRequests.WithLabelValues(resp.Status().String()).Inc()
	return resp
}

// scheduleRetry runs on the upload goroutine. Once the retry budget is spent
// it blocks uploads for twice the last delay and then starts over.
func (p *EventPipeline) scheduleRetry() {
	delay, ok := p.retry.next()
	if ok {
		p.logger.Debug("retrying upload", "delay", delay, "attempt", p.retry.Attempts())
		p.timersMu.Lock()
		defer p.timersMu.Unlock()
		if p.stopped {
			return
		}
		if p.retryTimer != nil {
			p.retryTimer.Stop()
		}
		p.retryTimer = time.AfterFunc(delay, p.signalUpload)
		return
	}

	pause := p.retry.pauseDuration()
	p.logger.Debug("max upload retries reached, pausing uploads", "max_retries", p.config.FlushMaxRetries, "pause", pause)
	timer := time.NewTimer(pause)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-p.stopChan:
		return
	}
	p.retry.reset()
	p.signalUpload()
}

// restore puts batches that were not attempted back into storage without
// counting an attempt.
func (p *EventPipeline) restore(batches [][]*Event) {
	for _, batch := range batches {
		for _, e := range batch {
			p.writeDirect(e)
		}
	}
}

// requeue counts an attempt and puts events back into storage without
// requesting an upload, so the retry timer paces the next one.
func (p *EventPipeline) requeue(events []*Event) {
	for _, e := range events {
		e.Attempts++
		p.writeDirect(e)
	}
}

func (p *EventPipeline) requeueAfter(events []*Event, delay time.Duration) {
	p.timersMu.Lock()
	defer p.timersMu.Unlock()
	if p.stopped {
		p.requeue(events)
		return
	}
	p.delayedSeq++
	id := p.delayedSeq
	p.delayed[id] = &delayedRequeue{
		events: events,
		timer: time.AfterFunc(delay, func() {
			p.timersMu.Lock()
			delete(p.delayed, id)
			p.timersMu.Unlock()
			p.requeue(events)
		}),
	}
}

func (p *EventPipeline) split(first, second []*Event) {
	p.splits = append(p.splits, first, second)
}

func (p *EventPipeline) increaseFlushDivider() int {
	return int(p.flushSizeDivider.Add(1))
}

func (p *EventPipeline) isStopped() bool {
	p.timersMu.Lock()
	defer p.timersMu.Unlock()
	return p.stopped
}

// Stop halts the timer and both goroutines after their current step, writes
// delayed events back to storage and, unless offline, uploads what is left
// once without retrying. It returns ctx's error if ctx ended first.
func (p *EventPipeline) Stop(ctx context.Context) error {
	p.stopOnce.Do(func() {
		p.timerMu.Lock()
		if p.ticker != nil {
			p.ticker.Stop()
		}
		p.timerMu.Unlock()

		p.timersMu.Lock()
		p.stopped = true
		if p.retryTimer != nil {
			p.retryTimer.Stop()
		}
		pending := p.delayed
		p.delayed = make(map[uint64]*delayedRequeue)
		p.timersMu.Unlock()

		close(p.stopChan)
		for _, d := range pending {
			if d.timer.Stop() {
				p.requeue(d.events)
			}
		}

		p.writes.Stop()
		p.wg.Wait()
		if !p.offline.Load() && ctx.Err() == nil {
			p.uploadCycle(ctx)
		}
		p.cancel()
	})
	return ctx.Err()
}
