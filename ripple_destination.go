package ripple

import "context"

// rippleDestination delivers events to the collection endpoint through an
// EventPipeline.
type rippleDestination struct {
	DestinationPlugin
	pipeline *EventPipeline
}

func newRippleDestination() *rippleDestination {
	return &rippleDestination{}
}

func (d *rippleDestination) Name() string { return "ripple" }

func (d *rippleDestination) Setup(client *Client) error {
	if err := d.DestinationPlugin.Setup(client); err != nil {
		return err
	}
	cfg := client.config
	d.pipeline = NewEventPipeline(PipelineConfig{
		APIKey:          cfg.APIKey,
		Endpoint:        cfg.Endpoint(),
		FlushQueueSize:  cfg.FlushQueueSize,
		FlushInterval:   cfg.FlushInterval,
		FlushMaxRetries: cfg.FlushMaxRetries,
		MinIDLength:     cfg.MinIDLength,
		ThrottleBackoff: cfg.ThrottleBackoff,
		Callback:        cfg.Callback,
		Offline:         cfg.Offline,
	}, client.httpAdapter, client.storageAdapter, client.logger, client.metrics, client.diagnostics)
	d.pipeline.Start()
	return d.Add(newIdentityEventSender())
}

func (d *rippleDestination) Track(event *Event) (*Event, error)         { return d.enqueue(event) }
func (d *rippleDestination) Identify(event *Event) (*Event, error)      { return d.enqueue(event) }
func (d *rippleDestination) GroupIdentify(event *Event) (*Event, error) { return d.enqueue(event) }
func (d *rippleDestination) Revenue(event *Event) (*Event, error)       { return d.enqueue(event) }

func (d *rippleDestination) Flush() {
	d.pipeline.Flush()
}

func (d *rippleDestination) enqueue(event *Event) (*Event, error) {
	if !event.IsValid() {
		d.Client.logger.Warn("event is invalid, dropping", "event_type", event.EventType)
		d.Client.metrics.dropped(DropReasonInvalid, 1)
		return nil, nil
	}
	if err := prepareEvent(event); err != nil {
		d.Client.logger.Warn("event is malformed, dropping", "event_type", event.EventType, "error", err)
		d.Client.diagnostics.AddMalformedEvent(malformedEventString(event, err))
		d.Client.metrics.dropped(DropReasonInvalid, 1)
		return nil, nil
	}
	d.Client.metrics.EventsEnqueued.Inc()
	d.pipeline.Put(event)
	return event, nil
}

func (d *rippleDestination) setOffline(offline bool) {
	d.pipeline.SetOffline(offline)
}

func (d *rippleDestination) shutdown(ctx context.Context) error {
	return d.pipeline.Stop(ctx)
}

// Teardown stops the pipeline when the destination is removed from a client.
func (d *rippleDestination) Teardown() {
	d.DestinationPlugin.Teardown()
	if d.pipeline != nil {
		_ = d.pipeline.Stop(context.Background())
	}
}
