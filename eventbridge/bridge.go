// Package eventbridge lets independently initialized modules of one SDK
// instance exchange events without holding references to each other.
package eventbridge

import (
	"sync"
	"sync/atomic"
)

// QueueCapacity bounds the events a channel buffers before a receiver attaches.
const QueueCapacity = 512

// Channel names a delivery path on a bridge.
type Channel int

const (
	ChannelEvent Channel = iota
	ChannelIdentify
)

func (c Channel) String() string {
	switch c {
	case ChannelEvent:
		return "event"
	case ChannelIdentify:
		return "identify"
	default:
		return "unknown"
	}
}

// Event is the payload carried across the bridge.
type Event struct {
	EventType       string
	EventProperties map[string]any
	UserProperties  map[string]any
	Groups          map[string]any
	GroupProperties map[string]any
}

// Receiver consumes events from a channel.
type Receiver interface {
	Receive(channel Channel, event Event)
}

// ReceiverFunc adapts a function to Receiver.
type ReceiverFunc func(channel Channel, event Event)

func (f ReceiverFunc) Receive(channel Channel, event Event) {
	f(channel, event)
}

// Bridge routes events to at most one receiver per channel.
type Bridge struct {
	mu       sync.Mutex
	channels map[Channel]*channel
	dropped  atomic.Uint64
}

func New() *Bridge {
	return &Bridge{channels: make(map[Channel]*channel)}
}

// SendEvent delivers event to the channel's receiver, or buffers it until one
// attaches. It reports false when the buffer was full and the event dropped.
func (b *Bridge) SendEvent(ch Channel, event Event) bool {
	if !b.channel(ch).send(event) {
		b.dropped.Add(1)
		return false
	}
	return true
}

// SetEventReceiver binds r to the channel and drains buffered events to it in
// send order. Only the first receiver is kept; later calls return false.
func (b *Bridge) SetEventReceiver(ch Channel, r Receiver) bool {
	return b.channel(ch).setReceiver(r)
}

// Dropped counts events discarded because a channel buffer was full.
func (b *Bridge) Dropped() uint64 {
	return b.dropped.Load()
}

func (b *Bridge) channel(ch Channel) *channel {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.channels[ch]
	if !ok {
		c = &channel{name: ch}
		b.channels[ch] = c
	}
	return c
}

type channel struct {
	name Channel

	mu       sync.Mutex
	receiver Receiver
	buffer   []Event
	// draining is set while buffered events are handed to a new receiver;
	// sends during that window queue behind them.
	draining bool
}

func (c *channel) send(event Event) bool {
	c.mu.Lock()
	if c.receiver == nil {
		defer c.mu.Unlock()
		if len(c.buffer) >= QueueCapacity {
			return false
		}
		c.buffer = append(c.buffer, event)
		return true
	}
	if c.draining {
		c.buffer = append(c.buffer, event)
		c.mu.Unlock()
		return true
	}
	r := c.receiver
	c.mu.Unlock()

	r.Receive(c.name, event)
	return true
}

func (c *channel) setReceiver(r Receiver) bool {
	if r == nil {
		return false
	}

	c.mu.Lock()
	if c.receiver != nil {
		c.mu.Unlock()
		return false
	}
	c.receiver = r
	c.draining = true
	c.mu.Unlock()

	for {
		c.mu.Lock()
		pending := c.buffer
		c.buffer = nil
		if len(pending) == 0 {
			c.draining = false
			c.mu.Unlock()
			return true
		}
		c.mu.Unlock()

		for _, event := range pending {
			r.Receive(c.name, event)
		}
	}
}
