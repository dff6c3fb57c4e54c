// Package event streams pipeline progress to clients, one channel per
// in-flight request.
package event

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Type identifies a category of event.
type Type string

// Event types. A channel sees one Connected, any number of Update events
// and exactly one Complete or Error.
const (
	Connected Type = "connected"
	Update    Type = "update"
	Complete  Type = "complete"
	Error     Type = "error"
)

// DefaultBufferSize is the per-channel queue length.
const DefaultBufferSize = 64

// Event is one message on a progress channel.
type Event struct {
	Type      Type   `json:"type"`
	ChannelID string `json:"channel_id,omitempty"`
	Stage     string `json:"stage,omitempty"`
	Message   string `json:"message,omitempty"`
	// Progress is a 0-100 completion estimate, absent when unknown.
	Progress *int `json:"progress,omitempty"`
	// Data carries the stage payload on Update and the result on Complete.
	Data      any       `json:"data,omitempty"`
	Status    int       `json:"status,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (t Type) terminal() bool {
	return t == Complete || t == Error
}

var openChannels = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "encore",
	Subsystem: "stream",
	Name:      "channels_open",
	Help:      "Progress channels currently open.",
})

type channel struct {
	id     string
	events chan Event
	ctx    context.Context
	cancel context.CancelFunc

	// mu serializes sends so events keep their emission order, and guards
	// closed.
	mu     sync.Mutex
	closed bool
}

// Broker owns the open progress channels.
type Broker struct {
	mu       sync.RWMutex
	channels map[string]*channel
	logger   *slog.Logger
	bufSize  int
}

// NewBroker creates a broker whose channels queue up to bufSize events
// before senders block.
func NewBroker(logger *slog.Logger, bufSize int) *Broker {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	return &Broker{
		channels: make(map[string]*channel),
		logger:   logger.With(slog.String("component", "broker")),
		bufSize:  bufSize,
	}
}

// Open creates a channel and queues its Connected event. The returned id
// keys every other call.
func (b *Broker) Open() string {
	ctx, cancel := context.WithCancel(context.Background())
	ch := &channel{
		id:     uuid.NewString(),
		events: make(chan Event, b.bufSize),
		ctx:    ctx,
		cancel: cancel,
	}

	b.mu.Lock()
	b.channels[ch.id] = ch
	b.mu.Unlock()
	openChannels.Inc()

	ch.events <- Event{Type: Connected, ChannelID: ch.id, Timestamp: time.Now().UTC()}
	b.logger.Debug("channel opened", "channel", ch.id)
	return ch.id
}

// Events returns the receive side of a channel. It is closed after the
// terminal event or when the channel is closed.
func (b *Broker) Events(id string) (<-chan Event, bool) {
	ch := b.get(id)
	if ch == nil {
		return nil, false
	}
	return ch.events, true
}

// Context returns the cancellation context of a channel. It is done once
// the channel is closed or has terminated. Unknown ids get a done context.
func (b *Broker) Context(id string) context.Context {
	if ch := b.get(id); ch != nil {
		return ch.ctx
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// Exists reports whether id names an open channel.
func (b *Broker) Exists(id string) bool {
	return b.get(id) != nil
}

// Len returns the number of open channels.
func (b *Broker) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.channels)
}

// Update emits a progress update. A negative progress is omitted.
func (b *Broker) Update(id, stage, message string, progress int, data any) {
	e := Event{Type: Update, Stage: stage, Message: message, Data: data}
	if progress >= 0 {
		p := min(progress, 100)
		e.Progress = &p
	}
	b.send(id, e)
}

// Complete emits the result and closes the channel.
func (b *Broker) Complete(id string, result any) {
	b.send(id, Event{Type: Complete, Data: result})
}

// Fail emits an error and closes the channel.
func (b *Broker) Fail(id string, status int, message string) {
	b.send(id, Event{Type: Error, Status: status, Message: message})
}

// Close cancels the channel's run and removes it without a terminal event.
// Closing an unknown or already closed channel is a no-op.
func (b *Broker) Close(id string) {
	ch := b.remove(id)
	if ch == nil {
		return
	}
	// Cancel first: a sender blocked on a full queue holds ch.mu.
	ch.cancel()
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if !ch.closed {
		ch.closed = true
		close(ch.events)
	}
	b.logger.Debug("channel closed", "channel", id)
}

// CloseAll closes every open channel.
func (b *Broker) CloseAll() {
	b.mu.RLock()
	ids := make([]string, 0, len(b.channels))
	for id := range b.channels {
		ids = append(ids, id)
	}
	b.mu.RUnlock()
	for _, id := range ids {
		b.Close(id)
	}
}

// send queues e on the channel, blocking while the queue is full unless the
// channel is cancelled. Writes to missing or closed channels are dropped.
func (b *Broker) send(id string, e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	ch := b.get(id)
	if ch == nil {
		b.logger.Warn("write to unknown or closed channel", "channel", id, "type", string(e.Type))
		return
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed {
		b.logger.Warn("write to closed channel", "channel", id, "type", string(e.Type))
		return
	}

	select {
	case ch.events <- e:
	case <-ch.ctx.Done():
		b.logger.Debug("dropping event for cancelled channel", "channel", id, "type", string(e.Type))
		return
	}

	if e.Type.terminal() {
		ch.closed = true
		close(ch.events)
		b.remove(id)
		ch.cancel()
		b.logger.Debug("channel finished", "channel", id, "type", string(e.Type))
	}
}

func (b *Broker) get(id string) *channel {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.channels[id]
}

func (b *Broker) remove(id string) *channel {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.channels[id]
	if !ok {
		return nil
	}
	delete(b.channels, id)
	openChannels.Dec()
	return ch
}
