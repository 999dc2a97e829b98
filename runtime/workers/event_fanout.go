package workers

import (
	"chat-relay/contract"
	"chat-relay/domain/event"
	"chat-relay/observability"
	"context"
	"log/slog"
	"time"
)

var (
	_ contract.Worker      = (*EventFanout)(nil)
	_ contract.IDispatcher = (*EventFanout)(nil)
)

// EventFanout delivers published events to every live member of their conversation.
//
// Events are drained in publication order by a single goroutine, so every member
// sees the events of a conversation in the same order. Consume on a sink never
// waits for the remote peer: a member whose queue is full or closed is evicted
// from the registry and closed, the others are not delayed.
//
// Delivery is at most once, nothing is retried nor persisted.
type EventFanout struct {
	log         *slog.Logger
	registry    contract.IRegistry
	events      chan event.Event
	sinkTimeout time.Duration
}

func NewEventFanout(log *slog.Logger, registry contract.IRegistry, bufferSize int, sinkTimeout time.Duration) *EventFanout {
	return &EventFanout{
		log:         log,
		registry:    registry,
		events:      make(chan event.Event, bufferSize),
		sinkTimeout: sinkTimeout,
	}
}

// Publish blocks only on the fanout's own bounded channel.
func (w *EventFanout) Publish(ctx context.Context, e event.Event) error {
	select {
	case w.events <- e:
		observability.EventsPublished.Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// QueueLen reports the pending events and the channel capacity.
func (w *EventFanout) QueueLen() (int, int) {
	return len(w.events), cap(w.events)
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case evt := <-w.events:
			w.Fanout(ctx, evt)
		case <-ctx.Done():
			w.log.Debug("Context done, stopping fanout")
			return nil
		}
	}
}

// Fanout hands the event to a snapshot of the conversation members.
func (w *EventFanout) Fanout(ctx context.Context, evt event.Event) {
	start := time.Now()
	defer func() { observability.FanoutDuration.Observe(time.Since(start).Seconds()) }()

	conversationID := evt.ConversationID()
	for _, sink := range w.registry.Members(conversationID) {
		if ctx.Err() != nil {
			return
		}
		sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
		err := sink.Consume(sinkCtx, evt)
		cancel()
		if err != nil {
			w.evict(evt, sink, err)
			continue
		}
		observability.Deliveries.WithLabelValues("ok").Inc()
	}
}

// evict disconnects a member that cannot keep up.
// Closing the sink makes the session tear itself down.
func (w *EventFanout) evict(evt event.Event, sink contract.EventSink, cause error) {
	w.log.Warn("Evicting session from conversation",
		"conversation_id", evt.ConversationID(),
		"session_id", sink.ID(),
		"error", cause)
	w.registry.Leave(evt.ConversationID(), sink.ID())
	sink.Close()
	observability.Deliveries.WithLabelValues("evicted").Inc()
}
