// Package runtime routes commands from live sessions to the coordinator and
// events from the coordinator to live sessions.
// It holds no message state itself: the store and the directory own it.
package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/observability"
	"chat-relay/runtime/workers"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	_ contract.IOrchestrator  = (*Orchestrator)(nil)
	_ contract.SessionEvictor = (*Orchestrator)(nil)
)

// evictable sinks can tell their session why they were closed.
type evictable interface {
	Evict(cause error)
}

type Orchestrator struct {
	mu             sync.Mutex
	log            *slog.Logger
	supervisor     contract.ISupervisor
	registry       *Registry
	fanout         *workers.EventFanout
	coordinator    *Coordinator
	metricInterval time.Duration
	started        bool
}

func NewOrchestrator(
	log *slog.Logger,
	supervisor contract.ISupervisor,
	registry *Registry,
	fanout *workers.EventFanout,
	coordinator *Coordinator,
	metricInterval time.Duration,
) *Orchestrator {
	return &Orchestrator{
		log:            log,
		supervisor:     supervisor,
		registry:       registry,
		fanout:         fanout,
		coordinator:    coordinator,
		metricInterval: metricInterval,
	}
}

// RegisterSession makes the sink a member of the conversation.
// It receives every event published after this call returns.
func (o *Orchestrator) RegisterSession(conversationID domain.ConversationID, sink contract.EventSink) {
	o.registry.Join(conversationID, sink)
	observability.ActiveSessions.Inc()
	o.log.Debug("Session registered", "conversation_id", conversationID, "session_id", sink.ID())
}

// UnregisterSession is idempotent, an evicted session may unregister again on teardown.
func (o *Orchestrator) UnregisterSession(conversationID domain.ConversationID, sessionID domain.SessionID) {
	o.registry.Leave(conversationID, sessionID)
	observability.ActiveSessions.Dec()
	o.log.Debug("Session unregistered", "conversation_id", conversationID, "session_id", sessionID)
}

// EvictConversation disconnects the members of a deleted conversation.
// Their sessions still unregister on teardown.
func (o *Orchestrator) EvictConversation(conversationID domain.ConversationID) int {
	members := o.registry.Members(conversationID)
	for _, member := range members {
		o.registry.Leave(conversationID, member.ID())
		if e, ok := member.(evictable); ok {
			e.Evict(fmt.Errorf("%w: %s", errors.ErrConversationNotFound, conversationID))
		} else {
			member.Close()
		}
	}
	if len(members) > 0 {
		o.log.Info("Sessions of deleted conversation evicted", "conversation_id", conversationID, "sessions", len(members))
	}
	return len(members)
}

// Dispatch runs the command on the caller's goroutine.
// Commands of one session are thus handled one after the other.
func (o *Orchestrator) Dispatch(ctx context.Context, origin contract.EventSink, cmd domain.Command) {
	o.coordinator.Handle(ctx, origin, cmd)
}

// Start registers the supervised workers then blocks until ctx is done or Stop is called.
func (o *Orchestrator) Start(ctx context.Context) error {
	// 1. Preparation phase (No Lock)
	health := workers.NewHealthMonitoringWorker(o.log, o.registry, o.fanout, o.metricInterval)

	// 2. Critical Section (Short Lock)
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return nil
	}
	o.started = true
	o.supervisor.Add(o.fanout, health)
	o.mu.Unlock()

	// 3. Execution phase (No Lock)
	o.log.Info("Starting orchestrator and all supervised workers")
	o.supervisor.Run(ctx)
	return nil
}

// Stop cancels the supervised workers. Pending fanout events are dropped.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.supervisor.Stop()
}
