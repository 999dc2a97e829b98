package ws

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/observability"
	"chat-relay/sink"
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

type State int32

const (
	Connecting State = iota
	Open
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

type Config struct {
	ConnectionBufferSize int
	WriteWait            time.Duration
	PongWait             time.Duration
	MaxEnvelopeSize      int64
	// InboundRatePerSecond <= 0 disables rate limiting
	InboundRatePerSecond float64
	MaxContentLength     int
}

func (c Config) pingPeriod() time.Duration {
	return c.PongWait * 9 / 10
}

// Session is one admitted websocket bound to a single conversation.
// The receive loop runs on the caller's goroutine, the write pump on its own.
type Session struct {
	id             domain.SessionID
	conversationID domain.ConversationID
	userID         string
	conn           *websocket.Conn
	sink           *sink.ConnectionSink
	orchestrator   contract.IOrchestrator
	decoder        *Decoder
	limiter        *rate.Limiter
	log            *slog.Logger
	cfg            Config
	state          atomic.Int32
}

func NewSession(
	log *slog.Logger,
	conn *websocket.Conn,
	conversationID domain.ConversationID,
	userID string,
	orchestrator contract.IOrchestrator,
	decoder *Decoder,
	cfg Config,
) *Session {
	id := domain.NewSessionID()
	s := &Session{
		id:             id,
		conversationID: conversationID,
		userID:         userID,
		conn:           conn,
		sink:           sink.NewConnectionSink(id, cfg.ConnectionBufferSize),
		orchestrator:   orchestrator,
		decoder:        decoder,
		log:            log.With("session_id", id, "conversation_id", conversationID),
		cfg:            cfg,
	}
	if cfg.InboundRatePerSecond > 0 {
		burst := max(int(cfg.InboundRatePerSecond), 1)
		s.limiter = rate.NewLimiter(rate.Limit(cfg.InboundRatePerSecond), burst)
	}
	return s
}

func (s *Session) ID() domain.SessionID { return s.id }

func (s *Session) State() State { return State(s.state.Load()) }

// Run blocks until the peer goes away, the session is evicted or ctx is done.
// Teardown always runs in the same order: receive loop stopped, registry left,
// outbound path released.
func (s *Session) Run(ctx context.Context) {
	s.state.Store(int32(Connecting))
	s.orchestrator.RegisterSession(s.conversationID, s.sink)
	s.state.Store(int32(Open))
	s.log.Info("Session opened", "user_id", s.userID)

	writeDone := make(chan struct{})
	go s.writePump(writeDone)

	// Unblocks ReadMessage on shutdown
	stop := context.AfterFunc(ctx, func() {
		s.closeWith(websocket.CloseGoingAway, "server shutting down")
	})

	s.readLoop(ctx)
	stop()

	s.state.Store(int32(Closing))
	s.orchestrator.UnregisterSession(s.conversationID, s.id)
	s.sink.Close()
	<-writeDone
	_ = s.conn.Close()
	s.state.Store(int32(Closed))
	s.log.Info("Session closed")
}

func (s *Session) readLoop(ctx context.Context) {
	s.conn.SetReadLimit(s.cfg.MaxEnvelopeSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.log.Warn("Unexpected close", "error", err)
			} else {
				s.log.Debug("Receive loop stopped", "error", err)
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))

		if messageType != websocket.TextMessage {
			s.drop("malformed", "binary frames are not supported")
			continue
		}
		if s.limiter != nil && !s.limiter.Allow() {
			s.drop("rate_limited", "inbound rate exceeded")
			continue
		}

		cmd, err := s.decoder.Decode(data, s.conversationID, s.userID)
		if err != nil {
			s.drop(dropReason(err), err.Error())
			continue
		}
		s.orchestrator.Dispatch(ctx, s.sink, cmd)
	}
}

// writePump is the only writer of data frames on the connection.
func (s *Session) writePump(done chan struct{}) {
	ticker := time.NewTicker(s.cfg.pingPeriod())
	defer func() {
		ticker.Stop()
		close(done)
	}()

	for {
		select {
		case e := <-s.sink.Events():
			data, err := Encode(e)
			if err != nil {
				s.log.Error("Unable to encode event", "error", err)
				continue
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.log.Debug("Write failed", "error", err)
				// Makes the receive loop return
				_ = s.conn.Close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = s.conn.Close()
				return
			}
		case <-s.sink.Done():
			// Still open means the session was evicted
			if s.State() == Open {
				if errors.Is(s.sink.Cause(), errors.ErrConversationNotFound) {
					s.log.Info("Session evicted, conversation deleted")
					s.closeWith(websocket.CloseNormalClosure, "conversation deleted")
					return
				}
				s.log.Warn("Session evicted, outbound queue full or closed")
				s.closeWith(websocket.CloseTryAgainLater, "too slow")
			}
			return
		}
	}
}

// closeWith sends a close frame then closes the socket.
// WriteControl may be called concurrently with the write pump.
func (s *Session) closeWith(code int, text string) {
	deadline := time.Now().Add(s.cfg.WriteWait)
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline)
	_ = s.conn.Close()
}

func (s *Session) drop(reason, detail string) {
	observability.EnvelopesDropped.WithLabelValues(reason).Inc()
	s.log.Warn("Inbound envelope dropped", "reason", reason, "detail", detail)
}
