package transport

import (
	"context"
	"strings"
	"sync"
	"time"

	"sparkchat/internal/constants"
	"sparkchat/internal/errors"
	"sparkchat/internal/models"
	"sparkchat/internal/retry"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// FrameHandler receives raw inbound frame payloads in arrival order.
type FrameHandler func(data []byte)

// Session owns one websocket connection to the chat endpoint, keyed by the
// authenticated session token. Frames are delivered to a single observer in
// arrival order, never reordered or batched. The server's liveness sentinel
// is dropped inside the read loop and never reaches the observer.
type Session struct {
	url     string
	logger  *logrus.Logger
	backoff *retry.Backoff

	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex

	mu      sync.RWMutex
	conn    *websocket.Conn
	handler FrameHandler
	onDrop  func(error)
	started bool

	closeOnce sync.Once
}

// Open establishes the connection for the given session token. An absent
// token or a refused dial yields a CONNECTION error; no frames flow until
// OnFrame registers the observer.
func Open(ctx context.Context, server models.ServerConfig, reconnect retry.BackoffConfig, token string, logger *logrus.Logger) (*Session, error) {
	if token == "" {
		return nil, errors.New(errors.ErrCodeConnection, "missing session token").
			WithUserMessage("Please sign in again")
	}

	socketPath := server.SocketPath
	if socketPath == "" {
		socketPath = constants.DefaultSocketPath
	}
	wsURL, err := BuildWebSocketURL(server.APIBaseURL, socketPath+"/"+token)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, errors.NewConnectionError(err, "failed to open chat connection")
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		url:     wsURL,
		logger:  logger,
		backoff: retry.NewBackoff(reconnect),
		ctx:     sessionCtx,
		cancel:  cancel,
		conn:    conn,
	}

	logger.WithField("url", redactToken(wsURL, token)).Info("Chat connection established")
	return s, nil
}

// OnFrame registers the sole inbound observer and starts frame delivery.
// Callers wire it up only after history seeding so a live frame can never be
// observed ahead of seeded history. Subsequent calls replace the handler but
// do not start a second read loop.
func (s *Session) OnFrame(handler FrameHandler) {
	s.mu.Lock()
	s.handler = handler
	alreadyStarted := s.started
	s.started = true
	s.mu.Unlock()

	if !alreadyStarted {
		go s.readLoop()
	}
}

// OnDisconnect registers a callback fired once when the connection is lost
// and cannot be re-established within the reconnect schedule.
func (s *Session) OnDisconnect(cb func(error)) {
	s.mu.Lock()
	s.onDrop = cb
	s.mu.Unlock()
}

// Send serializes and transmits one outbound frame. There is no synchronous
// confirmation; the ack arrives later as an inbound frame correlated by
// localKey.
func (s *Session) Send(frame *models.OutboundFrame) error {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()

	if conn == nil || s.ctx.Err() != nil {
		return errors.New(errors.ErrCodeConnection, "chat connection is closed")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(constants.DefaultWriteTimeoutSec * time.Second))
	if err := conn.WriteJSON(frame); err != nil {
		return errors.NewConnectionError(err, "failed to send frame")
	}
	return nil
}

// Close releases the connection. Idempotent; safe to call from any state
// and any goroutine.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()

		s.mu.Lock()
		conn := s.conn
		s.conn = nil
		s.mu.Unlock()

		if conn != nil {
			_ = conn.Close()
		}
		s.logger.Debug("Chat connection closed")
	})
}

func (s *Session) readLoop() {
	for {
		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			if !s.reconnect(err) {
				return
			}
			continue
		}

		if strings.TrimSpace(string(data)) == models.LivenessSentinel {
			continue
		}

		s.mu.RLock()
		handler := s.handler
		s.mu.RUnlock()
		if handler != nil {
			handler(data)
		}
	}
}

// reconnect redials on the backoff schedule. It reports whether the read
// loop should keep going; on permanent failure the session is closed and the
// disconnect callback fired.
func (s *Session) reconnect(cause error) bool {
	s.logger.WithError(cause).Warn("Chat connection lost, reconnecting")

	err := s.backoff.Retry(s.ctx, func() error {
		conn, _, dialErr := websocket.DefaultDialer.DialContext(s.ctx, s.url, nil)
		if dialErr != nil {
			return dialErr
		}
		s.mu.Lock()
		if old := s.conn; old != nil {
			_ = old.Close()
		}
		s.conn = conn
		s.mu.Unlock()
		return nil
	})
	if err == nil {
		s.logger.Info("Chat connection re-established")
		return true
	}
	if s.ctx.Err() != nil {
		return false
	}

	s.logger.WithError(err).Error("Failed to re-establish chat connection")
	s.mu.RLock()
	onDrop := s.onDrop
	s.mu.RUnlock()
	s.Close()
	if onDrop != nil {
		onDrop(errors.NewConnectionError(err, "chat connection dropped"))
	}
	return false
}

func redactToken(wsURL, token string) string {
	return strings.Replace(wsURL, token, "***", 1)
}
