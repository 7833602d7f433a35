package service

import (
	"context"
	"sync"
	"time"

	"sparkchat/internal/errors"
	"sparkchat/internal/models"
	"sparkchat/internal/retry"
	"sparkchat/internal/store"
	"sparkchat/internal/tracing"
	"sparkchat/internal/transport"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// ReadMarker notifies the backend that the conversation was opened.
// Fire-and-forget: failures are ignored.
type ReadMarker interface {
	MarkRead(ctx context.Context, peerID int64) error
}

// ChatAPI is the HTTP collaborator surface the conversation needs.
type ChatAPI interface {
	HistoryFetcher
	ReadMarker
}

// Deps carries the collaborators for opening a conversation.
type Deps struct {
	Config *models.Config
	Tokens TokenProvider
	API    ChatAPI
	Logger *logrus.Logger
}

// Conversation binds one message store, one transport session and one
// delivery coordinator for a single peer. The store is mutated only by the
// coordinator; consumers read Messages and subscribe via OnChange.
type Conversation struct {
	store     *store.MessageStore
	session   *transport.Session
	coord     *Coordinator
	logger    *logrus.Logger
	closeOnce sync.Once
}

// OpenConversation runs the startup sequence for chatting with peerID:
// resolve the session token, seed history, open the live connection, wire
// the coordinator as the frame observer, then mark the conversation read.
// History must be seeded before the observer is wired so a live frame can
// never land ahead of it.
func OpenConversation(ctx context.Context, deps Deps, selfID, peerID int64) (*Conversation, error) {
	ctx, span := tracing.StartSpan(ctx, "conversation.open",
		attribute.Int64("chat.peer_id", peerID))
	defer span.End()

	logger := deps.Logger
	if logger == nil {
		logger = logrus.New()
	}

	token, ok := deps.Tokens.Token()
	if !ok {
		err := errors.New(errors.ErrCodeConnection, "no session token").
			WithUserMessage("Please sign in again")
		tracing.RecordError(span, err)
		return nil, err
	}

	st := store.New()
	if err := LoadHistory(ctx, deps.API, st, peerID, deps.Config.Chat.HistoryPageSize, logger); err != nil {
		logger.WithError(err).Warn("History load failed, starting with empty history")
	}

	session, err := transport.Open(ctx, deps.Config.Server, backoffConfig(deps.Config.Retry), token, logger)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	coord := NewCoordinator(st, session, selfID, peerID, logger,
		WithAckTimeout(time.Duration(deps.Config.Chat.AckTimeoutSec)*time.Second))

	session.OnDisconnect(func(err error) {
		logger.WithError(err).Warn("Live connection lost; sends will fail until reopened")
	})
	session.OnFrame(coord.HandleFrame)

	if err := deps.API.MarkRead(ctx, peerID); err != nil {
		logger.WithError(err).Debug("Mark-read failed, ignoring")
	}

	return &Conversation{
		store:   st,
		session: session,
		coord:   coord,
		logger:  logger,
	}, nil
}

// Send submits user-authored content to the peer.
func (c *Conversation) Send(ctx context.Context, content string) (string, error) {
	return c.coord.Send(ctx, content)
}

// Retry re-sends a failed message.
func (c *Conversation) Retry(ctx context.Context, localKey string) error {
	return c.coord.Retry(ctx, localKey)
}

// Messages returns the ordered conversation snapshot for rendering.
func (c *Conversation) Messages() []models.Message {
	return c.store.Snapshot()
}

// OnChange registers the presentation layer's change listener.
func (c *Conversation) OnChange(listener Listener) {
	c.coord.OnChange(listener)
}

// Close tears down the coordinator and the transport session. All armed
// timeouts are disarmed; no timer fires after Close returns. Idempotent.
func (c *Conversation) Close() {
	c.closeOnce.Do(func() {
		c.coord.Close()
		c.session.Close()
		c.logger.Debug("Conversation closed")
	})
}

func backoffConfig(rc models.RetryConfig) retry.BackoffConfig {
	cfg := retry.DefaultBackoffConfig()
	if rc.InitialBackoffMs > 0 {
		cfg.InitialDelay = time.Duration(rc.InitialBackoffMs) * time.Millisecond
	}
	if rc.MaxBackoffMs > 0 {
		cfg.MaxDelay = time.Duration(rc.MaxBackoffMs) * time.Millisecond
	}
	if rc.MaxAttempts > 0 {
		cfg.MaxAttempts = rc.MaxAttempts
	}
	return cfg
}
