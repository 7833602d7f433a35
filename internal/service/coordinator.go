package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"sparkchat/internal/constants"
	"sparkchat/internal/errors"
	"sparkchat/internal/models"
	"sparkchat/internal/store"
	"sparkchat/internal/tracing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// FrameSender is the outbound half of the transport session.
type FrameSender interface {
	Send(frame *models.OutboundFrame) error
}

// EventKind classifies a store change notification.
type EventKind string

const (
	EventAppended EventKind = "appended"
	EventUpdated  EventKind = "updated"
)

// Event notifies the presentation layer of one store mutation. Events are
// delivered in mutation order.
type Event struct {
	Kind    EventKind
	Message models.Message
}

// Listener receives store change events. It is invoked with the coordinator
// lock held, so it must not call back into the coordinator.
type Listener func(Event)

// Coordinator drives the delivery state machine for one conversation: it
// creates the optimistic pending entry for each user-authored message, emits
// the outbound frame, arms the ack timeout, and reconciles the entry when an
// ack, an error frame or the timeout arrives. It also classifies inbound
// frames authored by the peer.
//
// All mutation happens under one mutex: frame handling, timer expiry and
// user actions are serialized, so only the first terminal transition per
// send attempt is honored.
type Coordinator struct {
	mu         sync.Mutex
	store      *store.MessageStore
	session    FrameSender
	logger     *logrus.Logger
	selfID     int64
	peerID     int64
	ackTimeout time.Duration
	timers     map[string]*time.Timer
	listener   Listener
	closed     bool
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithAckTimeout overrides the delivery confirmation deadline.
func WithAckTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.ackTimeout = d
		}
	}
}

// NewCoordinator creates the delivery coordinator for a conversation between
// selfID and peerID.
func NewCoordinator(st *store.MessageStore, session FrameSender, selfID, peerID int64, logger *logrus.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:      st,
		session:    session,
		logger:     logger,
		selfID:     selfID,
		peerID:     peerID,
		ackTimeout: constants.DefaultAckTimeoutSec * time.Second,
		timers:     make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnChange registers the sole store change listener.
func (c *Coordinator) OnChange(listener Listener) {
	c.mu.Lock()
	c.listener = listener
	c.mu.Unlock()
}

// Send creates a pending entry for content and transmits it. The entry is
// visible through the store before any round trip completes. Empty or
// whitespace-only content is rejected before anything enters the store.
// If the transport refuses the frame the entry is kept and marked failed,
// recoverable via Retry; the transport error is still returned.
func (c *Coordinator) Send(ctx context.Context, content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", errors.NewValidationError("content", "message content is empty")
	}

	_, span := tracing.StartSpan(ctx, "coordinator.send",
		attribute.Int64("chat.peer_id", c.peerID))
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return "", errors.New(errors.ErrCodeConnection, "conversation is closed")
	}

	msg := &models.Message{
		LocalKey:    uuid.NewString(),
		SenderID:    c.selfID,
		RecipientID: c.peerID,
		Content:     trimmed,
		Kind:        models.ContentKindText,
		CreatedAt:   time.Now(),
		Status:      models.DeliveryStatusPending,
	}
	if err := c.store.Append(msg); err != nil {
		tracing.RecordError(span, err)
		return "", err
	}
	c.notify(EventAppended, *msg)

	if err := c.session.Send(outboundFrame(msg)); err != nil {
		c.failLocked(msg.LocalKey, "transport refused frame")
		tracing.RecordError(span, err)
		return msg.LocalKey, err
	}
	c.armTimeoutLocked(msg.LocalKey)

	c.logger.WithFields(logrus.Fields{
		"local_key": msg.LocalKey,
		"peer_id":   c.peerID,
	}).Debug("Message sent, awaiting ack")
	return msg.LocalKey, nil
}

// Retry re-sends a failed message. The entry keeps its localKey and content
// and re-enters pending; no new entry is created.
func (c *Coordinator) Retry(ctx context.Context, localKey string) error {
	_, span := tracing.StartSpan(ctx, "coordinator.retry",
		attribute.String("chat.local_key", localKey))
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.New(errors.ErrCodeConnection, "conversation is closed")
	}

	entry, ok := c.store.GetByLocalKey(localKey)
	if !ok {
		err := errors.NewNotFoundError("localKey", localKey)
		tracing.RecordError(span, err)
		return err
	}
	if entry.Status != models.DeliveryStatusFailed {
		err := errors.NewValidationError("localKey", "only failed messages can be retried")
		tracing.RecordError(span, err)
		return err
	}

	pending := models.DeliveryStatusPending
	noReason := ""
	updated, err := c.store.UpsertByLocalKey(localKey, store.Patch{Status: &pending, FailureReason: &noReason})
	if err != nil {
		tracing.RecordError(span, err)
		return err
	}
	c.notify(EventUpdated, *updated)

	if err := c.session.Send(outboundFrame(updated)); err != nil {
		c.failLocked(localKey, "transport refused frame")
		tracing.RecordError(span, err)
		return err
	}
	c.armTimeoutLocked(localKey)

	c.logger.WithField("local_key", localKey).Info("Retrying failed message")
	return nil
}

// HandleFrame is the transport session's frame observer. Malformed frames
// and unknown kinds are logged and swallowed; nothing thrown here may
// disrupt the connection.
func (c *Coordinator) HandleFrame(data []byte) {
	frame, err := models.DecodeInboundFrame(data)
	if err != nil {
		c.logger.WithError(err).Debug("Dropping malformed inbound frame")
		return
	}

	switch frame.Kind {
	case models.FrameKindAck:
		c.handleAck(frame)
	case models.FrameKindMessage:
		c.handleMessage(frame)
	case models.FrameKindError:
		c.handleError(frame)
	default:
		c.logger.WithField("kind", frame.Kind).Debug("Ignoring inbound frame of unknown kind")
	}
}

// Close disarms every in-flight timeout and detaches the coordinator. No
// timer fires and no status changes after Close returns. Idempotent.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	for localKey, timer := range c.timers {
		timer.Stop()
		delete(c.timers, localKey)
	}
	c.listener = nil
}

// handleAck confirms a pending message and upgrades its identity in place.
// A late ack for a message already timed out to failed upgrades identity
// only: the entry keeps its failed status, since the user may already have
// retried and a silent revival could present one message as delivered twice.
func (c *Coordinator) handleAck(frame *models.InboundFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	entry, ok := c.store.GetByLocalKey(frame.LocalKey)
	if !ok {
		c.logger.WithField("local_key", frame.LocalKey).Debug("Ack for unknown localKey, ignoring")
		return
	}
	c.disarmTimeoutLocked(frame.LocalKey)

	switch entry.Status {
	case models.DeliveryStatusPending:
		confirmed := models.DeliveryStatusConfirmed
		updated, err := c.store.UpsertByLocalKey(frame.LocalKey, store.Patch{
			Status:    &confirmed,
			ServerID:  &frame.ServerID,
			CreatedAt: &frame.CreatedAt,
		})
		if err != nil {
			c.logger.WithError(err).Error("Failed to confirm message")
			return
		}
		c.notify(EventUpdated, *updated)
		c.logger.WithFields(logrus.Fields{
			"local_key": frame.LocalKey,
			"server_id": frame.ServerID,
		}).Debug("Message confirmed")
	case models.DeliveryStatusFailed:
		updated, err := c.store.UpsertByLocalKey(frame.LocalKey, store.Patch{ServerID: &frame.ServerID})
		if err != nil {
			c.logger.WithError(err).Error("Failed to record late ack identity")
			return
		}
		c.notify(EventUpdated, *updated)
		c.logger.WithFields(logrus.Fields{
			"local_key": frame.LocalKey,
			"server_id": frame.ServerID,
		}).Info("Late ack after timeout, identity recorded without revival")
	default:
		c.logger.WithField("local_key", frame.LocalKey).Debug("Duplicate ack, ignoring")
	}
}

// handleError fails a pending message with the server-supplied reason. An
// error frame for an already-failed or confirmed entry is a no-op.
func (c *Coordinator) handleError(frame *models.InboundFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	entry, ok := c.store.GetByLocalKey(frame.LocalKey)
	if !ok {
		c.logger.WithField("local_key", frame.LocalKey).Debug("Error frame for unknown localKey, ignoring")
		return
	}
	c.disarmTimeoutLocked(frame.LocalKey)

	if entry.Status != models.DeliveryStatusPending {
		return
	}
	c.failLocked(frame.LocalKey, frame.Reason)
	c.logger.WithFields(logrus.Fields{
		"local_key": frame.LocalKey,
		"reason":    frame.Reason,
	}).Warn("Server rejected message")
}

// handleMessage appends a peer-authored message. Frames naming the local
// user as sender are a data anomaly and are dropped.
func (c *Coordinator) handleMessage(frame *models.InboundFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	if frame.SenderID == c.selfID {
		c.logger.WithField("server_id", frame.ServerID).Debug("Message frame naming self as sender, ignoring")
		return
	}

	msg := &models.Message{
		ServerID:    frame.ServerID,
		SenderID:    frame.SenderID,
		RecipientID: frame.RecipientID,
		Content:     frame.Content,
		Kind:        models.ContentKindText,
		CreatedAt:   frame.CreatedAt,
		Status:      models.DeliveryStatusReceived,
	}
	if err := c.store.Append(msg); err != nil {
		c.logger.WithError(err).WithField("server_id", frame.ServerID).Debug("Duplicate inbound message, ignoring")
		return
	}
	c.notify(EventAppended, *msg)
}

// armTimeoutLocked arms the delivery deadline for localKey. At most one
// timer is armed per localKey; re-arming replaces the previous timer.
func (c *Coordinator) armTimeoutLocked(localKey string) {
	if existing, ok := c.timers[localKey]; ok {
		existing.Stop()
	}
	c.timers[localKey] = time.AfterFunc(c.ackTimeout, func() {
		c.onTimeout(localKey)
	})
}

func (c *Coordinator) disarmTimeoutLocked(localKey string) {
	if timer, ok := c.timers[localKey]; ok {
		timer.Stop()
		delete(c.timers, localKey)
	}
}

// onTimeout fires when no ack or error frame arrived in time. The entry is
// failed only if it is still pending; an ack or error that won the race has
// already disarmed or outrun this timer.
func (c *Coordinator) onTimeout(localKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	delete(c.timers, localKey)

	entry, ok := c.store.GetByLocalKey(localKey)
	if !ok || entry.Status != models.DeliveryStatusPending {
		return
	}
	timeoutErr := errors.NewSendTimeoutError(localKey, c.ackTimeout.String())
	c.failLocked(localKey, timeoutErr.UserMessage)
	c.logger.WithFields(logrus.Fields{
		"local_key": localKey,
		"timeout":   c.ackTimeout,
	}).Warn(timeoutErr.Message)
}

func (c *Coordinator) failLocked(localKey, reason string) {
	failed := models.DeliveryStatusFailed
	updated, err := c.store.UpsertByLocalKey(localKey, store.Patch{Status: &failed, FailureReason: &reason})
	if err != nil {
		c.logger.WithError(err).Error("Failed to mark message failed")
		return
	}
	c.notify(EventUpdated, *updated)
}

func (c *Coordinator) notify(kind EventKind, msg models.Message) {
	if c.listener != nil {
		c.listener(Event{Kind: kind, Message: msg})
	}
}

func outboundFrame(msg *models.Message) *models.OutboundFrame {
	frame := &models.OutboundFrame{
		LocalKey:    msg.LocalKey,
		RecipientID: msg.RecipientID,
		ContentKind: int(msg.Kind),
		Content:     msg.Content,
	}
	if msg.MediaURL != "" {
		frame.MediaURL = &msg.MediaURL
	}
	return frame
}

// PeerID returns the conversation peer.
func (c *Coordinator) PeerID() int64 {
	return c.peerID
}
