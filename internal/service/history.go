package service

import (
	"context"

	"sparkchat/internal/errors"
	"sparkchat/internal/models"
	"sparkchat/internal/store"
	"sparkchat/internal/tracing"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// HistoryFetcher is the HTTP boundary for past messages. Pages come back
// reverse-chronological, newest first.
type HistoryFetcher interface {
	FetchHistory(ctx context.Context, peerID int64, page, size int) ([]models.Message, error)
}

// LoadHistory fetches the most recent page of the conversation with peerID
// and seeds the store with it. It runs before the live observer is wired up;
// failure is non-fatal to the rest of the subsystem and the caller proceeds
// with whatever loaded.
func LoadHistory(ctx context.Context, fetcher HistoryFetcher, st *store.MessageStore, peerID int64, pageSize int, logger *logrus.Logger) error {
	ctx, span := tracing.StartSpan(ctx, "history.load",
		attribute.Int64("chat.peer_id", peerID),
		attribute.Int("chat.page_size", pageSize))
	defer span.End()

	messages, err := fetcher.FetchHistory(ctx, peerID, 1, pageSize)
	if err != nil {
		tracing.RecordError(span, err)
		return errors.NewHistoryLoadError(err)
	}

	if err := st.Seed(messages); err != nil {
		tracing.RecordError(span, err)
		return errors.NewHistoryLoadError(err)
	}

	logger.WithFields(logrus.Fields{
		"peer_id": peerID,
		"count":   len(messages),
	}).Info("Conversation history loaded")
	return nil
}
