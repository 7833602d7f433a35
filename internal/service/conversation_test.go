package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sparkchat/internal/errors"
	"sparkchat/internal/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockChatAPI struct {
	mock.Mock
}

func (m *mockChatAPI) FetchHistory(ctx context.Context, peerID int64, page, size int) ([]models.Message, error) {
	args := m.Called(ctx, peerID, page, size)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

func (m *mockChatAPI) MarkRead(ctx context.Context, peerID int64) error {
	args := m.Called(ctx, peerID)
	return args.Error(0)
}

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// startChatBackend runs a fake chat socket that acks every outbound frame
// with sequential server IDs starting at startID.
func startChatBackend(t *testing.T, startID int64) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		next := startID
		for {
			var frame models.OutboundFrame
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			ack := models.InboundFrame{
				Kind:      models.FrameKindAck,
				LocalKey:  frame.LocalKey,
				ServerID:  next,
				CreatedAt: time.Now().UTC(),
			}
			next++
			if err := conn.WriteJSON(ack); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func testDeps(t *testing.T, backendURL string, api ChatAPI) Deps {
	t.Helper()
	tokens := NewTokenStore()
	tokens.Set("test-token")

	return Deps{
		Config: &models.Config{
			Server: models.ServerConfig{APIBaseURL: backendURL},
			Chat:   models.ChatConfig{AckTimeoutSec: 2, HistoryPageSize: 50},
			Retry:  models.RetryConfig{InitialBackoffMs: 5, MaxBackoffMs: 20, MaxAttempts: 2},
		},
		Tokens: tokens,
		API:    api,
		Logger: quietLogger(),
	}
}

func TestOpenConversationRequiresToken(t *testing.T) {
	api := new(mockChatAPI)
	deps := testDeps(t, "http://127.0.0.1:1", api)
	deps.Tokens = NewTokenStore()

	_, err := OpenConversation(context.Background(), deps, testSelfID, testPeerID)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConnection, errors.GetCode(err))

	// Without a token nothing else is attempted.
	api.AssertNotCalled(t, "FetchHistory", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestOpenConversationFullFlow(t *testing.T) {
	backend := startChatBackend(t, 100)

	history := []models.Message{
		{ServerID: 1, SenderID: testPeerID, RecipientID: testSelfID, Content: "earlier", CreatedAt: time.Now().Add(-time.Hour), Status: models.DeliveryStatusReceived},
	}
	api := new(mockChatAPI)
	api.On("FetchHistory", mock.Anything, testPeerID, 1, 50).Return(history, nil)
	api.On("MarkRead", mock.Anything, testPeerID).Return(nil)

	conv, err := OpenConversation(context.Background(), testDeps(t, backend.URL, api), testSelfID, testPeerID)
	require.NoError(t, err)
	defer conv.Close()

	require.Len(t, conv.Messages(), 1)
	assert.Equal(t, "earlier", conv.Messages()[0].Content)

	localKey, err := conv.Send(context.Background(), "hello")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		for _, msg := range conv.Messages() {
			if msg.LocalKey == localKey && msg.Status == models.DeliveryStatusConfirmed {
				return msg.ServerID == 100
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	snap := conv.Messages()
	require.Len(t, snap, 2)
	assert.Equal(t, "earlier", snap[0].Content)
	assert.Equal(t, "hello", snap[1].Content)

	api.AssertNumberOfCalls(t, "MarkRead", 1)
}

func TestOpenConversationHistoryFailureNonFatal(t *testing.T) {
	backend := startChatBackend(t, 100)

	api := new(mockChatAPI)
	api.On("FetchHistory", mock.Anything, testPeerID, 1, 50).Return(nil, assert.AnError)
	api.On("MarkRead", mock.Anything, testPeerID).Return(nil)

	conv, err := OpenConversation(context.Background(), testDeps(t, backend.URL, api), testSelfID, testPeerID)
	require.NoError(t, err)
	defer conv.Close()

	assert.Empty(t, conv.Messages())

	// Live messaging still functions.
	localKey, err := conv.Send(context.Background(), "still works")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		for _, msg := range conv.Messages() {
			if msg.LocalKey == localKey && msg.Status == models.DeliveryStatusConfirmed {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestOpenConversationMarkReadFailureIgnored(t *testing.T) {
	backend := startChatBackend(t, 100)

	api := new(mockChatAPI)
	api.On("FetchHistory", mock.Anything, testPeerID, 1, 50).Return([]models.Message{}, nil)
	api.On("MarkRead", mock.Anything, testPeerID).Return(assert.AnError)

	conv, err := OpenConversation(context.Background(), testDeps(t, backend.URL, api), testSelfID, testPeerID)
	require.NoError(t, err)
	conv.Close()
}

func TestConversationCloseDisarmsPendingTimeouts(t *testing.T) {
	// A backend that swallows frames: sends stay pending forever.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)

	api := new(mockChatAPI)
	api.On("FetchHistory", mock.Anything, testPeerID, 1, 50).Return([]models.Message{}, nil)
	api.On("MarkRead", mock.Anything, testPeerID).Return(nil)

	deps := testDeps(t, server.URL, api)
	deps.Config.Chat.AckTimeoutSec = 1

	conv, err := OpenConversation(context.Background(), deps, testSelfID, testPeerID)
	require.NoError(t, err)

	localKey, err := conv.Send(context.Background(), "hello")
	require.NoError(t, err)

	conv.Close()
	conv.Close()
	time.Sleep(1200 * time.Millisecond)

	snap := conv.Messages()
	require.Len(t, snap, 1)
	assert.Equal(t, localKey, snap[0].LocalKey)
	assert.Equal(t, models.DeliveryStatusPending, snap[0].Status, "no timeout may fire after teardown")
}
