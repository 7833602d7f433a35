// Package chatapi is the HTTP client for the chat backend: conversation
// history, read receipts and user profiles. The live message path does not
// go through here; it runs over the websocket transport.
package chatapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sparkchat/internal/errors"
	"sparkchat/internal/models"

	"github.com/sirupsen/logrus"
)

type Client struct {
	baseURL   string
	authToken string
	client    *http.Client
	logger    *logrus.Logger
}

func NewClient(baseURL, authToken string, httpClient *http.Client) *Client {
	return NewClientWithLogger(baseURL, authToken, httpClient, nil)
}

func NewClientWithLogger(baseURL, authToken string, httpClient *http.Client, logger *logrus.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}

	return &Client{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		authToken: authToken,
		client:    httpClient,
		logger:    logger,
	}
}

// FetchHistory returns the most recent page of messages exchanged with
// peerID, newest first, as the server stores them. Messages authored by
// the peer map to received; own messages are confirmed, since the server
// only persists what it accepted.
func (c *Client) FetchHistory(ctx context.Context, peerID int64, page, size int) ([]models.Message, error) {
	endpoint := fmt.Sprintf("%s/api/chat/history/%d?page=%d&size=%d", c.baseURL, peerID, page, size)
	data, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var raw []historyMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeHistoryLoad, "failed to decode history response")
	}

	messages := make([]models.Message, 0, len(raw))
	for _, hm := range raw {
		status := models.DeliveryStatusConfirmed
		if hm.FromUserID == peerID {
			status = models.DeliveryStatusReceived
		}
		messages = append(messages, models.Message{
			ServerID:    hm.ID,
			SenderID:    hm.FromUserID,
			RecipientID: hm.ToUserID,
			Content:     hm.Content,
			Kind:        models.ContentKind(hm.MessageType),
			MediaURL:    hm.MediaURL,
			CreatedAt:   hm.CreatedAt,
			Status:      status,
		})
	}
	return messages, nil
}

// MarkRead tells the backend every message from peerID has been seen.
// Callers treat it as fire-and-forget.
func (c *Client) MarkRead(ctx context.Context, peerID int64) error {
	endpoint := fmt.Sprintf("%s/api/chat/read/%d", c.baseURL, peerID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConnection, "mark-read request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.New(errors.ErrCodeInternalError, fmt.Sprintf("mark-read returned status %d", resp.StatusCode))
	}
	return nil
}

// GetProfile returns the authenticated user's profile.
func (c *Client) GetProfile(ctx context.Context) (*Profile, error) {
	return c.fetchProfile(ctx, c.baseURL+"/api/user/profile")
}

// GetProfileByID returns another user's public profile.
func (c *Client) GetProfileByID(ctx context.Context, userID int64) (*Profile, error) {
	return c.fetchProfile(ctx, fmt.Sprintf("%s/api/user/profile/%d", c.baseURL, userID))
}

func (c *Client) fetchProfile(ctx context.Context, endpoint string) (*Profile, error) {
	data, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var profile Profile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to decode profile response")
	}
	return &profile, nil
}

// get performs a GET and unwraps the backend envelope, returning the raw
// data payload.
func (c *Client) get(ctx context.Context, endpoint string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.WrapRetryable(err, errors.ErrCodeConnection, "request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConnection, "failed to read response body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(errors.ErrCodeInternalError, fmt.Sprintf("unexpected status %d", resp.StatusCode)).
			WithContext("endpoint", endpoint)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to decode response envelope")
	}
	if env.Code != envelopeOK {
		return nil, errors.New(errors.ErrCodeInternalError, fmt.Sprintf("server returned code %d: %s", env.Code, env.Message)).
			WithContext("endpoint", endpoint)
	}
	return env.Data, nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	req.Header.Set("Accept", "application/json")
}
