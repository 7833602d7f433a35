package chatapi

import (
	"encoding/json"
	"time"
)

// envelope is the backend's uniform response wrapper. Code 200 means
// success regardless of the HTTP status line.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

const envelopeOK = 200

// historyMessage is one persisted message as the history endpoint returns it.
type historyMessage struct {
	ID          int64     `json:"id"`
	FromUserID  int64     `json:"fromUserId"`
	ToUserID    int64     `json:"toUserId"`
	Content     string    `json:"content"`
	MessageType int       `json:"messageType"`
	MediaURL    string    `json:"mediaUrl"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Profile is a user profile as the profile endpoints return it.
type Profile struct {
	ID       int64  `json:"id"`
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar"`
	Gender   int    `json:"gender"`
}
