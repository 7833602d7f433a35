package models

import (
	"encoding/json"
	"time"
)

// Inbound frame kind discriminators.
const (
	FrameKindAck     = "ack"
	FrameKindMessage = "message"
	FrameKindError   = "error"
)

// LivenessSentinel is the keepalive token the server writes between frames.
// It is a bare text token, not JSON, and is filtered out at the transport
// layer before frames reach the decoder.
const LivenessSentinel = "PING"

// OutboundFrame is the payload sent over the chat socket for one message
// attempt. The server correlates its eventual ack or error back to the
// client through LocalKey.
type OutboundFrame struct {
	LocalKey    string  `json:"localKey"`
	RecipientID int64   `json:"recipientId"`
	ContentKind int     `json:"contentKind"`
	Content     string  `json:"content"`
	MediaURL    *string `json:"mediaUrl"`
}

// InboundFrame is the union of the server-to-client frame shapes, tagged by
// Kind. Only the fields for the given kind are populated: acks carry
// LocalKey/ServerID/CreatedAt, messages carry the full message body, errors
// carry LocalKey/Reason.
type InboundFrame struct {
	Kind        string    `json:"kind"`
	LocalKey    string    `json:"localKey,omitempty"`
	ServerID    int64     `json:"serverId,omitempty"`
	SenderID    int64     `json:"senderId,omitempty"`
	RecipientID int64     `json:"recipientId,omitempty"`
	Content     string    `json:"content,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
}

// DecodeInboundFrame parses a raw socket payload. Frames with an unknown
// Kind decode successfully; classification is the coordinator's concern.
func DecodeInboundFrame(data []byte) (*InboundFrame, error) {
	var frame InboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, err
	}
	return &frame, nil
}
