package models

import (
	"time"
)

// DeliveryStatus tracks an entry through the delivery state machine.
// Outbound messages move pending -> confirmed or pending -> failed; a failed
// message re-enters pending on retry. Peer-authored messages are received.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusConfirmed DeliveryStatus = "confirmed"
	DeliveryStatusFailed    DeliveryStatus = "failed"
	DeliveryStatusReceived  DeliveryStatus = "received"
)

// ContentKind is the payload type tag carried on outbound frames.
type ContentKind int

const (
	ContentKindText  ContentKind = 1
	ContentKindImage ContentKind = 2
	ContentKindAudio ContentKind = 3
)

// Message is one entry in the active conversation. Outbound messages are
// created with a LocalKey and gain a ServerID only once the server confirms
// them; inbound messages arrive with a ServerID and never carry a LocalKey.
// A ServerID of zero means not yet assigned.
type Message struct {
	LocalKey    string
	ServerID    int64
	SenderID    int64
	RecipientID int64
	Content     string
	Kind        ContentKind
	MediaURL    string
	CreatedAt   time.Time
	Status      DeliveryStatus

	// FailureReason carries the server-reported or timeout reason while the
	// message is failed; cleared when the message re-enters pending.
	FailureReason string
}
