package ws

import (
	"time"

	"github.com/HerbHall/drivewatch/internal/poller"
)

// MessageType discriminates WebSocket messages.
type MessageType string

const (
	// MessageSnapshot carries one published snapshot.
	MessageSnapshot MessageType = "snapshot"
	// MessageReauthRequired tells clients the appliance needs new credentials.
	MessageReauthRequired MessageType = "reauth_required"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type      MessageType      `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	Snapshot  *poller.Snapshot `json:"snapshot,omitempty"`
}
