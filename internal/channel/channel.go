// Package channel is the push-channel transport between vigil and the
// detection backend.
package channel

import (
	"context"
	"encoding/json"
	"errors"
)

// Event names on the backend's push channel.
const (
	// EventSubscribe declares interest and the narration preference (client → server).
	EventSubscribe = "get-person-ws"
	// EventToggleUpdates asks the server to stop pushing before disconnect (client → server).
	EventToggleUpdates = "toggle_updates"
	// EventDetection carries a detection snapshot (server → client).
	EventDetection = "person_detection_response"
)

// SubscribeRequest is the EventSubscribe payload.
type SubscribeRequest struct {
	NLP bool `json:"nlp"`
}

// ToggleUpdatesRequest is the EventToggleUpdates payload.
type ToggleUpdatesRequest struct {
	Enabled bool `json:"enabled"`
}

// Handler receives the raw body of each EventDetection message.
type Handler func(raw json.RawMessage)

// ErrClosed is returned when emitting on a closed connection.
var ErrClosed = errors.New("channel: connection closed")

// Conn is one open subscription. A nil error from Emit means the message was
// queued, not that the server received it.
type Conn interface {
	Emit(event string, payload any) error
	Close() error
}

// Dialer opens subscriptions to the backend.
type Dialer interface {
	Dial(ctx context.Context, onDetection Handler) (Conn, error)
}
