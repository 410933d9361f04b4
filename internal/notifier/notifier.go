// Package notifier fans lifecycle events out to connected observers.
// Delivery is best effort: a slow or dead observer never blocks the caller
// or the other observers.
package notifier

// Notifier is the event surface the lifecycle manager publishes through.
type Notifier interface {
	// BroadcastAll delivers the event to every registered observer.
	BroadcastAll(event string, payload any)

	// SendTo delivers the event to a single observer.
	SendTo(obs Observer, event string, payload any)
}

// Observer is one event consumer, usually a websocket connection.
type Observer interface {
	// ID uniquely identifies this observer within the hub.
	ID() string

	// Send queues the event for delivery. Implementations must not block;
	// a full queue or closed observer returns an error and the event is
	// dropped for this observer only.
	Send(event string, payload any) error
}

// QRPayload is the payload of the qrcode event.
type QRPayload struct {
	Session string `json:"session"`
	Source  string `json:"data"`
}

// StatusPayload is the payload of the message event.
type StatusPayload struct {
	Session string `json:"session"`
	Status  string `json:"status"`
}

// SnapshotPayload is the payload of the initialize event sent to a freshly
// attached observer.
type SnapshotPayload struct {
	Sessions []SessionState `json:"sessions"`
}

// SessionState is one entry of a snapshot.
type SessionState struct {
	Session string `json:"session"`
	Ready   bool   `json:"ready"`
}
