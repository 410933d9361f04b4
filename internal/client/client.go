// Package client defines the capability surface of one live connection to
// the messaging network. The actual protocol implementation is an external
// concern plugged in through the Factory interface; the rest of the system
// only ever sees these interfaces.
package client

import (
	"context"
)

// Button is one actionable element of a structured message.
type Button struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Chat is a conversation known to a client, group or direct.
type Chat struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	IsGroup bool   `json:"isGroup"`
}

// Events carries the callbacks the lifecycle manager subscribes with when
// creating a client. The manager is the single subscriber; each callback may
// fire any number of times until Logout completes.
type Events struct {
	// OnQR fires with a new pairing QR code (base64 image data) while the
	// session awaits pairing.
	OnQR func(qr string)
	// OnStatus fires on every underlying status change with the raw status
	// string.
	OnStatus func(status string)
	// OnStateChange fires on connection state transitions
	// (e.g. "CONNECTED", "DISCONNECTED").
	OnStateChange func(state string)
}

// CreateOptions parameterizes a client connection attempt.
type CreateOptions struct {
	Session     string
	MultiDevice bool
	Company     string
}

// Client is one live connection to the messaging network.
//
// A Client is exclusively owned by the registry entry holding it; Logout is
// the only sanctioned release path.
type Client interface {
	// SendText sends a plain text message to the given number.
	SendText(ctx context.Context, number, content string) error

	// SendButtons sends a structured message with action buttons.
	SendButtons(ctx context.Context, number, title string, buttons []Button, content string) error

	// Chats lists the conversations currently known to this client.
	Chats(ctx context.Context) ([]Chat, error)

	// Logout terminates the connection and stops event delivery.
	// Idempotent: calling Logout on a logged-out client must not panic.
	Logout(ctx context.Context) error
}

// Factory creates clients. Create blocks until the connection attempt
// settles; ev callbacks may start firing before Create returns (QR codes
// are emitted while pairing is still in progress).
type Factory interface {
	Create(ctx context.Context, opts CreateOptions, ev Events) (Client, error)
}
