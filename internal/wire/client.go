// Package wire defines the contract the core holds against the external
// messaging protocol gateway: an opaque session handle that emits
// connection events and exposes the pairing-code and message-send
// operations. The protocol handshake and crypto live on the other side
// of this boundary and are never reimplemented here.
package wire

import (
	"context"
	"encoding/json"
	"time"
)

// EventKind enumerates the notifications a protocol session emits.
type EventKind string

const (
	EventOpening      EventKind = "opening"
	EventOpen         EventKind = "open"
	EventClosed       EventKind = "closed"
	EventQRAvailable  EventKind = "qr"
	EventNewLogin     EventKind = "new_login"
	EventCredsUpdated EventKind = "creds_updated"
)

// Event is one connection-state or credentials notification from a
// protocol session handle.
type Event struct {
	Kind EventKind `json:"kind"`

	// Set on EventClosed.
	StatusCode      int    `json:"status_code,omitempty"`
	RestartRequired bool   `json:"restart_required,omitempty"`
	Message         string `json:"message,omitempty"`

	// Set on EventCredsUpdated: the serialized key material to
	// persist into the session directory.
	Credentials json.RawMessage `json:"credentials,omitempty"`

	// Set on EventQRAvailable.
	QR string `json:"qr,omitempty"`
}

// DocumentPayload is a file attachment, used to carry the credential
// bundle itself.
type DocumentPayload struct {
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// ImagePayload is an image referenced by URL with an optional caption.
type ImagePayload struct {
	URL     string `json:"url"`
	Caption string `json:"caption,omitempty"`
}

// Payload is one outbound message. Exactly one field should be set.
type Payload struct {
	Document *DocumentPayload `json:"document,omitempty"`
	Image    *ImagePayload    `json:"image,omitempty"`
	Text     string           `json:"text,omitempty"`
}

// Receipt acknowledges a delivered message.
type Receipt struct {
	MessageID string    `json:"message_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Client is one live connection to the messaging service. Events must
// be drained by exactly one consumer; the channel is closed when the
// underlying connection is torn down.
type Client interface {

	// Events returns the stream of connection-state and credential
	// notifications for this handle.
	Events() <-chan Event

	// Registered reports whether the session directory bound to this
	// handle already holds a registered credential set. Unregistered
	// sessions need a pairing code.
	Registered() bool

	// RequestPairingCode asks the remote service to issue a single-use
	// pairing code for the given canonical identifier.
	RequestPairingCode(ctx context.Context, identifier string) (string, error)

	// SendMessage delivers one payload to the target identifier.
	SendMessage(ctx context.Context, target string, payload Payload) (*Receipt, error)

	// Close tears down the connection. Safe to call more than once.
	Close() error
}

// SessionOptions parameterize one handle.
type SessionOptions struct {
	AuthDir           string
	BrowserName       string
	ConnectTimeout    time.Duration
	KeepAliveInterval time.Duration

	// Protocol version negotiated before dialing; zero means the
	// gateway default.
	Version ProtocolVersion
}

// Dialer constructs protocol session handles. The production
// implementation talks to the gateway; tests substitute fakes.
type Dialer interface {
	Dial(ctx context.Context, opts SessionOptions) (Client, error)
}

// ProtocolVersion identifies the wire protocol revision to advertise
// when opening a session.
type ProtocolVersion struct {
	Primary   int `json:"primary"`
	Secondary int `json:"secondary"`
	Tertiary  int `json:"tertiary"`
}

// IsZero reports whether no version has been negotiated.
func (v ProtocolVersion) IsZero() bool {
	return v.Primary == 0 && v.Secondary == 0 && v.Tertiary == 0
}
