// Package channels defines the interfaces and types the ZapClaw bot uses to
// talk to a messaging transport. WhatsApp is the only implementation today;
// the interfaces keep the bot testable against a fake.
package channels

import (
	"context"
	"fmt"
	"time"
)

// MessageType identifies the kind of message content.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageOther MessageType = "other"
)

// Channel defines the interface that a communication channel must implement.
type Channel interface {
	// Name returns the channel identifier (e.g. "whatsapp").
	Name() string

	// Connect establishes the connection to the messaging platform.
	Connect(ctx context.Context) error

	// Disconnect gracefully closes the connection.
	Disconnect() error

	// Send sends a text message to the specified recipient.
	Send(ctx context.Context, to string, message *OutgoingMessage) error

	// Receive returns a Go channel that emits incoming messages.
	Receive() <-chan *IncomingMessage

	// IsConnected returns true if the channel is connected.
	IsConnected() bool
}

// MediaChannel extends Channel with media download support.
type MediaChannel interface {
	Channel

	// DownloadMedia downloads media from an incoming message.
	// Returns the raw bytes and MIME type.
	DownloadMedia(ctx context.Context, msg *IncomingMessage) ([]byte, string, error)
}

// PresenceChannel extends Channel with typing indicators.
type PresenceChannel interface {
	Channel

	// SendTyping sends a "typing..." indicator to the recipient.
	SendTyping(ctx context.Context, to string) error

	// StopTyping clears the typing indicator for the recipient.
	StopTyping(ctx context.Context, to string) error
}

// IncomingMessage represents a message received from a channel.
type IncomingMessage struct {
	// ID is the unique message identifier in the source channel.
	ID string

	// Channel identifies the source channel (e.g. "whatsapp").
	Channel string

	// From is the sender identifier on the platform.
	From string

	// FromName is the sender display name (if available).
	FromName string

	// Type is the message content type.
	Type MessageType

	// Content is the text content of the message (caption for images).
	Content string

	// Timestamp is when the message was sent.
	Timestamp time.Time

	// Media contains media attachment details (if any).
	Media *MediaInfo
}

// OutgoingMessage represents a message to be sent through a channel.
type OutgoingMessage struct {
	// Content is the text content of the message.
	Content string

	// ReplyTo contains the ID of the message to reply to.
	ReplyTo string
}

// MediaInfo describes media attached to an incoming message.
type MediaInfo struct {
	// Type is the media type.
	Type MessageType

	// MimeType is the MIME type of the media.
	MimeType string

	// FileSize is the size in bytes.
	FileSize uint64

	// Caption is the media caption text.
	Caption string

	// DirectPath is the platform-specific media path.
	DirectPath string

	// MediaKey is the encryption key for the media.
	MediaKey []byte

	// FileSHA256 is the SHA256 hash of the file.
	FileSHA256 []byte

	// FileEncSHA256 is the SHA256 hash of the encrypted file.
	FileEncSHA256 []byte
}

// Errors.
var (
	ErrChannelDisconnected = fmt.Errorf("channel is not connected")
	ErrSendFailed          = fmt.Errorf("failed to send message")
	ErrConnectionFailed    = fmt.Errorf("failed to connect to channel")
	ErrMediaDownloadFailed = fmt.Errorf("failed to download media")
)
