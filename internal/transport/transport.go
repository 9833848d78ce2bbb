// Package transport defines the chat-transport client consumed by the relay
// core: channel and message primitives for the user's private channel and the
// shared staff channel. Concrete clients (Discord, Slack, a test fake) live
// outside the core; the relay only depends on this interface and on the error
// classification helpers below.
package transport

import (
	"context"
	"errors"
	"time"
)

// Attachment is a file attached to an incoming message.
type Attachment struct {
	ID   string
	Name string
	URL  string
	Size int64
}

// File is a transport-ready upload: either re-read from the source URL or
// already buffered.
type File struct {
	Name string
	Data []byte
}

// MessageRef points at a prior message, used for inline replies.
type MessageRef struct {
	ChannelID string
	MessageID string
}

// InteractiveComponent is an opaque UI component (button row, select) passed
// through to the transport unchanged.
type InteractiveComponent struct {
	Type  string
	Label string
	ID    string
}

// Content is the renderable payload of an outgoing message.
type Content struct {
	Body       string
	Components []InteractiveComponent
	Reference  *MessageRef
}

// Message is a message as seen by the transport.
type Message struct {
	ID          string
	ChannelID   string
	AuthorID    string
	AuthorName  string
	Body        string
	Attachments []Attachment
	// Stickers and Activity describe payloads that carry no plain-text
	// body; the inbound relay renders them as text.
	Stickers  []string
	Activity  string
	Reference *MessageRef
	CreatedAt time.Time
}

// Client is the narrow transport surface the relay core consumes.
type Client interface {
	// OpenPrivateChannel resolves (or creates) the one-to-one channel with
	// a user. A nil channel ID with a classified error means the user
	// cannot be messaged.
	OpenPrivateChannel(ctx context.Context, userID string) (string, error)

	Send(ctx context.Context, channelID string, content Content, files []File) (*Message, error)
	Edit(ctx context.Context, channelID, messageID string, content Content) error
	Delete(ctx context.Context, channelID, messageID string) error
	DeleteChannel(ctx context.Context, channelID string) error
	React(ctx context.Context, channelID, messageID, emoji string) error

	// HistoryAfter fetches up to limit messages in channelID strictly after
	// afterMessageID, newest first (the transport's native order).
	HistoryAfter(ctx context.Context, channelID string, limit int, afterMessageID string) ([]Message, error)
}

// Classified transport failures. Concrete clients wrap their SDK errors with
// these sentinels so the relay can pick its recovery path with errors.Is.
var (
	// ErrChannelNotFound: the target channel no longer exists.
	ErrChannelNotFound = errors.New("transport: channel not found")

	// ErrDMNotAllowed: the private channel cannot be opened or written
	// (user blocked the sender or restricted who can message them).
	ErrDMNotAllowed = errors.New("transport: cannot send direct message to user")

	// ErrContentBlocked: the transport rejected the content for policy
	// reasons (e.g. a blocked link).
	ErrContentBlocked = errors.New("transport: content blocked by filter")
)

// IsChannelNotFound reports whether err is a missing-channel failure.
func IsChannelNotFound(err error) bool { return errors.Is(err, ErrChannelNotFound) }

// IsDMNotAllowed reports whether err means the user cannot be DMed.
func IsDMNotAllowed(err error) bool { return errors.Is(err, ErrDMNotAllowed) }

// IsContentBlocked reports whether err is a content-policy rejection.
func IsContentBlocked(err error) bool { return errors.Is(err, ErrContentBlocked) }
