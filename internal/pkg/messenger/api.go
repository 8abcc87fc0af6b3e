package messenger

import (
	"context"
	"errors"

	"github.com/airenas/voxy/internal/pkg/persistence"
)

// ErrNotFound indicates the channel, message or attachment is gone on the chat side.
// Jobs pointing at gone sources are dropped silently.
var ErrNotFound = errors.New("not found")

// Channel is a chat channel reference
type Channel struct {
	ID   int64  `json:"id"`
	Name string `json:"name,omitempty"`
}

// Attachment describes one file attached to a message
type Attachment struct {
	ID           int64   `json:"id"`
	URL          string  `json:"url"`
	Filename     string  `json:"filename,omitempty"`
	DurationSecs float64 `json:"durationSecs,omitempty"`
	VoiceNote    bool    `json:"voiceNote,omitempty"`
	Size         int64   `json:"size,omitempty"`
}

// Message is a chat message with its attachments
type Message struct {
	ID          int64        `json:"id"`
	ChannelID   int64        `json:"channelId"`
	AuthorID    int64        `json:"authorId"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Messenger is the chat side seen by the worker
type Messenger interface {
	ResolveChannel(ctx context.Context, channelID int64) (*Channel, error)
	FetchMessage(ctx context.Context, channel *Channel, messageID int64) (*Message, error)
	ReadAttachment(ctx context.Context, attachment *Attachment) ([]byte, error)
	Reply(ctx context.Context, msg *Message, submitterID int64, locale string, res *persistence.Result) error
}
