// Package transport defines the narrow contract between bot instances and the
// chat platform. The Telegram Bot API implementation lives in
// internal/telegram.
package transport

import (
	"context"
	"log/slog"
	"time"
)

// EventKind classifies inbound events.
type EventKind int

const (
	EventCommand EventKind = iota + 1
	EventCallback
	EventText
	EventMemberJoined
)

func (k EventKind) String() string {
	switch k {
	case EventCommand:
		return "command"
	case EventCallback:
		return "callback"
	case EventText:
		return "text"
	case EventMemberJoined:
		return "member_joined"
	default:
		return "unknown"
	}
}

// User is the sender of an event or a member that joined a chat.
type User struct {
	ID        int64
	FirstName string
	Username  string
}

// Event is one inbound update, already classified.
type Event struct {
	Kind         EventKind
	ChatID       int64
	ChatTitle    string
	ChatUsername string
	MessageID    int
	From         User
	// ReplyTo is the author of the message this one replies to, if any.
	ReplyTo *User

	// Command holds the command name without the leading marker or bot
	// mention; Args is the remainder of the message.
	Command string
	Args    string

	Text string

	CallbackID   string
	CallbackData string

	NewMembers []User
}

// Handler receives inbound events for one instance.
type Handler func(ctx context.Context, ev Event)

// Button is one inline keyboard button.
type Button struct {
	Text         string
	URL          string
	CallbackData string
}

// Keyboard is an inline keyboard, row by row.
type Keyboard [][]Button

// SendOptions tweak outbound messages.
type SendOptions struct {
	DisablePreview bool
	Keyboard       Keyboard
}

// Conn is an active registration of one bot instance on the platform.
// Targets are chat ids in decimal form or public @usernames.
type Conn interface {
	SendText(ctx context.Context, target, text string, opts SendOptions) error
	SendImage(ctx context.Context, target, image, caption string, opts SendOptions) error
	SendPoll(ctx context.Context, target, question string, options []string, anonymous bool, opts SendOptions) error
	EditText(ctx context.Context, target string, messageID int, text string, opts SendOptions) error
	DeleteMessage(ctx context.Context, target string, messageID int) error
	IsAdministrator(ctx context.Context, chatID, userID int64) (bool, error)
	AcknowledgeCallback(ctx context.Context, callbackID string) error

	// BanMember removes a user from a chat for good.
	BanMember(ctx context.Context, chatID, userID int64) error
	// RestrictMember keeps a user from sending messages until the given time.
	RestrictMember(ctx context.Context, chatID, userID int64, until time.Time) error

	// Disconnect stops event delivery. When teardown is set the platform-side
	// registration (webhook) is removed as well.
	Disconnect(ctx context.Context, teardown bool) error
}

// Registration is what an instance hands to the gateway to start receiving
// events.
type Registration struct {
	ID      string
	Token   string
	Handler Handler
	Logger  *slog.Logger
}

// Gateway connects bot instances to the platform.
type Gateway interface {
	Connect(ctx context.Context, reg Registration) (Conn, error)
	// Teardown removes the platform-side registration of an instance that
	// holds no live connection.
	Teardown(ctx context.Context, id, token string) error
}
