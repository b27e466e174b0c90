// Package transport abstracts the messaging platform behind a small gateway
// interface: an inbound event stream plus outbound send/restrict operations.
// The production implementation speaks the Telegram Bot API; tests use
// in-memory fakes.
//
// Outbound calls are single-attempt, bounded side effects. The record store
// is the durable truth; a failed notification never desynchronizes state, so
// nothing here retries.
package transport

import (
	"context"
	"time"
)

// EventKind identifies an inbound event.
type EventKind string

const (
	EventMemberJoined   EventKind = "member_joined"
	EventMemberLeft     EventKind = "member_left"
	EventCommandInvoked EventKind = "command_invoked"
	EventButtonPressed  EventKind = "button_pressed"
	EventMessage        EventKind = "message"
)

// Event is one inbound occurrence from the platform. GroupID is the chat the
// event arrived in; for private chats it equals the member's DM chat ID and
// Private is true.
type Event struct {
	Kind       EventKind
	GroupID    int64
	GroupTitle string
	MemberID   int64
	Username   string

	// Command fields (EventCommandInvoked).
	Command string
	Args    []string

	// Callback fields (EventButtonPressed).
	CallbackID   string
	CallbackData string

	MessageID int
	Text      string
	Private   bool
}

// Button is an inline action attached to an outbound message. Exactly one of
// Data (callback) or URL should be set.
type Button struct {
	Label string
	Data  string
	URL   string
}

// Gateway is the full transport surface consumed by the dispatcher.
type Gateway interface {
	Sender
	Restrictor

	// MemberStatus returns the platform-level membership status of the
	// member in the group (e.g. "creator", "administrator", "member").
	MemberStatus(ctx context.Context, groupID, memberID int64) (string, error)

	// AnswerCallback acknowledges a button press, optionally with a toast.
	AnswerCallback(ctx context.Context, callbackID, text string) error

	// DeleteMessage removes a message the bot is allowed to delete.
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error

	// Events returns the inbound event stream. The channel closes when the
	// gateway shuts down.
	Events() <-chan Event
}

// Sender delivers outbound messages. Split out so the reminder worker and
// the admission machine can be tested against a one-method fake.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string, buttons ...Button) error
}

// Restrictor mutes and unmutes members at the transport layer.
type Restrictor interface {
	RestrictMember(ctx context.Context, groupID, memberID int64, until *time.Time) error
	UnrestrictMember(ctx context.Context, groupID, memberID int64) error
}
