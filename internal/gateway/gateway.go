// Package gateway defines the narrow messaging surface the core depends on.
// The Telegram adapter implements it; tests substitute fakes.
package gateway

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the gateway could not complete a call after
// exhausting retries. Callers treat it as a transient, fail-closed outcome.
var ErrUnavailable = errors.New("messaging gateway unavailable")

// MemberStatus is a user's membership status within a channel.
type MemberStatus string

const (
	StatusCreator       MemberStatus = "creator"
	StatusAdministrator MemberStatus = "administrator"
	StatusMember        MemberStatus = "member"
	StatusRestricted    MemberStatus = "restricted"
	StatusLeft          MemberStatus = "left"
	StatusKicked        MemberStatus = "kicked"
)

// Satisfies reports whether the status counts as channel membership for
// gating purposes.
func (s MemberStatus) Satisfies() bool {
	switch s {
	case StatusCreator, StatusAdministrator, StatusMember:
		return true
	default:
		return false
	}
}

// Button is one inline keyboard button. Exactly one of URL or CallbackData
// should be set.
type Button struct {
	Text         string
	URL          string
	CallbackData string
}

// MessageRef identifies a sent message so it can be edited later.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Gateway is the outbound messaging surface consumed by the core.
type Gateway interface {
	// GetChatMember returns the user's membership status in a channel.
	GetChatMember(ctx context.Context, channelID, userID int64) (MemberStatus, error)
	// SendMessage sends a text message with an optional inline keyboard.
	SendMessage(ctx context.Context, chatID int64, text string, keyboard [][]Button) (MessageRef, error)
	// EditMessage replaces the text and keyboard of a previously sent message.
	EditMessage(ctx context.Context, ref MessageRef, text string, keyboard [][]Button) error
	// AnswerCallback acknowledges a button callback so the client stops spinning.
	AnswerCallback(ctx context.Context, callbackID string) error
}

// Source delivers inbound events from the messaging platform.
type Source interface {
	// Events returns a channel of inbound events, closed when ctx is done.
	Events(ctx context.Context) <-chan Event
}

// Sender identifies the user behind an inbound event.
type Sender struct {
	UserID      int64
	Username    string
	DisplayName string
}

// Event is one inbound event. Exactly one field is non-nil.
type Event struct {
	Command     *CommandEvent
	Text        *TextEvent
	Callback    *CallbackEvent
	JoinRequest *JoinRequestEvent
}

// CommandEvent is a slash command such as /start.
type CommandEvent struct {
	Sender
	ChatID  int64
	Name    string
	Payload string
}

// TextEvent is a free-text message.
type TextEvent struct {
	Sender
	ChatID int64
	Text   string
}

// CallbackEvent is an inline keyboard button press.
type CallbackEvent struct {
	Sender
	CallbackID string
	ChatID     int64
	MessageID  int
	Data       string
}

// JoinRequestEvent records a user asking to join a gated channel.
type JoinRequestEvent struct {
	Sender
	ChannelID int64
}
