package poe

import (
	"context"

	"github.com/Vovarama1992/hfrelay/internal/conversation"
)

type EventKind string

const (
	EventMeta           EventKind = "meta"
	EventText           EventKind = "text"
	EventSuggestedReply EventKind = "suggested_reply"
	EventError          EventKind = "error"
	EventDone           EventKind = "done"
)

// Event is one server-sent event in the host's vocabulary.
type Event struct {
	Kind       EventKind
	Text       string
	AllowRetry bool
}

// Query is one conversation turn request from the host, carrying the whole
// history so far.
type Query struct {
	ConversationID string
	UserID         string
	MessageID      string
	Turns          []conversation.Turn
}

type SettingsResponse struct {
	IntroductionMessage string `json:"introduction_message"`
}

// ErrorReport is an error the host observed while talking to this bot.
type ErrorReport struct {
	ConversationID string
	MessageID      string
	Message        string
	Metadata       map[string]any
}

// Exchange is the write-only record of one remote call.
type Exchange struct {
	RequestID      string
	ConversationID string
	Backend        string
	Endpoint       string
	Probe          bool
	Status         int
	Outcome        string
	LatencyMS      int64
	Error          string
}

// Outbound delivers events back to the host.
type Outbound interface {
	Send(ctx context.Context, ev Event) error
}

// Repo persists exchange records. They are never read back as conversation state.
type Repo interface {
	SaveExchange(ctx context.Context, ex *Exchange) error
}

// Service runs one bot session per host request.
type Service interface {
	HandleQuery(ctx context.Context, q Query, out Outbound) error
	Settings(ctx context.Context) SettingsResponse
	ReportError(ctx context.Context, report ErrorReport)
	// Drain blocks until background exchange log writes have finished.
	Drain()
}
