package ai

import (
	"context"
	"errors"
	"net/http"
)

// AI is the remote model, it knows nothing about the chat host.
type AI interface {
	// Name identifies the backend in logs and metrics.
	Name() string
	// Query performs one remote call. A reply the remote service refused comes
	// back as a Result that is not OK; only transport and decoding failures are
	// returned as errors.
	Query(ctx context.Context, req Request) (Result, error)
}

// Message is the role-tagged form of the conversation for chat style backends.
type Message struct {
	Role string // "user" | "assistant"
	Text string
}

// Result is the remote reply.
type Result struct {
	Status int
	// Text is the generated reply when OK.
	Text string
	// Payload is the raw response body, surfaced to the user on failure.
	Payload string
}

func (r Result) OK() bool {
	return r.Status >= http.StatusOK && r.Status < http.StatusMultipleChoices
}

// ErrUnexpectedResponse means the remote service answered with a success status
// but no generated text.
var ErrUnexpectedResponse = errors.New("unexpected response from model")
