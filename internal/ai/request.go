package ai

import (
	"fmt"

	"github.com/Vovarama1992/hfrelay/internal/command"
	"github.com/Vovarama1992/hfrelay/internal/conversation"
)

// DefaultMaxTime is the generation budget in seconds sent with every request.
// The host gives up after 5 seconds, so the model must stop a little earlier.
const DefaultMaxTime = 4.95

// ProbeGreeting is sent right after configuration to check the endpoint works.
const ProbeGreeting = "Hi, how are you?"

// Request is everything one remote call needs.
type Request struct {
	Endpoint string
	// Text is the unanswered user message.
	Text string
	// PastUserInputs and GeneratedResponses pair up in chronological order.
	// Both are nil on the first message of a conversation.
	PastUserInputs     []string
	GeneratedResponses []string
	Params             command.Parameters
	MaxTime            float64
}

// BuildRequest projects the active conversation onto a remote request.
func BuildRequest(cmd command.Command, window conversation.Window) (Request, error) {
	if err := window.Validate(); err != nil {
		return Request{}, fmt.Errorf("build request: %w", err)
	}

	past, generated := window.History()
	return Request{
		Endpoint:           cmd.Endpoint,
		Text:               window.Latest(),
		PastUserInputs:     past,
		GeneratedResponses: generated,
		Params:             cmd.Params,
		MaxTime:            DefaultMaxTime,
	}, nil
}

// ProbeRequest is the validation call made before any real user content exists.
func ProbeRequest(cmd command.Command) Request {
	return Request{
		Endpoint: cmd.Endpoint,
		Text:     ProbeGreeting,
		Params:   cmd.Params,
		MaxTime:  DefaultMaxTime,
	}
}

// Parameters returns the wire parameter section: the time budget plus every
// supplied knob, nothing else.
func (r Request) Parameters() map[string]any {
	out := map[string]any{"max_time": r.MaxTime}
	for _, f := range r.Params.Fields() {
		out[f.Name] = f.Value
	}
	return out
}

// Messages interleaves the history into user/assistant turns ending with Text.
func (r Request) Messages() []Message {
	msgs := make([]Message, 0, 2*len(r.PastUserInputs)+1)
	for i, text := range r.PastUserInputs {
		msgs = append(msgs, Message{Role: "user", Text: text})
		if i < len(r.GeneratedResponses) {
			msgs = append(msgs, Message{Role: "assistant", Text: r.GeneratedResponses[i]})
		}
	}
	return append(msgs, Message{Role: "user", Text: r.Text})
}
