// Package conversation splits the host's turn history into the configuration
// command and the active conversation that follows it.
package conversation

import (
	"errors"
	"fmt"

	"github.com/Vovarama1992/hfrelay/internal/command"
)

type Role string

const (
	RoleUser   Role = "user"
	RoleBot    Role = "bot"
	RoleSystem Role = "system"
)

// Turn is one message of the history exactly as the host delivered it.
type Turn struct {
	Role    Role
	Content string
}

// State is recomputed from the full history on every call.
type State int

const (
	// Unconfigured means no user turn parses as a command.
	Unconfigured State = iota
	// AwaitingFirstMessage means the command was just sent and nothing follows
	// its acknowledgement.
	AwaitingFirstMessage
	// Active means there is an unanswered user message to relay.
	Active
)

func (s State) String() string {
	switch s {
	case Unconfigured:
		return "unconfigured"
	case AwaitingFirstMessage:
		return "awaiting_first_message"
	case Active:
		return "active"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrStructuralViolation matches every StructuralViolation via errors.Is.
var ErrStructuralViolation = errors.New("structural violation")

// StructuralViolation reports a history that breaks the host contract. It is
// fatal for the call.
type StructuralViolation struct {
	Index  int
	Reason string
}

func (e *StructuralViolation) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s: %s", ErrStructuralViolation, e.Reason)
	}
	return fmt.Sprintf("%s at turn %d: %s", ErrStructuralViolation, e.Index, e.Reason)
}

func (e *StructuralViolation) Is(target error) bool {
	return target == ErrStructuralViolation
}

func violation(index int, format string, args ...any) error {
	return &StructuralViolation{Index: index, Reason: fmt.Sprintf(format, args...)}
}

// Session is the partitioned view of one call's history.
type Session struct {
	State State
	// Command is set unless State is Unconfigured.
	Command command.Command
	// CommandIndex is the position of the configuration turn, or -1.
	CommandIndex int
	// Window is set only when State is Active.
	Window Window
}

// Partition locates the configuration turn and splits what follows into the
// user and bot message streams.
//
// The turn right after the command is the host's acknowledgement of it and is
// skipped. It must be authored by the bot; anything else means the history is
// misaligned and is reported instead of guessed around.
func Partition(p *command.Parser, turns []Turn) (Session, error) {
	idx := -1
	var cmd command.Command
	for i, turn := range turns {
		if turn.Role != RoleUser {
			continue
		}
		if parsed, ok := p.Parse(turn.Content); ok {
			idx, cmd = i, parsed
			break
		}
	}
	if idx < 0 {
		return Session{State: Unconfigured, CommandIndex: -1}, nil
	}

	ack := idx + 1
	if ack < len(turns) && turns[ack].Role != RoleBot {
		return Session{}, violation(ack, "expected bot acknowledgement of the command, got role %q", turns[ack].Role)
	}

	start := idx + 2
	if start >= len(turns) {
		return Session{State: AwaitingFirstMessage, Command: cmd, CommandIndex: idx}, nil
	}

	var window Window
	for i, turn := range turns[start:] {
		switch turn.Role {
		case RoleUser:
			window.UserTexts = append(window.UserTexts, turn.Content)
		case RoleBot:
			window.BotTexts = append(window.BotTexts, turn.Content)
		default:
			return Session{}, violation(start+i, "unknown role %q", turn.Role)
		}
	}

	last := len(turns) - 1
	if turns[last].Role != RoleUser {
		return Session{}, violation(last, "last message role should be from the user, got %q", turns[last].Role)
	}
	if err := window.Validate(); err != nil {
		return Session{}, err
	}

	return Session{State: Active, Command: cmd, CommandIndex: idx, Window: window}, nil
}
