package poe

import (
	"github.com/Vovarama1992/hfrelay/internal/ai"
	"github.com/Vovarama1992/hfrelay/internal/command"
)

func textEvent(text string) Event {
	return Event{Kind: EventText, Text: text}
}

func unconfiguredEvents(usage string) []Event {
	return []Event{
		textEvent(helpMessage(usage)),
		{Kind: EventSuggestedReply, Text: command.ExampleEndpoint},
	}
}

func probeEvents(cmd command.Command, res ai.Result, err error) []Event {
	switch {
	case err != nil:
		return []Event{textEvent(probeErrorMessage(err.Error()))}
	case !res.OK():
		return []Event{textEvent(probeErrorMessage(res.Payload))}
	default:
		return []Event{textEvent(configuredMessage(cmd))}
	}
}

func replyEvents(res ai.Result, err error) []Event {
	switch {
	case err != nil:
		return []Event{textEvent(replyErrorMessage(err.Error()))}
	case !res.OK():
		return []Event{textEvent(replyErrorMessage(res.Payload))}
	default:
		return []Event{textEvent(res.Text)}
	}
}
