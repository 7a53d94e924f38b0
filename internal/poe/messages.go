package poe

import (
	"fmt"

	"github.com/Vovarama1992/hfrelay/internal/command"
)

const IntroductionMessage = "Hi, I am the HuggingFaceExplorer. Please provide me the name " +
	"of a model on HuggingFace with Hosted Inference API support to " +
	"get started. For example, " + command.ExampleEndpoint

func helpMessage(usage string) string {
	return "Unable to parse the HuggingFace bot you want to talk to.\n```\n" + usage + "\n```"
}

func configuredMessage(cmd command.Command) string {
	params := "default parameters"
	if !cmd.Params.Empty() {
		params = "`" + cmd.Params.String() + "`"
	}
	return fmt.Sprintf("Configured to talk to bot `%s` with %s. You can start the conversation now.", cmd.Endpoint, params)
}

func probeErrorMessage(payload string) string {
	return fmt.Sprintf("Error calling the model with these arguments: `%s`", payload)
}

func replyErrorMessage(payload string) string {
	return fmt.Sprintf("Error calling the model: `%s`", payload)
}
