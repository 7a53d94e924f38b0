package conversation

// Window is the active conversation after the command and its acknowledgement.
// It always ends on an unanswered user message, so it holds exactly one more
// user text than bot texts.
type Window struct {
	UserTexts []string
	BotTexts  []string
}

// Validate reports a StructuralViolation when the counts do not line up.
func (w Window) Validate() error {
	if len(w.UserTexts) != len(w.BotTexts)+1 {
		return violation(-1,
			"earlier user messages and bot messages should pair up, got %d user and %d bot messages",
			len(w.UserTexts)-1, len(w.BotTexts))
	}
	return nil
}

// Latest returns the unanswered user message.
func (w Window) Latest() string {
	if len(w.UserTexts) == 0 {
		return ""
	}
	return w.UserTexts[len(w.UserTexts)-1]
}

// History returns the earlier exchanges in chronological order. Both slices
// are nil when the latest message opens the conversation.
func (w Window) History() (pastUserInputs, generatedResponses []string) {
	if len(w.UserTexts) <= 1 {
		return nil, nil
	}
	past := make([]string, len(w.UserTexts)-1)
	copy(past, w.UserTexts[:len(w.UserTexts)-1])
	generated := make([]string, len(w.BotTexts))
	copy(generated, w.BotTexts)
	return past, generated
}

