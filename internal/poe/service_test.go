package poe

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vovarama1992/hfrelay/internal/ai"
	"github.com/Vovarama1992/hfrelay/internal/command"
	"github.com/Vovarama1992/hfrelay/internal/conversation"
)

type fakeAI struct {
	mu       sync.Mutex
	requests []ai.Request
	result   ai.Result
	err      error
}

func (f *fakeAI) Name() string { return "fake" }

func (f *fakeAI) Query(_ context.Context, req ai.Request) (ai.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.result, f.err
}

type recordingOutbound struct {
	events []Event
}

func (o *recordingOutbound) Send(_ context.Context, ev Event) error {
	o.events = append(o.events, ev)
	return nil
}

type memoryRepo struct {
	mu        sync.Mutex
	exchanges []Exchange
	err       error
}

func (r *memoryRepo) SaveExchange(_ context.Context, ex *Exchange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exchanges = append(r.exchanges, *ex)
	return r.err
}

// blockingRepo holds every save until release is closed and records the
// state of the save context at that point.
type blockingRepo struct {
	release chan struct{}
	ctxErr  chan error
}

func (r *blockingRepo) SaveExchange(ctx context.Context, _ *Exchange) error {
	select {
	case <-r.release:
		r.ctxErr <- ctx.Err()
		return nil
	case <-ctx.Done():
		r.ctxErr <- ctx.Err()
		return ctx.Err()
	}
}

func user(text string) conversation.Turn {
	return conversation.Turn{Role: conversation.RoleUser, Content: text}
}

func bot(text string) conversation.Turn {
	return conversation.Turn{Role: conversation.RoleBot, Content: text}
}

func newTestService(model *fakeAI, repo Repo) Service {
	return NewService(command.NewParser(), model, repo)
}

func TestHandleQuery_Unconfigured(t *testing.T) {
	model := &fakeAI{}
	out := &recordingOutbound{}

	err := newTestService(model, nil).HandleQuery(context.Background(), Query{Turns: []conversation.Turn{user("hello")}}, out)
	require.NoError(t, err)

	assert.Empty(t, model.requests)
	require.Len(t, out.events, 2)
	assert.Equal(t, EventText, out.events[0].Kind)
	assert.Contains(t, out.events[0].Text, "Unable to parse the HuggingFace bot")
	assert.Contains(t, out.events[0].Text, "--repetition_penalty")
	assert.Equal(t, Event{Kind: EventSuggestedReply, Text: "microsoft/DialoGPT-large"}, out.events[1])
}

func TestHandleQuery_ProbeSuccess(t *testing.T) {
	model := &fakeAI{result: ai.Result{Status: http.StatusOK, Text: "I'm good"}}
	repo := &memoryRepo{}
	out := &recordingOutbound{}

	q := Query{ConversationID: "c1", Turns: []conversation.Turn{user("microsoft/DialoGPT-large --top_p 0.9 --temperature 0.7")}}
	svc := newTestService(model, repo)
	require.NoError(t, svc.HandleQuery(context.Background(), q, out))
	svc.Drain()

	require.Len(t, model.requests, 1)
	assert.Equal(t, ai.ProbeGreeting, model.requests[0].Text)
	assert.Nil(t, model.requests[0].PastUserInputs)

	require.Len(t, out.events, 1)
	assert.Equal(t, EventText, out.events[0].Kind)
	assert.Contains(t, out.events[0].Text, "Configured to talk to bot `microsoft/DialoGPT-large`")
	assert.Contains(t, out.events[0].Text, "--top_p 0.9 --temperature 0.7")

	require.Len(t, repo.exchanges, 1)
	ex := repo.exchanges[0]
	assert.True(t, ex.Probe)
	assert.Equal(t, "c1", ex.ConversationID)
	assert.Equal(t, "fake", ex.Backend)
	assert.Equal(t, "success", ex.Outcome)
	assert.NotEmpty(t, ex.RequestID)
}

func TestHandleQuery_ProbeFailure(t *testing.T) {
	model := &fakeAI{result: ai.Result{Status: http.StatusBadRequest, Payload: `{"error":"bad top_k"}`}}
	out := &recordingOutbound{}

	q := Query{Turns: []conversation.Turn{user("a/b --top_k -1"), bot("ack")}}
	require.NoError(t, newTestService(model, nil).HandleQuery(context.Background(), q, out))

	require.Len(t, model.requests, 1)
	require.Len(t, out.events, 1)
	assert.Equal(t, "Error calling the model with these arguments: `{\"error\":\"bad top_k\"}`", out.events[0].Text)
}

func TestHandleQuery_FirstMessage(t *testing.T) {
	model := &fakeAI{result: ai.Result{Status: http.StatusOK, Text: "Hello human"}}
	out := &recordingOutbound{}

	q := Query{Turns: []conversation.Turn{
		user("microsoft/DialoGPT-large"),
		bot("Configured"),
		user("hello"),
	}}
	require.NoError(t, newTestService(model, nil).HandleQuery(context.Background(), q, out))

	require.Len(t, model.requests, 1)
	req := model.requests[0]
	assert.Equal(t, "hello", req.Text)
	assert.Nil(t, req.PastUserInputs)
	assert.Nil(t, req.GeneratedResponses)
	assert.Equal(t, ai.DefaultMaxTime, req.MaxTime)

	assert.Equal(t, []Event{{Kind: EventText, Text: "Hello human"}}, out.events)
}

func TestHandleQuery_ConversationWithHistory(t *testing.T) {
	model := &fakeAI{result: ai.Result{Status: http.StatusOK, Text: "third"}}
	out := &recordingOutbound{}

	q := Query{Turns: []conversation.Turn{
		user("a/b --max_length 30"),
		bot("Configured"),
		user("one"),
		bot("first"),
		user("two"),
		bot("second"),
		user("three"),
	}}
	require.NoError(t, newTestService(model, nil).HandleQuery(context.Background(), q, out))

	require.Len(t, model.requests, 1)
	req := model.requests[0]
	assert.Equal(t, "three", req.Text)
	assert.Equal(t, []string{"one", "two"}, req.PastUserInputs)
	assert.Equal(t, []string{"first", "second"}, req.GeneratedResponses)
	require.NotNil(t, req.Params.MaxLength)
	assert.Equal(t, 30, *req.Params.MaxLength)
}

func TestHandleQuery_RemoteErrorSurfacedOnce(t *testing.T) {
	model := &fakeAI{result: ai.Result{Status: http.StatusServiceUnavailable, Payload: `{"error": "model loading"}`}}
	repo := &memoryRepo{}
	out := &recordingOutbound{}

	q := Query{Turns: []conversation.Turn{user("a/b"), bot("ok"), user("hi")}}
	svc := newTestService(model, repo)
	require.NoError(t, svc.HandleQuery(context.Background(), q, out))
	svc.Drain()

	assert.Len(t, model.requests, 1)
	require.Len(t, out.events, 1)
	assert.Contains(t, out.events[0].Text, `{"error": "model loading"}`)
	require.Len(t, repo.exchanges, 1)
	assert.Equal(t, "rejected", repo.exchanges[0].Outcome)
	assert.Equal(t, http.StatusServiceUnavailable, repo.exchanges[0].Status)
}

func TestHandleQuery_TransportError(t *testing.T) {
	model := &fakeAI{err: context.DeadlineExceeded}
	out := &recordingOutbound{}

	q := Query{Turns: []conversation.Turn{user("a/b"), bot("ok"), user("hi")}}
	require.NoError(t, newTestService(model, nil).HandleQuery(context.Background(), q, out))

	require.Len(t, out.events, 1)
	assert.Equal(t, "Error calling the model: `context deadline exceeded`", out.events[0].Text)
}

func TestHandleQuery_RepoFailureDoesNotBreakReply(t *testing.T) {
	model := &fakeAI{result: ai.Result{Status: http.StatusOK, Text: "fine"}}
	repo := &memoryRepo{err: errors.New("db down")}
	out := &recordingOutbound{}

	q := Query{Turns: []conversation.Turn{user("a/b"), bot("ok"), user("hi")}}
	svc := newTestService(model, repo)
	require.NoError(t, svc.HandleQuery(context.Background(), q, out))
	svc.Drain()
	assert.Equal(t, []Event{{Kind: EventText, Text: "fine"}}, out.events)
}

func TestHandleQuery_ReplyDoesNotWaitForExchangeLog(t *testing.T) {
	model := &fakeAI{result: ai.Result{Status: http.StatusOK, Text: "quick"}}
	repo := &blockingRepo{release: make(chan struct{}), ctxErr: make(chan error, 1)}
	out := &recordingOutbound{}
	svc := newTestService(model, repo)

	ctx, cancel := context.WithCancel(context.Background())
	q := Query{Turns: []conversation.Turn{user("a/b"), bot("ok"), user("hi")}}

	done := make(chan error, 1)
	go func() { done <- svc.HandleQuery(ctx, q, out) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("HandleQuery blocked on the exchange log")
	}
	assert.Equal(t, []Event{{Kind: EventText, Text: "quick"}}, out.events)

	// The write outlives the request.
	cancel()
	close(repo.release)
	svc.Drain()
	assert.NoError(t, <-repo.ctxErr)
}

func TestHandleQuery_StructuralViolation(t *testing.T) {
	model := &fakeAI{}
	out := &recordingOutbound{}

	q := Query{Turns: []conversation.Turn{user("a/b"), bot("ok"), user("hi"), bot("unprompted")}}
	err := newTestService(model, nil).HandleQuery(context.Background(), q, out)

	require.Error(t, err)
	assert.True(t, errors.Is(err, conversation.ErrStructuralViolation))
	assert.Empty(t, model.requests)
	assert.Empty(t, out.events)
}

func TestSettings(t *testing.T) {
	resp := newTestService(&fakeAI{}, nil).Settings(context.Background())
	assert.Equal(t, IntroductionMessage, resp.IntroductionMessage)
	assert.Contains(t, resp.IntroductionMessage, "microsoft/DialoGPT-large")
}
