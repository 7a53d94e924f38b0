package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	CallTimeout time.Duration
}

// OpenAIClient talks to an OpenAI-compatible chat-completions router. The
// endpoint id is sent as the model name.
type OpenAIClient struct {
	client  *openai.Client
	timeout time.Duration
}

func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	conf := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		conf.BaseURL = cfg.BaseURL
	}
	conf.HTTPClient = &http.Client{Transport: newTransport()}

	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}

	return &OpenAIClient{
		client:  openai.NewClientWithConfig(conf),
		timeout: timeout,
	}
}

func (c *OpenAIClient) Name() string {
	return "openai"
}

func (c *OpenAIClient) Query(ctx context.Context, req Request) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	history := req.Messages()
	msgs := make([]openai.ChatCompletionMessage, 0, len(history))
	for _, m := range history {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Text,
		})
	}

	resp, err := c.client.CreateChatCompletion(ctx, chatRequest(req, msgs))
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return Result{Status: apiErr.HTTPStatusCode, Payload: apiErr.Message}, nil
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) {
			return Result{Status: reqErr.HTTPStatusCode, Payload: reqErr.Error()}, nil
		}
		return Result{}, fmt.Errorf("openai request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return Result{}, fmt.Errorf("%w: empty choices", ErrUnexpectedResponse)
	}

	text := resp.Choices[0].Message.Content
	slog.DebugContext(ctx, "openai response", "endpoint", req.Endpoint, "reply", short(text))
	return Result{Status: http.StatusOK, Text: text}, nil
}

// chatRequest maps the knobs chat completions understands. min_length, top_k
// and repetition_penalty have no counterpart there and are dropped, as is a
// max_length of 0.
func chatRequest(req Request, msgs []openai.ChatCompletionMessage) openai.ChatCompletionRequest {
	out := openai.ChatCompletionRequest{
		Model:    req.Endpoint,
		Messages: msgs,
	}

	p := req.Params
	if p.MaxLength != nil {
		out.MaxTokens = *p.MaxLength
	}
	if p.Temperature != nil {
		out.Temperature = nonZero32(*p.Temperature)
	}
	if p.TopP != nil {
		out.TopP = nonZero32(*p.TopP)
	}
	if p.MinLength != nil || p.TopK != nil || p.RepetitionPenalty != nil || (p.MaxLength != nil && *p.MaxLength == 0) {
		slog.Debug("parameters not supported by chat completions were dropped", "endpoint", req.Endpoint)
	}
	return out
}

// nonZero32 keeps an explicit 0 on the wire. go-openai omits zero-valued
// sampling fields, which would fall back to the remote default.
func nonZero32(v float64) float32 {
	if v == 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(v)
}
