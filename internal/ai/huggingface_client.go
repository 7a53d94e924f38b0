package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

const (
	// DefaultHuggingFaceURL is the hosted inference API.
	DefaultHuggingFaceURL = "https://api-inference.huggingface.co"
	// DefaultCallTimeout bounds one remote call, below the host's 5s ceiling.
	DefaultCallTimeout = 4950 * time.Millisecond

	maxResponseBytes = 1 << 20 // 1 MiB
)

type HuggingFaceConfig struct {
	BaseURL     string
	APIKey      string
	CallTimeout time.Duration
}

// HuggingFaceClient calls the hosted inference API. Its HTTP client is built on
// first use and then shared by every call for the life of the process.
type HuggingFaceClient struct {
	baseURL string
	apiKey  string
	timeout time.Duration

	once   sync.Once
	client *http.Client
}

func NewHuggingFaceClient(cfg HuggingFaceConfig) *HuggingFaceClient {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultHuggingFaceURL
	}
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &HuggingFaceClient{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		timeout: timeout,
	}
}

func (c *HuggingFaceClient) Name() string {
	return "huggingface"
}

func (c *HuggingFaceClient) httpClient() *http.Client {
	c.once.Do(func() {
		c.client = &http.Client{
			Transport: &bearerTransport{
				token: c.apiKey,
				base:  newTransport(),
			},
		}
	})
	return c.client
}

type inferenceInputs struct {
	Text               string   `json:"text"`
	GeneratedResponses []string `json:"generated_responses,omitempty"`
	PastUserInputs     []string `json:"past_user_inputs,omitempty"`
}

type inferencePayload struct {
	Inputs     inferenceInputs `json:"inputs"`
	Parameters map[string]any  `json:"parameters"`
}

func buildInferencePayload(req Request) inferencePayload {
	return inferencePayload{
		Inputs: inferenceInputs{
			Text:               req.Text,
			GeneratedResponses: req.GeneratedResponses,
			PastUserInputs:     req.PastUserInputs,
		},
		Parameters: req.Parameters(),
	}
}

func (c *HuggingFaceClient) Query(ctx context.Context, req Request) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(buildInferencePayload(req))
	if err != nil {
		return Result{}, fmt.Errorf("marshal payload: %w", err)
	}

	endpoint := c.baseURL + "/models/" + escapeEndpoint(req.Endpoint)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("construct request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	slog.DebugContext(ctx, "huggingface request", "endpoint", req.Endpoint, "payload", string(body))

	resp, err := c.httpClient().Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("huggingface request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Result{}, fmt.Errorf("read response: %w", err)
	}
	payload := strings.TrimSpace(string(raw))

	slog.DebugContext(ctx, "huggingface response", "endpoint", req.Endpoint, "status", resp.StatusCode, "body", short(payload))

	result := Result{Status: resp.StatusCode, Payload: payload}
	if !result.OK() {
		return result, nil
	}

	text, ok := generatedText(payload)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnexpectedResponse, short(payload))
	}
	result.Text = text
	return result, nil
}

// generatedText reads the reply from a conversational response object or
// from the first element of a text-generation response array.
func generatedText(payload string) (string, bool) {
	if !gjson.Valid(payload) {
		return "", false
	}
	for _, path := range []string{"generated_text", "0.generated_text"} {
		if v := gjson.Get(payload, path); v.Exists() && v.Type == gjson.String {
			return v.String(), true
		}
	}
	return "", false
}

// escapeEndpoint keeps the namespace separator while escaping each segment.
func escapeEndpoint(endpoint string) string {
	parts := strings.Split(endpoint, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

// bearerTransport stamps the service credential on every request.
type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(clone)
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// short trims payloads for log lines without splitting a multi-byte rune.
func short(s string) string {
	const limit = 180
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
