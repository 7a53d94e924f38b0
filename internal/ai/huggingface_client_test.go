package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHuggingFaceClient_Success(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"generated_text":"I am fine","conversation":{}}`))
	}))
	defer server.Close()

	client := NewHuggingFaceClient(HuggingFaceConfig{BaseURL: server.URL + "/", APIKey: "hf_secret"})

	res, err := client.Query(context.Background(), Request{
		Endpoint: "microsoft/DialoGPT-large",
		Text:     "how are you?",
		MaxTime:  DefaultMaxTime,
	})
	require.NoError(t, err)

	assert.True(t, res.OK())
	assert.Equal(t, "I am fine", res.Text)
	assert.Equal(t, "/models/microsoft/DialoGPT-large", gotPath)
	assert.Equal(t, "Bearer hf_secret", gotAuth)
	assert.Equal(t, map[string]any{"text": "how are you?"}, gotBody["inputs"])
	assert.Equal(t, map[string]any{"max_time": 4.95}, gotBody["parameters"])
}

func TestHuggingFaceClient_ArrayResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"generated_text":"from array"}]`))
	}))
	defer server.Close()

	client := NewHuggingFaceClient(HuggingFaceConfig{BaseURL: server.URL, APIKey: "k"})

	res, err := client.Query(context.Background(), Request{Endpoint: "a/b", Text: "x"})
	require.NoError(t, err)
	assert.Equal(t, "from array", res.Text)
}

func TestHuggingFaceClient_ErrorPayloadNoRetry(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error": "model loading"}`))
	}))
	defer server.Close()

	client := NewHuggingFaceClient(HuggingFaceConfig{BaseURL: server.URL, APIKey: "k"})

	res, err := client.Query(context.Background(), Request{Endpoint: "a/b", Text: "x"})
	require.NoError(t, err)

	assert.False(t, res.OK())
	assert.Equal(t, http.StatusServiceUnavailable, res.Status)
	assert.Equal(t, `{"error": "model loading"}`, res.Payload)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHuggingFaceClient_MissingGeneratedText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"label":"POSITIVE"}`))
	}))
	defer server.Close()

	client := NewHuggingFaceClient(HuggingFaceConfig{BaseURL: server.URL, APIKey: "k"})

	_, err := client.Query(context.Background(), Request{Endpoint: "a/b", Text: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnexpectedResponse))
}

func TestHuggingFaceClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewHuggingFaceClient(HuggingFaceConfig{
		BaseURL:     server.URL,
		APIKey:      "k",
		CallTimeout: 50 * time.Millisecond,
	})

	start := time.Now()
	_, err := client.Query(context.Background(), Request{Endpoint: "a/b", Text: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestHuggingFaceClient_ReusesHTTPClient(t *testing.T) {
	client := NewHuggingFaceClient(HuggingFaceConfig{APIKey: "k"})

	first := client.httpClient()
	assert.Same(t, first, client.httpClient())
	assert.Equal(t, DefaultHuggingFaceURL, client.baseURL)
	assert.Equal(t, DefaultCallTimeout, client.timeout)
}

func TestGeneratedText(t *testing.T) {
	tests := []struct {
		payload string
		want    string
		ok      bool
	}{
		{`{"generated_text":"a"}`, "a", true},
		{`[{"generated_text":"b"}]`, "b", true},
		{`{"generated_text":42}`, "", false},
		{`not json`, "", false},
		{`[]`, "", false},
	}

	for _, tt := range tests {
		got, ok := generatedText(tt.payload)
		assert.Equal(t, tt.ok, ok, tt.payload)
		assert.Equal(t, tt.want, got, tt.payload)
	}
}

func TestShort(t *testing.T) {
	assert.Equal(t, "brief", short("brief"))

	ascii := strings.Repeat("a", 200)
	assert.Equal(t, strings.Repeat("a", 180)+"...", short(ascii))

	// "é" occupies bytes 179 and 180, so the cut falls back to 179.
	mixed := strings.Repeat("a", 179) + "é" + strings.Repeat("b", 40)
	got := short(mixed)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("a", 179)+"...", got)
}
