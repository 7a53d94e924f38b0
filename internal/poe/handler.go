package poe

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Vovarama1992/hfrelay/internal/conversation"
)

const maxBodyBytes = 1 << 20 // 1 MiB

// Request types sent by the host.
const (
	typeQuery          = "query"
	typeSettings       = "settings"
	typeReportFeedback = "report_feedback"
	typeReportError    = "report_error"
)

type Handler struct {
	svc       Service
	accessKey string
}

// NewHandler builds the host endpoint. An empty accessKey disables the
// bearer check.
func NewHandler(svc Service, accessKey string) *Handler {
	return &Handler{svc: svc, accessKey: accessKey}
}

type protocolMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type requestEnvelope struct {
	Version        string            `json:"version"`
	Type           string            `json:"type"`
	Query          []protocolMessage `json:"query"`
	UserID         string            `json:"user_id"`
	ConversationID string            `json:"conversation_id"`
	MessageID      string            `json:"message_id"`
	Message        string            `json:"message"`
	Metadata       map[string]any    `json:"metadata"`
}

// HandleBot is the single entry point the host POSTs every request type to.
func (h *Handler) HandleBot(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "invalid access key"})
		return
	}

	var env requestEnvelope
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&env); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	switch env.Type {
	case typeQuery:
		h.handleQuery(w, r, env)
	case typeSettings:
		writeJSON(w, http.StatusOK, h.svc.Settings(r.Context()))
	case typeReportFeedback:
		slog.DebugContext(r.Context(), "feedback received", "conversation_id", env.ConversationID, "message_id", env.MessageID)
		writeJSON(w, http.StatusOK, struct{}{})
	case typeReportError:
		h.svc.ReportError(r.Context(), ErrorReport{
			ConversationID: env.ConversationID,
			MessageID:      env.MessageID,
			Message:        env.Message,
			Metadata:       env.Metadata,
		})
		writeJSON(w, http.StatusOK, struct{}{})
	default:
		http.Error(w, "unsupported request type", http.StatusNotImplemented)
	}
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request, env requestEnvelope) {
	ctx := r.Context()

	out, err := newSSEOutbound(w)
	if err != nil {
		slog.ErrorContext(ctx, "cannot stream response", "error", err)
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	if err := out.Send(ctx, Event{Kind: EventMeta}); err != nil {
		slog.WarnContext(ctx, "send meta event", "error", err)
		return
	}

	err = h.svc.HandleQuery(ctx, toQuery(env), out)
	switch {
	case errors.Is(err, conversation.ErrStructuralViolation):
		if sendErr := out.Send(ctx, Event{Kind: EventError, Text: err.Error()}); sendErr != nil {
			slog.WarnContext(ctx, "send error event", "error", sendErr)
		}
	case err != nil:
		slog.WarnContext(ctx, "query aborted", "error", err)
		return
	}

	if err := out.Send(ctx, Event{Kind: EventDone}); err != nil {
		slog.WarnContext(ctx, "send done event", "error", err)
	}
}

func toQuery(env requestEnvelope) Query {
	turns := make([]conversation.Turn, 0, len(env.Query))
	for _, m := range env.Query {
		turns = append(turns, conversation.Turn{
			Role:    conversation.Role(m.Role),
			Content: m.Content,
		})
	}
	return Query{
		ConversationID: env.ConversationID,
		UserID:         env.UserID,
		MessageID:      env.MessageID,
		Turns:          turns,
	}
}

func (h *Handler) authorized(r *http.Request) bool {
	if h.accessKey == "" {
		return true
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.accessKey)) == 1
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("write json response", "error", err)
	}
}
