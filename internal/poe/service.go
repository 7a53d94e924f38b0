package poe

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Vovarama1992/hfrelay/internal/ai"
	"github.com/Vovarama1992/hfrelay/internal/command"
	"github.com/Vovarama1992/hfrelay/internal/conversation"
	"github.com/Vovarama1992/hfrelay/internal/metrics"
)

// saveTimeout bounds one exchange log write. Writes run after the reply and
// are detached from the request context.
const saveTimeout = 2 * time.Second

type service struct {
	parser *command.Parser
	ai     ai.AI
	repo   Repo

	saves sync.WaitGroup
}

func NewService(parser *command.Parser, aiClient ai.AI, repo Repo) Service {
	if repo == nil {
		repo = NopRepo{}
	}
	return &service{
		parser: parser,
		ai:     aiClient,
		repo:   repo,
	}
}

// HandleQuery partitions the history, makes at most one remote call and sends
// the translated reply. A StructuralViolation is returned to the caller; remote
// failures are reported to the user as text and are not errors.
func (s *service) HandleQuery(ctx context.Context, q Query, out Outbound) error {
	base := Exchange{RequestID: uuid.NewString(), ConversationID: q.ConversationID}
	log := slog.With("request_id", base.RequestID, "conversation_id", q.ConversationID)

	session, err := conversation.Partition(s.parser, q.Turns)
	if err != nil {
		metrics.ObserveQuery("invalid")
		log.ErrorContext(ctx, "turn history violates host contract", "turns", len(q.Turns), "error", err)
		return err
	}
	metrics.ObserveQuery(session.State.String())

	switch session.State {
	case conversation.Unconfigured:
		log.InfoContext(ctx, "no configuration command yet", "turns", len(q.Turns))
		return sendAll(ctx, out, unconfiguredEvents(s.parser.Usage()))

	case conversation.AwaitingFirstMessage:
		log = log.With("endpoint", session.Command.Endpoint)
		res, ex, callErr := s.call(ctx, log, base, ai.ProbeRequest(session.Command), true)
		err := sendAll(ctx, out, probeEvents(session.Command, res, callErr))
		s.record(ctx, log, ex)
		return err

	case conversation.Active:
		log = log.With("endpoint", session.Command.Endpoint)
		req, err := ai.BuildRequest(session.Command, session.Window)
		if err != nil {
			log.ErrorContext(ctx, "build request", "error", err)
			return err
		}
		res, ex, callErr := s.call(ctx, log, base, req, false)
		err = sendAll(ctx, out, replyEvents(res, callErr))
		s.record(ctx, log, ex)
		return err

	default:
		return fmt.Errorf("unhandled conversation state %s", session.State)
	}
}

func (s *service) call(ctx context.Context, log *slog.Logger, ex Exchange, req ai.Request, probe bool) (ai.Result, Exchange, error) {
	start := time.Now()
	res, err := s.ai.Query(ctx, req)
	elapsed := time.Since(start)

	ex.Backend = s.ai.Name()
	ex.Endpoint = req.Endpoint
	ex.Probe = probe
	ex.Status = res.Status
	ex.LatencyMS = elapsed.Milliseconds()

	switch {
	case err != nil:
		ex.Outcome = metrics.OutcomeTransport
		ex.Error = err.Error()
		log.WarnContext(ctx, "remote call failed", "probe", probe, "latency_ms", ex.LatencyMS, "error", err)
	case !res.OK():
		ex.Outcome = metrics.OutcomeRejected
		ex.Error = res.Payload
		log.WarnContext(ctx, "remote call rejected", "probe", probe, "status", res.Status, "payload", res.Payload)
	default:
		ex.Outcome = metrics.OutcomeSuccess
		log.InfoContext(ctx, "remote call succeeded", "probe", probe, "latency_ms", ex.LatencyMS)
	}
	metrics.ObserveRemote(ex.Backend, ex.Outcome, elapsed)
	return res, ex, err
}

// record writes the exchange in the background so a slow database never holds
// up the reply.
func (s *service) record(ctx context.Context, log *slog.Logger, ex Exchange) {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	s.saves.Add(1)
	go func() {
		defer s.saves.Done()
		defer cancel()
		if err := s.repo.SaveExchange(saveCtx, &ex); err != nil {
			log.WarnContext(saveCtx, "save exchange", "error", err)
		}
	}()
}

// Drain waits for pending exchange log writes.
func (s *service) Drain() {
	s.saves.Wait()
}

func (s *service) Settings(ctx context.Context) SettingsResponse {
	slog.DebugContext(ctx, "settings requested")
	return SettingsResponse{IntroductionMessage: IntroductionMessage}
}

func (s *service) ReportError(ctx context.Context, report ErrorReport) {
	slog.WarnContext(ctx, "host reported error",
		"conversation_id", report.ConversationID,
		"message_id", report.MessageID,
		"message", report.Message,
		"metadata", report.Metadata,
	)
}

func sendAll(ctx context.Context, out Outbound, events []Event) error {
	for _, ev := range events {
		if err := out.Send(ctx, ev); err != nil {
			return fmt.Errorf("send %s event: %w", ev.Kind, err)
		}
	}
	return nil
}
