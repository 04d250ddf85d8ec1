package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/punchamoorthee/joyledger/internal/config"
	"github.com/punchamoorthee/joyledger/internal/domain"
	"github.com/punchamoorthee/joyledger/internal/logging"
	"github.com/punchamoorthee/joyledger/internal/paypal"
	"github.com/punchamoorthee/joyledger/internal/store"
)

var webhookOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ledger_webhook_outcomes_total",
	Help: "Webhook deliveries by outcome",
}, []string{"outcome"})

type SignatureVerifier interface {
	Verify(ctx context.Context, creds config.WebhookCredentials, n paypal.Notification) (paypal.VerifiedNotification, error)
}

// WebhookJournal records verified deliveries. It may be nil.
type WebhookJournal interface {
	RecordWebhookEvent(ctx context.Context, e store.WebhookEvent) (bool, error)
	MarkWebhookProcessed(ctx context.Context, transmissionID string, procErr error) error
}

// WebhookService verifies an inbound notification and dispatches it. No
// ledger mutation is attempted before verification succeeds.
type WebhookService struct {
	creds      CredentialResolver
	verifier   SignatureVerifier
	dispatcher *Dispatcher
	journal    WebhookJournal
	logger     *slog.Logger
}

func NewWebhookService(creds CredentialResolver, verifier SignatureVerifier, dispatcher *Dispatcher, journal WebhookJournal, logger *slog.Logger) *WebhookService {
	return &WebhookService{creds: creds, verifier: verifier, dispatcher: dispatcher, journal: journal, logger: logger}
}

func (s *WebhookService) Handle(ctx context.Context, n paypal.Notification) (Outcome, error) {
	ctx = logging.AppendCtx(ctx, slog.String("transmissionId", n.TransmissionID))

	creds, err := s.creds.ResolveWebhook()
	if err != nil {
		webhookOutcomes.WithLabelValues("config_missing").Inc()
		s.logger.ErrorContext(ctx, "Webhook credentials unavailable", "error", err)
		return Outcome{}, err
	}

	verified, err := s.verifier.Verify(ctx, creds, n)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrSignatureInvalid):
			webhookOutcomes.WithLabelValues("signature_invalid").Inc()
			s.logger.ErrorContext(ctx, "Rejected webhook with invalid signature",
				"cert_url", n.CertURL,
				"auth_algo", n.AuthAlgo,
				"body_sha256", n.BodySHA256(),
				"error", err,
			)
		case errors.Is(err, domain.ErrMalformedNotification):
			webhookOutcomes.WithLabelValues("malformed").Inc()
			s.logger.WarnContext(ctx, "Rejected webhook with non-JSON body", "error", err)
		default:
			webhookOutcomes.WithLabelValues("verification_error").Inc()
			s.logger.ErrorContext(ctx, "Webhook verification unavailable", "error", err)
		}
		return Outcome{}, err
	}

	key := n.EventKey()
	s.record(ctx, key, verified)

	outcome, err := s.dispatcher.Dispatch(ctx, verified)
	s.markProcessed(ctx, key, err)
	if err != nil {
		webhookOutcomes.WithLabelValues("rejected").Inc()
		if !errors.Is(err, domain.ErrLedgerUnavailable) {
			s.logger.WarnContext(ctx, "Webhook payload rejected", "event_type", outcome.EventType, "error", err)
		}
		return outcome, err
	}

	webhookOutcomes.WithLabelValues(string(outcome.Status)).Inc()
	if outcome.Status == OutcomeIgnored {
		s.logger.InfoContext(ctx, "Event type not handled", "event_type", outcome.EventType)
	}
	return outcome, nil
}

func (s *WebhookService) record(ctx context.Context, key string, v paypal.VerifiedNotification) {
	if s.journal == nil {
		return
	}
	n := v.Notification()
	created, err := s.journal.RecordWebhookEvent(ctx, store.WebhookEvent{
		TransmissionID: key,
		EventID:        v.Event().ID,
		EventType:      v.Event().EventType,
		BodySHA256:     n.BodySHA256(),
		Payload:        n.Body,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "Webhook journal write failed", "error", err)
		return
	}
	if !created {
		s.logger.InfoContext(ctx, "Webhook redelivered", "event_key", key)
	}
}

func (s *WebhookService) markProcessed(ctx context.Context, key string, procErr error) {
	if s.journal == nil {
		return
	}
	if err := s.journal.MarkWebhookProcessed(ctx, key, procErr); err != nil {
		s.logger.WarnContext(ctx, "Webhook journal update failed", "error", err)
	}
}
