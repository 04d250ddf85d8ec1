package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/punchamoorthee/joyledger/internal/domain"
	"github.com/punchamoorthee/joyledger/internal/events"
	"github.com/punchamoorthee/joyledger/internal/logging"
	"github.com/punchamoorthee/joyledger/internal/paypal"
	"github.com/shopspring/decimal"
)

var mutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ledger_mutations_total",
	Help: "Ledger mutations by purpose, labeled applied or duplicate",
}, []string{"purpose", "result"})

type OutcomeStatus string

const (
	OutcomeIgnored   OutcomeStatus = "ignored"
	OutcomeApplied   OutcomeStatus = "applied"
	OutcomeDuplicate OutcomeStatus = "duplicate"
)

// Outcome is the result of dispatching one verified notification.
type Outcome struct {
	Status    OutcomeStatus
	EventType string
	OrderID   string
	Purpose   domain.Purpose
	UserID    string
	Tokens    int64
	MessageID string
}

// Dispatcher routes verified completion events to the ledger mutator.
type Dispatcher struct {
	mutator        *LedgerMutator
	publisher      events.Publisher
	publishTimeout time.Duration
	logger         *slog.Logger
	now            func() time.Time
}

func NewDispatcher(mutator *LedgerMutator, publisher events.Publisher, logger *slog.Logger) *Dispatcher {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Dispatcher{
		mutator:        mutator,
		publisher:      publisher,
		publishTimeout: events.PublishTimeout,
		logger:         logger,
		now:            time.Now,
	}
}

// Dispatch only accepts notifications that passed signature verification.
func (d *Dispatcher) Dispatch(ctx context.Context, v paypal.VerifiedNotification) (Outcome, error) {
	event := v.Event()
	out := Outcome{EventType: event.EventType}
	if event.EventType != paypal.EventOrderCompleted {
		out.Status = OutcomeIgnored
		return out, nil
	}

	completion, err := event.Completion()
	if err != nil {
		return out, err
	}
	out.OrderID = completion.OrderID
	ctx = logging.AppendCtx(ctx, slog.String("orderId", completion.OrderID))

	intent, err := domain.DecodeIntent(completion.Metadata)
	if err != nil {
		return out, err
	}
	out.Purpose = intent.Purpose
	out.UserID = intent.UserID

	var m Mutation
	switch intent.Purpose {
	case domain.PurposeJoyTokenPurchase:
		amount := completion.Amount
		if !amount.IsPositive() {
			amount = intent.Amount
		}
		if !amount.IsPositive() {
			return out, domain.ErrAmountMissing
		}
		m, err = d.mutator.CreditTokens(ctx, completion.OrderID, intent.UserID, amount)
	case domain.PurposeMessageSponsorship:
		if err := checkSponsorship(intent); err != nil {
			return out, err
		}
		m, err = d.mutator.SponsorMessage(ctx, completion.OrderID, intent)
	default:
		return out, fmt.Errorf("%w: %s", domain.ErrUnsupportedPurpose, intent.Purpose)
	}
	if err != nil {
		d.logger.ErrorContext(ctx, "Ledger mutation failed", "purpose", intent.Purpose, "error", err)
		return out, err
	}

	out.Tokens = m.Tokens
	out.MessageID = m.MessageID
	if !m.Applied {
		out.Status = OutcomeDuplicate
		mutationsTotal.WithLabelValues(string(intent.Purpose), "duplicate").Inc()
		d.logger.InfoContext(ctx, "Order already applied", "purpose", intent.Purpose)
		return out, nil
	}

	out.Status = OutcomeApplied
	mutationsTotal.WithLabelValues(string(intent.Purpose), "applied").Inc()
	d.logger.InfoContext(ctx, "Ledger mutation applied",
		"purpose", intent.Purpose,
		"user_id", intent.UserID,
		"tokens", m.Tokens,
		"message_id", m.MessageID,
	)
	d.publish(ctx, out, completion.Amount)
	return out, nil
}

func checkSponsorship(intent domain.PurchaseIntent) error {
	hasID := intent.MessageID != nil && *intent.MessageID != ""
	hasContent := intent.MessageContent != nil && *intent.MessageContent != ""
	if !hasID && !hasContent {
		return domain.ErrSponsorshipTargetMissing
	}
	if _, ok := domain.SponsorshipPrice(intent.DurationHours()); !ok {
		return fmt.Errorf("%w: %d", domain.ErrInvalidDuration, intent.DurationHours())
	}
	return nil
}

// publish is best-effort; the ledger row is already committed.
func (d *Dispatcher) publish(ctx context.Context, out Outcome, amount decimal.Decimal) {
	e := events.LedgerEvent{
		OrderID:    out.OrderID,
		UserID:     out.UserID,
		Purpose:    string(out.Purpose),
		Amount:     amount.StringFixed(2),
		JoyTokens:  out.Tokens,
		MessageID:  out.MessageID,
		OccurredAt: d.now().UTC(),
	}
	if out.Purpose == domain.PurposeJoyTokenPurchase {
		e.Type = events.TypeTokensCredited
	} else {
		e.Type = events.TypeMessageSponsored
	}
	pubCtx, cancel := context.WithTimeout(ctx, d.publishTimeout)
	defer cancel()
	if err := d.publisher.Publish(pubCtx, e); err != nil {
		d.logger.WarnContext(ctx, "Ledger event not published", "error", err)
	}
}
