package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/punchamoorthee/joyledger/internal/domain"
	"github.com/shopspring/decimal"
)

type LedgerStore interface {
	ApplyTokenCredit(ctx context.Context, orderID, userID string, tokens int64) (bool, error)
	ApplySponsorship(ctx context.Context, orderID, userID string, sp domain.Sponsorship) (bool, error)
}

// Mutation reports what a ledger operation did for one order.
type Mutation struct {
	Applied   bool
	Tokens    int64
	MessageID string
}

// LedgerMutator applies purpose-specific changes, at most once per order id.
type LedgerMutator struct {
	store LedgerStore
}

func NewLedgerMutator(store LedgerStore) *LedgerMutator {
	return &LedgerMutator{store: store}
}

// CreditTokens credits TokensPerDollar tokens per captured dollar.
func (m *LedgerMutator) CreditTokens(ctx context.Context, orderID, userID string, amount decimal.Decimal) (Mutation, error) {
	tokens := domain.TokensFor(amount)
	applied, err := m.store.ApplyTokenCredit(ctx, orderID, userID, tokens)
	if err != nil {
		return Mutation{}, fmt.Errorf("%w: %w", domain.ErrLedgerUnavailable, err)
	}
	return Mutation{Applied: applied, Tokens: tokens}, nil
}

// SponsorMessage flags the intent's message as sponsored, applying the
// default sponsor name and duration.
func (m *LedgerMutator) SponsorMessage(ctx context.Context, orderID string, intent domain.PurchaseIntent) (Mutation, error) {
	sp := domain.Sponsorship{
		SponsoredBy:   intent.Sponsor(),
		DurationHours: intent.DurationHours(),
	}
	if intent.MessageID != nil && *intent.MessageID != "" {
		sp.MessageID = *intent.MessageID
	} else if intent.MessageContent != nil {
		sp.MessageID = CaptureMessageID(orderID)
		sp.Content = *intent.MessageContent
	}
	if sp.MessageID == "" {
		return Mutation{}, domain.ErrSponsorshipTargetMissing
	}

	applied, err := m.store.ApplySponsorship(ctx, orderID, intent.UserID, sp)
	if err != nil {
		return Mutation{}, fmt.Errorf("%w: %w", domain.ErrLedgerUnavailable, err)
	}
	return Mutation{Applied: applied, MessageID: sp.MessageID}, nil
}

// CaptureMessageID derives the id of a message created at capture time.
// Redeliveries of one order always target the same message.
func CaptureMessageID(orderID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:paypal:order:"+orderID)).String()
}
