package service

import (
	"context"
	"log/slog"

	"github.com/punchamoorthee/joyledger/internal/config"
	"github.com/punchamoorthee/joyledger/internal/domain"
	"github.com/punchamoorthee/joyledger/internal/paypal"
)

type CredentialResolver interface {
	Resolve() (config.Credentials, error)
	ResolveWebhook() (config.WebhookCredentials, error)
}

type OrderCreator interface {
	CreateOrder(ctx context.Context, creds config.Credentials, order paypal.OrderRequest) (*paypal.CreatedOrder, error)
}

// CheckoutService turns a purchase intent into a processor approval link.
type CheckoutService struct {
	creds    CredentialResolver
	orders   OrderCreator
	checkout config.Checkout
	logger   *slog.Logger
}

func NewCheckoutService(creds CredentialResolver, orders OrderCreator, checkout config.Checkout, logger *slog.Logger) *CheckoutService {
	return &CheckoutService{creds: creds, orders: orders, checkout: checkout, logger: logger}
}

// CreateSession validates the intent before any network call is made.
func (s *CheckoutService) CreateSession(ctx context.Context, intent domain.PurchaseIntent) (*paypal.CreatedOrder, error) {
	if err := intent.Validate(); err != nil {
		return nil, err
	}
	intent = intent.InCents()

	creds, err := s.creds.Resolve()
	if err != nil {
		return nil, err
	}

	order, err := paypal.BuildOrder(intent, s.checkout)
	if err != nil {
		return nil, err
	}

	created, err := s.orders.CreateOrder(ctx, creds, order)
	if err != nil {
		s.logger.ErrorContext(ctx, "Order creation failed", "purpose", intent.Purpose, "error", err)
		return nil, err
	}

	s.logger.InfoContext(ctx, "Checkout session created",
		"order_id", created.ID,
		"purpose", intent.Purpose,
		"amount", intent.Amount.StringFixed(2),
	)
	return created, nil
}
