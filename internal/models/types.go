package models

import (
	"github.com/punchamoorthee/joyledger/internal/domain"
	"github.com/shopspring/decimal"
)

// CheckoutRequest is the payload of POST /create-checkout-session.
type CheckoutRequest struct {
	UserID         string          `json:"userId"`
	Amount         decimal.Decimal `json:"amount"`
	Purpose        string          `json:"purpose"`
	MessageID      *string         `json:"messageId,omitempty"`
	SponsoredBy    *string         `json:"sponsoredBy,omitempty"`
	Duration       *int            `json:"duration,omitempty"`
	MessageContent *string         `json:"messageContent,omitempty"`
}

// Intent converts the request into the purchase intent carried by the order.
func (r CheckoutRequest) Intent() domain.PurchaseIntent {
	return domain.PurchaseIntent{
		UserID:         r.UserID,
		Purpose:        domain.Purpose(r.Purpose),
		Amount:         r.Amount,
		MessageID:      r.MessageID,
		SponsoredBy:    r.SponsoredBy,
		Duration:       r.Duration,
		MessageContent: r.MessageContent,
	}
}

// CheckoutResponse carries the processor approval link.
type CheckoutResponse struct {
	RedirectURL string `json:"redirectUrl"`
}

// ErrorResponse is the JSON error envelope of the checkout surface.
type ErrorResponse struct {
	Error string `json:"error"`
}
