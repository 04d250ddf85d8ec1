package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Purpose is the business reason a payment was made.
type Purpose string

const (
	PurposeMessageSponsorship Purpose = "message_sponsorship"
	PurposeJoyTokenPurchase   Purpose = "joy_token_purchase"
)

// Valid reports whether p is one of the known purposes.
func (p Purpose) Valid() bool {
	switch p {
	case PurposeMessageSponsorship, PurposeJoyTokenPurchase:
		return true
	default:
		return false
	}
}

const (
	// TokensPerDollar is the fixed Joy Token exchange rate.
	TokensPerDollar = 10

	DefaultSponsor          = "Anonymous Sponsor"
	DefaultSponsorshipHours = 24
)

var sponsorshipPrices = map[int]decimal.Decimal{
	24: decimal.NewFromInt(5),
	48: decimal.NewFromInt(8),
	72: decimal.NewFromInt(10),
}

// SponsorshipPrice returns the USD price of a sponsorship lasting hours.
func SponsorshipPrice(hours int) (decimal.Decimal, bool) {
	p, ok := sponsorshipPrices[hours]
	return p, ok
}

// TokensFor converts a captured dollar amount into whole Joy Tokens.
func TokensFor(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(TokensPerDollar)).IntPart()
}

// PurchaseIntent is carried end-to-end through the processor order as an
// opaque blob and recovered unchanged from the completion notification.
type PurchaseIntent struct {
	UserID         string          `json:"userId"`
	Purpose        Purpose         `json:"purpose"`
	Amount         decimal.Decimal `json:"amount"`
	MessageID      *string         `json:"messageId,omitempty"`
	SponsoredBy    *string         `json:"sponsoredBy,omitempty"`
	Duration       *int            `json:"duration,omitempty"`
	MessageContent *string         `json:"messageContent,omitempty"`
}

// Validate enforces the rules applied when a caller initiates a payment.
func (i PurchaseIntent) Validate() error {
	if i.UserID == "" || i.Purpose == "" || i.Amount.IsZero() {
		return ErrMissingRequiredFields
	}
	if !i.Purpose.Valid() {
		return fmt.Errorf("%w: %s. Must be 'message_sponsorship' or 'joy_token_purchase'", ErrUnsupportedPurpose, i.Purpose)
	}
	if !i.Amount.Round(2).IsPositive() {
		return ErrInvalidAmount
	}
	if i.Purpose != PurposeMessageSponsorship {
		return nil
	}

	hours := i.DurationHours()
	price, ok := SponsorshipPrice(hours)
	if !ok {
		return fmt.Errorf("%w: %d", ErrInvalidDuration, hours)
	}
	if deref(i.MessageID) == "" && deref(i.MessageContent) == "" {
		return ErrSponsorshipTargetMissing
	}
	if !i.Amount.Round(2).Equal(price) {
		return fmt.Errorf("%w: %s for %dh", ErrSponsorshipPriceDiffer, price.StringFixed(2), hours)
	}
	return nil
}

// InCents returns a copy with the amount rounded half-up to whole cents, the
// precision the processor charges at.
func (i PurchaseIntent) InCents() PurchaseIntent {
	i.Amount = i.Amount.Round(2)
	return i
}

// DurationHours returns the requested sponsorship length or the default.
func (i PurchaseIntent) DurationHours() int {
	if i.Duration == nil || *i.Duration == 0 {
		return DefaultSponsorshipHours
	}
	return *i.Duration
}

// Sponsor returns the display name of the sponsor or the default.
func (i PurchaseIntent) Sponsor() string {
	if s := deref(i.SponsoredBy); s != "" {
		return s
	}
	return DefaultSponsor
}

// Encode serializes the intent into the metadata blob attached to an order.
func (i PurchaseIntent) Encode() (string, error) {
	b, err := json.Marshal(i)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeIntent recovers an intent from order metadata. Unknown fields are
// ignored and absent optional fields stay nil.
func DecodeIntent(blob string) (PurchaseIntent, error) {
	var i PurchaseIntent
	if err := json.Unmarshal([]byte(blob), &i); err != nil {
		return PurchaseIntent{}, fmt.Errorf("%w: %v", ErrMetadataCorrupt, err)
	}
	if i.UserID == "" || i.Purpose == "" {
		return PurchaseIntent{}, ErrIntentIncomplete
	}
	if !i.Purpose.Valid() {
		return PurchaseIntent{}, fmt.Errorf("%w: %s", ErrUnsupportedPurpose, i.Purpose)
	}
	return i, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// UserTokenBalance is a user's Joy Token ledger row.
type UserTokenBalance struct {
	UserID    string `json:"userId"`
	JoyTokens int64  `json:"joyTokens"`
}

// MessageSponsorship is the sponsorship state of a gratitude message.
type MessageSponsorship struct {
	MessageID         string     `json:"messageId"`
	Content           string     `json:"content,omitempty"`
	IsSponsored       bool       `json:"isSponsored"`
	SponsoredBy       string     `json:"sponsoredBy,omitempty"`
	SponsoredDuration int        `json:"sponsoredDuration,omitempty"`
	SponsoredAt       *time.Time `json:"sponsoredAt,omitempty"`
}

// Sponsorship is the mutation applied to a message for one captured order.
// A non-empty Content creates the message if it does not exist yet.
type Sponsorship struct {
	MessageID     string
	SponsoredBy   string
	DurationHours int
	Content       string
}

// AffirmationPack is content unlockable with Joy Tokens.
type AffirmationPack struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
}

// UnlockResult describes the outcome of spending tokens on a pack.
type UnlockResult struct {
	UserID          string `json:"userId"`
	PackID          string `json:"packId"`
	AlreadyUnlocked bool   `json:"alreadyUnlocked"`
	JoyTokens       int64  `json:"joyTokens"`
}
