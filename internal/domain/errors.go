package domain

import "errors"

// Configuration and processor errors.
var (
	ErrConfigMissing          = errors.New("payment processor configuration missing")
	ErrAuth                   = errors.New("processor rejected credential exchange")
	ErrOrderCreation          = errors.New("processor rejected order")
	ErrSignatureInvalid       = errors.New("webhook signature invalid")
	ErrVerificationService    = errors.New("webhook verification service failed")
	ErrMalformedNotification  = errors.New("webhook payload is not valid JSON")
	ErrLedgerUnavailable      = errors.New("ledger unavailable")
	ErrMessageNotFound        = errors.New("message not found")
	ErrUserNotFound           = errors.New("user not found")
	ErrPackNotFound           = errors.New("affirmation pack not found")
	ErrInsufficientTokens     = errors.New("insufficient joy tokens")
	ErrMissingRequiredFields  = errors.New("missing required fields: userId, amount, and purpose are required")
	ErrInvalidAmount          = errors.New("amount must be at least one cent")
	ErrSponsorshipPriceDiffer = errors.New("amount does not match sponsorship price")
)

// Business payload errors. All are permanent: a redelivery of the same
// payload fails the same way.
var (
	ErrMetadataCorrupt          = errors.New("invalid metadata format")
	ErrMetadataMissing          = errors.New("missing custom_id metadata")
	ErrIntentIncomplete         = errors.New("missing userId or purpose in metadata")
	ErrUnsupportedPurpose       = errors.New("invalid purpose")
	ErrSponsorshipTargetMissing = errors.New("missing messageId for message_sponsorship")
	ErrInvalidDuration          = errors.New("invalid sponsorship duration")
	ErrOrderIDMissing           = errors.New("missing order id in event resource")
	ErrAmountMissing            = errors.New("missing captured amount")
)
