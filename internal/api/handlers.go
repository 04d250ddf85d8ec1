package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gorilla/mux"
	"github.com/punchamoorthee/joyledger/internal/domain"
	"github.com/punchamoorthee/joyledger/internal/models"
	"github.com/punchamoorthee/joyledger/internal/paypal"
	"github.com/punchamoorthee/joyledger/internal/service"
)

const maxWebhookBody = 1 << 20

type CheckoutCreator interface {
	CreateSession(ctx context.Context, intent domain.PurchaseIntent) (*paypal.CreatedOrder, error)
}

type WebhookProcessor interface {
	Handle(ctx context.Context, n paypal.Notification) (service.Outcome, error)
}

type AccountReader interface {
	Balance(ctx context.Context, userID string) (*domain.UserTokenBalance, error)
	Message(ctx context.Context, messageID string) (*domain.MessageSponsorship, error)
	UnlockPack(ctx context.Context, userID, packID string) (*domain.UnlockResult, error)
}

type Handler struct {
	checkout CheckoutCreator
	webhooks WebhookProcessor
	accounts AccountReader
	logger   *slog.Logger
}

func NewHandler(checkout CheckoutCreator, webhooks WebhookProcessor, accounts AccountReader, logger *slog.Logger) *Handler {
	return &Handler{checkout: checkout, webhooks: webhooks, accounts: accounts, logger: logger}
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) CreateCheckoutSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body.")
		return
	}

	created, err := h.checkout.CreateSession(r.Context(), req.Intent())
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "Checkout session failed", "error", err)
		}
		respondWithError(w, status, checkoutMessage(err))
		return
	}

	respondWithJSON(w, http.StatusOK, models.CheckoutResponse{RedirectURL: created.ApprovalURL})
}

// PayPalWebhookHandler answers in plain text; the reader is the processor's
// delivery dashboard.
func (h *Handler) PayPalWebhookHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondWithText(w, http.StatusBadRequest, "Unreadable request body.")
		return
	}

	outcome, err := h.webhooks.Handle(r.Context(), paypal.NotificationFromRequest(r.Header, body))
	if err != nil {
		respondWithText(w, statusFor(err), webhookMessage(err))
		return
	}

	switch outcome.Status {
	case service.OutcomeIgnored:
		respondWithText(w, http.StatusOK, "Event type not handled: "+outcome.EventType)
	case service.OutcomeDuplicate:
		respondWithText(w, http.StatusOK, "Webhook already processed.")
	default:
		respondWithText(w, http.StatusOK, "Webhook processed successfully.")
	}
}

func (h *Handler) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	b, err := h.accounts.Balance(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondWithDomainError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, b)
}

func (h *Handler) GetMessageHandler(w http.ResponseWriter, r *http.Request) {
	m, err := h.accounts.Message(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondWithDomainError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, m)
}

func (h *Handler) UnlockPackHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	res, err := h.accounts.UnlockPack(r.Context(), vars["id"], vars["packId"])
	if err != nil {
		h.respondWithDomainError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}

func (h *Handler) respondWithDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "Request failed", "error", err)
		respondWithError(w, status, "Internal Server Error")
		return
	}
	respondWithError(w, status, sentence(err.Error()))
}

var badRequestErrs = []error{
	domain.ErrMissingRequiredFields,
	domain.ErrUnsupportedPurpose,
	domain.ErrInvalidAmount,
	domain.ErrSponsorshipPriceDiffer,
	domain.ErrSponsorshipTargetMissing,
	domain.ErrInvalidDuration,
	domain.ErrMalformedNotification,
	domain.ErrMetadataCorrupt,
	domain.ErrMetadataMissing,
	domain.ErrIntentIncomplete,
	domain.ErrOrderIDMissing,
	domain.ErrAmountMissing,
}

// statusFor maps the error taxonomy onto HTTP. Ledger failures are checked
// first so a wrapped not-found during a mutation stays retryable.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrLedgerUnavailable):
		return http.StatusInternalServerError
	case errors.Is(err, domain.ErrSignatureInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrMessageNotFound),
		errors.Is(err, domain.ErrPackNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientTokens):
		return http.StatusUnprocessableEntity
	}
	for _, e := range badRequestErrs {
		if errors.Is(err, e) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

func checkoutMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrConfigMissing):
		return "Payment processor is not configured."
	case errors.Is(err, domain.ErrAuth):
		return "Payment processor authentication failed."
	case errors.Is(err, domain.ErrMissingRequiredFields):
		return sentence(domain.ErrMissingRequiredFields.Error())
	}
	return sentence(err.Error())
}

var webhookReasons = []error{
	domain.ErrMetadataCorrupt,
	domain.ErrMetadataMissing,
	domain.ErrIntentIncomplete,
	domain.ErrUnsupportedPurpose,
	domain.ErrSponsorshipTargetMissing,
	domain.ErrInvalidDuration,
	domain.ErrOrderIDMissing,
	domain.ErrAmountMissing,
}

func webhookMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrConfigMissing):
		return "Webhook configuration missing."
	case errors.Is(err, domain.ErrSignatureInvalid):
		return "Invalid webhook signature."
	case errors.Is(err, domain.ErrVerificationService):
		return "Webhook signature verification unavailable."
	case errors.Is(err, domain.ErrMalformedNotification):
		return "Invalid webhook payload."
	case errors.Is(err, domain.ErrLedgerUnavailable):
		return "Failed to update ledger."
	}
	for _, e := range webhookReasons {
		if errors.Is(err, e) {
			return sentence(e.Error())
		}
	}
	return "Internal Server Error"
}

// sentence capitalizes msg and terminates it with a period.
func sentence(msg string) string {
	r, size := utf8.DecodeRuneInString(msg)
	if r == utf8.RuneError {
		return msg
	}
	msg = string(unicode.ToUpper(r)) + msg[size:]
	if !strings.HasSuffix(msg, ".") {
		msg += "."
	}
	return msg
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, models.ErrorResponse{Error: message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func respondWithText(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	io.WriteString(w, message)
}
