package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/h2non/gock"
	"github.com/punchamoorthee/joyledger/internal/config"
	"github.com/punchamoorthee/joyledger/internal/domain"
	"github.com/punchamoorthee/joyledger/internal/events"
	"github.com/punchamoorthee/joyledger/internal/paypal"
	"github.com/punchamoorthee/joyledger/internal/store"
	"github.com/stretchr/testify/require"
)

const paypalURL = "https://api.paypal.test"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeCreds struct {
	err error
}

func (f fakeCreds) Resolve() (config.Credentials, error) {
	if f.err != nil {
		return config.Credentials{}, f.err
	}
	return config.Credentials{ClientID: "client", ClientSecret: "secret"}, nil
}

func (f fakeCreds) ResolveWebhook() (config.WebhookCredentials, error) {
	c, err := f.Resolve()
	if err != nil {
		return config.WebhookCredentials{}, err
	}
	return config.WebhookCredentials{Credentials: c, WebhookID: "WH-1"}, nil
}

// fakeLedger mirrors the once-per-order semantics of the Postgres store.
type fakeLedger struct {
	mu        sync.Mutex
	processed map[string]bool
	balances  map[string]int64
	messages  map[string]*domain.MessageSponsorship
	err       error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		processed: map[string]bool{},
		balances:  map[string]int64{},
		messages:  map[string]*domain.MessageSponsorship{},
	}
}

func (f *fakeLedger) ApplyTokenCredit(_ context.Context, orderID, userID string, tokens int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if f.processed[orderID] {
		return false, nil
	}
	f.processed[orderID] = true
	f.balances[userID] += tokens
	return true, nil
}

func (f *fakeLedger) ApplySponsorship(_ context.Context, orderID, _ string, sp domain.Sponsorship) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if f.processed[orderID] {
		return false, nil
	}
	m, ok := f.messages[sp.MessageID]
	if !ok && sp.Content != "" {
		m = &domain.MessageSponsorship{MessageID: sp.MessageID, Content: sp.Content}
		f.messages[sp.MessageID] = m
	} else if !ok {
		return false, domain.ErrMessageNotFound
	}
	now := time.Now()
	m.IsSponsored = true
	m.SponsoredBy = sp.SponsoredBy
	m.SponsoredDuration = sp.DurationHours
	m.SponsoredAt = &now
	f.processed[orderID] = true
	return true, nil
}

func (f *fakeLedger) GetBalance(_ context.Context, userID string) (*domain.UserTokenBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	b, ok := f.balances[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &domain.UserTokenBalance{UserID: userID, JoyTokens: b}, nil
}

func (f *fakeLedger) GetMessage(_ context.Context, messageID string) (*domain.MessageSponsorship, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	m, ok := f.messages[messageID]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	c := *m
	return &c, nil
}

func (f *fakeLedger) UnlockPack(_ context.Context, userID, packID string) (*domain.UnlockResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	const price = 30
	if packID != "calm" {
		return nil, domain.ErrPackNotFound
	}
	b, ok := f.balances[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	if b < price {
		return nil, domain.ErrInsufficientTokens
	}
	f.balances[userID] = b - price
	return &domain.UnlockResult{UserID: userID, PackID: packID, JoyTokens: b - price}, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.LedgerEvent
	err    error
	hang   bool
}

func (f *fakePublisher) Publish(ctx context.Context, e events.LedgerEvent) error {
	if f.hang {
		<-ctx.Done()
		return ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, e)
	return nil
}

type fakeJournal struct {
	recorded  map[string]store.WebhookEvent
	processed map[string]error
	err       error
}

func newFakeJournal() *fakeJournal {
	return &fakeJournal{recorded: map[string]store.WebhookEvent{}, processed: map[string]error{}}
}

func (f *fakeJournal) RecordWebhookEvent(_ context.Context, e store.WebhookEvent) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if _, ok := f.recorded[e.TransmissionID]; ok {
		return false, nil
	}
	f.recorded[e.TransmissionID] = e
	return true, nil
}

func (f *fakeJournal) MarkWebhookProcessed(_ context.Context, transmissionID string, procErr error) error {
	if f.err != nil {
		return f.err
	}
	f.processed[transmissionID] = procErr
	return nil
}

var errStoreDown = errors.New("connection refused")

func newPayPalClient() *paypal.Client {
	return paypal.NewClient(config.PayPal{BaseURL: paypalURL, Timeout: 2 * time.Second}, nil, discardLogger())
}

func mockVerification(status string) {
	gock.New(paypalURL).
		Post("/v1/oauth2/token").
		Reply(200).
		JSON(map[string]any{"access_token": "tok", "expires_in": 3600})
	gock.New(paypalURL).
		Post("/v1/notifications/verify-webhook-signature").
		MatchHeader("Authorization", "^Bearer tok$").
		Reply(200).
		JSON(map[string]string{"verification_status": status})
}

func notification(body string) paypal.Notification {
	h := http.Header{}
	h.Set(paypal.HeaderAuthAlgo, "SHA256withRSA")
	h.Set(paypal.HeaderCertURL, "https://api.paypal.test/certs/CERT-1")
	h.Set(paypal.HeaderTransmissionID, "tx-1")
	h.Set(paypal.HeaderTransmissionSig, "c2lnbmF0dXJl")
	h.Set(paypal.HeaderTransmissionTime, "2026-10-16T10:00:00Z")
	return paypal.NotificationFromRequest(h, []byte(body))
}

// verified runs body through the real verifier against a mocked processor.
func verified(t *testing.T, body string) paypal.VerifiedNotification {
	t.Helper()
	defer gock.Off()
	mockVerification("SUCCESS")

	creds, err := fakeCreds{}.ResolveWebhook()
	require.NoError(t, err)
	v, err := paypal.NewVerifier(newPayPalClient()).Verify(context.Background(), creds, notification(body))
	require.NoError(t, err)
	return v
}

func intentBlob(t *testing.T, fields map[string]any) string {
	t.Helper()
	b, err := json.Marshal(fields)
	require.NoError(t, err)
	return string(b)
}

// completedEvent builds a CHECKOUT.ORDER.COMPLETED body carrying customID on
// the first capture. An empty amount omits the purchase unit amount.
func completedEvent(t *testing.T, orderID, amount, customID string) string {
	t.Helper()
	unit := map[string]any{
		"payments": map[string]any{
			"captures": []any{map[string]any{"id": "CAP-" + orderID, "status": "COMPLETED", "custom_id": customID}},
		},
	}
	if amount != "" {
		unit["amount"] = map[string]string{"currency_code": "USD", "value": amount}
	}
	return eventBody(t, "CHECKOUT.ORDER.COMPLETED", map[string]any{
		"id":             orderID,
		"status":         "COMPLETED",
		"purchase_units": []any{unit},
	})
}

func eventBody(t *testing.T, eventType string, resource any) string {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"id":            "WH-" + eventType,
		"event_type":    eventType,
		"resource_type": "checkout-order",
		"resource":      resource,
	})
	require.NoError(t, err)
	return string(b)
}
