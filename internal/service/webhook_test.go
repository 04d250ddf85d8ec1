package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/h2non/gock"
	"github.com/punchamoorthee/joyledger/internal/domain"
	"github.com/punchamoorthee/joyledger/internal/paypal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWebhookService(creds fakeCreds, ledger *fakeLedger, journal WebhookJournal) *WebhookService {
	return NewWebhookService(
		creds,
		newVerifierForTest(),
		newTestDispatcher(ledger, nil),
		journal,
		discardLogger(),
	)
}

func newVerifierForTest() SignatureVerifier {
	return paypal.NewVerifier(newPayPalClient())
}

func tokenPurchaseBody(t *testing.T, orderID string) string {
	return completedEvent(t, orderID, "2.50", intentBlob(t, map[string]any{
		"userId": "u1", "purpose": "joy_token_purchase", "amount": "2.50",
	}))
}

func TestWebhookService_Handle(t *testing.T) {
	defer gock.Off()
	mockVerification("SUCCESS")

	ledger := newFakeLedger()
	journal := newFakeJournal()
	svc := newTestWebhookService(fakeCreds{}, ledger, journal)

	out, err := svc.Handle(context.Background(), notification(tokenPurchaseBody(t, "ORDER-1")))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, out.Status)
	assert.Equal(t, int64(25), ledger.balances["u1"])

	rec, ok := journal.recorded["tx-1"]
	require.True(t, ok)
	assert.Equal(t, "CHECKOUT.ORDER.COMPLETED", rec.EventType)
	assert.Len(t, rec.BodySHA256, 64)
	procErr, ok := journal.processed["tx-1"]
	assert.True(t, ok)
	assert.NoError(t, procErr)
	assert.True(t, gock.IsDone())
}

func TestWebhookService_InvalidSignature(t *testing.T) {
	defer gock.Off()
	mockVerification("FAILURE")

	ledger := newFakeLedger()
	journal := newFakeJournal()
	svc := newTestWebhookService(fakeCreds{}, ledger, journal)

	_, err := svc.Handle(context.Background(), notification(tokenPurchaseBody(t, "ORDER-2")))
	assert.ErrorIs(t, err, domain.ErrSignatureInvalid)
	assert.Empty(t, ledger.processed)
	assert.Empty(t, ledger.balances)
	assert.Empty(t, journal.recorded)
}

func TestWebhookService_VerificationUnavailable(t *testing.T) {
	defer gock.Off()
	gock.New(paypalURL).
		Post("/v1/oauth2/token").
		Reply(200).
		JSON(map[string]any{"access_token": "tok"})
	gock.New(paypalURL).
		Post("/v1/notifications/verify-webhook-signature").
		Reply(503).
		JSON(map[string]string{})

	ledger := newFakeLedger()
	svc := newTestWebhookService(fakeCreds{}, ledger, nil)

	_, err := svc.Handle(context.Background(), notification(tokenPurchaseBody(t, "ORDER-3")))
	assert.ErrorIs(t, err, domain.ErrVerificationService)
	assert.Empty(t, ledger.processed)
}

func TestWebhookService_ConfigMissing(t *testing.T) {
	defer gock.Off()
	gock.Intercept()

	ledger := newFakeLedger()
	svc := newTestWebhookService(fakeCreds{err: fmt.Errorf("%w: PAYPAL_WEBHOOK_ID", domain.ErrConfigMissing)}, ledger, nil)

	_, err := svc.Handle(context.Background(), notification(tokenPurchaseBody(t, "ORDER-4")))
	assert.ErrorIs(t, err, domain.ErrConfigMissing)
	assert.Empty(t, ledger.processed)
}

func TestWebhookService_JournalsDispatchError(t *testing.T) {
	defer gock.Off()
	mockVerification("SUCCESS")

	journal := newFakeJournal()
	svc := newTestWebhookService(fakeCreds{}, newFakeLedger(), journal)

	body := completedEvent(t, "ORDER-5", "5.00", "not-json")
	_, err := svc.Handle(context.Background(), notification(body))
	assert.ErrorIs(t, err, domain.ErrMetadataCorrupt)
	assert.ErrorIs(t, journal.processed["tx-1"], domain.ErrMetadataCorrupt)
}

func TestWebhookService_JournalFailureIsNotFatal(t *testing.T) {
	defer gock.Off()
	mockVerification("SUCCESS")

	ledger := newFakeLedger()
	journal := newFakeJournal()
	journal.err = errStoreDown
	svc := newTestWebhookService(fakeCreds{}, ledger, journal)

	out, err := svc.Handle(context.Background(), notification(tokenPurchaseBody(t, "ORDER-6")))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, out.Status)
}
