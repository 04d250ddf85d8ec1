package paypal

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/h2non/gock"
	"github.com/punchamoorthee/joyledger/internal/config"
	"github.com/punchamoorthee/joyledger/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCheckout = config.Checkout{
	ReturnURL: "https://app.test/payment-success",
	CancelURL: "https://app.test/payment-cancel",
	BrandName: "The Gratitude Loop",
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func TestBuildOrder(t *testing.T) {
	intent := domain.PurchaseIntent{
		UserID:      "u1",
		Purpose:     domain.PurposeMessageSponsorship,
		Amount:      decimal.NewFromInt(8),
		MessageID:   strPtr("m1"),
		SponsoredBy: strPtr("Ana"),
		Duration:    intPtr(48),
	}

	order, err := BuildOrder(intent, testCheckout)
	require.NoError(t, err)

	assert.Equal(t, "CAPTURE", order.Intent)
	require.Len(t, order.PurchaseUnits, 1)
	unit := order.PurchaseUnits[0]
	assert.Equal(t, "USD", unit.Amount.CurrencyCode)
	assert.Equal(t, "8.00", unit.Amount.Value)
	assert.Equal(t, "Gratitude Loop - message_sponsorship", unit.Description)
	assert.Equal(t, "NO_SHIPPING", order.ApplicationContext.ShippingPreference)
	assert.Equal(t, testCheckout.ReturnURL, order.ApplicationContext.ReturnURL)
	assert.Equal(t, testCheckout.CancelURL, order.ApplicationContext.CancelURL)
	assert.Equal(t, testCheckout.BrandName, order.ApplicationContext.BrandName)

	decoded, err := domain.DecodeIntent(unit.CustomID)
	require.NoError(t, err)
	assert.Equal(t, intent.UserID, decoded.UserID)
	assert.Equal(t, intent.Purpose, decoded.Purpose)
	assert.True(t, intent.Amount.Equal(decoded.Amount))
	assert.Equal(t, "m1", *decoded.MessageID)
	assert.Equal(t, "Ana", *decoded.SponsoredBy)
	assert.Equal(t, 48, *decoded.Duration)
	assert.Nil(t, decoded.MessageContent)
}

func TestBuildOrder_FractionalAmount(t *testing.T) {
	intent := domain.PurchaseIntent{
		UserID:  "u2",
		Purpose: domain.PurposeJoyTokenPurchase,
		Amount:  decimal.RequireFromString("2.5"),
	}

	order, err := BuildOrder(intent, testCheckout)
	require.NoError(t, err)
	assert.Equal(t, "2.50", order.PurchaseUnits[0].Amount.Value)

	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(order.PurchaseUnits[0].CustomID), &raw))
	assert.NotContains(t, raw, "messageId")
	assert.NotContains(t, raw, "duration")
}

func TestClient_SubmitOrder(t *testing.T) {
	tests := []struct {
		name         string
		mockResponse func()
		expectedURL  string
		expectedErr  error
		expectedMsg  string
	}{
		{
			name: "ApproveLink",
			mockResponse: func() {
				gock.New(testBaseURL).
					Post(ordersPath).
					MatchHeader("Authorization", "^Bearer tok$").
					Reply(201).
					JSON(map[string]any{
						"id":     "ORDER-1",
						"status": "CREATED",
						"links": []map[string]string{
							{"href": "https://api.paypal.test/v2/checkout/orders/ORDER-1", "rel": "self"},
							{"href": "https://paypal.test/checkoutnow?token=ORDER-1", "rel": "approve"},
						},
					})
			},
			expectedURL: "https://paypal.test/checkoutnow?token=ORDER-1",
		},
		{
			name: "PayerActionFallback",
			mockResponse: func() {
				gock.New(testBaseURL).
					Post(ordersPath).
					Reply(200).
					JSON(map[string]any{
						"id": "ORDER-2",
						"links": []map[string]string{
							{"href": "https://paypal.test/pay?token=ORDER-2", "rel": "payer-action"},
						},
					})
			},
			expectedURL: "https://paypal.test/pay?token=ORDER-2",
		},
		{
			name: "ProcessorMessage",
			mockResponse: func() {
				gock.New(testBaseURL).
					Post(ordersPath).
					Reply(422).
					JSON(map[string]string{"name": "UNPROCESSABLE_ENTITY", "message": "The requested action could not be performed."})
			},
			expectedErr: domain.ErrOrderCreation,
			expectedMsg: "The requested action could not be performed.",
		},
		{
			name: "NoIDNoMessage",
			mockResponse: func() {
				gock.New(testBaseURL).
					Post(ordersPath).
					Reply(200).
					JSON(map[string]any{"status": "CREATED"})
			},
			expectedErr: domain.ErrOrderCreation,
			expectedMsg: "Failed to create PayPal order.",
		},
		{
			name: "ErrorDescription",
			mockResponse: func() {
				gock.New(testBaseURL).
					Post(ordersPath).
					Reply(400).
					JSON(map[string]string{"error": "invalid_request", "error_description": "Currency is not supported"})
			},
			expectedErr: domain.ErrOrderCreation,
			expectedMsg: "Currency is not supported",
		},
		{
			name: "NoApprovalLink",
			mockResponse: func() {
				gock.New(testBaseURL).
					Post(ordersPath).
					Reply(201).
					JSON(map[string]any{
						"id":    "ORDER-3",
						"links": []map[string]string{{"href": "https://x.test", "rel": "self"}},
					})
			},
			expectedErr: domain.ErrOrderCreation,
			expectedMsg: "no approval link",
		},
	}

	order, err := BuildOrder(domain.PurchaseIntent{UserID: "u1", Purpose: domain.PurposeJoyTokenPurchase, Amount: decimal.NewFromInt(5)}, testCheckout)
	require.NoError(t, err)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer gock.Off()
			tt.mockResponse()

			created, err := newTestClient(nil).SubmitOrder(context.Background(), "tok", order)
			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
				assert.Contains(t, err.Error(), tt.expectedMsg)
				assert.Nil(t, created)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expectedURL, created.ApprovalURL)
			}
			assert.True(t, gock.IsDone())
		})
	}
}

func TestClient_CreateOrder_AuthFailureSkipsSubmit(t *testing.T) {
	defer gock.Off()
	gock.New(testBaseURL).
		Post(tokenPath).
		Reply(401).
		JSON(map[string]string{"error": "invalid_client"})

	order, err := BuildOrder(domain.PurchaseIntent{UserID: "u1", Purpose: domain.PurposeJoyTokenPurchase, Amount: decimal.NewFromInt(5)}, testCheckout)
	require.NoError(t, err)

	_, err = newTestClient(nil).CreateOrder(context.Background(), testCreds, order)
	assert.ErrorIs(t, err, domain.ErrAuth)
	assert.True(t, gock.IsDone())
}

func createdOrderResponse(id string) map[string]any {
	return map[string]any{
		"id":     id,
		"status": "CREATED",
		"links":  []map[string]string{{"href": "https://paypal.test/checkoutnow?token=" + id, "rel": "approve"}},
	}
}

func TestClient_CreateOrder_RefusedCachedTokenIsReplaced(t *testing.T) {
	defer gock.Off()
	cache := newMemoryCache()
	require.NoError(t, cache.Set(context.Background(), fingerprint(testCreds), "revoked-token", time.Hour))

	gock.New(testBaseURL).
		Post(ordersPath).
		MatchHeader("Authorization", "^Bearer revoked-token$").
		Reply(401).
		JSON(map[string]string{"error": "invalid_token", "error_description": "Token signature verification failed"})
	mockToken("fresh-token")
	gock.New(testBaseURL).
		Post(ordersPath).
		MatchHeader("Authorization", "^Bearer fresh-token$").
		Reply(201).
		JSON(createdOrderResponse("ORDER-7"))

	order, err := BuildOrder(domain.PurchaseIntent{UserID: "u1", Purpose: domain.PurposeJoyTokenPurchase, Amount: decimal.NewFromInt(5)}, testCheckout)
	require.NoError(t, err)

	created, err := newTestClient(cache).CreateOrder(context.Background(), testCreds, order)
	require.NoError(t, err)
	assert.Equal(t, "ORDER-7", created.ID)
	assert.Equal(t, 1, cache.deletes)

	token, ok, _ := cache.Get(context.Background(), fingerprint(testCreds))
	assert.True(t, ok)
	assert.Equal(t, "fresh-token", token)
	assert.True(t, gock.IsDone())
}

func TestClient_CreateOrder_RefusedTokenNeverStaysCached(t *testing.T) {
	defer gock.Off()
	cache := newMemoryCache()
	require.NoError(t, cache.Set(context.Background(), fingerprint(testCreds), "revoked-token", time.Hour))

	gock.New(testBaseURL).
		Post(ordersPath).
		Times(2).
		Reply(401).
		JSON(map[string]string{"error": "invalid_token"})
	mockToken("also-refused")

	order, err := BuildOrder(domain.PurchaseIntent{UserID: "u1", Purpose: domain.PurposeJoyTokenPurchase, Amount: decimal.NewFromInt(5)}, testCheckout)
	require.NoError(t, err)

	_, err = newTestClient(cache).CreateOrder(context.Background(), testCreds, order)
	assert.ErrorIs(t, err, domain.ErrOrderCreation)
	assert.Contains(t, err.Error(), "invalid_token")
	assert.Equal(t, 2, cache.deletes)

	_, ok, _ := cache.Get(context.Background(), fingerprint(testCreds))
	assert.False(t, ok)
	assert.True(t, gock.IsDone())
}

func TestClient_CreateOrder_RefusedFreshTokenNotRetried(t *testing.T) {
	defer gock.Off()
	mockToken("tok")
	gock.New(testBaseURL).
		Post(ordersPath).
		Reply(403).
		JSON(map[string]string{"name": "NOT_AUTHORIZED", "message": "Authorization failed due to insufficient permissions."})

	order, err := BuildOrder(domain.PurchaseIntent{UserID: "u1", Purpose: domain.PurposeJoyTokenPurchase, Amount: decimal.NewFromInt(5)}, testCheckout)
	require.NoError(t, err)

	_, err = newTestClient(nil).CreateOrder(context.Background(), testCreds, order)
	assert.ErrorIs(t, err, domain.ErrOrderCreation)
	assert.Contains(t, err.Error(), "insufficient permissions")
	assert.True(t, gock.IsDone())
}
