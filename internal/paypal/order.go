package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/punchamoorthee/joyledger/internal/config"
	"github.com/punchamoorthee/joyledger/internal/domain"
)

const (
	currencyUSD      = "USD"
	intentCapture    = "CAPTURE"
	noShipping       = "NO_SHIPPING"
	relApprove       = "approve"
	relPayerAction   = "payer-action"
	descriptionTitle = "Gratitude Loop - "
)

type Money struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type PurchaseUnitRequest struct {
	Amount      Money  `json:"amount"`
	Description string `json:"description"`
	CustomID    string `json:"custom_id"`
}

type ApplicationContext struct {
	ReturnURL          string `json:"return_url"`
	CancelURL          string `json:"cancel_url"`
	BrandName          string `json:"brand_name"`
	ShippingPreference string `json:"shipping_preference"`
}

// OrderRequest is the body of an order-creation call.
type OrderRequest struct {
	Intent             string                `json:"intent"`
	PurchaseUnits      []PurchaseUnitRequest `json:"purchase_units"`
	ApplicationContext ApplicationContext    `json:"application_context"`
}

type Link struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method,omitempty"`
}

// CreatedOrder is the processor's answer to a successful order creation.
type CreatedOrder struct {
	ID          string
	Status      string
	ApprovalURL string
}

// BuildOrder turns an intent into an order whose custom_id carries the whole
// intent. That field is the only way to recover the intent on completion.
func BuildOrder(intent domain.PurchaseIntent, checkout config.Checkout) (OrderRequest, error) {
	blob, err := intent.Encode()
	if err != nil {
		return OrderRequest{}, fmt.Errorf("encode intent: %w", err)
	}

	return OrderRequest{
		Intent: intentCapture,
		PurchaseUnits: []PurchaseUnitRequest{{
			Amount: Money{
				CurrencyCode: currencyUSD,
				Value:        intent.Amount.StringFixed(2),
			},
			Description: descriptionTitle + string(intent.Purpose),
			CustomID:    blob,
		}},
		ApplicationContext: ApplicationContext{
			ReturnURL:          checkout.ReturnURL,
			CancelURL:          checkout.CancelURL,
			BrandName:          checkout.BrandName,
			ShippingPreference: noShipping,
		},
	}, nil
}

type orderResponse struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	Links            []Link `json:"links"`
	Name             string `json:"name"`
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (r orderResponse) failureMessage() string {
	switch {
	case r.Message != "":
		return r.Message
	case r.ErrorDescription != "":
		return r.ErrorDescription
	case r.Error != "":
		return r.Error
	default:
		return "Failed to create PayPal order."
	}
}

// errTokenRejected marks a submit that failed because the bearer token was
// refused, so a cached copy must be dropped.
var errTokenRejected = errors.New("access token rejected")

// SubmitOrder posts a built order and returns the user-approval link.
func (c *Client) SubmitOrder(ctx context.Context, accessToken string, order OrderRequest) (*CreatedOrder, error) {
	payload, err := json.Marshal(order)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrOrderCreation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ordersPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrOrderCreation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	status, body, err := c.do(req, "create_order")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrOrderCreation, err)
	}

	var out orderResponse
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		_ = json.Unmarshal(body, &out)
		return nil, fmt.Errorf("%w: %w: %s", domain.ErrOrderCreation, errTokenRejected, out.failureMessage())
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: status=%d unreadable response", domain.ErrOrderCreation, status)
	}
	if out.ID == "" || len(out.Links) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrOrderCreation, out.failureMessage())
	}

	approval := approvalLink(out.Links)
	if approval == "" {
		return nil, fmt.Errorf("%w: order %s has no approval link", domain.ErrOrderCreation, out.ID)
	}
	return &CreatedOrder{ID: out.ID, Status: out.Status, ApprovalURL: approval}, nil
}

// CreateOrder fetches a token and submits the order with it. A refused token
// is evicted from the cache and, if it came from there, the submit is retried
// once with a fresh one.
func (c *Client) CreateOrder(ctx context.Context, creds config.Credentials, order OrderRequest) (*CreatedOrder, error) {
	key := fingerprint(creds)
	cached := c.cachedToken(ctx, key) != ""

	token, err := c.AccessToken(ctx, creds)
	if err != nil {
		return nil, err
	}
	created, err := c.SubmitOrder(ctx, token, order)
	if err == nil || !errors.Is(err, errTokenRejected) {
		return created, err
	}

	c.invalidate(ctx, key)
	if !cached {
		return nil, err
	}
	c.logger.WarnContext(ctx, "Cached PayPal token refused, retrying with a fresh one")
	token, err = c.AccessToken(ctx, creds)
	if err != nil {
		return nil, err
	}
	created, err = c.SubmitOrder(ctx, token, order)
	if errors.Is(err, errTokenRejected) {
		c.invalidate(ctx, key)
	}
	return created, err
}

func approvalLink(links []Link) string {
	var fallback string
	for _, l := range links {
		switch l.Rel {
		case relApprove:
			return l.Href
		case relPayerAction:
			fallback = l.Href
		}
	}
	return fallback
}
