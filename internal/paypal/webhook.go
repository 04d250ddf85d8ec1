package paypal

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/punchamoorthee/joyledger/internal/config"
	"github.com/punchamoorthee/joyledger/internal/domain"
)

const (
	HeaderAuthAlgo         = "Paypal-Auth-Algo"
	HeaderCertURL          = "Paypal-Cert-Url"
	HeaderTransmissionID   = "Paypal-Transmission-Id"
	HeaderTransmissionSig  = "Paypal-Transmission-Sig"
	HeaderTransmissionTime = "Paypal-Transmission-Time"

	verificationSuccess = "SUCCESS"

	// EventOrderCompleted is the only event type that mutates the ledger.
	EventOrderCompleted = "CHECKOUT.ORDER.COMPLETED"
)

// Notification is an inbound, untrusted webhook delivery.
type Notification struct {
	AuthAlgo         string
	CertURL          string
	TransmissionID   string
	TransmissionSig  string
	TransmissionTime string
	Body             []byte
}

func NotificationFromRequest(h http.Header, body []byte) Notification {
	return Notification{
		AuthAlgo:         h.Get(HeaderAuthAlgo),
		CertURL:          h.Get(HeaderCertURL),
		TransmissionID:   h.Get(HeaderTransmissionID),
		TransmissionSig:  h.Get(HeaderTransmissionSig),
		TransmissionTime: h.Get(HeaderTransmissionTime),
		Body:             body,
	}
}

// BodySHA256 is the hex digest of the raw body.
func (n Notification) BodySHA256() string {
	sum := sha256.Sum256(n.Body)
	return hex.EncodeToString(sum[:])
}

// EventKey identifies a delivery for journaling.
func (n Notification) EventKey() string {
	if n.TransmissionID != "" {
		return n.TransmissionID
	}
	return "sha256:" + n.BodySHA256()
}

func (n Notification) missingHeader() string {
	switch {
	case n.AuthAlgo == "":
		return HeaderAuthAlgo
	case n.CertURL == "":
		return HeaderCertURL
	case n.TransmissionID == "":
		return HeaderTransmissionID
	case n.TransmissionSig == "":
		return HeaderTransmissionSig
	case n.TransmissionTime == "":
		return HeaderTransmissionTime
	default:
		return ""
	}
}

// VerifiedNotification can only be produced by Verifier.Verify.
type VerifiedNotification struct {
	notification Notification
	event        Event
}

func (v VerifiedNotification) Notification() Notification { return v.notification }
func (v VerifiedNotification) Event() Event               { return v.event }

type verifyRequest struct {
	AuthAlgo         string          `json:"auth_algo"`
	CertURL          string          `json:"cert_url"`
	TransmissionID   string          `json:"transmission_id"`
	TransmissionSig  string          `json:"transmission_sig"`
	TransmissionTime string          `json:"transmission_time"`
	WebhookID        string          `json:"webhook_id"`
	WebhookEvent     json.RawMessage `json:"webhook_event"`
}

type verifyResponse struct {
	VerificationStatus string `json:"verification_status"`
}

// Verifier delegates signature checks to the processor's verification
// endpoint. Nothing in the notification is trusted until it answers SUCCESS.
type Verifier struct {
	client *Client
}

func NewVerifier(client *Client) *Verifier {
	return &Verifier{client: client}
}

func (v *Verifier) Verify(ctx context.Context, creds config.WebhookCredentials, n Notification) (VerifiedNotification, error) {
	if !json.Valid(n.Body) {
		return VerifiedNotification{}, domain.ErrMalformedNotification
	}
	if h := n.missingHeader(); h != "" {
		return VerifiedNotification{}, fmt.Errorf("%w: missing %s header", domain.ErrSignatureInvalid, h)
	}

	token, err := v.client.AccessToken(ctx, creds.Credentials)
	if err != nil {
		return VerifiedNotification{}, fmt.Errorf("%w: %w", domain.ErrVerificationService, err)
	}

	payload, err := json.Marshal(verifyRequest{
		AuthAlgo:         n.AuthAlgo,
		CertURL:          n.CertURL,
		TransmissionID:   n.TransmissionID,
		TransmissionSig:  n.TransmissionSig,
		TransmissionTime: n.TransmissionTime,
		WebhookID:        creds.WebhookID,
		WebhookEvent:     json.RawMessage(n.Body),
	})
	if err != nil {
		return VerifiedNotification{}, fmt.Errorf("%w: %v", domain.ErrVerificationService, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.client.baseURL+verifyPath, bytes.NewReader(payload))
	if err != nil {
		return VerifiedNotification{}, fmt.Errorf("%w: %v", domain.ErrVerificationService, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	status, body, err := v.client.do(req, "verify_signature")
	if err != nil {
		return VerifiedNotification{}, fmt.Errorf("%w: %w", domain.ErrVerificationService, err)
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		v.client.invalidate(ctx, fingerprint(creds.Credentials))
		return VerifiedNotification{}, fmt.Errorf("%w: status=%d", domain.ErrVerificationService, status)
	case status >= 500:
		return VerifiedNotification{}, fmt.Errorf("%w: status=%d", domain.ErrVerificationService, status)
	case status >= 400:
		return VerifiedNotification{}, fmt.Errorf("%w: verification request rejected with status=%d", domain.ErrSignatureInvalid, status)
	}

	var out verifyResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return VerifiedNotification{}, fmt.Errorf("%w: malformed verification response", domain.ErrSignatureInvalid)
	}
	if out.VerificationStatus != verificationSuccess {
		return VerifiedNotification{}, fmt.Errorf("%w: verification_status=%q", domain.ErrSignatureInvalid, out.VerificationStatus)
	}

	var event Event
	if err := json.Unmarshal(n.Body, &event); err != nil {
		return VerifiedNotification{}, fmt.Errorf("%w: %v", domain.ErrMalformedNotification, err)
	}
	return VerifiedNotification{notification: n, event: event}, nil
}
