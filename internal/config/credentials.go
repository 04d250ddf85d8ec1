package config

import (
	"fmt"
	"strings"

	"github.com/punchamoorthee/joyledger/internal/domain"
	"github.com/spf13/viper"
)

// Credentials authenticate against the processor API.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// WebhookCredentials add the identifier of the registered webhook endpoint.
type WebhookCredentials struct {
	Credentials
	WebhookID string
}

// CredentialProvider reads processor secrets on every call so rotated values
// take effect without a restart.
type CredentialProvider struct {
	v *viper.Viper
}

func NewCredentialProvider(v *viper.Viper) *CredentialProvider {
	return &CredentialProvider{v: v}
}

func (p *CredentialProvider) Resolve() (Credentials, error) {
	creds := Credentials{
		ClientID:     strings.TrimSpace(p.v.GetString("PAYPAL_CLIENT_ID")),
		ClientSecret: strings.TrimSpace(p.v.GetString("PAYPAL_SECRET")),
	}
	var missing []string
	if creds.ClientID == "" {
		missing = append(missing, "PAYPAL_CLIENT_ID")
	}
	if creds.ClientSecret == "" {
		missing = append(missing, "PAYPAL_SECRET")
	}
	if len(missing) > 0 {
		return Credentials{}, fmt.Errorf("%w: %s", domain.ErrConfigMissing, strings.Join(missing, ", "))
	}
	return creds, nil
}

func (p *CredentialProvider) ResolveWebhook() (WebhookCredentials, error) {
	webhookID := strings.TrimSpace(p.v.GetString("PAYPAL_WEBHOOK_ID"))
	creds, err := p.Resolve()
	if err != nil {
		if webhookID == "" {
			return WebhookCredentials{}, fmt.Errorf("%w, PAYPAL_WEBHOOK_ID", err)
		}
		return WebhookCredentials{}, err
	}
	if webhookID == "" {
		return WebhookCredentials{}, fmt.Errorf("%w: PAYPAL_WEBHOOK_ID", domain.ErrConfigMissing)
	}
	return WebhookCredentials{Credentials: creds, WebhookID: webhookID}, nil
}
