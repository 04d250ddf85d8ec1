package paypal

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/punchamoorthee/joyledger/internal/config"
	"github.com/punchamoorthee/joyledger/internal/domain"
)

const (
	tokenPath  = "/v1/oauth2/token"
	ordersPath = "/v2/checkout/orders"
	verifyPath = "/v1/notifications/verify-webhook-signature"

	maxResponseBytes = 1 << 20
	tokenExpiryGrace = 60 * time.Second
)

var (
	outboundTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_paypal_requests_total",
		Help: "Outbound PayPal API calls, labeled by operation and result",
	}, []string{"operation", "result"})

	outboundLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_paypal_request_duration_seconds",
		Help:    "Latency of outbound PayPal API calls",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"operation"})
)

// Client talks to the PayPal REST API. Every call is bounded by the
// configured timeout.
type Client struct {
	baseURL string
	http    *http.Client
	cache   TokenCache
	logger  *slog.Logger
}

// NewClient builds a client. cache may be nil, in which case a token is
// fetched for every operation.
func NewClient(cfg config.PayPal, cache TokenCache, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		cache:   cache,
		logger:  logger,
	}
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int    `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// AccessToken exchanges client credentials for a bearer token.
func (c *Client) AccessToken(ctx context.Context, creds config.Credentials) (string, error) {
	key := fingerprint(creds)
	if token := c.cachedToken(ctx, key); token != "" {
		return token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+tokenPath, strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrAuth, err)
	}
	req.SetBasicAuth(creds.ClientID, creds.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	status, body, err := c.do(req, "token")
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrAuth, err)
	}

	var out tokenResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("%w: status=%d unreadable response", domain.ErrAuth, status)
	}
	if out.Error != "" {
		c.invalidate(ctx, key)
		desc := out.ErrorDescription
		if desc == "" {
			desc = out.Error
		}
		return "", fmt.Errorf("%w: %s", domain.ErrAuth, desc)
	}
	if status < 200 || status >= 300 {
		return "", fmt.Errorf("%w: status=%d", domain.ErrAuth, status)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access_token", domain.ErrAuth)
	}

	if c.cache != nil && out.ExpiresIn > 0 {
		ttl := time.Duration(out.ExpiresIn)*time.Second - tokenExpiryGrace
		if ttl > 0 {
			if err := c.cache.Set(ctx, key, out.AccessToken, ttl); err != nil {
				c.logger.WarnContext(ctx, "Token cache write failed", "error", err)
			}
		}
	}
	return out.AccessToken, nil
}

func (c *Client) cachedToken(ctx context.Context, key string) string {
	if c.cache == nil {
		return ""
	}
	token, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.WarnContext(ctx, "Token cache read failed", "error", err)
		return ""
	}
	if !ok {
		return ""
	}
	return token
}

func (c *Client) invalidate(ctx context.Context, key string) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Delete(ctx, key); err != nil {
		c.logger.WarnContext(ctx, "Token cache invalidation failed", "error", err)
	}
}

// do executes req and returns the status code and a bounded copy of the body.
func (c *Client) do(req *http.Request, operation string) (int, []byte, error) {
	timer := prometheus.NewTimer(outboundLatency.WithLabelValues(operation))
	defer timer.ObserveDuration()

	resp, err := c.http.Do(req)
	if err != nil {
		outboundTotal.WithLabelValues(operation, "transport_error").Inc()
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		outboundTotal.WithLabelValues(operation, "read_error").Inc()
		return resp.StatusCode, nil, err
	}
	outboundTotal.WithLabelValues(operation, strconv.Itoa(resp.StatusCode)).Inc()
	return resp.StatusCode, body, nil
}

func fingerprint(creds config.Credentials) string {
	sum := sha256.Sum256([]byte(creds.ClientID + ":" + creds.ClientSecret))
	return hex.EncodeToString(sum[:16])
}
