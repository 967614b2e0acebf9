package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/orderlyhq/orderly-backend/pkg/config"
	pkgerrors "github.com/orderlyhq/orderly-backend/pkg/errors"
	"github.com/orderlyhq/orderly-backend/pkg/logger"
	"github.com/orderlyhq/orderly-backend/pkg/redis"
)

// tokenExpiryBuffer is subtracted from the partner's expires_in so a token
// is never used within five minutes of expiring.
const tokenExpiryBuffer = 5 * time.Minute

var (
	errClientIDRequired      = errors.New("courier client id is required")
	errClientSecretRequired  = errors.New("courier client secret is required")
	errWebhookSecretRequired = errors.New("courier webhook secret is required")
	errBaseURLRequired       = errors.New("courier base url is required")
	errLoggerRequired        = errors.New("courier logger is required")
	errCacheRequired         = errors.New("courier token cache is required")
)

// TokenCache stores the partner OAuth token between requests.
type TokenCache interface {
	GetCourierToken(ctx context.Context, clientID string) (string, error)
	SetCourierToken(ctx context.Context, clientID, token string, ttl time.Duration) error
}

var _ TokenCache = (*redis.Client)(nil)

// Client wraps the courier partner API with centralized auth, logging and
// error mapping.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	authURL       string
	clientID      string
	clientSecret  string
	webhookSecret string
	cache         TokenCache
	logger        *logger.Logger
}

// NewClient validates the courier credentials and builds the wrapper.
func NewClient(ctx context.Context, cfg config.CourierConfig, cache TokenCache, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	if cache == nil {
		return nil, errCacheRequired
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errBaseURLRequired
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, errClientIDRequired
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, errClientSecretRequired
	}
	if strings.TrimSpace(cfg.WebhookSecret) == "" {
		return nil, errWebhookSecretRequired
	}

	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	c := &Client{
		httpClient:    &http.Client{Timeout: timeout},
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		authURL:       cfg.AuthURL,
		clientID:      cfg.ClientID,
		clientSecret:  cfg.ClientSecret,
		webhookSecret: cfg.WebhookSecret,
		cache:         cache,
		logger:        logg,
	}

	logg.Info(ctx, "courier client initialized")
	return c, nil
}

// SigningSecret returns the courier webhook secret.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.webhookSecret
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// accessToken returns a cached token or fetches a fresh one via the
// client-credentials grant.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	token, err := c.cache.GetCourierToken(ctx, c.clientID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read courier token cache")
	}
	if token != "" {
		return token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("scope", "deliveries")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build courier token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch courier token")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read courier token response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", pkgerrors.New(domainCodeForStatus(resp.StatusCode),
			fmt.Sprintf("courier token endpoint returned %d", resp.StatusCode))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode courier token response")
	}
	if tr.AccessToken == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "courier token response missing access_token")
	}

	ttl := time.Duration(tr.ExpiresIn)*time.Second - tokenExpiryBuffer
	if err := c.cache.SetCourierToken(ctx, c.clientID, tr.AccessToken, ttl); err != nil {
		c.logger.Warn(c.logger.WithField(ctx, "error", err.Error()), "caching courier token failed")
	}

	return tr.AccessToken, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode courier request")
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build courier request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "call courier api")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read courier response")
	}

	if resp.StatusCode >= 400 {
		return c.mapAPIError(resp.StatusCode, respBody, method, path)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode courier response")
		}
	}
	return nil
}

type apiErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *Client) mapAPIError(status int, body []byte, method, path string) error {
	var parsed apiErrorBody
	_ = json.Unmarshal(body, &parsed)

	msg := parsed.Message
	if msg == "" {
		msg = fmt.Sprintf("courier %s %s returned %d", method, path, status)
	}

	code := domainCodeForStatus(status)
	if parsed.Code == "duplicate_delivery" {
		code = pkgerrors.CodeConflict
	}
	return pkgerrors.New(code, msg).WithDetails(map[string]any{
		"partner_code": parsed.Code,
		"http_status":  status,
	})
}

func domainCodeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusUnauthorized:
		return pkgerrors.CodeUnauthorized
	case http.StatusForbidden:
		return pkgerrors.CodeForbidden
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusConflict:
		return pkgerrors.CodeConflict
	case http.StatusTooManyRequests:
		return pkgerrors.CodeRateLimit
	case http.StatusBadRequest:
		return pkgerrors.CodeValidation
	case http.StatusUnprocessableEntity:
		return pkgerrors.CodeStateConflict
	default:
		if status >= 400 && status < 500 {
			return pkgerrors.CodeValidation
		}
		return pkgerrors.CodeDependency
	}
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = redact(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("courier %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("courier %s", phase))
	}
}

func redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"secret", "token", "phone", "email", "address"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}
