package printvendor

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-fulfillment/core"
)

const defaultTokenMargin = 10 * time.Minute

// TokenSource holds a cached vendor API token obtained with the
// client-credentials grant. The token is renewed ahead of its expiry by the
// configured margin so a call never starts with a token about to lapse.
type TokenSource struct {
	tokenURL     string
	clientID     string
	clientSecret string
	margin       time.Duration
	timeout      time.Duration
	transport    core.TransportAdapter
	now          func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewTokenSource(cfg Config, adapter core.TransportAdapter) *TokenSource {
	margin := cfg.TokenMargin
	if margin <= 0 {
		margin = defaultTokenMargin
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &TokenSource{
		tokenURL:     strings.TrimSpace(cfg.TokenURL),
		clientID:     strings.TrimSpace(cfg.ClientID),
		clientSecret: strings.TrimSpace(cfg.ClientSecret),
		margin:       margin,
		timeout:      cfg.Timeout,
		transport:    adapter,
		now:          now,
	}
}

func (s *TokenSource) Token(ctx context.Context) (string, error) {
	if s == nil || s.transport == nil {
		return "", fmt.Errorf("printvendor: token source requires a transport adapter")
	}
	if s.tokenURL == "" || s.clientID == "" || s.clientSecret == "" {
		return "", goerrors.New("printvendor: token credentials are not configured", goerrors.CategoryAuth).
			WithTextCode(core.FulfillmentErrorUnauthorized)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	if s.token != "" && now.Before(s.expiresAt.Add(-s.margin)) {
		return s.token, nil
	}

	token, expiresIn, err := s.fetchToken(ctx)
	if err != nil {
		return "", err
	}
	s.token = token
	s.expiresAt = now.Add(expiresIn)
	return s.token, nil
}

func (s *TokenSource) fetchToken(ctx context.Context) (string, time.Duration, error) {
	basic := base64.StdEncoding.EncodeToString([]byte(s.clientID + ":" + s.clientSecret))
	res, err := s.transport.Do(ctx, core.TransportRequest{
		Method: http.MethodPost,
		URL:    s.tokenURL,
		Headers: map[string]string{
			"Authorization": "Basic " + basic,
			"Content-Type":  "application/x-www-form-urlencoded",
		},
		Body:    []byte("grant_type=client_credentials"),
		Timeout: s.timeout,
	})
	if err != nil {
		return "", 0, err
	}
	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return "", 0, goerrors.New(
			fmt.Sprintf("printvendor: token endpoint returned status %d", res.StatusCode),
			goerrors.CategoryAuth,
		).WithCode(http.StatusUnauthorized).WithTextCode(core.FulfillmentErrorUnauthorized)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(res.Body, &payload); err != nil {
		return "", 0, fmt.Errorf("printvendor: decode token response: %w", err)
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return "", 0, fmt.Errorf("printvendor: token response has no access token")
	}
	expiresIn := time.Duration(payload.ExpiresIn) * time.Second
	if expiresIn <= 0 {
		expiresIn = time.Hour
	}
	return strings.TrimSpace(payload.AccessToken), expiresIn, nil
}
