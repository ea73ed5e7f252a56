package proxy

import (
	"context"
	"crypto/subtle"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-fulfillment/core"
)

// StaticTokenVerifier resolves callers from a fixed token table. Suited to
// a small set of front-end clients provisioned by configuration.
type StaticTokenVerifier struct {
	tokens map[string]string
}

// NewStaticTokenVerifier builds a verifier from token to caller id pairs.
func NewStaticTokenVerifier(tokens map[string]string) *StaticTokenVerifier {
	cleaned := make(map[string]string, len(tokens))
	for token, callerID := range tokens {
		token = strings.TrimSpace(token)
		callerID = strings.TrimSpace(callerID)
		if token == "" || callerID == "" {
			continue
		}
		cleaned[token] = callerID
	}
	return &StaticTokenVerifier{tokens: cleaned}
}

func (v *StaticTokenVerifier) VerifyToken(_ context.Context, token string) (string, error) {
	if v == nil || len(v.tokens) == 0 {
		return "", goerrors.New("proxy: no caller tokens configured", goerrors.CategoryAuth).
			WithTextCode(core.FulfillmentErrorUnauthorized)
	}
	token = strings.TrimSpace(token)
	for candidate, callerID := range v.tokens {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(token)) == 1 {
			return callerID, nil
		}
	}
	return "", goerrors.New("proxy: unknown caller token", goerrors.CategoryAuth).
		WithTextCode(core.FulfillmentErrorUnauthorized)
}

var _ TokenVerifier = (*StaticTokenVerifier)(nil)
