// Package auth validates API keys presented by LLM runtime clients.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

var (
	ErrMissingAPIKey   = errors.New("missing authorization header")
	ErrInvalidAPIKey   = errors.New("invalid API key format")
	ErrUnauthenticated = errors.New("unauthenticated")
)

// KeyPrefix is the fixed prefix all issued API keys carry.
const KeyPrefix = "vxk_"

// ClientContext identifies the authenticated runtime client.
type ClientContext struct {
	ClientID string
	Name     string
}

// Authenticator validates a presented API key and returns the client context.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*ClientContext, error)
}

// ExtractBearerToken pulls the API key out of "Authorization: Bearer vxk_...".
func ExtractBearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingAPIKey
	}
	// RFC 6750: the "Bearer" scheme is case-insensitive.
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		header = header[7:]
	}
	token := strings.TrimSpace(header)
	if len(token) < 12 || !strings.HasPrefix(token, KeyPrefix) {
		return "", ErrInvalidAPIKey
	}
	return token, nil
}
