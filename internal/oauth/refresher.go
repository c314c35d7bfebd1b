// Package oauth exchanges refresh tokens at provider token endpoints.
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/voxlane/actions/internal/authstate"
	"github.com/voxlane/actions/internal/tool"
)

// Endpoint describes one provider's token endpoint.
type Endpoint struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
}

// Refresher performs refresh_token grants against per-tool endpoints.
type Refresher struct {
	http      *http.Client
	endpoints map[string]Endpoint
	logger    *zap.Logger
}

// NewRefresher builds a Refresher. The endpoints map is keyed by tool name.
func NewRefresher(endpoints map[string]Endpoint, logger *zap.Logger) *Refresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Refresher{
		http:      &http.Client{Timeout: 10 * time.Second},
		endpoints: endpoints,
		logger:    logger,
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// Refresh exchanges the stored refresh_token for fresh credentials.
func (r *Refresher) Refresh(ctx context.Context, toolName string, secrets map[string]string) (authstate.Credentials, error) {
	ep, ok := r.endpoints[toolName]
	if !ok {
		return authstate.Credentials{}, fmt.Errorf("no token endpoint configured for tool %q", toolName)
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", secrets["refresh_token"])
	form.Set("client_id", ep.ClientID)
	form.Set("client_secret", ep.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return authstate.Credentials{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.http.Do(req)
	if err != nil {
		return authstate.Credentials{}, &tool.ProviderError{Provider: toolName, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
		// invalid_grant and friends: the refresh token itself is no good.
		return authstate.Credentials{}, &tool.ProviderError{
			Provider:     toolName,
			StatusCode:   resp.StatusCode,
			Unauthorized: true,
			Err:          fmt.Errorf("refresh grant rejected"),
		}
	}
	if resp.StatusCode >= 400 {
		return authstate.Credentials{}, &tool.ProviderError{
			Provider:   toolName,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("token endpoint error"),
		}
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return authstate.Credentials{}, &tool.ProviderError{Provider: toolName, Err: fmt.Errorf("malformed token response: %w", err)}
	}
	if tr.AccessToken == "" {
		return authstate.Credentials{}, &tool.ProviderError{Provider: toolName, Err: fmt.Errorf("token response missing access_token")}
	}

	fresh := map[string]string{
		"access_token":  tr.AccessToken,
		"refresh_token": secrets["refresh_token"],
	}
	// Providers may rotate the refresh token on use.
	if tr.RefreshToken != "" {
		fresh["refresh_token"] = tr.RefreshToken
	}

	creds := authstate.Credentials{Secrets: fresh}
	if tr.ExpiresIn > 0 {
		exp := time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
		creds.ExpiresAt = &exp
	}

	r.logger.Debug("refreshed provider token",
		zap.String("tool", toolName),
		zap.Bool("rotated_refresh_token", tr.RefreshToken != ""))
	return creds, nil
}
