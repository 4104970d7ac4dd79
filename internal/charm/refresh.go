package charm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// tokenResponse is the JSON body returned by the token endpoint on success.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope"`
}

// newRefreshFunc builds the RefreshFunc performing the OAuth2 refresh_token
// grant against cfg.TokenURL. The grant parameters travel as a form-encoded
// body; the API key travels in the provider's api_key header.
//
// The call is never retried here: retry policy belongs to the request
// executor, and the credential store enforces a cooldown on failure.
func newRefreshFunc(cfg Config, httpClient *http.Client, logger *Logger) RefreshFunc {
	return func(ctx context.Context) (string, time.Duration, error) {
		form := url.Values{}
		form.Set("grant_type", "refresh_token")
		form.Set("refresh_token", cfg.RefreshToken)
		form.Set("client_id", cfg.ClientID)
		form.Set("client_secret", cfg.ClientSecret)
		form.Set("redirect_uri", cfg.RedirectURI)

		ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.TokenURL, strings.NewReader(form.Encode()))
		if err != nil {
			return "", 0, fmt.Errorf("failed to build token request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("api_key", cfg.APIKey)

		logger.Debug("Requesting access token from %s", cfg.TokenURL)

		resp, err := httpClient.Do(req)
		if err != nil {
			return "", 0, &AuthProviderError{Body: err.Error()}
		}
		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return "", 0, &AuthProviderError{Status: resp.StatusCode, Body: err.Error()}
		}

		if resp.StatusCode != http.StatusOK {
			return "", 0, &AuthProviderError{Status: resp.StatusCode, Body: string(body)}
		}

		var tok tokenResponse
		if err := json.Unmarshal(body, &tok); err != nil {
			return "", 0, &AuthProviderError{Status: resp.StatusCode, Body: fmt.Sprintf("unparseable token response: %v", err)}
		}
		if tok.AccessToken == "" {
			return "", 0, &AuthProviderError{Status: resp.StatusCode, Body: "token response missing access_token"}
		}

		expiresIn := defaultExpiry
		if tok.ExpiresIn > 0 {
			expiresIn = time.Duration(tok.ExpiresIn) * time.Second
		}
		return tok.AccessToken, expiresIn, nil
	}
}
