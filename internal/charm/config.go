package charm

import (
	"fmt"
	"net/url"
	"os"
	"time"
)

// Default configuration values.
const (
	// defaultTimeout bounds each outbound HTTP call, including the token
	// refresh call. It matches the upstream API's documented slow paths.
	defaultTimeout = 30 * time.Second

	// defaultExpiry is assumed when the token endpoint omits expires_in.
	defaultExpiry = time.Hour

	// expirySkew refreshes tokens slightly before their reported expiry
	// so in-flight requests don't race the provider-side cutoff.
	expirySkew = 5 * time.Minute
)

// Config holds the credentials and endpoints for the CharmHealth API.
type Config struct {
	// BaseURL is the root of the CharmHealth REST API.
	BaseURL string

	// APIKey is sent on every request (including token refresh) via the
	// api_key header.
	APIKey string

	// RefreshToken is the long-lived, externally provisioned credential
	// used solely to obtain access tokens.
	RefreshToken string

	// ClientID and ClientSecret identify the OAuth client.
	ClientID     string
	ClientSecret string

	// RedirectURI is required by the provider on the refresh_token grant.
	RedirectURI string

	// TokenURL is the identity provider's token endpoint.
	TokenURL string

	// Timeout applies per outbound HTTP call, not per tool invocation.
	Timeout time.Duration
}

// FromEnv builds a Config from the CHARMHEALTH_* environment
// variables. Flag values already present on the receiver are kept.
func (c Config) FromEnv() Config {
	fill := func(dst *string, key string) {
		if *dst == "" {
			*dst = os.Getenv(key)
		}
	}
	fill(&c.BaseURL, "CHARMHEALTH_BASE_URL")
	fill(&c.APIKey, "CHARMHEALTH_API_KEY")
	fill(&c.RefreshToken, "CHARMHEALTH_REFRESH_TOKEN")
	fill(&c.ClientID, "CHARMHEALTH_CLIENT_ID")
	fill(&c.ClientSecret, "CHARMHEALTH_CLIENT_SECRET")
	fill(&c.RedirectURI, "CHARMHEALTH_REDIRECT_URI")
	fill(&c.TokenURL, "CHARMHEALTH_TOKEN_URL")
	return c
}

// WithDefaults returns the config with unset optional values defaulted.
func (c Config) WithDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	return c
}

// Validate checks that all required credential material is present and the
// endpoints are parseable URLs.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("missing CharmHealth base URL")
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if c.TokenURL == "" {
		return fmt.Errorf("missing token endpoint URL")
	}
	if _, err := url.Parse(c.TokenURL); err != nil {
		return fmt.Errorf("invalid token URL: %w", err)
	}
	if c.APIKey == "" || c.RefreshToken == "" || c.ClientID == "" || c.ClientSecret == "" {
		return fmt.Errorf("missing required CharmHealth API credentials")
	}
	return nil
}
