// ABOUTME: OIDC identity token acquisition for keyless signing
// ABOUTME: Resolves the signing environment once and fetches the matching short-lived token
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"
)

// DefaultTokenAudience is the audience requested for CI-issued identity
// tokens; Fulcio expects "sigstore".
const DefaultTokenAudience = "sigstore"

// SigningEnvironment identifies which identity-token flow applies. The set
// is closed; callers should switch exhaustively over it.
type SigningEnvironment string

const (
	EnvironmentGitHub SigningEnvironment = "github"
	EnvironmentGitLab SigningEnvironment = "gitlab"
	EnvironmentLocal  SigningEnvironment = "local"
)

// DetectSigningEnvironment resolves the token flow from environment signals:
// the GitHub Actions token-request endpoint wins, then the GitLab job token,
// else local.
func DetectSigningEnvironment() SigningEnvironment {
	if os.Getenv("ACTIONS_ID_TOKEN_REQUEST_URL") != "" {
		return EnvironmentGitHub
	}
	if os.Getenv("CI_JOB_JWT") != "" {
		return EnvironmentGitLab
	}
	return EnvironmentLocal
}

// TokenOpts configures identity token acquisition
type TokenOpts struct {
	// Audience requested for CI-issued tokens (default: "sigstore")
	Audience string

	// RequestTimeout bounds the token endpoint call
	RequestTimeout time.Duration

	// HTTPClient override, primarily for tests
	HTTPClient *http.Client
}

// DefaultTokenOpts returns the default token acquisition options
func DefaultTokenOpts() *TokenOpts {
	return &TokenOpts{
		Audience:       DefaultTokenAudience,
		RequestTimeout: 30 * time.Second,
	}
}

// WithAudience sets the requested token audience
func (opts *TokenOpts) WithAudience(audience string) *TokenOpts {
	opts.Audience = audience
	return opts
}

// WithRequestTimeout bounds the token endpoint request
func (opts *TokenOpts) WithRequestTimeout(timeout time.Duration) *TokenOpts {
	opts.RequestTimeout = timeout
	return opts
}

// WithHTTPClient overrides the HTTP client used for token requests
func (opts *TokenOpts) WithHTTPClient(client *http.Client) *TokenOpts {
	opts.HTTPClient = client
	return opts
}

// TokenClient acquires short-lived identity tokens for keyless signing
type TokenClient struct {
	opts *TokenOpts
}

// NewTokenClient creates a token client with the given options
func NewTokenClient(opts *TokenOpts) *TokenClient {
	if opts == nil {
		opts = DefaultTokenOpts()
	}
	return &TokenClient{opts: opts}
}

// IdentityToken acquires an identity token for the given environment.
// GitHub queries the runner's token endpoint; GitLab returns the job token
// verbatim; local returns the operator-stored static token when one exists
// and otherwise an empty token, deferring to the signing delegate's own
// interactive flow. Network and auth failures propagate - there is no
// silent fallback between environments.
func (c *TokenClient) IdentityToken(ctx context.Context, env SigningEnvironment) (string, error) {
	switch env {
	case EnvironmentGitHub:
		return c.gitHubToken(ctx)
	case EnvironmentGitLab:
		token := os.Getenv("CI_JOB_JWT")
		if token == "" {
			return "", fmt.Errorf("CI_JOB_JWT is not set")
		}
		return token, nil
	case EnvironmentLocal:
		if cred, err := GetStoredCredential(); err == nil && cred.Token != "" {
			return cred.Token, nil
		}
		// No stored token: the interactive flow is delegated downstream
		return "", nil
	default:
		return "", fmt.Errorf("unknown signing environment: %s", env)
	}
}

// gitHubToken requests an OIDC token from the GitHub Actions runner endpoint
func (c *TokenClient) gitHubToken(ctx context.Context) (string, error) {
	requestURL := os.Getenv("ACTIONS_ID_TOKEN_REQUEST_URL")
	requestToken := os.Getenv("ACTIONS_ID_TOKEN_REQUEST_TOKEN")
	if requestURL == "" || requestToken == "" {
		return "", fmt.Errorf("GitHub Actions token request environment is incomplete")
	}

	endpoint, err := url.Parse(requestURL)
	if err != nil {
		return "", fmt.Errorf("invalid token request URL: %w", err)
	}
	query := endpoint.Query()
	query.Set("audience", c.opts.Audience)
	endpoint.RawQuery = query.Encode()

	reqCtx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+requestToken)
	req.Header.Set("Accept", "application/json")

	client := c.opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: c.opts.RequestTimeout}
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if payload.Value == "" {
		return "", fmt.Errorf("token endpoint returned an empty token")
	}

	return payload.Value, nil
}
