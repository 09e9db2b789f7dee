// Package clientsdk is the website-side SDK: it builds the authorization
// URL with PKCE, validates the callback, and talks to the token endpoints
// server-side.
package clientsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/agentauth/agentauth/pkg/cryptox"
	"github.com/agentauth/agentauth/pkg/oauthx"
	"github.com/agentauth/agentauth/pkg/urlx"
)

const (
	defaultHTTPTimeout = 30 * time.Second

	// Verifier length used by SignIn. Longer than the PKCE minimum for
	// headroom; still within the RFC 7636 range.
	signInVerifierLength = 128
)

// Config configures a Client.
type Config struct {
	AuthServerURL string
	ClientID      string
	ClientSecret  string // used only by the server-side token calls
	RedirectURI   string
	Scope         string

	// AllowedHosts optionally pins the auth server to a host allowlist
	// (exact match or subdomain).
	AllowedHosts []string

	// Store persists verifier and state between SignIn and HandleCallback.
	// Defaults to a file-backed store degrading to memory.
	Store Store

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client drives the website side of the authorization flow.
type Client struct {
	cfg    Config
	store  Store
	http   *http.Client
	logger *slog.Logger
}

// New validates the configuration and builds a Client.
func New(cfg Config) (*Client, error) {
	if cfg.ClientID == "" {
		return nil, &ValidationError{Message: "client id is required"}
	}
	if _, err := urlx.ValidateServerURL(cfg.AuthServerURL, cfg.AllowedHosts); err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("auth server url rejected: %v", err)}
	}
	if err := urlx.ValidateRedirectURI(cfg.RedirectURI); err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("redirect uri rejected: %v", err)}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store := cfg.Store
	if store == nil {
		store = defaultStore(cfg.AuthServerURL+"|"+cfg.ClientID+"|"+cfg.RedirectURI, logger)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	return &Client{cfg: cfg, store: store, http: httpClient, logger: logger}, nil
}

// SignIn mints a PKCE pair and a state nonce, persists them, and returns the
// fully-built authorization URL. The built URL is validated once more before
// it is handed out.
func (c *Client) SignIn() (string, error) {
	pkce, err := cryptox.GeneratePKCE(signInVerifierLength)
	if err != nil {
		return "", err
	}
	state, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return "", err
	}

	if err := c.store.Save(SessionData{Verifier: pkce.Verifier, State: state}); err != nil {
		return "", &ValidationError{Message: fmt.Sprintf("could not persist session data: %v", err)}
	}

	q := url.Values{}
	q.Set("client_id", c.cfg.ClientID)
	q.Set("redirect_uri", c.cfg.RedirectURI)
	q.Set("response_type", "code")
	q.Set("state", state)
	q.Set("code_challenge", pkce.Challenge)
	q.Set("code_challenge_method", pkce.Method)
	if c.cfg.Scope != "" {
		q.Set("scope", c.cfg.Scope)
	}

	authURL := strings.TrimRight(c.cfg.AuthServerURL, "/") + "/authorize?" + q.Encode()

	// Re-validate the final URL; composition must not smuggle in a host the
	// config validation never saw.
	if _, err := urlx.ValidateServerURL(authURL, c.cfg.AllowedHosts); err != nil {
		return "", &SecurityError{Message: fmt.Sprintf("built authorization url rejected: %v", err)}
	}
	return authURL, nil
}

// CallbackResult is what HandleCallback returns on success: everything the
// website backend needs to call Exchange.
type CallbackResult struct {
	Code         string
	State        string
	CodeVerifier string
}

// HandleCallback inspects a callback URL's query parameters.
//
// It returns (nil, nil) when no callback data is present, a SecurityError on
// a state mismatch (leaving the stored session untouched as evidence), and a
// ValidationError when the callback looks fine but the local session was
// lost. On success the stored session is cleared; the result is one-shot.
func (c *Client) HandleCallback(callbackURL string) (*CallbackResult, error) {
	parsed, err := url.Parse(callbackURL)
	if err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("callback url unparseable: %v", err)}
	}

	code := parsed.Query().Get("code")
	state := parsed.Query().Get("state")
	if code == "" || state == "" {
		return nil, nil
	}

	session, err := c.store.Load()
	if err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("could not load session data: %v", err)}
	}
	if session == nil || session.Verifier == "" {
		return nil, &ValidationError{Message: "no session data; sign-in was never started or was lost"}
	}

	if session.State != state {
		c.logger.Warn("callback state mismatch", "client_id", c.cfg.ClientID)
		return nil, &SecurityError{Message: "state parameter does not match the stored value"}
	}

	if err := c.store.Clear(); err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("could not clear session data: %v", err)}
	}

	return &CallbackResult{Code: code, State: state, CodeVerifier: session.Verifier}, nil
}

// Exchange swaps an authorization code for tokens. Server-side only: it
// carries the client secret.
func (c *Client) Exchange(ctx context.Context, code, codeVerifier string) (*oauthx.TokenResponse, error) {
	return c.tokenCall(ctx, map[string]string{
		"grant_type":    "authorization_code",
		"code":          code,
		"code_verifier": codeVerifier,
		"redirect_uri":  c.cfg.RedirectURI,
		"client_id":     c.cfg.ClientID,
		"client_secret": c.cfg.ClientSecret,
	})
}

// Refresh swaps a refresh token for a fresh pair. The presented token is
// consumed by the server's rotation.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*oauthx.TokenResponse, error) {
	return c.tokenCall(ctx, map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
		"client_id":     c.cfg.ClientID,
		"client_secret": c.cfg.ClientSecret,
	})
}

// Introspect asks the server whether a token is active.
func (c *Client) Introspect(ctx context.Context, token string) (*oauthx.IntrospectionResponse, error) {
	body, err := c.post(ctx, "/introspect", map[string]string{"token": token})
	if err != nil {
		return nil, err
	}

	var result oauthx.IntrospectionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &NetworkError{Message: "introspection response unparseable", Err: err}
	}
	return &result, nil
}

// Revoke invalidates a token. Idempotent server-side.
func (c *Client) Revoke(ctx context.Context, token string) error {
	_, err := c.post(ctx, "/revoke", map[string]string{"token": token})
	return err
}

func (c *Client) tokenCall(ctx context.Context, fields map[string]string) (*oauthx.TokenResponse, error) {
	body, err := c.post(ctx, "/token", fields)
	if err != nil {
		return nil, err
	}

	var result oauthx.TokenResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &NetworkError{Message: "token response unparseable", Err: err}
	}
	return &result, nil
}

// post sends a JSON body and returns the response body. Non-2xx responses
// carrying an OAuth error body surface as *oauthx.OAuth2Error.
func (c *Client) post(ctx context.Context, path string, fields map[string]string) ([]byte, error) {
	payload, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}

	endpoint := strings.TrimRight(c.cfg.AuthServerURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Message: "request to " + path + " failed", Err: err}
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &NetworkError{Message: "reading response from " + path + " failed", Err: err}
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		var oauthErr oauthx.OAuth2Error
		if json.Unmarshal(body, &oauthErr) == nil && oauthErr.Code != "" {
			oauthErr.StatusCode = res.StatusCode
			return nil, &oauthErr
		}
		return nil, &NetworkError{Message: fmt.Sprintf("%s returned status %d", path, res.StatusCode)}
	}
	return body, nil
}
