// Package agentsdk is the agent-side client for the authorization server.
// An agent receives an authorization page URL (or its raw markup), pulls the
// request id out of it, authenticates against the server's API, and polls
// until the request reaches a terminal state.
package agentsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/agentauth/agentauth/pkg/oauthx"
	"github.com/agentauth/agentauth/pkg/retryx"
	"github.com/agentauth/agentauth/pkg/urlx"
)

// DefaultPollInterval is how often WaitForAuthentication checks status.
const DefaultPollInterval = 2 * time.Second

// DefaultWaitTimeout bounds WaitForAuthentication's wall-clock time. It
// matches the server's authorization request TTL.
const DefaultWaitTimeout = 10 * time.Minute

// Request id extraction patterns, tried in order. The structured object
// literal the authorize page emits is preferred; the later patterns are
// fallbacks for pages that embed the id some other way.
var (
	objectLiteralPattern = regexp.MustCompile(`window\.authRequest\s*=\s*\{[^}]*request_id\s*:\s*['"]([A-Za-z0-9_-]+)['"]`)
	bareTokenPattern     = regexp.MustCompile(`request_id\s*[:=]\s*['"]([A-Za-z0-9_-]+)['"]`)
	scriptTagPattern     = regexp.MustCompile(`(?s)<script[^>]*>(.*?)</script>`)
	looseTokenPattern    = regexp.MustCompile(`["']?request_id["']?\s*[:=]\s*["']([A-Za-z0-9_-]+)["']`)
)

// Config configures an Agent. AgentID and AgentSecret are required.
type Config struct {
	AgentID     string
	AgentSecret string
	// Model identifies which model is acting, reported to the server and
	// bound to the issued tokens.
	Model string
	// AllowedHosts widens SSRF validation beyond localhost and HTTPS
	// public hosts.
	AllowedHosts []string
	// Retry tunes the backoff around network calls. Zero value means the
	// retryx defaults.
	Retry      retryx.Options
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Agent drives the out-of-band authentication side of the authorization
// flow.
type Agent struct {
	agentID      string
	agentSecret  string
	model        string
	allowedHosts []string
	retry        retryx.Options
	httpClient   *http.Client
	logger       *slog.Logger
}

// New validates the config and returns an Agent.
func New(cfg Config) (*Agent, error) {
	if cfg.AgentID == "" {
		return nil, &ValidationError{Message: "agent id is required"}
	}
	if cfg.AgentSecret == "" {
		return nil, &ValidationError{Message: "agent secret is required"}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Agent{
		agentID:      cfg.AgentID,
		agentSecret:  cfg.AgentSecret,
		model:        cfg.Model,
		allowedHosts: cfg.AllowedHosts,
		retry:        cfg.Retry,
		httpClient:   httpClient,
		logger:       logger,
	}, nil
}

// ExtractRequestID pulls the authorization request id out of an
// authorization page. The argument is either the page URL, which is
// validated and fetched, or the page markup itself. Patterns are tried in
// order and the first match wins.
func (a *Agent) ExtractRequestID(ctx context.Context, urlOrMarkup string) (string, error) {
	markup := urlOrMarkup
	if strings.HasPrefix(urlOrMarkup, "http://") || strings.HasPrefix(urlOrMarkup, "https://") {
		fetched, err := a.fetchPage(ctx, urlOrMarkup)
		if err != nil {
			return "", err
		}
		markup = fetched
	}

	if m := objectLiteralPattern.FindStringSubmatch(markup); m != nil {
		return m[1], nil
	}
	if m := bareTokenPattern.FindStringSubmatch(markup); m != nil {
		return m[1], nil
	}
	for _, script := range scriptTagPattern.FindAllStringSubmatch(markup, -1) {
		if m := looseTokenPattern.FindStringSubmatch(script[1]); m != nil {
			return m[1], nil
		}
	}

	return "", &ValidationError{Message: "no request_id found in authorization page"}
}

// FetchSession reads the authorization session directly from the server's
// JSON endpoint, avoiding markup scraping entirely.
func (a *Agent) FetchSession(ctx context.Context, authorizationURL, requestID string) (*oauthx.SessionResponse, error) {
	base, err := a.serverBase(authorizationURL)
	if err != nil {
		return nil, err
	}

	endpoint := base + "/api/authorize-session?request_id=" + url.QueryEscape(requestID)
	var session oauthx.SessionResponse
	if err := a.getJSON(ctx, endpoint, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Authenticate presents the agent's credentials for the given request.
// Transport and HTTP failures are folded into the returned response with
// Success == false rather than returned as an error, so callers branch on
// the response alone.
func (a *Agent) Authenticate(ctx context.Context, authorizationURL, requestID string) *oauthx.AgentAuthResponse {
	return a.authCall(ctx, authorizationURL, "/api/agent/authenticate", map[string]string{
		"request_id":   requestID,
		"agent_id":     a.agentID,
		"agent_secret": a.agentSecret,
		"model":        a.model,
	})
}

// VerifyTwoFactor submits a verification code for a request that required
// 2FA. Failures are folded into the response the same way Authenticate does.
func (a *Agent) VerifyTwoFactor(ctx context.Context, authorizationURL, requestID, code string) *oauthx.AgentAuthResponse {
	return a.authCall(ctx, authorizationURL, "/api/agent/verify-2fa", map[string]string{
		"request_id": requestID,
		"code":       code,
		"model":      a.model,
	})
}

// CheckStatus reads the request's current status. Unlike Authenticate it
// returns transport failures as errors; polling callers are expected to
// handle them.
func (a *Agent) CheckStatus(ctx context.Context, authorizationURL, requestID string) (*oauthx.StatusResponse, error) {
	base, err := a.serverBase(authorizationURL)
	if err != nil {
		return nil, err
	}

	endpoint := base + "/api/check-status?request_id=" + url.QueryEscape(requestID)
	var status oauthx.StatusResponse
	if err := a.getJSON(ctx, endpoint, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// WaitForAuthentication polls CheckStatus until the request reaches a
// terminal state or timeout elapses. Every poll result is handed to
// onUpdate, when set, before the terminal check. Statuses authenticated and
// completed both resolve; error and expired reject.
func (a *Agent) WaitForAuthentication(ctx context.Context, authorizationURL, requestID string, pollInterval, timeout time.Duration, onUpdate func(*oauthx.StatusResponse)) (*oauthx.StatusResponse, error) {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	deadline := time.Now().Add(timeout)

	for {
		status, err := a.CheckStatus(ctx, authorizationURL, requestID)
		if err != nil {
			return nil, err
		}
		if onUpdate != nil {
			onUpdate(status)
		}

		switch status.Status {
		case "authenticated", "completed":
			return status, nil
		case "error":
			return nil, &ValidationError{Message: fmt.Sprintf("authorization request failed: %s", status.Error)}
		case "expired":
			return nil, &ValidationError{Message: "authorization request expired"}
		}

		if time.Now().After(deadline) {
			return nil, &TimeoutError{Message: fmt.Sprintf("authentication not completed within %s", timeout)}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// CompleteAuthenticationFlow runs the whole agent side in one call: extract
// the request id from the page, authenticate, and wait for a terminal
// status. Requests that come back requiring 2FA are returned as an error
// since the verification code arrives out of band.
func (a *Agent) CompleteAuthenticationFlow(ctx context.Context, authorizationURL string, pollInterval, timeout time.Duration, onUpdate func(*oauthx.StatusResponse)) (*oauthx.StatusResponse, error) {
	requestID, err := a.ExtractRequestID(ctx, authorizationURL)
	if err != nil {
		return nil, err
	}

	resp := a.Authenticate(ctx, authorizationURL, requestID)
	if resp.RequiresTwoFactor {
		return nil, &ValidationError{Message: "request requires two-factor verification"}
	}
	if !resp.Success {
		return nil, &ValidationError{Message: fmt.Sprintf("authentication failed: %s: %s", resp.ErrorCode, resp.ErrorDescription)}
	}

	return a.WaitForAuthentication(ctx, authorizationURL, requestID, pollInterval, timeout, onUpdate)
}

// authCall POSTs a JSON body and folds every failure mode into the
// response shape.
func (a *Agent) authCall(ctx context.Context, authorizationURL, path string, body map[string]string) *oauthx.AgentAuthResponse {
	base, err := a.serverBase(authorizationURL)
	if err != nil {
		return &oauthx.AgentAuthResponse{
			Success:          false,
			ErrorCode:        "invalid_request",
			ErrorDescription: err.Error(),
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return &oauthx.AgentAuthResponse{
			Success:          false,
			ErrorCode:        "invalid_request",
			ErrorDescription: err.Error(),
		}
	}

	resp, err := retryx.Do(ctx, a.retry, func(ctx context.Context) (*oauthx.AgentAuthResponse, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		httpResp, err := a.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer httpResp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
		if err != nil {
			return nil, err
		}

		var out oauthx.AgentAuthResponse
		if jsonErr := json.Unmarshal(data, &out); jsonErr == nil && (out.Success || out.ErrorCode != "" || out.RequiresTwoFactor) {
			// The server answered in the expected shape; an
			// application-level rejection is final regardless of
			// the HTTP status.
			return &out, nil
		}
		if httpResp.StatusCode >= 300 {
			return nil, &retryx.HTTPStatusError{StatusCode: httpResp.StatusCode, Body: string(data)}
		}
		return &out, nil
	})
	if err != nil {
		a.logger.Warn("agent auth call failed", "path", path, "error", err)
		return &oauthx.AgentAuthResponse{
			Success:          false,
			ErrorCode:        "network_error",
			ErrorDescription: err.Error(),
		}
	}
	return resp
}

// fetchPage GETs an authorization page with retry and returns its markup.
func (a *Agent) fetchPage(ctx context.Context, pageURL string) (string, error) {
	if _, err := urlx.ValidateServerURL(pageURL, a.allowedHosts); err != nil {
		return "", &SecurityError{Message: err.Error()}
	}

	markup, err := retryx.Do(ctx, a.retry, func(ctx context.Context) (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return "", err
		}

		resp, err := a.httpClient.Do(req)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return "", err
		}
		if resp.StatusCode >= 300 {
			return "", &retryx.HTTPStatusError{StatusCode: resp.StatusCode, Body: string(data)}
		}
		return string(data), nil
	})
	if err != nil {
		return "", &NetworkError{Message: "fetching authorization page", Err: err}
	}
	return markup, nil
}

// getJSON GETs a JSON endpoint with retry and decodes into out.
func (a *Agent) getJSON(ctx context.Context, endpoint string, out any) error {
	body, err := retryx.Do(ctx, a.retry, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}

		resp, err := a.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 300 {
			return nil, &retryx.HTTPStatusError{StatusCode: resp.StatusCode, Body: string(data)}
		}
		return data, nil
	})
	if err != nil {
		return &NetworkError{Message: "request failed", Err: err}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &ValidationError{Message: fmt.Sprintf("decoding response: %v", err)}
	}
	return nil
}

// serverBase derives and validates the authorization server's base URL from
// an authorization page URL.
func (a *Agent) serverBase(authorizationURL string) (string, error) {
	parsed, err := urlx.ValidateServerURL(authorizationURL, a.allowedHosts)
	if err != nil {
		return "", &SecurityError{Message: err.Error()}
	}
	return parsed.Scheme + "://" + parsed.Host, nil
}
