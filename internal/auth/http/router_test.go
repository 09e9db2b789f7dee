package http_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	stdhttp "net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	authhttp "github.com/agentauth/agentauth/internal/auth/http"
	"github.com/agentauth/agentauth/internal/auth/service"
	"github.com/agentauth/agentauth/internal/auth/store/drivers/sqlite"
	"github.com/agentauth/agentauth/pkg/cryptox"
	"github.com/agentauth/agentauth/pkg/jwtx"
	"github.com/agentauth/agentauth/pkg/oauthx"
)

const (
	testIssuer      = "https://auth.example.com"
	testRedirectURI = "https://shop.example.com/callback"
	testAdminToken  = "admin-test-token"
)

var requestIDPattern = regexp.MustCompile(`request_id: '([A-Za-z0-9_-]+)'`)

type serverEnv struct {
	srv *httptest.Server

	clientID     string
	clientSecret string
	agentID      string
	agentSecret  string
}

func newServerEnv(t *testing.T) *serverEnv {
	t.Helper()
	ctx := context.Background()

	st, err := sqlite.NewStore(sqlite.DSN(filepath.Join(t.TempDir(), "auth.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	signer, err := jwtx.NewHS256([]byte("0123456789abcdef0123456789abcdef"), testIssuer)
	require.NoError(t, err)

	logger := slog.New(slog.DiscardHandler)
	router := authhttp.NewRouter(testIssuer, "test", st, logger)
	router.AdminToken = testAdminToken
	router.AuthorizeService = &service.AuthorizeService{Store: st, RequestTTL: 10 * time.Minute}
	router.AgentService = &service.AgentService{Store: st, Mailer: &service.LogMailer{Logger: logger}}
	router.TokenService = &service.TokenService{Signer: signer, Store: st, AccessTTL: time.Hour, RefreshTTL: 30 * 24 * time.Hour}
	router.AdminService = &service.AdminService{Store: st}
	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	admin := &service.AdminService{Store: st}
	client, clientSecret, err := admin.CreateClient(ctx, service.CreateClientParams{
		Name:         "Example Shop",
		RedirectURIs: []string{testRedirectURI},
	})
	require.NoError(t, err)
	agent, agentSecret, err := admin.CreateAgent(ctx, service.CreateAgentParams{
		OwnerEmail: "owner@example.com",
	})
	require.NoError(t, err)

	return &serverEnv{
		srv:          srv,
		clientID:     client.ClientID,
		clientSecret: clientSecret,
		agentID:      agent.AgentID,
		agentSecret:  agentSecret,
	}
}

func (e *serverEnv) authorizeURL(pkce *cryptox.PKCEChallenge, state string) string {
	q := url.Values{}
	q.Set("client_id", e.clientID)
	q.Set("redirect_uri", testRedirectURI)
	q.Set("response_type", "code")
	q.Set("state", state)
	q.Set("code_challenge", pkce.Challenge)
	q.Set("code_challenge_method", pkce.Method)
	q.Set("scope", "profile purchases")
	return e.srv.URL + "/authorize?" + q.Encode()
}

func (e *serverEnv) postJSON(t *testing.T, path string, body any) (*stdhttp.Response, []byte) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	res, err := stdhttp.Post(e.srv.URL+path, "application/json", strings.NewReader(string(payload)))
	require.NoError(t, err)
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	res.Body.Close()
	return res, data
}

func (e *serverEnv) postForm(t *testing.T, path string, form url.Values) (*stdhttp.Response, []byte) {
	t.Helper()
	res, err := stdhttp.PostForm(e.srv.URL+path, form)
	require.NoError(t, err)
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	res.Body.Close()
	return res, data
}

func (e *serverEnv) get(t *testing.T, path string) (*stdhttp.Response, []byte) {
	t.Helper()
	res, err := stdhttp.Get(e.srv.URL + path)
	require.NoError(t, err)
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	res.Body.Close()
	return res, data
}

func TestAuthorizePage(t *testing.T) {
	t.Parallel()

	env := newServerEnv(t)
	pkce, err := cryptox.GeneratePKCE(64)
	require.NoError(t, err)

	res, err := stdhttp.Get(env.authorizeURL(pkce, "st-1"))
	require.NoError(t, err)
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	res.Body.Close()

	require.Equal(t, stdhttp.StatusOK, res.StatusCode)
	require.Contains(t, res.Header.Get("Content-Type"), "text/html")
	require.Contains(t, string(body), "window.authRequest")
	require.Contains(t, string(body), "Example Shop")
	require.Regexp(t, requestIDPattern, string(body))
}

func TestAuthorizePageRejectsUnknownClient(t *testing.T) {
	t.Parallel()

	env := newServerEnv(t)
	res, body := env.get(t, "/authorize?client_id=nope&redirect_uri="+url.QueryEscape(testRedirectURI)+"&response_type=code")
	require.Equal(t, stdhttp.StatusBadRequest, res.StatusCode)
	require.Contains(t, res.Header.Get("Content-Type"), "text/html")
	require.NotContains(t, string(body), "window.authRequest")
}

func TestFullFlowOverHTTP(t *testing.T) {
	t.Parallel()

	env := newServerEnv(t)
	pkce, err := cryptox.GeneratePKCE(64)
	require.NoError(t, err)

	// Website redirects the browser to the authorize page.
	res, page := env.get(t, strings.TrimPrefix(env.authorizeURL(pkce, "st-42"), env.srv.URL))
	require.Equal(t, stdhttp.StatusOK, res.StatusCode)
	m := requestIDPattern.FindStringSubmatch(string(page))
	require.NotNil(t, m)
	requestID := m[1]

	// The session is visible through the JSON endpoint too.
	res, body := env.get(t, "/api/authorize-session?request_id="+requestID)
	require.Equal(t, stdhttp.StatusOK, res.StatusCode)
	var session oauthx.SessionResponse
	require.NoError(t, json.Unmarshal(body, &session))
	require.Equal(t, "pending", session.Status)
	require.Equal(t, "Example Shop", session.ClientName)

	// Polling before the agent acts reports pending.
	res, body = env.get(t, "/api/check-status?request_id="+requestID)
	require.Equal(t, stdhttp.StatusOK, res.StatusCode)
	var status oauthx.StatusResponse
	require.NoError(t, json.Unmarshal(body, &status))
	require.Equal(t, "pending", status.Status)

	// Agent authenticates out of band.
	res, body = env.postJSON(t, "/api/agent/authenticate", map[string]string{
		"request_id":   requestID,
		"agent_id":     env.agentID,
		"agent_secret": env.agentSecret,
		"model":        "gpt-test",
	})
	require.Equal(t, stdhttp.StatusOK, res.StatusCode)
	var authResp oauthx.AgentAuthResponse
	require.NoError(t, json.Unmarshal(body, &authResp))
	require.True(t, authResp.Success)

	// The next poll releases the code.
	res, body = env.get(t, "/api/check-status?request_id="+requestID)
	require.Equal(t, stdhttp.StatusOK, res.StatusCode)
	require.NoError(t, json.Unmarshal(body, &status))
	require.Contains(t, []string{"authenticated", "completed"}, status.Status)
	require.NotEmpty(t, status.Code)
	require.Equal(t, testRedirectURI, status.RedirectURI)
	require.Equal(t, "st-42", status.State)

	// Website backend exchanges the code, form-encoded per RFC 6749.
	res, body = env.postForm(t, "/token", url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {status.Code},
		"redirect_uri":  {testRedirectURI},
		"client_id":     {env.clientID},
		"client_secret": {env.clientSecret},
		"code_verifier": {pkce.Verifier},
	})
	require.Equal(t, stdhttp.StatusOK, res.StatusCode)
	var tokens oauthx.TokenResponse
	require.NoError(t, json.Unmarshal(body, &tokens))
	require.NotEmpty(t, tokens.AccessToken)
	require.NotEmpty(t, tokens.RefreshToken)
	require.Equal(t, "Bearer", tokens.TokenType)
	require.Equal(t, 3600, tokens.ExpiresIn)

	// Replaying the code must fail.
	res, body = env.postForm(t, "/token", url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {status.Code},
		"redirect_uri":  {testRedirectURI},
		"client_id":     {env.clientID},
		"client_secret": {env.clientSecret},
		"code_verifier": {pkce.Verifier},
	})
	require.Equal(t, stdhttp.StatusBadRequest, res.StatusCode)
	var oauthErr map[string]string
	require.NoError(t, json.Unmarshal(body, &oauthErr))
	require.Equal(t, "invalid_grant", oauthErr["error"])

	// The issued token introspects as active.
	res, body = env.postForm(t, "/introspect", url.Values{"token": {tokens.AccessToken}})
	require.Equal(t, stdhttp.StatusOK, res.StatusCode)
	var info oauthx.IntrospectionResponse
	require.NoError(t, json.Unmarshal(body, &info))
	require.True(t, info.Active)
	require.Equal(t, env.agentID, info.Subject)
	require.Equal(t, "gpt-test", info.Model)

	// Refresh rotates the pair; JSON bodies are accepted too.
	res, body = env.postJSON(t, "/token", map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": tokens.RefreshToken,
		"client_id":     env.clientID,
		"client_secret": env.clientSecret,
	})
	require.Equal(t, stdhttp.StatusOK, res.StatusCode)
	var refreshed oauthx.TokenResponse
	require.NoError(t, json.Unmarshal(body, &refreshed))
	require.NotEmpty(t, refreshed.AccessToken)
	require.NotEqual(t, tokens.RefreshToken, refreshed.RefreshToken)

	// The consumed refresh token is dead.
	res, body = env.postJSON(t, "/token", map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": tokens.RefreshToken,
		"client_id":     env.clientID,
		"client_secret": env.clientSecret,
	})
	require.Equal(t, stdhttp.StatusBadRequest, res.StatusCode)
	require.NoError(t, json.Unmarshal(body, &oauthErr))
	require.Equal(t, "invalid_grant", oauthErr["error"])

	// Revocation is idempotent and answers 204.
	res, _ = env.postForm(t, "/revoke", url.Values{"token": {refreshed.AccessToken}})
	require.Equal(t, stdhttp.StatusNoContent, res.StatusCode)
	res, _ = env.postForm(t, "/revoke", url.Values{"token": {refreshed.AccessToken}})
	require.Equal(t, stdhttp.StatusNoContent, res.StatusCode)

	res, body = env.postForm(t, "/introspect", url.Values{"token": {refreshed.AccessToken}})
	require.Equal(t, stdhttp.StatusOK, res.StatusCode)
	require.NoError(t, json.Unmarshal(body, &info))
	require.False(t, info.Active)
}

func TestTokenEndpointErrors(t *testing.T) {
	t.Parallel()

	env := newServerEnv(t)

	t.Run("unsupported grant type", func(t *testing.T) {
		res, body := env.postForm(t, "/token", url.Values{"grant_type": {"password"}})
		require.Equal(t, stdhttp.StatusBadRequest, res.StatusCode)
		var oauthErr map[string]string
		require.NoError(t, json.Unmarshal(body, &oauthErr))
		require.Equal(t, "unsupported_grant_type", oauthErr["error"])
	})

	t.Run("missing parameters", func(t *testing.T) {
		res, body := env.postForm(t, "/token", url.Values{"grant_type": {"authorization_code"}})
		require.Equal(t, stdhttp.StatusBadRequest, res.StatusCode)
		var oauthErr map[string]string
		require.NoError(t, json.Unmarshal(body, &oauthErr))
		require.Equal(t, "invalid_request", oauthErr["error"])
	})

	t.Run("wrong client secret", func(t *testing.T) {
		res, body := env.postForm(t, "/token", url.Values{
			"grant_type":    {"authorization_code"},
			"code":          {"whatever"},
			"redirect_uri":  {testRedirectURI},
			"client_id":     {env.clientID},
			"client_secret": {"wrong"},
			"code_verifier": {"also-wrong-but-unreached"},
		})
		require.Equal(t, stdhttp.StatusUnauthorized, res.StatusCode)
		var oauthErr map[string]string
		require.NoError(t, json.Unmarshal(body, &oauthErr))
		require.Equal(t, "invalid_client", oauthErr["error"])
	})

	t.Run("rejects unknown content type", func(t *testing.T) {
		res, err := stdhttp.Post(env.srv.URL+"/token", "text/plain", strings.NewReader("grant_type=authorization_code"))
		require.NoError(t, err)
		defer res.Body.Close()
		require.Equal(t, stdhttp.StatusBadRequest, res.StatusCode)
	})
}

func TestAgentEndpointErrorMapping(t *testing.T) {
	t.Parallel()

	env := newServerEnv(t)

	t.Run("unknown request", func(t *testing.T) {
		res, body := env.postJSON(t, "/api/agent/authenticate", map[string]string{
			"request_id":   "does-not-exist",
			"agent_id":     env.agentID,
			"agent_secret": env.agentSecret,
		})
		require.Equal(t, stdhttp.StatusNotFound, res.StatusCode)
		var resp oauthx.AgentAuthResponse
		require.NoError(t, json.Unmarshal(body, &resp))
		require.False(t, resp.Success)
		require.Equal(t, "request_not_found", resp.ErrorCode)
	})

	t.Run("wrong credentials", func(t *testing.T) {
		pkce, err := cryptox.GeneratePKCE(64)
		require.NoError(t, err)
		_, page := env.get(t, strings.TrimPrefix(env.authorizeURL(pkce, "st"), env.srv.URL))
		m := requestIDPattern.FindStringSubmatch(string(page))
		require.NotNil(t, m)

		res, body := env.postJSON(t, "/api/agent/authenticate", map[string]string{
			"request_id":   m[1],
			"agent_id":     env.agentID,
			"agent_secret": "wrong",
		})
		require.Equal(t, stdhttp.StatusUnauthorized, res.StatusCode)
		var resp oauthx.AgentAuthResponse
		require.NoError(t, json.Unmarshal(body, &resp))
		require.Equal(t, "invalid_credentials", resp.ErrorCode)
	})
}

func TestCheckStatusUnknownRequest(t *testing.T) {
	t.Parallel()

	env := newServerEnv(t)
	res, _ := env.get(t, "/api/check-status?request_id=missing")
	require.Equal(t, stdhttp.StatusNotFound, res.StatusCode)
}

func TestDiscoveryAndJWKS(t *testing.T) {
	t.Parallel()

	env := newServerEnv(t)

	res, body := env.get(t, "/.well-known/oauth-authorization-server")
	require.Equal(t, stdhttp.StatusOK, res.StatusCode)
	var doc oauthx.DiscoveryDocument
	require.NoError(t, json.Unmarshal(body, &doc))
	require.Equal(t, testIssuer, doc.Issuer)
	require.Equal(t, testIssuer+"/token", doc.TokenEndpoint)
	require.Equal(t, []string{"S256"}, doc.CodeChallengeMethodsSupported)

	res, body = env.get(t, "/.well-known/jwks.json")
	require.Equal(t, stdhttp.StatusOK, res.StatusCode)
	var jwks map[string][]any
	require.NoError(t, json.Unmarshal(body, &jwks))
	require.Empty(t, jwks["keys"])
}

func TestAdminEndpoints(t *testing.T) {
	t.Parallel()

	env := newServerEnv(t)

	t.Run("rejects missing or wrong token", func(t *testing.T) {
		res, err := stdhttp.Get(env.srv.URL + "/api/admin/agents")
		require.NoError(t, err)
		res.Body.Close()
		require.Equal(t, stdhttp.StatusUnauthorized, res.StatusCode)

		req, err := stdhttp.NewRequest(stdhttp.MethodGet, env.srv.URL+"/api/admin/agents", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer wrong")
		res, err = stdhttp.DefaultClient.Do(req)
		require.NoError(t, err)
		res.Body.Close()
		require.Equal(t, stdhttp.StatusUnauthorized, res.StatusCode)
	})

	t.Run("creates and lists clients", func(t *testing.T) {
		payload := `{"name":"Another Shop","redirect_uris":["https://another.example/cb"]}`
		req, err := stdhttp.NewRequest(stdhttp.MethodPost, env.srv.URL+"/api/admin/clients", strings.NewReader(payload))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+testAdminToken)
		req.Header.Set("Content-Type", "application/json")

		res, err := stdhttp.DefaultClient.Do(req)
		require.NoError(t, err)
		body, err := io.ReadAll(res.Body)
		require.NoError(t, err)
		res.Body.Close()
		require.Equal(t, stdhttp.StatusCreated, res.StatusCode)

		var created struct {
			ClientID     string `json:"client_id"`
			ClientSecret string `json:"client_secret"`
		}
		require.NoError(t, json.Unmarshal(body, &created))
		require.NotEmpty(t, created.ClientID)
		require.NotEmpty(t, created.ClientSecret)

		req, err = stdhttp.NewRequest(stdhttp.MethodGet, env.srv.URL+"/api/admin/clients", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+testAdminToken)
		res, err = stdhttp.DefaultClient.Do(req)
		require.NoError(t, err)
		body, err = io.ReadAll(res.Body)
		require.NoError(t, err)
		res.Body.Close()
		require.Equal(t, stdhttp.StatusOK, res.StatusCode)
		require.Contains(t, string(body), created.ClientID)
	})
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	env := newServerEnv(t)

	res, body := env.get(t, "/livez")
	require.Equal(t, stdhttp.StatusOK, res.StatusCode)
	require.Contains(t, string(body), `"ok"`)

	res, _ = env.get(t, "/readyz")
	require.Equal(t, stdhttp.StatusOK, res.StatusCode)
}
