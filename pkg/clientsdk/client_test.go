package clientsdk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentauth/agentauth/pkg/cryptox"
	"github.com/agentauth/agentauth/pkg/oauthx"
)

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()

	client, err := New(Config{
		AuthServerURL: serverURL,
		ClientID:      "client_shop",
		ClientSecret:  "shop-secret",
		RedirectURI:   "http://localhost:3000/callback",
		Scope:         "read write",
		AllowedHosts:  []string{"127.0.0.1", "auth.example.com"},
		Store:         &MemoryStore{},
	})
	require.NoError(t, err)
	return client
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	t.Run("missing client id", func(t *testing.T) {
		_, err := New(Config{
			AuthServerURL: "https://auth.example.com",
			RedirectURI:   "https://shop.example/cb",
		})
		var validationErr *ValidationError
		require.ErrorAs(t, err, &validationErr)
	})

	t.Run("blocked server host", func(t *testing.T) {
		_, err := New(Config{
			AuthServerURL: "http://169.254.169.254",
			ClientID:      "c",
			RedirectURI:   "https://shop.example/cb",
		})
		var validationErr *ValidationError
		require.ErrorAs(t, err, &validationErr)
	})

	t.Run("insecure redirect uri", func(t *testing.T) {
		_, err := New(Config{
			AuthServerURL: "https://auth.example.com",
			ClientID:      "c",
			RedirectURI:   "http://shop.example/cb",
		})
		var validationErr *ValidationError
		require.ErrorAs(t, err, &validationErr)
	})
}

func TestSignIn(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, "https://auth.example.com")

	authURL, err := client.SignIn()
	require.NoError(t, err)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	require.Equal(t, "auth.example.com", parsed.Host)
	require.Equal(t, "/authorize", parsed.Path)

	q := parsed.Query()
	require.Equal(t, "client_shop", q.Get("client_id"))
	require.Equal(t, "http://localhost:3000/callback", q.Get("redirect_uri"))
	require.Equal(t, "code", q.Get("response_type"))
	require.Equal(t, "S256", q.Get("code_challenge_method"))
	require.Equal(t, "read write", q.Get("scope"))
	require.NotEmpty(t, q.Get("state"))

	// The persisted verifier must reproduce the challenge in the URL.
	session, err := client.store.Load()
	require.NoError(t, err)
	require.NotNil(t, session)
	require.Len(t, session.Verifier, 128)
	require.Equal(t, session.State, q.Get("state"))
	require.Equal(t, cryptox.ComputeChallenge(session.Verifier), q.Get("code_challenge"))
}

func TestSignInStateIsFresh(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, "https://auth.example.com")

	first, err := client.SignIn()
	require.NoError(t, err)
	second, err := client.SignIn()
	require.NoError(t, err)

	firstState := mustQuery(t, first, "state")
	secondState := mustQuery(t, second, "state")
	require.NotEqual(t, firstState, secondState)
}

func TestHandleCallback(t *testing.T) {
	t.Parallel()

	t.Run("no callback data", func(t *testing.T) {
		t.Parallel()

		client := newTestClient(t, "https://auth.example.com")
		result, err := client.HandleCallback("http://localhost:3000/callback")
		require.NoError(t, err)
		require.Nil(t, result)
	})

	t.Run("success clears session", func(t *testing.T) {
		t.Parallel()

		client := newTestClient(t, "https://auth.example.com")
		authURL, err := client.SignIn()
		require.NoError(t, err)
		state := mustQuery(t, authURL, "state")

		result, err := client.HandleCallback("http://localhost:3000/callback?code=abc123&state=" + url.QueryEscape(state))
		require.NoError(t, err)
		require.NotNil(t, result)
		require.Equal(t, "abc123", result.Code)
		require.Equal(t, state, result.State)
		require.Len(t, result.CodeVerifier, 128)

		// One-shot: the session is gone.
		session, err := client.store.Load()
		require.NoError(t, err)
		require.Nil(t, session)
	})

	t.Run("state mismatch keeps session", func(t *testing.T) {
		t.Parallel()

		client := newTestClient(t, "https://auth.example.com")
		_, err := client.SignIn()
		require.NoError(t, err)

		_, err = client.HandleCallback("http://localhost:3000/callback?code=abc123&state=forged")
		var securityErr *SecurityError
		require.ErrorAs(t, err, &securityErr)

		session, err := client.store.Load()
		require.NoError(t, err)
		require.NotNil(t, session)
	})

	t.Run("session lost", func(t *testing.T) {
		t.Parallel()

		client := newTestClient(t, "https://auth.example.com")
		_, err := client.HandleCallback("http://localhost:3000/callback?code=abc123&state=st")
		var validationErr *ValidationError
		require.ErrorAs(t, err, &validationErr)
	})
}

func TestExchange(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/token", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "authorization_code", body["grant_type"])
		require.Equal(t, "abc123", body["code"])
		require.Equal(t, "client_shop", body["client_id"])
		require.Equal(t, "shop-secret", body["client_secret"])
		require.Equal(t, "http://localhost:3000/callback", body["redirect_uri"])
		require.NotEmpty(t, body["code_verifier"])

		json.NewEncoder(w).Encode(oauthx.TokenResponse{
			AccessToken:  "at",
			RefreshToken: "rt",
			TokenType:    "Bearer",
			ExpiresIn:    3600,
			Scope:        "read write",
		})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	tokens, err := client.Exchange(context.Background(), "abc123", "verifier-verifier-verifier-verifier-verifier")
	require.NoError(t, err)
	require.Equal(t, "at", tokens.AccessToken)
	require.Equal(t, "rt", tokens.RefreshToken)
	require.Equal(t, 3600, tokens.ExpiresIn)
}

func TestExchangeSurfacesOAuthError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		oauthx.ErrInvalidGrant.WriteError(w)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.Exchange(context.Background(), "abc123", "v")

	var oauthErr *oauthx.OAuth2Error
	require.ErrorAs(t, err, &oauthErr)
	require.Equal(t, "invalid_grant", oauthErr.Code)
	require.Equal(t, http.StatusBadRequest, oauthErr.StatusCode)
}

func TestRefresh(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "refresh_token", body["grant_type"])
		require.Equal(t, "old-rt", body["refresh_token"])

		json.NewEncoder(w).Encode(oauthx.TokenResponse{AccessToken: "new-at", RefreshToken: "new-rt", TokenType: "Bearer", ExpiresIn: 3600})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	tokens, err := client.Refresh(context.Background(), "old-rt")
	require.NoError(t, err)
	require.Equal(t, "new-at", tokens.AccessToken)
	require.Equal(t, "new-rt", tokens.RefreshToken)
}

func TestIntrospectAndRevoke(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /introspect", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(oauthx.IntrospectionResponse{Active: true, Subject: "agent_1", Scope: "read"})
	})
	mux.HandleFunc("POST /revoke", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	info, err := client.Introspect(context.Background(), "at")
	require.NoError(t, err)
	require.True(t, info.Active)
	require.Equal(t, "agent_1", info.Subject)

	require.NoError(t, client.Revoke(context.Background(), "at"))
}

func TestNetworkErrorWrapped(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(nil)
	srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.Exchange(context.Background(), "c", "v")

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
}

func mustQuery(t *testing.T, rawURL, key string) string {
	t.Helper()
	parsed, err := url.Parse(rawURL)
	require.NoError(t, err)
	v := parsed.Query().Get(key)
	require.NotEmpty(t, v)
	return v
}
