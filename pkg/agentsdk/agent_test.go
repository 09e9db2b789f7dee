package agentsdk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentauth/agentauth/pkg/oauthx"
	"github.com/agentauth/agentauth/pkg/retryx"
)

func newTestAgent(t *testing.T) *Agent {
	t.Helper()

	agent, err := New(Config{
		AgentID:      "agent_test",
		AgentSecret:  "secret",
		Model:        "test-model",
		AllowedHosts: []string{"127.0.0.1"},
		Retry: retryx.Options{
			MaxRetries:   1,
			InitialDelay: time.Millisecond,
			MaxDelay:     2 * time.Millisecond,
		},
	})
	require.NoError(t, err)
	return agent
}

func TestNewRequiresCredentials(t *testing.T) {
	t.Parallel()

	_, err := New(Config{AgentSecret: "s"})
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)

	_, err = New(Config{AgentID: "a"})
	require.ErrorAs(t, err, &validationErr)
}

func TestExtractRequestIDFromMarkup(t *testing.T) {
	t.Parallel()

	agent := newTestAgent(t)
	ctx := context.Background()

	t.Run("structured object literal", func(t *testing.T) {
		markup := `<script>
			window.authRequest = {
				request_id: 'req_abc123',
				client_name: 'Shop',
				expires_at: '2026-01-01T00:00:00Z'
			};
		</script>`
		id, err := agent.ExtractRequestID(ctx, markup)
		require.NoError(t, err)
		require.Equal(t, "req_abc123", id)
	})

	t.Run("bare token fallback", func(t *testing.T) {
		markup := `<div data-init="request_id: 'tok-42_x'"></div>`
		id, err := agent.ExtractRequestID(ctx, markup)
		require.NoError(t, err)
		require.Equal(t, "tok-42_x", id)
	})

	t.Run("double quotes accepted", func(t *testing.T) {
		markup := `window.authRequest = { request_id: "dq_id" };`
		id, err := agent.ExtractRequestID(ctx, markup)
		require.NoError(t, err)
		require.Equal(t, "dq_id", id)
	})

	t.Run("script tag scan catches quoted keys", func(t *testing.T) {
		markup := `<html><script type="module">
			const session = JSON.parse('{"request_id":"scripted_id","status":"pending"}');
		</script></html>`
		id, err := agent.ExtractRequestID(ctx, markup)
		require.NoError(t, err)
		require.Equal(t, "scripted_id", id)
	})

	t.Run("object literal wins over later bare token", func(t *testing.T) {
		markup := `window.authRequest = { request_id: 'primary' };
			request_id: 'decoy'`
		id, err := agent.ExtractRequestID(ctx, markup)
		require.NoError(t, err)
		require.Equal(t, "primary", id)
	})

	t.Run("no match", func(t *testing.T) {
		_, err := agent.ExtractRequestID(ctx, "<html><body>nothing here</body></html>")
		var validationErr *ValidationError
		require.ErrorAs(t, err, &validationErr)
	})
}

func TestExtractRequestIDFromURL(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// First attempt fails transiently; the fetch must retry.
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`<script>window.authRequest = { request_id: 'fetched_id' };</script>`))
	}))
	defer srv.Close()

	agent := newTestAgent(t)
	id, err := agent.ExtractRequestID(context.Background(), srv.URL+"/authorize?client_id=x")
	require.NoError(t, err)
	require.Equal(t, "fetched_id", id)
	require.Equal(t, int32(2), calls.Load())
}

func TestExtractRequestIDBlockedHost(t *testing.T) {
	t.Parallel()

	agent, err := New(Config{AgentID: "a", AgentSecret: "s"})
	require.NoError(t, err)

	_, err = agent.ExtractRequestID(context.Background(), "http://169.254.169.254/latest/meta-data")
	var securityErr *SecurityError
	require.ErrorAs(t, err, &securityErr)
}

func TestFetchSession(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/authorize-session", r.URL.Path)
		require.Equal(t, "req_1", r.URL.Query().Get("request_id"))
		json.NewEncoder(w).Encode(oauthx.SessionResponse{
			RequestID:  "req_1",
			ClientName: "Shop",
			Status:     "pending",
			ExpiresAt:  "2026-01-01T00:00:00Z",
		})
	}))
	defer srv.Close()

	agent := newTestAgent(t)
	session, err := agent.FetchSession(context.Background(), srv.URL+"/authorize", "req_1")
	require.NoError(t, err)
	require.Equal(t, "Shop", session.ClientName)
	require.Equal(t, "pending", session.Status)
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/api/agent/authenticate", r.URL.Path)

			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Equal(t, "agent_test", body["agent_id"])
			require.Equal(t, "secret", body["agent_secret"])
			require.Equal(t, "test-model", body["model"])
			require.Equal(t, "req_1", body["request_id"])

			json.NewEncoder(w).Encode(oauthx.AgentAuthResponse{Success: true, Message: "authenticated"})
		}))
		defer srv.Close()

		resp := newTestAgent(t).Authenticate(context.Background(), srv.URL+"/authorize", "req_1")
		require.True(t, resp.Success)
	})

	t.Run("requires two factor", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(oauthx.AgentAuthResponse{RequiresTwoFactor: true, ExpiresIn: 300})
		}))
		defer srv.Close()

		resp := newTestAgent(t).Authenticate(context.Background(), srv.URL, "req_1")
		require.False(t, resp.Success)
		require.True(t, resp.RequiresTwoFactor)
		require.Equal(t, 300, resp.ExpiresIn)
	})

	t.Run("server rejection is not retried", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(oauthx.AgentAuthResponse{
				ErrorCode:        "invalid_client",
				ErrorDescription: "unknown agent",
			})
		}))
		defer srv.Close()

		resp := newTestAgent(t).Authenticate(context.Background(), srv.URL, "req_1")
		require.False(t, resp.Success)
		require.Equal(t, "invalid_client", resp.ErrorCode)
		require.Equal(t, int32(1), calls.Load())
	})

	t.Run("transport failure folded into response", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(nil)
		srv.Close() // refuse connections

		resp := newTestAgent(t).Authenticate(context.Background(), srv.URL, "req_1")
		require.False(t, resp.Success)
		require.Equal(t, "network_error", resp.ErrorCode)
		require.NotEmpty(t, resp.ErrorDescription)
	})

	t.Run("blocked url folded into response", func(t *testing.T) {
		t.Parallel()

		resp := newTestAgent(t).Authenticate(context.Background(), "http://10.0.0.1/authorize", "req_1")
		require.False(t, resp.Success)
		require.Equal(t, "invalid_request", resp.ErrorCode)
	})
}

func TestVerifyTwoFactor(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/agent/verify-2fa", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "123456", body["code"])

		json.NewEncoder(w).Encode(oauthx.AgentAuthResponse{Success: true})
	}))
	defer srv.Close()

	resp := newTestAgent(t).VerifyTwoFactor(context.Background(), srv.URL, "req_1", "123456")
	require.True(t, resp.Success)
}

func TestCheckStatusReturnsTransportErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(nil)
	srv.Close()

	_, err := newTestAgent(t).CheckStatus(context.Background(), srv.URL, "req_1")
	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
}

func TestWaitForAuthentication(t *testing.T) {
	t.Parallel()

	statusSequence := func(statuses ...oauthx.StatusResponse) *httptest.Server {
		var i atomic.Int32
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			n := int(i.Add(1)) - 1
			if n >= len(statuses) {
				n = len(statuses) - 1
			}
			json.NewEncoder(w).Encode(statuses[n])
		}))
	}

	t.Run("resolves on completed and reports every poll", func(t *testing.T) {
		t.Parallel()

		srv := statusSequence(
			oauthx.StatusResponse{Status: "pending"},
			oauthx.StatusResponse{Status: "pending"},
			oauthx.StatusResponse{Status: "completed", Code: "code123", RedirectURI: "https://shop.example/cb", State: "st"},
		)
		defer srv.Close()

		var seen []string
		status, err := newTestAgent(t).WaitForAuthentication(context.Background(), srv.URL, "req_1",
			time.Millisecond, time.Second, func(s *oauthx.StatusResponse) { seen = append(seen, s.Status) })
		require.NoError(t, err)
		require.Equal(t, "completed", status.Status)
		require.Equal(t, "code123", status.Code)
		require.Equal(t, []string{"pending", "pending", "completed"}, seen)
	})

	t.Run("resolves on authenticated", func(t *testing.T) {
		t.Parallel()

		srv := statusSequence(oauthx.StatusResponse{Status: "authenticated"})
		defer srv.Close()

		status, err := newTestAgent(t).WaitForAuthentication(context.Background(), srv.URL, "req_1", time.Millisecond, time.Second, nil)
		require.NoError(t, err)
		require.Equal(t, "authenticated", status.Status)
	})

	t.Run("rejects on error status", func(t *testing.T) {
		t.Parallel()

		srv := statusSequence(oauthx.StatusResponse{Status: "error", Error: "invalid agent credentials"})
		defer srv.Close()

		_, err := newTestAgent(t).WaitForAuthentication(context.Background(), srv.URL, "req_1", time.Millisecond, time.Second, nil)
		var validationErr *ValidationError
		require.ErrorAs(t, err, &validationErr)
		require.Contains(t, err.Error(), "invalid agent credentials")
	})

	t.Run("rejects on expired status", func(t *testing.T) {
		t.Parallel()

		srv := statusSequence(oauthx.StatusResponse{Status: "expired"})
		defer srv.Close()

		_, err := newTestAgent(t).WaitForAuthentication(context.Background(), srv.URL, "req_1", time.Millisecond, time.Second, nil)
		var validationErr *ValidationError
		require.ErrorAs(t, err, &validationErr)
	})

	t.Run("times out while pending", func(t *testing.T) {
		t.Parallel()

		srv := statusSequence(oauthx.StatusResponse{Status: "pending"})
		defer srv.Close()

		_, err := newTestAgent(t).WaitForAuthentication(context.Background(), srv.URL, "req_1",
			5*time.Millisecond, 20*time.Millisecond, nil)
		var timeoutErr *TimeoutError
		require.ErrorAs(t, err, &timeoutErr)
	})
}

func TestCompleteAuthenticationFlow(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /authorize", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<script>window.authRequest = { request_id: 'flow_req' };</script>`))
	})
	mux.HandleFunc("POST /api/agent/authenticate", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		require.Equal(t, "flow_req", body["request_id"])
		json.NewEncoder(w).Encode(oauthx.AgentAuthResponse{Success: true})
	})
	var polls atomic.Int32
	mux.HandleFunc("GET /api/check-status", func(w http.ResponseWriter, r *http.Request) {
		status := oauthx.StatusResponse{Status: "pending"}
		if polls.Add(1) > 1 {
			status = oauthx.StatusResponse{Status: "completed", Code: "c1"}
		}
		json.NewEncoder(w).Encode(status)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	status, err := newTestAgent(t).CompleteAuthenticationFlow(context.Background(),
		srv.URL+"/authorize?client_id=x", time.Millisecond, time.Second, nil)
	require.NoError(t, err)
	require.Equal(t, "completed", status.Status)
	require.Equal(t, "c1", status.Code)
}

func TestCompleteAuthenticationFlowRejectsFailedAuth(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /authorize", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`window.authRequest = { request_id: 'flow_req' };`))
	})
	mux.HandleFunc("POST /api/agent/authenticate", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(oauthx.AgentAuthResponse{ErrorCode: "invalid_client"})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	_, err := newTestAgent(t).CompleteAuthenticationFlow(context.Background(),
		srv.URL+"/authorize", time.Millisecond, time.Second, nil)
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Contains(t, err.Error(), "invalid_client")
}
