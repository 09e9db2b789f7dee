package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/agentauth/agentauth/internal/auth/service"
	"github.com/agentauth/agentauth/pkg/httpx"
	"github.com/agentauth/agentauth/pkg/oauthx"
	"github.com/agentauth/agentauth/pkg/slogx"
)

// AuthorizeHandler serves the authorization page and its poll endpoints.
type AuthorizeHandler struct {
	AuthorizeService *service.AuthorizeService
}

// HandlePage serves GET /authorize. Validation failures render the error
// page; there is never a fallback redirect to an unvalidated client URI.
func (h *AuthorizeHandler) HandlePage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	req, err := h.AuthorizeService.BeginAuthorization(ctx, service.BeginAuthorizationParams{
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		ResponseType:        q.Get("response_type"),
		State:               q.Get("state"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
		Scope:               q.Get("scope"),
	})
	if err != nil {
		renderErrorPage(w, authorizeErrorMessage(err))
		return
	}

	sess, err := h.AuthorizeService.GetSession(ctx, req.RequestID)
	if err != nil {
		slogx.FromContext(ctx).Error("session lookup after create failed", "err", err)
		renderErrorPage(w, "Something went wrong. Please try again.")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	httpx.NoCache(w)
	_ = authorizePageTmpl.Execute(w, authorizePageData{
		RequestID:  sess.RequestID,
		ClientName: sess.ClientName,
		ExpiresAt:  sess.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// HandleSession serves GET /api/authorize-session: the JSON view of a
// pending request, preferred by the agent SDK over scraping the page.
func (h *AuthorizeHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	requestID := r.URL.Query().Get("request_id")
	if requestID == "" {
		oauthx.ErrInvalidRequest.WriteError(w)
		return
	}

	sess, err := h.AuthorizeService.GetSession(r.Context(), requestID)
	if err != nil {
		if errors.Is(err, service.ErrRequestNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		oauthx.ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, oauthx.SessionResponse{
		RequestID:  sess.RequestID,
		ClientName: sess.ClientName,
		Status:     sess.Status,
		ExpiresAt:  sess.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// HandleCheckStatus serves GET /api/check-status for the polling page.
func (h *AuthorizeHandler) HandleCheckStatus(w http.ResponseWriter, r *http.Request) {
	requestID := r.URL.Query().Get("request_id")
	if requestID == "" {
		oauthx.ErrInvalidRequest.WriteError(w)
		return
	}

	status, err := h.AuthorizeService.CheckStatus(r.Context(), requestID)
	if err != nil {
		if errors.Is(err, service.ErrRequestNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		oauthx.ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, oauthx.StatusResponse{
		Status:      status.Status,
		Code:        status.Code,
		RedirectURI: status.RedirectURI,
		State:       status.State,
		Error:       status.Error,
	})
}

// HandleErrorPage serves GET /error?message= as a themed page.
func (h *AuthorizeHandler) HandleErrorPage(w http.ResponseWriter, r *http.Request) {
	msg := r.URL.Query().Get("message")
	if msg == "" {
		msg = "Something went wrong."
	}
	renderErrorPage(w, msg)
}

func renderErrorPage(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusBadRequest)
	_ = errorPageTmpl.Execute(w, errorPageData{Message: message})
}

func authorizeErrorMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrInvalidClient):
		return "Unknown client."
	case errors.Is(err, service.ErrInvalidRedirectURI):
		return "The redirect URI is not registered for this client."
	case errors.Is(err, service.ErrInvalidChallenge):
		return "A valid S256 code challenge is required."
	case errors.Is(err, service.ErrInvalidScope):
		return "The requested scope is malformed."
	case errors.Is(err, service.ErrInvalidGrant):
		return "Only the authorization code response type is supported."
	default:
		return "Something went wrong. Please try again."
	}
}
