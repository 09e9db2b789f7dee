package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/agentauth/agentauth/internal/auth/service"
	"github.com/agentauth/agentauth/pkg/httpx"
	"github.com/agentauth/agentauth/pkg/oauthx"
	"github.com/agentauth/agentauth/pkg/slogx"
)

// AgentHandler serves the agent-facing authenticate and 2FA endpoints.
// Responses always carry a JSON body the agent SDK can branch on, so
// protocol failures come back as 200s with success == false rather than
// bare HTTP errors.
type AgentHandler struct {
	AgentService *service.AgentService
}

type agentAuthRequest struct {
	RequestID   string `json:"request_id"`
	AgentID     string `json:"agent_id"`
	AgentSecret string `json:"agent_secret"`
	Code        string `json:"code"`
	Model       string `json:"model"`
}

func (h *AgentHandler) HandleAuthenticate(w http.ResponseWriter, r *http.Request) {
	var body agentAuthRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeAgentError(w, http.StatusBadRequest, oauthx.ErrorCodeInvalidRequest, "request body could not be parsed")
		return
	}

	res, err := h.AgentService.Authenticate(r.Context(), body.RequestID, body.AgentID, body.AgentSecret, body.Model)
	if err != nil {
		writeAgentServiceError(w, r, err)
		return
	}

	if res.TwoFactorRequired {
		httpx.WriteJSON(w, http.StatusOK, oauthx.AgentAuthResponse{
			Success:           false,
			RequiresTwoFactor: true,
			Message:           "verification code sent",
			ExpiresIn:         int(res.ExpiresIn.Seconds()),
		})
		return
	}

	httpx.WriteJSON(w, http.StatusOK, oauthx.AgentAuthResponse{
		Success: true,
		Message: "authenticated",
	})
}

func (h *AgentHandler) HandleVerifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	var body agentAuthRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeAgentError(w, http.StatusBadRequest, oauthx.ErrorCodeInvalidRequest, "request body could not be parsed")
		return
	}

	if _, err := h.AgentService.VerifyTwoFactor(r.Context(), body.RequestID, body.Code, body.Model); err != nil {
		writeAgentServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, oauthx.AgentAuthResponse{
		Success: true,
		Message: "authenticated",
	})
}

func writeAgentServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrRequestNotFound):
		writeAgentError(w, http.StatusNotFound, "request_not_found", "no authorization request with that id")
	case errors.Is(err, service.ErrRequestExpired):
		writeAgentError(w, http.StatusGone, "request_expired", "the authorization request has expired")
	case errors.Is(err, service.ErrRequestNotPending):
		writeAgentError(w, http.StatusConflict, "request_not_pending", "the authorization request is no longer pending")
	case errors.Is(err, service.ErrInvalidCredentials):
		writeAgentError(w, http.StatusUnauthorized, "invalid_credentials", "agent id or secret is incorrect")
	case errors.Is(err, service.ErrInvalidCode):
		writeAgentError(w, http.StatusUnauthorized, "invalid_verification_code", "the verification code is wrong or expired")
	default:
		slogx.FromContext(r.Context()).Error("agent endpoint failed", "err", err)
		writeAgentError(w, http.StatusInternalServerError, oauthx.ErrorCodeServerError, "internal server error")
	}
}

func writeAgentError(w http.ResponseWriter, status int, code, description string) {
	httpx.WriteJSON(w, status, oauthx.AgentAuthResponse{
		Success:          false,
		ErrorCode:        code,
		ErrorDescription: description,
	})
}
