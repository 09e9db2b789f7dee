package http

import (
	"net/http"

	"github.com/agentauth/agentauth/internal/auth/service"
	"github.com/agentauth/agentauth/pkg/oauthx"
	"github.com/agentauth/agentauth/pkg/slogx"
)

// RevokeHandler serves POST /revoke. Revocation is idempotent: revoking an
// unknown or already-revoked token still yields 204.
type RevokeHandler struct {
	TokenService *service.TokenService
}

func (h *RevokeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := extractToken(r)
	if token == "" {
		oauthx.ErrInvalidRequest.WriteError(w)
		return
	}

	if err := h.TokenService.Revoke(r.Context(), token); err != nil {
		slogx.FromContext(r.Context()).Error("revocation failed", "err", err)
		oauthx.ErrServerError.WriteError(w)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
