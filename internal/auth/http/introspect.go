package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/agentauth/agentauth/internal/auth/service"
	"github.com/agentauth/agentauth/pkg/httpx"
	"github.com/agentauth/agentauth/pkg/oauthx"
)

// IntrospectHandler serves POST /introspect. Any failure is reported as
// {"active": false} with no further detail, so the endpoint leaks nothing
// about why a token is dead.
type IntrospectHandler struct {
	TokenService *service.TokenService
}

func (h *IntrospectHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	result := h.TokenService.Introspect(r.Context(), extractToken(r))

	httpx.WriteJSON(w, http.StatusOK, oauthx.IntrospectionResponse{
		Active:    result.Active,
		Subject:   result.Subject,
		ClientID:  result.ClientID,
		Model:     result.Model,
		Scope:     result.Scope,
		TokenType: result.TokenType,
		ExpiresAt: result.ExpiresAt,
	})
}

// extractToken reads the token from a form field or a JSON body, matching
// the token endpoint's tolerance for both encodings.
func extractToken(r *http.Request) string {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return ""
		}
		return body.Token
	}

	if err := r.ParseForm(); err != nil {
		return ""
	}
	return r.Form.Get("token")
}
