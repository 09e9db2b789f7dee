package http

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/agentauth/agentauth/internal/auth/domain"
	"github.com/agentauth/agentauth/internal/auth/service"
	"github.com/agentauth/agentauth/pkg/httpx"
	"github.com/agentauth/agentauth/pkg/oauthx"
	"github.com/agentauth/agentauth/pkg/slogx"
)

// AdminHandler serves the operator endpoints for registering agents and
// clients. Secrets appear exactly once, in the creation response.
type AdminHandler struct {
	AdminService *service.AdminService
}

// requireAdminToken guards admin routes with a static bearer token.
func requireAdminToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type agentView struct {
	AgentID          string    `json:"agent_id"`
	OwnerEmail       string    `json:"owner_email"`
	OwnerName        string    `json:"owner_name,omitempty"`
	TwoFactorEnabled bool      `json:"two_factor_enabled"`
	CreatedAt        time.Time `json:"created_at"`
}

func toAgentView(a domain.Agent) agentView {
	return agentView{
		AgentID:          a.AgentID,
		OwnerEmail:       a.OwnerEmail,
		OwnerName:        a.OwnerName,
		TwoFactorEnabled: a.TwoFactorEnabled,
		CreatedAt:        a.CreatedAt,
	}
}

type clientView struct {
	ClientID     string    `json:"client_id"`
	Name         string    `json:"name"`
	RedirectURIs []string  `json:"redirect_uris"`
	GrantTypes   []string  `json:"grant_types"`
	CreatedAt    time.Time `json:"created_at"`
}

func toClientView(c domain.Client) clientView {
	return clientView{
		ClientID:     c.ClientID,
		Name:         c.Name,
		RedirectURIs: c.AllowedRedirectURIs,
		GrantTypes:   c.AllowedGrantTypes,
		CreatedAt:    c.CreatedAt,
	}
}

func (h *AdminHandler) HandleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AgentID          string `json:"agent_id"`
		OwnerEmail       string `json:"owner_email"`
		OwnerName        string `json:"owner_name"`
		TwoFactorEnabled bool   `json:"two_factor_enabled"`
		TwoFactorAddress string `json:"two_factor_address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		oauthx.ErrInvalidBody.WriteError(w)
		return
	}

	agent, secret, err := h.AdminService.CreateAgent(r.Context(), service.CreateAgentParams{
		AgentID:          body.AgentID,
		OwnerEmail:       body.OwnerEmail,
		OwnerName:        body.OwnerName,
		TwoFactorEnabled: body.TwoFactorEnabled,
		TwoFactorAddress: body.TwoFactorAddress,
	})
	if err != nil {
		writeAdminError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, struct {
		agentView
		AgentSecret string `json:"agent_secret"`
	}{toAgentView(agent), secret})
}

func (h *AdminHandler) HandleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.AdminService.ListAgents(r.Context())
	if err != nil {
		writeAdminError(w, r, err)
		return
	}

	views := make([]agentView, 0, len(agents))
	for _, a := range agents {
		views = append(views, toAgentView(a))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"agents": views})
}

func (h *AdminHandler) HandleSetTwoFactor(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AgentID string `json:"agent_id"`
		Enabled bool   `json:"enabled"`
		Address string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		oauthx.ErrInvalidBody.WriteError(w)
		return
	}

	if err := h.AdminService.SetTwoFactor(r.Context(), body.AgentID, body.Enabled, body.Address); err != nil {
		writeAdminError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) HandleCreateClient(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ClientID     string   `json:"client_id"`
		Name         string   `json:"name"`
		RedirectURIs []string `json:"redirect_uris"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		oauthx.ErrInvalidBody.WriteError(w)
		return
	}

	client, secret, err := h.AdminService.CreateClient(r.Context(), service.CreateClientParams{
		ClientID:     body.ClientID,
		Name:         body.Name,
		RedirectURIs: body.RedirectURIs,
	})
	if err != nil {
		writeAdminError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, struct {
		clientView
		ClientSecret string `json:"client_secret"`
	}{toClientView(client), secret})
}

func (h *AdminHandler) HandleListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.AdminService.ListClients(r.Context())
	if err != nil {
		writeAdminError(w, r, err)
		return
	}

	views := make([]clientView, 0, len(clients))
	for _, c := range clients {
		views = append(views, toClientView(c))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"clients": views})
}

func (h *AdminHandler) HandleUpdateClient(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ClientID     string   `json:"client_id"`
		Name         string   `json:"name"`
		RedirectURIs []string `json:"redirect_uris"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		oauthx.ErrInvalidBody.WriteError(w)
		return
	}

	if err := h.AdminService.UpdateClient(r.Context(), body.ClientID, body.Name, body.RedirectURIs); err != nil {
		writeAdminError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeAdminError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrMissingName),
		errors.Is(err, service.ErrMissingEmail),
		errors.Is(err, service.ErrInvalidRedirectURI):
		oauthx.ErrInvalidRequest.WriteError(w)
	case errors.Is(err, service.ErrAlreadyExists):
		httpx.WriteJSON(w, http.StatusConflict, map[string]string{"error": "already_exists"})
	case errors.Is(err, service.ErrInvalidClient), errors.Is(err, service.ErrRequestNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	default:
		slogx.FromContext(r.Context()).Error("admin endpoint failed", "err", err)
		oauthx.ErrServerError.WriteError(w)
	}
}
