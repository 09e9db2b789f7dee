package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/agentauth/agentauth/internal/auth/service"
	"github.com/agentauth/agentauth/pkg/httpx"
	"github.com/agentauth/agentauth/pkg/oauthx"
	"github.com/agentauth/agentauth/pkg/slogx"
)

// TokenHandler serves POST /token. It accepts the RFC 6749 form encoding and
// a JSON body carrying the same fields, since server-side SDK callers prefer
// JSON.
type TokenHandler struct {
	TokenService *service.TokenService
}

type tokenRequest struct {
	GrantType    string `json:"grant_type"`
	Code         string `json:"code"`
	RefreshToken string `json:"refresh_token"`
	CodeVerifier string `json:"code_verifier"`
	RedirectURI  string `json:"redirect_uri"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

func parseTokenRequest(r *http.Request) (tokenRequest, *oauthx.OAuth2Error) {
	ct := r.Header.Get("Content-Type")
	switch {
	case strings.HasPrefix(ct, "application/json"):
		var body tokenRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return tokenRequest{}, oauthx.ErrInvalidBody
		}
		return body, nil
	case ct == "" || strings.HasPrefix(ct, "application/x-www-form-urlencoded"):
		if err := r.ParseForm(); err != nil {
			return tokenRequest{}, oauthx.ErrInvalidBody
		}
		return tokenRequest{
			GrantType:    r.Form.Get("grant_type"),
			Code:         r.Form.Get("code"),
			RefreshToken: r.Form.Get("refresh_token"),
			CodeVerifier: r.Form.Get("code_verifier"),
			RedirectURI:  r.Form.Get("redirect_uri"),
			ClientID:     r.Form.Get("client_id"),
			ClientSecret: r.Form.Get("client_secret"),
		}, nil
	default:
		return tokenRequest{}, oauthx.ErrInvalidContentType
	}
}

func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, oauthErr := parseTokenRequest(r)
	if oauthErr != nil {
		oauthErr.WriteError(w)
		return
	}

	switch body.GrantType {
	case "authorization_code":
		h.handleAuthorizationCodeGrant(w, r, body)
	case "refresh_token":
		h.handleRefreshGrant(w, r, body)
	default:
		oauthx.ErrUnsupportedGrantType.WriteError(w)
	}
}

func (h *TokenHandler) handleAuthorizationCodeGrant(w http.ResponseWriter, r *http.Request, body tokenRequest) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	if body.Code == "" || body.RedirectURI == "" || body.ClientID == "" || body.CodeVerifier == "" {
		oauthx.ErrInvalidRequest.WriteError(w)
		return
	}

	pair, err := h.TokenService.ExchangeAuthorizationCode(ctx,
		body.ClientID, body.ClientSecret, body.Code, body.RedirectURI, body.CodeVerifier)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidClient):
			oauthx.ErrInvalidClient.WriteError(w)
		case errors.Is(err, service.ErrInvalidGrant):
			oauthx.ErrInvalidGrant.WriteError(w)
		default:
			log.Error("authorization_code grant failed", "err", err)
			oauthx.ErrServerError.WriteError(w)
		}
		return
	}

	writeTokenResponse(w, pair.AccessToken, pair.RefreshToken, int(pair.ExpiresIn.Seconds()), pair.Scope)
}

func (h *TokenHandler) handleRefreshGrant(w http.ResponseWriter, r *http.Request, body tokenRequest) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	if body.RefreshToken == "" || body.ClientID == "" {
		oauthx.ErrInvalidRequest.WriteError(w)
		return
	}

	pair, err := h.TokenService.ExchangeRefreshToken(ctx, body.ClientID, body.ClientSecret, body.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidClient):
			oauthx.ErrInvalidClient.WriteError(w)
		case errors.Is(err, service.ErrInvalidGrant):
			oauthx.ErrInvalidGrant.WriteError(w)
		default:
			log.Error("refresh grant failed", "err", err)
			oauthx.ErrServerError.WriteError(w)
		}
		return
	}

	writeTokenResponse(w, pair.AccessToken, pair.RefreshToken, int(pair.ExpiresIn.Seconds()), pair.Scope)
}

func writeTokenResponse(w http.ResponseWriter, access, refresh string, expiresIn int, scope string) {
	httpx.WriteJSON(w, http.StatusOK, oauthx.TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    expiresIn,
		Scope:        strings.TrimSpace(scope),
	})
}
