package http

import (
	"net/http"
	"strings"

	"github.com/agentauth/agentauth/pkg/httpx"
	"github.com/agentauth/agentauth/pkg/oauthx"
)

// DiscoveryHandler serves the authorization server metadata document.
func DiscoveryHandler(issuer string) http.Handler {
	issuer = strings.TrimRight(issuer, "/")
	doc := oauthx.DiscoveryDocument{
		Issuer:                            issuer,
		AuthorizationEndpoint:             issuer + "/authorize",
		TokenEndpoint:                     issuer + "/token",
		IntrospectionEndpoint:             issuer + "/introspect",
		RevocationEndpoint:                issuer + "/revoke",
		JWKSURI:                           issuer + "/.well-known/jwks.json",
		ResponseTypesSupported:            []string{"code"},
		GrantTypesSupported:               []string{"authorization_code", "refresh_token"},
		CodeChallengeMethodsSupported:     []string{"S256"},
		TokenEndpointAuthMethodsSupported: []string{"client_secret_post"},
	}

	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, doc)
	})
}

// JWKSHandler serves an empty key set. Tokens are signed with a symmetric
// key, so there is nothing to publish; the endpoint exists so standard
// tooling probing for it gets a well-formed answer.
func JWKSHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"keys": []any{}})
	})
}
