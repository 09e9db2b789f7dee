package oauthx

// TokenResponse is the token endpoint's success body.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope,omitempty"`
}

// IntrospectionResponse is the introspect endpoint's body. Inactive tokens
// carry nothing but Active == false.
type IntrospectionResponse struct {
	Active    bool   `json:"active"`
	Subject   string `json:"sub,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	Model     string `json:"model,omitempty"`
	Scope     string `json:"scope,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	ExpiresAt int64  `json:"exp,omitempty"`
}

// StatusResponse is the check-status endpoint's body.
type StatusResponse struct {
	Status      string `json:"status"`
	Code        string `json:"code,omitempty"`
	RedirectURI string `json:"redirect_uri,omitempty"`
	State       string `json:"state,omitempty"`
	Error       string `json:"error,omitempty"`
}

// SessionResponse is the authorize-session endpoint's body.
type SessionResponse struct {
	RequestID  string `json:"request_id"`
	ClientName string `json:"client_name"`
	Status     string `json:"status"`
	ExpiresAt  string `json:"expires_at"`
}

// AgentAuthResponse is the agent authenticate / verify-2fa body. A transport
// or validation failure surfaces as Success == false with the OAuth-shaped
// error fields filled in; a 2FA challenge sets RequiresTwoFactor.
type AgentAuthResponse struct {
	Success           bool   `json:"success"`
	Message           string `json:"message,omitempty"`
	RequiresTwoFactor bool   `json:"requires_2fa,omitempty"`
	ExpiresIn         int    `json:"expires_in,omitempty"`
	ErrorCode         string `json:"error,omitempty"`
	ErrorDescription  string `json:"error_description,omitempty"`
}

// DiscoveryDocument is the authorization server metadata
// (RFC 8414, reduced to what this server implements).
type DiscoveryDocument struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	IntrospectionEndpoint             string   `json:"introspection_endpoint"`
	RevocationEndpoint                string   `json:"revocation_endpoint"`
	JWKSURI                           string   `json:"jwks_uri"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
}
