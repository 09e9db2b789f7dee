package domain

import "time"

type Client struct {
	ID                  string
	ClientID            string
	Name                string
	SecretHash          string
	AllowedRedirectURIs []string
	AllowedGrantTypes   []string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// AllowsRedirectURI reports whether uri is byte-for-byte a member of the
// client's registered redirect URIs. No normalisation is performed.
func (c Client) AllowsRedirectURI(uri string) bool {
	for _, allowed := range c.AllowedRedirectURIs {
		if allowed == uri {
			return true
		}
	}
	return false
}

// AllowsGrantType reports whether the client may use the given grant type.
func (c Client) AllowsGrantType(grantType string) bool {
	for _, allowed := range c.AllowedGrantTypes {
		if allowed == grantType {
			return true
		}
	}
	return false
}
