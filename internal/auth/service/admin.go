package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/agentauth/agentauth/internal/auth/domain"
	"github.com/agentauth/agentauth/internal/auth/store"
	"github.com/agentauth/agentauth/pkg/cryptox"
	"github.com/agentauth/agentauth/pkg/idx"
	"github.com/agentauth/agentauth/pkg/urlx"
)

var (
	ErrMissingName   = errors.New("missing_name")
	ErrMissingEmail  = errors.New("missing_owner_email")
	ErrAlreadyExists = errors.New("already_exists")
)

// AdminService creates and lists clients and agents. Secrets are generated
// here, returned exactly once, and only their hashes are stored.
type AdminService struct {
	Store store.Store
}

// CreateAgentParams describes a new agent registration.
type CreateAgentParams struct {
	AgentID          string // optional; generated when empty
	OwnerEmail       string
	OwnerName        string
	TwoFactorEnabled bool
	TwoFactorAddress string
}

// CreateAgent registers an agent and returns it together with the generated
// secret. The secret is not recoverable afterwards.
func (s *AdminService) CreateAgent(ctx context.Context, p CreateAgentParams) (domain.Agent, string, error) {
	now := time.Now().UTC()

	p.OwnerEmail = strings.TrimSpace(p.OwnerEmail)
	if p.OwnerEmail == "" {
		return domain.Agent{}, "", ErrMissingEmail
	}

	agentID := strings.TrimSpace(p.AgentID)
	if agentID == "" {
		agentID = "agent_" + cryptox.MustGenerateToken(cryptox.TokenSize128)
	}

	secret, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return domain.Agent{}, "", err
	}
	hash, err := cryptox.HashSecret(secret)
	if err != nil {
		return domain.Agent{}, "", err
	}

	address := strings.TrimSpace(p.TwoFactorAddress)
	if p.TwoFactorEnabled && address == "" {
		address = p.OwnerEmail
	}

	agent := domain.Agent{
		ID:               idx.New().String(),
		AgentID:          agentID,
		SecretHash:       hash,
		OwnerEmail:       p.OwnerEmail,
		OwnerName:        strings.TrimSpace(p.OwnerName),
		TwoFactorEnabled: p.TwoFactorEnabled,
		TwoFactorAddress: address,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.Store.Agents().CreateAgent(ctx, agent); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.Agent{}, "", ErrAlreadyExists
		}
		return domain.Agent{}, "", err
	}
	return agent, secret, nil
}

func (s *AdminService) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	return s.Store.Agents().ListAgents(ctx)
}

// SetTwoFactor toggles 2FA for an agent. Enabling without an address falls
// back to the owner email at authenticate time.
func (s *AdminService) SetTwoFactor(ctx context.Context, agentID string, enabled bool, address string) error {
	err := s.Store.Agents().SetTwoFactor(ctx, strings.TrimSpace(agentID), enabled, strings.TrimSpace(address))
	if errors.Is(err, store.ErrNotFound) {
		return ErrRequestNotFound
	}
	return err
}

// CreateClientParams describes a new client registration.
type CreateClientParams struct {
	ClientID     string // optional; generated when empty
	Name         string
	RedirectURIs []string
}

// CreateClient registers a confidential client and returns it with the
// generated secret, shown exactly once.
func (s *AdminService) CreateClient(ctx context.Context, p CreateClientParams) (domain.Client, string, error) {
	now := time.Now().UTC()

	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return domain.Client{}, "", ErrMissingName
	}
	for _, uri := range p.RedirectURIs {
		if err := urlx.ValidateRedirectURI(uri); err != nil {
			return domain.Client{}, "", ErrInvalidRedirectURI
		}
	}

	clientID := strings.TrimSpace(p.ClientID)
	if clientID == "" {
		clientID = "client_" + cryptox.MustGenerateToken(cryptox.TokenSize128)
	}

	secret, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return domain.Client{}, "", err
	}
	hash, err := cryptox.HashSecret(secret)
	if err != nil {
		return domain.Client{}, "", err
	}

	client := domain.Client{
		ID:                  idx.New().String(),
		ClientID:            clientID,
		Name:                p.Name,
		SecretHash:          hash,
		AllowedRedirectURIs: p.RedirectURIs,
		AllowedGrantTypes:   []string{"authorization_code", "refresh_token"},
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.Store.Clients().CreateClient(ctx, client); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.Client{}, "", ErrAlreadyExists
		}
		return domain.Client{}, "", err
	}
	return client, secret, nil
}

func (s *AdminService) ListClients(ctx context.Context) ([]domain.Client, error) {
	return s.Store.Clients().ListClients(ctx)
}

// UpdateClient replaces the client's name and registered redirect URIs.
func (s *AdminService) UpdateClient(ctx context.Context, clientID, name string, redirectURIs []string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrMissingName
	}
	for _, uri := range redirectURIs {
		if err := urlx.ValidateRedirectURI(uri); err != nil {
			return ErrInvalidRedirectURI
		}
	}

	err := s.Store.Clients().UpdateClient(ctx, strings.TrimSpace(clientID), name, redirectURIs)
	if errors.Is(err, store.ErrNotFound) {
		return ErrInvalidClient
	}
	return err
}
