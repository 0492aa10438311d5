package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"retail-service/internal/models"
	"retail-service/internal/store"
	"retail-service/internal/util"

	"go.uber.org/zap"
)

// ClientService manages the clients orders are placed for
type ClientService struct {
	store       store.Gateway
	adminRoleID int64
	pageSize    int
	logger      *zap.Logger
}

// NewClientService creates a new client service
func NewClientService(gw store.Gateway, adminRoleID int64, pageSize int) *ClientService {
	if pageSize <= 0 {
		pageSize = store.DefaultPageSize
	}
	return &ClientService{
		store:       gw,
		adminRoleID: adminRoleID,
		pageSize:    pageSize,
		logger:      util.GetLogger(),
	}
}

// CreateClientRequest represents a request to create a client
type CreateClientRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	CPF   string `json:"cpf"`
}

// UpdateClientRequest carries the fields to change; nil means unchanged
type UpdateClientRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
	CPF   *string `json:"cpf"`
}

// List returns a page of clients whose name or email contains filter
func (s *ClientService) List(ctx context.Context, offset int, filter string) ([]models.Client, error) {
	ctx, span := util.StartSpan(ctx, "ClientService.List")
	defer span.End()

	clients, err := s.store.Repo().ListClients(ctx, store.ClientFilter{
		Query:  strings.TrimSpace(filter),
		Offset: offset,
		Limit:  s.pageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	return clients, nil
}

// Get retrieves a client by ID
func (s *ClientService) Get(ctx context.Context, id int64) (*models.Client, error) {
	c, err := s.store.Repo().GetClient(ctx, id)
	if err != nil {
		return nil, notFound(err, ErrClientNotFound)
	}
	return c, nil
}

// Create validates and stores a new client
func (s *ClientService) Create(ctx context.Context, req CreateClientRequest) (*models.Client, error) {
	ctx, span := util.StartSpan(ctx, "ClientService.Create")
	defer span.End()

	client := &models.Client{
		Name:  strings.TrimSpace(req.Name),
		Email: strings.TrimSpace(req.Email),
		CPF:   strings.TrimSpace(req.CPF),
	}
	if client.Name == "" {
		return nil, invalid("Nome não pode ser vazio")
	}
	if !ValidCPF(client.CPF) {
		return nil, invalid("CPF inválido")
	}
	if !ValidEmail(client.Email) {
		return nil, invalid("E-mail inválido")
	}

	repo := s.store.Repo()
	if err := s.checkUnique(ctx, repo, &client.CPF, &client.Email, 0); err != nil {
		return nil, err
	}
	if err := repo.CreateClient(ctx, client); err != nil {
		return nil, duplicateClient(err)
	}

	util.ClientsCreatedTotal.Inc()
	s.logger.Info("Client created", zap.Int64("client_id", client.ID))
	return client, nil
}

// Update applies a partial update; admin only
func (s *ClientService) Update(ctx context.Context, caller *models.User, id int64, req UpdateClientRequest) (*models.Client, error) {
	ctx, span := util.StartSpan(ctx, "ClientService.Update")
	defer span.End()

	if !isAdmin(caller, s.adminRoleID) {
		return nil, forbidden("Apenas Admins podem editar clientes")
	}
	if req.Name == nil && req.Email == nil && req.CPF == nil {
		return nil, invalid("Necessita de ao menos uma informação para atualizar")
	}

	repo := s.store.Repo()
	if _, err := repo.GetClient(ctx, id); err != nil {
		return nil, notFound(err, ErrClientNotFound)
	}

	var u store.ClientUpdate
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, invalid("Nome inválido")
		}
		u.Name = &name
	}
	if req.CPF != nil {
		cpf := strings.TrimSpace(*req.CPF)
		if !ValidCPF(cpf) {
			return nil, invalid("CPF inválido")
		}
		u.CPF = &cpf
	}
	if req.Email != nil {
		email := strings.TrimSpace(*req.Email)
		if !ValidEmail(email) {
			return nil, invalid("E-mail inválido")
		}
		u.Email = &email
	}
	if err := s.checkUnique(ctx, repo, u.CPF, u.Email, id); err != nil {
		return nil, err
	}

	if err := repo.UpdateClient(ctx, id, u); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrClientNotFound
		}
		return nil, duplicateClient(err)
	}
	return repo.GetClient(ctx, id)
}

// Delete removes a client without orders; admin only
func (s *ClientService) Delete(ctx context.Context, caller *models.User, id int64) error {
	ctx, span := util.StartSpan(ctx, "ClientService.Delete")
	defer span.End()

	if !isAdmin(caller, s.adminRoleID) {
		return forbidden("Apenas Admins podem deletar clientes")
	}
	if err := s.store.Repo().DeleteClient(ctx, id); err != nil {
		if errors.Is(err, store.ErrInUse) {
			return invalid("Cliente possui ordens vinculadas")
		}
		return notFound(err, ErrClientNotFound)
	}
	s.logger.Info("Client deleted", zap.Int64("client_id", id))
	return nil
}

// checkUnique rejects a CPF or email held by another client than except
func (s *ClientService) checkUnique(ctx context.Context, repo store.Repository, cpf, email *string, except int64) error {
	if cpf != nil {
		if other, err := repo.FindClientByCPF(ctx, *cpf); err == nil && other.ID != except {
			return invalid("CPF já existe")
		} else if err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("failed to check cpf: %w", err)
		}
	}
	if email != nil {
		if other, err := repo.FindClientByEmail(ctx, *email); err == nil && other.ID != except {
			return invalid("Email já existe")
		} else if err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("failed to check email: %w", err)
		}
	}
	return nil
}

// duplicateClient maps a unique violation lost to a concurrent insert
func duplicateClient(err error) error {
	if !errors.Is(err, store.ErrDuplicate) {
		return fmt.Errorf("failed to save client: %w", err)
	}
	if strings.Contains(err.Error(), "cpf") {
		return invalid("CPF já existe")
	}
	return invalid("Email já existe")
}
