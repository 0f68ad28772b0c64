package users

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/secure/precis"

	"github.com/gatekeep/gatekeep/internal/identity"
	"github.com/gatekeep/gatekeep/internal/shared"
)

// Service wraps account business rules.
type Service struct {
	repo Repository
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Register creates a new account with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, email, name, password string) (*User, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return s.repo.Create(ctx, normalized, strings.TrimSpace(name), string(hash))
}

// FindByEmail fetches an account by address, normalizing first.
func (s *Service) FindByEmail(ctx context.Context, email string) (*User, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return nil, shared.ErrUserNotFound
	}
	return s.repo.FindByEmail(ctx, normalized)
}

// FindByID fetches an account by ID.
func (s *Service) FindByID(ctx context.Context, id int64) (*User, error) {
	return s.repo.FindByID(ctx, id)
}

// NormalizeEmail canonicalizes an address using the PRECIS
// UsernameCaseMapped profile so lookups are case and width insensitive.
func NormalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", fmt.Errorf("users: empty email")
	}
	normalized, err := precis.UsernameCaseMapped.String(email)
	if err != nil {
		return "", fmt.Errorf("users: normalize email: %w", err)
	}
	return normalized, nil
}

// Directory adapts the repository to the identity resolver's contract.
// Inactive and missing accounts both resolve as not found, so a
// disabled account degrades to anonymous on its next request.
type Directory struct {
	repo Repository
}

// NewDirectory constructs a Directory.
func NewDirectory(repo Repository) *Directory {
	return &Directory{repo: repo}
}

// FindByID implements identity.UserDirectory.
func (d *Directory) FindByID(ctx context.Context, userID string) (identity.User, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(userID), 10, 64)
	if err != nil {
		return identity.User{}, shared.ErrUserNotFound
	}
	user, err := d.repo.FindByID(ctx, id)
	if err != nil {
		return identity.User{}, err
	}
	if !user.IsActive {
		return identity.User{}, shared.ErrUserNotFound
	}
	return identity.User{
		ID:    strconv.FormatInt(user.ID, 10),
		Email: user.Email,
		Name:  user.Name,
	}, nil
}

var _ identity.UserDirectory = (*Directory)(nil)
