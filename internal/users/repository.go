package users

import "context"

// Repository defines persistence operations for user accounts.
type Repository interface {
	FindByID(ctx context.Context, id int64) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, email, name, passwordHash string) (*User, error)
}
