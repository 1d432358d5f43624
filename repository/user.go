package repository

import (
	"context"

	"github.com/fastygo/courier-auth/domain"
)

// UserRepository is the data-layer collaborator used for identity resolution.
type UserRepository interface {
	// FindByID returns the record for id under role, without secret fields.
	// A missing record yields domain.ErrUserNotFound.
	FindByID(ctx context.Context, id string, role domain.Role) (*domain.User, error)
	// FindCredentials returns the record matched by its login column together
	// with the stored password hash.
	FindCredentials(ctx context.Context, login string, role domain.Role) (*domain.Credentials, error)
}
