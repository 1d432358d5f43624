package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/courier-auth/domain"
	"github.com/fastygo/courier-auth/repository"
)

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository instantiates a Postgres-backed identity directory covering
// admins, delivery agents and customers.
func NewUserRepository(pool *pgxpool.Pool) repository.UserRepository {
	return &userRepository{pool: pool}
}

func (r *userRepository) FindByID(ctx context.Context, id string, role domain.Role) (*domain.User, error) {
	spec, ok := role.Spec()
	if !ok {
		return nil, domain.ErrUserNotFound
	}

	user := &domain.User{Role: role}
	row := r.pool.QueryRow(ctx, byIDQuery(spec), id)
	if err := scanUser(row, user); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find %s by id: %w", role, err)
	}
	return user, nil
}

func (r *userRepository) FindCredentials(ctx context.Context, login string, role domain.Role) (*domain.Credentials, error) {
	spec, ok := role.Spec()
	if !ok {
		return nil, domain.ErrUserNotFound
	}

	user := &domain.User{Role: role}
	var hash string
	row := r.pool.QueryRow(ctx, credentialsQuery(spec), login)
	if err := scanUser(row, user, &hash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find %s credentials: %w", role, err)
	}
	return &domain.Credentials{User: user, PasswordHash: hash}, nil
}

func byIDQuery(spec domain.RoleSpec) string {
	return fmt.Sprintf(`
		SELECT %s, created_at, updated_at
		FROM %s
		WHERE id = $1
	`, spec.Columns, spec.Table)
}

func credentialsQuery(spec domain.RoleSpec) string {
	return fmt.Sprintf(`
		SELECT %s, created_at, updated_at, %s
		FROM %s
		WHERE lower(%s) = lower($1)
	`, spec.Columns, spec.SecretColumn, spec.Table, spec.LoginColumn)
}
