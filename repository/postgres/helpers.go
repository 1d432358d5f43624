package postgres

import (
	"github.com/jackc/pgx/v5"

	"github.com/fastygo/courier-auth/domain"
)

// scanUser reads the role projection (id, name, email, status, enabled) followed
// by the timestamps and any extra destinations.
func scanUser(row pgx.Row, user *domain.User, extra ...any) error {
	dest := []any{
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Status,
		&user.Enabled,
		&user.CreatedAt,
		&user.UpdatedAt,
	}
	return row.Scan(append(dest, extra...)...)
}
