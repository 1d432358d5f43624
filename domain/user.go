package domain

import (
	"fmt"
	"time"
)

// Role is the closed set of principals that may hold a token.
type Role string

const (
	RoleAdmin         Role = "admin"
	RoleDeliveryAgent Role = "delivery_agent"
	RoleCustomer      Role = "customer"
)

// Roles lists every known role in a stable order.
var Roles = []Role{RoleAdmin, RoleDeliveryAgent, RoleCustomer}

// RoleSpec describes how a role's identity record is stored and judged.
type RoleSpec struct {
	// Table holding the role's records.
	Table        string
	// Columns is the lookup projection. It never includes SecretColumn.
	Columns      string
	// SecretColumn holds the password hash; it is only read by credential checks.
	SecretColumn string
	// LoginColumn is matched against the login identifier.
	LoginColumn  string
	// Active reports whether the record may authenticate.
	Active       func(u *User) bool
}

var roleSpecs = map[Role]RoleSpec{
	RoleAdmin: {
		Table:        "admins",
		Columns:      "id, name, email, status::text, true",
		SecretColumn: "admin_password",
		LoginColumn:  "email",
		Active:       func(u *User) bool { return u.Status == "1" },
	},
	RoleDeliveryAgent: {
		Table:        "delivery_agents",
		Columns:      "id, name, email, status, true",
		SecretColumn: "agent_password",
		LoginColumn:  "email",
		Active:       func(u *User) bool { return u.Status == "active" },
	},
	RoleCustomer: {
		Table:        "users",
		Columns:      "id, name, email, '', is_active",
		SecretColumn: "password",
		LoginColumn:  "email",
		Active:       func(u *User) bool { return u.Enabled },
	},
}

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := roleSpecs[r]; !ok {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := roleSpecs[r]
	return ok
}

// Spec returns the storage and status description for r.
func (r Role) Spec() (RoleSpec, bool) {
	spec, ok := roleSpecs[r]
	return spec, ok
}

func (r Role) String() string {
	return string(r)
}

// User represents an authenticated identity of any role, without secret fields.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Email     string    `json:"email,omitempty"`
	Role      Role      `json:"role"`
	Status    string    `json:"status,omitempty"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsActive applies the role-specific status predicate. It must be evaluated on
// every read, cached record or not.
func (u *User) IsActive() bool {
	if u == nil {
		return false
	}
	spec, ok := u.Role.Spec()
	if !ok {
		return false
	}
	return spec.Active(u)
}

// Credentials pairs a user with its stored password hash for login checks.
type Credentials struct {
	User         *User
	PasswordHash string
}
