package token

import (
	"strings"

	"github.com/fastygo/courier-auth/domain"
)

// Presented is a refresh credential as classified by Parse. It is one of
// Signed, Opaque or Rejected.
type Presented interface {
	presented()
}

// Signed is a verified refresh token.
type Signed struct {
	Raw    string
	Claims *Claims
}

// Opaque is a pre-migration random refresh string, only resolvable by exact match.
type Opaque struct {
	Value string
}

// Rejected is a JWT that failed verification or is not refresh-typed.
type Rejected struct {
	Err error
}

func (Signed) presented()   {}
func (Opaque) presented()   {}
func (Rejected) presented() {}

// Parse classifies a presented refresh credential in a single step.
func (c *Codec) Parse(raw string) Presented {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Rejected{Err: domain.ErrTokenMalformed}
	}
	if !LooksSigned(raw) {
		return Opaque{Value: raw}
	}
	claims, err := c.Verify(raw)
	if err != nil {
		return Rejected{Err: err}
	}
	if claims.Type != TypeRefresh {
		return Rejected{Err: domain.ErrTokenMalformed}
	}
	return Signed{Raw: raw, Claims: claims}
}
