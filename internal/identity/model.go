package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Role discriminates the two account kinds sharing the identity store.
type Role string

const (
	RoleUser   Role = "user"
	RoleExpert Role = "expert"
)

// ErrIncompleteProfile indicates the identity payload is missing a required
// field. Callers treat the session as logged out rather than surfacing a
// partially-valid identity.
var ErrIncompleteProfile = errors.New("incomplete identity profile")

// Identity is the resolved account behind a bearer token. Role is the single
// source of authorization truth; the capability flags are computed on read and
// cannot drift apart.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  Role   `json:"role"`

	Specialty string `json:"specialty,omitempty"`
	Industry  string `json:"industry,omitempty"`
}

// IsUser reports whether the identity is a regular user account.
func (i Identity) IsUser() bool { return i.Role == RoleUser }

// IsExpert reports whether the identity is an expert account.
func (i Identity) IsExpert() bool { return i.Role == RoleExpert }

// Payload is the raw identity document returned by the identity store. Older
// records carry only the legacy is_expert boolean instead of a role field.
type Payload struct {
	ID        flexID `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	IsExpert  *bool  `json:"is_expert"`
	Specialty string `json:"specialty"`
	Industry  string `json:"industry"`
}

// ResolveRole maps a raw payload to exactly one role. An explicit role field
// wins, then the legacy boolean, then the user default.
func ResolveRole(p Payload) Role {
	switch strings.ToLower(strings.TrimSpace(p.Role)) {
	case string(RoleExpert):
		return RoleExpert
	case string(RoleUser):
		return RoleUser
	}
	if p.IsExpert != nil && *p.IsExpert {
		return RoleExpert
	}
	return RoleUser
}

// FromPayload validates a raw payload and resolves it into an Identity.
func FromPayload(p Payload) (Identity, error) {
	id := strings.TrimSpace(string(p.ID))
	if id == "" || strings.TrimSpace(p.Email) == "" || strings.TrimSpace(p.Name) == "" {
		return Identity{}, ErrIncompleteProfile
	}
	return Identity{
		ID:        id,
		Email:     p.Email,
		Name:      p.Name,
		Role:      ResolveRole(p),
		Specialty: p.Specialty,
		Industry:  p.Industry,
	}, nil
}

// flexID tolerates identity stores that serialize primary keys as numbers.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexID(n.String())
		return nil
	}
	return fmt.Errorf("id is neither string nor number")
}
