package token

import (
	"context"
	"errors"

	"github.com/FeliciaLa/ExpertA-sub000/internal/identity"
)

// ErrNoSession indicates there is no usable session for the given id. Partial
// or corrupt records are reported the same way: the store fails closed rather
// than surfacing a half-valid session.
var ErrNoSession = errors.New("no session")

// Credential is the bearer pair for one signed-in caller. It is mutated only
// by a successful login, a successful refresh, or an explicit sign-out.
type Credential struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Session couples a credential with its resolved identity. The two are always
// written and removed together so a credential without an identity (or the
// reverse) is never observable.
type Session struct {
	Credential Credential        `json:"credential"`
	Identity   identity.Identity `json:"identity"`
}

// Store persists sessions keyed by an opaque session id.
type Store interface {
	// Load returns the session for sid, or ErrNoSession when absent or invalid.
	Load(ctx context.Context, sid string) (Session, error)
	// Save writes credential and identity as one record.
	Save(ctx context.Context, sid string, session Session) error
	// Clear removes the session. Clearing an absent session is not an error.
	Clear(ctx context.Context, sid string) error
}

// valid enforces the minimum shape of a loadable session.
func valid(s Session) bool {
	if s.Credential.AccessToken == "" || s.Credential.RefreshToken == "" {
		return false
	}
	return s.Identity.ID != "" && s.Identity.Email != "" && s.Identity.Name != ""
}
