package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/FeliciaLa/ExpertA-sub000/internal/upstream"
)

// withAccess runs call with the session's access token, refreshing it and
// replaying the call at most once when the upstream rejects the credential.
func (m *Manager) withAccess(ctx context.Context, sid string, call func(access string) error) error {
	sess, err := m.store.Load(ctx, sid)
	if err != nil {
		return ErrSessionExpired
	}
	access := sess.Credential.AccessToken

	// An access token already past its exp claim is guaranteed to bounce,
	// so refresh up front and save the round-trip.
	if tokenExpired(access, time.Now()) {
		if access, err = m.refreshAccess(ctx, sid, access); err != nil {
			return err
		}
	}

	err = call(access)
	if err == nil || !errors.Is(err, upstream.ErrUnauthorized) {
		return err
	}

	access, rerr := m.refreshAccess(ctx, sid, access)
	if rerr != nil {
		return rerr
	}
	// One replay with the fresh token. A second rejection means the upstream
	// does not honor tokens the coordinator can mint, so only a fresh
	// sign-in can help.
	err = call(access)
	if errors.Is(err, upstream.ErrUnauthorized) {
		return fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}
	return err
}

// refreshAccess exchanges the session's refresh token for a new access token.
// Concurrent failures for the same session collapse into one exchange; every
// waiter observes the same outcome. A spent refresh token destroys the
// session and surfaces ErrSessionExpired.
func (m *Manager) refreshAccess(ctx context.Context, sid, stale string) (string, error) {
	v, err, _ := m.refresh.Do(sid, func() (any, error) {
		sess, err := m.store.Load(ctx, sid)
		if err != nil {
			return nil, ErrSessionExpired
		}

		// A previous flight may have refreshed while this caller waited
		// for the lock; reuse its result instead of spending the refresh
		// token again.
		if current := sess.Credential.AccessToken; current != "" && current != stale {
			return current, nil
		}

		access, err := m.ids.Refresh(ctx, sess.Credential.RefreshToken)
		if err != nil {
			// Only an actual rejection of the refresh token ends the
			// session. Cancelled contexts, network trouble and broken
			// response bodies leave the stored credential alone; the
			// next call retries the exchange.
			if !refreshRejected(err) {
				return nil, err
			}
			if cerr := m.store.Clear(ctx, sid); cerr != nil {
				m.logger.Warn("clear expired session", "error", cerr)
			}
			return nil, fmt.Errorf("%w: %v", ErrSessionExpired, err)
		}

		sess.Credential.AccessToken = access
		if err := m.store.Save(ctx, sid, sess); err != nil {
			return nil, fmt.Errorf("persist refreshed session: %w", err)
		}
		return access, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// refreshRejected reports whether the identity store refused the refresh
// token itself, as opposed to the exchange failing for reasons a retry can
// fix.
func refreshRejected(err error) bool {
	if errors.Is(err, upstream.ErrUnauthorized) {
		return true
	}
	var ue *upstream.Error
	return errors.As(err, &ue) && ue.Status >= 400 && ue.Status < 500
}

// tokenExpired decodes the exp claim of a JWT access token without verifying
// the signature; the identity store owns the signing secret. Opaque tokens
// report false and rely on the 401 path.
func tokenExpired(access string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(access, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return now.After(exp.Time)
}
