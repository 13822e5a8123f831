package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/FeliciaLa/ExpertA-sub000/internal/chat"
	"github.com/FeliciaLa/ExpertA-sub000/internal/identity"
	"github.com/FeliciaLa/ExpertA-sub000/internal/payment"
	"github.com/FeliciaLa/ExpertA-sub000/internal/quota"
	"github.com/FeliciaLa/ExpertA-sub000/internal/token"
)

// ErrSessionExpired indicates the caller's refresh token is spent and a fresh
// sign-in is required.
var ErrSessionExpired = errors.New("session expired")

// ManagerConfig aggregates the collaborators composed by the façade.
type ManagerConfig struct {
	Store    token.Store
	Identity *identity.Client
	Meter    *quota.Meter
	Chat     *chat.Client
	Payments *payment.Service
	Logger   *slog.Logger

	// Fallback allowances for experts whose profile publishes none.
	FreeTurns int
	PaidTurns int
}

// Manager is the session façade: the only component the HTTP surface talks
// to. It owns the token lifecycle, role-resolved identity, usage metering and
// the single-flight refresh coordinator.
type Manager struct {
	store    token.Store
	ids      *identity.Client
	meter    *quota.Meter
	chat     *chat.Client
	payments *payment.Service
	logger   *slog.Logger

	freeTurns int
	paidTurns int

	refresh singleflight.Group

	policyMu sync.RWMutex
	policies map[string]quota.Policy
}

// NewManager builds the session façade.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.FreeTurns <= 0 {
		cfg.FreeTurns = 3
	}
	if cfg.PaidTurns <= 0 {
		cfg.PaidTurns = 20
	}
	return &Manager{
		store:     cfg.Store,
		ids:       cfg.Identity,
		meter:     cfg.Meter,
		chat:      cfg.Chat,
		payments:  cfg.Payments,
		logger:    cfg.Logger,
		freeTurns: cfg.FreeTurns,
		paidTurns: cfg.PaidTurns,
		policies:  make(map[string]quota.Policy),
	}
}

// SignInResult carries the new gateway session and its identity.
type SignInResult struct {
	SessionID string
	Identity  identity.Identity
	Message   string
}

// SignIn authenticates against the identity store and establishes a gateway
// session. Credential failures surface identity.ErrInvalidCredentials.
func (m *Manager) SignIn(ctx context.Context, email, password string) (SignInResult, error) {
	res, err := m.ids.Login(ctx, email, password)
	if err != nil {
		return SignInResult{}, err
	}

	sid := uuid.NewString()
	sess := token.Session{
		Credential: token.Credential{
			AccessToken:  res.Tokens.Access,
			RefreshToken: res.Tokens.Refresh,
		},
		Identity: res.Identity,
	}
	if err := m.store.Save(ctx, sid, sess); err != nil {
		return SignInResult{}, fmt.Errorf("persist session: %w", err)
	}

	m.logger.Info("sign-in", "caller", res.Identity.ID, "role", res.Identity.Role)
	return SignInResult{SessionID: sid, Identity: res.Identity, Message: res.Message}, nil
}

// RegisterResult describes the outcome of an account registration.
type RegisterResult struct {
	SessionID            string
	Identity             identity.Identity
	Message              string
	VerificationRequired bool
}

// Register creates an account. When the identity store holds the account for
// e-mail verification no session is established and the caller stays logged
// out until verification completes out-of-band.
func (m *Manager) Register(ctx context.Context, input identity.RegisterInput) (RegisterResult, error) {
	res, err := m.ids.Register(ctx, input)
	if err != nil {
		return RegisterResult{}, err
	}
	if res.VerificationRequired {
		return RegisterResult{Message: res.Message, VerificationRequired: true}, nil
	}

	sid := uuid.NewString()
	sess := token.Session{
		Credential: token.Credential{
			AccessToken:  res.Tokens.Access,
			RefreshToken: res.Tokens.Refresh,
		},
		Identity: res.Identity,
	}
	if err := m.store.Save(ctx, sid, sess); err != nil {
		return RegisterResult{}, fmt.Errorf("persist session: %w", err)
	}
	return RegisterResult{SessionID: sid, Identity: res.Identity, Message: res.Message}, nil
}

// SignOut destroys the gateway session and all derived quota state. It is
// idempotent: signing out an already-absent session succeeds.
func (m *Manager) SignOut(ctx context.Context, sid string) error {
	if sess, err := m.store.Load(ctx, sid); err == nil {
		m.meter.ForgetCaller(sess.Identity.ID)
	}
	return m.store.Clear(ctx, sid)
}

// Me fetches the profile behind the session, re-resolving the role, and
// persists any server-side change so derived capabilities update everywhere.
func (m *Manager) Me(ctx context.Context, sid string) (identity.Identity, error) {
	var ident identity.Identity
	err := m.withAccess(ctx, sid, func(access string) error {
		got, err := m.ids.Profile(ctx, access)
		if err == nil {
			ident = got
		}
		return err
	})
	if err != nil {
		return identity.Identity{}, err
	}

	if sess, err := m.store.Load(ctx, sid); err == nil && sess.Identity != ident {
		sess.Identity = ident
		if err := m.store.Save(ctx, sid, sess); err != nil {
			m.logger.Warn("persist identity change", "caller", ident.ID, "error", err)
		}
	}
	return ident, nil
}

// ChatResult is the façade's answer to one sent message.
type ChatResult struct {
	Answer        string
	TotalMessages int
	Remaining     int
	State         quota.State
}

// SendMessage gates one message behind the usage meter, forwards it to the
// conversation engine and settles the quota with the server-reported total.
// A blocked quota returns quota.ErrQuotaExceeded without touching the engine.
func (m *Manager) SendMessage(ctx context.Context, sid, expertID, text string) (ChatResult, error) {
	sess, err := m.store.Load(ctx, sid)
	if err != nil {
		return ChatResult{}, ErrSessionExpired
	}
	callerID := sess.Identity.ID

	policy, err := m.expertPolicy(ctx, sid, expertID)
	if err != nil {
		return ChatResult{}, err
	}

	if err := m.meter.Reserve(callerID, expertID, policy); err != nil {
		return ChatResult{}, err
	}

	var reply chat.Reply
	err = m.withAccess(ctx, sid, func(access string) error {
		got, err := m.chat.Send(ctx, access, expertID, text)
		if err == nil {
			reply = got
		}
		return err
	})
	if err != nil {
		m.meter.Release(callerID, expertID)
		return ChatResult{}, err
	}

	m.meter.Observe(callerID, expertID, reply.TotalMessages)
	return ChatResult{
		Answer:        reply.Answer,
		TotalMessages: reply.TotalMessages,
		Remaining:     m.meter.Remaining(callerID, expertID, policy),
		State:         m.meter.State(callerID, expertID, policy),
	}, nil
}

// QuotaStatus reports the quota window governing one (caller, expert) pair.
type QuotaStatus struct {
	State         quota.State
	Remaining     int
	TotalMessages int
	HasPaidCredit bool
}

// Quota returns the current quota status for UI consumption.
func (m *Manager) Quota(ctx context.Context, sid, expertID string) (QuotaStatus, error) {
	sess, err := m.store.Load(ctx, sid)
	if err != nil {
		return QuotaStatus{}, ErrSessionExpired
	}
	callerID := sess.Identity.ID

	policy, err := m.expertPolicy(ctx, sid, expertID)
	if err != nil {
		return QuotaStatus{}, err
	}

	chatSession := m.meter.Session(callerID, expertID)
	return QuotaStatus{
		State:         m.meter.State(callerID, expertID, policy),
		Remaining:     m.meter.Remaining(callerID, expertID, policy),
		TotalMessages: chatSession.TotalMessages,
		HasPaidCredit: chatSession.HasPaidCredit,
	}, nil
}

// CreatePaymentIntent prepares a message-pack charge for one expert.
func (m *Manager) CreatePaymentIntent(ctx context.Context, sid, expertID string) (payment.Intent, error) {
	var intent payment.Intent
	err := m.withAccess(ctx, sid, func(access string) error {
		got, err := m.payments.CreateIntent(ctx, access, expertID)
		if err == nil {
			intent = got
		}
		return err
	})
	return intent, err
}

// ConfirmPayment settles a charge and, on success, transitions the chat
// session into the paid tier. A declined payment mutates no quota state and
// is never retried here.
func (m *Manager) ConfirmPayment(ctx context.Context, sid, expertID, intentID string) (payment.Outcome, error) {
	sess, err := m.store.Load(ctx, sid)
	if err != nil {
		return payment.Outcome{}, ErrSessionExpired
	}
	callerID := sess.Identity.ID

	var outcome payment.Outcome
	err = m.withAccess(ctx, sid, func(access string) error {
		got, err := m.payments.Confirm(ctx, access, callerID, expertID, intentID)
		outcome = got
		return err
	})
	if err != nil {
		return outcome, err
	}

	m.meter.ApplyPayment(callerID, expertID)
	m.logger.Info("payment applied", "caller", callerID, "expert", expertID, "amount", outcome.Amount)
	return outcome, nil
}

// Receipts lists the caller's recorded purchases.
func (m *Manager) Receipts(ctx context.Context, sid string) ([]payment.Receipt, error) {
	sess, err := m.store.Load(ctx, sid)
	if err != nil {
		return nil, ErrSessionExpired
	}
	return m.payments.Receipts(ctx, sess.Identity.ID)
}

// expertPolicy resolves and caches the metering policy for an expert.
// Policies are near-static so the cache has no expiry; a restart refreshes.
func (m *Manager) expertPolicy(ctx context.Context, sid, expertID string) (quota.Policy, error) {
	m.policyMu.RLock()
	policy, ok := m.policies[expertID]
	m.policyMu.RUnlock()
	if ok {
		return policy, nil
	}

	var published identity.ExpertPolicy
	err := m.withAccess(ctx, sid, func(access string) error {
		got, err := m.ids.ExpertPolicy(ctx, access, expertID)
		if err == nil {
			published = got
		}
		return err
	})
	if err != nil {
		return quota.Policy{}, err
	}

	policy = quota.Policy{
		Metered:   published.MonetizationEnabled,
		FreeTurns: published.FreeTurns,
		PaidTurns: published.PaidTurns,
	}
	if policy.FreeTurns <= 0 {
		policy.FreeTurns = m.freeTurns
	}
	if policy.PaidTurns <= 0 {
		policy.PaidTurns = m.paidTurns
	}

	m.policyMu.Lock()
	m.policies[expertID] = policy
	m.policyMu.Unlock()
	return policy, nil
}
