package quota

import (
	"errors"
	"sync"
)

// ErrQuotaExceeded indicates the caller has no turns left against this expert
// and the next message must be blocked pending payment.
var ErrQuotaExceeded = errors.New("quota exceeded")

// Policy is the metering policy governing one expert. Experts without
// monetization are unlimited.
type Policy struct {
	Metered   bool
	FreeTurns int
	PaidTurns int
}

// State describes which quota window currently governs a chat session.
type State string

const (
	StateUnmetered State = "unmetered"
	StateFreeTier  State = "free_tier"
	StatePaidTier  State = "paid_tier"
	StateBlocked   State = "blocked"
)

// ChatSession is the ephemeral quota record for one (caller, expert) pair.
// TotalMessages is authoritative from the conversation engine and counts both
// sides of each turn, so turns consumed = TotalMessages / 2.
type ChatSession struct {
	CallerID         string
	ExpertID         string
	TotalMessages    int
	HasPaidCredit    bool
	PaidBaseMessages int
}

type entry struct {
	ChatSession
	// pending counts turns reserved by in-flight sends that have not yet
	// been observed, so two concurrent sends cannot both spend the last one.
	pending int
}

// Meter tracks chat sessions and decides whether the next message may proceed.
// It is advisory client-side gating; the conversation engine enforces the
// authoritative block server-side.
type Meter struct {
	mu       sync.Mutex
	sessions map[string]*entry
}

// NewMeter builds an empty usage meter.
func NewMeter() *Meter {
	return &Meter{sessions: make(map[string]*entry)}
}

func sessionKey(callerID, expertID string) string {
	return callerID + "|" + expertID
}

func (m *Meter) get(callerID, expertID string) *entry {
	key := sessionKey(callerID, expertID)
	e, ok := m.sessions[key]
	if !ok {
		e = &entry{ChatSession: ChatSession{CallerID: callerID, ExpertID: expertID}}
		m.sessions[key] = e
	}
	return e
}

// Reserve claims one turn ahead of an outbound message. It returns
// ErrQuotaExceeded when the expert is metered and no allowance remains once
// in-flight reservations are counted. Every successful Reserve must be paired
// with Observe or Release.
func (m *Meter) Reserve(callerID, expertID string, p Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.get(callerID, expertID)
	if p.Metered && remainingOf(&e.ChatSession, p)-e.pending <= 0 {
		return ErrQuotaExceeded
	}
	e.pending++
	return nil
}

// Release drops a reservation whose send failed before a response arrived.
func (m *Meter) Release(callerID, expertID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.get(callerID, expertID)
	if e.pending > 0 {
		e.pending--
	}
}

// Observe settles a reservation with the server-reported message total.
// Totals are replaced, never incremented, and a report lower than the held
// value is discarded so a stale slow response cannot overwrite a fresher one.
func (m *Meter) Observe(callerID, expertID string, total int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.get(callerID, expertID)
	if e.pending > 0 {
		e.pending--
	}
	if total > e.TotalMessages {
		e.TotalMessages = total
	}
}

// ApplyPayment flips the session into the paid tier. The paid window starts
// counting from the current total, so turns consumed under the free tier do
// not eat into the purchased pack.
func (m *Meter) ApplyPayment(callerID, expertID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.get(callerID, expertID)
	e.HasPaidCredit = true
	e.PaidBaseMessages = e.TotalMessages
}

// Remaining reports how many turns are left under the governing window.
func (m *Meter) Remaining(callerID, expertID string, p Policy) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.get(callerID, expertID)
	return remainingOf(&e.ChatSession, p)
}

// CanSend reports whether the next message may proceed without payment.
func (m *Meter) CanSend(callerID, expertID string, p Policy) bool {
	if !p.Metered {
		return true
	}
	return m.Remaining(callerID, expertID, p) > 0
}

// State reports the governing quota window for UI consumption.
func (m *Meter) State(callerID, expertID string, p Policy) State {
	if !p.Metered {
		return StateUnmetered
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.get(callerID, expertID)
	if remainingOf(&e.ChatSession, p) <= 0 {
		return StateBlocked
	}
	if e.HasPaidCredit {
		return StatePaidTier
	}
	return StateFreeTier
}

// Session returns a copy of the quota record for one pair.
func (m *Meter) Session(callerID, expertID string) ChatSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(callerID, expertID).ChatSession
}

// ForgetCaller drops all quota state for a caller, e.g. on sign-out. State is
// rebuilt from server-authoritative totals on the next message.
func (m *Meter) ForgetCaller(callerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, e := range m.sessions {
		if e.CallerID == callerID {
			delete(m.sessions, key)
		}
	}
}

func remainingOf(s *ChatSession, p Policy) int {
	var left int
	if s.HasPaidCredit {
		left = p.PaidTurns - (s.TotalMessages-s.PaidBaseMessages)/2
	} else {
		left = p.FreeTurns - s.TotalMessages/2
	}
	if left < 0 {
		return 0
	}
	return left
}
