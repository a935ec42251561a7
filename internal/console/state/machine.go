// Package state tracks the console's authentication status and owns the
// current identity. The machine is an explicit, injectable container with a
// defined lifecycle (Initialize, transition methods, observers), never an
// ambient singleton.
package state

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/chatcenter/authkit/internal/console/tokenstore"
	"github.com/chatcenter/authkit/internal/core/domain"
	"github.com/chatcenter/authkit/internal/core/ports"
)

// TokenSource produces a usable access token, refreshing if needed.
// Implemented by the refresh coordinator.
type TokenSource interface {
	EnsureFreshAccessToken(ctx context.Context) (string, error)
}

// Snapshot is the observable state at one point in time. Identity is only
// non-nil while authenticated; Err carries the reason for the most recent
// failed transition.
type Snapshot struct {
	Status   domain.AuthStatus
	Identity *domain.Identity
	Err      error
}

// Observer receives state snapshots. Observers are notified in registration
// order. An observer must not drive a transition synchronously from inside
// the callback; schedule it instead (reentrant transitions would interleave
// notifications).
type Observer func(Snapshot)

// Config wires a Machine. Store and Auth are required; the TokenSource is
// attached separately because the refresh coordinator needs the machine (as
// its epoch gate) before the machine needs it.
type Config struct {
	Store tokenstore.Store
	Auth  ports.Authenticator
	Log   zerolog.Logger
}

// Machine is the authentication state machine.
type Machine struct {
	store tokenstore.Store
	auth  ports.Authenticator
	log   zerolog.Logger

	mu             sync.Mutex
	status         domain.AuthStatus
	identity       *domain.Identity
	lastErr        error
	challengeToken string
	observers      []Observer
	tokens         TokenSource

	epoch atomic.Uint64
}

func NewMachine(cfg Config) *Machine {
	return &Machine{
		store:  cfg.Store,
		auth:   cfg.Auth,
		log:    cfg.Log,
		status: domain.StatusUninitialized,
	}
}

// AttachTokenSource binds the refresh coordinator. Must be called before
// Initialize; split from the constructor because the coordinator is built
// with the machine as its session gate.
func (m *Machine) AttachTokenSource(ts TokenSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = ts
}

// Subscribe registers an observer and returns an unsubscribe func.
// Notification order follows registration order.
func (m *Machine) Subscribe(obs Observer) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.observers = append(m.observers, obs)
	idx := len(m.observers) - 1
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.observers[idx] = nil
	}
}

// Status returns the current authentication status.
func (m *Machine) Status() domain.AuthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Identity returns the current identity, nil unless authenticated.
func (m *Machine) Identity() *domain.Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity
}

// Err returns the reason attached to the most recent transition to Anonymous
// or Error, nil after a successful one.
func (m *Machine) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// SessionEpoch implements refresh.Gate. The epoch advances every time the
// session ends, so refresh results started under an older epoch are
// discarded by the coordinator.
func (m *Machine) SessionEpoch() uint64 {
	return m.epoch.Load()
}

// SessionExpired implements refresh.Sink: the token layer determined the
// session is over. The machine owns the consequences, clearing the stored
// pair and dropping to Anonymous. Internal causes collapse to the generic
// session-expired signal; the specific cause is logged, not surfaced.
func (m *Machine) SessionExpired(cause error) {
	m.log.Warn().Err(cause).Msg("session expired")
	if err := m.store.Clear(); err != nil {
		m.log.Error().Err(err).Msg("failed to clear token store")
	}
	m.toAnonymous(domain.ErrSessionExpired)
}

// Initialize resolves Uninitialized on app start: a stored pair that is valid
// or refreshable yields Authenticated, anything else yields Anonymous.
func (m *Machine) Initialize(ctx context.Context) error {
	if m.Status() != domain.StatusUninitialized {
		return errors.New("state: already initialized")
	}

	if _, ok := m.store.Get(); !ok {
		m.toAnonymous(nil)
		return nil
	}

	token, err := m.tokens.EnsureFreshAccessToken(ctx)
	if err != nil {
		// The coordinator already cleared the store and reported the cause.
		m.toAnonymous(nil)
		return nil
	}

	identity, err := m.auth.FetchIdentity(ctx, token)
	if err != nil {
		if clearErr := m.store.Clear(); clearErr != nil {
			m.log.Error().Err(clearErr).Msg("failed to clear token store")
		}
		m.toAnonymous(nil)
		return nil
	}

	m.transition(domain.StatusAuthenticated, identity, nil)
	return nil
}

// Login submits credentials. On success the machine lands in Authenticated,
// or TwoFactorPending when the account requires a second factor (no
// credentials are stored in that case).
func (m *Machine) Login(ctx context.Context, email, password string) error {
	if s := m.Status(); s != domain.StatusAnonymous {
		return errors.New("state: login requires anonymous status")
	}

	m.transition(domain.StatusAuthenticating, nil, nil)

	res, err := m.auth.Login(ctx, email, password)
	if err != nil {
		m.failAuth(err)
		return err
	}

	if res.TwoFactorRequired {
		m.mu.Lock()
		m.challengeToken = res.ChallengeToken
		m.mu.Unlock()
		m.transition(domain.StatusTwoFactorPending, nil, nil)
		return nil
	}

	return m.applyCredentials(res)
}

// VerifyCode completes a pending second-factor challenge.
func (m *Machine) VerifyCode(ctx context.Context, code string) error {
	m.mu.Lock()
	challenge := m.challengeToken
	status := m.status
	m.mu.Unlock()

	if status != domain.StatusTwoFactorPending {
		return errors.New("state: no pending second-factor challenge")
	}

	res, err := m.auth.VerifyCode(ctx, challenge, code)
	if err != nil {
		m.failAuth(err)
		return err
	}

	return m.applyCredentials(res)
}

// Logout ends the session. The server call is best-effort; local state
// clears regardless of its outcome.
func (m *Machine) Logout(ctx context.Context) {
	pair, ok := m.store.Get()
	if ok {
		if err := m.auth.Logout(ctx, pair.AccessToken); err != nil {
			m.log.Warn().Err(err).Msg("server logout failed, clearing locally")
		}
	}

	if err := m.store.Clear(); err != nil {
		m.log.Error().Err(err).Msg("failed to clear token store")
	}
	m.toAnonymous(nil)
}

func (m *Machine) applyCredentials(res *ports.LoginResult) error {
	if res.Credentials == nil || res.Identity == nil {
		err := errors.New("state: collaborator returned no credentials")
		m.failAuth(err)
		return err
	}

	if err := m.store.Set(*res.Credentials); err != nil {
		m.failAuth(err)
		return err
	}

	m.transition(domain.StatusAuthenticated, res.Identity, nil)
	return nil
}

// failAuth routes a collaborator failure. Known authentication outcomes
// surface verbatim and land in Anonymous; anything else passes through the
// transient Error state once before resolving to Anonymous.
func (m *Machine) failAuth(err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials),
		errors.Is(err, domain.ErrInvalidCode),
		errors.Is(err, domain.ErrAccountLocked):
		m.toAnonymous(err)
	default:
		m.transition(domain.StatusError, nil, err)
		m.toAnonymous(err)
	}
}

func (m *Machine) toAnonymous(reason error) {
	m.transition(domain.StatusAnonymous, nil, reason)
}

// transition applies the state change synchronously, then notifies observers
// outside the lock in registration order.
func (m *Machine) transition(next domain.AuthStatus, identity *domain.Identity, reason error) {
	m.mu.Lock()

	if m.status == next && next != domain.StatusAnonymous {
		m.mu.Unlock()
		return
	}
	if !m.status.CanTransitionTo(next) && m.status != next {
		m.log.Debug().
			Str("from", string(m.status)).
			Str("to", string(next)).
			Msg("transition skipped")
		m.mu.Unlock()
		return
	}

	m.status = next
	m.identity = identity
	m.lastErr = reason
	if next != domain.StatusTwoFactorPending {
		m.challengeToken = ""
	}
	if next == domain.StatusAnonymous {
		m.epoch.Add(1)
	}

	observers := make([]Observer, len(m.observers))
	copy(observers, m.observers)
	snap := Snapshot{Status: m.status, Identity: m.identity, Err: m.lastErr}
	m.mu.Unlock()

	for _, obs := range observers {
		if obs != nil {
			obs(snap)
		}
	}
}
