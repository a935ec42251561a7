package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/chatcenter/authkit/internal/console/tokenstore"
	"github.com/chatcenter/authkit/internal/core/domain"
	"github.com/chatcenter/authkit/internal/core/ports"
)

func freshToken(t *testing.T) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

type stubAuth struct {
	loginResult  *ports.LoginResult
	loginErr     error
	verifyResult *ports.LoginResult
	verifyErr    error
	identity     *domain.Identity
	identityErr  error
	logoutCalled bool
	verifyToken  string
}

func (s *stubAuth) Login(_ context.Context, email, password string) (*ports.LoginResult, error) {
	return s.loginResult, s.loginErr
}

func (s *stubAuth) VerifyCode(_ context.Context, challengeToken, code string) (*ports.LoginResult, error) {
	s.verifyToken = challengeToken
	return s.verifyResult, s.verifyErr
}

func (s *stubAuth) Refresh(_ context.Context, refreshToken string) (*domain.Credentials, error) {
	return nil, domain.ErrInvalidRefreshToken
}

func (s *stubAuth) FetchIdentity(_ context.Context, accessToken string) (*domain.Identity, error) {
	return s.identity, s.identityErr
}

func (s *stubAuth) Logout(_ context.Context, accessToken string) error {
	s.logoutCalled = true
	return nil
}

type stubTokens struct {
	token string
	err   error
}

func (s *stubTokens) EnsureFreshAccessToken(_ context.Context) (string, error) {
	return s.token, s.err
}

func newMachine(t *testing.T, store tokenstore.Store, auth ports.Authenticator, tokens TokenSource) *Machine {
	t.Helper()
	m := NewMachine(Config{Store: store, Auth: auth, Log: zerolog.Nop()})
	if tokens != nil {
		m.AttachTokenSource(tokens)
	}
	return m
}

func TestInitialize_NoStoredPairYieldsAnonymous(t *testing.T) {
	m := newMachine(t, tokenstore.NewMemory(), &stubAuth{}, &stubTokens{})

	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if m.Status() != domain.StatusAnonymous {
		t.Fatalf("expected Anonymous, got %s", m.Status())
	}
}

func TestInitialize_StoredPairYieldsAuthenticated(t *testing.T) {
	store := tokenstore.NewMemory()
	_ = store.Set(domain.Credentials{AccessToken: freshToken(t), RefreshToken: "r1"})

	id := &domain.Identity{ID: "u1", Email: "alice@example.com"}
	m := newMachine(t, store, &stubAuth{identity: id}, &stubTokens{token: "access"})

	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if m.Status() != domain.StatusAuthenticated {
		t.Fatalf("expected Authenticated, got %s", m.Status())
	}
	if got := m.Identity(); got == nil || got.ID != "u1" {
		t.Fatalf("identity not set: %+v", got)
	}
}

func TestInitialize_IdentityFetchFailureYieldsAnonymous(t *testing.T) {
	store := tokenstore.NewMemory()
	_ = store.Set(domain.Credentials{AccessToken: freshToken(t), RefreshToken: "r1"})

	m := newMachine(t, store, &stubAuth{identityErr: domain.ErrUnauthorized}, &stubTokens{token: "access"})

	_ = m.Initialize(context.Background())
	if m.Status() != domain.StatusAnonymous {
		t.Fatalf("expected Anonymous, got %s", m.Status())
	}
	if _, ok := store.Get(); ok {
		t.Fatalf("store not cleared after identity fetch failure")
	}
}

func TestLogin_SuccessWithoutSecondFactor(t *testing.T) {
	store := tokenstore.NewMemory()
	id := &domain.Identity{ID: "u1"}
	auth := &stubAuth{loginResult: &ports.LoginResult{
		Identity:    id,
		Credentials: &domain.Credentials{AccessToken: "a1", RefreshToken: "r1"},
	}}
	m := newMachine(t, store, auth, nil)
	m.toAnonymous(nil)

	if err := m.Login(context.Background(), "alice@example.com", "pw"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if m.Status() != domain.StatusAuthenticated {
		t.Fatalf("expected Authenticated, got %s", m.Status())
	}
	pair, ok := store.Get()
	if !ok || pair.AccessToken != "a1" {
		t.Fatalf("credentials not stored: %+v", pair)
	}
}

func TestLogin_InvalidCredentialsReturnsToAnonymous(t *testing.T) {
	m := newMachine(t, tokenstore.NewMemory(), &stubAuth{loginErr: domain.ErrInvalidCredentials}, nil)
	m.toAnonymous(nil)

	err := m.Login(context.Background(), "alice@example.com", "bad")
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if m.Status() != domain.StatusAnonymous {
		t.Fatalf("expected Anonymous, got %s", m.Status())
	}
	if !errors.Is(m.Err(), domain.ErrInvalidCredentials) {
		t.Fatalf("error reason not retained: %v", m.Err())
	}
}

func TestLogin_SecondFactorFlow(t *testing.T) {
	store := tokenstore.NewMemory()
	id := &domain.Identity{ID: "u1", TwoFactorEnabled: true}
	auth := &stubAuth{
		loginResult: &ports.LoginResult{TwoFactorRequired: true, ChallengeToken: "ch1"},
		verifyResult: &ports.LoginResult{
			Identity:    id,
			Credentials: &domain.Credentials{AccessToken: "a1", RefreshToken: "r1"},
		},
	}
	m := newMachine(t, store, auth, nil)
	m.toAnonymous(nil)

	var transitions []domain.AuthStatus
	m.Subscribe(func(s Snapshot) { transitions = append(transitions, s.Status) })

	if err := m.Login(context.Background(), "alice@example.com", "pw"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if m.Status() != domain.StatusTwoFactorPending {
		t.Fatalf("expected TwoFactorPending, got %s", m.Status())
	}
	if _, ok := store.Get(); ok {
		t.Fatalf("no credentials may be stored before the code is verified")
	}

	if err := m.VerifyCode(context.Background(), "123456"); err != nil {
		t.Fatalf("verify code: %v", err)
	}
	if auth.verifyToken != "ch1" {
		t.Fatalf("challenge token not forwarded: %q", auth.verifyToken)
	}
	if m.Status() != domain.StatusAuthenticated {
		t.Fatalf("expected Authenticated, got %s", m.Status())
	}
	if _, ok := store.Get(); !ok {
		t.Fatalf("credentials missing after verification")
	}

	want := []domain.AuthStatus{
		domain.StatusAuthenticating,
		domain.StatusTwoFactorPending,
		domain.StatusAuthenticated,
	}
	if len(transitions) != len(want) {
		t.Fatalf("transitions %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Fatalf("transitions %v, want %v", transitions, want)
		}
	}
}

func TestVerifyCode_InvalidCodeReturnsToAnonymous(t *testing.T) {
	auth := &stubAuth{
		loginResult: &ports.LoginResult{TwoFactorRequired: true, ChallengeToken: "ch1"},
		verifyErr:   domain.ErrInvalidCode,
	}
	m := newMachine(t, tokenstore.NewMemory(), auth, nil)
	m.toAnonymous(nil)

	_ = m.Login(context.Background(), "alice@example.com", "pw")
	err := m.VerifyCode(context.Background(), "000000")
	if !errors.Is(err, domain.ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}
	if m.Status() != domain.StatusAnonymous {
		t.Fatalf("expected Anonymous, got %s", m.Status())
	}
}

func TestLogout_ClearsEverythingAndBumpsEpoch(t *testing.T) {
	store := tokenstore.NewMemory()
	_ = store.Set(domain.Credentials{AccessToken: "a1", RefreshToken: "r1"})

	auth := &stubAuth{identity: &domain.Identity{ID: "u1"}}
	m := newMachine(t, store, auth, &stubTokens{token: "a1"})
	_ = m.Initialize(context.Background())
	if m.Status() != domain.StatusAuthenticated {
		t.Fatalf("setup: expected Authenticated, got %s", m.Status())
	}

	before := m.SessionEpoch()
	m.Logout(context.Background())

	if !auth.logoutCalled {
		t.Fatalf("server logout not attempted")
	}
	if m.Status() != domain.StatusAnonymous {
		t.Fatalf("expected Anonymous, got %s", m.Status())
	}
	if m.Identity() != nil {
		t.Fatalf("identity not cleared")
	}
	if _, ok := store.Get(); ok {
		t.Fatalf("token store not cleared")
	}
	if m.SessionEpoch() == before {
		t.Fatalf("session epoch must advance on logout")
	}
}

func TestSessionExpired_SurfacesGenericReason(t *testing.T) {
	store := tokenstore.NewMemory()
	_ = store.Set(domain.Credentials{AccessToken: "a1", RefreshToken: "r1"})

	auth := &stubAuth{identity: &domain.Identity{ID: "u1"}}
	m := newMachine(t, store, auth, &stubTokens{token: "a1"})
	_ = m.Initialize(context.Background())

	m.SessionExpired(domain.ErrInvalidRefreshToken)

	if m.Status() != domain.StatusAnonymous {
		t.Fatalf("expected Anonymous, got %s", m.Status())
	}
	if !errors.Is(m.Err(), domain.ErrSessionExpired) {
		t.Fatalf("expected generic session-expired reason, got %v", m.Err())
	}
	// Clearing the stored pair is the machine's job, not the reporter's.
	if _, ok := store.Get(); ok {
		t.Fatalf("token store not cleared when the session ended")
	}
}

func TestUnexpectedFailureSurfacesErrorOnceThenAnonymous(t *testing.T) {
	boom := errors.New("collaborator exploded")
	m := newMachine(t, tokenstore.NewMemory(), &stubAuth{loginErr: boom}, nil)
	m.toAnonymous(nil)

	var seen []domain.AuthStatus
	m.Subscribe(func(s Snapshot) { seen = append(seen, s.Status) })

	if err := m.Login(context.Background(), "a@example.com", "pw"); !errors.Is(err, boom) {
		t.Fatalf("expected underlying error, got %v", err)
	}

	want := []domain.AuthStatus{domain.StatusAuthenticating, domain.StatusError, domain.StatusAnonymous}
	if len(seen) != len(want) {
		t.Fatalf("observed %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("observed %v, want %v", seen, want)
		}
	}
	if m.Status() != domain.StatusAnonymous {
		t.Fatalf("Error state must resolve to Anonymous")
	}
}

func TestObserversNotifiedInRegistrationOrder(t *testing.T) {
	m := newMachine(t, tokenstore.NewMemory(), &stubAuth{}, nil)

	var order []int
	m.Subscribe(func(Snapshot) { order = append(order, 1) })
	m.Subscribe(func(Snapshot) { order = append(order, 2) })
	unsub := m.Subscribe(func(Snapshot) { order = append(order, 3) })
	unsub()

	m.toAnonymous(nil)

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("unexpected notification order: %v", order)
	}
}
