// Package refresh guarantees at most one in-flight token refresh at any
// time. Every caller that observes an expired access token before the
// exchange completes receives the same resulting pair, or the same failure.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/chatcenter/authkit/internal/console/tokenstore"
	"github.com/chatcenter/authkit/internal/core/domain"
)

const (
	defaultTimeout = 10 * time.Second
	defaultLeeway  = 5 * time.Second
)

// Exchanger performs the actual refresh call. Implemented by the REST client
// and, server-side-in-process, by the auth service.
type Exchanger interface {
	Refresh(ctx context.Context, refreshToken string) (*domain.Credentials, error)
}

// Gate exposes the state machine's session epoch. The epoch changes whenever
// the session ends; a refresh result from a previous epoch is discarded
// instead of resurrecting the session.
type Gate interface {
	SessionEpoch() uint64
}

// Sink is notified when a refresh definitively fails and the session is over.
type Sink interface {
	SessionExpired(cause error)
}

// Config wires a Coordinator. Store and Exchanger are required; Gate and
// Sink are optional (tests often omit them).
type Config struct {
	Store     tokenstore.Store
	Exchanger Exchanger
	Gate      Gate
	Sink      Sink
	// Timeout bounds a single refresh call. Defaults to 10s.
	Timeout time.Duration
	// Leeway widens the expiry check so tokens about to lapse are refreshed
	// before use. Defaults to 5s.
	Leeway time.Duration
	Log    zerolog.Logger
}

// Coordinator deduplicates concurrent refresh attempts. Refresh tokens are
// single-use server-side, so without this any two concurrent callers would
// race to rotate the token and one would be spuriously logged out.
type Coordinator struct {
	store     tokenstore.Store
	exchanger Exchanger
	gate      Gate
	sink      Sink
	timeout   time.Duration
	leeway    time.Duration
	log       zerolog.Logger

	group singleflight.Group
}

func NewCoordinator(cfg Config) *Coordinator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Leeway <= 0 {
		cfg.Leeway = defaultLeeway
	}
	return &Coordinator{
		store:     cfg.Store,
		exchanger: cfg.Exchanger,
		gate:      cfg.Gate,
		sink:      cfg.Sink,
		timeout:   cfg.Timeout,
		leeway:    cfg.Leeway,
		log:       cfg.Log,
	}
}

// EnsureFreshAccessToken returns the current access token, refreshing first
// when it is expired. Concurrent callers share a single exchange.
func (c *Coordinator) EnsureFreshAccessToken(ctx context.Context) (string, error) {
	pair, ok := c.store.Get()
	if !ok {
		return "", domain.ErrSessionExpired
	}
	if !tokenstore.IsExpired(pair.AccessToken, c.leeway) {
		return pair.AccessToken, nil
	}
	return c.refresh(ctx, "")
}

// ForceRefresh performs an exchange even if the stored token looks valid
// locally: the server rejected it, so local expiry no longer proves anything.
// The rejected token is carried into the flight so an exchange is skipped
// only when the pair has already been rotated out from under it.
func (c *Coordinator) ForceRefresh(ctx context.Context) (string, error) {
	pair, ok := c.store.Get()
	if !ok {
		return "", domain.ErrSessionExpired
	}
	return c.refresh(ctx, pair.AccessToken)
}

func (c *Coordinator) refresh(ctx context.Context, rejected string) (string, error) {
	// There is only ever zero or one in-flight refresh, so the flight is
	// keyed by a constant.
	v, err, _ := c.group.Do("refresh", func() (any, error) {
		return c.exchange(rejected)
	})
	if err != nil {
		return "", err
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	return v.(string), nil
}

// exchange runs the single shared refresh call. It deliberately uses its own
// bounded context rather than any one caller's: cancelling one waiter must
// not fail the flight for the others. rejected, when non-empty, is an access
// token the server refused even though it looks fresh locally.
func (c *Coordinator) exchange(rejected string) (any, error) {
	pair, ok := c.store.Get()
	if !ok {
		return "", domain.ErrSessionExpired
	}
	// The pair may have been rotated by the flight that just finished. A
	// locally fresh token satisfies the caller unless it is the very token
	// the server already rejected.
	if pair.AccessToken != rejected && !tokenstore.IsExpired(pair.AccessToken, c.leeway) {
		return pair.AccessToken, nil
	}

	epoch := c.epoch()

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	creds, err := c.exchanger.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = domain.ErrTimeout
		}
		if !sessionEnding(err) {
			// Transient transport failure: the refresh token is still good
			// and the session survives. The error resolves the flight so no
			// waiter hangs; retrying is the caller's policy, not ours.
			c.log.Warn().Err(err).Msg("token refresh failed, session kept")
			return "", err
		}
		return "", c.fail(err)
	}

	// The session ended while the exchange was in flight (explicit logout,
	// interceptor-driven invalidation). The result is discarded; applying it
	// would resurrect an authenticated state the user already left.
	if c.epoch() != epoch {
		c.log.Debug().Msg("refresh result discarded: session epoch changed")
		return "", domain.ErrSessionExpired
	}

	if err := c.store.Set(*creds); err != nil {
		return "", fmt.Errorf("refresh: persist pair: %w", err)
	}

	c.log.Debug().Msg("access token refreshed")
	return creds.AccessToken, nil
}

// sessionEnding reports whether a refresh failure proves the session is
// over. The server refusing the refresh token ends it, as does a timed-out
// exchange; a connection blip does not.
func sessionEnding(err error) bool {
	return errors.Is(err, domain.ErrInvalidRefreshToken) ||
		errors.Is(err, domain.ErrUnauthorized) ||
		errors.Is(err, domain.ErrSessionExpired) ||
		errors.Is(err, domain.ErrTimeout)
}

// fail ends the session: tokens are cleared and the state machine is driven
// to anonymous.
func (c *Coordinator) fail(cause error) error {
	c.log.Warn().Err(cause).Msg("token refresh failed")

	if err := c.store.Clear(); err != nil {
		c.log.Error().Err(err).Msg("failed to clear token store")
	}
	if c.sink != nil {
		c.sink.SessionExpired(cause)
	}
	return cause
}

func (c *Coordinator) epoch() uint64 {
	if c.gate == nil {
		return 0
	}
	return c.gate.SessionEpoch()
}
