// Package transport attaches fresh credentials to every outbound console
// request and recovers from a single credential rejection. The retry-once
// rule lives in an explicit policy value rather than nested error handlers,
// so the invariant is visible and testable.
package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/chatcenter/authkit/internal/core/domain"
)

// TokenSource supplies access tokens. Implemented by the refresh
// coordinator; ForceRefresh bypasses the local expiry check after the server
// rejected a token the client still considered valid.
type TokenSource interface {
	EnsureFreshAccessToken(ctx context.Context) (string, error)
	ForceRefresh(ctx context.Context) (string, error)
}

// Sink is notified when the session is unrecoverable. The sink owns the
// consequences (clearing the token store, driving the state machine); the
// interceptor itself never mutates shared session state.
type Sink interface {
	SessionExpired(cause error)
}

// RetryPolicy decides whether a rejected response warrants a refresh-and-
// resend cycle, and how many times.
type RetryPolicy struct {
	// MaxAttempts is the number of resends, not counting the original send.
	MaxAttempts int
	// ShouldRetry reports whether the response is a credential rejection.
	ShouldRetry func(resp *http.Response) bool
}

// CredentialRetryPolicy is the default: resend exactly once, triggered only
// by a credential-invalid rejection. One resend prevents infinite loops when
// the backend rejects even valid tokens.
func CredentialRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 1,
		ShouldRetry: func(resp *http.Response) bool {
			return resp.StatusCode == http.StatusUnauthorized
		},
	}
}

// Interceptor is an http.RoundTripper wrapping the console's outbound calls.
type Interceptor struct {
	base   http.RoundTripper
	tokens TokenSource
	sink   Sink
	policy RetryPolicy
	log    zerolog.Logger
}

// Config wires an Interceptor. Base defaults to http.DefaultTransport and
// Policy to CredentialRetryPolicy.
type Config struct {
	Base   http.RoundTripper
	Tokens TokenSource
	Sink   Sink
	Policy *RetryPolicy
	Log    zerolog.Logger
}

func NewInterceptor(cfg Config) *Interceptor {
	base := cfg.Base
	if base == nil {
		base = http.DefaultTransport
	}
	policy := CredentialRetryPolicy()
	if cfg.Policy != nil {
		policy = *cfg.Policy
	}
	return &Interceptor{
		base:   base,
		tokens: cfg.Tokens,
		sink:   cfg.Sink,
		policy: policy,
		log:    cfg.Log,
	}
}

// RoundTrip suspends the send until a fresh access token is available,
// attaches it as a bearer credential, and resends per the retry policy.
func (i *Interceptor) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := i.tokens.EnsureFreshAccessToken(req.Context())
	if err != nil {
		return nil, fmt.Errorf("transport: acquire token: %w", err)
	}

	resp, err := i.send(req, token)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < i.policy.MaxAttempts && i.policy.ShouldRetry(resp); attempt++ {
		if !replayable(req) {
			break
		}

		drain(resp)

		token, err = i.tokens.ForceRefresh(req.Context())
		if err != nil {
			// The coordinator has already routed session-ending causes to its
			// own sink; transient ones just propagate to the caller.
			return nil, fmt.Errorf("transport: refresh after rejection: %w", err)
		}

		resp, err = i.send(req, token)
		if err != nil {
			return nil, err
		}
	}

	// Still rejected after the policy's retries: the session is over.
	if i.policy.ShouldRetry(resp) {
		i.expire()
	}

	return resp, nil
}

func (i *Interceptor) send(req *http.Request, token string) (*http.Response, error) {
	out := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("transport: rewind body: %w", err)
		}
		out.Body = body
	}
	out.Header.Set("Authorization", "Bearer "+token)
	return i.base.RoundTrip(out)
}

func (i *Interceptor) expire() {
	i.log.Warn().Msg("request rejected after retry, reporting session end")
	if i.sink != nil {
		i.sink.SessionExpired(domain.ErrUnauthorized)
	}
}

// replayable reports whether the request can be resent. Requests with a body
// but no GetBody cannot be replayed safely.
func replayable(req *http.Request) bool {
	return req.Body == nil || req.GetBody != nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}
