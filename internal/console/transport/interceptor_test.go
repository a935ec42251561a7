package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"github.com/chatcenter/authkit/internal/core/domain"
)

type stubTokens struct {
	ensureToken string
	ensureErr   error
	forced      atomic.Int32
	forcedToken string
	forcedErr   error
}

func (s *stubTokens) EnsureFreshAccessToken(context.Context) (string, error) {
	return s.ensureToken, s.ensureErr
}

func (s *stubTokens) ForceRefresh(context.Context) (string, error) {
	s.forced.Add(1)
	return s.forcedToken, s.forcedErr
}

type stubSink struct{ causes []error }

func (s *stubSink) SessionExpired(cause error) { s.causes = append(s.causes, cause) }

func TestRoundTrip_AttachesBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rt := NewInterceptor(Config{Tokens: &stubTokens{ensureToken: "tok-1"}, Log: zerolog.Nop()})
	client := &http.Client{Transport: rt}

	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()

	if gotAuth != "Bearer tok-1" {
		t.Fatalf("authorization header %q", gotAuth)
	}
}

func TestRoundTrip_RetriesOnceAfterRejection(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Header.Get("Authorization") != "Bearer tok-2" {
			t.Errorf("retry did not carry refreshed token: %q", r.Header.Get("Authorization"))
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tokens := &stubTokens{ensureToken: "tok-1", forcedToken: "tok-2"}
	rt := NewInterceptor(Config{Tokens: tokens, Log: zerolog.Nop()})
	client := &http.Client{Transport: rt}

	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 after retry, got %d", resp.StatusCode)
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("expected 2 sends, got %d", n)
	}
	if n := tokens.forced.Load(); n != 1 {
		t.Fatalf("expected 1 forced refresh, got %d", n)
	}
}

func TestRoundTrip_NoSecondRetryAndSessionEnds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	sink := &stubSink{}
	tokens := &stubTokens{ensureToken: "tok-1", forcedToken: "tok-2"}

	rt := NewInterceptor(Config{Tokens: tokens, Sink: sink, Log: zerolog.Nop()})
	client := &http.Client{Transport: rt}

	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("final rejection must propagate, got %d", resp.StatusCode)
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("expected exactly 2 sends (original + one retry), got %d", n)
	}
	// Ending the session is the sink's job; the interceptor only reports.
	if len(sink.causes) != 1 || !errors.Is(sink.causes[0], domain.ErrUnauthorized) {
		t.Fatalf("sink not notified: %v", sink.causes)
	}
}

func TestRoundTrip_RefreshFailurePropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tokens := &stubTokens{ensureToken: "tok-1", forcedErr: domain.ErrInvalidRefreshToken}
	rt := NewInterceptor(Config{Tokens: tokens, Log: zerolog.Nop()})
	client := &http.Client{Transport: rt}

	_, err := client.Get(srv.URL)
	if err == nil || !errors.Is(err, domain.ErrInvalidRefreshToken) {
		t.Fatalf("expected refresh failure to propagate, got %v", err)
	}
}

func TestRoundTrip_TokenAcquisitionFailureBlocksSend(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	tokens := &stubTokens{ensureErr: domain.ErrSessionExpired}
	rt := NewInterceptor(Config{Tokens: tokens, Log: zerolog.Nop()})
	client := &http.Client{Transport: rt}

	if _, err := client.Get(srv.URL); err == nil {
		t.Fatalf("expected error when no token is available")
	}
	if calls.Load() != 0 {
		t.Fatalf("request must not be sent without credentials")
	}
}

func TestRoundTrip_ReplaysRequestBody(t *testing.T) {
	var calls atomic.Int32
	var secondBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		secondBody = string(raw)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tokens := &stubTokens{ensureToken: "tok-1", forcedToken: "tok-2"}
	rt := NewInterceptor(Config{Tokens: tokens, Log: zerolog.Nop()})
	client := &http.Client{Transport: rt}

	resp, err := client.Post(srv.URL, "application/json", strings.NewReader(`{"k":"v"}`))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 after retry, got %d", resp.StatusCode)
	}
	if secondBody != `{"k":"v"}` {
		t.Fatalf("retried request body %q", secondBody)
	}
}
