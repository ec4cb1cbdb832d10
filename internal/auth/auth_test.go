package auth

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/immortalpath/realtime/internal/recovery"
	"github.com/immortalpath/realtime/internal/scheduler"
	"github.com/immortalpath/realtime/internal/store"
)

// fakeExchanger scripts exchange and refresh outcomes.
type fakeExchanger struct {
	exchangeInfo TokenInfo
	exchangeErr  error
	exchanges    int

	refreshInfo TokenInfo
	refreshErr  error
	refreshes   int
}

func (f *fakeExchanger) Exchange(_ context.Context, creds Credentials) (TokenInfo, error) {
	f.exchanges++
	if f.exchangeErr != nil {
		return TokenInfo{}, f.exchangeErr
	}
	info := f.exchangeInfo
	info.UserID = creds.UserID
	return info, nil
}

func (f *fakeExchanger) Refresh(_ context.Context, _ string) (TokenInfo, error) {
	f.refreshes++
	if f.refreshErr != nil {
		return TokenInfo{}, f.refreshErr
	}
	return f.refreshInfo, nil
}

func testService(t *testing.T, st store.Store, exch Exchanger) *Service {
	t.Helper()
	return NewService(st, scheduler.New(nil), exch, Config{RefreshThreshold: 5 * time.Minute}, nil)
}

func TestAuthenticateWithCredentials(t *testing.T) {
	st := store.NewMemoryStore()
	exch := &fakeExchanger{
		exchangeInfo: TokenInfo{
			Token:        "tok-1",
			RefreshToken: "ref-1",
			ExpiresAt:    time.Now().Add(time.Hour),
		},
	}
	s := testService(t, st, exch)

	data, err := s.Authenticate(context.Background(), &Credentials{UserID: "player-7", Secret: "s"})
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if data.Token != "tok-1" || data.UserID != "player-7" {
		t.Errorf("Data = %+v, want token tok-1 for player-7", data)
	}
	if exch.exchanges != 1 {
		t.Errorf("exchange attempts = %d, want exactly 1", exch.exchanges)
	}

	// Token is persisted for the next session.
	if _, err := st.Get(tokenKey); err != nil {
		t.Errorf("token not persisted: %v", err)
	}
}

func TestAuthenticateNilCredsReusesValidToken(t *testing.T) {
	st := store.NewMemoryStore()
	exch := &fakeExchanger{
		exchangeInfo: TokenInfo{Token: "tok-1", ExpiresAt: time.Now().Add(time.Hour)},
	}
	s := testService(t, st, exch)

	if _, err := s.Authenticate(context.Background(), &Credentials{UserID: "p"}); err != nil {
		t.Fatalf("initial Authenticate failed: %v", err)
	}

	data, err := s.Authenticate(context.Background(), nil)
	if err != nil {
		t.Fatalf("Authenticate(nil) failed: %v", err)
	}
	if data.Token != "tok-1" {
		t.Errorf("reused token = %q, want tok-1", data.Token)
	}
	if exch.exchanges != 1 {
		t.Errorf("exchange attempts = %d, want 1: valid token must be reused", exch.exchanges)
	}
}

func TestTokenReuseReArmsRefreshTimer(t *testing.T) {
	st := store.NewMemoryStore()
	exch := &fakeExchanger{
		exchangeInfo: TokenInfo{
			Token:        "tok-1",
			RefreshToken: "ref-1",
			ExpiresAt:    time.Now().Add(time.Hour),
		},
	}
	s := testService(t, st, exch)

	if _, err := s.Authenticate(context.Background(), &Credentials{UserID: "p"}); err != nil {
		t.Fatalf("initial Authenticate failed: %v", err)
	}

	// A disconnect cancels every timer on the shared scheduler.
	s.sched.CancelAll()
	if s.sched.Pending(refreshTimer) {
		t.Fatal("refresh timer survived CancelAll")
	}

	if _, err := s.Authenticate(context.Background(), nil); err != nil {
		t.Fatalf("Authenticate(nil) failed: %v", err)
	}

	if !s.sched.Pending(refreshTimer) {
		t.Error("token reuse did not re-arm the refresh timer")
	}
	if exch.exchanges != 1 {
		t.Errorf("exchange attempts = %d, want 1: reuse must not re-exchange", exch.exchanges)
	}
}

func TestAuthenticateNilCredsRefreshesInsideWindow(t *testing.T) {
	st := store.NewMemoryStore()
	exch := &fakeExchanger{
		refreshInfo: TokenInfo{
			Token:        "tok-2",
			RefreshToken: "ref-2",
			UserID:       "p",
			ExpiresAt:    time.Now().Add(time.Hour),
		},
	}
	s := testService(t, st, exch)

	// Token valid but inside the 5m refresh window.
	s.token = &TokenInfo{
		Token:        "tok-1",
		RefreshToken: "ref-1",
		UserID:       "p",
		ExpiresAt:    time.Now().Add(time.Minute),
	}

	data, err := s.Authenticate(context.Background(), nil)
	if err != nil {
		t.Fatalf("Authenticate(nil) failed: %v", err)
	}
	if data.Token != "tok-2" {
		t.Errorf("token = %q, want refreshed tok-2", data.Token)
	}
	if exch.refreshes != 1 {
		t.Errorf("refresh attempts = %d, want exactly 1", exch.refreshes)
	}
}

func TestAuthenticateNilCredsNoToken(t *testing.T) {
	s := testService(t, store.NewMemoryStore(), &fakeExchanger{})

	_, err := s.Authenticate(context.Background(), nil)
	if err == nil {
		t.Fatal("Authenticate(nil) with no stored token should fail")
	}

	var ce *recovery.ClassifiedError
	if !errors.As(err, &ce) {
		t.Fatalf("error %v is not classified", err)
	}
	if ce.Type != recovery.TypeAuthenticationFailed || ce.Retryable {
		t.Errorf("error = {%v retryable=%v}, want non-retryable AUTHENTICATION_FAILED", ce.Type, ce.Retryable)
	}
}

func TestRefreshWithoutRefreshToken(t *testing.T) {
	s := testService(t, store.NewMemoryStore(), &fakeExchanger{})
	s.token = &TokenInfo{Token: "tok-1", ExpiresAt: time.Now().Add(time.Hour)}

	_, err := s.RefreshToken(context.Background())
	var ce *recovery.ClassifiedError
	if !errors.As(err, &ce) {
		t.Fatalf("error %v is not classified", err)
	}
	if ce.Retryable {
		t.Error("missing refresh token must be terminal, got retryable")
	}
}

func TestExchangeFailureIsRetryable(t *testing.T) {
	exch := &fakeExchanger{exchangeErr: errors.New("backend unavailable")}
	s := testService(t, store.NewMemoryStore(), exch)

	_, err := s.Authenticate(context.Background(), &Credentials{UserID: "p"})
	var ce *recovery.ClassifiedError
	if !errors.As(err, &ce) {
		t.Fatalf("error %v is not classified", err)
	}
	if ce.Type != recovery.TypeAuthenticationFailed || !ce.Retryable {
		t.Errorf("error = {%v retryable=%v}, want retryable AUTHENTICATION_FAILED", ce.Type, ce.Retryable)
	}
}

func TestShouldRefreshToken(t *testing.T) {
	base := time.Now()

	tests := []struct {
		name      string
		expiresIn time.Duration
		want      bool
	}{
		{"far from expiry", time.Hour, false},
		{"exactly at threshold", 5 * time.Minute, false},
		{"inside window", 4 * time.Minute, true},
		{"already expired", -time.Minute, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testService(t, store.NewMemoryStore(), &fakeExchanger{})
			s.now = func() time.Time { return base }
			s.token = &TokenInfo{Token: "t", ExpiresAt: base.Add(tt.expiresIn)}

			if got := s.ShouldRefreshToken(); got != tt.want {
				t.Errorf("ShouldRefreshToken() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTokenRestoredFromStore(t *testing.T) {
	st := store.NewMemoryStore()
	blob, _ := json.Marshal(TokenInfo{
		Token:     "tok-persisted",
		UserID:    "p",
		ExpiresAt: time.Now().Add(time.Hour),
	})
	st.Put(tokenKey, blob)

	s := testService(t, st, &fakeExchanger{})
	if !s.IsTokenValid() {
		t.Fatal("restored token reported invalid")
	}
	if got := s.Data().Token; got != "tok-persisted" {
		t.Errorf("restored token = %q, want tok-persisted", got)
	}
}

func TestCorruptTokenBlobDiscarded(t *testing.T) {
	st := store.NewMemoryStore()
	st.Put(tokenKey, []byte("{not json"))

	s := testService(t, st, &fakeExchanger{})
	if s.IsTokenValid() {
		t.Error("corrupt blob produced a valid token")
	}
	if _, err := st.Get(tokenKey); !errors.Is(err, store.ErrNotFound) {
		t.Error("corrupt blob not deleted from store")
	}
}

func TestLogoutClearsToken(t *testing.T) {
	st := store.NewMemoryStore()
	exch := &fakeExchanger{
		exchangeInfo: TokenInfo{Token: "tok-1", ExpiresAt: time.Now().Add(time.Hour)},
	}
	s := testService(t, st, exch)

	if _, err := s.Authenticate(context.Background(), &Credentials{UserID: "p"}); err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}

	if err := s.Logout(); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if s.IsTokenValid() {
		t.Error("token still valid after logout")
	}
	if _, err := st.Get(tokenKey); !errors.Is(err, store.ErrNotFound) {
		t.Error("token blob survived logout")
	}
	if s.sched.Pending(refreshTimer) {
		t.Error("refresh timer still armed after logout")
	}
}

func TestScheduledRefreshFailureInvokesCallback(t *testing.T) {
	st := store.NewMemoryStore()
	exch := &fakeExchanger{refreshErr: errors.New("rejected")}
	s := testService(t, st, exch)

	failed := make(chan error, 1)
	s.OnRefreshError(func(err error) { failed <- err })

	// Expires inside the refresh window so the timer fires immediately.
	s.install(TokenInfo{
		Token:        "tok-1",
		RefreshToken: "ref-1",
		ExpiresAt:    time.Now().Add(time.Second),
	})

	select {
	case err := <-failed:
		var ce *recovery.ClassifiedError
		if !errors.As(err, &ce) || ce.Type != recovery.TypeAuthenticationFailed {
			t.Errorf("callback error = %v, want AUTHENTICATION_FAILED", err)
		}
	case <-time.After(time.Second):
		t.Fatal("refresh failure callback never fired")
	}
}
