// Package auth implements the Authentication Service: credential exchange,
// token persistence, and proactive refresh before expiry.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/immortalpath/realtime/internal/recovery"
	"github.com/immortalpath/realtime/internal/scheduler"
	"github.com/immortalpath/realtime/internal/store"
)

// tokenKey is the store key for the persisted token blob.
const tokenKey = "auth/token"

// refreshTimer is the scheduler name for the proactive refresh.
const refreshTimer = "auth.refresh"

// Credentials are what the player logs in with.
type Credentials struct {
	UserID string
	Secret string
}

// Data is the authentication result shared by value with the connection
// layer. Consumers never mutate it.
type Data struct {
	Token        string
	UserID       string
	RefreshToken string
}

// TokenInfo is the persisted token state.
type TokenInfo struct {
	Token        string    `json:"token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	UserID       string    `json:"user_id"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scope        []string  `json:"scope,omitempty"`
}

// Exchanger performs token exchanges against the backend. The game layer
// injects the real implementation; tests inject fakes.
type Exchanger interface {
	// Exchange trades credentials for a token. Exactly one attempt.
	Exchange(ctx context.Context, creds Credentials) (TokenInfo, error)

	// Refresh trades a refresh token for a new token. Exactly one attempt.
	Refresh(ctx context.Context, refreshToken string) (TokenInfo, error)
}

// Config holds refresh scheduling settings.
type Config struct {
	RefreshThreshold time.Duration
}

// Service manages the token lifecycle.
type Service struct {
	store  store.Store
	sched  *scheduler.Scheduler
	exch   Exchanger
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	// onRefreshError is invoked when a scheduled background refresh fails.
	onRefreshError func(error)

	mu    sync.Mutex
	token *TokenInfo
}

// NewService creates the authentication service and loads any persisted token.
func NewService(st store.Store, sched *scheduler.Scheduler, exch Exchanger, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{
		store:  st,
		sched:  sched,
		exch:   exch,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
	s.load()
	return s
}

// OnRefreshError registers a callback for background refresh failures.
func (s *Service) OnRefreshError(fn func(error)) {
	s.mu.Lock()
	s.onRefreshError = fn
	s.mu.Unlock()
}

// Authenticate resolves authentication data. With nil credentials it reuses
// the stored token if still valid (refreshing when past the threshold);
// otherwise it performs exactly one exchange attempt.
func (s *Service) Authenticate(ctx context.Context, creds *Credentials) (Data, error) {
	if creds == nil {
		if s.IsTokenValid() {
			if s.ShouldRefreshToken() {
				return s.RefreshToken(ctx)
			}
			// Disconnect cancels every timer, so reuse must re-arm the
			// proactive refresh.
			if info, ok := s.Token(); ok {
				s.scheduleRefresh(info)
			}
			return s.Data(), nil
		}
		if s.hasRefreshToken() {
			return s.RefreshToken(ctx)
		}
		return Data{}, recovery.Newf(recovery.TypeAuthenticationFailed, false, "no stored credentials")
	}

	info, err := s.exch.Exchange(ctx, *creds)
	if err != nil {
		return Data{}, classifyAuthErr(err)
	}

	if err := s.install(info); err != nil {
		return Data{}, err
	}
	return s.Data(), nil
}

// RefreshToken uses the stored refresh token exactly once and reschedules the
// proactive refresh. It fails terminally when no refresh token exists.
func (s *Service) RefreshToken(ctx context.Context) (Data, error) {
	s.mu.Lock()
	var refresh string
	if s.token != nil {
		refresh = s.token.RefreshToken
	}
	s.mu.Unlock()

	if refresh == "" {
		return Data{}, recovery.Newf(recovery.TypeAuthenticationFailed, false, "no refresh token")
	}

	info, err := s.exch.Refresh(ctx, refresh)
	if err != nil {
		return Data{}, classifyAuthErr(err)
	}

	if err := s.install(info); err != nil {
		return Data{}, err
	}
	return s.Data(), nil
}

// IsTokenValid reports whether a token exists and has not expired.
func (s *Service) IsTokenValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.token != nil && s.now().Before(s.token.ExpiresAt)
}

// ShouldRefreshToken reports whether the token is inside the refresh window:
// true iff now > expiresAt - refreshThreshold.
func (s *Service) ShouldRefreshToken() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == nil {
		return false
	}
	return s.now().After(s.token.ExpiresAt.Add(-s.cfg.RefreshThreshold))
}

// Data returns the current authentication data by value.
func (s *Service) Data() Data {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == nil {
		return Data{}
	}
	return Data{
		Token:        s.token.Token,
		UserID:       s.token.UserID,
		RefreshToken: s.token.RefreshToken,
	}
}

// Token returns a copy of the persisted token info, if any.
func (s *Service) Token() (TokenInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == nil {
		return TokenInfo{}, false
	}
	return *s.token, true
}

// Logout cancels the refresh timer and clears the persisted token before
// returning.
func (s *Service) Logout() error {
	s.sched.Cancel(refreshTimer)

	s.mu.Lock()
	s.token = nil
	s.mu.Unlock()

	if err := s.store.Delete(tokenKey); err != nil {
		return fmt.Errorf("clear token: %w", err)
	}

	s.logger.Info("logged out, token cleared")
	return nil
}

func (s *Service) hasRefreshToken() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token != nil && s.token.RefreshToken != ""
}

// install persists the token and arms the single refresh timer.
func (s *Service) install(info TokenInfo) error {
	blob, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := s.store.Put(tokenKey, blob); err != nil {
		return fmt.Errorf("persist token: %w", err)
	}

	s.mu.Lock()
	s.token = &info
	s.mu.Unlock()

	s.scheduleRefresh(info)

	s.logger.Info("token installed",
		"user_id", info.UserID,
		"expires_at", info.ExpiresAt,
	)
	return nil
}

func (s *Service) scheduleRefresh(info TokenInfo) {
	delay := info.ExpiresAt.Add(-s.cfg.RefreshThreshold).Sub(s.now())
	if delay < 0 {
		delay = 0
	}

	s.sched.Schedule(refreshTimer, delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if _, err := s.RefreshToken(ctx); err != nil {
			s.logger.Warn("scheduled token refresh failed", "error", err)
			s.mu.Lock()
			fn := s.onRefreshError
			s.mu.Unlock()
			if fn != nil {
				fn(err)
			}
		}
	})
}

// load restores a persisted token blob, if present.
func (s *Service) load() {
	blob, err := s.store.Get(tokenKey)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		s.logger.Warn("failed to load persisted token", "error", err)
		return
	}

	var info TokenInfo
	if err := json.Unmarshal(blob, &info); err != nil {
		s.logger.Warn("discarding corrupt token blob", "error", err)
		s.store.Delete(tokenKey)
		return
	}

	s.mu.Lock()
	s.token = &info
	s.mu.Unlock()

	if s.now().Before(info.ExpiresAt) {
		s.scheduleRefresh(info)
	}

	s.logger.Debug("token restored", "user_id", info.UserID, "expires_at", info.ExpiresAt)
}

// classifyAuthErr keeps already-classified errors and marks the rest as
// retryable authentication failures.
func classifyAuthErr(err error) error {
	var ce *recovery.ClassifiedError
	if errors.As(err, &ce) {
		return err
	}
	return recovery.New(recovery.TypeAuthenticationFailed, true, err)
}
