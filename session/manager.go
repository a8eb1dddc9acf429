package session

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/secureview-io/secureview-auth/credentials"
	"github.com/secureview-io/secureview-auth/internal/config"
	"github.com/secureview-io/secureview-auth/internal/utils"
	"golang.org/x/sync/singleflight"
)

// AdminPermission satisfies any permission check. Deliberate escape hatch;
// do not narrow it without confirming intent with the product owners.
const AdminPermission = "admin"

// State is the session lifecycle state.
type State string

const (
	StateAnonymous      State = "anonymous"
	StateAuthenticating State = "authenticating"
	StateAuthenticated  State = "authenticated"
	StateRefreshing     State = "refreshing"
)

// TimerHandle is a cancellable deferred action. Stop reports whether the
// call prevented the action from firing.
type TimerHandle interface {
	Stop() bool
}

// AfterFunc schedules f to run once after d. Injectable for testing.
type AfterFunc func(d time.Duration, f func()) TimerHandle

// TickerFunc returns a tick channel with period d plus a stop function.
// Injectable for testing.
type TickerFunc func(d time.Duration) (<-chan time.Time, func())

type stdTimer struct{ t *time.Timer }

func (s stdTimer) Stop() bool { return s.t.Stop() }

func stdAfterFunc(d time.Duration, f func()) TimerHandle {
	return stdTimer{t: time.AfterFunc(d, f)}
}

func stdTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Manager owns the dashboard's authentication session: the current user,
// their permissions, the credential bundle, the idle timeout, and the
// background refresh/activity machinery. All state is guarded by one
// mutex; asynchronous operations (login, scheduled refresh, monitor tick,
// logout) may interleave and the last completed token mutation wins.
type Manager struct {
	api    AuthAPI
	creds  credentials.Repo
	config config.SessionConfig

	nowTime   func() time.Time // injectable for testing
	afterFunc AfterFunc
	newTicker TickerFunc

	mu           sync.Mutex
	state        State
	user         *User
	permissions  map[string]struct{}
	session      string
	tokens       *credentials.Bundle
	lastActivity time.Time
	lastErr      error

	// generation increments on every token-bundle mutation. An in-flight
	// refresh that completes against an older generation is discarded so a
	// late result can never resurrect a logged-out session.
	generation uint64

	refreshTimer TimerHandle
	monitorStop  chan struct{}

	refreshGroup singleflight.Group
}

// ManagerOption defines a function type to modify the Manager instance.
type ManagerOption func(*Manager)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

// WithAfterFunc sets the deferred-action factory used by the refresh
// scheduler (primarily for testing)
func WithAfterFunc(af AfterFunc) ManagerOption {
	return func(m *Manager) {
		m.afterFunc = af
	}
}

// WithTicker sets the ticker factory used by the activity monitor
// (primarily for testing)
func WithTicker(tf TickerFunc) ManagerOption {
	return func(m *Manager) {
		m.newTicker = tf
	}
}

// NewManager initializes a new session Manager with required dependencies.
func NewManager(api AuthAPI, creds credentials.Repo, cfg config.SessionConfig, options ...ManagerOption) (*Manager, error) {
	if api == nil {
		return nil, errors.New("[NewManager] auth API is required")
	}
	if creds == nil {
		return nil, errors.New("[NewManager] credentials repo is required")
	}
	if cfg == nil {
		return nil, errors.New("[NewManager] session config is required")
	}

	m := &Manager{
		api:       api,
		creds:     creds,
		config:    cfg,
		state:     StateAnonymous,
		nowTime:   time.Now,
		afterFunc: stdAfterFunc,
		newTicker: stdTicker,
	}

	for _, opt := range options {
		opt(m)
	}

	return m, nil
}

// Initialize adopts a previously stored credential bundle, if any. The
// bundle is verified against the backend before it is trusted; if
// verification fails it is discarded without a refresh attempt.
func (m *Manager) Initialize(ctx context.Context) error {
	bundle, err := m.creds.Get(credentials.PrimaryKey)
	if err != nil {
		if errors.Is(err, credentials.ErrNotFound) {
			return nil
		}
		return errors.Wrap(err, "[Initialize] credentials.Get")
	}

	res, err := m.api.Verify(ctx, bundle.AccessToken)
	if err != nil {
		log.Warn().Err(err).Msg("stored credentials failed verification, discarding")
		if removeErr := m.creds.Remove(credentials.PrimaryKey); removeErr != nil {
			return errors.Wrap(removeErr, "[Initialize] credentials.Remove")
		}
		return nil
	}

	m.mu.Lock()
	m.state = StateAuthenticated
	m.user = res.User
	m.permissions = toSet(res.Permissions)
	m.session = res.Session
	m.tokens = bundle
	m.lastActivity = m.nowTime()
	m.lastErr = nil
	m.generation++
	m.armRefreshLocked(bundle.ExpiresAt)
	m.startMonitorLocked()
	m.mu.Unlock()

	log.Info().Str("user", res.User.Email).Msg("session restored from stored credentials")
	return nil
}

// Login authenticates against the backend and, on success, atomically
// stores the credential bundle, transitions to authenticated, resets the
// activity clock, and arms the refresh scheduler. On failure no partial
// state is retained.
func (m *Manager) Login(ctx context.Context, creds Credentials) error {
	m.mu.Lock()
	m.state = StateAuthenticating
	m.lastErr = nil
	m.mu.Unlock()

	res, err := m.api.Authenticate(ctx, creds)
	if err != nil {
		wrapped := errors.Wrap(ErrAuthenticationFailed, err.Error())
		m.mu.Lock()
		m.state = StateAnonymous
		m.lastErr = wrapped
		m.mu.Unlock()
		return wrapped
	}

	now := m.nowTime()
	bundle := credentials.Bundle{
		AccessToken:  res.Tokens.AccessToken,
		RefreshToken: res.Tokens.RefreshToken,
		ExpiresAt:    now.Add(res.Tokens.ExpiresIn),
	}

	m.mu.Lock()
	if err := m.creds.Store(credentials.PrimaryKey, bundle); err != nil {
		m.state = StateAnonymous
		m.lastErr = err
		m.mu.Unlock()
		return errors.Wrap(err, "[Login] credentials.Store")
	}
	m.state = StateAuthenticated
	m.user = res.User
	m.permissions = toSet(res.Permissions)
	m.session = res.Session
	m.tokens = &bundle
	m.lastActivity = now
	m.generation++
	m.armRefreshLocked(bundle.ExpiresAt)
	m.startMonitorLocked()
	m.mu.Unlock()

	log.Info().Str("user", res.User.Email).Time("expires_at", bundle.ExpiresAt).Msg("login succeeded")
	return nil
}

// Logout always succeeds locally: pending timers are cancelled and all
// session fields reset before the backend is notified. A failed backend
// notification is logged and swallowed.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	accessToken := m.teardownLocked()
	m.mu.Unlock()

	m.notifyLogout(ctx, accessToken)
}

// teardownLocked cancels pending timers, removes the stored bundle and
// resets every session field. Returns the access token that was held so
// the backend can be notified outside the lock.
func (m *Manager) teardownLocked() string {
	var accessToken string
	if m.tokens != nil {
		accessToken = m.tokens.AccessToken
	}
	m.cancelRefreshLocked()
	m.stopMonitorLocked()
	if err := m.creds.Remove(credentials.PrimaryKey); err != nil {
		log.Warn().Err(err).Msg("failed to remove stored credentials on logout")
	}
	m.state = StateAnonymous
	m.user = nil
	m.permissions = nil
	m.session = ""
	m.tokens = nil
	m.lastActivity = time.Time{}
	m.generation++
	return accessToken
}

func (m *Manager) notifyLogout(ctx context.Context, accessToken string) {
	if accessToken == "" {
		return
	}
	if err := m.api.Logout(ctx, accessToken); err != nil {
		log.Warn().Err(err).Msg("backend logout notification failed")
	}
}

// RefreshToken exchanges the held refresh token for a new bundle and
// atomically replaces the stored one. Any failure tears the whole session
// down; a stale access token must not be treated as valid. Concurrent
// callers holding the same refresh token are collapsed into a single
// backend call; the call is keyed by the token so a refresh left over
// from a torn-down session is never shared with a newer one.
func (m *Manager) RefreshToken(ctx context.Context) error {
	m.mu.Lock()
	if m.tokens == nil || m.tokens.RefreshToken == "" {
		m.mu.Unlock()
		return ErrNoRefreshToken
	}
	refreshToken := m.tokens.RefreshToken
	gen := m.generation
	if m.state == StateAuthenticated {
		m.state = StateRefreshing
	}
	m.mu.Unlock()

	result, err, _ := m.refreshGroup.Do(refreshToken, func() (any, error) {
		return m.api.Refresh(ctx, refreshToken)
	})
	if err != nil {
		m.mu.Lock()
		late := m.generation != gen
		m.mu.Unlock()
		if late {
			return nil
		}
		log.Warn().Err(err).Msg("token refresh failed, tearing down session")
		m.Logout(ctx)
		return errors.Wrap(ErrRefreshFailed, err.Error())
	}
	tokens := result.(*TokenSet)

	now := m.nowTime()
	bundle := credentials.Bundle{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    now.Add(tokens.ExpiresIn),
	}

	m.mu.Lock()
	if m.generation != gen || m.state == StateAnonymous {
		// Late result: a logout or newer token mutation won.
		m.mu.Unlock()
		return nil
	}
	if err := m.creds.Store(credentials.PrimaryKey, bundle); err != nil {
		// The new bundle cannot be persisted and the old one is dead;
		// refresh failure is never partial.
		accessToken := m.teardownLocked()
		m.mu.Unlock()
		log.Warn().Err(err).Msg("failed to persist refreshed credentials, tearing down session")
		m.notifyLogout(ctx, accessToken)
		return errors.Wrap(ErrRefreshFailed, err.Error())
	}
	m.state = StateAuthenticated
	m.tokens = &bundle
	m.lastActivity = now
	m.generation++
	m.armRefreshLocked(bundle.ExpiresAt)
	m.mu.Unlock()

	log.Debug().Time("expires_at", bundle.ExpiresAt).Msg("token refreshed")
	return nil
}

// UpdateActivity records a user interaction. O(1), no I/O.
func (m *Manager) UpdateActivity() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateAnonymous {
		return
	}
	m.lastActivity = m.nowTime()
}

// CheckSession reports whether the session is still valid. If the idle
// timeout has been breached it performs a logout as a side effect,
// records ErrSessionExpired and returns false. The expiry decision and
// the teardown share one critical section, so a login landing in
// between is never torn down by a stale check.
func (m *Manager) CheckSession(ctx context.Context) bool {
	m.mu.Lock()
	if !m.isAuthenticatedLocked() {
		m.mu.Unlock()
		return false
	}
	if m.nowTime().Sub(m.lastActivity) <= m.config.GetSessionTimeout() {
		m.mu.Unlock()
		return true
	}
	log.Info().Msg("idle session timeout breached, logging out")
	accessToken := m.teardownLocked()
	m.lastErr = ErrSessionExpired
	m.mu.Unlock()

	m.notifyLogout(ctx, accessToken)
	return false
}

// HasPermission reports whether the current user holds permission p. The
// admin permission satisfies any check.
func (m *Manager) HasPermission(p string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasPermissionLocked(p)
}

// HasAnyPermission reports whether the current user holds at least one of
// the given permissions.
func (m *Manager) HasAnyPermission(ps ...string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range ps {
		if m.hasPermissionLocked(p) {
			return true
		}
	}
	return false
}

// IsAuthenticated reports whether a session is active.
func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isAuthenticatedLocked()
}

// CurrentUser returns a copy of the logged-in user, or nil when
// anonymous.
func (m *Manager) CurrentUser() *User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return nil
	}
	return utils.Ptr(*m.user)
}

// Permissions returns a snapshot of the current permission set.
func (m *Manager) Permissions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.permissions))
	for p := range m.permissions {
		out = append(out, p)
	}
	return out
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastError returns the error recorded by the most recent failed login
// or idle-timeout logout.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

func (m *Manager) isAuthenticatedLocked() bool {
	return m.state == StateAuthenticated || m.state == StateRefreshing
}

func (m *Manager) hasPermissionLocked(p string) bool {
	if !m.isAuthenticatedLocked() {
		return false
	}
	if _, ok := m.permissions[AdminPermission]; ok {
		return true
	}
	_, ok := m.permissions[p]
	return ok
}

// armRefreshLocked schedules the one-shot refresh a fixed margin before
// expiry. Arming cancels any prior pending refresh; there is never more
// than one live handle. A past-due expiry fires once, immediately.
func (m *Manager) armRefreshLocked(expiresAt time.Time) {
	m.cancelRefreshLocked()

	fireIn := expiresAt.Sub(m.nowTime()) - m.config.GetRefreshMargin()
	if fireIn < 0 {
		fireIn = 0
	}
	m.refreshTimer = m.afterFunc(fireIn, func() {
		if err := m.RefreshToken(context.Background()); err != nil {
			// Not retried here; RefreshToken has already torn the
			// session down.
			log.Error().Err(err).Msg("scheduled token refresh failed")
		}
	})
}

func (m *Manager) cancelRefreshLocked() {
	if m.refreshTimer != nil {
		m.refreshTimer.Stop()
		m.refreshTimer = nil
	}
}

func toSet(perms []string) map[string]struct{} {
	set := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}
