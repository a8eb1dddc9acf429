package connections

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/secureview-io/secureview-auth/connections/staterepo"
	"github.com/secureview-io/secureview-auth/credentials"
	"github.com/secureview-io/secureview-auth/internal/config"
	"github.com/secureview-io/secureview-auth/internal/utils"
	"golang.org/x/oauth2"
)

// Connection is one established provider link. The manager owns the
// registry exclusively; readers get copies.
type Connection struct {
	Provider    string            `json:"provider"`
	UserInfo    UserInfo          `json:"user_info"`
	Scopes      []string          `json:"scopes"`
	Params      map[string]string `json:"params,omitempty"`
	ConnectedAt time.Time         `json:"connected_at"`
	ExpiresAt   time.Time         `json:"expires_at"`
}

// ConnectedFunc is notified after a connection record is written.
type ConnectedFunc func(Connection)

// Callback carries the query parameters of a provider redirect.
type Callback struct {
	Code             string
	State            string
	ErrorCode        string
	ErrorDescription string
}

// Manager orchestrates the authorize-redirect → callback → code-exchange
// flow per provider and derives connection status on demand.
type Manager struct {
	providers map[string]Provider
	states    staterepo.Repo
	creds     credentials.Repo
	config    config.OAuthConfig
	exchanger Exchanger
	identity  IdentityFetcher

	nowTime  func() time.Time // injectable for testing
	newState func() (string, error)

	mu          sync.RWMutex
	registry    map[string]*Connection
	subscribers []ConnectedFunc
}

// ManagerOption defines a function type to modify the Manager instance.
type ManagerOption func(*Manager)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

// WithExchanger replaces the code exchanger (primarily for testing)
func WithExchanger(e Exchanger) ManagerOption {
	return func(m *Manager) {
		m.exchanger = e
	}
}

// WithIdentityFetcher replaces the identity fetcher (primarily for testing)
func WithIdentityFetcher(f IdentityFetcher) ManagerOption {
	return func(m *Manager) {
		m.identity = f
	}
}

// NewManager initializes a connection Manager for the given providers.
func NewManager(providers []Provider, states staterepo.Repo, creds credentials.Repo, cfg config.OAuthConfig, options ...ManagerOption) (*Manager, error) {
	if states == nil {
		return nil, errors.New("[NewManager] state repo is required")
	}
	if creds == nil {
		return nil, errors.New("[NewManager] credentials repo is required")
	}
	if cfg == nil {
		return nil, errors.New("[NewManager] oauth config is required")
	}

	m := &Manager{
		providers: make(map[string]Provider, len(providers)),
		states:    states,
		creds:     creds,
		config:    cfg,
		exchanger: OAuth2Exchanger{},
		identity:  HTTPIdentityFetcher{},
		nowTime:   time.Now,
		registry:  make(map[string]*Connection),
	}
	m.newState = func() (string, error) {
		return generateState(cfg.GetStateLength())
	}
	for _, p := range providers {
		m.providers[p.ID] = p
	}

	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// OnConnected registers a callback invoked whenever a connection is
// established.
func (m *Manager) OnConnected(fn ConnectedFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// Connect validates the provider-specific parameters and returns the
// authorization URL with a PKCE challenge and a single-use state nonce.
// Nothing is stored when validation fails.
func (m *Manager) Connect(providerID string, params map[string]string) (string, error) {
	provider, ok := m.providers[providerID]
	if !ok {
		return "", errors.Wrap(ErrUnknownProvider, providerID)
	}
	if err := provider.ValidateConnectParams(params); err != nil {
		return "", err
	}

	verifier := oauth2.GenerateVerifier()
	state, err := m.newState()
	if err != nil {
		return "", errors.Wrap(err, "[Connect] generate state")
	}

	if err := m.states.Upsert(state, &staterepo.PendingAuth{
		Provider:     providerID,
		CodeVerifier: verifier,
		Params:       params,
		CreatedAt:    m.nowTime(),
	}); err != nil {
		return "", errors.Wrap(err, "[Connect] store pending auth")
	}

	authURL := provider.OAuth2Config(params).AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier),
	)

	log.Debug().Str("provider", providerID).Msg("authorization redirect issued")
	return authURL, nil
}

// HandleCallback consumes a provider redirect. The state nonce is
// discarded on first use whether or not verification succeeds. A
// provider-reported error terminates the attempt without touching any
// existing connection.
func (m *Manager) HandleCallback(ctx context.Context, providerID string, cb Callback) (*Connection, error) {
	provider, ok := m.providers[providerID]
	if !ok {
		return nil, errors.Wrap(ErrUnknownProvider, providerID)
	}

	if cb.ErrorCode != "" {
		if cb.State != "" {
			_, _ = m.states.Consume(cb.State)
		}
		return nil, &ProviderError{Provider: providerID, Code: cb.ErrorCode, Description: cb.ErrorDescription}
	}

	if cb.Code == "" || cb.State == "" {
		return nil, ErrMissingOAuthParameters
	}

	pending, err := m.states.Consume(cb.State)
	if err != nil {
		return nil, ErrStateMismatch
	}
	if pending.Provider != providerID {
		return nil, ErrStateMismatch
	}
	if m.nowTime().Sub(pending.CreatedAt) > m.config.GetStateTimeout() {
		return nil, ErrStateMismatch
	}

	token, err := m.exchanger.Exchange(ctx, provider, pending.Params, cb.Code, pending.CodeVerifier)
	if err != nil {
		return nil, errors.Wrap(err, "[HandleCallback] exchange")
	}

	info, err := m.identity.Fetch(ctx, provider, token)
	if err != nil {
		return nil, errors.Wrap(err, "[HandleCallback] fetch identity")
	}

	if err := m.creds.Store(providerID, credentials.Bundle{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}); err != nil {
		return nil, errors.Wrap(err, "[HandleCallback] store credentials")
	}

	conn := Connection{
		Provider:    providerID,
		UserInfo:    info,
		Scopes:      provider.Scopes,
		Params:      pending.Params,
		ConnectedAt: m.nowTime(),
		ExpiresAt:   token.Expiry,
	}

	m.mu.Lock()
	stored := conn
	m.registry[providerID] = &stored
	subscribers := make([]ConnectedFunc, len(m.subscribers))
	copy(subscribers, m.subscribers)
	m.mu.Unlock()

	log.Info().Str("provider", providerID).Str("login", info.Login).Msg("connection established")
	for _, fn := range subscribers {
		fn(conn)
	}
	return &conn, nil
}

// Disconnect removes the connection record and discards its tokens.
// Disconnecting an already-disconnected provider is a no-op.
func (m *Manager) Disconnect(providerID string) error {
	m.mu.Lock()
	_, existed := m.registry[providerID]
	delete(m.registry, providerID)
	m.mu.Unlock()

	if err := m.creds.Remove(providerID); err != nil {
		return errors.Wrap(err, "[Disconnect] remove credentials")
	}
	if existed {
		log.Info().Str("provider", providerID).Msg("provider disconnected")
	}
	return nil
}

// Status derives the connection status for a provider from the wall
// clock. No provider network call is made.
func (m *Manager) Status(providerID string) Status {
	m.mu.RLock()
	conn := m.registry[providerID]
	m.mu.RUnlock()

	if conn == nil {
		return StatusDisconnected
	}
	return DeriveStatus(m.nowTime(), conn.ExpiresAt, m.config.GetExpiryWarningWindow())
}

// Connection returns a snapshot of the provider's connection record, or
// nil when disconnected.
func (m *Manager) Connection(providerID string) *Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conn := m.registry[providerID]
	if conn == nil {
		return nil
	}
	return utils.Ptr(*conn)
}

// Connections returns a snapshot of all connection records, ordered by
// provider ID.
func (m *Manager) Connections() []Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Connection, 0, len(m.registry))
	for _, conn := range m.registry {
		out = append(out, *conn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

// ExpirePendingAuth drops pending authorize states older than the state
// timeout. Intended to be called periodically by the owning process.
func (m *Manager) ExpirePendingAuth() error {
	cutoff := m.nowTime().Add(-m.config.GetStateTimeout())
	return m.states.DeleteExpired(cutoff)
}

func generateState(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}
