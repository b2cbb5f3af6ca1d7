// Package auth keeps the signed-in user's tokens fresh. It classifies the
// stored access token, refreshes it through the OIDC token endpoint, falls
// back to API-key exchange, and runs a watchdog during long transfers.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/pilotdata/pilotcli/internal/clierr"
	"github.com/pilotdata/pilotcli/internal/identity"
)

// Config describes the identity provider.
type Config struct {
	ClientID      string
	TokenURL      string // {keycloak}/token
	DeviceAuthURL string // {keycloak}/auth/device
	RealmURL      string // {keycloak_realm}, API keys are exchanged at {realm}/api-key/{key}
	WarnWindow    time.Duration
	HTTPClient    *http.Client
}

// NewConfig builds a Config from the two Keycloak base URLs.
func NewConfig(keycloakURL, realmURL, clientID string, warn time.Duration, hc *http.Client) Config {
	base := strings.TrimRight(keycloakURL, "/")

	return Config{
		ClientID:      clientID,
		TokenURL:      base + "/token",
		DeviceAuthURL: base + "/auth/device",
		RealmURL:      strings.TrimRight(realmURL, "/"),
		WarnWindow:    warn,
		HTTPClient:    hc,
	}
}

// Manager owns the in-memory identity. Readers take the RW lock briefly;
// refreshes are serialized by refreshMu.
type Manager struct {
	cfg    Config
	oauth  *oauth2.Config
	store  *identity.Store
	logger *slog.Logger
	now    func() time.Time

	mu          sync.RWMutex
	id          *identity.Identity
	lastRefresh time.Time
	generation  uint64

	refreshMu sync.Mutex
}

// NewManager returns a Manager with no identity loaded.
func NewManager(cfg Config, store *identity.Store, logger *slog.Logger) *Manager {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}

	return &Manager{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID: cfg.ClientID,
			Endpoint: oauth2.Endpoint{
				TokenURL:      cfg.TokenURL,
				DeviceAuthURL: cfg.DeviceAuthURL,
				AuthStyle:     oauth2.AuthStyleInParams,
			},
			Scopes: []string{"openid"},
		},
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Load reads the stored identity. Returns NOT_LOGGED_IN when there is none.
func (m *Manager) Load() error {
	id, err := m.store.Load()
	if errors.Is(err, identity.ErrNotFound) {
		return clierr.New(clierr.NotLoggedIn, "no credentials at %s", m.store.Path())
	}

	if err != nil {
		return err
	}

	m.mu.Lock()
	m.id = id
	m.lastRefresh = m.now()
	m.generation++
	m.mu.Unlock()

	return nil
}

// Identity returns a copy of the current identity, or nil when not loaded.
func (m *Manager) Identity() *identity.Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.id == nil {
		return nil
	}

	cp := *m.id

	return &cp
}

// Username returns the signed-in user's name.
func (m *Manager) Username() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.id == nil {
		return ""
	}

	return m.id.Username
}

// SessionID returns the persisted session id sent with every request.
func (m *Manager) SessionID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.id == nil {
		return ""
	}

	return m.id.SessionID
}

// State classifies the current token pair.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.id == nil || m.id.AccessToken == "" {
		return StateExpired
	}

	return Classify(m.id.AccessToken, m.id.RefreshToken, m.cfg.ClientID, m.now(), m.cfg.WarnWindow)
}

// SinceRefresh returns the time elapsed since tokens were last replaced.
func (m *Manager) SinceRefresh() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.now().Sub(m.lastRefresh)
}

// Token returns an access token usable right now, refreshing or
// re-exchanging the API key first when the stored one is stale.
func (m *Manager) Token(ctx context.Context) (string, error) {
	m.mu.RLock()
	loaded := m.id != nil
	m.mu.RUnlock()

	if !loaded {
		return "", clierr.New(clierr.NotLoggedIn, "")
	}

	switch st := m.State(); st {
	case StateValid:
		m.mu.RLock()
		defer m.mu.RUnlock()

		return m.id.AccessToken, nil
	default:
		m.logger.Debug("access token needs renewal", slog.String("state", st.String()))

		return m.Refresh(ctx)
	}
}

// Refresh replaces the token pair. It uses the refresh token when one is
// live, and falls back to API-key exchange when the refresh is rejected or
// impossible. When every path fails the identity is wiped (API-key users)
// and LOGIN_EXPIRED is returned.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	m.mu.RLock()
	gen := m.generation
	m.mu.RUnlock()

	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	m.mu.RLock()
	if m.id == nil {
		m.mu.RUnlock()
		return "", clierr.New(clierr.NotLoggedIn, "")
	}

	if m.generation != gen && m.id.AccessToken != "" {
		// Another caller refreshed while we waited.
		tok := m.id.AccessToken
		m.mu.RUnlock()

		return tok, nil
	}

	cur := *m.id
	m.mu.RUnlock()

	state := Classify(cur.AccessToken, cur.RefreshToken, m.cfg.ClientID, m.now(), m.cfg.WarnWindow)

	if cur.RefreshToken != "" && state != StateExpired {
		tok, err := m.refreshGrant(ctx, cur.RefreshToken)
		if err == nil {
			return m.adoptTokens(&cur, tok.AccessToken, tok.RefreshToken)
		}

		if !refreshRejected(err) {
			return "", clierr.Wrap(clierr.ConnectionError, err, "refreshing access token")
		}

		m.logger.Info("refresh token rejected")
	}

	if cur.APIKey == "" {
		return "", clierr.New(clierr.LoginExpired, "")
	}

	access, refresh, err := m.exchangeAPIKey(ctx, cur.APIKey)
	if err != nil {
		m.logger.Warn("api key exchange failed, clearing credentials", slog.String("error", err.Error()))
		m.wipe()

		return "", clierr.Wrap(clierr.LoginExpired, err, "")
	}

	return m.adoptTokens(&cur, access, refresh)
}

// Adopt installs an identity reloaded from disk, typically after another
// process rotated the tokens.
func (m *Manager) Adopt(id *identity.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.id = id
	m.lastRefresh = m.now()
	m.generation++
}

func (m *Manager) adoptTokens(cur *identity.Identity, access, refresh string) (string, error) {
	next := *cur
	next.AccessToken = access

	if refresh != "" {
		next.RefreshToken = refresh
	}

	next.LastActive = m.now()

	if c, err := DecodeClaims(access); err == nil && c.Username != "" {
		next.Username = c.Username
	}

	if err := m.store.Save(&next); err != nil {
		return "", err
	}

	m.mu.Lock()
	m.id = &next
	m.lastRefresh = m.now()
	m.generation++
	m.mu.Unlock()

	m.logger.Debug("tokens refreshed")

	return access, nil
}

func (m *Manager) wipe() {
	if err := m.store.Clear(); err != nil {
		m.logger.Warn("clearing credentials", slog.String("error", err.Error()))
	}

	m.mu.Lock()
	m.id = nil
	m.generation++
	m.mu.Unlock()
}

func (m *Manager) httpContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, m.cfg.HTTPClient)
}

func (m *Manager) refreshGrant(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	// An already-expired token forces the source to hit the token endpoint.
	stale := &oauth2.Token{RefreshToken: refreshToken, Expiry: time.Unix(1, 0)}

	return m.oauth.TokenSource(m.httpContext(ctx), stale).Token()
}

// refreshRejected reports whether the token endpoint refused the refresh
// token itself, as opposed to a transport failure.
func refreshRejected(err error) bool {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return false
	}

	if re.Response != nil && re.Response.StatusCode == http.StatusUnauthorized {
		return true
	}

	return re.ErrorCode == "invalid_grant"
}

type apiKeyResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// exchangeAPIKey trades a long-lived API key for a token pair.
func (m *Manager) exchangeAPIKey(ctx context.Context, key string) (string, string, error) {
	endpoint := m.cfg.RealmURL + "/api-key/" + url.PathEscape(key)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", "", fmt.Errorf("auth: building api key request: %w", err)
	}

	resp, err := m.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("auth: api key exchange: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", "", fmt.Errorf("auth: reading api key response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("auth: api key exchange: HTTP %d", resp.StatusCode)
	}

	var out apiKeyResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", "", fmt.Errorf("auth: decoding api key response: %w", err)
	}

	if out.AccessToken == "" {
		return "", "", errors.New("auth: api key response has no access token")
	}

	return out.AccessToken, out.RefreshToken, nil
}
