package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pilotdata/pilotcli/internal/clierr"
	"github.com/pilotdata/pilotcli/internal/identity"
)

// DeviceCode holds what the user needs to approve a device login.
type DeviceCode struct {
	UserCode                string
	VerificationURI         string
	VerificationURIComplete string
}

// LoginDevice runs the OAuth device-code flow: display is called with the
// user code, then the call blocks until the user approves or ctx ends.
func (m *Manager) LoginDevice(ctx context.Context, display func(DeviceCode)) error {
	hctx := m.httpContext(ctx)

	da, err := m.oauth.DeviceAuth(hctx)
	if err != nil {
		return clierr.Wrap(clierr.ConnectionError, err, "requesting device code")
	}

	display(DeviceCode{
		UserCode:                da.UserCode,
		VerificationURI:         da.VerificationURI,
		VerificationURIComplete: da.VerificationURIComplete,
	})

	tok, err := m.oauth.DeviceAccessToken(hctx, da)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}

		return clierr.Wrap(clierr.InvalidCredentials, err, "device authorization")
	}

	return m.establish(&identity.Identity{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	})
}

// LoginAPIKey exchanges key for tokens and stores the key so expired
// sessions can be renewed without user interaction.
func (m *Manager) LoginAPIKey(ctx context.Context, key string) error {
	access, refresh, err := m.exchangeAPIKey(ctx, key)
	if err != nil {
		return clierr.Wrap(clierr.InvalidCredentials, err, "api key")
	}

	return m.establish(&identity.Identity{
		APIKey:       key,
		AccessToken:  access,
		RefreshToken: refresh,
	})
}

// Logout removes the stored credentials.
func (m *Manager) Logout() error {
	if err := m.store.Clear(); err != nil {
		return err
	}

	m.mu.Lock()
	m.id = nil
	m.generation++
	m.mu.Unlock()

	m.logger.Info("logged out")

	return nil
}

// establish fills in the username, keeps the install secret of any previous
// identity and persists the result.
func (m *Manager) establish(id *identity.Identity) error {
	claims, err := DecodeClaims(id.AccessToken)
	if err != nil {
		return clierr.Wrap(clierr.InvalidCredentials, err, "access token")
	}

	if claims.AuthorizedParty != "" && claims.AuthorizedParty != m.cfg.ClientID {
		return clierr.New(clierr.InvalidCredentials, "token issued to %q", claims.AuthorizedParty)
	}

	id.Username = claims.Username

	if prev, err := m.store.Load(); err == nil {
		id.Secret = prev.Secret
	}

	id.LastActive = m.now()

	if err := m.store.Save(id); err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}

	m.mu.Lock()
	m.id = id
	m.lastRefresh = m.now()
	m.generation++
	m.mu.Unlock()

	m.logger.Info("logged in", slog.String("user", id.Username))

	return nil
}
