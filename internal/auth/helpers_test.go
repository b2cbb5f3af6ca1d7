package auth

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/pilotdata/pilotcli/internal/identity"
)

const testClientID = "pilotcli"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// makeToken signs a JWT with a throwaway key. Only the claims matter.
func makeToken(t *testing.T, exp time.Time, azp, user string) string {
	t.Helper()

	claims := jwt.MapClaims{"exp": exp.Unix(), "azp": azp, "preferred_username": user}

	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	require.NoError(t, err)

	return s
}

func newTestStore(t *testing.T) *identity.Store {
	t.Helper()

	return identity.NewStore(filepath.Join(t.TempDir(), "config.ini"), true, discardLogger())
}
