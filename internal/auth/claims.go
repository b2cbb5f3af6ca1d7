package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// State classifies the stored access token.
type State int

const (
	StateValid State = iota
	StateRefreshable
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateValid:
		return "valid"
	case StateRefreshable:
		return "refreshable"
	default:
		return "expired"
	}
}

// Claims holds the token fields the client cares about. Signatures are not
// verified; the platform enforces trust.
type Claims struct {
	Expiry          time.Time
	AuthorizedParty string
	Username        string
}

type tokenClaims struct {
	jwt.RegisteredClaims
	AuthorizedParty   string `json:"azp"`
	PreferredUsername string `json:"preferred_username"`
}

// DecodeClaims parses a JWT without verifying its signature.
func DecodeClaims(token string) (Claims, error) {
	var tc tokenClaims

	if _, _, err := jwt.NewParser().ParseUnverified(token, &tc); err != nil {
		return Claims{}, fmt.Errorf("auth: decoding token claims: %w", err)
	}

	c := Claims{
		AuthorizedParty: tc.AuthorizedParty,
		Username:        tc.PreferredUsername,
	}

	if tc.ExpiresAt != nil {
		c.Expiry = tc.ExpiresAt.Time
	}

	return c, nil
}

// Classify decides the state of an access/refresh token pair at now.
// A token issued to a different client (azp) is treated as expired.
// An undecodable refresh token is assumed live and left for the server to
// judge.
func Classify(access, refresh, clientID string, now time.Time, warn time.Duration) State {
	ac, err := DecodeClaims(access)
	if err == nil && ac.AuthorizedParty != "" && ac.AuthorizedParty != clientID {
		return StateExpired
	}

	if err == nil && !ac.Expiry.IsZero() {
		if now.Before(ac.Expiry.Add(-warn)) {
			return StateValid
		}

		if now.Before(ac.Expiry) {
			if refresh == "" {
				// Nothing to refresh with; use it until it lapses.
				return StateValid
			}

			return StateRefreshable
		}
	}

	if refresh == "" {
		return StateExpired
	}

	rc, err := DecodeClaims(refresh)
	if err != nil || rc.Expiry.IsZero() || now.Before(rc.Expiry) {
		return StateRefreshable
	}

	return StateExpired
}
