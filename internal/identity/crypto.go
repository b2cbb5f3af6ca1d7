package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/fernet/fernet-go"
	"golang.org/x/crypto/pbkdf2"
)

// Key derivation parameters for credential encryption.
const (
	passphrase = "pilotcli-credential-store-v1"
	kdfIter    = 600_000
	kdfKeyLen  = 32
	secretLen  = 16
)

// ErrBadEnvelope is returned when a stored value cannot be authenticated
// or decoded.
var ErrBadEnvelope = errors.New("identity: invalid encrypted value")

// Sealer encrypts and decrypts credential values as Fernet tokens keyed by
// a PBKDF2 derivation of the per-install secret.
type Sealer struct {
	key fernet.Key
	now func() time.Time
}

// NewSecret returns a fresh random per-install secret, base64 encoded.
func NewSecret() (string, error) {
	b := make([]byte, secretLen)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("identity: generating secret: %w", err)
	}

	return base64.StdEncoding.EncodeToString(b), nil
}

// NewSealer derives the envelope key from the per-install secret.
func NewSealer(secret string) (*Sealer, error) {
	salt, err := base64.StdEncoding.DecodeString(secret)
	if err != nil || len(salt) == 0 {
		return nil, fmt.Errorf("identity: malformed secret")
	}

	s := &Sealer{now: time.Now}
	copy(s.key[:], pbkdf2.Key([]byte(passphrase), salt, kdfIter, kdfKeyLen, sha256.New))

	return s, nil
}

// Seal encrypts plaintext. The empty string seals to the empty string so
// absent fields stay absent on disk.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	tok, err := fernet.EncryptAndSignAtTime([]byte(plaintext), &s.key, s.now())
	if err != nil {
		return "", fmt.Errorf("identity: sealing: %w", err)
	}

	return string(tok), nil
}

// Open reverses Seal. Tokens never expire.
func (s *Sealer) Open(token string) (string, error) {
	if token == "" {
		return "", nil
	}

	msg := fernet.VerifyAndDecrypt([]byte(token), 0, []*fernet.Key{&s.key})
	if msg == nil {
		return "", ErrBadEnvelope
	}

	return string(msg), nil
}
