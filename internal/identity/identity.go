// Package identity persists the signed-in user's credentials in
// ~/.pilotcli/config.ini. Token and key values are encrypted at rest and the
// file is readable only by its owner.
package identity

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/ini.v1"

	"github.com/pilotdata/pilotcli/internal/atomicfile"
)

// ErrNotFound means no credential file exists yet.
var ErrNotFound = errors.New("identity: no stored credentials")

// Section and key names in config.ini.
const (
	sectionUser     = "USER"
	keyUsername     = "username"
	keyAPIKey       = "api_key"
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
	keySessionID    = "session_id"
	keyLastActive   = "last_active"
	keySecret       = "secret"
)

// Identity is a snapshot of the stored credentials. Values are plaintext in
// memory; only the Store encrypts them.
type Identity struct {
	Username     string
	APIKey       string
	AccessToken  string
	RefreshToken string
	SessionID    string
	LastActive   time.Time
	Secret       string
}

// HasTokens reports whether an access token is present.
func (id *Identity) HasTokens() bool {
	return id != nil && id.AccessToken != ""
}

// Store reads and writes the credential file.
type Store struct {
	path   string
	cloud  bool
	logger *slog.Logger

	mu       sync.Mutex
	sealer   *Sealer
	sealedBy string
	lastSeen [sha256.Size]byte
}

// NewStore returns a store for the file at path. In cloud mode permission
// enforcement is skipped.
func NewStore(path string, cloud bool, logger *slog.Logger) *Store {
	return &Store{path: path, cloud: cloud, logger: logger}
}

// Path returns the credential file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads and decrypts the credential file. Returns ErrNotFound when the
// file does not exist.
func (s *Store) Load() (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("identity: reading %s: %w", s.path, err)
	}

	if err := s.enforce(); err != nil {
		return nil, err
	}

	id, err := s.decode(data)
	if err != nil {
		return nil, err
	}

	s.lastSeen = sha256.Sum256(data)

	return id, nil
}

// Save encrypts and writes id. A missing secret or session id is generated
// and written back into id.
func (s *Store) Save(id *Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id.Secret == "" {
		secret, err := NewSecret()
		if err != nil {
			return err
		}

		id.Secret = secret
	}

	if id.SessionID == "" {
		id.SessionID = uuid.NewString()
	}

	if id.LastActive.IsZero() {
		id.LastActive = time.Now()
	}

	data, err := s.encode(id)
	if err != nil {
		return err
	}

	if err := atomicfile.Write(s.path, data, atomicfile.FilePerms); err != nil {
		return fmt.Errorf("identity: saving: %w", err)
	}

	if err := s.enforce(); err != nil {
		return err
	}

	s.lastSeen = sha256.Sum256(data)
	s.logger.Debug("credentials saved", slog.String("path", s.path))

	return nil
}

// Clear removes the credential file. A missing file is not an error.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("identity: removing %s: %w", s.path, err)
	}

	s.lastSeen = [sha256.Size]byte{}

	return nil
}

// changedOnDisk reports whether the file content differs from what this
// store last read or wrote.
func (s *Store) changedOnDisk() bool {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return sha256.Sum256(data) != s.lastSeen
}

func (s *Store) enforce() error {
	if s.cloud {
		return nil
	}

	fixed, err := enforcePermissions(filepath.Dir(s.path), s.path)
	if err != nil {
		return fmt.Errorf("identity: securing %s: %w", s.path, err)
	}

	if fixed {
		s.logger.Warn("tightened permissions on credential file", slog.String("path", s.path))
	}

	return nil
}

func (s *Store) sealerFor(secret string) (*Sealer, error) {
	if s.sealer != nil && s.sealedBy == secret {
		return s.sealer, nil
	}

	sl, err := NewSealer(secret)
	if err != nil {
		return nil, err
	}

	s.sealer, s.sealedBy = sl, secret

	return sl, nil
}

func (s *Store) encode(id *Identity) ([]byte, error) {
	sl, err := s.sealerFor(id.Secret)
	if err != nil {
		return nil, err
	}

	f := ini.Empty()

	sec, err := f.NewSection(sectionUser)
	if err != nil {
		return nil, fmt.Errorf("identity: %w", err)
	}

	encrypted := []struct {
		key, val string
	}{
		{keyUsername, id.Username},
		{keyAPIKey, id.APIKey},
		{keyAccessToken, id.AccessToken},
		{keyRefreshToken, id.RefreshToken},
	}

	for _, e := range encrypted {
		v, err := sl.Seal(e.val)
		if err != nil {
			return nil, err
		}

		sec.Key(e.key).SetValue(v)
	}

	sec.Key(keySessionID).SetValue(id.SessionID)
	sec.Key(keyLastActive).SetValue(strconv.FormatInt(id.LastActive.Unix(), 10))
	sec.Key(keySecret).SetValue(id.Secret)

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("identity: encoding: %w", err)
	}

	return buf.Bytes(), nil
}

func (s *Store) decode(data []byte) (*Identity, error) {
	f, err := ini.Load(data)
	if err != nil {
		return nil, fmt.Errorf("identity: parsing %s: %w", s.path, err)
	}

	sec, err := f.GetSection(sectionUser)
	if err != nil {
		return nil, fmt.Errorf("identity: %s has no [%s] section: %w", s.path, sectionUser, err)
	}

	id := &Identity{
		SessionID: sec.Key(keySessionID).String(),
		Secret:    sec.Key(keySecret).String(),
	}

	if ts, err := sec.Key(keyLastActive).Int64(); err == nil {
		id.LastActive = time.Unix(ts, 0)
	}

	if id.Secret == "" {
		return nil, fmt.Errorf("identity: %s has no secret", s.path)
	}

	sl, err := s.sealerFor(id.Secret)
	if err != nil {
		return nil, err
	}

	fields := []struct {
		key string
		dst *string
	}{
		{keyUsername, &id.Username},
		{keyAPIKey, &id.APIKey},
		{keyAccessToken, &id.AccessToken},
		{keyRefreshToken, &id.RefreshToken},
	}

	for _, fld := range fields {
		v, err := sl.Open(sec.Key(fld.key).String())
		if err != nil {
			return nil, fmt.Errorf("identity: decrypting %s: %w", fld.key, err)
		}

		*fld.dst = v
	}

	return id, nil
}
