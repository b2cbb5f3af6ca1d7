package identity

import (
	"encoding/base64"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSealer(t *testing.T) *Sealer {
	t.Helper()

	secret, err := NewSecret()
	require.NoError(t, err)

	s, err := NewSealer(secret)
	require.NoError(t, err)

	return s
}

func TestSealer_RoundTrip(t *testing.T) {
	s := testSealer(t)

	for _, v := range []string{"a", "exactly-16-bytes", "eyJhbGciOiJSUzI1NiJ9.payload.sig", "ünïcødé"} {
		sealed, err := s.Seal(v)
		require.NoError(t, err)
		assert.NotContains(t, sealed, v)

		opened, err := s.Open(sealed)
		require.NoError(t, err)
		assert.Equal(t, v, opened)
	}
}

func TestSealer_EmptyStaysEmpty(t *testing.T) {
	s := testSealer(t)

	sealed, err := s.Seal("")
	require.NoError(t, err)
	assert.Empty(t, sealed)

	opened, err := s.Open("")
	require.NoError(t, err)
	assert.Empty(t, opened)
}

func TestSealer_EnvelopeLayout(t *testing.T) {
	s := testSealer(t)
	s.now = func() time.Time { return time.Unix(1700000000, 0) }

	sealed, err := s.Seal("token")
	require.NoError(t, err)

	raw, err := base64.URLEncoding.DecodeString(sealed)
	require.NoError(t, err)

	assert.Equal(t, byte(0x80), raw[0])
	assert.Equal(t, uint64(1700000000), binary.BigEndian.Uint64(raw[1:9]))
	// version + ts + iv + one block + mac
	assert.Len(t, raw, 1+8+16+16+32)
}

func TestSealer_OldTokensStillOpen(t *testing.T) {
	s := testSealer(t)
	s.now = func() time.Time { return time.Now().AddDate(-3, 0, 0) }

	sealed, err := s.Seal("refresh-token")
	require.NoError(t, err)

	opened, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "refresh-token", opened)
}

func TestSealer_GarbageRejected(t *testing.T) {
	s := testSealer(t)

	for _, v := range []string{"not base64 at all", base64.URLEncoding.EncodeToString([]byte{0x80, 1, 2, 3})} {
		_, err := s.Open(v)
		assert.ErrorIs(t, err, ErrBadEnvelope, v)
	}
}

func TestSealer_TamperDetected(t *testing.T) {
	s := testSealer(t)

	sealed, err := s.Seal("token")
	require.NoError(t, err)

	raw, err := base64.URLEncoding.DecodeString(sealed)
	require.NoError(t, err)

	raw[len(raw)-40] ^= 0x01

	_, err = s.Open(base64.URLEncoding.EncodeToString(raw))
	assert.ErrorIs(t, err, ErrBadEnvelope)
}

func TestSealer_WrongSecret(t *testing.T) {
	sealed, err := testSealer(t).Seal("token")
	require.NoError(t, err)

	_, err = testSealer(t).Open(sealed)
	assert.ErrorIs(t, err, ErrBadEnvelope)
}

func TestNewSealer_MalformedSecret(t *testing.T) {
	_, err := NewSealer("%%%")
	assert.Error(t, err)
}
