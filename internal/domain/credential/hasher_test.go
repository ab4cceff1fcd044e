package credential

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHash_FixedVector(t *testing.T) {
	// HMAC-SHA256(key="key", msg="The quick brown fox jumps over the lazy dog")
	got := Hash("The quick brown fox jumps over the lazy dog", "key")
	assert.Equal(t, "f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8", got)
}

func TestHash_DeterministicAndSaltSensitive(t *testing.T) {
	a := Hash("secret", "salt-one")
	assert.Equal(t, a, Hash("secret", "salt-one"))
	assert.NotEqual(t, a, Hash("secret", "salt-two"))
	assert.Len(t, a, 64)
}

func TestHasher_NewSalt(t *testing.T) {
	var h Hasher
	s1, err := h.NewSalt()
	require.NoError(t, err)
	s2, err := h.NewSalt()
	require.NoError(t, err)

	assert.Len(t, s1, SaltLength)
	assert.NotEqual(t, s1, s2)
	for _, c := range s1 {
		assert.True(t, strings.ContainsRune(saltAlphabet, c), "unexpected salt rune %q", c)
	}
}

func TestHasher_NewSaltSkipsBiasedBytes(t *testing.T) {
	// 0xff is outside the uniform range and must be skipped; 0x00 maps to 'A'.
	src := bytes.Repeat([]byte{0xff, 0x00}, SaltLength)
	salt, err := Hasher{Random: bytes.NewReader(src)}.NewSalt()
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("A", SaltLength), salt)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("no entropy") }

func TestHasher_NewSaltEntropyError(t *testing.T) {
	_, err := Hasher{Random: failingReader{}}.NewSalt()
	require.Error(t, err)

	_, err = Hasher{Random: failingReader{}}.Encode("pw")
	require.Error(t, err)
}

func TestHasher_EncodeVerifyRoundTrip(t *testing.T) {
	var h Hasher
	stored, err := h.Encode("pw")
	require.NoError(t, err)

	assert.Len(t, stored, SaltLength+64)
	assert.True(t, IsEncoded(stored))
	assert.NotContains(t, stored[SaltLength:], "pw")
	assert.True(t, h.Verify(stored, "pw"))
	assert.False(t, h.Verify(stored, "wrongpw"))
	assert.False(t, h.Verify(stored, ""))
}

func TestHasher_EncodeUsesFreshSalt(t *testing.T) {
	var h Hasher
	a, err := h.Encode("pw")
	require.NoError(t, err)
	b, err := h.Encode("pw")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestHasher_VerifyMalformed(t *testing.T) {
	var h Hasher
	assert.False(t, h.Verify("", "pw"))
	assert.False(t, h.Verify("short", "pw"))
	assert.False(t, h.Verify("pw", "pw"))
	assert.False(t, IsEncoded("plaintext"))
}
