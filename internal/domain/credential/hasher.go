// Package credential implements the salted one-way transform used for locally stored passwords.
// A stored credential is the salt followed by the hex HMAC-SHA256 of the password keyed by that salt.
package credential

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
)

// SaltLength is the number of characters in every salt.
const SaltLength = 256

const saltAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// digestLength is the hex length of a SHA-256 MAC.
const digestLength = sha256.Size * 2

// Hasher encodes and verifies stored credentials.
// The zero value is ready to use and reads randomness from crypto/rand.
type Hasher struct {
	// Random overrides the entropy source; nil uses crypto/rand.
	Random io.Reader
}

// Hash returns the hex HMAC-SHA256 of plaintext keyed by salt.
func Hash(plaintext, salt string) string {
	mac := hmac.New(sha256.New, []byte(salt))
	mac.Write([]byte(plaintext))
	return hex.EncodeToString(mac.Sum(nil))
}

// NewSalt returns SaltLength random alphanumeric characters.
func (h Hasher) NewSalt() (string, error) {
	r := h.Random
	if r == nil {
		r = rand.Reader
	}
	// Rejection sampling keeps the alphabet uniform: 248 is the largest multiple of 62 below 256.
	const limit = 256 - 256%len(saltAlphabet)
	out := make([]byte, 0, SaltLength)
	buf := make([]byte, SaltLength)
	for len(out) < SaltLength {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("read salt entropy: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, saltAlphabet[int(b)%len(saltAlphabet)])
			if len(out) == SaltLength {
				break
			}
		}
	}
	return string(out), nil
}

// Encode returns salt || Hash(plaintext, salt) with a fresh salt.
func (h Hasher) Encode(plaintext string) (string, error) {
	salt, err := h.NewSalt()
	if err != nil {
		return "", err
	}
	return salt + Hash(plaintext, salt), nil
}

// Verify reports whether plaintext matches the stored credential.
// Malformed stored values never verify.
func (h Hasher) Verify(stored, plaintext string) bool {
	if len(stored) != SaltLength+digestLength {
		return false
	}
	salt, digest := stored[:SaltLength], stored[SaltLength:]
	return subtle.ConstantTimeCompare([]byte(digest), []byte(Hash(plaintext, salt))) == 1
}

// IsEncoded reports whether v has the shape of a stored credential.
func IsEncoded(v string) bool {
	if len(v) != SaltLength+digestLength {
		return false
	}
	_, err := hex.DecodeString(v[SaltLength:])
	return err == nil
}
