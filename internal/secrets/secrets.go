// Package secrets encrypts platform tokens and aggregator profile keys at rest.
//
// Values are sealed with AES-256-GCM under a key derived from ENCRYPTION_KEY
// with HKDF and stored as "v1." followed by base64(nonce || ciphertext || tag).
// Values in the older "iv:tag:ciphertext" layout, sealed with the raw key, are
// still accepted by Decrypt.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	KeySize = 32

	versionPrefix = "v1."
	hkdfInfo      = "publista-secrets-v1"
)

type Config struct {
	EncryptionKey string `env:"ENCRYPTION_KEY,required"`
}

// Cipher seals and opens secrets. It is safe for concurrent use.
type Cipher struct {
	derived cipher.AEAD
	legacy  cipher.AEAD
}

// New parses a 64-character hex key.
func New(hexKey string) (*Cipher, error) {
	master, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil || len(master) != KeySize {
		return nil, ErrInvalidKey
	}

	derivedKey := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, []byte(hkdfInfo)), derivedKey); err != nil {
		return nil, errors.Join(ErrKeyDerivationFailed, err)
	}
	defer clear(derivedKey)

	derived, err := newGCM(derivedKey)
	if err != nil {
		return nil, err
	}
	legacy, err := newGCM(master)
	if err != nil {
		return nil, err
	}
	return &Cipher{derived: derived, legacy: legacy}, nil
}

// MustNew is New for process startup.
func MustNew(hexKey string) *Cipher {
	c, err := New(hexKey)
	if err != nil {
		panic(err)
	}
	return c
}

// GenerateKey returns a random key in the hex form New expects.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return hex.EncodeToString(key), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Join(ErrInvalidKey, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Join(ErrInvalidKey, err)
	}
	return gcm, nil
}

func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.derived.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.Join(ErrEncryptionFailed, err)
	}
	sealed := c.derived.Seal(nonce, nonce, []byte(plaintext), nil)
	return versionPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	if rest, ok := strings.CutPrefix(ciphertext, versionPrefix); ok {
		return c.open(rest)
	}
	return c.openLegacy(ciphertext)
}

func (c *Cipher) open(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", errors.Join(ErrInvalidCiphertext, err)
	}
	ns := c.derived.NonceSize()
	if len(raw) < ns+c.derived.Overhead() {
		return "", ErrInvalidCiphertext
	}
	plain, err := c.derived.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", errors.Join(ErrDecryptionFailed, err)
	}
	return string(plain), nil
}

// openLegacy reads "iv:tag:ciphertext" with each part base64 encoded, sealed
// with the raw key and a 12-byte IV.
func (c *Cipher) openLegacy(value string) (string, error) {
	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return "", ErrInvalidCiphertext
	}
	var decoded [3][]byte
	for i, p := range parts {
		b, err := base64.StdEncoding.DecodeString(p)
		if err != nil {
			return "", errors.Join(ErrInvalidCiphertext, err)
		}
		decoded[i] = b
	}
	iv, tag, body := decoded[0], decoded[1], decoded[2]
	if len(iv) != c.legacy.NonceSize() || len(tag) != c.legacy.Overhead() {
		return "", ErrInvalidCiphertext
	}

	plain, err := c.legacy.Open(nil, iv, append(body, tag...), nil)
	if err != nil {
		return "", errors.Join(ErrDecryptionFailed, err)
	}
	return string(plain), nil
}
