// Package synccrypto provides the authenticated symmetric encryption
// used for off-device config backups: AES-256-GCM with keys derived
// via PBKDF2-HMAC-SHA256.
package synccrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltLength       = 16
	nonceLength      = 12
	keyLength        = 32
	pbkdf2Iterations = 100_000
)

// ErrDecryptFailed is returned for any decryption failure. Callers
// cannot distinguish a wrong password from corrupted data.
var ErrDecryptFailed = errors.New("decryption failed: wrong password or corrupted data")

// Encrypt encrypts plaintext with a password. The envelope is
// base64(salt || nonce || ciphertext-with-tag) with a fresh random
// salt and nonce per call.
func Encrypt(plaintext, password string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	nonce := make([]byte, nonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	aead, err := newAEAD(password, salt)
	if err != nil {
		return "", err
	}

	ciphertext := aead.Seal(nil, nonce, []byte(plaintext), nil)

	combined := make([]byte, 0, saltLength+nonceLength+len(ciphertext))
	combined = append(combined, salt...)
	combined = append(combined, nonce...)
	combined = append(combined, ciphertext...)

	return base64.StdEncoding.EncodeToString(combined), nil
}

// Decrypt reverses Encrypt. It fails closed: any authentication or
// framing failure yields ErrDecryptFailed without revealing the cause.
func Decrypt(encrypted, password string) (string, error) {
	combined, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", ErrDecryptFailed
	}
	if len(combined) < saltLength+nonceLength {
		return "", ErrDecryptFailed
	}

	salt := combined[:saltLength]
	nonce := combined[saltLength : saltLength+nonceLength]
	ciphertext := combined[saltLength+nonceLength:]

	aead, err := newAEAD(password, salt)
	if err != nil {
		return "", ErrDecryptFailed
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryptFailed
	}

	return string(plaintext), nil
}

func newAEAD(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, keyLength, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher creation failed: %w", err)
	}
	return cipher.NewGCM(block)
}

// GenerateKey derives a stable hex-encoded key for a (password, email)
// pair, used once at sync setup. The salt is a hash of the email so the
// same inputs always produce the same key.
func GenerateKey(password, email string) string {
	saltInput := "mailclient-sync-" + email
	hash := sha256.Sum256([]byte(saltInput))
	salt := hash[:saltLength]

	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, keyLength, sha256.New)
	return hex.EncodeToString(key)
}
