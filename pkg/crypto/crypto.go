// Package crypto implements the secret cipher for pinlock.
//
// Stored secrets are encrypted with AES-256-GCM under a key derived from the
// user's master password via PBKDF2-SHA256. Every encryption call draws a
// fresh random salt and nonce; the three output fields are base64 encoded so
// they can be persisted as plain strings and must always be kept together.
//
// # Example Usage
//
//	enc, err := crypto.Encrypt("4821", masterPassword)
//	// store enc.Ciphertext, enc.IV, enc.Salt
//
//	plaintext, err := crypto.Decrypt(enc, masterPassword)
//	if errors.Is(err, crypto.ErrDecryptionFailed) { ... }
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/pbkdf2"
)

// Key derivation and cipher parameters.
const (
	// KDFIterations is the PBKDF2-SHA256 iteration count.
	KDFIterations = 100_000

	// KeyLength is the length of derived encryption keys in bytes (256 bits).
	KeyLength = 32

	// SaltLength is the length of KDF salts in bytes (128 bits).
	SaltLength = 16

	// NonceLength is the length of GCM nonces in bytes (96 bits).
	NonceLength = 12
)

// Sentinel errors returned by cipher functions.
var (
	// ErrDecryptionFailed indicates a wrong password or corrupt ciphertext.
	// Callers must surface both cases identically.
	ErrDecryptionFailed = errors.New("crypto: decryption failed")

	// ErrInvalidEncoding indicates a field is not valid base64.
	ErrInvalidEncoding = errors.New("crypto: invalid base64 encoding")

	// ErrInvalidSaltLength indicates the decoded salt is not 16 bytes.
	ErrInvalidSaltLength = errors.New("crypto: invalid salt length, must be 16 bytes")

	// ErrInvalidNonceLength indicates the decoded IV is not 12 bytes.
	ErrInvalidNonceLength = errors.New("crypto: invalid iv length, must be 12 bytes")

	// ErrCiphertextTooShort indicates the ciphertext is shorter than the GCM tag.
	ErrCiphertextTooShort = errors.New("crypto: ciphertext too short")
)

// EncryptedSecret is the storable form of an encrypted secret.
//
// All fields are base64 encoded raw bytes. The triple is produced by a single
// Encrypt call and must be passed back to Decrypt unchanged; fields from
// different Encrypt calls can never be mixed.
type EncryptedSecret struct {
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
	Salt       string `json:"salt"`
}

// DeriveKey derives a 256-bit encryption key from a master password and salt
// using PBKDF2-SHA256 with 100,000 iterations.
func DeriveKey(password, salt []byte) []byte {
	return pbkdf2.Key(password, salt, KDFIterations, KeyLength, sha256.New)
}

// Encrypt encrypts plaintext under a key derived from password.
//
// A fresh 16-byte salt and 12-byte nonce are drawn from crypto/rand on every
// call. The GCM authentication tag is appended to the ciphertext.
func Encrypt(plaintext, password string) (EncryptedSecret, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return EncryptedSecret{}, fmt.Errorf("crypto: failed to generate salt: %w", err)
	}

	nonce := make([]byte, NonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return EncryptedSecret{}, fmt.Errorf("crypto: failed to generate nonce: %w", err)
	}

	key := DeriveKey([]byte(password), salt)
	defer SecureWipe(key)

	gcm, err := newGCM(key)
	if err != nil {
		return EncryptedSecret{}, err
	}

	ciphertext := gcm.Seal(nil, nonce, []byte(plaintext), nil)

	return EncryptedSecret{
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		IV:         base64.StdEncoding.EncodeToString(nonce),
		Salt:       base64.StdEncoding.EncodeToString(salt),
	}, nil
}

// Decrypt decrypts an EncryptedSecret with the given password.
//
// Returns ErrDecryptionFailed when the password is wrong or the ciphertext
// fails tag verification. Malformed encodings are reported with distinct
// sentinel errors so corruption can be diagnosed locally, but user-facing
// surfaces should collapse all failures into one generic message.
func Decrypt(enc EncryptedSecret, password string) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(enc.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext", ErrInvalidEncoding)
	}
	nonce, err := base64.StdEncoding.DecodeString(enc.IV)
	if err != nil {
		return "", fmt.Errorf("%w: iv", ErrInvalidEncoding)
	}
	salt, err := base64.StdEncoding.DecodeString(enc.Salt)
	if err != nil {
		return "", fmt.Errorf("%w: salt", ErrInvalidEncoding)
	}

	if len(salt) != SaltLength {
		return "", ErrInvalidSaltLength
	}
	if len(nonce) != NonceLength {
		return "", ErrInvalidNonceLength
	}

	key := DeriveKey([]byte(password), salt)
	defer SecureWipe(key)

	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	if len(ciphertext) < gcm.Overhead() {
		return "", ErrCiphertextTooShort
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	return string(plaintext), nil
}

// newGCM builds an AES-256-GCM AEAD from a 32-byte key.
func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create GCM: %w", err)
	}
	return gcm, nil
}

// SecureWipe overwrites a byte slice with zeros in a way that prevents
// compiler optimization from removing the operation.
func SecureWipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	// runtime.KeepAlive ensures the write operations are not optimized away
	// by the compiler since b is still "in use" after the loop.
	runtime.KeepAlive(b)
}
