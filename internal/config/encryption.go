// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	// hkdfSalt binds derived keys to this application.
	hkdfSalt = "heliopause-gateway-credentials"
	// hkdfInfo versions the derivation; bump to rotate all keys.
	hkdfInfo = "credential-encryption-v1"

	aesKeySize   = 32
	gcmNonceSize = 12

	// EncryptedValuePrefix marks config values that need decryption.
	EncryptedValuePrefix = "enc:"

	// SecretsKeyEnvVar supplies the master secret for enc: values.
	SecretsKeyEnvVar = "HELIOPAUSE_SECRETS_KEY"
)

var (
	ErrEmptySecret        = errors.New("encryption secret must not be empty")
	ErrEmptyPlaintext     = errors.New("plaintext must not be empty")
	ErrEmptyCiphertext    = errors.New("ciphertext must not be empty")
	ErrDecryptionFailed   = errors.New("decryption failed")
	ErrInvalidCiphertext  = errors.New("invalid ciphertext encoding")
	ErrCiphertextTooShort = errors.New("ciphertext too short")
)

// CredentialEncryptor encrypts and decrypts credential strings with
// AES-256-GCM under a key derived from a master secret.
type CredentialEncryptor struct {
	key    []byte
	cipher cipher.AEAD
}

// NewCredentialEncryptor derives an AES key from secret and prepares
// the AEAD cipher.
func NewCredentialEncryptor(secret string) (*CredentialEncryptor, error) {
	key, err := deriveKey(secret)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm mode: %w", err)
	}

	return &CredentialEncryptor{key: key, cipher: gcm}, nil
}

// deriveKey stretches the secret into a 32-byte AES key via HKDF so
// short or low-entropy secrets still produce a full-length key.
func deriveKey(secret string) ([]byte, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	reader := hkdf.New(sha256.New, []byte(secret), []byte(hkdfSalt), []byte(hkdfInfo))
	key := make([]byte, aesKeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}
	return key, nil
}

// Encrypt seals plaintext and returns base64(nonce || ciphertext).
func (e *CredentialEncryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPlaintext
	}

	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce generation failed: %w", err)
	}

	sealed := e.cipher.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Tampered or truncated input yields
// ErrDecryptionFailed without detail, to avoid oracle behavior.
func (e *CredentialEncryptor) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", ErrEmptyCiphertext
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrInvalidCiphertext
	}

	// A valid payload is the nonce plus at least one sealed byte.
	if len(raw) <= gcmNonceSize+e.cipher.Overhead() {
		return "", ErrCiphertextTooShort
	}

	nonce, sealed := raw[:gcmNonceSize], raw[gcmNonceSize:]
	plaintext, err := e.cipher.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// MaskCredential renders a credential safe for logs, keeping only
// the last four characters.
func MaskCredential(credential string) string {
	if len(credential) <= 4 {
		return "****"
	}
	return "****..." + credential[len(credential)-4:]
}

// ValidateEncryptionSetup round-trips a probe value to confirm the
// secret yields a working cipher.
func ValidateEncryptionSetup(secret string) error {
	enc, err := NewCredentialEncryptor(secret)
	if err != nil {
		return err
	}

	const probe = "encryption-setup-probe"
	sealed, err := enc.Encrypt(probe)
	if err != nil {
		return fmt.Errorf("encryption probe failed: %w", err)
	}

	opened, err := enc.Decrypt(sealed)
	if err != nil {
		return fmt.Errorf("decryption probe failed: %w", err)
	}
	if opened != probe {
		return errors.New("encryption round-trip mismatch")
	}
	return nil
}

// decryptSecrets resolves enc:-prefixed config values using the key
// from SecretsKeyEnvVar. The encryptor is built only when at least
// one value needs it, so plaintext configs run without the key.
func (c *Config) decryptSecrets() error {
	fields := map[string]*string{
		"database.dsn":            &c.Database.DSN,
		"auth.admin_token_secret": &c.Auth.AdminTokenSecret,
	}

	var enc *CredentialEncryptor
	for path, field := range fields {
		if !strings.HasPrefix(*field, EncryptedValuePrefix) {
			continue
		}
		if enc == nil {
			secret := os.Getenv(SecretsKeyEnvVar)
			if secret == "" {
				return fmt.Errorf("%s contains an encrypted value but %s is unset", path, SecretsKeyEnvVar)
			}
			var err error
			enc, err = NewCredentialEncryptor(secret)
			if err != nil {
				return fmt.Errorf("credential decryption init: %w", err)
			}
		}
		plain, err := enc.Decrypt(strings.TrimPrefix(*field, EncryptedValuePrefix))
		if err != nil {
			return fmt.Errorf("decrypt %s: %w", path, err)
		}
		*field = plain
	}
	return nil
}
