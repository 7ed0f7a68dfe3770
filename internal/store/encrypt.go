package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql/driver"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// encryptionKey and encryptionEnabled gate EncryptedString's behavior.
// Unlike a credential store that always encrypts, arg2 encryption here is
// an operator-controlled toggle (xcore:encrypt_args) because most plugin
// arguments are ordinary device paths and pool names, not secrets.
var (
	encryptionKey     []byte
	encryptionEnabled bool
)

// InitEncryption configures whether arg2 is encrypted at rest and, if so,
// the AES-256 key to use. key must be exactly 32 bytes when enabled is
// true; it is ignored otherwise. Call once during startup before opening
// the store.
func InitEncryption(enabled bool, key []byte) error {
	encryptionEnabled = enabled
	if !enabled {
		return nil
	}
	if len(key) != 32 {
		return fmt.Errorf("store: encryption key must be exactly 32 bytes, got %d", len(key))
	}
	encryptionKey = make([]byte, 32)
	copy(encryptionKey, key)
	return nil
}

// EncryptedString transparently encrypts arg2 with AES-256-GCM before it is
// written, when encryption is enabled; otherwise it round-trips the value
// unchanged. The on-disk format when enabled is base64(nonce + ciphertext).
type EncryptedString string

// Value implements driver.Valuer.
func (e EncryptedString) Value() (driver.Value, error) {
	if e == "" || !encryptionEnabled {
		return string(e), nil
	}
	if encryptionKey == nil {
		return nil, errors.New("store: encryption enabled but key not initialized")
	}

	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("store: create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("store: create GCM: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("store: generate nonce: %w", err)
	}
	ciphertext := gcm.Seal(nonce, nonce, []byte(e), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Scan implements sql.Scanner.
func (e *EncryptedString) Scan(value interface{}) error {
	if value == nil {
		*e = ""
		return nil
	}
	str, ok := value.(string)
	if !ok {
		b, ok := value.([]byte)
		if !ok {
			return fmt.Errorf("store: EncryptedString.Scan: expected string, got %T", value)
		}
		str = string(b)
	}
	if str == "" || !encryptionEnabled {
		*e = EncryptedString(str)
		return nil
	}
	if encryptionKey == nil {
		return errors.New("store: encryption enabled but key not initialized")
	}

	data, err := base64.StdEncoding.DecodeString(str)
	if err != nil {
		return fmt.Errorf("store: decode base64: %w", err)
	}
	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return fmt.Errorf("store: create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("store: create GCM: %w", err)
	}
	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return errors.New("store: encrypted data too short to contain nonce")
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return fmt.Errorf("store: decrypt value: %w", err)
	}
	*e = EncryptedString(plaintext)
	return nil
}
