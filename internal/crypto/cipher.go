// Package crypto seals change record payloads before they leave the device.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	// NonceSize - размер nonce для AES-GCM (12 bytes стандартный размер)
	NonceSize = 12

	// sealedField поле JSON обертки с зашифрованным payload
	sealedField = "$sealed"
)

var (
	// ErrInvalidKey возвращается для ключа неверной длины
	ErrInvalidKey = errors.New("encryption key must be 32 bytes")

	// ErrDecrypt возвращается, если данные повреждены или зашифрованы другим ключом
	ErrDecrypt = errors.New("authentication failed or corrupted data")

	// ErrNotSealed возвращается при попытке вскрыть незашифрованный payload
	ErrNotSealed = errors.New("payload is not sealed")
)

// Encrypt шифрует данные с использованием AES-256-GCM.
// Формат результата: nonce (12 bytes) + ciphertext + auth_tag (16 bytes)
func Encrypt(plaintext, key []byte) ([]byte, error) {
	aesGCM, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	// GCM добавляет authentication tag в конец
	return aesGCM.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt дешифрует данные, зашифрованные с помощью Encrypt
func Decrypt(encrypted, key []byte) ([]byte, error) {
	aesGCM, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(encrypted) < NonceSize+aesGCM.Overhead() {
		return nil, fmt.Errorf("%w: data too short", ErrDecrypt)
	}

	plaintext, err := aesGCM.Open(nil, encrypted[:NonceSize], encrypted[NonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeyLen {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidKey, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aesGCM, nil
}

// Sealer заменяет payload записи зашифрованной оберткой {"$sealed": "<base64>"}.
// Обертка остается валидным JSON, поэтому сервер хранит ее как обычный payload.
type Sealer struct {
	key []byte
}

// NewSealer creates a sealer over a 32 byte key (see DeriveKey).
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != KeyLen {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidKey, len(key))
	}
	return &Sealer{key: append([]byte(nil), key...)}, nil
}

// Seal шифрует payload. Пустой payload (delete) возвращается как есть.
func (s *Sealer) Seal(payload json.RawMessage) (json.RawMessage, error) {
	if len(payload) == 0 {
		return payload, nil
	}

	encrypted, err := Encrypt(payload, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to seal payload: %w", err)
	}

	wrapped, err := json.Marshal(map[string]string{
		sealedField: base64.StdEncoding.EncodeToString(encrypted),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sealed payload: %w", err)
	}
	return wrapped, nil
}

// Open расшифровывает payload, созданный Seal
func (s *Sealer) Open(payload json.RawMessage) (json.RawMessage, error) {
	if len(payload) == 0 {
		return payload, nil
	}

	encoded, ok := sealedValue(payload)
	if !ok {
		return nil, ErrNotSealed
	}

	encrypted, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode sealed payload: %w", err)
	}

	plaintext, err := Decrypt(encrypted, s.key)
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}

// IsSealed reports whether payload is a sealed wrapper.
func IsSealed(payload json.RawMessage) bool {
	_, ok := sealedValue(payload)
	return ok
}

func sealedValue(payload json.RawMessage) (string, bool) {
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(payload, &wrapper); err != nil || len(wrapper) != 1 {
		return "", false
	}

	raw, ok := wrapper[sealedField]
	if !ok {
		return "", false
	}

	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return "", false
	}
	return encoded, true
}
