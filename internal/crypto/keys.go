package crypto

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/blake2b"
)

// Параметры Argon2id
const (
	// Argon2Time - количество итераций (time cost)
	Argon2Time = 1
	// Argon2Memory - объем памяти в KB (64MB = 64*1024 KB)
	Argon2Memory = 64 * 1024
	// Argon2Threads - количество параллельных потоков
	Argon2Threads = 4
	// KeyLen - длина ключа шифрования в байтах
	KeyLen = 32
)

// saltContext отделяет соль шифрования от других производных значений аккаунта
const saltContext = "handsync/seal/v1\x00"

// DeriveKey выводит ключ шифрования payload из парольной фразы.
// Все устройства одного аккаунта получают одинаковый ключ, поэтому соль
// детерминированно выводится из accountID, а не генерируется случайно.
func DeriveKey(passphrase, accountID string) ([]byte, error) {
	if passphrase == "" {
		return nil, errors.New("passphrase cannot be empty")
	}
	if accountID == "" {
		return nil, errors.New("account id cannot be empty")
	}

	salt := AccountSalt(accountID)
	key := argon2.IDKey([]byte(passphrase), salt, Argon2Time, Argon2Memory, Argon2Threads, KeyLen)

	return key, nil
}

// AccountSalt returns the 32 byte salt of an account.
func AccountSalt(accountID string) []byte {
	sum := blake2b.Sum256([]byte(saltContext + accountID))
	return sum[:]
}

// NewSealerFromPassphrase derives the key and builds a Sealer in one step.
func NewSealerFromPassphrase(passphrase, accountID string) (*Sealer, error) {
	key, err := DeriveKey(passphrase, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to derive sealing key: %w", err)
	}
	return NewSealer(key)
}
