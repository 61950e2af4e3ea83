// Package securestore provides the platform-bound secret encryption used
// for saved refresh tokens. Encryption is best effort by design: when no
// machine-bound key source is available, Available reports false and the
// caller saves nothing rather than failing.
package securestore

import (
	"crypto/rand"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

// Encryptor seals and opens small secrets with a key tied to the local
// machine. Implementations must treat Encrypt/Decrypt on an unavailable
// encryptor as an error; call sites gate on Available first.
type Encryptor interface {
	Available() bool
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// machineIDPaths are tried in order when deriving the machine-bound key.
var machineIDPaths = []string{
	"/etc/machine-id",
	"/var/lib/dbus/machine-id",
}

// keySalt is fixed: the secret material is the machine id itself, the
// salt only domain-separates this application's derived key.
var keySalt = []byte("caskmate.token.v1")

// scrypt cost parameters, interactive profile.
const (
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

type machineEncryptor struct {
	key []byte
}

// Machine returns an encryptor keyed from the local machine id. If no
// machine id source exists the returned encryptor reports unavailable.
func Machine() Encryptor {
	for _, path := range machineIDPaths {
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		id := strings.TrimSpace(string(raw))
		if id == "" {
			continue
		}

		key, err := scrypt.Key([]byte(id), keySalt, scryptN, scryptR, scryptP, chacha20poly1305.KeySize)
		if err != nil {
			continue
		}

		return &machineEncryptor{key: key}
	}

	return Unavailable()
}

// WithKey returns an encryptor sealed with the given 32-byte key.
// Intended for tests; production code uses Machine.
func WithKey(key []byte) Encryptor {
	return &machineEncryptor{key: key}
}

func (e *machineEncryptor) Available() bool { return true }

func (e *machineEncryptor) Encrypt(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(e.key)
	if err != nil {
		return nil, fmt.Errorf("securestore: creating cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("securestore: generating nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (e *machineEncryptor) Decrypt(ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(e.key)
	if err != nil {
		return nil, fmt.Errorf("securestore: creating cipher: %w", err)
	}

	if len(ciphertext) < aead.NonceSize() {
		return nil, fmt.Errorf("securestore: ciphertext shorter than nonce")
	}

	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("securestore: opening ciphertext: %w", err)
	}

	return plaintext, nil
}

type unavailableEncryptor struct{}

// Unavailable returns an encryptor that reports no encryption capability.
func Unavailable() Encryptor {
	return unavailableEncryptor{}
}

func (unavailableEncryptor) Available() bool { return false }

func (unavailableEncryptor) Encrypt([]byte) ([]byte, error) {
	return nil, fmt.Errorf("securestore: encryption unavailable on this platform")
}

func (unavailableEncryptor) Decrypt([]byte) ([]byte, error) {
	return nil, fmt.Errorf("securestore: encryption unavailable on this platform")
}
