package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"os"

	"wabridge/internal/constants"

	"golang.org/x/crypto/pbkdf2"
)

// Encryptor provides optional at-rest encryption for session config records,
// which can contain webhook URLs with embedded routing tokens. Encryption is
// enabled by setting WABRIDGE_CONFIG_SECRET; with no secret the encryptor
// passes data through unchanged.
type Encryptor struct {
	gcm cipher.AEAD
}

func NewEncryptor() (*Encryptor, error) {
	secret := os.Getenv("WABRIDGE_CONFIG_SECRET")
	if secret == "" {
		return &Encryptor{}, nil
	}
	if len(secret) < 32 {
		return nil, fmt.Errorf("config secret must be at least 32 characters long")
	}

	key := pbkdf2.Key([]byte(secret), []byte(constants.EncryptionSalt), constants.EncryptionIterations, constants.EncryptionKeySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Encryptor{gcm: gcm}, nil
}

// Enabled reports whether a secret was configured.
func (e *Encryptor) Enabled() bool {
	return e.gcm != nil
}

// Encrypt seals data with a random nonce prepended to the ciphertext.
// With encryption disabled, data is returned unchanged.
func (e *Encryptor) Encrypt(data []byte) ([]byte, error) {
	if e.gcm == nil || len(data) == 0 {
		return data, nil
	}

	nonce := make([]byte, constants.EncryptionNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return e.gcm.Seal(nonce, nonce, data, nil), nil
}

// Decrypt reverses Encrypt. With encryption disabled, data is returned
// unchanged.
func (e *Encryptor) Decrypt(data []byte) ([]byte, error) {
	if e.gcm == nil || len(data) == 0 {
		return data, nil
	}

	if len(data) < constants.EncryptionNonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:constants.EncryptionNonceSize], data[constants.EncryptionNonceSize:]
	plaintext, err := e.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}

	return plaintext, nil
}
