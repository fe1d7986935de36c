package account

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
)

// KeyEnvVar names the environment variable holding the roster decryption key.
const KeyEnvVar = "EVERBOT_KEY"

// ErrNoKey indicates an encrypted code was found but no key is configured.
var ErrNoKey = errors.New("account: " + KeyEnvVar + " is not set")

// CodeSource resolves the plaintext access code for an account.
type CodeSource interface {
	Code(acct Account) (string, error)
}

// EnvKeySource resolves codes from the roster entry itself: plaintext codes
// pass through, encrypted codes are decrypted with the key from EVERBOT_KEY.
type EnvKeySource struct{}

// Code returns the account's plaintext access code. An account with neither
// a code nor an encrypted code yields an empty string; the session driver
// rejects empty codes before connecting.
func (EnvKeySource) Code(acct Account) (string, error) {
	if plain := strings.TrimSpace(acct.Code); plain != "" {
		return plain, nil
	}
	encrypted := strings.TrimSpace(acct.EncryptedCode)
	if encrypted == "" {
		return "", nil
	}

	key := strings.TrimSpace(os.Getenv(KeyEnvVar))
	if key == "" {
		return "", ErrNoKey
	}
	code, err := decrypt(encrypted, key)
	if err != nil {
		return "", fmt.Errorf("account: decrypt code for %q: %w", acct.Name, err)
	}
	return code, nil
}

// decrypt reverses Encrypt: base64(nonce || AES-256-GCM ciphertext), with
// the AES key derived from the passphrase by SHA-256.
func decrypt(encoded, passphrase string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode base64: %w", err)
	}

	gcm, err := newGCM(passphrase)
	if err != nil {
		return "", err
	}
	if len(raw) < gcm.NonceSize() {
		return "", errors.New("ciphertext shorter than nonce")
	}

	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("open ciphertext: %w", err)
	}
	return string(plain), nil
}

// Encrypt seals a plaintext code for storage in the roster file. Exposed so
// operators can produce encrypted_code entries with `everbot accounts seal`.
func Encrypt(plain, passphrase string, nonce []byte) (string, error) {
	gcm, err := newGCM(passphrase)
	if err != nil {
		return "", err
	}
	if len(nonce) != gcm.NonceSize() {
		return "", fmt.Errorf("nonce must be %d bytes", gcm.NonceSize())
	}
	sealed := gcm.Seal(nil, nonce, []byte(plain), nil)
	return base64.StdEncoding.EncodeToString(append(append([]byte{}, nonce...), sealed...)), nil
}

func newGCM(passphrase string) (cipher.AEAD, error) {
	key := sha256.Sum256([]byte(passphrase))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return gcm, nil
}
