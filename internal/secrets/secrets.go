// Package secrets decrypts credential secret material stored by the
// platform's credential vault. Secrets are Fernet tokens; the key is shared
// with the vault through configuration.
package secrets

import (
	"fmt"
	"time"

	"github.com/fernet/fernet-go"
)

// Decryptor verifies and decrypts Fernet-encrypted strings. A nil key (empty
// configuration) passes values through unchanged, which keeps development
// setups without a vault working.
type Decryptor struct {
	key *fernet.Key
}

// NewDecryptor parses the base64 Fernet key. An empty keyStr yields a
// pass-through decryptor.
func NewDecryptor(keyStr string) (*Decryptor, error) {
	if keyStr == "" {
		return &Decryptor{}, nil
	}
	key, err := fernet.DecodeKey(keyStr)
	if err != nil {
		return nil, fmt.Errorf("decode fernet key: %w", err)
	}
	return &Decryptor{key: key}, nil
}

// Decrypt returns the plaintext for a stored secret. Empty input decrypts to
// empty output. Tokens never expire here (TTL 0); rotation is handled by
// re-encrypting at rest.
func (d *Decryptor) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	if d.key == nil {
		return ciphertext, nil
	}
	msg := fernet.VerifyAndDecrypt([]byte(ciphertext), 0*time.Second, []*fernet.Key{d.key})
	if msg == nil {
		return "", fmt.Errorf("decrypt: invalid token")
	}
	return string(msg), nil
}

// Mask redacts a secret for log output, keeping the last 4 characters.
func Mask(value string) string {
	if value == "" {
		return ""
	}
	if len(value) > 4 {
		return "****" + value[len(value)-4:]
	}
	return "****"
}
