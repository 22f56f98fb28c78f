package tokencrypt

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// Cipher seals service access tokens before they are written into workflow
// step operations and unseals them when an operation is handed to a worker.
type Cipher struct {
	key []byte
}

func New(sharedSecret string) (*Cipher, error) {
	if strings.TrimSpace(sharedSecret) == "" {
		return nil, fmt.Errorf("shared secret key is empty")
	}
	sum := sha256.Sum256([]byte(sharedSecret))
	return &Cipher{key: sum[:]}, nil
}

func (c *Cipher) Seal(token string) (string, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	out := aead.Seal(nonce, nonce, []byte(token), nil)
	return base64.RawURLEncoding.EncodeToString(out), nil
}

func (c *Cipher) Unseal(sealed string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("decode sealed token: %w", err)
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}
	if len(raw) < aead.NonceSize() {
		return "", fmt.Errorf("sealed token too short")
	}
	nonce, ct := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	pt, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("open sealed token: %w", err)
	}
	return string(pt), nil
}
