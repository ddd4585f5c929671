package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

const sealedPrefix = "sealed:"

// Keyring seals provider API keys stored in config files with
// XChaCha20-Poly1305.
type Keyring struct {
	key [chacha20poly1305.KeySize]byte
}

// OpenKeyring loads the key at path, creating a fresh one (0600) when absent.
func OpenKeyring(path string) (*Keyring, error) {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		return parseKey(strings.TrimSpace(string(data)))
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("secrets: read key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("secrets: create key dir: %w", err)
	}

	kr := &Keyring{}
	if _, err := rand.Read(kr.key[:]); err != nil {
		return nil, fmt.Errorf("secrets: generate key: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(kr.key[:])), 0600); err != nil {
		return nil, fmt.Errorf("secrets: write key: %w", err)
	}
	return kr, nil
}

func parseKey(s string) (*Keyring, error) {
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != chacha20poly1305.KeySize {
		return nil, errors.New("secrets: key file must hold 64 hex characters")
	}
	kr := &Keyring{}
	copy(kr.key[:], raw)
	return kr, nil
}

// Seal returns "sealed:" + base64(nonce || ciphertext). Empty and already
// sealed values pass through.
func (k *Keyring) Seal(plain string) (string, error) {
	if plain == "" || IsSealed(plain) {
		return plain, nil
	}
	aead, err := chacha20poly1305.NewX(k.key[:])
	if err != nil {
		return "", fmt.Errorf("secrets: cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("secrets: nonce: %w", err)
	}
	out := aead.Seal(nonce, nonce, []byte(plain), nil)
	return sealedPrefix + base64.RawURLEncoding.EncodeToString(out), nil
}

// Open reverses Seal. Values without the prefix are returned unchanged.
func (k *Keyring) Open(value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("secrets: decode: %w", err)
	}
	aead, err := chacha20poly1305.NewX(k.key[:])
	if err != nil {
		return "", fmt.Errorf("secrets: cipher: %w", err)
	}
	if len(raw) < aead.NonceSize() {
		return "", errors.New("secrets: sealed value too short")
	}
	nonce, body := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, body, nil)
	if err != nil {
		return "", fmt.Errorf("secrets: open: %w", err)
	}
	return string(plain), nil
}

func IsSealed(value string) bool {
	return strings.HasPrefix(value, sealedPrefix)
}
