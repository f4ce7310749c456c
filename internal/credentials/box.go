// Package credentials decrypts stored external database passwords and seals
// connection strings kept in session registries.
//
// Sealed values are "enc:" followed by base64(nonce || secretbox(plain)).
// Values without the prefix are treated as plaintext so deployments without a
// key keep working.
package credentials

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

// Prefix marks a sealed value.
const Prefix = "enc:"

const nonceSize = 24

// ErrNoKey is returned when a sealed value is found but no key is configured.
var ErrNoKey = errors.New("credential key is not configured")

// Box seals and opens values with a 32-byte secret key.
type Box struct {
	key *[32]byte
}

// NewBox parses a 64 character hex key. An empty key yields a Box that
// passes plaintext through and rejects sealed input.
func NewBox(hexKey string) (*Box, error) {
	if hexKey == "" {
		return &Box{}, nil
	}
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode credential key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("credential key must be 32 bytes, got %d", len(raw))
	}
	var key [32]byte
	copy(key[:], raw)
	return &Box{key: &key}, nil
}

// Enabled reports whether a key is configured.
func (b *Box) Enabled() bool { return b.key != nil }

// Seal encrypts plain. Without a key it returns plain unchanged.
func (b *Box) Seal(plain string) (string, error) {
	if b.key == nil {
		return plain, nil
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	out := secretbox.Seal(nonce[:], []byte(plain), &nonce, b.key)
	return Prefix + base64.StdEncoding.EncodeToString(out), nil
}

// Unseal decrypts a value produced by Seal. Unprefixed values are returned as is.
func (b *Box) Unseal(value string) (string, error) {
	if !strings.HasPrefix(value, Prefix) {
		return value, nil
	}
	if b.key == nil {
		return "", ErrNoKey
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, Prefix))
	if err != nil {
		return "", fmt.Errorf("decode sealed value: %w", err)
	}
	if len(raw) < nonceSize+secretbox.Overhead {
		return "", errors.New("sealed value is truncated")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, b.key)
	if !ok {
		return "", errors.New("sealed value failed authentication")
	}
	return string(plain), nil
}

// Resolve returns the usable password for a stored value. It is the
// credential-resolution step run before a relational source is bound.
func (b *Box) Resolve(stored string) (string, error) {
	return b.Unseal(stored)
}
