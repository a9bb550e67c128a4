package repository

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

const sealedPrefix = "sb1:"

var errTokenUnsealable = errors.New("stored token cannot be decrypted")

// TokenSealer encrypts API tokens before they reach the session store
type TokenSealer struct {
	key [32]byte
}

// NewTokenSealer derives the box key from secret
func NewTokenSealer(secret string) (*TokenSealer, error) {
	if secret == "" {
		return nil, errors.New("token secret is empty")
	}
	s := &TokenSealer{}
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte("polish-peaks session tokens"))
	if _, err := io.ReadFull(kdf, s.key[:]); err != nil {
		return nil, err
	}
	return s, nil
}

// Seal encrypts token. Empty tokens stay empty.
func (s *TokenSealer) Seal(token string) (string, error) {
	if s == nil || token == "" {
		return token, nil
	}
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("token nonce: %w", err)
	}
	box := secretbox.Seal(nonce[:], []byte(token), &nonce, &s.key)
	return sealedPrefix + base64.RawURLEncoding.EncodeToString(box), nil
}

// Open reverses Seal. Values written before a secret was configured are
// returned unchanged.
func (s *TokenSealer) Open(stored string) (string, error) {
	if !strings.HasPrefix(stored, sealedPrefix) {
		return stored, nil
	}
	if s == nil {
		return "", errTokenUnsealable
	}
	box, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(stored, sealedPrefix))
	if err != nil || len(box) < 24 {
		return "", errTokenUnsealable
	}
	var nonce [24]byte
	copy(nonce[:], box[:24])
	token, ok := secretbox.Open(nil, box[24:], &nonce, &s.key)
	if !ok {
		return "", errTokenUnsealable
	}
	return string(token), nil
}
