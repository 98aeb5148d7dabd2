package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	nonceSize  = 24
	sealerInfo = "shop-session credential sealing v1"
)

// ErrUnseal is returned when a sealed value was tampered with or sealed under another key.
var ErrUnseal = errors.New("failed to open sealed value")

// Sealer authenticates and encrypts values at rest with NaCl secretbox.
type Sealer struct {
	key [32]byte
}

// NewSealer derives the sealing key from secret using HKDF-SHA256
func NewSealer(secret string) (*Sealer, error) {
	if secret == "" {
		return nil, fmt.Errorf("empty sealing secret")
	}

	s := &Sealer{}
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte(sealerInfo))
	if _, err := io.ReadFull(kdf, s.key[:]); err != nil {
		return nil, fmt.Errorf("failed to derive sealing key: %w", err)
	}

	return s, nil
}

// Seal returns base64(nonce || box)
func (s *Sealer) Seal(plain []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	box := secretbox.Seal(nonce[:], plain, &nonce, &s.key)

	out := make([]byte, base64.RawStdEncoding.EncodedLen(len(box)))
	base64.RawStdEncoding.Encode(out, box)
	return out, nil
}

// Open reverses Seal
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	box := make([]byte, base64.RawStdEncoding.DecodedLen(len(sealed)))
	n, err := base64.RawStdEncoding.Decode(box, sealed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnseal, err)
	}
	box = box[:n]

	if len(box) < nonceSize+secretbox.Overhead {
		return nil, ErrUnseal
	}

	var nonce [nonceSize]byte
	copy(nonce[:], box[:nonceSize])

	plain, ok := secretbox.Open(nil, box[nonceSize:], &nonce, &s.key)
	if !ok {
		return nil, ErrUnseal
	}
	return plain, nil
}
