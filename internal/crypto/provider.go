package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// Provider encrypts and decrypts under one registered algorithm version.
// Decrypt is total: any failure (wrong key, corrupt payload, truncated
// input) returns ok=false, never a panic and never a different plaintext.
type Provider interface {
	Algorithm() Algorithm
	Encrypt(data, password []byte) ([]byte, bool)
	Decrypt(data, password []byte) ([]byte, bool)
}

const (
	saltLength  = 16
	nonceLength = 12
)

// aesGcmProvider derives an AES key from the password with PBKDF2 and seals
// with AES-GCM. Output layout: salt || nonce || ciphertext.
type aesGcmProvider struct {
	alg Algorithm
}

// NewAesGcmProvider registers an AES-GCM algorithm version. KeyLengthBits
// must be 128, 192 or 256.
func NewAesGcmProvider(externalID string, keyLengthBits, hashIterations int) Provider {
	return &aesGcmProvider{alg: Algorithm{
		ExternalID:     externalID,
		Name:           "AES/GCM/NoPadding",
		KeyLengthBits:  keyLengthBits,
		HashIterations: hashIterations,
		KeyDerivation:  "PBKDF2WithHmacSHA256",
	}}
}

func (p *aesGcmProvider) Algorithm() Algorithm {
	return p.alg
}

func (p *aesGcmProvider) Encrypt(data, password []byte) ([]byte, bool) {
	salt := make([]byte, saltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, false
	}
	aead, ok := p.aead(password, salt)
	if !ok {
		return nil, false
	}
	nonce := make([]byte, nonceLength)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, false
	}

	out := make([]byte, 0, saltLength+nonceLength+len(data)+aead.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, data, nil), true
}

func (p *aesGcmProvider) Decrypt(data, password []byte) ([]byte, bool) {
	if len(data) < saltLength+nonceLength {
		return nil, false
	}
	salt := data[:saltLength]
	nonce := data[saltLength : saltLength+nonceLength]
	ciphertext := data[saltLength+nonceLength:]

	aead, ok := p.aead(password, salt)
	if !ok {
		return nil, false
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, false
	}
	return plaintext, true
}

func (p *aesGcmProvider) aead(password, salt []byte) (cipher.AEAD, bool) {
	key := pbkdf2.Key(password, salt, p.alg.HashIterations, p.alg.KeyLengthBits/8, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, false
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, false
	}
	return aead, true
}
