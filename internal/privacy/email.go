package privacy

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	keySize  = 32
	hkdfInfo = "compost-logbook email v1"
)

// Labels shown instead of an email
const (
	// AnonymousLabel marks a log without a usable email
	AnonymousLabel = "anonymous"
	// EncryptedLabel marks a stored email that could not be decrypted
	EncryptedLabel = "encrypted"
)

// ErrMalformedCiphertext is returned for ciphertexts that cannot be opened
var ErrMalformedCiphertext = errors.New("malformed email ciphertext")

// Cipher encrypts emails at rest with AES-256-GCM
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives the encryption key from secret
func NewCipher(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, errors.New("email secret is empty")
	}

	key := make([]byte, keySize)
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("failed to derive email key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create block cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Cipher{aead: aead}, nil
}

// Encrypt returns base64(nonce || sealed)
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt
func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedCiphertext, err)
	}

	nonceSize := c.aead.NonceSize()
	if len(raw) < nonceSize+c.aead.Overhead() {
		return "", ErrMalformedCiphertext
	}

	plain, err := c.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedCiphertext, err)
	}
	return string(plain), nil
}

// Hash returns the hex SHA-256 of an already normalized email
func Hash(normalizedEmail string) string {
	sum := sha256.Sum256([]byte(normalizedEmail))
	return hex.EncodeToString(sum[:])
}

// NormalizeEmail trims surrounding whitespace and lowercases
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// MaskEmail keeps the first two characters of the local part,
// e.g. jo****@example.com
func MaskEmail(email string) string {
	local, domain, ok := strings.Cut(NormalizeEmail(email), "@")
	if !ok || local == "" || domain == "" || strings.Contains(domain, "@") {
		return AnonymousLabel
	}

	runes := []rune(local)
	visible := runes
	if len(visible) > 2 {
		visible = visible[:2]
	}
	stars := len(runes) - len(visible)
	if stars < 2 {
		stars = 2
	}
	return string(visible) + strings.Repeat("*", stars) + "@" + domain
}
