// Package crypto: mesaj gövdeleri için AES-256-GCM codec'i.
//
// Mesaj body'leri veritabanında şifreli saklanır. Repository katmanı yazarken
// Seal, okurken Open çağırır; servisler ve handler'lar her zaman düz metin görür.
//
// Saklanan format: base64(nonce (12 byte) + ciphertext + auth tag).
// Her Seal çağrısı rastgele nonce üretir, aynı metin iki kez farklı şifrelenir.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// ErrCorrupted, saklanan değer çözülemediğinde döner (yanlış anahtar veya bozuk veri).
var ErrCorrupted = errors.New("ciphertext corrupted or key mismatch")

// BodyCodec, mesaj gövdesinin at-rest dönüşümünü tanımlar.
type BodyCodec interface {
	Seal(plaintext string) (string, error)
	Open(stored string) (string, error)
}

// DeriveKey, hex-encoded string'den 32-byte AES-256 anahtarı oluşturur.
// Input tam 64 hex karakter (= 32 byte) olmalıdır.
func DeriveKey(hexKey string) ([]byte, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid hex key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("key must be exactly 32 bytes (64 hex chars), got %d bytes", len(key))
	}
	return key, nil
}

// AESCodec, BodyCodec'in AES-256-GCM implementasyonu.
// cipher.AEAD concurrent kullanım için güvenlidir, tek instance paylaşılır.
type AESCodec struct {
	aead cipher.AEAD
}

// NewAESCodec, hex anahtardan codec oluşturur.
func NewAESCodec(hexKey string) (*AESCodec, error) {
	key, err := DeriveKey(hexKey)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}

	return &AESCodec{aead: gcm}, nil
}

// Seal, plaintext'i şifreler.
func (c *AESCodec) Seal(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce generation: %w", err)
	}

	// dst olarak nonce verilir → çıktı nonce ile prefix'lenir.
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open, Seal çıktısını çözer.
func (c *AESCodec) Open(stored string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", fmt.Errorf("%w: base64 decode: %v", ErrCorrupted, err)
	}

	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("%w: ciphertext too short", ErrCorrupted)
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorrupted, err)
	}

	return string(plaintext), nil
}
