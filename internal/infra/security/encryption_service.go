// File: internal/infra/security/encryption_service.go
package security

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"telegram-ai-stars/internal/domain/ports/repository"
)

var _ repository.DocumentStore = (*EncryptedDocuments)(nil)

// sealedPrefix marks a sealed document. Anything else is read as plaintext
// JSON, so an existing data set can be switched to encryption in place.
var sealedPrefix = []byte("enc:v1:")

// EncryptionService seals byte payloads with AES-GCM and a random nonce per
// message. Output is prefix || nonce || ciphertext.
type EncryptionService struct {
	gcm cipher.AEAD
}

// NewEncryptionService accepts a 16, 24 or 32 byte key (AES-128/192/256).
func NewEncryptionService(key string) (*EncryptionService, error) {
	k := []byte(key)
	n := len(k)
	if n != 16 && n != 24 && n != 32 {
		return nil, fmt.Errorf("encryption key must be 16, 24, or 32 bytes; got %d", n)
	}
	block, err := aes.NewCipher(k)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return &EncryptionService{gcm: gcm}, nil
}

func (e *EncryptionService) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, e.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("rand nonce: %w", err)
	}
	out := make([]byte, 0, len(sealedPrefix)+len(nonce)+len(plaintext)+e.gcm.Overhead())
	out = append(out, sealedPrefix...)
	out = append(out, nonce...)
	return e.gcm.Seal(out, nonce, plaintext, nil), nil
}

// Open reverses Seal. Unsealed input is returned unchanged.
func (e *EncryptionService) Open(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, sealedPrefix) {
		return data, nil
	}
	data = data[len(sealedPrefix):]
	ns := e.gcm.NonceSize()
	if len(data) < ns {
		return nil, errors.New("ciphertext too short")
	}
	pt, err := e.gcm.Open(nil, data[:ns], data[ns:], nil)
	if err != nil {
		return nil, fmt.Errorf("gcm open: %w", err)
	}
	return pt, nil
}

// EncryptedDocuments wraps a document backend so every document is sealed
// before it leaves the process.
type EncryptedDocuments struct {
	next repository.DocumentStore
	enc  *EncryptionService
}

func NewEncryptedDocuments(next repository.DocumentStore, enc *EncryptionService) *EncryptedDocuments {
	return &EncryptedDocuments{next: next, enc: enc}
}

func (d *EncryptedDocuments) Load(ctx context.Context, name string) ([]byte, error) {
	raw, err := d.next.Load(ctx, name)
	if err != nil || len(raw) == 0 {
		return raw, err
	}
	pt, err := d.enc.Open(raw)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return pt, nil
}

func (d *EncryptedDocuments) Save(ctx context.Context, name string, data []byte) error {
	sealed, err := d.enc.Seal(data)
	if err != nil {
		return fmt.Errorf("seal %s: %w", name, err)
	}
	return d.next.Save(ctx, name, sealed)
}

func (d *EncryptedDocuments) Close() error { return d.next.Close() }
