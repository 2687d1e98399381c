package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
)

// EnvelopeKey is the only value key of an encrypted checkpoint.
const EnvelopeKey = "__encrypted__"

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

// payload is the sealed part of a checkpoint.
type payload struct {
	Values domain.Values       `json:"values"`
	Writes map[string][]string `json:"writes,omitempty"`
}

type encryptionMiddleware struct {
	next   ports.CheckpointStore
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that seals checkpoint values
// and provenance with AES-GCM. Thread id, step, frontier, status and source
// stay readable so the store can still order and list records. Each record
// is bound to its thread and step and cannot be replayed elsewhere.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
	return func(next ports.CheckpointStore) ports.CheckpointStore {
		return &encryptionMiddleware{
			next:   next,
			config: config,
		}
	}
}

// ParseKey decodes a 32-byte key given as hex or standard base64.
func ParseKey(s string) ([]byte, error) {
	if key, err := hex.DecodeString(s); err == nil && len(key) == 32 {
		return key, nil
	}
	if key, err := base64.StdEncoding.DecodeString(s); err == nil && len(key) == 32 {
		return key, nil
	}
	return nil, errors.New("encryption key must be 32 bytes, hex or base64 encoded")
}

func (m *encryptionMiddleware) Put(ctx context.Context, threadID string, step int, snap *domain.Snapshot) error {
	plainText, err := json.Marshal(payload{Values: snap.Values, Writes: snap.Writes})
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	ciphertext, err := encrypt(plainText, m.config.ActiveKey, associatedData(threadID, step))
	if err != nil {
		return fmt.Errorf("failed to encrypt checkpoint: %w", err)
	}

	envelope := snap.Clone()
	envelope.Values = domain.Values{EnvelopeKey: base64.StdEncoding.EncodeToString(ciphertext)}
	envelope.Writes = nil

	return m.next.Put(ctx, threadID, step, envelope)
}

func (m *encryptionMiddleware) Latest(ctx context.Context, threadID string) (*domain.Snapshot, error) {
	envelope, err := m.next.Latest(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return m.open(envelope)
}

func (m *encryptionMiddleware) History(ctx context.Context, threadID string) ([]*domain.Snapshot, error) {
	envelopes, err := m.next.History(ctx, threadID)
	if err != nil {
		return nil, err
	}
	history := make([]*domain.Snapshot, len(envelopes))
	for i, envelope := range envelopes {
		if history[i], err = m.open(envelope); err != nil {
			return nil, err
		}
	}
	return history, nil
}

func (m *encryptionMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func (m *encryptionMiddleware) Delete(ctx context.Context, threadID string) error {
	return m.next.Delete(ctx, threadID)
}

// open fails closed: a record without an envelope is an error, not plain data.
func (m *encryptionMiddleware) open(envelope *domain.Snapshot) (*domain.Snapshot, error) {
	encoded, ok := envelope.Values[EnvelopeKey].(string)
	if !ok {
		return nil, fmt.Errorf("checkpoint %s#%d is missing encrypted data envelope", envelope.ThreadID, envelope.Step)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}

	plainText, err := decryptWithRotation(ciphertext, associatedData(envelope.ThreadID, envelope.Step), m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt checkpoint %s#%d: %w", envelope.ThreadID, envelope.Step, err)
	}

	var p payload
	if err := json.Unmarshal(plainText, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decrypted checkpoint: %w", err)
	}

	snap := envelope.Clone()
	snap.Values = p.Values
	snap.Writes = p.Writes
	return snap, nil
}

// Helpers

func associatedData(threadID string, step int) []byte {
	return []byte(threadID + "#" + strconv.Itoa(step))
}

func encrypt(plaintext, key, aad []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, aad), nil
}

func decryptWithRotation(ciphertext, aad, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey, aad); err == nil {
		return plain, nil
	}

	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key, aad); err == nil {
			return plain, nil
		}
	}

	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext, key, aad []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	ciphertextBytes := ciphertext[gcm.NonceSize():]

	return gcm.Open(nil, nonce, ciphertextBytes, aad)
}
