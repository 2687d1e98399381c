package middleware_test

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"io"
	"testing"

	"github.com/aretw0/weft/pkg/adapters/memory"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/persistence/middleware"
	"github.com/aretw0/weft/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) []byte {
	t.Helper()
	k := make([]byte, 32)
	_, err := io.ReadFull(rand.Reader, k)
	require.NoError(t, err)
	return k
}

func secretSnapshot() *domain.Snapshot {
	return &domain.Snapshot{
		Values:   domain.Values{"secret": "my-secret-sauce"},
		Frontier: []string{"next"},
		Writes:   map[string][]string{"secret": {"vault"}},
		Status:   domain.StatusRunning,
		Source:   domain.SourceLoop,
	}
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	mw := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	ports.RunCheckpointStoreContract(t, mw(memory.NewStore()))
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlying := memory.NewStore()
	secure := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlying)
	ctx := context.Background()

	require.NoError(t, secure.Put(ctx, "t", 0, secretSnapshot()))

	stored, err := underlying.Latest(ctx, "t")
	require.NoError(t, err)
	assert.NotContains(t, stored.Values, "secret")
	assert.Contains(t, stored.Values, middleware.EnvelopeKey)
	assert.Nil(t, stored.Writes, "provenance is sealed too")
	assert.Equal(t, []string{"next"}, stored.Frontier)
	assert.Equal(t, domain.StatusRunning, stored.Status)

	loaded, err := secure.Latest(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, "my-secret-sauce", loaded.Values["secret"])
	assert.Equal(t, map[string][]string{"secret": {"vault"}}, loaded.Writes)
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlying := memory.NewStore()
	oldKey, newKey := generateKey(t), generateKey(t)
	ctx := context.Background()

	secureOld := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: oldKey})(underlying)
	require.NoError(t, secureOld.Put(ctx, "rotation", 0, secretSnapshot()))

	secureNew := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})(underlying)

	loaded, err := secureNew.Latest(ctx, "rotation")
	require.NoError(t, err)
	assert.Equal(t, "my-secret-sauce", loaded.Values["secret"])

	require.NoError(t, secureNew.Put(ctx, "rotation", 1, secretSnapshot()))
	_, err = secureOld.Latest(ctx, "rotation")
	assert.Error(t, err, "old key alone cannot read records sealed with the new key")

	history, err := secureNew.History(ctx, "rotation")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestEncryptionMiddleware_RecordsAreBoundToTheirSlot(t *testing.T) {
	underlying := memory.NewStore()
	secure := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlying)
	ctx := context.Background()

	require.NoError(t, secure.Put(ctx, "a", 0, secretSnapshot()))
	sealed, err := underlying.Latest(ctx, "a")
	require.NoError(t, err)

	// Replaying the ciphertext under another thread must fail.
	require.NoError(t, underlying.Put(ctx, "b", 0, sealed))
	_, err = secure.Latest(ctx, "b")
	assert.ErrorContains(t, err, "decryption failed")
}

func TestEncryptionMiddleware_FailsClosedOnPlainRecords(t *testing.T) {
	underlying := memory.NewStore()
	secure := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlying)

	require.NoError(t, underlying.Put(context.Background(), "plain", 0, secretSnapshot()))
	_, err := secure.Latest(context.Background(), "plain")
	assert.ErrorContains(t, err, "missing encrypted data envelope")
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	assert.Panics(t, func() {
		middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")})
	})
}

func TestParseKey(t *testing.T) {
	key := generateKey(t)

	fromHex, err := middleware.ParseKey(hex.EncodeToString(key))
	require.NoError(t, err)
	assert.Equal(t, key, fromHex)

	fromB64, err := middleware.ParseKey(base64.StdEncoding.EncodeToString(key))
	require.NoError(t, err)
	assert.Equal(t, key, fromB64)

	_, err = middleware.ParseKey("too-short")
	assert.Error(t, err)
}
