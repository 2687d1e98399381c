package memory_test

import (
	"context"
	"testing"

	"github.com/aretw0/weft/pkg/adapters/memory"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	store := memory.NewStore()
	ports.RunCheckpointStoreContract(t, store)
}

func TestMemoryStore_KeepsGoTypes(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	require.NoError(t, store.Put(ctx, "t", 1, &domain.Snapshot{Values: domain.Values{"n": 3, "log": []string{"a"}}}))
	require.NoError(t, store.Put(ctx, "t", 0, &domain.Snapshot{Values: domain.Values{}}))

	history, err := store.History(ctx, "t")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 0, history[0].Step, "out of order puts are kept sorted")
	assert.Equal(t, 3, history[1].Values["n"])
	assert.Equal(t, []string{"a"}, history[1].Values["log"])
}
