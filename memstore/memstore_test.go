package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/bluesky-social/herald/util/cliutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStoreBasics(t *testing.T, store MemoryStore) {
	assert := assert.New(t)
	ctx := context.Background()

	_, err := store.GetMemoryByID(ctx, "missing")
	assert.ErrorIs(err, ErrNotFound)

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"one", "two", "three"} {
		m := Memory{
			ID:        id,
			AgentID:   "herald.example.com",
			Kind:      KindPost,
			Body:      `{"text":"` + id + `"}`,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		assert.NoError(store.CreateMemory(ctx, &m))
	}
	other := Memory{ID: "four", AgentID: "other.example.com", Kind: KindPost, CreatedAt: base.Add(time.Hour)}
	assert.NoError(store.CreateMemory(ctx, &other))
	processed := Memory{ID: "five", AgentID: "herald.example.com", Kind: KindProcessed, ContentID: "at://did:plc:abc/app.bsky.feed.post/1"}
	assert.NoError(store.CreateMemory(ctx, &processed))

	m, err := store.GetMemoryByID(ctx, "two")
	require.NoError(t, err)
	assert.Equal(`{"text":"two"}`, m.Body)
	assert.Equal(KindPost, m.Kind)

	m, err = store.GetMemoryByID(ctx, "five")
	require.NoError(t, err)
	assert.Equal("at://did:plc:abc/app.bsky.feed.post/1", m.ContentID)
	assert.False(m.CreatedAt.IsZero())

	dupe := Memory{ID: "two", AgentID: "herald.example.com", Kind: KindPost}
	assert.ErrorIs(store.CreateMemory(ctx, &dupe), ErrDuplicate)

	recent, err := store.RecentMemories(ctx, "herald.example.com", KindPost, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal("three", recent[0].ID)
	assert.Equal("two", recent[1].ID)

	recent, err = store.RecentMemories(ctx, "nobody.example.com", KindPost, 10)
	assert.NoError(err)
	assert.Empty(recent)
}

func TestMemStoreBasics(t *testing.T) {
	testStoreBasics(t, NewMemStore())
}

func TestGormStoreBasics(t *testing.T) {
	db, err := cliutil.SetupDatabase("sqlite://:memory:", 1)
	require.NoError(t, err)
	store, err := NewGormStore(db)
	require.NoError(t, err)
	testStoreBasics(t, store)
}
