package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestMemoryStoreSetGet(t *testing.T) {
	store := NewMemory()
	defer store.Stop()
	ctx := context.Background()

	store.SetWithTTL(ctx, "key", payload{Name: "golang", Count: 3}, time.Minute)

	var got payload
	ok := store.Get(ctx, "key", &got)
	assert.True(t, ok)
	assert.Equal(t, payload{Name: "golang", Count: 3}, got)
}

func TestMemoryStoreMiss(t *testing.T) {
	store := NewMemory()
	defer store.Stop()

	var got payload
	ok := store.Get(context.Background(), "nope", &got)
	assert.False(t, ok)
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemory()
	defer store.Stop()
	ctx := context.Background()

	store.SetWithTTL(ctx, "key", payload{Name: "short-lived"}, 10*time.Millisecond)

	var got payload
	assert.True(t, store.Get(ctx, "key", &got))

	time.Sleep(25 * time.Millisecond)
	assert.False(t, store.Get(ctx, "key", &got), "entry should expire after its TTL")
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemory()
	defer store.Stop()
	ctx := context.Background()

	store.SetWithTTL(ctx, "key", payload{Name: "bye"}, time.Minute)
	store.Delete(ctx, "key")

	var got payload
	assert.False(t, store.Get(ctx, "key", &got))
}

func TestMemoryStoreOverwrite(t *testing.T) {
	store := NewMemory()
	defer store.Stop()
	ctx := context.Background()

	store.SetWithTTL(ctx, "key", payload{Count: 1}, time.Minute)
	store.SetWithTTL(ctx, "key", payload{Count: 2}, time.Minute)

	var got payload
	assert.True(t, store.Get(ctx, "key", &got))
	assert.Equal(t, 2, got.Count)
}

func TestMemoryStoreIndependentTTLs(t *testing.T) {
	store := NewMemory()
	defer store.Stop()
	ctx := context.Background()

	store.SetWithTTL(ctx, "short", payload{Count: 1}, 10*time.Millisecond)
	store.SetWithTTL(ctx, "long", payload{Count: 2}, time.Minute)

	time.Sleep(25 * time.Millisecond)

	var got payload
	assert.False(t, store.Get(ctx, "short", &got))
	assert.True(t, store.Get(ctx, "long", &got))
}
