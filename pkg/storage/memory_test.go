package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryKVRoundTrip(t *testing.T) {
	kv := NewMemoryKV()
	defer kv.Close()
	ctx := context.Background()

	_, err := kv.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, kv.Put(ctx, "k", []byte("v1"), 0))
	got, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)

	// Last writer wins.
	require.NoError(t, kv.Put(ctx, "k", []byte("v2"), 0))
	got, err = kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)
}

func TestMemoryKVTTL(t *testing.T) {
	kv := NewMemoryKV()
	defer kv.Close()
	ctx := context.Background()

	require.NoError(t, kv.Put(ctx, "short", []byte("x"), 10*time.Millisecond))
	_, err := kv.Get(ctx, "short")
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	_, err = kv.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryKVReturnsCopies(t *testing.T) {
	kv := NewMemoryKV()
	defer kv.Close()
	ctx := context.Background()

	val := []byte("original")
	require.NoError(t, kv.Put(ctx, "k", val, 0))
	val[0] = 'X'

	got, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), got)

	got[0] = 'Y'
	again, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), again)
}

func TestMemoryKVConcurrentAccess(t *testing.T) {
	kv := NewMemoryKV()
	defer kv.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i%5))
			_ = kv.Put(ctx, key, []byte{byte(i)}, 0)
			_, _ = kv.Get(ctx, key)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 5, kv.Len())
}

func TestJSONHelpers(t *testing.T) {
	kv := NewMemoryKV()
	defer kv.Close()
	ctx := context.Background()

	type record struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	require.NoError(t, PutJSON(ctx, kv, "r", record{Name: "a", Count: 3}, 0))

	var out record
	require.NoError(t, GetJSON(ctx, kv, "r", &out))
	assert.Equal(t, record{Name: "a", Count: 3}, out)

	require.NoError(t, kv.Put(ctx, "bad", []byte("{not json"), 0))
	assert.Error(t, GetJSON(ctx, kv, "bad", &out))

	assert.ErrorIs(t, GetJSON(ctx, kv, "absent", &out), ErrNotFound)
}
