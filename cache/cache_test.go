package cache

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "nested", "enc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestKeyFor(t *testing.T) {
	a := KeyFor("hello", 3, 1000)
	require.Equal(t, a, KeyFor("hello", 3, 1000))
	require.NotEqual(t, a, KeyFor("hello", 2, 1000))
	require.NotEqual(t, a, KeyFor("hello", 3, 1001))
	require.NotEqual(t, a, KeyFor("hellp", 3, 1000))
	require.Len(t, a.String(), 64)
}

func TestGetPut(t *testing.T) {
	ctx := context.Background()
	c := openTemp(t)
	key := KeyFor("s", 3, 10)

	_, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Put(ctx, key, 1, ">b"))
	src, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ">b", src)

	require.NoError(t, c.Put(ctx, key, 1, ">bQ"))
	src, _, err = c.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, ">bQ", src)

	n, err := c.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.NoError(t, c.Delete(ctx, key))
	require.NoError(t, c.Delete(ctx, key))
	n, err = c.Len(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestPersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "enc.db")
	key := KeyFor("abc", 3, 10)

	c, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, c.Put(ctx, key, 3, "source"))
	require.NoError(t, c.Close())

	c, err = Open(path)
	require.NoError(t, err)
	defer c.Close()
	src, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "source", src)
	require.Equal(t, path, c.Path())
}

func TestConcurrentPut(t *testing.T) {
	ctx := context.Background()
	c := openTemp(t)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			require.NoError(t, c.Put(ctx, KeyFor("t", n, 1), 1, "x"))
		}(i)
	}
	wg.Wait()
	n, err := c.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 16, n)
}
