package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pagecrawl/internal/cache"
)

func TestStoreCopiesData(t *testing.T) {
	t.Parallel()

	store := New()
	payload := []byte("content")
	meta := &cache.Meta{Status: 200}
	require.NoError(t, store.Set(context.Background(), "page.html", payload, meta))
	payload[0] = 'C'
	meta.Status = 500

	entry, ok, err := store.Get(context.Background(), "page.html")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "content", string(entry.Content))
	require.Equal(t, 200, entry.Meta.Status)

	entry.Content[0] = 'X'
	again, _, err := store.Get(context.Background(), "page.html")
	require.NoError(t, err)
	require.Equal(t, "content", string(again.Content))
	require.Equal(t, 1, store.Len())
}

func TestStoreMiss(t *testing.T) {
	t.Parallel()

	store := New()
	_, ok, err := store.Get(context.Background(), "absent")
	require.NoError(t, err)
	require.False(t, ok)
	require.ErrorIs(t, store.Set(context.Background(), "", nil, nil), cache.ErrInvalidKey)
}
