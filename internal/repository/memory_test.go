package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macsleuth/internal/domain"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(nil)

	snap, err := m.Load(ctx)
	require.NoError(t, err)
	assert.True(t, snap.IsEmpty())

	next := domain.NewSnapshot()
	next.Ledger = append(next.Ledger, domain.LedgerEntry{Identifier: "X", Person: "nick"})
	require.NoError(t, m.Save(ctx, next))

	got, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Same(t, next, got)
	assert.Equal(t, 1, m.Saves())
}
