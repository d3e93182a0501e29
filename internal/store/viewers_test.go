package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reloveapp/relove-server/internal/bus"
	"github.com/reloveapp/relove-server/internal/domain"
)

func TestViewers_CountPerProduct(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutViewer(ctx, &domain.Viewer{ProductID: "prod-1", ViewerID: "v-1", LastSeen: testNow}))
	require.NoError(t, s.PutViewer(ctx, &domain.Viewer{ProductID: "prod-1", ViewerID: "v-2", LastSeen: testNow}))
	require.NoError(t, s.PutViewer(ctx, &domain.Viewer{ProductID: "prod-2", ViewerID: "v-1", LastSeen: testNow}))

	count, err := s.CountViewers(ctx, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = s.CountViewers(ctx, "prod-2")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = s.CountViewers(ctx, "prod-3")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestViewers_PutIsIdempotent(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutViewer(ctx, &domain.Viewer{ProductID: "prod-1", ViewerID: "v-1", LastSeen: testNow}))
	require.NoError(t, s.PutViewer(ctx, &domain.Viewer{ProductID: "prod-1", ViewerID: "v-1", LastSeen: testNow}))

	count, err := s.CountViewers(ctx, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestViewers_DeletePublishesOnce(t *testing.T) {
	s, pub := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutViewer(ctx, &domain.Viewer{ProductID: "prod-1", ViewerID: "v-1", LastSeen: testNow}))
	pub.Reset()

	require.NoError(t, s.DeleteViewer(ctx, "prod-1", "v-1"))
	require.Len(t, pub.Events(), 1)
	assert.Equal(t, bus.EventViewerDeleted, pub.Events()[0].Type)

	pub.Reset()
	require.NoError(t, s.DeleteViewer(ctx, "prod-1", "v-1"))
	assert.Empty(t, pub.Events())
}
