package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSavedItemsToggle(t *testing.T) {
	ctx := context.Background()
	source := newTestSource()
	ids := source.seed(10)
	productID := ids[3]
	user := testUser(1)

	saved := NewSavedItems(source, testLogger())

	isSaved, err := saved.Toggle(ctx, user, productID)
	require.NoError(t, err)
	assert.True(t, isSaved)
	assert.True(t, saved.Has(productID))

	remote, err := source.SavedProductIDs(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int32{productID}, remote)

	isSaved, err = saved.Toggle(ctx, user, productID)
	require.NoError(t, err)
	assert.False(t, isSaved)
	assert.False(t, saved.Has(productID))

	remote, err = source.SavedProductIDs(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, remote)
}

func TestSavedItemsToggleRequiresLogin(t *testing.T) {
	source := newTestSource()
	ids := source.seed(1)

	saved := NewSavedItems(source, testLogger())

	_, err := saved.Toggle(context.Background(), nil, ids[0])
	assert.ErrorIs(t, err, ErrLoginRequired)
	assert.False(t, saved.Has(ids[0]))
	assert.Equal(t, 0, source.saveCalls)
}

func TestSavedItemsToggleFailureLeavesSetUnchanged(t *testing.T) {
	ctx := context.Background()
	source := newTestSource()
	ids := source.seed(2)
	user := testUser(1)

	saved := NewSavedItems(source, testLogger())
	_, err := saved.Toggle(ctx, user, ids[0])
	require.NoError(t, err)

	source.saveErr = errors.New("connection refused")

	isSaved, err := saved.Toggle(ctx, user, ids[1])
	require.NoError(t, err)
	assert.False(t, isSaved)
	assert.False(t, saved.Has(ids[1]))

	isSaved, err = saved.Toggle(ctx, user, ids[0])
	require.NoError(t, err)
	assert.True(t, isSaved)
	assert.True(t, saved.Has(ids[0]))

	assert.Equal(t, []int32{ids[0]}, saved.IDs())
}

func TestSavedItemsLoad(t *testing.T) {
	ctx := context.Background()
	source := newTestSource()
	ids := source.seed(5)

	require.NoError(t, source.InsertSavedProduct(ctx, 1, ids[4]))
	require.NoError(t, source.InsertSavedProduct(ctx, 1, ids[2]))
	require.NoError(t, source.InsertSavedProduct(ctx, 2, ids[0]))

	saved := NewSavedItems(source, testLogger())
	saved.Load(ctx, 1)

	assert.True(t, saved.Has(ids[4]))
	assert.True(t, saved.Has(ids[2]))
	assert.False(t, saved.Has(ids[0]))
	assert.Len(t, saved.IDs(), 2)
}
