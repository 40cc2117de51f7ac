package application

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/identity-lifecycle-service/internal/domain/entity"
)

func TestSearchCaseInsensitiveSubstring(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	svc, _ := newMemoryService(clock)

	alice, err := svc.Create(ctx, signup("alice", "a@x.com"))
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = svc.Create(ctx, signup("bob", "b@x.com"))
	require.NoError(t, err)

	page, err := svc.Search(ctx, "ALI", 0, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, alice.ID, page.Items[0].ID)
	assert.Equal(t, int64(1), page.Total)
}

func TestSearchPagination(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	svc, _ := newMemoryService(clock)

	for i := 0; i < 25; i++ {
		_, err := svc.Create(ctx, signup(fmt.Sprintf("member%02d", i), fmt.Sprintf("m%02d@x.com", i)))
		require.NoError(t, err)
		clock.Advance(time.Second)
	}

	page, err := svc.Search(ctx, "member", 2, 10)
	require.NoError(t, err)
	assert.Len(t, page.Items, 5)
	assert.Equal(t, int64(25), page.Total)
	// newest first: the last page holds the five oldest
	assert.Equal(t, "member04", page.Items[0].Username)
	assert.Equal(t, "member00", page.Items[4].Username)

	page, err = svc.Search(ctx, "member", 7, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.NotNil(t, page.Items)
	assert.Equal(t, int64(25), page.Total)

	page, err = svc.Search(ctx, "   ", 0, 0)
	require.NoError(t, err)
	assert.Len(t, page.Items, 20)
	assert.Equal(t, "member24", page.Items[0].Username)
}

func TestSearchPushesWindowToStore(t *testing.T) {
	store := new(MockIdentityStore)
	svc := NewService(store, nil, nil, nil, Options{})

	store.On("Search", mock.Anything, "x", 300, MaxPageSize).Return([]entity.Identity(nil), int64(12), nil).Once()

	page, err := svc.Search(context.Background(), "x", 3, 1000)
	require.NoError(t, err)
	assert.Equal(t, MaxPageSize, page.Size)
	assert.Equal(t, int64(12), page.Total)
	assert.NotNil(t, page.Items)
	store.AssertExpectations(t)

	_, err = svc.Search(context.Background(), "x", -1, 10)
	assert.ErrorIs(t, err, entity.ErrInvalidInput)
}

func TestSearchFarPastLastPage(t *testing.T) {
	ctx := context.Background()
	svc, _ := newMemoryService(newClock())
	_, err := svc.Create(ctx, signup("alice", "a@x.com"))
	require.NoError(t, err)
	_, err = svc.Create(ctx, signup("bob", "b@x.com"))
	require.NoError(t, err)

	for _, page := range []int{math.MaxInt, math.MaxInt / 20, math.MaxInt/20 + 1} {
		got, err := svc.Search(ctx, "", page, 20)
		require.NoError(t, err, page)
		assert.Empty(t, got.Items, page)
		assert.Equal(t, int64(2), got.Total, page)
		assert.Equal(t, page, got.Page)
	}
}

func TestSearchClampsOverflowingOffset(t *testing.T) {
	store := new(MockIdentityStore)
	svc := NewService(store, nil, nil, nil, Options{})

	store.On("Search", mock.Anything, "", maxOffset, 20).Return([]entity.Identity(nil), int64(4), nil).Once()

	page, err := svc.Search(context.Background(), "", math.MaxInt, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(4), page.Total)
	assert.Empty(t, page.Items)
	store.AssertExpectations(t)
}
