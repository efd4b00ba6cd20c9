package writer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/maltedev/wishlist-scraper/internal/database"
	"github.com/maltedev/wishlist-scraper/internal/database/sqlite"
	"github.com/maltedev/wishlist-scraper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockStore only implements WithinTx; the remaining Store methods are not
// used by the writer.
type MockStore struct {
	database.Store
	mock.Mock
	inserter database.EntryInserter
}

func (m *MockStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx database.EntryInserter) error) error {
	args := m.Called(ctx)
	if err := args.Error(0); err != nil {
		return err
	}
	return fn(ctx, m.inserter)
}

// MockInserter is a mock for database.EntryInserter
type MockInserter struct {
	mock.Mock
}

func (m *MockInserter) InsertEntry(ctx context.Context, e models.NewEntry) (int64, error) {
	args := m.Called(ctx, e.WishlistID)
	return args.Get(0).(int64), args.Error(1)
}

func sampleProduct() models.ProductData {
	price := 199.5
	desc := "A widget"
	img := "http://img"
	return models.ProductData{Title: "Widget", Price: &price, Description: &desc, ImageURL: &img}
}

func TestWriter_Apply_SkipsFailedTarget(t *testing.T) {
	ctx := context.Background()
	ins := new(MockInserter)
	store := &MockStore{inserter: ins}

	store.On("WithinTx", ctx).Return(nil)
	ins.On("InsertEntry", ctx, int64(1)).Return(int64(101), nil)
	ins.On("InsertEntry", ctx, int64(2)).Return(int64(0), errors.New("constraint failed"))
	ins.On("InsertEntry", ctx, int64(3)).Return(int64(103), nil)

	w := New(store, slog.Default())
	res, err := w.Apply(ctx, []int64{1, 2, 3}, "https://www.amazon.in/dp/B0WIDGET01", sampleProduct())
	require.NoError(t, err)

	assert.Equal(t, 2, res.SuccessCount)
	assert.Equal(t, []int64{101, 103}, res.InsertedIDs)
	assert.Equal(t, 3, res.TotalRequested)
	assert.True(t, res.Partial())
	ins.AssertNumberOfCalls(t, "InsertEntry", 3)
}

func TestWriter_Apply_EmptyTargets(t *testing.T) {
	store := &MockStore{}
	w := New(store, slog.Default())

	res, err := w.Apply(context.Background(), nil, "https://example.com", sampleProduct())
	require.NoError(t, err)

	assert.Equal(t, 0, res.SuccessCount)
	assert.NotNil(t, res.InsertedIDs)
	assert.Empty(t, res.InsertedIDs)
	assert.Equal(t, 0, res.TotalRequested)
	store.AssertNotCalled(t, "WithinTx", mock.Anything)
}

func TestWriter_Apply_StorageUnavailable(t *testing.T) {
	ctx := context.Background()
	ins := new(MockInserter)
	store := &MockStore{inserter: ins}
	store.On("WithinTx", ctx).Return(fmt.Errorf("%w: dial tcp: refused", database.ErrStorageUnavailable))

	w := New(store, slog.Default())
	res, err := w.Apply(ctx, []int64{1}, "https://example.com", sampleProduct())

	assert.Nil(t, res)
	assert.ErrorIs(t, err, database.ErrStorageUnavailable)
	ins.AssertNotCalled(t, "InsertEntry", mock.Anything, mock.Anything)
}

func TestWriter_Apply_PassesFieldsThrough(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2024, 3, 3, 9, 0, 0, 0, time.FixedZone("IST", 19800))

	var got models.NewEntry
	ins := new(MockInserter)
	ins.On("InsertEntry", ctx, int64(7)).Return(int64(1), nil)
	store := &MockStore{inserter: capture{ins, &got}}
	store.On("WithinTx", ctx).Return(nil)

	w := New(store, slog.Default())
	w.now = func() time.Time { return fixed }

	_, err := w.Apply(ctx, []int64{7}, "https://www.flipkart.com/x/p/itm9", sampleProduct())
	require.NoError(t, err)

	assert.Equal(t, int64(7), got.WishlistID)
	assert.Equal(t, "https://www.flipkart.com/x/p/itm9", got.URL)
	assert.Equal(t, "Widget", got.Product.Title)
	assert.Equal(t, 199.5, *got.Product.Price)
	assert.Equal(t, time.UTC, got.LastUpdated.Location())
	assert.True(t, fixed.Equal(got.LastUpdated))
}

type capture struct {
	next database.EntryInserter
	last *models.NewEntry
}

func (c capture) InsertEntry(ctx context.Context, e models.NewEntry) (int64, error) {
	*c.last = e
	return c.next.InsertEntry(ctx, e)
}

func TestWriter_Apply_SQLite(t *testing.T) {
	ctx := context.Background()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	defer store.Close()

	a, err := store.CreateWishlist(ctx, "A", "")
	require.NoError(t, err)
	b, err := store.CreateWishlist(ctx, "B", "")
	require.NoError(t, err)

	w := New(store, slog.Default())
	res, err := w.Apply(ctx, []int64{a.ID, 9999, b.ID}, "https://www.amazon.in/dp/B0WIDGET01", sampleProduct())
	require.NoError(t, err)

	assert.Equal(t, 2, res.SuccessCount)
	assert.Equal(t, 3, res.TotalRequested)
	require.Len(t, res.InsertedIDs, 2)
	assert.Less(t, res.InsertedIDs[0], res.InsertedIDs[1])

	for _, id := range []int64{a.ID, b.ID} {
		entries, err := store.ListEntries(ctx, id)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "Widget", entries[0].Title)
		assert.False(t, entries[0].IsBought)
	}
}
