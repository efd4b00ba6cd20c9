package database

import (
	"context"
	"errors"
	"time"

	"github.com/maltedev/wishlist-scraper/internal/models"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

const DefaultWishlistType = "Monthly"

// EntryInserter inserts product entries inside an open transaction. A failed
// insert is rolled back on its own and leaves the transaction usable.
type EntryInserter interface {
	InsertEntry(ctx context.Context, e models.NewEntry) (int64, error)
}

// Store is the relational store behind wishlists and their entries.
type Store interface {
	// WithinTx runs fn in one transaction. It commits when fn returns nil and
	// rolls back otherwise. Failing to begin or commit wraps
	// ErrStorageUnavailable.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx EntryInserter) error) error

	CreateWishlist(ctx context.Context, title, kind string) (*models.Wishlist, error)
	GetWishlist(ctx context.Context, id int64) (*models.Wishlist, error)
	ListWishlists(ctx context.Context) ([]*models.Wishlist, error)
	ListWishlistsWithEntries(ctx context.Context) ([]*models.Wishlist, error)
	DeleteWishlist(ctx context.Context, id int64) error

	GetEntry(ctx context.Context, id int64) (*models.Entry, error)
	ListEntries(ctx context.Context, wishlistID int64) ([]*models.Entry, error)
	MarkBought(ctx context.Context, id int64, at time.Time) error

	Ping(ctx context.Context) error
	Close() error
}

// Column names follow the mobile app's schema so exported databases stay
// readable by it.
const EntryColumns = `id, wishlist_id, url, imageUrl, price, isBought, description, broughtData, lastUpdated, title`
