package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/maltedev/wishlist-scraper/internal/models"
)

type pgInserter struct {
	tx pgx.Tx
}

func (i *pgInserter) InsertEntry(ctx context.Context, e models.NewEntry) (int64, error) {
	// A nested pgx transaction is a SAVEPOINT.
	sp, err := i.tx.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to create savepoint: %w", err)
	}

	query := `
		INSERT INTO product_entries (wishlist_id, url, imageUrl, price, description, lastUpdated, title, isBought)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0)
		RETURNING id`

	var id int64
	err = sp.QueryRow(ctx, query,
		e.WishlistID, e.URL, e.Product.ImageURL, e.Product.Price, e.Product.Description,
		e.LastUpdated.UTC(), e.Product.Title,
	).Scan(&id)
	if err != nil {
		if rbErr := sp.Rollback(ctx); rbErr != nil {
			return 0, fmt.Errorf("failed to roll back savepoint: %v (original error: %w)", rbErr, err)
		}
		return 0, fmt.Errorf("failed to insert entry for wishlist %d: %w", e.WishlistID, err)
	}

	if err := sp.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to release savepoint: %w", err)
	}
	return id, nil
}

func (db *DB) CreateWishlist(ctx context.Context, title, kind string) (*models.Wishlist, error) {
	if kind == "" {
		kind = DefaultWishlistType
	}
	w := &models.Wishlist{
		Title:     title,
		Type:      kind,
		CreatedAt: time.Now().UTC(),
	}

	query := `
		INSERT INTO wishlists (title, createdAt, type)
		VALUES ($1, $2, $3)
		RETURNING id`

	if err := db.QueryRow(ctx, query, w.Title, w.CreatedAt, w.Type).Scan(&w.ID); err != nil {
		return nil, fmt.Errorf("failed to create wishlist: %w", err)
	}
	return w, nil
}

func (db *DB) GetWishlist(ctx context.Context, id int64) (*models.Wishlist, error) {
	query := `SELECT id, title, createdAt, COALESCE(type, '') FROM wishlists WHERE id = $1`

	var w models.Wishlist
	err := db.QueryRow(ctx, query, id).Scan(&w.ID, &w.Title, &w.CreatedAt, &w.Type)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get wishlist: %w", err)
	}
	return &w, nil
}

func (db *DB) ListWishlists(ctx context.Context) ([]*models.Wishlist, error) {
	query := `SELECT id, title, createdAt, COALESCE(type, '') FROM wishlists ORDER BY createdAt DESC, id DESC`

	rows, err := db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list wishlists: %w", err)
	}
	defer rows.Close()

	var lists []*models.Wishlist
	for rows.Next() {
		var w models.Wishlist
		if err := rows.Scan(&w.ID, &w.Title, &w.CreatedAt, &w.Type); err != nil {
			return nil, fmt.Errorf("failed to scan wishlist: %w", err)
		}
		lists = append(lists, &w)
	}
	return lists, rows.Err()
}

func (db *DB) ListWishlistsWithEntries(ctx context.Context) ([]*models.Wishlist, error) {
	lists, err := db.ListWishlists(ctx)
	if err != nil {
		return nil, err
	}
	if len(lists) == 0 {
		return lists, nil
	}

	byID := make(map[int64]*models.Wishlist, len(lists))
	for _, w := range lists {
		byID[w.ID] = w
	}

	rows, err := db.Query(ctx, `SELECT `+EntryColumns+` FROM product_entries ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanPgEntry(rows)
		if err != nil {
			return nil, err
		}
		if w, ok := byID[e.WishlistID]; ok {
			w.Entries = append(w.Entries, *e)
		}
	}
	return lists, rows.Err()
}

func (db *DB) DeleteWishlist(ctx context.Context, id int64) error {
	tag, err := db.Exec(ctx, `DELETE FROM wishlists WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete wishlist: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) GetEntry(ctx context.Context, id int64) (*models.Entry, error) {
	row := db.QueryRow(ctx, `SELECT `+EntryColumns+` FROM product_entries WHERE id = $1`, id)
	e, err := scanPgEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

func (db *DB) ListEntries(ctx context.Context, wishlistID int64) ([]*models.Entry, error) {
	rows, err := db.Query(ctx,
		`SELECT `+EntryColumns+` FROM product_entries WHERE wishlist_id = $1 ORDER BY lastUpdated DESC, id DESC`,
		wishlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.Entry
	for rows.Next() {
		e, err := scanPgEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (db *DB) MarkBought(ctx context.Context, id int64, at time.Time) error {
	tag, err := db.Exec(ctx,
		`UPDATE product_entries SET isBought = 1, broughtData = $2 WHERE id = $1`,
		id, at.UTC())
	if err != nil {
		return fmt.Errorf("failed to mark entry bought: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPgEntry(row pgx.Row) (*models.Entry, error) {
	var (
		e        models.Entry
		isBought int16
	)
	err := row.Scan(&e.ID, &e.WishlistID, &e.URL, &e.ImageURL, &e.Price, &isBought,
		&e.Description, &e.BoughtAt, &e.LastUpdated, &e.Title)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan entry: %w", err)
	}
	e.IsBought = isBought == 1
	return &e, nil
}
