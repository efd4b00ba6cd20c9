package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/maltedev/wishlist-scraper/internal/database"
	"github.com/maltedev/wishlist-scraper/internal/models"
	_ "modernc.org/sqlite"
)

// ensure Store implements database.Store
var _ database.Store = (*Store)(nil)

// Store is a SQLite-backed database.Store. It mirrors the on-device schema
// of the mobile app.
type Store struct {
	db        *sql.DB
	savepoint atomic.Int64
}

const schema = `
CREATE TABLE IF NOT EXISTS wishlists (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	createdAt TEXT NOT NULL,
	type TEXT
);

CREATE TABLE IF NOT EXISTS product_entries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	wishlist_id INTEGER NOT NULL,
	url TEXT NOT NULL,
	imageUrl TEXT,
	price REAL,
	isBought INTEGER NOT NULL DEFAULT 0 CHECK (isBought IN (0, 1)),
	description TEXT,
	broughtData TEXT,
	lastUpdated TEXT,
	title TEXT NOT NULL,
	FOREIGN KEY (wishlist_id) REFERENCES wishlists(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_product_entries_wishlist ON product_entries (wishlist_id);
`

// New opens dsn and applies the schema. Foreign keys are enforced on the
// single pooled connection.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// SQLite serialises writers; one connection also keeps :memory: alive.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		`PRAGMA foreign_keys = ON`,
		`PRAGMA busy_timeout = 5000`,
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx database.EntryInserter) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", database.ErrStorageUnavailable, err)
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = fmt.Errorf("tx rollback failed: %v (original error: %w)", rbErr, err)
			}
		}
	}()

	if err = fn(ctx, &inserter{tx: tx, store: s}); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit transaction: %v", database.ErrStorageUnavailable, err)
	}
	return nil
}

type inserter struct {
	tx    *sql.Tx
	store *Store
}

func (i *inserter) InsertEntry(ctx context.Context, e models.NewEntry) (int64, error) {
	name := fmt.Sprintf("entry_%d", i.store.savepoint.Add(1))
	if _, err := i.tx.ExecContext(ctx, `SAVEPOINT `+name); err != nil {
		return 0, fmt.Errorf("failed to create savepoint: %w", err)
	}

	query := `
	INSERT INTO product_entries (wishlist_id, url, imageUrl, price, description, lastUpdated, title, isBought)
	VALUES (?, ?, ?, ?, ?, ?, ?, 0)
	`

	res, err := i.tx.ExecContext(ctx, query,
		e.WishlistID, e.URL, e.Product.ImageURL, e.Product.Price, e.Product.Description,
		formatTime(e.LastUpdated), e.Product.Title,
	)
	if err == nil {
		var id int64
		if id, err = res.LastInsertId(); err == nil {
			if _, err := i.tx.ExecContext(ctx, `RELEASE SAVEPOINT `+name); err != nil {
				return 0, fmt.Errorf("failed to release savepoint: %w", err)
			}
			return id, nil
		}
	}

	if _, rbErr := i.tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT `+name); rbErr != nil {
		return 0, fmt.Errorf("failed to roll back savepoint: %v (original error: %w)", rbErr, err)
	}
	if _, relErr := i.tx.ExecContext(ctx, `RELEASE SAVEPOINT `+name); relErr != nil {
		return 0, fmt.Errorf("failed to release savepoint: %v (original error: %w)", relErr, err)
	}
	return 0, fmt.Errorf("failed to insert entry for wishlist %d: %w", e.WishlistID, err)
}

func (s *Store) CreateWishlist(ctx context.Context, title, kind string) (*models.Wishlist, error) {
	if kind == "" {
		kind = database.DefaultWishlistType
	}
	w := &models.Wishlist{
		Title:     title,
		Type:      kind,
		CreatedAt: time.Now().UTC(),
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO wishlists (title, createdAt, type) VALUES (?, ?, ?)`,
		w.Title, formatTime(w.CreatedAt), w.Type)
	if err != nil {
		return nil, fmt.Errorf("failed to create wishlist: %w", err)
	}
	if w.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("failed to read wishlist id: %w", err)
	}
	return w, nil
}

func (s *Store) GetWishlist(ctx context.Context, id int64) (*models.Wishlist, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, createdAt, COALESCE(type, '') FROM wishlists WHERE id = ?`, id)
	w, err := scanWishlist(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	return w, err
}

func (s *Store) ListWishlists(ctx context.Context) ([]*models.Wishlist, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, createdAt, COALESCE(type, '') FROM wishlists ORDER BY createdAt DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list wishlists: %w", err)
	}
	defer rows.Close()

	var lists []*models.Wishlist
	for rows.Next() {
		w, err := scanWishlist(rows)
		if err != nil {
			return nil, err
		}
		lists = append(lists, w)
	}
	return lists, rows.Err()
}

func (s *Store) ListWishlistsWithEntries(ctx context.Context) ([]*models.Wishlist, error) {
	lists, err := s.ListWishlists(ctx)
	if err != nil || len(lists) == 0 {
		return lists, err
	}

	byID := make(map[int64]*models.Wishlist, len(lists))
	for _, w := range lists {
		byID[w.ID] = w
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+database.EntryColumns+` FROM product_entries ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		if w, ok := byID[e.WishlistID]; ok {
			w.Entries = append(w.Entries, *e)
		}
	}
	return lists, rows.Err()
}

func (s *Store) DeleteWishlist(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM wishlists WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete wishlist: %w", err)
	}
	return requireAffected(res)
}

func (s *Store) GetEntry(ctx context.Context, id int64) (*models.Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+database.EntryColumns+` FROM product_entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	return e, err
}

func (s *Store) ListEntries(ctx context.Context, wishlistID int64) ([]*models.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+database.EntryColumns+` FROM product_entries WHERE wishlist_id = ? ORDER BY lastUpdated DESC, id DESC`,
		wishlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) MarkBought(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE product_entries SET isBought = 1, broughtData = ? WHERE id = ?`,
		formatTime(at), id)
	if err != nil {
		return fmt.Errorf("failed to mark entry bought: %w", err)
	}
	return requireAffected(res)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanWishlist(row scanner) (*models.Wishlist, error) {
	var (
		w         models.Wishlist
		createdAt string
	)
	if err := row.Scan(&w.ID, &w.Title, &createdAt, &w.Type); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan wishlist: %w", err)
	}
	w.CreatedAt = parseTime(createdAt)
	return &w, nil
}

func scanEntry(row scanner) (*models.Entry, error) {
	var (
		e           models.Entry
		imageURL    sql.NullString
		price       sql.NullFloat64
		isBought    int
		description sql.NullString
		boughtAt    sql.NullString
		lastUpdated sql.NullString
	)
	err := row.Scan(&e.ID, &e.WishlistID, &e.URL, &imageURL, &price, &isBought,
		&description, &boughtAt, &lastUpdated, &e.Title)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan entry: %w", err)
	}

	if imageURL.Valid {
		e.ImageURL = &imageURL.String
	}
	if price.Valid {
		e.Price = &price.Float64
	}
	if description.Valid {
		e.Description = &description.String
	}
	if boughtAt.Valid && boughtAt.String != "" {
		t := parseTime(boughtAt.String)
		e.BoughtAt = &t
	}
	e.IsBought = isBought == 1
	e.LastUpdated = parseTime(lastUpdated.String)
	return &e, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return database.ErrNotFound
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
