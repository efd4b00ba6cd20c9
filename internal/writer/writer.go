package writer

import (
	"context"
	"log/slog"
	"time"

	"github.com/maltedev/wishlist-scraper/internal/database"
	"github.com/maltedev/wishlist-scraper/internal/metrics"
	"github.com/maltedev/wishlist-scraper/internal/models"
)

// Writer persists one product into several wishlists. Targets are written
// best-effort inside a single transaction: a failing target is logged and
// skipped, the rest still commit.
type Writer struct {
	store  database.Store
	logger *slog.Logger
	now    func() time.Time
}

func New(store database.Store, logger *slog.Logger) *Writer {
	return &Writer{
		store:  store,
		logger: logger.With("component", "writer"),
		now:    time.Now,
	}
}

// Apply inserts p once per target, in order. The returned error is non-nil
// only when the transaction itself could not be opened or committed; it then
// wraps database.ErrStorageUnavailable.
func (w *Writer) Apply(ctx context.Context, targetIDs []int64, sourceURL string, p models.ProductData) (*models.WriteResult, error) {
	result := &models.WriteResult{
		InsertedIDs:    []int64{},
		TotalRequested: len(targetIDs),
	}
	if len(targetIDs) == 0 {
		return result, nil
	}

	err := w.store.WithinTx(ctx, func(ctx context.Context, tx database.EntryInserter) error {
		// Reset in case the store retries the block.
		result.InsertedIDs = result.InsertedIDs[:0]

		for _, target := range targetIDs {
			id, err := tx.InsertEntry(ctx, models.NewEntry{
				WishlistID:  target,
				URL:         sourceURL,
				Product:     p,
				LastUpdated: w.now().UTC(),
			})
			if err != nil {
				w.logger.Warn("failed to add entry to wishlist",
					"wishlist_id", target,
					"url", sourceURL,
					"error", err)
				continue
			}
			result.InsertedIDs = append(result.InsertedIDs, id)
		}
		return nil
	})
	if err != nil {
		w.logger.Error("write transaction failed", "url", sourceURL, "error", err)
		return nil, err
	}

	result.SuccessCount = len(result.InsertedIDs)
	metrics.RecordWrites(result.SuccessCount, result.TotalRequested-result.SuccessCount)

	w.logger.Info("product written",
		"url", sourceURL,
		"success_count", result.SuccessCount,
		"total_requested", result.TotalRequested)

	return result, nil
}
