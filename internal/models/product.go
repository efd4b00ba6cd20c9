package models

import (
	"time"
)

// ProductData is the canonical record extracted from one product page.
type ProductData struct {
	Title       string   `json:"title"`
	Price       *float64 `json:"price,omitempty"`
	Description *string  `json:"description,omitempty"`
	ImageURL    *string  `json:"image_url,omitempty"`
}

type Wishlist struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Type      string    `json:"type,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Entries   []Entry   `json:"entries,omitempty"`
}

// Entry is one product row owned by exactly one wishlist.
type Entry struct {
	ID          int64      `json:"id"`
	WishlistID  int64      `json:"wishlist_id"`
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	ImageURL    *string    `json:"image_url,omitempty"`
	Price       *float64   `json:"price,omitempty"`
	Description *string    `json:"description,omitempty"`
	IsBought    bool       `json:"is_bought"`
	BoughtAt    *time.Time `json:"bought_at,omitempty"`
	LastUpdated time.Time  `json:"last_updated"`
}

// NewEntry is the insert payload for a single target wishlist.
type NewEntry struct {
	WishlistID  int64
	URL         string
	Product     ProductData
	LastUpdated time.Time
}

type WriteResult struct {
	SuccessCount   int     `json:"success_count"`
	InsertedIDs    []int64 `json:"inserted_ids"`
	TotalRequested int     `json:"total_requested"`
}

// Partial reports whether some but not all targets were written.
func (r *WriteResult) Partial() bool {
	return r.SuccessCount > 0 && r.SuccessCount < r.TotalRequested
}

// Failed reports whether targets were requested and none were written.
func (r *WriteResult) Failed() bool {
	return r.TotalRequested > 0 && r.SuccessCount == 0
}

// SharedLink is one inbound string observed from the share entry point.
type SharedLink struct {
	Raw        string    `json:"raw"`
	URL        string    `json:"url"`
	ReceivedAt time.Time `json:"received_at"`
}
