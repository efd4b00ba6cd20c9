package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/maltedev/wishlist-scraper/internal/database"
	"github.com/maltedev/wishlist-scraper/internal/linkdetect"
	"github.com/maltedev/wishlist-scraper/internal/models"
	"github.com/maltedev/wishlist-scraper/internal/service"
)

type Handlers struct {
	service *service.Service
	store   database.Store
	logger  *slog.Logger
}

func NewHandlers(svc *service.Service, store database.Store, logger *slog.Logger) *Handlers {
	return &Handlers{
		service: svc,
		store:   store,
		logger:  logger.With("component", "api"),
	}
}

// ShareRequest carries an inbound share: a URL or a custom-scheme wrapper.
type ShareRequest struct {
	Text string `json:"text"`
}

// ShareResponse reports the extraction for a shared link
type ShareResponse struct {
	URL     string              `json:"url"`
	Site    string              `json:"site"`
	Success bool                `json:"success"`
	Cached  bool                `json:"cached"`
	Product *models.ProductData `json:"product,omitempty"`
	Reason  string              `json:"reason,omitempty"`
	Message string              `json:"message,omitempty"`
}

type ClassifyRequest struct {
	URL string `json:"url"`
}

type ClassifyResponse struct {
	IsValid       bool   `json:"is_valid"`
	Site          string `json:"site,omitempty"`
	NormalizedURL string `json:"normalized_url,omitempty"`
}

type CreateWishlistRequest struct {
	Title string `json:"title"`
	Type  string `json:"type"`
}

// ManualProduct is user-entered product data used when extraction failed.
type ManualProduct struct {
	Title string `json:"title"`
	Price string `json:"price"`
}

// AddEntriesRequest adds one product to several wishlists. Exactly one of
// Product and Manual must be set.
type AddEntriesRequest struct {
	WishlistIDs []int64             `json:"wishlist_ids"`
	URL         string              `json:"url"`
	Product     *models.ProductData `json:"product,omitempty"`
	Manual      *ManualProduct      `json:"manual,omitempty"`
}

// Share handles links shared into the app
func (h *Handlers) Share(w http.ResponseWriter, r *http.Request) {
	var req ShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		h.respondError(w, http.StatusBadRequest, "text is required")
		return
	}

	res, err := h.service.HandleShared(r.Context(), req.Text)
	if err != nil {
		if errors.Is(err, linkdetect.ErrInvalidURL) {
			h.respondError(w, http.StatusUnprocessableEntity, "Unsupported website. Share a product link from a supported store.")
			return
		}
		h.logger.Error("failed to handle shared link", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to handle shared link")
		return
	}

	resp := ShareResponse{
		URL:     res.Classification.NormalizedURL,
		Site:    res.Site,
		Success: res.Outcome.Succeeded(),
		Cached:  res.Cached,
		Product: res.Outcome.Product,
	}
	if !resp.Success {
		resp.Reason = string(res.Outcome.Reason)
		resp.Message = res.Outcome.Reason.Message()
	}

	h.respondJSON(w, http.StatusOK, resp)
}

// Classify reports whether a URL is a supported product page
func (h *Handlers) Classify(w http.ResponseWriter, r *http.Request) {
	var req ClassifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c := h.service.Classify(req.URL)
	h.respondJSON(w, http.StatusOK, ClassifyResponse{
		IsValid:       c.IsValid,
		Site:          c.SiteName(),
		NormalizedURL: c.NormalizedURL,
	})
}

// ListWishlists lists wishlists, newest first. ?entries=true includes
// their entries.
func (h *Handlers) ListWishlists(w http.ResponseWriter, r *http.Request) {
	var (
		lists []*models.Wishlist
		err   error
	)
	if withEntries, _ := strconv.ParseBool(r.URL.Query().Get("entries")); withEntries {
		lists, err = h.store.ListWishlistsWithEntries(r.Context())
	} else {
		lists, err = h.store.ListWishlists(r.Context())
	}
	if err != nil {
		h.logger.Error("failed to list wishlists", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list wishlists")
		return
	}
	if lists == nil {
		lists = []*models.Wishlist{}
	}

	h.respondJSON(w, http.StatusOK, lists)
}

func (h *Handlers) CreateWishlist(w http.ResponseWriter, r *http.Request) {
	var req CreateWishlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		h.respondError(w, http.StatusBadRequest, "title is required")
		return
	}

	wl, err := h.store.CreateWishlist(r.Context(), title, strings.TrimSpace(req.Type))
	if err != nil {
		h.logger.Error("failed to create wishlist", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to create wishlist")
		return
	}

	h.respondJSON(w, http.StatusCreated, wl)
}

func (h *Handlers) DeleteWishlist(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "wishlistID")
	if !ok {
		return
	}

	if err := h.store.DeleteWishlist(r.Context(), id); err != nil {
		h.storeError(w, err, "failed to delete wishlist")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ListEntries(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "wishlistID")
	if !ok {
		return
	}

	if _, err := h.store.GetWishlist(r.Context(), id); err != nil {
		h.storeError(w, err, "failed to get wishlist")
		return
	}

	entries, err := h.store.ListEntries(r.Context(), id)
	if err != nil {
		h.storeError(w, err, "failed to list entries")
		return
	}
	if entries == nil {
		entries = []*models.Entry{}
	}

	h.respondJSON(w, http.StatusOK, entries)
}

// AddEntries writes one product into every requested wishlist. A partial
// write still returns 201; the result carries the per-target counts.
func (h *Handlers) AddEntries(w http.ResponseWriter, r *http.Request) {
	var req AddEntriesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var product models.ProductData
	switch {
	case req.Product != nil && req.Manual == nil:
		product = *req.Product
	case req.Manual != nil && req.Product == nil:
		p, err := service.ManualProduct(req.Manual.Title, req.Manual.Price)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		product = p
	default:
		h.respondError(w, http.StatusBadRequest, "exactly one of product or manual is required")
		return
	}

	res, err := h.service.AddToWishlists(r.Context(), req.WishlistIDs, strings.TrimSpace(req.URL), product)
	switch {
	case errors.Is(err, service.ErrMissingTitle), errors.Is(err, service.ErrNoTargets):
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.storeError(w, err, "failed to add product")
		return
	}

	status := http.StatusCreated
	if res.Failed() {
		status = http.StatusUnprocessableEntity
	}
	h.respondJSON(w, status, res)
}

func (h *Handlers) GetEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "entryID")
	if !ok {
		return
	}

	e, err := h.store.GetEntry(r.Context(), id)
	if err != nil {
		h.storeError(w, err, "failed to get entry")
		return
	}

	h.respondJSON(w, http.StatusOK, e)
}

func (h *Handlers) MarkBought(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "entryID")
	if !ok {
		return
	}

	if err := h.store.MarkBought(r.Context(), id, time.Now().UTC()); err != nil {
		h.storeError(w, err, "failed to mark entry bought")
		return
	}

	e, err := h.store.GetEntry(r.Context(), id)
	if err != nil {
		h.storeError(w, err, "failed to get entry")
		return
	}

	h.respondJSON(w, http.StatusOK, e)
}

func (h *Handlers) ListSharedLinks(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.service.Sink().Recent())
}

func (h *Handlers) ClearSharedLinks(w http.ResponseWriter, r *http.Request) {
	h.service.Sink().Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{"status": "ok"}
	status := http.StatusOK

	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Error("storage health check failed", "error", err)
		health["status"] = "error"
		health["message"] = "storage unavailable"
		status = http.StatusServiceUnavailable
	}

	h.respondJSON(w, status, health)
}

// Helper methods
func (h *Handlers) pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		h.respondError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func (h *Handlers) storeError(w http.ResponseWriter, err error, message string) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		h.respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, database.ErrStorageUnavailable):
		h.logger.Error(message, "error", err)
		h.respondError(w, http.StatusServiceUnavailable, "storage unavailable")
	default:
		h.logger.Error(message, "error", err)
		h.respondError(w, http.StatusInternalServerError, message)
	}
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
