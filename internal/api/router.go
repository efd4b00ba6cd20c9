package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/maltedev/wishlist-scraper/internal/metrics"
)

type RouterOptions struct {
	AllowedOrigins []string
	// RequestTimeout bounds every request. Share requests wait for a full
	// extraction, so it must exceed the settle delay plus session timeout.
	RequestTimeout time.Duration
}

func NewRouter(h *Handlers, opts RouterOptions) http.Handler {
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"http://localhost:*", "https://localhost:*"}
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 90 * time.Second
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(opts.RequestTimeout))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/share", h.Share)
		r.Post("/classify", h.Classify)

		r.Route("/wishlists", func(r chi.Router) {
			r.Get("/", h.ListWishlists)
			r.Post("/", h.CreateWishlist)
			r.Delete("/{wishlistID}", h.DeleteWishlist)
			r.Get("/{wishlistID}/entries", h.ListEntries)
		})

		r.Route("/entries", func(r chi.Router) {
			r.Post("/", h.AddEntries)
			r.Get("/{entryID}", h.GetEntry)
			r.Post("/{entryID}/bought", h.MarkBought)
		})

		r.Get("/shared-links", h.ListSharedLinks)
		r.Delete("/shared-links", h.ClearSharedLinks)
	})

	return r
}
