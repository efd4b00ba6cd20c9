package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/maltedev/wishlist-scraper/internal/database/sqlite"
	"github.com/maltedev/wishlist-scraper/internal/extraction"
	"github.com/maltedev/wishlist-scraper/internal/models"
	"github.com/maltedev/wishlist-scraper/internal/service"
	"github.com/maltedev/wishlist-scraper/internal/session"
	"github.com/maltedev/wishlist-scraper/internal/writer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubScraper struct {
	outcome session.Outcome
}

func (s stubScraper) StartWithScript(_ context.Context, url string, _ extraction.Script) session.Outcome {
	out := s.outcome
	out.URL = url
	return out
}

type testServer struct {
	handler http.Handler
	store   *sqlite.Store
}

func newTestServer(t *testing.T, outcome session.Outcome) *testServer {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	logger := slog.Default()
	cfg := service.DefaultConfig()
	cfg.MaxRetries = 0
	svc := service.New(stubScraper{outcome: outcome}, writer.New(store, logger), nil, nil, cfg, logger)

	return &testServer{
		handler: NewRouter(NewHandlers(svc, store, logger), RouterOptions{}),
		store:   store,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func lamp() models.ProductData {
	price := 1499.0
	return models.ProductData{Title: "Desk Lamp", Price: &price}
}

func TestShare(t *testing.T) {
	tests := []struct {
		name       string
		outcome    session.Outcome
		text       string
		wantStatus int
		wantOK     bool
		wantReason string
	}{
		{
			name:       "product extracted",
			outcome:    session.Success("", lamp()),
			text:       "https://www.amazon.in/Lamp/dp/B0LAMP1234?ref=share&utm_medium=app",
			wantStatus: http.StatusOK,
			wantOK:     true,
		},
		{
			name:       "extraction failed",
			outcome:    session.Failure("", session.ReasonNoTitleFound, nil),
			text:       "wishlist://share?url=https%3A%2F%2Fwww.amazon.com%2Fdp%2FB0LAMP1234",
			wantStatus: http.StatusOK,
			wantReason: "no_title_found",
		},
		{
			name:       "unsupported site",
			text:       "https://example.com/item/1",
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "empty text",
			text:       " ",
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.outcome)
			rec := srv.do(t, http.MethodPost, "/api/v1/share", ShareRequest{Text: tt.text})
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus != http.StatusOK {
				return
			}

			resp := decode[ShareResponse](t, rec)
			assert.Equal(t, tt.wantOK, resp.Success)
			assert.Equal(t, "Amazon", resp.Site)
			assert.Equal(t, tt.wantReason, resp.Reason)
			if tt.wantOK {
				assert.Equal(t, "https://www.amazon.in/Lamp/dp/B0LAMP1234", resp.URL)
				require.NotNil(t, resp.Product)
				assert.Equal(t, "Desk Lamp", resp.Product.Title)
			} else {
				assert.NotEmpty(t, resp.Message)
			}
		})
	}
}

func TestSharedLinks(t *testing.T) {
	srv := newTestServer(t, session.Success("", lamp()))
	srv.do(t, http.MethodPost, "/api/v1/share", ShareRequest{Text: "https://example.com"})
	srv.do(t, http.MethodPost, "/api/v1/share", ShareRequest{Text: "https://www.flipkart.com/lamp/p/itm123"})

	rec := srv.do(t, http.MethodGet, "/api/v1/shared-links", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	links := decode[[]models.SharedLink](t, rec)
	require.Len(t, links, 2)
	assert.Equal(t, "https://www.flipkart.com/lamp/p/itm123", links[0].URL)

	rec = srv.do(t, http.MethodDelete, "/api/v1/shared-links", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = srv.do(t, http.MethodGet, "/api/v1/shared-links", nil)
	assert.Empty(t, decode[[]models.SharedLink](t, rec))
}

func TestClassify(t *testing.T) {
	srv := newTestServer(t, session.Outcome{})

	rec := srv.do(t, http.MethodPost, "/api/v1/classify", ClassifyRequest{URL: "https://www.myntra.com/tshirts/roadster/roadster-men-tshirt/1234567/buy?utm_campaign=x"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ClassifyResponse](t, rec)
	assert.True(t, resp.IsValid)
	assert.Equal(t, "Myntra", resp.Site)
	assert.Equal(t, "https://www.myntra.com/tshirts/roadster/roadster-men-tshirt/1234567/buy", resp.NormalizedURL)

	rec = srv.do(t, http.MethodPost, "/api/v1/classify", ClassifyRequest{URL: "not a url"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[ClassifyResponse](t, rec).IsValid)
}

func TestWishlistsAndEntries(t *testing.T) {
	srv := newTestServer(t, session.Outcome{})

	rec := srv.do(t, http.MethodPost, "/api/v1/wishlists", CreateWishlistRequest{Title: "Home"})
	require.Equal(t, http.StatusCreated, rec.Code)
	home := decode[models.Wishlist](t, rec)
	assert.Equal(t, "Monthly", home.Type)

	rec = srv.do(t, http.MethodPost, "/api/v1/wishlists", CreateWishlistRequest{Title: "Office", Type: "Yearly"})
	require.Equal(t, http.StatusCreated, rec.Code)
	office := decode[models.Wishlist](t, rec)

	rec = srv.do(t, http.MethodPost, "/api/v1/wishlists", CreateWishlistRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	p := lamp()
	rec = srv.do(t, http.MethodPost, "/api/v1/entries", AddEntriesRequest{
		WishlistIDs: []int64{home.ID, 999, office.ID},
		URL:         "https://www.amazon.in/Lamp/dp/B0LAMP1234",
		Product:     &p,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decode[models.WriteResult](t, rec)
	assert.Equal(t, 2, res.SuccessCount)
	assert.Equal(t, 3, res.TotalRequested)
	require.Len(t, res.InsertedIDs, 2)

	rec = srv.do(t, http.MethodGet, fmt.Sprintf("/api/v1/wishlists/%d/entries", home.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode[[]models.Entry](t, rec)
	require.Len(t, entries, 1)
	assert.Equal(t, "Desk Lamp", entries[0].Title)

	entryID := res.InsertedIDs[0]
	rec = srv.do(t, http.MethodPost, fmt.Sprintf("/api/v1/entries/%d/bought", entryID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[models.Entry](t, rec).IsBought)

	rec = srv.do(t, http.MethodGet, "/api/v1/wishlists?entries=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	lists := decode[[]models.Wishlist](t, rec)
	require.Len(t, lists, 2)
	for _, l := range lists {
		assert.Len(t, l.Entries, 1)
	}

	rec = srv.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/wishlists/%d", home.ID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = srv.do(t, http.MethodGet, fmt.Sprintf("/api/v1/entries/%d", entryID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = srv.do(t, http.MethodGet, fmt.Sprintf("/api/v1/wishlists/%d/entries", home.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAddEntries_Validation(t *testing.T) {
	srv := newTestServer(t, session.Outcome{})
	rec := srv.do(t, http.MethodPost, "/api/v1/wishlists", CreateWishlistRequest{Title: "Home"})
	home := decode[models.Wishlist](t, rec)
	p := lamp()

	tests := []struct {
		name       string
		req        AddEntriesRequest
		wantStatus int
	}{
		{"no product", AddEntriesRequest{WishlistIDs: []int64{home.ID}}, http.StatusBadRequest},
		{"both product and manual", AddEntriesRequest{WishlistIDs: []int64{home.ID}, Product: &p, Manual: &ManualProduct{Title: "x"}}, http.StatusBadRequest},
		{"no targets", AddEntriesRequest{Product: &p}, http.StatusBadRequest},
		{"manual bad price", AddEntriesRequest{WishlistIDs: []int64{home.ID}, Manual: &ManualProduct{Title: "Rug", Price: "cheap"}}, http.StatusBadRequest},
		{"manual ok", AddEntriesRequest{WishlistIDs: []int64{home.ID}, URL: "https://www.ajio.com/x/p/1", Manual: &ManualProduct{Title: "Rug", Price: "799"}}, http.StatusCreated},
		{"all targets fail", AddEntriesRequest{WishlistIDs: []int64{404}, Product: &p}, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.do(t, http.MethodPost, "/api/v1/entries", tt.req)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
		})
	}
}

func TestInvalidIDs(t *testing.T) {
	srv := newTestServer(t, session.Outcome{})

	rec := srv.do(t, http.MethodGet, "/api/v1/entries/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/v1/entries/42/bought", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = srv.do(t, http.MethodDelete, "/api/v1/wishlists/42", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, session.Outcome{})

	rec := srv.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]interface{}](t, rec)["status"])

	rec = srv.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, srv.store.Close())
	rec = srv.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
