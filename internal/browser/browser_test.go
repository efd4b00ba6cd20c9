package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/maltedev/wishlist-scraper/internal/extraction"
	"github.com/maltedev/wishlist-scraper/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	if !opts.Headless {
		t.Error("Expected headless to be true by default")
	}

	if opts.Timeout != 30*time.Second {
		t.Errorf("Expected timeout to be 30s, got %v", opts.Timeout)
	}

	if opts.Locale != "en-IN" {
		t.Errorf("Expected locale to be en-IN, got %s", opts.Locale)
	}

	if opts.Binding != extraction.DefaultBinding {
		t.Errorf("Expected binding %s, got %s", extraction.DefaultBinding, opts.Binding)
	}
}

func TestIsBlockedPage(t *testing.T) {
	assert.True(t, isBlockedPage(`<p>Enter the characters you see below</p>`))
	assert.False(t, isBlockedPage(`<span id="productTitle">Widget</span>`))
}

func TestScriptFailureMessage(t *testing.T) {
	msg, err := extraction.ParseMessage(scriptFailureMessage(errors.New("Execution context was destroyed")))
	require.NoError(t, err)
	assert.Nil(t, msg.Title)
	require.NotNil(t, msg.Error)
	assert.Equal(t, "Execution context was destroyed", *msg.Error)
}

func TestView_SingleDelivery(t *testing.T) {
	closed := 0
	v := newView(func() error {
		closed++
		return nil
	})

	v.post("first")
	v.post("second")
	v.fail(errors.New("a"))
	v.fail(errors.New("b"))
	v.markLoaded()
	v.markLoaded()

	assert.Equal(t, "first", <-v.Messages())
	assert.EqualError(t, <-v.Failures(), "a")
	select {
	case <-v.Loaded():
	default:
		t.Fatal("expected loaded to be closed")
	}

	require.NoError(t, v.Close())
	require.NoError(t, v.Close())
	assert.Equal(t, 1, closed)
	assert.True(t, v.closed())
}

const productHTML = `<html><head><title>Widget</title></head><body>
<span id="productTitle"> Steel Water Bottle </span>
<span class="a-price-whole">799.</span><span class="a-price-fraction">00</span>
<img id="landingImage" src="https://img.example/bottle.jpg">
<div id="productDescription"><p>Keeps drinks cold for 24 hours.</p></div>
</body></html>`

func htmlResponder(body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(200, body)
	resp.Header.Set("Content-Type", "text/html")
	return httpmock.ResponderFromResponse(resp)
}

func TestStatic_Load(t *testing.T) {
	const pageURL = "https://www.amazon.in/bottle/dp/B0TEST1234"

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", pageURL, htmlResponder(productHTML))

	sandbox := NewStatic(StaticOptions{Transport: transport, Timeout: time.Second})
	v, err := sandbox.Load(context.Background(), pageURL, extraction.DefaultScript())
	require.NoError(t, err)
	defer v.Close()

	select {
	case data := <-v.Messages():
		msg, err := extraction.ParseMessage(data)
		require.NoError(t, err)
		require.NotNil(t, msg.Title)
		assert.Equal(t, "Steel Water Bottle", *msg.Title)
		require.NotNil(t, msg.Price)
		assert.Equal(t, 799.0, *msg.Price)
	case err := <-v.Failures():
		t.Fatalf("unexpected failure: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("no message posted")
	}
}

func TestStatic_WithSession(t *testing.T) {
	tests := []struct {
		name       string
		responder  httpmock.Responder
		wantReason session.Reason
	}{
		{
			name:      "product page",
			responder: htmlResponder(productHTML),
		},
		{
			name:       "not found",
			responder:  httpmock.NewStringResponder(404, "gone"),
			wantReason: session.ReasonNetworkError,
		},
		{
			name:       "transport error",
			responder:  httpmock.NewErrorResponder(errors.New("connection reset")),
			wantReason: session.ReasonNetworkError,
		},
		{
			name:       "page without title",
			responder:  htmlResponder(`<html><body><p>Sign in</p></body></html>`),
			wantReason: session.ReasonNoTitleFound,
		},
		{
			name:       "non html body",
			responder:  httpmock.NewStringResponder(200, `{"ok":true}`),
			wantReason: session.ReasonNoTitleFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			const pageURL = "https://www.amazon.in/bottle/dp/B0TEST1234"

			transport := httpmock.NewMockTransport()
			transport.RegisterResponder("GET", pageURL, tt.responder)

			sandbox := NewStatic(StaticOptions{Transport: transport, Timeout: time.Second})
			s := session.New(sandbox, session.Options{
				Script:  extraction.DefaultScript(),
				Timeout: 2 * time.Second,
			})

			out := s.Start(context.Background(), pageURL)
			if tt.wantReason == "" {
				require.True(t, out.Succeeded(), "outcome: %+v", out)
				assert.Equal(t, "Steel Water Bottle", out.Product.Title)
				require.NotNil(t, out.Product.ImageURL)
				assert.Equal(t, "https://img.example/bottle.jpg", *out.Product.ImageURL)
				require.NotNil(t, out.Product.Description)
				assert.Equal(t, "Keeps drinks cold for 24 hours.", *out.Product.Description)
				return
			}
			assert.Equal(t, tt.wantReason, out.Reason)
		})
	}
}
