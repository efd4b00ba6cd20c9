package linkdetect

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		wantSite string
	}{
		{
			name:     "amazon india with slug",
			url:      "https://www.amazon.in/Boat-Rockerz-Bluetooth/dp/B0B5B6PQCT?ref=abc",
			wantSite: "Amazon",
		},
		{
			name:     "amazon short dp link",
			url:      "https://www.amazon.com/dp/B08N5WRWNW",
			wantSite: "Amazon",
		},
		{
			name:     "amazon gp product",
			url:      "https://amazon.com/some-item/gp/product/B07XJ8C8F5",
			wantSite: "Amazon",
		},
		{
			name:     "flipkart",
			url:      "https://www.flipkart.com/apple-iphone-15/p/itm6ac6485515ae4?pid=MOBGTAGPTB3VS24W",
			wantSite: "Flipkart",
		},
		{
			name:     "myntra",
			url:      "https://www.myntra.com/tshirts/roadster/roadster-men-black-tshirt/1996777/buy",
			wantSite: "Myntra",
		},
		{
			name:     "ajio",
			url:      "https://www.ajio.com/men-tshirts/dnmx-crew-neck-t-shirt/p/441145454_black",
			wantSite: "Ajio",
		},
		{
			name:     "nykaa",
			url:      "https://www.nykaa.com/maybelline-new-york-fit-me-foundation/p/95635",
			wantSite: "Nykaa",
		},
		{
			name:     "meesho",
			url:      "https://www.meesho.com/women-kurta/trendy-kurta-set/123456",
			wantSite: "Meesho",
		},
		{
			name:     "snapdeal",
			url:      "https://www.snapdeal.com/product/sparx-men-sneakers/638345912345",
			wantSite: "Snapdeal",
		},
		{
			name:     "uppercase host",
			url:      "https://WWW.AMAZON.IN/Item/dp/B0B5B6PQCT",
			wantSite: "Amazon",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.url)
			require.True(t, got.IsValid)
			require.NotNil(t, got.Site)
			assert.Equal(t, tt.wantSite, got.Site.Name)
			assert.Equal(t, Normalize(tt.url), got.NormalizedURL)
		})
	}
}

func TestClassify_Rejects(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"empty", ""},
		{"garbage", "not a url at all"},
		{"bad escape", "https://amazon.in/%zz"},
		{"missing scheme", "amazon.in/x/dp/B0B5B6PQCT"},
		{"custom scheme", "mybuy://share?url=x"},
		{"unsupported site", "https://www.ebay.com/itm/123456789"},
		{"amazon search page", "https://www.amazon.in/s?k=headphones"},
		{"flipkart category", "https://www.flipkart.com/mobiles"},
		{"domain in path only", "https://example.com/amazon.in/x/dp/B0B5B6PQCT"},
		{"snapdeal home", "https://www.snapdeal.com/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.url)
			assert.False(t, got.IsValid)
			assert.Nil(t, got.Site)
			assert.Empty(t, got.NormalizedURL)
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	u := "https://www.amazon.in/Item/dp/B0B5B6PQCT?utm_source=share&th=1"
	first := Classify(u)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Classify(u))
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "strips tracking keeps the rest in order",
			in:   "https://www.amazon.in/x/dp/B0B5B6PQCT?utm_source=wa&th=1&ref=sr_1&psc=1&gclid=abc",
			want: "https://www.amazon.in/x/dp/B0B5B6PQCT?th=1&psc=1",
		},
		{
			name: "all params removed drops the question mark",
			in:   "https://www.flipkart.com/a/p/itm1?fbclid=1&msclkid=2&twclid=3",
			want: "https://www.flipkart.com/a/p/itm1",
		},
		{
			name: "fragment preserved",
			in:   "https://www.nykaa.com/a/p/95635?affiliate=x&color=red#reviews",
			want: "https://www.nykaa.com/a/p/95635?color=red#reviews",
		},
		{
			name: "unknown utm key stripped",
			in:   "https://example.com/p?utm_id=7&q=1",
			want: "https://example.com/p?q=1",
		},
		{
			name: "encoding of kept params untouched",
			in:   "https://example.com/p?q=a%20b&partner=x&name=%C3%A9",
			want: "https://example.com/p?q=a%20b&name=%C3%A9",
		},
		{
			name: "nothing to strip returns input",
			in:   "https://example.com/p?a=1&&b=2",
			want: "https://example.com/p?a=1&&b=2",
		},
		{
			name: "no query",
			in:   "https://example.com/p#top",
			want: "https://example.com/p#top",
		},
		{
			name: "unparsable returned unchanged",
			in:   "https://exa mple.com/%zz?utm_source=x",
			want: "https://exa mple.com/%zz?utm_source=x",
		},
		{
			name: "all deny-listed keys",
			in:   "https://e.com/?utm_source=1&utm_medium=1&utm_campaign=1&utm_term=1&utm_content=1&ref=1&referrer=1&source=1&campaign=1&affiliate=1&partner=1&gclid=1&fbclid=1&msclkid=1&twclid=1&keep=1",
			want: "https://e.com/?keep=1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"https://www.amazon.in/x/dp/B0B5B6PQCT?utm_source=wa&th=1&ref=sr_1",
		"https://example.com/p?a=1&&utm_term=x&&b=2#frag",
		"https://example.com/?utm_source=1",
		"not a url",
		"",
		"https://example.com/p?%zz=1&gclid=2",
	}

	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestNormalize_PreservesNonTrackingParams(t *testing.T) {
	in := "https://www.myntra.com/a/b/1996777?size=M&utm_campaign=x&color=blue&source=app"
	out := Normalize(in)

	u, err := url.Parse(out)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "M", q.Get("size"))
	assert.Equal(t, "blue", q.Get("color"))
	for key := range trackingParams {
		assert.False(t, q.Has(key), "tracking param %s survived", key)
	}
	assert.Equal(t, "/a/b/1996777", u.Path)
}

func TestExtractSharedURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "custom scheme share link",
			in:   "mybuy://share?url=https%3A%2F%2Fwww.amazon.in%2Fx%2Fdp%2FB0B5B6PQCT%3Fth%3D1",
			want: "https://www.amazon.in/x/dp/B0B5B6PQCT?th=1",
		},
		{
			name: "unencoded target keeps its query",
			in:   "mybuy://share?url=https://www.amazon.in/Foo/dp/B0ABC123?th=1&psc=1",
			want: "https://www.amazon.in/Foo/dp/B0ABC123?th=1&psc=1",
		},
		{
			name: "encoded nested query",
			in:   "mybuy://share?url=https%3A%2F%2Fwww.myntra.com%2Fshirts%2Fx%2F123%2Fbuy%3Fa%3D1%26b%3D2",
			want: "https://www.myntra.com/shirts/x/123/buy?a=1&b=2",
		},
		{
			name: "plus sign survives",
			in:   "mybuy://share?url=https://www.nykaa.com/lip+balm/p/42?skuId=7",
			want: "https://www.nykaa.com/lip+balm/p/42?skuId=7",
		},
		{
			name: "url param after another param",
			in:   "mybuy://share?from=app&url=https%3A%2F%2Fwww.ajio.com%2Fp%2F4690",
			want: "https://www.ajio.com/p/4690",
		},
		{
			name: "bad escape falls back to query parsing",
			in:   "mybuy://share?url=https://www.amazon.in/dp/B0ABC123%zz",
			want: "mybuy://share?url=https://www.amazon.in/dp/B0ABC123%zz",
		},
		{
			name: "direct url",
			in:   "  https://www.amazon.in/x/dp/B0B5B6PQCT  ",
			want: "https://www.amazon.in/x/dp/B0B5B6PQCT",
		},
		{
			name: "custom scheme without url param",
			in:   "mybuy://share?text=hello",
			want: "mybuy://share?text=hello",
		},
		{
			name: "custom scheme other host",
			in:   "mybuy://settings?url=https%3A%2F%2Fexample.com",
			want: "mybuy://settings?url=https%3A%2F%2Fexample.com",
		},
		{
			name: "plain text",
			in:   "check this out",
			want: "check this out",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractSharedURL(tt.in))
		})
	}
}

func TestClassify_TrimsBeforeNormalizing(t *testing.T) {
	c := Classify(" https://www.amazon.in/Foo/dp/B0ABC123?utm_source=x&keep=1\n")
	require.True(t, c.IsValid)
	assert.Equal(t, "https://www.amazon.in/Foo/dp/B0ABC123?keep=1", c.NormalizedURL)
}

func TestSiteName(t *testing.T) {
	name, ok := SiteName("https://www.flipkart.com/mobiles")
	assert.True(t, ok)
	assert.Equal(t, "Flipkart", name)

	_, ok = SiteName("https://www.ebay.com/itm/1")
	assert.False(t, ok)

	// Domain-only lookup; classification still rejects non-product pages.
	assert.Empty(t, Classify("https://www.flipkart.com/mobiles").SiteName())

	assert.True(t, IsProductURL("https://www.snapdeal.com/product/a-b/123"))
	assert.False(t, IsProductURL("https://www.snapdeal.com/search?q=a"))
}

func TestSites_Order(t *testing.T) {
	names := []string{}
	for _, s := range Sites() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"Amazon", "Flipkart", "Myntra", "Ajio", "Nykaa", "Meesho", "Snapdeal"}, names)
}
