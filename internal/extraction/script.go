package extraction

import (
	"strings"
	"time"
)

const (
	DefaultSettleDelay   = 3 * time.Second
	MaxDescriptionLength = 500
	ContinuationMarker   = "..."
	BulletSeparator      = "\n• "
)

// Script is a declarative, site-specific extraction definition. Each field
// lists candidates in priority order.
type Script struct {
	Site                 string
	SettleDelay          time.Duration
	TitleSelectors       []string
	PriceSelectors       []string
	FractionSelectors    []string
	ImageSelectors       []string
	ImageAttributes      []string
	DescriptionSelectors []string
	BulletSelector       string
}

// WithSettleDelay returns a copy of s that waits d before reading the DOM.
func (s Script) WithSettleDelay(d time.Duration) Script {
	s.SettleDelay = d
	return s
}

var amazonScript = Script{
	Site:        "Amazon",
	SettleDelay: DefaultSettleDelay,
	TitleSelectors: []string{
		"#productTitle",
		"#title",
	},
	PriceSelectors: []string{
		".a-price-whole",
		".priceToPay",
		"#priceblock_ourprice",
		"#priceblock_dealprice",
	},
	FractionSelectors: []string{
		".a-price-fraction",
	},
	ImageSelectors: []string{
		"#landingImage",
		"#imgBlkFront",
		"meta[property='og:image']",
	},
	ImageAttributes: []string{"src", "data-old-hires", "content"},
	DescriptionSelectors: []string{
		"#productDescription",
		"#feature-bullets",
		"#descriptionAndDetails",
		".product-description",
		"#aplus",
		"#bookDescription_feature_div",
	},
	BulletSelector: ".a-list-item, .a-spacing-small",
}

// Vendors other than Amazon keep the Amazon candidates as a tail so that
// mirrored or white-labelled pages still yield something.
var scripts = map[string]Script{
	"amazon": amazonScript,
	"flipkart": vendorScript("Flipkart",
		[]string{"span.VU-ZEz", "span.B_NuCI", "h1"},
		[]string{"div.Nx9bqj", "div._30jeq3"},
		[]string{"img.DByuf4", "img._396cs4"},
		[]string{"div._4gvKMe", "div._1mXcCf", "div._2418kt"},
		"li"),
	"myntra": vendorScript("Myntra",
		[]string{"h1.pdp-name", "h1.pdp-title"},
		[]string{"span.pdp-price strong", "span.pdp-price"},
		[]string{"img.image-grid-image", "picture img"},
		[]string{"div.pdp-product-description-content", "div.pdp-productDescriptorsContainer"},
		"li"),
	"ajio": vendorScript("Ajio",
		[]string{"h1.prod-name", "h2.brand-name"},
		[]string{"div.prod-sp", "div.prod-price-section"},
		[]string{"img.rilrtl-lazy-img", "div.zoom-wrap img"},
		[]string{"ul.prod-list", "section.prod-desc"},
		"li"),
	"nykaa": vendorScript("Nykaa",
		[]string{"h1.css-1gc4x7i", "h1"},
		[]string{"span.css-1jczs19", "span.css-u05rr"},
		[]string{"div.productSelectedImage img", "img.css-43m2vm"},
		[]string{"div#content-details", "div.content-details"},
		"li"),
	"meesho": vendorScript("Meesho",
		[]string{"span.ShippingInfo__ProductName", "h1"},
		[]string{"h4.ProductPrice", "h4"},
		[]string{"img.ProductImage", "picture img"},
		[]string{"div.ProductDescription__DetailsCardStyled", "div.ProductDescription"},
		"p"),
	"snapdeal": vendorScript("Snapdeal",
		[]string{"h1.pdp-e-i-head", "h1"},
		[]string{"span.payBlkBig", "span.pdp-final-price"},
		[]string{"img.cloudzoom", "#bx-slider-left-image-panel img"},
		[]string{"div.detailssubbox", "div.spec-body"},
		"li"),
}

func vendorScript(site string, titles, prices, images, descriptions []string, bullet string) Script {
	return Script{
		Site:                 site,
		SettleDelay:          DefaultSettleDelay,
		TitleSelectors:       append(titles, amazonScript.TitleSelectors...),
		PriceSelectors:       append(prices, amazonScript.PriceSelectors...),
		FractionSelectors:    amazonScript.FractionSelectors,
		ImageSelectors:       append(images, amazonScript.ImageSelectors...),
		ImageAttributes:      amazonScript.ImageAttributes,
		DescriptionSelectors: append(descriptions, amazonScript.DescriptionSelectors...),
		BulletSelector:       bullet,
	}
}

// ScriptFor returns the script registered for site, falling back to the
// Amazon script for unknown names.
func ScriptFor(site string) Script {
	if s, ok := scripts[strings.ToLower(site)]; ok {
		return s
	}
	return amazonScript
}

// DefaultScript is the Amazon script.
func DefaultScript() Script {
	return amazonScript
}
