package linkdetect

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

var (
	ErrInvalidURL = errors.New("not a supported product URL")
)

// Site is one supported e-commerce vendor.
type Site struct {
	Name    string
	Domains []string
	Pattern *regexp.Regexp
}

// Classification is the result of Classify. Site and NormalizedURL are only
// set when IsValid is true.
type Classification struct {
	IsValid       bool
	Site          *Site
	NormalizedURL string
}

// SiteName returns the matched site's name or "".
func (c Classification) SiteName() string {
	if c.Site == nil {
		return ""
	}
	return c.Site.Name
}

// The registry is matched in order and never mutated.
var registry = []*Site{
	{
		Name:    "Amazon",
		Domains: []string{"amazon.in", "amazon.com"},
		Pattern: regexp.MustCompile(`(?i)amazon\.(in|com)/(?:.*/)?(dp|gp/product)/[A-Z0-9]+`),
	},
	{
		Name:    "Flipkart",
		Domains: []string{"flipkart.com"},
		Pattern: regexp.MustCompile(`(?i)flipkart\.com/.*/p/[a-z0-9]+`),
	},
	{
		Name:    "Myntra",
		Domains: []string{"myntra.com"},
		Pattern: regexp.MustCompile(`(?i)myntra\.com/.*/[a-z0-9-]+/[0-9]+`),
	},
	{
		Name:    "Ajio",
		Domains: []string{"ajio.com"},
		Pattern: regexp.MustCompile(`(?i)ajio\.com/.*/[a-z0-9-]+/p/[0-9]+`),
	},
	{
		Name:    "Nykaa",
		Domains: []string{"nykaa.com"},
		Pattern: regexp.MustCompile(`(?i)nykaa\.com/.*/p/[a-z0-9-]+`),
	},
	{
		Name:    "Meesho",
		Domains: []string{"meesho.com"},
		Pattern: regexp.MustCompile(`(?i)meesho\.com/.*/[a-z0-9-]+/[0-9]+`),
	},
	{
		Name:    "Snapdeal",
		Domains: []string{"snapdeal.com"},
		Pattern: regexp.MustCompile(`(?i)snapdeal\.com/product/[a-z0-9-]+/[0-9]+`),
	},
}

var trackingParams = map[string]struct{}{
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
	"utm_term":     {},
	"utm_content":  {},
	"ref":          {},
	"referrer":     {},
	"source":       {},
	"campaign":     {},
	"affiliate":    {},
	"partner":      {},
	"gclid":        {},
	"fbclid":       {},
	"msclkid":      {},
	"twclid":       {},
}

// Sites returns the supported sites in match order.
func Sites() []Site {
	out := make([]Site, len(registry))
	for i, s := range registry {
		out[i] = *s
	}
	return out
}

// Classify decides whether rawURL is a product page of a supported site.
func Classify(rawURL string) Classification {
	rawURL = strings.TrimSpace(rawURL)
	u, ok := parseWebURL(rawURL)
	if !ok {
		return Classification{}
	}

	host := strings.ToLower(u.Hostname())
	for _, site := range registry {
		if !site.matchesHost(host) {
			continue
		}
		if site.Pattern.MatchString(rawURL) {
			return Classification{
				IsValid:       true,
				Site:          site,
				NormalizedURL: Normalize(rawURL),
			}
		}
	}

	return Classification{}
}

// SiteName returns the name of the first site whose domain matches rawURL,
// regardless of whether the path is a product page. It is used to label
// entries whose source URL was never classified, such as manual additions.
// Classification.SiteName is empty unless the URL is a product page.
func SiteName(rawURL string) (string, bool) {
	u, ok := parseWebURL(rawURL)
	if !ok {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	for _, site := range registry {
		if site.matchesHost(host) {
			return site.Name, true
		}
	}
	return "", false
}

func IsProductURL(rawURL string) bool {
	return Classify(rawURL).IsValid
}

// Normalize strips tracking parameters from the query string. Remaining
// parameters keep their order and encoding; path and fragment are untouched.
// Input that does not parse is returned unchanged.
func Normalize(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.RawQuery == "" {
		return rawURL
	}

	base, fragment := rawURL, ""
	if i := strings.IndexByte(rawURL, '#'); i >= 0 {
		base, fragment = rawURL[:i], rawURL[i:]
	}
	q := strings.IndexByte(base, '?')
	if q < 0 {
		return rawURL
	}
	prefix, query := base[:q], base[q+1:]

	pairs := strings.Split(query, "&")
	kept := make([]string, 0, len(pairs))
	removed := false
	for _, pair := range pairs {
		if pair == "" {
			continue
		}
		if isTrackingParam(pairKey(pair)) {
			removed = true
			continue
		}
		kept = append(kept, pair)
	}

	if !removed {
		return rawURL
	}
	if len(kept) == 0 {
		return prefix + fragment
	}
	return prefix + "?" + strings.Join(kept, "&") + fragment
}

// ExtractSharedURL unwraps a custom-scheme share link of the form
// scheme://share?url=<target>. Everything after url= is the target, so an
// unencoded target keeps its own query string. Anything else is returned
// trimmed.
func ExtractSharedURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || isWebScheme(u.Scheme) {
		return raw
	}
	if u.Host != "share" && strings.Trim(u.Path, "/") != "share" && u.Opaque != "share" {
		return raw
	}
	if target := sharedTarget(raw); target != "" {
		return target
	}
	if target := u.Query().Get("url"); target != "" {
		return target
	}
	return raw
}

// sharedTarget returns the path-unescaped text following the first url=
// parameter of raw, or "" if there is none or it does not unescape.
func sharedTarget(raw string) string {
	q := strings.IndexByte(raw, '?')
	if q < 0 {
		return ""
	}
	query := raw[q+1:]
	i := 0
	for {
		j := strings.Index(query[i:], "url=")
		if j < 0 {
			return ""
		}
		i += j
		if i == 0 || query[i-1] == '&' {
			break
		}
		i += len("url=")
	}
	target, err := url.PathUnescape(query[i+len("url="):])
	if err != nil {
		return ""
	}
	return strings.TrimSpace(target)
}

func (s *Site) matchesHost(host string) bool {
	for _, d := range s.Domains {
		if strings.Contains(host, d) {
			return true
		}
	}
	return false
}

func parseWebURL(rawURL string) (*url.URL, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, false
	}
	if !isWebScheme(u.Scheme) || u.Hostname() == "" {
		return nil, false
	}
	return u, true
}

func isWebScheme(scheme string) bool {
	scheme = strings.ToLower(scheme)
	return scheme == "http" || scheme == "https"
}

func pairKey(pair string) string {
	key := pair
	if i := strings.IndexByte(pair, '='); i >= 0 {
		key = pair[:i]
	}
	if unescaped, err := url.QueryUnescape(key); err == nil {
		return unescaped
	}
	return key
}

func isTrackingParam(key string) bool {
	if _, ok := trackingParams[key]; ok {
		return true
	}
	return strings.HasPrefix(key, "utm_")
}
