package extraction

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

var (
	nonPriceChars = regexp.MustCompile(`[^0-9.]`)
	leadingFloat  = regexp.MustCompile(`^(\d+(\.\d*)?|\.\d+)`)
)

// Run applies the script's field policy to an already parsed document and
// returns the message the in-page rendition would post. It never panics; a
// failure while reading the DOM is recorded in Message.Error.
func (s Script) Run(doc *goquery.Selection) (msg Message) {
	defer func() {
		if r := recover(); r != nil {
			errText := fmt.Sprint(r)
			msg.Error = &errText
		}
	}()

	if doc == nil {
		errText := "document not loaded"
		msg.Error = &errText
		return msg
	}

	if el := firstPresent(doc, s.TitleSelectors); el != nil {
		title := strings.TrimSpace(el.Text())
		msg.Title = &title
	}

	if el := firstPresent(doc, s.PriceSelectors); el != nil {
		msg.Price = parsePrice(el.Text(), fractionText(doc, s.FractionSelectors))
	}

	if el := firstPresent(doc, s.ImageSelectors); el != nil {
		for _, attr := range s.ImageAttributes {
			if v, ok := el.Attr(attr); ok && strings.TrimSpace(v) != "" {
				image := strings.TrimSpace(v)
				msg.Image = &image
				break
			}
		}
	}

	if desc := s.description(doc); desc != "" {
		desc = TruncateDescription(desc)
		msg.Description = &desc
	}

	return msg
}

func (s Script) description(doc *goquery.Selection) string {
	for _, sel := range s.DescriptionSelectors {
		el := doc.Find(sel).First()
		if el.Length() == 0 {
			continue
		}

		if s.BulletSelector != "" {
			var bullets []string
			el.Find(s.BulletSelector).Each(func(_ int, b *goquery.Selection) {
				if t := strings.TrimSpace(b.Text()); t != "" {
					bullets = append(bullets, t)
				}
			})
			if len(bullets) > 0 {
				return strings.Join(bullets, BulletSeparator)
			}
		}

		if text := collapseWhitespace(el.Text()); text != "" {
			return text
		}
	}
	return ""
}

// TruncateDescription caps s at MaxDescriptionLength characters and appends
// ContinuationMarker when anything was cut.
func TruncateDescription(s string) string {
	if utf8.RuneCountInString(s) <= MaxDescriptionLength {
		return s
	}
	runes := []rune(s)
	return string(runes[:MaxDescriptionLength]) + ContinuationMarker
}

// parsePrice joins a whole-number part with its fraction when the whole part
// carries no decimals, strips everything but digits and dots, and reads the
// longest leading decimal. Nil when nothing numeric is left.
func parsePrice(whole, fraction string) *float64 {
	text := strings.Trim(nonPriceChars.ReplaceAllString(whole, ""), ".")
	if frac := nonPriceChars.ReplaceAllString(fraction, ""); frac != "" && text != "" && !strings.Contains(text, ".") {
		text += "." + frac
	}

	m := leadingFloat.FindString(text)
	if m == "" {
		return nil
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return nil
	}
	return &v
}

func fractionText(doc *goquery.Selection, selectors []string) string {
	if el := firstPresent(doc, selectors); el != nil {
		return el.Text()
	}
	return ""
}

func firstPresent(doc *goquery.Selection, selectors []string) *goquery.Selection {
	for _, sel := range selectors {
		if el := doc.Find(sel).First(); el.Length() > 0 {
			return el
		}
	}
	return nil
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
