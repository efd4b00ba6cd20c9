package extraction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/template"
)

// DefaultBinding is the page-level function the rendered script posts to.
const DefaultBinding = "__wishlistPostMessage"

type scriptConfig struct {
	SettleDelayMs        int64    `json:"settleDelayMs"`
	TitleSelectors       []string `json:"title"`
	PriceSelectors       []string `json:"price"`
	FractionSelectors    []string `json:"fraction"`
	ImageSelectors       []string `json:"image"`
	ImageAttributes      []string `json:"imageAttributes"`
	DescriptionSelectors []string `json:"description"`
	BulletSelector       string   `json:"bullet"`
	MaxDescription       int      `json:"maxDescription"`
	Marker               string   `json:"marker"`
	Separator            string   `json:"separator"`
}

// The program mirrors Script.Run. It always posts exactly one message after
// the settle delay; exceptions end up in result.error.
var jsTemplate = template.Must(template.New("extract").Parse(`(() => {
  const cfg = {{.Config}};
  const binding = {{.Binding}};
  const post = (result) => {
    const fn = window[binding];
    if (typeof fn === 'function') fn(JSON.stringify(result));
  };
  const first = (selectors) => {
    for (const sel of selectors) {
      const el = document.querySelector(sel);
      if (el) return el;
    }
    return null;
  };
  setTimeout(() => {
    const result = { title: null, price: null, description: null, image: null };
    try {
      const titleEl = first(cfg.title);
      if (titleEl) result.title = (titleEl.textContent || '').trim();

      const priceEl = first(cfg.price);
      if (priceEl) {
        let text = (priceEl.textContent || '').replace(/[^0-9.]/g, '').replace(/^\.+|\.+$/g, '');
        const fractionEl = first(cfg.fraction);
        const frac = fractionEl ? (fractionEl.textContent || '').replace(/[^0-9.]/g, '') : '';
        if (frac && text && text.indexOf('.') < 0) text += '.' + frac;
        const value = parseFloat(text);
        result.price = Number.isFinite(value) ? value : null;
      }

      const imgEl = first(cfg.image);
      if (imgEl) {
        for (const attr of cfg.imageAttributes) {
          const v = (imgEl.getAttribute(attr) || '').trim();
          if (v) { result.image = v; break; }
        }
      }

      let description = '';
      for (const sel of cfg.description) {
        const el = document.querySelector(sel);
        if (!el) continue;
        if (cfg.bullet) {
          const bullets = Array.from(el.querySelectorAll(cfg.bullet))
            .map((b) => (b.innerText || b.textContent || '').trim())
            .filter((t) => t.length > 0);
          if (bullets.length > 0) { description = bullets.join(cfg.separator); break; }
        }
        const text = (el.innerText || el.textContent || '').replace(/\s+/g, ' ').trim();
        if (text) { description = text; break; }
      }
      if (description) {
        const chars = Array.from(description);
        result.description = chars.length > cfg.maxDescription
          ? chars.slice(0, cfg.maxDescription).join('') + cfg.marker
          : description;
      }
    } catch (e) {
      result.error = String(e && e.message ? e.message : e);
    }
    post(result);
  }, cfg.settleDelayMs);
})();
`))

// JavaScript renders the in-page program. It calls window[binding] with the
// JSON-encoded message once the settle delay has elapsed.
func (s Script) JavaScript(binding string) (string, error) {
	if binding == "" {
		binding = DefaultBinding
	}

	cfg, err := json.Marshal(scriptConfig{
		SettleDelayMs:        s.SettleDelay.Milliseconds(),
		TitleSelectors:       nonNil(s.TitleSelectors),
		PriceSelectors:       nonNil(s.PriceSelectors),
		FractionSelectors:    nonNil(s.FractionSelectors),
		ImageSelectors:       nonNil(s.ImageSelectors),
		ImageAttributes:      nonNil(s.ImageAttributes),
		DescriptionSelectors: nonNil(s.DescriptionSelectors),
		BulletSelector:       s.BulletSelector,
		MaxDescription:       MaxDescriptionLength,
		Marker:               ContinuationMarker,
		Separator:            BulletSeparator,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode script config: %w", err)
	}
	name, err := json.Marshal(binding)
	if err != nil {
		return "", fmt.Errorf("failed to encode binding name: %w", err)
	}

	var buf bytes.Buffer
	if err := jsTemplate.Execute(&buf, map[string]string{
		"Config":  string(cfg),
		"Binding": string(name),
	}); err != nil {
		return "", fmt.Errorf("failed to render script: %w", err)
	}
	return buf.String(), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
