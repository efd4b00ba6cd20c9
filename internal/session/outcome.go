package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/maltedev/wishlist-scraper/internal/models"
)

var (
	ErrNetwork   = errors.New("page failed to load")
	ErrTimeout   = errors.New("no result within the expected window")
	ErrNoTitle   = errors.New("no product title found")
	ErrMalformed = errors.New("malformed extraction result")
	ErrAbandoned = errors.New("session abandoned")
)

type Reason string

const (
	ReasonNetworkError      Reason = "network_error"
	ReasonTimeout           Reason = "timeout"
	ReasonNoTitleFound      Reason = "no_title_found"
	ReasonMalformedResponse Reason = "malformed_response"
	ReasonAbandoned         Reason = "abandoned"
)

// Message returns a user-facing explanation.
func (r Reason) Message() string {
	switch r {
	case ReasonNetworkError:
		return "Could not load the product page. Check your connection and try again."
	case ReasonTimeout:
		return "The product page took too long to respond."
	case ReasonNoTitleFound:
		return "Scraping failed: no product title was found on the page."
	case ReasonMalformedResponse:
		return "The page returned data that could not be read."
	case ReasonAbandoned:
		return "The extraction was cancelled."
	default:
		return "Unknown extraction failure."
	}
}

func (r Reason) sentinel() error {
	switch r {
	case ReasonNetworkError:
		return ErrNetwork
	case ReasonTimeout:
		return ErrTimeout
	case ReasonNoTitleFound:
		return ErrNoTitle
	case ReasonMalformedResponse:
		return ErrMalformed
	default:
		return ErrAbandoned
	}
}

// Outcome is the single terminal result of one Start call. Product is set
// on success; Reason is set on failure.
type Outcome struct {
	URL      string
	Product  *models.ProductData
	Reason   Reason
	Cause    error
	Duration time.Duration
}

func Success(url string, p models.ProductData) Outcome {
	return Outcome{URL: url, Product: &p}
}

func Failure(url string, reason Reason, cause error) Outcome {
	return Outcome{URL: url, Reason: reason, Cause: cause}
}

func (o Outcome) Succeeded() bool {
	return o.Product != nil
}

// Err is nil on success and otherwise wraps the reason's sentinel error.
func (o Outcome) Err() error {
	if o.Succeeded() {
		return nil
	}
	if o.Cause != nil {
		return fmt.Errorf("%w: %v", o.Reason.sentinel(), o.Cause)
	}
	return o.Reason.sentinel()
}

// Retryable reports whether a caller may reasonably try the same URL again.
func (o Outcome) Retryable() bool {
	return o.Reason == ReasonNetworkError || o.Reason == ReasonTimeout
}
