// Package scrape pulls title, picture and price hints out of a product
// page so owners can prefill new items.
package scrape

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultTimeout bounds one page fetch.
const DefaultTimeout = 10 * time.Second

const userAgent = "Mozilla/5.0 (compatible; darila/1.0; +https://github.com/erazemk/darila)"

var (
	// ErrInvalidURL is returned for anything but an absolute http(s) URL.
	ErrInvalidURL = errors.New("invalid url")
	// ErrFetch is returned when the page cannot be retrieved.
	ErrFetch = errors.New("could not fetch url")
)

// Result holds whatever could be found. Missing fields stay nil.
type Result struct {
	Title      *string `json:"title"`
	ImageURL   *string `json:"image_url"`
	PriceCents *int64  `json:"price_cents"`
	Currency   *string `json:"currency"`
}

// Scraper fetches pages over HTTP.
type Scraper struct {
	client *resty.Client
}

// New creates a scraper whose fetches give up after timeout.
func New(timeout time.Duration) *Scraper {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5)).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml")

	return &Scraper{client: client}
}

// Scrape fetches rawURL and extracts its metadata.
func (s *Scraper) Scrape(ctx context.Context, rawURL string) (*Result, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ErrInvalidURL
	}

	resp, err := s.client.R().SetContext(ctx).Get(u.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: status %d", ErrFetch, resp.StatusCode())
	}

	return Parse(bytes.NewReader(resp.Body()))
}
