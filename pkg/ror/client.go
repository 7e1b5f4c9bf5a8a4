// Package ror provides a client for the Research Organization Registry
// organization search API.
package ror

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// DefaultBaseURL is the ROR v2 API root.
const DefaultBaseURL = "https://api.ror.org/v2"

var (
	// ErrRateLimited is returned on HTTP 429.
	ErrRateLimited = eris.New("ror: rate limited")
	// ErrUnavailable is returned when the API cannot be reached or answers
	// with any other non-2xx status.
	ErrUnavailable = eris.New("ror: unavailable")
)

// Client defines the ROR operations used by the geo enricher.
type Client interface {
	// SearchOrganizations runs a free-text organization query and returns
	// the candidates in the API's ranking order.
	SearchOrganizations(ctx context.Context, query string) ([]Organization, error)
}

// Option configures the ROR client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithContactEmail identifies the caller for the provider's polite pool.
func WithContactEmail(email string) Option {
	return func(c *httpClient) {
		c.contact = strings.TrimSpace(email)
	}
}

// WithUserAgent sets the product part of the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *httpClient) {
		c.userAgent = ua
	}
}

type httpClient struct {
	baseURL   string
	contact   string
	userAgent string
	http      *http.Client
}

// NewClient creates a new ROR client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL:   DefaultBaseURL,
		userAgent: "university-cli/1.0",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type searchResponse struct {
	NumberOfResults int            `json:"number_of_results"`
	Items           []Organization `json:"items"`
}

// SearchOrganizations queries GET {base}/organizations?query=...
func (c *httpClient) SearchOrganizations(ctx context.Context, query string) ([]Organization, error) {
	endpoint := c.baseURL + "/organizations?query=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, eris.Wrap(err, "ror: create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.agent())
	if c.contact != "" {
		req.Header.Set("From", c.contact)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "ror: search")
		}
		return nil, eris.Wrapf(ErrUnavailable, "search %q: %v", query, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, eris.Wrapf(ErrRateLimited, "search %q (retry-after %q)", query, resp.Header.Get("Retry-After"))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, eris.Wrapf(ErrUnavailable, "search %q: status %d: %s", query, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, eris.Wrapf(ErrUnavailable, "search %q: decode response: %v", query, err)
	}
	return out.Items, nil
}

func (c *httpClient) agent() string {
	if c.contact == "" {
		return c.userAgent
	}
	return c.userAgent + " (mailto:" + c.contact + ")"
}
