// Package tourscrape reads tour statistics from the optional scraping
// microservice, which renders the catalog's per-artist tour table as HTML.
package tourscrape

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/sydlexius/encore/internal/provider"
	"github.com/sydlexius/encore/internal/version"
)

// Tour is one row of the tour statistics table.
type Tour struct {
	Name      string `json:"name"`
	ID        string `json:"id,omitempty"`
	ShowCount int    `json:"show_count"`
	FirstShow string `json:"first_show,omitempty"`
	LastShow  string `json:"last_show,omitempty"`
}

// Client talks to the scraping microservice.
type Client struct {
	client  *http.Client
	fetcher *provider.Fetcher
	logger  *slog.Logger
	baseURL string
	apiKey  string
}

// New creates a scraper client. An empty baseURL yields a client whose
// Enabled method reports false.
func New(fetcher *provider.Fetcher, baseURL, apiKey string, logger *slog.Logger) *Client {
	return &Client{
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		fetcher: fetcher,
		logger:  logger.With(slog.String("provider", string(provider.NameTourScrape))),
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

// Name returns the provider name.
func (c *Client) Name() provider.ProviderName { return provider.NameTourScrape }

// Enabled reports whether a scraper endpoint is configured.
func (c *Client) Enabled() bool { return c != nil && c.baseURL != "" }

// Tours fetches the tour table for a catalog artist slug.
func (c *Client) Tours(ctx context.Context, slug string) ([]Tour, error) {
	if !c.Enabled() {
		return nil, &provider.ErrProviderUnavailable{
			Provider: provider.NameTourScrape,
			Cause:    errors.New("scraper not configured"),
		}
	}
	if strings.TrimSpace(slug) == "" {
		return nil, &provider.ErrInvalidQuery{Provider: provider.NameTourScrape, Message: "artist slug is required"}
	}
	reqURL := c.baseURL + "/tours?" + url.Values{"artist": {slug}}.Encode()

	body, err := provider.Schedule(ctx, c.fetcher, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		if c.apiKey != "" {
			req.Header.Set("X-API-Key", c.apiKey)
		}
		req.Header.Set("Accept", "text/html")
		req.Header.Set("User-Agent", version.UserAgent())

		c.logger.Debug("requesting", slog.String("url", reqURL))

		resp, err := c.client.Do(req) //nolint:gosec // URL constructed from configured base + encoded slug
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &provider.ErrProviderUnavailable{Provider: provider.NameTourScrape, Cause: err}
		}
		defer resp.Body.Close() //nolint:errcheck

		if err := provider.CheckResponse(provider.NameTourScrape, resp, slug); err != nil {
			return nil, err
		}
		return io.ReadAll(io.LimitReader(resp.Body, 2*1024*1024))
	})
	if err != nil {
		return nil, err
	}
	return ParseTours(body)
}

// ParseTours extracts tour rows from the statistics page. Rows are read
// from table.tours; the columns are name, show count, first show and last
// show. A data-tour-id attribute on the row becomes the tour ID.
func ParseTours(html []byte) ([]Tour, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parsing tour page: %w", err)
	}

	var tours []Tour
	doc.Find("table.tours tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		name := normSpace(cells.Eq(0).Text())
		if name == "" {
			return
		}
		t := Tour{
			Name:      name,
			ShowCount: firstInt(cells.Eq(1).Text()),
		}
		if id, ok := row.Attr("data-tour-id"); ok {
			t.ID = strings.TrimSpace(id)
		}
		if cells.Length() > 2 {
			t.FirstShow = normSpace(cells.Eq(2).Text())
		}
		if cells.Length() > 3 {
			t.LastShow = normSpace(cells.Eq(3).Text())
		}
		tours = append(tours, t)
	})
	return tours, nil
}

func normSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// firstInt returns the first run of digits in s, ignoring thousands separators.
func firstInt(s string) int {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case (r == ',' || r == '.') && b.Len() > 0:
		default:
			if b.Len() > 0 {
				n, _ := strconv.Atoi(b.String())
				return n
			}
		}
	}
	n, _ := strconv.Atoi(b.String())
	return n
}
