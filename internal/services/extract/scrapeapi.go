package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/prospector/internal/common"
	"github.com/ternarybob/prospector/internal/models"
	"github.com/ternarybob/prospector/internal/services/limiter"
)

// coordsPattern pulls the place coordinates out of a detail URL.
var coordsPattern = regexp.MustCompile(`!3d(-?\d+\.?\d*)!4d(-?\d+\.?\d*)`)

// ScrapeAPIClient fetches rendered detail pages through the external
// scrape API. Outbound calls are capped by the client's own limiter,
// independent of the scheduler's detail limiter.
type ScrapeAPIClient struct {
	config      *common.ScrapeAPIConfig
	httpClient  *http.Client
	limit       *limiter.Limiter
	logger      arbor.ILogger
	backoffBase time.Duration
}

// NewScrapeAPIClient creates the REST client for the detail-scrape API.
func NewScrapeAPIClient(config *common.ScrapeAPIConfig, httpClient *http.Client, logger arbor.ILogger) *ScrapeAPIClient {
	return &ScrapeAPIClient{
		config:      config,
		httpClient:  httpClient,
		limit:       limiter.New(config.Concurrency),
		logger:      logger,
		backoffBase: 2 * time.Second,
	}
}

// FetchDocument retrieves the rendered detail page, retrying retryable
// failures with exponential backoff (2s, 4s, 8s) up to the configured
// retry count.
func (c *ScrapeAPIClient) FetchDocument(ctx context.Context, detailURL string) (*goquery.Document, error) {
	var doc *goquery.Document
	err := c.limit.Do(ctx, func() error {
		var fetchErr error
		doc, fetchErr = c.fetchWithRetry(ctx, detailURL)
		return fetchErr
	})
	return doc, err
}

func (c *ScrapeAPIClient) fetchWithRetry(ctx context.Context, detailURL string) (*goquery.Document, error) {
	attempts := 1 + c.config.MaxRetries
	backoff := c.backoffBase

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			c.logger.Debug().
				Int("attempt", attempt).
				Str("url", detailURL).
				Msg("Retrying scrape API call")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff *= 2
		}

		doc, err := c.fetchOnce(ctx, detailURL)
		if err == nil {
			return doc, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *ScrapeAPIClient) fetchOnce(ctx context.Context, detailURL string) (*goquery.Document, error) {
	endpoint := fmt.Sprintf("%s?api_key=%s&render_js=true&url=%s",
		c.config.BaseURL, url.QueryEscape(c.config.APIKey), url.QueryEscape(detailURL))

	reqCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build scrape API request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scrape API call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseFailure, err)
	}
	return doc, nil
}

// ParseRecord builds the business record from a rendered detail page.
// Returns (nil, nil) when the name cannot be parsed; the record is
// dropped, not failed.
func ParseRecord(doc *goquery.Document, sel Selectors, req *RecordContext) (*models.BusinessRecord, error) {
	name := strings.TrimSpace(doc.Find(sel.Name).First().Text())
	if name == "" {
		return nil, nil
	}

	record := &models.BusinessRecord{
		Name:           name,
		Category:       strings.TrimSpace(doc.Find(sel.Category).First().Text()),
		SearchTerm:     req.SearchTerm,
		SearchType:     SearchType,
		SearchLocation: req.SearchLocation,
		URL:            req.DetailURL,
	}

	record.Address = cleanLabel(doc.Find(sel.Address).First().Text())
	record.Phone = cleanLabel(doc.Find(sel.Phone).First().Text())
	if href, ok := doc.Find(sel.Website).First().Attr("href"); ok {
		record.Website = href
	}
	if rating := strings.TrimSpace(doc.Find(sel.Rating).First().Text()); rating != "" {
		if v, ok := parseRating(rating); ok {
			record.Rating = &v
		}
	}
	if count, ok := doc.Find(sel.RatingCount).First().Attr("aria-label"); ok {
		record.RatingCount = digitsOnly(count)
	}

	if m := coordsPattern.FindStringSubmatch(req.DetailURL); m != nil {
		if lat, ok := parseFloat(m[1]); ok {
			record.Latitude = &lat
		}
		if lng, ok := parseFloat(m[2]); ok {
			record.Longitude = &lng
		}
	}

	return record, nil
}
