package extract

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/prospector/internal/common"
	"github.com/ternarybob/prospector/internal/interfaces"
	"github.com/ternarybob/prospector/internal/models"
	"github.com/ternarybob/prospector/internal/services/browser"
)

// detailNavRetryExtension widens the timeout on the relaxed retry
// navigation after the primary wait times out.
const detailNavRetryExtension = 10 * time.Second

// Adapter implements interfaces.DetailExtractor. The base record always
// comes from the scrape API; a browser page is acquired only when review
// extraction is requested.
type Adapter struct {
	api       *ScrapeAPIClient
	miner     *EmailMiner
	session   *browser.Session
	selectors Selectors
	config    *common.BrowserConfig
	logger    arbor.ILogger
}

// NewAdapter wires the extraction adapter. session may be nil when the
// caller never requests the page path.
func NewAdapter(api *ScrapeAPIClient, miner *EmailMiner, session *browser.Session, config *common.BrowserConfig, logger arbor.ILogger) *Adapter {
	return &Adapter{
		api:       api,
		miner:     miner,
		session:   session,
		selectors: DefaultSelectors(),
		config:    config,
		logger:    logger,
	}
}

// NeedsPage reports whether review extraction forces the page path.
func (a *Adapter) NeedsPage(params *models.ScrapeParams) bool {
	return params.ReviewTimeRange > 0 || params.ExtractNegativeReviews
}

// Extract produces the business record for one detail URL. A nil record
// with nil error means the record was dropped.
func (a *Adapter) Extract(ctx context.Context, req *interfaces.DetailRequest) (*models.BusinessRecord, error) {
	record, err := a.baseRecord(ctx, req)
	if err != nil || record == nil {
		return nil, err
	}

	if req.Params.OnlyWithoutWebsite && record.Website != "" {
		a.logger.Debug().Str("name", record.Name).Msg("Dropping record with website")
		return nil, nil
	}

	if req.Params.IsExtractEmail && record.Website != "" {
		email, mineErr := a.miner.Mine(ctx, record.Website)
		if mineErr != nil {
			a.logger.Debug().Err(mineErr).Str("website", record.Website).Msg("Email mining failed")
		} else if email != "" {
			record.Email = email
			record.EmailStatus = EmailStatusFound
		}
	}

	if !a.NeedsPage(req.Params) {
		return record, nil
	}

	reviews, err := a.pageReviews(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(reviews) > 0 {
		record.FilteredReviews = reviews
		record.FilteredReviewCount = len(reviews)
	}
	return record, nil
}

func (a *Adapter) baseRecord(ctx context.Context, req *interfaces.DetailRequest) (*models.BusinessRecord, error) {
	doc, err := a.api.FetchDocument(ctx, req.URL)
	if err != nil {
		return nil, err
	}

	record, err := ParseRecord(doc, a.selectors, &RecordContext{
		DetailURL:      req.URL,
		SearchTerm:     req.Params.Keyword,
		SearchLocation: req.SearchLocation,
	})
	if err != nil {
		return nil, err
	}
	if record == nil {
		a.logger.Debug().Str("url", req.URL).Msg("Dropping record without a name")
		return nil, nil
	}

	// Tier-A card metadata fills gaps the detail page did not render.
	if record.Rating == nil && req.Listing.Rating != nil {
		record.Rating = req.Listing.Rating
	}
	return record, nil
}

// pageReviews runs the review extraction on a pooled page, rotating the
// session on session-class failures via WithPage.
func (a *Adapter) pageReviews(ctx context.Context, req *interfaces.DetailRequest) ([]models.Review, error) {
	var reviews []models.Review
	err := a.session.WithPage(ctx, func(page browser.Page) error {
		if err := a.navigate(ctx, page, req.URL); err != nil {
			return err
		}

		raw, err := extractReviews(ctx, page, a.selectors, req.Params)
		if err != nil {
			return err
		}
		reviews = filterReviews(raw, req.Params, time.Now())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reviews, nil
}

// navigate tries the primary DOM-content-loaded wait, then retries once
// with the relaxed network-idle wait and an extended timeout.
func (a *Adapter) navigate(ctx context.Context, page browser.Page, url string) error {
	err := page.Navigate(ctx, url, browser.WaitDOMContentLoaded, a.config.DetailNavTimeout)
	if err == nil {
		return nil
	}
	if !IsRetryable(err) {
		return err
	}

	a.logger.Debug().Err(err).Str("url", url).Msg("Detail navigation timed out, retrying with relaxed wait")
	return page.Navigate(ctx, url, browser.WaitNetworkIdle, a.config.DetailNavTimeout+detailNavRetryExtension)
}
