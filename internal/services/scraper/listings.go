package scraper

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/prospector/internal/models"
	"github.com/ternarybob/prospector/internal/services/browser"
	"github.com/ternarybob/prospector/internal/services/extract"
)

const (
	scrollMaxSteps      = 40
	scrollStagnationCap = 5
	scrollStepDelay     = 500 * time.Millisecond
	ratingRenderDelay   = 1200 * time.Millisecond
	ratingWaitTimeout   = 5 * time.Second
)

var (
	listingRatingPattern  = regexp.MustCompile(`(\d+\.?\d*) stars?`)
	ariaReviewsPattern    = regexp.MustCompile(`(\d{1,3}(?:,\d{3})*|\d+) Reviews?`)
	siblingReviewsPattern = regexp.MustCompile(`\(([\d,]+)\)`)
)

// ListingSearcher collects result cards off an already-navigated search
// page. Implemented by panelSearcher; tests inject fakes.
type ListingSearcher interface {
	Search(ctx context.Context, page browser.Page, minCards int) ([]models.Listing, error)
}

// rawCard is the evaluator's per-card output before Go-side parsing.
type rawCard struct {
	URL         string `json:"url"`
	Name        string `json:"name"`
	RatingLabel string `json:"ratingLabel"`
	AriaLabel   string `json:"ariaLabel"`
	SiblingText string `json:"siblingText"`
}

// panelSearcher drives the results panel: scrolls until enough cards
// are loaded, waits for ratings to render, then parses the cards.
type panelSearcher struct {
	logger arbor.ILogger
	sel    extract.Selectors
}

// NewPanelSearcher creates the production tier-A searcher.
func NewPanelSearcher(logger arbor.ILogger) ListingSearcher {
	return &panelSearcher{logger: logger, sel: extract.DefaultSelectors()}
}

func (s *panelSearcher) Search(ctx context.Context, page browser.Page, minCards int) ([]models.Listing, error) {
	if err := s.scrollResults(ctx, page, minCards); err != nil {
		return nil, err
	}

	// Review counts render asynchronously after the rating badges.
	if err := page.WaitVisible(ctx, s.sel.ResultRating, ratingWaitTimeout); err != nil && browser.IsSessionError(err) {
		return nil, err
	}
	select {
	case <-time.After(ratingRenderDelay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var cards []rawCard
	if err := page.Evaluate(ctx, s.cardCollector(), &cards); err != nil {
		return nil, fmt.Errorf("failed to collect result cards: %w", err)
	}
	return parseCards(cards), nil
}

// scrollResults scrolls the panel with a stagnation-aware strategy:
// scroll magnitude grows while the count is flat, small back-scrolls
// nudge lazy loading, and a panel-agnostic window scroll is the last
// resort. Target-closed class errors are tolerated; we keep whatever
// loaded.
func (s *panelSearcher) scrollResults(ctx context.Context, page browser.Page, minCards int) error {
	lastCount, stagnant := -1, 0
	for step := 0; step < scrollMaxSteps; step++ {
		var count int
		if err := page.Evaluate(ctx, s.panelScroller(stagnant), &count); err != nil {
			if browser.IsSessionError(err) {
				return err
			}
			s.logger.Debug().Err(err).Msg("Scroll evaluation failed, keeping loaded cards")
			return nil
		}

		if count >= minCards {
			return nil
		}
		if count == lastCount {
			stagnant++
			if stagnant >= scrollStagnationCap {
				s.logger.Debug().
					Int("cards", count).
					Int("wanted", minCards).
					Msg("Results panel exhausted before card target")
				return nil
			}
		} else {
			stagnant = 0
			lastCount = count
		}

		select {
		case <-time.After(scrollStepDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// panelScroller scrolls further the longer the count has been flat and
// back-scrolls a little to trigger lazy loads.
func (s *panelSearcher) panelScroller(stagnant int) string {
	magnitude := 1000 * (stagnant + 1)
	return fmt.Sprintf(`(() => {
		const panel = document.querySelector(%q);
		if (panel) {
			panel.scrollBy(0, %d);
			if (%d > 0) { panel.scrollBy(0, -120); panel.scrollBy(0, %d); }
		} else {
			window.scrollBy(0, %d);
		}
		return document.querySelectorAll(%q).length;
	})()`, s.sel.ResultsPanel, magnitude, stagnant, magnitude, magnitude, s.sel.ResultCard)
}

func (s *panelSearcher) cardCollector() string {
	return fmt.Sprintf(`(() => {
		return Array.from(document.querySelectorAll(%q)).map(link => {
			const card = link.closest('div[jsaction]') || link.parentElement;
			const rating = card ? card.querySelector(%q) : null;
			const sibling = rating && rating.parentElement ? rating.parentElement.textContent : '';
			return {
				url: link.href,
				name: link.getAttribute('aria-label') || '',
				ratingLabel: rating ? (rating.getAttribute('aria-label') || '') : '',
				ariaLabel: rating ? (rating.getAttribute('aria-label') || '') : '',
				siblingText: sibling || ''
			};
		});
	})()`, s.sel.ResultCard, s.sel.ResultRating)
}

// parseCards turns raw card data into listings. Cards without a URL are
// dropped; missing ratings and counts stay nil.
func parseCards(cards []rawCard) []models.Listing {
	listings := make([]models.Listing, 0, len(cards))
	for _, card := range cards {
		if card.URL == "" {
			continue
		}
		listing := models.Listing{
			URL:  card.URL,
			Name: strings.TrimSpace(card.Name),
		}
		if m := listingRatingPattern.FindStringSubmatch(card.RatingLabel); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				listing.Rating = &v
			}
		}
		if count, ok := parseReviewCount(card.AriaLabel, card.SiblingText); ok {
			listing.ReviewCount = &count
		}
		listings = append(listings, listing)
	}
	return listings
}

// parseReviewCount tries the aria-label first, then the sibling node's
// parenthesized count.
func parseReviewCount(ariaLabel, siblingText string) (int, bool) {
	if m := ariaReviewsPattern.FindStringSubmatch(ariaLabel); m != nil {
		if v, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", "")); err == nil {
			return v, true
		}
	}
	if m := siblingReviewsPattern.FindStringSubmatch(siblingText); m != nil {
		if v, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", "")); err == nil {
			return v, true
		}
	}
	return 0, false
}
