package extract

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/prospector/internal/models"
	"github.com/ternarybob/prospector/internal/services/browser"
)

const (
	reviewScrollMaxSteps    = 30
	reviewScrollStableSteps = 3
	reviewScrollDelay       = 600 * time.Millisecond
	reviewPanelTimeout      = 10 * time.Second
)

// rawReview is the evaluator's per-card output before filtering.
type rawReview struct {
	Text         string `json:"text"`
	RatingLabel  string `json:"ratingLabel"`
	RelativeDate string `json:"relativeDate"`
	Reviewer     string `json:"reviewer"`
}

var relativeDatePattern = regexp.MustCompile(`(?i)(a|an|\d+)\s+(year|month|week|day|hour|minute)s?\s+ago`)

// parseRelativeDate converts "3 months ago" style strings into an
// approximate ISO-8601 date. Unparseable strings return "".
func parseRelativeDate(rel string, now time.Time) string {
	m := relativeDatePattern.FindStringSubmatch(rel)
	if m == nil {
		return ""
	}

	n := 1
	if m[1] != "a" && m[1] != "an" && m[1] != "A" && m[1] != "An" {
		v, err := strconv.Atoi(m[1])
		if err != nil {
			return ""
		}
		n = v
	}

	var t time.Time
	switch strings.ToLower(m[2]) {
	case "year":
		t = now.AddDate(-n, 0, 0)
	case "month":
		t = now.AddDate(0, -n, 0)
	case "week":
		t = now.AddDate(0, 0, -7*n)
	case "day":
		t = now.AddDate(0, 0, -n)
	case "hour":
		t = now.Add(-time.Duration(n) * time.Hour)
	case "minute":
		t = now.Add(-time.Duration(n) * time.Minute)
	default:
		return ""
	}
	return t.Format("2006-01-02")
}

// filterReviews applies the time-range and negative-rating filters and
// deduplicates by (text, rating, reviewer).
func filterReviews(raw []rawReview, params *models.ScrapeParams, now time.Time) []models.Review {
	var cutoff time.Time
	if params.ReviewTimeRange > 0 {
		cutoff = now.AddDate(-params.ReviewTimeRange, 0, 0)
	}

	seen := make(map[string]struct{})
	var out []models.Review
	for _, r := range raw {
		rating, ok := parseRating(r.RatingLabel)
		if !ok {
			continue
		}
		if params.ExtractNegativeReviews && rating != 1 && rating != 2 {
			continue
		}

		date := parseRelativeDate(r.RelativeDate, now)
		if !cutoff.IsZero() {
			if date == "" {
				continue
			}
			parsed, err := time.Parse("2006-01-02", date)
			if err != nil || parsed.Before(cutoff) {
				continue
			}
		}

		key := r.Text + "|" + r.RatingLabel + "|" + r.Reviewer
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		out = append(out, models.Review{
			Text:         strings.TrimSpace(r.Text),
			Rating:       rating,
			Date:         date,
			RelativeDate: r.RelativeDate,
			ReviewerName: r.Reviewer,
		})
	}
	return out
}

// extractReviews drives the reviews panel on an already-navigated detail
// page: opens the tab, optionally sorts by lowest rating, scrolls until
// the card count is stable, then collects the cards.
func extractReviews(ctx context.Context, page browser.Page, sel Selectors, params *models.ScrapeParams) ([]rawReview, error) {
	if err := page.WaitVisible(ctx, sel.ReviewsTab, reviewPanelTimeout); err != nil {
		// No reviews tab, nothing to extract.
		return nil, nil
	}
	if err := page.Click(ctx, sel.ReviewsTab); err != nil {
		return nil, fmt.Errorf("failed to open reviews tab: %w", err)
	}
	if err := page.WaitVisible(ctx, sel.ReviewCard, reviewPanelTimeout); err != nil {
		return nil, nil
	}

	if params.ExtractNegativeReviews {
		// Sort by lowest rating so early cards are the ones we keep.
		if err := page.Click(ctx, sel.SortButton); err == nil {
			_ = page.Click(ctx, sel.SortLowestItem)
			time.Sleep(800 * time.Millisecond)
		}
	}

	if err := scrollReviews(ctx, page, sel); err != nil {
		return nil, err
	}

	var raw []rawReview
	if err := page.Evaluate(ctx, reviewCollector(sel), &raw); err != nil {
		return nil, fmt.Errorf("failed to collect reviews: %w", err)
	}
	return raw, nil
}

// scrollReviews scrolls the panel until the card count stops growing for
// several steps or the step cap is hit.
func scrollReviews(ctx context.Context, page browser.Page, sel Selectors) error {
	lastCount, stable := -1, 0
	for step := 0; step < reviewScrollMaxSteps; step++ {
		var count int
		if err := page.Evaluate(ctx, reviewScroller(sel), &count); err != nil {
			if browser.IsSessionError(err) {
				return err
			}
			// Transient evaluation failure, keep what we have.
			return nil
		}

		if count == lastCount {
			stable++
			if stable >= reviewScrollStableSteps {
				return nil
			}
		} else {
			stable = 0
			lastCount = count
		}

		select {
		case <-time.After(reviewScrollDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func reviewScroller(sel Selectors) string {
	return fmt.Sprintf(`(() => {
		const panel = document.querySelector(%q);
		if (panel) { panel.scrollTop = panel.scrollHeight; }
		document.querySelectorAll(%q).forEach(b => b.click());
		return document.querySelectorAll(%q).length;
	})()`, sel.ReviewsPanel, sel.ReviewMoreBtn, sel.ReviewCard)
}

func reviewCollector(sel Selectors) string {
	return fmt.Sprintf(`(() => {
		return Array.from(document.querySelectorAll(%q)).map(card => {
			const text = card.querySelector(%q);
			const stars = card.querySelector(%q);
			const date = card.querySelector(%q);
			const who = card.querySelector(%q);
			return {
				text: text ? text.textContent : '',
				ratingLabel: stars ? (stars.getAttribute('aria-label') || '') : '',
				relativeDate: date ? date.textContent.trim() : '',
				reviewer: who ? who.textContent.trim() : ''
			};
		});
	})()`, sel.ReviewCard, sel.ReviewText, sel.ReviewStars, sel.ReviewDate, sel.ReviewerName)
}
