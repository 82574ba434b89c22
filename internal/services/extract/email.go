package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// EmailStatusFound marks records whose email was mined off the website.
const EmailStatusFound = "found"

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

// skippedEmailSuffixes filters image filenames and tracker noise that
// match the email shape.
var skippedEmailSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg"}

// EmailMiner fetches a business website and looks for a contact email,
// first in mailto links, then in the page text.
type EmailMiner struct {
	httpClient *http.Client
}

func NewEmailMiner(httpClient *http.Client) *EmailMiner {
	return &EmailMiner{httpClient: httpClient}
}

// Mine returns the first plausible email on the site's landing page, or
// "" when none is found. Fetch failures return an error so callers can
// log them without failing the record.
func (m *EmailMiner) Mine(ctx context.Context, websiteURL string) (string, error) {
	if websiteURL == "" {
		return "", nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, websiteURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build website request: %w", err)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch website: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &HTTPStatusError{StatusCode: resp.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return "", fmt.Errorf("failed to parse website: %w", err)
	}
	return FindEmail(doc), nil
}

// FindEmail scans a parsed page for a contact email.
func FindEmail(doc *goquery.Document) string {
	var found string
	doc.Find("a[href^='mailto:']").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		addr := strings.TrimPrefix(href, "mailto:")
		if i := strings.IndexByte(addr, '?'); i >= 0 {
			addr = addr[:i]
		}
		if plausibleEmail(addr) {
			found = addr
			return false
		}
		return true
	})
	if found != "" {
		return found
	}

	for _, candidate := range emailPattern.FindAllString(doc.Text(), 10) {
		if plausibleEmail(candidate) {
			return candidate
		}
	}
	return ""
}

func plausibleEmail(addr string) bool {
	if !emailPattern.MatchString(addr) {
		return false
	}
	lower := strings.ToLower(addr)
	for _, suffix := range skippedEmailSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return false
		}
	}
	return true
}
