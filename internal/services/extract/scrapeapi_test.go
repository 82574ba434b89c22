package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/prospector/internal/common"
)

const detailHTML = `<html><body>
<h1 class="DUwDvf">Acme Plumbing</h1>
<button class="DkEaL">Plumber</button>
<button data-item-id="address">123 Main St, Fresno, CA 93701</button>
<button data-item-id="phone:tel:5595551234">(559) 555-1234</button>
<a data-item-id="authority" href="https://acmeplumbing.example.com">acmeplumbing.example.com</a>
<div class="F7nice"><span aria-hidden="true">4.6</span><span aria-label="1,234 reviews">(1,234)</span></div>
</body></html>`

const namelessHTML = `<html><body><div class="F7nice"><span aria-hidden="true">4.0</span></div></body></html>`

func testClient(t *testing.T, server *httptest.Server, maxRetries int) *ScrapeAPIClient {
	t.Helper()
	cfg := &common.ScrapeAPIConfig{
		BaseURL:        server.URL,
		APIKey:         "test-key",
		MaxRetries:     maxRetries,
		Concurrency:    2,
		RequestTimeout: 5 * time.Second,
	}
	client := NewScrapeAPIClient(cfg, server.Client(), common.GetLogger())
	client.backoffBase = 5 * time.Millisecond
	return client
}

func TestScrapeAPIClient_FetchAndParse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.URL.Query().Get("api_key"))
		assert.Contains(t, r.URL.Query().Get("url"), "google.com/maps")
		_, _ = w.Write([]byte(detailHTML))
	}))
	defer server.Close()

	client := testClient(t, server, 0)
	detailURL := "https://www.google.com/maps/place/Acme/data=!3d36.7378!4d-119.7871"

	doc, err := client.FetchDocument(context.Background(), detailURL)
	require.NoError(t, err)

	record, err := ParseRecord(doc, DefaultSelectors(), &RecordContext{
		DetailURL:      detailURL,
		SearchTerm:     "plumber",
		SearchLocation: "Fresno, CA",
	})
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.Equal(t, "Acme Plumbing", record.Name)
	assert.Equal(t, "Plumber", record.Category)
	assert.Equal(t, "123 Main St, Fresno, CA 93701", record.Address)
	assert.Equal(t, "(559) 555-1234", record.Phone)
	assert.Equal(t, "https://acmeplumbing.example.com", record.Website)
	require.NotNil(t, record.Rating)
	assert.InDelta(t, 4.6, *record.Rating, 0.001)
	assert.Equal(t, "1,234", record.RatingCount)
	assert.Equal(t, "plumber", record.SearchTerm)
	assert.Equal(t, "Google Maps", record.SearchType)
	assert.Equal(t, "Fresno, CA", record.SearchLocation)
	require.NotNil(t, record.Latitude)
	assert.InDelta(t, 36.7378, *record.Latitude, 0.0001)
	require.NotNil(t, record.Longitude)
	assert.InDelta(t, -119.7871, *record.Longitude, 0.0001)
}

func TestParseRecord_MissingNameDropped(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(namelessHTML))
	require.NoError(t, err)

	record, err := ParseRecord(doc, DefaultSelectors(), &RecordContext{DetailURL: "https://example.com"})
	require.NoError(t, err)
	assert.Nil(t, record, "records without a name are dropped, not failed")
}

func TestScrapeAPIClient_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(detailHTML))
	}))
	defer server.Close()

	client := testClient(t, server, 2)
	_, err := client.FetchDocument(context.Background(), "https://example.com/detail")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestScrapeAPIClient_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := testClient(t, server, 3)
	_, err := client.FetchDocument(context.Background(), "https://example.com/detail")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "4xx except 408 is not retried")

	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestScrapeAPIClient_RetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := testClient(t, server, 2)
	_, err := client.FetchDocument(context.Background(), "https://example.com/detail")
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load(), "initial attempt plus two retries")
}
