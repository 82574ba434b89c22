package interfaces

import (
	"context"

	"github.com/ternarybob/prospector/internal/models"
)

// DetailRequest asks the extraction adapter for one business record.
type DetailRequest struct {
	URL            string
	Listing        models.Listing
	Params         *models.ScrapeParams
	SearchLocation string
}

// DetailExtractor turns a detail URL into a business record.
// A nil record with a nil error means the record was dropped (missing
// name); the scheduler treats it as a no-op.
type DetailExtractor interface {
	// NeedsPage reports whether the request requires a browser page
	// (review extraction); page-less requests bypass the detail limiter.
	NeedsPage(params *models.ScrapeParams) bool
	Extract(ctx context.Context, req *DetailRequest) (*models.BusinessRecord, error)
}
