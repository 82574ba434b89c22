package models

// Review is one extracted customer review.
type Review struct {
	Text         string  `json:"text"`
	Rating       float64 `json:"rating"`
	Date         string  `json:"date"` // ISO-8601
	RelativeDate string  `json:"relative_date,omitempty"`
	ReviewerName string  `json:"reviewerName,omitempty"`
}

// BusinessRecord is one extracted business listing. Name is required;
// records without a parseable name are dropped by the extraction adapter.
type BusinessRecord struct {
	Name                string   `json:"name"`
	Phone               string   `json:"phone,omitempty"`
	Website             string   `json:"website,omitempty"`
	Email               string   `json:"email,omitempty"`
	EmailStatus         string   `json:"email_status,omitempty"`
	Address             string   `json:"address,omitempty"`
	Latitude            *float64 `json:"latitude"`
	Longitude           *float64 `json:"longitude"`
	Rating              *float64 `json:"rating"`
	RatingCount         string   `json:"rating_count,omitempty"` // kept as string to preserve upstream formatting
	Category            string   `json:"category,omitempty"`
	SearchTerm          string   `json:"search_term"`
	SearchType          string   `json:"search_type"`
	SearchLocation      string   `json:"search_location,omitempty"`
	URL                 string   `json:"url"`
	FilteredReviews     []Review `json:"filtered_reviews,omitempty"`
	FilteredReviewCount int      `json:"filtered_review_count,omitempty"`
}

// Listing is the tier-A metadata parsed off a result card before the
// detail page is visited.
type Listing struct {
	URL         string   `json:"url"`
	Name        string   `json:"name"`
	Rating      *float64 `json:"rating"`
	ReviewCount *int     `json:"review_count"`
}
