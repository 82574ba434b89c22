// Package extract turns detail URLs into business records, through an
// external scrape API or a live browser page when review extraction is
// requested.
package extract

// Selectors centralizes the DOM selectors of the listing site so markup
// changes are fixed in one place.
type Selectors struct {
	ResultsPanel string
	ResultCard   string
	ResultRating string

	Name        string
	Category    string
	Address     string
	Phone       string
	Website     string
	Rating      string
	RatingCount string

	ReviewsTab      string
	ReviewsPanel    string
	SortButton      string
	SortLowestItem  string
	ReviewCard      string
	ReviewText      string
	ReviewMoreBtn   string
	ReviewStars     string
	ReviewDate      string
	ReviewerName    string
	ReviewTextClass string
}

// DefaultSelectors matches the current Google Maps detail markup.
func DefaultSelectors() Selectors {
	return Selectors{
		ResultsPanel: "div[role='feed']",
		ResultCard:   "a[href*='/maps/place/']",
		ResultRating: "span[role='img']",

		Name:        "h1.DUwDvf",
		Category:    "button.DkEaL",
		Address:     "button[data-item-id='address']",
		Phone:       "button[data-item-id^='phone']",
		Website:     "a[data-item-id='authority']",
		Rating:      "div.F7nice span[aria-hidden='true']",
		RatingCount: "div.F7nice span[aria-label]",

		ReviewsTab:      "button[aria-label*='Reviews']",
		ReviewsPanel:    "div.m6QErb.DxyBCb.kA9KIf.dS8AEf",
		SortButton:      "button[aria-label='Sort reviews'], button[data-value='Sort']",
		SortLowestItem:  "div[role='menuitemradio'][data-index='3']",
		ReviewCard:      "div.jftiEf",
		ReviewText:      "span.wiI7pd",
		ReviewMoreBtn:   "button.w8nwRe",
		ReviewStars:     "span.kvMYJc",
		ReviewDate:      "span.rsqaWe",
		ReviewerName:    "div.d4r55",
		ReviewTextClass: "wiI7pd",
	}
}
