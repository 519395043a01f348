package scraper

import (
	"fmt"
	"strings"

	"github.com/HafssaBN/human-imitation-for-airbnb/internal/parser"
)

const siteBase = "https://www.airbnb.com"

func parseUserID(url string) (string, bool)    { return parser.UserIDFromURL(url) }
func parseListingID(url string) (string, bool) { return parser.ListingIDFromURL(url) }

// HostURL builds the canonical profile URL for a host ID.
func HostURL(hostID string) string {
	return fmt.Sprintf("%s/users/show/%s", siteBase, hostID)
}

// ListingURL builds the canonical page URL for a listing ID.
func ListingURL(listingID string) string {
	return fmt.Sprintf("%s/rooms/%s", siteBase, listingID)
}

// reviewsPageURL addresses one page of the paginated reviews surface
// for either target kind.
func reviewsPageURL(t Target, page int) string {
	base := strings.TrimRight(t.URL, "/")
	if page <= 1 {
		return base + "/reviews"
	}
	return fmt.Sprintf("%s/reviews?page=%d", base, page)
}

// photosURL addresses the full photo gallery of a listing.
func photosURL(t Target) string {
	return strings.TrimRight(t.URL, "/") + "/photos"
}

func absoluteURL(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if strings.HasPrefix(href, "/") {
		return siteBase + href
	}
	return siteBase + "/" + href
}
