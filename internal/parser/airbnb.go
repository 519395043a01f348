package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/HafssaBN/human-imitation-for-airbnb/internal/models"
)

// AirbnbParser maps rendered page HTML to the typed records in
// internal/models. Every Extract method is a pure function of the
// content: missing optional fields become nil, never a dropped record,
// and exact duplicates within one call are suppressed by natural key.
type AirbnbParser struct {
	tenureYearsRe  *regexp.Regexp
	tenureMonthsRe *regexp.Regexp
	reviewCountRe  *regexp.Regexp
	guestCapRe     *regexp.Regexp
	tripsRe        *regexp.Regexp
	respRateRe     *regexp.Regexp
	placeLineRe    *regexp.Regexp
}

func NewAirbnbParser() *AirbnbParser {
	return &AirbnbParser{
		tenureYearsRe:  regexp.MustCompile(`(\d+)\s+years?\s+hosting`),
		tenureMonthsRe: regexp.MustCompile(`(\d+)\s+months?\s+hosting`),
		reviewCountRe:  regexp.MustCompile(`(\d+)\s+[Rr]eviews?`),
		guestCapRe:     regexp.MustCompile(`(\d+)\s+guests?`),
		tripsRe:        regexp.MustCompile(`(\d+)\s+trips?`),
		respRateRe:     regexp.MustCompile(`[Rr]esponse rate:?\s*(\d+)%`),
		placeLineRe:    regexp.MustCompile(`^[\p{L}'. -]+,\s*[\p{L}'. -]+$`),
	}
}

func doc(html string) (*goquery.Document, error) {
	d, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return d, nil
}

// ExtractHostProfile reads the host profile page. hostID comes from the
// URL; everything else is best-effort with unknowns left nil.
func (p *AirbnbParser) ExtractHostProfile(html, hostID, url string) (*models.HostProfile, error) {
	d, err := doc(html)
	if err != nil {
		return nil, err
	}

	body := d.Find("body").Text()
	if strings.TrimSpace(body) == "" {
		// Blank interstitial that slipped past classification.
		return nil, fmt.Errorf("host profile %s: %w", hostID, ErrNoContent)
	}

	h := &models.HostProfile{UserID: hostID, URL: url}

	if name := d.Find(`h1`).First().Text(); name != "" {
		// Rendered as "Hi, I'm <name>" on current layouts.
		n := cleanText(name)
		n = strings.TrimPrefix(n, "Hi, I'm ")
		n = strings.TrimPrefix(n, "Hi, I’m ")
		h.Name = nilIfEmpty(n)
	}

	if strings.Contains(body, "Superhost") {
		h.IsSuperhost = models.BoolPtr(true)
	}
	if strings.Contains(body, "Identity verified") {
		h.IsVerified = models.BoolPtr(true)
	}

	if label, ok := d.Find(`span[aria-label*="out of 5"]`).First().Attr("aria-label"); ok {
		if r, err := ParseRating(label); err == nil {
			h.RatingAverage = models.FloatPtr(r)
		}
	}
	if m := p.reviewCountRe.FindStringSubmatch(body); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			h.RatingCount = models.IntPtr(n)
		}
	}
	if m := p.tenureYearsRe.FindStringSubmatch(body); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			h.JoinedYears = models.IntPtr(n)
		}
	}
	if m := p.tenureMonthsRe.FindStringSubmatch(body); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			h.JoinedMonths = models.IntPtr(n)
		}
	}
	if m := p.respRateRe.FindStringSubmatch(body); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			rate := float64(n) / 100
			h.ResponseRate = &rate
		}
	}

	if src, ok := d.Find(`img[src*="/user/"]`).First().Attr("src"); ok {
		h.ProfilePhotoURL = nilIfEmpty(src)
	}

	// The About section renders one long bio paragraph plus short
	// bullet facts; keep them apart the way the profile shows them.
	about := d.Find(`section:has(h2)`).FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.Contains(s.Find("h2").Text(), "About")
	}).First()
	if about.Length() > 0 {
		var bestBio string
		about.Find("p").Each(func(_ int, s *goquery.Selection) {
			t := cleanText(s.Text())
			if len(t) > len(bestBio) {
				bestBio = t
			}
		})
		h.BioText = nilIfEmpty(bestBio)

		var bullets []string
		seen := map[string]bool{}
		about.Find("li").Each(func(_ int, s *goquery.Selection) {
			t := cleanText(s.Text())
			if t != "" && !seen[t] {
				bullets = append(bullets, t)
				seen[t] = true
			}
		})
		if len(bullets) > 0 {
			h.AboutText = models.StringPtr(strings.Join(bullets, "\n"))
		}
	}

	h.ListingIDs = p.ExtractListingIDs(d)
	if len(h.ListingIDs) > 0 {
		h.TotalListings = models.IntPtr(len(h.ListingIDs))
	}

	return h, nil
}

// ExtractListingIDs collects the site listing IDs referenced on the
// current page, first-seen order, deduplicated.
func (p *AirbnbParser) ExtractListingIDs(d *goquery.Document) []string {
	var ids []string
	seen := map[string]bool{}
	d.Find(`a[href*="/rooms/"]`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if id, ok := ListingIDFromURL(href); ok && !seen[id] {
			ids = append(ids, id)
			seen[id] = true
		}
	})
	return ids
}

// ExtractListingLinks is ExtractListingIDs over raw HTML.
func (p *AirbnbParser) ExtractListingLinks(html string) ([]string, error) {
	d, err := doc(html)
	if err != nil {
		return nil, err
	}
	return p.ExtractListingIDs(d), nil
}

// ExtractListing reads a listing detail page. A parse failure on any
// individual field downgrades that field to unknown; partial records
// beat dropped records because re-scraping is expensive.
func (p *AirbnbParser) ExtractListing(html, listingID, url string) (*models.Listing, error) {
	d, err := doc(html)
	if err != nil {
		return nil, err
	}

	l := &models.Listing{ListingID: listingID, URL: url, Metadata: map[string]string{}}

	l.Title = nilIfEmpty(d.Find("h1").First().Text())
	l.Description = nilIfEmpty(d.Find(`[data-testid="listing-description"]`).First().Text())
	l.RoomType = nilIfEmpty(d.Find(`[data-testid="room-type"]`).First().Text())
	l.Location = nilIfEmpty(d.Find(`[data-testid="listing-location"]`).First().Text())

	if priceText := d.Find(`[data-testid="price"]`).First().Text(); priceText != "" {
		if cur, amount, err := ParsePrice(priceText); err == nil {
			l.Price = &models.Price{Currency: cur, Nightly: amount}
		}
	}
	if origText := d.Find(`[data-testid="price-original"]`).First().Text(); origText != "" && l.Price != nil {
		if _, amount, err := ParsePrice(origText); err == nil {
			l.Price.Original = &amount
		}
	}
	if feeText := d.Find(`[data-testid="price-fees"]`).First().Text(); feeText != "" && l.Price != nil {
		if _, amount, err := ParsePrice(feeText); err == nil {
			l.Price.Fees = &amount
		}
	}

	body := d.Find("body").Text()
	if m := p.guestCapRe.FindStringSubmatch(body); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			l.GuestCap = models.IntPtr(n)
		}
	}
	if m := p.reviewCountRe.FindStringSubmatch(body); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			l.ReviewCount = models.IntPtr(n)
		}
	}
	if label, ok := d.Find(`span[aria-label*="out of 5"]`).First().Attr("aria-label"); ok {
		if r, err := ParseRating(label); err == nil {
			l.Rating = models.FloatPtr(r)
		}
	}
	if strings.Contains(body, "Guest favorite") {
		l.GuestFav = models.BoolPtr(true)
	}

	seenAmenity := map[string]bool{}
	d.Find(`[data-testid="amenity-row"]`).Each(func(_ int, s *goquery.Selection) {
		t := cleanText(s.Text())
		if t != "" && !seenAmenity[t] {
			l.Amenities = append(l.Amenities, t)
			seenAmenity[t] = true
		}
	})

	if href, ok := d.Find(`a[href*="/users/show/"]`).First().Attr("href"); ok {
		if id, ok := UserIDFromURL(href); ok {
			l.HostID = &id
		}
	}

	if lat, ok := d.Find(`meta[property="place:location:latitude"]`).Attr("content"); ok {
		if v, err := strconv.ParseFloat(lat, 64); err == nil {
			l.Lat = &v
		}
	}
	if lng, ok := d.Find(`meta[property="place:location:longitude"]`).Attr("content"); ok {
		if v, err := strconv.ParseFloat(lng, 64); err == nil {
			l.Lng = &v
		}
	}

	// Co-hosts have no table of their own; they ride in the metadata
	// blob as parallel id/name lists.
	var coIDs, coNames []string
	seenCoHost := map[string]bool{}
	d.Find(`[data-testid="cohost-row"]`).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Find(`a[href*="/users/show/"]`).First().Attr("href")
		if !ok {
			return
		}
		id, ok := UserIDFromURL(href)
		if !ok || seenCoHost[id] || (l.HostID != nil && id == *l.HostID) {
			return
		}
		seenCoHost[id] = true
		coIDs = append(coIDs, id)
		coNames = append(coNames, cleanText(s.Text()))
	})
	if len(coIDs) > 0 {
		l.Metadata["co_host_ids"] = strings.Join(coIDs, ",")
		l.Metadata["co_hosts"] = strings.Join(coNames, ",")
	}

	// Fields not modeled explicitly ride along in the metadata blob.
	d.Find(`[data-listing-meta]`).Each(func(_ int, s *goquery.Selection) {
		key, _ := s.Attr("data-listing-meta")
		if key != "" {
			l.Metadata[key] = cleanText(s.Text())
		}
	})

	return l, nil
}

// ExtractReviews reads one page of reviews for the given subject.
// Overlapping pagination windows can render the same review twice;
// duplicates are dropped here by natural key before persistence sees
// them.
func (p *AirbnbParser) ExtractReviews(html string, subject models.ReviewSubject, subjectID string) ([]models.Review, error) {
	d, err := doc(html)
	if err != nil {
		return nil, err
	}

	var out []models.Review
	seen := map[string]bool{}

	d.Find(`div[data-review-id]`).Each(func(_ int, s *goquery.Selection) {
		id, _ := s.Attr("data-review-id")
		if id == "" || seen[id] {
			return
		}
		seen[id] = true

		r := models.Review{
			ReviewID:    id,
			SubjectType: subject,
			SubjectID:   subjectID,
		}

		r.AuthorName = nilIfEmpty(s.Find("h3").First().Text())
		r.AuthorPlace = nilIfEmpty(s.Find(`[data-testid="review-author-place"]`).First().Text())
		r.Text = nilIfEmpty(s.Find(`span[data-testid="review-text"]`).First().Text())
		r.DateText = nilIfEmpty(s.Find(`[data-testid="review-date"]`).First().Text())

		if label, ok := s.Find(`span[aria-label*="out of 5"]`).First().Attr("aria-label"); ok {
			if v, err := ParseRating(label); err == nil {
				r.Rating = &v
			}
		}

		out = append(out, r)
	})

	return out, nil
}

// HasNextReviewPage reports whether the rendered reviews page exposes a
// usable next-page control.
func (p *AirbnbParser) HasNextReviewPage(html string) bool {
	d, err := doc(html)
	if err != nil {
		return false
	}
	next := d.Find(`[data-testid="pagination-next"], a[aria-label="Next"]`).First()
	if next.Length() == 0 {
		return false
	}
	if _, disabled := next.Attr("disabled"); disabled {
		return false
	}
	if v, ok := next.Attr("aria-disabled"); ok && v == "true" {
		return false
	}
	return true
}

// ExtractPhotos reads the photo gallery as currently rendered. The
// sequence index comes from the gallery's own data attribute when
// present, falling back to render order; it is the idempotency key, so
// re-scrolls of the same gallery yield the same (listing, seq) pairs.
func (p *AirbnbParser) ExtractPhotos(html, listingID string) ([]models.Photo, error) {
	d, err := doc(html)
	if err != nil {
		return nil, err
	}

	var out []models.Photo
	seen := map[int]bool{}

	d.Find(`[data-testid="photo-viewer"] img, img[data-photo-seq]`).Each(func(i int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		if src == "" {
			return
		}

		seq := i
		if attr, ok := s.Attr("data-photo-seq"); ok {
			if v, err := strconv.Atoi(attr); err == nil {
				seq = v
			}
		}
		if seen[seq] {
			return
		}
		seen[seq] = true

		ph := models.Photo{ListingID: listingID, Seq: seq, URL: src}
		if alt, ok := s.Attr("alt"); ok {
			ph.Caption = nilIfEmpty(alt)
		}
		out = append(out, ph)
	})

	return out, nil
}

// ExtractGuidebooks reads guidebook cards on a host profile page.
func (p *AirbnbParser) ExtractGuidebooks(html, hostID string) ([]models.Guidebook, error) {
	d, err := doc(html)
	if err != nil {
		return nil, err
	}

	var out []models.Guidebook
	seen := map[string]bool{}

	d.Find(`a[href*="/guidebooks"]`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if href == "" {
			return
		}
		id := guidebookIDFromURL(href)
		if id == "" || seen[id] {
			return
		}
		seen[id] = true

		out = append(out, models.Guidebook{
			GuidebookID: id,
			HostID:      hostID,
			Title:       nilIfEmpty(s.Text()),
			URL:         href,
		})
	})

	return out, nil
}

var guidebookIDRe = regexp.MustCompile(`/guidebooks/?(\d+)?`)

func guidebookIDFromURL(url string) string {
	m := guidebookIDRe.FindStringSubmatch(url)
	if m == nil {
		return ""
	}
	if m[1] != "" {
		return m[1]
	}
	// Slug-only guidebook URLs: key on the path itself.
	return strings.TrimSuffix(strings.TrimPrefix(url, "https://www.airbnb.com"), "/")
}

// ExtractGuidebookEntries reads the place entries of an opened
// guidebook page. Depth is bounded but variable; categories group the
// places.
func (p *AirbnbParser) ExtractGuidebookEntries(html, guidebookID string) ([]models.GuidebookEntry, error) {
	d, err := doc(html)
	if err != nil {
		return nil, err
	}

	var out []models.GuidebookEntry
	seen := map[string]bool{}

	d.Find(`[data-testid="guidebook-place"]`).Each(func(_ int, s *goquery.Selection) {
		name := cleanText(s.Find("h3").First().Text())
		if name == "" {
			name = cleanText(s.Find(`[data-testid="place-name"]`).First().Text())
		}
		if name == "" || seen[name] {
			return
		}
		seen[name] = true

		e := models.GuidebookEntry{GuidebookID: guidebookID, Name: name}
		e.Category = nilIfEmpty(s.Find(`[data-testid="place-category"]`).First().Text())
		e.Note = nilIfEmpty(s.Find(`[data-testid="place-note"]`).First().Text())
		out = append(out, e)
	})

	return out, nil
}

// ExtractTravelHistory reads the "Where <host> has been" section. The
// site renders a place line ("City, Country") followed by a label line
// ("3 trips" or "June 2021"); either half may be missing precision.
func (p *AirbnbParser) ExtractTravelHistory(html, hostID string) ([]models.TravelHistoryEntry, error) {
	d, err := doc(html)
	if err != nil {
		return nil, err
	}

	var out []models.TravelHistoryEntry
	seen := map[string]bool{}

	add := func(place, country, when string, trips int) {
		key := place + "|" + when
		if place == "" || seen[key] {
			return
		}
		seen[key] = true
		e := models.TravelHistoryEntry{HostID: hostID, Place: place}
		e.Country = nilIfEmpty(country)
		e.WhenLabel = nilIfEmpty(when)
		if trips > 0 {
			e.TripCount = &trips
		}
		out = append(out, e)
	}

	items := d.Find(`[data-testid="travel-item"]`)
	if items.Length() > 0 {
		items.Each(func(_ int, s *goquery.Selection) {
			placeLine := cleanText(s.Find(`[data-testid="travel-place"]`).First().Text())
			when := cleanText(s.Find(`[data-testid="travel-when"]`).First().Text())
			place, country := splitPlace(placeLine)
			trips := 0
			if m := p.tripsRe.FindStringSubmatch(when); m != nil {
				trips, _ = strconv.Atoi(m[1])
			}
			add(place, country, when, trips)
		})
		return out, nil
	}

	// Fallback: older layout is plain text lines inside the section.
	sec := d.Find(`section`).FilterFunction(func(_ int, s *goquery.Selection) bool {
		t := s.Find("h2").Text()
		return strings.Contains(t, "Where") && strings.Contains(t, "has been")
	}).First()
	if sec.Length() == 0 {
		return out, nil
	}

	lines := strings.Split(sec.Text(), "\n")
	var cleaned []string
	for _, ln := range lines {
		if t := cleanText(ln); t != "" {
			cleaned = append(cleaned, t)
		}
	}
	for i := 0; i+1 < len(cleaned); i++ {
		if !p.placeLineRe.MatchString(cleaned[i]) {
			continue
		}
		when := cleaned[i+1]
		trips := 0
		if m := p.tripsRe.FindStringSubmatch(when); m != nil {
			trips, _ = strconv.Atoi(m[1])
		}
		place, country := splitPlace(cleaned[i])
		add(place, country, when, trips)
	}

	return out, nil
}

func splitPlace(line string) (string, string) {
	parts := strings.SplitN(line, ",", 2)
	place := cleanText(parts[0])
	country := ""
	if len(parts) == 2 {
		country = cleanText(parts[1])
	}
	return place, country
}
