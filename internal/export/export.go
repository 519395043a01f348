// Package export writes scraped records to CSV for downstream
// analysis.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/HafssaBN/human-imitation-for-airbnb/internal/models"
)

// Source is the read surface the exporter pulls from.
type Source interface {
	Hosts(ctx context.Context) ([]models.HostProfile, error)
	Listings(ctx context.Context) ([]models.Listing, error)
	Reviews(ctx context.Context) ([]models.Review, error)
	Photos(ctx context.Context) ([]models.Photo, error)
}

// WriteHostsCSV writes one row per host. Unknown fields stay empty.
func WriteHostsCSV(ctx context.Context, src Source, w io.Writer) error {
	hosts, err := src.Hosts(ctx)
	if err != nil {
		return fmt.Errorf("load hosts: %w", err)
	}

	cw := csv.NewWriter(w)
	header := []string{"user_id", "url", "name", "is_superhost", "is_verified",
		"rating_average", "rating_count", "joined_years", "response_rate", "total_listings"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, h := range hosts {
		row := []string{
			h.UserID, h.URL, strVal(h.Name), boolVal(h.IsSuperhost), boolVal(h.IsVerified),
			floatVal(h.RatingAverage), intVal(h.RatingCount), intVal(h.JoinedYears),
			floatVal(h.ResponseRate), intVal(h.TotalListings),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write host %s: %w", h.UserID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteListingsCSV writes one row per listing.
func WriteListingsCSV(ctx context.Context, src Source, w io.Writer) error {
	listings, err := src.Listings(ctx)
	if err != nil {
		return fmt.Errorf("load listings: %w", err)
	}

	cw := csv.NewWriter(w)
	header := []string{"listing_id", "url", "host_id", "title", "room_type", "location",
		"currency", "price_nightly", "guest_cap", "review_count", "rating"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, l := range listings {
		currency, nightly := "", ""
		if l.Price != nil {
			currency = l.Price.Currency
			nightly = strconv.FormatFloat(l.Price.Nightly, 'f', -1, 64)
		}
		row := []string{
			l.ListingID, l.URL, strVal(l.HostID), strVal(l.Title), strVal(l.RoomType),
			strVal(l.Location), currency, nightly, intVal(l.GuestCap),
			intVal(l.ReviewCount), floatVal(l.Rating),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write listing %s: %w", l.ListingID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteReviewsCSV writes one row per review.
func WriteReviewsCSV(ctx context.Context, src Source, w io.Writer) error {
	reviews, err := src.Reviews(ctx)
	if err != nil {
		return fmt.Errorf("load reviews: %w", err)
	}

	cw := csv.NewWriter(w)
	header := []string{"subject_type", "subject_id", "review_id", "author_name",
		"author_place", "date", "rating", "text"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range reviews {
		row := []string{
			string(r.SubjectType), r.SubjectID, r.ReviewID, strVal(r.AuthorName),
			strVal(r.AuthorPlace), strVal(r.DateText), floatVal(r.Rating), strVal(r.Text),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write review %s: %w", r.ReviewID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WritePhotosCSV writes one row per photo in gallery order.
func WritePhotosCSV(ctx context.Context, src Source, w io.Writer) error {
	photos, err := src.Photos(ctx)
	if err != nil {
		return fmt.Errorf("load photos: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"listing_id", "seq", "url", "caption"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, p := range photos {
		row := []string{p.ListingID, strconv.Itoa(p.Seq), p.URL, strVal(p.Caption)}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write photo %s/%d: %w", p.ListingID, p.Seq, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func strVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func intVal(n *int) string {
	if n == nil {
		return ""
	}
	return strconv.Itoa(*n)
}

func floatVal(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func boolVal(b *bool) string {
	if b == nil {
		return ""
	}
	return strconv.FormatBool(*b)
}
