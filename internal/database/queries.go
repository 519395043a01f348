package database

import (
	"context"
	"fmt"

	"github.com/HafssaBN/human-imitation-for-airbnb/internal/models"
)

// Stats are row counts per table, served by the status API.
type Stats struct {
	Hosts            int64 `json:"hosts"`
	Listings         int64 `json:"listings"`
	Reviews          int64 `json:"reviews"`
	Photos           int64 `json:"photos"`
	Guidebooks       int64 `json:"guidebooks"`
	GuidebookEntries int64 `json:"guidebook_entries"`
	TravelEntries    int64 `json:"travel_entries"`
}

const statsSQL = `
	SELECT
		(SELECT COUNT(*) FROM hosts),
		(SELECT COUNT(*) FROM listings),
		(SELECT COUNT(*) FROM reviews),
		(SELECT COUNT(*) FROM photos),
		(SELECT COUNT(*) FROM guidebooks),
		(SELECT COUNT(*) FROM guidebook_entries),
		(SELECT COUNT(*) FROM travel_history)`

func (d *DB) Stats(ctx context.Context) (*Stats, error) {
	var s Stats
	err := d.pool.QueryRow(ctx, statsSQL).Scan(
		&s.Hosts, &s.Listings, &s.Reviews, &s.Photos,
		&s.Guidebooks, &s.GuidebookEntries, &s.TravelEntries)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	return &s, nil
}

const listHostsSQL = `
	SELECT user_id, url, name, is_superhost, is_verified, rating_average,
		rating_count, joined_years, joined_months, response_rate,
		profile_photo_url, bio_text, about_text, total_listings, updated_at
	FROM hosts ORDER BY user_id`

func (d *DB) Hosts(ctx context.Context) ([]models.HostProfile, error) {
	rows, err := d.pool.Query(ctx, listHostsSQL)
	if err != nil {
		return nil, fmt.Errorf("list hosts: %w", err)
	}
	defer rows.Close()

	var out []models.HostProfile
	for rows.Next() {
		var h models.HostProfile
		if err := rows.Scan(&h.UserID, &h.URL, &h.Name, &h.IsSuperhost,
			&h.IsVerified, &h.RatingAverage, &h.RatingCount, &h.JoinedYears,
			&h.JoinedMonths, &h.ResponseRate, &h.ProfilePhotoURL, &h.BioText,
			&h.AboutText, &h.TotalListings, &h.ScrapedAt); err != nil {
			return nil, fmt.Errorf("scan host: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

const listListingsSQL = `
	SELECT listing_id, url, host_id, title, description, room_type,
		location, currency, price_nightly, price_original, price_fees,
		guest_cap, review_count, rating, guest_fav, amenities, lat, lng,
		metadata, updated_at
	FROM listings ORDER BY listing_id`

func (d *DB) Listings(ctx context.Context) ([]models.Listing, error) {
	rows, err := d.pool.Query(ctx, listListingsSQL)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	defer rows.Close()

	var out []models.Listing
	for rows.Next() {
		var l models.Listing
		var currency *string
		var nightly, original, fees *float64
		if err := rows.Scan(&l.ListingID, &l.URL, &l.HostID, &l.Title,
			&l.Description, &l.RoomType, &l.Location, &currency, &nightly,
			&original, &fees, &l.GuestCap, &l.ReviewCount, &l.Rating,
			&l.GuestFav, &l.Amenities, &l.Lat, &l.Lng, &l.Metadata,
			&l.ScrapedAt); err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		if nightly != nil {
			cur := ""
			if currency != nil {
				cur = *currency
			}
			l.Price = &models.Price{Currency: cur, Nightly: *nightly, Original: original, Fees: fees}
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

const listReviewsSQL = `
	SELECT subject_type, subject_id, review_id, author_name, author_place,
		review_text, date_text, rating
	FROM reviews ORDER BY subject_type, subject_id, review_id`

func (d *DB) Reviews(ctx context.Context) ([]models.Review, error) {
	rows, err := d.pool.Query(ctx, listReviewsSQL)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	var out []models.Review
	for rows.Next() {
		var r models.Review
		var subject string
		if err := rows.Scan(&subject, &r.SubjectID, &r.ReviewID, &r.AuthorName,
			&r.AuthorPlace, &r.Text, &r.DateText, &r.Rating); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		r.SubjectType = models.ReviewSubject(subject)
		out = append(out, r)
	}
	return out, rows.Err()
}

const listPhotosSQL = `
	SELECT listing_id, seq, url, caption FROM photos ORDER BY listing_id, seq`

func (d *DB) Photos(ctx context.Context) ([]models.Photo, error) {
	rows, err := d.pool.Query(ctx, listPhotosSQL)
	if err != nil {
		return nil, fmt.Errorf("list photos: %w", err)
	}
	defer rows.Close()

	var out []models.Photo
	for rows.Next() {
		var p models.Photo
		if err := rows.Scan(&p.ListingID, &p.Seq, &p.URL, &p.Caption); err != nil {
			return nil, fmt.Errorf("scan photo: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
