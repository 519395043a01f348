package database

import (
	"context"
	"fmt"

	"github.com/HafssaBN/human-imitation-for-airbnb/internal/models"
)

// Merge rule for every upsert below: a non-null incoming value wins,
// a null incoming value keeps whatever the row already holds. Partial
// extractions therefore enrich rows and never erase earlier fields.

const upsertHostSQL = `
	INSERT INTO hosts (
		user_id, url, name, is_superhost, is_verified, rating_average,
		rating_count, joined_years, joined_months, response_rate,
		profile_photo_url, bio_text, about_text, total_listings, updated_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,NOW())
	ON CONFLICT (user_id) DO UPDATE SET
		url               = EXCLUDED.url,
		name              = COALESCE(EXCLUDED.name, hosts.name),
		is_superhost      = COALESCE(EXCLUDED.is_superhost, hosts.is_superhost),
		is_verified       = COALESCE(EXCLUDED.is_verified, hosts.is_verified),
		rating_average    = COALESCE(EXCLUDED.rating_average, hosts.rating_average),
		rating_count      = COALESCE(EXCLUDED.rating_count, hosts.rating_count),
		joined_years      = COALESCE(EXCLUDED.joined_years, hosts.joined_years),
		joined_months     = COALESCE(EXCLUDED.joined_months, hosts.joined_months),
		response_rate     = COALESCE(EXCLUDED.response_rate, hosts.response_rate),
		profile_photo_url = COALESCE(EXCLUDED.profile_photo_url, hosts.profile_photo_url),
		bio_text          = COALESCE(EXCLUDED.bio_text, hosts.bio_text),
		about_text        = COALESCE(EXCLUDED.about_text, hosts.about_text),
		total_listings    = COALESCE(EXCLUDED.total_listings, hosts.total_listings),
		updated_at        = NOW()`

func (d *DB) UpsertHost(ctx context.Context, h *models.HostProfile) error {
	_, err := d.pool.Exec(ctx, upsertHostSQL,
		h.UserID, h.URL, h.Name, h.IsSuperhost, h.IsVerified, h.RatingAverage,
		h.RatingCount, h.JoinedYears, h.JoinedMonths, h.ResponseRate,
		h.ProfilePhotoURL, h.BioText, h.AboutText, h.TotalListings)
	if err != nil {
		return fmt.Errorf("upsert host %s: %w", h.UserID, err)
	}
	return nil
}

const upsertListingSQL = `
	INSERT INTO listings (
		listing_id, url, host_id, title, description, room_type, location,
		currency, price_nightly, price_original, price_fees, guest_cap,
		review_count, rating, guest_fav, amenities, lat, lng, metadata, updated_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,NOW())
	ON CONFLICT (listing_id) DO UPDATE SET
		url            = EXCLUDED.url,
		host_id        = COALESCE(EXCLUDED.host_id, listings.host_id),
		title          = COALESCE(EXCLUDED.title, listings.title),
		description    = COALESCE(EXCLUDED.description, listings.description),
		room_type      = COALESCE(EXCLUDED.room_type, listings.room_type),
		location       = COALESCE(EXCLUDED.location, listings.location),
		currency       = COALESCE(EXCLUDED.currency, listings.currency),
		price_nightly  = COALESCE(EXCLUDED.price_nightly, listings.price_nightly),
		price_original = COALESCE(EXCLUDED.price_original, listings.price_original),
		price_fees     = COALESCE(EXCLUDED.price_fees, listings.price_fees),
		guest_cap      = COALESCE(EXCLUDED.guest_cap, listings.guest_cap),
		review_count   = COALESCE(EXCLUDED.review_count, listings.review_count),
		rating         = COALESCE(EXCLUDED.rating, listings.rating),
		guest_fav      = COALESCE(EXCLUDED.guest_fav, listings.guest_fav),
		amenities      = COALESCE(EXCLUDED.amenities, listings.amenities),
		lat            = COALESCE(EXCLUDED.lat, listings.lat),
		lng            = COALESCE(EXCLUDED.lng, listings.lng),
		metadata       = COALESCE(EXCLUDED.metadata, listings.metadata),
		updated_at     = NOW()`

func (d *DB) UpsertListing(ctx context.Context, l *models.Listing) error {
	var currency *string
	var nightly, original, fees *float64
	if l.Price != nil {
		currency = &l.Price.Currency
		nightly = &l.Price.Nightly
		original = l.Price.Original
		fees = l.Price.Fees
	}

	var amenities []string
	if len(l.Amenities) > 0 {
		amenities = l.Amenities
	}
	var metadata map[string]string
	if len(l.Metadata) > 0 {
		metadata = l.Metadata
	}

	_, err := d.pool.Exec(ctx, upsertListingSQL,
		l.ListingID, l.URL, l.HostID, l.Title, l.Description, l.RoomType,
		l.Location, currency, nightly, original, fees, l.GuestCap,
		l.ReviewCount, l.Rating, l.GuestFav, amenities, l.Lat, l.Lng, metadata)
	if err != nil {
		return fmt.Errorf("upsert listing %s: %w", l.ListingID, err)
	}
	return nil
}

const upsertReviewSQL = `
	INSERT INTO reviews (
		subject_type, subject_id, review_id, author_name, author_place,
		review_text, date_text, rating, updated_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW())
	ON CONFLICT (subject_type, subject_id, review_id) DO UPDATE SET
		author_name  = COALESCE(EXCLUDED.author_name, reviews.author_name),
		author_place = COALESCE(EXCLUDED.author_place, reviews.author_place),
		review_text  = COALESCE(EXCLUDED.review_text, reviews.review_text),
		date_text    = COALESCE(EXCLUDED.date_text, reviews.date_text),
		rating       = COALESCE(EXCLUDED.rating, reviews.rating),
		updated_at   = NOW()`

func (d *DB) UpsertReviews(ctx context.Context, reviews []models.Review) error {
	if len(reviews) == 0 {
		return nil
	}
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin reviews tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, r := range reviews {
		if _, err := tx.Exec(ctx, upsertReviewSQL,
			r.SubjectType, r.SubjectID, r.ReviewID, r.AuthorName,
			r.AuthorPlace, r.Text, r.DateText, r.Rating); err != nil {
			return fmt.Errorf("upsert review %s: %w", r.ReviewID, err)
		}
	}
	return tx.Commit(ctx)
}

const upsertPhotoSQL = `
	INSERT INTO photos (listing_id, seq, url, caption, updated_at)
	VALUES ($1,$2,$3,$4,NOW())
	ON CONFLICT (listing_id, seq) DO UPDATE SET
		url        = EXCLUDED.url,
		caption    = COALESCE(EXCLUDED.caption, photos.caption),
		updated_at = NOW()`

func (d *DB) UpsertPhotos(ctx context.Context, photos []models.Photo) error {
	if len(photos) == 0 {
		return nil
	}
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin photos tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, p := range photos {
		if _, err := tx.Exec(ctx, upsertPhotoSQL, p.ListingID, p.Seq, p.URL, p.Caption); err != nil {
			return fmt.Errorf("upsert photo %s/%d: %w", p.ListingID, p.Seq, err)
		}
	}
	return tx.Commit(ctx)
}

const upsertGuidebookSQL = `
	INSERT INTO guidebooks (guidebook_id, host_id, title, url, updated_at)
	VALUES ($1,$2,$3,$4,NOW())
	ON CONFLICT (guidebook_id) DO UPDATE SET
		host_id    = EXCLUDED.host_id,
		title      = COALESCE(EXCLUDED.title, guidebooks.title),
		url        = EXCLUDED.url,
		updated_at = NOW()`

func (d *DB) UpsertGuidebooks(ctx context.Context, gbs []models.Guidebook) error {
	if len(gbs) == 0 {
		return nil
	}
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin guidebooks tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, g := range gbs {
		if _, err := tx.Exec(ctx, upsertGuidebookSQL, g.GuidebookID, g.HostID, g.Title, g.URL); err != nil {
			return fmt.Errorf("upsert guidebook %s: %w", g.GuidebookID, err)
		}
	}
	return tx.Commit(ctx)
}

const upsertGuidebookEntrySQL = `
	INSERT INTO guidebook_entries (guidebook_id, name, category, note, updated_at)
	VALUES ($1,$2,$3,$4,NOW())
	ON CONFLICT (guidebook_id, name) DO UPDATE SET
		category   = COALESCE(EXCLUDED.category, guidebook_entries.category),
		note       = COALESCE(EXCLUDED.note, guidebook_entries.note),
		updated_at = NOW()`

func (d *DB) UpsertGuidebookEntries(ctx context.Context, entries []models.GuidebookEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin guidebook entries tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range entries {
		if _, err := tx.Exec(ctx, upsertGuidebookEntrySQL, e.GuidebookID, e.Name, e.Category, e.Note); err != nil {
			return fmt.Errorf("upsert guidebook entry %s/%s: %w", e.GuidebookID, e.Name, err)
		}
	}
	return tx.Commit(ctx)
}

const upsertTravelSQL = `
	INSERT INTO travel_history (host_id, place, when_label, country, trip_count, updated_at)
	VALUES ($1,$2,$3,$4,$5,NOW())
	ON CONFLICT (host_id, place, when_label) DO UPDATE SET
		country    = COALESCE(EXCLUDED.country, travel_history.country),
		trip_count = COALESCE(EXCLUDED.trip_count, travel_history.trip_count),
		updated_at = NOW()`

func (d *DB) UpsertTravelHistory(ctx context.Context, entries []models.TravelHistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin travel history tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range entries {
		when := ""
		if e.WhenLabel != nil {
			when = *e.WhenLabel
		}
		if _, err := tx.Exec(ctx, upsertTravelSQL, e.HostID, e.Place, when, e.Country, e.TripCount); err != nil {
			return fmt.Errorf("upsert travel entry %s/%s: %w", e.HostID, e.Place, err)
		}
	}
	return tx.Commit(ctx)
}
