package scraper

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/HafssaBN/human-imitation-for-airbnb/internal/models"
)

func (m *Machine) runProfile(ctx context.Context, t Target) (string, error) {
	st, err := m.navigate(ctx, t, t.URL)
	if err != nil {
		return "", err
	}
	host, err := m.parser.ExtractHostProfile(st.HTML, t.ID, t.URL)
	if err != nil {
		return "", fmt.Errorf("extract host profile: %w", err)
	}
	host.ScrapedAt = time.Now()
	if err := m.store.UpsertHost(ctx, host); err != nil {
		return "", fmt.Errorf("upsert host: %w", err)
	}
	return "", nil
}

// runListings walks the host's listings grid, persists a stub row per
// discovered listing and hands each one to Discover for its own run.
// The cursor is the count of listings persisted so far.
func (m *Machine) runListings(ctx context.Context, t Target, cursor string) (string, error) {
	stored, err := countCursor(cursor)
	if err != nil {
		return cursor, err
	}

	st, err := m.navigate(ctx, t, t.URL)
	if err != nil {
		return cursor, err
	}

	// Expands the full grid when the profile collapses it.
	if err := m.session.Click(ctx, `[data-testid="show-all-listings"]`); err == nil {
		if st, err = m.scroll(ctx, t); err != nil {
			return cursor, err
		}
	}

	seen := map[string]bool{}
	noNew := 0
	scrolls := 0
	for {
		ids, err := m.parser.ExtractListingLinks(st.HTML)
		if err != nil {
			return cursor, fmt.Errorf("extract listing links: %w", err)
		}

		var fresh []string
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				fresh = append(fresh, id)
			}
		}

		if len(fresh) == 0 {
			noNew++
		} else {
			noNew = 0
			for _, id := range fresh {
				hostID := t.ID
				l := &models.Listing{
					ListingID: id,
					URL:       ListingURL(id),
					HostID:    &hostID,
					ScrapedAt: time.Now(),
				}
				if err := m.store.UpsertListing(ctx, l); err != nil {
					return cursor, fmt.Errorf("upsert listing stub: %w", err)
				}
			}
			if len(seen) > stored {
				stored = len(seen)
				cursor = strconv.Itoa(stored)
				if err := m.setCheckpoint(ctx, t, StageListings, models.CheckpointInProgress, cursor); err != nil {
					return cursor, err
				}
			}
			if m.opts.Discover != nil {
				for _, id := range fresh {
					m.opts.Discover(Target{Kind: TargetListing, ID: id, URL: ListingURL(id)})
				}
			}
		}

		if noNew >= m.opts.GalleryNoNewLimit || scrolls >= m.opts.GalleryScrollCap {
			break
		}
		if st, err = m.scroll(ctx, t); err != nil {
			return cursor, err
		}
		scrolls++
	}

	m.logger.Info("listings discovered", "target", t.Key(), "count", len(seen))
	return strconv.Itoa(stored), nil
}

func (m *Machine) runListingDetail(ctx context.Context, t Target) (string, error) {
	st, err := m.navigate(ctx, t, t.URL)
	if err != nil {
		return "", err
	}
	l, err := m.parser.ExtractListing(st.HTML, t.ID, t.URL)
	if err != nil {
		return "", fmt.Errorf("extract listing: %w", err)
	}
	l.ScrapedAt = time.Now()
	if err := m.store.UpsertListing(ctx, l); err != nil {
		return "", fmt.Errorf("upsert listing: %w", err)
	}
	return "", nil
}

// runReviews pages through the reviews surface. The cursor is the next
// page to fetch, so a resumed run skips pages whose reviews were
// already persisted. A page that yields only already-seen review IDs
// means pagination is looping and ends the stage.
func (m *Machine) runReviews(ctx context.Context, t Target, cursor string) (string, error) {
	subject := models.ReviewOfHost
	if t.Kind == TargetListing {
		subject = models.ReviewOfListing
	}

	page := 1
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 1 {
			return cursor, fmt.Errorf("%w: reviews cursor %q", ErrCheckpointCorrupt, cursor)
		}
		page = n
	}

	seen := map[string]bool{}
	for page <= m.opts.ReviewPageCap {
		st, err := m.navigate(ctx, t, reviewsPageURL(t, page))
		if err != nil {
			return strconv.Itoa(page), err
		}
		reviews, err := m.parser.ExtractReviews(st.HTML, subject, t.ID)
		if err != nil {
			return strconv.Itoa(page), fmt.Errorf("extract reviews page %d: %w", page, err)
		}

		var fresh []models.Review
		for _, r := range reviews {
			if !seen[r.ReviewID] {
				seen[r.ReviewID] = true
				fresh = append(fresh, r)
			}
		}
		if len(reviews) > 0 && len(fresh) == 0 {
			m.logger.Warn("review pagination looping", "target", t.Key(), "page", page)
			break
		}
		if len(fresh) > 0 {
			if err := m.store.UpsertReviews(ctx, fresh); err != nil {
				return strconv.Itoa(page), fmt.Errorf("upsert reviews page %d: %w", page, err)
			}
		}

		hasNext := m.parser.HasNextReviewPage(st.HTML)
		if err := m.setCheckpoint(ctx, t, StageReviews, models.CheckpointInProgress, strconv.Itoa(page+1)); err != nil {
			return strconv.Itoa(page), err
		}
		if !hasNext || len(reviews) == 0 {
			return strconv.Itoa(page + 1), nil
		}
		page++
	}

	m.logger.Warn("review page cap reached", "target", t.Key(), "pages", m.opts.ReviewPageCap)
	return strconv.Itoa(page), nil
}

// runPhotos scrolls the lazy-loaded gallery until no new photos appear
// for GalleryNoNewLimit consecutive scrolls, bounded by
// GalleryScrollCap. The cursor is the count of distinct photos
// persisted; render position is the photo identity, so re-harvesting
// after a resume is idempotent.
func (m *Machine) runPhotos(ctx context.Context, t Target, cursor string) (string, error) {
	stored, err := countCursor(cursor)
	if err != nil {
		return cursor, err
	}

	st, err := m.navigate(ctx, t, photosURL(t))
	if err != nil {
		return cursor, err
	}

	seen := map[int]bool{}
	noNew := 0
	scrolls := 0
	for {
		photos, err := m.parser.ExtractPhotos(st.HTML, t.ID)
		if err != nil {
			return cursor, fmt.Errorf("extract photos: %w", err)
		}

		var fresh []models.Photo
		for _, p := range photos {
			if !seen[p.Seq] {
				seen[p.Seq] = true
				fresh = append(fresh, p)
			}
		}

		if len(fresh) == 0 {
			noNew++
		} else {
			noNew = 0
			if err := m.store.UpsertPhotos(ctx, fresh); err != nil {
				return cursor, fmt.Errorf("upsert photos: %w", err)
			}
			if len(seen) > stored {
				stored = len(seen)
				cursor = strconv.Itoa(stored)
				if err := m.setCheckpoint(ctx, t, StagePhotos, models.CheckpointInProgress, cursor); err != nil {
					return cursor, err
				}
			}
		}

		if noNew >= m.opts.GalleryNoNewLimit {
			break
		}
		if scrolls >= m.opts.GalleryScrollCap {
			m.logger.Warn("gallery scroll cap reached", "target", t.Key(), "photos", len(seen))
			break
		}
		if st, err = m.scroll(ctx, t); err != nil {
			return cursor, err
		}
		scrolls++
	}

	return strconv.Itoa(stored), nil
}

// runGuidebooks persists guidebook cards, then visits each guidebook
// for its entries. The cursor is the index of the next guidebook to
// visit.
func (m *Machine) runGuidebooks(ctx context.Context, t Target, cursor string) (string, error) {
	start, err := countCursor(cursor)
	if err != nil {
		return cursor, err
	}

	st, err := m.navigate(ctx, t, t.URL)
	if err != nil {
		return cursor, err
	}
	gbs, err := m.parser.ExtractGuidebooks(st.HTML, t.ID)
	if err != nil {
		return cursor, fmt.Errorf("extract guidebooks: %w", err)
	}
	if len(gbs) == 0 {
		return "", nil
	}
	if err := m.store.UpsertGuidebooks(ctx, gbs); err != nil {
		return cursor, fmt.Errorf("upsert guidebooks: %w", err)
	}

	for i := start; i < len(gbs); i++ {
		est, err := m.navigate(ctx, t, absoluteURL(gbs[i].URL))
		if err != nil {
			return strconv.Itoa(i), err
		}
		entries, err := m.parser.ExtractGuidebookEntries(est.HTML, gbs[i].GuidebookID)
		if err != nil {
			return strconv.Itoa(i), fmt.Errorf("extract guidebook entries: %w", err)
		}
		if len(entries) > 0 {
			if err := m.store.UpsertGuidebookEntries(ctx, entries); err != nil {
				return strconv.Itoa(i), fmt.Errorf("upsert guidebook entries: %w", err)
			}
		}
		if err := m.setCheckpoint(ctx, t, StageGuidebooks, models.CheckpointInProgress, strconv.Itoa(i+1)); err != nil {
			return strconv.Itoa(i), err
		}
	}
	return strconv.Itoa(len(gbs)), nil
}

func (m *Machine) runTravelHistory(ctx context.Context, t Target) (string, error) {
	st, err := m.navigate(ctx, t, t.URL)
	if err != nil {
		return "", err
	}
	entries, err := m.parser.ExtractTravelHistory(st.HTML, t.ID)
	if err != nil {
		return "", fmt.Errorf("extract travel history: %w", err)
	}
	if len(entries) > 0 {
		if err := m.store.UpsertTravelHistory(ctx, entries); err != nil {
			return "", fmt.Errorf("upsert travel history: %w", err)
		}
	}
	return "", nil
}

func countCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(cursor)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: cursor %q", ErrCheckpointCorrupt, cursor)
	}
	return n, nil
}
