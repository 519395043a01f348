package scraper

import (
	"context"
	"errors"
	"fmt"

	"github.com/HafssaBN/human-imitation-for-airbnb/internal/browser"
	"github.com/HafssaBN/human-imitation-for-airbnb/internal/governor"
	"github.com/HafssaBN/human-imitation-for-airbnb/internal/models"
)

var (
	ErrInvalidTargetURL = errors.New("invalid target URL")
	// ErrSoftBlock is surfaced when a stage gives up on a soft-blocked
	// target after backoff attempts are exhausted.
	ErrSoftBlock = errors.New("soft block detected")
	// ErrHardBlock is non-retryable for the target in this run.
	ErrHardBlock = errors.New("hard block detected")
	// ErrCheckpointCorrupt means the stored checkpoint cannot be
	// trusted; the target needs a manual reset, never a silent discard.
	ErrCheckpointCorrupt = errors.New("checkpoint corrupt")
)

type TargetKind string

const (
	TargetHost    TargetKind = "host"
	TargetListing TargetKind = "listing"
)

// Target is one host profile or one listing scraped end-to-end.
type Target struct {
	Kind TargetKind
	ID   string
	URL  string
}

// Key is the stable identity used for checkpoints and governor state.
func (t Target) Key() string {
	return string(t.Kind) + ":" + t.ID
}

// ParseTarget classifies a URL as a host or listing target using the
// site's own identifiers.
func ParseTarget(url string) (Target, error) {
	if id, ok := parseUserID(url); ok {
		return Target{Kind: TargetHost, ID: id, URL: url}, nil
	}
	if id, ok := parseListingID(url); ok {
		return Target{Kind: TargetListing, ID: id, URL: url}, nil
	}
	return Target{}, fmt.Errorf("%w: %s", ErrInvalidTargetURL, url)
}

// Stage names. Order within a target is fixed; each stage is
// independently resumable through its checkpoint.
const (
	StageProfile       = "profile"
	StageListings      = "listings"
	StageListingDetail = "listing_detail"
	StageReviews       = "reviews"
	StagePhotos        = "photos"
	StageGuidebooks    = "guidebooks"
	StageTravelHistory = "travel_history"
)

// StagesFor returns the ordered stage list for a target kind. Host
// targets cover the profile surfaces and discover listing targets;
// each listing runs its own detail/review/gallery machine so that page
// state stays strictly sequential per target.
func StagesFor(kind TargetKind) []string {
	switch kind {
	case TargetHost:
		return []string{StageProfile, StageListings, StageReviews, StageGuidebooks, StageTravelHistory}
	case TargetListing:
		return []string{StageListingDetail, StageReviews, StagePhotos}
	}
	return nil
}

// Session is the navigate/wait/interact surface of one browser context
// pinned to one target. Implemented by browser.Session; mocked in tests.
type Session interface {
	Navigate(ctx context.Context, url string) (*browser.PageState, error)
	Scroll(ctx context.Context) (*browser.PageState, error)
	Click(ctx context.Context, selector string) error
	WaitVisible(ctx context.Context, selector string) error
	Close() error
}

// SessionFactory opens a session for a target. The playwright browser
// provides one; tests substitute scripted sessions.
type SessionFactory func(targetID string) (Session, error)

// Store is the idempotent persistence and checkpoint surface. All
// upserts merge by natural key: present fields overwrite, unknown
// fields never erase prior values.
type Store interface {
	UpsertHost(ctx context.Context, h *models.HostProfile) error
	UpsertListing(ctx context.Context, l *models.Listing) error
	UpsertReviews(ctx context.Context, reviews []models.Review) error
	UpsertPhotos(ctx context.Context, photos []models.Photo) error
	UpsertGuidebooks(ctx context.Context, gbs []models.Guidebook) error
	UpsertGuidebookEntries(ctx context.Context, entries []models.GuidebookEntry) error
	UpsertTravelHistory(ctx context.Context, entries []models.TravelHistoryEntry) error

	ReadCheckpoint(ctx context.Context, targetKey, stage string) (*models.Checkpoint, error)
	WriteCheckpoint(ctx context.Context, cp *models.Checkpoint) error
	// ResetCheckpoint rewinds a done stage to pending. Used only by the
	// force-stages path; normal progress is monotonic.
	ResetCheckpoint(ctx context.Context, targetKey, stage string) error
}

// FailureCategory buckets a target's terminal error for the end-of-run
// summary, so a future run can decide whether to retry.
func FailureCategory(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrHardBlock), errors.Is(err, governor.ErrTargetHardBlocked):
		return "hard_block"
	case errors.Is(err, ErrSoftBlock), errors.Is(err, governor.ErrTargetBlocked):
		return "soft_block"
	case errors.Is(err, ErrCheckpointCorrupt):
		return "checkpoint_corrupt"
	case errors.Is(err, browser.ErrNavigationTimeout):
		return "navigation_timeout"
	case errors.Is(err, browser.ErrTransientNetwork):
		return "transient_network"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
