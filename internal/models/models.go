// Package models holds the data records produced by extraction and
// persisted by the database layer. Pointer fields mean "unknown": an
// extractor that cannot find a field leaves it nil, and the persistence
// layer never lets nil erase a previously stored value.
package models

import "time"

// HostProfile is one host's public profile page.
type HostProfile struct {
	UserID          string
	URL             string
	Name            *string
	IsSuperhost     *bool
	IsVerified      *bool
	RatingAverage   *float64
	RatingCount     *int
	JoinedYears     *int
	JoinedMonths    *int
	ResponseRate    *float64
	ProfilePhotoURL *string
	BioText         *string
	AboutText       *string
	ListingIDs      []string
	TotalListings   *int
	ScrapedAt       time.Time
}

// Price captures the nightly price as displayed, with the optional
// pre-discount figure and fee line when the page shows them.
type Price struct {
	Currency string
	Nightly  float64
	Original *float64
	Fees     *float64
}

// Listing is one property page.
type Listing struct {
	ListingID   string
	URL         string
	HostID      *string
	Title       *string
	Description *string
	RoomType    *string
	Location    *string
	Price       *Price
	GuestCap    *int
	ReviewCount *int
	Rating      *float64
	GuestFav    *bool
	Amenities   []string
	Lat         *float64
	Lng         *float64
	Metadata    map[string]string
	ScrapedAt   time.Time
}

// ReviewSubject distinguishes reviews left on a host profile from
// reviews left on a listing.
type ReviewSubject string

const (
	ReviewOfHost    ReviewSubject = "host"
	ReviewOfListing ReviewSubject = "listing"
)

// Review is one review block. Identity is (SubjectType, SubjectID,
// ReviewID); re-scraping the same review updates in place.
type Review struct {
	ReviewID    string
	SubjectType ReviewSubject
	SubjectID   string
	AuthorName  *string
	AuthorPlace *string
	Text        *string
	DateText    *string
	Rating      *float64
}

// Photo is one gallery image. Identity is (ListingID, Seq): the render
// position is the stable key, not the CDN URL, which rotates.
type Photo struct {
	ListingID string
	Seq       int
	URL       string
	Caption   *string
}

// Guidebook is one guidebook card on a host profile.
type Guidebook struct {
	GuidebookID string
	HostID      string
	Title       *string
	URL         string
}

// GuidebookEntry is one recommended place inside a guidebook.
type GuidebookEntry struct {
	GuidebookID string
	Name        string
	Category    *string
	Note        *string
}

// TravelHistoryEntry is one visited-place line on a host profile.
// Identity is (HostID, Place, WhenLabel).
type TravelHistoryEntry struct {
	HostID    string
	Place     string
	Country   *string
	WhenLabel *string
	TripCount *int
}

// CheckpointStatus is the lifecycle state of one (target, stage) pair.
type CheckpointStatus string

const (
	CheckpointPending    CheckpointStatus = "pending"
	CheckpointInProgress CheckpointStatus = "in_progress"
	CheckpointDone       CheckpointStatus = "done"
	CheckpointFailed     CheckpointStatus = "failed"
)

// KnownCheckpointStatus reports whether s is a status this code writes.
// Anything else in storage marks the checkpoint as corrupt.
func KnownCheckpointStatus(s CheckpointStatus) bool {
	switch s {
	case CheckpointPending, CheckpointInProgress, CheckpointDone, CheckpointFailed:
		return true
	}
	return false
}

// Checkpoint records how far one stage of one target has progressed.
// Cursor is stage-specific: a page number for review pagination, a
// collected-item count for galleries, an index for guidebook fan-out.
type Checkpoint struct {
	TargetKey string
	Stage     string
	Status    CheckpointStatus
	Cursor    string
	UpdatedAt time.Time
}

// ValidTransition enforces monotonic progress: done is terminal, and a
// failed stage can only move forward by being retried, never by being
// rewound to pending.
func (c *Checkpoint) ValidTransition(next CheckpointStatus) bool {
	switch c.Status {
	case CheckpointPending:
		return next == CheckpointInProgress || next == CheckpointFailed
	case CheckpointInProgress:
		return next == CheckpointInProgress || next == CheckpointDone || next == CheckpointFailed
	case CheckpointFailed:
		return next == CheckpointInProgress
	case CheckpointDone:
		return false
	}
	return false
}

func StringPtr(s string) *string  { return &s }
func IntPtr(n int) *int           { return &n }
func FloatPtr(f float64) *float64 { return &f }
func BoolPtr(b bool) *bool        { return &b }
