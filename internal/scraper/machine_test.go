package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HafssaBN/human-imitation-for-airbnb/internal/browser"
	"github.com/HafssaBN/human-imitation-for-airbnb/internal/governor"
	"github.com/HafssaBN/human-imitation-for-airbnb/internal/models"
	"github.com/HafssaBN/human-imitation-for-airbnb/internal/ratelimit"
)

// fakeSession serves scripted page states by URL; scrolls consume a
// separate script and then hold the last page.
type fakeSession struct {
	mu        sync.Mutex
	pages     map[string]*browser.PageState
	scrolls   []*browser.PageState
	scrollIdx int
	current   *browser.PageState
	navLog    []string
	closed    bool
}

func (s *fakeSession) Navigate(_ context.Context, url string) (*browser.PageState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.navLog = append(s.navLog, url)
	if st, ok := s.pages[url]; ok {
		s.current = st
		return st, nil
	}
	st := &browser.PageState{URL: url, Class: browser.PageNormal, HTML: "<html><body></body></html>"}
	s.current = st
	return st, nil
}

func (s *fakeSession) Scroll(_ context.Context) (*browser.PageState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scrollIdx < len(s.scrolls) {
		s.current = s.scrolls[s.scrollIdx]
		s.scrollIdx++
	}
	if s.current == nil {
		s.current = &browser.PageState{Class: browser.PageNormal, HTML: "<html><body></body></html>"}
	}
	return s.current, nil
}

func (s *fakeSession) Click(context.Context, string) error       { return errors.New("no such element") }
func (s *fakeSession) WaitVisible(context.Context, string) error { return nil }

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSession) navigated() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.navLog...)
}

// memStore is an in-memory Store with the same merge and transition
// rules as the database layer, plus an operation log for ordering
// assertions.
type memStore struct {
	mu          sync.Mutex
	hosts       map[string]*models.HostProfile
	listings    map[string]*models.Listing
	reviews     map[string]models.Review
	photos      map[string]models.Photo
	guidebooks  map[string]models.Guidebook
	entries     map[string]models.GuidebookEntry
	travel      map[string]models.TravelHistoryEntry
	checkpoints map[string]*models.Checkpoint
	ops         []string
}

func newMemStore() *memStore {
	return &memStore{
		hosts:       map[string]*models.HostProfile{},
		listings:    map[string]*models.Listing{},
		reviews:     map[string]models.Review{},
		photos:      map[string]models.Photo{},
		guidebooks:  map[string]models.Guidebook{},
		entries:     map[string]models.GuidebookEntry{},
		travel:      map[string]models.TravelHistoryEntry{},
		checkpoints: map[string]*models.Checkpoint{},
	}
}

func (s *memStore) log(op string) { s.ops = append(s.ops, op) }

func (s *memStore) UpsertHost(_ context.Context, h *models.HostProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log("upsert_host")
	cp := *h
	s.hosts[h.UserID] = &cp
	return nil
}

func (s *memStore) UpsertListing(_ context.Context, l *models.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log("upsert_listing")
	if prev, ok := s.listings[l.ListingID]; ok {
		merged := *prev
		if l.Title != nil {
			merged.Title = l.Title
		}
		if l.HostID != nil {
			merged.HostID = l.HostID
		}
		if l.Price != nil {
			merged.Price = l.Price
		}
		s.listings[l.ListingID] = &merged
		return nil
	}
	cp := *l
	s.listings[l.ListingID] = &cp
	return nil
}

func (s *memStore) UpsertReviews(_ context.Context, reviews []models.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log("upsert_reviews")
	for _, r := range reviews {
		key := string(r.SubjectType) + "|" + r.SubjectID + "|" + r.ReviewID
		s.reviews[key] = r
	}
	return nil
}

func (s *memStore) UpsertPhotos(_ context.Context, photos []models.Photo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log("upsert_photos")
	for _, p := range photos {
		s.photos[fmt.Sprintf("%s|%d", p.ListingID, p.Seq)] = p
	}
	return nil
}

func (s *memStore) UpsertGuidebooks(_ context.Context, gbs []models.Guidebook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log("upsert_guidebooks")
	for _, g := range gbs {
		s.guidebooks[g.GuidebookID] = g
	}
	return nil
}

func (s *memStore) UpsertGuidebookEntries(_ context.Context, entries []models.GuidebookEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log("upsert_guidebook_entries")
	for _, e := range entries {
		s.entries[e.GuidebookID+"|"+e.Name] = e
	}
	return nil
}

func (s *memStore) UpsertTravelHistory(_ context.Context, entries []models.TravelHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log("upsert_travel_history")
	for _, e := range entries {
		key := e.HostID + "|" + e.Place
		if e.WhenLabel != nil {
			key += "|" + *e.WhenLabel
		}
		s.travel[key] = e
	}
	return nil
}

func (s *memStore) ReadCheckpoint(_ context.Context, targetKey, stage string) (*models.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.checkpoints[targetKey+"|"+stage]
	if !ok {
		return nil, nil
	}
	c := *cp
	return &c, nil
}

func (s *memStore) WriteCheckpoint(_ context.Context, cp *models.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := cp.TargetKey + "|" + cp.Stage
	if prev, ok := s.checkpoints[key]; ok && !prev.ValidTransition(cp.Status) {
		return fmt.Errorf("invalid checkpoint transition %s -> %s for %s", prev.Status, cp.Status, key)
	}
	s.log(fmt.Sprintf("checkpoint:%s:%s:%s", cp.Stage, cp.Status, cp.Cursor))
	c := *cp
	s.checkpoints[key] = &c
	return nil
}

func (s *memStore) ResetCheckpoint(_ context.Context, targetKey, stage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[targetKey+"|"+stage] = &models.Checkpoint{
		TargetKey: targetKey, Stage: stage, Status: models.CheckpointPending,
	}
	return nil
}

// seedCheckpoint bypasses transition validation for test setup.
func (s *memStore) seedCheckpoint(targetKey, stage string, status models.CheckpointStatus, cursor string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[targetKey+"|"+stage] = &models.Checkpoint{
		TargetKey: targetKey, Stage: stage, Status: status, Cursor: cursor, UpdatedAt: time.Now(),
	}
}

func (s *memStore) checkpoint(targetKey, stage string) *models.Checkpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkpoints[targetKey+"|"+stage]
}

func (s *memStore) reviewIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for k := range s.reviews {
		out = append(out, k)
	}
	return out
}

func testGovernor() *governor.Governor {
	return governor.New(governor.Options{
		SoftBlockThreshold:  2,
		BackoffBase:         time.Millisecond,
		BackoffMax:          2 * time.Millisecond,
		Cooldown:            time.Minute,
		MaxTransientRetries: 2,
	})
}

func testMachine(sess Session, store Store) *Machine {
	return NewMachine(sess, store, testGovernor(), ratelimit.NewPacedLimiter(0, 0), Options{})
}

func page(url, html string) *browser.PageState {
	return &browser.PageState{URL: url, Title: "page", HTML: html, Class: browser.PageNormal}
}

func blockPage(url string, class browser.PageClass) *browser.PageState {
	return &browser.PageState{URL: url, Title: "blocked", HTML: "<html><body>Access Denied</body></html>", Class: class}
}

func profilePage(name string, listingIDs []string) string {
	var b strings.Builder
	b.WriteString("<html><body><h1>Hi, I'm " + name + "</h1>")
	for _, id := range listingIDs {
		fmt.Fprintf(&b, `<a href="/rooms/%s">listing</a>`, id)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func reviewsPage(ids []string, hasNext bool) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, id := range ids {
		fmt.Fprintf(&b, `<div data-review-id="%s"><h3>Guest</h3><span data-testid="review-text">Great stay %s</span></div>`, id, id)
	}
	if hasNext {
		b.WriteString(`<a data-testid="pagination-next" href="#">Next</a>`)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func galleryPage(n int) string {
	var b strings.Builder
	b.WriteString(`<html><body><div data-testid="photo-viewer">`)
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, `<img data-photo-seq="%d" src="https://cdn.example.net/p-%d.jpg" alt="">`, i, i)
	}
	b.WriteString("</div></body></html>")
	return b.String()
}

func reviewIDRange(from, to int) []string {
	var out []string
	for i := from; i <= to; i++ {
		out = append(out, fmt.Sprintf("r%d", i))
	}
	return out
}

func TestRunHostStages(t *testing.T) {
	target := Target{Kind: TargetHost, ID: "42", URL: HostURL("42")}

	pages := map[string]*browser.PageState{}
	pages[target.URL] = page(target.URL, profilePage("Amina", []string{"101", "202"}))
	pages[reviewsPageURL(target, 1)] = page("", reviewsPage(reviewIDRange(1, 4), false))

	sess := &fakeSession{pages: pages}
	store := newMemStore()

	var discovered []Target
	m := testMachine(sess, store)
	m.opts.Discover = func(lt Target) { discovered = append(discovered, lt) }

	require.NoError(t, m.Run(context.Background(), target))

	host := store.hosts["42"]
	require.NotNil(t, host)
	require.NotNil(t, host.Name)
	assert.Equal(t, "Amina", *host.Name)

	assert.Len(t, store.listings, 2)
	require.Len(t, discovered, 2)
	assert.Equal(t, TargetListing, discovered[0].Kind)
	assert.Equal(t, "101", discovered[0].ID)

	assert.Len(t, store.reviewIDs(), 4)

	for _, stage := range StagesFor(TargetHost) {
		cp := store.checkpoint(target.Key(), stage)
		require.NotNil(t, cp, "stage %s should have a checkpoint", stage)
		assert.Equal(t, models.CheckpointDone, cp.Status, "stage %s", stage)
	}
}

func TestReviewsResumeMatchesUninterruptedRun(t *testing.T) {
	target := Target{Kind: TargetListing, ID: "555", URL: ListingURL("555")}
	pages := map[string]*browser.PageState{
		reviewsPageURL(target, 1): page("", reviewsPage(reviewIDRange(1, 5), true)),
		reviewsPageURL(target, 2): page("", reviewsPage(reviewIDRange(6, 10), true)),
		reviewsPageURL(target, 3): page("", reviewsPage(reviewIDRange(11, 13), false)),
	}

	// Uninterrupted run.
	fullStore := newMemStore()
	fullSess := &fakeSession{pages: pages}
	require.NoError(t, testMachine(fullSess, fullStore).Run(context.Background(), target))

	// A run that previously persisted pages 1 and 2 and failed before
	// finishing page 3: cursor holds the next page to fetch.
	resStore := newMemStore()
	require.NoError(t, resStore.UpsertReviews(context.Background(), extractSeedReviews(t, pages[reviewsPageURL(target, 1)].HTML, target.ID)))
	require.NoError(t, resStore.UpsertReviews(context.Background(), extractSeedReviews(t, pages[reviewsPageURL(target, 2)].HTML, target.ID)))
	resStore.seedCheckpoint(target.Key(), StageReviews, models.CheckpointFailed, "3")

	resSess := &fakeSession{pages: pages}
	require.NoError(t, testMachine(resSess, resStore).Run(context.Background(), target))

	assert.ElementsMatch(t, fullStore.reviewIDs(), resStore.reviewIDs(),
		"resumed run must converge on the same review set")

	// The resumed run must not refetch completed pages.
	navs := resSess.navigated()
	assert.NotContains(t, navs, reviewsPageURL(target, 1))
	assert.NotContains(t, navs, reviewsPageURL(target, 2))
	assert.Contains(t, navs, reviewsPageURL(target, 3))
}

func extractSeedReviews(t *testing.T, html, listingID string) []models.Review {
	t.Helper()
	m := testMachine(&fakeSession{}, newMemStore())
	reviews, err := m.parser.ExtractReviews(html, models.ReviewOfListing, listingID)
	require.NoError(t, err)
	return reviews
}

func TestGalleryTerminatesAtLastPhoto(t *testing.T) {
	target := Target{Kind: TargetListing, ID: "777", URL: ListingURL("777")}
	const total = 137

	sess := &fakeSession{
		pages: map[string]*browser.PageState{
			photosURL(target): page("", galleryPage(24)),
		},
		scrolls: []*browser.PageState{
			page("", galleryPage(48)),
			page("", galleryPage(96)),
			page("", galleryPage(total)),
			// Every further scroll re-renders the same full gallery.
		},
	}
	store := newMemStore()
	store.seedCheckpoint(target.Key(), StageListingDetail, models.CheckpointDone, "")
	store.seedCheckpoint(target.Key(), StageReviews, models.CheckpointDone, "")

	require.NoError(t, testMachine(sess, store).Run(context.Background(), target))

	require.Len(t, store.photos, total)
	for i := 0; i < total; i++ {
		_, ok := store.photos[fmt.Sprintf("%s|%d", target.ID, i)]
		assert.True(t, ok, "photo seq %d missing", i)
	}

	cp := store.checkpoint(target.Key(), StagePhotos)
	require.NotNil(t, cp)
	assert.Equal(t, models.CheckpointDone, cp.Status)
	assert.Equal(t, "137", cp.Cursor)
}

func TestDuplicateReviewPageEndsPagination(t *testing.T) {
	target := Target{Kind: TargetListing, ID: "888", URL: ListingURL("888")}
	sess := &fakeSession{pages: map[string]*browser.PageState{
		// Page 2 serves the same content with a live next control: the
		// pagination is looping.
		reviewsPageURL(target, 1): page("", reviewsPage(reviewIDRange(1, 3), true)),
		reviewsPageURL(target, 2): page("", reviewsPage(reviewIDRange(1, 3), true)),
	}}
	store := newMemStore()
	store.seedCheckpoint(target.Key(), StageListingDetail, models.CheckpointDone, "")
	store.seedCheckpoint(target.Key(), StagePhotos, models.CheckpointDone, "")

	require.NoError(t, testMachine(sess, store).Run(context.Background(), target))

	assert.Len(t, store.reviewIDs(), 3)
	assert.NotContains(t, sess.navigated(), reviewsPageURL(target, 3))

	cp := store.checkpoint(target.Key(), StageReviews)
	require.NotNil(t, cp)
	assert.Equal(t, models.CheckpointDone, cp.Status)
}

func TestReviewsPersistBeforeCursorAdvance(t *testing.T) {
	target := Target{Kind: TargetListing, ID: "999", URL: ListingURL("999")}
	sess := &fakeSession{pages: map[string]*browser.PageState{
		reviewsPageURL(target, 1): page("", reviewsPage(reviewIDRange(1, 2), false)),
	}}
	store := newMemStore()
	store.seedCheckpoint(target.Key(), StageListingDetail, models.CheckpointDone, "")
	store.seedCheckpoint(target.Key(), StagePhotos, models.CheckpointDone, "")

	require.NoError(t, testMachine(sess, store).Run(context.Background(), target))

	upsertAt, cursorAt := -1, -1
	for i, op := range store.ops {
		if op == "upsert_reviews" && upsertAt == -1 {
			upsertAt = i
		}
		if op == fmt.Sprintf("checkpoint:%s:%s:2", StageReviews, models.CheckpointInProgress) {
			cursorAt = i
		}
	}
	require.NotEqual(t, -1, upsertAt, "reviews were never persisted")
	require.NotEqual(t, -1, cursorAt, "cursor never advanced")
	assert.Less(t, upsertAt, cursorAt, "rows must be persisted before the cursor moves past them")
}

func TestHardBlockAbortsTargetAndKeepsCheckpoints(t *testing.T) {
	target := Target{Kind: TargetHost, ID: "13", URL: HostURL("13")}
	pages := map[string]*browser.PageState{}
	pages[target.URL] = page(target.URL, profilePage("Karim", nil))
	pages[reviewsPageURL(target, 1)] = blockPage("", browser.PageHardBlock)

	sess := &fakeSession{pages: pages}
	store := newMemStore()

	gov := testGovernor()
	m := NewMachine(sess, store, gov, ratelimit.NewPacedLimiter(0, 0), Options{})
	err := m.Run(context.Background(), target)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrHardBlock))
	assert.Equal(t, "hard_block", FailureCategory(err))
	assert.Equal(t, governor.Blocked, gov.Health(target.Key()))

	assert.Equal(t, models.CheckpointDone, store.checkpoint(target.Key(), StageProfile).Status)
	assert.Equal(t, models.CheckpointDone, store.checkpoint(target.Key(), StageListings).Status)
	assert.Equal(t, models.CheckpointFailed, store.checkpoint(target.Key(), StageReviews).Status)
	assert.Nil(t, store.checkpoint(target.Key(), StageGuidebooks), "later stages must not start")

	// Partial data from completed stages survives the block.
	assert.NotNil(t, store.hosts["13"])
}

func TestSoftBlocksEscalateToBlockedTarget(t *testing.T) {
	target := Target{Kind: TargetHost, ID: "14", URL: HostURL("14")}
	sess := &fakeSession{pages: map[string]*browser.PageState{
		target.URL: {URL: target.URL, Title: "hold on", HTML: "<html><body>Please verify you are a human</body></html>", Class: browser.PageSoftBlock},
	}}
	store := newMemStore()

	gov := testGovernor() // threshold 2
	m := NewMachine(sess, store, gov, ratelimit.NewPacedLimiter(0, 0), Options{})
	err := m.Run(context.Background(), target)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSoftBlock))
	assert.Equal(t, "soft_block", FailureCategory(err))
	assert.Equal(t, models.CheckpointFailed, store.checkpoint(target.Key(), StageProfile).Status)
}

func TestDoneStageIsSkipped(t *testing.T) {
	target := Target{Kind: TargetListing, ID: "321", URL: ListingURL("321")}
	sess := &fakeSession{pages: map[string]*browser.PageState{
		reviewsPageURL(target, 1): page("", reviewsPage(reviewIDRange(1, 1), false)),
	}}
	store := newMemStore()
	store.seedCheckpoint(target.Key(), StageListingDetail, models.CheckpointDone, "")
	store.seedCheckpoint(target.Key(), StagePhotos, models.CheckpointDone, "")

	require.NoError(t, testMachine(sess, store).Run(context.Background(), target))

	assert.NotContains(t, sess.navigated(), target.URL, "done detail stage must not refetch the page")
	assert.Empty(t, store.listings)
}

func TestForceRerunsDoneStage(t *testing.T) {
	target := Target{Kind: TargetListing, ID: "321", URL: ListingURL("321")}
	sess := &fakeSession{pages: map[string]*browser.PageState{
		target.URL: page(target.URL, `<html><body><h1>Riad with terrace</h1></body></html>`),
	}}
	store := newMemStore()
	store.seedCheckpoint(target.Key(), StageListingDetail, models.CheckpointDone, "")
	store.seedCheckpoint(target.Key(), StageReviews, models.CheckpointDone, "")
	store.seedCheckpoint(target.Key(), StagePhotos, models.CheckpointDone, "")

	m := testMachine(sess, store)
	m.opts.Force = true
	require.NoError(t, m.Run(context.Background(), target))

	assert.Contains(t, sess.navigated(), target.URL)
	require.NotNil(t, store.listings["321"])
	require.NotNil(t, store.listings["321"].Title)
	assert.Equal(t, "Riad with terrace", *store.listings["321"].Title)
}

func TestCorruptCheckpointFailsLoudly(t *testing.T) {
	target := Target{Kind: TargetListing, ID: "666", URL: ListingURL("666")}
	store := newMemStore()
	store.seedCheckpoint(target.Key(), StageListingDetail, models.CheckpointStatus("paused"), "")

	err := testMachine(&fakeSession{}, store).Run(context.Background(), target)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCheckpointCorrupt))
	assert.Equal(t, "checkpoint_corrupt", FailureCategory(err))
}

func TestFailureCategorySplitsGovernorBlocks(t *testing.T) {
	soft := fmt.Errorf("stage reviews: %w", governor.ErrTargetBlocked)
	assert.Equal(t, "soft_block", FailureCategory(soft))

	hard := fmt.Errorf("stage reviews: %w", governor.ErrTargetHardBlocked)
	assert.Equal(t, "hard_block", FailureCategory(hard))
}

func TestParseTarget(t *testing.T) {
	tests := []struct {
		url      string
		wantKind TargetKind
		wantID   string
		wantErr  bool
	}{
		{url: "https://www.airbnb.com/users/show/530989054", wantKind: TargetHost, wantID: "530989054"},
		{url: "https://www.airbnb.com/rooms/12345", wantKind: TargetListing, wantID: "12345"},
		{url: "https://www.airbnb.com/help", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseTarget(tt.url)
		if tt.wantErr {
			assert.True(t, errors.Is(err, ErrInvalidTargetURL), "url %s", tt.url)
			continue
		}
		require.NoError(t, err, "url %s", tt.url)
		assert.Equal(t, tt.wantKind, got.Kind)
		assert.Equal(t, tt.wantID, got.ID)
	}
}
