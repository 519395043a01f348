package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HafssaBN/human-imitation-for-airbnb/internal/models"
)

type stubSource struct {
	hosts    []models.HostProfile
	listings []models.Listing
	reviews  []models.Review
	photos   []models.Photo
}

func (s *stubSource) Hosts(context.Context) ([]models.HostProfile, error) { return s.hosts, nil }
func (s *stubSource) Listings(context.Context) ([]models.Listing, error)  { return s.listings, nil }
func (s *stubSource) Reviews(context.Context) ([]models.Review, error)    { return s.reviews, nil }
func (s *stubSource) Photos(context.Context) ([]models.Photo, error)      { return s.photos, nil }

func parseCSV(t *testing.T, buf *bytes.Buffer) [][]string {
	t.Helper()
	records, err := csv.NewReader(buf).ReadAll()
	require.NoError(t, err)
	return records
}

func TestWriteHostsCSV(t *testing.T) {
	src := &stubSource{hosts: []models.HostProfile{
		{
			UserID:        "42",
			URL:           "https://www.airbnb.com/users/show/42",
			Name:          models.StringPtr("Amina"),
			IsSuperhost:   models.BoolPtr(true),
			RatingAverage: models.FloatPtr(4.92),
			RatingCount:   models.IntPtr(310),
		},
		// Sparse profile: unknown fields export as empty cells.
		{UserID: "77", URL: "https://www.airbnb.com/users/show/77"},
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteHostsCSV(context.Background(), src, &buf))

	records := parseCSV(t, &buf)
	require.Len(t, records, 3)
	assert.Equal(t, "user_id", records[0][0])
	assert.Equal(t, []string{"42", "https://www.airbnb.com/users/show/42", "Amina", "true", "", "4.92", "310", "", "", ""}, records[1])
	assert.Equal(t, "77", records[2][0])
	assert.Equal(t, "", records[2][2], "unknown name must be empty, not a zero value")
}

func TestWriteListingsCSVFlattensPrice(t *testing.T) {
	src := &stubSource{listings: []models.Listing{
		{
			ListingID: "101",
			URL:       "https://www.airbnb.com/rooms/101",
			Title:     models.StringPtr("Riad in the medina"),
			Price:     &models.Price{Currency: "MAD", Nightly: 750},
		},
		{ListingID: "202", URL: "https://www.airbnb.com/rooms/202"},
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteListingsCSV(context.Background(), src, &buf))

	records := parseCSV(t, &buf)
	require.Len(t, records, 3)
	assert.Equal(t, "MAD", records[1][6])
	assert.Equal(t, "750", records[1][7])
	assert.Equal(t, "", records[2][6], "no price means empty cells")
	assert.Equal(t, "", records[2][7])
}

func TestWritePhotosCSVKeepsGalleryOrder(t *testing.T) {
	src := &stubSource{photos: []models.Photo{
		{ListingID: "101", Seq: 0, URL: "https://cdn.example.net/p-0.jpg"},
		{ListingID: "101", Seq: 1, URL: "https://cdn.example.net/p-1.jpg"},
	}}

	var buf bytes.Buffer
	require.NoError(t, WritePhotosCSV(context.Background(), src, &buf))

	records := parseCSV(t, &buf)
	require.Len(t, records, 3)
	assert.Equal(t, "0", records[1][1])
	assert.Equal(t, "1", records[2][1])
}

func TestWriteReviewsCSV(t *testing.T) {
	src := &stubSource{reviews: []models.Review{
		{
			ReviewID:    "r1",
			SubjectType: models.ReviewOfListing,
			SubjectID:   "101",
			AuthorName:  models.StringPtr("Guest"),
			Text:        models.StringPtr("Great stay, spotless place"),
		},
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteReviewsCSV(context.Background(), src, &buf))

	records := parseCSV(t, &buf)
	require.Len(t, records, 2)
	assert.Equal(t, "listing", records[1][0])
	assert.Equal(t, "Great stay, spotless place", records[1][7])
}
