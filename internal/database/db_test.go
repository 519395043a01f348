package database

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HafssaBN/human-imitation-for-airbnb/internal/models"
	"github.com/HafssaBN/human-imitation-for-airbnb/internal/scraper"
)

func newMockDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewWithPool(mock), mock
}

func TestUpsertHost(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec("INSERT INTO hosts").
		WithArgs("42", "https://www.airbnb.com/users/show/42",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	h := &models.HostProfile{
		UserID: "42",
		URL:    "https://www.airbnb.com/users/show/42",
		Name:   models.StringPtr("Amina"),
	}
	require.NoError(t, db.UpsertHost(context.Background(), h))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertListingWithoutPriceKeepsPriceColumnsNull(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec("INSERT INTO listings").
		WithArgs("101", "https://www.airbnb.com/rooms/101",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(),
			(*string)(nil), (*float64)(nil), (*float64)(nil), (*float64)(nil),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	l := &models.Listing{
		ListingID: "101",
		URL:       "https://www.airbnb.com/rooms/101",
		Title:     models.StringPtr("Riad in the medina"),
	}
	require.NoError(t, db.UpsertListing(context.Background(), l))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertReviewsRunsInOneTransaction(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO reviews").
		WithArgs(models.ReviewOfListing, "101", "r1",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO reviews").
		WithArgs(models.ReviewOfListing, "101", "r2",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	reviews := []models.Review{
		{ReviewID: "r1", SubjectType: models.ReviewOfListing, SubjectID: "101"},
		{ReviewID: "r2", SubjectType: models.ReviewOfListing, SubjectID: "101"},
	}
	require.NoError(t, db.UpsertReviews(context.Background(), reviews))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertReviewsEmptyIsNoop(t *testing.T) {
	db, mock := newMockDB(t)
	require.NoError(t, db.UpsertReviews(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadCheckpointMissingReturnsNil(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("SELECT target_key, stage, status, cursor, updated_at").
		WithArgs("listing:101", "reviews").
		WillReturnError(pgx.ErrNoRows)

	cp, err := db.ReadCheckpoint(context.Background(), "listing:101", "reviews")
	require.NoError(t, err)
	assert.Nil(t, cp)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteCheckpointFirstWrite(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT target_key, stage, status, cursor, updated_at").
		WithArgs("listing:101", "reviews").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("INSERT INTO checkpoints").
		WithArgs("listing:101", "reviews", "in_progress", "2").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	cp := &models.Checkpoint{
		TargetKey: "listing:101",
		Stage:     "reviews",
		Status:    models.CheckpointInProgress,
		Cursor:    "2",
	}
	require.NoError(t, db.WriteCheckpoint(context.Background(), cp))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteCheckpointRejectsRewindOfDoneStage(t *testing.T) {
	db, mock := newMockDB(t)

	rows := pgxmock.NewRows([]string{"target_key", "stage", "status", "cursor", "updated_at"}).
		AddRow("listing:101", "reviews", "done", "4", time.Now())
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT target_key, stage, status, cursor, updated_at").
		WithArgs("listing:101", "reviews").
		WillReturnRows(rows)
	mock.ExpectRollback()

	cp := &models.Checkpoint{
		TargetKey: "listing:101",
		Stage:     "reviews",
		Status:    models.CheckpointInProgress,
	}
	err := db.WriteCheckpoint(context.Background(), cp)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteCheckpointAllowsRetryOfFailedStage(t *testing.T) {
	db, mock := newMockDB(t)

	rows := pgxmock.NewRows([]string{"target_key", "stage", "status", "cursor", "updated_at"}).
		AddRow("listing:101", "photos", "failed", "37", time.Now())
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT target_key, stage, status, cursor, updated_at").
		WithArgs("listing:101", "photos").
		WillReturnRows(rows)
	mock.ExpectExec("INSERT INTO checkpoints").
		WithArgs("listing:101", "photos", "in_progress", "37").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	cp := &models.Checkpoint{
		TargetKey: "listing:101",
		Stage:     "photos",
		Status:    models.CheckpointInProgress,
		Cursor:    "37",
	}
	require.NoError(t, db.WriteCheckpoint(context.Background(), cp))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStats(t *testing.T) {
	db, mock := newMockDB(t)

	rows := pgxmock.NewRows([]string{"hosts", "listings", "reviews", "photos", "guidebooks", "entries", "travel"}).
		AddRow(int64(2), int64(5), int64(40), int64(137), int64(1), int64(8), int64(3))
	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	s, err := db.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(137), s.Photos)
	assert.Equal(t, int64(40), s.Reviews)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishWritesOutboxRow(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	ev := scraper.Event{
		RunID:     "run-1",
		TargetKey: "host:42",
		Kind:      scraper.TargetHost,
		Type:      scraper.EventTargetCompleted,
		At:        time.Now(),
	}
	require.NoError(t, db.Publish(context.Background(), ev))
	assert.NoError(t, mock.ExpectationsWereMet())
}
