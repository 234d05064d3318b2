package repository

import (
	"context"
	"regexp"
	"testing"

	"rally/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func TestActivityRepository_LockByIDUsesRowLock(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewActivityRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "activities" WHERE "activities"."id" = \$1 .*FOR UPDATE`).
		WithArgs(7, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "max_attendees", "current_attendees", "status"}).
			AddRow(7, 2, 1, models.ActivityStatusPublished))

	activity, err := repo.LockByID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, uint(7), activity.ID)
	require.NotNil(t, activity.MaxAttendees)
	assert.Equal(t, 2, *activity.MaxAttendees)
	assert.Equal(t, 1, activity.CurrentAttendees)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActivityRepository_LockByIDNotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewActivityRepository(db)

	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs(9, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.LockByID(context.Background(), 9)
	assert.True(t, models.HasCode(err, models.CodeNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostRepository_LockByIDUsesRowLock(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "posts" .*FOR UPDATE`).
		WithArgs(3, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "status"}).
			AddRow(3, 10, models.PostStatusActive))

	post, err := repo.LockByID(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, uint(10), post.UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActivityRepository_AdjustAttendeesIsRelative(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewActivityRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "activities" SET "current_attendees"=current_attendees + $1`)).
		WithArgs(-1, sqlmock.AnyArg(), 4).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.AdjustAttendees(context.Background(), 4, -1))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRsvpRepository_NextWaitlistedOrdering(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewRsvpRepository(db)

	mock.ExpectQuery(`FROM "rsvps" WHERE .*ORDER BY created_at ASC,id ASC`).
		WithArgs(5, models.RsvpStatusWaitlist, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "activity_id", "user_id", "status"}).
			AddRow(11, 5, 42, models.RsvpStatusWaitlist))

	rsvp, err := repo.NextWaitlisted(context.Background(), 5)
	require.NoError(t, err)
	require.NotNil(t, rsvp)
	assert.Equal(t, uint(11), rsvp.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConversionRepository_CreateTranslatesUniqueViolation(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewConversionRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "conversion_records"`)).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "idx_conversion_records_post_id"})
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.ConversionRecord{PostID: 1, ActivityID: 2})
	assert.True(t, models.HasCode(err, models.CodeConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, IsUniqueViolation(nil))
	assert.True(t, IsUniqueViolation(gorm.ErrDuplicatedKey))
	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsUniqueViolation(gorm.ErrRecordNotFound))
}
