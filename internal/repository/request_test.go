package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"itdesk/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestRequestRepository_CreateAndGet(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewRequestRepository(db)
	ctx := context.Background()

	reason := "old one flickers"
	userID := uint(7)
	req := newRequest("jdoe", "Monitor for Cubicle 4")
	req.Reason = &reason
	req.UserID = &userID
	require.NoError(t, repo.Create(ctx, req))
	assert.Equal(t, uint(1), req.ID)

	got, err := repo.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "jdoe", got.Username)
	assert.Equal(t, models.StatusNew, got.Status)
	require.NotNil(t, got.Reason)
	assert.Equal(t, reason, *got.Reason)

	_, err = repo.GetByID(ctx, 99)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	_, err = repo.GetByIDForUpdate(ctx, 99)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestRequestRepository_ListNewestFirst(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewRequestRepository(db)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	for i, text := range []string{"Keyboard", "Mouse", "Dock"} {
		req := newRequest("jdoe", text)
		req.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, repo.Create(ctx, req))
	}

	reqs, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, reqs, 3)
	assert.Equal(t, "Dock", reqs[0].RequestText)
	assert.Equal(t, "Keyboard", reqs[2].RequestText)

	ids, err := repo.ListIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint{1, 2, 3}, ids)
}

func TestRequestRepository_UpdateStatus(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewRequestRepository(db)
	ctx := context.Background()

	req := newRequest("asmith", "VPN access")
	require.NoError(t, repo.Create(ctx, req))
	before := req.UpdatedAt

	n, err := repo.UpdateStatus(ctx, req.ID, models.StatusInProgress, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := repo.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, got.Status)
	assert.False(t, got.UpdatedAt.Before(before))

	stale := models.StatusNew
	n, err = repo.UpdateStatus(ctx, req.ID, models.StatusRejected, &stale)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "guarded write must not apply on a stale expectation")

	current := models.StatusInProgress
	n, err = repo.UpdateStatus(ctx, req.ID, models.StatusCompleted, &current)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	inProgress, err := repo.ListByStatus(ctx, models.StatusInProgress)
	require.NoError(t, err)
	assert.Empty(t, inProgress)
	completed, err := repo.ListByStatus(ctx, models.StatusCompleted)
	require.NoError(t, err)
	assert.Len(t, completed, 1)

	n, err = repo.UpdateStatus(ctx, 404, models.StatusCompleted, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestRequestRepository_CountsAndDeleteAll(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewRequestRepository(db)
	ctx := context.Background()

	for _, text := range []string{"A", "B", "C"} {
		require.NoError(t, repo.Create(ctx, newRequest("jdoe", text)))
	}
	_, err := repo.UpdateStatus(ctx, 2, models.StatusRejected, nil)
	require.NoError(t, err)

	total, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	byStatus, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[models.Status]int64{
		models.StatusNew:        2,
		models.StatusInProgress: 0,
		models.StatusCompleted:  0,
		models.StatusRejected:   1,
	}, byStatus)

	require.NoError(t, repo.DeleteAll(ctx))
	total, err = repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestRequestRepository_GetByIDForUpdate_LocksRowOnPostgres(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewRequestRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "requests" WHERE "requests"."id" = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "request_text", "status"}).
			AddRow(1, "jdoe", "Monitor", "new"))

	got, err := repo.GetByIDForUpdate(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusNew, got.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
