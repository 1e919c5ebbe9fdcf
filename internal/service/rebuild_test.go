package service

import (
	"context"
	"errors"
	"testing"

	"itdesk/internal/models"
	"itdesk/internal/repository"
	"itdesk/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newRebuildService(db *gorm.DB) *RebuildService {
	return NewRebuildService(db, repository.NewRequestRepository(db), repository.NewMirrorRepository(db), 0)
}

// seedLifecycle creates four requests, one per status.
func seedLifecycle(t *testing.T, db *gorm.DB) []*models.Request {
	t.Helper()
	svc := newRequestService(db, DefaultPolicy(), nil)
	reqs := []*models.Request{
		mustCreate(t, svc, "jdoe", "Monitor for Cubicle 4"),
		mustCreate(t, svc, "asmith", "VPN token"),
		mustCreate(t, svc, "bwayne", "Docking station"),
		mustCreate(t, svc, "ckent", "Badge reader"),
	}
	mustMove(t, svc, reqs[1].ID, models.StatusInProgress)
	mustMove(t, svc, reqs[2].ID, models.StatusInProgress)
	mustMove(t, svc, reqs[2].ID, models.StatusCompleted)
	mustMove(t, svc, reqs[3].ID, models.StatusRejected)
	return reqs
}

func TestRebuildService_RepairsArbitraryCorruption(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	reqs := seedLifecycle(t, db)
	mirrors := repository.NewMirrorRepository(db)
	ctx := context.Background()

	// Missing row.
	_, err := mirrors.DeleteByRequestID(ctx, reqs[0].ID)
	require.NoError(t, err)
	// Duplicate in the wrong partition.
	stale := models.NewMirrorRow(reqs[1])
	require.NoError(t, mirrors.Insert(ctx, models.StatusRejected, &stale))
	// Row for a request that does not exist.
	orphan := models.MirrorRow{RequestID: 900, Username: "ghost", RequestText: "Nothing"}
	require.NoError(t, mirrors.Insert(ctx, models.StatusCompleted, &orphan))

	svc := newRebuildService(db)
	counts, err := svc.Counts(ctx)
	require.NoError(t, err)
	assert.True(t, counts.Drifted())

	rebuilt, err := svc.RebuildAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[models.Status]int64{
		models.StatusNew:        1,
		models.StatusInProgress: 1,
		models.StatusCompleted:  1,
		models.StatusRejected:   1,
	}, rebuilt)
	testutil.AssertPartitioned(t, db)

	counts, err = svc.Counts(ctx)
	require.NoError(t, err)
	assert.False(t, counts.Drifted())
	assert.Equal(t, int64(4), counts.Requests)

	rows, err := mirrors.List(ctx, models.StatusCompleted)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].SameContent(reqs[2]))
	assert.Equal(t, reqs[2].CreatedAt.Unix(), rows[0].CreatedAt.Unix())
}

func TestRebuildService_EmptyMaster(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	mirrors := repository.NewMirrorRepository(db)
	ctx := context.Background()

	orphan := models.MirrorRow{RequestID: 3, Username: "ghost", RequestText: "Nothing"}
	require.NoError(t, mirrors.Insert(ctx, models.StatusNew, &orphan))

	counts, err := newRebuildService(db).RebuildAll(ctx)
	require.NoError(t, err)
	for _, st := range models.Statuses {
		assert.Zero(t, counts[st], st)
	}
	n, err := mirrors.Count(ctx, models.StatusNew)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRebuildService_CorruptMasterAbortsRebuild(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	reqs := seedLifecycle(t, db)
	ctx := context.Background()

	require.NoError(t, db.Exec("UPDATE requests SET status = ? WHERE id = ?", "archived", reqs[0].ID).Error)

	_, err := newRebuildService(db).RebuildAll(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrCorruption), "got %v", err)

	// The cleared partitions were rolled back with the failed rebuild.
	found, err := repository.NewMirrorRepository(db).Locate(ctx, reqs[3].ID)
	require.NoError(t, err)
	assert.Equal(t, []models.Status{models.StatusRejected}, found)
}

func TestRebuildService_ClearAll(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	seedLifecycle(t, db)
	svc := newRebuildService(db)
	ctx := context.Background()

	require.NoError(t, svc.ClearAll(ctx))

	counts, err := svc.Counts(ctx)
	require.NoError(t, err)
	assert.Zero(t, counts.Requests)
	for _, st := range models.Statuses {
		assert.Zero(t, counts.Partitions[st], st)
	}

	// The status lookup survives.
	defs, err := repository.NewStatusRepository(db).List(ctx)
	require.NoError(t, err)
	assert.Len(t, defs, 4)
}

func TestRebuildService_MigrateLegacyMirrors(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	ctx := context.Background()
	requests := repository.NewRequestRepository(db)
	mirrors := repository.NewMirrorRepository(db)

	userID := uint(8)
	linked := &models.Request{Username: "jdoe", RequestText: "Monitor", Status: models.StatusInProgress}
	legacy := &models.Request{UserID: &userID, Username: "asmith", RequestText: "Mouse", Status: models.StatusNew}
	require.NoError(t, requests.Create(ctx, linked))
	require.NoError(t, requests.Create(ctx, legacy))

	// Pre-linkage copy of legacy in a stale partition, plus an unrelated unlinked leftover.
	oldCopy := models.MirrorRow{UserID: &userID, Username: "asmith", RequestText: "Mouse"}
	require.NoError(t, mirrors.Insert(ctx, models.StatusCompleted, &oldCopy))
	leftover := models.MirrorRow{Username: "nobody", RequestText: "Cable"}
	require.NoError(t, mirrors.Insert(ctx, models.StatusRejected, &leftover))
	// Linked row in the wrong partition.
	wrong := models.NewMirrorRow(linked)
	require.NoError(t, mirrors.Insert(ctx, models.StatusNew, &wrong))

	report, err := newRebuildService(db).MigrateLegacyMirrors(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Requests)
	assert.Equal(t, int64(1), report.LegacyRemoved)
	assert.Equal(t, int64(1), report.OrphansRemoved)

	testutil.AssertPartitioned(t, db)
	assert.Equal(t, []models.Status{models.StatusInProgress}, locate(t, db, linked.ID))
	assert.Equal(t, []models.Status{models.StatusNew}, locate(t, db, legacy.ID))
}
