// Package testutil provides shared test doubles and fixtures for backend tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"itdesk/internal/database"
	"itdesk/internal/models"
	"itdesk/internal/repository"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewSQLiteDB opens a private in-memory database with the full schema and seeded statuses.
// The database lives until the test ends.
func NewSQLiteDB(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.AutoMigrateSchema(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := repository.NewStatusRepository(db).Seed(context.Background()); err != nil {
		t.Fatalf("seed statuses: %v", err)
	}
	return db
}

// ErrInjected is returned by FailingMirrorRepo.
var ErrInjected = errors.New("injected mirror failure")

// FailingMirrorRepo wraps a MirrorRepository and fails one sync step with ErrInjected.
type FailingMirrorRepo struct {
	repository.MirrorRepository
	failDelete bool
}

// NewFailingMirrorRepo wraps inner so that inserts fail with ErrInjected.
func NewFailingMirrorRepo(inner repository.MirrorRepository) *FailingMirrorRepo {
	return &FailingMirrorRepo{MirrorRepository: inner}
}

// NewFailingDeleteMirrorRepo wraps inner so that DeleteByRequestID fails with ErrInjected
// and inserts go through.
func NewFailingDeleteMirrorRepo(inner repository.MirrorRepository) *FailingMirrorRepo {
	return &FailingMirrorRepo{MirrorRepository: inner, failDelete: true}
}

// WithTx keeps the failure behavior inside transactions.
func (f *FailingMirrorRepo) WithTx(tx *gorm.DB) repository.MirrorRepository {
	return &FailingMirrorRepo{MirrorRepository: f.MirrorRepository.WithTx(tx), failDelete: f.failDelete}
}

func (f *FailingMirrorRepo) Insert(ctx context.Context, status models.Status, row *models.MirrorRow) error {
	if f.failDelete {
		return f.MirrorRepository.Insert(ctx, status, row)
	}
	return ErrInjected
}

func (f *FailingMirrorRepo) DeleteByRequestID(ctx context.Context, requestID uint) (int64, error) {
	if f.failDelete {
		return 0, ErrInjected
	}
	return f.MirrorRepository.DeleteByRequestID(ctx, requestID)
}

// AssertPartitioned fails the test unless every request has exactly one mirror row,
// located in the partition named by its status.
func AssertPartitioned(t testing.TB, db *gorm.DB) {
	t.Helper()
	ctx := context.Background()

	reqs, err := repository.NewRequestRepository(db).List(ctx)
	if err != nil {
		t.Fatalf("list requests: %v", err)
	}
	mirrors := repository.NewMirrorRepository(db)
	var mirrored int64
	for _, req := range reqs {
		found, err := mirrors.Locate(ctx, req.ID)
		if err != nil {
			t.Fatalf("locate %d: %v", req.ID, err)
		}
		if len(found) != 1 || found[0] != req.Status {
			t.Errorf("request %d in status %q found in partitions %v", req.ID, req.Status, found)
		}
	}
	for _, st := range models.Statuses {
		n, err := mirrors.Count(ctx, st)
		if err != nil {
			t.Fatalf("count %s: %v", st, err)
		}
		mirrored += n
	}
	if mirrored != int64(len(reqs)) {
		t.Errorf("partitions hold %d rows for %d requests", mirrored, len(reqs))
	}
}
