package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"itdesk/internal/middleware"
	"itdesk/internal/models"
	"itdesk/internal/observability"
	"itdesk/internal/repository"

	"gorm.io/gorm"
)

// RebuildService regenerates and inspects the mirror partitions as a whole.
type RebuildService struct {
	db         *gorm.DB
	requests   repository.RequestRepository
	mirrors    repository.MirrorRepository
	sync       *Synchronizer
	maxRetries int
}

// LegacyMigrationReport summarizes a MigrateLegacyMirrors run.
type LegacyMigrationReport struct {
	Requests       int   `json:"requests"`
	LegacyRemoved  int64 `json:"legacy_removed"`
	OrphansRemoved int64 `json:"orphans_removed"`
}

// NewRebuildService creates a new RebuildService
func NewRebuildService(
	db *gorm.DB,
	requests repository.RequestRepository,
	mirrors repository.MirrorRepository,
	maxRetries int,
) *RebuildService {
	return &RebuildService{
		db:         db,
		requests:   requests,
		mirrors:    mirrors,
		sync:       NewSynchronizer(requests, mirrors),
		maxRetries: maxRetries,
	}
}

// RebuildAll empties every partition and re-derives it from the master table in one transaction.
// It returns the number of rows written to each partition.
func (s *RebuildService) RebuildAll(ctx context.Context) (counts map[models.Status]int64, err error) {
	span, ctx := observability.NewSpan(ctx, "RebuildService.RebuildAll")
	defer span.End()
	defer func() {
		observability.RebuildTotal.WithLabelValues(observability.ResultLabel(err)).Inc()
		span.SetError(err)
	}()

	err = runInTx(ctx, s.db, "rebuild", s.maxRetries, func(tx *gorm.DB) error {
		mirrors := s.mirrors.WithTx(tx)
		if err := mirrors.LockForRebuild(ctx); err != nil {
			return err
		}
		if err := mirrors.ClearAll(ctx); err != nil {
			return err
		}
		counts = make(map[models.Status]int64, len(models.Statuses))
		for _, st := range models.Statuses {
			n, err := mirrors.CopyFromMaster(ctx, st)
			if err != nil {
				return fmt.Errorf("rebuild %s: %w", st, err)
			}
			counts[st] = n
		}

		// Rows in a status outside the closed set would be silently dropped by the copy.
		total, err := s.requests.WithTx(tx).Count(ctx)
		if err != nil {
			return err
		}
		var copied int64
		for _, n := range counts {
			copied += n
		}
		if copied != total {
			return corruptionFromMaster(ctx, s.requests.WithTx(tx))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	middleware.Logger.InfoContext(ctx, "Rebuilt status tables from requests",
		slog.Int64("new", counts[models.StatusNew]),
		slog.Int64("inprogress", counts[models.StatusInProgress]),
		slog.Int64("completed", counts[models.StatusCompleted]),
		slog.Int64("rejected", counts[models.StatusRejected]),
	)
	return counts, nil
}

func corruptionFromMaster(ctx context.Context, requests repository.RequestRepository) error {
	byStatus, err := requests.CountByStatus(ctx)
	if err != nil {
		return err
	}
	for st := range byStatus {
		if st.Valid() {
			continue
		}
		reqs, err := requests.ListByStatus(ctx, st)
		if err != nil {
			return err
		}
		if len(reqs) > 0 {
			return models.NewCorruptionError(reqs[0].ID, st)
		}
	}
	return models.NewCorruptionError(0, "")
}

// Counts reports master and partition row counts from one consistent read.
func (s *RebuildService) Counts(ctx context.Context) (*models.PartitionCounts, error) {
	counts := &models.PartitionCounts{Partitions: make(map[models.Status]int64, len(models.Statuses))}
	err := runInTx(ctx, s.db, "counts", s.maxRetries, func(tx *gorm.DB) error {
		requests := s.requests.WithTx(tx)
		mirrors := s.mirrors.WithTx(tx)

		total, err := requests.Count(ctx)
		if err != nil {
			return err
		}
		counts.Requests = total

		byStatus, err := requests.CountByStatus(ctx)
		if err != nil {
			return err
		}
		counts.ByStatus = byStatus

		for _, st := range models.Statuses {
			n, err := mirrors.Count(ctx, st)
			if err != nil {
				return err
			}
			counts.Partitions[st] = n
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// ClearAll deletes every request and every mirror row in one transaction.
func (s *RebuildService) ClearAll(ctx context.Context) error {
	err := runInTx(ctx, s.db, "clear", s.maxRetries, func(tx *gorm.DB) error {
		if err := s.mirrors.WithTx(tx).ClearAll(ctx); err != nil {
			return err
		}
		return s.requests.WithTx(tx).DeleteAll(ctx)
	})
	if err != nil {
		return err
	}
	middleware.Logger.WarnContext(ctx, "Cleared requests and status tables")
	return nil
}

// MigrateLegacyMirrors removes mirror rows written before request_id linkage, either by
// matching them to a request on content or as unlinked orphans, then re-syncs every request
// and makes request_id mandatory.
func (s *RebuildService) MigrateLegacyMirrors(ctx context.Context) (*LegacyMigrationReport, error) {
	report := &LegacyMigrationReport{}
	err := runInTx(ctx, s.db, "migrate_legacy", s.maxRetries, func(tx *gorm.DB) error {
		*report = LegacyMigrationReport{}
		requests := s.requests.WithTx(tx)
		mirrors := s.mirrors.WithTx(tx)

		ids, err := requests.ListIDs(ctx)
		if err != nil {
			return err
		}
		report.Requests = len(ids)

		for _, id := range ids {
			req, err := requests.GetByID(ctx, id)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					continue
				}
				return err
			}
			n, err := mirrors.DeleteLegacyMatches(ctx, req)
			if err != nil {
				return err
			}
			report.LegacyRemoved += n
		}

		orphans, err := mirrors.DeleteUnlinked(ctx)
		if err != nil {
			return err
		}
		report.OrphansRemoved = orphans

		for _, id := range ids {
			if _, err := s.sync.Sync(ctx, tx, id); err != nil {
				return err
			}
		}
		return mirrors.RequireRequestID(ctx)
	})
	if err != nil {
		return nil, err
	}

	middleware.Logger.InfoContext(ctx, "Migrated legacy mirror rows",
		slog.Int("requests", report.Requests),
		slog.Int64("legacy_removed", report.LegacyRemoved),
		slog.Int64("orphans_removed", report.OrphansRemoved),
	)
	return report, nil
}
