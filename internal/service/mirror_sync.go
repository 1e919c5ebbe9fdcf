package service

import (
	"context"
	"errors"
	"fmt"

	"itdesk/internal/models"
	"itdesk/internal/observability"
	"itdesk/internal/repository"

	"gorm.io/gorm"
)

// Synchronizer reconciles the mirror partitions of one request with its master row.
// It is the only writer of mirror rows outside a full rebuild.
type Synchronizer struct {
	requests repository.RequestRepository
	mirrors  repository.MirrorRepository
}

// NewSynchronizer creates a new Synchronizer
func NewSynchronizer(requests repository.RequestRepository, mirrors repository.MirrorRepository) *Synchronizer {
	return &Synchronizer{requests: requests, mirrors: mirrors}
}

// Sync must run inside tx. It re-reads the master row, removes every mirror row linked to it
// from all partitions and inserts a fresh copy into the partition named by its status.
// A status with no partition aborts with a CORRUPTION error.
func (s *Synchronizer) Sync(ctx context.Context, tx *gorm.DB, requestID uint) (req *models.Request, err error) {
	defer func() {
		observability.MirrorSyncTotal.WithLabelValues(observability.ResultLabel(err)).Inc()
	}()

	req, err = s.requests.WithTx(tx).GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Request", requestID)
		}
		return nil, fmt.Errorf("load request %d: %w", requestID, err)
	}

	mirrors := s.mirrors.WithTx(tx)
	if _, err = mirrors.DeleteByRequestID(ctx, req.ID); err != nil {
		return nil, fmt.Errorf("clear mirrors of request %d: %w", req.ID, err)
	}

	if !req.Status.Valid() {
		return nil, models.NewCorruptionError(req.ID, req.Status)
	}

	row := models.NewMirrorRow(req)
	if err = mirrors.Insert(ctx, req.Status, &row); err != nil {
		return nil, fmt.Errorf("mirror request %d into %s: %w", req.ID, req.Status, err)
	}
	return req, nil
}
