// Package repository provides data access layer implementations for the application.
package repository

import (
	"context"
	"time"

	"itdesk/internal/models"

	"gorm.io/gorm"
)

// RequestRepository defines operations on the master requests table.
type RequestRepository interface {
	WithTx(tx *gorm.DB) RequestRepository
	Create(ctx context.Context, req *models.Request) error
	GetByID(ctx context.Context, id uint) (*models.Request, error)
	GetByIDForUpdate(ctx context.Context, id uint) (*models.Request, error)
	List(ctx context.Context) ([]*models.Request, error)
	ListByStatus(ctx context.Context, status models.Status) ([]*models.Request, error)
	ListIDs(ctx context.Context) ([]uint, error)
	UpdateStatus(ctx context.Context, id uint, next models.Status, expected *models.Status) (int64, error)
	Count(ctx context.Context) (int64, error)
	CountByStatus(ctx context.Context) (map[models.Status]int64, error)
	DeleteAll(ctx context.Context) error
}

type requestRepository struct {
	db *gorm.DB
}

// NewRequestRepository creates a new RequestRepository
func NewRequestRepository(db *gorm.DB) RequestRepository {
	return &requestRepository{db: db}
}

func (r *requestRepository) WithTx(tx *gorm.DB) RequestRepository {
	return &requestRepository{db: tx}
}

func (r *requestRepository) Create(ctx context.Context, req *models.Request) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *requestRepository) GetByID(ctx context.Context, id uint) (*models.Request, error) {
	var req models.Request
	if err := r.db.WithContext(ctx).First(&req, id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

// GetByIDForUpdate loads the row and holds its lock until the enclosing transaction ends.
func (r *requestRepository) GetByIDForUpdate(ctx context.Context, id uint) (*models.Request, error) {
	var req models.Request
	if err := forUpdate(r.db.WithContext(ctx)).First(&req, id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *requestRepository) List(ctx context.Context) ([]*models.Request, error) {
	var reqs []*models.Request
	err := r.db.WithContext(ctx).Order("created_at desc").Order("id desc").Find(&reqs).Error
	return reqs, err
}

func (r *requestRepository) ListByStatus(ctx context.Context, status models.Status) ([]*models.Request, error) {
	var reqs []*models.Request
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at desc").
		Order("id desc").
		Find(&reqs).Error
	return reqs, err
}

func (r *requestRepository) ListIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.Request{}).Order("id asc").Pluck("id", &ids).Error
	return ids, err
}

// UpdateStatus writes next and refreshes updated_at. When expected is set the write only
// applies while the stored status still equals it. It returns the number of rows changed.
func (r *requestRepository) UpdateStatus(
	ctx context.Context,
	id uint,
	next models.Status,
	expected *models.Status,
) (int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Request{}).Where("id = ?", id)
	if expected != nil {
		q = q.Where("status = ?", *expected)
	}
	res := q.Updates(map[string]interface{}{
		"status":     next,
		"updated_at": time.Now().UTC(),
	})
	return res.RowsAffected, res.Error
}

func (r *requestRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Request{}).Count(&n).Error
	return n, err
}

func (r *requestRepository) CountByStatus(ctx context.Context) (map[models.Status]int64, error) {
	var rows []struct {
		Status models.Status
		Total  int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.Request{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[models.Status]int64, len(models.Statuses))
	for _, st := range models.Statuses {
		counts[st] = 0
	}
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}

func (r *requestRepository) DeleteAll(ctx context.Context) error {
	return r.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&models.Request{}).Error
}
