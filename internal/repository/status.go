package repository

import (
	"context"

	"itdesk/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StatusRepository defines operations on the status lookup table.
type StatusRepository interface {
	Seed(ctx context.Context) error
	List(ctx context.Context) ([]models.StatusDefinition, error)
}

type statusRepository struct {
	db *gorm.DB
}

// NewStatusRepository creates a new StatusRepository
func NewStatusRepository(db *gorm.DB) StatusRepository {
	return &statusRepository{db: db}
}

// Seed inserts the closed status set. Existing rows are left untouched.
func (r *statusRepository) Seed(ctx context.Context) error {
	defs := models.StatusDefinitions()
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "status_name"}},
			DoNothing: true,
		}).
		Create(&defs).Error
}

func (r *statusRepository) List(ctx context.Context) ([]models.StatusDefinition, error) {
	var defs []models.StatusDefinition
	err := r.db.WithContext(ctx).Order("id asc").Find(&defs).Error
	return defs, err
}
