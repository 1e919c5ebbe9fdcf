package repository

import (
	"context"
	"fmt"
	"strings"

	"itdesk/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const mirrorColumns = "request_id, user_id, username, request_text, reason, created_at, updated_at"

// MirrorRepository defines operations on the four status partition tables.
type MirrorRepository interface {
	WithTx(tx *gorm.DB) MirrorRepository
	Insert(ctx context.Context, status models.Status, row *models.MirrorRow) error
	DeleteByRequestID(ctx context.Context, requestID uint) (int64, error)
	Locate(ctx context.Context, requestID uint) ([]models.Status, error)
	List(ctx context.Context, status models.Status) ([]models.MirrorRow, error)
	Count(ctx context.Context, status models.Status) (int64, error)
	LockForRebuild(ctx context.Context) error
	ClearAll(ctx context.Context) error
	CopyFromMaster(ctx context.Context, status models.Status) (int64, error)
	DeleteLegacyMatches(ctx context.Context, req *models.Request) (int64, error)
	DeleteUnlinked(ctx context.Context) (int64, error)
	RequireRequestID(ctx context.Context) error
}

type mirrorRepository struct {
	db *gorm.DB
}

// NewMirrorRepository creates a new MirrorRepository
func NewMirrorRepository(db *gorm.DB) MirrorRepository {
	return &mirrorRepository{db: db}
}

func (r *mirrorRepository) WithTx(tx *gorm.DB) MirrorRepository {
	return &mirrorRepository{db: tx}
}

func partition(status models.Status) (string, error) {
	if !status.Valid() {
		return "", fmt.Errorf("no mirror partition for status %q", status)
	}
	return models.PartitionTable(status), nil
}

func (r *mirrorRepository) Insert(ctx context.Context, status models.Status, row *models.MirrorRow) error {
	table, err := partition(status)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Table(table).Create(row).Error
}

// DeleteByRequestID removes the rows linked to requestID from every partition.
func (r *mirrorRepository) DeleteByRequestID(ctx context.Context, requestID uint) (int64, error) {
	var total int64
	for _, st := range models.Statuses {
		res := r.db.WithContext(ctx).
			Table(models.PartitionTable(st)).
			Where("request_id = ?", requestID).
			Delete(&models.MirrorRow{})
		if res.Error != nil {
			return total, fmt.Errorf("delete from %s: %w", st, res.Error)
		}
		total += res.RowsAffected
	}
	return total, nil
}

// Locate returns the partition of every row linked to requestID, once per row.
func (r *mirrorRepository) Locate(ctx context.Context, requestID uint) ([]models.Status, error) {
	var found []models.Status
	for _, st := range models.Statuses {
		var n int64
		err := r.db.WithContext(ctx).
			Table(models.PartitionTable(st)).
			Where("request_id = ?", requestID).
			Count(&n).Error
		if err != nil {
			return nil, err
		}
		for i := int64(0); i < n; i++ {
			found = append(found, st)
		}
	}
	return found, nil
}

func (r *mirrorRepository) List(ctx context.Context, status models.Status) ([]models.MirrorRow, error) {
	table, err := partition(status)
	if err != nil {
		return nil, err
	}
	var rows []models.MirrorRow
	err = r.db.WithContext(ctx).Table(table).Order("request_id asc").Find(&rows).Error
	return rows, err
}

func (r *mirrorRepository) Count(ctx context.Context, status models.Status) (int64, error) {
	table, err := partition(status)
	if err != nil {
		return 0, err
	}
	var n int64
	err = r.db.WithContext(ctx).Table(table).Count(&n).Error
	return n, err
}

// LockForRebuild blocks writers on the master and all partitions until the transaction ends.
// It is a no-op outside PostgreSQL, where SQLite's single writer already excludes them.
func (r *mirrorRepository) LockForRebuild(ctx context.Context) error {
	if !isPostgres(r.db) {
		return nil
	}
	if err := r.db.WithContext(ctx).Exec("LOCK TABLE requests IN SHARE ROW EXCLUSIVE MODE").Error; err != nil {
		return fmt.Errorf("lock requests: %w", err)
	}

	tables := make([]string, 0, len(models.Statuses))
	for _, st := range models.Statuses {
		tables = append(tables, r.db.Statement.Quote(models.PartitionTable(st)))
	}
	stmt := "LOCK TABLE " + strings.Join(tables, ", ") + " IN EXCLUSIVE MODE"
	if err := r.db.WithContext(ctx).Exec(stmt).Error; err != nil {
		return fmt.Errorf("lock partitions: %w", err)
	}
	return nil
}

// ClearAll deletes every row from every partition.
func (r *mirrorRepository) ClearAll(ctx context.Context) error {
	for _, st := range models.Statuses {
		if err := r.db.WithContext(ctx).Exec("DELETE FROM ?", clause.Table{Name: models.PartitionTable(st)}).Error; err != nil {
			return fmt.Errorf("clear %s: %w", st, err)
		}
	}
	return nil
}

// CopyFromMaster fills the partition for status with a mirror of every master row in that status.
func (r *mirrorRepository) CopyFromMaster(ctx context.Context, status models.Status) (int64, error) {
	table, err := partition(status)
	if err != nil {
		return 0, err
	}
	res := r.db.WithContext(ctx).Exec(
		"INSERT INTO ? ("+mirrorColumns+") "+
			"SELECT id, user_id, username, request_text, reason, created_at, updated_at "+
			"FROM ? WHERE status = ? ORDER BY id",
		clause.Table{Name: table},
		clause.Table{Name: models.Request{}.TableName()},
		string(status),
	)
	return res.RowsAffected, res.Error
}

// DeleteLegacyMatches removes unlinked rows whose content equals req from every partition.
// Rows written before request_id linkage existed carry a NULL or zero request_id.
func (r *mirrorRepository) DeleteLegacyMatches(ctx context.Context, req *models.Request) (int64, error) {
	var total int64
	for _, st := range models.Statuses {
		q := r.db.WithContext(ctx).
			Table(models.PartitionTable(st)).
			Where("(request_id IS NULL OR request_id = 0)").
			Where("username = ? AND request_text = ?", req.Username, req.RequestText)
		if req.UserID == nil {
			q = q.Where("user_id IS NULL")
		} else {
			q = q.Where("user_id = ?", *req.UserID)
		}
		res := q.Delete(&models.MirrorRow{})
		if res.Error != nil {
			return total, fmt.Errorf("delete legacy rows from %s: %w", st, res.Error)
		}
		total += res.RowsAffected
	}
	return total, nil
}

// DeleteUnlinked removes rows that reference no existing master row.
func (r *mirrorRepository) DeleteUnlinked(ctx context.Context) (int64, error) {
	var total int64
	for _, st := range models.Statuses {
		res := r.db.WithContext(ctx).Exec(
			"DELETE FROM ? WHERE request_id IS NULL OR request_id NOT IN (SELECT id FROM ?)",
			clause.Table{Name: models.PartitionTable(st)},
			clause.Table{Name: models.Request{}.TableName()},
		)
		if res.Error != nil {
			return total, fmt.Errorf("delete unlinked rows from %s: %w", st, res.Error)
		}
		total += res.RowsAffected
	}
	return total, nil
}

// RequireRequestID makes request_id mandatory on every partition. PostgreSQL only.
func (r *mirrorRepository) RequireRequestID(ctx context.Context) error {
	if !isPostgres(r.db) {
		return nil
	}
	for _, st := range models.Statuses {
		err := r.db.WithContext(ctx).Exec(
			"ALTER TABLE ? ALTER COLUMN request_id SET NOT NULL",
			clause.Table{Name: models.PartitionTable(st)},
		).Error
		if err != nil {
			return fmt.Errorf("require request_id on %s: %w", st, err)
		}
	}
	return nil
}
