package database

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"itdesk/internal/middleware"

	"gorm.io/gorm"
)

// SchemaVersion is one row of the applied-migration ledger.
type SchemaVersion struct {
	Version   int    `gorm:"primaryKey;autoIncrement:false"`
	Name      string `gorm:"size:255;not null"`
	Checksum  string `gorm:"size:64;not null"`
	AppliedAt time.Time
}

// TableName pins the ledger table name.
func (SchemaVersion) TableName() string {
	return "schema_versions"
}

func checksum(script string) string {
	sum := sha256.Sum256([]byte(script))
	return hex.EncodeToString(sum[:])
}

func ensureLedger(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(&SchemaVersion{}); err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}
	return nil
}

func loadLedger(ctx context.Context, db *gorm.DB) ([]SchemaVersion, error) {
	var rows []SchemaVersion
	err := db.WithContext(ctx).Order("version ASC").Find(&rows).Error
	if err != nil {
		if isMissingTableError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read schema_versions: %w", err)
	}
	return rows, nil
}

// AppliedVersions lists the versions recorded in the ledger. A missing ledger means none.
func AppliedVersions(ctx context.Context, db *gorm.DB) ([]int, error) {
	rows, err := loadLedger(ctx, db)
	if err != nil {
		return nil, err
	}
	versions := make([]int, 0, len(rows))
	for _, r := range rows {
		versions = append(versions, r.Version)
	}
	return versions, nil
}

func isMissingTableError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "no such table") ||
		(strings.Contains(msg, "relation") && strings.Contains(msg, "does not exist"))
}

// RunMigrations applies every pending embedded migration in version order.
func RunMigrations(ctx context.Context, db *gorm.DB) error {
	return applyPending(ctx, db, migrations)
}

func applyPending(ctx context.Context, db *gorm.DB, set []Migration) error {
	if err := ensureLedger(ctx, db); err != nil {
		return err
	}
	ledger, err := loadLedger(ctx, db)
	if err != nil {
		return err
	}

	applied := make([]int, 0, len(ledger))
	sums := make(map[int]string, len(ledger))
	for _, r := range ledger {
		applied = append(applied, r.Version)
		sums[r.Version] = r.Checksum
	}
	if err := validateAppliedVersions(applied, set); err != nil {
		return err
	}

	for _, m := range set {
		if sum, ok := sums[m.Version]; ok {
			if sum != checksum(m.UpScript) {
				middleware.Logger.Warn("Applied migration differs from embedded script",
					slog.String("migration", m.String()))
			}
			continue
		}
		if err := applyOne(ctx, db, m); err != nil {
			return err
		}
	}
	return nil
}

// applyOne runs the script and records it in one transaction so a failed
// script leaves no ledger entry behind.
func applyOne(ctx context.Context, db *gorm.DB, m Migration) error {
	middleware.Logger.Info("Applying migration", slog.String("migration", m.String()))
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(m.UpScript).Error; err != nil {
			return fmt.Errorf("migration %s: %w", m.String(), err)
		}
		row := SchemaVersion{
			Version:   m.Version,
			Name:      m.Name,
			Checksum:  checksum(m.UpScript),
			AppliedAt: time.Now().UTC(),
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("record migration %s: %w", m.String(), err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	middleware.Logger.Info("Migration applied", slog.String("migration", m.String()))
	return nil
}

// validateAppliedVersions fails when the ledger holds versions this binary does not ship.
func validateAppliedVersions(applied []int, registered []Migration) error {
	var unknown []string
	for _, v := range applied {
		if !slices.ContainsFunc(registered, func(m Migration) bool { return m.Version == v }) {
			unknown = append(unknown, fmt.Sprintf("%06d", v))
		}
	}
	if len(unknown) > 0 {
		slices.Sort(unknown)
		return fmt.Errorf("schema_versions lists migrations this build does not know: %s (see reqctl migrate status)",
			strings.Join(unknown, ", "))
	}
	return nil
}

// RollbackMigration runs the down script of an applied migration and drops its ledger entry.
func RollbackMigration(ctx context.Context, db *gorm.DB, version int) error {
	return rollback(ctx, db, migrations, version)
}

func rollback(ctx context.Context, db *gorm.DB, set []Migration, version int) error {
	idx := slices.IndexFunc(set, func(m Migration) bool { return m.Version == version })
	if idx < 0 {
		return fmt.Errorf("migration version %d not found", version)
	}
	m := set[idx]

	applied, err := AppliedVersions(ctx, db)
	if err != nil {
		return err
	}
	if !slices.Contains(applied, version) {
		return fmt.Errorf("migration %d has not been applied", version)
	}

	middleware.Logger.Info("Rolling back migration", slog.String("migration", m.String()))
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(m.DownScript).Error; err != nil {
			return fmt.Errorf("rollback %s: %w", m.String(), err)
		}
		if err := tx.Where("version = ?", version).Delete(&SchemaVersion{}).Error; err != nil {
			return fmt.Errorf("unrecord migration %s: %w", m.String(), err)
		}
		return nil
	})
}
