package database

import (
	"fmt"

	"itdesk/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PersistentModels returns the schema-managed GORM models with a fixed table name.
// Mirror partitions share one model and are migrated per table by AutoMigrateSchema.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.StatusDefinition{},
		&models.Request{},
	}
}

// PartitionTables returns the mirror partition table names in lifecycle order.
func PartitionTables() []string {
	tables := make([]string, 0, len(models.Statuses))
	for _, st := range models.Statuses {
		tables = append(tables, models.PartitionTable(st))
	}
	return tables
}

// AutoMigrateSchema creates or updates the master, lookup and partition tables with GORM.
// Index names are global in SQLite, so the per-partition unique index is created explicitly.
func AutoMigrateSchema(db *gorm.DB) error {
	if err := db.AutoMigrate(PersistentModels()...); err != nil {
		return err
	}
	for _, table := range PartitionTables() {
		if err := db.Table(table).AutoMigrate(&models.MirrorRow{}); err != nil {
			return fmt.Errorf("migrate partition %s: %w", table, err)
		}
		if err := db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS ? ON ? (request_id)",
			clause.Column{Name: "idx_" + table + "_request_id"},
			clause.Table{Name: table},
		).Error; err != nil {
			return fmt.Errorf("index partition %s: %w", table, err)
		}
	}
	return nil
}
