package db

import (
	"fmt"

	"github.com/router-for-me/QuizAccess/internal/models"
	"gorm.io/gorm"
)

// Migrate runs database migrations for the current dialect.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	switch DialectName(conn) {
	case DialectSQLite:
		return migrateSQLite(conn)
	case DialectPostgres, "":
		return migratePostgres(conn)
	default:
		return fmt.Errorf("db: unsupported dialect: %s", DialectName(conn))
	}
}

// migratePostgres applies PostgreSQL-specific schema updates and indexes.
func migratePostgres(conn *gorm.DB) error {
	if errAutoMigrate := conn.AutoMigrate(&models.Quiz{}, &models.Attempt{}); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	if errBackfill := conn.Exec(`
		UPDATE quizzes
		SET extra_passwords = '[]'::jsonb
		WHERE extra_passwords IS NULL OR jsonb_typeof(extra_passwords) <> 'array'
	`).Error; errBackfill != nil {
		return fmt.Errorf("db: backfill extra passwords: %w", errBackfill)
	}
	if errIdx := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_attempts_unfinished
		ON attempts (quiz_id, user_id)
		WHERE state IN ('inprogress', 'overdue')
	`).Error; errIdx != nil {
		return fmt.Errorf("db: create unfinished attempts index: %w", errIdx)
	}
	return nil
}

// migrateSQLite applies SQLite-specific schema updates and indexes.
func migrateSQLite(conn *gorm.DB) error {
	if errAutoMigrate := conn.AutoMigrate(&models.Quiz{}, &models.Attempt{}); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	if errBackfill := conn.Exec(`
		UPDATE quizzes
		SET extra_passwords = '[]'
		WHERE extra_passwords IS NULL OR extra_passwords = ''
	`).Error; errBackfill != nil {
		return fmt.Errorf("db: backfill extra passwords: %w", errBackfill)
	}
	if errIdx := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_attempts_unfinished
		ON attempts (quiz_id, user_id)
		WHERE state IN ('inprogress', 'overdue')
	`).Error; errIdx != nil {
		return fmt.Errorf("db: create unfinished attempts index: %w", errIdx)
	}
	return nil
}
