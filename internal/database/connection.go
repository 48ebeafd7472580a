// internal/database/connection.go
package database

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/javajoker/escrowflow-backend/internal/config"
	"github.com/javajoker/escrowflow-backend/internal/models"
)

var DB *gorm.DB

func Initialize(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var err error
	var gormConfig *gorm.Config

	// Configure GORM logger
	if cfg.LogLevel == "silent" {
		gormConfig = &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		}
	} else {
		gormConfig = &gorm.Config{
			Logger: logger.Default.LogMode(logger.Info),
		}
	}

	// Connect to database
	DB, err = gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB
	sqlDB, err := DB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.MaxLifetime) * time.Second)

	// Test connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("Database connection established successfully")
	return DB, nil
}

func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Printf("Error getting underlying sql.DB: %v", err)
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Printf("Error closing database connection: %v", err)
	} else {
		log.Println("Database connection closed successfully")
	}
}

func RunMigrations(db *gorm.DB) error {
	log.Println("Running database migrations...")

	// Enable UUID extension
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS \"uuid-ossp\"").Error; err != nil {
		return fmt.Errorf("failed to create UUID extension: %w", err)
	}

	// Run auto-migrations
	err := db.AutoMigrate(
		&models.User{},
		&models.Project{},
		&models.ProjectMember{},
		&models.ProjectDraft{},
		&models.Document{},
		&models.Milestone{},
		&models.PenaltyBreach{},
		&models.Fund{},
		&models.Escrow{},
		&models.Transaction{},
		&models.ChainError{},
		&models.Dispute{},
		&models.Notification{},
	)

	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Create indexes
	if err := createIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	log.Println("Database migrations completed successfully")
	return nil
}

func createIndexes(db *gorm.DB) error {
	indexes := []string{
		// User indexes
		"CREATE INDEX IF NOT EXISTS idx_users_email ON users(email)",
		"CREATE INDEX IF NOT EXISTS idx_users_role_status ON users(role, status)",

		// Project indexes
		"CREATE INDEX IF NOT EXISTS idx_projects_state ON projects(state)",
		"CREATE INDEX IF NOT EXISTS idx_projects_editor ON projects(current_editor)",
		"CREATE INDEX IF NOT EXISTS idx_projects_created_at ON projects(created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_project_members_project_user ON project_members(project_id, user_id)",
		"CREATE INDEX IF NOT EXISTS idx_project_drafts_project_type ON project_drafts(project_id, draft_type)",

		// Milestone indexes
		"CREATE INDEX IF NOT EXISTS idx_milestones_project_status ON milestones(project_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_milestones_parent ON milestones(parent_id)",
		"CREATE INDEX IF NOT EXISTS idx_milestones_assignee ON milestones(assignee_id)",

		// Fund and escrow indexes
		"CREATE INDEX IF NOT EXISTS idx_funds_project ON funds(project_id)",
		"CREATE INDEX IF NOT EXISTS idx_funds_milestone ON funds(milestone_id)",
		"CREATE INDEX IF NOT EXISTS idx_escrows_project ON escrows(project_id)",

		// Transaction indexes
		"CREATE INDEX IF NOT EXISTS idx_transactions_project ON transactions(project_id, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_transactions_hash ON transactions(tx_hash)",

		// Dispute indexes
		"CREATE INDEX IF NOT EXISTS idx_disputes_project_status ON disputes(project_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_disputes_parties ON disputes(raised_by_id, raised_to_id)",

		// Notification indexes
		"CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(recipient_id, created_at DESC)",
	}

	for _, index := range indexes {
		if err := db.Exec(index).Error; err != nil {
			log.Printf("Warning: Failed to create index: %s, Error: %v", index, err)
			// Continue with other indexes instead of failing completely
		}
	}

	return nil
}

// Transaction helper
func WithTransaction(db *gorm.DB, fn func(*gorm.DB) error) error {
	tx := db.Begin()
	if tx.Error != nil {
		return tx.Error
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

// WithSerializableTransaction runs fn in a serializable transaction with a
// statement timeout. Used for the multi-row project save, accept and
// permission updates where concurrent editors must not interleave.
func WithSerializableTransaction(db *gorm.DB, fn func(*gorm.DB) error) error {
	tx := db.Begin(&sql.TxOptions{Isolation: sql.LevelSerializable})
	if tx.Error != nil {
		return tx.Error
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := tx.Exec("SET LOCAL statement_timeout = '10s'").Error; err != nil {
		tx.Rollback()
		return err
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}
