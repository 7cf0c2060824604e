package database

import (
	"database/sql"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"

	"github.com/equipdesk/backend-go/internal/logger"
)

// MigrationManager 数据库迁移管理器
// 负责创建pgvector扩展、表结构和match_documents函数
type MigrationManager struct {
	migrate *migrate.Migrate
}

// NewMigrationManager 创建迁移管理器
func NewMigrationManager(db *sql.DB, migrationPath string) (*MigrationManager, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationPath),
		"postgres",
		driver,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	return &MigrationManager{migrate: m}, nil
}

// Up 执行所有待执行的迁移
func (mm *MigrationManager) Up() error {
	err := mm.migrate.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if err == migrate.ErrNoChange {
		logger.Info("No migrations to apply")
	} else {
		logger.Info("Database migrations completed successfully")
	}
	return nil
}

// Down 回滚最后一次迁移
func (mm *MigrationManager) Down() error {
	if err := mm.migrate.Steps(-1); err != nil {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}
	logger.Info("Migration rollback completed")
	return nil
}

// Version 获取当前数据库版本
func (mm *MigrationManager) Version() (uint, bool, error) {
	version, dirty, err := mm.migrate.Version()
	if err != nil {
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}
	return version, dirty, nil
}

// Close 关闭迁移管理器
func (mm *MigrationManager) Close() {
	sourceErr, dbErr := mm.migrate.Close()
	if sourceErr != nil {
		logger.Warn("failed to close migration source", zap.Error(sourceErr))
	}
	if dbErr != nil {
		logger.Warn("failed to close migration database", zap.Error(dbErr))
	}
}
