package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/qs3c/careerlane_server/config"
	"github.com/qs3c/careerlane_server/internal/model"
)

// DSN 拼接 Postgres 连接串
func DSN(cfg *config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database, cfg.SSLMode)
}

// NewPostgres 连接数据库并设置连接池
func NewPostgres(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(DSN(cfg)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return db, nil
}

// CheckEmbeddingDimensions 向量列宽度写死在表结构里，配置不一致时启动即失败
func CheckEmbeddingDimensions(dims int) error {
	if dims != model.EmbeddingDimensions {
		return fmt.Errorf("embedding.dimensions is %d but vector columns are vector(%d)", dims, model.EmbeddingDimensions)
	}
	return nil
}

// Models 所有需要迁移的模型
func Models() []interface{} {
	return []interface{}{
		&model.User{},
		&model.JobPosting{},
		&model.ScrapeRun{},
		&model.ChatSession{},
		&model.ChatMessage{},
	}
}

// Migrate 启用 pgvector 扩展并迁移表结构
func Migrate(db *gorm.DB) error {
	if db.Dialector.Name() == "postgres" {
		if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
			return fmt.Errorf("failed to enable pgvector: %w", err)
		}
	}
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}
