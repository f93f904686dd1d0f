package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"z-novel-forge/pkg/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate 应用全部未执行的 up 迁移；databaseURL 使用 pgx5:// 协议
func Migrate(ctx context.Context, databaseURL string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migration: failed to open embedded source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("migration: failed to initialize: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			logger.Error(ctx, "migration source close failed", srcErr)
		}
		if dbErr != nil {
			logger.Error(ctx, "migration db close failed", dbErr)
		}
	}()
	m.Log = &migrateLogger{ctx: ctx}

	current, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("migration: failed to get current version: %w", err)
	}
	if dirty {
		return fmt.Errorf("migration: database is dirty at version %d", current)
	}

	logger.Info(ctx, "migration started", "current_version", current)
	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info(ctx, "migration already up to date")
			return nil
		}
		return fmt.Errorf("migration: up failed: %w", err)
	}

	next, _, _ := m.Version()
	logger.Info(ctx, "migration finished", "from_version", current, "to_version", next)
	return nil
}

// migrateLogger 将 golang-migrate 日志转到 slog
type migrateLogger struct {
	ctx context.Context
}

func (l *migrateLogger) Printf(format string, args ...any) {
	logger.Debug(l.ctx, fmt.Sprintf(format, args...))
}

func (l *migrateLogger) Verbose() bool {
	return false
}
