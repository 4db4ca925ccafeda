package database

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/chrissnell/wxgapfill/internal/log"
	"go.uber.org/zap"
)

// CreateConnection opens a gorm connection to TimescaleDB with gorm's logger
// routed through zap.
func CreateConnection(connectionString string) (*gorm.DB, error) {
	dbLogger := logger.New(
		zap.NewStdLog(log.GetZapLogger()),
		logger.Config{
			SlowThreshold:             time.Second, // Slow SQL threshold
			LogLevel:                  logger.Warn, // Log level
			IgnoreRecordNotFoundError: true,        // Ignore ErrRecordNotFound error for logger
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(postgres.Open(connectionString), &gorm.Config{Logger: dbLogger})
	if err != nil {
		return nil, fmt.Errorf("unable to create a TimescaleDB connection: %w", err)
	}
	return db, nil
}

// ConnectWithRetry opens a connection and pings it, retrying with exponential
// backoff until maxElapsed passes or ctx is cancelled.
func ConnectWithRetry(ctx context.Context, connectionString string, maxElapsed time.Duration, logger *zap.SugaredLogger) (*gorm.DB, error) {
	var db *gorm.DB
	operation := func() error {
		conn, err := CreateConnection(connectionString)
		if err != nil {
			return err
		}
		sqlDB, err := conn.DB()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to get underlying database connection: %w", err))
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			_ = sqlDB.Close()
			return fmt.Errorf("database ping failed: %w", err)
		}
		db = conn
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = maxElapsed
	notify := func(err error, wait time.Duration) {
		logger.Warnf("TimescaleDB not reachable, retrying in %s: %v", wait.Round(time.Millisecond), err)
	}

	logger.Info("connecting to TimescaleDB...")
	if err := backoff.RetryNotify(operation, backoff.WithContext(bo, ctx), notify); err != nil {
		return nil, err
	}
	logger.Info("TimescaleDB connection successful")
	return db, nil
}
