// Package postgres_store is the gorm/postgres implementation of the Store
// interface backing the Worker, Job, MetricSample, and ConfigEntry tables.
package postgres_store

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/catalystcommunity/app-utils-go/env"
	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/catalystcommunity/reactorcide/workerhost/internal/config"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/log/logrusadapter"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	PostgresStore = PostgresDbStore{}
	db            *gorm.DB
	pgxPool       *pgxpool.Pool
)

// PostgresDbStore implements store.Store against a PostgreSQL database via
// gorm, with a pgxpool-backed connect-with-backoff loop at startup.
type PostgresDbStore struct{}

// GetDB returns the underlying gorm.DB connection.
func (s PostgresDbStore) GetDB() *gorm.DB {
	return db
}

// getDB is a seam for request-scoped transactions; the Core has no HTTP
// CRUD surface that would populate one, so it always resolves to the
// package-global connection.
func (ps PostgresDbStore) getDB(ctx context.Context) *gorm.DB {
	return db
}

// Initialize opens the database connection, retrying with backoff per
// config.DbConnectMaxRetries/DbConnectRetryIntervalSeconds, and returns a
// deferred close function for the underlying connection pool.
func (s PostgresDbStore) Initialize() (func(), error) {
	uri := config.DbUri
	maxRetries := config.DbConnectMaxRetries
	retryInterval := time.Duration(config.DbConnectRetryIntervalSeconds) * time.Second

	pgxpoolConfig, err := pgxpool.ParseConfig(uri)
	if err != nil {
		return nil, err
	}
	logrusLogger := &logrus.Logger{
		Out:          os.Stderr,
		Formatter:    new(logrus.JSONFormatter),
		Hooks:        make(logrus.LevelHooks),
		Level:        logrus.ErrorLevel,
		ExitFunc:     os.Exit,
		ReportCaller: false,
	}
	pgxpoolConfig.ConnConfig.Logger = logrusadapter.NewLogger(logrusLogger)

	for attempt := 1; attempt <= maxRetries; attempt++ {
		pgxPool, err = pgxpool.ConnectConfig(context.Background(), pgxpoolConfig)
		if err == nil {
			break
		}
		if attempt == maxRetries {
			return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
		}
		logging.Log.WithError(err).Warnf("Database connection attempt %d/%d failed, retrying in %v", attempt, maxRetries, retryInterval)
		time.Sleep(retryInterval)
	}

	gormLogger := getLogger()
	nowFunc := func() time.Time {
		return time.Now().UTC()
	}
	db, err = gorm.Open(postgres.Open(uri), &gorm.Config{Logger: gormLogger, NowFunc: nowFunc})
	if err != nil {
		pgxPool.Close()
		return nil, err
	}
	return func() {
		pgxPool.Close()
	}, nil
}

func getLogger() logger.Interface {
	slowThresholdSeconds := env.GetEnvAsIntOrDefault("SQL_LOGGER_SLOW_SQL_SECONDS", "1")
	logLevel := config.SQLLoggerLevel
	ignoreRecordNotFound := env.GetEnvAsBoolOrDefault("SQL_LOGGER_IGNORE_RECORD_NOT_FOUND", "true")
	colorful := env.GetEnvAsBoolOrDefault("SQL_LOGGER_COLORFUL_LOGS", "true")
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Duration(slowThresholdSeconds) * time.Second,
			LogLevel:                  getLogLevel(logLevel),
			IgnoreRecordNotFoundError: ignoreRecordNotFound,
			Colorful:                  colorful,
		},
	)
}

// isValidUUID returns true if the given string is a valid UUID.
func isValidUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func getLogLevel(loglevel string) logger.LogLevel {
	switch strings.ToLower(loglevel) {
	case "info":
		return logger.Info
	case "warn":
		return logger.Warn
	case "error":
		return logger.Error
	case "silent":
		return logger.Silent
	default:
		return logger.Warn
	}
}
