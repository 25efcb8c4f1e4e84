package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"prophyt/internal/config"
)

// DB bundles the gorm handle used by the repository with the raw pool used for readiness checks.
type DB struct {
	Gorm *gorm.DB
	SQL  *sql.DB
}

// Open connects to postgres, applies pool limits and verifies the connection before returning.
func Open(ctx context.Context, cfg config.DBConfig, log *zap.Logger) (*DB, error) {
	dsn, err := withTimezone(cfg.DSN, cfg.Timezone)
	if err != nil {
		return nil, err
	}

	slow := cfg.SlowQueryThreshold
	if slow <= 0 {
		slow = 500 * time.Millisecond
	}
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         NewGormLogger(log, slow),
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqldb, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqldb.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqldb.PingContext(pingCtx); err != nil {
		_ = sqldb.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &DB{Gorm: gdb, SQL: sqldb}, nil
}

func Close(db *DB) error {
	if db == nil || db.SQL == nil {
		return nil
	}
	return db.SQL.Close()
}

// withTimezone sets the session TimeZone on every pooled connection through the DSN.
// Both URL and keyword/value DSN forms are accepted; an explicit TimeZone in the DSN wins.
func withTimezone(dsn, tz string) (string, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" || strings.Contains(strings.ToLower(dsn), "timezone=") {
		return dsn, nil
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return "", fmt.Errorf("invalid db timezone %q: %w", tz, err)
	}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("parse dsn: %w", err)
		}
		q := u.Query()
		q.Set("TimeZone", tz)
		u.RawQuery = q.Encode()
		return u.String(), nil
	}
	return strings.TrimSpace(dsn) + " TimeZone=" + tz, nil
}
