// Package backend opens the database and cache handles described by the
// connection strings of a node configuration.
package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotConfigured is returned for an empty connection string.
	ErrNotConfigured = errors.New("backend: not configured")
	// ErrUnsupportedScheme is returned for a URL scheme no driver handles.
	ErrUnsupportedScheme = errors.New("backend: unsupported scheme")
)

// DBOptions controls the connection pool of OpenDatabase.
// Zero values select the defaults.
type DBOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// MySQLDSN converts a mysql:// URL into a driver DSN.
// A string that already is a driver DSN is validated and returned normalized.
func MySQLDSN(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrNotConfigured
	}

	if !strings.Contains(raw, "://") {
		cfg, err := mysql.ParseDSN(raw)
		if err != nil {
			return "", fmt.Errorf("backend: parse dsn: %w", err)
		}
		return cfg.FormatDSN(), nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("backend: parse database url: %w", err)
	}
	if u.Scheme != "mysql" {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}

	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = u.Host
	if u.Port() == "" && u.Hostname() != "" {
		cfg.Addr = net.JoinHostPort(u.Hostname(), "3306")
	}
	cfg.DBName = strings.TrimPrefix(u.Path, "/")
	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
	}

	if q := u.Query(); len(q) > 0 {
		cfg.Params = make(map[string]string, len(q))
		for k := range q {
			cfg.Params[k] = q.Get(k)
		}
	}

	// round trip so driver-level params such as parseTime are validated
	parsed, err := mysql.ParseDSN(cfg.FormatDSN())
	if err != nil {
		return "", fmt.Errorf("backend: parse database url: %w", err)
	}
	return parsed.FormatDSN(), nil
}

// OpenDatabase opens a pooled MySQL handle for raw and pings it.
func OpenDatabase(ctx context.Context, raw string, opts DBOptions) (*sql.DB, error) {
	dsn, err := MySQLDSN(raw)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("backend: open database: %w", err)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(20)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(10)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(30 * time.Minute)
	}
	if opts.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("backend: ping database: %w", err)
	}
	return db, nil
}

// CacheOptions parses a redis://, rediss:// or unix:// URL.
func CacheOptions(raw string) (*redis.Options, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrNotConfigured
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("backend: parse cache url: %w", err)
	}
	switch u.Scheme {
	case "redis", "rediss", "unix":
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}

	opts, err := redis.ParseURL(raw)
	if err != nil {
		return nil, fmt.Errorf("backend: parse cache url: %w", err)
	}
	return opts, nil
}

// OpenCache connects to the cache at raw and pings it.
func OpenCache(ctx context.Context, raw string) (*redis.Client, error) {
	opts, err := CacheOptions(raw)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("backend: ping cache: %w", err)
	}
	return client, nil
}
