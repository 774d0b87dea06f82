package backend

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vaughan0/go-ini"
	log "gopkg.in/inconshreveable/log15.v2"
)

func LoadConfig(path string) (ini.File, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := ini.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	return file, nil
}

// NewPool connects to the database described by the [database] section.
func NewPool(ctx context.Context, conf ini.File, logger log.Logger) (*pgxpool.Pool, error) {
	host, _ := conf.Get("database", "host")
	if host == "" {
		return nil, errors.New("config must contain database.host but it does not")
	}

	database, ok := conf.Get("database", "database")
	if !ok {
		return nil, errors.New("config must contain database.database but it does not")
	}

	poolConfig, err := pgxpool.ParseConfig("")
	if err != nil {
		return nil, err
	}

	poolConfig.ConnConfig.Host = host
	poolConfig.ConnConfig.Database = database
	if p, ok := conf.Get("database", "port"); ok {
		n, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("bad database.port: %w", err)
		}
		poolConfig.ConnConfig.Port = uint16(n)
	}
	if user, ok := conf.Get("database", "user"); ok {
		poolConfig.ConnConfig.User = user
	}
	if password, ok := conf.Get("database", "password"); ok {
		poolConfig.ConnConfig.Password = password
	}
	poolConfig.MaxConns = 10

	poolConfig.ConnConfig.Tracer, err = newQueryTracer(conf, logger)
	if err != nil {
		return nil, err
	}

	return pgxpool.NewWithConfig(ctx, poolConfig)
}

// LoadFeedConfig reads the [feed] section. Missing keys keep their DefaultFeedConfig values.
func LoadFeedConfig(conf ini.File) (FeedConfig, error) {
	config := DefaultFeedConfig

	ints := []struct {
		key string
		dst *int
		min int
	}{
		{"page_size", &config.PageSize, 1},
		{"max_items", &config.MaxItems, 0},
		{"gate_threshold", &config.GateThreshold, 0},
		{"max_views", &config.MaxViews, 0},
	}
	for _, f := range ints {
		s, ok := conf.Get("feed", f.key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil || n < f.min {
			return config, fmt.Errorf("bad feed.%s: %q", f.key, s)
		}
		*f.dst = n
	}

	if s, ok := conf.Get("feed", "view_ttl"); ok {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			return config, fmt.Errorf("bad feed.view_ttl: %q", s)
		}
		config.ViewTTL = d
	}

	return config, nil
}
