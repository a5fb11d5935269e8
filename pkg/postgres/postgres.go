package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

type Config struct {
	URL          string        `envconfig:"URL" required:"true"`
	Schema       string        `split_words:"true" default:"public"`
	MaxOpenConns int           `split_words:"true" default:"5"`
	DialTimeout  time.Duration `split_words:"true" default:"5s"`
	ReadTimeout  time.Duration `split_words:"true" default:"30s"`
	// IncludeTables restricts what the assistant can see. Empty means every
	// base table in Schema.
	IncludeTables []string      `split_words:"true"`
	QueryTimeout  time.Duration `split_words:"true" default:"15s"`
	RowLimit      int           `split_words:"true" default:"50"`
	Debug         bool          `split_words:"true" default:"false"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return errors.New("database url is required")
	}
	if c.RowLimit < 0 {
		return errors.New("row limit must be >= 0")
	}
	if c.QueryTimeout < 0 {
		return errors.New("query timeout must be >= 0")
	}
	return nil
}

// Tables returns the trimmed allow-list with empty entries dropped.
func (c Config) Tables() []string {
	out := make([]string, 0, len(c.IncludeTables))
	for _, name := range c.IncludeTables {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func New(ctx context.Context, cfg Config) (*bun.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	connector := pgdriver.NewConnector(
		pgdriver.WithDSN(cfg.URL),
		pgdriver.WithDialTimeout(cfg.DialTimeout),
		pgdriver.WithReadTimeout(cfg.ReadTimeout),
	)
	sqldb := sql.OpenDB(connector)
	if cfg.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
		sqldb.SetMaxIdleConns(cfg.MaxOpenConns)
	}

	db := bun.NewDB(sqldb, pgdialect.New())
	if cfg.Debug {
		db.AddQueryHook(queryLogger{})
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func MustNew(ctx context.Context, cfg Config) *bun.DB {
	db, err := New(ctx, cfg)
	if err != nil {
		panic(err)
	}
	return db
}

// queryLogger writes every statement bun executes at debug level.
type queryLogger struct{}

var _ bun.QueryHook = queryLogger{}

func (queryLogger) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (queryLogger) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	evt := log.Debug()
	if event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows) {
		evt = log.Warn().Err(event.Err)
	}
	evt.Str("query", event.Query).
		Dur("elapsed", time.Since(event.StartTime)).
		Msg("postgres query")
}
