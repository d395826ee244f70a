package analyzer

import (
	"context"
	"fmt"
	"time"

	"github.com/crewportal/ruletune/internal/config"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresSource reads history straight from the portal database. Each configured
// query receives $1 = window start and $2 = window end and returns one double precision
// column (cast with ::float8). NULL rows are ignored.
type PostgresSource struct {
	db      querier
	signals signals
}

// ConnectPostgresSource opens a pool for dsn and checks connectivity.
func ConnectPostgresSource(ctx context.Context, dsn string, sig map[string]config.SignalConfig) (*PostgresSource, *pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("connect history database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping history database: %w", err)
	}
	return NewPostgresSource(pool, sig), pool, nil
}

func NewPostgresSource(db querier, sig map[string]config.SignalConfig) *PostgresSource {
	return &PostgresSource{db: db, signals: sig}
}

// Counts ignores step; the query decides its own bucketing.
func (s *PostgresSource) Counts(ctx context.Context, key string, start, end time.Time, _ time.Duration) ([]float64, error) {
	q, err := s.signals.count(key)
	if err != nil {
		return nil, err
	}
	return s.values(ctx, q, start, end)
}

func (s *PostgresSource) AgesHours(ctx context.Context, key string, start, end time.Time) ([]float64, error) {
	q, err := s.signals.age(key)
	if err != nil {
		return nil, err
	}
	return s.values(ctx, q, start, end)
}

func (s *PostgresSource) values(ctx context.Context, q string, start, end time.Time) ([]float64, error) {
	rows, err := s.db.Query(ctx, q, start, end)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var v *float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		if v != nil {
			out = append(out, *v)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read history rows: %w", err)
	}
	return out, nil
}
