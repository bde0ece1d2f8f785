package aggregator

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hanlab/newscrawl/internal/crawler"
	"github.com/hanlab/newscrawl/internal/metrics"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// StoreConfig controls the Postgres connection pool used for article rows.
type StoreConfig struct {
	DSN             string
	Table           string
	BatchSize       int
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type batchPool interface {
	SendBatch(ctx context.Context, batch *pgx.Batch) pgx.BatchResults
	Close()
}

// ArticleStore writes extraction results into Postgres. Each batch of rows
// is one server round-trip; the canonical URL is the conflict key, so
// re-running a request updates rows instead of duplicating them.
type ArticleStore struct {
	pool      batchPool
	table     string
	batchSize int
	logger    *zap.Logger
}

// NewArticleStore creates a Postgres-backed ArticleStore using the provided config.
func NewArticleStore(ctx context.Context, cfg StoreConfig, logger *zap.Logger) (*ArticleStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return newStore(pool, cfg, logger)
}

// NewArticleStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewArticleStoreWithPool(pool batchPool, cfg StoreConfig, logger *zap.Logger) (*ArticleStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return newStore(pool, cfg, logger)
}

func newStore(pool batchPool, cfg StoreConfig, logger *zap.Logger) (*ArticleStore, error) {
	table := cfg.Table
	if table == "" {
		table = "articles"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArticleStore{
		pool:      pool,
		table:     table,
		batchSize: batchSize,
		logger:    logger,
	}, nil
}

// Close releases the underlying pool resources.
func (s *ArticleStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// UpsertBatch writes results in chunks of the configured batch size and
// returns the number of rows written. A failed chunk aborts the call;
// chunks already sent stay written, and a retry of the same results is
// safe because the statement is an upsert.
func (s *ArticleStore) UpsertBatch(ctx context.Context, results []crawler.ExtractionResult) (int, error) {
	if s == nil || s.pool == nil {
		return 0, fmt.Errorf("article store is not configured")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	canonical_url,
	source,
	final_url,
	rank,
	title,
	body,
	title_selector,
	body_selector,
	status,
	content_length,
	attempts,
	extracted_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
)
ON CONFLICT (canonical_url) DO UPDATE SET
	source = EXCLUDED.source,
	final_url = EXCLUDED.final_url,
	rank = EXCLUDED.rank,
	title = EXCLUDED.title,
	body = EXCLUDED.body,
	title_selector = EXCLUDED.title_selector,
	body_selector = EXCLUDED.body_selector,
	status = EXCLUDED.status,
	content_length = EXCLUDED.content_length,
	attempts = EXCLUDED.attempts,
	extracted_at = EXCLUDED.extracted_at`, s.table)

	written := 0
	for start := 0; start < len(results); start += s.batchSize {
		end := start + s.batchSize
		if end > len(results) {
			end = len(results)
		}
		chunk := results[start:end]

		batch := &pgx.Batch{}
		for _, r := range chunk {
			batch.Queue(query,
				r.CanonicalURL,
				r.Source,
				r.FinalURL,
				r.Rank,
				r.Title,
				r.Body,
				r.TitleSelector,
				r.BodySelector,
				string(r.Status),
				r.ContentLength,
				r.Attempts,
				r.ExtractedAt,
			)
		}

		if err := s.sendBatch(ctx, batch); err != nil {
			return written, fmt.Errorf("upsert articles [%d:%d]: %w", start, end, err)
		}
		written += len(chunk)
		metrics.BatchesPersistedTotal.Inc()
		s.logger.Debug("article batch persisted",
			zap.Int("rows", len(chunk)),
			zap.Int("total", written),
		)
	}
	return written, nil
}

func (s *ArticleStore) sendBatch(ctx context.Context, batch *pgx.Batch) error {
	br := s.pool.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return err
		}
	}
	return br.Close()
}
