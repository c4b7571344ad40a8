package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/re-search/internal/config"
	"github.com/jonesrussell/re-search/internal/database"
	"github.com/jonesrussell/re-search/internal/domain"
	"github.com/jonesrussell/re-search/internal/indexer"
	"github.com/jonesrussell/re-search/internal/logger"
	"github.com/jonesrussell/re-search/internal/reconcile"
)

// ErrRedisDisabled indicates Redis is disabled or not configured.
var ErrRedisDisabled = errors.New("redis disabled")

const redisConnectTimeout = 5 * time.Second

// OpportunityStore is the record store seen by the engine, the read API and
// the retention job.
type OpportunityStore interface {
	reconcile.Store
	RecentNew(ctx context.Context, since time.Time, limit int) ([]domain.Opportunity, error)
	DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// StorageComponents holds every connection and repository.
type StorageComponents struct {
	DB            *sqlx.DB
	Opportunities OpportunityStore
	Runs          *database.RunRepository
	Redis         *redis.Client
	Search        *indexer.Indexer
}

// SetupStorage connects PostgreSQL, Redis and Elasticsearch as configured.
// Disabled backends are left nil; without PostgreSQL records are kept in
// memory and no run log is written.
func SetupStorage(ctx context.Context, cfg *config.Config, log logger.Logger) (*StorageComponents, error) {
	sc := &StorageComponents{}

	if err := sc.setupDatabase(&cfg.Database, log); err != nil {
		return nil, err
	}

	client, err := CreateRedisClient(ctx, &cfg.Redis)
	switch {
	case err == nil:
		sc.Redis = client
		log.Info("Redis connected", logger.String("address", cfg.Redis.Address))
	case errors.Is(err, ErrRedisDisabled):
		log.Info("Redis disabled, budget and source locks are process-local")
	default:
		sc.Close(log)
		return nil, err
	}

	if cfg.Elasticsearch.Enabled {
		esClient, esErr := indexer.NewClient(ctx, &cfg.Elasticsearch, log)
		if esErr != nil {
			sc.Close(log)
			return nil, fmt.Errorf("setup elasticsearch: %w", esErr)
		}
		sc.Search = newIndexer(ctx, esClient, cfg.Elasticsearch.Index, log)
	}

	return sc, nil
}

func (sc *StorageComponents) setupDatabase(cfg *config.DatabaseConfig, log logger.Logger) error {
	if !cfg.IsEnabled() {
		log.Warn("Database disabled, opportunities are kept in memory")
		sc.Opportunities = reconcile.NewMemoryStore()
		return nil
	}

	db, err := database.NewPostgresConnection(cfg)
	if err != nil {
		return fmt.Errorf("setup database: %w", err)
	}
	log.Info("Database connected",
		logger.String("host", cfg.Host),
		logger.String("database", cfg.DBName),
	)

	sc.DB = db
	sc.Opportunities = database.NewOpportunityRepository(db)
	sc.Runs = database.NewRunRepository(db)
	return nil
}

// newIndexer creates the index if missing. A failure here is logged, not
// fatal: Index retries on every write.
func newIndexer(ctx context.Context, client *es.Client, index string, log logger.Logger) *indexer.Indexer {
	ix := indexer.New(client, index, log)
	if err := ix.EnsureIndex(ctx); err != nil {
		log.Warn("Ensure search index failed", logger.String("index", index), logger.Error(err))
	}
	return ix
}

// CreateRedisClient creates a Redis client from config and verifies it.
// Returns ErrRedisDisabled if Redis is disabled.
func CreateRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, ErrRedisDisabled
	}
	if cfg.Address == "" {
		return nil, errors.New("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisConnectTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return client, nil
}

// Close releases every open connection.
func (sc *StorageComponents) Close(log logger.Logger) {
	if sc.Redis != nil {
		if err := sc.Redis.Close(); err != nil {
			log.Error("Close redis failed", logger.Error(err))
		}
	}
	if sc.DB != nil {
		if err := sc.DB.Close(); err != nil {
			log.Error("Close database failed", logger.Error(err))
		}
	}
}
