package app

import (
	"context"
	"errors"
	"fmt"

	validator "github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-tierprice/internal/catalog"
	"github.com/noah-isme/toko-tierprice/internal/config"
	"github.com/noah-isme/toko-tierprice/internal/events"
	"github.com/noah-isme/toko-tierprice/internal/obs"
	"github.com/noah-isme/toko-tierprice/internal/pricecache"
	"github.com/noah-isme/toko-tierprice/internal/quote"
	"github.com/noah-isme/toko-tierprice/internal/token"
)

// TaskQueue is the asynq queue product change tasks are published to.
const TaskQueue = "pricing"

// Dependencies enumerates the services shared by the api and worker binaries.
type Dependencies struct {
	Config    *config.Config
	Logger    zerolog.Logger
	DB        *pgxpool.Pool
	Redis     *redis.Client
	Tasks     *asynq.Client
	Validator *validator.Validate

	Signer      *token.Signer
	Quotes      *pricecache.Store
	Products    *catalog.CachedProducts
	Invalidator quote.Invalidator
	Bus         *events.Bus
	Service     *quote.Service
}

// Options tweak how connections are opened.
type Options struct {
	AppName      string
	RedisMetrics bool
	// Publish enables the asynq publisher on the bus. The worker leaves it off.
	Publish bool
}

// New opens Postgres and Redis and assembles the pricing services.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts Options) (*Dependencies, error) {
	pool, err := OpenDatabase(ctx, cfg.DatabaseURL, opts.AppName)
	if err != nil {
		return nil, err
	}
	rdb, err := OpenRedis(ctx, cfg.RedisURL, opts.RedisMetrics, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}

	var (
		tasks     *asynq.Client
		publisher events.Enqueuer
	)
	if opts.Publish {
		connOpt, err := RedisConnOpt(cfg.RedisURL)
		if err != nil {
			pool.Close()
			_ = rdb.Close()
			return nil, err
		}
		tasks = asynq.NewClient(connOpt)
		publisher = tasks
	}

	deps, err := Build(cfg, logger, pool, rdb, publisher)
	if err != nil {
		pool.Close()
		_ = rdb.Close()
		if tasks != nil {
			_ = tasks.Close()
		}
		return nil, err
	}
	deps.DB = pool
	deps.Tasks = tasks
	return deps, nil
}

// Build wires the pricing services on top of already opened connections.
// tasks may be nil, in which case product changes stay local.
func Build(cfg *config.Config, logger zerolog.Logger, db catalog.Querier, rdb *redis.Client, tasks events.Enqueuer) (*Dependencies, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	prefix := cfg.Pricing.CachePrefix
	validate := validator.New()
	signer := token.NewSigner(cfg.TokenSecret, cfg.TokenTTL)
	quotes := pricecache.NewStore(rdb, prefix)
	products := catalog.NewCachedProducts(catalog.NewPGStore(db), catalog.NewCache(rdb, cfg.Pricing.CacheTTL), prefix)

	invalidator := quote.Invalidator{
		Quotes:    quotes,
		Snapshots: products,
		Logger:    logger.With().Str("component", "invalidator").Logger(),
	}
	bus := &events.Bus{}
	bus.Subscribe(invalidator)
	if tasks != nil {
		bus.Subscribe(events.TaskPublisher{Client: tasks, Queue: TaskQueue, MaxRetry: 5})
	}

	service, err := quote.NewService(quote.ServiceConfig{
		Products:     products,
		Cache:        quotes,
		Verifier:     signer,
		CacheTTL:     cfg.Pricing.CacheTTL,
		CacheEnabled: cfg.Pricing.CacheEnabled,
		Logger:       logger,
		Validator:    validate,
	})
	if err != nil {
		return nil, fmt.Errorf("app: quote service: %w", err)
	}

	return &Dependencies{
		Config:      cfg,
		Logger:      logger,
		Redis:       rdb,
		Validator:   validate,
		Signer:      signer,
		Quotes:      quotes,
		Products:    products,
		Invalidator: invalidator,
		Bus:         bus,
		Service:     service,
	}, nil
}

// Formatter builds the money formatter from the currency settings.
func (d *Dependencies) Formatter() catalog.Formatter {
	c := d.Config.Currency
	return catalog.Formatter{
		Symbol:      c.Symbol,
		Position:    c.Position,
		DecimalSep:  c.DecimalSep,
		ThousandSep: c.ThousandSep,
		Decimals:    int32(c.Decimals),
	}
}

// QuoteHandler builds the HTTP handler for the quote endpoints.
func (d *Dependencies) QuoteHandler(ajaxURL string) *quote.Handler {
	return quote.NewHandler(quote.HandlerConfig{
		Service:    d.Service,
		Products:   d.Products,
		Formatter:  d.Formatter(),
		Issuer:     d.Signer,
		Bus:        d.Bus,
		Client:     d.Config.Client(),
		AjaxURL:    ajaxURL,
		AdminToken: d.Config.AdminToken,
		Logger:     d.Logger,
	})
}

// Close releases every connection opened by New.
func (d *Dependencies) Close() {
	if d.Tasks != nil {
		if err := d.Tasks.Close(); err != nil {
			d.Logger.Error().Err(err).Msg("close task client")
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error().Err(err).Msg("close redis")
		}
	}
	if d.DB != nil {
		d.DB.Close()
	}
}

// OpenDatabase connects a pgx pool with query tracing enabled.
func OpenDatabase(ctx context.Context, databaseURL, appName string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	if appName != "" {
		poolConfig.ConnConfig.RuntimeParams["application_name"] = appName
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// OpenRedis connects a go-redis client instrumented with OpenTelemetry.
func OpenRedis(ctx context.Context, redisURL string, metrics bool, logger zerolog.Logger) (*redis.Client, error) {
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisConnOpt converts REDIS_URL into asynq connection options.
func RedisConnOpt(redisURL string) (asynq.RedisConnOpt, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url for asynq: %w", err)
	}
	return opt, nil
}
