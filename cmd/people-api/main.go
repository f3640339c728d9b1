package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/Sternrassler/people-cache/pkg/api"
	"github.com/Sternrassler/people-cache/pkg/cache"
	"github.com/Sternrassler/people-cache/pkg/dao"
	"github.com/Sternrassler/people-cache/pkg/logging"
	"github.com/Sternrassler/people-cache/pkg/models"
	"github.com/Sternrassler/people-cache/pkg/storage"
)

const version = "0.1.0"

func main() {
	if err := run(os.Args); err != nil {
		log.Error().Err(err).Msg("fatal")
		os.Exit(1)
	}
}

func run(args []string) error {
	return newApp().Run(args)
}

func newApp() *cli.App {
	app := &cli.App{
		Name:    "people-api",
		Usage:   "person records service with a query cache",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "db-url",
				Usage:   "database connection string (sqlite://path or postgres://...)",
				Value:   storage.DefaultDatabaseURL,
				EnvVars: []string{"PEOPLE_DATABASE_URL", "DATABASE_URL"},
			},
			&cli.IntFlag{
				Name:    "db-max-conns",
				Usage:   "maximum open database connections (postgres only)",
				Value:   20,
				EnvVars: []string{"PEOPLE_DB_MAX_CONNS"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log verbosity (debug, info, warn, error)",
				Value:   string(logging.LevelInfo),
				EnvVars: []string{"PEOPLE_LOG_LEVEL", "LOG_LEVEL"},
			},
			&cli.BoolFlag{
				Name:    "log-pretty",
				Usage:   "human-readable console logs instead of JSON",
				EnvVars: []string{"PEOPLE_LOG_PRETTY"},
			},
		},
		Before: func(cctx *cli.Context) error {
			if _, err := logging.ParseLevel(cctx.String("log-level")); err != nil {
				return err
			}
			logging.Setup(logging.Config{
				Level:   logging.LogLevel(cctx.String("log-level")),
				Pretty:  cctx.Bool("log-pretty"),
				Service: "people-api",
				Output:  cctx.App.ErrWriter,
			})
			return nil
		},
	}

	app.Commands = []*cli.Command{
		{
			Name:   "serve",
			Usage:  "run the HTTP API",
			Action: runServe,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "listen",
					Usage:   "HTTP bind address",
					Value:   ":8080",
					EnvVars: []string{"PEOPLE_LISTEN"},
				},
				&cli.StringFlag{
					Name:    "cache-backend",
					Usage:   "query cache backend (memory or redis)",
					Value:   "memory",
					EnvVars: []string{"PEOPLE_CACHE_BACKEND"},
				},
				&cli.StringFlag{
					Name:    "redis-url",
					Usage:   "Redis URL for the redis cache backend",
					Value:   "redis://localhost:6379/0",
					EnvVars: []string{"PEOPLE_REDIS_URL", "REDIS_URL"},
				},
				&cli.StringFlag{
					Name:    "redis-prefix",
					Usage:   "key namespace for the redis cache backend",
					Value:   cache.DefaultRedisPrefix,
					EnvVars: []string{"PEOPLE_REDIS_PREFIX"},
				},
				&cli.DurationFlag{
					Name:    "cache-ttl",
					Usage:   "lifetime of cached lookups",
					Value:   cache.DefaultTTL,
					EnvVars: []string{"PEOPLE_CACHE_TTL"},
				},
				&cli.DurationFlag{
					Name:    "sweep-interval",
					Usage:   "how often expired entries are swept (memory backend)",
					Value:   cache.DefaultSweepInterval,
					EnvVars: []string{"PEOPLE_SWEEP_INTERVAL"},
				},
			},
		},
		{
			Name:   "migrate",
			Usage:  "create or update the people table",
			Action: runMigrate,
		},
		{
			Name:   "seed",
			Usage:  "insert fake people for development",
			Action: runSeed,
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:    "count",
					Aliases: []string{"n"},
					Usage:   "number of people to create",
					Value:   100,
				},
				&cli.IntFlag{
					Name:    "jobs",
					Aliases: []string{"j"},
					Usage:   "number of parallel inserts",
					Value:   4,
				},
			},
		},
	}

	return app
}

// openPeople connects to the configured database and migrates the schema.
func openPeople(cctx *cli.Context) (*storage.People, error) {
	logger := logging.NewLogger(logging.ComponentStorage)

	db, err := storage.SetupDatabase(cctx.String("db-url"), cctx.Int("db-max-conns"), logger)
	if err != nil {
		return nil, err
	}

	people := storage.NewPeople(db)
	if err := people.Migrate(cctx.Context); err != nil {
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return people, nil
}

func closePeople(people *storage.People) {
	sqlDB, err := people.DB().DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn().Err(err).Msg("closing database")
	}
}

// cacheBackend is the store plus the dependencies serve must manage for it.
type cacheBackend struct {
	store   cache.Store[models.Person]
	checks  map[string]api.Pinger
	sweeper cache.Sweeper
	close   func() error
}

func newCacheBackend(cctx *cli.Context) (*cacheBackend, error) {
	cfg := cache.DefaultConfig()
	cfg.DefaultTTL = cctx.Duration("cache-ttl")
	logger := logging.NewLogger(logging.ComponentCache)

	switch backend := cctx.String("cache-backend"); backend {
	case "memory":
		m := cache.NewManager[models.Person](cfg, logger)
		return &cacheBackend{
			store:   m,
			checks:  map[string]api.Pinger{},
			sweeper: m,
			close:   func() error { return nil },
		}, nil
	case "redis":
		opts, err := redis.ParseURL(cctx.String("redis-url"))
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		r := cache.NewRedisStore[models.Person](rdb, cctx.String("redis-prefix"), cfg, logger)
		return &cacheBackend{
			store:  r,
			checks: map[string]api.Pinger{"redis": r},
			close:  rdb.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q (want memory or redis)", backend)
	}
}

func runServe(cctx *cli.Context) error {
	backend, err := newCacheBackend(cctx)
	if err != nil {
		return err
	}
	defer backend.close()

	people, err := openPeople(cctx)
	if err != nil {
		return err
	}
	defer closePeople(people)

	daoCfg := dao.DefaultConfig()
	daoCfg.CacheTTL = cctx.Duration("cache-ttl")
	d := dao.New(people, backend.store, daoCfg, logging.NewLogger(logging.ComponentDAO))

	checks := backend.checks
	checks["database"] = people

	cfg := api.DefaultConfig()
	cfg.Listen = cctx.String("listen")
	cfg.Checks = checks
	srv := api.NewServer(d, cfg, logging.NewLogger(logging.ComponentServer))

	ctx, stop := signal.NotifyContext(cctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if backend.sweeper != nil {
		go cache.RunSweeper(ctx, backend.sweeper, cctx.Duration("sweep-interval"), logging.NewLogger(logging.ComponentSweeper))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info().Msg("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return <-errCh
}

func runMigrate(cctx *cli.Context) error {
	people, err := openPeople(cctx)
	if err != nil {
		return err
	}
	defer closePeople(people)

	log.Info().Msg("Database schema is up to date")
	return nil
}

func runSeed(cctx *cli.Context) error {
	people, err := openPeople(cctx)
	if err != nil {
		return err
	}
	defer closePeople(people)

	c := cache.NewManager[models.Person](cache.DefaultConfig(), logging.NewLogger(logging.ComponentCache))
	d := dao.New(people, c, dao.DefaultConfig(), logging.NewLogger(logging.ComponentDAO))

	logger := logging.NewLogger(logging.ComponentSeed)
	created, skipped, err := seedPeople(cctx.Context, d, cctx.Int("count"), cctx.Int("jobs"))
	logger.Info().
		Int("created", created).
		Int("skipped", skipped).
		Msg("Seeding finished")
	return err
}
