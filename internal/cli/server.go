package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"trivia-live/internal/app"
	"trivia-live/internal/config"
	"trivia-live/internal/infra/memory"
	natsstore "trivia-live/internal/infra/nats"
	pgstore "trivia-live/internal/infra/postgres"
	redisstore "trivia-live/internal/infra/redis"
	"trivia-live/internal/store"
	transport "trivia-live/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the trivia server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), opts.cfg)
		},
	}
}

// components is everything the server wires together, plus what must be
// closed on the way out.
type components struct {
	store    store.Store
	registry app.SessionRegistry
	quizzes  app.QuizRepository
	docs     app.QuizDocuments
	cache    app.QuizCache
	closers  []func()
}

func (c *components) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

func buildComponents(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*components, error) {
	c := &components{}
	ok := false
	defer func() {
		if !ok {
			c.close()
		}
	}()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		c.closers = append(c.closers, func() { _ = redisClient.Close() })
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 6*time.Hour)

	// quiz documents and the loader sessions read through
	memDocs := memory.NewQuizDocuments()
	var loader memory.QuizLoader = memDocs
	c.docs = memDocs
	if cfg.Postgres.URL != "" {
		db, err := openBun(cfg)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, func() { _ = db.Close() })
		if err := migrateDB(ctx, db); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("postgres connect: %w", err)
		}
		c.closers = append(c.closers, pool.Close)
		loader = pgstore.NewQuizLoader(pool)
		c.docs = pgstore.NewQuizDocuments(db)
	} else {
		logger.Warn().Msg("postgres not configured, quizzes are kept in memory")
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	if redisClient != nil {
		repo := redisstore.NewQuizRepository(redisClient, loader, quizTTL, logger)
		c.quizzes, c.cache = repo, repo
		c.registry = redisstore.NewSessionRegistry(redisClient, redisTTL)
	} else {
		repo := memory.NewQuizRepository(loader, quizTTL)
		c.quizzes, c.cache = repo, repo
		c.registry = memory.NewSessionRegistry()
	}

	switch cfg.Store.Backend {
	case config.BackendMemory, "":
		c.store = memory.NewTreeStore()
	case config.BackendRedis:
		if redisClient == nil {
			return nil, errors.New("store backend redis needs redis.addr")
		}
		ts := redisstore.NewTreeStore(redisClient, redisTTL, logger)
		c.closers = append(c.closers, func() { _ = ts.Close() })
		c.store = ts
	case config.BackendNATS:
		if cfg.NATS.URL == "" {
			return nil, errors.New("store backend nats needs nats.url")
		}
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name("trivia-live"))
		if err != nil {
			return nil, fmt.Errorf("nats connect: %w", err)
		}
		c.closers = append(c.closers, func() { _ = nc.Drain() })
		kv, err := natsstore.Connect(ctx, nc, cfg.NATS.Bucket, config.TTLDuration(cfg.NATS.TTL, 6*time.Hour), logger)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, func() { _ = kv.Close() })
		c.store = kv
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	ok = true
	return c, nil
}

func runServer(ctx context.Context, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.Logger
	c, err := buildComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.close()

	game := app.NewGameService(c.store, c.quizzes, c.registry, app.GameOptions{
		TimeForQuestion: cfg.Session.TimeForQuestion,
		Logger:          logger,
	})
	editor := app.NewQuizEditor(c.docs, c.cache, nil, logger)
	auth := transport.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if !auth.Enabled() {
		logger.Warn().Msg("auth.jwtSecret not set, hosts are anonymous")
	}

	server := &http.Server{
		Addr: ":" + cfg.Server.Port,
		Handler: transport.NewRouter(transport.RouterConfig{
			Game:           game,
			Editor:         editor,
			Auth:           auth,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			Logger:         logger,
		}),
		ReadHeaderTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("port", cfg.Server.Port).Str("store", cfg.Store.Backend).Msg("starting trivia server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		game.Shutdown(shutdownCtx)
		return err
	})
	return g.Wait()
}
