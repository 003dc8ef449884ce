package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"festival-mileage/internal/app"
	"festival-mileage/internal/auth"
	"festival-mileage/internal/config"
	"festival-mileage/internal/docstore"
	"festival-mileage/internal/infra/firestore"
	"festival-mileage/internal/infra/memory"
	"festival-mileage/internal/infra/postgres"
	redisstore "festival-mileage/internal/infra/redis"
	"festival-mileage/internal/logging"
	"festival-mileage/internal/observability"
	transport "festival-mileage/internal/transport/http"
	firebase "firebase.google.com/go/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// version is stamped at build time with -ldflags.
var version = "dev"

// runtime holds the process-wide dependencies every command shares.
type runtime struct {
	cfg      config.Config
	log      *logging.Logger
	store    docstore.Store
	redis    *redis.Client
	firebase *firebase.App
	pool     *pgxpool.Pool
	services transport.Services
	closers  []func()
}

func loadRuntime(ctx context.Context, configPath string) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Env)
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, log: log}
	rt.closers = append(rt.closers, log.Flush)

	flush, err := observability.InitSentry(cfg.Sentry.DSN, cfg.Env, version)
	if err != nil {
		log.Warn("sentry disabled", zap.Error(err))
	}
	rt.closers = append(rt.closers, flush)

	if err := rt.openStore(ctx); err != nil {
		rt.Close()
		return nil, err
	}
	if err := rt.openPostgres(ctx); err != nil {
		rt.Close()
		return nil, err
	}
	rt.wireServices()
	return rt, nil
}

func (rt *runtime) openStore(ctx context.Context) error {
	logger := rt.log.Logger
	switch rt.cfg.Store.Driver {
	case config.DriverMemory:
		rt.store = memory.NewDocStore()
	case config.DriverRedis:
		rt.redis = redis.NewClient(&redis.Options{
			Addr:     rt.cfg.Redis.Addr,
			Password: rt.cfg.Redis.Password,
			DB:       rt.cfg.Redis.DB,
		})
		if err := rt.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		rt.closers = append(rt.closers, func() { _ = rt.redis.Close() })
		rt.store = redisstore.NewDocStore(rt.redis, rt.cfg.Redis.Prefix)
	case config.DriverFirestore:
		if err := rt.openFirebase(ctx); err != nil {
			return err
		}
		client, err := firestore.NewClient(ctx, rt.firebase)
		if err != nil {
			return err
		}
		rt.closers = append(rt.closers, func() { _ = client.Close() })
		rt.store = firestore.NewDocStore(client)
	default:
		return fmt.Errorf("unknown store driver %q", rt.cfg.Store.Driver)
	}
	logger.Info("document store ready", zap.String("driver", rt.cfg.Store.Driver))
	return nil
}

func (rt *runtime) openFirebase(ctx context.Context) error {
	if rt.firebase != nil {
		return nil
	}
	fb, err := firestore.NewApp(ctx, rt.cfg.Firestore.ProjectID, rt.cfg.Firestore.CredentialsFile)
	if err != nil {
		return err
	}
	rt.firebase = fb
	return nil
}

func (rt *runtime) openPostgres(ctx context.Context) error {
	if rt.cfg.Postgres.URL == "" {
		return nil
	}
	if err := runMigrationsWithConfig(ctx, rt.cfg, rt.log.Logger); err != nil {
		return err
	}
	pool, err := pgxpool.Connect(ctx, rt.cfg.Postgres.URL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	rt.pool = pool
	rt.closers = append(rt.closers, pool.Close)
	return nil
}

func (rt *runtime) wireServices() {
	logger := rt.log.Logger
	store := rt.store

	accounts := app.NewAccountService(store, logger)
	booths := app.NewBoothService(store, logger)

	cacheTTL := config.TTLDuration(rt.cfg.Booths.CacheTTL, time.Minute)
	var resolver app.BoothResolver
	if rt.redis != nil {
		resolver = redisstore.NewBoothCache(rt.redis, booths, cacheTTL)
	} else {
		resolver = memory.NewBoothCache(booths, cacheTTL)
	}

	var archive app.SnapshotArchive
	if rt.pool != nil {
		archive = postgres.NewSnapshotArchive(rt.pool)
	}

	rt.services = transport.Services{
		Store:    store,
		Accounts: accounts,
		Booths:   booths,
		Visits:   app.NewVisitService(store, resolver, accounts, logger),
		Quizzes:  app.NewQuizService(store, resolver, logger),
		Mileage:  app.NewMileageService(store, accounts, logger),
		Votes: app.NewLiveVote(store, app.DefaultRoundScope, logger,
			config.TTLDuration(rt.cfg.Vote.Duration, 30*time.Second),
			config.TTLDuration(rt.cfg.Vote.Grace, 2*time.Second)),
		Presence: app.NewPresenceService(store, logger),
		Classes:  app.NewClassService(store, archive, logger),
	}
}

func (rt *runtime) verifier(ctx context.Context) (auth.Verifier, error) {
	switch rt.cfg.Auth.Provider {
	case "firebase":
		if err := rt.openFirebase(ctx); err != nil {
			return nil, err
		}
		return auth.NewFirebaseVerifier(ctx, rt.firebase)
	case "jwt":
		return auth.NewJWTVerifier(rt.cfg.Auth.JWTSecret, rt.cfg.Auth.Issuer)
	default:
		return nil, errors.New("unknown auth provider " + rt.cfg.Auth.Provider)
	}
}

// Close releases resources in reverse order of acquisition.
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}
