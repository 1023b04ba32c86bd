package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"time"

	appinstall "github.com/goliatone/go-appinstall"
	"github.com/goliatone/go-appinstall/adapters/gocommand"
	"github.com/goliatone/go-appinstall/adapters/gojob"
	"github.com/goliatone/go-appinstall/core"
	"github.com/goliatone/go-appinstall/metrics"
	installmigrations "github.com/goliatone/go-appinstall/migrations"
	"github.com/goliatone/go-appinstall/security"
	"github.com/goliatone/go-appinstall/server"
	"github.com/goliatone/go-appinstall/session"
	sqlstore "github.com/goliatone/go-appinstall/store/sql"
	"github.com/goliatone/go-command"
	jobredis "github.com/goliatone/go-job/queue/adapters/redis"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	"github.com/goliatone/go-job/queue/worker"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	rdb "github.com/redis/go-redis/v9"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

const defaultCacheTTL = time.Minute

type persistenceConfig struct {
	driver string
	dsn    string
	debug  bool
}

func (c persistenceConfig) GetDebug() bool                { return c.debug }
func (c persistenceConfig) GetDriver() string             { return c.driver }
func (c persistenceConfig) GetServer() string             { return c.dsn }
func (c persistenceConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c persistenceConfig) GetOtelIdentifier() string     { return "go-appinstall" }

// resolveConfig layers defaults, the file section and the secrets into one
// validated core.Config.
func resolveConfig(ctx context.Context, file fileConfig, secrets security.Secrets) (core.Config, error) {
	raw, err := file.serviceLayer()
	if err != nil {
		return core.Config{}, err
	}
	defaults := core.DefaultConfig()
	loaded, err := core.NewCfgxConfigProvider(core.StaticRawConfigLoader{Values: raw}).Load(ctx, defaults)
	if err != nil {
		return core.Config{}, err
	}
	runtime := core.Config{
		ClientID:     secrets.ClientID,
		ClientSecret: secrets.ClientSecret,
	}
	return core.GoOptionsResolver{}.Resolve(defaults, loaded, runtime)
}

func loadSecrets(file fileConfig, override string) (security.Secrets, error) {
	path := strings.TrimSpace(override)
	if path == "" {
		path = strings.TrimSpace(file.Secrets.Path)
	}
	if path == "" {
		return security.SecretsFromEnv(), nil
	}
	return security.LoadSecretFile(path)
}

func openPersistence(ctx context.Context, db databaseSection) (*persistence.Client, error) {
	driver := strings.TrimSpace(db.Driver)
	if driver != driverPostgres && driver != driverSQLite {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	sqlDB, err := sql.Open(driver, db.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}

	cfg := persistenceConfig{driver: driver, dsn: db.DSN, debug: db.Debug}
	var (
		client          *persistence.Client
		migrationTarget string
	)
	switch driver {
	case driverPostgres:
		migrationTarget = installmigrations.DialectPostgres
		client, err = persistence.New(cfg, sqlDB, pgdialect.New())
	default:
		sqlDB.SetMaxOpenConns(1)
		migrationTarget = installmigrations.DialectSQLite
		client, err = persistence.New(cfg, sqlDB, sqlitedialect.New())
	}
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("new persistence client: %w", err)
	}

	err = installmigrations.Register(ctx, func(_ context.Context, _ string, fsys fs.FS) error {
		client.RegisterSQLMigrations(fsys)
		return nil
	}, migrationTarget)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

type runtime struct {
	config   core.Config
	file     fileConfig
	logger   *slogLogger
	client   *persistence.Client
	service  *core.Service
	facade   *appinstall.Facade
	commands *gocommand.RegistryAdapter
	queue    *jobqueuecommand.Registry
	subs     gocommand.InstallSubscriptions
	sessions *session.Manager
	backend  session.Backend
	recorder *metrics.Recorder

	redis      map[string]*rdb.Client
	jobQueue   *jobredis.Adapter
	completion *gojob.CompletionQueue
	worker     *worker.Worker
}

// redisClient returns one client per address and database so sessions and
// the job queue share a connection pool when they point at the same redis.
func (rt *runtime) redisClient(addr string, db int) *rdb.Client {
	key := fmt.Sprintf("%s/%d", addr, db)
	if client, ok := rt.redis[key]; ok {
		return client
	}
	if rt.redis == nil {
		rt.redis = map[string]*rdb.Client{}
	}
	client := rdb.NewClient(&rdb.Options{Addr: addr, DB: db})
	rt.redis[key] = client
	return client
}

type runtimeOptions struct {
	secretsPath string
	migrate     bool
}

func buildRuntime(ctx context.Context, file fileConfig, logger *slogLogger, options runtimeOptions) (*runtime, error) {
	if err := file.validate(); err != nil {
		return nil, err
	}
	secrets, err := loadSecrets(file, options.secretsPath)
	if err != nil {
		return nil, err
	}
	cfg, err := resolveConfig(ctx, file, secrets)
	if err != nil {
		return nil, err
	}

	rt := &runtime{config: cfg, file: file, logger: logger}
	ok := false
	defer func() {
		if !ok {
			rt.Close()
		}
	}()

	rt.client, err = openPersistence(ctx, file.Database)
	if err != nil {
		return nil, err
	}
	if options.migrate {
		if err := rt.client.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	var factoryOpts []sqlstore.FactoryOption
	if file.Cache.Enabled {
		cacheConfig := repositorycache.DefaultConfig()
		cacheConfig.TTL = durationOr(file.Cache.TTL, defaultCacheTTL)
		cacheService, err := repositorycache.NewCacheService(cacheConfig)
		if err != nil {
			return nil, fmt.Errorf("new credential cache: %w", err)
		}
		factoryOpts = append(factoryOpts, sqlstore.WithCredentialCache(cacheService))
	}
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(rt.client, factoryOpts...)
	if err != nil {
		return nil, err
	}

	rt.recorder, err = metrics.NewRecorder(prometheus.NewRegistry())
	if err != nil {
		return nil, err
	}

	provider, err := appinstall.ShopifyProvider(cfg)
	if err != nil {
		return nil, err
	}
	serviceOpts := []core.Option{
		core.WithLoggerProvider(logger),
		core.WithMetricsRecorder(rt.recorder),
		core.WithProvider(provider),
		core.WithCredentialStore(factory.CredentialStore()),
	}
	sealer, err := secrets.SecretProvider()
	if err != nil {
		return nil, err
	}
	if sealer != nil {
		serviceOpts = append(serviceOpts, core.WithSecretProvider(sealer))
	}
	rt.service, err = core.NewService(cfg, serviceOpts...)
	if err != nil {
		return nil, err
	}

	rt.facade, err = appinstall.NewFacade(rt.service)
	if err != nil {
		return nil, err
	}
	rt.queue = jobqueuecommand.NewRegistry()
	rt.commands = gocommand.NewRegistryAdapter(command.NewRegistry())
	rt.subs, err = rt.facade.Register(rt.commands, appinstall.WithQueueRegistry(rt.queue))
	if err != nil {
		return nil, err
	}
	if err := rt.commands.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize command registry: %w", err)
	}

	if file.Jobs.Enabled {
		addr, db := file.Jobs.redisAddr(file.Session)
		rt.jobQueue = gojob.NewRedisQueue(rt.redisClient(addr, db), file.Jobs.Queue, durationOr(file.Jobs.Visibility, 0))
		rt.completion, err = gojob.NewCompletionQueue(rt.jobQueue, rt.queue)
		if err != nil {
			return nil, err
		}
	}

	switch file.Session.Backend {
	case sessionBackendRedis:
		rt.backend = session.NewRedisBackend(rt.redisClient(file.Session.RedisAddr, file.Session.RedisDB))
	default:
		rt.backend = session.NewMemoryBackend(cfg.Session.TTL)
	}
	rt.sessions, err = session.NewManager(rt.backend, cfg.Session, session.WithSecureCookie(file.Server.SecureCookies))
	if err != nil {
		return nil, err
	}

	ok = true
	return rt, nil
}

func (rt *runtime) Close() {
	if rt == nil {
		return
	}
	if rt.worker != nil {
		if err := rt.worker.Stop(context.Background()); err != nil && rt.logger != nil {
			rt.logger.Warn("stop completion worker", "error", err)
		}
		rt.worker = nil
	}
	if rt.subs != nil {
		rt.subs.Unsubscribe()
		rt.subs = nil
	}
	// redis backed sessions borrow a client from rt.redis
	if _, shared := rt.backend.(*session.RedisBackend); !shared {
		if closer, ok := rt.backend.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil && rt.logger != nil {
				rt.logger.Warn("close session backend", "error", err)
			}
		}
	}
	for key, client := range rt.redis {
		if err := client.Close(); err != nil && rt.logger != nil {
			rt.logger.Warn("close redis", "addr", key, "error", err)
		}
	}
	rt.redis = nil
	if rt.client != nil {
		if err := rt.client.Close(); err != nil && rt.logger != nil {
			rt.logger.Warn("close database", "error", err)
		}
		rt.client = nil
	}
}

// startCompletionWorker runs queued install completions when jobs are
// enabled. It is a no-op otherwise.
func (rt *runtime) startCompletionWorker(ctx context.Context) error {
	if rt.completion == nil || rt.worker != nil {
		return nil
	}
	jobs := rt.file.Jobs
	w, err := gojob.StartCompletionWorker(ctx, rt.jobQueue, rt.queue, rt.logger, rt.recorder, gojob.WorkerConfig{
		Concurrency:  jobs.Workers,
		MaxAttempts:  jobs.MaxAttempts,
		RetryBackoff: durationOr(jobs.RetryBackoff, 0),
	})
	if err != nil {
		return fmt.Errorf("start completion worker: %w", err)
	}
	rt.worker = w
	return nil
}

func (rt *runtime) serverOptions() []server.Option {
	opts := []server.Option{
		server.WithMetrics(rt.recorder),
		server.WithLoggerProvider(rt.logger),
	}
	if rt.completion != nil {
		opts = append(opts, server.WithCompletionQueue(rt.completion))
	}
	return opts
}
