// Package app wires the sessiond runtime: config, logging, storage backends,
// the session manager and its HTTP surface.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"sessiond/cmd/identity"
	authapi "sessiond/cmd/internal/auth/api"
	"sessiond/cmd/internal/auth/credential"
	"sessiond/cmd/internal/auth/events"
	"sessiond/cmd/internal/auth/session"
	"sessiond/cmd/internal/notify"
	"sessiond/cmd/internal/pgmigrate"
	"sessiond/cmd/security/password"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"golang.org/x/sync/errgroup"
)

// App is the sessiond runtime. It owns backend connections and the HTTP
// server lifecycle.
type App struct {
	cfg Config
	log *slog.Logger

	pool  *pgxpool.Pool
	rdb   *redis.Client
	mongo *mongo.Client

	store    session.Store
	sessions *session.Manager
	hub      *events.Hub
	registry *prometheus.Registry
	handler  http.Handler
}

// New constructs a fully wired App from cfg and the package-owned settings
// in the environment. Backends named by cfg are connected before New
// returns.
func New(ctx context.Context, cfg Config, log *slog.Logger) (_ *App, err error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	credCfg, err := credential.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	enc, err := credential.New(credCfg)
	if err != nil {
		return nil, err
	}
	pwCfg, err := password.FromEnv()
	if err != nil {
		return nil, err
	}
	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	notifyCfg, err := notify.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	apiCfg, err := authapi.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	hasher, err := NewTokenHasher(cfg)
	if err != nil {
		return nil, err
	}
	notifier, err := notify.New(notifyCfg, log)
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log, registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			a.Close(context.WithoutCancel(ctx))
		}
	}()

	if err = a.connect(ctx); err != nil {
		return nil, err
	}
	if cfg.DBMigrate && a.pool != nil {
		if err = pgmigrate.Up(ctx, a.pool, sessCfg.PostgresSchema, log); err != nil {
			return nil, err
		}
		log.Info("db.migrated")
	}

	if a.store, err = a.sessionStore(ctx, sessCfg); err != nil {
		return nil, err
	}
	dir, err := a.identityDirectory(ctx, sessCfg, identity.NewPasswords(pwCfg))
	if err != nil {
		return nil, err
	}

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := []session.Option{
		session.WithLogger(log),
		session.WithNotifier(notifier),
		session.WithMetrics(session.NewMetrics(a.registry)),
		session.WithHasher(hasher),
		session.WithNotifyTimeout(sessCfg.NotifyTimeout),
	}
	var apiOpts []authapi.HandlerOption
	if cfg.EventsEnabled {
		a.hub = events.NewHub(log)
		opts = append(opts, session.WithPublisher(a.hub))
		apiOpts = append(apiOpts, authapi.WithEventHub(a.hub))
	}
	a.sessions = session.NewManager(a.store, enc, dir, opts...)

	auth, err := authapi.NewHandler(log, apiCfg, a.sessions, enc, apiOpts...)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	registerHTTP(mux, a, auth)

	var h http.Handler = mux
	h = WithCORS(h, cfg, log)
	if cfg.SecurityHeaders {
		h = WithSecurityHeaders(h)
	}
	a.handler = withRequestLogging(h, log, newHTTPMetrics(a.registry))

	log.Info("app.ready",
		"session_store", cfg.SessionStore,
		"identity_store", cfg.IdentityStore,
		"token_format", credCfg.Format,
		"token_hmac", hasher.HMACEnabled(),
		"notify_backend", notifyCfg.Backend,
		"events", cfg.EventsEnabled,
	)
	return a, nil
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Run serves HTTP on cfg.HTTPAddr and, for stores without native expiry,
// purges expired sessions every cfg.PurgeInterval. It blocks until ctx is
// canceled or the server fails, then shuts down gracefully and closes the
// backends.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.HTTPAddr)
	if err != nil {
		a.Close(context.WithoutCancel(ctx))
		return fmt.Errorf("listen %s: %w", a.cfg.HTTPAddr, err)
	}
	return a.serve(ctx, ln)
}

func (a *App) serve(ctx context.Context, ln net.Listener) error {
	// Request contexts, including open event feeds, end when shutdown starts.
	baseCtx, cancelBase := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelBase()

	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
		ErrorLog:          slog.NewLogLogger(a.log.Handler(), slog.LevelWarn),
	}
	srv.RegisterOnShutdown(cancelBase)

	base := runtimeBaseURL(ln.Addr().String())
	a.log.Info("server.start",
		"addr", ln.Addr().String(),
		"base_url", base,
		"events_url", wsBaseURL(base)+"/auth/events",
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("server.fail", "error", err)
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("server.stop", "reason", "context_done")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error("server.shutdown.fail", "error", err)
			return err
		}
		return nil
	})
	if p, ok := a.store.(session.Purger); ok && a.cfg.PurgeInterval > 0 {
		g.Go(func() error {
			return runJanitor(gctx, p, a.cfg.PurgeInterval, time.Now, a.log)
		})
	}

	err := g.Wait()

	drainCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
	defer cancel()
	if derr := a.sessions.Drain(drainCtx); derr != nil {
		a.log.Warn("session.drain.fail", "error", derr)
	}
	a.Close(drainCtx)

	a.log.Info("server.stopped")
	return err
}

// Close releases backend connections. It is safe to call more than once.
func (a *App) Close(ctx context.Context) {
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.Warn("redis.close.fail", "error", err)
		}
		a.rdb = nil
	}
	if a.mongo != nil {
		if err := a.mongo.Disconnect(ctx); err != nil {
			a.log.Warn("mongo.close.fail", "error", err)
		}
		a.mongo = nil
	}
}

// connect opens every backend that either store needs.
func (a *App) connect(ctx context.Context) error {
	var err error
	if a.cfg.needs(BackendPostgres) {
		if a.pool, err = NewDBPool(ctx, a.cfg); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		a.log.Info("db.enabled.postgres")
	}
	if a.cfg.needs(BackendRedis) {
		if a.rdb, err = ConnectRedis(ctx, a.cfg); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		a.log.Info("db.enabled.redis")
	}
	if a.cfg.needs(BackendMongo) {
		if a.mongo, err = ConnectMongo(ctx, a.cfg); err != nil {
			return fmt.Errorf("mongo: %w", err)
		}
		a.log.Info("db.enabled.mongo", "database", a.cfg.MongoDatabase)
	}
	return nil
}

func (a *App) sessionStore(ctx context.Context, sc session.Config) (session.Store, error) {
	switch a.cfg.SessionStore {
	case BackendPostgres:
		return session.NewPostgresStore(a.pool, sc.PostgresSchema)
	case BackendRedis:
		return session.NewRedisStore(a.rdb, sc.RedisPrefix), nil
	case BackendMongo:
		s := session.NewMongoStore(a.mongo.Database(a.cfg.MongoDatabase))
		if err := s.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		return s, nil
	default:
		a.log.Info("session.store.inmemory")
		return session.NewMemoryStore(), nil
	}
}

func (a *App) identityDirectory(ctx context.Context, sc session.Config, pw identity.Passwords) (identity.Directory, error) {
	switch a.cfg.IdentityStore {
	case BackendPostgres:
		return identity.NewPostgresDirectory(a.pool, pw, identity.WithSchema(sc.PostgresSchema))
	case BackendMongo:
		d := identity.NewMongoDirectory(a.mongo.Database(a.cfg.MongoDatabase), pw)
		if err := d.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		return d, nil
	default:
		a.log.Info("identity.store.inmemory")
		return identity.NewMemoryDirectory(pw), nil
	}
}

// ping checks every connected backend.
func (a *App) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, nonZeroDuration(a.cfg.ReadinessTimeout, 2*time.Second))
	defer cancel()

	var errs []error
	if a.pool != nil {
		if err := PingDB(ctx, a.pool, nonZeroDuration(a.cfg.ReadinessTimeout, 2*time.Second)); err != nil {
			errs = append(errs, fmt.Errorf("postgres: %w", err))
		}
	}
	if a.rdb != nil {
		if err := a.rdb.Ping(ctx).Err(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if a.mongo != nil {
		if err := a.mongo.Ping(ctx, nil); err != nil {
			errs = append(errs, fmt.Errorf("mongo: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Migrate applies the embedded Postgres schema and exits.
func Migrate(ctx context.Context, cfg Config, log *slog.Logger) error {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return fmt.Errorf("%w: SESSIOND_DATABASE_URL is required", ErrConfig)
	}
	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return err
	}
	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pgmigrate.Up(ctx, pool, sessCfg.PostgresSchema, log); err != nil {
		return err
	}
	log.Info("db.migrated")
	return nil
}

// runtimeBaseURL turns a listen address into a URL a local client can dial.
func runtimeBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func wsBaseURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return "ws://" + base
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
