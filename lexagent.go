// Package lexagent is the embeddable entry point of the lexagent server: the
// per-org legal AI agent configuration, dispatch and usage metering service
// behind the CRM.
//
//	app, err := lexagent.New(
//	    lexagent.WithVersion(version),
//	    lexagent.WithLogger(logger),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
package lexagent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/lexdesk/lexagent/internal/billing"
	"github.com/lexdesk/lexagent/internal/blob"
	"github.com/lexdesk/lexagent/internal/config"
	"github.com/lexdesk/lexagent/internal/mcp"
	"github.com/lexdesk/lexagent/internal/ratelimit"
	"github.com/lexdesk/lexagent/internal/server"
	"github.com/lexdesk/lexagent/internal/service/agents"
	"github.com/lexdesk/lexagent/internal/service/artifact"
	"github.com/lexdesk/lexagent/internal/service/audit"
	"github.com/lexdesk/lexagent/internal/service/dispatch"
	"github.com/lexdesk/lexagent/internal/service/ledger"
	"github.com/lexdesk/lexagent/internal/service/llm"
	"github.com/lexdesk/lexagent/internal/service/sweeper"
	"github.com/lexdesk/lexagent/internal/storage"
	"github.com/lexdesk/lexagent/internal/telemetry"
	"github.com/lexdesk/lexagent/migrations"
)

const shutdownTimeout = 30 * time.Second

// ToolSpec describes one dispatchable tool.
type ToolSpec = dispatch.ToolSpec

// App is the lexagent server lifecycle. Construct with New(), run with Run().
type App struct {
	cfg          config.Config
	db           *storage.DB
	dispatcher   *dispatch.Dispatcher
	mcpSrv       *mcp.Server
	srv          *server.Server // nil with WithoutServer
	sweeper      *sweeper.Sweeper
	limiter      ratelimit.Limiter
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New loads configuration, connects to Postgres, applies migrations, seeds
// the agent catalog and wires every service. It does not start goroutines or
// accept connections; call Run.
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}

	ctx := context.Background()
	logger.Info("lexagent starting", "version", version, "port", cfg.Port)

	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	a := &App{cfg: cfg, otelShutdown: otelShutdown, logger: logger, version: version}
	if err := a.build(ctx, o); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, o resolvedOptions) error {
	cfg, logger := a.cfg, a.logger

	db, err := storage.New(ctx, cfg.DatabaseURL, storage.PoolOptions{}, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	a.db = db
	if err := db.RegisterPoolMetrics(); err != nil {
		logger.Warn("pool metrics unavailable", "error", err)
	}

	if cfg.SkipEmbeddedMigrations {
		logger.Info("embedded migrations skipped by config")
	} else if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	for i, extra := range o.extraMigrations {
		if err := db.RunMigrations(ctx, extra); err != nil {
			return fmt.Errorf("extra migrations[%d]: %w", i, err)
		}
	}

	if cfg.SeedCatalog {
		n, err := agents.SeedCatalog(ctx, db, agents.DefaultCatalog())
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Info("agent catalog seeded", "added", n)
		}
	}

	blobs, err := newBlobStore(cfg, db)
	if err != nil {
		return err
	}

	cost, err := billing.NewCostModel(cfg.CostCentsPerToken)
	if err != nil {
		return err
	}

	limiter, err := newLimiter(ctx, cfg, logger)
	if err != nil {
		return err
	}
	a.limiter = limiter

	recorder := audit.NewRecorder(db, nil, logger)
	d, err := dispatch.New(dispatch.Deps{
		Agents:    agents.NewResolver(db, logger),
		Runs:      ledger.New(db, nil),
		Usage:     billing.NewAccountant(db, cost, nil, logger),
		Models:    newInvoker(cfg, o.httpClient, logger),
		Artifacts: artifact.NewWriter(blobs, cfg.PublicBaseURL),
		Audit:     recorder,
		Limiter:   limiter,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	a.dispatcher = d
	a.mcpSrv = mcp.New(d, logger, a.version)

	a.sweeper, err = sweeper.New(db, recorder, cfg.SweepSchedule, cfg.StaleRunAfter, logger)
	if err != nil {
		return err
	}

	if !o.withoutServer {
		a.srv = server.New(server.ServerConfig{
			Dispatcher:          d,
			Blobs:               blobs,
			DB:                  db,
			Logger:              logger,
			MCPServer:           a.mcpSrv.MCPServer(),
			Port:                cfg.Port,
			ReadTimeout:         cfg.ReadTimeout,
			WriteTimeout:        cfg.WriteTimeout,
			Version:             a.version,
			MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		})
	}
	return nil
}

func newBlobStore(cfg config.Config, db *storage.DB) (blob.Store, error) {
	if cfg.BlobBackend == config.BlobBackendFS {
		s, err := blob.NewFSStore(cfg.BlobDir)
		if err != nil {
			return nil, fmt.Errorf("blob: %w", err)
		}
		return s, nil
	}
	return blob.NewPostgresStore(db), nil
}

// newLimiter picks Redis when REDIS_URL is set so replicas share one budget,
// otherwise an in-process token bucket.
func newLimiter(ctx context.Context, cfg config.Config, logger *slog.Logger) (ratelimit.Limiter, error) {
	if !cfg.RateLimitEnabled {
		logger.Info("rate limiting: disabled")
		return ratelimit.NoopLimiter{}, nil
	}
	if cfg.RedisURL != "" {
		perMinute := max(int(math.Ceil(cfg.RateLimitRPS*60)), cfg.RateLimitBurst)
		l, err := ratelimit.NewRedisLimiterFromURL(ctx, cfg.RedisURL, perMinute, time.Minute)
		if err != nil {
			return nil, err
		}
		logger.Info("rate limiting: redis (fixed window)", "per_minute", perMinute)
		return l, nil
	}
	logger.Info("rate limiting: memory (in-process token bucket)",
		"rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
	return ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst), nil
}

func newInvoker(cfg config.Config, client *http.Client, logger *slog.Logger) *llm.Invoker {
	var openai, anthropic llm.Provider
	if cfg.OpenAIAPIKey != "" {
		openai = llm.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, client)
	}
	if cfg.AnthropicAPIKey != "" {
		anthropic = llm.NewAnthropicProvider(cfg.AnthropicAPIKey, cfg.AnthropicBaseURL, client)
	}
	if openai == nil && anthropic == nil {
		logger.Warn("no model provider configured: agents.run will fail until OPENAI_API_KEY or ANTHROPIC_API_KEY is set")
	}
	return llm.NewInvoker(openai, anthropic, cfg.ModelTimeout, logger)
}

// Dispatch executes one tool call, as POST /v1/tools does.
func (a *App) Dispatch(ctx context.Context, tool string, params map[string]any) (any, error) {
	return a.dispatcher.Dispatch(ctx, tool, params)
}

// Tools lists the dispatchable tools.
func (a *App) Tools() []ToolSpec {
	return a.dispatcher.Tools()
}

// SeedCatalog inserts catalog entries read from r, or the built-in catalog
// when r is nil. Existing keys are left untouched.
func (a *App) SeedCatalog(ctx context.Context, r io.Reader) (int, error) {
	entries := agents.DefaultCatalog()
	if r != nil {
		var err error
		if entries, err = agents.LoadCatalogYAML(r); err != nil {
			return 0, err
		}
	}
	return agents.SeedCatalog(ctx, a.db, entries)
}

// ServeStdio serves MCP over stdin/stdout, with the stale run sweeper
// running alongside, until ctx is cancelled or the client disconnects.
func (a *App) ServeStdio(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go a.sweeper.Start(ctx)
	return a.mcpSrv.ServeStdio()
}

// Run starts the sweeper and the HTTP server, then blocks until ctx is
// cancelled or the server fails. Resources are released before it returns.
func (a *App) Run(ctx context.Context) error {
	if a.srv == nil {
		return errors.New("lexagent: app was built without a server")
	}
	defer a.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.sweeper.Start(gctx)
		return nil
	})
	g.Go(func() error {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		if err := a.srv.Shutdown(sctx); err != nil {
			a.logger.Error("http shutdown error", "error", err)
		}
		return nil
	})
	return g.Wait()
}

// Close releases the limiter, the database pool and telemetry. Run calls it
// on return; one-shot users of New call it directly.
func (a *App) Close() {
	if a.limiter != nil {
		_ = a.limiter.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.otelShutdown != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.otelShutdown(sctx)
	}
	a.logger.Info("lexagent stopped")
}
