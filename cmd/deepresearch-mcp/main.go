// Package main is the entry point for deepresearch-mcp: an MCP server
// that brokers multi-agent deep-research jobs over a federated LLM
// gateway. Stdio transport is selected with --stdio; otherwise the
// process serves every HTTP transport (streamable-HTTP, WebSocket,
// legacy SSE) plus the operational surface (health, metrics, discovery).
package main

import (
	"context"
	"database/sql"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/wheattoast11/deepresearch-mcp/internal/auth"
	"github.com/wheattoast11/deepresearch-mcp/internal/config"
	"github.com/wheattoast11/deepresearch-mcp/internal/database"
	"github.com/wheattoast11/deepresearch-mcp/internal/embedding"
	"github.com/wheattoast11/deepresearch-mcp/internal/http/handlers"
	"github.com/wheattoast11/deepresearch-mcp/internal/http/mw"
	"github.com/wheattoast11/deepresearch-mcp/internal/hybridindex"
	"github.com/wheattoast11/deepresearch-mcp/internal/jobengine"
	"github.com/wheattoast11/deepresearch-mcp/internal/llmgateway"
	"github.com/wheattoast11/deepresearch-mcp/internal/logging"
	"github.com/wheattoast11/deepresearch-mcp/internal/mcpcore"
	"github.com/wheattoast11/deepresearch-mcp/internal/orchestrator"
	"github.com/wheattoast11/deepresearch-mcp/internal/repository"
	"github.com/wheattoast11/deepresearch-mcp/internal/shutdown"
	"github.com/wheattoast11/deepresearch-mcp/internal/transport"
	"github.com/wheattoast11/deepresearch-mcp/internal/version"
)

func main() {
	stdioFlag := flag.Bool("stdio", false, "serve over stdio instead of HTTP")
	flag.Parse()

	logger := logging.SetDefault()
	v := version.Get()
	logger.Info("starting deepresearch-mcp",
		"version", v.Version,
		"commit", v.Commit,
		"built", v.Date,
		"go_version", v.GoVersion,
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := database.MigrateWithLogger(db, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	repos := repository.NewRepositories(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	embedder := embedding.New(cfg, logger)
	gateway := llmgateway.NewGateway(cfg, logger)
	index := hybridindex.New(repos.Index, embedder, gateway, cfg, logger)

	jobHandlers := orchestrator.Handlers(gateway, embedder, index, repos, cfg, logger)
	wired := jobengine.New(repos, jobHandlers, cfg, logger)
	wired.Pool.Start(ctx)
	go wired.Reclaim.Run(ctx)

	core := mcpcore.Build(wired.Engine, repos, index, gateway,
		mcpcore.ParseMode(cfg.ServerMode), "deepresearch-mcp", v.Version, time.Now(), logger)

	if *stdioFlag {
		if err := transport.RunStdio(ctx, core, os.Stdin, os.Stdout, logger); err != nil {
			logger.Error("stdio transport failed", "error", err)
			os.Exit(1)
		}
		return
	}

	sessions := transport.NewSessionStore(repos.Session, transport.DefaultSessionTTL, logger)
	defer sessions.Close()

	authenticator := mw.NewAuthenticator(cfg, logger)
	idle := shutdown.NewIdleMonitor(shutdown.IdleMonitorConfig{
		Timeout:      cfg.IdleTimeout,
		Logger:       logger,
		ExcludePaths: []string{"/health", "/about", "/.well-known"},
		BackgroundWorkCheck: func() bool {
			return sessions.Count() > 0
		},
	})
	idle.Start()
	defer idle.Stop()

	router := buildRouter(cfg, logger, core, repos, sessions, wired.Engine, db, embedder, authenticator, idle)

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("shutdown signal received")
	case <-idle.ShutdownChan():
		logger.Info("idle timeout reached")
	}

	cancel()
	wired.Pool.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}

func buildRouter(
	cfg *config.Config,
	logger *slog.Logger,
	core *mcpcore.Core,
	repos *repository.Repositories,
	sessions *transport.SessionStore,
	engine *jobengine.Engine,
	db *sql.DB,
	embedder embedding.Provider,
	authenticator *mw.Authenticator,
	idle *shutdown.IdleMonitor,
) http.Handler {
	root := chi.NewRouter()
	root.Use(middleware.RequestID)
	root.Use(middleware.RealIP)
	root.Use(middleware.Logger)
	root.Use(middleware.Recoverer)
	root.Use(idle.Middleware)
	root.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Mcp-Session-Id", "Last-Event-ID"},
		ExposedHeaders:   []string{"Mcp-Session-Id", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if cfg.RequireHTTPS {
		root.Use(mw.RequireHTTPS())
	}
	root.Use(mw.RateLimitGlobal(mw.RateLimitConfig{RequestsPerMinute: cfg.GlobalRateLimitPerMinute}))
	root.Use(mw.MaxBytes(cfg.MaxPayloadBytes))

	discoveryCfg := mw.DiscoveryConfig{
		ResourceURL:         cfg.BaseURL + "/mcp",
		AuthorizationServer: cfg.JWKSURL,
		ScopesSupported:     []string{"mcp:access", "mcp:tools:list", "mcp:tools:call", "mcp:prompts:list", "mcp:prompts:get", "mcp:resources:list", "mcp:resources:read", "mcp:completion", "mcp:admin"},
		Transports:          []string{"stdio", "streamable-http", "websocket", "legacy-sse"},
	}
	root.Get("/.well-known/oauth-protected-resource", mw.ProtectedResourceMetadata(discoveryCfg))
	root.Get("/.well-known/oauth-protected-resource/mcp", mw.ProtectedResourceMetadata(discoveryCfg))
	root.Get("/.well-known/mcp-server", mw.MCPServerMetadata(discoveryCfg))

	humaConfig := huma.DefaultConfig("deepresearch-mcp", version.Get().Version)
	humaConfig.Info.Description = "MCP server brokering multi-agent deep-research jobs over a federated LLM gateway."
	humaConfig.Servers = []*huma.Server{{URL: cfg.BaseURL, Description: "Server"}}
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		mw.SecurityScheme: {Type: "http", Scheme: "bearer", Description: "Bearer token per the resolved auth mode (§4.9)."},
	}
	api := humachi.New(root, humaConfig)
	api.UseMiddleware(mw.HumaAuth(api, mw.HumaAuthConfig{Authenticator: authenticator}))

	mw.PublicGet(api, "/health", handlers.NewHealthHandler(db).Health)
	mw.PublicGet(api, "/about", handlers.About)
	mw.HiddenGet(api, "/healthz", handlers.Livez)

	root.Get("/metrics", handlers.NewMetricsHandler(repos, db, embedder).ServeHTTP)

	root.Group(func(r chi.Router) {
		r.Use(authenticator.Authenticate)
		r.Use(mw.RequireScope(auth.RequiredScope("tools/call")))
		r.Post("/jobs", handlers.NewJobsHandler(engine).ServeHTTP)
	})

	mcpRouter := chi.NewRouter()
	mcpRouter.Use(authenticator.Authenticate)
	mcpRouter.Mount("/", transport.Router(core, sessions, repos, logger))
	root.Mount("/", mcpRouter)

	return root
}
