package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mbflowrt/flowengine/internal/flowengine"
	"github.com/mbflowrt/flowengine/internal/flowengine/adapters"
	"github.com/mbflowrt/flowengine/internal/flowengine/nodes"
	"github.com/mbflowrt/flowengine/internal/infrastructure/api/rest"
	"github.com/mbflowrt/flowengine/internal/infrastructure/config"
	"github.com/mbflowrt/flowengine/internal/infrastructure/logger"
	"github.com/mbflowrt/flowengine/internal/infrastructure/storage"
	"github.com/mbflowrt/flowengine/internal/infrastructure/websocket"
	"github.com/mbflowrt/flowengine/internal/tracing"
)

// triggerKinds names the registry types that count as entry-node trigger
// kinds for Flow.EntryNodes (§4.10 step 1).
var triggerKinds = map[string]bool{
	"trigger":          true,
	"manual-trigger":   true,
	"schedule-trigger": true,
	"webhook-trigger":  true,
	"message-trigger":  true,
}

func main() {
	var (
		port          = flag.String("port", "", "Server port (overrides config)")
		enableCORS    = flag.Bool("cors", true, "Enable CORS")
		enableMetrics = flag.Bool("metrics", true, "Enable metrics collection")
		apiKeys       = flag.String("api-keys", "", "Comma-separated API keys for authentication")
	)
	flag.Parse()

	cfg := config.Load()
	if *port != "" {
		cfg.Port = *port
	}

	log := logger.Setup(cfg.LogLevel)
	log.Info("starting flowengine rest api server",
		"version", "1.0.0",
		"port", cfg.Port,
		"cors", *enableCORS,
		"metrics", *enableMetrics,
	)

	ctx := context.Background()
	shutdownTracing, err := tracing.Init(ctx, cfg.OTLPEndpoint, "flowengine")
	if err != nil {
		log.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer shutdownTracing(ctx)

	var store rest.Store
	if cfg.DatabaseDSN != "" {
		bunStore := storage.NewBunStore(cfg.DatabaseDSN)
		if err := bunStore.InitSchema(ctx); err != nil {
			log.Error("failed to initialize database schema", "error", err)
			os.Exit(1)
		}
		log.Info("using BunStore (PostgreSQL)", "dsn", maskDSN(cfg.DatabaseDSN))
		store = bunStore
	} else {
		log.Warn("no DATABASE_DSN configured, using in-memory store")
		store = storage.NewMemoryStore()
	}

	zlog := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(zerologLevel(cfg.LogLevel))

	hub := websocket.NewHub(log)
	go hub.Run()
	subscriber := adapters.NewWebsocketSubscriber(hub)

	messaging := adapters.NewMessagingAdapter()
	messaging.RegisterSender("webhook", &adapters.WebhookSender{})

	var ai flowengine.AICollaborator
	if cfg.OpenAIAPIKey != "" {
		ai = adapters.NewOpenAIAdapter(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	}

	resolver := flowengine.NewResolver()
	coordinator := flowengine.NewCoordinator(messaging)
	messaging.SubscribeInbound(coordinator.OnInbound)
	bridge := flowengine.NewDispatchBridge(messaging, resolver)

	reg := flowengine.NewRegistry()
	nodes.Register(reg, nodes.Deps{
		AI:          ai,
		Bridge:      bridge,
		Coordinator: coordinator,
		Resolver:    resolver,
	})

	breakerCfg := flowengine.CircuitBreakerConfig{
		FailureThreshold: cfg.CircuitFailureThreshold,
		OpenTimeout:      time.Duration(cfg.CircuitOpenTimeoutMs) * time.Millisecond,
		Window:           time.Duration(cfg.CircuitWindowMs) * time.Millisecond,
	}

	engine := flowengine.NewEngine(flowengine.Options{
		Registry:       reg,
		Resolver:       resolver,
		Parallel:       flowengine.NewParallelManager(),
		Breakers:       flowengine.NewCircuitBreakerRegistry(breakerCfg),
		Persistence:    store,
		Subscriber:     subscriber,
		TriggerKinds:   triggerKinds,
		MaxConcurrency: cfg.MaxParallelism,
		Log:            zlog,
	})
	hub.SetCanceller(engine)
	log.Info("flow execution engine initialized")

	var apiKeysList []string
	if *apiKeys != "" {
		for _, key := range parseAPIKeys(*apiKeys) {
			if key != "" {
				apiKeysList = append(apiKeysList, key)
			}
		}
		log.Info("api key authentication enabled", "count", len(apiKeysList))
	}

	serverConfig := rest.ServerConfig{
		EnableCORS:      *enableCORS,
		EnableRateLimit: false,
		RateLimitMax:    100,
		RateLimitWindow: time.Minute,
		APIKeys:         apiKeysList,
	}
	srv := rest.NewServer(store, engine, log, serverConfig)

	mux := http.NewServeMux()
	mux.Handle("/", srv)
	var auth websocket.Authenticator = websocket.NewNoAuth()
	if cfg.JWTSecret != "" {
		auth = websocket.NewJWTAuth(cfg.JWTSecret)
	}
	mux.Handle("/ws", websocket.NewHandler(hub, auth, log))
	if *enableMetrics {
		mux.Handle("/metrics", promhttp.Handler())
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server listening", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("available endpoints",
		"health", "GET /health",
		"ready", "GET /ready",
		"flows", "GET /api/v1/flows",
		"create_flow", "POST /api/v1/flows",
		"execute_flow", "POST /api/v1/flows/{id}/executions",
		"executions", "GET /api/v1/executions",
		"websocket", "GET /ws",
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("server exited gracefully")
}

func zerologLevel(level string) zerolog.Level {
	l, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return l
}

// maskDSN masks the password in a DSN string for safe logging
func maskDSN(dsn string) string {
	if len(dsn) == 0 {
		return ""
	}
	start := -1
	end := -1
	for i := 0; i < len(dsn); i++ {
		if dsn[i] == ':' && start == -1 {
			if i+1 < len(dsn) && dsn[i+1] != '/' {
				start = i + 1
			}
		}
		if dsn[i] == '@' && start != -1 {
			end = i
			break
		}
	}
	if start != -1 && end != -1 && end > start {
		return dsn[:start] + "***" + dsn[end:]
	}
	return dsn
}

// parseAPIKeys parses comma-separated API keys
func parseAPIKeys(keys string) []string {
	result := []string{}
	current := ""
	for _, ch := range keys {
		if ch == ',' {
			if current != "" {
				result = append(result, current)
				current = ""
			}
		} else {
			current += string(ch)
		}
	}
	if current != "" {
		result = append(result, current)
	}
	return result
}
