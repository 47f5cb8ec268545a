// Command pagebridge is the main entrypoint for the chat-to-page bridge.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Starts the background user-token extender.
//   - Exposes the HTTP server: Slack events, Facebook webhook, OAuth
//     callbacks, /healthz, /readyz, /status, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/onnwee/pagebridge/bridge"
	"github.com/onnwee/pagebridge/config"
	"github.com/onnwee/pagebridge/db"
	"github.com/onnwee/pagebridge/fbapi"
	"github.com/onnwee/pagebridge/oauth"
	"github.com/onnwee/pagebridge/server"
	"github.com/onnwee/pagebridge/slackgw"
	"github.com/onnwee/pagebridge/telemetry"
)

// graphPublisher adapts the Graph API client to the bridge's Publisher
// interface, translating between the two packages' media types.
type graphPublisher struct {
	graph *fbapi.Client
}

func (p *graphPublisher) PublishText(ctx context.Context, pageID, accessToken, message string) (string, error) {
	return p.graph.PublishText(ctx, pageID, accessToken, message)
}

func (p *graphPublisher) PublishWithMedia(ctx context.Context, pageID, accessToken, message string, media []bridge.Media) (string, error) {
	return p.graph.PublishWithMedia(ctx, pageID, accessToken, message, toGraphMedia(media))
}

func (p *graphPublisher) Comment(ctx context.Context, accessToken, postID, message string, m *bridge.Media) (string, error) {
	var gm *fbapi.Media
	if m != nil {
		gm = &fbapi.Media{Filename: m.Filename, ContentType: m.ContentType, Data: m.Data}
	}
	return p.graph.Comment(ctx, accessToken, postID, message, gm)
}

func toGraphMedia(media []bridge.Media) []fbapi.Media {
	out := make([]fbapi.Media, len(media))
	for i, m := range media {
		out[i] = fbapi.Media{Filename: m.Filename, ContentType: m.ContentType, Data: m.Data}
	}
	return out
}

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateSlackReady(); err != nil {
		slog.Error("slack config incomplete", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateFacebookReady(); err != nil {
		// The server can still answer health checks and the Slack challenge;
		// publishing and OAuth will refuse until the app creds arrive.
		slog.Warn("facebook config incomplete, publishing disabled", slog.Any("err", err))
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("pagebridge", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// DB
	database, err := db.Connect()
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	// Versioned migrations first, embedded SQL as the fallback for deployments
	// predating the schema_migrations table.
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, attempting embedded SQL fallback",
			slog.Any("err", err), slog.String("component", "db_migrate"))
		if err := db.Migrate(context.Background(), database); err != nil {
			slog.Error("failed to migrate db", slog.Any("err", err))
			os.Exit(1)
		}
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Wiring: one store backs credentials, links, and webhook dedup; the Slack
	// client resolves tokens per workspace through it.
	store := &db.Store{DB: database, FallbackBotToken: cfg.SlackBotToken}
	slack := &slackgw.Client{}
	graph := &fbapi.Client{BaseURL: cfg.FBGraphURL}

	svc := &bridge.Service{
		Creds:     store,
		Links:     store,
		Seen:      store,
		Publisher: &graphPublisher{graph: graph},
		Notifier:  &slackgw.Notifier{Client: slack, Tokens: store},
		Fetcher:   &slackgw.Fetcher{Client: slack, Tokens: store},

		Classifier: bridge.Classifier{TriggerMarker: cfg.TriggerMarker},
		Codes: bridge.CodeSets{
			Expired:   cfg.ExpiredCodes,
			Invalid:   cfg.InvalidCodes,
			Duplicate: cfg.DuplicateCodes,
		},
		ImageTypes:     cfg.ImageTypes,
		AttemptTimeout: cfg.PublishTimeout,
	}

	// Keep long-lived user tokens fresh so attributed posting survives the
	// sixty-day expiry without re-authorization.
	oauth.StartUserTokenExtender(ctx, database, cfg.TokenExtendInterval, cfg.TokenExtendWindow,
		oauth.GraphExtender(graph, cfg.FBAppID, cfg.FBAppSecret))

	// Liveness heartbeat surfaced by /status.
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		db.Heartbeat(ctx, database, "pagebridge")
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				db.Heartbeat(ctx, database, "pagebridge")
			}
		}
	}()

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	h := server.NewHandlers(ctx, database, cfg, svc, graph, slack, store)
	go func() {
		if err := server.Start(ctx, h, addr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
}
