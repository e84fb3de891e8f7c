package threads

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/sessions"
	"github.com/nasermirzaei89/env"
	"github.com/nasermirzaei89/threads/db/sqlite3"
	"github.com/nasermirzaei89/threads/discuss"
	"github.com/nasermirzaei89/threads/embedded"
	"github.com/nasermirzaei89/threads/httpapi"
	"github.com/nasermirzaei89/threads/random"
	"github.com/nasermirzaei89/threads/server"
	"github.com/nasermirzaei89/threads/web"
)

const (
	BackendEmbedded = "embedded"
	BackendRemote   = "remote"
)

type App struct {
	server   *server.Server
	handler  http.Handler
	registry *discuss.Registry
	db       *sql.DB
}

func NewApp(ctx context.Context) (*App, error) {
	storeConfig := newStoreConfig()

	mux := &http.ServeMux{}

	app := &App{
		server:   newServer(),
		handler:  mux,
		registry: nil,
		db:       nil,
	}

	var transport discuss.Transport

	switch backend := env.GetString("BACKEND", BackendEmbedded); backend {
	case BackendEmbedded:
		db, err := sqlite3.Open(ctx, env.GetString("DB_DSN", "file::memory:?cache=shared"))
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		app.db = db

		svc := embedded.NewService(
			sqlite3.NewCommentRepository(db),
			sqlite3.NewUserReactionRepository(db),
			storeConfig.MaxContentLength,
		)

		// X-Acting-User is only trusted behind a bearer token.
		if serveToken := env.GetString("API_SERVE_TOKEN", ""); serveToken != "" {
			mux.Handle("/v1/", http.StripPrefix("/v1", httpapi.NewHandler(svc, serveToken)))
		} else {
			slog.InfoContext(ctx, "comments api disabled, set API_SERVE_TOKEN to serve it under /v1")
		}

		transport = svc
	case BackendRemote:
		clientConfig, err := newClientConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to read api client config: %w", err)
		}

		client, err := httpapi.NewClient(clientConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create api client: %w", err)
		}

		transport = client
	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}

	feed := web.NewNotificationFeed(env.GetInt("NOTIFICATION_FEED_SIZE", web.DefaultFeedCapacity))

	app.registry = discuss.NewRegistry(transport, discuss.Notifiers{discuss.LogNotifier{}, feed}, storeConfig)

	sessionName := env.GetString("SESSION_NAME", "threads-"+random.String(4))
	sessionKey := env.GetString("SESSION_KEY", random.String(32))
	cookieStore := sessions.NewCookieStore([]byte(sessionKey))

	mux.Handle("/", web.NewHandler(
		app.registry,
		feed,
		cookieStore,
		sessionName,
		env.GetString("ACTING_USER_ID", ""),
	))

	return app, nil
}

func (app *App) Run(ctx context.Context) error {
	// Handle SIGINT (CTRL+C) and SIGTERM gracefully.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	defer func() {
		if app.db != nil {
			err := app.db.Close()
			if err != nil {
				slog.ErrorContext(ctx, "failed to close database", "error", err)
			}
		}
	}()

	err := app.server.Run(ctx, app.handler)

	slog.InfoContext(ctx, "waiting for pending comment mutations")
	app.registry.Wait()

	if err != nil {
		return fmt.Errorf("failed to run server: %w", err)
	}

	return nil
}

func newServer() *server.Server {
	server := &server.Server{
		Port: env.GetString("PORT", server.DefaultPort),
		Host: env.GetString("HOST", ""),
		TLS: server.ServerTLS{
			Enabled: env.GetBool("TLS_ENABLED", false),
			Mode:    env.GetString("TLS_MODE", server.DefaultTLSMode),
			AutoCert: &server.ServerTLSAutoCert{
				CacheDir: env.GetString("TLS_AUTOCERT_CACHE_DIR", "./cert-cache"),
				Domains:  env.GetStringSlice("TLS_AUTOCERT_DOMAINS", []string{}),
				Email:    env.GetString("TLS_AUTOCERT_EMAIL", ""),
			},
			CertFile: env.GetString("TLS_CERT_FILE", ""),
			KeyFile:  env.GetString("TLS_KEY_FILE", ""),
		},
	}

	return server
}

func newStoreConfig() discuss.Config {
	return discuss.Config{
		MaxDepth:         env.GetInt("THREAD_MAX_DEPTH", discuss.DefaultMaxDepth),
		MaxContentLength: env.GetInt("COMMENT_MAX_LENGTH", discuss.DefaultMaxContentLength),
		PageSize:         env.GetInt("PAGE_SIZE", discuss.DefaultPageSize),
		Now:              nil,
	}
}

func newClientConfig() (httpapi.Config, error) {
	timeout, err := getDurationFromEnv("API_TIMEOUT", httpapi.DefaultTimeout)
	if err != nil {
		return httpapi.Config{}, err
	}

	return httpapi.Config{
		BaseURL:        env.GetString("API_BASE_URL", ""),
		Token:          env.GetString("API_TOKEN", ""),
		Timeout:        timeout,
		MaxRetries:     env.GetInt("API_MAX_RETRIES", httpapi.DefaultMaxRetries),
		RateLimit:      env.GetFloat64("API_RATE_LIMIT", 0),
		RateBurst:      env.GetInt("API_RATE_BURST", 1),
		InitialBackoff: httpapi.DefaultInitialBackoff,
		MaxBackoff:     httpapi.DefaultMaxBackoff,
		HTTPClient:     nil,
	}, nil
}

func GetLogLevelFromEnv() slog.Level {
	levelStr := env.GetString("LOG_LEVEL", "info")
	switch levelStr {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		slog.Warn("unknown log level, defaulting to info", "level", levelStr)

		return slog.LevelInfo
	}
}

// getDurationFromEnv reads a time.ParseDuration value; env has no duration getter.
func getDurationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	value := env.GetString(key, "")
	if value == "" {
		return fallback, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}

	return d, nil
}
