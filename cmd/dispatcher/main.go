package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/santhoshkaruppusamy55/Automated-Email-Project/internal/api"
	"github.com/santhoshkaruppusamy55/Automated-Email-Project/internal/cache"
	"github.com/santhoshkaruppusamy55/Automated-Email-Project/internal/config"
	"github.com/santhoshkaruppusamy55/Automated-Email-Project/internal/engine"
	"github.com/santhoshkaruppusamy55/Automated-Email-Project/internal/mail"
	"github.com/santhoshkaruppusamy55/Automated-Email-Project/internal/repo"
	"github.com/santhoshkaruppusamy55/Automated-Email-Project/internal/scheduler"
	"github.com/santhoshkaruppusamy55/Automated-Email-Project/internal/secrets"
	"github.com/santhoshkaruppusamy55/Automated-Email-Project/internal/service"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadAll()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.Info("email dispatch starting",
		"addr", cfg.Server.Address,
		"interval", cfg.Scheduler.Interval.String(),
		"timezone", cfg.Dispatch.Timezone,
		"provider", string(cfg.Mail.Provider),
		"redis", cfg.Redis.Enabled,
	)

	loc, err := time.LoadLocation(cfg.Dispatch.Timezone)
	if err != nil {
		slog.Error("invalid dispatch timezone", "error", err)
		os.Exit(1)
	}

	db, err := sql.Open("pgx", cfg.Database.PostgresURL)
	if err != nil {
		slog.Error("failed to open postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	store := repo.NewPostgresScheduleRepo(db)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := store.EnsureSchema(ctx); err != nil {
		cancel()
		slog.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}
	cancel()

	var marker cache.SentMarker
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		marker = cache.NewRedisCache(rdb, cfg.Redis.TTL)
	}

	dial := buildDialer(cfg.Mail, secrets.NewEnvProvider())

	eng, err := engine.New(store, dial, engine.Options{
		Location:   loc,
		Workers:    cfg.Dispatch.Workers,
		StaleClaim: cfg.Dispatch.StaleClaim,
		SentMarker: marker,
	})
	if err != nil {
		slog.Error("failed to build engine", "error", err)
		os.Exit(1)
	}

	sched, err := scheduler.New(cfg.Scheduler.Interval, func(ctx context.Context, now time.Time) error {
		_, err := eng.RunTick(ctx, now)
		return err
	})
	if err != nil {
		slog.Error("failed to build scheduler", "error", err)
		os.Exit(1)
	}
	sched.Start()
	defer sched.Stop()

	handler := api.NewHandler(
		sched,
		eng,
		service.NewIntake(store, loc),
		service.NewImmediateSender(dial),
		store,
	)

	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: loggingMiddleware(api.Router(handler)),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", "error", err)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func buildDialer(cfg config.MailConfig, creds secrets.Provider) mail.Dialer {
	switch cfg.Provider {
	case config.ProviderResend:
		transport := mail.NewResendTransport(cfg.ResendAPIKey)
		return func(context.Context) (mail.Transport, error) {
			return transport, nil
		}
	case config.ProviderLog:
		return func(context.Context) (mail.Transport, error) {
			return mail.LogTransport{}, nil
		}
	default:
		return func(ctx context.Context) (mail.Transport, error) {
			c, err := creds.SMTPCredentials(ctx)
			if err != nil {
				return nil, err
			}
			return mail.NewSMTPRelay(cfg.SMTPHost, cfg.SMTPPort, cfg.SendTimeout, c.Username, c.Password), nil
		}
	}
}
