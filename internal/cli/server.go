package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wildlife-rewards-service/internal/app"
	"wildlife-rewards-service/internal/config"
	"wildlife-rewards-service/internal/domain"
	"wildlife-rewards-service/internal/infra/memory"
	pgstore "wildlife-rewards-service/internal/infra/postgres"
	redisinfra "wildlife-rewards-service/internal/infra/redis"
	transport "wildlife-rewards-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the rewards server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	settingsTTL := config.TTLDuration(cfg.Rewards.SettingsTTL, 5*time.Minute)
	leaderboardTTL := config.TTLDuration(cfg.Rewards.LeaderboardTTL, 30*time.Second)

	var ledger app.LedgerStore
	var activity app.ActivityLog
	var loader memory.SettingsLoader = memory.NewStaticSettingsLoader(domain.DefaultRewardConfig())
	if pool != nil {
		ledger = pgstore.NewLedgerStore(pool)
		activity = pgstore.NewActivityLog(pool)
		loader = pgstore.NewSettingsLoader(pool)
	} else {
		ledger = memory.NewLedgerStore()
		activity = memory.NewActivityLog()
	}

	var settings app.SettingsRepository
	if redisClient != nil {
		settings = redisinfra.NewSettingsCache(redisClient, loader, settingsTTL)
	} else {
		settings = memory.NewSettingsCache(loader, settingsTTL)
	}

	service := app.NewRewardService(ledger, activity, settings)
	if redisClient != nil {
		service.WithLeaderboardCache(redisinfra.NewLeaderboardCache(redisClient, leaderboardTTL))
	}
	wsHandler := transport.NewWSHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws/leaderboard", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting rewards service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
