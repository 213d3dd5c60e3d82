package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"wildlife-rewards-service/internal/app"
	"wildlife-rewards-service/internal/domain"
	pgstore "wildlife-rewards-service/internal/infra/postgres"
	pgmigrations "wildlife-rewards-service/internal/infra/postgres/migrations"
	infraredis "wildlife-rewards-service/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

func TestRewardFlowEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	applyMigrations(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}

	ledger := pgstore.NewLedgerStore(pool)
	activity := pgstore.NewActivityLog(pool)
	settings := infraredis.NewSettingsCache(redisClient, pgstore.NewSettingsLoader(pool), 5*time.Minute)
	service := app.NewRewardService(ledger, activity, settings).
		WithLeaderboardCache(infraredis.NewLeaderboardCache(redisClient, 30*time.Second))

	if err := ledger.UpsertProfile(ctx, "u1", "Alice", "alice"); err != nil {
		t.Fatalf("upsert profile: %v", err)
	}
	if err := ledger.UpsertProfile(ctx, "u2", "Bob", "bob"); err != nil {
		t.Fatalf("upsert profile: %v", err)
	}

	now := time.Now().UTC()
	result, err := service.CalculateAndRecordReward(ctx, domain.ActivityCompletion{
		UserID:          "u1",
		ActivityType:    domain.ActivityQuiz,
		CompletionRef:   "quiz-attempt-1",
		ScorePercentage: 90,
		TimeTakenSec:    600,
		TotalQuestions:  10,
		AnswersCorrect:  9,
		CompletedAt:     now,
	})
	if err != nil {
		t.Fatalf("record reward: %v", err)
	}
	if result.Tier != domain.TierGold {
		t.Fatalf("expected gold tier, got %s", result.Tier)
	}
	if result.FinalPoints == 0 || result.FinalCredits == 0 {
		t.Fatalf("expected a non-empty reward, got %+v", result)
	}

	// The seeded configuration drives the amounts: gold 20/5 with a 1.5x
	// tier multiplier, nothing else on a slow weekday-or-weekend-off run.
	cfg, err := settings.GetConfig(ctx)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !cfg.Enabled || cfg.Activities[domain.ActivityQuiz].DailyPointsCap != 300 {
		t.Fatalf("unexpected seeded config %+v", cfg.Activities[domain.ActivityQuiz])
	}

	balance, err := service.GetBalance(ctx, "u1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Points != result.FinalPoints || balance.Credits != result.FinalCredits {
		t.Fatalf("balance %+v does not match reward %+v", balance, result)
	}

	// Replays must bounce off the processed-completions registry.
	_, err = service.CalculateAndRecordReward(ctx, domain.ActivityCompletion{
		UserID:          "u1",
		ActivityType:    domain.ActivityQuiz,
		CompletionRef:   "quiz-attempt-1",
		ScorePercentage: 90,
		TimeTakenSec:    600,
		CompletedAt:     now,
	})
	if !errors.Is(err, domain.ErrDuplicateCompletion) {
		t.Fatalf("expected ErrDuplicateCompletion, got %v", err)
	}

	if _, err := service.CalculateAndRecordReward(ctx, domain.ActivityCompletion{
		UserID:          "u2",
		ActivityType:    domain.ActivityMythsFacts,
		CompletionRef:   "mvf-attempt-1",
		ScorePercentage: 72,
		TimeTakenSec:    300,
		CompletedAt:     now,
	}); err != nil {
		t.Fatalf("second user reward: %v", err)
	}

	history, err := service.GetTransactionHistory(ctx, "u1", 10, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	sum := 0
	for _, tx := range history {
		if tx.CurrencyType == domain.CurrencyPoints {
			sum += tx.Amount
		}
	}
	if sum != balance.Points {
		t.Fatalf("ledger sum %d does not match balance %d", sum, balance.Points)
	}

	lb, err := service.GetLeaderboard(ctx, domain.WindowWeekly, "", 10)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(lb.Entries) != 2 {
		t.Fatalf("expected both users ranked, got %+v", lb.Entries)
	}
	if lb.Entries[0].DisplayName != "alice" {
		t.Fatalf("expected alice leading by handle, got %+v", lb.Entries[0])
	}

	// The projection is now cached; a second read must serve it unchanged.
	cached, err := service.GetLeaderboard(ctx, domain.WindowWeekly, "", 10)
	if err != nil {
		t.Fatalf("cached leaderboard: %v", err)
	}
	if len(cached.Entries) != len(lb.Entries) {
		t.Fatalf("cache round-trip changed the projection: %+v", cached.Entries)
	}

	// The category leaderboard only sees the matching activity's points.
	category, err := service.GetLeaderboard(ctx, domain.WindowCategory, domain.ActivityMythsFacts, 10)
	if err != nil {
		t.Fatalf("category leaderboard: %v", err)
	}
	if len(category.Entries) != 1 || category.Entries[0].DisplayName != "bob" {
		t.Fatalf("expected only bob in the myths-facts ranking, got %+v", category.Entries)
	}

	// Spend and penalty flow through the same ledger.
	if _, err := service.SpendCredits(ctx, "u1", 2, domain.ActivityQuiz, map[string]string{"item": "avatar"}); err != nil {
		t.Fatalf("spend: %v", err)
	}
	if _, err := service.ApplyPenalty(ctx, "u1", domain.CurrencyPoints, 5, "review outcome"); err != nil {
		t.Fatalf("penalty: %v", err)
	}
	balance, err = service.GetBalance(ctx, "u1")
	if err != nil {
		t.Fatalf("balance after spend: %v", err)
	}
	if balance.Credits != result.FinalCredits-2 || balance.Points != result.FinalPoints-5 {
		t.Fatalf("unexpected balance after spend and penalty: %+v", balance)
	}
}

func applyMigrations(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "rewards", "POSTGRES_PASSWORD": "rewardspass", "POSTGRES_DB": "rewardsdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://rewards:rewardspass@%s:%s/rewardsdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
