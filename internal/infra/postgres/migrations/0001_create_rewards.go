package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

//go:embed 0001_create_rewards.sql
var createRewardsSQL string

var Migrations = migrate.NewMigrations()

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.Exec(createRewardsSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.Exec(`
				DROP TABLE IF EXISTS rewards_configuration;
				DROP TABLE IF EXISTS site_settings;
				DROP TABLE IF EXISTS anti_gaming_records;
				DROP TABLE IF EXISTS activity_attempts;
				DROP TABLE IF EXISTS daily_activity_counters;
				DROP TABLE IF EXISTS processed_completions;
				DROP TABLE IF EXISTS currency_transactions;
				DROP TABLE IF EXISTS user_balances`)
			return err
		},
	)
}
