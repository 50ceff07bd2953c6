// Package pg bootstraps the PostgreSQL layer behind the durable session
// persister: a pgx/v5 connection pool with retrying Connect, a goose/v3
// migration runner for the session table, a health-check probe, and the
// SQLSTATE helpers the race-safe session upsert depends on.
//
// # Usage
//
//	var cfg pg.Config
//	config.MustLoad(&cfg)
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//	    panic(err)
//	}
//	defer pool.Close()
//
//	// Optional: manage the session table schema with goose instead of the
//	// persister's built-in CREATE TABLE IF NOT EXISTS bootstrap.
//	if err := pg.Migrate(ctx, pool, migrations.FS, ".", cfg, slog.Default()); err != nil {
//	    panic(err)
//	}
//
// Configuration comes from environment variables; see the Config field tags
// for names and defaults.
package pg
