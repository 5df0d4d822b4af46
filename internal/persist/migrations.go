package persist

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// RunMigrations applies all pending database migrations, then checks that
// world_snapshots exists — the one table every Snapshotter.Save/Load call
// depends on (SPEC_FULL.md §4.11). goose reports success as long as it
// recorded the migration row; a hand-edited or partially-applied migration
// file could still leave the table missing, and that failure mode is worth
// catching here rather than surfacing it as a confusing error from the
// first snapshot write, ticks later.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	goose.SetLogger(goose.NopLogger())
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return verifySnapshotSchema(ctx, pool)
}

// verifySnapshotSchema confirms world_snapshots exists and carries the
// columns Snapshotter reads and writes.
func verifySnapshotSchema(ctx context.Context, pool *pgxpool.Pool) error {
	rows, err := pool.Query(ctx, `SELECT column_name FROM information_schema.columns WHERE table_name = 'world_snapshots'`)
	if err != nil {
		return fmt.Errorf("inspect world_snapshots schema: %w", err)
	}
	defer rows.Close()

	want := map[string]bool{"tick": true, "taken_at": true, "resources": true, "components": true}
	got := make(map[string]bool, len(want))
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("scan world_snapshots column: %w", err)
		}
		got[name] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("inspect world_snapshots schema: %w", err)
	}

	for col := range want {
		if !got[col] {
			return fmt.Errorf("world_snapshots missing expected column %q after migration", col)
		}
	}
	return nil
}
