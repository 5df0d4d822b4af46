package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/forgelabs/ecsframe/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// DB wraps a pgx connection pool. Unlike the teacher's account/character
// repositories, which see a steady trickle of per-session queries, this
// pool's only traffic is Snapshotter.Save/Load firing once every
// SnapshotEvery ticks (SPEC_FULL.md §4.11) — long idle gaps punctuated by
// one burst of writes. snapshotEvery is kept so a caller can reason about
// that cadence (e.g. logging a warning if Save is ever invoked far outside
// it).
type DB struct {
	Pool *pgxpool.Pool
	log  *zap.Logger

	snapshotEvery  int
	snapshotPeriod time.Duration
}

// NewDB opens a connection pool sized for a periodic-snapshot workload
// rather than the teacher's steady-request one: tickInterval*SnapshotEvery
// is the gap between bursts, so MaxConnIdleTime is stretched to cover it —
// otherwise pgxpool's default 30-minute idle timeout would recycle every
// connection between snapshots on any world with a slow tick rate or a
// large SnapshotEvery, paying a reconnect on every single save.
func NewDB(ctx context.Context, cfg config.DatabaseConfig, tickInterval time.Duration, log *zap.Logger) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	poolCfg.MinConns = int32(cfg.MaxIdleConns)
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

	snapshotPeriod := tickInterval * time.Duration(cfg.SnapshotEvery)
	if cfg.SnapshotEvery > 0 && snapshotPeriod > 0 {
		idle := 2 * snapshotPeriod
		if cfg.ConnMaxLifetime > 0 && idle > cfg.ConnMaxLifetime {
			idle = cfg.ConnMaxLifetime
		}
		poolCfg.MaxConnIdleTime = idle
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to db: %w", err)
	}

	// Verify connection
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return &DB{Pool: pool, log: log, snapshotEvery: cfg.SnapshotEvery, snapshotPeriod: snapshotPeriod}, nil
}

func (db *DB) Close() {
	db.Pool.Close()
}

// CheckSnapshotCadence logs a warning if the gap since lastSaveAt has
// already run well past the configured snapshot period — a sign the tick
// loop stalled or dispatch is poisoned, since under normal operation
// Snapshotter.Save fires every snapshotPeriod.
func (db *DB) CheckSnapshotCadence(lastSaveAt time.Time) {
	if db.snapshotPeriod <= 0 {
		return
	}
	if gap := time.Since(lastSaveAt); gap > 3*db.snapshotPeriod {
		db.log.Warn("snapshot cadence behind schedule",
			zap.Duration("gap", gap),
			zap.Duration("expected_period", db.snapshotPeriod),
			zap.Int("snapshot_every_ticks", db.snapshotEvery),
		)
	}
}
