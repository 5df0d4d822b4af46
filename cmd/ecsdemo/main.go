package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/forgelabs/ecsframe/dispatch"
	"github.com/forgelabs/ecsframe/ecs"
	"github.com/forgelabs/ecsframe/internal/components"
	"github.com/forgelabs/ecsframe/internal/config"
	"github.com/forgelabs/ecsframe/internal/persist"
	"github.com/forgelabs/ecsframe/internal/scenario"
	"github.com/forgelabs/ecsframe/internal/scripting"
	"github.com/forgelabs/ecsframe/internal/systems"
	"github.com/forgelabs/ecsframe/internal/transport"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// componentCodecs lists every snapshot-able component type, by the name
// they're addressed as in both scenario manifests and persisted snapshots.
func componentCodecs() []persist.ComponentCodec {
	return []persist.ComponentCodec{
		persist.ComponentCodecFor[components.Position]("position"),
		persist.ComponentCodecFor[components.Velocity]("velocity"),
		persist.ComponentCodecFor[components.Health]("health"),
		persist.ComponentCodecFor[scripting.Script]("script"),
		persist.ComponentCodecFor[scripting.Blackboard]("blackboard"),
	}
}

func resourceCodecs() []persist.ResourceCodec {
	return []persist.ResourceCodec{
		persist.ResourceCodecFor[components.Clock]("clock"),
	}
}

func scenarioLoaders() []scenario.Loader {
	return []scenario.Loader{
		scenario.LoaderFor[components.Position]("position"),
		scenario.LoaderFor[components.Velocity]("velocity"),
		scenario.LoaderFor[components.Health]("health"),
		scenario.LoaderFor[scripting.Script]("script"),
		scenario.LoaderFor[scripting.Blackboard]("blackboard"),
	}
}

func run() error {
	cfgPath := "config/ecsdemo.toml"
	if p := os.Getenv("ECSDEMO_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	log.Info("starting ecsdemo", zap.Duration("tick_rate", cfg.World.TickRate))

	w := ecs.NewWorld()

	var luaEngine *scripting.Engine
	var scriptedSys *scripting.ScriptedSystem
	if cfg.Scripting.Enabled {
		luaEngine, err = scripting.NewEngine(cfg.Scripting.ScriptsDir, log)
		if err != nil {
			return fmt.Errorf("scripting engine: %w", err)
		}
		defer luaEngine.Close()
		scriptedSys = &scripting.ScriptedSystem{Engine: luaEngine}
		log.Info("lua scripting enabled", zap.String("dir", cfg.Scripting.ScriptsDir))
	}

	var db *persist.DB
	var snapshotter *persist.Snapshotter
	ctx := context.Background()
	if cfg.Database.Enabled {
		dbCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		db, err = persist.NewDB(dbCtx, cfg.Database, cfg.World.TickRate, log)
		cancel()
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()

		migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err = persist.RunMigrations(migrateCtx, db.Pool)
		cancel()
		if err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		log.Info("database ready")

		snapshotter = persist.NewSnapshotter(db, componentCodecs(), resourceCodecs())

		loadCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		tick, found, err := snapshotter.LatestTick(loadCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("latest snapshot tick: %w", err)
		}
		if found {
			loadCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err = snapshotter.Load(loadCtx, w, tick)
			cancel()
			if err != nil {
				return fmt.Errorf("load snapshot: %w", err)
			}
			log.Info("resumed from snapshot", zap.Int64("tick", tick))
		}
	}

	if _, err := os.Stat(cfg.World.ScenarioPath); err == nil {
		if err := scenario.Seed(w, scenarioLoaders(), cfg.World.ScenarioPath); err != nil {
			return fmt.Errorf("seed scenario: %w", err)
		}
		w.Maintain()
		log.Info("scenario seeded", zap.String("path", cfg.World.ScenarioPath))
	}

	builder := dispatch.NewDispatcherBuilder()
	builder.Add(systems.ClockSystem{}, "clock")
	builder.Add(systems.MovementSystem{}, "movement", "clock")
	builder.Add(systems.RegenSystem{}, "regen", "clock")
	if scriptedSys != nil {
		builder.AddThreadLocal(scriptedSys, "scripted")
	}
	dispatcher, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build dispatcher: %w", err)
	}
	dispatcher.Setup(w)

	var server *transport.Server
	sessionEntities := make(map[uint64]ecs.Entity)
	creds := transport.NewCredentialStore()
	if cfg.Transport.Enabled {
		server, err = transport.NewServer(cfg.Transport.BindAddress, 256, 256, 20, creds, log)
		if err != nil {
			return fmt.Errorf("transport server: %w", err)
		}
		go server.AcceptLoop()
		log.Info("transport listening", zap.Stringer("addr", server.Addr()))
		defer server.Shutdown()
	}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.World.TickRate)
	defer ticker.Stop()

	var tick int64
	lastSaveAt := time.Now()
	for {
		select {
		case <-ticker.C:
			if err := dispatcher.Dispatch(ctx, w); err != nil {
				log.Error("dispatch failed, world is now poisoned", zap.Error(err))
				if db != nil {
					db.CheckSnapshotCadence(lastSaveAt)
				}
				continue
			}
			w.Maintain()
			tick++

			if server != nil {
				drainTransportEvents(w, server, sessionEntities, log)
			}

			if snapshotter != nil && cfg.Database.SnapshotEvery > 0 && tick%int64(cfg.Database.SnapshotEvery) == 0 {
				saveCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
				err := snapshotter.Save(saveCtx, w, tick)
				cancel()
				if err != nil {
					log.Error("snapshot save failed", zap.Error(err), zap.Int64("tick", tick))
				} else {
					lastSaveAt = time.Now()
				}
			}

		case sig := <-shutdownCh:
			log.Info("shutting down", zap.String("signal", sig.String()))
			if snapshotter != nil {
				saveCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
				if err := snapshotter.Save(saveCtx, w, tick); err != nil {
					log.Error("final snapshot save failed", zap.Error(err))
				}
				cancel()
			}
			return nil
		}
	}
}

// drainTransportEvents turns newly connected and disconnected sessions
// into ECS entity lifecycle via LazyUpdate, without blocking the tick
// loop: each accepted connection becomes one entity carrying a
// components.Session tag, and a disconnect enqueues that entity's deferred
// delete (SPEC_FULL.md §4.10). sessionEntities tracks the session-ID-to-
// entity mapping across ticks; entries are added on connect and removed on
// disconnect. A demo host has no further game-specific binding to perform
// here, unlike the teacher's InputSystem, which maps sessions onto
// PlayerInfo.
func drainTransportEvents(w *ecs.World, server *transport.Server, sessionEntities map[uint64]ecs.Entity, log *zap.Logger) {
	lu := w.LazyUpdate()
	for {
		select {
		case sess := <-server.NewSessions():
			e := w.CreateEntityAtomic()
			ecs.InsertComponent(lu, e, components.Session{ID: sess.ID})
			sessionEntities[sess.ID] = e
			log.Info("session connected", zap.Uint64("session_id", sess.ID))
		case id := <-server.DeadSessions():
			if e, ok := sessionEntities[id]; ok {
				lu.DeleteEntity(e)
				delete(sessionEntities, id)
			}
			log.Info("session disconnected", zap.Uint64("session_id", id))
		default:
			return
		}
	}
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
