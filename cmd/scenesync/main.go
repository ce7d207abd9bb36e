package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/text/width"

	"github.com/scenesync/server/internal/authority"
	"github.com/scenesync/server/internal/collision"
	"github.com/scenesync/server/internal/config"
	"github.com/scenesync/server/internal/core/ecs"
	"github.com/scenesync/server/internal/core/event"
	coresys "github.com/scenesync/server/internal/core/system"
	"github.com/scenesync/server/internal/core/timer"
	"github.com/scenesync/server/internal/data"
	"github.com/scenesync/server/internal/handler"
	"github.com/scenesync/server/internal/lifecycle"
	gonet "github.com/scenesync/server/internal/net"
	"github.com/scenesync/server/internal/persist"
	"github.com/scenesync/server/internal/persist/patchlog"
	"github.com/scenesync/server/internal/protocol"
	"github.com/scenesync/server/internal/replica"
	"github.com/scenesync/server/internal/scene"
	"github.com/scenesync/server/internal/scripting"
	"github.com/scenesync/server/internal/spawn"
	"github.com/scenesync/server/internal/system"
	"github.com/scenesync/server/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(serverName string) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m             scenesync  v0.1.0             \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m         shared scene sync host            \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1mserver:\033[0m %s\n\n", serverName)
}

// displayWidth counts terminal columns; wide and fullwidth runes take two.
func displayWidth(s string) int {
	n := 0
	for _, r := range s {
		switch width.LookupRune(r).Kind() {
		case width.EastAsianWide, width.EastAsianFullwidth:
			n += 2
		default:
			n++
		}
	}
	return n
}

func printSection(title string) {
	lineLen := 46 - displayWidth(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := 42 - displayWidth(label) - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main server logic ─────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfg, err := config.Load(config.PathFromEnv())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger and tracing
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Server.Name)

	shutdownTracing, err := telemetry.Setup(context.Background(), cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			log.Warn("telemetry shutdown", zap.Error(err))
		}
	}()

	// 3. Open the database and run migrations
	printSection("database")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := persist.Open(ctx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()
	printOK("database connected")

	if err := persist.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	printOK("migrations applied")
	fmt.Println()

	actorRepo := persist.NewActorRepo(db)
	ownershipRepo := persist.NewOwnershipRepo(db)

	// 4. Load the scene table and scripts
	printSection("data")

	table, err := data.LoadSceneTable(cfg.Scene.Table)
	if err != nil {
		return fmt.Errorf("load scene table: %w", err)
	}
	printStat("scene table actors", table.Count())

	scripts, err := scripting.NewEngine(cfg.Scene.ScriptsDir, log)
	if err != nil {
		return fmt.Errorf("scripting: %w", err)
	}
	defer scripts.Close()
	printOK("scripts loaded")
	fmt.Println()

	// 5. Build the scene and its services
	sc := scene.New(log)
	owners := authority.NewManager(log)
	sc.OnSimulated = owners.Track
	tracker := collision.NewTracker()
	timers := timer.NewService()
	bus := event.NewBus()
	store := gonet.NewSessionStore()

	var journal gonet.Journal
	if cfg.Journal.Enabled {
		w := patchlog.NewWriter(cfg.Journal.Dir, "patches")
		defer w.Close()
		journal = w
	}
	out := gonet.NewBroadcaster(store, journal, log)

	park := cfg.Scene.ParkPosition
	seq := lifecycle.New(lifecycle.Config{
		SettleDelay:  cfg.Scene.SettleDelay,
		ParkPosition: replica.Vector3{X: park[0], Y: park[1], Z: park[2]},
	}, sc, owners, tracker, timers, out, log)
	seq.OnRemoved(func(id ecs.ActorID) {
		event.Emit(bus, event.ActorRemoved{Actor: id})
	})

	owners.OnChange(func(ch authority.Change) {
		p, err := sc.SetOwner(ch.Actor, ch.Owner)
		if err != nil {
			log.Warn("owner field not updated", zap.Stringer("actor", ch.Actor), zap.Error(err))
		} else {
			out.Broadcast(p)
		}
		event.Emit(bus, event.OwnershipChanged{
			Actor:    ch.Actor,
			Previous: ch.Previous,
			Owner:    ch.Owner,
			Reason:   string(ch.Reason),
		})
	})

	// 6. Restore saved actors, then create table actors still missing
	printSection("scene")

	restored, err := restoreScene(ctx, sc, actorRepo, log)
	if err != nil {
		return err
	}
	printStat("restored actors", restored)

	tableIDs := make(map[ecs.ActorID]struct{}, table.Count())
	created := 0
	for _, spec := range table.Specs() {
		tableIDs[spec.ID] = struct{}{}
		if sc.Exists(spec.ID) {
			continue
		}
		if _, _, err := sc.Create(spec); err != nil {
			return fmt.Errorf("create %q: %w", spec.Name, err)
		}
		created++
	}
	printStat("table actors created", created)

	spawner := spawn.NewSpawner(spawn.Config{
		Interval: cfg.Scene.SpawnInterval,
		Lifetime: cfg.Scene.BallLifetime,
		Width:    cfg.Scene.SpawnWidth,
		Height:   cfg.Scene.SpawnHeight,
		Radius:   cfg.Scene.BallRadius,
		Mass:     cfg.Scene.BallMass,
		Parent:   table.SpawnParent(),
	}, sc, seq, scripts, out, timers, log)

	// Balls saved by a previous run age out like fresh ones.
	adopted := 0
	for _, id := range sc.Bodies() {
		if _, ok := tableIDs[id]; ok {
			continue
		}
		spawner.Adopt(id)
		adopted++
	}
	printStat("balls adopted", adopted)
	printStat("bodies in scene", sc.BodyCount())

	if plane, label, ok := table.Counter(); ok {
		spawn.NewCounter(sc, scripts, out, plane, label, log).Subscribe(bus)
		printOK("ball counter armed")
	}
	if cfg.Scene.SpawnEnabled {
		spawner.Start()
	}
	fmt.Println()

	// 7. Message registry and handlers
	validator, err := protocol.NewValidator()
	if err != nil {
		return fmt.Errorf("protocol schemas: %w", err)
	}
	registry := protocol.NewRegistry(validator, telemetry.Tracer(), log)
	digests := handler.NewDigestHistory(handler.DefaultDigestHistory)
	deps := &handler.Deps{
		Config:    cfg,
		Log:       log,
		Scene:     sc,
		Owners:    owners,
		Tracker:   tracker,
		Sequencer: seq,
		Bus:       bus,
		Out:       out,
		Digests:   digests,
	}
	handler.RegisterAll(registry, deps)

	// 8. Create network server
	netServer, err := gonet.NewServer(cfg.Network, log)
	if err != nil {
		return fmt.Errorf("net server: %w", err)
	}
	go netServer.Serve()

	// 9. Create systems and register with runner
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()

	outputSys := system.NewOutputSystem(out, store, sc, digests, log)
	persistSys := system.NewPersistenceSystem(sc, actorRepo, ownershipRepo, cfg.Database.SaveInterval, log)
	persistSys.Subscribe(bus)
	persistSys.Start()

	runner := coresys.NewRunner()
	runner.Register(system.NewInputSystem(loopCtx, netServer, registry, store, deps, cfg.Network.MaxMessagesPerTick, log))
	runner.Register(system.NewEventSystem(bus))
	runner.Register(system.NewTimerSystem(timers))
	runner.Register(outputSys)
	runner.Register(persistSys)
	runner.Register(system.NewCleanupSystem(sc, seq))

	// 10. Start game loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Network.TickRate)
	defer ticker.Stop()
	var pollC <-chan time.Time
	if cfg.Network.InputPoll > 0 {
		poll := time.NewTicker(cfg.Network.InputPoll)
		defer poll.Stop()
		pollC = poll.C
	}

	printSection("ready")
	printReady(fmt.Sprintf("listening on ws://%s%s", netServer.Addr().String(), cfg.Network.Path))
	printReady(fmt.Sprintf("game loop running (tick: %s)", cfg.Network.TickRate))
	fmt.Println()

	for {
		select {
		case <-ticker.C:
			runner.Tick(cfg.Network.TickRate)
		case <-pollC:
			runner.TickPhase(coresys.PhaseInput, 0)
		case sig := <-shutdownCh:
			log.Info("shutdown signal received", zap.String("signal", sig.String()))
			stopLoop()

			cancelled := spawner.Stop() + seq.Shutdown()
			outputSys.Update(0)
			persistSys.Close()
			store.ForEach(func(sess *gonet.Session) { sess.Close() })

			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
			err := netServer.Shutdown(shutdownCtx)
			cancelShutdown()
			if err != nil {
				log.Warn("net server shutdown", zap.Error(err))
			}
			log.Info("server stopped",
				zap.Uint64("ticks", outputSys.Tick()),
				zap.Uint64("patches", out.Sent()),
				zap.Int("cancelled_timers", cancelled))
			return nil
		}
	}
}

// restoreScene recreates every saved actor. Rows arrive parents first.
func restoreScene(ctx context.Context, sc *scene.Scene, repo *persist.ActorRepo, log *zap.Logger) (int, error) {
	rows, err := repo.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load actors: %w", err)
	}
	n := 0
	for _, row := range rows {
		if err := sc.Restore(row.ID, row.Wire); err != nil {
			log.Warn("actor not restored", zap.Stringer("actor", row.ID), zap.Error(err))
			continue
		}
		n++
	}
	return n, nil
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
