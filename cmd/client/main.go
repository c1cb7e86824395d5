package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"chat-mesh/call"
	"chat-mesh/domain"
	"chat-mesh/internal"
	"chat-mesh/invite"
	"chat-mesh/media"
	"chat-mesh/moderation"
	"chat-mesh/observability"
	"chat-mesh/projection"
	"chat-mesh/repositories"
	"chat-mesh/runtime"
	"chat-mesh/search"
	"chat-mesh/store"
	"chat-mesh/syncer"
	"chat-mesh/transport"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	logger := logs.GetLoggerFromString(config.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	self := domain.Sender{
		ID:     config.UserID,
		Name:   config.UserName,
		Avatar: config.UserAvatar,
	}

	// 2. Database (BadgerDB)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	if config.DebugPort > 0 && logger.Enabled(ctx, slog.LevelDebug) {
		logger.Info("Debug snapshot inspector available",
			"url", fmt.Sprintf("http://localhost:%d/inspect", config.DebugPort))
		internal.StartDebugServer(db, config.DebugPort, internal.SnapshotMapper, nil)
	}

	// 3. Local state, hydrated from the last snapshot
	snapshots := repositories.NewSnapshotRepository(db, logger)
	st := store.New(logger, snapshots)
	if err := st.Hydrate(self.ID); err != nil {
		return exitRuntime, fmt.Errorf("state hydration failed: %w", err)
	}

	// 4. Search index
	index, err := search.Open(config.BlugeFilepath, logger)
	if err != nil {
		return exitRuntime, err
	}
	defer func() {
		logger.Info("Closing search index...")
		_ = index.Close()
	}()

	// 5. Transport
	conn, err := transport.Dial(ctx, config.RelayURL, config.AuthToken, logger)
	if err != nil {
		return exitRuntime, fmt.Errorf("relay connection failed: %w", err)
	}
	defer func() { _ = conn.Close() }()

	// 6. Domain components
	moderator, err := moderation.NewDefaultModerator('*')
	if err != nil {
		return exitRuntime, fmt.Errorf("moderator init failed: %w", err)
	}

	mediaProvider := media.NewLoopbackProvider(logger)
	sync := syncer.New(logger, self, st, conn, moderator)
	workflow := invite.New(logger, self, st, conn)
	machine := call.NewMachine(logger, self, conn, mediaProvider, config.RingTimeout)
	groups := call.NewGroupManager(logger, self, conn, mediaProvider)

	monitor := observability.NewSyncMonitor(logger)
	timeline := projection.NewTimeline()
	sync.AddSinks(monitor, timeline, index)
	workflow.AddSinks(monitor)
	machine.AddSinks(monitor)
	groups.AddSinks(monitor)

	engine := runtime.NewEngine(logger, st, sync, workflow, machine, groups)

	// 7. Re-announce presence in channels restored from the snapshot
	for _, ch := range st.Channels() {
		sync.Subscribe(ctx, ch.ID)
	}

	// 8. Workers under supervision
	sup := runtime.NewSupervisor(logger)
	sup.Add(
		engine,
		runtime.NewInboundWorker(logger, conn, engine, sync, workflow, machine, groups),
		runtime.NewPresenceWorker(logger, sync, config.PresenceInterval),
		runtime.NewTelemetryWorker(logger, monitor, config.TelemetryInterval),
	)

	logger.Info("Client started", "user_id", self.ID, "relay", config.RelayURL, "at", time.Now().UTC())
	sup.Run(ctx)

	logger.Info("Client stopped cleanly")
	return exitOK, nil
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)
	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.WARNING)
	}
	return options
}
