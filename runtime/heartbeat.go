package runtime

import (
	"context"
	"log/slog"
	"time"

	"chat-mesh/domain"
	"chat-mesh/syncer"
)

// PresenceWorker periodically re-announces the local client as online.
// Peers age out entries they stop hearing about.
type PresenceWorker struct {
	log      *slog.Logger
	syncer   *syncer.Synchronizer
	interval time.Duration
}

func NewPresenceWorker(log *slog.Logger, sync *syncer.Synchronizer, interval time.Duration) *PresenceWorker {
	return &PresenceWorker{log: log, syncer: sync, interval: interval}
}

func (w *PresenceWorker) Run(ctx context.Context) error {
	w.log.Info("Starting presence worker", "interval", w.interval)
	w.syncer.BroadcastPresence(ctx, domain.PresenceOnline)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Best effort. The relay also notices the socket close.
			w.syncer.BroadcastPresence(context.WithoutCancel(ctx), domain.PresenceOffline)
			return ctx.Err()
		case <-ticker.C:
			w.syncer.BroadcastPresence(ctx, domain.PresenceOnline)
		}
	}
}
