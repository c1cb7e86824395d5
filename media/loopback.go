// Package media provides session providers for call audio/video. The
// loopback provider stands in until a real SFU integration is wired; it
// negotiates nothing but honors the full session lifecycle.
package media

import (
	"context"
	"log/slog"
	"sync"

	"chat-mesh/contract"
	"chat-mesh/domain"
)

type LoopbackProvider struct {
	log *slog.Logger
}

func NewLoopbackProvider(log *slog.Logger) *LoopbackProvider {
	return &LoopbackProvider{log: log}
}

// Acquire returns a session immediately and reports it connected from a
// separate goroutine, the same shape a real negotiation would have.
func (p *LoopbackProvider) Acquire(ctx context.Context, roomID string, kind domain.CallKind,
	handlers contract.MediaHandlers) (contract.MediaSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &loopbackSession{log: p.log, roomID: roomID}
	if handlers.OnConnected != nil {
		go handlers.OnConnected()
	}
	return s, nil
}

type loopbackSession struct {
	log    *slog.Logger
	roomID string

	mu     sync.Mutex
	closed bool
}

func (s *loopbackSession) Publish(ctx context.Context) error {
	return ctx.Err()
}

func (s *loopbackSession) Subscribe(ctx context.Context, participantID string) error {
	return ctx.Err()
}

func (s *loopbackSession) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.log.Debug("Loopback session released", "room", s.roomID)
	return nil
}
