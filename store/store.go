// Package store holds the authoritative client-local copy of all
// channels and invitations. It is mutated only by the synchronizer,
// invitation workflow and call components, all serialized behind the
// engine's task queue; the internal lock only guards read access from
// presentation-side snapshots.
package store

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"chat-mesh/contract"
	"chat-mesh/domain"
)

type Store struct {
	mu          sync.RWMutex
	log         *slog.Logger
	snapshots   contract.SnapshotStore
	channels    map[string]*domain.Channel
	invitations map[string]*domain.Invitation
}

func New(log *slog.Logger, snapshots contract.SnapshotStore) *Store {
	return &Store{
		log:         log,
		snapshots:   snapshots,
		channels:    make(map[string]*domain.Channel),
		invitations: make(map[string]*domain.Invitation),
	}
}

// Hydrate loads persisted channels plus the user's invitations so a
// restarted client resumes from its last snapshot.
func (s *Store) Hydrate(userID string) error {
	channels, err := s.snapshots.LoadChannels()
	if err != nil {
		return fmt.Errorf("hydrate channels: %w", err)
	}
	invitations, err := s.snapshots.GetUserInvitations(userID)
	if err != nil {
		return fmt.Errorf("hydrate invitations: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range channels {
		ch := channels[i]
		s.channels[ch.ID] = &ch
	}
	for i := range invitations {
		inv := invitations[i]
		s.invitations[inv.ID] = &inv
	}
	s.log.Info(fmt.Sprintf("Hydrated %d channels and %d invitations", len(channels), len(invitations)))
	return nil
}

// Channel returns the live channel value. Mutating components edit it in
// place and then call Persist.
func (s *Store) Channel(id string) (*domain.Channel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[id]
	return ch, ok
}

func (s *Store) Channels() []*domain.Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Channel, 0, len(s.channels))
	for _, ch := range s.channels {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Upsert registers the channel and persists it.
func (s *Store) Upsert(ch *domain.Channel) {
	s.mu.Lock()
	s.channels[ch.ID] = ch
	s.mu.Unlock()
	s.Persist(ch)
}

// Persist snapshots a channel to external storage. Fire-and-forget by
// contract: failures are logged, never surfaced to the mutation path.
func (s *Store) Persist(ch *domain.Channel) {
	if err := s.snapshots.SaveChannel(*ch); err != nil {
		s.log.Error("Channel snapshot failed", "channel_id", ch.ID, "error", err)
	}
}

func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.channels, id)
	s.mu.Unlock()
	if err := s.snapshots.DeleteChannel(id); err != nil {
		s.log.Error("Channel delete failed", "channel_id", id, "error", err)
	}
}

func (s *Store) Invitation(id string) (*domain.Invitation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invitations[id]
	return inv, ok
}

func (s *Store) Invitations() []*domain.Invitation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Invitation, 0, len(s.invitations))
	for _, inv := range s.invitations {
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// PutInvitation registers the invitation and persists it.
func (s *Store) PutInvitation(inv *domain.Invitation) {
	s.mu.Lock()
	s.invitations[inv.ID] = inv
	s.mu.Unlock()
	s.PersistInvitation(inv)
}

func (s *Store) PersistInvitation(inv *domain.Invitation) {
	if err := s.snapshots.SaveInvitation(*inv); err != nil {
		s.log.Error("Invitation snapshot failed", "invitation_id", inv.ID, "error", err)
	}
}
