package call

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chat-mesh/contract"
	"chat-mesh/domain"
	"chat-mesh/domain/event"
	"chat-mesh/errors"
)

// GroupManager tracks the one live group room the local client may be in
// plus the set of remote participants, and advertises rooms it hears
// about per channel. It depends on the media provider but is independent
// of channel chat state.
type GroupManager struct {
	mu        sync.Mutex
	log       *slog.Logger
	self      domain.Sender
	transport contract.Transport
	media     contract.MediaProvider
	sinks     []contract.EventSink

	session       *domain.GroupCallSession
	mediaSession  contract.MediaSession
	acquireCancel context.CancelFunc
	participants  map[string]struct{}

	// advisory map of channel -> advertised room, fed by broadcasts
	activeRooms map[string]string
}

func NewGroupManager(log *slog.Logger, self domain.Sender, transport contract.Transport,
	media contract.MediaProvider) *GroupManager {
	return &GroupManager{
		log:          log,
		self:         self,
		transport:    transport,
		media:        media,
		participants: make(map[string]struct{}),
		activeRooms:  make(map[string]string),
	}
}

func (g *GroupManager) AddSinks(sinks ...contract.EventSink) {
	g.sinks = append(g.sinks, sinks...)
}

// Start generates a room scoped to the channel and current time and
// announces it to channel members. Starting does not join.
func (g *GroupManager) Start(ctx context.Context, channelID string, kind domain.CallKind) (string, error) {
	roomName := domain.NewGroupRoomName(channelID, time.Now())
	g.broadcast(ctx, channelID, event.TypeStartGroupCall, event.GroupCallSignal{
		ChannelID: channelID,
		CallType:  kind,
		RoomName:  roomName,
		UserID:    g.self.ID,
	})
	g.log.Info("Group call started", "channel_id", channelID, "room", roomName, "kind", kind)
	return roomName, nil
}

// Join acquires a media session for the room. The acquisition may fail,
// in which case no state changes. Participant joined/left callbacks
// mutate the local participant set.
func (g *GroupManager) Join(ctx context.Context, channelID, roomID string, kind domain.CallKind) error {
	g.mu.Lock()
	if g.session != nil {
		g.mu.Unlock()
		return errors.ErrCallInProgress
	}
	acquireCtx, cancel := context.WithCancel(ctx)
	g.acquireCancel = cancel
	g.mu.Unlock()

	session, err := g.media.Acquire(acquireCtx, roomID, kind, contract.MediaHandlers{
		OnParticipantJoined: g.onParticipantJoined,
		OnParticipantLeft:   g.onParticipantLeft,
	})
	if err != nil {
		g.mu.Lock()
		g.acquireCancel = nil
		g.mu.Unlock()
		g.log.Error(errors.ErrMediaSessionFailure.Error(), "room", roomID, "error", err)
		return errors.ErrMediaSessionFailure
	}

	g.mu.Lock()
	g.mediaSession = session
	g.session = &domain.GroupCallSession{ChannelID: channelID, RoomID: roomID, Kind: kind}
	g.mu.Unlock()
	g.log.Info("Joined group call", "room", roomID)
	return nil
}

// Leave broadcasts departure, releases the media session and clears all
// local state. When the local view says no one is left, the leaver sends
// an advisory group-call-ended broadcast; the manager never tracks
// server-side liveness authoritatively.
func (g *GroupManager) Leave(ctx context.Context) error {
	g.mu.Lock()
	if g.session == nil {
		g.mu.Unlock()
		return nil
	}
	session := *g.session
	media := g.mediaSession
	if g.acquireCancel != nil {
		g.acquireCancel()
		g.acquireCancel = nil
	}
	lastOut := len(g.participants) == 0
	g.session = nil
	g.mediaSession = nil
	g.participants = make(map[string]struct{})
	g.mu.Unlock()

	g.broadcast(ctx, session.ChannelID, event.TypeLeaveGroupCall, event.GroupCallSignal{
		ChannelID: session.ChannelID,
		RoomName:  session.RoomID,
		UserID:    g.self.ID,
	})
	if lastOut {
		g.broadcast(ctx, session.ChannelID, event.TypeGroupCallEnded, event.GroupCallSignal{
			ChannelID: session.ChannelID,
			RoomName:  session.RoomID,
		})
	}

	if media != nil {
		if err := media.Disconnect(); err != nil {
			g.log.Warn("Media session release failed", "room", session.RoomID, "error", err)
		}
	}
	g.log.Info("Left group call", "room", session.RoomID)
	return nil
}

// HandleStarted records an advertised room for its channel.
func (g *GroupManager) HandleStarted(p event.GroupCallSignal) {
	g.mu.Lock()
	g.activeRooms[p.ChannelID] = p.RoomName
	g.mu.Unlock()
	g.emit(event.GroupCallNotice{Channel: p.ChannelID, RoomName: p.RoomName, Started: true})
}

// HandleEnded drops the advertised room. Advisory only.
func (g *GroupManager) HandleEnded(p event.GroupCallSignal) {
	g.mu.Lock()
	delete(g.activeRooms, p.ChannelID)
	g.mu.Unlock()
	g.emit(event.GroupCallNotice{Channel: p.ChannelID, RoomName: p.RoomName, Started: false})
}

// HandleDisconnect releases everything on transport loss.
func (g *GroupManager) HandleDisconnect() {
	g.mu.Lock()
	media := g.mediaSession
	if g.acquireCancel != nil {
		g.acquireCancel()
		g.acquireCancel = nil
	}
	g.session = nil
	g.mediaSession = nil
	g.participants = make(map[string]struct{})
	g.mu.Unlock()

	if media != nil {
		_ = media.Disconnect()
	}
}

// ActiveRoom returns the advertised room for a channel, if any.
func (g *GroupManager) ActiveRoom(channelID string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	room, ok := g.activeRooms[channelID]
	return room, ok
}

// Session returns the joined session, if any.
func (g *GroupManager) Session() (domain.GroupCallSession, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.session == nil {
		return domain.GroupCallSession{}, false
	}
	return *g.session, true
}

// LocalSession exposes the local media handle once joined.
func (g *GroupManager) LocalSession() (contract.MediaSession, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mediaSession, g.mediaSession != nil
}

func (g *GroupManager) Participants() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.participants))
	for id := range g.participants {
		out = append(out, id)
	}
	return out
}

func (g *GroupManager) onParticipantJoined(id string) {
	g.mu.Lock()
	g.participants[id] = struct{}{}
	g.mu.Unlock()
}

func (g *GroupManager) onParticipantLeft(id string) {
	g.mu.Lock()
	delete(g.participants, id)
	g.mu.Unlock()
}

func (g *GroupManager) broadcast(ctx context.Context, channelID, eventType string, payload event.GroupCallSignal) {
	env, err := event.NewEnvelope(eventType, payload)
	if err != nil {
		g.log.Error("Group signal encode failed", "type", eventType, "error", err)
		return
	}
	env.Channel = channelID
	if err := g.transport.Send(ctx, env); err != nil {
		g.log.Warn("Group signal send failed", "type", eventType, "channel_id", channelID, "error", err)
	}
}

func (g *GroupManager) emit(e event.DomainEvent) {
	for _, sink := range g.sinks {
		sink.Consume(e)
	}
}
