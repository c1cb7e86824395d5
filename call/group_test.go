package call

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"chat-mesh/domain"
	"chat-mesh/domain/event"
	"chat-mesh/errors"
)

type recorder struct {
	mu     sync.Mutex
	events []event.DomainEvent
}

func (r *recorder) Consume(e event.DomainEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) notices() []event.GroupCallNotice {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []event.GroupCallNotice
	for _, e := range r.events {
		if n, ok := e.(event.GroupCallNotice); ok {
			out = append(out, n)
		}
	}
	return out
}

func (f *fakeMedia) reportParticipant(id string, joined bool) {
	f.mu.Lock()
	handlers := f.handlers
	f.mu.Unlock()
	if joined && handlers.OnParticipantJoined != nil {
		handlers.OnParticipantJoined(id)
	}
	if !joined && handlers.OnParticipantLeft != nil {
		handlers.OnParticipantLeft(id)
	}
}

func newTestGroupManager(t *testing.T) (*GroupManager, *fakeTransport, *fakeMedia) {
	t.Helper()
	transport := &fakeTransport{}
	media := &fakeMedia{}
	g := NewGroupManager(slog.Default(), domain.Sender{ID: "user-self", Name: "Self"}, transport, media)
	return g, transport, media
}

func Test_Start_Announces_Without_Joining(t *testing.T) {
	req := require.New(t)
	g, transport, _ := newTestGroupManager(t)

	room, err := g.Start(context.Background(), "channel-1", domain.CallVideo)
	req.NoError(err)
	req.NotEmpty(room)

	env, ok := transport.lastOfType(event.TypeStartGroupCall)
	req.True(ok)
	req.Equal("channel-1", env.Channel)

	_, joined := g.Session()
	req.False(joined)
}

func Test_Join_Acquires_Media_Once(t *testing.T) {
	req := require.New(t)
	g, _, media := newTestGroupManager(t)
	ctx := context.Background()

	req.NoError(g.Join(ctx, "channel-1", "room-1", domain.CallAudio))
	session, ok := g.Session()
	req.True(ok)
	req.Equal("room-1", session.RoomID)
	req.NotNil(media.lastSession())

	req.ErrorIs(g.Join(ctx, "channel-1", "room-1", domain.CallAudio), errors.ErrCallInProgress)
}

func Test_Join_Failure_Leaves_No_State(t *testing.T) {
	req := require.New(t)
	g, _, media := newTestGroupManager(t)
	media.failAcquire = true

	err := g.Join(context.Background(), "channel-1", "room-1", domain.CallAudio)
	req.ErrorIs(err, errors.ErrMediaSessionFailure)

	_, joined := g.Session()
	req.False(joined)

	// A later attempt must still be possible.
	media.failAcquire = false
	req.NoError(g.Join(context.Background(), "channel-1", "room-1", domain.CallAudio))
}

func Test_Participant_Callbacks_Track_Roster(t *testing.T) {
	req := require.New(t)
	g, _, media := newTestGroupManager(t)

	req.NoError(g.Join(context.Background(), "channel-1", "room-1", domain.CallAudio))

	media.reportParticipant("user-a", true)
	media.reportParticipant("user-b", true)
	req.Len(g.Participants(), 2)

	media.reportParticipant("user-a", false)
	req.Equal([]string{"user-b"}, g.Participants())
}

func Test_Last_Leaver_Broadcasts_Ended(t *testing.T) {
	req := require.New(t)
	g, transport, media := newTestGroupManager(t)
	ctx := context.Background()

	req.NoError(g.Join(ctx, "channel-1", "room-1", domain.CallAudio))
	req.NoError(g.Leave(ctx))

	_, ok := transport.lastOfType(event.TypeLeaveGroupCall)
	req.True(ok)
	ended, ok := transport.lastOfType(event.TypeGroupCallEnded)
	req.True(ok)
	req.Equal("channel-1", ended.Channel)
	req.True(media.lastSession().released())

	_, joined := g.Session()
	req.False(joined)
}

func Test_Leave_With_Others_Present_Skips_Ended(t *testing.T) {
	req := require.New(t)
	g, transport, media := newTestGroupManager(t)
	ctx := context.Background()

	req.NoError(g.Join(ctx, "channel-1", "room-1", domain.CallAudio))
	media.reportParticipant("user-a", true)
	req.NoError(g.Leave(ctx))

	_, ok := transport.lastOfType(event.TypeLeaveGroupCall)
	req.True(ok)
	_, ok = transport.lastOfType(event.TypeGroupCallEnded)
	req.False(ok)
}

func Test_Leave_Without_Session_Is_Noop(t *testing.T) {
	req := require.New(t)
	g, transport, _ := newTestGroupManager(t)

	req.NoError(g.Leave(context.Background()))
	req.Empty(transport.sent)
}

func Test_Advertised_Rooms_Follow_Broadcasts(t *testing.T) {
	req := require.New(t)
	g, _, _ := newTestGroupManager(t)
	sink := &recorder{}
	g.AddSinks(sink)

	g.HandleStarted(event.GroupCallSignal{ChannelID: "channel-1", RoomName: "room-1"})
	room, ok := g.ActiveRoom("channel-1")
	req.True(ok)
	req.Equal("room-1", room)

	g.HandleEnded(event.GroupCallSignal{ChannelID: "channel-1", RoomName: "room-1"})
	_, ok = g.ActiveRoom("channel-1")
	req.False(ok)

	notices := sink.notices()
	req.Len(notices, 2)
	req.True(notices[0].Started)
	req.False(notices[1].Started)
}

func Test_Disconnect_Releases_Group_Media(t *testing.T) {
	req := require.New(t)
	g, _, media := newTestGroupManager(t)

	req.NoError(g.Join(context.Background(), "channel-1", "room-1", domain.CallAudio))
	media.reportParticipant("user-a", true)

	g.HandleDisconnect()

	req.True(media.lastSession().released())
	req.Empty(g.Participants())
	_, joined := g.Session()
	req.False(joined)
}
