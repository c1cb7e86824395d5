package syncer

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chat-mesh/domain"
	"chat-mesh/domain/event"
	"chat-mesh/errors"
	"chat-mesh/store"
)

type fakeTransport struct {
	mu   sync.Mutex
	sent []event.Envelope
}

func (f *fakeTransport) Send(_ context.Context, env event.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, env)
	return nil
}

func (f *fakeTransport) Events() <-chan event.Inbound { return nil }
func (f *fakeTransport) Close() error                 { return nil }

func (f *fakeTransport) sentTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, env := range f.sent {
		out[i] = env.Type
	}
	return out
}

type memSnapshots struct{}

func (memSnapshots) SaveChannel(domain.Channel) error        { return nil }
func (memSnapshots) DeleteChannel(string) error              { return nil }
func (memSnapshots) LoadChannels() ([]domain.Channel, error) { return nil, nil }
func (memSnapshots) SaveInvitation(domain.Invitation) error  { return nil }
func (memSnapshots) GetUserInvitations(string) ([]domain.Invitation, error) {
	return nil, nil
}

type recorder struct {
	mu     sync.Mutex
	events []event.DomainEvent
}

func (r *recorder) Consume(e event.DomainEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) count(match func(event.DomainEvent) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if match(e) {
			n++
		}
	}
	return n
}

func newTestSyncer(t *testing.T) (*Synchronizer, *store.Store, *fakeTransport, *recorder) {
	t.Helper()
	transport := &fakeTransport{}
	st := store.New(slog.Default(), memSnapshots{})
	rec := &recorder{}
	s := New(slog.Default(), domain.Sender{ID: "user-self", Name: "Self"}, st, transport, nil)
	s.AddSinks(rec)
	return s, st, transport, rec
}

func remoteMessage(channelID, messageID, senderID string) event.ChannelMessage {
	return event.ChannelMessage{
		ChannelID: channelID,
		SenderID:  senderID,
		Message: domain.Message{
			ID:        messageID,
			Sender:    domain.Sender{ID: senderID, Name: "Peer"},
			CreatedAt: time.Now().UTC(),
			Kind:      domain.KindText,
			Text:      &domain.TextPayload{Body: "hi"},
		},
	}
}

func Test_PostMessage_Applies_Locally_And_Broadcasts(t *testing.T) {
	req := require.New(t)
	s, st, transport, _ := newTestSyncer(t)
	ctx := context.Background()

	ch, err := s.CreateChannel(ctx, "general", "", "")
	req.NoError(err)

	msg, err := s.PostMessage(ctx, ch.ID, Draft{Text: "hello world"})
	req.NoError(err)
	req.Equal(domain.KindText, msg.Kind)
	req.Equal("hello world", msg.Text.Body)

	stored, ok := st.Channel(ch.ID)
	req.True(ok)
	req.Len(stored.Messages, 1)
	req.Equal(msg.ID, stored.Messages[0].ID)

	req.Equal([]string{event.TypeSubscribeChannel, event.TypeSendChannelMessage}, transport.sentTypes())
}

func Test_PostMessage_Unknown_Channel_Fails(t *testing.T) {
	req := require.New(t)
	s, _, _, _ := newTestSyncer(t)

	_, err := s.PostMessage(context.Background(), "ghost", Draft{Text: "hi"})
	req.ErrorIs(err, errors.ErrChannelNotFound)
}

func Test_ApplyRemoteMessage_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	s, st, _, rec := newTestSyncer(t)

	ch, err := s.CreateChannel(context.Background(), "general", "", "")
	req.NoError(err)

	p := remoteMessage(ch.ID, "msg-1", "user-peer")
	s.ApplyRemoteMessage(p)
	s.ApplyRemoteMessage(p)
	s.ApplyRemoteMessage(p)

	stored, _ := st.Channel(ch.ID)
	req.Len(stored.Messages, 1)
	dups := rec.count(func(e event.DomainEvent) bool {
		_, ok := e.(event.DuplicateDropped)
		return ok
	})
	req.Equal(2, dups)
}

func Test_ApplyRemoteMessage_Suppresses_Own_Echo(t *testing.T) {
	req := require.New(t)
	s, st, _, rec := newTestSyncer(t)
	ctx := context.Background()

	ch, err := s.CreateChannel(ctx, "general", "", "")
	req.NoError(err)
	msg, err := s.PostMessage(ctx, ch.ID, Draft{Text: "hello"})
	req.NoError(err)

	// The relay broadcasts to every subscriber, the sender included.
	s.ApplyRemoteMessage(event.ChannelMessage{
		ChannelID: ch.ID,
		SenderID:  "user-self",
		Message:   msg,
	})

	stored, _ := st.Channel(ch.ID)
	req.Len(stored.Messages, 1)
	echoes := rec.count(func(e event.DomainEvent) bool {
		_, ok := e.(event.EchoSuppressed)
		return ok
	})
	req.Equal(1, echoes)
}

func Test_ApplyRemoteMessage_Unknown_Channel_Dropped(t *testing.T) {
	req := require.New(t)
	s, _, _, rec := newTestSyncer(t)

	s.ApplyRemoteMessage(remoteMessage("ghost-channel", "msg-1", "user-peer"))

	applied := rec.count(func(e event.DomainEvent) bool {
		_, ok := e.(event.MessageApplied)
		return ok
	})
	req.Zero(applied)
}

func Test_ApplyRemoteMessage_Duplicate_Poll_Guard(t *testing.T) {
	req := require.New(t)
	s, st, _, _ := newTestSyncer(t)
	ctx := context.Background()

	ch, err := s.CreateChannel(ctx, "general", "", "")
	req.NoError(err)

	first := remoteMessage(ch.ID, "msg-1", "user-peer")
	first.Message.Kind = domain.KindPoll
	first.Message.Text = nil
	first.Message.Poll = &domain.Poll{ID: "poll-1", Question: "Lunch?", CreatedBy: "user-peer", IsActive: true}
	s.ApplyRemoteMessage(first)

	// Same question from the same creator under a new poll id: the race
	// guard keeps the earliest received.
	second := remoteMessage(ch.ID, "msg-2", "user-peer")
	second.Message.Kind = domain.KindPoll
	second.Message.Text = nil
	second.Message.Poll = &domain.Poll{ID: "poll-2", Question: "Lunch?", CreatedBy: "user-peer", IsActive: true}
	s.ApplyRemoteMessage(second)

	stored, _ := st.Channel(ch.ID)
	req.Len(stored.Messages, 1)
	req.Equal("poll-1", stored.Messages[0].Poll.ID)
}

func Test_Metadata_Last_Writer_Wins(t *testing.T) {
	req := require.New(t)
	s, st, transport, _ := newTestSyncer(t)
	ctx := context.Background()

	ch, err := s.CreateChannel(ctx, "general", "", "")
	req.NoError(err)

	local := "local name"
	req.NoError(s.UpdateChannelInfo(ctx, ch.ID, domain.ChannelPatch{Name: &local}))
	req.Contains(transport.sentTypes(), event.TypeUpdateChannelInfo)

	remote := "remote name"
	s.ApplyRemoteMetadata(event.ChannelInfoUpdated{
		ChannelID: ch.ID,
		Updates:   domain.ChannelPatch{Name: &remote},
		UpdatedBy: domain.Sender{ID: "user-peer"},
	})

	stored, _ := st.Channel(ch.ID)
	req.Equal("remote name", stored.Name)

	// Echo of our own update must not reapply.
	stale := "stale echo"
	s.ApplyRemoteMetadata(event.ChannelInfoUpdated{
		ChannelID: ch.ID,
		Updates:   domain.ChannelPatch{Name: &stale},
		UpdatedBy: domain.Sender{ID: "user-self"},
	})
	req.Equal("remote name", stored.Name)
}

func Test_CastVote_Broadcasts_Snapshot(t *testing.T) {
	req := require.New(t)
	s, _, transport, _ := newTestSyncer(t)
	ctx := context.Background()

	ch, err := s.CreateChannel(ctx, "general", "", "")
	req.NoError(err)
	msg, err := s.PostMessage(ctx, ch.ID, Draft{Poll: &PollDraft{
		Question: "Red or blue?",
		Options:  []string{"Red", "Blue"},
	}})
	req.NoError(err)

	updated, err := s.CastVote(ctx, ch.ID, msg.ID, msg.Poll.ID, msg.Poll.Options[0].ID)
	req.NoError(err)
	req.Equal(1, updated.TotalVoters)
	req.Contains(transport.sentTypes(), event.TypePollUpdated)
}

func Test_CastVote_Closed_Poll_Rejected(t *testing.T) {
	req := require.New(t)
	s, st, _, _ := newTestSyncer(t)
	ctx := context.Background()

	ch, err := s.CreateChannel(ctx, "general", "", "")
	req.NoError(err)
	msg, err := s.PostMessage(ctx, ch.ID, Draft{Poll: &PollDraft{
		Question: "Red or blue?",
		Options:  []string{"Red", "Blue"},
	}})
	req.NoError(err)

	stored, _ := st.Channel(ch.ID)
	stored.FindMessage(msg.ID).Poll.IsActive = false

	_, err = s.CastVote(ctx, ch.ID, msg.ID, msg.Poll.ID, msg.Poll.Options[0].ID)
	req.ErrorIs(err, errors.ErrPollClosed)
}

func Test_ApplyRemotePollUpdate_Replaces_Snapshot(t *testing.T) {
	req := require.New(t)
	s, st, _, _ := newTestSyncer(t)
	ctx := context.Background()

	ch, err := s.CreateChannel(ctx, "general", "", "")
	req.NoError(err)
	msg, err := s.PostMessage(ctx, ch.ID, Draft{Poll: &PollDraft{
		Question: "Red or blue?",
		Options:  []string{"Red", "Blue"},
	}})
	req.NoError(err)

	snapshot := *msg.Poll
	snapshot.Options[0].Votes = []domain.Vote{{UserID: "user-peer", VotedAt: time.Now()}}
	snapshot.TotalVoters = 1
	s.ApplyRemotePollUpdate(event.PollUpdated{ChannelID: ch.ID, UpdatedPoll: snapshot})

	stored, _ := st.Channel(ch.ID)
	req.Equal(1, stored.FindMessage(msg.ID).Poll.TotalVoters)
}

func Test_ApplyRemotePollUpdate_Unknown_Poll_Dropped(t *testing.T) {
	req := require.New(t)
	s, _, _, rec := newTestSyncer(t)

	ch, err := s.CreateChannel(context.Background(), "general", "", "")
	req.NoError(err)

	s.ApplyRemotePollUpdate(event.PollUpdated{
		ChannelID:   ch.ID,
		UpdatedPoll: domain.Poll{ID: "never-seen"},
	})

	dropped := rec.count(func(e event.DomainEvent) bool {
		_, ok := e.(event.PollUpdateDropped)
		return ok
	})
	req.Equal(1, dropped)
}

func Test_ApplyMeetingNotification_Materializes_Message(t *testing.T) {
	req := require.New(t)
	s, st, _, _ := newTestSyncer(t)

	ch, err := s.CreateChannel(context.Background(), "general", "", "")
	req.NoError(err)

	s.ApplyMeetingNotification(event.MeetingNotification{
		ChannelID:   ch.ID,
		Title:       "Standup",
		RoomName:    "room-42",
		CreatedBy:   "Alice",
		CreatedByID: "user-alice",
	})

	stored, _ := st.Channel(ch.ID)
	req.Len(stored.Messages, 1)
	req.Equal(domain.KindMeeting, stored.Messages[0].Kind)
	req.Equal("room-42", stored.Messages[0].Meeting.RoomName)
}

func Test_ApplyPresence_Updates_All_Shared_Channels(t *testing.T) {
	req := require.New(t)
	s, st, _, _ := newTestSyncer(t)
	ctx := context.Background()

	a, err := s.CreateChannel(ctx, "alpha", "", "")
	req.NoError(err)
	b, err := s.CreateChannel(ctx, "beta", "", "")
	req.NoError(err)
	chA, _ := st.Channel(a.ID)
	chB, _ := st.Channel(b.ID)
	chA.AddMember(domain.Member{ID: "user-peer", Presence: domain.PresenceOffline})
	chB.AddMember(domain.Member{ID: "user-peer", Presence: domain.PresenceOffline})

	s.ApplyPresence(event.PresenceUpdated{UserID: "user-peer", Status: domain.PresenceOnline})

	req.Equal(domain.PresenceOnline, chA.Members[1].Presence)
	req.Equal(domain.PresenceOnline, chB.Members[1].Presence)
}
