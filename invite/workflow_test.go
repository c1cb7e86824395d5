package invite

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

func (f *fakeTransport) lastOfType(eventType string) (event.Envelope, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.sent) - 1; i >= 0; i-- {
		if f.sent[i].Type == eventType {
			return f.sent[i], true
		}
	}
	return event.Envelope{}, false
}

type memSnapshots struct{}

func (memSnapshots) SaveChannel(domain.Channel) error        { return nil }
func (memSnapshots) DeleteChannel(string) error              { return nil }
func (memSnapshots) LoadChannels() ([]domain.Channel, error) { return nil, nil }
func (memSnapshots) SaveInvitation(domain.Invitation) error  { return nil }
func (memSnapshots) GetUserInvitations(string) ([]domain.Invitation, error) {
	return nil, nil
}

func newTestWorkflow(t *testing.T, selfID string) (*Workflow, *store.Store, *fakeTransport) {
	t.Helper()
	transport := &fakeTransport{}
	st := store.New(slog.Default(), memSnapshots{})
	w := New(slog.Default(), domain.Sender{ID: selfID, Name: "Self " + selfID}, st, transport)
	return w, st, transport
}

func seedChannel(st *store.Store, ownerID string) *domain.Channel {
	ch := domain.NewChannel("general", "", "", domain.Member{ID: ownerID, Name: "Owner"}, time.Now().UTC())
	st.Upsert(ch)
	return ch
}

func Test_Invite_Creates_Pending_And_Notifies_Invitee(t *testing.T) {
	req := require.New(t)
	w, st, transport := newTestWorkflow(t, "user-inviter")
	ch := seedChannel(st, "user-inviter")

	inv, err := w.Invite(context.Background(), ch.ID, "user-invitee", "Bob", "")
	req.NoError(err)
	req.Equal(domain.InvitationPending, inv.Status)
	req.Equal(ch.ID, inv.ChannelID)

	stored, _ := st.Channel(ch.ID)
	req.Len(stored.Invitations, 1)

	env, ok := transport.lastOfType(event.TypeChannelInvitationReceived)
	req.True(ok)
	req.Equal("user-invitee", env.To)
}

func Test_Invite_Rejects_Existing_Member(t *testing.T) {
	req := require.New(t)
	w, st, _ := newTestWorkflow(t, "user-inviter")
	ch := seedChannel(st, "user-inviter")
	ch.AddMember(domain.Member{ID: "user-member"})

	_, err := w.Invite(context.Background(), ch.ID, "user-member", "Bob", "")
	req.ErrorIs(err, errors.ErrAlreadyMember)
}

func Test_Invite_Rejects_Duplicate_Pending(t *testing.T) {
	req := require.New(t)
	w, st, _ := newTestWorkflow(t, "user-inviter")
	ch := seedChannel(st, "user-inviter")
	ctx := context.Background()

	_, err := w.Invite(ctx, ch.ID, "user-invitee", "Bob", "")
	req.NoError(err)
	_, err = w.Invite(ctx, ch.ID, "user-invitee", "Bob", "")
	req.ErrorIs(err, errors.ErrDuplicatePending)
}

func Test_Invite_Unknown_Channel_Fails(t *testing.T) {
	req := require.New(t)
	w, _, _ := newTestWorkflow(t, "user-inviter")

	_, err := w.Invite(context.Background(), "ghost", "user-invitee", "Bob", "")
	req.ErrorIs(err, errors.ErrChannelNotFound)
}

func Test_Accept_Materializes_Unknown_Channel_From_Snapshot(t *testing.T) {
	req := require.New(t)
	w, st, transport := newTestWorkflow(t, "user-invitee")

	// Invitee has never seen the channel; only the snapshot arrives.
	w.ApplyRemoteInvitation(event.InvitationReceived{
		InvitationID: "inv-1",
		ChannelID:    "chan-1",
		ChannelName:  "general",
		InviterID:    "user-inviter",
		InviterName:  "Alice",
		InviteeID:    "user-invitee",
		CreatedAt:    time.Now().UTC(),
	})

	ch, err := w.Accept(context.Background(), "inv-1")
	req.NoError(err)
	req.Equal("chan-1", ch.ID)
	req.Equal("general", ch.Name)
	req.Len(ch.Members, 2)
	req.Equal("user-inviter", ch.Members[0].ID)
	req.Equal("user-invitee", ch.Members[1].ID)

	inv, _ := st.Invitation("inv-1")
	req.Equal(domain.InvitationAccepted, inv.Status)

	answer, ok := transport.lastOfType(event.TypeChannelInvitationAccepted)
	req.True(ok)
	req.Equal("user-inviter", answer.To)
	_, ok = transport.lastOfType(event.TypeSubscribeChannel)
	req.True(ok)
	_, ok = transport.lastOfType(event.TypeChannelMemberJoined)
	req.True(ok)
}

func Test_Accept_Is_Terminal(t *testing.T) {
	req := require.New(t)
	w, _, _ := newTestWorkflow(t, "user-invitee")
	ctx := context.Background()

	w.ApplyRemoteInvitation(event.InvitationReceived{
		InvitationID: "inv-1",
		ChannelID:    "chan-1",
		ChannelName:  "general",
		InviterID:    "user-inviter",
		InviteeID:    "user-invitee",
		CreatedAt:    time.Now().UTC(),
	})

	_, err := w.Accept(ctx, "inv-1")
	req.NoError(err)

	_, err = w.Accept(ctx, "inv-1")
	req.ErrorIs(err, errors.ErrNotPending)
	req.ErrorIs(w.Decline(ctx, "inv-1"), errors.ErrNotPending)
}

func Test_Decline_Is_Terminal_And_Leaves_Channel_Untouched(t *testing.T) {
	req := require.New(t)
	w, st, transport := newTestWorkflow(t, "user-invitee")
	ctx := context.Background()

	w.ApplyRemoteInvitation(event.InvitationReceived{
		InvitationID: "inv-1",
		ChannelID:    "chan-1",
		ChannelName:  "general",
		InviterID:    "user-inviter",
		InviteeID:    "user-invitee",
		CreatedAt:    time.Now().UTC(),
	})

	req.NoError(w.Decline(ctx, "inv-1"))

	inv, _ := st.Invitation("inv-1")
	req.Equal(domain.InvitationDeclined, inv.Status)
	_, known := st.Channel("chan-1")
	req.False(known)

	answer, ok := transport.lastOfType(event.TypeChannelInvitationDeclined)
	req.True(ok)
	req.Equal("user-inviter", answer.To)

	_, err := w.Accept(ctx, "inv-1")
	req.ErrorIs(err, errors.ErrNotPending)
}

func Test_Accept_Unknown_Invitation_Fails(t *testing.T) {
	req := require.New(t)
	w, _, _ := newTestWorkflow(t, "user-invitee")

	_, err := w.Accept(context.Background(), "ghost")
	req.ErrorIs(err, errors.ErrInvitationNotFound)
}

func Test_ApplyRemoteInvitation_Replay_Is_Noop(t *testing.T) {
	req := require.New(t)
	w, st, _ := newTestWorkflow(t, "user-invitee")

	p := event.InvitationReceived{
		InvitationID: "inv-1",
		ChannelID:    "chan-1",
		ChannelName:  "general",
		InviterID:    "user-inviter",
		InviteeID:    "user-invitee",
		CreatedAt:    time.Now().UTC(),
	}
	w.ApplyRemoteInvitation(p)
	w.ApplyRemoteInvitation(p)

	req.Len(st.Invitations(), 1)
}

func Test_ApplyRemoteAnswer_Accept_Adds_Member_On_Inviter_Side(t *testing.T) {
	req := require.New(t)
	w, st, _ := newTestWorkflow(t, "user-inviter")
	ch := seedChannel(st, "user-inviter")

	inv, err := w.Invite(context.Background(), ch.ID, "user-invitee", "Bob", "")
	req.NoError(err)

	w.ApplyRemoteAnswer(event.InvitationAnswered{
		InvitationID: inv.ID,
		ChannelID:    ch.ID,
		InviteeID:    "user-invitee",
		InviteeName:  "Bob",
	}, true)

	stored, _ := st.Channel(ch.ID)
	req.True(stored.HasMember("user-invitee"))
	req.Equal(domain.InvitationAccepted, stored.Invitations[0].Status)
	resolved, _ := st.Invitation(inv.ID)
	req.Equal(domain.InvitationAccepted, resolved.Status)
}

func Test_ApplyRemoteAnswer_Decline_Resolves_Without_Member(t *testing.T) {
	req := require.New(t)
	w, st, _ := newTestWorkflow(t, "user-inviter")
	ch := seedChannel(st, "user-inviter")

	inv, err := w.Invite(context.Background(), ch.ID, "user-invitee", "Bob", "")
	req.NoError(err)

	w.ApplyRemoteAnswer(event.InvitationAnswered{
		InvitationID: inv.ID,
		ChannelID:    ch.ID,
		InviteeID:    "user-invitee",
	}, false)

	stored, _ := st.Channel(ch.ID)
	req.False(stored.HasMember("user-invitee"))
	req.Equal(domain.InvitationDeclined, stored.Invitations[0].Status)
}

func Test_ApplyMemberJoined_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	w, st, _ := newTestWorkflow(t, "user-observer")
	ch := seedChannel(st, "user-owner")

	p := event.MemberJoined{
		ChannelID: ch.ID,
		NewMember: domain.Member{ID: "user-new", Name: "Newcomer"},
	}
	w.ApplyMemberJoined(p)
	w.ApplyMemberJoined(p)

	stored, _ := st.Channel(ch.ID)
	req.Len(stored.Members, 2)
}

func Test_ApplyMemberJoined_Suppresses_Own_Echo(t *testing.T) {
	req := require.New(t)
	w, st, _ := newTestWorkflow(t, "user-self")
	ch := seedChannel(st, "user-owner")

	w.ApplyMemberJoined(event.MemberJoined{
		ChannelID: ch.ID,
		NewMember: domain.Member{ID: "user-self"},
	})

	stored, _ := st.Channel(ch.ID)
	req.Len(stored.Members, 1)
}

func Test_ApplyMemberJoined_Materializes_From_Channel_Data(t *testing.T) {
	req := require.New(t)
	w, st, _ := newTestWorkflow(t, "user-observer")

	summary := domain.Channel{
		ID:        "chan-remote",
		Name:      "remote channel",
		CreatedAt: time.Now().UTC(),
		Members:   []domain.Member{{ID: "user-owner"}},
	}
	w.ApplyMemberJoined(event.MemberJoined{
		ChannelID:   "chan-remote",
		NewMember:   domain.Member{ID: "user-new"},
		ChannelData: &summary,
	})

	stored, known := st.Channel("chan-remote")
	req.True(known)
	req.True(stored.HasMember("user-new"))

	// Without channel data the event is dropped.
	w.ApplyMemberJoined(event.MemberJoined{
		ChannelID: "chan-never-seen",
		NewMember: domain.Member{ID: "user-new"},
	})
	_, known = st.Channel("chan-never-seen")
	req.False(known)
}
