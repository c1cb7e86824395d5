package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_NewChannel_Creator_Is_Sole_Member(t *testing.T) {
	req := require.New(t)
	at := time.Now().UTC()

	ch := NewChannel("general", "the watercooler", "", Member{ID: "user-1", Name: "Alice"}, at)

	req.NotEmpty(ch.ID)
	req.Equal("general", ch.Name)
	req.Len(ch.Members, 1)
	req.Equal("user-1", ch.Members[0].ID)
	req.Equal(at, ch.Members[0].JoinedAt)
	req.True(ch.HasMember("user-1"))
	req.False(ch.HasMember("user-2"))
}

func Test_AddMember_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	ch := NewChannel("general", "", "", Member{ID: "user-1"}, time.Now())

	req.True(ch.AddMember(Member{ID: "user-2", Name: "Bob"}))
	req.False(ch.AddMember(Member{ID: "user-2", Name: "Bob again"}))

	req.Len(ch.Members, 2)
	req.Equal("Bob", ch.Members[1].Name)
}

func Test_ApplyPatch_Overwrites_Only_Set_Fields(t *testing.T) {
	req := require.New(t)
	ch := NewChannel("general", "old description", "old.png", Member{ID: "user-1"}, time.Now())

	name := "renamed"
	ch.ApplyPatch(ChannelPatch{Name: &name})

	req.Equal("renamed", ch.Name)
	req.Equal("old description", ch.Description)
	req.Equal("old.png", ch.Image)

	empty := ""
	ch.ApplyPatch(ChannelPatch{Description: &empty})
	req.Equal("", ch.Description)
	req.Equal("renamed", ch.Name)
}

func Test_FindDuplicatePoll_Matches_Question_And_Creator(t *testing.T) {
	req := require.New(t)
	ch := NewChannel("general", "", "", Member{ID: "user-1"}, time.Now())
	ch.Messages = append(ch.Messages, Message{
		ID:   "msg-1",
		Kind: KindPoll,
		Poll: &Poll{ID: "poll-1", Question: "Lunch?", CreatedBy: "user-1"},
	})

	dup := ch.FindDuplicatePoll(Poll{ID: "poll-2", Question: "Lunch?", CreatedBy: "user-1"})
	req.NotNil(dup)
	req.Equal("msg-1", dup.ID)

	req.Nil(ch.FindDuplicatePoll(Poll{ID: "poll-1", Question: "Lunch?", CreatedBy: "user-1"}))
	req.Nil(ch.FindDuplicatePoll(Poll{ID: "poll-3", Question: "Lunch?", CreatedBy: "user-2"}))
	req.Nil(ch.FindDuplicatePoll(Poll{ID: "poll-4", Question: "Dinner?", CreatedBy: "user-1"}))
}

func Test_SetPresence_Reports_Change(t *testing.T) {
	req := require.New(t)
	ch := NewChannel("general", "", "", Member{ID: "user-1", Presence: PresenceOnline}, time.Now())

	req.True(ch.SetPresence("user-1", PresenceAway))
	req.Equal(PresenceAway, ch.Members[0].Presence)
	req.False(ch.SetPresence("user-1", PresenceAway))
	req.False(ch.SetPresence("ghost", PresenceOnline))
}

func Test_AddReaction_Toggles(t *testing.T) {
	req := require.New(t)
	msg := Message{ID: "msg-1", Kind: KindText, Text: &TextPayload{Body: "hi"}}

	msg.AddReaction("👍", "user-1")
	req.Len(msg.Reactions, 1)

	msg.AddReaction("👍", "user-2")
	req.Len(msg.Reactions, 2)

	msg.AddReaction("👍", "user-1")
	req.Len(msg.Reactions, 1)
	req.Equal("user-2", msg.Reactions[0].UserID)
}
