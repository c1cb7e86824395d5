package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newPoll(allowMultiple bool) Poll {
	return Poll{
		ID:       "poll-1",
		Question: "Red or blue?",
		Options: []Option{
			{ID: "opt-red", Text: "Red"},
			{ID: "opt-blue", Text: "Blue"},
		},
		AllowMultiple: allowMultiple,
		CreatedBy:     "user-creator",
		CreatedAt:     time.Now().UTC(),
		IsActive:      true,
	}
}

func Test_CastVote_Adds_Vote_And_Counts_Voter(t *testing.T) {
	req := require.New(t)
	poll := newPoll(false)
	now := time.Now().UTC()

	updated, err := poll.CastVote("opt-red", "user-1", "Alice", "", now)
	req.NoError(err)

	req.Len(updated.Options[0].Votes, 1)
	req.Equal("user-1", updated.Options[0].Votes[0].UserID)
	req.Equal(now, updated.Options[0].Votes[0].VotedAt)
	req.Equal(1, updated.TotalVoters)
	req.True(updated.HasVoted("user-1"))
}

func Test_CastVote_Same_Option_Toggles_Off(t *testing.T) {
	req := require.New(t)
	poll := newPoll(false)
	now := time.Now().UTC()

	once, err := poll.CastVote("opt-red", "user-1", "Alice", "", now)
	req.NoError(err)
	twice, err := once.CastVote("opt-red", "user-1", "Alice", "", now.Add(time.Second))
	req.NoError(err)

	req.Empty(twice.Options[0].Votes)
	req.Equal(0, twice.TotalVoters)
	req.False(twice.HasVoted("user-1"))
}

func Test_CastVote_Single_Choice_Switches_Option(t *testing.T) {
	req := require.New(t)
	poll := newPoll(false)
	now := time.Now().UTC()

	red, err := poll.CastVote("opt-red", "user-1", "Alice", "", now)
	req.NoError(err)
	blue, err := red.CastVote("opt-blue", "user-1", "Alice", "", now.Add(time.Second))
	req.NoError(err)

	req.Empty(blue.Options[0].Votes)
	req.Len(blue.Options[1].Votes, 1)
	req.Equal(1, blue.TotalVoters)
}

func Test_CastVote_Multiple_Choice_Keeps_Both_Options(t *testing.T) {
	req := require.New(t)
	poll := newPoll(true)
	now := time.Now().UTC()

	red, err := poll.CastVote("opt-red", "user-1", "Alice", "", now)
	req.NoError(err)
	both, err := red.CastVote("opt-blue", "user-1", "Alice", "", now.Add(time.Second))
	req.NoError(err)

	req.Len(both.Options[0].Votes, 1)
	req.Len(both.Options[1].Votes, 1)
	// One human, two votes.
	req.Equal(1, both.TotalVoters)
}

func Test_CastVote_Distinct_Voters_Across_Options(t *testing.T) {
	req := require.New(t)
	poll := newPoll(false)
	now := time.Now().UTC()

	p, err := poll.CastVote("opt-red", "user-1", "Alice", "", now)
	req.NoError(err)
	p, err = p.CastVote("opt-blue", "user-2", "Bob", "", now)
	req.NoError(err)
	p, err = p.CastVote("opt-red", "user-3", "Clara", "", now)
	req.NoError(err)

	req.Equal(3, p.TotalVoters)
	req.Equal(p.DistinctVoters(), p.TotalVoters)
}

func Test_CastVote_Unknown_Option_Fails(t *testing.T) {
	req := require.New(t)
	poll := newPoll(false)

	_, err := poll.CastVote("opt-missing", "user-1", "Alice", "", time.Now())
	req.Error(err)
}

func Test_CastVote_Never_Mutates_Receiver(t *testing.T) {
	req := require.New(t)
	poll := newPoll(false)
	now := time.Now().UTC()

	_, err := poll.CastVote("opt-red", "user-1", "Alice", "", now)
	req.NoError(err)

	req.Empty(poll.Options[0].Votes)
	req.Equal(0, poll.TotalVoters)
}

func Test_Open_Respects_IsActive_And_EndTime(t *testing.T) {
	req := require.New(t)
	now := time.Now().UTC()

	poll := newPoll(false)
	req.True(poll.Open(now))

	poll.IsActive = false
	req.False(poll.Open(now))

	poll.IsActive = true
	past := now.Add(-time.Hour)
	poll.EndTime = &past
	req.False(poll.Open(now))

	future := now.Add(time.Hour)
	poll.EndTime = &future
	req.True(poll.Open(now))
}

func Test_CastVote_Allowed_On_Closed_Poll(t *testing.T) {
	req := require.New(t)
	poll := newPoll(false)
	poll.IsActive = false

	// Remote snapshot corrections bypass the liveness policy.
	updated, err := poll.CastVote("opt-red", "user-1", "Alice", "", time.Now())
	req.NoError(err)
	req.Equal(1, updated.TotalVoters)
}
