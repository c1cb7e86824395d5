package domain

import (
	"time"

	"chat-mesh/errors"

	"github.com/samber/lo"
)

type ResultVisibility string

const (
	ResultsAlways    ResultVisibility = "always"
	ResultsAfterVote ResultVisibility = "after_vote"
	ResultsAfterEnd  ResultVisibility = "after_end"
)

type Vote struct {
	UserID     string    `json:"userId"`
	UserName   string    `json:"userName"`
	UserAvatar string    `json:"userAvatar,omitempty"`
	VotedAt    time.Time `json:"votedAt"`
}

// Option holds its votes ordered by vote time. A user never appears
// twice in the same option's vote list.
type Option struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Votes []Vote `json:"votes"`
}

func (o Option) hasVoteFrom(userID string) bool {
	return lo.ContainsBy(o.Votes, func(v Vote) bool { return v.UserID == userID })
}

// Poll keeps the invariant TotalVoters == number of distinct user ids
// across all option vote lists.
type Poll struct {
	ID               string           `json:"id"`
	Question         string           `json:"question"`
	Description      string           `json:"description,omitempty"`
	Options          []Option         `json:"options"`
	AllowMultiple    bool             `json:"allowMultiple"`
	IsAnonymous      bool             `json:"isAnonymous"`
	ResultVisibility ResultVisibility `json:"resultVisibility"`
	CreatedBy        string           `json:"createdBy"`
	CreatedByName    string           `json:"createdByName"`
	CreatedAt        time.Time        `json:"createdAt"`
	EndTime          *time.Time       `json:"endTime,omitempty"`
	IsActive         bool             `json:"isActive"`
	TotalVoters      int              `json:"totalVoters"`
}

// Open reports whether votes may still be cast. This policy check lives
// with the caller of CastVote, which itself stays pure.
func (p Poll) Open(now time.Time) bool {
	if !p.IsActive {
		return false
	}
	return p.EndTime == nil || now.Before(*p.EndTime)
}

func (p Poll) HasVoted(userID string) bool {
	return lo.ContainsBy(p.Options, func(o Option) bool { return o.hasVoteFrom(userID) })
}

// DistinctVoters counts users with at least one vote anywhere in the poll.
func (p Poll) DistinctVoters() int {
	var ids []string
	for _, o := range p.Options {
		for _, v := range o.Votes {
			ids = append(ids, v.UserID)
		}
	}
	return len(lo.Uniq(ids))
}

// CastVote returns a new poll with the user's vote applied to optionID.
//
// Semantics:
//   - voting an option the user already voted toggles the vote off;
//   - with AllowMultiple=false, a new vote first removes the user's
//     votes from every other option;
//   - TotalVoters always equals the distinct voter count afterwards.
//
// The receiver is never mutated, which keeps comparison and merge safe
// upstream. CastVote does not check IsActive/EndTime: corrections applied
// from remote snapshots must go through regardless, the liveness policy
// belongs to the caller.
func (p Poll) CastVote(optionID, userID, userName, userAvatar string, now time.Time) (Poll, error) {
	idx := -1
	for i, o := range p.Options {
		if o.ID == optionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return p, errors.ErrOptionNotFound
	}

	next := p.clone()

	if next.Options[idx].hasVoteFrom(userID) {
		next.Options[idx].Votes = lo.Reject(next.Options[idx].Votes, func(v Vote, _ int) bool {
			return v.UserID == userID
		})
	} else {
		if !next.AllowMultiple {
			for i := range next.Options {
				next.Options[i].Votes = lo.Reject(next.Options[i].Votes, func(v Vote, _ int) bool {
					return v.UserID == userID
				})
			}
		}
		next.Options[idx].Votes = append(next.Options[idx].Votes, Vote{
			UserID:     userID,
			UserName:   userName,
			UserAvatar: userAvatar,
			VotedAt:    now,
		})
	}

	next.TotalVoters = next.DistinctVoters()
	return next, nil
}

func (p Poll) clone() Poll {
	next := p
	next.Options = make([]Option, len(p.Options))
	for i, o := range p.Options {
		next.Options[i] = o
		next.Options[i].Votes = append([]Vote(nil), o.Votes...)
	}
	if p.EndTime != nil {
		end := *p.EndTime
		next.EndTime = &end
	}
	return next
}
