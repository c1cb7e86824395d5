// Package domain contains the replicated state of the chat system:
// channels, members, messages, polls, invitations and call sessions.
// Values here are mutated only through the synchronizer and workflow
// components, never by presentation code.
package domain

import "time"

type Presence string

const (
	PresenceOnline  Presence = "online"
	PresenceOffline Presence = "offline"
	PresenceAway    Presence = "away"
)

// Member is a channel participant. The id is unique within a channel.
type Member struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Avatar   string    `json:"avatar,omitempty"`
	Presence Presence  `json:"presence"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Channel is the unit of replication. Members are ordered by join time,
// messages are append-only.
type Channel struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Image       string       `json:"image,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	Members     []Member     `json:"members"`
	Messages    []Message    `json:"messages"`
	Invitations []Invitation `json:"invitations,omitempty"`
}

// ChannelPatch is a shallow, last-writer-wins metadata update.
// Nil fields are left untouched.
type ChannelPatch struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Image       *string `json:"image,omitempty"`
}

func NewChannel(name, description, image string, creator Member, at time.Time) *Channel {
	creator.JoinedAt = at
	return &Channel{
		ID:          NewChannelID(name, at),
		Name:        name,
		Description: description,
		Image:       image,
		CreatedAt:   at,
		Members:     []Member{creator},
	}
}

func (c *Channel) HasMember(userID string) bool {
	for _, m := range c.Members {
		if m.ID == userID {
			return true
		}
	}
	return false
}

// AddMember appends a member, keeping join order. Adding an id that is
// already present is a no-op; the bool reports whether the list changed.
func (c *Channel) AddMember(m Member) bool {
	if c.HasMember(m.ID) {
		return false
	}
	c.Members = append(c.Members, m)
	return true
}

func (c *Channel) HasMessage(id string) bool {
	return c.FindMessage(id) != nil
}

func (c *Channel) FindMessage(id string) *Message {
	for i := range c.Messages {
		if c.Messages[i].ID == id {
			return &c.Messages[i]
		}
	}
	return nil
}

// FindPollMessage locates the message carrying the poll with the given id.
func (c *Channel) FindPollMessage(pollID string) *Message {
	for i := range c.Messages {
		if c.Messages[i].Poll != nil && c.Messages[i].Poll.ID == pollID {
			return &c.Messages[i]
		}
	}
	return nil
}

// FindDuplicatePoll reports another message holding a poll with the same
// question and creator but a different id. Used as a race guard when two
// near-simultaneous creations of "the same" poll were both broadcast.
// Known false positive: two genuinely distinct polls with identical text
// from the same user inside the race window collapse into one.
func (c *Channel) FindDuplicatePoll(p Poll) *Message {
	for i := range c.Messages {
		other := c.Messages[i].Poll
		if other != nil && other.ID != p.ID &&
			other.Question == p.Question && other.CreatedBy == p.CreatedBy {
			return &c.Messages[i]
		}
	}
	return nil
}

// ApplyPatch merges a metadata patch, shallow field overwrite.
func (c *Channel) ApplyPatch(p ChannelPatch) {
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Description != nil {
		c.Description = *p.Description
	}
	if p.Image != nil {
		c.Image = *p.Image
	}
}

// SetPresence updates a member's presence, reporting whether it changed.
func (c *Channel) SetPresence(userID string, p Presence) bool {
	for i := range c.Members {
		if c.Members[i].ID == userID && c.Members[i].Presence != p {
			c.Members[i].Presence = p
			return true
		}
	}
	return false
}

// PendingInvitationFor reports whether a pending invitation already
// exists for the invitee in this channel.
func (c *Channel) PendingInvitationFor(inviteeID string) bool {
	for _, inv := range c.Invitations {
		if inv.InviteeID == inviteeID && inv.Status == InvitationPending {
			return true
		}
	}
	return false
}
