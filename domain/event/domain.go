package event

import (
	"time"

	"chat-mesh/domain"
)

// DomainEvent is an in-process notification fanned out to sinks
// (projections, search index, monitoring). Sinks are observers: they
// never feed back into the synchronized state.
type DomainEvent interface {
	ChannelID() string
}

// MessageApplied fires after a message lands in the store, whether it
// originated locally or from a remote peer.
type MessageApplied struct {
	Channel string
	Message domain.Message
	Remote  bool
}

func (e MessageApplied) ChannelID() string { return e.Channel }

type MetadataApplied struct {
	Channel   string
	Patch     domain.ChannelPatch
	UpdatedBy domain.Sender
	Remote    bool
}

func (e MetadataApplied) ChannelID() string { return e.Channel }

type PollApplied struct {
	Channel string
	Poll    domain.Poll
	Remote  bool
}

func (e PollApplied) ChannelID() string { return e.Channel }

type MemberAdded struct {
	Channel string
	Member  domain.Member
}

func (e MemberAdded) ChannelID() string { return e.Channel }

type InvitationChanged struct {
	Invitation domain.Invitation
}

func (e InvitationChanged) ChannelID() string { return e.Invitation.ChannelID }

// EchoSuppressed fires when a client drops the echo of its own broadcast.
type EchoSuppressed struct {
	Channel string
	Type    string
}

func (e EchoSuppressed) ChannelID() string { return e.Channel }

// DuplicateDropped fires when an already-applied event arrives again.
type DuplicateDropped struct {
	Channel string
	Type    string
}

func (e DuplicateDropped) ChannelID() string { return e.Channel }

// PollUpdateDropped fires when a poll update references a message this
// client has not received yet. The update is lost, not buffered.
type PollUpdateDropped struct {
	Channel string
	PollID  string
}

func (e PollUpdateDropped) ChannelID() string { return e.Channel }

// CallFinished fires when a direct call session reaches its terminal
// transition. Channel is empty for direct calls.
type CallFinished struct {
	Session domain.CallSession
	At      time.Time
}

func (e CallFinished) ChannelID() string { return "" }

// GroupCallNotice fires when a group call starts or ends in a channel the
// local client knows about.
type GroupCallNotice struct {
	Channel  string
	RoomName string
	Started  bool
}

func (e GroupCallNotice) ChannelID() string { return e.Channel }
