// Package event defines the typed events crossing the transport plus the
// in-process domain events fanned out to sinks. Wire payloads are decoded
// and validated at the transport boundary before reaching domain logic.
package event

import (
	"time"

	"chat-mesh/domain"
)

// Wire event names, shared verbatim between clients and the relay.
const (
	TypeSendChannelMessage     = "sendChannelMessage"
	TypeChannelMessageReceived = "channelMessageReceived"

	TypeUpdateChannelInfo  = "updateChannelInfo"
	TypeChannelInfoUpdated = "channelInfoUpdated"

	TypeChannelInvitationReceived = "channelInvitationReceived"
	TypeChannelInvitationAccepted = "channelInvitationAccepted"
	TypeChannelInvitationDeclined = "channelInvitationDeclined"
	TypeChannelMemberJoined       = "channelMemberJoined"

	TypeMeetingNotificationReceived = "meetingNotificationReceived"
	TypePollUpdated                 = "pollUpdated"
	TypePresenceUpdated             = "presenceUpdated"

	TypeInitiateCall      = "initiateCall"
	TypeAcceptCall        = "acceptCall"
	TypeRejectCall        = "rejectCall"
	TypeEndCall           = "endCall"
	TypeIncomingCall      = "incomingCall"
	TypeCallAccepted      = "callAccepted"
	TypeCallRejected      = "callRejected"
	TypeCallTimeout       = "callTimeout"
	TypeCallerUnavailable = "callerUnavailable"
	TypeCalleeBusy        = "calleeBusy"

	TypeStartGroupCall   = "startGroupCall"
	TypeGroupCallStarted = "groupCallStarted"
	TypeLeaveGroupCall   = "leaveGroupCall"
	TypeGroupCallEnded   = "groupCallEnded"

	// Relay control frames, never reach domain logic.
	TypeSubscribeChannel   = "subscribeChannel"
	TypeUnsubscribeChannel = "unsubscribeChannel"

	// Synthetic, produced locally when the transport drops.
	TypeConnectionLost = "connectionLost"
)

type ChannelMessage struct {
	ChannelID string         `json:"channelId" validate:"required"`
	Message   domain.Message `json:"message" validate:"required"`
	SenderID  string         `json:"senderId" validate:"required"`
}

type ChannelInfoUpdated struct {
	ChannelID string              `json:"channelId" validate:"required"`
	Updates   domain.ChannelPatch `json:"updates"`
	UpdatedBy domain.Sender       `json:"updatedBy" validate:"required"`
}

// InvitationReceived is delivered point-to-point to the invitee. It
// carries the full denormalized snapshot needed for lazy channel
// materialization on accept.
type InvitationReceived struct {
	InvitationID  string    `json:"invitationId" validate:"required"`
	ChannelID     string    `json:"channelId" validate:"required"`
	ChannelName   string    `json:"channelName" validate:"required"`
	ChannelImage  string    `json:"channelImage,omitempty"`
	InviterID     string    `json:"inviterId" validate:"required"`
	InviterName   string    `json:"inviterName"`
	InviterAvatar string    `json:"inviterAvatar,omitempty"`
	InviteeID     string    `json:"inviteeId" validate:"required"`
	InviteeName   string    `json:"inviteeName"`
	InviteeAvatar string    `json:"inviteeAvatar,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// InvitationAnswered notifies the inviter of an accept or decline; on
// accept it carries enough of the accepter to add the new member without
// a re-fetch.
type InvitationAnswered struct {
	InvitationID  string `json:"invitationId" validate:"required"`
	ChannelID     string `json:"channelId" validate:"required"`
	ChannelName   string `json:"channelName,omitempty"`
	ChannelImage  string `json:"channelImage,omitempty"`
	InviteeID     string `json:"inviteeId" validate:"required"`
	InviteeName   string `json:"inviteeName"`
	InviteeAvatar string `json:"inviteeAvatar,omitempty"`
}

type MemberJoined struct {
	ChannelID   string          `json:"channelId" validate:"required"`
	NewMember   domain.Member   `json:"newMember" validate:"required"`
	ChannelData *domain.Channel `json:"channelData,omitempty"`
}

type MeetingNotification struct {
	ChannelID     string    `json:"channelId" validate:"required"`
	Title         string    `json:"title" validate:"required"`
	RoomName      string    `json:"roomName" validate:"required"`
	CreatedBy     string    `json:"createdBy"`
	CreatedByID   string    `json:"createdById" validate:"required"`
	CreatedAt     time.Time `json:"createdAt"`
	ChannelName   string    `json:"channelName,omitempty"`
	CreatorAvatar string    `json:"creatorAvatar,omitempty"`
}

type PollUpdated struct {
	ChannelID   string      `json:"channelId" validate:"required"`
	UpdatedPoll domain.Poll `json:"updatedPoll" validate:"required"`
}

type PresenceUpdated struct {
	UserID string          `json:"userId" validate:"required"`
	Status domain.Presence `json:"status" validate:"required,oneof=online offline away"`
}

// CallSignal is the shared payload of every direct-call signaling event.
// Reason is only meaningful on reject/end frames.
type CallSignal struct {
	RoomID     string          `json:"roomId" validate:"required"`
	CallerID   string          `json:"callerId"`
	CallerName string          `json:"callerName"`
	CalleeID   string          `json:"calleeId"`
	CalleeName string          `json:"calleeName"`
	Kind       domain.CallKind `json:"callType,omitempty"`
	Reason     string          `json:"reason,omitempty"`
}

type GroupCallSignal struct {
	ChannelID string          `json:"channelId" validate:"required"`
	CallType  domain.CallKind `json:"callType,omitempty"`
	RoomName  string          `json:"roomName,omitempty"`
	UserID    string          `json:"userId,omitempty"`
}

type ChannelSubscription struct {
	ChannelID string `json:"channelId" validate:"required"`
}

// ConnectionLost is synthesized by the transport when the connection
// drops; it never travels on the wire.
type ConnectionLost struct{}
