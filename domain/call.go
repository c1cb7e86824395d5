package domain

import "time"

type CallKind string

const (
	CallAudio CallKind = "audio"
	CallVideo CallKind = "video"
)

// CallState is the per-client signaling state. idle is both the initial
// state and the resting state every other state eventually returns to.
type CallState string

const (
	CallIdle        CallState = "idle"
	CallCalling     CallState = "calling"
	CallRinging     CallState = "ringing"
	CallConnecting  CallState = "connecting"
	CallConnected   CallState = "connected"
	CallRejected    CallState = "rejected"
	CallBusy        CallState = "busy"
	CallUnavailable CallState = "unavailable"
	CallTimeout     CallState = "timeout"
	CallEnded       CallState = "ended"
)

type CallEndReason string

const (
	EndHangup       CallEndReason = "hangup"
	EndDeclined     CallEndReason = "declined"
	EndBusy         CallEndReason = "busy"
	EndUnavailable  CallEndReason = "unavailable"
	EndRingTimeout  CallEndReason = "ring-timeout"
	EndNetworkLost  CallEndReason = "network-lost"
	EndMediaFailure CallEndReason = "media-failure"
)

// CallSession describes one direct 1:1 call. Duration and EndReason are
// recorded for display once the session finishes.
type CallSession struct {
	RoomID      string        `json:"roomId"`
	CallerID    string        `json:"callerId"`
	CallerName  string        `json:"callerName"`
	CalleeID    string        `json:"calleeId"`
	CalleeName  string        `json:"calleeName"`
	Kind        CallKind      `json:"callType"`
	State       CallState     `json:"state"`
	StartedAt   time.Time     `json:"startedAt"`
	ConnectedAt time.Time     `json:"connectedAt,omitzero"`
	EndReason   CallEndReason `json:"endReason,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
}

// PeerID returns the other participant from selfID's point of view.
func (s CallSession) PeerID(selfID string) string {
	if s.CallerID == selfID {
		return s.CalleeID
	}
	return s.CallerID
}

// GroupCallSession tracks a live group room the local client has joined.
type GroupCallSession struct {
	ChannelID string   `json:"channelId"`
	RoomID    string   `json:"roomId"`
	Kind      CallKind `json:"callType"`
}
