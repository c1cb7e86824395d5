package event

import (
	"encoding/json"
	"fmt"

	"chat-mesh/errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Envelope is the wire frame. Routing lives on the envelope: To for
// point-to-point delivery, Channel for channel-scoped broadcast. From is
// stamped by the relay from the authenticated connection, any value set
// by the sender is overwritten.
type Envelope struct {
	Type    string          `json:"type"`
	To      string          `json:"to,omitempty"`
	Channel string          `json:"channel,omitempty"`
	From    string          `json:"from,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound is a decoded envelope handed to the engine.
type Inbound struct {
	Type  string
	From  string
	Event any
}

// NewEnvelope marshals payload into an outbound frame.
func NewEnvelope(eventType string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", eventType, err)
	}
	return Envelope{Type: eventType, Payload: raw}, nil
}

// Decode turns an envelope into its typed payload, validating required
// fields. Unknown event types and malformed payloads are rejected here so
// domain logic never sees duck-typed data.
func Decode(env Envelope) (any, error) {
	out, err := decodeByType(env)
	if err != nil {
		return nil, err
	}
	if err := validate.Struct(out); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errors.ErrInvalidPayload, env.Type, err)
	}
	return out, nil
}

func decodeByType(env Envelope) (any, error) {
	switch env.Type {
	case TypeSendChannelMessage, TypeChannelMessageReceived:
		return unmarshal[ChannelMessage](env)
	case TypeUpdateChannelInfo, TypeChannelInfoUpdated:
		return unmarshal[ChannelInfoUpdated](env)
	case TypeChannelInvitationReceived:
		return unmarshal[InvitationReceived](env)
	case TypeChannelInvitationAccepted, TypeChannelInvitationDeclined:
		return unmarshal[InvitationAnswered](env)
	case TypeChannelMemberJoined:
		return unmarshal[MemberJoined](env)
	case TypeMeetingNotificationReceived:
		return unmarshal[MeetingNotification](env)
	case TypePollUpdated:
		return unmarshal[PollUpdated](env)
	case TypePresenceUpdated:
		return unmarshal[PresenceUpdated](env)
	case TypeInitiateCall, TypeAcceptCall, TypeRejectCall, TypeEndCall,
		TypeIncomingCall, TypeCallAccepted, TypeCallRejected,
		TypeCallTimeout, TypeCallerUnavailable, TypeCalleeBusy:
		return unmarshal[CallSignal](env)
	case TypeStartGroupCall, TypeGroupCallStarted, TypeLeaveGroupCall, TypeGroupCallEnded:
		return unmarshal[GroupCallSignal](env)
	case TypeSubscribeChannel, TypeUnsubscribeChannel:
		return unmarshal[ChannelSubscription](env)
	case TypeConnectionLost:
		return ConnectionLost{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownEventType, env.Type)
	}
}

func unmarshal[T any](env Envelope) (T, error) {
	var out T
	if err := json.Unmarshal(env.Payload, &out); err != nil {
		return out, fmt.Errorf("%w: %s: %v", errors.ErrInvalidPayload, env.Type, err)
	}
	return out, nil
}
