package errors

import "fmt"

// Invitation workflow. Returned as values to the initiating action,
// never thrown through the sync path.
var (
	ErrAlreadyMember      = fmt.Errorf("invitee is already a member of the channel")
	ErrDuplicatePending   = fmt.Errorf("a pending invitation already exists for this invitee")
	ErrInvitationNotFound = fmt.Errorf("invitation not found")
	ErrNotPending         = fmt.Errorf("invitation is no longer pending")
	ErrChannelNotFound    = fmt.Errorf("channel not found")
)

// Synchronization. Absorbed at the component boundary and logged,
// the system tolerates replay and out-of-order delivery.
var (
	ErrPollNotFound     = fmt.Errorf("poll update references a message not yet received")
	ErrPollClosed       = fmt.Errorf("poll is inactive or past its end time")
	ErrMessageNotFound  = fmt.Errorf("message not found")
	ErrOptionNotFound   = fmt.Errorf("poll option not found")
	ErrUnknownEventType = fmt.Errorf("unknown transport event type")
	ErrInvalidPayload   = fmt.Errorf("invalid event payload")
)

// Call signaling. All terminate the session, none are retried.
var (
	ErrCallInProgress      = fmt.Errorf("another call session is already active")
	ErrNoIncomingCall      = fmt.Errorf("no incoming call to answer")
	ErrCallerUnavailable   = fmt.Errorf("callee is unreachable")
	ErrCalleeBusy          = fmt.Errorf("callee is busy")
	ErrRingTimeout         = fmt.Errorf("call was not answered in time")
	ErrNetworkLost         = fmt.Errorf("transport connection lost during call")
	ErrMediaSessionFailure = fmt.Errorf("media session could not be established")
)

var ErrWorkerPanic = fmt.Errorf("worker panic")
