package runtime

import (
	"context"
	"log/slog"

	"chat-mesh/call"
	"chat-mesh/contract"
	"chat-mesh/domain/event"
	"chat-mesh/invite"
	"chat-mesh/syncer"
)

// InboundWorker drains the transport and routes each decoded event to
// its handler. Channel-state events go through the engine queue; call
// signals go straight to the machines, which lock themselves.
type InboundWorker struct {
	log       *slog.Logger
	transport contract.Transport
	engine    *Engine
	syncer    *syncer.Synchronizer
	invite    *invite.Workflow
	calls     *call.Machine
	groups    *call.GroupManager
}

func NewInboundWorker(log *slog.Logger, transport contract.Transport, engine *Engine,
	sync *syncer.Synchronizer, inv *invite.Workflow, calls *call.Machine,
	groups *call.GroupManager) *InboundWorker {
	return &InboundWorker{
		log:       log,
		transport: transport,
		engine:    engine,
		syncer:    sync,
		invite:    inv,
		calls:     calls,
		groups:    groups,
	}
}

// Run consumes inbound events until the transport closes its channel.
// The terminal ConnectionLost event tears down call state before exit.
func (w *InboundWorker) Run(ctx context.Context) error {
	for inbound := range w.transport.Events() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.dispatch(ctx, inbound)
	}
	w.log.Info("Inbound stream closed")
	return nil
}

func (w *InboundWorker) dispatch(ctx context.Context, inbound event.Inbound) {
	switch p := inbound.Event.(type) {
	case event.ChannelMessage:
		w.engine.Do(func() { w.syncer.ApplyRemoteMessage(p) })
	case event.ChannelInfoUpdated:
		w.engine.Do(func() { w.syncer.ApplyRemoteMetadata(p) })
	case event.InvitationReceived:
		w.engine.Do(func() { w.invite.ApplyRemoteInvitation(p) })
	case event.InvitationAnswered:
		accepted := inbound.Type == event.TypeChannelInvitationAccepted
		w.engine.Do(func() { w.invite.ApplyRemoteAnswer(p, accepted) })
	case event.MemberJoined:
		w.engine.Do(func() { w.invite.ApplyMemberJoined(p) })
	case event.MeetingNotification:
		w.engine.Do(func() { w.syncer.ApplyMeetingNotification(p) })
	case event.PollUpdated:
		w.engine.Do(func() { w.syncer.ApplyRemotePollUpdate(p) })
	case event.PresenceUpdated:
		w.engine.Do(func() { w.syncer.ApplyPresence(p) })
	case event.CallSignal:
		w.dispatchCall(ctx, inbound.Type, p)
	case event.GroupCallSignal:
		w.dispatchGroup(inbound.Type, p)
	case event.ConnectionLost:
		w.log.Warn("Connection lost, releasing call state")
		w.calls.HandleDisconnect()
		w.groups.HandleDisconnect()
	default:
		w.log.Warn("Unhandled inbound event", "type", inbound.Type)
	}
}

func (w *InboundWorker) dispatchCall(ctx context.Context, eventType string, p event.CallSignal) {
	switch eventType {
	case event.TypeIncomingCall:
		w.calls.HandleIncoming(ctx, p)
	case event.TypeCallAccepted:
		w.calls.HandleAccepted(ctx, p)
	case event.TypeCallRejected:
		w.calls.HandleRejected(p)
	case event.TypeCalleeBusy:
		w.calls.HandleBusy(p)
	case event.TypeCallerUnavailable:
		w.calls.HandleUnavailable(p)
	case event.TypeCallTimeout:
		w.calls.HandleTimeout(p)
	case event.TypeEndCall:
		w.calls.HandleRemoteEnd(p)
	default:
		w.log.Warn("Unhandled call signal", "type", eventType)
	}
}

func (w *InboundWorker) dispatchGroup(eventType string, p event.GroupCallSignal) {
	switch eventType {
	case event.TypeGroupCallStarted:
		w.groups.HandleStarted(p)
	case event.TypeGroupCallEnded:
		w.groups.HandleEnded(p)
	case event.TypeLeaveGroupCall:
		// Informational. Membership is tracked by the media session.
	default:
		w.log.Warn("Unhandled group signal", "type", eventType)
	}
}
