package runtime

import (
	"context"
	"log/slog"

	"chat-mesh/call"
	"chat-mesh/domain"
	"chat-mesh/invite"
	"chat-mesh/store"
	"chat-mesh/syncer"
)

// Engine serializes every channel-state mutation through a single task
// queue so local operations and remote applies never interleave. Call
// signaling bypasses the queue: the call machine locks itself because
// its timers fire on their own goroutines and touch no channel state.
type Engine struct {
	log   *slog.Logger
	tasks chan func()

	store  *store.Store
	syncer *syncer.Synchronizer
	invite *invite.Workflow
	calls  *call.Machine
	groups *call.GroupManager
}

func NewEngine(log *slog.Logger, st *store.Store, sync *syncer.Synchronizer,
	inv *invite.Workflow, calls *call.Machine, groups *call.GroupManager) *Engine {
	return &Engine{
		log:    log,
		tasks:  make(chan func(), 256),
		store:  st,
		syncer: sync,
		invite: inv,
		calls:  calls,
		groups: groups,
	}
}

// Run drains the task queue. It is the only goroutine that touches the
// store, which is what makes the apply order total.
func (e *Engine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case task := <-e.tasks:
			task()
		}
	}
}

// Do enqueues a task without waiting for it.
func (e *Engine) Do(task func()) {
	e.tasks <- task
}

// submit runs fn on the engine goroutine and waits for its result.
func submit[T any](ctx context.Context, e *Engine, fn func() (T, error)) (T, error) {
	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	e.tasks <- func() {
		v, err := fn()
		done <- outcome{value: v, err: err}
	}
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case out := <-done:
		return out.value, out.err
	}
}

func (e *Engine) CreateChannel(ctx context.Context, name, description, image string) (*domain.Channel, error) {
	return submit(ctx, e, func() (*domain.Channel, error) {
		return e.syncer.CreateChannel(ctx, name, description, image)
	})
}

func (e *Engine) PostMessage(ctx context.Context, channelID string, draft syncer.Draft) (domain.Message, error) {
	return submit(ctx, e, func() (domain.Message, error) {
		return e.syncer.PostMessage(ctx, channelID, draft)
	})
}

func (e *Engine) UpdateChannelInfo(ctx context.Context, channelID string, patch domain.ChannelPatch) error {
	_, err := submit(ctx, e, func() (struct{}, error) {
		return struct{}{}, e.syncer.UpdateChannelInfo(ctx, channelID, patch)
	})
	return err
}

func (e *Engine) CastVote(ctx context.Context, channelID, messageID, pollID, optionID string) (domain.Poll, error) {
	return submit(ctx, e, func() (domain.Poll, error) {
		return e.syncer.CastVote(ctx, channelID, messageID, pollID, optionID)
	})
}

func (e *Engine) Invite(ctx context.Context, channelID, inviteeID, inviteeName, inviteeAvatar string) (domain.Invitation, error) {
	return submit(ctx, e, func() (domain.Invitation, error) {
		return e.invite.Invite(ctx, channelID, inviteeID, inviteeName, inviteeAvatar)
	})
}

func (e *Engine) AcceptInvitation(ctx context.Context, invitationID string) (*domain.Channel, error) {
	return submit(ctx, e, func() (*domain.Channel, error) {
		return e.invite.Accept(ctx, invitationID)
	})
}

func (e *Engine) DeclineInvitation(ctx context.Context, invitationID string) error {
	_, err := submit(ctx, e, func() (struct{}, error) {
		return struct{}{}, e.invite.Decline(ctx, invitationID)
	})
	return err
}

// Channels reads outside the queue; the store carries its own read lock.
func (e *Engine) Channels() []*domain.Channel {
	return e.store.Channels()
}

func (e *Engine) Channel(id string) (*domain.Channel, bool) {
	return e.store.Channel(id)
}

func (e *Engine) Invitations() []*domain.Invitation {
	return e.store.Invitations()
}

func (e *Engine) InitiateCall(ctx context.Context, calleeID, calleeName string, kind domain.CallKind) (domain.CallSession, error) {
	return e.calls.Initiate(ctx, calleeID, calleeName, kind)
}

func (e *Engine) AcceptCall(ctx context.Context) error {
	return e.calls.Accept(ctx)
}

func (e *Engine) RejectCall(ctx context.Context, reason string) error {
	return e.calls.Reject(ctx, reason)
}

func (e *Engine) EndCall(ctx context.Context) error {
	return e.calls.End(ctx)
}

func (e *Engine) CallState() domain.CallState {
	return e.calls.State()
}

func (e *Engine) StartGroupCall(ctx context.Context, channelID string, kind domain.CallKind) (string, error) {
	return e.groups.Start(ctx, channelID, kind)
}

func (e *Engine) JoinGroupCall(ctx context.Context, channelID, roomID string, kind domain.CallKind) error {
	return e.groups.Join(ctx, channelID, roomID, kind)
}

func (e *Engine) LeaveGroupCall(ctx context.Context) error {
	return e.groups.Leave(ctx)
}
