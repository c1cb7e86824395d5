// Package invite manages the pending/accepted/declined lifecycle of
// channel invitations, including lazy channel materialization: an
// accepter who has never seen the channel reconstructs it purely from
// the invitation's denormalized snapshot, no separate fetch.
package invite

import (
	"context"
	"log/slog"
	"time"

	"chat-mesh/contract"
	"chat-mesh/domain"
	"chat-mesh/domain/event"
	"chat-mesh/errors"
	"chat-mesh/store"
)

type Workflow struct {
	log       *slog.Logger
	self      domain.Sender
	store     *store.Store
	transport contract.Transport
	sinks     []contract.EventSink
	now       func() time.Time
}

func New(log *slog.Logger, self domain.Sender, st *store.Store, transport contract.Transport) *Workflow {
	return &Workflow{
		log:       log,
		self:      self,
		store:     st,
		transport: transport,
		now:       time.Now,
	}
}

func (w *Workflow) AddSinks(sinks ...contract.EventSink) {
	w.sinks = append(w.sinks, sinks...)
}

func (w *Workflow) WithClock(now func() time.Time) *Workflow {
	w.now = now
	return w
}

// Invite creates a pending invitation and notifies the invitee
// point-to-point. Workflow violations come back as sentinel errors, the
// channel state is untouched on any failure.
func (w *Workflow) Invite(ctx context.Context, channelID, inviteeID, inviteeName, inviteeAvatar string) (domain.Invitation, error) {
	ch, ok := w.store.Channel(channelID)
	if !ok {
		return domain.Invitation{}, errors.ErrChannelNotFound
	}
	if ch.HasMember(inviteeID) {
		return domain.Invitation{}, errors.ErrAlreadyMember
	}
	if ch.PendingInvitationFor(inviteeID) {
		return domain.Invitation{}, errors.ErrDuplicatePending
	}

	inv := domain.Invitation{
		ID:           domain.NewInvitationID(),
		ChannelID:    ch.ID,
		ChannelName:  ch.Name,
		ChannelImage: ch.Image,
		Inviter:      w.self,
		InviteeID:    inviteeID,
		InviteeName:  inviteeName,
		Status:       domain.InvitationPending,
		CreatedAt:    w.now(),
	}

	ch.Invitations = append(ch.Invitations, inv)
	w.store.Persist(ch)
	w.store.PutInvitation(&inv)
	w.emit(event.InvitationChanged{Invitation: inv})

	w.sendTo(ctx, inviteeID, event.TypeChannelInvitationReceived, event.InvitationReceived{
		InvitationID:  inv.ID,
		ChannelID:     inv.ChannelID,
		ChannelName:   inv.ChannelName,
		ChannelImage:  inv.ChannelImage,
		InviterID:     w.self.ID,
		InviterName:   w.self.Name,
		InviterAvatar: w.self.Avatar,
		InviteeID:     inviteeID,
		InviteeName:   inviteeName,
		InviteeAvatar: inviteeAvatar,
		CreatedAt:     inv.CreatedAt,
	})
	return inv, nil
}

// Accept moves a pending invitation to its terminal accepted state and
// joins the channel. If the channel is unknown locally it is materialized
// from the invitation snapshot with the inviter as first member and the
// accepter as second.
func (w *Workflow) Accept(ctx context.Context, invitationID string) (*domain.Channel, error) {
	inv, ok := w.store.Invitation(invitationID)
	if !ok {
		return nil, errors.ErrInvitationNotFound
	}
	if !inv.Pending() {
		return nil, errors.ErrNotPending
	}

	self := domain.Member{
		ID:       w.self.ID,
		Name:     w.self.Name,
		Avatar:   w.self.Avatar,
		Presence: domain.PresenceOnline,
		JoinedAt: w.now(),
	}

	ch, known := w.store.Channel(inv.ChannelID)
	if !known {
		ch = w.materialize(*inv)
	}
	if ch.AddMember(self) {
		w.emit(event.MemberAdded{Channel: ch.ID, Member: self})
	}
	w.store.Upsert(ch)

	inv.Status = domain.InvitationAccepted
	w.store.PersistInvitation(inv)
	w.emit(event.InvitationChanged{Invitation: *inv})

	w.subscribe(ctx, ch.ID)

	answer := event.InvitationAnswered{
		InvitationID:  inv.ID,
		ChannelID:     inv.ChannelID,
		ChannelName:   inv.ChannelName,
		ChannelImage:  inv.ChannelImage,
		InviteeID:     w.self.ID,
		InviteeName:   w.self.Name,
		InviteeAvatar: w.self.Avatar,
	}
	w.sendTo(ctx, inv.Inviter.ID, event.TypeChannelInvitationAccepted, answer)

	// Channel data rides along, trimmed of history, so members that have
	// never seen this channel can still materialize it.
	summary := domain.Channel{
		ID:        ch.ID,
		Name:      ch.Name,
		Image:     ch.Image,
		CreatedAt: ch.CreatedAt,
		Members:   append([]domain.Member(nil), ch.Members...),
	}
	w.broadcast(ctx, ch.ID, event.TypeChannelMemberJoined, event.MemberJoined{
		ChannelID:   ch.ID,
		NewMember:   self,
		ChannelData: &summary,
	})
	return ch, nil
}

// Decline moves a pending invitation to its terminal declined state and
// notifies the inviter. The channel is untouched.
func (w *Workflow) Decline(ctx context.Context, invitationID string) error {
	inv, ok := w.store.Invitation(invitationID)
	if !ok {
		return errors.ErrInvitationNotFound
	}
	if !inv.Pending() {
		return errors.ErrNotPending
	}

	inv.Status = domain.InvitationDeclined
	w.store.PersistInvitation(inv)
	w.emit(event.InvitationChanged{Invitation: *inv})

	w.sendTo(ctx, inv.Inviter.ID, event.TypeChannelInvitationDeclined, event.InvitationAnswered{
		InvitationID: inv.ID,
		ChannelID:    inv.ChannelID,
		InviteeID:    w.self.ID,
		InviteeName:  w.self.Name,
	})
	return nil
}

// ApplyRemoteInvitation stores an invitation addressed to this user.
// Replays of an already-known invitation are no-ops.
func (w *Workflow) ApplyRemoteInvitation(p event.InvitationReceived) {
	if _, ok := w.store.Invitation(p.InvitationID); ok {
		w.emit(event.DuplicateDropped{Channel: p.ChannelID, Type: event.TypeChannelInvitationReceived})
		return
	}

	inv := domain.Invitation{
		ID:           p.InvitationID,
		ChannelID:    p.ChannelID,
		ChannelName:  p.ChannelName,
		ChannelImage: p.ChannelImage,
		Inviter:      domain.Sender{ID: p.InviterID, Name: p.InviterName, Avatar: p.InviterAvatar},
		InviteeID:    p.InviteeID,
		InviteeName:  p.InviteeName,
		Status:       domain.InvitationPending,
		CreatedAt:    p.CreatedAt,
	}
	w.store.PutInvitation(&inv)
	w.emit(event.InvitationChanged{Invitation: inv})
	w.log.Info("Invitation received", "invitation_id", inv.ID, "channel", inv.ChannelName)
}

// ApplyRemoteAnswer resolves the inviter-side copy of an invitation and,
// on accept, adds the new member so the inviter's client needs no
// re-fetch.
func (w *Workflow) ApplyRemoteAnswer(p event.InvitationAnswered, accepted bool) {
	if inv, ok := w.store.Invitation(p.InvitationID); ok && inv.Pending() {
		if accepted {
			inv.Status = domain.InvitationAccepted
		} else {
			inv.Status = domain.InvitationDeclined
		}
		w.store.PersistInvitation(inv)
		w.emit(event.InvitationChanged{Invitation: *inv})
	}

	ch, ok := w.store.Channel(p.ChannelID)
	if ok {
		w.resolveChannelInvitation(ch, p.InvitationID, accepted)
	}
	if !accepted || !ok {
		return
	}

	member := domain.Member{
		ID:       p.InviteeID,
		Name:     p.InviteeName,
		Avatar:   p.InviteeAvatar,
		Presence: domain.PresenceOnline,
		JoinedAt: w.now(),
	}
	if ch.AddMember(member) {
		w.emit(event.MemberAdded{Channel: ch.ID, Member: member})
	}
	w.store.Persist(ch)
}

// ApplyMemberJoined merges a membership broadcast. Idempotent: adding an
// id that is already present is a no-op. A receiver that has never seen
// the channel materializes it from the attached channel data when
// present, and drops the event otherwise.
func (w *Workflow) ApplyMemberJoined(p event.MemberJoined) {
	if p.NewMember.ID == w.self.ID {
		w.emit(event.EchoSuppressed{Channel: p.ChannelID, Type: event.TypeChannelMemberJoined})
		return
	}

	ch, ok := w.store.Channel(p.ChannelID)
	if !ok {
		if p.ChannelData == nil {
			w.log.Warn("Member joined unknown channel, dropped", "channel_id", p.ChannelID)
			return
		}
		data := *p.ChannelData
		ch = &data
		w.store.Upsert(ch)
	}

	if ch.AddMember(p.NewMember) {
		w.emit(event.MemberAdded{Channel: ch.ID, Member: p.NewMember})
	}
	w.store.Persist(ch)
}

// materialize reconstructs a channel from invitation metadata: inviter
// first, creation time taken from the invitation.
func (w *Workflow) materialize(inv domain.Invitation) *domain.Channel {
	inviter := domain.Member{
		ID:       inv.Inviter.ID,
		Name:     inv.Inviter.Name,
		Avatar:   inv.Inviter.Avatar,
		Presence: domain.PresenceOnline,
		JoinedAt: inv.CreatedAt,
	}
	return &domain.Channel{
		ID:        inv.ChannelID,
		Name:      inv.ChannelName,
		Image:     inv.ChannelImage,
		CreatedAt: inv.CreatedAt,
		Members:   []domain.Member{inviter},
	}
}

func (w *Workflow) resolveChannelInvitation(ch *domain.Channel, invitationID string, accepted bool) {
	for i := range ch.Invitations {
		if ch.Invitations[i].ID == invitationID && ch.Invitations[i].Pending() {
			if accepted {
				ch.Invitations[i].Status = domain.InvitationAccepted
			} else {
				ch.Invitations[i].Status = domain.InvitationDeclined
			}
		}
	}
}

func (w *Workflow) subscribe(ctx context.Context, channelID string) {
	env, err := event.NewEnvelope(event.TypeSubscribeChannel, event.ChannelSubscription{ChannelID: channelID})
	if err != nil {
		w.log.Error("Subscribe encode failed", "channel_id", channelID, "error", err)
		return
	}
	env.Channel = channelID
	if err := w.transport.Send(ctx, env); err != nil {
		w.log.Warn("Subscribe send failed", "channel_id", channelID, "error", err)
	}
}

func (w *Workflow) sendTo(ctx context.Context, userID, eventType string, payload any) {
	env, err := event.NewEnvelope(eventType, payload)
	if err != nil {
		w.log.Error("Notify encode failed", "type", eventType, "error", err)
		return
	}
	env.To = userID
	if err := w.transport.Send(ctx, env); err != nil {
		w.log.Warn("Notify send failed", "type", eventType, "to", userID, "error", err)
	}
}

func (w *Workflow) broadcast(ctx context.Context, channelID, eventType string, payload any) {
	env, err := event.NewEnvelope(eventType, payload)
	if err != nil {
		w.log.Error("Broadcast encode failed", "type", eventType, "error", err)
		return
	}
	env.Channel = channelID
	if err := w.transport.Send(ctx, env); err != nil {
		w.log.Warn("Broadcast send failed", "type", eventType, "channel_id", channelID, "error", err)
	}
}

func (w *Workflow) emit(e event.DomainEvent) {
	for _, sink := range w.sinks {
		sink.Consume(e)
	}
}
