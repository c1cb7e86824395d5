// Package syncer keeps the local channel state converging with remote
// peers: local actions are applied optimistically and broadcast, remote
// events are merged idempotently. Duplicate and stale events are absorbed
// here and never propagate to callers; the system must tolerate replay
// and out-of-order delivery by design.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chat-mesh/contract"
	"chat-mesh/domain"
	"chat-mesh/domain/event"
	"chat-mesh/errors"
	"chat-mesh/moderation"
	"chat-mesh/store"
)

type Synchronizer struct {
	log       *slog.Logger
	self      domain.Sender
	store     *store.Store
	transport contract.Transport
	moderator *moderation.Moderator
	sinks     []contract.EventSink
	now       func() time.Time
}

func New(log *slog.Logger, self domain.Sender, st *store.Store,
	transport contract.Transport, moderator *moderation.Moderator) *Synchronizer {
	return &Synchronizer{
		log:       log,
		self:      self,
		store:     st,
		transport: transport,
		moderator: moderator,
		now:       time.Now,
	}
}

// AddSinks registers observers of applied events. Not safe to call once
// events are flowing.
func (s *Synchronizer) AddSinks(sinks ...contract.EventSink) {
	s.sinks = append(s.sinks, sinks...)
}

// WithClock overrides the time source. Used by tests.
func (s *Synchronizer) WithClock(now func() time.Time) *Synchronizer {
	s.now = now
	return s
}

// CreateChannel builds a channel with the current user as sole member and
// persists it. Creation is not broadcast: membership changes are the
// synchronized events, not the channel itself.
func (s *Synchronizer) CreateChannel(ctx context.Context, name, description, image string) (*domain.Channel, error) {
	creator := domain.Member{
		ID:       s.self.ID,
		Name:     s.self.Name,
		Avatar:   s.self.Avatar,
		Presence: domain.PresenceOnline,
	}
	ch := domain.NewChannel(name, description, image, creator, s.now())
	s.store.Upsert(ch)
	s.Subscribe(ctx, ch.ID)
	s.log.Info("Channel created", "channel_id", ch.ID, "name", name)
	return ch, nil
}

// Subscribe asks the relay to route the channel's broadcasts here.
func (s *Synchronizer) Subscribe(ctx context.Context, channelID string) {
	env, err := event.NewEnvelope(event.TypeSubscribeChannel, event.ChannelSubscription{ChannelID: channelID})
	if err != nil {
		s.log.Error("Subscribe encode failed", "channel_id", channelID, "error", err)
		return
	}
	env.Channel = channelID
	if err := s.transport.Send(ctx, env); err != nil {
		s.log.Warn("Subscribe send failed", "channel_id", channelID, "error", err)
	}
}

// PostMessage constructs a message from the draft, applies it locally,
// persists and broadcasts it. Text bodies run through the moderator and
// get a language tag before anything else sees them.
func (s *Synchronizer) PostMessage(ctx context.Context, channelID string, draft Draft) (domain.Message, error) {
	ch, ok := s.store.Channel(channelID)
	if !ok {
		return domain.Message{}, errors.ErrChannelNotFound
	}

	msg, err := s.buildMessage(draft)
	if err != nil {
		return domain.Message{}, err
	}

	ch.Messages = append(ch.Messages, msg)
	s.store.Persist(ch)
	s.emit(event.MessageApplied{Channel: channelID, Message: msg})

	s.broadcast(ctx, event.TypeSendChannelMessage, channelID, event.ChannelMessage{
		ChannelID: channelID,
		Message:   msg,
		SenderID:  s.self.ID,
	})
	return msg, nil
}

// ApplyRemoteMessage merges a message broadcast from a peer.
// Discard rules, in order: self-echo, duplicate id, duplicate poll
// (same question and creator under a different poll id, the race guard
// for two near-simultaneous creations of "the same" poll).
func (s *Synchronizer) ApplyRemoteMessage(p event.ChannelMessage) {
	if p.Message.Sender.ID == s.self.ID || p.SenderID == s.self.ID {
		s.emit(event.EchoSuppressed{Channel: p.ChannelID, Type: event.TypeChannelMessageReceived})
		return
	}

	ch, ok := s.store.Channel(p.ChannelID)
	if !ok {
		s.log.Warn("Message for unknown channel dropped", "channel_id", p.ChannelID, "message_id", p.Message.ID)
		return
	}

	if ch.HasMessage(p.Message.ID) {
		s.emit(event.DuplicateDropped{Channel: p.ChannelID, Type: event.TypeChannelMessageReceived})
		return
	}

	if p.Message.Poll != nil {
		if dup := ch.FindDuplicatePoll(*p.Message.Poll); dup != nil {
			s.log.Info(fmt.Sprintf("Duplicate poll %q dropped, earliest received survives", p.Message.Poll.Question),
				"kept_message_id", dup.ID)
			s.emit(event.DuplicateDropped{Channel: p.ChannelID, Type: event.TypePollUpdated})
			return
		}
	}

	ch.Messages = append(ch.Messages, p.Message)
	s.store.Persist(ch)
	s.emit(event.MessageApplied{Channel: p.ChannelID, Message: p.Message, Remote: true})
}

// UpdateChannelInfo applies a metadata patch locally and broadcasts it.
func (s *Synchronizer) UpdateChannelInfo(ctx context.Context, channelID string, patch domain.ChannelPatch) error {
	ch, ok := s.store.Channel(channelID)
	if !ok {
		return errors.ErrChannelNotFound
	}

	ch.ApplyPatch(patch)
	s.store.Persist(ch)
	s.emit(event.MetadataApplied{Channel: channelID, Patch: patch, UpdatedBy: s.self})

	s.broadcast(ctx, event.TypeUpdateChannelInfo, channelID, event.ChannelInfoUpdated{
		ChannelID: channelID,
		Updates:   patch,
		UpdatedBy: s.self,
	})
	return nil
}

// ApplyRemoteMetadata merges a remote patch, shallow last-writer-wins per
// field. Never rejected except for the self-echo.
func (s *Synchronizer) ApplyRemoteMetadata(p event.ChannelInfoUpdated) {
	if p.UpdatedBy.ID == s.self.ID {
		s.emit(event.EchoSuppressed{Channel: p.ChannelID, Type: event.TypeChannelInfoUpdated})
		return
	}

	ch, ok := s.store.Channel(p.ChannelID)
	if !ok {
		s.log.Warn("Metadata update for unknown channel dropped", "channel_id", p.ChannelID)
		return
	}

	ch.ApplyPatch(p.Updates)
	s.store.Persist(ch)
	s.emit(event.MetadataApplied{Channel: p.ChannelID, Patch: p.Updates, UpdatedBy: p.UpdatedBy, Remote: true})
}

// CastVote toggles the current user's vote, replaces the poll snapshot on
// its message and broadcasts the whole updated poll. Replacing the whole
// snapshot rather than merging per vote keeps conflict handling trivial
// for human-paced voting.
func (s *Synchronizer) CastVote(ctx context.Context, channelID, messageID, pollID, optionID string) (domain.Poll, error) {
	ch, ok := s.store.Channel(channelID)
	if !ok {
		return domain.Poll{}, errors.ErrChannelNotFound
	}
	msg := ch.FindMessage(messageID)
	if msg == nil {
		return domain.Poll{}, errors.ErrMessageNotFound
	}
	if msg.Poll == nil || msg.Poll.ID != pollID {
		return domain.Poll{}, errors.ErrPollNotFound
	}
	if !msg.Poll.Open(s.now()) {
		return domain.Poll{}, errors.ErrPollClosed
	}

	updated, err := msg.Poll.CastVote(optionID, s.self.ID, s.self.Name, s.self.Avatar, s.now())
	if err != nil {
		return domain.Poll{}, err
	}

	*msg.Poll = updated
	s.store.Persist(ch)
	s.emit(event.PollApplied{Channel: channelID, Poll: updated})

	s.broadcast(ctx, event.TypePollUpdated, channelID, event.PollUpdated{
		ChannelID:   channelID,
		UpdatedPoll: updated,
	})
	return updated, nil
}

// ApplyRemotePollUpdate replaces the matching poll with the incoming
// snapshot: the last broadcast wins, concurrent edits are not merged.
// An update whose creating message has not arrived yet is dropped and
// logged; this client will converge on the next snapshot.
func (s *Synchronizer) ApplyRemotePollUpdate(p event.PollUpdated) {
	ch, ok := s.store.Channel(p.ChannelID)
	if !ok {
		s.log.Error(errors.ErrPollNotFound.Error(), "channel_id", p.ChannelID, "poll_id", p.UpdatedPoll.ID)
		s.emit(event.PollUpdateDropped{Channel: p.ChannelID, PollID: p.UpdatedPoll.ID})
		return
	}

	msg := ch.FindPollMessage(p.UpdatedPoll.ID)
	if msg == nil {
		s.log.Error(errors.ErrPollNotFound.Error(), "channel_id", p.ChannelID, "poll_id", p.UpdatedPoll.ID)
		s.emit(event.PollUpdateDropped{Channel: p.ChannelID, PollID: p.UpdatedPoll.ID})
		return
	}

	*msg.Poll = p.UpdatedPoll
	s.store.Persist(ch)
	s.emit(event.PollApplied{Channel: p.ChannelID, Poll: p.UpdatedPoll, Remote: true})
}

// ApplyMeetingNotification materializes a meeting message. There is no
// optimistic local copy to echo-suppress against: the relay fans this to
// every subscriber, announcer included.
func (s *Synchronizer) ApplyMeetingNotification(p event.MeetingNotification) {
	ch, ok := s.store.Channel(p.ChannelID)
	if !ok {
		s.log.Warn("Meeting notification for unknown channel dropped", "channel_id", p.ChannelID)
		return
	}

	at := p.CreatedAt
	if at.IsZero() {
		at = s.now()
	}
	msg := domain.Message{
		ID:        domain.NewMessageID(s.now()),
		Sender:    domain.Sender{ID: p.CreatedByID, Name: p.CreatedBy, Avatar: p.CreatorAvatar},
		CreatedAt: at,
		Kind:      domain.KindMeeting,
		Meeting: &domain.MeetingPayload{
			Title:       p.Title,
			RoomName:    p.RoomName,
			CreatedBy:   p.CreatedBy,
			CreatedByID: p.CreatedByID,
			CreatedAt:   at,
		},
	}

	ch.Messages = append(ch.Messages, msg)
	s.store.Persist(ch)
	s.emit(event.MessageApplied{Channel: p.ChannelID, Message: msg, Remote: true})
}

// ApplyPresence updates the member's presence in every channel it appears
// in. Unknown users are ignored.
func (s *Synchronizer) ApplyPresence(p event.PresenceUpdated) {
	for _, ch := range s.store.Channels() {
		if ch.SetPresence(p.UserID, p.Status) {
			s.store.Persist(ch)
		}
	}
}

// BroadcastPresence announces the local user's presence to every channel
// this client is a member of.
func (s *Synchronizer) BroadcastPresence(ctx context.Context, status domain.Presence) {
	for _, ch := range s.store.Channels() {
		s.broadcast(ctx, event.TypePresenceUpdated, ch.ID, event.PresenceUpdated{
			UserID: s.self.ID,
			Status: status,
		})
	}
}

func (s *Synchronizer) broadcast(ctx context.Context, eventType, channelID string, payload any) {
	env, err := event.NewEnvelope(eventType, payload)
	if err != nil {
		s.log.Error("Broadcast encode failed", "type", eventType, "error", err)
		return
	}
	env.Channel = channelID
	if err := s.transport.Send(ctx, env); err != nil {
		s.log.Warn("Broadcast send failed", "type", eventType, "channel_id", channelID, "error", err)
	}
}

func (s *Synchronizer) emit(e event.DomainEvent) {
	for _, sink := range s.sinks {
		sink.Consume(e)
	}
}
