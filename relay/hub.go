// Package relay is the server side of the protocol: a hub of websocket
// clients with channel subscriptions, routing envelopes point-to-point
// or channel-wide. The hub owns all routing state and mutates it only
// from its Run loop, so no routing structure needs a lock.
package relay

import (
	"encoding/json"
	"log/slog"

	"chat-mesh/domain/event"
)

type frame struct {
	client *Client
	env    event.Envelope
}

// Hub routes frames between connected clients. Clients register on
// connect, subscribe to the channels they belong to, and receive every
// broadcast addressed to those channels. Broadcasts include the sender;
// echo suppression is the sender's job.
type Hub struct {
	log *slog.Logger

	clients       map[string]*Client
	subscriptions map[string]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	inbound    chan frame

	fanout Fanout
}

// Fanout replicates channel broadcasts across relay instances. The
// single-instance deployment uses a no-op.
type Fanout interface {
	Publish(env event.Envelope) error
	Frames() <-chan event.Envelope
}

func NewHub(log *slog.Logger, fanout Fanout) *Hub {
	if fanout == nil {
		fanout = noopFanout{}
	}
	return &Hub{
		log:           log,
		clients:       make(map[string]*Client),
		subscriptions: make(map[string]map[*Client]struct{}),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		inbound:       make(chan frame, 256),
		fanout:        fanout,
	}
}

// Run is the routing loop. It must be running before any client connects.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		case f := <-h.inbound:
			h.route(f)
		case env, ok := <-h.fanout.Frames():
			if !ok {
				continue
			}
			h.deliverChannel(env)
		}
	}
}

func (h *Hub) addClient(c *Client) {
	if prev, ok := h.clients[c.userID]; ok {
		// One connection per user. The newer one wins.
		h.removeClient(prev)
	}
	h.clients[c.userID] = c
	h.log.Info("Client connected", "user_id", c.userID)
}

func (h *Hub) removeClient(c *Client) {
	if current, ok := h.clients[c.userID]; !ok || current != c {
		return
	}
	delete(h.clients, c.userID)
	for channelID, subs := range h.subscriptions {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.subscriptions, channelID)
		}
	}
	close(c.send)
	h.log.Info("Client disconnected", "user_id", c.userID)
}

// route stamps the sender identity and dispatches one frame. Client-set
// From values are always overwritten; the connection is the identity.
func (h *Hub) route(f frame) {
	env := f.env
	env.From = f.client.userID

	switch env.Type {
	case event.TypeSubscribeChannel, event.TypeUnsubscribeChannel:
		h.handleSubscription(f.client, env)
	case event.TypeSendChannelMessage:
		env.Type = event.TypeChannelMessageReceived
		h.broadcastChannel(env)
	case event.TypeUpdateChannelInfo:
		env.Type = event.TypeChannelInfoUpdated
		h.broadcastChannel(env)
	case event.TypeChannelMemberJoined, event.TypePollUpdated,
		event.TypeMeetingNotificationReceived, event.TypeLeaveGroupCall,
		event.TypeGroupCallEnded:
		h.broadcastChannel(env)
	case event.TypeStartGroupCall:
		h.handleStartGroupCall(env)
	case event.TypePresenceUpdated:
		h.broadcastAll(env)
	case event.TypeInitiateCall:
		h.handleInitiateCall(f.client, env)
	case event.TypeAcceptCall:
		env.Type = event.TypeCallAccepted
		h.deliverTo(env)
	case event.TypeRejectCall:
		env.Type = event.TypeCallRejected
		h.deliverTo(env)
	case event.TypeEndCall, event.TypeCalleeBusy,
		event.TypeChannelInvitationReceived,
		event.TypeChannelInvitationAccepted,
		event.TypeChannelInvitationDeclined:
		h.deliverTo(env)
	default:
		h.log.Warn("Unroutable frame", "type", env.Type, "from", env.From)
	}
}

func (h *Hub) handleSubscription(c *Client, env event.Envelope) {
	var sub event.ChannelSubscription
	if err := json.Unmarshal(env.Payload, &sub); err != nil || sub.ChannelID == "" {
		h.log.Warn("Bad subscription frame", "from", c.userID, "error", err)
		return
	}
	if env.Type == event.TypeSubscribeChannel {
		if h.subscriptions[sub.ChannelID] == nil {
			h.subscriptions[sub.ChannelID] = make(map[*Client]struct{})
		}
		h.subscriptions[sub.ChannelID][c] = struct{}{}
		return
	}
	if subs, ok := h.subscriptions[sub.ChannelID]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.subscriptions, sub.ChannelID)
		}
	}
}

// handleStartGroupCall fans a room announcement out twice: as the group
// call signal and as a meeting notification, so channels surface the
// call in their timeline too.
func (h *Hub) handleStartGroupCall(env event.Envelope) {
	var sig event.GroupCallSignal
	if err := json.Unmarshal(env.Payload, &sig); err != nil {
		h.log.Warn("Bad group call frame", "from", env.From, "error", err)
		return
	}

	started := env
	started.Type = event.TypeGroupCallStarted
	h.broadcastChannel(started)

	sender, ok := h.clients[env.From]
	senderName := env.From
	if ok {
		senderName = sender.userName
	}
	notice, err := event.NewEnvelope(event.TypeMeetingNotificationReceived, event.MeetingNotification{
		ChannelID:   sig.ChannelID,
		Title:       "Group " + string(sig.CallType) + " call",
		RoomName:    sig.RoomName,
		CreatedBy:   senderName,
		CreatedByID: env.From,
	})
	if err != nil {
		h.log.Error("Meeting notice encode failed", "error", err)
		return
	}
	notice.Channel = env.Channel
	notice.From = env.From
	h.broadcastChannel(notice)
}

// handleInitiateCall delivers an incoming-call signal to the callee, or
// bounces a caller-unavailable reply when the callee is offline.
func (h *Hub) handleInitiateCall(caller *Client, env event.Envelope) {
	if _, online := h.clients[env.To]; !online {
		bounce := env
		bounce.Type = event.TypeCallerUnavailable
		bounce.To = caller.userID
		bounce.From = env.To
		h.deliverTo(bounce)
		return
	}
	env.Type = event.TypeIncomingCall
	h.deliverTo(env)
}

func (h *Hub) broadcastChannel(env event.Envelope) {
	h.deliverChannel(env)
	if err := h.fanout.Publish(env); err != nil {
		h.log.Warn("Fanout publish failed", "type", env.Type, "error", err)
	}
}

func (h *Hub) deliverChannel(env event.Envelope) {
	if env.Channel == "" {
		h.log.Warn("Channel frame without channel", "type", env.Type, "from", env.From)
		return
	}
	raw, err := json.Marshal(env)
	if err != nil {
		h.log.Error("Frame encode failed", "type", env.Type, "error", err)
		return
	}
	for c := range h.subscriptions[env.Channel] {
		h.push(c, raw)
	}
}

func (h *Hub) broadcastAll(env event.Envelope) {
	raw, err := json.Marshal(env)
	if err != nil {
		h.log.Error("Frame encode failed", "type", env.Type, "error", err)
		return
	}
	for _, c := range h.clients {
		h.push(c, raw)
	}
}

func (h *Hub) deliverTo(env event.Envelope) {
	if env.To == "" {
		h.log.Warn("Direct frame without recipient", "type", env.Type, "from", env.From)
		return
	}
	c, ok := h.clients[env.To]
	if !ok {
		h.log.Debug("Recipient offline, dropping", "type", env.Type, "to", env.To)
		return
	}
	raw, err := json.Marshal(env)
	if err != nil {
		h.log.Error("Frame encode failed", "type", env.Type, "error", err)
		return
	}
	h.push(c, raw)
}

// push is non-blocking. A client that cannot keep up is disconnected
// rather than allowed to stall the routing loop.
func (h *Hub) push(c *Client, raw []byte) {
	select {
	case c.send <- raw:
	default:
		h.removeClient(c)
	}
}

type noopFanout struct{}

func (noopFanout) Publish(event.Envelope) error  { return nil }
func (noopFanout) Frames() <-chan event.Envelope { return nil }
