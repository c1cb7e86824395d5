// Package call runs the per-client call signaling: one direct 1:1 state
// machine and one group session manager. Both own their timers and their
// media-session resources; neither touches channel chat state.
package call

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chat-mesh/contract"
	"chat-mesh/domain"
	"chat-mesh/domain/event"
	"chat-mesh/errors"
)

const DefaultRingTimeout = 30 * time.Second

// Machine is the direct-call signaling state machine. One active session
// per client; every non-idle state eventually returns to idle. The
// machine serializes itself with its own lock because the ring timer and
// media callbacks fire on their own goroutines.
type Machine struct {
	mu          sync.Mutex
	log         *slog.Logger
	self        domain.Sender
	transport   contract.Transport
	media       contract.MediaProvider
	ringTimeout time.Duration
	timer       ringTimer
	sinks       []contract.EventSink

	state         domain.CallState
	session       *domain.CallSession
	mediaSession  contract.MediaSession
	acquireCancel context.CancelFunc
	last          *domain.CallSession
}

func NewMachine(log *slog.Logger, self domain.Sender, transport contract.Transport,
	media contract.MediaProvider, ringTimeout time.Duration) *Machine {
	if ringTimeout <= 0 {
		ringTimeout = DefaultRingTimeout
	}
	return &Machine{
		log:         log,
		self:        self,
		transport:   transport,
		media:       media,
		ringTimeout: ringTimeout,
		state:       domain.CallIdle,
	}
}

func (m *Machine) AddSinks(sinks ...contract.EventSink) {
	m.sinks = append(m.sinks, sinks...)
}

func (m *Machine) State() domain.CallState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Session returns a copy of the active session, if any.
func (m *Machine) Session() (domain.CallSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return domain.CallSession{}, false
	}
	return *m.session, true
}

// LastSession returns the most recently finished session with its end
// reason and duration, for display. The machine itself rests in idle.
func (m *Machine) LastSession() (domain.CallSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return domain.CallSession{}, false
	}
	return *m.last, true
}

// Initiate starts an outgoing call: idle -> calling, ring timer armed.
// The transport cancels the outstanding call if the timer expires first.
func (m *Machine) Initiate(ctx context.Context, calleeID, calleeName string, kind domain.CallKind) (domain.CallSession, error) {
	m.mu.Lock()
	if m.state != domain.CallIdle {
		m.mu.Unlock()
		return domain.CallSession{}, errors.ErrCallInProgress
	}

	session := &domain.CallSession{
		RoomID:     domain.NewCallRoomID(),
		CallerID:   m.self.ID,
		CallerName: m.self.Name,
		CalleeID:   calleeID,
		CalleeName: calleeName,
		Kind:       kind,
		State:      domain.CallCalling,
		StartedAt:  time.Now(),
	}
	m.state = domain.CallCalling
	m.session = session
	signal := m.signalFromSession()
	m.mu.Unlock()

	m.sendTo(ctx, calleeID, event.TypeInitiateCall, signal)
	m.timer.Arm(m.ringTimeout, m.onRingTimeout)
	m.log.Info("Call initiated", "room_id", session.RoomID, "callee", calleeID, "kind", kind)
	return *session, nil
}

// HandleIncoming reacts to an incoming-call signal. While not idle the
// callee auto-replies busy without surfacing anything; otherwise it moves
// to ringing with its own independently armed timer, so either side can
// expire the call.
func (m *Machine) HandleIncoming(ctx context.Context, p event.CallSignal) {
	m.mu.Lock()
	if m.state != domain.CallIdle {
		m.mu.Unlock()
		m.sendTo(ctx, p.CallerID, event.TypeCalleeBusy, event.CallSignal{
			RoomID:   p.RoomID,
			CallerID: p.CallerID,
			CalleeID: m.self.ID,
		})
		m.log.Info("Incoming call auto-declined, busy", "room_id", p.RoomID)
		return
	}

	m.state = domain.CallRinging
	m.session = &domain.CallSession{
		RoomID:     p.RoomID,
		CallerID:   p.CallerID,
		CallerName: p.CallerName,
		CalleeID:   m.self.ID,
		CalleeName: m.self.Name,
		Kind:       p.Kind,
		State:      domain.CallRinging,
		StartedAt:  time.Now(),
	}
	m.mu.Unlock()

	m.timer.Arm(m.ringTimeout, m.onRingTimeout)
	m.log.Info("Incoming call", "room_id", p.RoomID, "caller", p.CallerID)
}

// Accept answers a ringing call: ringing -> connecting, media session
// negotiation, then connected once the media session reports ready.
func (m *Machine) Accept(ctx context.Context) error {
	m.mu.Lock()
	if m.state != domain.CallRinging || m.session == nil {
		m.mu.Unlock()
		return errors.ErrNoIncomingCall
	}
	m.timer.Disarm()
	m.state = domain.CallConnecting
	m.session.State = domain.CallConnecting
	signal := m.signalFromSession()
	callerID := m.session.CallerID
	roomID := m.session.RoomID
	kind := m.session.Kind
	m.mu.Unlock()

	m.sendTo(ctx, callerID, event.TypeAcceptCall, signal)
	return m.connectMedia(ctx, roomID, kind)
}

// HandleAccepted is the caller-side acceptance: calling -> connecting.
func (m *Machine) HandleAccepted(ctx context.Context, p event.CallSignal) {
	m.mu.Lock()
	if m.state != domain.CallCalling || m.session == nil || m.session.RoomID != p.RoomID {
		m.mu.Unlock()
		return
	}
	m.timer.Disarm()
	m.state = domain.CallConnecting
	m.session.State = domain.CallConnecting
	roomID := m.session.RoomID
	kind := m.session.Kind
	m.mu.Unlock()

	if err := m.connectMedia(ctx, roomID, kind); err != nil {
		m.log.Error("Media negotiation failed", "room_id", roomID, "error", err)
	}
}

// Reject declines a ringing call and reports the reason to the caller.
func (m *Machine) Reject(ctx context.Context, reason string) error {
	m.mu.Lock()
	if m.state != domain.CallRinging || m.session == nil {
		m.mu.Unlock()
		return errors.ErrNoIncomingCall
	}
	signal := m.signalFromSession()
	signal.Reason = reason
	callerID := m.session.CallerID
	m.mu.Unlock()

	m.sendTo(ctx, callerID, event.TypeRejectCall, signal)
	m.finish(domain.CallRejected, domain.EndDeclined)
	return nil
}

// HandleRejected is the caller side of a decline. A busy reason goes
// straight to idle with reason busy, bypassing the rejected state.
func (m *Machine) HandleRejected(p event.CallSignal) {
	if !m.inStateForRoom(domain.CallCalling, p.RoomID) {
		return
	}
	if p.Reason == "busy" {
		m.finish(domain.CallBusy, domain.EndBusy)
		return
	}
	m.finish(domain.CallRejected, domain.EndDeclined)
}

// HandleBusy ends an outgoing call against a callee already in a session.
func (m *Machine) HandleBusy(p event.CallSignal) {
	if !m.inStateForRoom(domain.CallCalling, p.RoomID) {
		return
	}
	m.finish(domain.CallBusy, domain.EndBusy)
}

// HandleUnavailable ends an outgoing call to an unreachable callee.
func (m *Machine) HandleUnavailable(p event.CallSignal) {
	if !m.inStateForRoom(domain.CallCalling, p.RoomID) {
		return
	}
	m.finish(domain.CallUnavailable, domain.EndUnavailable)
}

// HandleTimeout reacts to a server-originated ring expiry.
func (m *Machine) HandleTimeout(p event.CallSignal) {
	m.mu.Lock()
	active := m.session != nil && m.session.RoomID == p.RoomID &&
		(m.state == domain.CallCalling || m.state == domain.CallRinging)
	m.mu.Unlock()
	if active {
		m.finish(domain.CallTimeout, domain.EndRingTimeout)
	}
}

// End hangs up the active call from any non-idle state, tears the media
// session down and notifies the peer.
func (m *Machine) End(ctx context.Context) error {
	m.mu.Lock()
	if m.state == domain.CallIdle || m.session == nil {
		m.mu.Unlock()
		return nil
	}
	signal := m.signalFromSession()
	signal.Reason = string(domain.EndHangup)
	peer := m.session.PeerID(m.self.ID)
	m.mu.Unlock()

	m.sendTo(ctx, peer, event.TypeEndCall, signal)
	m.finish(domain.CallEnded, domain.EndHangup)
	return nil
}

// HandleRemoteEnd tears down after the peer hung up.
func (m *Machine) HandleRemoteEnd(p event.CallSignal) {
	m.mu.Lock()
	active := m.session != nil && m.session.RoomID == p.RoomID && m.state != domain.CallIdle
	m.mu.Unlock()
	if active {
		m.finish(domain.CallEnded, domain.EndHangup)
	}
}

// HandleDisconnect forces an immediate local teardown on transport loss.
// No retry: the caller must re-initiate.
func (m *Machine) HandleDisconnect() {
	m.mu.Lock()
	idle := m.state == domain.CallIdle
	m.mu.Unlock()
	if !idle {
		m.finish(domain.CallEnded, domain.EndNetworkLost)
	}
}

// connectMedia acquires the media session for the connecting call. The
// acquisition context is kept so an End during negotiation cancels and
// releases instead of abandoning the session.
func (m *Machine) connectMedia(ctx context.Context, roomID string, kind domain.CallKind) error {
	acquireCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.acquireCancel = cancel
	m.mu.Unlock()

	session, err := m.media.Acquire(acquireCtx, roomID, kind, contract.MediaHandlers{
		OnConnected: m.onMediaConnected,
	})
	if err != nil {
		m.log.Error(errors.ErrMediaSessionFailure.Error(), "room_id", roomID, "error", err)
		m.finish(domain.CallEnded, domain.EndMediaFailure)
		return errors.ErrMediaSessionFailure
	}

	m.mu.Lock()
	if m.state != domain.CallConnecting {
		// The call was torn down while negotiating; release, don't leak.
		m.mu.Unlock()
		_ = session.Disconnect()
		return nil
	}
	m.mediaSession = session
	m.mu.Unlock()
	return nil
}

func (m *Machine) onMediaConnected() {
	m.mu.Lock()
	if m.state != domain.CallConnecting || m.session == nil {
		m.mu.Unlock()
		return
	}
	m.state = domain.CallConnected
	m.session.State = domain.CallConnected
	m.session.ConnectedAt = time.Now()
	room := m.session.RoomID
	m.mu.Unlock()
	m.log.Info("Call connected", "room_id", room)
}

func (m *Machine) onRingTimeout() {
	m.mu.Lock()
	state := m.state
	var peer string
	var signal event.CallSignal
	if m.session != nil {
		peer = m.session.PeerID(m.self.ID)
		signal = m.signalFromSession()
		signal.Reason = string(domain.EndRingTimeout)
	}
	m.mu.Unlock()

	switch state {
	case domain.CallCalling:
		// Cancel the outstanding call so the callee stops ringing.
		m.sendTo(context.Background(), peer, event.TypeEndCall, signal)
		m.finish(domain.CallTimeout, domain.EndRingTimeout)
	case domain.CallRinging:
		m.finish(domain.CallTimeout, domain.EndRingTimeout)
	}
}

// finish is the single exit path. It disarms the timer, cancels any
// in-flight media acquisition, releases the media session, records the
// end reason and duration on the observed session, and rests in idle.
func (m *Machine) finish(observed domain.CallState, reason domain.CallEndReason) {
	m.timer.Disarm()

	m.mu.Lock()
	if m.acquireCancel != nil {
		m.acquireCancel()
		m.acquireCancel = nil
	}
	media := m.mediaSession
	m.mediaSession = nil

	var finished *domain.CallSession
	if m.session != nil {
		s := *m.session
		s.State = observed
		s.EndReason = reason
		if !s.ConnectedAt.IsZero() {
			s.Duration = time.Since(s.ConnectedAt)
		}
		finished = &s
		m.last = &s
	}
	m.session = nil
	m.state = domain.CallIdle
	m.mu.Unlock()

	if media != nil {
		if err := media.Disconnect(); err != nil {
			m.log.Warn("Media session release failed", "error", err)
		}
	}
	if finished != nil {
		m.log.Info("Call finished", "room_id", finished.RoomID, "reason", reason, "duration", finished.Duration)
		m.emit(event.CallFinished{Session: *finished, At: time.Now()})
	}
}

func (m *Machine) inStateForRoom(state domain.CallState, roomID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == state && m.session != nil && m.session.RoomID == roomID
}

// signalFromSession snapshots the session into a wire payload.
// Callers must hold m.mu.
func (m *Machine) signalFromSession() event.CallSignal {
	return event.CallSignal{
		RoomID:     m.session.RoomID,
		CallerID:   m.session.CallerID,
		CallerName: m.session.CallerName,
		CalleeID:   m.session.CalleeID,
		CalleeName: m.session.CalleeName,
		Kind:       m.session.Kind,
	}
}

func (m *Machine) sendTo(ctx context.Context, userID, eventType string, payload event.CallSignal) {
	env, err := event.NewEnvelope(eventType, payload)
	if err != nil {
		m.log.Error("Call signal encode failed", "type", eventType, "error", err)
		return
	}
	env.To = userID
	if err := m.transport.Send(ctx, env); err != nil {
		m.log.Warn("Call signal send failed", "type", eventType, "to", userID, "error", err)
	}
}

func (m *Machine) emit(e event.DomainEvent) {
	for _, sink := range m.sinks {
		sink.Consume(e)
	}
}
