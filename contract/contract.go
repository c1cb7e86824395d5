//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"chat-mesh/domain"
	"chat-mesh/domain/event"
)

// Transport is the bidirectional event bus between this client and the
// relay. Implementations own the connection; consumers own the decode-side
// channel and must drain it until it closes.
type Transport interface {
	Send(ctx context.Context, env event.Envelope) error
	// Events delivers decoded inbound events. A ConnectionLost event is
	// the last element before the channel closes.
	Events() <-chan event.Inbound
	Close() error
}

// SnapshotStore is the external key-value blob store the state store
// persists to after every mutation and hydrates from at startup.
type SnapshotStore interface {
	SaveChannel(channel domain.Channel) error
	DeleteChannel(id string) error
	LoadChannels() ([]domain.Channel, error)
	SaveInvitation(inv domain.Invitation) error
	GetUserInvitations(userID string) ([]domain.Invitation, error)
}

// MediaSession is the opaque audio/video resource of a live call. It is
// scoped: acquired entering connecting, released on any transition out of
// connecting/connected, error paths included.
type MediaSession interface {
	Publish(ctx context.Context) error
	Subscribe(ctx context.Context, participantID string) error
	Disconnect() error
}

// MediaHandlers receive media-session lifecycle callbacks. Nil handlers
// are skipped.
type MediaHandlers struct {
	OnConnected         func()
	OnParticipantJoined func(participantID string)
	OnParticipantLeft   func(participantID string)
}

// MediaProvider negotiates media sessions. Acquire honors ctx
// cancellation: an acquisition cancelled mid-flight must not leak the
// session.
type MediaProvider interface {
	Acquire(ctx context.Context, roomID string, kind domain.CallKind, handlers MediaHandlers) (MediaSession, error)
}

// EventSink observes applied domain events (projections, search,
// monitoring). Consume must not block the apply path.
type EventSink interface {
	Consume(e event.DomainEvent)
}

type WorkerName string

// Worker doesn't protect itself; the supervisor does.
type Worker interface {
	Run(ctx context.Context) error
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// Used for logging and supervision, avoiding manual naming in the
// Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
