package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"chat-mesh/domain/event"
)

const fanoutChannel = "chat-mesh:relay:fanout"

// replicatedFrame wraps an envelope with the publishing instance id so
// an instance can ignore its own publications.
type replicatedFrame struct {
	Instance string         `json:"instance"`
	Envelope event.Envelope `json:"envelope"`
}

// RedisFanout replicates channel broadcasts across relay instances over
// redis pub/sub, so clients of different instances see the same stream.
type RedisFanout struct {
	log      *slog.Logger
	rdb      *redis.Client
	instance string
	frames   chan event.Envelope
	cancel   context.CancelFunc
}

func NewRedisFanout(ctx context.Context, log *slog.Logger, addr string) (*RedisFanout, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	f := &RedisFanout{
		log:      log,
		rdb:      rdb,
		instance: uuid.NewString(),
		frames:   make(chan event.Envelope, 256),
		cancel:   cancel,
	}
	go f.subscribe(subCtx)
	return f, nil
}

func (f *RedisFanout) Publish(env event.Envelope) error {
	raw, err := json.Marshal(replicatedFrame{Instance: f.instance, Envelope: env})
	if err != nil {
		return fmt.Errorf("encode fanout frame: %w", err)
	}
	return f.rdb.Publish(context.Background(), fanoutChannel, raw).Err()
}

func (f *RedisFanout) Frames() <-chan event.Envelope {
	return f.frames
}

func (f *RedisFanout) Close() error {
	f.cancel()
	return f.rdb.Close()
}

func (f *RedisFanout) subscribe(ctx context.Context) {
	defer close(f.frames)
	sub := f.rdb.Subscribe(ctx, fanoutChannel)
	defer func() { _ = sub.Close() }()

	for {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			f.log.Warn("Fanout receive failed", "error", err)
			return
		}
		var rf replicatedFrame
		if err := json.Unmarshal([]byte(msg.Payload), &rf); err != nil {
			f.log.Warn("Dropping malformed fanout frame", "error", err)
			continue
		}
		if rf.Instance == f.instance {
			continue
		}
		select {
		case f.frames <- rf.Envelope:
		default:
			f.log.Error("Fanout backlog full, dropping frame", "type", rf.Envelope.Type)
		}
	}
}
