// Package search maintains a full-text index over applied text messages.
// The index is a sink fed by the domain event stream; losing it loses
// nothing but search, the store remains the source of truth.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/blugelabs/bluge"

	"chat-mesh/domain/event"
)

// Hit is one search result.
type Hit struct {
	MessageID string
	ChannelID string
	Body      string
	Score     float64
}

// Index wraps a bluge writer. Consume indexes text messages as they are
// applied; Query runs a match search over bodies.
type Index struct {
	mu     sync.Mutex
	log    *slog.Logger
	writer *bluge.Writer
}

// Open creates an on-disk index at path.
func Open(path string, log *slog.Logger) (*Index, error) {
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(path))
	if err != nil {
		return nil, fmt.Errorf("open search index %s: %w", path, err)
	}
	return &Index{log: log, writer: writer}, nil
}

// OpenInMemory creates a throwaway index, used by tests.
func OpenInMemory(log *slog.Logger) (*Index, error) {
	writer, err := bluge.OpenWriter(bluge.InMemoryOnlyConfig())
	if err != nil {
		return nil, fmt.Errorf("open in-memory search index: %w", err)
	}
	return &Index{log: log, writer: writer}, nil
}

func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.writer.Close()
}

// Consume indexes text messages. Re-applied duplicates overwrite the
// same document id, so indexing stays idempotent.
func (x *Index) Consume(e event.DomainEvent) {
	applied, ok := e.(event.MessageApplied)
	if !ok || applied.Message.Text == nil {
		return
	}

	doc := bluge.NewDocument(applied.Message.ID).
		AddField(bluge.NewTextField("body", applied.Message.Text.Body).StoreValue()).
		AddField(bluge.NewKeywordField("channel", applied.Channel).StoreValue()).
		AddField(bluge.NewKeywordField("sender", applied.Message.Sender.ID))

	x.mu.Lock()
	err := x.writer.Update(doc.ID(), doc)
	x.mu.Unlock()
	if err != nil {
		x.log.Error("Message indexing failed", "message_id", applied.Message.ID, "error", err)
	}
}

// Query returns up to limit messages matching the query text, best first.
func (x *Index) Query(ctx context.Context, query string, limit int) ([]Hit, error) {
	x.mu.Lock()
	reader, err := x.writer.Reader()
	x.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open index reader: %w", err)
	}
	defer func() { _ = reader.Close() }()

	req := bluge.NewTopNSearch(limit, bluge.NewMatchQuery(query).SetField("body")).
		WithStandardAggregations()
	it, err := reader.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	var hits []Hit
	for {
		match, err := it.Next()
		if err != nil {
			return nil, fmt.Errorf("iterate results: %w", err)
		}
		if match == nil {
			return hits, nil
		}
		hit := Hit{Score: match.Score}
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				hit.MessageID = string(value)
			case "channel":
				hit.ChannelID = string(value)
			case "body":
				hit.Body = string(value)
			}
			return true
		})
		if err != nil {
			return nil, fmt.Errorf("read stored fields: %w", err)
		}
		hits = append(hits, hit)
	}
}
