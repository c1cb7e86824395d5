package search

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chat-mesh/domain"
	"chat-mesh/domain/event"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	index, err := OpenInMemory(slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })
	return index
}

func applied(channelID, messageID, body string) event.MessageApplied {
	return event.MessageApplied{
		Channel: channelID,
		Message: domain.Message{
			ID:        messageID,
			Sender:    domain.Sender{ID: "user-1", Name: "Alice"},
			CreatedAt: time.Now().UTC(),
			Kind:      domain.KindText,
			Text:      &domain.TextPayload{Body: body},
		},
	}
}

func Test_Query_Finds_Indexed_Message(t *testing.T) {
	req := require.New(t)
	index := newTestIndex(t)
	ctx := context.Background()

	index.Consume(applied("channel-1", "msg-1", "we should migrate the billing database"))
	index.Consume(applied("channel-1", "msg-2", "lunch at noon?"))

	hits, err := index.Query(ctx, "database", 10)
	req.NoError(err)
	req.Len(hits, 1)
	req.Equal("msg-1", hits[0].MessageID)
	req.Equal("channel-1", hits[0].ChannelID)
	req.Contains(hits[0].Body, "billing")
}

func Test_Query_Is_Case_Insensitive(t *testing.T) {
	req := require.New(t)
	index := newTestIndex(t)

	index.Consume(applied("channel-1", "msg-1", "Kubernetes rollout plan"))

	for _, query := range []string{"kubernetes", "KUBERNETES", "Kubernetes"} {
		hits, err := index.Query(context.Background(), query, 10)
		req.NoError(err, "query: %s", query)
		req.Len(hits, 1, "query: %s", query)
	}
}

func Test_Reapplied_Message_Indexed_Once(t *testing.T) {
	req := require.New(t)
	index := newTestIndex(t)

	msg := applied("channel-1", "msg-1", "duplicate delivery test")
	index.Consume(msg)
	index.Consume(msg)

	hits, err := index.Query(context.Background(), "duplicate", 10)
	req.NoError(err)
	req.Len(hits, 1)
}

func Test_Non_Text_Messages_Skipped(t *testing.T) {
	req := require.New(t)
	index := newTestIndex(t)

	index.Consume(event.MessageApplied{
		Channel: "channel-1",
		Message: domain.Message{
			ID:   "msg-file",
			Kind: domain.KindFile,
			File: &domain.FilePayload{Name: "report.pdf", URL: "https://files/report.pdf"},
		},
	})
	index.Consume(event.MetadataApplied{Channel: "channel-1"})

	hits, err := index.Query(context.Background(), "report", 10)
	req.NoError(err)
	req.Empty(hits)
}

func Test_Query_Respects_Limit_And_Ranks(t *testing.T) {
	req := require.New(t)
	index := newTestIndex(t)

	for i := 0; i < 5; i++ {
		index.Consume(applied("channel-1", fmt.Sprintf("msg-%d", i), "deployment checklist item"))
	}

	hits, err := index.Query(context.Background(), "deployment", 3)
	req.NoError(err)
	req.Len(hits, 3)
	for _, h := range hits {
		req.Positive(h.Score)
	}
}

func Test_Query_No_Match_Returns_Empty(t *testing.T) {
	req := require.New(t)
	index := newTestIndex(t)

	index.Consume(applied("channel-1", "msg-1", "hello there"))

	hits, err := index.Query(context.Background(), "zanzibar", 10)
	req.NoError(err)
	req.Empty(hits)
}
