package syncer

import (
	"fmt"
	"time"

	"chat-mesh/domain"
	"chat-mesh/moderation"

	"github.com/google/uuid"
)

// Draft is a local user's message before it gets an id, a timestamp and
// a sender snapshot. Exactly one payload field must be set.
type Draft struct {
	Text    string
	File    *domain.FilePayload
	Poll    *PollDraft
	Post    *domain.PostPayload
	ReplyTo *domain.ReplyRef
}

type PollDraft struct {
	Question         string
	Description      string
	Options          []string
	AllowMultiple    bool
	IsAnonymous      bool
	ResultVisibility domain.ResultVisibility
	EndTime          *time.Time
}

func (s *Synchronizer) buildMessage(draft Draft) (domain.Message, error) {
	now := s.now()
	msg := domain.Message{
		ID:        domain.NewMessageID(now),
		Sender:    s.self,
		CreatedAt: now,
		ReplyTo:   draft.ReplyTo,
	}

	switch {
	case draft.Poll != nil:
		msg.Kind = domain.KindPoll
		poll := s.buildPoll(*draft.Poll, now)
		msg.Poll = &poll
	case draft.File != nil:
		msg.Kind = domain.KindFile
		msg.File = draft.File
	case draft.Post != nil:
		msg.Kind = domain.KindPost
		msg.Post = draft.Post
	case draft.Text != "":
		msg.Kind = domain.KindText
		body := draft.Text
		if s.moderator != nil {
			censored, hits := s.moderator.Censor(body)
			if hits > 0 {
				s.log.Info("Outgoing message censored", "hits", hits)
			}
			body = censored
		}
		msg.Text = &domain.TextPayload{
			Body:     body,
			Language: moderation.DetectLanguage(body),
		}
	default:
		return domain.Message{}, fmt.Errorf("draft carries no payload")
	}
	return msg, nil
}

func (s *Synchronizer) buildPoll(draft PollDraft, now time.Time) domain.Poll {
	visibility := draft.ResultVisibility
	if visibility == "" {
		visibility = domain.ResultsAlways
	}
	options := make([]domain.Option, len(draft.Options))
	for i, text := range draft.Options {
		options[i] = domain.Option{ID: uuid.NewString()[:8], Text: text}
	}
	return domain.Poll{
		ID:               uuid.NewString(),
		Question:         draft.Question,
		Description:      draft.Description,
		Options:          options,
		AllowMultiple:    draft.AllowMultiple,
		IsAnonymous:      draft.IsAnonymous,
		ResultVisibility: visibility,
		CreatedBy:        s.self.ID,
		CreatedByName:    s.self.Name,
		CreatedAt:        now,
		EndTime:          draft.EndTime,
		IsActive:         true,
	}
}
