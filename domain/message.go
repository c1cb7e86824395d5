package domain

import "time"

type MessageKind string

const (
	KindText    MessageKind = "text"
	KindFile    MessageKind = "file"
	KindPoll    MessageKind = "poll"
	KindMeeting MessageKind = "meeting"
	KindPost    MessageKind = "post"
)

// Sender is a point-in-time snapshot of the author, not a live reference.
type Sender struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// ReplyRef points at the replied-to message with a denormalized snippet,
// so the reply renders even if the target scrolled out of local history.
type ReplyRef struct {
	MessageID string `json:"messageId"`
	Snippet   string `json:"snippet"`
}

type Reaction struct {
	Emoji  string `json:"emoji"`
	UserID string `json:"userId"`
}

type TextPayload struct {
	Body     string `json:"body"`
	Language string `json:"language,omitempty"`
}

type FilePayload struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType,omitempty"`
}

type MeetingPayload struct {
	Title       string    `json:"title"`
	RoomName    string    `json:"roomName"`
	CreatedBy   string    `json:"createdBy"`
	CreatedByID string    `json:"createdById"`
	CreatedAt   time.Time `json:"createdAt"`
}

type PostPayload struct {
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
}

// Message carries exactly one payload, discriminated by Kind. Immutable
// once created except for Reactions and, for KindPoll, the embedded Poll.
type Message struct {
	ID        string      `json:"id"`
	Sender    Sender      `json:"sender"`
	CreatedAt time.Time   `json:"createdAt"`
	Kind      MessageKind `json:"kind"`

	Text    *TextPayload    `json:"text,omitempty"`
	File    *FilePayload    `json:"file,omitempty"`
	Poll    *Poll           `json:"poll,omitempty"`
	Meeting *MeetingPayload `json:"meeting,omitempty"`
	Post    *PostPayload    `json:"post,omitempty"`

	ReplyTo   *ReplyRef  `json:"replyTo,omitempty"`
	Reactions []Reaction `json:"reactions,omitempty"`
}

// AddReaction appends a reaction; the same (emoji, user) pair toggles off.
func (m *Message) AddReaction(emoji, userID string) {
	for i, r := range m.Reactions {
		if r.Emoji == emoji && r.UserID == userID {
			m.Reactions = append(m.Reactions[:i], m.Reactions[i+1:]...)
			return
		}
	}
	m.Reactions = append(m.Reactions, Reaction{Emoji: emoji, UserID: userID})
}
