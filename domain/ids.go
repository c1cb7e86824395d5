package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// NewMessageID builds a globally unique, client-generated message id.
// The timestamp prefix keeps ids roughly sortable, the random suffix
// disambiguates two messages created in the same millisecond.
func NewMessageID(at time.Time) string {
	return fmt.Sprintf("%d-%s", at.UnixMilli(), uuid.NewString()[:8])
}

// NewChannelID derives a stable channel id from its name and creation time.
func NewChannelID(name string, at time.Time) string {
	return fmt.Sprintf("%s-%d", slugify(name), at.UnixMilli())
}

// NewInvitationID returns a fresh invitation identifier.
func NewInvitationID() string {
	return uuid.NewString()
}

// NewCallRoomID returns a fresh room identifier for a direct call.
func NewCallRoomID() string {
	return uuid.NewString()
}

// NewGroupRoomName builds a room identifier scoped to a channel and the
// current time, so two group calls in the same channel never collide.
func NewGroupRoomName(channelID string, at time.Time) string {
	return fmt.Sprintf("%s-%d-%s", channelID, at.UnixMilli(), uuid.NewString()[:8])
}

func slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteRune('-')
			lastDash = true
		}
	}
	return strings.Trim(b.String(), "-")
}
