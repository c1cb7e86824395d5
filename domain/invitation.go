package domain

import "time"

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationDeclined InvitationStatus = "declined"
)

// Invitation carries a denormalized snapshot of its channel so an
// accepter can materialize the channel without a separate fetch.
// Lifecycle: pending, then terminally accepted or declined.
type Invitation struct {
	ID           string           `json:"id"`
	ChannelID    string           `json:"channelId"`
	ChannelName  string           `json:"channelName"`
	ChannelImage string           `json:"channelImage,omitempty"`
	Inviter      Sender           `json:"inviter"`
	InviteeID    string           `json:"inviteeId"`
	InviteeName  string           `json:"inviteeName"`
	Status       InvitationStatus `json:"status"`
	CreatedAt    time.Time        `json:"createdAt"`
}

func (i Invitation) Pending() bool {
	return i.Status == InvitationPending
}
