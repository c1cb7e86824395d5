//go:generate go run go.uber.org/mock/mockgen -source=snapshot.go -destination=../mocks/mock_snapshot.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"chat-mesh/domain"

	"github.com/dgraph-io/badger/v4"
)

// SnapshotRepository persists channel and invitation snapshots in
// BadgerDB.
//
// Key layout:
//  1. "chan:{channel_id}" for channel snapshots.
//  2. "inv:{invitee_id}:{created_at_padded}:{invitation_id}" so a prefix
//     scan over one invitee returns invitations in chronological order;
//     the 19-digit zero padding keeps lexicographic and time order equal,
//     the id disambiguates two invitations created in the same nanosecond.
type SnapshotRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewSnapshotRepository(db *badger.DB, log *slog.Logger) SnapshotRepository {
	return SnapshotRepository{db: db, log: log}
}

func channelKey(id string) []byte {
	return []byte("chan:" + id)
}

func invitationKey(inv domain.Invitation) []byte {
	return []byte(fmt.Sprintf("inv:%s:%019d:%s", inv.InviteeID, inv.CreatedAt.UnixNano(), inv.ID))
}

func (r SnapshotRepository) SaveChannel(channel domain.Channel) error {
	bytes, err := json.Marshal(channel)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(channelKey(channel.ID), bytes)
	})
}

func (r SnapshotRepository) DeleteChannel(id string) error {
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(channelKey(id))
	})
}

// LoadChannels scans every channel snapshot. Order is not meaningful
// here, the state store re-sorts by creation time.
func (r SnapshotRepository) LoadChannels() ([]domain.Channel, error) {
	var channels []domain.Channel
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte("chan:")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				var ch domain.Channel
				if err := json.Unmarshal(value, &ch); err != nil {
					return err
				}
				channels = append(channels, ch)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return channels, err
}

func (r SnapshotRepository) SaveInvitation(inv domain.Invitation) error {
	bytes, err := json.Marshal(inv)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(invitationKey(inv), bytes)
	})
}

// GetUserInvitations returns the invitee's invitations in creation order,
// thanks to the padded timestamp in the key.
func (r SnapshotRepository) GetUserInvitations(userID string) ([]domain.Invitation, error) {
	var invitations []domain.Invitation
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte("inv:" + userID + ":")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				var inv domain.Invitation
				if err := json.Unmarshal(value, &inv); err != nil {
					return err
				}
				invitations = append(invitations, inv)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return invitations, err
}
