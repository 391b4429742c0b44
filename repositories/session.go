package repositories

import (
	"github.com/dgraph-io/badger/v4"
	"github.com/omkarshukla84/klymo-client/domain"
)

const (
	currentRoomKey  = "current_room"
	partnerInfoKey  = "partner_info"
	reportTargetKey = "report_target"
)

// SessionRepository is the ephemeral session store. It must be backed by an
// in-memory database (see OpenEphemeral).
type SessionRepository struct {
	db *badger.DB
}

func NewSessionRepository(db *badger.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (s *SessionRepository) SaveRoom(room domain.MatchRoom) error {
	partner, err := encodeRecord(room.Partner)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(currentRoomKey), []byte(room.RoomID)); err != nil {
			return err
		}
		return txn.Set([]byte(partnerInfoKey), partner)
	})
}

// Room returns the current room; ok is false when no room is held.
func (s *SessionRepository) Room() (domain.MatchRoom, bool, error) {
	roomID, ok, err := get(s.db, currentRoomKey)
	if err != nil || !ok || len(roomID) == 0 {
		return domain.MatchRoom{}, false, err
	}
	room := domain.MatchRoom{RoomID: string(roomID)}
	if _, err := getRecord(s.db, partnerInfoKey, &room.Partner); err != nil {
		return domain.MatchRoom{}, false, err
	}
	return room, true, nil
}

func (s *SessionRepository) SaveReportTarget(deviceID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(reportTargetKey), []byte(deviceID))
	})
}

// ReportTarget returns the pending report target; an empty target is absent.
func (s *SessionRepository) ReportTarget() (string, bool, error) {
	raw, ok, err := get(s.db, reportTargetKey)
	if err != nil || !ok || len(raw) == 0 {
		return "", false, err
	}
	return string(raw), true, nil
}

// Clear removes every ephemeral session field. Clearing an empty store is a no-op.
func (s *SessionRepository) Clear() error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, key := range []string{currentRoomKey, partnerInfoKey, reportTargetKey} {
			if err := txn.Delete([]byte(key)); err != nil {
				return err
			}
		}
		return nil
	})
}
