//go:generate go run go.uber.org/mock/mockgen -source=session.go -destination=../mocks/mock_session_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"transfer-lab/errors"
)

type ISessionRepository interface {
	Put(rec SessionRecord) error
	Get(id string) (SessionRecord, error)
}

// SessionRepository is the per-node registry of sessions allowed to bind.
// Every data-center carries the full registry, which is what lets a session
// authenticate anywhere with nothing but the cluster secret derivation.
type SessionRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewSessionRepository(db *badger.DB, log *slog.Logger) SessionRepository {
	return SessionRepository{db: db, log: log}
}

type SessionRecord struct {
	ID        string    `json:"id"`
	HomeDC    int       `json:"home_dc"`
	CreatedAt time.Time `json:"created_at"`
}

func (s SessionRepository) Put(rec SessionRecord) error {
	encoded, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(sessionKey(rec.ID), encoded)
	})
}

func (s SessionRepository) Get(id string) (SessionRecord, error) {
	var rec SessionRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err == badger.ErrKeyNotFound {
		return SessionRecord{}, fmt.Errorf("%w: %s", errors.ErrUnknownSession, id)
	}
	return rec, err
}

func sessionKey(id string) []byte {
	return []byte("session:" + id)
}
