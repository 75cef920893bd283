//go:generate go run go.uber.org/mock/mockgen -source=catalog.go -destination=../mocks/mock_catalog_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"transfer-lab/domain"
	"transfer-lab/errors"
)

type ICatalogRepository interface {
	NextMessageID() (int64, error)
	Store(doc domain.Document) error
	Get(channel string, messageID int64) (domain.Document, error)
	List(channel string) ([]domain.Document, error)
	Delete(channel string, messageID int64) error
	Close() error
}

// CatalogRepository records the documents posted to each channel. Message
// IDs come from a badger sequence, so they are monotonic across restarts.
type CatalogRepository struct {
	db  *badger.DB
	log *slog.Logger
	seq *badger.Sequence
}

func NewCatalogRepository(db *badger.DB, log *slog.Logger) (*CatalogRepository, error) {
	seq, err := db.GetSequence([]byte("seq:message"), 64)
	if err != nil {
		return nil, fmt.Errorf("message sequence: %v", err)
	}
	return &CatalogRepository{db: db, log: log, seq: seq}, nil
}

// Close releases the unused tail of the sequence back to the store.
func (c *CatalogRepository) Close() error {
	return c.seq.Release()
}

// NextMessageID starts at 1; a zero message ID always means "unset".
func (c *CatalogRepository) NextMessageID() (int64, error) {
	n, err := c.seq.Next()
	if err != nil {
		return 0, err
	}
	return int64(n) + 1, nil
}

// Store persists a document under "doc:{channel}:{message_id_padded}" so a
// prefix scan of one channel yields documents in posting order.
func (c *CatalogRepository) Store(doc domain.Document) error {
	encoded, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(docKey(doc.Channel, doc.MessageID), encoded)
	})
}

func (c *CatalogRepository) Get(channel string, messageID int64) (domain.Document, error) {
	var doc domain.Document
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(docKey(channel, messageID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &doc)
		})
	})
	if err == badger.ErrKeyNotFound {
		return domain.Document{}, fmt.Errorf("%w: message %d on %q", errors.ErrUnknownObject, messageID, channel)
	}
	return doc, err
}

func (c *CatalogRepository) List(channel string) ([]domain.Document, error) {
	var docs []domain.Document
	prefix := []byte(fmt.Sprintf("doc:%s:", channel))
	err := c.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var doc domain.Document
				if err := json.Unmarshal(val, &doc); err != nil {
					return err
				}
				docs = append(docs, doc)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return docs, err
}

func (c *CatalogRepository) Delete(channel string, messageID int64) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		key := docKey(channel, messageID)
		if _, err := txn.Get(key); err != nil {
			return err
		}
		return txn.Delete(key)
	})
	if err == badger.ErrKeyNotFound {
		return fmt.Errorf("%w: message %d on %q", errors.ErrUnknownObject, messageID, channel)
	}
	return err
}

func docKey(channel string, messageID int64) []byte {
	return []byte(fmt.Sprintf("doc:%s:%019d", channel, messageID))
}
