//go:generate go run go.uber.org/mock/mockgen -source=staging.go -destination=../mocks/mock_staging_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"transfer-lab/errors"
)

// stagedTTL is the badger-level backstop: even if the janitor never runs,
// abandoned parts fall out of the store on their own.
const stagedTTL = 48 * time.Hour

type IStagingRepository interface {
	StorePart(fileID int64, part int32, data []byte) error
	Meta(fileID int64) (StagedUpload, error)
	ForEachPart(fileID int64, fn func(part int32, data []byte) error) error
	Discard(fileID int64) error
	Stale(cutoff time.Time) ([]StagedUpload, error)
}

type StagingRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewStagingRepository(db *badger.DB, log *slog.Logger) StagingRepository {
	return StagingRepository{db: db, log: log}
}

// StagedUpload summarizes the parts received so far for one file ID. The
// counters track distinct part indexes; a re-sent part replaces its bytes.
type StagedUpload struct {
	FileID    int64     `json:"file_id"`
	Parts     int32     `json:"parts"`
	Bytes     int64     `json:"bytes"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StorePart persists one uploaded part. The key is formatted as
// "stage:{file_id_padded}:{part_padded}" so a prefix scan walks the parts of
// one upload in ascending order (lexicographical order thanks to the zero
// padding). The meta entry is refreshed in the same transaction.
func (s StagingRepository) StorePart(fileID int64, part int32, data []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		meta, err := readStagedMeta(txn, fileID)
		if err == badger.ErrKeyNotFound {
			meta = StagedUpload{FileID: fileID}
		} else if err != nil {
			return err
		}
		switch existing, err := txn.Get(stagePartKey(fileID, part)); {
		case err == badger.ErrKeyNotFound:
			meta.Parts++
			meta.Bytes += int64(len(data))
		case err != nil:
			return err
		default:
			meta.Bytes += int64(len(data)) - existing.ValueSize()
		}
		meta.UpdatedAt = time.Now().UTC()

		encoded, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		if err := txn.SetEntry(badger.NewEntry(stagePartKey(fileID, part), data).WithTTL(stagedTTL)); err != nil {
			return err
		}
		return txn.SetEntry(badger.NewEntry(stageMetaKey(fileID), encoded).WithTTL(stagedTTL))
	})
}

func (s StagingRepository) Meta(fileID int64) (StagedUpload, error) {
	var meta StagedUpload
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		meta, err = readStagedMeta(txn, fileID)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return StagedUpload{}, fmt.Errorf("%w: file %d", errors.ErrUnknownObject, fileID)
	}
	return meta, err
}

// ForEachPart visits the staged parts of fileID in ascending part order.
func (s StagingRepository) ForEachPart(fileID int64, fn func(part int32, data []byte) error) error {
	prefix := []byte(fmt.Sprintf("stage:%020d:", fileID))
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var part int32
			if _, err := fmt.Sscanf(string(item.Key()[len(prefix):]), "%d", &part); err != nil {
				return fmt.Errorf("staging key %q: %v", item.Key(), err)
			}
			err := item.Value(func(val []byte) error {
				data := make([]byte, len(val))
				copy(data, val)
				return fn(part, data)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Discard removes every staged part and the meta entry for fileID. A big
// upload holds more keys than one transaction accepts, so deletion goes
// through a write batch.
func (s StagingRepository) Discard(fileID int64) error {
	keys, err := s.collectKeys(fmt.Sprintf("stage:%020d:", fileID))
	if err != nil {
		return err
	}
	keys = append(keys, stageMetaKey(fileID))

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// Stale lists uploads whose last part arrived before cutoff. The janitor
// uses this to reclaim transfers that aborted client-side.
func (s StagingRepository) Stale(cutoff time.Time) ([]StagedUpload, error) {
	var stale []StagedUpload
	prefix := []byte("stagemeta:")
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var meta StagedUpload
				if err := json.Unmarshal(val, &meta); err != nil {
					return err
				}
				if meta.UpdatedAt.Before(cutoff) {
					stale = append(stale, meta)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return stale, err
}

func (s StagingRepository) collectKeys(prefix string) ([][]byte, error) {
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()
		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	return keys, err
}

func readStagedMeta(txn *badger.Txn, fileID int64) (StagedUpload, error) {
	item, err := txn.Get(stageMetaKey(fileID))
	if err != nil {
		return StagedUpload{}, err
	}
	var meta StagedUpload
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &meta)
	})
	return meta, err
}

func stagePartKey(fileID int64, part int32) []byte {
	return []byte(fmt.Sprintf("stage:%020d:%06d", fileID, part))
}

func stageMetaKey(fileID int64) []byte {
	return []byte(fmt.Sprintf("stagemeta:%020d", fileID))
}
