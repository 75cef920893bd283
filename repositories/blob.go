//go:generate go run go.uber.org/mock/mockgen -source=blob.go -destination=../mocks/mock_blob_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"transfer-lab/errors"
)

type IBlobRepository interface {
	Create(meta BlobMeta) error
	AppendBlock(objectID int64, index int32, data []byte) error
	Meta(objectID int64) (BlobMeta, error)
	ReadRange(objectID int64, offset int64, limit int32) ([]byte, error)
	Delete(objectID int64) error
}

// BlobRepository holds committed, immutable objects as fixed-size blocks.
// Blocks keep the part size of the upload that produced them, which makes
// the commit a straight copy from staging.
type BlobRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewBlobRepository(db *badger.DB, log *slog.Logger) BlobRepository {
	return BlobRepository{db: db, log: log}
}

type BlobMeta struct {
	ObjectID   int64     `json:"object_id"`
	AccessHash int64     `json:"access_hash"`
	Size       int64     `json:"size"`
	BlockSize  int32     `json:"block_size"`
	Blocks     int32     `json:"blocks"`
	CreatedAt  time.Time `json:"created_at"`
}

func (b BlobRepository) Create(meta BlobMeta) error {
	encoded, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(blobMetaKey(meta.ObjectID), encoded)
	})
}

// AppendBlock stores one block. The key "blob:{object_padded}:{block_padded}"
// keeps blocks of one object adjacent and in order.
func (b BlobRepository) AppendBlock(objectID int64, index int32, data []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(blobBlockKey(objectID, index), data)
	})
}

func (b BlobRepository) Meta(objectID int64) (BlobMeta, error) {
	var meta BlobMeta
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(blobMetaKey(objectID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		})
	})
	if err == badger.ErrKeyNotFound {
		return BlobMeta{}, fmt.Errorf("%w: object %d", errors.ErrUnknownObject, objectID)
	}
	return meta, err
}

// ReadRange returns up to limit bytes starting at offset, clamped to the
// object size. Ranges may start mid-block and span block boundaries.
func (b BlobRepository) ReadRange(objectID int64, offset int64, limit int32) ([]byte, error) {
	meta, err := b.Meta(objectID)
	if err != nil {
		return nil, err
	}
	if offset < 0 || limit <= 0 {
		return nil, fmt.Errorf("%w: range %d+%d", errors.ErrUnknownObject, offset, limit)
	}
	if offset >= meta.Size {
		return []byte{}, nil
	}

	end := min(offset+int64(limit), meta.Size)
	out := make([]byte, 0, end-offset)
	err = b.db.View(func(txn *badger.Txn) error {
		for pos := offset; pos < end; {
			block := int32(pos / int64(meta.BlockSize))
			intra := pos % int64(meta.BlockSize)

			item, err := txn.Get(blobBlockKey(objectID, block))
			if err != nil {
				return fmt.Errorf("object %d block %d: %v", objectID, block, err)
			}
			err = item.Value(func(val []byte) error {
				take := min(int64(len(val))-intra, end-pos)
				if take <= 0 {
					return fmt.Errorf("object %d block %d shorter than offset %d", objectID, block, intra)
				}
				out = append(out, val[intra:intra+take]...)
				pos += take
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

// Delete removes the blocks and the meta entry through a write batch, for
// the same transaction-size reason as staging.
func (b BlobRepository) Delete(objectID int64) error {
	var keys [][]byte
	err := b.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		prefix := []byte(fmt.Sprintf("blob:%020d:", objectID))
		it := txn.NewIterator(options)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}
	keys = append(keys, blobMetaKey(objectID))

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return err
		}
	}
	return wb.Flush()
}

func blobBlockKey(objectID int64, block int32) []byte {
	return []byte(fmt.Sprintf("blob:%020d:%09d", objectID, block))
}

func blobMetaKey(objectID int64) []byte {
	return []byte(fmt.Sprintf("blobmeta:%020d", objectID))
}
