package repositories

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"transfer-lab/errors"
)

func storeTestBlob(t *testing.T, repository BlobRepository, objectID int64, blockSize int32, content []byte) {
	t.Helper()
	req := require.New(t)

	blocks := int32(0)
	for off := 0; off < len(content); off += int(blockSize) {
		end := min(off+int(blockSize), len(content))
		req.NoError(repository.AppendBlock(objectID, blocks, content[off:end]))
		blocks++
	}
	req.NoError(repository.Create(BlobMeta{
		ObjectID:   objectID,
		AccessHash: 99,
		Size:       int64(len(content)),
		BlockSize:  blockSize,
		Blocks:     blocks,
		CreatedAt:  time.Now().UTC(),
	}))
}

func Test_ReadRange_Spans_Blocks(t *testing.T) {
	req := require.New(t)
	repository := NewBlobRepository(openTestDB(t), slog.Default())

	content := []byte("0123456789abcdefghij")
	storeTestBlob(t, repository, 5, 8, content)

	// Mid-block start, crossing into the second block.
	data, err := repository.ReadRange(5, 5, 10)
	req.NoError(err)
	req.Equal(content[5:15], data)

	// Whole object in one oversized request.
	data, err = repository.ReadRange(5, 0, 1024)
	req.NoError(err)
	req.Equal(content, data)

	// Tail read clamps to the object size.
	data, err = repository.ReadRange(5, 16, 10)
	req.NoError(err)
	req.Equal(content[16:], data)

	// Beyond the end there is nothing, not an error.
	data, err = repository.ReadRange(5, 100, 10)
	req.NoError(err)
	req.Empty(data)
}

func Test_Blob_Meta_RoundTrip(t *testing.T) {
	req := require.New(t)
	repository := NewBlobRepository(openTestDB(t), slog.Default())

	storeTestBlob(t, repository, 7, 8, []byte("payload"))

	meta, err := repository.Meta(7)
	req.NoError(err)
	req.Equal(int64(7), meta.ObjectID)
	req.Equal(int64(99), meta.AccessHash)
	req.Equal(int64(7), meta.Size)
	req.Equal(int32(1), meta.Blocks)

	_, err = repository.Meta(123456)
	req.ErrorIs(err, errors.ErrUnknownObject)
}

func Test_Delete_Blob(t *testing.T) {
	req := require.New(t)
	repository := NewBlobRepository(openTestDB(t), slog.Default())

	storeTestBlob(t, repository, 9, 4, []byte("ephemeral object"))
	req.NoError(repository.Delete(9))

	_, err := repository.Meta(9)
	req.ErrorIs(err, errors.ErrUnknownObject)

	_, err = repository.ReadRange(9, 0, 16)
	req.ErrorIs(err, errors.ErrUnknownObject)
}
