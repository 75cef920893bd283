package workers

import (
	"testing"
	"time"

	"transfer-lab/errors"
	"transfer-lab/repositories"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

// stagingPurger exposes one real staging repository the way the cluster
// does, keyed under a single data-center.
type stagingPurger struct {
	staging repositories.StagingRepository
}

func (p stagingPurger) Stales(cutoff time.Time) (map[int][]repositories.StagedUpload, error) {
	stale, err := p.staging.Stale(cutoff)
	if err != nil {
		return nil, err
	}
	if len(stale) == 0 {
		return map[int][]repositories.StagedUpload{}, nil
	}
	return map[int][]repositories.StagedUpload{1: stale}, nil
}

func (p stagingPurger) DiscardStaged(_ int, fileID int64) error {
	return p.staging.Discard(fileID)
}

func TestJanitor_ReclaimsAbandonedUploads(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	staging := repositories.NewStagingRepository(db, testLogger())
	req.NoError(staging.StorePart(101, 0, []byte("first part")))
	req.NoError(staging.StorePart(101, 1, []byte("second part")))
	req.NoError(staging.StorePart(202, 0, []byte("other upload")))

	janitor := NewJanitorWorker(testLogger(), stagingPurger{staging: staging}, 0, time.Minute)

	// When a sweep runs with everything already older than maxAge 0
	janitor.SweepOnce()

	// Then both part trains are gone
	_, err = staging.Meta(101)
	req.ErrorIs(err, errors.ErrUnknownObject)
	_, err = staging.Meta(202)
	req.ErrorIs(err, errors.ErrUnknownObject)

	stale, err := staging.Stale(time.Now())
	req.NoError(err)
	req.Empty(stale)
}

func TestJanitor_KeepsFreshUploads(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	staging := repositories.NewStagingRepository(db, testLogger())
	req.NoError(staging.StorePart(303, 0, []byte("in-flight upload")))

	// Given a generous maxAge so the fresh upload stays under it
	janitor := NewJanitorWorker(testLogger(), stagingPurger{staging: staging}, time.Hour, time.Minute)

	janitor.SweepOnce()

	meta, err := staging.Meta(303)
	req.NoError(err)
	req.Equal(int32(1), meta.Parts)
}
