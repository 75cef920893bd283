package transfer

import (
	"math"

	"transfer-lab/domain"
	"transfer-lab/errors"
)

const (
	// Objects above this size use the checksum-free big-part variant.
	largeObjectThreshold = 10 * domain.MB

	// A transfer of at least this size gets the caller's full connection
	// budget; smaller ones get a proportional share.
	stripeReferenceSize = 100 * domain.MB

	maxObjectSize = 2000 * domain.MB

	// MaxConnections bounds the caller-supplied connection budget.
	MaxConnections = 20
)

// Plan fixes the geometry of one transfer: how the object is cut into parts
// and how many connections stripe them. Immutable once computed.
type Plan struct {
	TotalSize   int64
	PartSize    int32
	PartCount   int32
	Connections int
	IsLarge     bool
}

// NewPlan derives the transfer geometry for an object of totalSize bytes.
// The part size is a step function of the object size bounded to the values
// the part RPCs accept, so it is never renegotiated mid-transfer.
func NewPlan(totalSize int64, maxConnections int) (Plan, error) {
	if totalSize < 0 {
		return Plan{}, errors.ErrNegativeSize
	}
	if maxConnections < 1 || maxConnections > MaxConnections {
		return Plan{}, errors.ErrConnectionLimit
	}

	partSize, err := partSizeFor(totalSize)
	if err != nil {
		return Plan{}, err
	}

	return Plan{
		TotalSize:   totalSize,
		PartSize:    partSize,
		PartCount:   int32((totalSize + int64(partSize) - 1) / int64(partSize)),
		Connections: connectionsFor(totalSize, maxConnections),
		IsLarge:     totalSize > largeObjectThreshold,
	}, nil
}

func partSizeFor(totalSize int64) (int32, error) {
	switch {
	case totalSize <= 100*domain.MB:
		return 128 * domain.KB, nil
	case totalSize <= 750*domain.MB:
		return 256 * domain.KB, nil
	case totalSize <= maxObjectSize:
		return 512 * domain.KB, nil
	default:
		return 0, errors.ErrObjectTooLarge
	}
}

// connectionsFor scales the connection count with the object size so a tiny
// object does not open the whole budget.
func connectionsFor(totalSize int64, maxConnections int) int {
	if totalSize > stripeReferenceSize {
		return maxConnections
	}
	n := int(math.Ceil(float64(totalSize) / float64(stripeReferenceSize) * float64(maxConnections)))
	if n < 1 {
		return 1
	}
	return n
}
