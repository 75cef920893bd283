package transfer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"transfer-lab/domain"
	"transfer-lab/errors"
)

func TestNewPlan_PartSizeSteps(t *testing.T) {
	req := require.New(t)

	cases := []struct {
		name     string
		size     int64
		partSize int32
	}{
		{"single byte", 1, 128 * domain.KB},
		{"100 MiB stays on the small step", 100 * domain.MB, 128 * domain.KB},
		{"just above 100 MiB", 100*domain.MB + 1, 256 * domain.KB},
		{"750 MiB", 750 * domain.MB, 256 * domain.KB},
		{"just above 750 MiB", 750*domain.MB + 1, 512 * domain.KB},
		{"2000 MiB ceiling", 2000 * domain.MB, 512 * domain.KB},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			plan, err := NewPlan(c.size, 4)
			req.NoError(err)
			req.Equal(c.partSize, plan.PartSize)
		})
	}
}

func TestNewPlan_RejectsOutOfRangeInput(t *testing.T) {
	req := require.New(t)

	_, err := NewPlan(-1, 4)
	req.ErrorIs(err, errors.ErrNegativeSize)

	_, err = NewPlan(1*domain.MB, 0)
	req.ErrorIs(err, errors.ErrConnectionLimit)

	_, err = NewPlan(1*domain.MB, MaxConnections+1)
	req.ErrorIs(err, errors.ErrConnectionLimit)

	_, err = NewPlan(2000*domain.MB+1, 4)
	req.ErrorIs(err, errors.ErrObjectTooLarge)
}

func TestNewPlan_LargeObjectBoundary(t *testing.T) {
	req := require.New(t)

	at, err := NewPlan(10*domain.MB, 2)
	req.NoError(err)
	req.False(at.IsLarge)

	above, err := NewPlan(10*domain.MB+1, 2)
	req.NoError(err)
	req.True(above.IsLarge)
}

func TestNewPlan_ConnectionScaling(t *testing.T) {
	req := require.New(t)

	t.Run("Small objects get a proportional share of the budget", func(t *testing.T) {
		plan, err := NewPlan(5*domain.MB, 20)
		req.NoError(err)
		req.Equal(1, plan.Connections)

		plan, err = NewPlan(30*domain.MB, 20)
		req.NoError(err)
		req.Equal(6, plan.Connections)
	})

	t.Run("Above the reference size the full budget opens", func(t *testing.T) {
		plan, err := NewPlan(250*domain.MB, 10)
		req.NoError(err)
		req.Equal(10, plan.Connections)
		req.True(plan.IsLarge)
		req.Equal(int32(256*domain.KB), plan.PartSize)
		req.Equal(int32(1000), plan.PartCount)
	})

	t.Run("Empty object still plans one connection", func(t *testing.T) {
		plan, err := NewPlan(0, 5)
		req.NoError(err)
		req.Equal(1, plan.Connections)
		req.Equal(int32(0), plan.PartCount)
		req.False(plan.IsLarge)
	})
}

func TestNewPlan_PartCount(t *testing.T) {
	req := require.New(t)

	exact, err := NewPlan(1*domain.MB, 4)
	req.NoError(err)
	req.Equal(int32(8), exact.PartCount)

	ragged, err := NewPlan(1*domain.MB+1, 4)
	req.NoError(err)
	req.Equal(int32(9), ragged.PartCount)
}
