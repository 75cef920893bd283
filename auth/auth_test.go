package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"transfer-lab/errors"
)

var testSecret = []byte("cluster-secret-for-tests-only-2026")

func TestDeriveKey_Deterministic(t *testing.T) {
	req := require.New(t)

	first := DeriveKey(testSecret, "session-a", 2)
	second := DeriveKey(testSecret, "session-a", 2)
	req.Equal(first, second)
	req.Len([]byte(first), 32)

	// Any change of session or data-center yields an unrelated key.
	req.NotEqual(first, DeriveKey(testSecret, "session-b", 2))
	req.NotEqual(first, DeriveKey(testSecret, "session-a", 3))
	req.NotEqual(first, DeriveKey([]byte("another-secret"), "session-a", 2))
}

func TestIssueAndVerifyTicket(t *testing.T) {
	req := require.New(t)

	token, err := IssueTicket(testSecret, "session-a", 4)
	req.NoError(err)
	req.True(strings.HasPrefix(token, "eyJ"))

	claims, err := VerifyTicket(testSecret, token, 4)
	req.NoError(err)
	req.Equal("session-a", claims.Session)
	req.Equal(4, claims.TargetDC)
}

func TestVerifyTicket_Rejections(t *testing.T) {
	req := require.New(t)

	token, err := IssueTicket(testSecret, "session-a", 4)
	req.NoError(err)

	t.Run("Wrong data-center", func(t *testing.T) {
		_, err := VerifyTicket(testSecret, token, 5)
		req.ErrorIs(err, errors.ErrBadTicket)
	})

	t.Run("Wrong secret", func(t *testing.T) {
		_, err := VerifyTicket([]byte("not-the-secret"), token, 4)
		req.ErrorIs(err, errors.ErrBadTicket)
	})

	t.Run("Tampered token", func(t *testing.T) {
		_, err := VerifyTicket(testSecret, token+"x", 4)
		req.ErrorIs(err, errors.ErrBadTicket)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := VerifyTicket(testSecret, "not.a.jwt", 4)
		req.ErrorIs(err, errors.ErrBadTicket)
	})
}

// BenchmarkDeriveKey measures the per-bind derivation cost.
func BenchmarkDeriveKey(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = DeriveKey(testSecret, "session-bench", 1)
	}
}
