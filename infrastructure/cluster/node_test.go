package cluster

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"transfer-lab/auth"
	"transfer-lab/domain"
	"transfer-lab/errors"
	"transfer-lab/infrastructure/tcpnet"
	"transfer-lab/moderation"
	"transfer-lab/repositories"
)

var testSecret = []byte("cluster-master-secret-for-tests")

const (
	testSessionID  = "3f1f8a4e-9c1d-4a6b-8f2e-5f4f9f0c7d21"
	otherSessionID = "a0b1c2d3-e4f5-4a6b-8c9d-0e1f2a3b4c5d"
	testSignature  = "BLOCKLISTED-SIGNATURE"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestNode(t *testing.T, dc int) *Node {
	t.Helper()
	log := testLogger()

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)

	index, err := NewMemoryIndex(log)
	require.NoError(t, err)

	catalog, err := repositories.NewCatalogRepository(db, log)
	require.NoError(t, err)

	screener, err := moderation.NewScreener([][]byte{[]byte(testSignature)})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = catalog.Close()
		_ = index.Close()
		_ = db.Close()
	})

	sessions := repositories.NewSessionRepository(db, log)
	require.NoError(t, sessions.Put(repositories.SessionRecord{
		ID:        testSessionID,
		HomeDC:    1,
		CreatedAt: time.Now().UTC(),
	}))

	return NewNode(log, dc, testSecret,
		repositories.NewStagingRepository(db, log),
		repositories.NewBlobRepository(db, log),
		catalog,
		sessions,
		index,
		screener,
		nil,
	)
}

// boundState binds a fresh connection state the way a real client would.
func boundState(t *testing.T, node *Node) *tcpnet.ConnState {
	t.Helper()
	state := &tcpnet.ConnState{}
	key := auth.DeriveKey(testSecret, testSessionID, node.DC())
	resp, err := node.Serve(context.Background(), state,
		domain.BindSession{Session: testSessionID, KeyDigest: key.Digest()})
	require.NoError(t, err)
	require.Equal(t, domain.SessionBound{DC: node.DC()}, resp)
	return state
}

func md5hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func TestNode_AuthenticationGate(t *testing.T) {
	ctx := context.Background()
	node := newTestNode(t, 1)

	t.Run("Requests before bind are refused", func(t *testing.T) {
		_, err := node.Serve(ctx, &tcpnet.ConnState{}, domain.GetFilePart{
			Location: domain.ObjectLocation{DC: 1, ID: 7},
			Limit:    1024,
		})
		require.ErrorIs(t, err, errors.ErrNotBound)
	})

	t.Run("Unknown session cannot bind", func(t *testing.T) {
		key := auth.DeriveKey(testSecret, otherSessionID, 1)
		_, err := node.Serve(ctx, &tcpnet.ConnState{},
			domain.BindSession{Session: otherSessionID, KeyDigest: key.Digest()})
		require.ErrorIs(t, err, errors.ErrUnknownSession)
	})

	t.Run("Wrong digest cannot bind", func(t *testing.T) {
		wrongKey := auth.DeriveKey([]byte("some other secret"), testSessionID, 1)
		_, err := node.Serve(ctx, &tcpnet.ConnState{},
			domain.BindSession{Session: testSessionID, KeyDigest: wrongKey.Digest()})
		require.ErrorIs(t, err, errors.ErrNotBound)
	})

	t.Run("Malformed bind is rejected", func(t *testing.T) {
		_, err := node.Serve(ctx, &tcpnet.ConnState{},
			domain.BindSession{Session: "not-a-uuid", KeyDigest: "short"})
		require.ErrorIs(t, err, errors.ErrInvalidPayload)
	})

	t.Run("Valid digest binds", func(t *testing.T) {
		state := boundState(t, node)
		session, bound := state.Session()
		require.True(t, bound)
		require.Equal(t, testSessionID, session)
	})
}

func TestNode_AuthorizationTickets(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	home := newTestNode(t, 1)
	remote := newTestNode(t, 2)

	state := boundState(t, home)
	resp, err := home.Serve(ctx, state, domain.ExportAuthorization{TargetDC: 2})
	req.NoError(err)
	exported, ok := resp.(domain.AuthorizationExported)
	req.True(ok)
	req.Equal(2, exported.Ticket.TargetDC)
	req.NotEmpty(exported.Ticket.Token)

	t.Run("Ticket redeems on the target data-center", func(t *testing.T) {
		req := require.New(t)
		fresh := &tcpnet.ConnState{}
		resp, err := remote.Serve(ctx, fresh, domain.ImportAuthorization{Ticket: exported.Ticket.Token})
		req.NoError(err)
		imported, ok := resp.(domain.AuthorizationImported)
		req.True(ok)
		req.Equal(auth.DeriveKey(testSecret, testSessionID, 2), imported.Key)

		// The connection is bound afterwards: the gate lets traffic through.
		_, err = remote.Serve(ctx, fresh, domain.ListDocuments{Channel: "nothing-here"})
		req.ErrorIs(err, errors.ErrUnknownChannel)
	})

	t.Run("Ticket replayed on the wrong data-center is refused", func(t *testing.T) {
		_, err := home.Serve(ctx, &tcpnet.ConnState{},
			domain.ImportAuthorization{Ticket: exported.Ticket.Token})
		require.ErrorIs(t, err, errors.ErrBadTicket)
	})

	t.Run("Garbage ticket is refused", func(t *testing.T) {
		_, err := remote.Serve(ctx, &tcpnet.ConnState{},
			domain.ImportAuthorization{Ticket: "eyJhbGciOiJIUzI1NiJ9.garbage.garbage"})
		require.ErrorIs(t, err, errors.ErrBadTicket)
	})
}

func TestNode_RequestValidation(t *testing.T) {
	ctx := context.Background()
	node := newTestNode(t, 1)
	state := boundState(t, node)

	tests := []struct {
		name string
		req  any
	}{
		{
			name: "Zero file ID",
			req:  domain.SaveFilePart{FileID: 0, Part: 0, Bytes: []byte("x")},
		},
		{
			name: "Negative part index",
			req:  domain.SaveFilePart{FileID: 5, Part: -1, Bytes: []byte("x")},
		},
		{
			name: "Zero read limit",
			req:  domain.GetFilePart{Location: domain.ObjectLocation{DC: 1, ID: 5}, Limit: 0},
		},
		{
			name: "Channel with a reserved separator",
			req: domain.SendMedia{
				Channel:  "bad:channel",
				Ref:      domain.FileReference{FileID: 5, Parts: 1, Name: "x"},
				Size:     1,
				Mimetype: "text/plain",
			},
		},
		{
			name: "Search without a query",
			req:  domain.SearchDocuments{Channel: "backups", Query: "", Limit: 10},
		},
		{
			name: "Delete without message IDs",
			req:  domain.DeleteDocuments{Channel: "backups", MessageIDs: nil},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := node.Serve(ctx, state, tt.req)
			require.ErrorIs(t, err, errors.ErrInvalidPayload)
		})
	}

	t.Run("Part outside the declared count", func(t *testing.T) {
		_, err := node.Serve(ctx, state, domain.SaveBigFilePart{
			FileID: 9, Part: 4, TotalParts: 4, Bytes: []byte("x"),
		})
		require.ErrorIs(t, err, errors.ErrInvalidPayload)
	})
}
