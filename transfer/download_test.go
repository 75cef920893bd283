package transfer

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"transfer-lab/domain"
	"transfer-lab/errors"
	"transfer-lab/mocks"
)

// rangeServer plays the node side of a download, serving byte ranges of one
// committed object.
type rangeServer struct {
	object []byte
}

func (rs *rangeServer) handle(_ context.Context, req any) (any, error) {
	switch r := req.(type) {
	case domain.BindSession:
		return domain.SessionBound{DC: 1}, nil
	case domain.GetFilePart:
		end := min(r.Offset+int64(r.Limit), int64(len(rs.object)))
		part := make([]byte, end-r.Offset)
		copy(part, rs.object[r.Offset:end])
		return domain.FilePartData{Bytes: part}, nil
	default:
		return nil, fmt.Errorf("unexpected request %T", req)
	}
}

func rangeConns(ctrl *gomock.Controller, server *rangeServer, n int) []*mocks.MockConn {
	conns := make([]*mocks.MockConn, n)
	for i := range conns {
		conns[i] = mocks.NewMockConn(ctrl)
		conns[i].EXPECT().Call(gomock.Any(), gomock.Any()).DoAndReturn(server.handle).AnyTimes()
		conns[i].EXPECT().Close(gomock.Any()).Return(nil).Times(1)
	}
	return conns
}

func TestEngineDownload_RoundTripPreservesByteOrder(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	size := 30*domain.MB + 77
	server := &rangeServer{object: patternedBytes(size)}
	session := newTestSession(ctrl)
	transport := mocks.NewMockTransport(ctrl)
	dialScript(transport, rangeConns(ctrl, server, 7)...)

	engine := NewEngine(testLogger(), transport, session)

	var emitted []int64
	progress := func(done, total int64) {
		req.Equal(int64(size), total)
		emitted = append(emitted, done)
	}

	var buf bytes.Buffer
	location := domain.ObjectLocation{DC: 1, ID: 424242, AccessHash: 77}
	err := engine.Download(context.Background(), location, int64(size), 20, &buf, progress)
	req.NoError(err)

	req.Equal(server.object, buf.Bytes())
	req.Len(emitted, 241)
	req.Equal(int64(size), emitted[len(emitted)-1])
}

func TestEngineDownload_SharesSplitAsEvenlyAsPossible(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	session := newTestSession(ctrl)
	transport := mocks.NewMockTransport(ctrl)
	server := &rangeServer{}
	dialScript(transport, rangeConns(ctrl, server, 3)...)

	engine := NewEngine(testLogger(), transport, session)

	plan := Plan{TotalSize: 7 * 128 * domain.KB, PartSize: 128 * domain.KB, PartCount: 7, Connections: 3}
	fetchers, err := engine.newFetchers(context.Background(), plan, domain.ObjectLocation{DC: 1, ID: 9})
	req.NoError(err)

	// Seven parts over three connections: the first one takes the spare.
	req.Equal(int32(3), fetchers[0].Remaining())
	req.Equal(int32(2), fetchers[1].Remaining())
	req.Equal(int32(2), fetchers[2].Remaining())

	engine.disconnectFetchers(context.Background(), fetchers)
}

func TestEngineDownload_EmptyObjectTouchesNothing(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	session := newTestSession(ctrl)
	// No Dial expectation: a zero-length download must never touch the wire.
	transport := mocks.NewMockTransport(ctrl)

	engine := NewEngine(testLogger(), transport, session)

	var buf bytes.Buffer
	err := engine.Download(context.Background(), domain.ObjectLocation{DC: 1, ID: 9}, 0, 5, &buf, nil)
	req.NoError(err)
	req.Zero(buf.Len())
}

func TestEngineDownload_FailingConnectionAbortsEverything(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	size := int64(150 * domain.MB)
	session := newTestSession(ctrl)
	transport := mocks.NewMockTransport(ctrl)

	healthy := func() *mocks.MockConn {
		conn := mocks.NewMockConn(ctrl)
		conn.EXPECT().
			Call(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, r any) (any, error) {
				if _, ok := r.(domain.BindSession); ok {
					return domain.SessionBound{DC: 1}, nil
				}
				return domain.FilePartData{Bytes: make([]byte, 256*domain.KB)}, nil
			}).
			AnyTimes()
		conn.EXPECT().Close(gomock.Any()).Return(nil).Times(1)
		return conn
	}

	broken := mocks.NewMockConn(ctrl)
	gomock.InOrder(
		broken.EXPECT().Call(gomock.Any(), gomock.Any()).Return(domain.SessionBound{DC: 1}, nil),
		broken.EXPECT().Call(gomock.Any(), gomock.Any()).Return(nil, fmt.Errorf("connection reset")),
	)
	broken.EXPECT().Close(gomock.Any()).Return(nil).Times(1)

	dialScript(transport, healthy(), broken, healthy())

	engine := NewEngine(testLogger(), transport, session)

	var buf bytes.Buffer
	err := engine.Download(context.Background(), domain.ObjectLocation{DC: 1, ID: 9}, size, 3, &buf, nil)
	req.ErrorIs(err, errors.ErrTransfer)

	// The failed round is never emitted, not even the healthy slices.
	req.Zero(buf.Len())
}

func TestEngineDownload_SinkFailureIsAnIOError(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	size := 256 * domain.KB
	server := &rangeServer{object: patternedBytes(size)}
	session := newTestSession(ctrl)
	transport := mocks.NewMockTransport(ctrl)
	dialScript(transport, rangeConns(ctrl, server, 1)...)

	engine := NewEngine(testLogger(), transport, session)

	err := engine.Download(context.Background(), domain.ObjectLocation{DC: 1, ID: 9}, int64(size), 1, failingWriter{}, nil)
	req.ErrorIs(err, errors.ErrIO)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, fmt.Errorf("sink full")
}
