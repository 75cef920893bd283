package transfer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"transfer-lab/domain"
	"transfer-lab/errors"
	"transfer-lab/mocks"
)

func TestFetcher_WalksItsStripeInByteOffsets(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	conn := mocks.NewMockConn(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	plan := Plan{TotalSize: 30 * domain.MB, PartSize: 128 * domain.KB, PartCount: 240, Connections: 5}
	location := domain.ObjectLocation{DC: 2, ID: 99, AccessHash: 1234}

	var offsets []int64
	conn.EXPECT().
		Call(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, r any) (any, error) {
			get, ok := r.(domain.GetFilePart)
			req.True(ok)
			req.Equal(location, get.Location)
			req.Equal(int32(128*domain.KB), get.Limit)
			offsets = append(offsets, get.Offset)
			return domain.FilePartData{Bytes: []byte("payload")}, nil
		}).
		Times(2)

	f := NewFetcher(logger, conn, location, plan, 2, 2)
	ctx := context.Background()

	part, err := f.Next(ctx)
	req.NoError(err)
	req.Equal([]byte("payload"), part)
	req.Equal(int32(1), f.Remaining())

	part, err = f.Next(ctx)
	req.NoError(err)
	req.Equal([]byte("payload"), part)
	req.Equal(int32(0), f.Remaining())

	// Ordinal 2 starts two parts in and advances five parts per round.
	stride := int64(5 * 128 * domain.KB)
	req.Equal([]int64{2 * 128 * domain.KB, 2*128*domain.KB + stride}, offsets)
}

func TestFetcher_ExhaustedShareKeepsReturningNil(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	conn := mocks.NewMockConn(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	plan := Plan{TotalSize: domain.MB, PartSize: 128 * domain.KB, PartCount: 8, Connections: 8}

	// No Call is ever issued for an empty share.
	f := NewFetcher(logger, conn, domain.ObjectLocation{DC: 1, ID: 5}, plan, 3, 0)

	for range 3 {
		part, err := f.Next(context.Background())
		req.NoError(err)
		req.Nil(part)
	}
}

func TestFetcher_ErrorLeavesTheShareUntouched(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	conn := mocks.NewMockConn(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	plan := Plan{TotalSize: domain.MB, PartSize: 128 * domain.KB, PartCount: 8, Connections: 2}

	conn.EXPECT().Call(gomock.Any(), gomock.Any()).Return(nil, fmt.Errorf("connection reset"))

	f := NewFetcher(logger, conn, domain.ObjectLocation{DC: 1, ID: 5}, plan, 0, 4)

	_, err := f.Next(context.Background())
	req.Error(err)
	req.Contains(err.Error(), "fetch offset 0")
	req.Equal(int32(4), f.Remaining())
}

func TestFetcher_UnexpectedResponse(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	conn := mocks.NewMockConn(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	plan := Plan{TotalSize: domain.MB, PartSize: 128 * domain.KB, PartCount: 8, Connections: 2}

	conn.EXPECT().Call(gomock.Any(), gomock.Any()).Return(domain.PartSaved{OK: true}, nil)

	f := NewFetcher(logger, conn, domain.ObjectLocation{DC: 1, ID: 5}, plan, 0, 4)

	_, err := f.Next(context.Background())
	req.ErrorIs(err, errors.ErrUnexpectedResponse)
}

func TestFetcher_DisconnectClosesTheConnection(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	conn := mocks.NewMockConn(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	plan := Plan{TotalSize: domain.MB, PartSize: 128 * domain.KB, PartCount: 8, Connections: 2}

	conn.EXPECT().Close(gomock.Any()).Return(nil).Times(1)

	f := NewFetcher(logger, conn, domain.ObjectLocation{DC: 1, ID: 5}, plan, 0, 0)
	req.NoError(f.Disconnect(context.Background()))
}
