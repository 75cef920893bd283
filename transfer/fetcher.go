package transfer

import (
	"context"
	"fmt"
	"log/slog"

	"transfer-lab/contract"
	"transfer-lab/domain"
	"transfer-lab/errors"
)

// Fetcher owns one connection and pulls its share of a striped download: the
// fetcher at ordinal i reads parts i, i+N, i+2N … as byte ranges. Unlike the
// Sender it does not pipeline; the download engine overlaps fetchers with
// each other instead.
type Fetcher struct {
	log       *slog.Logger
	conn      contract.Conn
	location  domain.ObjectLocation
	offset    int64
	stride    int64
	limit     int32
	remaining int32
}

func NewFetcher(log *slog.Logger, conn contract.Conn, location domain.ObjectLocation, plan Plan, ordinal int, remaining int32) *Fetcher {
	return &Fetcher{
		log:       log,
		conn:      conn,
		location:  location,
		offset:    int64(ordinal) * int64(plan.PartSize),
		stride:    int64(plan.Connections) * int64(plan.PartSize),
		limit:     plan.PartSize,
		remaining: remaining,
	}
}

// Next fetches this fetcher's next part and advances the byte offset by the
// stripe stride. Once the assigned share is exhausted it keeps returning a
// terminal nil payload.
func (f *Fetcher) Next(ctx context.Context) ([]byte, error) {
	if f.remaining <= 0 {
		return nil, nil
	}

	resp, err := f.conn.Call(ctx, domain.GetFilePart{Location: f.location, Offset: f.offset, Limit: f.limit})
	if err != nil {
		return nil, fmt.Errorf("fetch offset %d: %w", f.offset, err)
	}
	data, ok := resp.(domain.FilePartData)
	if !ok {
		return nil, fmt.Errorf("fetch offset %d: %w", f.offset, errors.ErrUnexpectedResponse)
	}

	f.remaining--
	f.offset += f.stride
	return data.Bytes, nil
}

func (f *Fetcher) Remaining() int32 {
	return f.remaining
}

// Disconnect tears the connection down. Safe on an unused fetcher.
func (f *Fetcher) Disconnect(ctx context.Context) error {
	return f.conn.Close(ctx)
}
