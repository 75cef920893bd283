package transfer

import (
	"context"
	"fmt"
	"log/slog"

	"transfer-lab/contract"
	"transfer-lab/domain"
	"transfer-lab/errors"
)

// Sender owns one connection and pushes parts over it. Parts are assigned by
// the upload ticker: the sender at ordinal i sends parts i, i+stride,
// i+2*stride and so on. At most one request is in flight per sender; Next
// overlaps that round trip with whatever the caller does in the meantime.
type Sender struct {
	log     *slog.Logger
	conn    contract.Conn
	fileID  int64
	index   int32
	stride  int32
	total   int32
	big     bool
	pending chan error
}

func NewSender(log *slog.Logger, conn contract.Conn, fileID int64, plan Plan, ordinal int) *Sender {
	return &Sender{
		log:    log,
		conn:   conn,
		fileID: fileID,
		index:  int32(ordinal),
		stride: int32(plan.Connections),
		total:  plan.PartCount,
		big:    plan.IsLarge,
	}
}

// Next awaits the previous in-flight part, then fires the request for this
// one and returns without waiting for it. The caller keeps feeding the other
// senders while the network round trip runs.
func (s *Sender) Next(ctx context.Context, part []byte) error {
	if err := s.Drain(ctx); err != nil {
		return err
	}

	index := s.index
	s.index += s.stride

	pending := make(chan error, 1)
	s.pending = pending
	go func() {
		pending <- s.save(ctx, index, part)
	}()
	return nil
}

// Drain awaits the in-flight request, if any, and surfaces its result.
func (s *Sender) Drain(ctx context.Context) error {
	if s.pending == nil {
		return nil
	}
	defer func() { s.pending = nil }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-s.pending:
		return err
	}
}

// Disconnect awaits any in-flight request and tears the connection down.
// Safe to call on a sender that never sent anything.
func (s *Sender) Disconnect(ctx context.Context) error {
	if err := s.Drain(ctx); err != nil {
		s.log.Debug("Pending part failed during disconnect", "error", err)
	}
	return s.conn.Close(ctx)
}

func (s *Sender) save(ctx context.Context, index int32, part []byte) error {
	var req any
	if s.big {
		req = domain.SaveBigFilePart{FileID: s.fileID, Part: index, TotalParts: s.total, Bytes: part}
	} else {
		req = domain.SaveFilePart{FileID: s.fileID, Part: index, Bytes: part}
	}

	resp, err := s.conn.Call(ctx, req)
	if err != nil {
		return fmt.Errorf("save part %d: %w", index, err)
	}
	saved, ok := resp.(domain.PartSaved)
	if !ok {
		return fmt.Errorf("save part %d: %w", index, errors.ErrUnexpectedResponse)
	}
	if !saved.OK {
		return fmt.Errorf("save part %d: %w", index, errors.ErrPartRejected)
	}
	return nil
}
