package transfer

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"hash"
	"io"

	"transfer-lab/domain"
	"transfer-lab/errors"
)

// Upload streams src through the planned number of senders in strict
// round-robin order: part k always goes to sender k mod N, decided by the
// read loop alone and never by completion timing. The source is re-chunked
// to exact part-size boundaries regardless of how the underlying reader
// slices its data; the final part may be short. For small objects an MD5 of
// the full content is accumulated while reading and sealed into the
// returned reference.
func (e *Engine) Upload(ctx context.Context, src io.Reader, totalSize int64, maxConnections int, name string, progress ProgressFunc) (domain.FileReference, error) {
	plan, err := NewPlan(totalSize, maxConnections)
	if err != nil {
		return domain.FileReference{}, err
	}

	fileID := newFileID()

	var digest hash.Hash
	if !plan.IsLarge {
		digest = md5.New()
	}

	if plan.PartCount == 0 {
		// Zero-length object: nothing to send, no connections to open.
		return reference(fileID, name, plan, digest), nil
	}

	senders, err := e.newSenders(ctx, plan, fileID)
	if err != nil {
		return domain.FileReference{}, err
	}

	read := int64(0)
	buf := make([]byte, plan.PartSize)
	for part := int32(0); ; part++ {
		n, readErr := io.ReadFull(src, buf)
		if readErr == io.EOF {
			break
		}
		if readErr != nil && readErr != io.ErrUnexpectedEOF {
			e.disconnectSenders(ctx, senders)
			return domain.FileReference{}, fmt.Errorf("%w: read %q: %v", errors.ErrIO, name, readErr)
		}

		// The sender transmits asynchronously while buf is reused for the
		// next read, so each part gets its own copy.
		chunk := make([]byte, n)
		copy(chunk, buf[:n])
		if digest != nil {
			digest.Write(chunk)
		}

		if err := senders[int(part)%len(senders)].Next(ctx, chunk); err != nil {
			e.disconnectSenders(ctx, senders)
			return domain.FileReference{}, fmt.Errorf("%w: %v", errors.ErrTransfer, err)
		}

		read += int64(n)
		if progress != nil {
			progress(read, totalSize)
		}
		if n < len(buf) {
			// Short read: the final part is dispatched, stream exhausted.
			break
		}
	}

	var firstErr error
	for _, s := range senders {
		if err := s.Drain(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%w: %v", errors.ErrTransfer, err)
		}
	}
	e.disconnectSenders(ctx, senders)
	if firstErr != nil {
		return domain.FileReference{}, firstErr
	}

	e.log.Debug("Upload finished", "file_id", fileID, "parts", plan.PartCount, "connections", plan.Connections, "big", plan.IsLarge)
	return reference(fileID, name, plan, digest), nil
}

func (e *Engine) newSenders(ctx context.Context, plan Plan, fileID int64) ([]*Sender, error) {
	conns, err := e.broker.Connections(ctx, e.session.HomeDC(), plan.Connections)
	if err != nil {
		return nil, err
	}
	senders := make([]*Sender, len(conns))
	for i, conn := range conns {
		senders[i] = NewSender(e.log, conn, fileID, plan, i)
	}
	return senders, nil
}

// disconnectSenders tears every connection down. Close errors are logged and
// swallowed so they never mask the error that aborted the transfer.
func (e *Engine) disconnectSenders(ctx context.Context, senders []*Sender) {
	for _, s := range senders {
		if err := s.Disconnect(ctx); err != nil {
			e.log.Debug("Sender disconnect failed", "error", err)
		}
	}
}

func reference(fileID int64, name string, plan Plan, digest hash.Hash) domain.FileReference {
	ref := domain.FileReference{
		FileID: fileID,
		Parts:  plan.PartCount,
		Name:   name,
		IsBig:  plan.IsLarge,
	}
	if digest != nil {
		ref.MD5Hex = hex.EncodeToString(digest.Sum(nil))
	}
	return ref
}
