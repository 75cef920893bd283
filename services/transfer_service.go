package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"transfer-lab/contract"
	"transfer-lab/domain"
	"transfer-lab/domain/event"
	"transfer-lab/errors"
	"transfer-lab/transfer"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

type ITransferService interface {
	UploadObject(ctx context.Context, cmd domain.UploadCommand, onProgress transfer.ProgressFunc) (domain.FileReference, int64, string, error)
	DownloadObject(ctx context.Context, cmd domain.DownloadCommand, sink io.Writer, onProgress transfer.ProgressFunc) error
}

// TransferService fronts the striped engine with local file handling:
// stat, mimetype sniffing, progress plumbing and transfer lifecycle events.
type TransferService struct {
	log    *slog.Logger
	engine *transfer.Engine
	events contract.EventSink
}

func NewTransferService(log *slog.Logger, engine *transfer.Engine, events contract.EventSink) *TransferService {
	return &TransferService{log: log, engine: engine, events: events}
}

// UploadObject pushes the file at cmd.Path to the session's home
// data-center and returns the reference to attach, the object size and the
// sniffed mimetype.
func (s *TransferService) UploadObject(ctx context.Context, cmd domain.UploadCommand,
	onProgress transfer.ProgressFunc) (domain.FileReference, int64, string, error) {
	if err := validate.Struct(cmd); err != nil {
		return domain.FileReference{}, 0, "", fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}

	info, err := os.Stat(cmd.Path)
	if err != nil {
		return domain.FileReference{}, 0, "", fmt.Errorf("%w: stat %q: %v", errors.ErrIO, cmd.Path, err)
	}
	if info.IsDir() {
		return domain.FileReference{}, 0, "", fmt.Errorf("%w: %q is a directory", errors.ErrIO, cmd.Path)
	}

	mime := sniffMimetype(s.log, cmd.Path)

	src, err := os.Open(cmd.Path)
	if err != nil {
		return domain.FileReference{}, 0, "", fmt.Errorf("%w: open %q: %v", errors.ErrIO, cmd.Path, err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			s.log.Warn("failed to close source file", slog.String("path", cmd.Path), slog.String("error", err.Error()))
		}
	}()

	name := filepath.Base(cmd.Path)
	transferID := uuid.New()
	started := time.Now()
	s.publish(ctx, event.TransferStarted{
		ID:          transferID,
		Direction:   domain.DirectionUpload,
		Name:        name,
		Size:        info.Size(),
		Connections: cmd.MaxConnections,
		At:          started,
	})

	ref, err := s.engine.Upload(ctx, src, info.Size(), cmd.MaxConnections, name,
		s.trackParts(ctx, transferID, domain.DirectionUpload, onProgress))
	if err != nil {
		s.publish(ctx, event.TransferFailed{
			ID:        transferID,
			Direction: domain.DirectionUpload,
			Name:      name,
			Reason:    err.Error(),
			At:        time.Now(),
		})
		return domain.FileReference{}, 0, "", err
	}

	s.publish(ctx, event.TransferCompleted{
		ID:        transferID,
		Direction: domain.DirectionUpload,
		Name:      name,
		Bytes:     info.Size(),
		Duration:  time.Since(started),
		At:        time.Now(),
	})
	return ref, info.Size(), mime, nil
}

// DownloadObject streams a committed object into sink.
func (s *TransferService) DownloadObject(ctx context.Context, cmd domain.DownloadCommand,
	sink io.Writer, onProgress transfer.ProgressFunc) error {
	if err := validate.Struct(cmd); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}

	transferID := uuid.New()
	name := fmt.Sprintf("object-%d", cmd.Location.ID)
	started := time.Now()
	s.publish(ctx, event.TransferStarted{
		ID:          transferID,
		Direction:   domain.DirectionDownload,
		Name:        name,
		Size:        cmd.Size,
		Connections: cmd.MaxConnections,
		At:          started,
	})

	err := s.engine.Download(ctx, cmd.Location, cmd.Size, cmd.MaxConnections, sink,
		s.trackParts(ctx, transferID, domain.DirectionDownload, onProgress))
	if err != nil {
		s.publish(ctx, event.TransferFailed{
			ID:        transferID,
			Direction: domain.DirectionDownload,
			Name:      name,
			Reason:    err.Error(),
			At:        time.Now(),
		})
		return err
	}

	s.publish(ctx, event.TransferCompleted{
		ID:        transferID,
		Direction: domain.DirectionDownload,
		Name:      name,
		Bytes:     cmd.Size,
		Duration:  time.Since(started),
		At:        time.Now(),
	})
	return nil
}

// trackParts layers part events over the caller's progress callback. The
// engines report from the orchestrating goroutine only, so the delta
// bookkeeping needs no lock.
func (s *TransferService) trackParts(ctx context.Context, id domain.TransferID,
	direction domain.Direction, onProgress transfer.ProgressFunc) transfer.ProgressFunc {
	var prev int64
	return func(transferred, total int64) {
		delta := transferred - prev
		prev = transferred
		if direction == domain.DirectionUpload {
			s.publish(ctx, event.PartSent{
				ID: id, Bytes: delta, Transferred: transferred, Total: total, At: time.Now(),
			})
		} else {
			s.publish(ctx, event.PartFetched{
				ID: id, Bytes: delta, Transferred: transferred, Total: total, At: time.Now(),
			})
		}
		if onProgress != nil {
			onProgress(transferred, total)
		}
	}
}

func (s *TransferService) publish(ctx context.Context, e event.DomainEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Consume(ctx, e); err != nil {
		s.log.Warn("failed to publish transfer event", slog.String("error", err.Error()))
	}
}

// sniffMimetype never fails an upload: an unreadable header falls back to
// the generic binary type and the transfer itself will surface real I/O
// problems.
func sniffMimetype(log *slog.Logger, path string) string {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		log.Warn("mimetype sniff failed", slog.String("path", path), slog.String("error", err.Error()))
		return "application/octet-stream"
	}
	return mtype.String()
}
