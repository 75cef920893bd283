package cluster

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"reflect"
	"time"

	"transfer-lab/auth"
	"transfer-lab/domain"
	"transfer-lab/domain/mimetypes"
	"transfer-lab/errors"
	"transfer-lab/infrastructure/tcpnet"
	"transfer-lab/moderation"
	"transfer-lab/observability"
	"transfer-lab/repositories"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Requests a connection may issue before it is bound to a session.
var publicRequests = map[reflect.Type]struct{}{
	reflect.TypeOf(domain.BindSession{}):         {},
	reflect.TypeOf(domain.ImportAuthorization{}): {},
}

func isPublicRequest(req any) bool {
	_, ok := publicRequests[reflect.TypeOf(req)]
	return ok
}

// Node is one data-center. It stages uploaded parts, commits them into
// immutable blobs on attach, serves byte ranges for downloads and keeps the
// per-channel catalog with its search index.
//
// Every node derives session keys from the same cluster secret, which is
// what makes an authorization exported by one node verifiable by another.
type Node struct {
	log      *slog.Logger
	dc       int
	secret   []byte
	staging  repositories.IStagingRepository
	blobs    repositories.IBlobRepository
	catalog  repositories.ICatalogRepository
	sessions repositories.ISessionRepository
	index    *ArchiveIndex
	screener *moderation.Screener
	monitor  *observability.MonitoringManager
}

func NewNode(log *slog.Logger, dc int, secret []byte,
	staging repositories.IStagingRepository,
	blobs repositories.IBlobRepository,
	catalog repositories.ICatalogRepository,
	sessions repositories.ISessionRepository,
	index *ArchiveIndex,
	screener *moderation.Screener,
	monitor *observability.MonitoringManager) *Node {
	return &Node{
		log:      log.With(slog.Int("dc", dc)),
		dc:       dc,
		secret:   secret,
		staging:  staging,
		blobs:    blobs,
		catalog:  catalog,
		sessions: sessions,
		index:    index,
		screener: screener,
		monitor:  monitor,
	}
}

func (n *Node) DC() int {
	return n.dc
}

// Serve dispatches one decoded request. Everything except the two
// authentication requests needs a bound session first.
func (n *Node) Serve(ctx context.Context, state *tcpnet.ConnState, req any) (any, error) {
	resp, err := n.dispatch(ctx, state, req)
	if err != nil && n.monitor != nil {
		n.monitor.IncrErrorCount()
	}
	return resp, err
}

func (n *Node) dispatch(ctx context.Context, state *tcpnet.ConnState, req any) (any, error) {
	if _, bound := state.Session(); !bound && !isPublicRequest(req) {
		return nil, errors.ErrNotBound
	}
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}

	switch r := req.(type) {
	case domain.BindSession:
		return n.bindSession(state, r)
	case domain.ImportAuthorization:
		return n.importAuthorization(state, r)
	case domain.ExportAuthorization:
		return n.exportAuthorization(state, r)
	case domain.SaveFilePart:
		return n.savePart(r.FileID, r.Part, r.Bytes)
	case domain.SaveBigFilePart:
		if r.Part >= r.TotalParts {
			return nil, fmt.Errorf("%w: part %d outside declared count %d",
				errors.ErrInvalidPayload, r.Part, r.TotalParts)
		}
		return n.savePart(r.FileID, r.Part, r.Bytes)
	case domain.GetFilePart:
		return n.getFilePart(r)
	case domain.SendMedia:
		return n.sendMedia(r)
	case domain.ListDocuments:
		return n.listDocuments(r.Channel)
	case domain.SearchDocuments:
		return n.searchDocuments(ctx, r)
	case domain.DeleteDocuments:
		return n.deleteDocuments(r)
	default:
		return nil, fmt.Errorf("%w: unsupported request %T", errors.ErrInvalidPayload, req)
	}
}

func (n *Node) bindSession(state *tcpnet.ConnState, req domain.BindSession) (any, error) {
	if _, err := n.sessions.Get(req.Session); err != nil {
		return nil, err
	}
	key := auth.DeriveKey(n.secret, req.Session, n.dc)
	if key.Digest() != req.KeyDigest {
		return nil, fmt.Errorf("%w: key digest mismatch", errors.ErrNotBound)
	}
	state.Bind(req.Session)
	n.log.Debug("session bound", slog.String("session", req.Session))
	return domain.SessionBound{DC: n.dc}, nil
}

func (n *Node) importAuthorization(state *tcpnet.ConnState, req domain.ImportAuthorization) (any, error) {
	claims, err := auth.VerifyTicket(n.secret, req.Ticket, n.dc)
	if err != nil {
		return nil, err
	}
	if _, err := n.sessions.Get(claims.Session); err != nil {
		return nil, err
	}
	key := auth.DeriveKey(n.secret, claims.Session, n.dc)
	state.Bind(claims.Session)
	n.log.Debug("authorization imported", slog.String("session", claims.Session))
	return domain.AuthorizationImported{Key: key}, nil
}

func (n *Node) exportAuthorization(state *tcpnet.ConnState, req domain.ExportAuthorization) (any, error) {
	session, _ := state.Session()
	token, err := auth.IssueTicket(n.secret, session, req.TargetDC)
	if err != nil {
		return nil, fmt.Errorf("issue ticket: %w", err)
	}
	return domain.AuthorizationExported{
		Ticket: domain.AuthTicket{TargetDC: req.TargetDC, Token: token},
	}, nil
}

// savePart stages one part. Re-sending an index overwrites it, so a client
// retry is harmless.
func (n *Node) savePart(fileID int64, part int32, data []byte) (any, error) {
	if err := n.staging.StorePart(fileID, part, data); err != nil {
		return nil, fmt.Errorf("stage part %d of %d: %w", part, fileID, err)
	}
	if n.monitor != nil {
		n.monitor.IncrPartUp(uint64(len(data)))
	}
	return domain.PartSaved{OK: true}, nil
}

// getFilePart serves [offset, offset+limit) of a committed object. A wrong
// access hash is indistinguishable from a missing object on purpose.
func (n *Node) getFilePart(req domain.GetFilePart) (any, error) {
	meta, err := n.blobs.Meta(req.Location.ID)
	if err != nil {
		return nil, err
	}
	if meta.AccessHash != req.Location.AccessHash {
		return nil, fmt.Errorf("%w: %d", errors.ErrUnknownObject, req.Location.ID)
	}
	data, err := n.blobs.ReadRange(req.Location.ID, req.Offset, req.Limit)
	if err != nil {
		return nil, err
	}
	if n.monitor != nil {
		n.monitor.IncrPartDown(uint64(len(data)))
	}
	return domain.FilePartData{Bytes: data}, nil
}

// sendMedia commits the staged parts of a reference into an immutable blob
// and posts the document to the channel. The staged parts are walked exactly
// once: each part is appended as a blob block, fed to the checksum for small
// objects and to the signature screening. Any failure discards the partial
// blob so a rejected commit leaves nothing behind.
func (n *Node) sendMedia(req domain.SendMedia) (any, error) {
	objectID := req.Ref.FileID
	accessHash := newAccessHash()

	if err := n.assembleBlob(req, objectID, accessHash); err != nil {
		if delErr := n.blobs.Delete(objectID); delErr != nil {
			n.log.Warn("failed to discard partial blob",
				slog.Int64("object", objectID), slog.String("error", delErr.Error()))
		}
		return nil, err
	}

	messageID, err := n.catalog.NextMessageID()
	if err != nil {
		return nil, fmt.Errorf("allocate message id: %w", err)
	}
	doc := domain.Document{
		MessageID: messageID,
		Channel:   req.Channel,
		Name:      req.Ref.Name,
		Caption:   req.Caption,
		Mimetype:  req.Mimetype,
		Kind:      domain.AttachmentKind(mimetypes.Kind(req.Mimetype)),
		Size:      req.Size,
		Date:      time.Now().UTC(),
		Location:  domain.ObjectLocation{DC: n.dc, ID: objectID, AccessHash: accessHash},
	}
	if err := n.catalog.Store(doc); err != nil {
		return nil, fmt.Errorf("store document: %w", err)
	}
	if err := n.index.Add(doc); err != nil {
		return nil, fmt.Errorf("index document: %w", err)
	}

	if err := n.staging.Discard(req.Ref.FileID); err != nil {
		n.log.Warn("failed to discard staged parts",
			slog.Int64("file", req.Ref.FileID), slog.String("error", err.Error()))
	}

	if n.monitor != nil {
		n.monitor.IncrCommits()
	}
	n.log.Info("media posted",
		slog.String("channel", req.Channel),
		slog.Int64("message", messageID),
		slog.String("name", doc.Name),
		slog.Int64("size", doc.Size))
	return domain.MediaPosted{Document: doc}, nil
}

func (n *Node) assembleBlob(req domain.SendMedia, objectID, accessHash int64) error {
	var (
		sum       = md5.New()
		scan      *moderation.Scan
		blockSize int32
		next      int32
		total     int64
	)
	if n.screener != nil && !req.Ref.IsBig {
		scan = n.screener.NewScan()
	}

	if req.Ref.Parts > 0 {
		meta, err := n.staging.Meta(req.Ref.FileID)
		if err != nil {
			return err
		}
		if meta.Parts != req.Ref.Parts {
			return fmt.Errorf("%w: staged %d of %d parts",
				errors.ErrStagedPartMissing, meta.Parts, req.Ref.Parts)
		}

		err = n.staging.ForEachPart(req.Ref.FileID, func(part int32, data []byte) error {
			if part != next {
				return fmt.Errorf("%w: part %d", errors.ErrStagedPartMissing, next)
			}
			next++
			if blockSize == 0 {
				blockSize = int32(len(data))
			}
			total += int64(len(data))

			if !req.Ref.IsBig {
				sum.Write(data)
			}
			if scan != nil && scan.Feed(data) {
				return fmt.Errorf("%w: %q", errors.ErrScreeningRejected, req.Ref.Name)
			}
			return n.blobs.AppendBlock(objectID, part, data)
		})
		if err != nil {
			return err
		}
	}

	if total != req.Size {
		return fmt.Errorf("%w: staged %d bytes, declared %d",
			errors.ErrStagedPartMissing, total, req.Size)
	}
	if !req.Ref.IsBig {
		if digest := hex.EncodeToString(sum.Sum(nil)); digest != req.Ref.MD5Hex {
			return fmt.Errorf("%w: got %s, declared %s",
				errors.ErrChecksumMismatch, digest, req.Ref.MD5Hex)
		}
	}

	return n.blobs.Create(repositories.BlobMeta{
		ObjectID:   objectID,
		AccessHash: accessHash,
		Size:       req.Size,
		BlockSize:  blockSize,
		Blocks:     req.Ref.Parts,
		CreatedAt:  time.Now().UTC(),
	})
}

// listDocuments returns the channel's documents in posting order. A channel
// exists exactly as long as it has documents.
func (n *Node) listDocuments(channel string) (any, error) {
	docs, err := n.catalog.List(channel)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownChannel, channel)
	}
	return domain.DocumentList{Documents: docs}, nil
}

func (n *Node) searchDocuments(ctx context.Context, req domain.SearchDocuments) (any, error) {
	ids, err := n.index.Search(ctx, req.Channel, req.Query, req.Limit)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	docs := make([]domain.Document, 0, len(ids))
	for _, id := range ids {
		doc, err := n.catalog.Get(req.Channel, id)
		if err != nil {
			// The index can briefly trail a delete.
			if stderrors.Is(err, errors.ErrUnknownObject) {
				continue
			}
			return nil, err
		}
		docs = append(docs, doc)
	}
	return domain.DocumentList{Documents: docs}, nil
}

// deleteDocuments removes messages and their blobs. Message IDs that do not
// exist on the channel are skipped, mirroring the idempotency of savePart.
func (n *Node) deleteDocuments(req domain.DeleteDocuments) (any, error) {
	docs, err := n.catalog.List(req.Channel)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownChannel, req.Channel)
	}

	byID := make(map[int64]domain.Document, len(docs))
	for _, doc := range docs {
		byID[doc.MessageID] = doc
	}

	deleted := 0
	for _, id := range req.MessageIDs {
		doc, ok := byID[id]
		if !ok {
			continue
		}
		if err := n.blobs.Delete(doc.Location.ID); err != nil {
			return nil, fmt.Errorf("delete blob %d: %w", doc.Location.ID, err)
		}
		if err := n.index.Remove(req.Channel, id); err != nil {
			return nil, fmt.Errorf("unindex message %d: %w", id, err)
		}
		if err := n.catalog.Delete(req.Channel, id); err != nil {
			return nil, fmt.Errorf("delete message %d: %w", id, err)
		}
		deleted++
	}

	n.log.Info("documents deleted",
		slog.String("channel", req.Channel), slog.Int("count", deleted))
	return domain.DocumentsDeleted{Deleted: deleted}, nil
}

func newAccessHash() int64 {
	for {
		if v := rand.Int64(); v != 0 {
			return v
		}
	}
}
