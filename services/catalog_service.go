package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"transfer-lab/contract"
	"transfer-lab/domain"
	"transfer-lab/domain/event"
	"transfer-lab/errors"
	"transfer-lab/transfer"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// archivePattern matches "name.7z" and the "name.7z.NNN" parts of a split
// series. Anything else is a plain document and never groups.
var archivePattern = regexp.MustCompile(`^(.+?)\.7z(?:\.(\d+))?$`)

type ICatalogService interface {
	Attach(ctx context.Context, channel string, ref domain.FileReference, size int64, mime string, mode domain.CaptionMode) (domain.Document, error)
	Documents(ctx context.Context, channel string) ([]domain.Document, error)
	Archives(ctx context.Context, channel string) ([]domain.Archive, error)
	SearchArchives(ctx context.Context, channel, query string, limit int) ([]domain.Document, error)
	DeleteArchive(ctx context.Context, channel, name string) (int, error)
	DeleteDocuments(ctx context.Context, channel string, messageIDs []int64) (int, error)
}

// CatalogService drives the channel catalog over short-lived control
// connections to the session's home data-center. The broker underneath
// reuses the cached keys, so repeated calls only pay the dial.
type CatalogService struct {
	log     *slog.Logger
	session contract.Session
	broker  *transfer.Broker
	events  contract.EventSink
}

func NewCatalogService(log *slog.Logger, transport contract.Transport,
	session contract.Session, events contract.EventSink) *CatalogService {
	return &CatalogService{
		log:     log,
		session: session,
		broker:  transfer.NewBroker(log, transport, session),
		events:  events,
	}
}

// Attach posts an uploaded reference to a channel, with the caption built
// according to mode.
func (s *CatalogService) Attach(ctx context.Context, channel string, ref domain.FileReference,
	size int64, mime string, mode domain.CaptionMode) (domain.Document, error) {
	resp, err := s.call(ctx, domain.SendMedia{
		Channel:  channel,
		Ref:      ref,
		Size:     size,
		Mimetype: mime,
		Caption:  buildCaption(mode, ref.Name, size, mime),
	})
	if err != nil {
		return domain.Document{}, err
	}
	posted, ok := resp.(domain.MediaPosted)
	if !ok {
		return domain.Document{}, fmt.Errorf("attach: %w", errors.ErrUnexpectedResponse)
	}

	if s.events != nil {
		e := event.MediaAttached{
			ID:      uuid.New(),
			Channel: channel,
			Name:    ref.Name,
			Size:    size,
			At:      time.Now(),
		}
		if err := s.events.Consume(ctx, e); err != nil {
			s.log.Warn("failed to publish attach event", slog.String("error", err.Error()))
		}
	}
	return posted.Document, nil
}

// Documents lists a channel, oldest first. A channel nobody has posted to is
// just empty from the caller's point of view.
func (s *CatalogService) Documents(ctx context.Context, channel string) ([]domain.Document, error) {
	resp, err := s.call(ctx, domain.ListDocuments{Channel: channel})
	if stderrors.Is(err, errors.ErrUnknownChannel) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	list, ok := resp.(domain.DocumentList)
	if !ok {
		return nil, fmt.Errorf("list documents: %w", errors.ErrUnexpectedResponse)
	}
	return list.Documents, nil
}

// Archives groups a channel's split archives: "name.7z" alone or the
// "name.7z.001 … name.7z.NNN" series, parts in numeric order, the group
// carrying the newest posting date. Documents that are not archives are not
// listed here.
func (s *CatalogService) Archives(ctx context.Context, channel string) ([]domain.Archive, error) {
	docs, err := s.Documents(ctx, channel)
	if err != nil {
		return nil, err
	}

	matching := lo.Filter(docs, func(doc domain.Document, _ int) bool {
		return archivePattern.MatchString(doc.Name)
	})
	groups := lo.GroupBy(matching, func(doc domain.Document) string {
		return archivePattern.FindStringSubmatch(doc.Name)[1]
	})

	archives := make([]domain.Archive, 0, len(groups))
	for name, members := range groups {
		sort.Slice(members, func(i, j int) bool {
			return archivePartNumber(members[i].Name) < archivePartNumber(members[j].Name)
		})
		archive := domain.Archive{Name: name, Documents: members}
		for _, doc := range members {
			archive.TotalSize += doc.Size
			if doc.Date.After(archive.Date) {
				archive.Date = doc.Date
			}
		}
		archives = append(archives, archive)
	}
	sort.Slice(archives, func(i, j int) bool { return archives[i].Name < archives[j].Name })
	return archives, nil
}

func (s *CatalogService) SearchArchives(ctx context.Context, channel, query string, limit int) ([]domain.Document, error) {
	resp, err := s.call(ctx, domain.SearchDocuments{Channel: channel, Query: query, Limit: limit})
	if err != nil {
		return nil, err
	}
	list, ok := resp.(domain.DocumentList)
	if !ok {
		return nil, fmt.Errorf("search documents: %w", errors.ErrUnexpectedResponse)
	}
	return list.Documents, nil
}

// DeleteArchive removes every message and blob of the named archive group.
func (s *CatalogService) DeleteArchive(ctx context.Context, channel, name string) (int, error) {
	archives, err := s.Archives(ctx, channel)
	if err != nil {
		return 0, err
	}
	archive, found := lo.Find(archives, func(a domain.Archive) bool { return a.Name == name })
	if !found {
		return 0, fmt.Errorf("%w: archive %q", errors.ErrUnknownObject, name)
	}

	ids := lo.Map(archive.Documents, func(doc domain.Document, _ int) int64 { return doc.MessageID })
	return s.DeleteDocuments(ctx, channel, ids)
}

func (s *CatalogService) DeleteDocuments(ctx context.Context, channel string, messageIDs []int64) (int, error) {
	resp, err := s.call(ctx, domain.DeleteDocuments{Channel: channel, MessageIDs: messageIDs})
	if err != nil {
		return 0, err
	}
	deleted, ok := resp.(domain.DocumentsDeleted)
	if !ok {
		return 0, fmt.Errorf("delete documents: %w", errors.ErrUnexpectedResponse)
	}
	return deleted.Deleted, nil
}

// call runs one request on a fresh bound connection to the home data-center.
func (s *CatalogService) call(ctx context.Context, req any) (any, error) {
	conns, err := s.broker.Connections(ctx, s.session.HomeDC(), 1)
	if err != nil {
		return nil, err
	}
	conn := conns[0]
	defer func() {
		if err := conn.Close(ctx); err != nil {
			s.log.Debug("failed to close control connection", slog.String("error", err.Error()))
		}
	}()
	return conn.Call(ctx, req)
}

func archivePartNumber(name string) int {
	match := archivePattern.FindStringSubmatch(name)
	if match == nil || match[2] == "" {
		return 0
	}
	n, _ := strconv.Atoi(match[2])
	return n
}

func buildCaption(mode domain.CaptionMode, name string, size int64, mime string) string {
	switch mode {
	case domain.CaptionNone:
		return ""
	case domain.CaptionMinimal:
		return name
	case domain.CaptionDetailed:
		var b strings.Builder
		fmt.Fprintf(&b, "%s\n", name)
		fmt.Fprintf(&b, "Size: %s\n", humanize.IBytes(uint64(size)))
		fmt.Fprintf(&b, "Type: %s\n", mime)
		fmt.Fprintf(&b, "Uploaded: %s", time.Now().UTC().Format("2006-01-02 15:04"))
		return b.String()
	default:
		return name
	}
}
