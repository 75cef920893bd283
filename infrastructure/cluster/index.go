package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"transfer-lab/domain"

	"github.com/blugelabs/bluge"
)

// ArchiveIndex is the full-text index over document names, kept in step with
// the catalog on every attach and delete. Queries are scoped to one channel.
type ArchiveIndex struct {
	log    *slog.Logger
	writer *bluge.Writer
}

func NewArchiveIndex(log *slog.Logger, path string) (*ArchiveIndex, error) {
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(path))
	if err != nil {
		return nil, fmt.Errorf("open index at %q: %w", path, err)
	}
	return &ArchiveIndex{log: log, writer: writer}, nil
}

// NewMemoryIndex keeps the index entirely in memory. Used by the in-process
// cluster and the tests.
func NewMemoryIndex(log *slog.Logger) (*ArchiveIndex, error) {
	writer, err := bluge.OpenWriter(bluge.InMemoryOnlyConfig())
	if err != nil {
		return nil, fmt.Errorf("open in-memory index: %w", err)
	}
	return &ArchiveIndex{log: log, writer: writer}, nil
}

func (a *ArchiveIndex) Add(doc domain.Document) error {
	entry := bluge.NewDocument(indexID(doc.Channel, doc.MessageID)).
		AddField(bluge.NewTextField("name", doc.Name)).
		AddField(bluge.NewKeywordField("channel", doc.Channel))
	return a.writer.Update(entry.ID(), entry)
}

func (a *ArchiveIndex) Remove(channel string, messageID int64) error {
	return a.writer.Delete(bluge.Identifier(indexID(channel, messageID)))
}

// Search returns the message IDs on channel whose document name matches the
// query, best match first.
func (a *ArchiveIndex) Search(ctx context.Context, channel, query string, limit int) ([]int64, error) {
	reader, err := a.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("open index reader: %w", err)
	}
	defer func() {
		if err := reader.Close(); err != nil {
			a.log.Warn("failed to close index reader", slog.String("error", err.Error()))
		}
	}()

	q := bluge.NewBooleanQuery().AddMust(
		bluge.NewMatchQuery(query).SetField("name"),
		bluge.NewTermQuery(channel).SetField("channel"),
	)

	matches, err := reader.Search(ctx, bluge.NewTopNSearch(limit, q))
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	var ids []int64
	match, err := matches.Next()
	for err == nil && match != nil {
		visitErr := match.VisitStoredFields(func(field string, value []byte) bool {
			if field != "_id" {
				return true
			}
			if id, ok := parseIndexID(string(value)); ok {
				ids = append(ids, id)
			}
			return true
		})
		if visitErr != nil {
			return nil, fmt.Errorf("read match: %w", visitErr)
		}
		match, err = matches.Next()
	}
	if err != nil {
		return nil, fmt.Errorf("iterate matches: %w", err)
	}
	return ids, nil
}

func (a *ArchiveIndex) Close() error {
	return a.writer.Close()
}

// indexID keys one document. Channels cannot contain ':', so the last colon
// always separates the message ID.
func indexID(channel string, messageID int64) string {
	return fmt.Sprintf("%s:%d", channel, messageID)
}

func parseIndexID(id string) (int64, bool) {
	cut := strings.LastIndexByte(id, ':')
	if cut < 0 {
		return 0, false
	}
	n, err := strconv.ParseInt(id[cut+1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
