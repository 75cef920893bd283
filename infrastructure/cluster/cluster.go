package cluster

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"transfer-lab/auth"
	"transfer-lab/contract"
	"transfer-lab/domain"
	"transfer-lab/errors"
	"transfer-lab/infrastructure/tcpnet"
	"transfer-lab/moderation"
	"transfer-lab/observability"
	"transfer-lab/repositories"

	"github.com/dgraph-io/badger/v4"
)

type Config struct {
	// DCs is the number of data-centers, numbered 1..DCs.
	DCs int
	// Addrs maps a DC to its listen address. Unlisted DCs bind a loopback
	// ephemeral port, which is what the in-process cluster wants.
	Addrs map[int]string
	// Dir is the root of the on-disk stores. Empty keeps everything in
	// memory.
	Dir string
	// Secret is the cluster master secret every key and ticket derives from.
	Secret []byte
	// Signatures is the screening blocklist. Empty disables screening.
	Signatures [][]byte
	// Monitor receives the per-node counters when set.
	Monitor *observability.MonitoringManager
}

// Cluster assembles the data-center nodes of one deployment: a store, a
// catalog, an index and a TCP server per DC, all sharing the cluster secret.
type Cluster struct {
	log    *slog.Logger
	secret []byte
	dcs    map[int]*dataCenter
	count  int
}

type dataCenter struct {
	node     *Node
	server   *tcpnet.Server
	db       *badger.DB
	index    *ArchiveIndex
	catalog  *repositories.CatalogRepository
	sessions repositories.SessionRepository
}

func NewCluster(log *slog.Logger, cfg Config) (*Cluster, error) {
	if cfg.DCs < 1 {
		return nil, fmt.Errorf("a cluster needs at least one data-center, got %d", cfg.DCs)
	}
	if len(cfg.Secret) == 0 {
		return nil, fmt.Errorf("the cluster secret is required")
	}

	var screener *moderation.Screener
	if len(cfg.Signatures) > 0 {
		var err error
		if screener, err = moderation.NewScreener(cfg.Signatures); err != nil {
			return nil, fmt.Errorf("build screener: %w", err)
		}
	}

	c := &Cluster{log: log, secret: cfg.Secret, dcs: make(map[int]*dataCenter), count: cfg.DCs}
	for dc := 1; dc <= cfg.DCs; dc++ {
		d, err := newDataCenter(log, cfg, dc, screener, cfg.Secret)
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("data-center %d: %w", dc, err)
		}
		c.dcs[dc] = d
	}
	return c, nil
}

func newDataCenter(log *slog.Logger, cfg Config, dc int,
	screener *moderation.Screener, secret []byte) (*dataCenter, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR)
	if cfg.Dir != "" {
		opts = badger.DefaultOptions(filepath.Join(cfg.Dir, fmt.Sprintf("dc-%d", dc), "store")).
			WithLoggingLevel(badger.ERROR)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	index, err := openIndex(log, cfg, dc)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	catalog, err := repositories.NewCatalogRepository(db, log)
	if err != nil {
		_ = index.Close()
		_ = db.Close()
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	sessions := repositories.NewSessionRepository(db, log)
	node := NewNode(log, dc, secret,
		repositories.NewStagingRepository(db, log),
		repositories.NewBlobRepository(db, log),
		catalog,
		sessions,
		index,
		screener,
		cfg.Monitor,
	)

	addr, ok := cfg.Addrs[dc]
	if !ok {
		addr = "127.0.0.1:0"
	}
	return &dataCenter{
		node:     node,
		server:   tcpnet.NewServer(log, addr, node),
		db:       db,
		index:    index,
		catalog:  catalog,
		sessions: sessions,
	}, nil
}

func openIndex(log *slog.Logger, cfg Config, dc int) (*ArchiveIndex, error) {
	if cfg.Dir == "" {
		return NewMemoryIndex(log)
	}
	return NewArchiveIndex(log, filepath.Join(cfg.Dir, fmt.Sprintf("dc-%d", dc), "index"))
}

// Listen binds every data-center's address. Endpoints are known afterwards.
func (c *Cluster) Listen() error {
	for dc := 1; dc <= c.count; dc++ {
		if err := c.dcs[dc].server.Listen(); err != nil {
			return fmt.Errorf("data-center %d: %w", dc, err)
		}
	}
	return nil
}

// Workers returns the per-DC servers in DC order, ready for a supervisor.
func (c *Cluster) Workers() []contract.Worker {
	workers := make([]contract.Worker, 0, c.count)
	for dc := 1; dc <= c.count; dc++ {
		workers = append(workers, c.dcs[dc].server)
	}
	return workers
}

func (c *Cluster) Endpoints() map[int]domain.Endpoint {
	endpoints := make(map[int]domain.Endpoint, c.count)
	for dc := 1; dc <= c.count; dc++ {
		endpoints[dc] = domain.Endpoint{DC: dc, Addr: c.dcs[dc].server.Addr()}
	}
	return endpoints
}

// RegisterSession records the session on every data-center and returns the
// credential holding its home key. Call it after Listen so the endpoints in
// the credential are dialable.
func (c *Cluster) RegisterSession(id string, homeDC int) (SessionFile, error) {
	if _, ok := c.dcs[homeDC]; !ok {
		return SessionFile{}, fmt.Errorf("%w: %d", errors.ErrUnknownDC, homeDC)
	}
	record := repositories.SessionRecord{ID: id, HomeDC: homeDC, CreatedAt: time.Now().UTC()}
	for dc := 1; dc <= c.count; dc++ {
		if err := c.dcs[dc].sessions.Put(record); err != nil {
			return SessionFile{}, fmt.Errorf("register on data-center %d: %w", dc, err)
		}
	}
	return SessionFile{
		ID:        id,
		HomeDC:    homeDC,
		Endpoints: c.Endpoints(),
		Key:       auth.DeriveKey(c.secret, id, homeDC),
	}, nil
}

// DB hands out a data-center's raw store. The store inspector is the only
// intended caller.
func (c *Cluster) DB(dc int) (*badger.DB, error) {
	d, ok := c.dcs[dc]
	if !ok {
		return nil, fmt.Errorf("%w: %d", errors.ErrUnknownDC, dc)
	}
	return d.db, nil
}

// Stales reports the staged uploads older than cutoff on every data-center,
// keyed by DC. The janitor feeds on it.
func (c *Cluster) Stales(cutoff time.Time) (map[int][]repositories.StagedUpload, error) {
	stale := make(map[int][]repositories.StagedUpload)
	for dc := 1; dc <= c.count; dc++ {
		uploads, err := c.dcs[dc].node.staging.Stale(cutoff)
		if err != nil {
			return nil, fmt.Errorf("data-center %d: %w", dc, err)
		}
		if len(uploads) > 0 {
			stale[dc] = uploads
		}
	}
	return stale, nil
}

// DiscardStaged drops a staged upload on one data-center.
func (c *Cluster) DiscardStaged(dc int, fileID int64) error {
	d, ok := c.dcs[dc]
	if !ok {
		return fmt.Errorf("%w: %d", errors.ErrUnknownDC, dc)
	}
	return d.node.staging.Discard(fileID)
}

func (c *Cluster) Close() error {
	var errs []error
	for dc := 1; dc <= c.count; dc++ {
		d, ok := c.dcs[dc]
		if !ok {
			continue
		}
		if err := d.catalog.Close(); err != nil {
			errs = append(errs, fmt.Errorf("data-center %d catalog: %w", dc, err))
		}
		if err := d.index.Close(); err != nil {
			errs = append(errs, fmt.Errorf("data-center %d index: %w", dc, err))
		}
		if err := d.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("data-center %d store: %w", dc, err))
		}
	}
	return stderrors.Join(errs...)
}
