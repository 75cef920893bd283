package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"transfer-lab/contract"
	"transfer-lab/domain"
	"transfer-lab/errors"
)

// Broker turns the single primary session into as many independently
// authenticated connections as a transfer needs. The first connection to the
// home data-center reuses the session's own key; any other connection either
// binds a key the broker has already cached for that data-center or runs the
// export/import exchange once and caches the result.
type Broker struct {
	log       *slog.Logger
	transport contract.Transport
	session   contract.Session

	mu   sync.Mutex
	keys map[int]domain.AuthKey
}

func NewBroker(log *slog.Logger, transport contract.Transport, session contract.Session) *Broker {
	return &Broker{
		log:       log,
		transport: transport,
		session:   session,
		keys:      map[int]domain.AuthKey{session.HomeDC(): session.AuthKey()},
	}
}

// Connections dials n authenticated connections to dc concurrently. On any
// failure every connection already opened is torn down and the whole setup
// fails; a transfer never starts on a partial stripe.
func (b *Broker) Connections(ctx context.Context, dc, n int) ([]contract.Conn, error) {
	conns := make([]contract.Conn, n)

	g, gctx := errgroup.WithContext(ctx)
	for i := range conns {
		g.Go(func() error {
			conn, err := b.connect(gctx, dc)
			if err != nil {
				return err
			}
			conns[i] = conn
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, conn := range conns {
			if conn == nil {
				continue
			}
			if closeErr := conn.Close(ctx); closeErr != nil {
				b.log.Debug("Closing connection after failed setup", "error", closeErr)
			}
		}
		return nil, fmt.Errorf("%w: %v", errors.ErrSetup, err)
	}
	return conns, nil
}

func (b *Broker) connect(ctx context.Context, dc int) (contract.Conn, error) {
	ep, err := b.session.Endpoint(dc)
	if err != nil {
		return nil, err
	}
	conn, err := b.transport.Dial(ctx, ep)
	if err != nil {
		return nil, fmt.Errorf("dial dc %d: %w", dc, err)
	}
	if err := b.authenticate(ctx, conn, dc); err != nil {
		_ = conn.Close(ctx)
		return nil, err
	}
	return conn, nil
}

// authenticate binds a cached key when the broker holds one for dc,
// otherwise runs the export/import exchange and caches the imported key.
// Two connections racing on a fresh dc may both import; the derived key is
// identical, so the duplicate exchange is harmless.
func (b *Broker) authenticate(ctx context.Context, conn contract.Conn, dc int) error {
	if key, ok := b.cachedKey(dc); ok {
		return b.bind(ctx, conn, key)
	}

	ticket, err := b.session.Export(ctx, dc)
	if err != nil {
		return fmt.Errorf("export authorization for dc %d: %w", dc, err)
	}
	resp, err := conn.Call(ctx, domain.ImportAuthorization{Ticket: ticket.Token})
	if err != nil {
		return fmt.Errorf("import authorization on dc %d: %w", dc, err)
	}
	imported, ok := resp.(domain.AuthorizationImported)
	if !ok {
		return fmt.Errorf("import authorization on dc %d: %w", dc, errors.ErrUnexpectedResponse)
	}
	b.storeKey(dc, imported.Key)
	return nil
}

func (b *Broker) bind(ctx context.Context, conn contract.Conn, key domain.AuthKey) error {
	resp, err := conn.Call(ctx, domain.BindSession{Session: b.session.ID(), KeyDigest: key.Digest()})
	if err != nil {
		return fmt.Errorf("bind session: %w", err)
	}
	if _, ok := resp.(domain.SessionBound); !ok {
		return fmt.Errorf("bind session: %w", errors.ErrUnexpectedResponse)
	}
	return nil
}

func (b *Broker) cachedKey(dc int) (domain.AuthKey, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key, ok := b.keys[dc]
	return key, ok
}

func (b *Broker) storeKey(dc int, key domain.AuthKey) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.keys[dc] = key
}
