package tcpnet

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"transfer-lab/contract"
	"transfer-lab/domain"
	"transfer-lab/errors"
)

// Transport dials framed TCP connections to data-center nodes. It is the
// production contract.Transport; tests and the loopback cluster plug in
// their own.
type Transport struct {
	log         *slog.Logger
	dialTimeout time.Duration
}

func NewTransport(log *slog.Logger, dialTimeout time.Duration) *Transport {
	return &Transport{log: log, dialTimeout: dialTimeout}
}

func (t *Transport) Dial(ctx context.Context, ep domain.Endpoint) (contract.Conn, error) {
	dialer := net.Dialer{Timeout: t.dialTimeout}
	nc, err := dialer.DialContext(ctx, "tcp", ep.Addr)
	if err != nil {
		return nil, err
	}
	t.log.Debug("Dialed data-center", "dc", ep.DC, "addr", ep.Addr)
	return &Conn{log: t.log, nc: nc}, nil
}

// Conn is one framed TCP connection. Calls are serialized; the transfer
// engine keeps at most one request in flight per connection anyway.
type Conn struct {
	log    *slog.Logger
	mu     sync.Mutex
	nc     net.Conn
	closed atomic.Bool
}

func (c *Conn) Call(ctx context.Context, req any) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return nil, errors.ErrConnClosed
	}

	// A canceled context unblocks the in-flight read by expiring the
	// socket deadline.
	stop := context.AfterFunc(ctx, func() { _ = c.nc.SetDeadline(time.Now()) })
	defer stop()

	if err := WriteMessage(c.nc, req); err != nil {
		return nil, fmt.Errorf("write %T: %w", req, orCtxErr(ctx, err))
	}
	resp, err := ReadMessage(c.nc)
	if err != nil {
		return nil, fmt.Errorf("read response for %T: %w", req, orCtxErr(ctx, err))
	}
	if rpcErr, ok := resp.(domain.RPCError); ok {
		return nil, AsError(rpcErr)
	}
	return resp, nil
}

// Close is safe to call while a Call is blocked; closing the socket
// unblocks it.
func (c *Conn) Close(_ context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.nc.Close()
}

// orCtxErr prefers the context's own error over the deadline error its
// cancellation provoked.
func orCtxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
