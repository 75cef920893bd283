package transfer

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"transfer-lab/domain"
	"transfer-lab/errors"
)

// Download reconstructs the object at location by striping byte-range reads
// over the planned number of fetchers. Work runs in rounds: every fetcher
// with parts left issues one request concurrently, the whole round is
// awaited, then the payloads are written to w in fetcher-ordinal order. The
// part at global index k is fetched by fetcher k mod N in round k div N, so
// ordinal-then-round emission is exactly ascending byte order.
func (e *Engine) Download(ctx context.Context, location domain.ObjectLocation, totalSize int64, maxConnections int, w io.Writer, progress ProgressFunc) error {
	plan, err := NewPlan(totalSize, maxConnections)
	if err != nil {
		return err
	}
	if plan.PartCount == 0 {
		return nil
	}

	fetchers, err := e.newFetchers(ctx, plan, location)
	if err != nil {
		return err
	}

	written := int64(0)
	results := make([][]byte, len(fetchers))
	for {
		clear(results)

		active := 0
		g, gctx := errgroup.WithContext(ctx)
		for i, f := range fetchers {
			if f.Remaining() == 0 {
				continue
			}
			active++
			g.Go(func() error {
				part, err := f.Next(gctx)
				if err != nil {
					return err
				}
				results[i] = part
				return nil
			})
		}
		if active == 0 {
			break
		}
		if err := g.Wait(); err != nil {
			e.disconnectFetchers(ctx, fetchers)
			return fmt.Errorf("%w: %v", errors.ErrTransfer, err)
		}

		// A slow connection delays its round but can never reorder it.
		for _, part := range results {
			if part == nil {
				continue
			}
			n, err := w.Write(part)
			if err != nil {
				e.disconnectFetchers(ctx, fetchers)
				return fmt.Errorf("%w: write sink: %v", errors.ErrIO, err)
			}
			written += int64(n)
			if progress != nil {
				progress(written, totalSize)
			}
		}
	}

	e.disconnectFetchers(ctx, fetchers)
	e.log.Debug("Download finished", "dc", location.DC, "parts", plan.PartCount, "connections", plan.Connections, "bytes", written)
	return nil
}

// newFetchers distributes the part count as evenly as possible: the first
// partCount mod N fetchers take one extra part, so no fetcher ever waits on
// work that does not exist.
func (e *Engine) newFetchers(ctx context.Context, plan Plan, location domain.ObjectLocation) ([]*Fetcher, error) {
	conns, err := e.broker.Connections(ctx, location.DC, plan.Connections)
	if err != nil {
		return nil, err
	}
	minimum := plan.PartCount / int32(plan.Connections)
	remainder := plan.PartCount % int32(plan.Connections)

	fetchers := make([]*Fetcher, len(conns))
	for i, conn := range conns {
		remaining := minimum
		if int32(i) < remainder {
			remaining++
		}
		fetchers[i] = NewFetcher(e.log, conn, location, plan, i, remaining)
	}
	return fetchers, nil
}

func (e *Engine) disconnectFetchers(ctx context.Context, fetchers []*Fetcher) {
	for _, f := range fetchers {
		if err := f.Disconnect(ctx); err != nil {
			e.log.Debug("Fetcher disconnect failed", "error", err)
		}
	}
}
