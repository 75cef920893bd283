package transfer

import (
	"log/slog"
	"math/rand/v2"

	"transfer-lab/contract"
)

// Engine drives striped uploads and downloads over connections built by its
// broker. One engine serves any number of sequential transfers; the broker's
// per-DC key cache is shared across them for the engine's lifetime.
type Engine struct {
	log     *slog.Logger
	session contract.Session
	broker  *Broker
}

func NewEngine(log *slog.Logger, transport contract.Transport, session contract.Session) *Engine {
	return &Engine{
		log:     log,
		session: session,
		broker:  NewBroker(log, transport, session),
	}
}

func newFileID() int64 {
	for {
		if id := rand.Int64(); id != 0 {
			return id
		}
	}
}
