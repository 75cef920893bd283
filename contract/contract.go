//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"transfer-lab/domain"
	"transfer-lab/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Transport dials raw, unauthenticated connections to data-center endpoints.
// The engine never constructs connections any other way.
type Transport interface {
	Dial(ctx context.Context, ep domain.Endpoint) (Conn, error)
}

// Conn is one logical connection to a data-center. Call issues a single
// request and suspends until the node replies. Implementations serialize
// concurrent Call invocations; the engine never issues more than one at a
// time per connection anyway.
type Conn interface {
	Call(ctx context.Context, req any) (any, error)
	Close(ctx context.Context) error
}

// Session is the pre-authenticated primary session supplied by the session
// collaborator. The engine derives every secondary authorization from it and
// owns nothing session related itself.
type Session interface {
	ID() string
	HomeDC() int
	Endpoint(dc int) (domain.Endpoint, error)
	AuthKey() domain.AuthKey
	Export(ctx context.Context, dc int) (domain.AuthTicket, error)
}

type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}
