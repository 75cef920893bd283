package workers

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"transfer-lab/domain/event"
	"transfer-lab/mocks"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEventFanout_DeliversToEverySink(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	first := mocks.NewMockEventSink(ctrl)
	second := mocks.NewMockEventSink(ctrl)

	evt := event.TransferStarted{ID: uuid.New(), Name: "sample.7z"}

	// Given two registered sinks, each consumes the event once
	first.EXPECT().Consume(gomock.Any(), evt).Return(nil).Times(1)
	second.EXPECT().Consume(gomock.Any(), evt).Return(nil).Times(1)

	fanout := NewEventFanout(testLogger(), make(chan event.DomainEvent, 4), time.Second).
		Add(first, second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = fanout.Run(ctx)
		close(done)
	}()

	// When the event is queued through the sink facade
	req.NoError(fanout.Consume(ctx, evt))

	// Then both sinks received it before the worker stops
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("fanout worker did not stop")
	}
}

func TestEventFanout_SinkTimeout(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	stuck := mocks.NewMockEventSink(ctrl)
	healthy := mocks.NewMockEventSink(ctrl)

	evt := event.TransferCompleted{ID: uuid.New(), Name: "sample.7z"}

	// Given a sink that never returns until its context expires
	stuck.EXPECT().Consume(gomock.Any(), evt).DoAndReturn(
		func(ctx context.Context, _ event.DomainEvent) error {
			<-ctx.Done()     // Waiting for timeout to trigger cancellation
			return ctx.Err() // Sending back "context deadline exceeded"
		}).Times(1)
	consumed := make(chan struct{})
	healthy.EXPECT().Consume(gomock.Any(), evt).DoAndReturn(
		func(context.Context, event.DomainEvent) error {
			close(consumed)
			return nil
		}).Times(1)

	fanout := NewEventFanout(testLogger(), make(chan event.DomainEvent, 4), 20*time.Millisecond).
		Add(stuck, healthy)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = fanout.Run(ctx) }()

	req.NoError(fanout.Consume(ctx, evt))

	// Then the stuck sink does not starve the one after it
	select {
	case <-consumed:
	case <-time.After(time.Second):
		req.Fail("healthy sink never received the event")
	}
}
