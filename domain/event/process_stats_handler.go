package event

import (
	"fmt"
	"log/slog"

	"transfer-lab/errors"
)

// ProcessStatsHandler logs the daemon's own resource usage as reported by the
// heartbeat worker.
type ProcessStatsHandler struct {
	log *slog.Logger
}

func NewProcessStatsHandler(log *slog.Logger) *ProcessStatsHandler {
	return &ProcessStatsHandler{log: log}
}

func (h ProcessStatsHandler) Handle(event Event) {
	switch event.Type {
	case ProcessStatsType:
		payload, ok := event.Payload.(ProcessStats)
		if !ok {
			h.log.Error(errors.ErrInvalidPayload.Error())
			return
		}
		h.log.Debug(fmt.Sprintf("Process %d (%s) cpu: %.1f%% ram: %d MB",
			payload.PID, payload.Status, payload.Cpu, payload.RamBytes/(1024*1024)))
	}
}
