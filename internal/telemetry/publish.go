package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jpalmerr/missioncontrol/internal/dispatch"
)

// Publish writes every reading to its System_Status document until
// readings is closed. onReading, if set, sees each reading after its write;
// a panicking callback is logged and ignored.
func Publish(ctx context.Context, d *dispatch.Dispatcher, readings <-chan Reading, logger *slog.Logger, onReading func(Reading, dispatch.Ack)) {
	if logger == nil {
		logger = slog.Default()
	}
	for r := range readings {
		ack := d.Dispatch(ctx, dispatch.StatusCollection, r.TargetID, r.Patch())
		if onReading != nil {
			invokeSafe(onReading, r, ack, logger)
		}
	}
}

func invokeSafe(cb func(Reading, dispatch.Ack), r Reading, ack dispatch.Ack, logger *slog.Logger) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("reading callback panicked",
				"panic", fmt.Sprintf("%v", p),
				"target", r.TargetID,
			)
		}
	}()
	cb(r, ack)
}
