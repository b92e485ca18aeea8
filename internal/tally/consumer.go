package tally

import (
	"context"

	"go.uber.org/zap"

	"presence/internal/events"
	"presence/internal/queue"
)

// Run consumes q until ctx is done, counting every presence-recorded event.
// Messages of other types and undecodable bodies are skipped.
func Run(ctx context.Context, q queue.Queue, counter Counter) error {
	log := zap.L().Named("tally")
	msgs, err := q.Consume(ctx)
	if err != nil {
		return err
	}
	log.Info("tally consumer started")
	for msg := range msgs {
		if err := Apply(ctx, counter, msg); err != nil {
			log.Warn("tally update failed", zap.String("type", msg.Type), zap.Error(err))
		}
	}
	log.Info("tally consumer stopped")
	return nil
}

// Apply counts a single message.
func Apply(ctx context.Context, counter Counter, msg queue.Message) error {
	if msg.Type != events.TypePresenceRecorded {
		return nil
	}
	var evt events.PresenceRecorded
	if err := msg.Decode(&evt); err != nil {
		return err
	}
	return counter.Incr(ctx, evt.Course, evt.Status)
}
