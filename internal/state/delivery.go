package state

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/danhigham/tgflux/internal/domain"
	"github.com/danhigham/tgflux/internal/metrics"
	"github.com/danhigham/tgflux/internal/store"
)

// deliveryLoop sends msg until the transport accepts it or the attempts run
// out. The attempt counter is tracked here, not read back from the state.
// Retries are immediate.
func (r *Reducer) deliveryLoop(msg domain.LocalMessage) store.Flow[Action] {
	return func(ctx context.Context, dispatch store.Dispatch[Action]) {
		log := r.logger.Named("delivery").With(
			zap.String("message_id", string(msg.ID)),
			zap.String("chat_id", string(msg.ChatID)),
		)

		current := msg
		for current.DeliveryAttemptsLeft > 0 {
			remote, err := r.transport.Deliver(ctx, current)
			if ctx.Err() != nil {
				log.Debug("delivery abandoned", zap.Error(ctx.Err()))
				return
			}

			if err == nil {
				r.metrics.DeliveryAttempt(metrics.ResultOK)
				if remote.ID != current.ID {
					// The local copy is deleted by its own id; consumers that
					// track message identity across confirmation will see a
					// new id here.
					log.Debug("remote id differs from local id", zap.String("remote_id", string(remote.ID)))
				}
				log.Debug("message delivered")
				dispatch(ApplyUpdates{Updates: domain.Replace(current.ID, remote)})
				return
			}

			r.metrics.DeliveryAttempt(metrics.ResultFailed)
			next := current.WithAttemptUsed()
			log.Info("delivery attempt failed",
				zap.Int("attempts_left", next.DeliveryAttemptsLeft),
				zap.Bool("no_network", errors.Is(err, domain.ErrNoNetwork)),
				zap.Error(err),
			)
			dispatch(ApplyUpdates{Updates: domain.Replace(current.ID, next)})
			current = next
		}

		r.metrics.DeliveryExhausted()
		log.Warn("message left undelivered")
	}
}

// subscribe feeds remote update batches into the store until ctx is done.
func (r *Reducer) subscribe(ctx context.Context, dispatch store.Dispatch[Action]) {
	log := r.logger.Named("updates")
	log.Info("subscribing to remote updates")

	err := r.transport.Subscribe(ctx, func(updates []domain.Update) {
		if len(updates) == 0 {
			return
		}
		dispatch(ApplyUpdates{Updates: updates})
	})
	if ctx.Err() != nil {
		return
	}

	reason := "subscription closed"
	if err != nil {
		log.Error("remote update subscription failed", zap.Error(err))
		reason = err.Error()
	}
	dispatch(Disconnected{Reason: reason})
}
