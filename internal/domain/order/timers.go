package order

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/fulfillment/internal/domain/workflow"
)

// autoAdvancer owns the per-order auto-advancement timers. Every committed
// transition bumps the order's epoch, which both cancels any pending timer
// and invalidates one that has already fired but not yet run: a fired timer
// whose epoch no longer matches is a no-op.
type autoAdvancer struct {
	mu     sync.Mutex
	timers map[uuid.UUID]*time.Timer
	epochs map[uuid.UUID]uint64

	advance func(ctx context.Context, orderID uuid.UUID, from workflow.Status)
	logger  zerolog.Logger
}

func newAutoAdvancer(logger zerolog.Logger, advance func(ctx context.Context, orderID uuid.UUID, from workflow.Status)) *autoAdvancer {
	return &autoAdvancer{
		timers:  make(map[uuid.UUID]*time.Timer),
		epochs:  make(map[uuid.UUID]uint64),
		advance: advance,
		logger:  logger,
	}
}

// bump cancels any pending timer for the order and returns the new epoch.
// Called while a transition commits, before any new timer is scheduled.
func (a *autoAdvancer) bump(orderID uuid.UUID) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if t, ok := a.timers[orderID]; ok {
		t.Stop()
		delete(a.timers, orderID)
	}
	a.epochs[orderID]++
	return a.epochs[orderID]
}

// schedule arms a timer that advances the order after delay, provided no
// other transition has intervened.
func (a *autoAdvancer) schedule(orderID uuid.UUID, epoch uint64, from workflow.Status, delay time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.epochs[orderID] != epoch {
		return
	}
	if t, ok := a.timers[orderID]; ok {
		t.Stop()
	}
	a.timers[orderID] = time.AfterFunc(delay, func() {
		a.mu.Lock()
		current := a.epochs[orderID] == epoch
		if current {
			delete(a.timers, orderID)
		}
		a.mu.Unlock()
		if !current {
			return
		}
		a.logger.Debug().
			Str("order_id", orderID.String()).
			Str("from", string(from)).
			Msg("auto-advance timer fired")
		a.advance(context.Background(), orderID, from)
	})
}

// stop drops the order's timer and epoch state. Called when an order goes
// terminal, so the maps do not accumulate entries for finished orders. A
// fired-but-unrun timer still no-ops afterward: its captured epoch can never
// match the zero value an evicted entry reads back.
func (a *autoAdvancer) stop(orderID uuid.UUID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if t, ok := a.timers[orderID]; ok {
		t.Stop()
		delete(a.timers, orderID)
	}
	delete(a.epochs, orderID)
}

func (a *autoAdvancer) stopAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, t := range a.timers {
		t.Stop()
		delete(a.timers, id)
	}
}

func (a *autoAdvancer) pending(orderID uuid.UUID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.timers[orderID]
	return ok
}
