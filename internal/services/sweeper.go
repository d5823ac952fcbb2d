package services

import (
	"context"
	"time"

	"github.com/pharmalink/pharmalink-backend/internal/data/repos/request"
	"github.com/pharmalink/pharmalink-backend/internal/data/repos/stats"
	"github.com/pharmalink/pharmalink-backend/internal/domain"
	"github.com/pharmalink/pharmalink-backend/internal/platform/dbctx"
	"github.com/pharmalink/pharmalink-backend/internal/platform/logger"
	"github.com/pharmalink/pharmalink-backend/internal/realtime"
	"github.com/pharmalink/pharmalink-backend/internal/realtime/bus"
)

const defaultSweepInterval = 30 * time.Second

// Sweeper periodically flips active requests whose deadline passed. It is a
// cleanup pass, not the source of truth: readers already treat the deadline
// as authoritative, so a late sweep never changes observable behavior.
type Sweeper struct {
	log      *logger.Logger
	requests request.RequestRepo
	stats    stats.StatsRepo
	bus      bus.Bus
	interval time.Duration
}

func NewSweeper(
	baseLog *logger.Logger,
	requestRepo request.RequestRepo,
	statsRepo stats.StatsRepo,
	eventBus bus.Bus,
	interval time.Duration,
) *Sweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Sweeper{
		log:      baseLog.With("service", "Sweeper"),
		requests: requestRepo,
		stats:    statsRepo,
		bus:      eventBus,
		interval: interval,
	}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce expires every overdue request and announces each transition.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	dbc := dbctx.Context{Ctx: ctx}
	now := time.Now().UTC()

	ids, err := s.requests.ExpireDue(dbc, now)
	if err != nil {
		s.log.Warn("expiry sweep failed", "error", err)
		return
	}
	if len(ids) == 0 {
		return
	}

	if err := s.stats.Increment(dbc, stats.Deltas{ActiveRequests: -int64(len(ids))}); err != nil {
		s.log.Warn("stats decrement after sweep failed", "error", err)
	}

	for _, id := range ids {
		if s.bus == nil {
			continue
		}
		msg := realtime.Message{
			Channel: realtime.RequestFeed,
			Event:   realtime.EventRequestClosed,
			Data: map[string]any{
				"request_id":    id,
				"closed_reason": domain.ClosedReasonExpired,
			},
		}
		if err := s.bus.Publish(ctx, msg); err != nil {
			s.log.Warn("bus publish failed", "request_id", id, "error", err)
		}
	}
	s.log.Info("expired overdue requests", "count", len(ids))
}
