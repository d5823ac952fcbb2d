package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pharmalink/pharmalink-backend/internal/domain"
	"github.com/pharmalink/pharmalink-backend/internal/platform/dbctx"
	"github.com/pharmalink/pharmalink-backend/internal/platform/logger"
)

// Notifier turns broadcast snapshots into device alerts, at most one per
// request per pharmacy. Snapshots arrive repeatedly (every refresh that
// changes anything), so the dedupe set is what makes the alert exactly-once.
type Notifier struct {
	log   *logger.Logger
	users interface {
		GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.User, error)
	}
	push PushService

	mu   sync.Mutex
	seen map[uuid.UUID]map[uuid.UUID]time.Time // pharmacy -> request -> first seen
}

func NewNotifier(baseLog *logger.Logger, userGetter interface {
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.User, error)
}, pushService PushService) *Notifier {
	return &Notifier{
		log:   baseLog.With("service", "Notifier"),
		users: userGetter,
		push:  pushService,
		seen:  make(map[uuid.UUID]map[uuid.UUID]time.Time),
	}
}

// OnSnapshot alerts the pharmacy about requests it has not been alerted about
// yet. A snapshot replayed with the same requests is a no-op.
func (n *Notifier) OnSnapshot(ctx context.Context, pharmacyID uuid.UUID, snapshot []NearbyRequest) {
	fresh := n.markFresh(pharmacyID, snapshot)
	if len(fresh) == 0 || n.push == nil {
		return
	}

	pharmacy, err := n.users.GetByID(dbctx.Context{Ctx: ctx}, pharmacyID)
	if err != nil || pharmacy == nil {
		return
	}
	tokens := deviceTokens(pharmacy)
	if len(tokens) == 0 {
		return
	}

	for _, r := range fresh {
		body := r.MedicineText
		if r.RequestType == domain.RequestTypePrescription {
			body = "Prescription uploaded"
		}
		n.push.Notify(ctx, tokens, "New medicine request nearby", body, map[string]string{
			"request_id": r.ID.String(),
		})
	}
}

// Forget drops the pharmacy's dedupe state, typically when it unsubscribes.
func (n *Notifier) Forget(pharmacyID uuid.UUID) {
	n.mu.Lock()
	delete(n.seen, pharmacyID)
	n.mu.Unlock()
}

// Sweep drops dedupe entries older than maxAge; expired requests can never
// re-alert, so the state only needs to outlive the request TTL.
func (n *Notifier) Sweep(maxAge time.Duration) {
	cutoff := time.Now().Add(-maxAge)
	n.mu.Lock()
	defer n.mu.Unlock()
	for pharmacyID, requests := range n.seen {
		for requestID, at := range requests {
			if at.Before(cutoff) {
				delete(requests, requestID)
			}
		}
		if len(requests) == 0 {
			delete(n.seen, pharmacyID)
		}
	}
}

// Run sweeps the dedupe state periodically until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.Sweep(2 * domain.RequestTTL)
		}
	}
}

func (n *Notifier) markFresh(pharmacyID uuid.UUID, snapshot []NearbyRequest) []NearbyRequest {
	now := time.Now()
	n.mu.Lock()
	defer n.mu.Unlock()
	known := n.seen[pharmacyID]
	if known == nil {
		known = make(map[uuid.UUID]time.Time)
		n.seen[pharmacyID] = known
	}
	var fresh []NearbyRequest
	for _, r := range snapshot {
		if _, ok := known[r.ID]; ok {
			continue
		}
		known[r.ID] = now
		fresh = append(fresh, r)
	}
	return fresh
}
