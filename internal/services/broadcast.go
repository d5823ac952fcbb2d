package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pharmalink/pharmalink-backend/internal/data/repos/request"
	"github.com/pharmalink/pharmalink-backend/internal/domain"
	"github.com/pharmalink/pharmalink-backend/internal/geo"
	"github.com/pharmalink/pharmalink-backend/internal/platform/dbctx"
	"github.com/pharmalink/pharmalink-backend/internal/platform/logger"
)

const defaultPollInterval = 2 * time.Second

// NearbyRequest is one active request inside a pharmacy's radius, annotated
// with the exact distance from the pharmacy.
type NearbyRequest struct {
	*domain.MedicineRequest
	DistanceKm float64 `json:"distance_km"`
}

type BroadcastService interface {
	// Query runs the two-phase proximity filter once: coarse geocode range
	// scans, dedupe, then the exact great-circle cut at radiusKm.
	Query(dbc dbctx.Context, lat, lng, radiusKm float64) ([]NearbyRequest, error)
	// Subscribe registers a live query centered on the given point. deliver
	// fires with a fresh snapshot whenever the visible set changes, starting
	// with the initial snapshot on the next refresh. The returned func
	// removes the subscription and is safe to call more than once.
	Subscribe(lat, lng, radiusKm float64, deliver func(snapshot []NearbyRequest)) (func(), error)
	// Nudge asks the engine to refresh ahead of the next poll tick. Used by
	// the bus forwarder when request lifecycle events arrive.
	Nudge()
	// Run drives the poll loop until ctx is cancelled.
	Run(ctx context.Context)
}

type subscription struct {
	lat      float64
	lng      float64
	radiusKm float64
	deliver  func([]NearbyRequest)
	lastKey  string
	primed   bool
}

type broadcastService struct {
	log      *logger.Logger
	requests request.RequestRepo
	interval time.Duration

	mu     sync.Mutex
	subs   map[uint64]*subscription
	nextID uint64

	nudge chan struct{}
}

func NewBroadcastService(baseLog *logger.Logger, requestRepo request.RequestRepo, pollInterval time.Duration) BroadcastService {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &broadcastService{
		log:      baseLog.With("service", "BroadcastService"),
		requests: requestRepo,
		interval: pollInterval,
		subs:     make(map[uint64]*subscription),
		nudge:    make(chan struct{}, 1),
	}
}

func (s *broadcastService) Query(dbc dbctx.Context, lat, lng, radiusKm float64) ([]NearbyRequest, error) {
	if !geo.IsValidLocation(lat, lng) {
		return nil, fmt.Errorf("%w: location out of range", domain.ErrValidation)
	}
	if radiusKm <= 0 {
		radiusKm = geo.DefaultRadiusKm
	}

	bounds := geo.QueryBounds(lat, lng, radiusKm*1000)
	rows, err := s.requests.ListActiveInBounds(dbc, bounds)
	if err != nil {
		return nil, err
	}

	// Bounds can overlap, so the union may hold the same row twice.
	seen := make(map[uuid.UUID]struct{}, len(rows))
	now := time.Now().UTC()
	out := make([]NearbyRequest, 0, len(rows))
	for _, row := range rows {
		if _, dup := seen[row.ID]; dup {
			continue
		}
		seen[row.ID] = struct{}{}
		if row.ExpiredAt(now) {
			continue
		}
		d := geo.DistanceKm(lat, lng, row.Location.Lat, row.Location.Lng)
		if d > radiusKm {
			continue
		}
		out = append(out, NearbyRequest{MedicineRequest: row, DistanceKm: d})
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *broadcastService) Subscribe(lat, lng, radiusKm float64, deliver func([]NearbyRequest)) (func(), error) {
	if !geo.IsValidLocation(lat, lng) {
		return nil, fmt.Errorf("%w: location out of range", domain.ErrValidation)
	}
	if deliver == nil {
		return nil, fmt.Errorf("%w: missing deliver callback", domain.ErrValidation)
	}
	if radiusKm <= 0 {
		radiusKm = geo.DefaultRadiusKm
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs[id] = &subscription{lat: lat, lng: lng, radiusKm: radiusKm, deliver: deliver}
	s.mu.Unlock()

	s.Nudge()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}, nil
}

func (s *broadcastService) Nudge() {
	select {
	case s.nudge <- struct{}{}:
	default:
	}
}

func (s *broadcastService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refresh(ctx)
		case <-s.nudge:
			s.refresh(ctx)
		}
	}
}

// refresh recomputes every subscription's snapshot and delivers only the
// changed ones. Runs on the single Run goroutine, so deliveries to one
// subscriber never interleave.
func (s *broadcastService) refresh(ctx context.Context) {
	s.mu.Lock()
	ids := make([]uint64, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	dbc := dbctx.Context{Ctx: ctx}
	for _, id := range ids {
		s.mu.Lock()
		sub, ok := s.subs[id]
		s.mu.Unlock()
		if !ok {
			continue
		}

		snapshot, err := s.Query(dbc, sub.lat, sub.lng, sub.radiusKm)
		if err != nil {
			s.log.Warn("live query refresh failed", "error", err)
			continue
		}
		key := snapshotKey(snapshot)

		s.mu.Lock()
		cur, ok := s.subs[id]
		changed := ok && (!cur.primed || cur.lastKey != key)
		if changed {
			cur.lastKey = key
			cur.primed = true
		}
		s.mu.Unlock()

		if changed {
			sub.deliver(snapshot)
		}
	}
}

// snapshotKey fingerprints the visible set; a request joining, leaving or
// accumulating responses changes the key.
func snapshotKey(snapshot []NearbyRequest) string {
	var b strings.Builder
	for _, r := range snapshot {
		b.WriteString(r.ID.String())
		b.WriteByte('|')
		b.WriteString(r.Status)
		b.WriteByte('|')
		fmt.Fprintf(&b, "%d;", r.ResponseCount)
	}
	return b.String()
}
