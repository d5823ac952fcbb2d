package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/pharmalink/pharmalink-backend/internal/data/repos/testutil"
	"github.com/pharmalink/pharmalink-backend/internal/domain"
	"github.com/pharmalink/pharmalink-backend/internal/platform/dbctx"
)

type stubUserGetter struct {
	row *domain.User
}

func (s *stubUserGetter) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.User, error) {
	return s.row, nil
}

type recordingPush struct {
	mu    sync.Mutex
	calls []map[string]string
}

func (p *recordingPush) Notify(ctx context.Context, tokens []string, title, body string, data map[string]string) {
	p.mu.Lock()
	p.calls = append(p.calls, data)
	p.mu.Unlock()
}

func (p *recordingPush) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func nearbyFixture(ids ...uuid.UUID) []NearbyRequest {
	out := make([]NearbyRequest, 0, len(ids))
	for _, id := range ids {
		out = append(out, NearbyRequest{
			MedicineRequest: &domain.MedicineRequest{
				ID:           id,
				RequestType:  domain.RequestTypeText,
				MedicineText: "Ibuprofen 400mg",
			},
			DistanceKm: 1.0,
		})
	}
	return out
}

func TestNotifierAlertsOncePerRequest(t *testing.T) {
	push := &recordingPush{}
	pharmacy := &domain.User{
		ID:        uuid.New(),
		Role:      domain.RolePharmacy,
		FCMTokens: datatypes.JSON(`["tok-1"]`),
	}
	n := NewNotifier(testutil.Logger(t), &stubUserGetter{row: pharmacy}, push)
	ctx := context.Background()

	reqA, reqB := uuid.New(), uuid.New()

	n.OnSnapshot(ctx, pharmacy.ID, nearbyFixture(reqA))
	if got := push.count(); got != 1 {
		t.Fatalf("alerts = %d, want 1", got)
	}

	// same snapshot replayed: nothing new
	n.OnSnapshot(ctx, pharmacy.ID, nearbyFixture(reqA))
	if got := push.count(); got != 1 {
		t.Fatalf("replay alerted again: %d", got)
	}

	// a second request alerts exactly once more
	n.OnSnapshot(ctx, pharmacy.ID, nearbyFixture(reqA, reqB))
	if got := push.count(); got != 2 {
		t.Fatalf("alerts = %d, want 2", got)
	}

	// a request leaving and re-entering the radius does not re-alert
	n.OnSnapshot(ctx, pharmacy.ID, nearbyFixture(reqB))
	n.OnSnapshot(ctx, pharmacy.ID, nearbyFixture(reqA, reqB))
	if got := push.count(); got != 2 {
		t.Fatalf("re-entry alerted again: %d", got)
	}
}

func TestNotifierStateScopedPerPharmacy(t *testing.T) {
	push := &recordingPush{}
	pharmacy := &domain.User{
		ID:        uuid.New(),
		Role:      domain.RolePharmacy,
		FCMTokens: datatypes.JSON(`["tok-1"]`),
	}
	n := NewNotifier(testutil.Logger(t), &stubUserGetter{row: pharmacy}, push)
	ctx := context.Background()

	req := uuid.New()
	n.OnSnapshot(ctx, uuid.New(), nearbyFixture(req))
	n.OnSnapshot(ctx, uuid.New(), nearbyFixture(req))
	if got := push.count(); got != 2 {
		t.Fatalf("alerts = %d, want one per pharmacy", got)
	}
}

func TestNotifierForgetAndSweep(t *testing.T) {
	push := &recordingPush{}
	pharmacy := &domain.User{
		ID:        uuid.New(),
		Role:      domain.RolePharmacy,
		FCMTokens: datatypes.JSON(`["tok-1"]`),
	}
	n := NewNotifier(testutil.Logger(t), &stubUserGetter{row: pharmacy}, push)
	ctx := context.Background()

	req := uuid.New()
	n.OnSnapshot(ctx, pharmacy.ID, nearbyFixture(req))
	n.Forget(pharmacy.ID)
	n.OnSnapshot(ctx, pharmacy.ID, nearbyFixture(req))
	if got := push.count(); got != 2 {
		t.Fatalf("Forget did not reset dedupe state: %d", got)
	}

	// sweeping with a zero max age clears everything
	n.Sweep(-time.Second)
	n.OnSnapshot(ctx, pharmacy.ID, nearbyFixture(req))
	if got := push.count(); got != 3 {
		t.Fatalf("Sweep did not clear dedupe state: %d", got)
	}
}

func TestNotifierNoTokensNoAlert(t *testing.T) {
	push := &recordingPush{}
	pharmacy := &domain.User{ID: uuid.New(), Role: domain.RolePharmacy}
	n := NewNotifier(testutil.Logger(t), &stubUserGetter{row: pharmacy}, push)

	n.OnSnapshot(context.Background(), pharmacy.ID, nearbyFixture(uuid.New()))
	if got := push.count(); got != 0 {
		t.Fatalf("alert sent without device tokens")
	}
}
