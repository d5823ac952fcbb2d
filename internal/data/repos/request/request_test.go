package request

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pharmalink/pharmalink-backend/internal/data/repos/testutil"
	"github.com/pharmalink/pharmalink-backend/internal/domain"
	"github.com/pharmalink/pharmalink-backend/internal/geo"
)

func TestRequestRepoCloseIsIdempotent(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbcFor(ctx, tx)

	repo := NewRequestRepo(db, testutil.Logger(t))
	customer := testutil.SeedCustomer(t, ctx, tx, "+911000000001")
	req := testutil.SeedRequest(t, ctx, tx, customer, 19.07, 72.87)

	now := time.Now().UTC()
	changed, err := repo.Close(dbc, req.ID, domain.ClosedReasonManual, now)
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !changed {
		t.Fatalf("Close: expected first close to transition")
	}

	changed, err = repo.Close(dbc, req.ID, domain.ClosedReasonManual, now.Add(time.Second))
	if err != nil {
		t.Fatalf("Close (repeat): %v", err)
	}
	if changed {
		t.Fatalf("Close: second close must be a no-op")
	}

	got, err := repo.GetByID(dbc, req.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID: err=%v row=%v", err, got)
	}
	if got.Status != domain.RequestStatusClosed {
		t.Fatalf("status = %q, want %q", got.Status, domain.RequestStatusClosed)
	}
	if got.ClosedReason != domain.ClosedReasonManual {
		t.Fatalf("closed_reason = %q, want %q", got.ClosedReason, domain.ClosedReasonManual)
	}
	if got.ClosedAt == nil {
		t.Fatalf("closed_at not set")
	}
}

func TestRequestRepoCloseExpiredReasonSetsExpiredStatus(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbcFor(ctx, tx)

	repo := NewRequestRepo(db, testutil.Logger(t))
	customer := testutil.SeedCustomer(t, ctx, tx, "+911000000002")
	req := testutil.SeedRequest(t, ctx, tx, customer, 19.07, 72.87)

	changed, err := repo.Close(dbc, req.ID, domain.ClosedReasonExpired, time.Now().UTC())
	if err != nil || !changed {
		t.Fatalf("Close: changed=%v err=%v", changed, err)
	}
	got, _ := repo.GetByID(dbc, req.ID)
	if got.Status != domain.RequestStatusExpired {
		t.Fatalf("status = %q, want %q", got.Status, domain.RequestStatusExpired)
	}
}

// Concurrent RecordResponse calls must all land; the increment happens in SQL,
// not via read-modify-write.
func TestRequestRepoRecordResponseConcurrent(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbcFor(ctx, nil)

	repo := NewRequestRepo(db, testutil.Logger(t))
	customer := testutil.SeedCustomer(t, ctx, db, "+911000000003")
	req := testutil.SeedRequest(t, ctx, db, customer, 19.07, 72.87)
	t.Cleanup(func() {
		db.Where("id = ?", req.ID).Delete(&domain.MedicineRequest{})
		db.Where("id = ?", customer.ID).Delete(&domain.User{})
	})

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- repo.RecordResponse(dbc, req.ID, time.Now().UTC())
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("RecordResponse: %v", err)
		}
	}

	got, err := repo.GetByID(dbc, req.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID: err=%v row=%v", err, got)
	}
	if got.ResponseCount != n {
		t.Fatalf("response_count = %d, want %d", got.ResponseCount, n)
	}
	if got.FirstResponseAt == nil {
		t.Fatalf("first_response_at not set")
	}
}

func TestRequestRepoListActiveInBounds(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbcFor(ctx, tx)

	repo := NewRequestRepo(db, testutil.Logger(t))
	customer := testutil.SeedCustomer(t, ctx, tx, "+911000000004")

	near := testutil.SeedRequest(t, ctx, tx, customer, 19.0702, 72.8701)
	far := testutil.SeedRequest(t, ctx, tx, customer, 19.30, 73.10)
	closed := testutil.SeedRequest(t, ctx, tx, customer, 19.0703, 72.8702)
	if _, err := repo.Close(dbc, closed.ID, domain.ClosedReasonManual, time.Now().UTC()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	bounds := geo.QueryBounds(19.07, 72.87, 2000)
	rows, err := repo.ListActiveInBounds(dbc, bounds)
	if err != nil {
		t.Fatalf("ListActiveInBounds: %v", err)
	}

	ids := make(map[uuid.UUID]bool, len(rows))
	for _, r := range rows {
		ids[r.ID] = true
	}
	if !ids[near.ID] {
		t.Fatalf("nearby active request missing from bounds scan")
	}
	if ids[closed.ID] {
		t.Fatalf("closed request must not appear in bounds scan")
	}
	if ids[far.ID] {
		t.Fatalf("request ~30km away inside 2km bounds scan")
	}
}

func TestRequestRepoExpireDue(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbcFor(ctx, tx)

	repo := NewRequestRepo(db, testutil.Logger(t))
	customer := testutil.SeedCustomer(t, ctx, tx, "+911000000005")

	overdue := testutil.SeedRequest(t, ctx, tx, customer, 19.07, 72.87)
	if err := tx.Model(&domain.MedicineRequest{}).
		Where("id = ?", overdue.ID).
		Update("expires_at", time.Now().UTC().Add(-time.Minute)).Error; err != nil {
		t.Fatalf("backdate: %v", err)
	}
	fresh := testutil.SeedRequest(t, ctx, tx, customer, 19.07, 72.87)

	ids, err := repo.ExpireDue(dbc, time.Now().UTC())
	if err != nil {
		t.Fatalf("ExpireDue: %v", err)
	}
	found := false
	for _, id := range ids {
		if id == overdue.ID {
			found = true
		}
		if id == fresh.ID {
			t.Fatalf("fresh request swept")
		}
	}
	if !found {
		t.Fatalf("overdue request not swept")
	}

	got, _ := repo.GetByID(dbc, overdue.ID)
	if got.Status != domain.RequestStatusExpired || got.ClosedReason != domain.ClosedReasonExpired {
		t.Fatalf("swept row: status=%q reason=%q", got.Status, got.ClosedReason)
	}

	// second sweep finds nothing new for this row
	ids, err = repo.ExpireDue(dbc, time.Now().UTC())
	if err != nil {
		t.Fatalf("ExpireDue (repeat): %v", err)
	}
	for _, id := range ids {
		if id == overdue.ID {
			t.Fatalf("row swept twice")
		}
	}
}
