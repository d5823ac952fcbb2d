package request

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pharmalink/pharmalink-backend/internal/data/repos/testutil"
	"github.com/pharmalink/pharmalink-backend/internal/domain"
	"github.com/pharmalink/pharmalink-backend/internal/platform/dbctx"
)

func dbcFor(ctx context.Context, tx *gorm.DB) dbctx.Context {
	return dbctx.Context{Ctx: ctx, Tx: tx}
}

func seedResponse(req *domain.MedicineRequest, pharmacy *domain.User) *domain.PharmacyResponse {
	return &domain.PharmacyResponse{
		ID:            uuid.New(),
		RequestID:     req.ID,
		PharmacyID:    pharmacy.ID,
		PharmacyName:  pharmacy.DisplayName,
		PharmacyPhone: pharmacy.Phone,
		PharmacyLocation: domain.Location{
			Lat:     pharmacy.Pharmacy.Location.Lat,
			Lng:     pharmacy.Pharmacy.Location.Lng,
			Geocode: pharmacy.Pharmacy.Location.Geocode,
		},
		DistanceKm:   1.2,
		Availability: domain.AvailabilityAvailable,
		RespondedAt:  time.Now().UTC(),
	}
}

func TestResponseRepoDuplicateSubmission(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbcFor(ctx, tx)

	repo := NewResponseRepo(db, testutil.Logger(t))
	customer := testutil.SeedCustomer(t, ctx, tx, "+911000000010")
	pharmacy := testutil.SeedPharmacy(t, ctx, tx, "+911000000011", 19.08, 72.88)
	req := testutil.SeedRequest(t, ctx, tx, customer, 19.07, 72.87)

	first := seedResponse(req, pharmacy)
	if err := repo.Create(dbc, first); err != nil {
		t.Fatalf("Create: %v", err)
	}

	second := seedResponse(req, pharmacy)
	second.Availability = domain.AvailabilityNotAvailable
	err := repo.Create(dbc, second)
	if !errors.Is(err, domain.ErrDuplicateResponse) {
		t.Fatalf("Create (dup): err=%v, want ErrDuplicateResponse", err)
	}

	// the original row is untouched
	got, err := repo.GetForPharmacy(dbc, req.ID, pharmacy.ID)
	if err != nil || got == nil {
		t.Fatalf("GetForPharmacy: err=%v row=%v", err, got)
	}
	if got.ID != first.ID || got.Availability != domain.AvailabilityAvailable {
		t.Fatalf("stored response changed: id=%s availability=%q", got.ID, got.Availability)
	}
}

func TestResponseRepoSamePharmacyAcrossRequests(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbcFor(ctx, tx)

	repo := NewResponseRepo(db, testutil.Logger(t))
	customer := testutil.SeedCustomer(t, ctx, tx, "+911000000012")
	pharmacy := testutil.SeedPharmacy(t, ctx, tx, "+911000000013", 19.08, 72.88)
	reqA := testutil.SeedRequest(t, ctx, tx, customer, 19.07, 72.87)
	reqB := testutil.SeedRequest(t, ctx, tx, customer, 19.071, 72.871)

	if err := repo.Create(dbc, seedResponse(reqA, pharmacy)); err != nil {
		t.Fatalf("Create A: %v", err)
	}
	// uniqueness is per (request, pharmacy), not per pharmacy
	if err := repo.Create(dbc, seedResponse(reqB, pharmacy)); err != nil {
		t.Fatalf("Create B: %v", err)
	}
}

func TestResponseRepoListByRequestOrdersByArrival(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbcFor(ctx, tx)

	repo := NewResponseRepo(db, testutil.Logger(t))
	customer := testutil.SeedCustomer(t, ctx, tx, "+911000000014")
	req := testutil.SeedRequest(t, ctx, tx, customer, 19.07, 72.87)

	base := time.Now().UTC()
	var want []uuid.UUID
	for i := 0; i < 3; i++ {
		pharmacy := testutil.SeedPharmacy(t, ctx, tx, fmt.Sprintf("+9110000000%d", 20+i), 19.08, 72.88)
		row := seedResponse(req, pharmacy)
		row.RespondedAt = base.Add(time.Duration(i) * time.Second)
		if err := repo.Create(dbc, row); err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
		want = append(want, row.ID)
	}

	rows, err := repo.ListByRequest(dbc, req.ID)
	if err != nil {
		t.Fatalf("ListByRequest: %v", err)
	}
	if len(rows) != len(want) {
		t.Fatalf("len = %d, want %d", len(rows), len(want))
	}
	for i, row := range rows {
		if row.ID != want[i] {
			t.Fatalf("row %d out of arrival order", i)
		}
	}
}
