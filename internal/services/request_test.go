package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pharmalink/pharmalink-backend/internal/data/db"
	"github.com/pharmalink/pharmalink-backend/internal/data/repos/request"
	"github.com/pharmalink/pharmalink-backend/internal/data/repos/stats"
	"github.com/pharmalink/pharmalink-backend/internal/data/repos/testutil"
	"github.com/pharmalink/pharmalink-backend/internal/domain"
	"github.com/pharmalink/pharmalink-backend/internal/platform/dbctx"
)

func newRequestServiceForTest(t *testing.T, gdb *gorm.DB) RequestService {
	t.Helper()
	log := testutil.Logger(t)
	return NewRequestService(
		gdb,
		log,
		db.NewGormTxRunner(gdb),
		request.NewRequestRepo(gdb, log),
		stats.NewStatsRepo(gdb, log),
		nil,
	)
}

func TestCreateRequestValidation(t *testing.T) {
	svc := &requestService{}
	dbc := dbctx.Context{Ctx: context.Background()}
	id := uuid.New()

	cases := []CreateRequestInput{
		// missing customer, bad latitude, blank text, imageless prescription, unknown type
		{RequestType: domain.RequestTypeText, MedicineText: "x", Lat: 19, Lng: 72},
		{CustomerID: id, RequestType: domain.RequestTypeText, MedicineText: "x", Lat: 91, Lng: 72},
		{CustomerID: id, RequestType: domain.RequestTypeText, MedicineText: "   ", Lat: 19, Lng: 72},
		{CustomerID: id, RequestType: domain.RequestTypePrescription, Lat: 19, Lng: 72},
		{CustomerID: id, RequestType: "voice", MedicineText: "x", Lat: 19, Lng: 72},
	}
	for i, in := range cases {
		if _, err := svc.Create(dbc, in); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("case %d: err=%v, want ErrValidation", i, err)
		}
	}
}

func TestCreateRequestSetsDeadlineAndGeocode(t *testing.T) {
	gdb := testutil.DB(t)
	svc := newRequestServiceForTest(t, gdb)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}

	customer := testutil.SeedCustomer(t, ctx, gdb, "+916000000001")
	cleanupRequestRows(t, gdb, customer.ID)

	before := time.Now().UTC()
	row, err := svc.Create(dbc, CreateRequestInput{
		CustomerID:    customer.ID,
		CustomerName:  customer.DisplayName,
		CustomerPhone: customer.Phone,
		RequestType:   domain.RequestTypeText,
		MedicineText:  "Amoxicillin 250mg",
		Lat:           19.07,
		Lng:           72.87,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if row.Status != domain.RequestStatusActive {
		t.Fatalf("status = %q", row.Status)
	}
	if row.Location.Geocode == "" {
		t.Fatalf("geocode not derived")
	}
	ttl := row.ExpiresAt.Sub(row.CreatedAt)
	if ttl != domain.RequestTTL {
		t.Fatalf("deadline ttl = %v, want %v", ttl, domain.RequestTTL)
	}
	if row.ExpiresAt.Before(before) {
		t.Fatalf("deadline in the past")
	}

	got, err := svc.Get(dbc, row.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.MedicineText != "Amoxicillin 250mg" {
		t.Fatalf("medicine_text = %q", got.MedicineText)
	}
}

func TestCloseRequestIsIdempotentAndOwnerOnly(t *testing.T) {
	gdb := testutil.DB(t)
	svc := newRequestServiceForTest(t, gdb)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}

	customer := testutil.SeedCustomer(t, ctx, gdb, "+916000000002")
	cleanupRequestRows(t, gdb, customer.ID)
	req := testutil.SeedRequest(t, ctx, gdb, customer, 19.07, 72.87)

	// a stranger can not close it (and learns nothing about it)
	if _, err := svc.Close(dbc, req.ID, uuid.New()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Close (stranger): err=%v, want ErrNotFound", err)
	}

	row, err := svc.Close(dbc, req.ID, customer.ID)
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if row.Status != domain.RequestStatusClosed || row.ClosedReason != domain.ClosedReasonManual {
		t.Fatalf("close result: status=%q reason=%q", row.Status, row.ClosedReason)
	}

	// closing again is a quiet no-op
	row, err = svc.Close(dbc, req.ID, customer.ID)
	if err != nil {
		t.Fatalf("Close (repeat): %v", err)
	}
	if row.Status != domain.RequestStatusClosed {
		t.Fatalf("repeat close changed status to %q", row.Status)
	}
}

// Reads report an overdue request as expired even before any write flips it.
func TestGetAppliesLazyExpiry(t *testing.T) {
	gdb := testutil.DB(t)
	svc := newRequestServiceForTest(t, gdb)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}

	customer := testutil.SeedCustomer(t, ctx, gdb, "+916000000003")
	cleanupRequestRows(t, gdb, customer.ID)
	req := testutil.SeedRequest(t, ctx, gdb, customer, 19.07, 72.87)

	if err := gdb.Model(&domain.MedicineRequest{}).
		Where("id = ?", req.ID).
		Update("expires_at", time.Now().UTC().Add(-time.Minute)).Error; err != nil {
		t.Fatalf("backdate: %v", err)
	}

	got, err := svc.Get(dbc, req.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != domain.RequestStatusExpired || got.ClosedReason != domain.ClosedReasonExpired {
		t.Fatalf("lazy expiry view: status=%q reason=%q", got.Status, got.ClosedReason)
	}

	// the stored row is untouched; the view is read-side only
	var stored domain.MedicineRequest
	gdb.Where("id = ?", req.ID).First(&stored)
	if stored.Status != domain.RequestStatusActive {
		t.Fatalf("read path wrote status %q", stored.Status)
	}
}

func TestApplyLazyExpiry(t *testing.T) {
	now := time.Now().UTC()
	active := &domain.MedicineRequest{Status: domain.RequestStatusActive, ExpiresAt: now.Add(time.Minute)}
	applyLazyExpiry(active, now)
	if active.Status != domain.RequestStatusActive {
		t.Fatalf("fresh request rewritten")
	}

	overdue := &domain.MedicineRequest{Status: domain.RequestStatusActive, ExpiresAt: now.Add(-time.Minute)}
	applyLazyExpiry(overdue, now)
	if overdue.Status != domain.RequestStatusExpired || overdue.ClosedAt == nil {
		t.Fatalf("overdue request not rewritten: %+v", overdue)
	}

	closed := &domain.MedicineRequest{Status: domain.RequestStatusClosed, ExpiresAt: now.Add(-time.Minute), ClosedReason: domain.ClosedReasonManual}
	applyLazyExpiry(closed, now)
	if closed.ClosedReason != domain.ClosedReasonManual {
		t.Fatalf("terminal request rewritten")
	}
}
