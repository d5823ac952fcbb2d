package chat

import (
	"context"
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

func seedChatFixture(t *testing.T, ctx context.Context, tx *gorm.DB, phoneSuffix int) *domain.ChatChannel {
	t.Helper()
	customer := testutil.SeedCustomer(t, ctx, tx, fmt.Sprintf("+91200000%04d", phoneSuffix))
	pharmacy := testutil.SeedPharmacy(t, ctx, tx, fmt.Sprintf("+91200001%04d", phoneSuffix), 19.08, 72.88)
	req := testutil.SeedRequest(t, ctx, tx, customer, 19.07, 72.87)
	return testutil.SeedChannel(t, ctx, tx, req, pharmacy)
}

func TestChannelRepoAdvanceSeq(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbcFor(ctx, tx)

	repo := NewChannelRepo(db, testutil.Logger(t))
	channel := seedChatFixture(t, ctx, tx, 1)

	now := time.Now().UTC()
	if err := repo.AdvanceSeq(dbc, channel.ID, "hello", channel.CustomerID.String(), now); err != nil {
		t.Fatalf("AdvanceSeq: %v", err)
	}
	got, err := repo.GetByID(dbc, channel.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID: err=%v row=%v", err, got)
	}
	if got.NextSeq != channel.NextSeq+1 {
		t.Fatalf("next_seq = %d, want %d", got.NextSeq, channel.NextSeq+1)
	}
	if got.LastMessageText != "hello" || got.LastMessageSenderID != channel.CustomerID.String() {
		t.Fatalf("last-message cache not refreshed: %q / %q", got.LastMessageText, got.LastMessageSenderID)
	}
	if got.LastMessageAt == nil {
		t.Fatalf("last_message_at not set")
	}
}

func TestChannelRepoLockByIDMissing(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbcFor(context.Background(), tx)

	repo := NewChannelRepo(db, testutil.Logger(t))
	row, err := repo.LockByID(dbc, uuid.New())
	if err != nil {
		t.Fatalf("LockByID: %v", err)
	}
	if row != nil {
		t.Fatalf("LockByID: expected nil for unknown channel")
	}
}

func TestChannelRepoListByParticipant(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbcFor(ctx, tx)

	repo := NewChannelRepo(db, testutil.Logger(t))
	channel := seedChatFixture(t, ctx, tx, 2)

	for _, userID := range []uuid.UUID{channel.CustomerID, channel.PharmacyID} {
		rows, err := repo.ListByParticipant(dbc, userID, 10)
		if err != nil {
			t.Fatalf("ListByParticipant(%s): %v", userID, err)
		}
		found := false
		for _, r := range rows {
			if r.ID == channel.ID {
				found = true
			}
		}
		if !found {
			t.Fatalf("channel missing for participant %s", userID)
		}
	}

	rows, err := repo.ListByParticipant(dbc, uuid.New(), 10)
	if err != nil {
		t.Fatalf("ListByParticipant (stranger): %v", err)
	}
	for _, r := range rows {
		if r.ID == channel.ID {
			t.Fatalf("channel visible to a non-participant")
		}
	}
}

func TestMessageRepoSeqOrderingAndReplay(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbcFor(ctx, tx)

	channels := NewChannelRepo(db, testutil.Logger(t))
	messages := NewMessageRepo(db, testutil.Logger(t))
	channel := seedChatFixture(t, ctx, tx, 3)

	// insert out of wall-clock order; seq is what orders the log
	base := time.Now().UTC()
	for _, seq := range []int64{0, 1, 2, 3} {
		row := &domain.ChatMessage{
			ID:         uuid.New(),
			ChannelID:  channel.ID,
			Seq:        seq,
			SenderID:   channel.CustomerID.String(),
			SenderRole: domain.RoleCustomer,
			Text:       fmt.Sprintf("msg %d", seq),
			Type:       domain.MessageTypeText,
			CreatedAt:  base.Add(-time.Duration(seq) * time.Second),
		}
		if err := messages.Create(dbc, row); err != nil {
			t.Fatalf("Create seq %d: %v", seq, err)
		}
		if err := channels.AdvanceSeq(dbc, channel.ID, row.Text, row.SenderID, base); err != nil {
			t.Fatalf("AdvanceSeq: %v", err)
		}
	}

	rows, err := messages.ListByChannel(dbc, channel.ID, 0)
	if err != nil {
		t.Fatalf("ListByChannel: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("len = %d, want 4", len(rows))
	}
	for i, row := range rows {
		if row.Seq != int64(i) {
			t.Fatalf("row %d has seq %d, log must be seq-ordered", i, row.Seq)
		}
	}

	// reconnect replay from seq 1
	tail, err := messages.ListSinceSeq(dbc, channel.ID, 1, 0)
	if err != nil {
		t.Fatalf("ListSinceSeq: %v", err)
	}
	if len(tail) != 2 || tail[0].Seq != 2 || tail[1].Seq != 3 {
		t.Fatalf("replay after seq 1 wrong: %+v", tail)
	}
}

func TestMessageRepoDuplicateSeqRejected(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbcFor(ctx, tx)

	messages := NewMessageRepo(db, testutil.Logger(t))
	channel := seedChatFixture(t, ctx, tx, 4)

	mk := func() *domain.ChatMessage {
		return &domain.ChatMessage{
			ID:         uuid.New(),
			ChannelID:  channel.ID,
			Seq:        0,
			SenderID:   channel.CustomerID.String(),
			SenderRole: domain.RoleCustomer,
			Text:       "first",
			Type:       domain.MessageTypeText,
			CreatedAt:  time.Now().UTC(),
		}
	}
	if err := messages.Create(dbc, mk()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := messages.Create(dbc, mk()); err == nil {
		t.Fatalf("duplicate (channel, seq) insert must fail")
	}
}
