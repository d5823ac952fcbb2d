package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pharmalink/pharmalink-backend/internal/data/db"
	"github.com/pharmalink/pharmalink-backend/internal/data/repos/chat"
	"github.com/pharmalink/pharmalink-backend/internal/data/repos/testutil"
	"github.com/pharmalink/pharmalink-backend/internal/data/repos/user"
	"github.com/pharmalink/pharmalink-backend/internal/domain"
	"github.com/pharmalink/pharmalink-backend/internal/platform/dbctx"
)

func newChatServiceForTest(t *testing.T, gdb *gorm.DB) ChatService {
	t.Helper()
	log := testutil.Logger(t)
	return NewChatService(
		gdb,
		log,
		db.NewGormTxRunner(gdb),
		chat.NewChannelRepo(gdb, log),
		chat.NewMessageRepo(gdb, log),
		user.NewUserRepo(gdb, log),
		nil,
		nil,
	)
}

func seedChatForService(t *testing.T, gdb *gorm.DB, phoneA, phoneB string) *domain.ChatChannel {
	t.Helper()
	ctx := context.Background()
	customer := testutil.SeedCustomer(t, ctx, gdb, phoneA)
	pharmacy := testutil.SeedPharmacy(t, ctx, gdb, phoneB, 19.08, 72.88)
	req := testutil.SeedRequest(t, ctx, gdb, customer, 19.07, 72.87)
	channel := testutil.SeedChannel(t, ctx, gdb, req, pharmacy)
	t.Cleanup(func() {
		gdb.Where("channel_id = ?", channel.ID).Delete(&domain.ChatMessage{})
		gdb.Where("id = ?", channel.ID).Delete(&domain.ChatChannel{})
		gdb.Where("id = ?", req.ID).Delete(&domain.MedicineRequest{})
		gdb.Where("user_id = ?", pharmacy.ID).Delete(&domain.PharmacyProfile{})
		gdb.Where("id IN ?", []uuid.UUID{customer.ID, pharmacy.ID}).Delete(&domain.User{})
	})
	return channel
}

func TestSendMessageAllocatesSequentialSeqs(t *testing.T) {
	gdb := testutil.DB(t)
	svc := newChatServiceForTest(t, gdb)
	channel := seedChatForService(t, gdb, "+915000000001", "+915000000002")
	dbc := dbctx.Context{Ctx: context.Background()}

	for want := int64(0); want < 3; want++ {
		row, err := svc.SendMessage(dbc, SendMessageInput{
			ChatID:     channel.ID,
			SenderID:   channel.CustomerID.String(),
			SenderRole: domain.RoleCustomer,
			Text:       "ping",
		})
		if err != nil {
			t.Fatalf("SendMessage %d: %v", want, err)
		}
		if row.Seq != want {
			t.Fatalf("seq = %d, want %d", row.Seq, want)
		}
	}

	msgs, err := svc.ListMessages(dbc, channel.ID, channel.CustomerID, -1, 0)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("len = %d, want 3", len(msgs))
	}
}

func TestSendMessageRejectsNonParticipant(t *testing.T) {
	gdb := testutil.DB(t)
	svc := newChatServiceForTest(t, gdb)
	channel := seedChatForService(t, gdb, "+915000000003", "+915000000004")
	dbc := dbctx.Context{Ctx: context.Background()}

	_, err := svc.SendMessage(dbc, SendMessageInput{
		ChatID:     channel.ID,
		SenderID:   uuid.NewString(),
		SenderRole: domain.RoleCustomer,
		Text:       "hi",
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound for outsiders", err)
	}

	// reads are fenced the same way
	if _, err := svc.ListMessages(dbc, channel.ID, uuid.New(), -1, 0); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ListMessages (outsider): err=%v, want ErrNotFound", err)
	}
}

func TestSendMessageSystemSenderAllowed(t *testing.T) {
	gdb := testutil.DB(t)
	svc := newChatServiceForTest(t, gdb)
	channel := seedChatForService(t, gdb, "+915000000005", "+915000000006")
	dbc := dbctx.Context{Ctx: context.Background()}

	row, err := svc.SendMessage(dbc, SendMessageInput{
		ChatID:     channel.ID,
		SenderID:   domain.SystemSenderID,
		SenderRole: domain.SystemSenderID,
		Text:       "request closed",
		Type:       domain.MessageTypeSystem,
	})
	if err != nil {
		t.Fatalf("SendMessage (system): %v", err)
	}
	if row.Type != domain.MessageTypeSystem {
		t.Fatalf("type = %q", row.Type)
	}
}

func TestSendMessageValidation(t *testing.T) {
	svc := &chatService{}
	dbc := dbctx.Context{Ctx: context.Background()}

	cases := []SendMessageInput{
		{},                                  // no chat id
		{ChatID: uuid.New()},                // empty text
		{ChatID: uuid.New(), Type: "video"}, // unknown type
		{ChatID: uuid.New(), Type: "image"}, // image without url
	}
	for i, in := range cases {
		if _, err := svc.SendMessage(dbc, in); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("case %d: err=%v, want ErrValidation", i, err)
		}
	}
}

func TestGetUnknownChat(t *testing.T) {
	gdb := testutil.DB(t)
	svc := newChatServiceForTest(t, gdb)
	_, err := svc.Get(dbctx.Context{Ctx: context.Background()}, uuid.New(), uuid.Nil)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound", err)
	}
}
