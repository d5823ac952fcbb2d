package services

import (
	"context"
	"os"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/pharmalink/pharmalink-backend/internal/platform/logger"
)

// PushService delivers device alerts over FCM. Delivery is best-effort: a
// missed push is recovered by the durable store on the next app open, so
// failures are logged and dropped, never retried into the request path.
type PushService interface {
	Notify(ctx context.Context, tokens []string, title, body string, data map[string]string)
}

type pushService struct {
	log    *logger.Logger
	client *messaging.Client
}

// NewPushService initializes the FCM client from FIREBASE_CREDENTIALS_JSON
// (inline JSON) or FIREBASE_CREDENTIALS_PATH. Missing credentials degrade to
// a no-op sender rather than failing startup.
func NewPushService(baseLog *logger.Logger) PushService {
	serviceLog := baseLog.With("service", "PushService")

	ctx := context.Background()
	var opts []option.ClientOption
	if credJSON := os.Getenv("FIREBASE_CREDENTIALS_JSON"); credJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credJSON)))
	} else if credPath := os.Getenv("FIREBASE_CREDENTIALS_PATH"); credPath != "" {
		opts = append(opts, option.WithCredentialsFile(credPath))
	} else {
		serviceLog.Warn("no firebase credentials configured, push notifications disabled")
		return &pushService{log: serviceLog}
	}

	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		serviceLog.Warn("firebase init failed, push notifications disabled", "error", err)
		return &pushService{log: serviceLog}
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		serviceLog.Warn("fcm client init failed, push notifications disabled", "error", err)
		return &pushService{log: serviceLog}
	}
	return &pushService{log: serviceLog, client: client}
}

func (s *pushService) Notify(ctx context.Context, tokens []string, title, body string, data map[string]string) {
	if s.client == nil || len(tokens) == 0 {
		return
	}
	go func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		msg := &messaging.MulticastMessage{
			Tokens: tokens,
			Notification: &messaging.Notification{
				Title: title,
				Body:  body,
			},
			Data: data,
		}
		resp, err := s.client.SendEachForMulticast(sendCtx, msg)
		if err != nil {
			s.log.Warn("fcm send failed", "error", err)
			return
		}
		if resp.FailureCount > 0 {
			s.log.Debug("fcm partial delivery", "success", resp.SuccessCount, "failure", resp.FailureCount)
		}
	}()
}
