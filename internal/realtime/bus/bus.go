package bus

import (
	"context"

	"github.com/pharmalink/pharmalink-backend/internal/realtime"
)

// Bus carries realtime messages across process instances. A publish on one
// instance reaches every instance's forwarder, which feeds the local hub.
type Bus interface {
	Publish(ctx context.Context, msg realtime.Message) error
	StartForwarder(ctx context.Context, onMsg func(m realtime.Message)) error
	Close() error
}
