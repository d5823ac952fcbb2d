package realtime

type Event string

const (
	EventRequestCreated    Event = "RequestCreated"
	EventRequestClosed     Event = "RequestClosed"
	EventResponseSubmitted Event = "ResponseSubmitted"
	EventChatCreated       Event = "ChatCreated"
	EventChatMessage       Event = "ChatMessage"
	EventNearbySnapshot    Event = "NearbySnapshot"
)

// Message is one realtime notification. Channel is a routing key: a user id
// for personal events, "chat:<chatId>" for chat traffic, or RequestFeed for
// request lifecycle changes the broadcast engine reacts to.
type Message struct {
	Channel string `json:"channel"`
	Event   Event  `json:"event"`
	Data    any    `json:"data,omitempty"`
}

// RequestFeed is the channel carrying request created/closed events.
const RequestFeed = "requests"

// ChatChannelKey builds the routing key for one chat's message stream.
func ChatChannelKey(chatID string) string { return "chat:" + chatID }
