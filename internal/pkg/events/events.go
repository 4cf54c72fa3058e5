package events

import "context"

const (
	TopicBoardChanged = "agencyhub.board.changed"
)

// BoardChanged tells other instances that a pipeline's board moved on and
// their cached snapshot is stale.
type BoardChanged struct {
	PipelineID string `json:"pipelineId"`
	Origin     string `json:"origin"`
	Reason     string `json:"reason"`
}

// Publisher sends events to the event bus.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// Subscriber receives events from the event bus.
type Subscriber interface {
	// Subscribe delivers raw event payloads on the returned channel.
	// Call the returned cancel function to unsubscribe and close the channel.
	Subscribe(topic string) (<-chan []byte, func(), error)
	Close() error
}
