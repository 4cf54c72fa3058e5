package events

import (
	"context"
	"sync"
)

// NoopPublisher is used when NATS_URL is not configured.
type NoopPublisher struct{}

func (n *NoopPublisher) Publish(ctx context.Context, topic string, event any) error {
	return nil
}

func (n *NoopPublisher) Close() error {
	return nil
}

// NoopSubscriber never delivers anything.
type NoopSubscriber struct{}

func (n *NoopSubscriber) Subscribe(topic string) (<-chan []byte, func(), error) {
	ch := make(chan []byte)
	var once sync.Once
	return ch, func() { once.Do(func() { close(ch) }) }, nil
}

func (n *NoopSubscriber) Close() error {
	return nil
}

// NoopBus is both sides of a bus for single instance deployments.
type NoopBus struct {
	NoopPublisher
	NoopSubscriber
}

func (n *NoopBus) Close() error {
	return nil
}
