package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ProductChanged is published when a product's price or rules may have changed.
type ProductChanged struct {
	ProductID int64  `json:"product_id"`
	Topic     string `json:"topic"`
}

// Subscriber reacts to emitted product events.
type Subscriber interface {
	ProductChanged(ctx context.Context, event ProductChanged) error
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(ctx context.Context, event ProductChanged) error

// ProductChanged implements Subscriber.
func (f SubscriberFunc) ProductChanged(ctx context.Context, event ProductChanged) error {
	return f(ctx, event)
}

// Bus fans product events out to every subscriber.
type Bus struct {
	Subscribers []Subscriber
}

// Subscribe appends s to the subscriber list.
func (b *Bus) Subscribe(s Subscriber) {
	if s != nil {
		b.Subscribers = append(b.Subscribers, s)
	}
}

// Emit dispatches the event to all subscribers. Every subscriber runs even
// when an earlier one fails; failures are joined.
func (b *Bus) Emit(ctx context.Context, topic string, productID int64) (ProductChanged, error) {
	if b == nil {
		return ProductChanged{}, errors.New("events: bus not configured")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return ProductChanged{}, errors.New("events: topic is required")
	}
	if productID <= 0 {
		return ProductChanged{}, errors.New("events: product id is required")
	}
	ev := ProductChanged{ProductID: productID, Topic: topic}
	var joined error
	for _, sub := range b.Subscribers {
		if sub == nil {
			continue
		}
		if err := sub.ProductChanged(ctx, ev); err != nil {
			joined = errors.Join(joined, fmt.Errorf("events: subscriber: %w", err))
		}
	}
	return ev, joined
}
