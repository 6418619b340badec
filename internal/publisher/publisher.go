// Package publisher defines the event fan-out contract for created
// notifications.
package publisher

import "context"

// Publisher pushes notification events to a broker for downstream delivery.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
