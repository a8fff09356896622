// Package publisher defines the outbound change-event contract.
package publisher

import "context"

// Publisher sends a JSON-encodable payload to a topic and returns its
// message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
