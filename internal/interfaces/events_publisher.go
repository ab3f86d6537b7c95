package interfaces

import "context"

// EventPublisher hands a domain event to the message bus. Publish must not
// block indefinitely: implementations retry transient broker failures within
// a bounded budget and then return the delivery error to the caller.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event any) error
}
