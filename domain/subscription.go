package domain

// Subscription is a handle to a stream of messages for one topic.
// Unsubscribe releases the underlying transport subscription; the Stream
// channel is closed afterwards.
type Subscription[T any] struct {
	Stream      chan T
	Unsubscribe func()
	Topic       string
}
