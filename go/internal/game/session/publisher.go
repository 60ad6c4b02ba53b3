package session

// Publisher receives every Change in the order it was applied.
// Publish is called with the Store lock held and must not block.
type Publisher interface {
	Publish(change Change)
}

// PublisherFunc adapts a function to the Publisher interface
type PublisherFunc func(change Change)

func (f PublisherFunc) Publish(change Change) {
	f(change)
}
