package conversation

// Persister is the persistence capability consumed by the Store. All three
// operations are fire-and-forget from the store's perspective; errors are
// logged by the caller, never propagated further.
type Persister interface {
	Insert(c *Conversation) error
	Save(c *Conversation) error
	Delete(c *Conversation) error
}

// NullPersister discards all writes. Useful for tests or a purely in-memory
// session.
type NullPersister struct{}

func (n *NullPersister) Insert(c *Conversation) error { return nil }
func (n *NullPersister) Save(c *Conversation) error   { return nil }
func (n *NullPersister) Delete(c *Conversation) error { return nil }

var _ Persister = (*NullPersister)(nil)
