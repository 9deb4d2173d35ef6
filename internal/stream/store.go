package stream

// Store is the persistence abstraction for session state. Implementations can
// be in-memory or, eventually, backed by durable storage. The Registry uses
// Store for all reads and writes and layers its own locking on top, so Store
// implementations do not need to be concurrency-safe.
type Store interface {
	Get(key SessionKey) (*Session, bool)
	Set(s *Session)
	Delete(key SessionKey)
	Keys() []SessionKey
}

// InMemoryStore is an in-memory implementation of Store. It stands in for the
// durable object store a production deployment would use for segments.
type InMemoryStore struct {
	sessions map[SessionKey]*Session
}

// NewInMemoryStore returns a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[SessionKey]*Session),
	}
}

// Get implements Store.Get.
func (s *InMemoryStore) Get(key SessionKey) (*Session, bool) {
	sess, ok := s.sessions[key]
	return sess, ok
}

// Set implements Store.Set.
func (s *InMemoryStore) Set(sess *Session) {
	s.sessions[sess.key] = sess
}

// Delete implements Store.Delete.
func (s *InMemoryStore) Delete(key SessionKey) {
	delete(s.sessions, key)
}

// Keys implements Store.Keys.
func (s *InMemoryStore) Keys() []SessionKey {
	keys := make([]SessionKey, 0, len(s.sessions))
	for k := range s.sessions {
		keys = append(keys, k)
	}
	return keys
}
