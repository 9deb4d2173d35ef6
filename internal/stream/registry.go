package stream

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Clock returns the current time. Injectable so tests can drive eviction
// without real sleeps.
type Clock func() time.Time

// Config holds the lifecycle policy for a Registry. Different session kinds
// (latest-frame live view vs. HLS) use different grace periods.
type Config struct {
	// WindowSize is the maximum number of segments retained per session.
	WindowSize int
	// GracePeriod is how long a stopped session remains queryable before the
	// sweep removes it.
	GracePeriod time.Duration
	// IdleTimeout is how long a never-stopped session may go without any
	// mutating call before the sweep removes it. <= 0 disables idle eviction.
	IdleTimeout time.Duration
	// Clock defaults to time.Now.
	Clock Clock
}

// Registry owns the key→Session mapping for one session kind. All map-level
// operations are mutually exclusive; per-session buffer mutation is guarded
// by the Session's own mutex so unrelated sessions do not block each other.
type Registry struct {
	mu    sync.Mutex
	store Store

	windowSize  int
	gracePeriod time.Duration
	idleTimeout time.Duration
	now         Clock
}

// NewRegistry constructs a Registry over a default in-memory store.
func NewRegistry(cfg Config) *Registry {
	return NewRegistryWithStore(NewInMemoryStore(), cfg)
}

// NewRegistryWithStore constructs a Registry over the given Store. Useful for
// testing or for plugging in a different backend.
func NewRegistryWithStore(store Store, cfg Config) *Registry {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Registry{
		store:       store,
		windowSize:  cfg.WindowSize,
		gracePeriod: cfg.GracePeriod,
		idleTimeout: cfg.IdleTimeout,
		now:         cfg.Clock,
	}
}

// GetOrCreate returns the session for key, creating a new active one if
// absent. It never fails. The created return is true when a new session was
// materialized.
func (r *Registry) GetOrCreate(key SessionKey) (sess *Session, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sess, ok := r.store.Get(key); ok {
		return sess, false
	}

	sess = newSession(key, r.windowSize, r.now())
	r.store.Set(sess)
	return sess, true
}

// Start returns an active session for key, creating one if absent. Unlike
// GetOrCreate, a key whose previous session was stopped but not yet swept is
// reused: the dead session is replaced by a fresh active one, so an explicit
// start never fails and never hands back a stopped descriptor.
func (r *Registry) Start(key SessionKey) (sess *Session, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.store.Get(key); ok && existing.Active() {
		return existing, false
	}

	sess = newSession(key, r.windowSize, r.now())
	r.store.Set(sess)
	return sess, true
}

// Get returns the session for key without creating one.
func (r *Registry) Get(key SessionKey) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Get(key)
}

// Stop marks the session inactive and starts its grace period. Stopping an
// unknown or already-stopped session is a no-op, for idempotency; the return
// reports whether a live session actually transitioned.
func (r *Registry) Stop(key SessionKey) bool {
	r.mu.Lock()
	sess, ok := r.store.Get(key)
	r.mu.Unlock()

	if !ok {
		return false
	}
	return sess.stop(r.now())
}

// Join adds a viewer to the session. ErrNotFound if the session is absent,
// ErrInactive if it has been stopped.
func (r *Registry) Join(key SessionKey, viewerID string) (viewerCount int, err error) {
	sess, ok := r.Get(key)
	if !ok {
		return 0, ErrNotFound
	}
	return sess.join(viewerID, r.now())
}

// Leave removes a viewer from the session. Leaving an unknown session or an
// unknown viewer is a no-op.
func (r *Registry) Leave(key SessionKey, viewerID string) (viewerCount int) {
	sess, ok := r.Get(key)
	if !ok {
		return 0
	}
	return sess.leave(viewerID)
}

// ListActive returns summaries of all sessions that are not stopped, sorted
// by key for stable output.
func (r *Registry) ListActive() []SessionSummary {
	r.mu.Lock()
	keys := r.store.Keys()
	sessions := make([]*Session, 0, len(keys))
	for _, k := range keys {
		if sess, ok := r.store.Get(k); ok {
			sessions = append(sessions, sess)
		}
	}
	r.mu.Unlock()

	out := make([]SessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		if sum := sess.Summary(); sum.Active {
			out = append(out, sum)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// ActiveCount returns the number of sessions that are not stopped. Used for
// metrics.
func (r *Registry) ActiveCount() int {
	return len(r.ListActive())
}

// SweepOnce removes sessions whose grace period or idle timeout has elapsed
// as of now, returning the evicted keys. A session re-created under a reused
// key carries a fresh stop timestamp, so a stale deadline from a previous
// incarnation cannot remove it.
func (r *Registry) SweepOnce(now time.Time) []SessionKey {
	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted []SessionKey
	for _, key := range r.store.Keys() {
		sess, ok := r.store.Get(key)
		if !ok {
			continue
		}
		if sess.shouldEvict(now, r.gracePeriod, r.idleTimeout) {
			r.store.Delete(key)
			evicted = append(evicted, key)
		}
	}
	return evicted
}

// Run drives the eviction sweep on a ticker until ctx is cancelled. onEvict,
// if non-nil, is called with the number of sessions each sweep removed.
func (r *Registry) Run(ctx context.Context, interval time.Duration, onEvict func(evicted []SessionKey)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if evicted := r.SweepOnce(r.now()); len(evicted) > 0 && onEvict != nil {
				onEvict(evicted)
			}
		}
	}
}
