package stream

import (
	"fmt"
	"sync"
	"time"
)

// Session is one tracked live channel. It owns a single-slot frame buffer and
// a sliding window of segments; a given deployment uses one or the other per
// registry, but the state machine (active → stopped → evicted, viewer set,
// lastActivity) is shared.
//
// Sessions are created and destroyed only by a Registry. Each Session guards
// its own mutable state with its own mutex so unrelated sessions never block
// each other.
type Session struct {
	key       SessionKey
	createdAt time.Time

	mu           sync.Mutex
	active       bool
	stoppedAt    time.Time
	lastActivity time.Time
	viewers      map[string]struct{}

	// Single-slot frame buffer. Only the most recent payload is retained,
	// so memory stays bounded regardless of stream duration.
	latestFrame []byte
	frameCount  int64
	totalBytes  int64

	// Sliding window of segments, oldest first.
	segments      []Segment
	totalAppended int64
	windowSize    int
}

func newSession(key SessionKey, windowSize int, now time.Time) *Session {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &Session{
		key:          key,
		createdAt:    now,
		active:       true,
		lastActivity: now,
		viewers:      make(map[string]struct{}),
		windowSize:   windowSize,
	}
}

// Key returns the external identifier of the session.
func (s *Session) Key() SessionKey { return s.key }

// CreatedAt returns the creation time of the session.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Active reports whether the session has not been stopped.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// UpdateFrame replaces the latest frame payload, bumping the frame and byte
// counters. Historical frames are not retrievable.
func (s *Session) UpdateFrame(payload []byte, now time.Time) (FrameStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return FrameStats{}, ErrInactive
	}

	s.latestFrame = payload
	s.frameCount++
	s.totalBytes += int64(len(payload))
	s.lastActivity = now

	return s.statsLocked(now), nil
}

// LatestFrame returns the most recently uploaded frame. A stopped session no
// longer serves frames: the latest frame is a liveness signal, unlike the
// segment window which keeps serving during the stop grace period.
func (s *Session) LatestFrame() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return nil, ErrInactive
	}
	if s.latestFrame == nil {
		return nil, ErrNoData
	}
	return s.latestFrame, nil
}

// Stats returns the computed statistics snapshot for the session.
func (s *Session) Stats(now time.Time) FrameStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statsLocked(now)
}

// statsLocked computes derived stats. Caller must hold s.mu.
func (s *Session) statsLocked(now time.Time) FrameStats {
	st := FrameStats{
		FrameCount:     s.frameCount,
		TotalBytes:     s.totalBytes,
		ViewerCount:    len(s.viewers),
		HasLatestFrame: s.latestFrame != nil,
	}
	if s.frameCount > 0 {
		st.AverageFrameSize = float64(s.totalBytes) / float64(s.frameCount)
	}
	if elapsed := now.Sub(s.createdAt).Seconds(); elapsed > 0 {
		st.BytesPerSecond = float64(s.totalBytes) / elapsed
	}
	return st
}

// AppendSegment adds a segment to the sliding window, assigning the next
// sequential filename. Appending beyond the window size evicts the oldest
// segment.
func (s *Session) AppendSegment(payload []byte, duration float64, now time.Time) (filename string, index int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return "", 0, ErrInactive
	}

	index = s.totalAppended
	filename = fmt.Sprintf("segment%d.ts", index)
	s.segments = append(s.segments, Segment{
		Filename:  filename,
		Duration:  duration,
		CreatedAt: now,
		Payload:   payload,
	})
	if len(s.segments) > s.windowSize {
		s.segments = s.segments[len(s.segments)-s.windowSize:]
	}
	s.totalAppended++
	s.lastActivity = now

	return filename, index, nil
}

// SegmentByName returns the payload of a segment still in the window.
// Segments remain readable after the session is stopped, until eviction.
func (s *Session) SegmentByName(filename string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.segments {
		if s.segments[i].Filename == filename {
			return s.segments[i].Payload, nil
		}
	}
	return nil, ErrNotFound
}

// PlaylistSnapshot returns a copy of the retained segments (oldest first),
// the media sequence number of the oldest retained segment, and whether the
// session is still live.
func (s *Session) PlaylistSnapshot() (segments []Segment, mediaSequence int64, live bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	segments = make([]Segment, len(s.segments))
	copy(segments, s.segments)

	mediaSequence = s.totalAppended - int64(len(s.segments))
	if mediaSequence < 0 {
		mediaSequence = 0
	}
	return segments, mediaSequence, s.active
}

// join inserts a viewer. Caller (Registry) resolved the session; the liveness
// re-check happens here, at the point of mutation.
func (s *Session) join(viewerID string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return 0, ErrInactive
	}
	s.viewers[viewerID] = struct{}{}
	s.lastActivity = now
	return len(s.viewers), nil
}

// leave removes a viewer if present; leaving without a prior join is a no-op.
func (s *Session) leave(viewerID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.viewers, viewerID)
	return len(s.viewers)
}

// stop marks the session inactive and records when, starting the grace
// period. It reports whether the session was live.
func (s *Session) stop(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return false
	}
	s.active = false
	s.stoppedAt = now
	return true
}

// shouldEvict reports whether the sweep should remove this session: stopped
// sessions after their grace period, never-stopped sessions after the idle
// timeout (idleTimeout <= 0 disables idle eviction).
func (s *Session) shouldEvict(now time.Time, grace, idleTimeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return now.Sub(s.stoppedAt) > grace
	}
	return idleTimeout > 0 && now.Sub(s.lastActivity) > idleTimeout
}

// Summary returns the listing projection of the session.
func (s *Session) Summary() SessionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	return SessionSummary{
		Key:         string(s.key),
		Active:      s.active,
		CreatedAt:   s.createdAt,
		ViewerCount: len(s.viewers),
	}
}
