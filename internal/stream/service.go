package stream

// Service applies the buffer policies on top of a Registry and renders
// playlists. One Service instance exists per session kind (live frames, HLS).
type Service struct {
	reg *Registry
	now Clock
}

// NewService returns a Service over the given registry.
func NewService(reg *Registry) *Service {
	return &Service{reg: reg, now: reg.now}
}

// Start returns an active session descriptor for key, creating the session
// if absent and replacing one that was stopped but not yet swept. Starting a
// live session is idempotent; starting never fails. The created return is
// true when a new session was materialized.
func (s *Service) Start(key SessionKey) (SessionSummary, bool) {
	sess, created := s.reg.Start(key)
	return sess.Summary(), created
}

// Stop marks the session inactive; it is removed after the registry's grace
// period. Unknown keys are a no-op. The return reports whether a live session
// actually transitioned to stopped.
func (s *Service) Stop(key SessionKey) bool {
	return s.reg.Stop(key)
}

// UploadFrame replaces the session's latest frame, creating the session on
// first upload. Returns ErrInactive for a stopped session.
func (s *Service) UploadFrame(key SessionKey, payload []byte) (FrameStats, error) {
	sess, _ := s.reg.GetOrCreate(key)
	return sess.UpdateFrame(payload, s.now())
}

// LatestFrame returns the most recent frame for the session. ErrNotFound if
// the session is absent, ErrInactive if stopped, ErrNoData if no frame has
// been uploaded yet.
func (s *Service) LatestFrame(key SessionKey) ([]byte, error) {
	sess, ok := s.reg.Get(key)
	if !ok {
		return nil, ErrNotFound
	}
	return sess.LatestFrame()
}

// Stats returns the computed statistics for the session.
func (s *Service) Stats(key SessionKey) (FrameStats, error) {
	sess, ok := s.reg.Get(key)
	if !ok {
		return FrameStats{}, ErrNotFound
	}
	return sess.Stats(s.now()), nil
}

// UploadSegment appends a segment to the session's sliding window, creating
// the session on first upload. Returns the assigned filename and the
// stream-relative index of the segment.
func (s *Service) UploadSegment(key SessionKey, payload []byte, duration float64) (filename string, index int64, err error) {
	sess, _ := s.reg.GetOrCreate(key)
	return sess.AppendSegment(payload, duration, s.now())
}

// Playlist renders the session's media playlist. Stopped sessions keep
// serving their playlist (with the end-of-list marker) until evicted.
func (s *Service) Playlist(key SessionKey) (string, error) {
	sess, ok := s.reg.Get(key)
	if !ok {
		return "", ErrNotFound
	}
	segments, mediaSequence, live := sess.PlaylistSnapshot()
	return BuildMediaPlaylist(segments, mediaSequence, live), nil
}

// SegmentData returns the payload of a retained segment. ErrNotFound covers
// both an unknown session and a filename outside the current window.
func (s *Service) SegmentData(key SessionKey, filename string) ([]byte, error) {
	sess, ok := s.reg.Get(key)
	if !ok {
		return nil, ErrNotFound
	}
	return sess.SegmentByName(filename)
}

// Join adds a viewer to the session.
func (s *Service) Join(key SessionKey, viewerID string) (int, error) {
	return s.reg.Join(key, viewerID)
}

// Leave removes a viewer from the session.
func (s *Service) Leave(key SessionKey, viewerID string) int {
	return s.reg.Leave(key, viewerID)
}

// ListActive returns summaries of all sessions that are not stopped.
func (s *Service) ListActive() []SessionSummary {
	return s.reg.ListActive()
}

// ActiveCount returns the number of sessions that are not stopped.
func (s *Service) ActiveCount() int {
	return s.reg.ActiveCount()
}
