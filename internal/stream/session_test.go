package stream

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestSession_UpdateFrame_retains_only_latest(t *testing.T) {
	now := time.Now()
	s := newSession("r1", DefaultWindowSize, now)

	var last []byte
	for i := 0; i < 50; i++ {
		last = bytes.Repeat([]byte{byte(i)}, 100+i)
		if _, err := s.UpdateFrame(last, now.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("UpdateFrame %d: %v", i, err)
		}
	}

	got, err := s.LatestFrame()
	if err != nil {
		t.Fatalf("LatestFrame: %v", err)
	}
	if !bytes.Equal(got, last) {
		t.Error("latest frame should be the last uploaded payload")
	}

	st := s.Stats(now.Add(time.Minute))
	if st.FrameCount != 50 {
		t.Errorf("frameCount = %d, want 50", st.FrameCount)
	}
	if !st.HasLatestFrame {
		t.Error("expected hasLatestFrame")
	}
}

func TestSession_LatestFrame_no_data(t *testing.T) {
	s := newSession("r1", DefaultWindowSize, time.Now())
	if _, err := s.LatestFrame(); !errors.Is(err, ErrNoData) {
		t.Errorf("expected ErrNoData, got %v", err)
	}
}

func TestSession_LatestFrame_after_stop(t *testing.T) {
	now := time.Now()
	s := newSession("r1", DefaultWindowSize, now)
	_, _ = s.UpdateFrame([]byte("jpeg"), now)
	s.stop(now)

	if _, err := s.LatestFrame(); !errors.Is(err, ErrInactive) {
		t.Errorf("expected ErrInactive after stop, got %v", err)
	}
	if _, err := s.UpdateFrame([]byte("more"), now); !errors.Is(err, ErrInactive) {
		t.Errorf("expected ErrInactive for upload after stop, got %v", err)
	}
}

func TestSession_Stats_derived_values(t *testing.T) {
	now := time.Now()
	s := newSession("r1", DefaultWindowSize, now)
	_, _ = s.UpdateFrame(make([]byte, 1000), now.Add(time.Second))
	_, _ = s.UpdateFrame(make([]byte, 3000), now.Add(2*time.Second))

	st := s.Stats(now.Add(4 * time.Second))
	if st.TotalBytes != 4000 {
		t.Errorf("totalBytes = %d, want 4000", st.TotalBytes)
	}
	if st.AverageFrameSize != 2000 {
		t.Errorf("averageFrameSize = %v, want 2000", st.AverageFrameSize)
	}
	if st.BytesPerSecond != 1000 {
		t.Errorf("bytesPerSecond = %v, want 1000 (4000 bytes over 4s)", st.BytesPerSecond)
	}
}

func TestSession_AppendSegment_sliding_window(t *testing.T) {
	now := time.Now()
	s := newSession("s1", 10, now)

	for i := 0; i < 12; i++ {
		filename, index, err := s.AppendSegment([]byte{byte(i)}, 10.0, now)
		if err != nil {
			t.Fatalf("AppendSegment %d: %v", i, err)
		}
		if want := fmt.Sprintf("segment%d.ts", i); filename != want {
			t.Errorf("filename = %q, want %q", filename, want)
		}
		if index != int64(i) {
			t.Errorf("index = %d, want %d", index, i)
		}
	}

	segs, mediaSeq, live := s.PlaylistSnapshot()
	if len(segs) != 10 {
		t.Fatalf("window holds %d segments, want 10", len(segs))
	}
	if mediaSeq != 2 {
		t.Errorf("mediaSequence = %d, want 2", mediaSeq)
	}
	if !live {
		t.Error("expected live")
	}
	if segs[0].Filename != "segment2.ts" || segs[9].Filename != "segment11.ts" {
		t.Errorf("window should retain segments 2..11, got %s..%s", segs[0].Filename, segs[9].Filename)
	}
}

func TestSession_SegmentByName(t *testing.T) {
	now := time.Now()
	s := newSession("s1", 3, now)
	for i := 0; i < 5; i++ {
		_, _, _ = s.AppendSegment([]byte{byte(i)}, 10.0, now)
	}

	t.Run("retained", func(t *testing.T) {
		got, err := s.SegmentByName("segment4.ts")
		if err != nil {
			t.Fatalf("SegmentByName: %v", err)
		}
		if !bytes.Equal(got, []byte{4}) {
			t.Errorf("payload = %v, want [4]", got)
		}
	})

	t.Run("evicted", func(t *testing.T) {
		if _, err := s.SegmentByName("segment0.ts"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for evicted segment, got %v", err)
		}
	})

	t.Run("never_created", func(t *testing.T) {
		if _, err := s.SegmentByName("segment99.ts"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestSession_segments_readable_after_stop(t *testing.T) {
	now := time.Now()
	s := newSession("s1", 10, now)
	_, _, _ = s.AppendSegment([]byte("ts"), 10.0, now)
	s.stop(now)

	if _, err := s.SegmentByName("segment0.ts"); err != nil {
		t.Errorf("segments should stay readable during the grace window: %v", err)
	}
	if _, _, err := s.AppendSegment([]byte("ts"), 10.0, now); !errors.Is(err, ErrInactive) {
		t.Errorf("expected ErrInactive for append after stop, got %v", err)
	}
	_, _, live := s.PlaylistSnapshot()
	if live {
		t.Error("snapshot should report not live after stop")
	}
}

func TestSession_viewer_accounting(t *testing.T) {
	now := time.Now()
	s := newSession("r1", DefaultWindowSize, now)

	if n, err := s.join("v1", now); err != nil || n != 1 {
		t.Fatalf("join: n=%d err=%v", n, err)
	}
	if n, err := s.join("v2", now); err != nil || n != 2 {
		t.Fatalf("join v2: n=%d err=%v", n, err)
	}
	// Rejoin is idempotent on the set.
	if n, _ := s.join("v1", now); n != 2 {
		t.Errorf("rejoin should not grow viewer set, n=%d", n)
	}
	if n := s.leave("v1"); n != 1 {
		t.Errorf("leave: n=%d, want 1", n)
	}
	// Leave without a prior join is a no-op.
	if n := s.leave("ghost"); n != 1 {
		t.Errorf("leave unknown viewer: n=%d, want 1", n)
	}
}

func TestSession_shouldEvict(t *testing.T) {
	base := time.Now()
	grace := 5 * time.Second
	idle := time.Minute

	t.Run("stopped_within_grace", func(t *testing.T) {
		s := newSession("r1", DefaultWindowSize, base)
		s.stop(base)
		if s.shouldEvict(base.Add(2*time.Second), grace, idle) {
			t.Error("should not evict before grace elapses")
		}
	})

	t.Run("stopped_past_grace", func(t *testing.T) {
		s := newSession("r1", DefaultWindowSize, base)
		s.stop(base)
		if !s.shouldEvict(base.Add(6*time.Second), grace, idle) {
			t.Error("should evict after grace elapses")
		}
	})

	t.Run("idle_past_timeout", func(t *testing.T) {
		s := newSession("r1", DefaultWindowSize, base)
		if !s.shouldEvict(base.Add(2*time.Minute), grace, idle) {
			t.Error("should evict an idle never-stopped session")
		}
	})

	t.Run("recent_activity_keeps_session", func(t *testing.T) {
		s := newSession("r1", DefaultWindowSize, base)
		_, _ = s.UpdateFrame([]byte("x"), base.Add(90*time.Second))
		if s.shouldEvict(base.Add(2*time.Minute), grace, idle) {
			t.Error("recently-touched session should survive the sweep")
		}
	})

	t.Run("idle_eviction_disabled", func(t *testing.T) {
		s := newSession("r1", DefaultWindowSize, base)
		if s.shouldEvict(base.Add(24*time.Hour), grace, 0) {
			t.Error("idleTimeout <= 0 disables idle eviction")
		}
	})
}
