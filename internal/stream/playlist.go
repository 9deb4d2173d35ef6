package stream

import (
	"fmt"
	"math"
	"strings"
)

// defaultTargetDuration is used when no retained segment has a positive
// duration.
const defaultTargetDuration = 10

// BuildMediaPlaylist converts the retained segments (ordered oldest first)
// into an HLS media playlist. mediaSequence is the stream-relative index of
// the oldest retained segment. If live is false, #EXT-X-ENDLIST is appended
// so players treat the stream as complete.
//
// The output is deterministic: identical inputs produce byte-identical
// playlists, which real players rely on for caching.
func BuildMediaPlaylist(segments []Segment, mediaSequence int64, live bool) string {
	var b strings.Builder

	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", targetDuration(segments))
	fmt.Fprintf(&b, "#EXT-X-MEDIA-SEQUENCE:%d\n", mediaSequence)

	for _, seg := range segments {
		fmt.Fprintf(&b, "#EXTINF:%.1f,\n", seg.Duration)
		b.WriteString(seg.Filename)
		b.WriteString("\n")
	}

	if !live {
		b.WriteString("#EXT-X-ENDLIST\n")
	}

	return b.String()
}

// targetDuration returns the #EXT-X-TARGETDURATION value: the ceiling of the
// maximum retained segment duration, defaulting to 10 seconds.
func targetDuration(segments []Segment) int {
	max := 0.0
	for _, seg := range segments {
		if seg.Duration > max {
			max = seg.Duration
		}
	}
	if max <= 0 {
		return defaultTargetDuration
	}
	return int(math.Ceil(max))
}
