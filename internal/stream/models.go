package stream

import "time"

// SessionKey uniquely identifies a live session (a ride or a video stream).
type SessionKey string

// DefaultWindowSize is the default number of segments retained in the
// sliding window.
const DefaultWindowSize = 10

// Segment is one chunk of video data referenced by filename in the media
// playlist.
type Segment struct {
	Filename  string
	Duration  float64
	CreatedAt time.Time
	Payload   []byte
}

// FrameStats is the computed statistics snapshot for a frame session.
type FrameStats struct {
	FrameCount       int64   `json:"frameCount"`
	TotalBytes       int64   `json:"totalBytes"`
	AverageFrameSize float64 `json:"averageFrameSize"`
	BytesPerSecond   float64 `json:"bytesPerSecond"`
	ViewerCount      int     `json:"viewerCount"`
	HasLatestFrame   bool    `json:"hasLatestFrame"`
}

// SessionSummary is the listing projection of a session.
type SessionSummary struct {
	Key         string    `json:"key"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
	ViewerCount int       `json:"viewerCount"`
}
