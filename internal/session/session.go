// Package session carries the identifiers produced while a run progresses.
package session

// Context is the working state of one run. Upload fills in the video path
// and file name, Detection the video id, and the configuration persistence
// step the config id. Each run owns its own Context; values carried over from
// an earlier run are copied in, never shared.
type Context struct {
	VideoID       int64   `json:"video_id,omitempty"`
	VideoPath     string  `json:"video_path,omitempty"`
	VideoFilename string  `json:"video_filename,omitempty"`
	ConfigID      int64   `json:"config_id,omitempty"`
	FPS           float64 `json:"fps,omitempty"`
}

// Carry returns a fresh Context seeded from c.
func (c Context) Carry() *Context {
	next := c
	return &next
}

// HasVideo reports whether the backend has assigned a video id.
func (c Context) HasVideo() bool {
	return c.VideoID > 0
}
