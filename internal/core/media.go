package core

import (
	"sync"

	"github.com/pion/webrtc/v4"
)

// MediaTrack pairs a local track with a toggleable enabled flag. Disabling
// a track never releases the device; it only marks the track muted so that
// toggling back on does not re-request permission.
type MediaTrack struct {
	Local webrtc.TrackLocal

	mu      sync.Mutex
	enabled bool
	stopped bool
	stop    func() error
}

func NewMediaTrack(local webrtc.TrackLocal, stop func() error) *MediaTrack {
	return &MediaTrack{Local: local, enabled: true, stop: stop}
}

func (t *MediaTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *MediaTrack) SetEnabled(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = on
}

// Stop releases the underlying device capture. Idempotent.
func (t *MediaTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	if t.stop != nil {
		_ = t.stop()
	}
}

// MediaStream is the local device stream. Ownership stays with the media
// controller; other components receive a read-only reference.
type MediaStream struct {
	Audio *MediaTrack
	Video *MediaTrack
}

func (s *MediaStream) Stop() {
	if s == nil {
		return
	}
	if s.Audio != nil {
		s.Audio.Stop()
	}
	if s.Video != nil {
		s.Video.Stop()
	}
}
