// Package media owns the local device stream: acquisition, toggle state,
// and release. No other component may start or stop tracks.
package media

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mcastano/reunion/internal/core"
)

type Controller struct {
	opener core.DeviceOpener

	mu     sync.Mutex
	stream *core.MediaStream
	camOn  bool
	micOn  bool
}

func NewController(opener core.DeviceOpener) *Controller {
	return &Controller{opener: opener}
}

// Ensure reconciles the desired toggle state with the device. It acquires
// a stream only when audio is desired and none exists, or when video is
// newly desired on an audio-only stream; every other call just flips the
// enabled flags on existing tracks. A replacement acquisition is always
// paired with release of the prior stream, so two live streams are never
// outstanding. On acquisition failure both toggles are forced off.
func (c *Controller) Ensure(ctx context.Context, video, audio bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.stream == nil:
		if !audio && !video {
			c.camOn, c.micOn = false, false
			return nil
		}
		s, err := c.opener.Open(ctx, video, audio)
		if err != nil {
			c.camOn, c.micOn = false, false
			log.Warn().Str("module", "media").Err(err).Msg("device acquisition failed")
			return err
		}
		c.stream = s
	case video && c.stream.Video == nil:
		s, err := c.opener.Open(ctx, true, audio)
		if err != nil {
			c.camOn, c.micOn = false, false
			log.Warn().Str("module", "media").Err(err).Msg("video upgrade failed")
			return err
		}
		old := c.stream
		c.stream = s
		old.Stop()
	}

	if c.stream.Audio != nil {
		c.stream.Audio.SetEnabled(audio)
	}
	if c.stream.Video != nil {
		c.stream.Video.SetEnabled(video)
	}
	c.camOn = video && c.stream.Video != nil
	c.micOn = audio && c.stream.Audio != nil
	return nil
}

func (c *Controller) Stream() *core.MediaStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream
}

func (c *Controller) CameraOn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.camOn
}

func (c *Controller) MicOn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.micOn
}

// Stop releases all tracks unconditionally.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream != nil {
		c.stream.Stop()
		c.stream = nil
	}
	c.camOn, c.micOn = false, false
}
