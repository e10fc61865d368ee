package media

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	"github.com/rs/zerolog/log"

	"github.com/mcastano/reunion/internal/core"
)

// Devices acquires real capture streams via pion/mediadevices. Platform
// drivers are registered by the blank imports in drivers_linux.go.
type Devices struct {
	selector *mediadevices.CodecSelector
}

func NewDevices() (*Devices, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("vp8 params: %w", err)
	}
	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("opus params: %w", err)
	}
	selector := mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	)
	return &Devices{selector: selector}, nil
}

func (d *Devices) Open(ctx context.Context, video, audio bool) (*core.MediaStream, error) {
	constraints := mediadevices.MediaStreamConstraints{Codec: d.selector}
	if video {
		constraints.Video = func(_ *mediadevices.MediaTrackConstraints) {}
	}
	if audio {
		constraints.Audio = func(_ *mediadevices.MediaTrackConstraints) {}
	}

	stream, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		log.Warn().Str("module", "media.devices").Err(err).Msg("GetUserMedia failed")
		return nil, classifyAcquireError(err)
	}

	out := &core.MediaStream{}
	for _, track := range stream.GetAudioTracks() {
		t := track
		out.Audio = core.NewMediaTrack(t, t.Close)
		break
	}
	for _, track := range stream.GetVideoTracks() {
		t := track
		out.Video = core.NewMediaTrack(t, t.Close)
		break
	}
	if audio && out.Audio == nil {
		out.Stop()
		return nil, fmt.Errorf("%w: no audio track", core.ErrNoDevice)
	}
	return out, nil
}

// classifyAcquireError keeps the driver error in the chain. Access
// refusals (EACCES/EPERM from the V4L2 or ALSA device nodes) map to
// ErrPermissionDenied, everything else to ErrNoDevice.
func classifyAcquireError(err error) error {
	if errors.Is(err, os.ErrPermission) {
		return fmt.Errorf("%w: %w", core.ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %w", core.ErrNoDevice, err)
}
