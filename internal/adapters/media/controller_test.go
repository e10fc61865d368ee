package media

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcastano/reunion/internal/core"
)

type fakeOpener struct {
	opens   int
	fail    error
	stopped []*countingStop
}

type countingStop struct{ n int }

func (c *countingStop) stop() error {
	c.n++
	return nil
}

func (f *fakeOpener) Open(_ context.Context, video, audio bool) (*core.MediaStream, error) {
	f.opens++
	if f.fail != nil {
		return nil, f.fail
	}
	s := &core.MediaStream{}
	if audio {
		cs := &countingStop{}
		f.stopped = append(f.stopped, cs)
		s.Audio = core.NewMediaTrack(nil, cs.stop)
	}
	if video {
		cs := &countingStop{}
		f.stopped = append(f.stopped, cs)
		s.Video = core.NewMediaTrack(nil, cs.stop)
	}
	return s, nil
}

func TestEnsureIdempotent(t *testing.T) {
	f := &fakeOpener{}
	c := NewController(f)
	ctx := context.Background()

	require.NoError(t, c.Ensure(ctx, false, true))
	require.NoError(t, c.Ensure(ctx, false, true))

	assert.Equal(t, 1, f.opens, "second ensure must not reacquire")
	assert.True(t, c.MicOn())
	assert.False(t, c.CameraOn())
}

func TestToggleMicDoesNotReacquire(t *testing.T) {
	f := &fakeOpener{}
	c := NewController(f)
	ctx := context.Background()

	require.NoError(t, c.Ensure(ctx, false, true))
	require.NoError(t, c.Ensure(ctx, false, false))
	require.NoError(t, c.Ensure(ctx, false, true))

	assert.Equal(t, 1, f.opens)
	assert.True(t, c.Stream().Audio.Enabled())
}

func TestVideoUpgradeSwapsStream(t *testing.T) {
	f := &fakeOpener{}
	c := NewController(f)
	ctx := context.Background()

	require.NoError(t, c.Ensure(ctx, false, true))
	first := c.Stream()
	require.NoError(t, c.Ensure(ctx, true, true))

	assert.Equal(t, 2, f.opens, "video upgrade acquires a replacement stream")
	assert.NotSame(t, first, c.Stream())
	assert.NotNil(t, c.Stream().Video)
	// Tracks of the replaced stream must be released.
	assert.Equal(t, 1, f.stopped[0].n)
	assert.True(t, c.CameraOn())
	assert.True(t, c.MicOn())
}

func TestPermissionDeniedForcesTogglesOff(t *testing.T) {
	f := &fakeOpener{fail: core.ErrPermissionDenied}
	c := NewController(f)

	err := c.Ensure(context.Background(), true, true)
	require.ErrorIs(t, err, core.ErrPermissionDenied)
	assert.False(t, c.CameraOn())
	assert.False(t, c.MicOn())
	assert.Nil(t, c.Stream())
}

func TestStopReleasesEverything(t *testing.T) {
	f := &fakeOpener{}
	c := NewController(f)

	require.NoError(t, c.Ensure(context.Background(), true, true))
	c.Stop()

	assert.Nil(t, c.Stream())
	for _, cs := range f.stopped {
		assert.Equal(t, 1, cs.n, "each track stopped exactly once")
	}
	c.Stop() // idempotent
	for _, cs := range f.stopped {
		assert.Equal(t, 1, cs.n)
	}
}
