package media

import (
	"errors"
	"io/fs"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mcastano/reunion/internal/core"
)

func TestClassifyAcquireError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "eacces on device node",
			err:  &fs.PathError{Op: "open", Path: "/dev/video0", Err: syscall.EACCES},
			want: core.ErrPermissionDenied,
		},
		{
			name: "eperm",
			err:  syscall.EPERM,
			want: core.ErrPermissionDenied,
		},
		{
			name: "missing hardware",
			err:  errors.New("failed to find the best driver"),
			want: core.ErrNoDevice,
		},
		{
			name: "device busy",
			err:  &fs.PathError{Op: "open", Path: "/dev/video0", Err: syscall.EBUSY},
			want: core.ErrNoDevice,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classifyAcquireError(tc.err)
			assert.ErrorIs(t, got, tc.want)
			// The driver error stays inspectable behind the sentinel.
			assert.ErrorIs(t, got, tc.err)
		})
	}
}
