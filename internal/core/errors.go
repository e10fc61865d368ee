package core

import "errors"

var (
	// ErrPermissionDenied means the platform refused device access. The
	// caller must force both media toggles off and tell the user to grant
	// permission; it is never fatal to the session.
	ErrPermissionDenied = errors.New("media permission denied")

	// ErrNoDevice means acquisition failed for a reason other than
	// permission (missing or busy hardware).
	ErrNoDevice = errors.New("no media device")

	// ErrChannelDown is surfaced after a signaling channel exhausts its
	// reconnection budget. The session stays usable in degraded mode.
	ErrChannelDown = errors.New("signaling channel down")
)
