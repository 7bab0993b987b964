package services

import "errors"

var (
	ErrLocked          = errors.New("editing is locked")
	ErrNotReady        = errors.New("data is still loading")
	ErrEmptyPassword   = errors.New("password is required")
	ErrWrongPassword   = errors.New("wrong password")
	ErrTimerRunning    = errors.New("timer already running")
	ErrTimerNotRunning = errors.New("timer is not running")
	ErrInvalidSession  = errors.New("invalid session")
	ErrNoData          = errors.New("no data to export")
	ErrNoStore         = errors.New("no work log store configured")
)
