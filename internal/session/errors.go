package session

import "errors"

var (
	// ErrBusy is returned by Submit while another submission is in flight.
	ErrBusy = errors.New("a submission is already in progress")

	// ErrUnsupported is returned by Dictate when speech capture is unavailable.
	ErrUnsupported = errors.New("speech input is not supported")

	// ErrRemoteCall wraps classifier failures.
	ErrRemoteCall = errors.New("classification failed")

	// ErrPersist wraps history storage failures.
	ErrPersist = errors.New("history storage failed")

	// ErrStale is returned when a response arrives after the history it
	// belonged to was cleared. The response is dropped.
	ErrStale = errors.New("response discarded after history clear")
)
