package speech

import "errors"

var (
	// ErrEmptyText rejects requests whose text trims to nothing.
	ErrEmptyText = errors.New("message text is empty")
	// ErrEngineDisabled rejects requests while the engine is disabled.
	ErrEngineDisabled = errors.New("engine is disabled")
	// ErrTooLong rejects requests exceeding the configured word limit.
	ErrTooLong = errors.New("message exceeds word limit")
	// ErrNoDevice reports playback attempted without an audio device.
	ErrNoDevice = errors.New("no audio device")
)
