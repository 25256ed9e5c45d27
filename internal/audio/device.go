package audio

// Device streams 16-bit mono PCM to an output. Stream returns
// immediately; done fires once the buffer has fully drained. Stop
// cancels an in-flight stream without firing done.
type Device interface {
	Stream(pcm []byte, done func()) error
	Stop()
	Close() error
}

// Opener creates a Device for the given sample rate. The playback
// worker uses it for initial open and for reinitialization after a
// driver fault.
type Opener func(sampleRate int) (Device, error)
