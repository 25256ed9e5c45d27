// Package speech holds the request/message types flowing through the
// synthesis and playback queues, the shared engine state, and the
// command facade exposed to the protocol server.
package speech

import (
	"sync/atomic"
	"time"

	"github.com/vocalcast/speakerd/internal/protocol"
)

// Request is a queued text-to-speech request. Immutable once queued
// except for the skip flag.
type Request struct {
	ID        string
	Text      string
	Voice     string
	Timestamp time.Time
	Sender    map[string]string // reserved for future use
	Censor    bool

	skip atomic.Bool
}

// MarkSkipped cancels the request before synthesis picks it up.
func (r *Request) MarkSkipped() { r.skip.Store(true) }

// Skipped reports whether the request was cancelled.
func (r *Request) Skipped() bool { return r.skip.Load() }

// Message is a synthesized request ready for playback. PCM is mono
// 16-bit signed at the playback device's sample rate. Ownership moves
// from the synthesis worker through the playback queue to the playback
// worker; it is never shared.
type Message struct {
	Request    *Request
	PCM        []byte
	DurationMS float64
	EngineName string
	VoiceName  string
	Volume     float64
}

// Payload builds the wire body used by lifecycle events referring to
// this message.
func (m *Message) Payload() protocol.MessagePayload {
	return protocol.MessagePayload{
		ID:         m.Request.ID,
		Timestamp:  protocol.Timestamp(m.Request.Timestamp),
		Text:       m.Request.Text,
		DurationMS: m.DurationMS,
		EngineName: m.EngineName,
		VoiceName:  m.VoiceName,
		Pitch:      1.0,
		Volume:     m.Volume,
		Rate:       1.0,
	}
}

// EventSink receives lifecycle events from the workers. The concrete
// implementation fans them out on the bus and appends them to the
// event store.
type EventSink interface {
	Publish(source, eventType string, data any)
}
