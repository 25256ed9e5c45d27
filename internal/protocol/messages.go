package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Request is the envelope for WebSocket commands. Controllers choose the
// id; the server echoes it back on the response.
type Request struct {
	ID      string `json:"id"`
	Request string `json:"request"`
}

// Response is the reply envelope sent on the same WebSocket connection.
type Response struct {
	ID     string      `json:"id"`
	Status string      `json:"status"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Command is the envelope for UDP commands. Fire-and-forget, no reply.
type Command struct {
	Command string `json:"command"`
}

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// SpeakArgs carries the arguments of a speak request on either front.
type SpeakArgs struct {
	Message       string `json:"message"`
	Voice         string `json:"voice"`
	BadWordFilter bool   `json:"badWordFilter"`
}

// SubscribeArgs maps event source -> requested event types. "*" as a
// source subscribes every known source; "*" as a type subscribes every
// type within the source.
type SubscribeArgs struct {
	Events map[string][]string `json:"events"`
}

// EventHeader identifies a pushed event.
type EventHeader struct {
	Source string `json:"source"`
	Type   string `json:"type"`
}

// EventPush is the envelope delivered to subscribed WebSocket connections.
type EventPush struct {
	TimeStamp string          `json:"timeStamp"`
	Event     EventHeader     `json:"event"`
	Data      json.RawMessage `json:"data"`
}

// MessagePayload is the data body for texttospeech lifecycle events.
type MessagePayload struct {
	ID         string  `json:"id"`
	Timestamp  string  `json:"timestamp"`
	Text       string  `json:"text"`
	DurationMS float64 `json:"duration"`
	EngineName string  `json:"engineName"`
	VoiceName  string  `json:"voiceName"`
	Pitch      float64 `json:"pitch"`
	Volume     float64 `json:"volume"`
	Rate       float64 `json:"rate"`
	Cause      string  `json:"cause,omitempty"`
}

// Event sources.
const (
	SourceTextToSpeech = "texttospeech"
	SourceApplication  = "application"
	SourceVoiceGate    = "voicegate"
)

// texttospeech event types.
const (
	EventTextQueued = "textqueued"
	EventProcessed  = "engineprocessed"
	EventPlaying    = "playing"
	EventFinished   = "finished"
	EventError      = "error"
)

// Reserved event types for future sources.
const (
	EventStartedSpeaking  = "startedspeaking"
	EventStoppedSpeaking  = "stoppedspeaking"
	EventProfileActivated = "profileactivated"
)

// KnownEvents enumerates every source and its event types. Used to
// expand "*" subscriptions and to answer the Events command.
var KnownEvents = map[string][]string{
	SourceTextToSpeech: {EventTextQueued, EventProcessed, EventPlaying, EventFinished, EventError},
	SourceApplication:  {EventStartedSpeaking, EventStoppedSpeaking},
	SourceVoiceGate:    {EventProfileActivated},
}

// SubjectEventPrefix is the bus subject tree carrying lifecycle events.
const SubjectEventPrefix = "speech.event"

// EventSubject builds the bus subject for a source/type pair.
func EventSubject(source, eventType string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectEventPrefix, source, eventType)
}

// Timestamp formats t the way the wire protocol expects.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
