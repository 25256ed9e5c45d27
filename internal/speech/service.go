package speech

import (
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vocalcast/speakerd/internal/protocol"
	"github.com/vocalcast/speakerd/internal/queue"
	"github.com/vocalcast/speakerd/internal/voice"
)

// APIVersion is reported by GetInfo and only changes when the wire
// protocol does.
const APIVersion = "v2"

// Stopper halts whatever is currently streaming to the audio device.
type Stopper interface {
	StopCurrent()
}

// Info is the GetInfo response body.
type Info struct {
	InstanceID string `json:"instanceId"`
	Name       string `json:"name"`
	Version    string `json:"version"`
	APIVersion string `json:"apiVersion"`
}

// Service is the command facade used by both protocol fronts. It owns
// enqueueing and the control operations; the workers own everything
// downstream.
type Service struct {
	log        *slog.Logger
	state      *State
	requests   *queue.Queue[*Request]
	playback   *queue.Queue[*Message]
	voices     *voice.Registry
	sink       EventSink
	stopper    Stopper
	instanceID string
	engineName string
	version    string
	clock      func() time.Time
}

func NewService(state *State, requests *queue.Queue[*Request], playback *queue.Queue[*Message], voices *voice.Registry, sink EventSink, stopper Stopper, engineName, version string, log *slog.Logger) *Service {
	return &Service{
		log:        log.With(slog.String("component", "speech")),
		state:      state,
		requests:   requests,
		playback:   playback,
		voices:     voices,
		sink:       sink,
		stopper:    stopper,
		instanceID: uuid.NewString(),
		engineName: engineName,
		version:    version,
		clock:      time.Now,
	}
}

// Speak validates and enqueues a synthesis request. The textqueued
// event is published before Speak returns, so a controller that
// subscribed on the same connection always sees it before the response
// to any later command.
func (s *Service) Speak(text, voiceName string, censor bool) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyText
	}
	if !s.state.Enabled() {
		return "", ErrEngineDisabled
	}
	alias, err := s.voices.Resolve(voiceName)
	if err != nil {
		return "", err
	}

	req := &Request{
		ID:        uuid.NewString(),
		Text:      text,
		Voice:     alias.Name,
		Timestamp: s.clock(),
		Censor:    censor,
	}

	s.sink.Publish(protocol.SourceTextToSpeech, protocol.EventTextQueued, protocol.MessagePayload{
		ID:         req.ID,
		Timestamp:  protocol.Timestamp(req.Timestamp),
		Text:       req.Text,
		EngineName: s.engineName,
		VoiceName:  alias.Name,
		Pitch:      1.0,
		Volume:     alias.Volume,
		Rate:       1.0,
	})

	if err := s.requests.Push(req); err != nil {
		return "", err
	}
	s.log.Info("queued speech request",
		slog.String("id", req.ID),
		slog.String("voice", alias.Name),
		slog.Int("chars", len(req.Text)))
	return req.ID, nil
}

// Stop interrupts the message currently playing. Queued messages are
// unaffected.
func (s *Service) Stop() {
	s.stopper.StopCurrent()
}

// Pause holds queued messages at the playback gate. The message already
// streaming plays to completion.
func (s *Service) Pause() {
	s.state.SetPaused(true)
}

// Resume releases the playback gate.
func (s *Service) Resume() {
	s.state.SetPaused(false)
	s.playback.Wake()
}

// Enable re-opens the engine for new requests and releases the gate.
func (s *Service) Enable() {
	s.state.SetEnabled(true)
	s.playback.Wake()
}

// Disable rejects new Speak calls and holds queued playback. It does
// not interrupt the message currently streaming.
func (s *Service) Disable() {
	s.state.SetEnabled(false)
}

// Clear drops every pending request and synthesized message, reporting
// how many were discarded. The message currently streaming keeps
// playing.
func (s *Service) Clear() int {
	n := s.requests.Clear() + s.playback.Clear()
	if n > 0 {
		s.log.Info("cleared queues", slog.Int("dropped", n))
	}
	return n
}

// Skip cancels a queued message by id without disturbing queue order.
// Reports whether the id was found in either queue.
func (s *Service) Skip(id string) bool {
	found := false
	s.requests.Each(func(r *Request) {
		if r.ID == id {
			r.MarkSkipped()
			found = true
		}
	})
	s.playback.Each(func(m *Message) {
		if m.Request.ID == id {
			m.Request.MarkSkipped()
			found = true
		}
	})
	return found
}

func (s *Service) Enabled() bool { return s.state.Enabled() }
func (s *Service) Paused() bool  { return s.state.Paused() }

// VoiceNames lists the configured aliases in sorted order.
func (s *Service) VoiceNames() []string { return s.voices.Names() }

// Info describes this daemon instance.
func (s *Service) Info() Info {
	return Info{
		InstanceID: s.instanceID,
		Name:       s.engineName,
		Version:    s.version,
		APIVersion: APIVersion,
	}
}
