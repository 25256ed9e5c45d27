// Package events publishes lifecycle events on the bus and mirrors them
// into the event store.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/vocalcast/speakerd/internal/bus"
	"github.com/vocalcast/speakerd/internal/eventstore"
	"github.com/vocalcast/speakerd/internal/protocol"
)

// Publisher satisfies speech.EventSink. Publish never blocks on the
// network; NATS buffers writes, and store failures only log.
type Publisher struct {
	bus   *bus.Client
	store *eventstore.Store
	log   *slog.Logger
	clock func() time.Time
}

func NewPublisher(busClient *bus.Client, store *eventstore.Store, log *slog.Logger) *Publisher {
	return &Publisher{
		bus:   busClient,
		store: store,
		log:   log.With(slog.String("component", "events")),
		clock: time.Now,
	}
}

// Publish fans out one event. The envelope is built here so every
// subscriber sees the same timestamp.
func (p *Publisher) Publish(source, eventType string, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		p.log.Warn("failed to marshal event data",
			slog.String("source", source),
			slog.String("type", eventType),
			slog.String("error", err.Error()))
		return
	}

	push := protocol.EventPush{
		TimeStamp: protocol.Timestamp(p.clock()),
		Event:     protocol.EventHeader{Source: source, Type: eventType},
		Data:      body,
	}
	envelope, err := json.Marshal(push)
	if err != nil {
		p.log.Warn("failed to marshal event envelope", slog.String("error", err.Error()))
		return
	}

	subject := protocol.EventSubject(source, eventType)
	if err := p.bus.Conn().Publish(subject, envelope); err != nil {
		p.log.Warn("failed to publish event",
			slog.String("subject", subject),
			slog.String("error", err.Error()))
	}

	if p.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := p.store.Append(ctx, messageID(data), source, eventType, body); err != nil {
			p.log.Warn("failed to record event", slog.String("error", err.Error()))
		}
	}
}

func messageID(data any) string {
	if payload, ok := data.(protocol.MessagePayload); ok {
		return payload.ID
	}
	return ""
}
