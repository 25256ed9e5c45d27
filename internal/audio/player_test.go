package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/vocalcast/speakerd/internal/config"
	"github.com/vocalcast/speakerd/internal/protocol"
	"github.com/vocalcast/speakerd/internal/queue"
	"github.com/vocalcast/speakerd/internal/speech"
)

type sinkEvent struct {
	Type    string
	Payload protocol.MessagePayload
}

type chanSink struct {
	ch chan sinkEvent
}

func newChanSink() *chanSink {
	return &chanSink{ch: make(chan sinkEvent, 16)}
}

func (s *chanSink) Publish(source, eventType string, data any) {
	payload, _ := data.(protocol.MessagePayload)
	s.ch <- sinkEvent{Type: eventType, Payload: payload}
}

func (s *chanSink) next(t *testing.T) sinkEvent {
	t.Helper()
	select {
	case ev := <-s.ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return sinkEvent{}
	}
}

func (s *chanSink) expectNone(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case ev := <-s.ch:
		t.Fatalf("unexpected event %q", ev.Type)
	case <-time.After(within):
	}
}

type fakeDevice struct {
	completes bool

	mu      sync.Mutex
	streams int
	stopped bool
	closed  bool
}

func (d *fakeDevice) Stream(pcm []byte, done func()) error {
	d.mu.Lock()
	d.streams++
	d.mu.Unlock()
	if d.completes {
		go done()
	}
	return nil
}

func (d *fakeDevice) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

// scriptedOpener hands out devices in order and fails once the script
// is exhausted.
type scriptedOpener struct {
	mu      sync.Mutex
	devices []*fakeDevice
	opens   int
}

func (o *scriptedOpener) open(sampleRate int) (Device, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.opens >= len(o.devices) {
		return nil, errors.New("out of devices")
	}
	dev := o.devices[o.opens]
	o.opens++
	return dev, nil
}

func newTestPlayer(graceMS int, opener Opener) (*Player, *queue.Queue[*speech.Message], *speech.State, *chanSink) {
	q := queue.New[*speech.Message]()
	state := speech.NewState()
	sink := newChanSink()
	cfg := config.AudioConfig{Enabled: true, SampleRate: 22050, GraceMS: graceMS, Volume: 1.0}
	p := NewPlayer(cfg, q, state, opener, sink, slog.Default())
	return p, q, state, sink
}

func testMessage(id string) *speech.Message {
	return &speech.Message{
		Request:    &speech.Request{ID: id, Text: "hello", Timestamp: time.Now()},
		PCM:        make([]byte, 64),
		DurationMS: 1,
		VoiceName:  "amy",
		Volume:     1.0,
	}
}

func TestPlayerPublishesPlayingAndFinished(t *testing.T) {
	opener := &scriptedOpener{devices: []*fakeDevice{{completes: true}}}
	p, q, _, sink := newTestPlayer(2000, opener.open)
	p.Start()
	defer func() { q.Close(); p.Close() }()

	if err := q.Push(testMessage("m1")); err != nil {
		t.Fatal(err)
	}
	if ev := sink.next(t); ev.Type != protocol.EventPlaying {
		t.Fatalf("expected playing, got %q", ev.Type)
	}
	ev := sink.next(t)
	if ev.Type != protocol.EventFinished {
		t.Fatalf("expected finished, got %q", ev.Type)
	}
	if ev.Payload.ID != "m1" {
		t.Fatalf("payload carries wrong id %q", ev.Payload.ID)
	}
}

func TestPlayerNoDevicePublishesError(t *testing.T) {
	opener := &scriptedOpener{} // every open fails
	p, q, _, sink := newTestPlayer(2000, opener.open)
	p.Start()
	defer func() { q.Close(); p.Close() }()

	q.Push(testMessage("m1"))
	ev := sink.next(t)
	if ev.Type != protocol.EventError {
		t.Fatalf("expected error event, got %q", ev.Type)
	}
	if ev.Payload.Cause != speech.ErrNoDevice.Error() {
		t.Fatalf("unexpected cause %q", ev.Payload.Cause)
	}
}

func TestPlayerReinitializesStalledDevice(t *testing.T) {
	stalled := &fakeDevice{completes: false}
	healthy := &fakeDevice{completes: true}
	opener := &scriptedOpener{devices: []*fakeDevice{stalled, healthy}}
	p, q, _, sink := newTestPlayer(20, opener.open)
	p.Start()
	defer func() { q.Close(); p.Close() }()

	q.Push(testMessage("m1"))
	if ev := sink.next(t); ev.Type != protocol.EventPlaying {
		t.Fatalf("expected playing, got %q", ev.Type)
	}
	if ev := sink.next(t); ev.Type != protocol.EventFinished {
		t.Fatalf("expected finished after retry, got %q", ev.Type)
	}
	if opener.opens != 2 {
		t.Fatalf("expected 2 device opens, got %d", opener.opens)
	}
	stalled.mu.Lock()
	defer stalled.mu.Unlock()
	if !stalled.closed {
		t.Fatal("stalled device was not closed")
	}
}

func TestPlayerGivesUpAfterSecondStall(t *testing.T) {
	opener := &scriptedOpener{devices: []*fakeDevice{
		{completes: false},
		{completes: false},
	}}
	p, q, _, sink := newTestPlayer(20, opener.open)
	p.Start()
	defer func() { q.Close(); p.Close() }()

	q.Push(testMessage("m1"))
	if ev := sink.next(t); ev.Type != protocol.EventPlaying {
		t.Fatalf("expected playing, got %q", ev.Type)
	}
	ev := sink.next(t)
	if ev.Type != protocol.EventError {
		t.Fatalf("expected error after second stall, got %q", ev.Type)
	}
	if ev.Payload.Cause == "" {
		t.Fatal("error event must carry a cause")
	}
}

func TestPlayerStopCurrentSuppressesEvents(t *testing.T) {
	dev := &fakeDevice{completes: false}
	opener := &scriptedOpener{devices: []*fakeDevice{dev}}
	p, q, _, sink := newTestPlayer(5000, opener.open)
	p.Start()
	defer func() { q.Close(); p.Close() }()

	q.Push(testMessage("m1"))
	if ev := sink.next(t); ev.Type != protocol.EventPlaying {
		t.Fatalf("expected playing, got %q", ev.Type)
	}
	p.StopCurrent()
	sink.expectNone(t, 100*time.Millisecond)
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if !dev.stopped {
		t.Fatal("device was not stopped")
	}
}

func TestPlayerSkipsCancelledMessages(t *testing.T) {
	opener := &scriptedOpener{devices: []*fakeDevice{{completes: true}}}
	p, q, _, sink := newTestPlayer(2000, opener.open)
	p.Start()
	defer func() { q.Close(); p.Close() }()

	skipped := testMessage("m1")
	skipped.Request.MarkSkipped()
	q.Push(skipped)
	q.Push(testMessage("m2"))

	ev := sink.next(t)
	if ev.Type != protocol.EventPlaying || ev.Payload.ID != "m2" {
		t.Fatalf("expected playing for m2, got %q for %q", ev.Type, ev.Payload.ID)
	}
}

func TestPlayerHoldsQueueWhilePaused(t *testing.T) {
	opener := &scriptedOpener{devices: []*fakeDevice{{completes: true}}}
	p, q, state, sink := newTestPlayer(2000, opener.open)
	state.SetPaused(true)
	p.Start()
	defer func() { q.Close(); p.Close() }()

	q.Push(testMessage("m1"))
	sink.expectNone(t, 100*time.Millisecond)
	if q.Len() != 1 {
		t.Fatalf("message should remain queued, len=%d", q.Len())
	}

	state.SetPaused(false)
	q.Wake()
	if ev := sink.next(t); ev.Type != protocol.EventPlaying {
		t.Fatalf("expected playing after resume, got %q", ev.Type)
	}
}

func TestPlayerPlaysQueueInOrder(t *testing.T) {
	opener := &scriptedOpener{devices: []*fakeDevice{{completes: true}}}
	p, q, _, sink := newTestPlayer(2000, opener.open)
	p.Start()
	defer func() { q.Close(); p.Close() }()

	for i := 0; i < 3; i++ {
		q.Push(testMessage(fmt.Sprintf("m%d", i)))
	}
	for i := 0; i < 3; i++ {
		want := fmt.Sprintf("m%d", i)
		if ev := sink.next(t); ev.Type != protocol.EventPlaying || ev.Payload.ID != want {
			t.Fatalf("expected playing for %s, got %q for %q", want, ev.Type, ev.Payload.ID)
		}
		if ev := sink.next(t); ev.Type != protocol.EventFinished {
			t.Fatalf("expected finished, got %q", ev.Type)
		}
	}
}
