package audio

import (
	"log/slog"
	"sync"
	"time"

	"github.com/vocalcast/speakerd/internal/config"
	"github.com/vocalcast/speakerd/internal/protocol"
	"github.com/vocalcast/speakerd/internal/queue"
	"github.com/vocalcast/speakerd/internal/speech"
)

// Player is the playback worker. It drains the playback queue one
// message at a time, gated on the engine being enabled and not paused,
// and recovers from device stalls by reinitializing the device once per
// message.
type Player struct {
	queue      *queue.Queue[*speech.Message]
	state      *speech.State
	sink       speech.EventSink
	opener     Opener
	log        *slog.Logger
	sampleRate int
	grace      time.Duration
	queueDelay time.Duration

	mu      sync.Mutex
	device  Device
	session *playSession
	closed  bool

	wg sync.WaitGroup
}

type playSession struct {
	stopOnce sync.Once
	stopped  chan struct{}
}

func (s *playSession) stop() {
	s.stopOnce.Do(func() { close(s.stopped) })
}

func NewPlayer(cfg config.AudioConfig, q *queue.Queue[*speech.Message], state *speech.State, opener Opener, sink speech.EventSink, log *slog.Logger) *Player {
	if !cfg.Enabled {
		opener = nil
	}
	return &Player{
		queue:      q,
		state:      state,
		sink:       sink,
		opener:     opener,
		log:        log.With(slog.String("component", "playback")),
		sampleRate: cfg.SampleRate,
		grace:      time.Duration(cfg.GraceMS) * time.Millisecond,
		queueDelay: time.Duration(cfg.QueueDelayMS) * time.Millisecond,
	}
}

// Start opens the output device and launches the worker loop. A failed
// device open is not fatal; each queued message reports the failure as
// an error event until a later open succeeds.
func (p *Player) Start() {
	if dev := p.ensureDevice(); dev == nil && p.opener != nil {
		p.log.Warn("audio device unavailable at startup")
	}
	p.wg.Add(1)
	go p.run()
}

// Close stops the current session, shuts the device and waits for the
// worker loop to exit. The playback queue must be closed first.
func (p *Player) Close() {
	p.StopCurrent()
	p.wg.Wait()
	p.mu.Lock()
	p.closed = true
	if p.device != nil {
		p.device.Close()
		p.device = nil
	}
	p.mu.Unlock()
}

// StopCurrent halts the message currently streaming, if any. The
// interrupted message produces neither a finished nor an error event.
func (p *Player) StopCurrent() {
	p.mu.Lock()
	sess := p.session
	dev := p.device
	p.mu.Unlock()
	if sess == nil {
		return
	}
	sess.stop()
	if dev != nil {
		dev.Stop()
	}
}

func (p *Player) run() {
	defer p.wg.Done()
	for {
		msg, err := p.queue.PopWhen(p.gate)
		if err != nil {
			return
		}
		p.play(msg)
	}
}

// gate holds messages in the queue while paused or disabled. It is only
// checked between messages, so a message already streaming keeps playing
// through a pause.
func (p *Player) gate() bool {
	return p.state.Enabled() && !p.state.Paused()
}

func (p *Player) play(msg *speech.Message) {
	if msg.Request.Skipped() {
		p.log.Debug("dropping skipped message", slog.String("id", msg.Request.ID))
		return
	}
	if p.queueDelay > 0 {
		time.Sleep(p.queueDelay)
	}

	dev := p.ensureDevice()
	if dev == nil {
		p.publishError(msg, speech.ErrNoDevice.Error())
		return
	}

	sess := &playSession{stopped: make(chan struct{})}
	p.mu.Lock()
	p.session = sess
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.session = nil
		p.mu.Unlock()
	}()

	p.sink.Publish(protocol.SourceTextToSpeech, protocol.EventPlaying, msg.Payload())

	// The drain watchdog allows the full buffer duration plus a grace
	// window before declaring the device wedged.
	timeout := p.grace + time.Duration(msg.DurationMS)*time.Millisecond

	for attempt := 0; attempt < 2; attempt++ {
		done := make(chan struct{})
		if err := dev.Stream(msg.PCM, func() { close(done) }); err != nil {
			p.log.Warn("stream failed",
				slog.String("id", msg.Request.ID),
				slog.String("error", err.Error()))
			dev = p.reopenDevice()
			if dev == nil {
				p.publishError(msg, speech.ErrNoDevice.Error())
				return
			}
			continue
		}

		timer := time.NewTimer(timeout)
		select {
		case <-done:
			timer.Stop()
			p.sink.Publish(protocol.SourceTextToSpeech, protocol.EventFinished, msg.Payload())
			return
		case <-sess.stopped:
			timer.Stop()
			p.log.Info("playback stopped", slog.String("id", msg.Request.ID))
			return
		case <-timer.C:
			p.log.Warn("playback stalled, reinitializing device",
				slog.String("id", msg.Request.ID),
				slog.Float64("duration_ms", msg.DurationMS))
			dev.Stop()
			if attempt == 0 {
				dev = p.reopenDevice()
				if dev == nil {
					p.publishError(msg, speech.ErrNoDevice.Error())
					return
				}
			}
		}
	}
	p.publishError(msg, "playback timed out")
}

func (p *Player) publishError(msg *speech.Message, cause string) {
	p.log.Warn("playback error",
		slog.String("id", msg.Request.ID),
		slog.String("cause", cause))
	payload := msg.Payload()
	payload.Cause = cause
	p.sink.Publish(protocol.SourceTextToSpeech, protocol.EventError, payload)
}

func (p *Player) ensureDevice() Device {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.device != nil || p.opener == nil || p.closed {
		return p.device
	}
	dev, err := p.opener(p.sampleRate)
	if err != nil {
		p.log.Warn("failed to open audio device", slog.String("error", err.Error()))
		return nil
	}
	p.device = dev
	return dev
}

func (p *Player) reopenDevice() Device {
	p.mu.Lock()
	if p.device != nil {
		p.device.Close()
		p.device = nil
	}
	p.mu.Unlock()
	return p.ensureDevice()
}
