package synth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/vocalcast/speakerd/internal/audio"
	"github.com/vocalcast/speakerd/internal/config"
	"github.com/vocalcast/speakerd/internal/protocol"
	"github.com/vocalcast/speakerd/internal/queue"
	"github.com/vocalcast/speakerd/internal/speech"
	"github.com/vocalcast/speakerd/internal/voice"
)

// ModelSource yields loaded models by their on-disk reference. The
// voice model cache is the production implementation.
type ModelSource interface {
	Get(ctx context.Context, path string) (Model, error)
}

// Worker drains the request queue, renders each request to playback-rate
// PCM and hands the result to the playback queue. A failed request
// publishes an error event and is dropped; the worker itself never
// stops on a per-message failure.
type Worker struct {
	requests     *queue.Queue[*speech.Request]
	playback     *queue.Queue[*speech.Message]
	cache        ModelSource
	voices       *voice.Registry
	sink         speech.EventSink
	log          *slog.Logger
	engineName   string
	maxWords     int
	maxPhonemes  int
	silenceMS    int
	deviceRate   int
	masterVolume float64

	wg sync.WaitGroup
}

func NewWorker(engineCfg config.EngineConfig, audioCfg config.AudioConfig, engineName string, requests *queue.Queue[*speech.Request], playback *queue.Queue[*speech.Message], cache ModelSource, voices *voice.Registry, sink speech.EventSink, log *slog.Logger) *Worker {
	return &Worker{
		requests:     requests,
		playback:     playback,
		cache:        cache,
		voices:       voices,
		sink:         sink,
		log:          log.With(slog.String("component", "synthesis")),
		engineName:   engineName,
		maxWords:     engineCfg.MaxWords,
		maxPhonemes:  engineCfg.MaxPhonemes,
		silenceMS:    engineCfg.SentenceSilenceMS,
		deviceRate:   audioCfg.SampleRate,
		masterVolume: audioCfg.Volume,
	}
}

// Start launches the worker loop. ctx bounds model loads and synthesis
// calls; closing the request queue ends the loop.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Wait blocks until the worker loop has exited.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	for {
		req, err := w.requests.Pop()
		if err != nil {
			return
		}
		if req.Skipped() {
			w.log.Debug("dropping skipped request", slog.String("id", req.ID))
			continue
		}
		msg, err := w.render(ctx, req)
		if err != nil {
			w.log.Warn("synthesis failed",
				slog.String("id", req.ID),
				slog.String("voice", req.Voice),
				slog.String("error", err.Error()))
			w.sink.Publish(protocol.SourceTextToSpeech, protocol.EventError, protocol.MessagePayload{
				ID:         req.ID,
				Timestamp:  protocol.Timestamp(req.Timestamp),
				Text:       req.Text,
				EngineName: w.engineName,
				VoiceName:  req.Voice,
				Cause:      err.Error(),
			})
			continue
		}
		// Published before the playback handoff so engineprocessed can
		// never arrive after the playing event for the same message.
		w.sink.Publish(protocol.SourceTextToSpeech, protocol.EventProcessed, msg.Payload())
		if err := w.playback.Push(msg); err != nil {
			return
		}
	}
}

func (w *Worker) render(ctx context.Context, req *speech.Request) (*speech.Message, error) {
	alias, err := w.voices.Resolve(req.Voice)
	if err != nil {
		return nil, err
	}

	// Word count is checked on raw text, before phonemization, so the
	// limit is independent of the model's phoneme inventory.
	if n := len(strings.Fields(req.Text)); n > w.maxWords {
		return nil, fmt.Errorf("%w: %d words exceeds limit of %d", speech.ErrTooLong, n, w.maxWords)
	}

	model, err := w.cache.Get(ctx, alias.Model)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", alias.Model, err)
	}

	sentences, err := model.Phonemize(ctx, req.Text)
	if err != nil {
		return nil, fmt.Errorf("phonemize: %w", err)
	}
	fragments := BuildFragments(sentences, w.maxPhonemes)
	if len(fragments) == 0 {
		return nil, fmt.Errorf("%w: no speakable content", speech.ErrEmptyText)
	}

	params := Params{
		Speaker:     alias.Speaker,
		LengthScale: alias.LengthScale,
		NoiseScale:  alias.NoiseScale,
		NoiseW:      alias.NoiseW,
	}

	modelRate := model.SampleRate()
	var pcm []byte
	for _, frag := range fragments {
		chunk, err := model.Synthesize(ctx, frag.Phonemes, params)
		if err != nil {
			return nil, fmt.Errorf("synthesize: %w", err)
		}
		pcm = append(pcm, chunk...)
		if frag.Pause {
			pcm = append(pcm, audio.Silence(w.silenceMS, modelRate)...)
		}
	}

	volume := alias.Volume * w.masterVolume
	audio.ApplyVolume(pcm, volume)
	pcm = audio.Resample(pcm, modelRate, w.deviceRate)

	return &speech.Message{
		Request:    req,
		PCM:        pcm,
		DurationMS: audio.DurationMS(len(pcm), w.deviceRate),
		EngineName: w.engineName,
		VoiceName:  alias.Name,
		Volume:     volume,
	}, nil
}
