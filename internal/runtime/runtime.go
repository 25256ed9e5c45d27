// Package runtime assembles the daemon: bus, event store, synthesis and
// playback workers, protocol fronts and the admin HTTP server.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vocalcast/speakerd/internal/audio"
	"github.com/vocalcast/speakerd/internal/bus"
	"github.com/vocalcast/speakerd/internal/config"
	"github.com/vocalcast/speakerd/internal/events"
	"github.com/vocalcast/speakerd/internal/eventstore"
	"github.com/vocalcast/speakerd/internal/natsserver"
	"github.com/vocalcast/speakerd/internal/queue"
	"github.com/vocalcast/speakerd/internal/server"
	"github.com/vocalcast/speakerd/internal/speech"
	"github.com/vocalcast/speakerd/internal/synth"
	"github.com/vocalcast/speakerd/internal/voice"
	"github.com/vocalcast/speakerd/internal/voicecache"
)

const shutdownTimeout = 10 * time.Second

type Runtime struct {
	cfg     config.Config
	logger  *slog.Logger
	version string

	httpServer *http.Server
	ready      atomic.Bool
	wg         sync.WaitGroup
}

func New(cfg config.Config, version string, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:     cfg,
		logger:  logger,
		version: version,
	}
}

// Start brings the daemon up and blocks until ctx is cancelled, then
// tears everything down in reverse dependency order.
func (r *Runtime) Start(ctx context.Context) error {
	tel, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("start embedded bus: %w", err)
	}
	busClient, err := bus.Connect(r.cfg.Bus, r.logger)
	if err != nil {
		embedded.Shutdown()
		return fmt.Errorf("connect to bus: %w", err)
	}

	store, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger)
	if err != nil {
		busClient.Close()
		embedded.Shutdown()
		return fmt.Errorf("open event store: %w", err)
	}

	engine, err := r.buildEngine()
	if err != nil {
		store.Close()
		busClient.Close()
		embedded.Shutdown()
		return fmt.Errorf("build engine: %w", err)
	}
	cache, err := voicecache.New(engine, r.cfg.Engine.CacheCeilingMiB, r.logger)
	if err != nil {
		store.Close()
		busClient.Close()
		embedded.Shutdown()
		return fmt.Errorf("build voice cache: %w", err)
	}

	publisher := events.NewPublisher(busClient, store, r.logger)
	registry := voice.NewRegistry(r.cfg.Voices, r.cfg.DefaultVoice)
	state := speech.NewState()
	requests := queue.New[*speech.Request]()
	playback := queue.New[*speech.Message]()

	player := audio.NewPlayer(r.cfg.Audio, playback, state, audio.OpenDevice, publisher, r.logger)
	worker := synth.NewWorker(r.cfg.Engine, r.cfg.Audio, engine.Name(), requests, playback, cache, registry, publisher, r.logger)
	svc := speech.NewService(state, requests, playback, registry, publisher, player, engine.Name(), r.version, r.logger)
	front := server.New(r.cfg.Server, svc, busClient, r.logger)

	worker.Start(ctx)
	player.Start()
	if err := front.Start(ctx); err != nil {
		requests.Close()
		playback.Close()
		worker.Wait()
		player.Close()
		store.Close()
		busClient.Close()
		embedded.Shutdown()
		return fmt.Errorf("start protocol server: %w", err)
	}

	r.startAdminServer(busClient, tel)
	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("engine", engine.Name()),
		slog.String("version", r.version),
		slog.Int("voices", len(r.cfg.Voices)))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Fronts first so no new requests arrive, then drain the pipeline
	// front to back before releasing shared infrastructure.
	front.Shutdown(shutdownCtx)
	requests.Close()
	worker.Wait()
	playback.Close()
	player.Close()
	cache.Purge()

	if r.httpServer != nil {
		if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("http shutdown error", slog.String("error", err.Error()))
		}
	}
	r.wg.Wait()

	store.Close()
	busClient.Close()
	embedded.Shutdown()

	if err := tel.shutdown(shutdownCtx); err != nil {
		r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
	}

	return nil
}

func (r *Runtime) buildEngine() (synth.Engine, error) {
	switch r.cfg.Engine.Mode {
	case "exec":
		return synth.NewExecEngine(r.cfg.Engine.Command, r.cfg.Engine.Name)
	default:
		return synth.NewMockEngine(), nil
	}
}

func (r *Runtime) startAdminServer(busClient *bus.Client, tel *telemetry) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if r.ready.Load() && busClient.Healthy() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
	})
	if tel.metrics != nil {
		mux.Handle("/metrics", tel.metrics)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("admin http server failed", slog.String("error", err.Error()))
		}
	}()
	r.logger.Info("admin http server listening", slog.String("addr", addr))
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
