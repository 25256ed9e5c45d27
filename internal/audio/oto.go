package audio

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// otoContext is shared process-wide: the backend only supports a single
// audio context per process, so "reinitializing" the device recreates
// the player layer on top of the existing context.
var (
	otoMu      sync.Mutex
	otoCtx     *oto.Context
	otoCtxRate int
)

func sharedContext(sampleRate int) (*oto.Context, error) {
	otoMu.Lock()
	defer otoMu.Unlock()
	if otoCtx != nil {
		if otoCtxRate != sampleRate {
			return nil, fmt.Errorf("audio context already open at %d Hz", otoCtxRate)
		}
		return otoCtx, nil
	}
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("open audio context: %w", err)
	}
	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		return nil, fmt.Errorf("audio context not ready after 5 seconds")
	}
	otoCtx = ctx
	otoCtxRate = sampleRate
	return ctx, nil
}

// OpenDevice is the production Opener backed by the system mixer.
func OpenDevice(sampleRate int) (Device, error) {
	ctx, err := sharedContext(sampleRate)
	if err != nil {
		return nil, err
	}
	return &otoDevice{ctx: ctx}, nil
}

type otoDevice struct {
	ctx *oto.Context

	mu      sync.Mutex
	player  *oto.Player
	stopped bool
	closed  bool
}

func (d *otoDevice) Stream(pcm []byte, done func()) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return fmt.Errorf("device closed")
	}
	if d.player != nil {
		d.player.Close()
	}
	player := d.ctx.NewPlayer(bytes.NewReader(pcm))
	d.player = player
	d.stopped = false
	d.mu.Unlock()

	player.Play()

	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for range ticker.C {
			d.mu.Lock()
			if d.stopped || d.closed || d.player != player {
				d.mu.Unlock()
				return
			}
			if !player.IsPlaying() {
				d.player = nil
				d.mu.Unlock()
				player.Close()
				done()
				return
			}
			d.mu.Unlock()
		}
	}()
	return nil
}

func (d *otoDevice) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.player != nil {
		d.player.Close()
		d.player = nil
	}
}

func (d *otoDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	if d.player != nil {
		d.player.Close()
		d.player = nil
	}
	return nil
}
