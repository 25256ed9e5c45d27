package voicecache

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/vocalcast/speakerd/internal/synth"
)

type fakeModel struct {
	path   string
	closed atomic.Bool
}

func (m *fakeModel) Phonemize(context.Context, string) ([][]string, error) { return nil, nil }
func (m *fakeModel) Synthesize(context.Context, []string, synth.Params) ([]byte, error) {
	return nil, nil
}
func (m *fakeModel) SampleRate() int { return 22050 }
func (m *fakeModel) Close() error {
	m.closed.Store(true)
	return nil
}

type fakeEngine struct {
	mu     sync.Mutex
	loads  map[string]int
	models map[string]*fakeModel
	block  chan struct{} // when set, Load waits until closed
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{loads: map[string]int{}, models: map[string]*fakeModel{}}
}

func (e *fakeEngine) Name() string { return "fake" }

func (e *fakeEngine) Load(_ context.Context, path string) (synth.Model, error) {
	if e.block != nil {
		<-e.block
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loads[path]++
	m := &fakeModel{path: path}
	e.models[path] = m
	return m, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// costs assigns each load a fixed cost by faking the RSS meter: every
// load appears to grow the process by costMiB.
func withFixedCost(c *Cache, costMiB float64) {
	var rss float64
	var mu sync.Mutex
	var pending bool
	c.rss = func() (float64, error) {
		mu.Lock()
		defer mu.Unlock()
		if pending {
			rss += costMiB
			pending = false
		} else {
			pending = true
		}
		return rss, nil
	}
}

func TestGetLoadsOnce(t *testing.T) {
	engine := newFakeEngine()
	c, err := New(engine, 100, testLogger())
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	withFixedCost(c, 10)

	ctx := context.Background()
	m1, err := c.Get(ctx, "/models/a.onnx")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	m2, err := c.Get(ctx, "/models/a.onnx")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if m1 != m2 {
		t.Fatal("expected cached model on second get")
	}
	if engine.loads["/models/a.onnx"] != 1 {
		t.Fatalf("expected 1 load, got %d", engine.loads["/models/a.onnx"])
	}
}

func TestConcurrentGetSingleLoad(t *testing.T) {
	engine := newFakeEngine()
	engine.block = make(chan struct{})
	c, err := New(engine, 100, testLogger())
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	withFixedCost(c, 10)

	ctx := context.Background()
	var wg sync.WaitGroup
	results := make([]synth.Model, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := c.Get(ctx, "/models/a.onnx")
			if err != nil {
				t.Errorf("get: %v", err)
				return
			}
			results[i] = m
		}(i)
	}
	close(engine.block)
	wg.Wait()

	if engine.loads["/models/a.onnx"] != 1 {
		t.Fatalf("expected exactly one load, got %d", engine.loads["/models/a.onnx"])
	}
	if results[0] != results[1] {
		t.Fatal("concurrent gets must share one model")
	}
}

func TestEvictionRespectsCeiling(t *testing.T) {
	engine := newFakeEngine()
	c, err := New(engine, 25, testLogger())
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	withFixedCost(c, 10)

	ctx := context.Background()
	for _, p := range []string{"/a", "/b", "/c"} {
		if _, err := c.Get(ctx, p); err != nil {
			t.Fatalf("get %s: %v", p, err)
		}
		if c.TotalMiB() > 25 {
			t.Fatalf("ceiling violated after insert: %f MiB", c.TotalMiB())
		}
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 live entries, got %d", c.Len())
	}
	// /a was least recently used and must be gone.
	if !engine.models["/a"].closed.Load() {
		t.Fatal("expected oldest model closed on eviction")
	}
	if engine.models["/c"].closed.Load() {
		t.Fatal("newest model must stay resident")
	}
}

func TestEvictionOrderIsLRU(t *testing.T) {
	engine := newFakeEngine()
	c, err := New(engine, 25, testLogger())
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	withFixedCost(c, 10)

	ctx := context.Background()
	c.Get(ctx, "/a")
	c.Get(ctx, "/b")
	c.Get(ctx, "/a") // refresh /a; /b is now oldest
	c.Get(ctx, "/c")

	if !engine.models["/b"].closed.Load() {
		t.Fatal("expected /b evicted")
	}
	if engine.models["/a"].closed.Load() {
		t.Fatal("/a was refreshed and must stay resident")
	}
}

func TestOversizedModelStaysResident(t *testing.T) {
	engine := newFakeEngine()
	c, err := New(engine, 25, testLogger())
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	withFixedCost(c, 100)

	ctx := context.Background()
	m, err := c.Get(ctx, "/huge")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if engine.models["/huge"].closed.Load() {
		t.Fatal("sole oversized model must not be closed out from under the caller")
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", c.Len())
	}
	_ = m
}
