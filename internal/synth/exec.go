package synth

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"
)

// execEngine drives an external synthesis runtime (piper-style) over a
// JSON-lines stdin/stdout protocol. One subprocess per loaded model.
type execEngine struct {
	cmd  []string
	name string
}

func NewExecEngine(command, name string) (Engine, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse engine command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("engine command empty")
	}
	if name == "" {
		name = args[0]
	}
	return &execEngine{cmd: args, name: name}, nil
}

func (e *execEngine) Name() string { return e.name }

func (e *execEngine) Load(ctx context.Context, modelPath string) (Model, error) {
	base := e.cmd[0]
	args := append(append([]string{}, e.cmd[1:]...), "--model", modelPath)
	cmd := exec.Command(base, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start engine process: %w", err)
	}

	m := &execModel{
		cmd:    cmd,
		stdin:  stdin,
		reader: bufio.NewReader(stdout),
	}

	info, err := m.roundTrip(ctx, execRequest{Op: "info"})
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("query model info: %w", err)
	}
	if info.SampleRate <= 0 {
		m.Close()
		return nil, fmt.Errorf("engine reported invalid sample rate %d", info.SampleRate)
	}
	m.sampleRate = info.SampleRate
	return m, nil
}

type execRequest struct {
	Op          string   `json:"op"`
	Text        string   `json:"text,omitempty"`
	Phonemes    []string `json:"phonemes,omitempty"`
	Speaker     int      `json:"speaker,omitempty"`
	LengthScale float64  `json:"length_scale,omitempty"`
	NoiseScale  float64  `json:"noise_scale,omitempty"`
	NoiseW      float64  `json:"noise_w,omitempty"`
}

type execResponse struct {
	Sentences  [][]string `json:"sentences,omitempty"`
	PCMBase64  string     `json:"pcm_base64,omitempty"`
	SampleRate int        `json:"sample_rate,omitempty"`
	Error      string     `json:"error,omitempty"`
}

type execModel struct {
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	reader     *bufio.Reader
	sampleRate int
	mu         sync.Mutex
	closed     bool
}

func (m *execModel) SampleRate() int { return m.sampleRate }

func (m *execModel) Phonemize(ctx context.Context, text string) ([][]string, error) {
	resp, err := m.roundTrip(ctx, execRequest{Op: "phonemize", Text: text})
	if err != nil {
		return nil, err
	}
	return resp.Sentences, nil
}

func (m *execModel) Synthesize(ctx context.Context, phonemes []string, p Params) ([]byte, error) {
	resp, err := m.roundTrip(ctx, execRequest{
		Op:          "synthesize",
		Phonemes:    phonemes,
		Speaker:     p.Speaker,
		LengthScale: p.LengthScale,
		NoiseScale:  p.NoiseScale,
		NoiseW:      p.NoiseW,
	})
	if err != nil {
		return nil, err
	}
	pcm, err := base64.StdEncoding.DecodeString(resp.PCMBase64)
	if err != nil {
		return nil, fmt.Errorf("decode engine audio: %w", err)
	}
	return pcm, nil
}

// roundTrip writes one request line and reads one response line. The
// subprocess protocol is strictly request/response, so a single mutex
// serializes access.
func (m *execModel) roundTrip(ctx context.Context, req execRequest) (execResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var resp execResponse
	if m.closed {
		return resp, fmt.Errorf("model process closed")
	}
	if err := ctx.Err(); err != nil {
		return resp, err
	}

	data, err := json.Marshal(req)
	if err != nil {
		return resp, err
	}
	if _, err := m.stdin.Write(append(data, '\n')); err != nil {
		return resp, fmt.Errorf("write to engine: %w", err)
	}

	line, err := m.reader.ReadBytes('\n')
	if err != nil {
		return resp, fmt.Errorf("read from engine: %w", err)
	}
	if err := json.Unmarshal(line, &resp); err != nil {
		return resp, fmt.Errorf("decode engine response: %w", err)
	}
	if resp.Error != "" {
		return resp, fmt.Errorf("engine: %s", resp.Error)
	}
	return resp, nil
}

func (m *execModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.stdin.Close()
	if m.cmd.Process != nil {
		_ = m.cmd.Process.Kill()
	}
	return m.cmd.Wait()
}
