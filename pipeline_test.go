package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"glean/audio"
	"glean/transcriber"
)

type scriptedCapture struct {
	mu       sync.Mutex
	cb       audio.DataCallback
	startErr error
	started  bool
	stopped  bool
	cleared  bool
}

func (c *scriptedCapture) Start() error {
	if c.startErr != nil {
		return c.startErr
	}
	c.mu.Lock()
	c.started = true
	c.mu.Unlock()
	return nil
}

func (c *scriptedCapture) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
}

func (c *scriptedCapture) Close() {}

func (c *scriptedCapture) SetCallback(cb audio.DataCallback) {
	c.mu.Lock()
	c.cb = cb
	c.mu.Unlock()
}

func (c *scriptedCapture) ClearCallback() {
	c.mu.Lock()
	c.cb = nil
	c.cleared = true
	c.mu.Unlock()
}

func (c *scriptedCapture) DeviceName() string { return "scripted" }

// Push invokes the capture callback the way a device thread would.
func (c *scriptedCapture) Push(data []byte) {
	c.mu.Lock()
	cb := c.cb
	c.mu.Unlock()
	if cb != nil {
		cb(data, uint32(len(data)/2))
	}
}

func (c *scriptedCapture) Released() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped && c.cleared
}

func TestStoreSink(t *testing.T) {
	st := NewStore()
	var sink TranscriptSink = storeSink{store: st}

	sink.OnPartial("hel")
	lines, partial := st.TranscriptSnapshot()
	if len(lines) != 0 || partial != "hel" {
		t.Fatalf("after partial: lines=%v partial=%q", lines, partial)
	}

	sink.OnFinalized("hello world")
	sink.OnPartial("")
	lines, partial = st.TranscriptSnapshot()
	if len(lines) != 1 || lines[0] != "hello world" || partial != "" {
		t.Fatalf("after final: lines=%v partial=%q", lines, partial)
	}
}

func TestPipelineTranscribes(t *testing.T) {
	dir := t.TempDir()
	st := NewStore()
	cap := &scriptedCapture{}
	ft := transcriber.NewFake([]transcriber.Update{
		{Text: "hello"},
		{Text: "hello world", Final: true},
		{Text: "second line", Final: true},
	}, nil)

	stop := make(chan struct{})
	p, err := startPipeline(PipelineConfig{
		Capture:    cap,
		Recognizer: ft,
		ASRModel:   "scripted-1",
		SessionDir: dir,
		Sink:       storeSink{store: st},
	}, stop)
	if err != nil {
		t.Fatalf("startPipeline: %v", err)
	}
	if !p.Recording() || !p.Transcribing() {
		t.Fatal("expected recording and transcribing pipeline")
	}
	if p.Engine() != "fake:scripted-1" {
		t.Errorf("engine = %q", p.Engine())
	}

	for i := 0; i < 4; i++ {
		cap.Push(genTone(440, 125))
	}
	close(stop)
	p.Wait()

	lines, partial := st.TranscriptSnapshot()
	if len(lines) != 2 || lines[0] != "hello world" || lines[1] != "second line" {
		t.Fatalf("transcript = %v", lines)
	}
	if partial != "" {
		t.Errorf("partial not cleared: %q", partial)
	}
	if own := p.Lines(); len(own) != 2 || own[1] != "second line" {
		t.Errorf("pipeline lines = %v", own)
	}

	sessions := ft.Sessions()
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(sessions))
	}
	if got := sessions[0].FedBytes(); got != 4*4000 {
		t.Errorf("fed %d bytes, want %d", got, 4*4000)
	}

	path := filepath.Join(dir, "session.flac")
	if p.AudioPath() != path {
		t.Errorf("audio path = %q", p.AudioPath())
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("audio sink: %v", err)
	}
	if info.Size() == 0 {
		t.Error("audio sink is empty")
	}
	if !cap.Released() {
		t.Error("capture not stopped and cleared")
	}
}

func TestPipelineVADGate(t *testing.T) {
	t.Run("silence held back", func(t *testing.T) {
		dir := t.TempDir()
		cap := &scriptedCapture{}
		ft := transcriber.NewFake(nil, nil)
		stop := make(chan struct{})
		p, err := startPipeline(PipelineConfig{
			Capture:    cap,
			Recognizer: ft,
			SessionDir: dir,
			Format:     "wav",
			Sink:       storeSink{store: NewStore()},
		}, stop)
		if err != nil {
			t.Fatalf("startPipeline: %v", err)
		}

		for i := 0; i < 8; i++ {
			cap.Push(genSilence(125))
		}
		close(stop)
		p.Wait()

		if got := ft.Sessions()[0].FedBytes(); got != 0 {
			t.Errorf("recognizer got %d bytes of silence", got)
		}
		// The sink still receives everything the gate holds back.
		info, err := os.Stat(filepath.Join(dir, "session.wav"))
		if err != nil {
			t.Fatalf("audio sink: %v", err)
		}
		if want := int64(44 + 8*4000); info.Size() != want {
			t.Errorf("sink size = %d, want %d", info.Size(), want)
		}
	})

	t.Run("preroll flushed on voice", func(t *testing.T) {
		cap := &scriptedCapture{}
		ft := transcriber.NewFake(nil, nil)
		stop := make(chan struct{})
		p, err := startPipeline(PipelineConfig{
			Capture:    cap,
			Recognizer: ft,
			SessionDir: t.TempDir(),
			Format:     "wav",
			Sink:       storeSink{store: NewStore()},
		}, stop)
		if err != nil {
			t.Fatalf("startPipeline: %v", err)
		}

		for i := 0; i < 3; i++ {
			cap.Push(genSilence(125))
		}
		cap.Push(genTone(440, 125))
		cap.Push(genSilence(125)) // inside the hangover window
		close(stop)
		p.Wait()

		if got := ft.Sessions()[0].FedBytes(); got != 5*4000 {
			t.Errorf("fed %d bytes, want %d", got, 5*4000)
		}
	})
}

func TestPipelineRecordingOnly(t *testing.T) {
	dir := t.TempDir()
	st := NewStore()
	cap := &scriptedCapture{}
	stop := make(chan struct{})
	p, err := startPipeline(PipelineConfig{
		Capture:    cap,
		SessionDir: dir,
		Format:     "wav",
		Sink:       storeSink{store: st},
	}, stop)
	if err != nil {
		t.Fatalf("startPipeline: %v", err)
	}
	if p.Transcribing() {
		t.Error("expected transcription disabled")
	}
	if p.Engine() != "none" {
		t.Errorf("engine = %q", p.Engine())
	}

	cap.Push(genTone(440, 125))
	close(stop)
	p.Wait()

	if lines, _ := st.TranscriptSnapshot(); len(lines) != 0 {
		t.Errorf("unexpected transcript lines: %v", lines)
	}
	info, err := os.Stat(filepath.Join(dir, "session.wav"))
	if err != nil {
		t.Fatalf("audio sink: %v", err)
	}
	if want := int64(44 + 4000); info.Size() != want {
		t.Errorf("sink size = %d, want %d", info.Size(), want)
	}
}

func TestPipelineNoCapture(t *testing.T) {
	stop := make(chan struct{})
	p, err := startPipeline(PipelineConfig{Sink: storeSink{store: NewStore()}}, stop)
	if err == nil {
		t.Fatal("expected error without capture device")
	}
	if p.Recording() || p.Transcribing() {
		t.Error("expected fully degraded pipeline")
	}

	p.AddMarker()
	p.AddNote("check the deck")
	close(stop)
	p.Wait()

	if got := p.Markers(); len(got) != 1 {
		t.Fatalf("markers = %v", got)
	}
	if got := p.Notes(); len(got) != 1 || got[0].Text != "check the deck" {
		t.Fatalf("notes = %v", got)
	}
}

func TestPipelineStartFailure(t *testing.T) {
	cap := &scriptedCapture{startErr: errors.New("device busy")}
	stop := make(chan struct{})
	p, err := startPipeline(PipelineConfig{
		Capture:    cap,
		SessionDir: t.TempDir(),
		Sink:       storeSink{store: NewStore()},
	}, stop)
	if err == nil {
		t.Fatal("expected start error")
	}
	if !strings.Contains(err.Error(), "device busy") {
		t.Errorf("error = %v", err)
	}
	if p.Recording() {
		t.Error("expected recording disabled")
	}
	close(stop)
	p.Wait()
}

func TestPipelineMarkersAndNotes(t *testing.T) {
	stop := make(chan struct{})
	p, _ := startPipeline(PipelineConfig{Sink: storeSink{store: NewStore()}}, stop)
	defer func() {
		close(stop)
		p.Wait()
	}()

	m := p.AddMarker()
	if !strings.HasPrefix(m.Label, "marker at ") || !strings.HasSuffix(m.Label, "s") {
		t.Errorf("marker label = %q", m.Label)
	}
	if m.At < 0 || m.At > 5 {
		t.Errorf("marker at = %f", m.At)
	}

	p.AddNote("")
	p.AddNote("   ")
	p.AddNote("send the follow up")
	notes := p.Notes()
	if len(notes) != 1 || notes[0].Text != "send the follow up" {
		t.Fatalf("notes = %v", notes)
	}

	// Snapshots are copies.
	markers := p.Markers()
	markers[0].Label = "mutated"
	if got := p.Markers(); got[0].Label == "mutated" {
		t.Error("Markers returned shared backing slice")
	}
}
