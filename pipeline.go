package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"glean/audio"
	"glean/beep"
	"glean/encoder"
	"glean/log"
	"glean/transcriber"
)

const (
	// One reader unit: 125ms of PCM16 mono at 16kHz.
	readChunkBytes = 4000
	blockQueueSize = 64

	// Capture keeps running briefly after stop so the tail of the last
	// utterance still reaches the recognizer.
	recordTail = 500 * time.Millisecond

	// The recognizer keeps receiving audio this long after the last
	// voiced frame; silence beyond it is held back.
	vadHangover = 3 * time.Second
	// Chunks of held-back silence replayed when voice resumes, so
	// utterance onsets are not clipped.
	vadPrerollCount = 5
)

type Marker struct {
	At    float64
	Label string
}

type Note struct {
	At   float64
	Text string
}

type PipelineConfig struct {
	Capture    audio.CaptureDevice     // nil disables recording
	Recognizer transcriber.Transcriber // nil disables transcription
	ASRModel   string
	Language   string
	SessionDir string
	Format     string // "flac" or "wav"
	Sink       TranscriptSink
}

// Pipeline owns one session's audio path: the capture callback queues
// PCM blocks, a reader goroutine re-chunks them, mirrors every chunk
// into the audio sink, and feeds voiced audio to the recognizer. A
// second goroutine consumes recognizer updates and drives the sink.
// Markers, notes and the full transcript accumulate here so the report
// can be written after the Store has moved on.
type Pipeline struct {
	sink   TranscriptSink
	start  time.Time
	engine string

	capture   audio.CaptureDevice
	sess      transcriber.Session
	enc       encoder.Encoder
	encFile   *os.File
	encFailed bool
	audioPath string

	vp  *vadProcessor
	mon *silenceMonitor

	stop   <-chan struct{}
	blocks chan []byte

	bufMu       sync.Mutex
	stopped     bool
	totalFrames uint64
	dropped     int

	mu      sync.Mutex
	lines   []string
	markers []Marker
	notes   []Note

	recording bool

	readerDone  chan struct{}
	updatesDone chan struct{}
	doneCh      chan struct{}
}

// startPipeline wires the session's audio path and launches its
// goroutines. The returned pipeline is usable (clock, markers, notes)
// even when the error is non-nil; the error means recording could not
// start and the session runs without audio.
func startPipeline(cfg PipelineConfig, stop <-chan struct{}) (*Pipeline, error) {
	p := &Pipeline{
		sink:        cfg.Sink,
		start:       time.Now(),
		engine:      "none",
		vp:          newVADProcessor(),
		mon:         newSilenceMonitor(),
		stop:        stop,
		blocks:      make(chan []byte, blockQueueSize),
		readerDone:  make(chan struct{}),
		updatesDone: make(chan struct{}),
		doneCh:      make(chan struct{}),
	}

	if cfg.Capture == nil {
		close(p.readerDone)
		close(p.updatesDone)
		go p.idle()
		return p, fmt.Errorf("no capture device")
	}

	if err := os.MkdirAll(cfg.SessionDir, 0755); err != nil {
		log.Errorf("session dir: %v", err)
	} else {
		p.openSink(cfg.SessionDir, cfg.Format)
	}

	cfg.Capture.SetCallback(func(data []byte, frameCount uint32) {
		p.bufMu.Lock()
		defer p.bufMu.Unlock()
		if p.stopped || len(data) == 0 {
			return
		}
		p.totalFrames += uint64(frameCount)
		pcm := make([]byte, len(data))
		copy(pcm, data)
		select {
		case p.blocks <- pcm:
		default:
			p.dropped++
		}
	})

	if err := cfg.Capture.Start(); err != nil {
		cfg.Capture.ClearCallback()
		p.closeSink()
		close(p.readerDone)
		close(p.updatesDone)
		go p.idle()
		return p, fmt.Errorf("audio start: %w", err)
	}
	p.capture = cfg.Capture
	p.recording = true

	if cfg.Recognizer != nil {
		sess, err := cfg.Recognizer.NewSession(context.Background(), transcriber.SessionConfig{
			Model:    cfg.ASRModel,
			Language: cfg.Language,
		})
		if err != nil {
			log.Errorf("recognizer session: %v", err)
		} else {
			p.sess = sess
			p.engine = cfg.Recognizer.Name()
			if cfg.ASRModel != "" {
				p.engine += ":" + cfg.ASRModel
			}
		}
	}

	go p.runReader()
	if p.sess != nil {
		go p.runUpdates()
	} else {
		close(p.updatesDone)
	}
	go p.runTicker()
	go p.run()

	log.SessionStart(p.engine, cfg.ASRModel, cfg.Capture.DeviceName())
	go beep.PlayStart()
	return p, nil
}

// idle replaces run when recording is disabled: the clock, markers and
// notes still work, nothing else does.
func (p *Pipeline) idle() {
	defer close(p.doneCh)
	<-p.stop
}

func (p *Pipeline) openSink(dir, format string) {
	ext := format
	if ext != "wav" {
		ext = "flac"
	}
	path := filepath.Join(dir, "session."+ext)
	f, err := os.Create(path)
	if err != nil {
		log.Errorf("audio sink open: %v", err)
		return
	}
	var enc encoder.Encoder
	if ext == "wav" {
		enc, err = encoder.NewWav(f)
	} else {
		enc, err = encoder.NewFlac(f)
	}
	if err != nil {
		log.Errorf("audio sink init: %v", err)
		f.Close()
		os.Remove(path)
		return
	}
	p.enc = enc
	p.encFile = f
	p.audioPath = path
}

func (p *Pipeline) closeSink() {
	if p.enc != nil {
		if err := p.enc.Close(); err != nil {
			log.Errorf("audio sink close: %v", err)
		} else {
			log.Infof("audio sink: %s (%.1fs, encode %dms)",
				filepath.Base(p.audioPath),
				float64(p.enc.TotalFrames())/float64(encoder.SampleRate),
				p.enc.EncodeTime().Milliseconds())
		}
		p.enc = nil
	}
	if p.encFile != nil {
		p.encFile.Close()
		p.encFile = nil
	}
}

// runReader owns the VAD gate and the recognizer feed. It re-chunks
// queued capture blocks at readChunkBytes, writes every chunk to the
// audio sink, and forwards voiced chunks (plus the pre-roll they
// interrupt) to the recognizer.
func (p *Pipeline) runReader() {
	defer close(p.readerDone)

	preroll := make([][]byte, 0, vadPrerollCount)
	var pending []byte

	process := func(chunk []byte) {
		p.encodeChunk(chunk)
		if p.sess == nil {
			return
		}
		p.vp.Process(chunk)
		if p.vp.VoiceDetected() && time.Since(p.vp.LastVoiceTime()) <= vadHangover {
			for _, held := range preroll {
				p.sess.Feed(held)
			}
			preroll = preroll[:0]
			p.sess.Feed(chunk)
			return
		}
		if len(preroll) >= vadPrerollCount {
			copy(preroll, preroll[1:])
			preroll[len(preroll)-1] = chunk
		} else {
			preroll = append(preroll, chunk)
		}
	}

	for block := range p.blocks {
		pending = append(pending, block...)
		for len(pending) >= readChunkBytes {
			chunk := make([]byte, readChunkBytes)
			copy(chunk, pending[:readChunkBytes])
			pending = pending[readChunkBytes:]
			process(chunk)
		}
	}
	if len(pending) > 0 {
		process(pending)
	}
}

func (p *Pipeline) encodeChunk(chunk []byte) {
	if p.enc == nil {
		return
	}
	block := make([]int16, len(chunk)/2)
	for i := range block {
		block[i] = int16(binary.LittleEndian.Uint16(chunk[2*i:]))
	}
	if err := p.enc.EncodeBlock(block); err != nil && !p.encFailed {
		p.encFailed = true
		log.Errorf("audio sink write: %v", err)
	}
}

// runUpdates drains the recognizer and drives the sink. A finalized
// utterance lands in the session transcript, the transcript log, and
// the sink; the partial is cleared right after.
func (p *Pipeline) runUpdates() {
	defer close(p.updatesDone)
	for u := range p.sess.Updates() {
		if !u.Final {
			p.sink.OnPartial(u.Text)
			continue
		}
		if u.Text == "" {
			continue
		}
		p.mu.Lock()
		p.lines = append(p.lines, u.Text)
		p.mu.Unlock()
		log.Transcript(u.Text)
		p.sink.OnFinalized(u.Text)
		p.sink.OnPartial("")
	}
}

func (p *Pipeline) runTicker() {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			switch p.mon.Tick(p.vp.HasSpeechTick()) {
			case SilenceWarn:
				log.Info("no_voice_warning")
				tuiSend(SilenceMsg{})
				beep.PlayError()
			case SilenceWarnClear:
				tuiSend(SilenceMsg{Cleared: true})
			case SilenceRepeat:
				log.Info("silence_during_warning")
				tuiSend(SilenceMsg{})
				beep.PlayError()
			}
		}
	}
}

func (p *Pipeline) run() {
	defer close(p.doneCh)
	<-p.stop

	log.Info("session_stop")
	go beep.PlayEnd()
	time.Sleep(recordTail)

	p.capture.Stop()
	p.capture.ClearCallback()

	p.bufMu.Lock()
	p.stopped = true
	frames := p.totalFrames
	dropped := p.dropped
	p.bufMu.Unlock()
	close(p.blocks)
	<-p.readerDone

	log.Infof("captured %.1fs audio", float64(frames)/float64(encoder.SampleRate))
	if dropped > 0 {
		log.Warnf("audio queue dropped %d blocks", dropped)
	}
	p.finish()
}

func (p *Pipeline) finish() {
	if p.sess != nil {
		result, err := p.sess.Close()
		<-p.updatesDone
		p.sink.OnPartial("")
		if err != nil {
			log.Errorf("transcription close: %v", err)
		}
		if result.NoSpeech {
			log.Info("no_speech")
		}
		if result.Stream != nil {
			ss := result.Stream
			log.StreamMetrics(log.StreamMetricsData{
				ConnectMs:    ss.ConnectMs,
				FinalizeMs:   ss.FinalizeMs,
				TotalMs:      ss.TotalMs,
				AudioS:       ss.AudioS,
				SentChunks:   ss.SentChunks,
				SentKB:       ss.SentKB,
				RecvMessages: ss.RecvMessages,
				RecvFinal:    ss.RecvFinal,
			})
		}
	}
	if total, speech := p.vp.Stats(); total > 0 {
		log.Infof("voice activity: %d/%d frames speech", speech, total)
	}
	p.closeSink()
}

// Elapsed is the session clock markers and notes are stamped with.
func (p *Pipeline) Elapsed() float64 {
	return time.Since(p.start).Seconds()
}

func (p *Pipeline) Recording() bool    { return p.recording }
func (p *Pipeline) Transcribing() bool { return p.sess != nil }
func (p *Pipeline) Engine() string     { return p.engine }
func (p *Pipeline) AudioPath() string  { return p.audioPath }

func (p *Pipeline) AddMarker() Marker {
	t := p.Elapsed()
	m := Marker{At: t, Label: fmt.Sprintf("marker at %.1fs", t)}
	p.mu.Lock()
	p.markers = append(p.markers, m)
	p.mu.Unlock()
	return m
}

func (p *Pipeline) AddNote(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	n := Note{At: p.Elapsed(), Text: text}
	p.mu.Lock()
	p.notes = append(p.notes, n)
	p.mu.Unlock()
}

// Lines returns the finalized utterances accumulated independently of
// the Store, for the end-of-session report.
func (p *Pipeline) Lines() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.lines...)
}

func (p *Pipeline) Markers() []Marker {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Marker(nil), p.markers...)
}

func (p *Pipeline) Notes() []Note {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Note(nil), p.notes...)
}

// Wait blocks until the stop signal has been handled and the audio
// sink is closed.
func (p *Pipeline) Wait() {
	<-p.doneCh
}
