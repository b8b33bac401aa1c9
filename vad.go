package main

import (
	"encoding/binary"
	"math"
	"sync"
	"time"

	"glean/encoder"
)

const (
	vadFrameMs    = 20
	vadFrameBytes = encoder.SampleRate * vadFrameMs / 1000 * 2 // 640 bytes

	// Consecutive speech frames needed before voice is reported.
	vadDebounce = 3

	// PCM16 absolute amplitude / normalized RMS separating speech
	// frames from room noise
	vadPeakThreshold = 500
	vadRMSThreshold  = 0.01

	// Share of speech frames within a ticker interval for the interval
	// to count as "speaking".
	tickSpeechMin = 0.10
)

// vadProcessor cuts the capture stream into 20ms frames and classifies
// each as speech or noise. It answers two questions: has anyone spoken
// yet (VoiceDetected, debounced), and was there speech since the last
// ticker poll (HasSpeechTick).
type vadProcessor struct {
	mu            sync.Mutex
	buf           []byte
	voiceDetected bool
	lastVoiceTime time.Time
	speechRun     int
	totalFrames   int
	speechFrames  int
	tickTotal     int
	tickSpeech    int
}

func newVADProcessor() *vadProcessor {
	return &vadProcessor{}
}

func pcmFrameStats(frame []byte) (peakAbs int, rms float64) {
	var sumSquares float64
	samples := 0
	for i := 0; i+1 < len(frame); i += 2 {
		v := int16(binary.LittleEndian.Uint16(frame[i:]))
		abs := int(v)
		if abs < 0 {
			abs = -abs
		}
		if abs > peakAbs {
			peakAbs = abs
		}
		f := float64(v) / 32768.0
		sumSquares += f * f
		samples++
	}
	if samples == 0 {
		return 0, 0
	}
	return peakAbs, math.Sqrt(sumSquares / float64(samples))
}

func frameActive(frame []byte) bool {
	peak, rms := pcmFrameStats(frame)
	return peak >= vadPeakThreshold || rms >= vadRMSThreshold
}

func (p *vadProcessor) Process(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buf = append(p.buf, data...)
	for len(p.buf) >= vadFrameBytes {
		frame := p.buf[:vadFrameBytes]
		p.buf = p.buf[vadFrameBytes:]
		p.observe(frameActive(frame))
	}
}

// observe folds one classified frame into the debounce state. A single
// hot frame is not voice; vadDebounce in a row are.
func (p *vadProcessor) observe(active bool) {
	p.totalFrames++
	if !active {
		p.speechRun = 0
		return
	}
	p.speechFrames++
	p.speechRun++
	if p.voiceDetected || p.speechRun >= vadDebounce {
		p.voiceDetected = true
		p.lastVoiceTime = time.Now()
	}
}

func (p *vadProcessor) VoiceDetected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.voiceDetected
}

func (p *vadProcessor) LastVoiceTime() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastVoiceTime
}

// Stats reports the whole-session frame tally.
func (p *vadProcessor) Stats() (total, speech int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalFrames, p.speechFrames
}

// HasSpeechTick reports whether enough speech frames arrived since the
// previous call. Each call starts a fresh interval.
func (p *vadProcessor) HasSpeechTick() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	t := p.totalFrames - p.tickTotal
	s := p.speechFrames - p.tickSpeech
	p.tickTotal, p.tickSpeech = p.totalFrames, p.speechFrames
	if t == 0 {
		return false
	}
	return float64(s)/float64(t) >= tickSpeechMin
}
