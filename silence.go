package main

import "time"

const (
	tickInterval     = 100 * time.Millisecond
	silenceWarnEvery = 8 * time.Second
	speechMinRatio   = 0.10
	speechClearRatio = 0.25 // higher threshold to clear warning (hysteresis)
)

type SilenceEvent int

const (
	SilenceNone      SilenceEvent = iota
	SilenceWarn                   // no voice detected
	SilenceWarnClear              // speech resumed after warning
	SilenceRepeat                 // repeat reminder (every 8s)
)

// silenceMonitor watches the per-tick voice flag and warns once speech
// drops below speechMinRatio across the warn window. The clear
// threshold sits higher so scattered noise cannot flap the warning.
type silenceMonitor struct {
	window      []bool
	ticks       int
	speechCount int
	warned      bool
	lastWarn    int
}

func newSilenceMonitor() *silenceMonitor {
	return &silenceMonitor{window: make([]bool, int(silenceWarnEvery/tickInterval))}
}

// record replaces the oldest sample with the newest, keeping the
// running speech count in step.
func (m *silenceMonitor) record(hasSpeech bool) {
	idx := m.ticks % len(m.window)
	if m.ticks >= len(m.window) && m.window[idx] {
		m.speechCount--
	}
	m.window[idx] = hasSpeech
	if hasSpeech {
		m.speechCount++
	}
	m.ticks++
}

func (m *silenceMonitor) speechRatio() float64 {
	n := m.ticks
	if n > len(m.window) {
		n = len(m.window)
	}
	if n == 0 {
		return 1.0
	}
	return float64(m.speechCount) / float64(n)
}

func (m *silenceMonitor) Tick(hasSpeech bool) SilenceEvent {
	m.record(hasSpeech)

	r := m.speechRatio()
	warnAt := len(m.window)
	switch {
	case !m.warned && m.ticks >= warnAt && r < speechMinRatio:
		m.warned = true
		m.lastWarn = m.ticks
		return SilenceWarn
	case m.warned && r >= speechClearRatio:
		m.warned = false
		return SilenceWarnClear
	case m.warned && m.ticks-m.lastWarn >= warnAt:
		m.lastWarn = m.ticks
		return SilenceRepeat
	}
	return SilenceNone
}
