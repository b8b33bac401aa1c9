package main

import "time"

// TranscriptSink receives recognizer output. Both methods are invoked
// from the pipeline's update-consumer goroutine: OnFinalized carries one
// committed utterance (never empty, at most once per utterance);
// OnPartial replaces the in-flight hypothesis, and empty text clears it.
type TranscriptSink interface {
	OnFinalized(text string)
	OnPartial(text string)
}

// storeSink feeds recognizer events into the shared session store.
type storeSink struct {
	store *Store
}

func (s storeSink) OnFinalized(text string) { s.store.AppendFinal(text) }
func (s storeSink) OnPartial(text string)   { s.store.SetPartial(text) }

// Messages pushed into the dashboard by background producers. Everything
// else the dashboard shows is pulled from the Store on its render tick.

// StatusMsg sets the transient status line. Sticky statuses persist
// until acknowledged with Esc; others expire after Duration (zero picks
// the default display time).
type StatusMsg struct {
	Text     string
	Duration time.Duration
	Sticky   bool
}

// SilenceMsg reports the silence monitor's warn state.
type SilenceMsg struct {
	Cleared bool
}
