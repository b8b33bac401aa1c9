package main

import "testing"

func warnTicks() int { return int(silenceWarnEvery / tickInterval) }

func feedN(m *silenceMonitor, speech bool, n int) SilenceEvent {
	var last SilenceEvent
	for i := 0; i < n; i++ {
		last = m.Tick(speech)
	}
	return last
}

func TestSilenceWarnAfterWindow(t *testing.T) {
	m := newSilenceMonitor()
	for i := 0; i < warnTicks()-1; i++ {
		if ev := m.Tick(false); ev != SilenceNone {
			t.Fatalf("unexpected event at tick %d: %d", i, ev)
		}
	}
	if ev := m.Tick(false); ev != SilenceWarn {
		t.Fatalf("expected SilenceWarn at tick %d, got %d", warnTicks(), ev)
	}
}

func TestSilenceWarnClearsOnSpeech(t *testing.T) {
	m := newSilenceMonitor()
	feedN(m, false, warnTicks()) // triggers warn

	// Sustained speech clears once the window crosses the clear ratio.
	for i := 0; i < warnTicks(); i++ {
		if ev := m.Tick(true); ev == SilenceWarnClear {
			return
		}
	}
	t.Fatal("expected SilenceWarnClear after speech")
}

func TestNoWarnDuringSpeech(t *testing.T) {
	m := newSilenceMonitor()
	for i := 0; i < 200; i++ {
		if ev := m.Tick(true); ev == SilenceWarn {
			t.Fatalf("unexpected warn during speech at tick %d", i)
		}
	}
}

func TestSilenceRepeat(t *testing.T) {
	m := newSilenceMonitor()
	feedN(m, false, warnTicks())

	// The reminder comes one full window after the warning.
	var gotRepeat bool
	for i := 0; i < warnTicks()+20; i++ {
		if ev := m.Tick(false); ev == SilenceRepeat {
			gotRepeat = true
			break
		}
	}
	if !gotRepeat {
		t.Fatal("expected SilenceRepeat while silence persists")
	}
}

func TestWarnOnlyOnce(t *testing.T) {
	m := newSilenceMonitor()
	warns := 0
	for i := 0; i < 3*warnTicks(); i++ {
		if ev := m.Tick(false); ev == SilenceWarn {
			warns++
		}
	}
	if warns != 1 {
		t.Fatalf("expected exactly 1 SilenceWarn, got %d", warns)
	}
}

func TestWarnStaysDuringNoise(t *testing.T) {
	m := newSilenceMonitor()
	feedN(m, false, warnTicks())

	// Scattered blips below the clear ratio must not clear the warning.
	clears := 0
	for i := 0; i < warnTicks(); i++ {
		speech := i%10 == 0 // 10% speech
		if ev := m.Tick(speech); ev == SilenceWarnClear {
			clears++
		}
	}
	if clears > 0 {
		t.Fatalf("expected warning to stay with 10%% speech, got %d clears", clears)
	}
}
