// Package beep plays the session's audio cues: a short tick when
// capture starts, a lower chime when it stops, and a double buzz for
// warnings.
package beep

var disabled bool

// Disable suppresses all cues for the process.
func Disable() { disabled = true }

const sampleRate = 44100

// cue is a synthesized sine burst with exponential decay. A cue with
// repeat > 1 plays the burst that many times with rest seconds of
// silence in between. Burst duration is chosen per platform: the
// persistent output device on darwin keeps very short ticks audible,
// while a fresh PulseAudio stream per cue needs longer ones.
type cue struct {
	freq   float64
	volume float64
	decay  float64
	repeat int
	rest   float64
}

var (
	cueStart = cue{freq: 1200, volume: 0.5, decay: 60}
	cueEnd   = cue{freq: 900, volume: 0.5, decay: 40}
	cueError = cue{freq: 350, volume: 0.6, decay: 30, repeat: 2, rest: 0.05}
)

func (c cue) bursts() int {
	if c.repeat > 1 {
		return c.repeat
	}
	return 1
}
