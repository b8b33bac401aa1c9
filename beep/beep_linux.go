//go:build linux

package beep

import (
	"math"
	"sync"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
)

var (
	startSamples []int16
	endSamples   []int16
	errorSamples []int16
	soundOnce    sync.Once
)

func initSound() {
	startSamples = synth(cueStart, 0.2)
	endSamples = synth(cueEnd, 0.2)
	errorSamples = synth(cueError, 0.08)
}

// synth renders a cue as interleaved stereo PCM16.
func synth(c cue, dur float64) []int16 {
	burst := int(float64(sampleRate) * dur)
	rest := int(float64(sampleRate) * c.rest)
	n := c.bursts()

	samples := make([]int16, 0, (n*burst+(n-1)*rest)*2)
	for b := 0; b < n; b++ {
		if b > 0 {
			samples = append(samples, make([]int16, rest*2)...)
		}
		for i := 0; i < burst; i++ {
			t := float64(i) / float64(sampleRate)
			envelope := math.Exp(-t * c.decay)
			s := int16(math.Sin(2*math.Pi*c.freq*t) * 32767 * c.volume * envelope)
			samples = append(samples, s, s)
		}
	}
	return samples
}

// playSamples opens a short-lived playback stream and drains the cue
// through it. Errors are swallowed; a missing sound server must never
// disturb a session.
func playSamples(samples []int16) {
	if len(samples) == 0 {
		return
	}
	c, err := pulse.NewClient()
	if err != nil {
		return
	}
	defer c.Close()

	pos := 0
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		if pos >= len(samples) {
			return 0, pulse.EndOfData
		}
		n := copy(buf, samples[pos:])
		pos += n
		return n, nil
	})
	stream, err := c.NewPlayback(reader,
		pulse.PlaybackStereo,
		pulse.PlaybackSampleRate(sampleRate),
		pulse.PlaybackLatency(0.1),
		pulse.PlaybackRawOption(func(p *proto.CreatePlaybackStream) {
			p.ChannelVolumes = proto.ChannelVolumes{uint32(proto.VolumeNorm), uint32(proto.VolumeNorm)}
		}),
	)
	if err != nil {
		return
	}
	stream.Start()
	stream.Drain()
	stream.Stop()
	stream.Close()
}

func Init() {
	soundOnce.Do(initSound)
}

func PlayStart() {
	if disabled {
		return
	}
	soundOnce.Do(initSound)
	go playSamples(startSamples)
}

func PlayEnd() {
	if disabled {
		return
	}
	soundOnce.Do(initSound)
	go playSamples(endSamples)
}

func PlayError() {
	if disabled {
		return
	}
	soundOnce.Do(initSound)
	go playSamples(errorSamples)
}
