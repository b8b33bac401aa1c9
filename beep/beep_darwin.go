//go:build darwin

package beep

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

var (
	malgoCtx     *malgo.AllocatedContext
	device       *malgo.Device
	startSamples []byte
	endSamples   []byte
	errorSamples []byte
	soundOnce    sync.Once

	// Playback cursor, read by the audio-thread callback.
	playSamples atomic.Pointer[[]byte]
	playPos     atomic.Uint32
	playMu      sync.Mutex
)

func initDevice() error {
	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.Playback.Format = malgo.FormatS16
	config.Playback.Channels = 1
	config.SampleRate = sampleRate

	callbacks := malgo.DeviceCallbacks{
		Data: dataCallback,
	}

	var err error
	device, err = malgo.InitDevice(malgoCtx.Context, config, callbacks)
	return err
}

func initSound() {
	var err error
	malgoCtx, err = malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return
	}

	startSamples = synth(cueStart, 0.03)
	endSamples = synth(cueEnd, 0.05)
	errorSamples = synth(cueError, 0.08)

	if err := initDevice(); err != nil {
		malgoCtx.Uninit()
		malgoCtx = nil
		return
	}
}

// synth renders a cue as mono PCM16 bytes.
func synth(c cue, dur float64) []byte {
	burst := int(float64(sampleRate) * dur)
	rest := int(float64(sampleRate) * c.rest)
	n := c.bursts()

	buf := make([]byte, 0, (n*burst+(n-1)*rest)*2)
	for b := 0; b < n; b++ {
		if b > 0 {
			buf = append(buf, make([]byte, rest*2)...)
		}
		for i := 0; i < burst; i++ {
			t := float64(i) / float64(sampleRate)
			envelope := math.Exp(-t * c.decay)
			s := int16(math.Sin(2*math.Pi*c.freq*t) * 32767 * c.volume * envelope)
			buf = append(buf, byte(s), byte(s>>8))
		}
	}
	return buf
}

// dataCallback feeds the device from the current cue, zero-filling
// whatever the cue does not cover.
func dataCallback(pOutput, _ []byte, frameCount uint32) {
	for i := range pOutput {
		pOutput[i] = 0
	}

	samples := playSamples.Load()
	if samples == nil {
		return
	}

	pos := playPos.Load()
	total := uint32(len(*samples))
	if pos >= total {
		playSamples.Store(nil)
		return
	}

	want := frameCount * 2
	if want > total-pos {
		want = total - pos
	}
	copy(pOutput[:want], (*samples)[pos:pos+want])
	playPos.Store(pos + want)
}

func playBytes(samples []byte) {
	if malgoCtx == nil || len(samples) == 0 {
		return
	}

	playMu.Lock()
	defer playMu.Unlock()

	if device == nil {
		return
	}

	// A running device keeps its state; stopping first resets it.
	device.Stop()

	playPos.Store(0)
	playSamples.Store(&samples)

	if err := device.Start(); err != nil {
		// The device handle goes stale across macOS sleep/wake.
		device.Uninit()
		if err := initDevice(); err != nil {
			playSamples.Store(nil)
			return
		}
		if err := device.Start(); err != nil {
			playSamples.Store(nil)
			return
		}
	}
}

func Init() {
	soundOnce.Do(initSound)
}

func PlayStart() {
	if disabled {
		return
	}
	soundOnce.Do(initSound)
	playBytes(startSamples)
}

func PlayEnd() {
	if disabled {
		return
	}
	soundOnce.Do(initSound)
	playBytes(endSamples)
}

func PlayError() {
	if disabled {
		return
	}
	soundOnce.Do(initSound)
	playBytes(errorSamples)
}
