package audio

import (
	"os"
	"sync/atomic"
	"time"

	"glean/encoder"
)

const (
	fakeChunkFrames   = 1024
	fakeBytesPerFrame = 2 // 16-bit mono
)

// FakeContext replays a WAV file as if it were a microphone. Realtime
// mode paces chunks at the sample rate and keeps producing silence
// after the file runs out, so a session stays alive until it is
// stopped; non-realtime mode pushes the whole file through the
// callback during Start and only the trailing silence is paced.
type FakeContext struct {
	pcm      []byte
	realtime bool
}

func NewFakeContext(wavPath string, realtime bool) (*FakeContext, error) {
	data, err := os.ReadFile(wavPath)
	if err != nil {
		return nil, err
	}
	if len(data) > WAVHeaderSize {
		data = data[WAVHeaderSize:]
	}
	return &FakeContext{pcm: data, realtime: realtime}, nil
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) { return nil, nil }
func (f *FakeContext) Close()                         {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	return &FakeCapture{pcm: f.pcm, realtime: f.realtime}, nil
}

type FakeCapture struct {
	pcm      []byte
	realtime bool
	callback atomic.Pointer[DataCallback]

	stopCh   chan struct{}
	feedDone chan struct{}
}

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.callback.Store(&cb)
}

func (f *FakeCapture) ClearCallback() {
	f.callback.Store(nil)
}

func (f *FakeCapture) DeviceName() string { return "fake" }

func (f *FakeCapture) emit(chunk []byte) {
	if cb := f.callback.Load(); cb != nil {
		(*cb)(chunk, uint32(len(chunk)/fakeBytesPerFrame))
	}
}

// Start drains the WAV data and then synthesizes silence until Stop.
// The callback must be registered before Start in non-realtime mode:
// that branch delivers all file audio before returning.
func (f *FakeCapture) Start() error {
	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})

	chunkBytes := fakeChunkFrames * fakeBytesPerFrame
	pos := 0
	next := func() []byte {
		end := min(pos+chunkBytes, len(f.pcm))
		chunk := make([]byte, end-pos)
		copy(chunk, f.pcm[pos:end])
		pos = end
		return chunk
	}

	if !f.realtime {
		for pos < len(f.pcm) {
			f.emit(next())
		}
	}

	interval := time.Duration(fakeChunkFrames) * time.Second / time.Duration(encoder.SampleRate)
	if !f.realtime {
		// Trailing silence only keeps a live recognizer fed; it does
		// not need sample-rate pacing.
		interval = time.Millisecond
	}

	go func() {
		defer close(f.feedDone)
		silence := make([]byte, chunkBytes)
		for {
			if pos < len(f.pcm) {
				f.emit(next())
			} else {
				f.emit(silence)
			}
			select {
			case <-f.stopCh:
				return
			case <-time.After(interval):
			}
		}
	}()
	return nil
}

func (f *FakeCapture) Stop() {
	select {
	case <-f.stopCh:
	default:
		close(f.stopCh)
	}
	if f.feedDone != nil {
		<-f.feedDone
	}
}

func (f *FakeCapture) Close() {}
