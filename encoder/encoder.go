// Package encoder writes session audio to disk as FLAC or WAV.
package encoder

import "time"

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
)

// Encoder is a mono PCM16 audio sink. Implementations time their own
// writes; EncodeTime reports the accumulated cost.
type Encoder interface {
	EncodeBlock(block []int16) error
	Close() error
	TotalFrames() uint64
	EncodeTime() time.Duration
}
