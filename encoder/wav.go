package encoder

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"
)

// WavEncoder appends PCM16 frames after a placeholder RIFF header and
// patches the sizes on Close.
type WavEncoder struct {
	ws          io.WriteSeeker
	totalFrames uint64
	encodeTime  time.Duration
	mu          sync.Mutex
	closed      bool
}

func NewWav(ws io.WriteSeeker) (*WavEncoder, error) {
	e := &WavEncoder{ws: ws}
	if err := e.writeHeader(0); err != nil {
		return nil, fmt.Errorf("writing wav header: %w", err)
	}
	return e, nil
}

func (e *WavEncoder) writeHeader(dataLen uint32) error {
	var h [44]byte
	copy(h[0:], "RIFF")
	binary.LittleEndian.PutUint32(h[4:], 36+dataLen)
	copy(h[8:], "WAVE")
	copy(h[12:], "fmt ")
	binary.LittleEndian.PutUint32(h[16:], 16)
	binary.LittleEndian.PutUint16(h[20:], 1) // PCM
	binary.LittleEndian.PutUint16(h[22:], Channels)
	binary.LittleEndian.PutUint32(h[24:], SampleRate)
	binary.LittleEndian.PutUint32(h[28:], SampleRate*Channels*BitsPerSample/8)
	binary.LittleEndian.PutUint16(h[32:], Channels*BitsPerSample/8)
	binary.LittleEndian.PutUint16(h[34:], BitsPerSample)
	copy(h[36:], "data")
	binary.LittleEndian.PutUint32(h[40:], dataLen)
	_, err := e.ws.Write(h[:])
	return err
}

func (e *WavEncoder) EncodeBlock(block []int16) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("wav encoder closed")
	}

	start := time.Now()
	buf := make([]byte, len(block)*2)
	for i, s := range block {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	if _, err := e.ws.Write(buf); err != nil {
		return fmt.Errorf("writing wav block: %w", err)
	}
	e.totalFrames += uint64(len(block))
	e.encodeTime += time.Since(start)
	return nil
}

func (e *WavEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	if _, err := e.ws.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seeking wav header: %w", err)
	}
	dataLen := uint32(e.totalFrames) * uint32(Channels*BitsPerSample/8)
	return e.writeHeader(dataLen)
}

func (e *WavEncoder) TotalFrames() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.totalFrames
}

func (e *WavEncoder) EncodeTime() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.encodeTime
}
