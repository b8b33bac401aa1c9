package transcriber

import (
	"strings"
	"sync"
	"time"

	"glean/encoder"
	"glean/log"
)

const (
	streamChunkMs      = 200
	streamChunkBytes   = encoder.SampleRate * encoder.Channels * (encoder.BitsPerSample / 8) * streamChunkMs / 1000
	streamFinalizeIdle = 200 * time.Millisecond
	streamFinalizeMax  = 1000 * time.Millisecond
)

type rawStreamSession interface {
	Send(pcm []byte) error
	CloseSend() error
	Recv() (streamUpdate, error)
	Close() error
}

type streamUpdate struct {
	Transcript   string
	IsFinal      bool
	SpeechFinal  bool
	FromFinalize bool
}

type streamSession struct {
	ws        rawStreamSession
	connected chan struct{} // closed once the socket is ready (or dialing failed)
	startedAt time.Time

	audioCh chan []byte
	updates chan Update

	sendDone      chan struct{}
	recvDone      chan struct{}
	finalized     chan struct{}
	finalizedOnce sync.Once

	feedMu  sync.Mutex
	feedBuf []byte

	mu        sync.Mutex
	err       error
	errOnce   sync.Once
	closing   bool
	committed string
	stats     streamStats
}

type streamStats struct {
	ConnectDur   time.Duration
	SentChunks   int
	SentBytes    uint64
	RecvMessages int
	RecvFinal    int
	RecvInterim  int
	CommitEvents int
	FinalizeWait time.Duration
	SessionDur   time.Duration
}

func (s streamStats) audioDuration() float64 {
	return float64(s.SentBytes) / float64(encoder.SampleRate*encoder.Channels*(encoder.BitsPerSample/8))
}

func (s streamStats) snapshot() *StreamStats {
	return &StreamStats{
		ConnectMs:    float64(s.ConnectDur.Milliseconds()),
		SentChunks:   s.SentChunks,
		SentKB:       float64(s.SentBytes) / 1024,
		RecvMessages: s.RecvMessages,
		RecvFinal:    s.RecvFinal,
		RecvInterim:  s.RecvInterim,
		CommitEvents: s.CommitEvents,
		FinalizeMs:   float64(s.FinalizeWait.Milliseconds()),
		TotalMs:      float64(s.SessionDur.Milliseconds()),
		AudioS:       s.audioDuration(),
	}
}

// newStreamSession returns immediately; the socket is dialed in the
// background so capture start is never blocked on the network.
func newStreamSession(dial func() (rawStreamSession, error)) *streamSession {
	ss := &streamSession{
		audioCh:   make(chan []byte, 128),
		updates:   make(chan Update, 16),
		startedAt: time.Now(),
		sendDone:  make(chan struct{}),
		recvDone:  make(chan struct{}),
		finalized: make(chan struct{}),
		connected: make(chan struct{}),
	}
	go ss.connect(dial)
	return ss
}

func (s *streamSession) connect(dial func() (rawStreamSession, error)) {
	connectStart := time.Now()
	ws, err := dial()
	s.mu.Lock()
	s.stats.ConnectDur = time.Since(connectStart)
	s.mu.Unlock()

	if err != nil {
		s.errOnce.Do(func() {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
		})
		// No loops will run; release everyone waiting on them.
		close(s.sendDone)
		close(s.recvDone)
		close(s.connected)
		return
	}

	s.ws = ws
	close(s.connected)
	go s.sendLoop()
	go s.recvLoop()
}

func (s *streamSession) Feed(pcm []byte) {
	s.mu.Lock()
	if s.err != nil {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	for _, chunk := range s.cutChunks(pcm) {
		s.audioCh <- chunk
	}
}

// cutChunks buffers pcm and returns any complete chunks. The sends
// happen outside feedMu: audioCh can block, and Close takes feedMu.
func (s *streamSession) cutChunks(pcm []byte) [][]byte {
	s.feedMu.Lock()
	defer s.feedMu.Unlock()

	s.feedBuf = append(s.feedBuf, pcm...)
	var chunks [][]byte
	for len(s.feedBuf) >= streamChunkBytes {
		chunk := make([]byte, streamChunkBytes)
		copy(chunk, s.feedBuf[:streamChunkBytes])
		s.feedBuf = s.feedBuf[streamChunkBytes:]
		chunks = append(chunks, chunk)
	}
	return chunks
}

func (s *streamSession) Updates() <-chan Update {
	return s.updates
}

func (s *streamSession) Close() (SessionResult, error) {
	<-s.connected

	s.mu.Lock()
	if s.err != nil {
		connErr := s.err
		s.mu.Unlock()
		s.abandon()
		return SessionResult{NoSpeech: true}, connErr
	}
	s.mu.Unlock()

	// Flush the partial chunk so the recognizer hears the last words.
	s.feedMu.Lock()
	if len(s.feedBuf) > 0 {
		tail := make([]byte, len(s.feedBuf))
		copy(tail, s.feedBuf)
		s.feedBuf = nil
		s.audioCh <- tail
	}
	s.feedMu.Unlock()
	close(s.audioCh)
	finalizeStart := time.Now()

	<-s.sendDone

	// Wait for the server's finalize ack, then a brief quiet period.
	select {
	case <-s.finalized:
		time.Sleep(streamFinalizeIdle)
	case <-time.After(streamFinalizeMax):
	}

	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.ws.Close()
	select {
	case <-s.recvDone:
	case <-time.After(2 * time.Second):
		log.Warn("stream receiver drain timeout")
	}
	close(s.updates)

	s.mu.Lock()
	text := s.committed
	stats := s.stats
	stats.FinalizeWait = time.Since(finalizeStart)
	stats.SessionDur = time.Since(s.startedAt)
	sessionErr := s.err
	s.mu.Unlock()

	cleanText := strings.TrimSpace(text)
	noSpeech := cleanText == ""

	return SessionResult{
		Text:     cleanText,
		HasText:  !noSpeech,
		NoSpeech: noSpeech,
		Stream:   stats.snapshot(),
	}, sessionErr
}

// abandon tears down a session whose dial failed. A Feed blocked on
// audioCh must be unblocked before the channel can be closed.
func (s *streamSession) abandon() {
	go func() {
		for range s.audioCh {
		}
	}()
	s.feedMu.Lock()
	s.feedBuf = nil
	s.feedMu.Unlock()
	close(s.audioCh)
	<-s.sendDone
	<-s.recvDone
	close(s.updates)
}

func (s *streamSession) sendLoop() {
	defer close(s.sendDone)
	for chunk := range s.audioCh {
		if err := s.ws.Send(chunk); err != nil {
			s.setErr(err)
			return
		}
		s.mu.Lock()
		s.stats.SentChunks++
		s.stats.SentBytes += uint64(len(chunk))
		s.mu.Unlock()
	}
	if err := s.ws.CloseSend(); err != nil {
		s.setErr(err)
	}
}

func (s *streamSession) recvLoop() {
	defer close(s.recvDone)
	for {
		update, err := s.ws.Recv()
		if err != nil {
			s.mu.Lock()
			closing := s.closing
			s.mu.Unlock()
			if !closing {
				s.setErr(err)
			}
			return
		}

		if update.FromFinalize {
			s.finalizedOnce.Do(func() { close(s.finalized) })
		}

		isFinal := update.IsFinal || update.SpeechFinal || update.FromFinalize

		s.mu.Lock()
		s.stats.RecvMessages++
		if isFinal {
			s.stats.RecvFinal++
		} else {
			s.stats.RecvInterim++
		}
		s.mu.Unlock()

		transcript := strings.TrimSpace(update.Transcript)
		if transcript == "" {
			continue
		}

		// Interim hypotheses may be dropped; the next one supersedes
		if !isFinal {
			select {
			case s.updates <- Update{Text: transcript}:
			default:
			}
			continue
		}

		s.mu.Lock()
		if s.committed != "" {
			s.committed += " " + transcript
		} else {
			s.committed = transcript
		}
		s.stats.CommitEvents++
		s.mu.Unlock()

		// Committed utterances must all reach the consumer
		s.updates <- Update{Text: transcript, Final: true}
	}
}

func (s *streamSession) setErr(err error) {
	if err == nil {
		return
	}
	s.errOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		if s.ws != nil {
			s.ws.Close()
		}
	})
}
