package transcriber

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// FakeTranscriber replays a scripted update sequence in place of a
// live connection.
type FakeTranscriber struct {
	script []Update
	err    error
	lang   string

	mu       sync.Mutex
	sessions []*FakeSession
}

func NewFake(script []Update, err error) *FakeTranscriber {
	return &FakeTranscriber{script: script, err: err}
}

func (f *FakeTranscriber) Name() string            { return "fake" }
func (f *FakeTranscriber) SetLanguage(lang string) { f.lang = lang }
func (f *FakeTranscriber) GetLanguage() string     { return f.lang }

func (f *FakeTranscriber) NewSession(_ context.Context, _ SessionConfig) (Session, error) {
	updates := make(chan Update, len(f.script)+1)
	for _, u := range f.script {
		updates <- u
	}
	s := &FakeSession{script: f.script, err: f.err, updates: updates}
	f.mu.Lock()
	f.sessions = append(f.sessions, s)
	f.mu.Unlock()
	return s, nil
}

// Sessions returns every session handed out so far.
func (f *FakeTranscriber) Sessions() []*FakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeSession(nil), f.sessions...)
}

type FakeSession struct {
	script  []Update
	err     error
	updates chan Update

	mu       sync.Mutex
	fedBytes int
	closed   bool
}

func (s *FakeSession) Feed(pcm []byte) {
	s.mu.Lock()
	s.fedBytes += len(pcm)
	s.mu.Unlock()
}

// FedBytes reports how much PCM the session has received.
func (s *FakeSession) FedBytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fedBytes
}

func (s *FakeSession) Updates() <-chan Update { return s.updates }

func (s *FakeSession) Close() (SessionResult, error) {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.updates)
	}
	s.mu.Unlock()

	if s.err != nil {
		return SessionResult{}, fmt.Errorf("fake transcriber error: %w", s.err)
	}

	var finals []string
	for _, u := range s.script {
		if u.Final {
			finals = append(finals, u.Text)
		}
	}
	text := strings.Join(finals, " ")
	return SessionResult{
		Text:     text,
		HasText:  text != "",
		NoSpeech: text == "",
		Stream:   &StreamStats{TotalMs: 10},
	}, nil
}
