package transcriber

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestNewRequiresKey(t *testing.T) {
	if _, err := New("", "nova-3"); err == nil {
		t.Error("expected error for empty API key")
	}
	tr, err := New("dg-key", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if tr.Name() != "deepgram" {
		t.Errorf("Name() = %q, want %q", tr.Name(), "deepgram")
	}
}

type fakeRawStream struct {
	mu        sync.Mutex
	sent      [][]byte
	recvCh    chan streamUpdate
	done      chan struct{}
	closeOnce sync.Once
	closeSent bool
}

func newFakeRawStream(script ...streamUpdate) *fakeRawStream {
	ch := make(chan streamUpdate, len(script)+1)
	for _, u := range script {
		ch <- u
	}
	return &fakeRawStream{recvCh: ch, done: make(chan struct{})}
}

func (f *fakeRawStream) Send(pcm []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	f.sent = append(f.sent, cp)
	return nil
}

func (f *fakeRawStream) CloseSend() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closeSent {
		f.closeSent = true
		f.recvCh <- streamUpdate{FromFinalize: true}
	}
	return nil
}

func (f *fakeRawStream) Recv() (streamUpdate, error) {
	select {
	case u := <-f.recvCh:
		return u, nil
	case <-f.done:
		return streamUpdate{}, errors.New("connection closed")
	}
}

func (f *fakeRawStream) Close() error {
	f.closeOnce.Do(func() { close(f.done) })
	return nil
}

func (f *fakeRawStream) sentLens() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	lens := make([]int, len(f.sent))
	for i, b := range f.sent {
		lens[i] = len(b)
	}
	return lens
}

func collectUpdates(s Session) (<-chan struct{}, *[]Update) {
	var got []Update
	done := make(chan struct{})
	go func() {
		defer close(done)
		for u := range s.Updates() {
			got = append(got, u)
		}
	}()
	return done, &got
}

func TestStreamSessionEmitsPartialsAndFinals(t *testing.T) {
	raw := newFakeRawStream(
		streamUpdate{Transcript: "hel"},
		streamUpdate{Transcript: "hello there", IsFinal: true},
		streamUpdate{Transcript: "how are"},
		streamUpdate{Transcript: "how are you", SpeechFinal: true},
	)
	ss := newStreamSession(func() (rawStreamSession, error) { return raw, nil })
	done, got := collectUpdates(ss)

	ss.Feed(make([]byte, streamChunkBytes*2+100))

	res, err := ss.Close()
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	<-done

	want := []Update{
		{Text: "hel"},
		{Text: "hello there", Final: true},
		{Text: "how are"},
		{Text: "how are you", Final: true},
	}
	if len(*got) != len(want) {
		t.Fatalf("got %d updates, want %d: %v", len(*got), len(want), *got)
	}
	for i, u := range want {
		if (*got)[i] != u {
			t.Errorf("update[%d] = %+v, want %+v", i, (*got)[i], u)
		}
	}

	if res.Text != "hello there how are you" {
		t.Errorf("Text = %q, want %q", res.Text, "hello there how are you")
	}
	if !res.HasText || res.NoSpeech {
		t.Errorf("HasText = %v, NoSpeech = %v", res.HasText, res.NoSpeech)
	}
	if res.Stream == nil {
		t.Fatal("Stream stats should be non-nil")
	}
	if res.Stream.CommitEvents != 2 {
		t.Errorf("CommitEvents = %d, want 2", res.Stream.CommitEvents)
	}

	lens := raw.sentLens()
	wantLens := []int{streamChunkBytes, streamChunkBytes, 100}
	if len(lens) != len(wantLens) {
		t.Fatalf("sent %d chunks (%v), want %v", len(lens), lens, wantLens)
	}
	for i := range wantLens {
		if lens[i] != wantLens[i] {
			t.Errorf("chunk[%d] = %d bytes, want %d", i, lens[i], wantLens[i])
		}
	}
}

func TestStreamSessionNoSpeech(t *testing.T) {
	raw := newFakeRawStream(
		streamUpdate{Transcript: ""},
		streamUpdate{Transcript: "", IsFinal: true},
	)
	ss := newStreamSession(func() (rawStreamSession, error) { return raw, nil })
	done, got := collectUpdates(ss)

	res, err := ss.Close()
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	<-done

	if len(*got) != 0 {
		t.Errorf("expected no updates for empty transcripts, got %v", *got)
	}
	if !res.NoSpeech || res.HasText || res.Text != "" {
		t.Errorf("result = %+v, want no-speech", res)
	}
}

func TestStreamSessionDialError(t *testing.T) {
	dialErr := errors.New("no route to host")
	ss := newStreamSession(func() (rawStreamSession, error) { return nil, dialErr })
	done, got := collectUpdates(ss)

	ss.Feed(make([]byte, streamChunkBytes))

	res, err := ss.Close()
	<-done
	if err == nil {
		t.Fatal("expected connection error from Close")
	}
	if !errors.Is(err, dialErr) {
		t.Errorf("err = %v, want %v", err, dialErr)
	}
	if !res.NoSpeech {
		t.Error("NoSpeech should be true on connection failure")
	}
	if len(*got) != 0 {
		t.Errorf("expected no updates, got %v", *got)
	}
}

func TestFakeTranscriberReplaysScript(t *testing.T) {
	script := []Update{
		{Text: "partial guess"},
		{Text: "full sentence", Final: true},
	}
	f := NewFake(script, nil)
	sess, err := f.NewSession(context.Background(), SessionConfig{})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	sess.Feed(make([]byte, 640))

	for i, want := range script {
		got := <-sess.Updates()
		if got != want {
			t.Errorf("update[%d] = %+v, want %+v", i, got, want)
		}
	}

	res, err := sess.Close()
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if res.Text != "full sentence" {
		t.Errorf("Text = %q, want %q", res.Text, "full sentence")
	}
	if _, ok := <-sess.Updates(); ok {
		t.Error("updates channel should be closed after Close")
	}

	sessions := f.Sessions()
	if len(sessions) != 1 {
		t.Fatalf("Sessions() returned %d, want 1", len(sessions))
	}
	if sessions[0].FedBytes() != 640 {
		t.Errorf("FedBytes = %d, want 640", sessions[0].FedBytes())
	}
}

func TestFakeTranscriberError(t *testing.T) {
	f := NewFake(nil, errors.New("boom"))
	sess, err := f.NewSession(context.Background(), SessionConfig{})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if _, err := sess.Close(); err == nil {
		t.Error("expected error from Close")
	}
}
