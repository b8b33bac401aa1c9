package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"glean/llm"
)

func (g *fakeGenerator) lastRequest(t *testing.T) llm.Request {
	t.Helper()
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.requests) == 0 {
		t.Fatal("no generate calls recorded")
	}
	return g.requests[len(g.requests)-1]
}

type statusRecorder struct {
	mu   sync.Mutex
	msgs []StatusMsg
}

func (r *statusRecorder) push(text string, d time.Duration, sticky bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, StatusMsg{Text: text, Duration: d, Sticky: sticky})
}

func (r *statusRecorder) last(t *testing.T) StatusMsg {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		t.Fatal("no status messages recorded")
	}
	return r.msgs[len(r.msgs)-1]
}

func (r *statusRecorder) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.msgs))
	for i, m := range r.msgs {
		out[i] = m.Text
	}
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func newTestWorkers(gen *fakeGenerator) (*workers, *Store, *statusRecorder) {
	store := NewStore()
	rec := &statusRecorder{}
	w := &workers{store: store, gen: gen, status: rec.push}
	return w, store, rec
}

func TestChatDisabled(t *testing.T) {
	w, store, rec := newTestWorkers(&fakeGenerator{available: false})

	if !w.SubmitChat("what did we decide?") {
		t.Fatal("SubmitChat rejected a valid question")
	}
	chat := store.ChatSnapshot()
	if len(chat) != 1 || !chat[0].Answered {
		t.Fatalf("chat = %+v, want one answered entry", chat)
	}
	if chat[0].Answer != "Chatbot disabled. Set OPENAI_API_KEY and --llm-model." {
		t.Errorf("answer = %q", chat[0].Answer)
	}
	if m := rec.last(t); !m.Sticky || m.Text != "Chatbot disabled; set OPENAI_API_KEY and --llm-model." {
		t.Errorf("status = %+v", m)
	}

	if w.SubmitChat("   ") {
		t.Error("SubmitChat accepted a blank question")
	}
}

func TestChatWorker(t *testing.T) {
	gen := &fakeGenerator{available: true, replies: []string{"We agreed to ship Friday."}}
	w, store, rec := newTestWorkers(gen)
	store.AppendFinal("let's ship on friday")
	store.AppendContext("release checklist", []string{"checklist.md"}, nil)

	if !w.SubmitChat("when do we ship?") {
		t.Fatal("SubmitChat rejected a valid question")
	}
	// The status is pushed after the answer lands, so waiting on it
	// covers both.
	waitFor(t, func() bool { return len(rec.texts()) > 0 })

	chat := store.ChatSnapshot()
	if chat[0].Answer != "We agreed to ship Friday." {
		t.Errorf("answer = %q", chat[0].Answer)
	}
	if m := rec.last(t); !m.Sticky || m.Text != "Chat answer ready (press Esc)." {
		t.Errorf("status = %+v", m)
	}

	req := gen.lastRequest(t)
	if !strings.Contains(req.System, "keep answers grounded") {
		t.Errorf("system prompt missing grounding line: %q", req.System)
	}
	if req.User != "when do we ship?" {
		t.Errorf("user = %q", req.User)
	}
	if !strings.Contains(req.Transcript, "let's ship on friday") {
		t.Errorf("transcript = %q", req.Transcript)
	}
	if req.Context != "release checklist" || len(req.ContextLabels) != 1 {
		t.Errorf("context = %q labels = %v", req.Context, req.ContextLabels)
	}
	if req.MaxTokens != 500 {
		t.Errorf("max tokens = %d, want 500", req.MaxTokens)
	}
}

func TestChatWorkerNoAnswer(t *testing.T) {
	tests := []struct {
		name string
		gen  *fakeGenerator
	}{
		{"empty reply", &fakeGenerator{available: true}},
		{"generate error", &fakeGenerator{available: true, err: errors.New("boom")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, store, rec := newTestWorkers(tt.gen)
			w.SubmitChat("anything?")
			waitFor(t, func() bool { return len(rec.texts()) > 0 })

			if got := store.ChatSnapshot()[0].Answer; got != "(No answer returned)" {
				t.Errorf("answer = %q", got)
			}
			if m := rec.last(t); !m.Sticky || m.Text != "No chat answer returned (press Esc)." {
				t.Errorf("status = %+v", m)
			}
		})
	}
}

func TestChatHistoryWindow(t *testing.T) {
	gen := &fakeGenerator{available: true, replies: []string{"ok"}}
	w, store, _ := newTestWorkers(gen)

	for i := 0; i < 8; i++ {
		id := store.AddChatQuestion(fmt.Sprintf("q%d", i))
		store.SetChatAnswer(id, fmt.Sprintf("a%d", i))
	}
	store.AddChatQuestion("still pending")

	w.SubmitChat("latest question")
	waitFor(t, func() bool { return gen.callCount() == 1 })

	history := gen.lastRequest(t).History
	// Window is the last 6 entries before the new question; the pending
	// one inside it is dropped.
	if len(history) != 5 {
		t.Fatalf("history len = %d, want 5", len(history))
	}
	if history[0].Question != "q3" || history[4].Question != "q7" {
		t.Errorf("history window = %v", history)
	}
	for _, turn := range history {
		if turn.Question == "still pending" || turn.Question == "latest question" {
			t.Errorf("history leaked %q", turn.Question)
		}
	}
}

func TestInterviewWorker(t *testing.T) {
	gen := &fakeGenerator{available: true, replies: []string{"Talk through the design first."}}
	w, store, rec := newTestWorkers(gen)
	w.interviewPrompt = "You are a staff engineer."
	store.AppendContext("role description", []string{"role.md"}, nil)

	if w.SubmitInterview("  ") {
		t.Error("SubmitInterview accepted blank text")
	}
	if !w.SubmitInterview("How would you scale this?") {
		t.Fatal("SubmitInterview rejected a valid question")
	}
	waitFor(t, func() bool { return !w.Answering() })

	qa := store.QASnapshot()
	if len(qa) != 1 || qa[0].Answer != "Talk through the design first." {
		t.Fatalf("qa = %+v", qa)
	}
	if got := store.Analysis(); got != "Talk through the design first." {
		t.Errorf("analysis = %q, want the interview answer", got)
	}
	if m := rec.last(t); !m.Sticky || m.Text != "Interview answer ready (press Esc)." {
		t.Errorf("status = %+v", m)
	}

	req := gen.lastRequest(t)
	if !strings.HasPrefix(req.System, "You are a staff engineer.") {
		t.Errorf("system = %q", req.System)
	}
	if !strings.Contains(req.System, "Use the provided CONTEXT") {
		t.Errorf("system missing context hint: %q", req.System)
	}
	if req.MaxTokens != 400 {
		t.Errorf("max tokens = %d, want 400", req.MaxTokens)
	}
}

func TestInterviewWorkerNoLLM(t *testing.T) {
	gen := &fakeGenerator{available: false}
	w, store, rec := newTestWorkers(gen)

	w.SubmitInterview("What is your biggest weakness?")
	waitFor(t, func() bool { return !w.Answering() })

	qa := store.QASnapshot()
	if len(qa) != 1 || qa[0].Answer != "(No answer returned)" {
		t.Fatalf("qa = %+v", qa)
	}
	if gen.callCount() != 0 {
		t.Error("generator called while unavailable")
	}
	if m := rec.last(t); !m.Sticky || m.Text != "Interview answer missing (press Esc)." {
		t.Errorf("status = %+v", m)
	}
}

func TestContextWorker(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "brief.txt")
	if err := os.WriteFile(path, []byte("Extension roadmap for Q3"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	w, store, rec := newTestWorkers(&fakeGenerator{})
	w.SubmitContext(path)
	waitFor(t, func() bool {
		text, _ := store.ContextSnapshot()
		return text != ""
	})

	text, labels := store.ContextSnapshot()
	if !strings.Contains(text, "roadmap for Q3") {
		t.Errorf("context text = %q", text)
	}
	if len(labels) != 1 || labels[0] != "brief.txt" {
		t.Errorf("labels = %v", labels)
	}
	got := rec.texts()
	if got[0] != "Loading context…" {
		t.Errorf("first status = %q", got[0])
	}
	waitFor(t, func() bool { return len(rec.texts()) == 2 })
	if m := rec.last(t); !m.Sticky || m.Text != "Context added: brief.txt" {
		t.Errorf("status = %+v", m)
	}

	w.SubmitContext(path)
	if m := rec.last(t); m.Text != "Context already loaded." {
		t.Errorf("repeat status = %+v", m)
	}
}

func TestContextWorkerInvalid(t *testing.T) {
	w, store, rec := newTestWorkers(&fakeGenerator{})
	w.SubmitContext("   ")
	if m := rec.last(t); !m.Sticky || m.Text != "Invalid context path or URL." {
		t.Errorf("status = %+v", m)
	}
	if text, _ := store.ContextSnapshot(); text != "" {
		t.Errorf("context mutated: %q", text)
	}
}

func TestContextWorkerNoText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.txt")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	w, _, rec := newTestWorkers(&fakeGenerator{})
	w.SubmitContext(path)
	waitFor(t, func() bool {
		m := rec.texts()
		return len(m) == 2 && m[1] == "No text extracted; check the source."
	})

	// The id stays reserved even though nothing was ingested.
	w.SubmitContext(path)
	if m := rec.last(t); m.Text != "Context already loaded." {
		t.Errorf("repeat status = %+v", m)
	}
}
