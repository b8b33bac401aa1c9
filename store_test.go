package main

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
)

func TestDedupKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Follow up with Sam", "follow sam"},
		{"follow-up with Sam!", "follow sam"},
		{"We decided to ship Friday.", "decided ship friday"},
		{"   ", ""},
		{"the and of", ""},
		{"one two three four five six seven eight nine ten eleven twelve", "one two three four five six seven eight nine ten"},
	}
	for _, tt := range tests {
		if got := dedupKey(tt.in); got != tt.want {
			t.Errorf("dedupKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMergeFindingsDedup(t *testing.T) {
	s := NewStore()
	s.MergeFindings([]string{"Follow up with Sam"}, nil, nil, nil)
	s.MergeFindings([]string{"follow-up with Sam!"}, nil, nil, nil)

	f := s.FindingsSnapshot()
	if len(f.Actions) != 1 {
		t.Fatalf("expected one action after near-duplicate merge, got %v", f.Actions)
	}
	if f.Actions[0] != "Follow up with Sam" {
		t.Errorf("first-seen entry should win, got %q", f.Actions[0])
	}
}

func TestMergeFindingsOrderAndEmpties(t *testing.T) {
	s := NewStore()
	s.MergeFindings(nil, []string{"What is the plan?", "", "  ", "Who owns this?"}, nil, nil)
	f := s.FindingsSnapshot()
	want := []string{"What is the plan?", "Who owns this?"}
	if len(f.Questions) != len(want) {
		t.Fatalf("got %v, want %v", f.Questions, want)
	}
	for i := range want {
		if f.Questions[i] != want[i] {
			t.Errorf("questions[%d] = %q, want %q", i, f.Questions[i], want[i])
		}
	}
}

func TestComposeAnalysis(t *testing.T) {
	s := NewStore()
	s.MergeFindings([]string{"Update the changelog"}, nil, []string{"Ship Friday"}, nil)

	got := s.Analysis()
	want := "Action Items:\n- Update the changelog\n\nDecisions:\n- Ship Friday"
	if got != want {
		t.Errorf("composite analysis = %q, want %q", got, want)
	}
}

func TestSetAnalysisVerbatim(t *testing.T) {
	s := NewStore()
	s.MergeFindings([]string{"a thing"}, nil, nil, nil)
	s.SetAnalysis("raw model prose")
	if got := s.Analysis(); got != "raw model prose" {
		t.Errorf("got %q", got)
	}
	s.SetAnalysis("   ")
	if got := s.Analysis(); got != "raw model prose" {
		t.Errorf("blank SetAnalysis should be ignored, got %q", got)
	}
}

func TestAppendFinalAndPartial(t *testing.T) {
	s := NewStore()
	s.AppendFinal("")
	s.AppendFinal("  ")
	s.AppendFinal("hello there")
	s.SetPartial("in progre")

	lines, partial := s.TranscriptSnapshot()
	if len(lines) != 1 || lines[0] != "hello there" {
		t.Fatalf("lines = %v", lines)
	}
	if partial != "in progre" {
		t.Errorf("partial = %q", partial)
	}

	s.SetPartial("")
	if _, p := s.TranscriptSnapshot(); p != "" {
		t.Errorf("partial not cleared: %q", p)
	}
}

func TestTranscriptSnapshotIsCopy(t *testing.T) {
	s := NewStore()
	s.AppendFinal("one")
	lines, _ := s.TranscriptSnapshot()
	lines[0] = "mutated"
	fresh, _ := s.TranscriptSnapshot()
	if fresh[0] != "one" {
		t.Error("snapshot mutation leaked into store")
	}
}

func TestTranscriptTail(t *testing.T) {
	s := NewStore()
	for i := 0; i < 10; i++ {
		s.AppendFinal(fmt.Sprintf("line %d", i))
	}
	tail := s.TranscriptTail(3)
	if len(tail) != 3 || tail[0] != "line 7" || tail[2] != "line 9" {
		t.Errorf("tail = %v", tail)
	}
	if got := s.TranscriptTail(100); len(got) != 10 {
		t.Errorf("oversized tail = %d lines", len(got))
	}
}

func TestSegmentRoundTrip(t *testing.T) {
	s := NewStore()
	s.StartSegment()
	s.AppendFinal("Hello")
	s.SetPartial("world")

	if got := s.StopSegment(); got != "Hello\nworld" {
		t.Errorf("StopSegment = %q, want %q", got, "Hello\nworld")
	}
	if got := s.StopSegment(); got != "" {
		t.Errorf("second StopSegment = %q, want empty", got)
	}
	if s.SegmentActive() {
		t.Error("segment still active after stop")
	}
}

func TestSegmentIgnoresBlankPartial(t *testing.T) {
	s := NewStore()
	s.StartSegment()
	s.AppendFinal("Just this")
	s.SetPartial("   ")
	if got := s.StopSegment(); got != "Just this" {
		t.Errorf("StopSegment = %q", got)
	}
}

func TestSegmentOnlyCapturesWhileActive(t *testing.T) {
	s := NewStore()
	s.AppendFinal("before")
	s.StartSegment()
	s.AppendFinal("during")
	if got := s.StopSegment(); got != "during" {
		t.Errorf("StopSegment = %q, want %q", got, "during")
	}
	s.AppendFinal("after")
	if got := s.StopSegment(); got != "" {
		t.Errorf("inactive segment captured %q", got)
	}
}

func TestChatIDsConcurrent(t *testing.T) {
	s := NewStore()
	const n = 50
	var wg sync.WaitGroup
	ids := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = s.AddChatQuestion(fmt.Sprintf("question %d", i))
		}(i)
	}
	wg.Wait()

	sort.Ints(ids)
	for i := 0; i < n; i++ {
		if ids[i] != i {
			t.Fatalf("ids are not {0..%d}: %v", n-1, ids)
		}
	}

	hist := s.ChatSnapshot()
	if len(hist) != n {
		t.Fatalf("history length %d", len(hist))
	}
	for i := 1; i < len(hist); i++ {
		if hist[i].ID <= hist[i-1].ID {
			t.Fatalf("ids not strictly increasing in history order: %d after %d", hist[i].ID, hist[i-1].ID)
		}
	}
}

func TestChatPendingTransition(t *testing.T) {
	s := NewStore()
	id := s.AddChatQuestion("what now?")
	if !s.HasPendingChat() {
		t.Fatal("expected pending after add")
	}
	hist := s.ChatSnapshot()
	if hist[0].Answered || hist[0].Answer != "" {
		t.Fatalf("entry should start unanswered: %+v", hist[0])
	}

	s.SetChatAnswer(id, "do the thing")
	if s.HasPendingChat() {
		t.Error("still pending after answer")
	}
	s.SetChatAnswer(id, "overwrite attempt")
	hist = s.ChatSnapshot()
	if hist[0].Answer != "do the thing" {
		t.Errorf("answer transitioned twice: %q", hist[0].Answer)
	}
}

func TestChatEmptyIgnored(t *testing.T) {
	s := NewStore()
	if id := s.AddChatQuestion("  "); id != -1 {
		t.Errorf("blank question got id %d", id)
	}
	if len(s.ChatSnapshot()) != 0 {
		t.Error("blank question stored")
	}
}

func TestContextIdempotent(t *testing.T) {
	s := NewStore()
	s.AppendContext("body one", []string{"doc.md"}, []string{"/tmp/doc.md"})
	if !s.HasContextEntry("/tmp/doc.md") {
		t.Fatal("entry not recorded")
	}
	s.AppendContext("body one", []string{"doc.md"}, []string{"/tmp/doc.md"})

	text, labels := s.ContextSnapshot()
	if strings.Count(text, "body one") != 1 {
		t.Errorf("text ingested twice: %q", text)
	}
	if len(labels) != 1 {
		t.Errorf("labels = %v", labels)
	}
}

func TestMarkContextEntry(t *testing.T) {
	s := NewStore()
	if !s.MarkContextEntry("/tmp/a.md") {
		t.Fatal("first mark refused")
	}
	if s.MarkContextEntry("/tmp/a.md") {
		t.Error("second mark accepted")
	}
	if !s.HasContextEntry("/tmp/a.md") {
		t.Error("mark not visible to HasContextEntry")
	}

	// An id ingested through AppendContext is reserved as well.
	s.AppendContext("body", nil, []string{"/tmp/b.md"})
	if s.MarkContextEntry("/tmp/b.md") {
		t.Error("mark accepted for an already ingested id")
	}
}

func TestContextAdditive(t *testing.T) {
	s := NewStore()
	s.AppendContext("alpha", []string{"a"}, []string{"id-a"})
	s.AppendContext("beta", []string{"b"}, []string{"id-b"})

	text, labels := s.ContextSnapshot()
	if text != "alpha\n\nbeta" {
		t.Errorf("text = %q", text)
	}
	if len(labels) != 2 || labels[0] != "a" || labels[1] != "b" {
		t.Errorf("labels = %v", labels)
	}
}

func TestContextTextCap(t *testing.T) {
	s := NewStore()
	big := strings.Repeat("x", contextTextCap)
	s.AppendContext(big, nil, []string{"id-1"})
	s.AppendContext("tail marker", nil, []string{"id-2"})

	text, _ := s.ContextSnapshot()
	if len(text) > contextTextCap {
		t.Errorf("text length %d exceeds cap", len(text))
	}
	if !strings.HasSuffix(text, "tail marker") {
		t.Error("cap did not keep the tail")
	}
}

func TestConcurrentMixedAccess(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.AppendFinal(fmt.Sprintf("line %d", i))
			s.SetPartial(fmt.Sprintf("partial %d", i))
			s.MergeFindings([]string{fmt.Sprintf("action %d", i)}, nil, nil, nil)
			s.TranscriptSnapshot()
			s.FindingsSnapshot()
		}(i)
	}
	wg.Wait()

	lines, _ := s.TranscriptSnapshot()
	if len(lines) != 20 {
		t.Errorf("lost appends: %d lines", len(lines))
	}
	if got := len(s.FindingsSnapshot().Actions); got != 20 {
		t.Errorf("lost findings: %d actions", got)
	}
}
