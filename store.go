package main

import (
	"strings"
	"sync"
)

// stopwords is shared by the findings dedup key and the fallback
// topic extractor.
var stopwords = func() map[string]bool {
	const list = "a an and are as at be been being but by for from had has have how i if in into is it its of on or our over so than that the their them then there these they this to under up was we what when where which who will with you your"
	m := make(map[string]bool)
	for _, w := range strings.Fields(list) {
		m[w] = true
	}
	return m
}()

// dedupKey normalizes a finding for duplicate detection: lowercase,
// non-alphanumerics become spaces, stopwords dropped, first 10 tokens
// joined by single spaces. An empty key means the candidate carries no
// content worth storing.
func dedupKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	kept := make([]string, 0, 10)
	for _, tok := range strings.Fields(b.String()) {
		if stopwords[tok] {
			continue
		}
		kept = append(kept, tok)
		if len(kept) == 10 {
			break
		}
	}
	return strings.Join(kept, " ")
}

type ChatEntry struct {
	ID       int
	Question string
	Answer   string
	Answered bool
}

type QAEntry struct {
	Question string
	Answer   string
}

type Findings struct {
	Actions   []string
	Questions []string
	Decisions []string
	Topics    []string
}

const contextTextCap = 40000

// Store is the single source of truth for session state. One mutex
// guards everything; every operation is atomic and infallible, and
// every reader gets copies it can iterate without holding the lock.
type Store struct {
	mu sync.Mutex

	lines   []string
	partial string

	actions   []string
	questions []string
	decisions []string
	topics    []string

	seenActions   map[string]bool
	seenQuestions map[string]bool
	seenDecisions map[string]bool
	seenTopics    map[string]bool

	analysis string

	segActive  bool
	segLines   []string
	segPartial string

	qa []QAEntry

	chat    []ChatEntry
	chatSeq int

	ctxText    string
	ctxLabels  []string
	ctxSeen    map[string]bool
	ctxEntries map[string]bool
}

func NewStore() *Store {
	return &Store{
		seenActions:   make(map[string]bool),
		seenQuestions: make(map[string]bool),
		seenDecisions: make(map[string]bool),
		seenTopics:    make(map[string]bool),
		ctxSeen:       make(map[string]bool),
		ctxEntries:    make(map[string]bool),
	}
}

// AppendFinal adds one finalized utterance. Empty input is ignored.
// An active capture segment receives the line as well.
func (s *Store) AppendFinal(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, text)
	if s.segActive {
		s.segLines = append(s.segLines, text)
	}
}

// SetPartial replaces the in-progress utterance. Empty text clears it;
// partial text is never promoted to the transcript here.
func (s *Store) SetPartial(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partial = text
	if s.segActive {
		s.segPartial = text
	}
}

func (s *Store) TranscriptSnapshot() ([]string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines := make([]string, len(s.lines))
	copy(lines, s.lines)
	return lines, s.partial
}

// TranscriptTail returns copies of the last n finalized lines.
func (s *Store) TranscriptTail(n int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := 0
	if len(s.lines) > n {
		start = len(s.lines) - n
	}
	tail := make([]string, len(s.lines)-start)
	copy(tail, s.lines[start:])
	return tail
}

func appendUnique(list []string, seen map[string]bool, candidates []string) []string {
	for _, c := range candidates {
		key := dedupKey(c)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		list = append(list, c)
	}
	return list
}

// MergeFindings folds new candidates into the four finding sequences,
// dropping near-duplicates, and recomputes the composite analysis text.
func (s *Store) MergeFindings(actions, questions, decisions, topics []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = appendUnique(s.actions, s.seenActions, actions)
	s.questions = appendUnique(s.questions, s.seenQuestions, questions)
	s.decisions = appendUnique(s.decisions, s.seenDecisions, decisions)
	s.topics = appendUnique(s.topics, s.seenTopics, topics)
	s.analysis = composeAnalysis(s.actions, s.questions, s.decisions, s.topics)
}

func composeAnalysis(actions, questions, decisions, topics []string) string {
	var b strings.Builder
	section := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		b.WriteString(title)
		b.WriteString(":\n")
		for _, it := range items {
			b.WriteString("- ")
			b.WriteString(it)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	section("Action Items", actions)
	section("Questions", questions)
	section("Decisions", decisions)
	section("Key Topics", topics)
	return strings.TrimRight(b.String(), "\n")
}

// SetAnalysis overwrites the composite analysis text verbatim. Empty
// input is ignored.
func (s *Store) SetAnalysis(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analysis = text
}

func (s *Store) Analysis() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.analysis
}

func (s *Store) FindingsSnapshot() Findings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Findings{
		Actions:   append([]string(nil), s.actions...),
		Questions: append([]string(nil), s.questions...),
		Decisions: append([]string(nil), s.decisions...),
		Topics:    append([]string(nil), s.topics...),
	}
}

func (s *Store) StartSegment() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segActive = true
	s.segLines = nil
	s.segPartial = ""
}

// StopSegment deactivates the capture segment and returns its trimmed
// accumulated text. Calling it again without a new StartSegment yields "".
func (s *Store) StopSegment() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	parts := append([]string(nil), s.segLines...)
	if strings.TrimSpace(s.segPartial) != "" {
		parts = append(parts, s.segPartial)
	}
	s.segActive = false
	s.segLines = nil
	s.segPartial = ""
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

func (s *Store) SegmentActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.segActive
}

// AddChatQuestion appends a pending chat entry and returns its id.
// Ids start at 0 and are assigned under the same critical section as
// the append, so they are strictly increasing in history order.
// Empty questions are ignored and yield -1.
func (s *Store) AddChatQuestion(q string) int {
	if strings.TrimSpace(q) == "" {
		return -1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.chatSeq
	s.chatSeq++
	s.chat = append(s.chat, ChatEntry{ID: id, Question: q})
	return id
}

// SetChatAnswer closes a pending entry. A second answer for the same id
// is dropped; the pending→answered transition happens at most once.
func (s *Store) SetChatAnswer(id int, answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.chat {
		if s.chat[i].ID == id {
			if !s.chat[i].Answered {
				s.chat[i].Answer = answer
				s.chat[i].Answered = true
			}
			return
		}
	}
}

func (s *Store) HasPendingChat() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.chat {
		if !s.chat[i].Answered {
			return true
		}
	}
	return false
}

func (s *Store) ChatSnapshot() []ChatEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ChatEntry(nil), s.chat...)
}

func (s *Store) AddQA(question, answer string) {
	if strings.TrimSpace(question) == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.qa = append(s.qa, QAEntry{Question: question, Answer: answer})
}

func (s *Store) QASnapshot() []QAEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]QAEntry(nil), s.qa...)
}

// AppendContext merges extracted text and labels into the bundle. When
// ids are given and every one was already ingested, the whole append is
// a no-op, which makes concurrent ingestion of the same source safe.
// The combined text keeps its tail under the cap.
func (s *Store) AppendContext(text string, labels []string, ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(ids) > 0 {
		fresh := false
		for _, id := range ids {
			if !s.ctxEntries[id] {
				fresh = true
			}
		}
		if !fresh {
			return
		}
		for _, id := range ids {
			s.ctxEntries[id] = true
		}
	}
	if strings.TrimSpace(text) != "" {
		if s.ctxText == "" {
			s.ctxText = text
		} else {
			s.ctxText = s.ctxText + "\n\n" + text
		}
		if len(s.ctxText) > contextTextCap {
			s.ctxText = s.ctxText[len(s.ctxText)-contextTextCap:]
		}
	}
	for _, l := range labels {
		if l == "" || s.ctxSeen[l] {
			continue
		}
		s.ctxSeen[l] = true
		s.ctxLabels = append(s.ctxLabels, l)
	}
}

func (s *Store) HasContextEntry(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctxEntries[id]
}

// MarkContextEntry reserves id before its load begins, so concurrent
// ingests of the same source race on one atomic check. False means it
// was already reserved or ingested; the reservation is never released,
// not even when the load fails.
func (s *Store) MarkContextEntry(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctxEntries[id] {
		return false
	}
	s.ctxEntries[id] = true
	return true
}

func (s *Store) ContextSnapshot() (string, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctxText, append([]string(nil), s.ctxLabels...)
}
