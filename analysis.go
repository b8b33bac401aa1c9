package main

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"glean/llm"
	"glean/log"
)

const defaultAnalysisPrompt = "You are a live meeting assistant. Analyze the provided transcript snippet and extract:\n" +
	"- Action Items (owner if clear)\n- Questions\n- Decisions\n- Key Topics (keywords)\n" +
	"Keep it concise and bulleted. If nothing, say 'None.'"

const analysisInterval = 5 * time.Second

// textGenerator is the slice of the LLM client the analysis loop and
// workers depend on. A nil or unavailable generator selects the local
// fallback path.
type textGenerator interface {
	Available() bool
	Generate(ctx context.Context, req llm.Request) (string, error)
}

type parseSection int

const (
	sectionNone parseSection = iota
	sectionActions
	sectionQuestions
	sectionDecisions
	sectionTopics
)

var sectionHeaders = map[string]parseSection{
	"action items": sectionActions,
	"actions":      sectionActions,
	"questions":    sectionQuestions,
	"question":     sectionQuestions,
	"decisions":    sectionDecisions,
	"decision":     sectionDecisions,
	"key topics":   sectionTopics,
	"topics":       sectionTopics,
	"keywords":     sectionTopics,
}

// parseFindings walks model output line by line with an explicit
// section state. Lines before the first recognized header are dropped,
// and an unrecognized header line (ends with a colon but matches no
// known section) drops back to the no-section state.
func parseFindings(s string) Findings {
	var f Findings
	current := sectionNone
	for _, raw := range strings.Split(s, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		low := strings.TrimRight(strings.ToLower(line), ":")
		if sec, ok := sectionHeaders[low]; ok {
			current = sec
			continue
		}
		if strings.HasSuffix(line, ":") {
			current = sectionNone
			continue
		}
		text := line
		if strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") {
			text = strings.TrimSpace(line[2:])
		}
		if text == "" {
			continue
		}
		switch current {
		case sectionActions:
			f.Actions = append(f.Actions, text)
		case sectionQuestions:
			f.Questions = append(f.Questions, text)
		case sectionDecisions:
			f.Decisions = append(f.Decisions, text)
		case sectionTopics:
			if strings.Contains(text, ",") {
				for _, part := range strings.Split(text, ",") {
					if p := strings.TrimSpace(part); p != "" {
						f.Topics = append(f.Topics, p)
					}
				}
			} else {
				f.Topics = append(f.Topics, text)
			}
		}
	}
	return f
}

var (
	questionPrefixes = []string{
		"who ", "what ", "why ", "how ", "when ", "where ",
		"do ", "does ", "did ", "is ", "are ", "have ", "has ",
	}
	decisionMarkers = []string{
		"we decided", "agreed", "decision", "we will", "we'll", "we chose", "proceed",
	}
	actionMarkers = []string{
		"we need to", "we should", "todo", "follow up", "please ", "can you",
		"assign", "schedule", "send ", "prepare ",
	}
	wordRe = regexp.MustCompile(`[A-Za-z]+`)
)

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// fallbackExtract derives findings locally when no model output is
// available. Actions, questions and decisions are capped at 5; topics
// are the 10 most frequent words of length >= 4, most frequent first,
// ties alphabetical.
func fallbackExtract(snippet string) Findings {
	var f Findings
	freq := make(map[string]int)
	for _, raw := range strings.Split(snippet, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		low := strings.ToLower(line)
		if strings.Contains(line, "?") || hasAnyPrefix(low, questionPrefixes) {
			f.Questions = append(f.Questions, line)
		}
		if containsAny(low, decisionMarkers) {
			f.Decisions = append(f.Decisions, line)
		}
		if containsAny(low, actionMarkers) {
			f.Actions = append(f.Actions, line)
		}
		for _, tok := range wordRe.FindAllString(line, -1) {
			if len(tok) < 4 {
				continue
			}
			tok = strings.ToLower(tok)
			if stopwords[tok] {
				continue
			}
			freq[tok]++
		}
	}

	words := make([]string, 0, len(freq))
	for w := range freq {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if freq[words[i]] != freq[words[j]] {
			return freq[words[i]] > freq[words[j]]
		}
		return words[i] < words[j]
	})
	if len(words) > 10 {
		words = words[:10]
	}
	f.Topics = words

	cap5 := func(xs []string) []string {
		if len(xs) > 5 {
			return xs[:5]
		}
		return xs
	}
	f.Actions = cap5(f.Actions)
	f.Questions = cap5(f.Questions)
	f.Decisions = cap5(f.Decisions)
	return f
}

// tailChars keeps the trailing n bytes of s.
func tailChars(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func capLabels(labels []string, n int) []string {
	if len(labels) > n {
		return labels[:n]
	}
	return labels
}

type analyzer struct {
	store  *Store
	gen    textGenerator
	prompt string // custom extraction prompt, empty for the default
}

// run executes one extraction cycle immediately and then every
// analysisInterval until stop closes. A failed cycle never ends the
// loop.
func (a *analyzer) run(stop <-chan struct{}) {
	for {
		a.cycle()
		select {
		case <-stop:
			return
		case <-time.After(analysisInterval):
		}
	}
}

func (a *analyzer) cycle() {
	start := time.Now()
	lines, partial := a.store.TranscriptSnapshot()
	if len(lines) > 60 {
		lines = lines[len(lines)-60:]
	}
	snippet := strings.Join(lines, "\n")
	if partial != "" {
		snippet += "\n" + partial
	}
	snippet = strings.TrimSpace(snippet)
	if snippet == "" {
		return
	}

	ctxText, ctxLabels := a.store.ContextSnapshot()

	var analysis string
	if a.gen != nil && a.gen.Available() {
		if a.prompt != "" {
			analysis = a.generate(a.prompt, "tailor answers", 400, 20*time.Second, snippet, ctxText, ctxLabels)
		}
		if analysis == "" {
			analysis = a.generate(defaultAnalysisPrompt, "improve precision", 300, 12*time.Second, snippet, ctxText, ctxLabels)
		}
	}

	source := "fallback"
	var f Findings
	if analysis != "" {
		source = "model"
		f = parseFindings(analysis)
		a.store.MergeFindings(f.Actions, f.Questions, f.Decisions, f.Topics)
		a.store.SetAnalysis(analysis)
	} else {
		f = fallbackExtract(snippet)
		a.store.MergeFindings(f.Actions, f.Questions, f.Decisions, f.Topics)
	}
	log.AnalysisCycle(source, len(f.Actions), len(f.Questions), len(f.Decisions), len(f.Topics),
		float64(time.Since(start).Milliseconds()))
}

func (a *analyzer) generate(system, contextHint string, maxTokens int64, timeout time.Duration, snippet, ctxText string, ctxLabels []string) string {
	if ctxText != "" {
		system += "\nUse the provided CONTEXT to " + contextHint + "."
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	out, err := a.gen.Generate(ctx, llm.Request{
		System:        system,
		ContextLabels: capLabels(ctxLabels, 8),
		Context:       tailChars(ctxText, 8000),
		User:          tailChars(snippet, 6000),
		MaxTokens:     maxTokens,
		Temperature:   0.2,
	})
	if err != nil {
		log.Errorf("analysis generate: %v", err)
		return ""
	}
	return out
}
