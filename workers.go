package main

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"glean/contextload"
	"glean/llm"
	"glean/log"
)

const defaultChatPrompt = "You are a real-time meeting copilot.\n" +
	"Answer the facilitator's questions using the latest transcript excerpt.\n" +
	"If unsure, say you don't know. Cite speakers when possible."

const defaultInterviewPrompt = "You are an interview assistant."

const (
	chatTimeout      = 25 * time.Second
	interviewTimeout = 30 * time.Second
)

// workers owns the slow user-triggered jobs: chat replies, interview
// answers and context ingestion. Submit methods run on the UI loop and
// never block; each spawned goroutine performs the external call, then
// writes one terminal store update and pushes a status.
type workers struct {
	store           *Store
	gen             textGenerator
	chatPrompt      string
	interviewPrompt string
	status          func(text string, d time.Duration, sticky bool)

	answering atomic.Bool
}

func (w *workers) notify(text string, d time.Duration, sticky bool) {
	if w.status != nil {
		w.status(text, d, sticky)
	}
}

func (w *workers) llmReady() bool {
	return w.gen != nil && w.gen.Available()
}

// SubmitChat registers the question and spawns the chat job. Without a
// usable LLM the canned disabled answer closes the entry immediately,
// on the caller's goroutine.
func (w *workers) SubmitChat(question string) bool {
	id := w.store.AddChatQuestion(question)
	if id < 0 {
		return false
	}
	if !w.llmReady() {
		w.store.SetChatAnswer(id, "Chatbot disabled. Set OPENAI_API_KEY and --llm-model.")
		w.notify("Chatbot disabled; set OPENAI_API_KEY and --llm-model.", 4*time.Second, true)
		return true
	}
	go w.chat(id, question)
	return true
}

func (w *workers) chat(id int, question string) {
	start := time.Now()

	system := strings.TrimSpace(w.chatPrompt)
	if system == "" {
		system = defaultChatPrompt
	}
	system += "\nUse the latest transcript excerpts and context sources to keep answers grounded."

	snippet := tailChars(strings.Join(w.store.TranscriptTail(80), "\n"), 6000)
	ctxText, ctxLabels := w.store.ContextSnapshot()

	// Exchanges registered before this question, newest 6, answered only.
	var prior []ChatEntry
	for _, e := range w.store.ChatSnapshot() {
		if e.ID >= id {
			break
		}
		prior = append(prior, e)
	}
	if len(prior) > 6 {
		prior = prior[len(prior)-6:]
	}
	var history []llm.Turn
	for _, e := range prior {
		if !e.Answered {
			continue
		}
		history = append(history, llm.Turn{Question: e.Question, Answer: e.Answer})
	}

	ctx, cancel := context.WithTimeout(context.Background(), chatTimeout)
	defer cancel()
	ans, err := w.gen.Generate(ctx, llm.Request{
		System:        system,
		ContextLabels: capLabels(ctxLabels, 8),
		Context:       tailChars(ctxText, 12000),
		Transcript:    snippet,
		History:       history,
		User:          question,
		MaxTokens:     500,
		Temperature:   0.2,
	})
	log.Worker("chat", float64(time.Since(start).Milliseconds()), err)

	if err != nil || strings.TrimSpace(ans) == "" {
		w.store.SetChatAnswer(id, "(No answer returned)")
		w.notify("No chat answer returned (press Esc).", 4*time.Second, true)
		return
	}
	w.store.SetChatAnswer(id, ans)
	w.notify("Chat answer ready (press Esc).", 4*time.Second, true)
}

// SubmitInterview spawns the answer job for a captured question.
func (w *workers) SubmitInterview(question string) bool {
	if strings.TrimSpace(question) == "" {
		return false
	}
	w.answering.Store(true)
	go w.interview(question)
	return true
}

// Answering reports whether an interview answer is still being
// generated.
func (w *workers) Answering() bool { return w.answering.Load() }

func (w *workers) interview(question string) {
	defer w.answering.Store(false)
	start := time.Now()

	system := strings.TrimSpace(w.interviewPrompt)
	if system == "" {
		system = defaultInterviewPrompt
	}
	ctxText, ctxLabels := w.store.ContextSnapshot()
	if ctxText != "" {
		system += "\nUse the provided CONTEXT to tailor answers."
	}
	snippet := tailChars(strings.Join(w.store.TranscriptTail(80), "\n"), 6000)

	var ans string
	var err error
	if w.llmReady() {
		ctx, cancel := context.WithTimeout(context.Background(), interviewTimeout)
		defer cancel()
		ans, err = w.gen.Generate(ctx, llm.Request{
			System:        system,
			ContextLabels: capLabels(ctxLabels, 8),
			Context:       tailChars(ctxText, 10000),
			Transcript:    snippet,
			User:          question,
			MaxTokens:     400,
			Temperature:   0.2,
		})
	}
	log.Worker("interview", float64(time.Since(start).Milliseconds()), err)

	if err != nil || strings.TrimSpace(ans) == "" {
		w.store.AddQA(question, "(No answer returned)")
		w.store.SetAnalysis("(No answer returned)")
		w.notify("Interview answer missing (press Esc).", 4*time.Second, true)
		return
	}
	w.store.AddQA(question, ans)
	w.store.SetAnalysis(ans)
	w.notify("Interview answer ready (press Esc).", 4*time.Second, true)
}

// SubmitContext canonicalizes and reserves the source, then spawns the
// ingest job. The reservation survives failed loads: one source is
// never ingested twice in a session.
func (w *workers) SubmitContext(raw string) {
	id := contextload.CanonicalID(raw)
	if id == "" {
		w.notify("Invalid context path or URL.", 4*time.Second, true)
		return
	}
	if !w.store.MarkContextEntry(id) {
		w.notify("Context already loaded.", 4*time.Second, false)
		return
	}
	w.notify("Loading context…", 2*time.Second, false)
	go w.loadContext(strings.TrimSpace(raw), id)
}

func (w *workers) loadContext(source, id string) {
	start := time.Now()
	text, labels := contextload.Collect([]string{source})
	log.Worker("context", float64(time.Since(start).Milliseconds()), nil)

	if strings.TrimSpace(text) == "" {
		w.notify("No text extracted; check the source.", 5*time.Second, true)
		return
	}
	// The id is already reserved, so the append carries no ids of its own.
	w.store.AppendContext(text, labels, nil)
	label := id
	if len(labels) > 0 {
		label = labels[0]
	}
	w.notify("Context added: "+label, 4*time.Second, true)
}
