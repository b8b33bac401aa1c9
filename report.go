package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"glean/llm"
	"glean/log"
)

const (
	summaryTimeout    = 35 * time.Second
	summaryMaxTokens  = 800
	summaryContextCap = 12000
	summaryInputCap   = 20000
)

const contextFallbackBullet = "- No information available; meeting dialogue lacked references to provided external context sources or citations currently recorded."

// executivePrompt is the extraction template for the end-of-session
// summary. The live analysis loop uses a lighter prompt; this one runs
// once over the whole transcript with a larger token budget.
const executivePrompt = "# IDENTITY and PURPOSE\n\n" +
	"You are an AI assistant specialized in analyzing meeting transcripts and extracting key information. " +
	"Your goal is to provide comprehensive yet concise summaries that capture the essential elements of meetings in a structured format.\n\n" +
	"# STEPS\n\n" +
	"- Extract a brief overview of the meeting in 25 words or less, including the purpose and key participants into a section called OVERVIEW.\n\n" +
	"- Extract 10-20 of the most important discussion points from the meeting into a section called KEY POINTS. Focus on core topics, debates, and significant ideas discussed.\n\n" +
	"- Extract all action items and assignments mentioned in the meeting into a section called TASKS. Include responsible parties and deadlines where specified.\n\n" +
	"- Extract 5-10 of the most important decisions made during the meeting into a section called DECISIONS.\n\n" +
	"- Extract any notable challenges, risks, or concerns raised during the meeting into a section called CHALLENGES.\n\n" +
	"- Extract all deadlines, important dates, and milestones mentioned into a section called TIMELINE.\n\n" +
	"- Extract all references to documents, tools, projects, or resources mentioned into a section called REFERENCES.\n\n" +
	"- Compare meeting statements against any provided context sources and capture overlaps, confirmations, or conflicts in a section called CONTEXT ALIGNMENT, citing the relevant source label.\n\n" +
	"- If no alignment exists, still include CONTEXT ALIGNMENT with the bullet `" + contextFallbackBullet + "`\n\n" +
	"- Extract 5-10 of the most important follow-up items or next steps into a section called NEXT STEPS.\n\n" +
	"# OUTPUT INSTRUCTIONS\n\n" +
	"- Only output Markdown.\n\n" +
	"- Write the KEY POINTS bullets as exactly 16 words.\n\n" +
	"- Write the TASKS bullets as exactly 16 words.\n\n" +
	"- Write the DECISIONS bullets as exactly 16 words.\n\n" +
	"- Write the NEXT STEPS bullets as exactly 16 words.\n\n" +
	"- Write the CONTEXT ALIGNMENT bullets as exactly 16 words.\n\n" +
	"- If no alignment exists, output the exact bullet `" + contextFallbackBullet + "`\n\n" +
	"- Use bulleted lists for all sections, not numbered lists.\n\n" +
	"- Do not repeat information across sections.\n\n" +
	"- Do not start items with the same opening words.\n\n" +
	"- For any bullet that relies on context rather than transcript alone, append [context: LABEL] using the label shown in the context headers.\n\n" +
	"- If information for a section is not available in the transcript, write \"No information available\".\n\n" +
	"- Do not include warnings or notes; only output the requested sections.\n\n" +
	"- Format each section header in bold using markdown.\n\n" +
	"# INPUT\n\n" +
	"INPUT:"

type reportMeta struct {
	Dir         string
	Source      string
	Model       string
	PromptLabel string
	Started     time.Time
}

// writeReport renders notes.md into the session directory and returns
// its path. The executive summary is the only part that can block; it
// is bounded by summaryTimeout and degrades to a placeholder.
func writeReport(meta reportMeta, store *Store, pipe *Pipeline, gen textGenerator) (string, error) {
	lines := pipe.Lines()
	summary := executiveSummary(gen, store, lines)
	now := time.Now()

	var b strings.Builder
	fmt.Fprintf(&b, "# Session Notes - %s\n\n", now.Format("2006-01-02 15:04"))

	b.WriteString("## Metadata\n")
	fmt.Fprintf(&b, "- Source: `%s`\n", meta.Source)
	fmt.Fprintf(&b, "- Engine: `%s`\n", pipe.Engine())
	if meta.Model != "" {
		fmt.Fprintf(&b, "- LLM: `%s`\n", meta.Model)
	}
	if meta.PromptLabel != "" {
		fmt.Fprintf(&b, "- Prompt: `%s`\n", meta.PromptLabel)
	}
	if _, ctxLabels := store.ContextSnapshot(); len(ctxLabels) > 0 {
		b.WriteString("- Context Files:\n")
		for _, l := range ctxLabels {
			fmt.Fprintf(&b, "  - %s\n", l)
		}
	}
	if p := pipe.AudioPath(); p != "" {
		fmt.Fprintf(&b, "- Audio: `%s`\n", p)
	}
	fmt.Fprintf(&b, "- Started: `%s`\n", meta.Started.Format("2006-01-02T15:04:05"))
	e := int(pipe.Elapsed())
	fmt.Fprintf(&b, "- Duration: `%02d:%02d:%02d`\n", e/3600, (e/60)%60, e%60)
	fmt.Fprintf(&b, "- Generated: `%s`\n\n", now.Format("2006-01-02T15:04:05"))

	b.WriteString("## Executive Summary\n")
	if summary == "" {
		b.WriteString("(LLM unavailable; no summary generated.)\n\n")
	} else {
		b.WriteString(strings.TrimSpace(summary) + "\n\n")
	}

	if a := store.Analysis(); a != "" {
		b.WriteString("## Live Analysis\n")
		b.WriteString(strings.TrimRight(a, "\n") + "\n\n")
	}

	if qas := store.QASnapshot(); len(qas) > 0 {
		b.WriteString("## Interview Q&A\n")
		for i, qa := range qas {
			fmt.Fprintf(&b, "\n**Q%d.** %s\n\n%s\n", i+1, qa.Question, qa.Answer)
		}
		b.WriteString("\n")
	}

	var pairs []ChatEntry
	for _, ce := range store.ChatSnapshot() {
		if ce.Answered {
			pairs = append(pairs, ce)
		}
	}
	if len(pairs) > 0 {
		b.WriteString("## Chatbot Exchanges\n")
		for i, ce := range pairs {
			fmt.Fprintf(&b, "\n**You %d.** %s\n\n**Assistant.** %s\n", i+1, ce.Question, ce.Answer)
		}
		b.WriteString("\n")
	}

	f := store.FindingsSnapshot()
	writeFindingList(&b, "## Action Items", f.Actions)
	writeFindingList(&b, "## Questions", f.Questions)
	writeFindingList(&b, "## Decisions", f.Decisions)
	writeFindingList(&b, "## Key Topics", f.Topics)

	if ms := pipe.Markers(); len(ms) > 0 {
		b.WriteString("## Markers\n")
		for _, mk := range ms {
			fmt.Fprintf(&b, "- %.1fs: %s\n", mk.At, mk.Label)
		}
		b.WriteString("\n")
	}
	if ns := pipe.Notes(); len(ns) > 0 {
		b.WriteString("## Notes\n")
		for _, n := range ns {
			fmt.Fprintf(&b, "- %.1fs: %s\n", n.At, n.Text)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Full Transcript\n\n")
	for i, line := range lines {
		fmt.Fprintf(&b, "%d. %s\n", i+1, line)
	}

	path := filepath.Join(meta.Dir, "notes.md")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write notes: %w", err)
	}
	return path, nil
}

func writeFindingList(b *strings.Builder, header string, items []string) {
	b.WriteString(header + "\n")
	if len(items) == 0 {
		b.WriteString("- None captured.\n")
	} else {
		for _, it := range items {
			b.WriteString("- " + it + "\n")
		}
	}
	b.WriteString("\n")
}

// executiveSummary runs the whole-transcript extraction. Empty string
// means no summary: no generator, no transcript, or a failed call.
func executiveSummary(gen textGenerator, store *Store, lines []string) string {
	if gen == nil || !gen.Available() || len(lines) == 0 {
		return ""
	}
	ctxText, ctxLabels := store.ContextSnapshot()
	system := executivePrompt
	if ctxText != "" {
		system += "\nUse CONTEXT if provided to ground references, but do not invent details."
	}

	ctx, cancel := context.WithTimeout(context.Background(), summaryTimeout)
	defer cancel()
	text, err := gen.Generate(ctx, llm.Request{
		System:        system,
		ContextLabels: capLabels(ctxLabels, 12),
		Context:       tailChars(ctxText, summaryContextCap),
		User:          tailChars(strings.Join(lines, "\n"), summaryInputCap),
		MaxTokens:     summaryMaxTokens,
		Temperature:   0.2,
	})
	if err != nil {
		log.Errorf("summary: %v", err)
		return ""
	}
	if text == "" {
		return ""
	}
	return ensureAlignment(text)
}

// ensureAlignment guarantees the summary carries a CONTEXT ALIGNMENT
// section with at least one bullet, appending the canned bullet when
// the model left it out.
func ensureAlignment(text string) string {
	lines := strings.Split(text, "\n")
	headerIdx := -1
	for i, line := range lines {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), "**context alignment**") {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return strings.TrimRight(text, " \t\n") + "\n\n**CONTEXT ALIGNMENT**\n" + contextFallbackBullet + "\n"
	}
	for _, line := range lines[headerIdx+1:] {
		s := strings.TrimSpace(line)
		if strings.HasPrefix(s, "**") {
			break
		}
		if strings.HasPrefix(s, "-") {
			return text
		}
	}
	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:headerIdx+1]...)
	out = append(out, contextFallbackBullet)
	out = append(out, lines[headerIdx+1:]...)
	return strings.Join(out, "\n")
}
