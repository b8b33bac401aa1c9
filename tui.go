package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"glean/clipboard"
	"glean/log"
)

type tickMsg time.Time

const silenceStatusText = "No speech detected for a while..."

var (
	tuiProgram *tea.Program
	tuiMu      sync.Mutex
)

// tuiSend delivers a message to the running program, if any. Safe to
// call from any goroutine, including before the program starts.
func tuiSend(msg tea.Msg) {
	tuiMu.Lock()
	p := tuiProgram
	tuiMu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

func pushStatus(text string, d time.Duration, sticky bool) {
	tuiSend(StatusMsg{Text: text, Duration: d, Sticky: sticky})
}

var (
	titleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("3")).Bold(true)
	footerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("3"))
	sepStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	leftStyle     = lipgloss.NewStyle()
	partialStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Faint(true)
	questionStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	rightStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	rightBold     = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	rightDim      = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Faint(true)
	statusStyle   = lipgloss.NewStyle().Reverse(true)
)

type paneID int

const (
	paneLeft paneID = iota
	paneRight
)

type promptKind int

const (
	promptNone promptKind = iota
	promptNote
	promptSearch
	promptFilter
	promptChat
	promptContext
)

type leftLine struct {
	text     string
	question bool
}

type rline struct {
	text string
	st   lipgloss.Style
}

// dashModel is the dual-pane session dashboard. All session data is
// pulled from the store and pipeline on each frame; the only pushed
// messages are statuses and silence warnings.
type dashModel struct {
	store *Store
	pipe  *Pipeline
	jobs  *workers
	stop  func()

	interviewMode bool
	srcLabel      string
	llmLabel      string
	chatLabel     string

	width, height int

	focus       paneID
	leftOffset  int
	leftFollow  bool
	rightOffset int
	rightFollow bool

	search    string
	searchIdx int
	filter    string

	status       string
	statusSticky bool
	statusExpire time.Time

	prompt promptKind
	input  textinput.Model

	yank func(string) error
}

func newDashModel(store *Store, pipe *Pipeline, jobs *workers, stopFn func()) dashModel {
	ti := textinput.New()
	ti.CharLimit = 512
	return dashModel{
		store:       store,
		pipe:        pipe,
		jobs:        jobs,
		stop:        stopFn,
		leftFollow:  true,
		rightFollow: true,
		searchIdx:   -1,
		input:       ti,
		yank:        clipboard.Copy,
	}
}

func newDashProgram(m dashModel) *tea.Program {
	p := tea.NewProgram(m, tea.WithAltScreen())
	tuiMu.Lock()
	tuiProgram = p
	tuiMu.Unlock()
	return p
}

func dashTick() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m dashModel) Init() tea.Cmd {
	return tea.Batch(dashTick(), textinput.Blink)
}

func (m dashModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		if m.status != "" && !m.statusSticky && time.Now().After(m.statusExpire) {
			m.status = ""
		}
		return m, dashTick()

	case StatusMsg:
		m.setStatus(msg.Text, msg.Duration, msg.Sticky)

	case SilenceMsg:
		if msg.Cleared {
			if m.status == silenceStatusText {
				m.status = ""
			}
		} else {
			m.setStatus(silenceStatusText, 8*time.Second, false)
		}

	case tea.KeyMsg:
		if m.prompt != promptNone {
			return m.updatePrompt(msg)
		}
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m *dashModel) setStatus(text string, d time.Duration, sticky bool) {
	if d < 500*time.Millisecond {
		d = 500 * time.Millisecond
	}
	m.status = text
	m.statusSticky = sticky
	m.statusExpire = time.Now().Add(d)
}

func (m dashModel) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		kind := m.prompt
		val := strings.TrimSpace(m.input.Value())
		m.prompt = promptNone
		m.input.Blur()
		m.submitPrompt(kind, val)
		return m, nil
	case "esc":
		m.prompt = promptNone
		m.input.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *dashModel) submitPrompt(kind promptKind, val string) {
	switch kind {
	case promptNote:
		if val != "" {
			m.pipe.AddNote(val)
		}
	case promptSearch:
		if val == "" {
			m.search = ""
			m.searchIdx = -1
			return
		}
		m.search = val
		m.searchIdx = -1
		m.jumpMatch(1)
	case promptFilter:
		m.filter = val
		m.leftFollow = true
	case promptChat:
		if val != "" {
			m.jobs.SubmitChat(val)
		}
	case promptContext:
		if val == "" {
			m.setStatus("Context entry cancelled.", 3*time.Second, false)
			return
		}
		m.jobs.SubmitContext(val)
	}
}

func (m dashModel) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c":
		m.stop()
		return m, tea.Quit

	case "m", "M":
		m.pipe.AddMarker()

	case "n", "N":
		if m.search != "" {
			if msg.String() == "n" {
				m.jumpMatch(1)
			} else {
				m.jumpMatch(-1)
			}
			break
		}
		return m.withPrompt(promptNote, "note> ")

	case "/":
		return m.withPrompt(promptSearch, "search> ")

	case "\\":
		return m.withPrompt(promptFilter, "filter> ")

	case "c":
		return m.withPrompt(promptChat, "chat> ")

	case "C":
		return m.withPrompt(promptContext, "context path/url> ")

	case "i", "I":
		if !m.interviewMode {
			break
		}
		if !m.store.SegmentActive() {
			m.store.StartSegment()
		} else if q := m.store.StopSegment(); q != "" {
			m.jobs.SubmitInterview(q)
		}

	case "y":
		m.yankFocused()

	case "j", "down":
		m.scroll(1)

	case "k", "up":
		m.scroll(-1)

	case "tab":
		if m.focus == paneLeft {
			m.focus = paneRight
			m.rightFollow = true
			m.setStatus("Analysis pane focused (press Esc to return).", 3*time.Second, false)
		} else {
			m.focus = paneLeft
			m.leftFollow = true
			m.setStatus("Transcript pane focused.", 3*time.Second, false)
		}

	case "esc":
		if m.statusSticky {
			m.status = ""
			m.statusSticky = false
		} else if m.focus == paneRight {
			m.focus = paneLeft
			m.leftFollow = true
			m.status = ""
		} else {
			m.status = ""
		}
	}
	return m, nil
}

func (m dashModel) withPrompt(kind promptKind, label string) (tea.Model, tea.Cmd) {
	m.prompt = kind
	m.input.Prompt = label
	m.input.SetValue("")
	cmd := m.input.Focus()
	return m, cmd
}

func (m *dashModel) scroll(delta int) {
	if m.width == 0 {
		return
	}
	if m.focus == paneLeft {
		_, bullets, rows := m.leftLayout()
		m.leftOffset, m.leftFollow = applyScroll(m.leftOffset, m.leftFollow, delta, len(bullets)-rows)
	} else {
		m.rightOffset, m.rightFollow = applyScroll(m.rightOffset, m.rightFollow, delta, len(m.rightLines())-m.bodyHeight())
	}
}

func applyScroll(offset int, follow bool, delta, maxOffset int) (int, bool) {
	if maxOffset < 0 {
		maxOffset = 0
	}
	if follow {
		offset = maxOffset
	}
	offset += delta
	if offset < 0 {
		offset = 0
	}
	if offset > maxOffset {
		offset = maxOffset
	}
	return offset, offset >= maxOffset
}

// jumpMatch moves the current search hit by dir, wrapping circularly,
// and scrolls the left pane to show it.
func (m *dashModel) jumpMatch(dir int) {
	if m.search == "" {
		return
	}
	_, bullets, rows := m.leftLayout()
	total := len(bullets)
	if total == 0 {
		return
	}
	start := m.searchIdx + dir
	if m.searchIdx == -1 {
		if dir > 0 {
			start = 0
		} else {
			start = total - 1
		}
	}
	ql := strings.ToLower(m.search)
	for i := 0; i < total; i++ {
		j := ((start+dir*i)%total + total) % total
		if !strings.Contains(strings.ToLower(bullets[j].text), ql) {
			continue
		}
		m.searchIdx = j
		m.leftFollow = false
		maxOffset := total - rows
		if maxOffset < 0 {
			maxOffset = 0
		}
		off := j
		if off > maxOffset {
			off = maxOffset
		}
		m.leftOffset = off
		return
	}
	m.searchIdx = -1
}

func (m *dashModel) yankFocused() {
	text := m.store.Analysis()
	what := "analysis"
	if m.focus == paneRight {
		chat := m.store.ChatSnapshot()
		for i := len(chat) - 1; i >= 0; i-- {
			if chat[i].Answered && chat[i].Answer != "" {
				text = chat[i].Answer
				what = "chat answer"
				break
			}
		}
	}
	if strings.TrimSpace(text) == "" {
		m.setStatus("Nothing to copy.", 3*time.Second, false)
		return
	}
	if err := m.yank(text); err != nil {
		log.Errorf("clipboard: %v", err)
		m.setStatus("Clipboard unavailable.", 3*time.Second, false)
		return
	}
	m.setStatus("Copied "+what+" to clipboard.", 3*time.Second, false)
}

func (m dashModel) View() (out string) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("render: %v", r)
			out = ""
		}
	}()
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	bodyH := m.bodyHeight()
	leftW, rightW := m.paneWidths()

	title := titleStyle.Width(m.width).MaxWidth(m.width).Render(m.titleLine())

	partial, bullets, rows := m.leftLayout()
	var leftRows []string
	for _, pl := range partial {
		leftRows = append(leftRows, partialStyle.Render(pl))
	}
	if len(partial) > 0 && len(leftRows) < bodyH {
		leftRows = append(leftRows, "")
	}
	maxOffset := len(bullets) - rows
	if maxOffset < 0 {
		maxOffset = 0
	}
	off := m.leftOffset
	if m.leftFollow || off > maxOffset {
		off = maxOffset
	}
	end := off + rows
	if end > len(bullets) {
		end = len(bullets)
	}
	ql := strings.ToLower(m.search)
	for _, bl := range bullets[off:end] {
		st := leftStyle
		if bl.question {
			st = questionStyle
		}
		if ql != "" && bl.text != "" && strings.Contains(strings.ToLower(bl.text), ql) {
			st = st.Reverse(true)
		}
		leftRows = append(leftRows, st.Render(bl.text))
	}

	rlines := m.rightLines()
	rightMax := len(rlines) - bodyH
	if rightMax < 0 {
		rightMax = 0
	}
	roff := m.rightOffset
	if m.rightFollow || roff > rightMax {
		roff = rightMax
	}
	rend := roff + bodyH
	if rend > len(rlines) {
		rend = len(rlines)
	}
	var rightRows []string
	for _, rl := range rlines[roff:rend] {
		rightRows = append(rightRows, rl.st.Render(rl.text))
	}

	leftPane := lipgloss.NewStyle().Width(leftW).Height(bodyH).MaxWidth(leftW).Render(strings.Join(leftRows, "\n"))
	rightPane := lipgloss.NewStyle().Width(rightW).Height(bodyH).MaxWidth(rightW).Render(strings.Join(rightRows, "\n"))
	divider := sepStyle.Render(strings.TrimRight(strings.Repeat("│\n", bodyH), "\n"))
	body := lipgloss.JoinHorizontal(lipgloss.Top, leftPane, divider, rightPane)

	var footer string
	if m.prompt != promptNone {
		footer = footerStyle.Width(m.width).MaxWidth(m.width).Render(m.input.View())
	} else {
		footer = footerStyle.Width(m.width).MaxWidth(m.width).Render(m.footerLine())
	}

	return title + "\n" + body + "\n" + footer
}

func (m dashModel) bodyHeight() int {
	h := m.height - 2
	if h < 1 {
		h = 1
	}
	return h
}

// paneWidths returns the content width of each pane. The left pane
// takes 58% of the terminal, both panes keep a 10-column minimum, and
// one column between them is the divider.
func (m dashModel) paneWidths() (int, int) {
	w := m.width
	const minPane = 10
	leftW := int(float64(w) * 0.58)
	if w >= minPane*2 {
		if leftW < minPane {
			leftW = minPane
		}
		if leftW > w-minPane {
			leftW = w - minPane
		}
	} else {
		leftW = w - 1
	}
	left := leftW - 1
	if left < 1 {
		left = 1
	}
	right := w - leftW
	if right < 1 {
		right = 1
	}
	return left, right
}

func (m dashModel) focusLabel() string {
	if m.focus == paneLeft {
		return "Transcript"
	}
	return "Analysis"
}

func (m dashModel) titleLine() string {
	rec := "-"
	if p := m.pipe.AudioPath(); p != "" {
		rec = filepath.Base(p)
	}
	llm := m.llmLabel
	if llm == "" {
		llm = "-"
	}
	return fmt.Sprintf("Src: %s  Rec: %s  ASR: %s  LLM: %s  Focus:%s",
		m.srcLabel, rec, m.pipe.Engine(), llm, m.focusLabel())
}

func (m dashModel) footerLine() string {
	e := int(m.pipe.Elapsed())
	elapsed := fmt.Sprintf("%02d:%02d:%02d", e/3600, (e/60)%60, e%60)
	return fmt.Sprintf("Focus:%s  q Quit  m Mark  n Note  c Chat  C Context  Tab focus  Esc back  / search (n/N next/prev)  \\ filter  j/k scroll   t=%s",
		m.focusLabel(), elapsed)
}

// leftLayout builds the left pane content: wrapped partial lines at the
// top, then the finalized transcript as bulleted blocks (filtered when a
// filter is set), plus the row count left for the bullet window.
func (m dashModel) leftLayout() ([]string, []leftLine, int) {
	leftW, _ := m.paneWidths()
	wrapW := leftW - 1
	if wrapW < 1 {
		wrapW = 1
	}
	bodyH := m.bodyHeight()

	lines, part := m.store.TranscriptSnapshot()

	var partial []string
	if part != "" {
		partial = wrapBlock(part, wrapW, "… ")
		if len(partial) > bodyH {
			partial = partial[:bodyH]
		}
	}
	rows := bodyH - len(partial)
	if len(partial) > 0 && rows > 0 {
		rows--
	}
	if rows < 0 {
		rows = 0
	}

	var bullets []leftLine
	fl := strings.ToLower(m.filter)
	for _, raw := range lines {
		if fl != "" && !strings.Contains(strings.ToLower(raw), fl) {
			continue
		}
		q := looksLikeQuestion(raw)
		for _, seg := range wrapBlock(raw, wrapW, "• ") {
			bullets = append(bullets, leftLine{text: seg, question: q})
		}
		bullets = append(bullets, leftLine{})
	}
	return partial, bullets, rows
}

func (m dashModel) rightLines() []rline {
	_, rightW := m.paneWidths()
	wrapW := rightW - 1
	if wrapW < 1 {
		wrapW = 1
	}

	var out []rline
	add := func(text string, st lipgloss.Style) {
		for _, seg := range wrapText(text, wrapW) {
			out = append(out, rline{text: seg, st: st})
		}
	}
	blank := func() {
		out = append(out, rline{st: rightStyle})
	}

	ctxText, ctxLabels := m.store.ContextSnapshot()
	chat := m.store.ChatSnapshot()

	var header []string
	if !m.pipe.Transcribing() {
		header = append(header, "ASR disabled (recording only)")
	}
	if m.interviewMode {
		st := "idle"
		if m.store.SegmentActive() {
			st = "capturing"
		} else if m.jobs.Answering() {
			st = "answering"
		}
		header = append(header, "Interview: "+st)
	}
	if len(ctxLabels) > 0 {
		header = append(header, fmt.Sprintf("CTX: %d", len(ctxLabels)))
	} else if ctxText != "" {
		header = append(header, "CTX:on")
	}
	if m.jobs.llmReady() {
		st := "idle"
		if m.store.HasPendingChat() {
			st = "pending"
		} else if len(chat) > 0 {
			st = "ready"
		}
		header = append(header, "Chat: "+st)
	}
	if len(header) > 0 {
		add(strings.Join(header, " · "), rightBold)
		blank()
	}

	if m.status != "" {
		add(m.status, statusStyle)
		blank()
	}

	analysis := m.store.Analysis()
	if analysis == "" {
		analysis = "Waiting for analysis..."
	}
	for _, line := range strings.Split(analysis, "\n") {
		add(line, rightStyle)
	}

	if len(chat) > 0 {
		blank()
		header := "Chatbot"
		if m.chatLabel != "" {
			header = "Chatbot [" + m.chatLabel + "]"
		}
		add(header, rightBold)
		tail := chat
		if len(tail) > 12 {
			tail = tail[len(tail)-12:]
		}
		for _, e := range tail {
			add("You> "+e.Question, rightStyle)
			if !e.Answered {
				add("Bot> …", rightDim)
			} else if e.Answer == "" {
				add("Bot> (No answer)", rightStyle)
			} else {
				add("Bot> "+e.Answer, rightStyle)
			}
			blank()
		}
	}
	return out
}

// wrapBlock wraps text into a prefixed block: the first line carries the
// prefix, continuations are indented to match it.
func wrapBlock(text string, width int, prefix string) []string {
	bodyW := width - 2
	if bodyW < 1 {
		bodyW = 1
	}
	segs := wrapText(text, bodyW)
	out := make([]string, len(segs))
	for i, seg := range segs {
		if i == 0 {
			out[i] = prefix + seg
		} else {
			out[i] = "  " + seg
		}
	}
	return out
}

func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	var lines []string
	for len(text) > width {
		// Find last space within width
		splitAt := width
		for i := width; i > 0; i-- {
			if text[i] == ' ' {
				splitAt = i
				break
			}
		}
		lines = append(lines, text[:splitAt])
		text = strings.TrimLeft(text[splitAt:], " ")
	}
	if len(text) > 0 {
		lines = append(lines, text)
	}
	return lines
}

var questionPhrases = []string{
	"what are", "what is", "what do", "what did", "what can", "what should", "what would",
	"how do", "how did", "how can", "how should", "how would", "how are", "how is",
	"why is", "why are", "why do", "why did",
	"when is", "when are", "when will",
	"where is", "where are",
	"who is", "who are", "who will",
	"can we", "can you", "can i",
	"could we", "could you",
	"should we", "should you",
	"would we", "would you",
	"did we", "did you", "do we", "do you",
	"have we", "have you", "has anyone",
	"is that", "is there", "are we", "are there",
	"will we", "will you", "will it",
}

var questionWords = []string{
	"who", "what", "when", "where", "why", "how",
	"do", "does", "did", "is", "are", "can", "could",
	"should", "would", "have", "has", "will",
}

func looksLikeQuestion(raw string) bool {
	text := strings.TrimSpace(raw)
	if text == "" {
		return false
	}
	if strings.Contains(text, "?") {
		return true
	}
	low := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	for _, w := range questionWords {
		if strings.HasPrefix(low, w+" ") {
			return true
		}
	}
	padded := " " + low + " "
	for _, phrase := range questionPhrases {
		if strings.Contains(padded, " "+phrase+" ") {
			return true
		}
	}
	return false
}
