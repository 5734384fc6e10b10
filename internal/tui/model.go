// Package tui runs a conversation session in a Bubble Tea terminal UI with
// the person at the keyboard as the actor.
package tui

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"convsearch/internal/domain"
	"convsearch/internal/session"
)

// RunFunc runs the session to completion.
type RunFunc func(ctx context.Context) (session.Result, error)

type doneMsg struct {
	result session.Result
	err    error
}

// pending is an actor request waiting for the next line of input.
type pending struct {
	reply   chan string
	resolve func(input string) string
}

// Model is the Bubble Tea model for a chat session.
type Model struct {
	ctx      context.Context
	cancel   context.CancelFunc
	run      RunFunc
	input    textinput.Model
	viewport viewport.Model
	lines    []string
	pending  *pending
	status   string
	query    string
	result   *session.Result
	ready    bool
}

// New creates a model that starts run when the program starts and stops it
// when the user quits.
func New(ctx context.Context, run RunFunc) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	ctx, cancel := context.WithCancel(ctx)
	return Model{ctx: ctx, cancel: cancel, run: run, input: ti, viewport: vp, status: "Starting..."}
}

// Init starts the session and the cursor blink.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, func() tea.Msg {
		res, err := m.run(m.ctx)
		return doneMsg{result: res, err: err}
	})
}

// Result returns the session outcome once the session has finished.
func (m Model) Result() (session.Result, bool) {
	if m.result == nil {
		return session.Result{}, false
	}
	return *m.result, true
}

// Update handles key, window and session events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := transcriptBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + qh + 1 // header, status, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			m.cancel()
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			if m.result != nil {
				return m, tea.Quit
			}
			text := strings.TrimSpace(m.input.Value())
			if m.pending == nil || text == "" {
				return m, nil
			}
			m.pending.reply <- m.pending.resolve(text)
			m.pending = nil
			m.input.SetValue("")
			m.add(userStyle.Render("> " + text))
			m.status = "Searching..."
			m.refresh()
			return m, nil
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	case queryRequest:
		m.pending = &pending{reply: msg.reply, resolve: func(s string) string { return s }}
		m.add(systemStyle.Render("What kind of book are you looking for?"))
		m.status = "Describe what you want to read."
		m.refresh()
		return m, nil
	case questionRequest:
		m.pending = &pending{reply: msg.reply, resolve: func(s string) string { return pickOption(s, msg.options) }}
		m.add(systemStyle.Render(msg.question))
		for i, o := range msg.options {
			m.add(fmt.Sprintf("  %d. %s", i+1, o))
		}
		m.status = "Answer with an option number or in your own words."
		m.refresh()
		return m, nil
	case choiceRequest:
		m.pending = &pending{reply: msg.reply, resolve: func(s string) string { return pickItem(s, msg.items) }}
		if len(msg.items) == 0 {
			m.add(systemStyle.Render("Nothing matched well enough yet."))
		} else {
			m.add(systemStyle.Render("Do any of these fit?"))
		}
		for i, d := range msg.items {
			m.add(fmt.Sprintf("  %d. %s", i+1, titleStyle.Render(title(d))))
			if s := highlightBestSentence(d.Text, m.query); s != "" {
				m.add("     " + s)
			}
		}
		if msg.summary != "" {
			m.add(systemStyle.Render("In short:"))
			for _, line := range strings.Split(msg.summary, "\n") {
				m.add(faintStyle.Render("  " + strings.TrimSpace(line)))
			}
		}
		m.status = "Pick a number, or type none."
		m.refresh()
		return m, nil
	case askedMsg:
		m.query = msg.query
		m.add(faintStyle.Render(fmt.Sprintf("turn %d: searching for %q", msg.turn, msg.query)))
		m.refresh()
		return m, nil
	case filteredMsg:
		m.add(faintStyle.Render(fmt.Sprintf("turn %d: %d candidates above threshold", msg.turn, msg.candidates)))
		m.refresh()
		return m, nil
	case recommendedMsg:
		if msg.selection == domain.NoneSelection || msg.selection == "" {
			m.add(faintStyle.Render("Noted. Let me ask a few more questions."))
			m.refresh()
		}
		return m, nil
	case doneMsg:
		m.result = &msg.result
		m.pending = nil
		m.status = outcome(msg.result, msg.err) + " Press Enter to exit."
		m.refresh()
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the transcript, input box and status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Conversational Search")
	transcript := transcriptBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + transcript + "\n" + input + "\n" + status
}

func (m *Model) add(line string) { m.lines = append(m.lines, line) }

func (m *Model) refresh() {
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	m.viewport.GotoBottom()
}

func outcome(res session.Result, err error) string {
	switch {
	case err != nil:
		return "Stopped: " + err.Error() + "."
	case res.Mode == session.ModeSuccess:
		return fmt.Sprintf("Found %s in %d turns.", res.Selection, res.Turns)
	default:
		return fmt.Sprintf("No match after %d turns (%s).", res.Turns, res.Reason)
	}
}

func title(d domain.Document) string {
	if d.Structured != nil && d.Structured.Title != "" {
		return d.Structured.Title
	}
	return d.ID
}

// pickOption maps an option number to its text; anything else is a free answer.
func pickOption(input string, options []string) string {
	if n, err := strconv.Atoi(input); err == nil && n >= 1 && n <= len(options) {
		return options[n-1]
	}
	return input
}

// pickItem maps an item number or id to the item id, and anything else to "none".
func pickItem(input string, items []domain.Document) string {
	if n, err := strconv.Atoi(input); err == nil && n >= 1 && n <= len(items) {
		return items[n-1].ID
	}
	for _, d := range items {
		if d.ID == input {
			return d.ID
		}
	}
	return domain.NoneSelection
}

var (
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	systemStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	userStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	titleStyle         = lipgloss.NewStyle().Bold(true)
	faintStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	unicodeWordRe      = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe         = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

// bestSentence returns the sentence of text sharing the most words with query.
func bestSentence(text, query string) string {
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		return strings.TrimSpace(text)
	}
	qTokens := toTokenSet(query)
	best, bestScore := 0, -1
	for i, s := range sentences {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			best, bestScore = i, score
		}
	}
	return strings.TrimSpace(sentences[best])
}

func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	return highlightStyle.Render(bestSentence(text, query))
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
