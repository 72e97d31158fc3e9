package cmd

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/iksnae/geo-trace/internal"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
)

// searchCmd represents the search command
var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Look up addresses interactively",
	Long: `Open an interactive lookup field. Type an IPv4 address or domain and
press enter; esc or ctrl+c quits. An invalid entry is reported after a short
pause instead of while you are still typing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		if _, err := a.requireUser(ctx); err != nil {
			return err
		}

		m := newSearchModel(ctx, a.screenLookup(), a.history.Entries(), clockwork.NewRealClock(), a.cfg.DebounceDelay)
		defer m.gate.Close()

		_, err = tea.NewProgram(m, tea.WithContext(ctx), tea.WithInput(cmd.InOrStdin()), tea.WithOutput(a.out)).Run()
		return err
	},
}

// lookupFunc runs one lookup and returns the notices raised along the way
type lookupFunc func(ctx context.Context, input string) (*internal.GeoResult, []internal.HistoryEntry, []string, error)

type lookupDoneMsg struct {
	query   string
	result  *internal.GeoResult
	entries []internal.HistoryEntry
	notices []string
	err     error
}

// noticeBuffer collects warnings and the sign-in hint while the search
// screen is running, so they are shown in the view.
type noticeBuffer struct {
	mu   sync.Mutex
	msgs []string
}

func (b *noticeBuffer) add(message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, message)
}

func (b *noticeBuffer) RedirectToSignIn() {
	b.add(signInHint)
}

func (b *noticeBuffer) drain() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	msgs := b.msgs
	b.msgs = nil
	return msgs
}

// screenLookup returns a lookup for the search screen. From this call on the
// app reports through the returned notices instead of writing to a.out,
// which the program owns.
func (a *app) screenLookup() lookupFunc {
	notes := &noticeBuffer{}
	a.nav = notes
	a.warn = notes.add
	return func(ctx context.Context, input string) (*internal.GeoResult, []internal.HistoryEntry, []string, error) {
		result, entries, err := a.lookup(ctx, input)
		return result, entries, notes.drain(), err
	}
}

type noticeMsg string

// searchModel is the interactive lookup screen
type searchModel struct {
	ctx     context.Context
	lookup  lookupFunc
	input   textinput.Model
	gate    *internal.InputGate
	notices chan string

	busy     bool
	query    string
	result   *internal.GeoResult
	entries  []internal.HistoryEntry
	failure  string
	warnings []string
}

func newSearchModel(ctx context.Context, lookup lookupFunc, entries []internal.HistoryEntry, clock clockwork.Clock, delay time.Duration) *searchModel {
	ti := textinput.New()
	ti.Placeholder = "8.8.8.8 or example.com"
	ti.Prompt = "🔎 "
	ti.CharLimit = 253
	ti.Focus()

	notices := make(chan string, 1)
	gate := internal.NewInputGate(internal.NewDebouncer(clock), delay, func(msg string) {
		select {
		case notices <- msg:
		default:
		}
	})

	return &searchModel{
		ctx:     ctx,
		lookup:  lookup,
		input:   ti,
		gate:    gate,
		notices: notices,
		entries: entries,
	}
}

func (m *searchModel) waitForNotice() tea.Cmd {
	return func() tea.Msg {
		return noticeMsg(<-m.notices)
	}
}

func (m *searchModel) runLookup(q string) tea.Cmd {
	return func() tea.Msg {
		result, entries, notices, err := m.lookup(m.ctx, q)
		return lookupDoneMsg{query: q, result: result, entries: entries, notices: notices, err: err}
	}
}

func (m *searchModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForNotice())
}

func (m *searchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if m.busy {
				return m, nil
			}
			q, ok := m.gate.OnSubmit(m.input.Value())
			if !ok {
				return m, nil
			}
			m.busy = true
			m.failure = ""
			m.warnings = nil
			m.query = q
			return m, m.runLookup(q)
		}

		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		m.gate.OnEdit(m.input.Value())
		return m, cmd

	case noticeMsg:
		// the gate already holds the message; re-arm the listener
		return m, m.waitForNotice()

	case lookupDoneMsg:
		m.busy = false
		m.warnings = msg.notices
		if msg.err != nil {
			m.failure = msg.err.Error()
			return m, nil
		}
		m.result = msg.result
		m.entries = msg.entries
		m.input.SetValue("")
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *searchModel) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Geo Trace lookup"))
	b.WriteString("\n\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")

	switch {
	case m.busy:
		b.WriteString(infoStyle.Render("Looking up " + m.query + "..."))
		b.WriteString("\n")
	case m.gate.Error() != "":
		b.WriteString(errorStyle.Render(m.gate.Error()))
		b.WriteString("\n")
	case m.failure != "":
		b.WriteString(errorStyle.Render(m.failure))
		b.WriteString("\n")
	}
	for _, notice := range m.warnings {
		b.WriteString(warningStyle.Render("⚠️  " + notice))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if m.result != nil {
		renderGeo(&b, "📍 "+m.result.IP, m.result)
	}
	renderHistory(&b, m.entries, time.Now())
	b.WriteString(keyStyle.Render("enter: look up • esc: quit"))
	b.WriteString("\n")
	return b.String()
}

func init() {
	rootCmd.AddCommand(searchCmd)
}
