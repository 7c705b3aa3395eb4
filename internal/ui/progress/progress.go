// Package progress renders the steps of a long running flow, either as a live
// spinner view or as plain lines when the output is not a terminal.
package progress

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"verisay/go-client/internal/domains/contracts"
)

// Step is one observable stage, keyed by the name the observer reports.
type Step struct {
	Key   string
	Label string
}

type stepState int

const (
	statePending stepState = iota
	stateRunning
	stateDone
	stateFailed
)

type stepStartedMsg struct{ key string }

type stepFinishedMsg struct {
	key string
	err error
}

type finishedMsg struct{ err error }

type styles struct {
	title   lipgloss.Style
	done    lipgloss.Style
	failed  lipgloss.Style
	pending lipgloss.Style
	detail  lipgloss.Style
	spinner lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		title:   lipgloss.NewStyle().Bold(true),
		done:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		failed:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		pending: lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		detail:  lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true),
		spinner: lipgloss.NewStyle().Foreground(lipgloss.Color("69")),
	}
}

type model struct {
	title    string
	steps    []Step
	states   map[string]stepState
	errs     map[string]error
	spinner  spinner.Model
	styles   styles
	finished bool
}

func newModel(title string, steps []Step) model {
	st := defaultStyles()
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = st.spinner
	return model{
		title:   title,
		steps:   steps,
		states:  make(map[string]stepState, len(steps)),
		errs:    make(map[string]error),
		spinner: sp,
		styles:  st,
	}
}

func (m model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stepStartedMsg:
		m.states[msg.key] = stateRunning
	case stepFinishedMsg:
		if msg.err != nil {
			m.states[msg.key] = stateFailed
			m.errs[msg.key] = msg.err
		} else {
			m.states[msg.key] = stateDone
		}
	case finishedMsg:
		m.finished = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(m.styles.title.Render(m.title))
	b.WriteString("\n")
	for _, step := range m.steps {
		switch m.states[step.Key] {
		case stateRunning:
			b.WriteString(m.spinner.View() + " " + step.Label)
		case stateDone:
			b.WriteString(m.styles.done.Render("✓") + " " + step.Label)
		case stateFailed:
			b.WriteString(m.styles.failed.Render("✗") + " " + step.Label)
			if err := m.errs[step.Key]; err != nil {
				b.WriteString(" " + m.styles.detail.Render(err.Error()))
			}
		default:
			b.WriteString(m.styles.pending.Render("· " + step.Label))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// programObserver forwards observer events into a running program.
type programObserver struct {
	program *tea.Program
}

func (o programObserver) StepStarted(step string) {
	o.program.Send(stepStartedMsg{key: step})
}

func (o programObserver) StepFinished(step string, err error) {
	o.program.Send(stepFinishedMsg{key: step, err: err})
}

// PlainObserver writes one line per step event.
type PlainObserver struct {
	mu     sync.Mutex
	out    io.Writer
	labels map[string]string
}

func NewPlainObserver(out io.Writer, steps []Step) *PlainObserver {
	labels := make(map[string]string, len(steps))
	for _, s := range steps {
		labels[s.Key] = s.Label
	}
	return &PlainObserver{out: out, labels: labels}
}

func (p *PlainObserver) StepStarted(step string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintf(p.out, "%s...\n", p.label(step))
}

func (p *PlainObserver) StepFinished(step string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		_, _ = fmt.Fprintf(p.out, "%s: failed: %v\n", p.label(step), err)
		return
	}
	_, _ = fmt.Fprintf(p.out, "%s: done\n", p.label(step))
}

func (p *PlainObserver) label(step string) string {
	if l, ok := p.labels[step]; ok {
		return l
	}
	return step
}

// Interactive reports whether out is a terminal worth drawing a live view on.
func Interactive(out io.Writer) bool {
	f, ok := out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Run executes work while rendering its step events. With plain set, or when out is not a
// terminal, events are printed line by line instead.
func Run(ctx context.Context, out io.Writer, plain bool, title string, steps []Step, work func(contracts.SubmitObserver) error) error {
	if plain || !Interactive(out) {
		_, _ = fmt.Fprintln(out, title)
		return work(NewPlainObserver(out, steps))
	}

	program := tea.NewProgram(newModel(title, steps),
		tea.WithContext(ctx),
		tea.WithOutput(out),
		tea.WithInput(nil),
	)
	workErr := make(chan error, 1)
	go func() {
		err := work(programObserver{program: program})
		workErr <- err
		program.Send(finishedMsg{err: err})
	}()
	// The work owns its context, so it is awaited even when the view stops early.
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		_, _ = fmt.Fprintf(out, "progress view failed: %v\n", err)
	}
	return <-workErr
}
