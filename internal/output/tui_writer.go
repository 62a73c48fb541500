package output

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"sonatabench/internal/bench"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

type phaseStartedMsg struct{ phase bench.Phase }

type phaseFinishedMsg struct {
	phase   bench.Phase
	elapsed time.Duration
}

type reportMsg struct{ report bench.Report }

// TUIWriter shows phase progress while a run is in flight and the final
// results table once the report arrives. It implements bench.Observer.
type TUIWriter struct {
	program    teaProgram
	done       chan struct{}
	sendSignal atomic.Bool
}

// NewTUIWriter starts a bubbletea program for a run of example.
func NewTUIWriter(example string, nvp int) *TUIWriter {
	w := &TUIWriter{done: make(chan struct{})}
	w.sendSignal.Store(true)
	m := newTUIModel(example, nvp)
	p := tea.NewProgram(m)
	w.program = p
	go func() {
		final, _ := p.Run()
		close(w.done)
		// A user quit before the report arrived interrupts the run.
		if fm, ok := final.(tuiModel); ok && fm.report != nil {
			return
		}
		if w.sendSignal.Load() {
			if proc, err := os.FindProcess(os.Getpid()); err == nil {
				_ = proc.Signal(os.Interrupt)
			}
		}
	}()
	return w
}

// PhaseStarted implements bench.Observer.
func (w *TUIWriter) PhaseStarted(p bench.Phase) {
	w.program.Send(phaseStartedMsg{phase: p})
}

// PhaseFinished implements bench.Observer.
func (w *TUIWriter) PhaseFinished(p bench.Phase, elapsed time.Duration) {
	w.program.Send(phaseFinishedMsg{phase: p, elapsed: elapsed})
}

// WriteReport renders the results and ends the program.
func (w *TUIWriter) WriteReport(r bench.Report) error {
	w.program.Send(reportMsg{report: r})
	return nil
}

// Close stops the program without interrupting the process and waits for
// the terminal to be restored.
func (w *TUIWriter) Close() error {
	w.sendSignal.Store(false)
	w.program.Send(tea.Quit())
	w.Wait()
	return nil
}

// Wait blocks until the program has exited.
func (w *TUIWriter) Wait() {
	if w.done != nil {
		<-w.done
	}
}

type phaseState int

const (
	phasePending phaseState = iota
	phaseRunning
	phaseDone
)

type phaseRow struct {
	phase   bench.Phase
	state   phaseState
	elapsed time.Duration
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

type tuiModel struct {
	example string
	nvp     int
	spinner spinner.Model
	phases  []phaseRow
	report  *bench.Report
	width   int
}

func newTUIModel(example string, nvp int) tuiModel {
	s := spinner.New(spinner.WithSpinner(spinner.Dot))
	rows := make([]phaseRow, len(bench.Phases))
	for i, p := range bench.Phases {
		rows[i] = phaseRow{phase: p}
	}
	return tuiModel{example: example, nvp: nvp, spinner: s, phases: rows, width: 80}
}

func (m tuiModel) Init() tea.Cmd { return m.spinner.Tick }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	case phaseStartedMsg:
		m.setPhase(msg.phase, phaseRunning, 0)
	case phaseFinishedMsg:
		m.setPhase(msg.phase, phaseDone, msg.elapsed)
	case reportMsg:
		r := msg.report
		m.report = &r
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *tuiModel) setPhase(p bench.Phase, st phaseState, elapsed time.Duration) {
	for i := range m.phases {
		if m.phases[i].phase == p {
			m.phases[i].state = st
			m.phases[i].elapsed = elapsed
			return
		}
	}
}

func (m tuiModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("sonatabench  %s  nvp=%d", m.example, m.nvp)))
	b.WriteString("\n\n")
	for _, p := range m.phases {
		switch p.state {
		case phaseRunning:
			fmt.Fprintf(&b, " %s %s\n", m.spinner.View(), p.phase)
		case phaseDone:
			fmt.Fprintf(&b, " %s %-12s %s\n", doneStyle.Render("✓"), p.phase, p.elapsed.Round(time.Microsecond))
		default:
			fmt.Fprintf(&b, " %s %s\n", pendingStyle.Render("·"), pendingStyle.Render(string(p.phase)))
		}
	}
	if m.report != nil {
		b.WriteString("\n")
		b.WriteString(m.resultsTable())
		b.WriteString("\n")
	} else {
		b.WriteString(pendingStyle.Render("\n q quit\n"))
	}
	return b.String()
}

func (m tuiModel) resultsTable() string {
	return ResultsTable([]string{"value"}, []*bench.Results{m.report.Results}, m.width)
}
