// internal/tui/watch.go
//
// Live progress view for a running pipeline job. It subscribes to the
// engine's progress stream and renders stage, percent, and message until
// the job reaches a terminal stage. While the approval gate is open the
// view doubles as the decision surface: a approves every variant, r
// rejects, q cancels the job, esc detaches and leaves the job running.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/adforge/adforge/internal/engine"
	"github.com/adforge/adforge/internal/pipeline"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	stageStyle   = lipgloss.NewStyle().Bold(true)
	messageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	gateStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type snapshotMsg pipeline.ProgressSnapshot

type streamClosedMsg struct{}

type watchModel struct {
	eng     *engine.Engine
	jobID   string
	updates <-chan pipeline.ProgressSnapshot

	bar      progress.Model
	snap     pipeline.ProgressSnapshot
	detached bool
}

// Watch runs the progress view until the job finishes or the user detaches.
func Watch(eng *engine.Engine, jobID string) error {
	updates, err := eng.Watch(jobID)
	if err != nil {
		return err
	}
	model := watchModel{
		eng:     eng,
		jobID:   jobID,
		updates: updates,
		bar:     progress.New(progress.WithDefaultGradient()),
	}
	_, err = tea.NewProgram(model).Run()
	return err
}

func (m watchModel) Init() tea.Cmd {
	return m.waitForSnapshot()
}

func (m watchModel) waitForSnapshot() tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-m.updates
		if !ok {
			return streamClosedMsg{}
		}
		return snapshotMsg(snap)
	}
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		width := msg.Width - 6
		if width > 60 {
			width = 60
		}
		if width > 0 {
			m.bar.Width = width
		}
		return m, nil

	case snapshotMsg:
		m.snap = pipeline.ProgressSnapshot(msg)
		return m, m.waitForSnapshot()

	case streamClosedMsg:
		return m, tea.Quit

	case tea.KeyMsg:
		switch msg.String() {
		case "a":
			if m.snap.Stage == pipeline.StageAwaitingApproval {
				m.signal(m.approveAll)
			}
			return m, nil
		case "r":
			if m.snap.Stage == pipeline.StageAwaitingApproval {
				m.signal(func() error { return m.eng.RejectAll(m.jobID) })
			}
			return m, nil
		case "q", "ctrl+c":
			m.eng.Cancel(m.jobID)
			return m, nil
		case "esc":
			m.detached = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m watchModel) approveAll() error {
	state, err := m.eng.State(context.Background(), m.jobID)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(state.Variants))
	for _, variant := range state.Variants {
		ids = append(ids, variant.ID)
	}
	return m.eng.Approve(m.jobID, ids)
}

func (m watchModel) signal(fn func() error) {
	if err := fn(); err != nil && !errors.Is(err, engine.ErrDecisionAlreadyMade) {
		// Rendering continues; the next snapshot reflects whatever the
		// engine actually did.
		return
	}
}

func (m watchModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("adforge pipeline"))
	b.WriteString(fmt.Sprintf("  %s\n\n", m.jobID))
	b.WriteString(m.bar.ViewAs(float64(m.snap.Percent) / 100.0))
	b.WriteString("\n\n")
	b.WriteString(stageStyle.Render(string(m.snap.Stage)))
	if m.snap.Message != "" {
		b.WriteString("  " + messageStyle.Render(m.snap.Message))
	}
	b.WriteString("\n")
	if m.snap.Error != "" {
		b.WriteString(errorStyle.Render("error: "+m.snap.Error) + "\n")
	}
	if m.snap.Stage == pipeline.StageAwaitingApproval {
		b.WriteString(gateStyle.Render("awaiting approval") + "\n")
		b.WriteString(helpStyle.Render("a approve all · r reject · q cancel · esc detach") + "\n")
	} else {
		b.WriteString(helpStyle.Render("q cancel · esc detach") + "\n")
	}
	return b.String()
}
