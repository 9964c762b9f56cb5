package main

import (
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/cjeanneret/halfstep/internal/hw/stepper"
	"github.com/cjeanneret/halfstep/internal/logic/motion"
)

const (
	maxJogSteps    = 512
	maxJogVelocity = 2000
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Padding(0, 1)
	busyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// jogDoneMsg reports the end of a jog operation.
type jogDoneMsg struct {
	state motion.State
	err   error
}

// jogModel moves the motor a few steps per key press.
type jogModel struct {
	ctrl     *motion.Controller
	steps    int // full steps per key press
	state    motion.State
	moving   bool
	err      error
	quitting bool
}

func newJogModel(ctrl *motion.Controller) jogModel {
	return jogModel{ctrl: ctrl, steps: 8, state: ctrl.State()}
}

func runJog(ctrl *motion.Controller) error {
	_, err := tea.NewProgram(newJogModel(ctrl)).Run()
	return err
}

func (m jogModel) Init() tea.Cmd {
	return nil
}

func (m jogModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "left", "h":
			return m.jog(stepper.Left)
		case "right", "l":
			return m.jog(stepper.Right)
		case "+", "=":
			return m.velocity(m.state.Velocity * 2)
		case "-", "_":
			return m.velocity(m.state.Velocity / 2)
		case "]":
			m.steps = min(m.steps*2, maxJogSteps)
		case "[":
			m.steps = max(m.steps/2, 1)
		}

	case jogDoneMsg:
		m.moving = false
		m.state = msg.state
		m.err = msg.err
	}
	return m, nil
}

// jog starts a move in the background; the result arrives as a jogDoneMsg.
func (m jogModel) jog(dir stepper.Direction) (tea.Model, tea.Cmd) {
	if m.moving {
		return m, nil
	}
	m.moving = true
	m.err = nil
	ctrl, steps := m.ctrl, m.steps
	return m, func() tea.Msg {
		err := ctrl.Rotate(steps, dir)
		return jogDoneMsg{state: ctrl.State(), err: err}
	}
}

func (m jogModel) velocity(v int) (tea.Model, tea.Cmd) {
	v = min(max(v, 1), maxJogVelocity)
	if err := m.ctrl.SetVelocity(v); err != nil {
		m.err = err
		return m, nil
	}
	m.err = nil
	m.state = m.ctrl.State()
	return m, nil
}

func (m jogModel) View() string {
	if m.quitting {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(headerStyle.Render("halfstep jog"))
	sb.WriteString("\n\n")

	rows := [][]string{
		{"Angle", fmt.Sprintf("%.3f°", m.state.Degrees)},
		{"Direction", m.state.Direction},
		{"Velocity", fmt.Sprintf("%d half-steps/s", m.state.Velocity)},
		{"Phase", m.state.Phase},
		{"Steps/key", fmt.Sprintf("%d", m.steps)},
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return labelStyle
			}
			return valueStyle
		})
	sb.WriteString(t.Render())
	sb.WriteString("\n")

	switch {
	case m.moving:
		sb.WriteString(busyStyle.Render("moving..."))
	case errors.Is(m.err, motion.ErrBusy):
		sb.WriteString(errorStyle.Render("motor busy"))
	case m.err != nil:
		sb.WriteString(errorStyle.Render(m.err.Error()))
	}
	sb.WriteString("\n")
	sb.WriteString(dimStyle.Render("←/→ jog  +/- velocity  [/] steps per key  q quit"))
	return sb.String()
}
