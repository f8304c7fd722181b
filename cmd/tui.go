// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/quill/pkg/armlink"
	"github.com/Thermoquad/quill/pkg/config"
	"github.com/Thermoquad/quill/pkg/controller"
	"github.com/Thermoquad/quill/pkg/executor"
	"github.com/Thermoquad/quill/pkg/motion"
	"github.com/Thermoquad/quill/pkg/robotstate"
)

// Event log entry
type eventEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// TUI model
type monitorModel struct {
	ctx       context.Context
	ctrl      *controller.Controller
	patchFile string
	patches   []motion.PathPatch

	state   robotstate.FirmwareState
	stats   armlink.StatisticsSnapshot
	session *executor.Session
	bar     progress.Model

	events    []eventEntry
	maxEvents int
	width     int
	height    int
	quitting  bool
}

// Messages
type monitorTickMsg time.Time
type stateMsg robotstate.FirmwareState
type eventMsg eventEntry
type resultMsg struct {
	action string
	res    controller.Result
}

func initialMonitorModel(ctx context.Context, ctrl *controller.Controller, patchFile string, patches []motion.PathPatch) monitorModel {
	return monitorModel{
		ctx:       ctx,
		ctrl:      ctrl,
		patchFile: patchFile,
		patches:   patches,
		state:     ctrl.State().Snapshot(),
		bar:       progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		maxEvents: 100,
		width:     80,
		height:    24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return monitorTickCmd()
}

func monitorTickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

// run wraps a controller call so planning does not block the UI.
func (m monitorModel) run(action string, fn func() controller.Result) tea.Cmd {
	return func() tea.Msg {
		return resultMsg{action: action, res: fn()}
	}
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "s":
			return m, m.run("stop", func() controller.Result { return m.ctrl.Stop(true) })
		case "h":
			return m, m.run("home", m.ctrl.Homing)
		case "d":
			if len(m.patches) == 0 {
				m.addEvent("no patch file loaded", true)
				return m, nil
			}
			return m, m.run("draw", func() controller.Result {
				return m.ctrl.StartTrajectory(m.ctx, m.patches, config.Override{})
			})
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = min(max(m.width-30, 10), 60)

	case monitorTickMsg:
		m.stats = m.ctrl.Statistics().Snapshot()
		m.session = m.ctrl.Executor().Current()
		return m, monitorTickCmd()

	case stateMsg:
		m.state = robotstate.FirmwareState(msg)

	case eventMsg:
		m.addEvent(msg.message, msg.isError)

	case resultMsg:
		if msg.res.OK {
			text := msg.action
			if msg.res.Reason != "" {
				text += ": " + msg.res.Reason
			}
			if msg.res.Points > 0 {
				text += fmt.Sprintf(": %d points, %.1f s", msg.res.Points, msg.res.Duration)
				if msg.res.Scale > 1 {
					text += fmt.Sprintf(", slowed x%.2f", msg.res.Scale)
				}
			}
			m.addEvent(text, false)
		} else {
			m.addEvent(msg.action+" failed: "+msg.res.Reason, true)
		}
		m.session = m.ctrl.Executor().Current()
	}

	return m, nil
}

func (m *monitorModel) addEvent(message string, isError bool) {
	m.events = append(m.events, eventEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})

	// Keep only last N entries
	if len(m.events) > m.maxEvents {
		m.events = m.events[len(m.events)-m.maxEvents:]
	}
}

func degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("QUILL - ARM MONITOR"))
	s.WriteString("\n")
	keys := "q quit | s stop | h home"
	if m.patchFile != "" {
		keys += " | d draw " + m.patchFile
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("Link: %s | %s", connectionInfo(m.ctrl), keys)))
	s.WriteString("\n\n")

	// Arm state
	pos := m.ctrl.CartesianPose(m.state.Pose())
	pen := valueStyle.Render("down")
	if m.state.PenUp {
		pen = warningStyle.Render("up")
	}
	source := string(m.state.Source)
	if source == "" {
		source = "unknown"
	}
	link := errorStyle.Render("offline")
	if m.state.Connected {
		link = valueStyle.Render("connected")
	}

	arm := strings.Builder{}
	arm.WriteString(fmt.Sprintf("%s %s   %s %s\n",
		labelStyle.Render("q0:"), valueStyle.Render(fmt.Sprintf("%8.4f rad (%6.1f°)", m.state.Q0, degrees(m.state.Q0))),
		labelStyle.Render("q1:"), valueStyle.Render(fmt.Sprintf("%8.4f rad (%6.1f°)", m.state.Q1, degrees(m.state.Q1))),
	))
	arm.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		labelStyle.Render("x:"), valueStyle.Render(fmt.Sprintf("%.4f m", pos.X)),
		labelStyle.Render("y:"), valueStyle.Render(fmt.Sprintf("%.4f m", pos.Y)),
		labelStyle.Render("Pen:"), pen,
	))
	arm.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s",
		labelStyle.Render("Source:"), valueStyle.Render(source),
		labelStyle.Render("Buffer:"), valueStyle.Render(fmt.Sprintf("%d", m.state.BufferLevel)),
		labelStyle.Render("Link:"), link,
	))
	s.WriteString(boxStyle.Render(arm.String()))
	s.WriteString("\n\n")

	// Session
	s.WriteString(labelStyle.Render("Session:"))
	s.WriteString("\n")
	sess := strings.Builder{}
	if m.session == nil {
		sess.WriteString(headerStyle.Render("(no session yet)"))
	} else {
		mode := "firmware"
		if m.session.Simulated() {
			mode = "simulation"
		}
		phase := m.session.Phase()
		phaseText := valueStyle.Render(phase.String())
		if phase == executor.PhaseAborted {
			phaseText = errorStyle.Render(phase.String())
		}
		sess.WriteString(fmt.Sprintf("#%d %s (%s)  %d/%d points\n",
			m.session.ID(), phaseText, mode, m.session.Sent(), m.session.Total()))
		sess.WriteString(m.bar.ViewAs(m.session.Progress()))
	}
	s.WriteString(boxStyle.Render(sess.String()))
	s.WriteString("\n\n")

	// Link statistics
	stats := strings.Builder{}
	stats.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		labelStyle.Render("Received:"), valueStyle.Render(fmt.Sprintf("%d", m.stats.TotalFrames)),
		labelStyle.Render("Sent:"), valueStyle.Render(fmt.Sprintf("%d", m.stats.FramesSent)),
		labelStyle.Render("Errors:"), func() string {
			if m.stats.Errors() > 0 {
				return errorStyle.Render(fmt.Sprintf("%d", m.stats.Errors()))
			}
			return valueStyle.Render("0")
		}(),
	))
	if m.stats.Errors() > 0 || m.stats.DiscardedBytes > 0 {
		stats.WriteString(fmt.Sprintf("%s %d   %s %d   %s %d\n",
			labelStyle.Render("CRC:"), m.stats.CRCErrors,
			labelStyle.Render("Unknown:"), m.stats.UnknownTypes,
			labelStyle.Render("Resync bytes:"), m.stats.DiscardedBytes,
		))
	}
	stats.WriteString(fmt.Sprintf("%s %s   %s %s",
		labelStyle.Render("Frame Rate:"), valueStyle.Render(fmt.Sprintf("%.1f frames/s", m.stats.FrameRate)),
		labelStyle.Render("Error Rate:"), valueStyle.Render(fmt.Sprintf("%.1f err/s", m.stats.ErrorRate)),
	))
	s.WriteString(boxStyle.Render(stats.String()))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := m.height - 22 // Reserve space for the boxes above
	if logHeight < 3 {
		logHeight = 3
	}
	startIdx := max(len(m.events)-logHeight, 0)

	logContent := strings.Builder{}
	if len(m.events) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for _, entry := range m.events[startIdx:] {
			timestamp := entry.timestamp.Format("15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(timestamp), errorStyle.Render("✗ "+entry.message)))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(timestamp), warningStyle.Render("ℹ "+entry.message)))
			}
		}
	}
	s.WriteString(boxStyle.Width(max(m.width-4, 20)).Render(logContent.String()))

	return s.String()
}
