// Copyright 2026 The CollabCanvas Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kennyu/gauntlet-collabcanvas/canvas"
	"github.com/kennyu/gauntlet-collabcanvas/engine"
	"github.com/kennyu/gauntlet-collabcanvas/presence"
)

// pointerStep is how far one arrow keypress moves the pointer, and
// dragStep how far one h/j/k/l keypress moves the selected rectangle,
// both in workspace units.
const (
	pointerStep = 50.0
	dragStep    = 25.0
)

type (
	objectsMsg []canvas.Object
	cursorsMsg []presence.Cursor
	rosterMsg  []presence.RosterEntry
	statusMsg  engine.Status
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true)
	dimStyle      = lipgloss.NewStyle().Faint(true)
	canvasStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder())
	degradedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F97316")).Bold(true)
	liveStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#22C55E")).Bold(true)
)

type model struct {
	eng *engine.Engine

	objects []canvas.Object
	cursors []presence.Cursor
	roster  []presence.RosterEntry
	status  engine.Status

	pointer  canvas.Point
	dragging bool

	width  int
	height int
}

func newModel(eng *engine.Engine) model {
	return model{
		eng:     eng,
		objects: eng.Objects(),
		roster:  eng.Roster(),
		status:  eng.Status(),
		pointer: canvas.Point{X: canvas.WorkspaceSize / 2, Y: canvas.WorkspaceSize / 2},
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil
	case objectsMsg:
		m.objects = msg
		return m, nil
	case cursorsMsg:
		m.cursors = msg
		return m, nil
	case rosterMsg:
		m.roster = msg
		return m, nil
	case statusMsg:
		m.status = engine.Status(msg)
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.eng.HideCursor()
		return m, tea.Quit
	case "up":
		return m.movePointer(0, -pointerStep), nil
	case "down":
		return m.movePointer(0, pointerStep), nil
	case "left":
		return m.movePointer(-pointerStep, 0), nil
	case "right":
		return m.movePointer(pointerStep, 0), nil
	case "n":
		if id, err := m.eng.CreateAt(m.pointer); err == nil {
			m.eng.Select(id)
		}
		return m, nil
	case "tab":
		m.cycleSelection()
		return m, nil
	case "h":
		return m.dragSelected(-dragStep, 0), nil
	case "l":
		return m.dragSelected(dragStep, 0), nil
	case "k":
		return m.dragSelected(0, -dragStep), nil
	case "j":
		return m.dragSelected(0, dragStep), nil
	case "enter":
		if id, ok := m.eng.Selected(); ok && m.dragging {
			m.eng.DragEnd(id)
			m.dragging = false
		}
		return m, nil
	}
	return m, nil
}

func (m model) movePointer(dx, dy float64) model {
	m.pointer.X = clamp(m.pointer.X+dx, 0, canvas.WorkspaceSize)
	m.pointer.Y = clamp(m.pointer.Y+dy, 0, canvas.WorkspaceSize)
	m.eng.MoveCursor(m.pointer)
	return m
}

// cycleSelection advances the selection through the render order,
// wrapping to the first object after the last.
func (m model) cycleSelection() {
	if len(m.objects) == 0 {
		return
	}
	current, ok := m.eng.Selected()
	if !ok {
		m.eng.Select(m.objects[0].ID)
		return
	}
	for i, object := range m.objects {
		if object.ID == current {
			m.eng.Select(m.objects[(i+1)%len(m.objects)].ID)
			return
		}
	}
	m.eng.Select(m.objects[0].ID)
}

func (m model) dragSelected(dx, dy float64) model {
	id, ok := m.eng.Selected()
	if !ok {
		return m
	}
	object, ok := m.eng.Object(id)
	if !ok {
		return m
	}
	if err := m.eng.DragTo(id, canvas.Point{X: object.X + dx, Y: object.Y + dy}); err == nil {
		m.dragging = true
	}
	return m
}

func (m model) View() string {
	if m.width == 0 || m.height == 0 {
		return "loading"
	}

	gridWidth := m.width - 2
	gridHeight := m.height - 5
	if gridWidth < 10 || gridHeight < 5 {
		return "terminal too small"
	}

	var b strings.Builder
	b.WriteString(m.headerView())
	b.WriteString("\n")
	b.WriteString(canvasStyle.Render(m.canvasView(gridWidth, gridHeight)))
	b.WriteString("\n")
	b.WriteString(m.footerView())
	return b.String()
}

func (m model) headerView() string {
	status := m.status.String()
	switch m.status {
	case engine.StatusSubscribed:
		status = liveStyle.Render(status)
	case engine.StatusDegraded, engine.StatusConnecting:
		status = degradedStyle.Render(status)
	}

	names := make([]string, 0, len(m.roster))
	for _, entry := range m.roster {
		name := entry.DisplayName
		if entry.Self {
			name += " (you)"
		}
		names = append(names, lipgloss.NewStyle().Foreground(lipgloss.Color(entry.Color)).Render(name))
	}
	roster := dimStyle.Render("nobody here")
	if len(names) > 0 {
		roster = strings.Join(names, " ")
	}

	return headerStyle.Render(string(m.eng.Workspace())) + "  " + status + "  " + roster
}

// canvasView projects the square workspace onto the cell grid. Each
// cell covers WorkspaceSize/gridWidth by WorkspaceSize/gridHeight
// workspace units.
func (m model) canvasView(gridWidth, gridHeight int) string {
	type cell struct {
		glyph string
		color string
	}
	grid := make([][]cell, gridHeight)
	for y := range grid {
		grid[y] = make([]cell, gridWidth)
		for x := range grid[y] {
			grid[y][x] = cell{glyph: " "}
		}
	}

	cellX := func(v float64) int { return boundIndex(int(v/canvas.WorkspaceSize*float64(gridWidth)), gridWidth) }
	cellY := func(v float64) int { return boundIndex(int(v/canvas.WorkspaceSize*float64(gridHeight)), gridHeight) }

	selected, hasSelection := m.eng.Selected()
	for _, object := range m.objects {
		fill := "▒"
		if hasSelection && object.ID == selected {
			fill = "█"
		}
		left, right := cellX(object.X), cellX(object.X+object.Width)
		top, bottom := cellY(object.Y), cellY(object.Y+object.Height)
		for y := top; y <= bottom; y++ {
			for x := left; x <= right; x++ {
				grid[y][x] = cell{glyph: fill, color: object.Color}
			}
		}
	}

	for _, cursor := range m.cursors {
		grid[cellY(cursor.Y)][cellX(cursor.X)] = cell{glyph: "✛", color: cursor.Color}
	}
	grid[cellY(m.pointer.Y)][cellX(m.pointer.X)] = cell{glyph: "+"}

	var b strings.Builder
	for y, row := range grid {
		if y > 0 {
			b.WriteString("\n")
		}
		for _, c := range row {
			if c.color == "" {
				b.WriteString(c.glyph)
				continue
			}
			b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(c.color)).Render(c.glyph))
		}
	}
	return b.String()
}

func (m model) footerView() string {
	pointer := fmt.Sprintf("pointer %.0f,%.0f", m.pointer.X, m.pointer.Y)
	help := "arrows: pointer  n: create  tab: select  h/j/k/l: drag  enter: commit  q: quit"
	return dimStyle.Render(pointer + "  " + help)
}

func boundIndex(i, limit int) int {
	if i < 0 {
		return 0
	}
	if i >= limit {
		return limit - 1
	}
	return i
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
