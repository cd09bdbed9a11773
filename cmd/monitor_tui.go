// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/litronsim/pkg/litron"
)

const setTimeout = 5 * time.Second

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// fieldItem is one row of the field list
type fieldItem struct {
	name  string
	value string
}

// Implement list.Item interface
func (f fieldItem) Title() string       { return f.name }
func (f fieldItem) Description() string { return f.value }
func (f fieldItem) FilterValue() string { return f.name }

// fieldSetter writes fields through the backdoor
type fieldSetter interface {
	Set(ctx context.Context, name string, value interface{}) error
}

// Messages
type monitorTickMsg time.Time
type snapshotMsg litron.Snapshot
type connectionLostMsg struct {
	err error
}
type reconnectedMsg struct {
	connInfo string
}
type setResultMsg struct {
	field string
	value interface{}
	err   error
}

// TUI model
type monitorModel struct {
	setter   fieldSetter
	connInfo string

	fields    list.Model
	editInput textinput.Model
	editing   bool

	snap      *litron.Snapshot
	started   time.Time
	snapshots uint64

	eventLog      []eventLogEntry
	maxLogEntries int

	width          int
	height         int
	quitting       bool
	connectionLost bool
}

func initialMonitorModel(setter fieldSetter, connInfo string) monitorModel {
	ti := textinput.New()
	ti.CharLimit = 24
	ti.Width = 24

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	fields := list.New(fieldItems(nil), delegate, 32, 16)
	fields.Title = "Fields"
	fields.SetShowStatusBar(false)
	fields.SetShowHelp(false)
	fields.SetFilteringEnabled(false)

	return monitorModel{
		setter:        setter,
		connInfo:      connInfo,
		fields:        fields,
		editInput:     ti,
		started:       time.Now(),
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

// fieldItems renders every field of snap, or placeholders before the
// first snapshot.
func fieldItems(snap *litron.Snapshot) []list.Item {
	names := litron.FieldNames()
	items := make([]list.Item, len(names))
	for i, name := range names {
		value := "-"
		if snap != nil {
			value = formatField(*snap, name)
		}
		items[i] = fieldItem{name: name, value: value}
	}
	return items
}

func formatField(s litron.Snapshot, name string) string {
	v, err := s.Value(name)
	if err != nil {
		return "?"
	}
	if f, ok := v.(float64); ok {
		return fmt.Sprintf("%.3f", f)
	}
	return fmt.Sprintf("%v", v)
}

func (m monitorModel) Init() tea.Cmd {
	return monitorTickCmd()
}

func monitorTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		listHeight := m.height / 2
		if listHeight < 8 {
			listHeight = 8
		}
		m.fields.SetSize(32, listHeight)

	case monitorTickMsg:
		return m, monitorTickCmd()

	case snapshotMsg:
		m.applySnapshot(litron.Snapshot(msg))

	case setResultMsg:
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("set %s failed: %v", msg.field, msg.err), true)
		} else {
			m.addLogEntry(fmt.Sprintf("set %s = %v", msg.field, msg.value), false)
		}

	case connectionLostMsg:
		m.connectionLost = true
		m.addLogEntry("Connection lost - reconnecting...", true)

	case reconnectedMsg:
		m.connectionLost = false
		m.connInfo = msg.connInfo
		m.addLogEntry("Reconnected", false)
	}

	return m, nil
}

func (m monitorModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.editing {
		switch msg.String() {
		case "esc":
			m.stopEditing()
			return m, nil
		case "enter":
			field := m.selectedField()
			text := m.editInput.Value()
			m.stopEditing()
			cmd := m.setFieldText(field, text)
			return m, cmd
		}
		var cmd tea.Cmd
		m.editInput, cmd = m.editInput.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "enter":
		field := m.selectedField()
		if field == "" || field == litron.FieldWavelengthReading {
			return m, nil
		}
		m.editing = true
		m.editInput.SetValue("")
		m.editInput.Placeholder = m.currentValue(field)
		cmd := m.editInput.Focus()
		return m, cmd

	case "c":
		if m.snap != nil {
			cmd := m.setField(litron.FieldConnected, !m.snap.Connected)
			return m, cmd
		}

	case "h":
		if m.snap != nil {
			cmd := m.setField(litron.FieldHardwareConnected, !m.snap.HardwareConnected)
			return m, cmd
		}

	case "x":
		cmd := m.setField(litron.FieldInitialized, false)
		return m, cmd
	}

	var cmd tea.Cmd
	m.fields, cmd = m.fields.Update(msg)
	return m, cmd
}

func (m *monitorModel) stopEditing() {
	m.editing = false
	m.editInput.Blur()
	m.editInput.SetValue("")
}

func (m monitorModel) selectedField() string {
	item, ok := m.fields.SelectedItem().(fieldItem)
	if !ok {
		return ""
	}
	return item.name
}

func (m monitorModel) currentValue(field string) string {
	if m.snap == nil {
		return ""
	}
	return formatField(*m.snap, field)
}

// setFieldText parses text for field and sends it
func (m *monitorModel) setFieldText(field, text string) tea.Cmd {
	v, err := litron.ParseFieldValue(field, text)
	if err != nil {
		m.addLogEntry(err.Error(), true)
		return nil
	}
	return m.setField(field, v)
}

func (m *monitorModel) setField(field string, value interface{}) tea.Cmd {
	if m.connectionLost {
		m.addLogEntry("Cannot set field: connection lost", true)
		return nil
	}
	setter := m.setter
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), setTimeout)
		defer cancel()
		err := setter.Set(ctx, field, value)
		return setResultMsg{field: field, value: value, err: err}
	}
}

// applySnapshot records the change of every field except the noisy reading
func (m *monitorModel) applySnapshot(snap litron.Snapshot) {
	m.snapshots++

	if m.snap == nil {
		m.addLogEntry(fmt.Sprintf("First snapshot: %s", gateState(snap)), false)
	} else {
		prev := *m.snap
		for _, name := range litron.FieldNames() {
			if name == litron.FieldWavelengthReading {
				continue
			}
			before, after := formatField(prev, name), formatField(snap, name)
			if before != after {
				m.addLogEntry(fmt.Sprintf("%s %s -> %s", name, before, after), false)
			}
		}
		if prev.Armed() != snap.Armed() {
			m.addLogEntry(fmt.Sprintf("Gate %s", gateState(snap)), !snap.Armed())
		}
	}

	m.snap = &snap
	m.fields.SetItems(fieldItems(m.snap))
}

func (m *monitorModel) addLogEntry(message string, isError bool) {
	entry := eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

// formatUptime formats a duration as a human-friendly string
func formatUptime(d time.Duration) string {
	seconds := uint64(d / time.Second)
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	plural := func(n uint64, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}

	parts := []string{}
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, plural(seconds, "second"))
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
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
	s.WriteString(titleStyle.Render("LITRONSIM MONITOR"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = warningStyle.Render("RECONNECTING...")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | q=quit Enter=edit c=link h=hardware x=disarm", connStatus)))
	s.WriteString("\n\n")

	// Status
	status := strings.Builder{}
	if m.snap == nil {
		status.WriteString(warningStyle.Render("Waiting for first snapshot..."))
	} else {
		gate := valueStyle.Render("ARMED")
		if !m.snap.Armed() {
			gate = errorStyle.Render("SILENT")
		}
		status.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			labelStyle.Render("Gate:"), gate,
			labelStyle.Render("Position:"), valueStyle.Render(fmt.Sprintf("%d", m.snap.CrystalPos)),
			labelStyle.Render("Reading:"), valueStyle.Render(fmt.Sprintf("%.3f nm", m.snap.WavelengthReading)),
		))
		status.WriteString(fmt.Sprintf("%s %s   %s %s",
			labelStyle.Render("Snapshots:"), valueStyle.Render(fmt.Sprintf("%d", m.snapshots)),
			labelStyle.Render("Watching for:"), valueStyle.Render(formatUptime(time.Since(m.started))),
		))
	}
	s.WriteString(boxStyle.Render(status.String()))
	s.WriteString("\n")

	// Fields and editor
	side := strings.Builder{}
	if m.editing {
		side.WriteString(labelStyle.Render("Set " + m.selectedField()))
		side.WriteString("\n")
		side.WriteString(m.editInput.View())
		side.WriteString("\n")
		side.WriteString(headerStyle.Render("Enter=send Esc=cancel"))
	} else {
		side.WriteString(headerStyle.Render("Select a field and press Enter"))
	}
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		boxStyle.Render(m.fields.View()),
		boxStyle.Render(side.String()),
	))
	s.WriteString("\n")

	// Event log
	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := m.height - lipgloss.Height(s.String()) - 3
	if logHeight < 5 {
		logHeight = 5
	}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	logContent := strings.Builder{}
	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("15:04:05.000")
			icon := "i"
			style := warningStyle
			if entry.isError {
				icon = "x"
				style = errorStyle
			}
			logContent.WriteString(fmt.Sprintf("%s %s %s\n",
				headerStyle.Render(timestamp),
				style.Render(icon),
				entry.message))
		}
	}
	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}
