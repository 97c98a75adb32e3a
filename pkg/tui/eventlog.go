package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// EventLevel is the severity of an event log entry.
type EventLevel string

const (
	EventInfo    EventLevel = "info"
	EventSuccess EventLevel = "success"
	EventWarning EventLevel = "warning"
	EventError   EventLevel = "error"
)

// Event is one entry in the event log.
type Event struct {
	Timestamp time.Time
	Type      string // CONNECT, SNAPSHOT, PROTOCOL, ...
	Content   string
	Level     EventLevel
}

// EventLog keeps the most recent connection and protocol events.
type EventLog struct {
	events    []Event
	maxEvents int
	visible   bool
	now       func() time.Time

	// Styles
	panelStyle   lipgloss.Style
	headerStyle  lipgloss.Style
	infoStyle    lipgloss.Style
	successStyle lipgloss.Style
	warningStyle lipgloss.Style
	errorStyle   lipgloss.Style
}

// NewEventLog creates an empty, visible event log.
func NewEventLog() *EventLog {
	return &EventLog{
		maxEvents: 50,
		visible:   true,
		now:       time.Now,

		panelStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(0, 1),

		headerStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("15")).
			Bold(true),

		infoStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("14")), // cyan

		successStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")), // green

		warningStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")), // yellow

		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")), // red
	}
}

// Add appends an event, dropping the oldest beyond the limit.
func (l *EventLog) Add(eventType, content string, level EventLevel) {
	l.events = append(l.events, Event{
		Timestamp: l.now(),
		Type:      eventType,
		Content:   content,
		Level:     level,
	})
	if len(l.events) > l.maxEvents {
		l.events = l.events[len(l.events)-l.maxEvents:]
	}
}

// AddError logs err under eventType.
func (l *EventLog) AddError(eventType string, err error) {
	l.Add(eventType, err.Error(), EventError)
}

// Events returns the retained events, oldest first.
func (l *EventLog) Events() []Event { return l.events }

// Last returns the newest event.
func (l *EventLog) Last() (Event, bool) {
	if len(l.events) == 0 {
		return Event{}, false
	}
	return l.events[len(l.events)-1], true
}

// Toggle flips visibility.
func (l *EventLog) Toggle() { l.visible = !l.visible }

// IsVisible reports visibility.
func (l *EventLog) IsVisible() bool { return l.visible }

// Clear drops every event.
func (l *EventLog) Clear() { l.events = nil }

// View renders the newest events that fit in height lines.
func (l *EventLog) View(width, height int) string {
	if !l.visible || height < 3 {
		return ""
	}

	var content strings.Builder
	content.WriteString(l.headerStyle.Render("Events") + "\n")

	// border plus header
	room := height - 3
	if room < 1 {
		room = 1
	}
	start := len(l.events) - room
	if start < 0 {
		start = 0
	}
	if len(l.events) == 0 {
		content.WriteString("No events yet")
	}
	for i := start; i < len(l.events); i++ {
		content.WriteString(l.renderEvent(l.events[i]))
		if i < len(l.events)-1 {
			content.WriteString("\n")
		}
	}

	return l.panelStyle.
		Width(max(1, width-2)).
		Height(max(1, height-2)).
		Render(content.String())
}

func (l *EventLog) renderEvent(e Event) string {
	var style lipgloss.Style
	switch e.Level {
	case EventSuccess:
		style = l.successStyle
	case EventWarning:
		style = l.warningStyle
	case EventError:
		style = l.errorStyle
	default:
		style = l.infoStyle
	}

	// [15:04:05] TYPE: content
	return fmt.Sprintf("[%s] %s: %s",
		e.Timestamp.Format("15:04:05"),
		style.Render(e.Type),
		e.Content)
}
