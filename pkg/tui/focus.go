package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/bubbles/textinput"
)

// FocusableComponent represents a component that can receive focus
type FocusableComponent interface {
	Focus() tea.Cmd
	Blur() tea.Cmd
	Focused() bool
}

// FocusManager moves focus between components in a fixed order.
type FocusManager struct {
	components []FocusableComponent
	current    int
}

// NewFocusManager focuses the first component.
func NewFocusManager(components ...FocusableComponent) *FocusManager {
	fm := &FocusManager{components: components}
	if len(components) > 0 {
		components[0].Focus()
	}
	return fm
}

// Next moves focus to the next component
func (fm *FocusManager) Next() tea.Cmd {
	if len(fm.components) == 0 {
		return nil
	}
	return fm.SetFocus((fm.current + 1) % len(fm.components))
}

// SetFocus sets focus to a specific component index
func (fm *FocusManager) SetFocus(index int) tea.Cmd {
	if index < 0 || index >= len(fm.components) {
		return nil
	}
	fm.components[fm.current].Blur()
	fm.current = index
	return fm.components[fm.current].Focus()
}

// Current returns the currently focused component index
func (fm *FocusManager) Current() int {
	return fm.current
}

// addrField adapts a textinput to FocusableComponent.
type addrField struct {
	input textinput.Model
}

func newAddrField(addr string) *addrField {
	ti := textinput.New()
	ti.Prompt = "host:port "
	ti.Placeholder = "127.0.0.1:7788"
	ti.CharLimit = 255
	ti.Width = 32
	ti.SetValue(addr)
	return &addrField{input: ti}
}

func (f *addrField) Focus() tea.Cmd { return f.input.Focus() }
func (f *addrField) Blur() tea.Cmd  { f.input.Blur(); return nil }
func (f *addrField) Focused() bool  { return f.input.Focused() }

func (f *addrField) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	f.input, cmd = f.input.Update(msg)
	return cmd
}

func (f *addrField) Value() string { return f.input.Value() }
func (f *addrField) View() string  { return f.input.View() }
