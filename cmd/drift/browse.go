package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/driftlang/drift/checkpoint"
)

var (
	browseTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	frameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	selectedFrame = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	browseHelp = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// browseModel is a two-pane frame browser: the chain on the left, the
// selected frame's captured registers in a scrollable pane on the right.
type browseModel struct {
	path     string
	summary  *checkpoint.Summary
	detail   viewport.Model
	selected int
	ready    bool
}

func browse(path string, s *checkpoint.Summary) error {
	m := &browseModel{path: path, summary: s}
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (m *browseModel) Init() tea.Cmd {
	return nil
}

func (m *browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "up", "k":
			if m.selected > 0 {
				m.selected--
				m.detail.SetContent(m.frameDetail())
				m.detail.GotoTop()
			}
		case "down", "j":
			if m.selected < len(m.summary.Frames)-1 {
				m.selected++
				m.detail.SetContent(m.frameDetail())
				m.detail.GotoTop()
			}
		}

	case tea.WindowSizeMsg:
		m.detail = viewport.New(msg.Width, msg.Height-6)
		m.detail.SetContent(m.frameDetail())
		m.ready = true
	}

	var cmd tea.Cmd
	m.detail, cmd = m.detail.Update(msg)
	return m, cmd
}

func (m *browseModel) frameDetail() string {
	f := m.summary.Frames[m.selected]
	var b strings.Builder
	fmt.Fprintf(&b, "%s  pc %d, %d args\n\n", frameStyle.Render(f.Func), f.PC, f.Argc)
	if len(f.Regs) == 0 {
		b.WriteString(browseHelp.Render("no captured registers"))
		b.WriteString("\n")
		return b.String()
	}
	for _, reg := range sortedRegs(f) {
		fmt.Fprintf(&b, "  r%-4d %s\n", reg, f.Regs[reg])
	}
	return b.String()
}

func (m *browseModel) View() string {
	if !m.ready {
		return "Loading checkpoint..."
	}

	var b strings.Builder
	b.WriteString(browseTitle.Render("drift checkpoint"))
	b.WriteString(" ")
	b.WriteString(m.path)
	b.WriteString("   ")
	b.WriteString(metaStyle.Render(fmt.Sprintf("pending %s, format %s",
		m.summary.Op, m.summary.FormatVersion)))
	b.WriteString("\n\n")

	var chain []string
	for i, f := range m.summary.Frames {
		label := fmt.Sprintf("%d:%s", i, f.Func)
		if i == m.selected {
			chain = append(chain, selectedFrame.Render(label))
		} else {
			chain = append(chain, frameStyle.Render(label))
		}
	}
	b.WriteString(strings.Join(chain, " -> "))
	b.WriteString("\n\n")
	b.WriteString(m.detail.View())
	b.WriteString("\n")
	b.WriteString(browseHelp.Render("↑/↓ frame • pgup/pgdn scroll • q quit"))
	return b.String()
}
