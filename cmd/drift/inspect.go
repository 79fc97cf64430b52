package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/samber/do"
	"golang.org/x/term"

	"github.com/driftlang/drift/checkpoint"
)

// loader reads and parses checkpoint files.
type loader struct{}

func newLoader(i *do.Injector) (*loader, error) {
	return &loader{}, nil
}

func (l *loader) Load(path string) (*checkpoint.Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	s, err := checkpoint.Inspect(data)
	if err != nil {
		return nil, fmt.Errorf("inspect checkpoint: %w", err)
	}
	return s, nil
}

// renderer produces the static chain listing. Styling is dropped when
// stdout is not a terminal so output stays pipeable.
type renderer struct {
	title lipgloss.Style
	label lipgloss.Style
	fn    lipgloss.Style
	reg   lipgloss.Style
	dim   lipgloss.Style
}

func newRenderer(i *do.Injector) (*renderer, error) {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		plain := lipgloss.NewStyle()
		return &renderer{title: plain, label: plain, fn: plain, reg: plain, dim: plain}, nil
	}
	return &renderer{
		title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1),
		label: lipgloss.NewStyle().Foreground(lipgloss.Color("#87CEEB")),
		fn:    lipgloss.NewStyle().Foreground(lipgloss.Color("#98FB98")),
		reg:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FAFAFA")),
		dim:   lipgloss.NewStyle().Foreground(lipgloss.Color("#666666")),
	}, nil
}

func (r *renderer) Render(path string, s *checkpoint.Summary) string {
	var b strings.Builder

	b.WriteString(r.title.Render("drift checkpoint"))
	b.WriteString(" ")
	b.WriteString(path)
	b.WriteString("\n\n")

	b.WriteString(r.label.Render("format:      "))
	b.WriteString(s.FormatVersion)
	b.WriteString("\n")
	b.WriteString(r.label.Render("program:     "))
	fmt.Fprintf(&b, "%016x\n", s.Fingerprint)
	b.WriteString(r.label.Render("pending op:  "))
	b.WriteString(s.Op)
	if len(s.Args) > 0 {
		b.WriteString("(" + strings.Join(s.Args, ", ") + ")")
	}
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "continuation chain (%d frames, root first):\n", len(s.Frames))
	for i, f := range s.Frames {
		fmt.Fprintf(&b, "  %d. %s %s\n",
			i, r.fn.Render(f.Func), r.dim.Render(frameMeta(f)))
		for _, reg := range sortedRegs(f) {
			fmt.Fprintf(&b, "     %s = %s\n",
				r.reg.Render(fmt.Sprintf("r%d", reg)), f.Regs[reg])
		}
	}
	return b.String()
}

func frameMeta(f checkpoint.FrameSummary) string {
	return fmt.Sprintf("(pc %d, %d args, %d captured)", f.PC, f.Argc, len(f.Regs))
}

func sortedRegs(f checkpoint.FrameSummary) []uint32 {
	regs := make([]uint32, 0, len(f.Regs))
	for r := range f.Regs {
		regs = append(regs, r)
	}
	sort.Slice(regs, func(a, b int) bool { return regs[a] < regs[b] })
	return regs
}
