// Package report renders the discovered station and the event journal for
// people and for scripts.
//
// Text output is styled with lipgloss. Styles degrade to plain text when the
// destination is not a color terminal, so the same output pipes cleanly.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/daviddao/airlock/pkg/cycle"
	"github.com/daviddao/airlock/pkg/device"
	"github.com/daviddao/airlock/pkg/inventory"
	"github.com/daviddao/airlock/pkg/model"
)

// Printer formats reports for one output stream.
type Printer struct {
	title lipgloss.Style
	label lipgloss.Style
	warn  lipgloss.Style
	dim   lipgloss.Style
}

// NewPrinter returns a printer styled for w's color capabilities.
func NewPrinter(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		title: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF")),
		label: r.NewStyle().Bold(true),
		warn:  r.NewStyle().Foreground(lipgloss.Color("#FF6B6B")),
		dim:   r.NewStyle().Foreground(lipgloss.Color("#888888")),
	}
}

// Summary is the per-airlock count overview.
func (p *Printer) Summary(inv *inventory.Inventory) string {
	var sb strings.Builder
	sb.WriteString(p.title.Render("[Discovery Summary]"))
	sb.WriteByte('\n')
	if len(inv.IDs()) == 0 {
		sb.WriteString(p.dim.Render("no airlocks tagged"))
		sb.WriteByte('\n')
	}
	for _, al := range inv.Airlocks() {
		fmt.Fprintf(&sb, " - %s: Inner=%d, Outer=%d, Vents=%d, ButtonsInner=%d, ButtonsOuter=%d, "+
			"SensorsInner=%d, SensorsOuter=%d, Lights=%d, ProcessTanks=%d\n",
			p.label.Render(al.ID), len(al.Inner), len(al.Outer), len(al.Vents),
			len(al.ButtonsInner), len(al.ButtonsOuter), len(al.SensorsInner), len(al.SensorsOuter),
			len(al.Lights), len(al.ProcessTanks))
	}
	sb.WriteByte('\n')
	fmt.Fprintf(&sb, "BaseTanks=%d, O2H2=%d\n", len(inv.BaseTanks()), len(inv.Generators()))
	fmt.Fprintf(&sb, "AutoCloseDoors=%d\n", len(inv.AutoClose()))
	return sb.String()
}

// Details lists the block names behind every count.
func (p *Printer) Details(inv *inventory.Inventory) string {
	var sb strings.Builder
	sb.WriteString(p.title.Render("[Discovery Details]"))
	sb.WriteByte('\n')
	for _, al := range inv.Airlocks() {
		sb.WriteString("> " + p.label.Render(al.ID) + "\n")
		p.names(&sb, "  Inner", blocks(al.Inner))
		p.names(&sb, "  Outer", blocks(al.Outer))
		p.names(&sb, "  Vents", blocks(al.Vents))
		p.names(&sb, "  ButtonsInner", al.ButtonsInner)
		p.names(&sb, "  ButtonsOuter", al.ButtonsOuter)
		p.names(&sb, "  SensorsInner", al.SensorsInner)
		p.names(&sb, "  SensorsOuter", al.SensorsOuter)
		p.names(&sb, "  Lights", blocks(al.Lights))
		p.names(&sb, "  ProcessTanks", blocks(al.ProcessTanks))
		sb.WriteByte('\n')
	}
	p.names(&sb, "BaseTanks", blocks(inv.BaseTanks()))
	p.names(&sb, "O2H2", blocks(inv.Generators()))
	var auto []string
	for _, d := range inv.AutoClose() {
		auto = append(auto, fmt.Sprintf("%s (%d ticks)", d.Door.Name(), d.LimitTicks))
	}
	p.list(&sb, "AutoCloseDoors", auto)
	return sb.String()
}

func (p *Printer) names(sb *strings.Builder, label string, bs []device.Block) {
	p.list(sb, label, nameList(bs))
}

func (p *Printer) list(sb *strings.Builder, label string, items []string) {
	fmt.Fprintf(sb, "%s (%d): ", label, len(items))
	if len(items) == 0 {
		sb.WriteString(p.dim.Render("(none)"))
	} else {
		sb.WriteString(strings.Join(items, ", "))
	}
	sb.WriteByte('\n')
}

func blocks[T device.Block](xs []T) []device.Block {
	out := make([]device.Block, len(xs))
	for i, x := range xs {
		out[i] = x
	}
	return out
}

// Events renders journal entries one per line. Warning kinds are
// highlighted.
func (p *Printer) Events(events []model.Event) string {
	if len(events) == 0 {
		return p.dim.Render("no events") + "\n"
	}
	var sb strings.Builder
	for _, e := range events {
		line := fmt.Sprintf("%8d  %-18s", e.Tick, e.Kind)
		if e.Kind.Warning() {
			line = p.warn.Render(line)
		}
		sb.WriteString(line)
		if e.Airlock != "" {
			sb.WriteString("  " + p.label.Render(e.Airlock))
		}
		if e.Phase != "" {
			sb.WriteString("  " + e.Phase)
		}
		if e.Body != "" {
			sb.WriteString("  " + e.Body)
		}
		if e.CycleID != "" {
			sb.WriteString("  " + p.dim.Render(short(e.CycleID)))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Cycle is the one-line outcome of a finished or running cycle.
func (p *Printer) Cycle(s cycle.Status, ticks int) string {
	return fmt.Sprintf("%s %s %s in %d ticks (o2=%.3f, tank %s at %.3f)\n",
		p.label.Render(s.Airlock), s.Direction, s.Phase, ticks, s.Oxygen, s.Tank, s.TankFill)
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
