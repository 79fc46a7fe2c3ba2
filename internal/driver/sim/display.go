package sim

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/readtrack/readtrack-device/internal/driver"
)

// sparkGlyphs render the trend history as a sparkline.
var sparkGlyphs = []rune("▁▂▃▄▅▆▇█")

// TerminalDisplay renders the device screen as a bordered terminal panel.
type TerminalDisplay struct {
	mu  sync.Mutex
	out io.Writer

	panel  lipgloss.Style
	title  lipgloss.Style
	state  lipgloss.Style
	dim    lipgloss.Style
	notice lipgloss.Style
}

// NewTerminalDisplay creates a display writing frames to out.
func NewTerminalDisplay(out io.Writer) *TerminalDisplay {
	return &TerminalDisplay{
		out: out,
		panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1).
			Width(44),
		title:  lipgloss.NewStyle().Bold(true),
		state:  lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		dim:    lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		notice: lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true),
	}
}

// Render draws one frame.
func (d *TerminalDisplay) Render(vm driver.ViewModel) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var b strings.Builder

	name := vm.BookName
	if name == "" {
		name = "(no book)"
	}
	b.WriteString(d.title.Render(name))
	b.WriteByte('\n')
	b.WriteString(d.state.Render(vm.State))
	b.WriteByte('\n')

	fmt.Fprintf(&b, "session %s / %s\n",
		formatSeconds(vm.ElapsedSeconds),
		formatSeconds(vm.TargetSeconds))
	if vm.RestSeconds > 0 {
		fmt.Fprintf(&b, "resting %s\n", formatSeconds(vm.RestSeconds))
	}

	b.WriteString(d.dim.Render(sparkline(vm.Trend)))
	b.WriteByte('\n')
	b.WriteString(d.dim.Render(fmt.Sprintf("light %.0f  library %d/%d  lifetime %s",
		vm.Smoothed, vm.LibraryUsed, vm.LibraryCap, formatSeconds(vm.LifetimeSecs))))

	if vm.Notice != "" {
		b.WriteByte('\n')
		b.WriteString(d.notice.Render("! " + vm.Notice))
	}

	_, err := fmt.Fprintln(d.out, d.panel.Render(b.String()))
	return err
}

// sparkline maps samples (0..4095) onto block glyphs.
func sparkline(samples []int) string {
	if len(samples) == 0 {
		return ""
	}
	var b strings.Builder
	for _, s := range samples {
		idx := s * (len(sparkGlyphs) - 1) / 4095
		if idx < 0 {
			idx = 0
		}
		if idx >= len(sparkGlyphs) {
			idx = len(sparkGlyphs) - 1
		}
		b.WriteRune(sparkGlyphs[idx])
	}
	return b.String()
}

// formatSeconds renders mm:ss.
func formatSeconds(s int64) string {
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}
