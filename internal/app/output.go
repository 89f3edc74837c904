package app

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mmcdole/crate/internal/domain"
)

const maxBarWidth = 40

// printer writes command output. Progress is drawn as a bar on terminals
// and as one line per page otherwise. Color is only used on terminals.
type printer struct {
	out   io.Writer
	err   io.Writer
	tty   bool
	color bool
	width int

	bar      progress.Model
	drawn    bool
	lastPage int
}

func newPrinter(cmd *cobra.Command, noColor bool) *printer {
	p := &printer{out: cmd.OutOrStdout(), err: cmd.ErrOrStderr(), width: 80}
	if f, ok := p.out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.tty = true
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			p.width = w
		}
	}
	p.color = p.tty && !noColor
	p.bar = progress.New(progress.WithDefaultGradient(), progress.WithWidth(min(maxBarWidth, max(p.width-24, 10))))
	return p
}

// paint applies attrs to s when the printer uses color.
func (p *printer) paint(s string, attrs ...color.Attribute) string {
	if !p.color {
		return s
	}
	c := color.New(attrs...)
	c.EnableColor()
	return c.Sprint(s)
}

// ok prints a green success line.
func (p *printer) ok(format string, a ...any) {
	fmt.Fprintln(p.out, p.paint("✓", color.FgGreen), fmt.Sprintf(format, a...))
}

// warn prints a yellow warning line.
func (p *printer) warn(format string, a ...any) {
	fmt.Fprintln(p.err, p.paint("!", color.FgYellow), fmt.Sprintf(format, a...))
}

// header prints a cyan section heading.
func (p *printer) header(format string, a ...any) {
	fmt.Fprintln(p.out, p.paint(fmt.Sprintf(format, a...), color.FgCyan))
}

func (p *printer) line(format string, a ...any) {
	fmt.Fprintf(p.out, format+"\n", a...)
}

// progress reports one polled refresh state.
func (p *printer) progress(prog domain.SyncProgress) {
	if prog.Status.Terminal() {
		p.endProgress()
		return
	}
	if prog.CurrentPage == p.lastPage && p.drawn {
		return
	}
	p.lastPage = prog.CurrentPage

	label := fmt.Sprintf("page %d of %s", prog.CurrentPage, totalLabel(prog.TotalPages))
	if !p.tty {
		p.line("  %s", label)
		p.drawn = true
		return
	}
	pct := 0.0
	if prog.TotalPages > 0 {
		pct = float64(prog.CurrentPage) / float64(prog.TotalPages)
	}
	fmt.Fprintf(p.out, "\r%s %s", p.bar.ViewAs(pct), label)
	p.drawn = true
}

func (p *printer) endProgress() {
	if p.drawn && p.tty {
		fmt.Fprintln(p.out)
	}
	p.drawn = false
	p.lastPage = 0
}

func totalLabel(total int) string {
	if total <= 0 {
		return "?"
	}
	return fmt.Sprint(total)
}

// status colors a cache status for display.
func (p *printer) status(s domain.CacheStatus) string {
	switch s {
	case domain.CacheValid:
		return p.paint(string(s), color.FgGreen)
	case domain.CachePartiallyExpired:
		return p.paint(string(s), color.FgYellow)
	case domain.CacheExpired:
		return p.paint(string(s), color.FgRed)
	default:
		return p.paint(string(s), color.FgHiBlack)
	}
}

// since formats a timestamp relative to now.
func since(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t).Round(time.Second)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
