package cliui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/TencentCloudADP/adp-chat-client/pkg/reconcile"
	"github.com/TencentCloudADP/adp-chat-client/pkg/record"
)

// TurnPrinter writes a streamed turn to a terminal as it evolves. It is fed
// successive snapshots of one turn and prints only what changed: new or
// updated reasoning steps as status lines, then reply text as it grows.
type TurnPrinter struct {
	w     io.Writer
	plain bool

	steps   []string
	content string
}

// NewTurnPrinter creates a printer. With plain set no styling is applied,
// for output that is not a terminal.
func NewTurnPrinter(w io.Writer, plain bool) *TurnPrinter {
	return &TurnPrinter{w: w, plain: plain}
}

// Update prints the difference between snap and the previous snapshot.
func (p *TurnPrinter) Update(snap reconcile.Snapshot) {
	if t := snap.Record.AgentThought; t != nil {
		for i, proc := range t.Procedures {
			line := p.stepLine(proc)
			if i < len(p.steps) && p.steps[i] == line {
				continue
			}
			if i < len(p.steps) {
				p.steps[i] = line
			} else {
				p.steps = append(p.steps, line)
			}
			fmt.Fprintln(p.w, line)
		}
	}

	content := snap.Record.Content
	switch {
	case content == p.content:
	case strings.HasPrefix(content, p.content):
		fmt.Fprint(p.w, content[len(p.content):])
	default:
		// Replaced rather than extended.
		if p.content != "" {
			fmt.Fprintln(p.w)
		}
		fmt.Fprint(p.w, content)
	}
	p.content = content
}

// Finish terminates the reply and prints citations and usage.
func (p *TurnPrinter) Finish(snap reconcile.Snapshot) {
	if p.content != "" {
		fmt.Fprintln(p.w)
	}

	for i, ref := range snap.Record.References {
		fmt.Fprintf(p.w, "%s %s\n", p.style(StepStyle, fmt.Sprintf("[%d]", i+1)), referenceLabel(ref))
	}

	if ts := snap.Record.TokenStat; ts != nil && ts.TokenCount > 0 {
		fmt.Fprintln(p.w, p.style(StepStyle, fmt.Sprintf("%d tokens, %s", ts.TokenCount, FormatDuration(msDuration(ts.Elapsed)))))
	}
}

// Error prints a failure line.
func (p *TurnPrinter) Error(err error) {
	if p.content != "" {
		fmt.Fprintln(p.w)
		p.content = ""
	}
	fmt.Fprintf(p.w, "%s %s\n", p.mark(err), p.style(ErrorStyle, err.Error()))
}

func (p *TurnPrinter) stepLine(proc record.Procedure) string {
	title := proc.Title
	if title == "" {
		title = proc.Name
	}
	mark := "·"
	switch proc.Status {
	case "success":
		mark = p.mark(nil)
	case "failed":
		mark = p.mark(fmt.Errorf("failed"))
	}
	return fmt.Sprintf("  %s %s", mark, p.style(StepStyle, title))
}

func (p *TurnPrinter) mark(err error) string {
	if p.plain {
		if err != nil {
			return "x"
		}
		return "v"
	}
	return Mark(err)
}

func (p *TurnPrinter) style(s lipgloss.Style, text string) string {
	if p.plain {
		return text
	}
	return s.Render(text)
}

func referenceLabel(ref record.Reference) string {
	switch {
	case ref.Name != "" && ref.URL != "":
		return ref.Name + " " + ref.URL
	case ref.Name != "":
		return ref.Name
	default:
		return ref.URL
	}
}

func msDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
