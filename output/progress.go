package output

import (
	"io"

	"github.com/schollz/progressbar/v3"
)

// ConsoleProgress renders collection progress as a bar per phase. A phase
// that reports percentages gets a bounded bar; an indeterminate phase gets a
// spinner. It is not safe for concurrent use.
type ConsoleProgress struct {
	out     io.Writer
	visible bool
	label   string
	bar     *progressbar.ProgressBar
	bounded bool
}

func NewConsoleProgress(out io.Writer, visible bool) *ConsoleProgress {
	return &ConsoleProgress{out: out, visible: visible}
}

func (p *ConsoleProgress) Phase(label string) {
	p.Finish()
	p.label = label
}

func (p *ConsoleProgress) Percent(v int) {
	if p.bar == nil || !p.bounded {
		p.Finish()
		p.bar = progressbar.NewOptions(100,
			progressbar.OptionSetDescription(p.label),
			progressbar.OptionSetWriter(p.out),
			progressbar.OptionSetVisibility(p.visible),
			progressbar.OptionShowCount(),
			progressbar.OptionFullWidth(),
		)
		p.bounded = true
	}
	_ = p.bar.Set(v)
}

func (p *ConsoleProgress) Indeterminate() {
	p.Finish()
	p.bar = progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(p.label),
		progressbar.OptionSetWriter(p.out),
		progressbar.OptionSetVisibility(p.visible),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionFullWidth(),
	)
	p.bounded = false
	_ = p.bar.Add(1)
}

// Finish completes the current bar, if any.
func (p *ConsoleProgress) Finish() {
	if p.bar == nil {
		return
	}
	_ = p.bar.Finish()
	if p.visible {
		io.WriteString(p.out, "\n")
	}
	p.bar = nil
}
