package output

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"unicode"

	"pkgcheck/scanner"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// ColorEnabled reports whether f is a terminal that should receive colors.
func ColorEnabled(f *os.File, noColor bool) bool {
	if noColor || os.Getenv("NO_COLOR") != "" {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Table prints the visible records and the status line.
type Table struct {
	out       io.Writer
	highlight *color.Color
	status    *color.Color
}

func NewTable(out io.Writer, colorize bool) *Table {
	t := &Table{
		out:       out,
		highlight: color.New(color.FgYellow, color.Bold),
		status:    color.New(color.Faint),
	}
	if colorize {
		t.highlight.EnableColor()
		t.status.EnableColor()
	} else {
		t.highlight.DisableColor()
		t.status.DisableColor()
	}
	return t
}

func (t *Table) Render(records []scanner.FileRecord, status string) error {
	// Align first, then color whole lines, so escape codes do not skew
	// column widths.
	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, " \tFILE PATH\tFILE VERSION\tPRODUCT VERSION\tSIGNATURE")
	for _, r := range records {
		mark := " "
		if r.Highlighted {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", mark, cell(r.FilePath), cell(r.FileVersion), cell(r.ProductVersion), cell(r.Signature))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	// cell keeps every record on exactly one line.
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	for i, line := range lines {
		if i > 0 && i <= len(records) && records[i-1].Highlighted {
			line = t.highlight.Sprint(line)
		}
		if _, err := fmt.Fprintln(t.out, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(t.out, t.status.Sprint(status))
	return err
}

// cell fills empty fields with a dash and quotes values holding control
// characters, which would otherwise break rows or columns.
func cell(s string) string {
	if s == "" {
		return "-"
	}
	if strings.IndexFunc(s, func(r rune) bool { return !unicode.IsPrint(r) }) >= 0 {
		return strconv.Quote(s)
	}
	return s
}
