package progress

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// Terminal renders progress as a single rewritten line on w.
type Terminal struct {
	w     io.Writer
	text  string
	total int64
}

// NewTerminal creates a Terminal reporter writing to w.
func NewTerminal(w io.Writer) *Terminal {
	return &Terminal{w: w}
}

func (t *Terminal) Start(text string, total int64) error {
	t.text = text
	t.total = total
	_, err := fmt.Fprintf(t.w, "%s", text)
	return err
}

func (t *Terminal) Update(n int64) error {
	if t.total <= 0 {
		return nil
	}
	_, err := fmt.Fprintf(t.w, "\r%s %3d%%", t.text, percent(n, t.total))
	return err
}

func (t *Terminal) End(n int64) error {
	ok := color.New(color.FgGreen).Sprint("✓")
	if t.total > 0 {
		_, err := fmt.Fprintf(t.w, "\r%s %3d%% %s\n", t.text, percent(n, t.total), ok)
		return err
	}
	_, err := fmt.Fprintf(t.w, " %s\n", ok)
	return err
}

func percent(n, total int64) int64 {
	if total <= 0 {
		return 0
	}
	p := n * 100 / total
	if p > 100 {
		p = 100
	}
	if p < 0 {
		p = 0
	}
	return p
}
