package browser

import (
	"fmt"
	"io"
	"strings"
)

type screen struct {
	out io.Writer
}

func newScreen(out io.Writer) *screen {
	return &screen{out: out}
}

// Render repaints the whole frame. The cursor stays hidden unless a
// prompt wants it at cursorRow/cursorCol.
func (s *screen) Render(lines []string, cursorRow, cursorCol int, showCursor bool) error {
	if cursorRow < 1 {
		cursorRow = 1
	}
	if cursorCol < 1 {
		cursorCol = 1
	}
	var b strings.Builder
	b.WriteString("\x1b[?25l")
	b.WriteString("\x1b[H\x1b[2J")
	for i, line := range lines {
		if i > 0 {
			b.WriteString("\r\n")
		}
		b.WriteString(line)
	}
	if showCursor {
		b.WriteString(fmt.Sprintf("\x1b[%d;%dH", cursorRow, cursorCol))
		b.WriteString("\x1b[?25h")
	}
	_, err := io.WriteString(s.out, b.String())
	return err
}
