package browser

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"pkt.systems/spyglass/schema"
)

const (
	minFrameCols = 20
	minFrameRows = 6

	modeColumn = 10
	sizeColumn = 9
)

func (b *Browser) renderLines() (lines []string, cursorRow, cursorCol int, showCursor bool) {
	width, height := b.frameSize()
	theme := b.theme

	lines = make([]string, 0, height)
	lines = append(lines, b.renderHeader(width))
	pathStyle := ansiFgRGB(theme.PathFG)
	lines = append(lines, clipLine(" "+pathStyle+b.path+ansiReset, width))
	hint := " enter open  bksp up  d download  u upload  n mkdir  r rename  x delete  ^S shell  q quit"
	lines = append(lines, clipLine(ansiDim+ansiFgRGB(theme.HintFG)+hint+ansiReset, width))

	viewport := height - 4
	if viewport < 1 {
		viewport = 1
	}
	b.ensureVisible(viewport)
	for i := 0; i < viewport; i++ {
		idx := b.windowStart + i
		if idx >= len(b.entries) {
			lines = append(lines, "")
			continue
		}
		lines = append(lines, b.renderEntryRow(b.entries[idx], idx == b.selected, width))
	}

	statusLine, col, prompting := b.renderStatusLine(width)
	lines = append(lines, statusLine)
	if prompting {
		return lines, height, col, true
	}
	return lines, 1, 1, false
}

func (b *Browser) renderHeader(width int) string {
	theme := b.theme
	style := ansiBgRGB(theme.HeaderBG) + ansiFgRGB(theme.HeaderFG)
	left := " spyglass " + ansiBold + b.address() + ansiReset + style
	tag := ""
	if b.Shell != nil && b.Shell.HasBackgroundShell() {
		tag = ansiFgRGB(theme.ShellTagFG) + ansiBold + "[shell] " + ansiReset + style
	}
	line := style + left
	pad := width - visibleWidth(left) - visibleWidth(tag)
	if pad > 0 {
		line += strings.Repeat(" ", pad)
	}
	line += tag
	return trimANSIToWidth(line, width) + ansiReset
}

func (b *Browser) renderEntryRow(e schema.FileEntry, selected bool, width int) string {
	theme := b.theme

	mode := e.Mode
	size := humanSize(e.Size)
	name := e.Name
	if e.IsDir {
		size = "<DIR>"
		if name != ".." {
			name += "/"
		}
	}
	if e.Name == ".." {
		mode = ""
	}

	detail := fmt.Sprintf(" %-*s %*s ", modeColumn, mode, sizeColumn, size)

	if selected {
		style := ansiBgRGB(theme.SelectedBG) + ansiFgRGB(theme.SelectedFG)
		line := style + detail + ansiBold + name + ansiReset + style
		if pad := width - visibleWidth(detail) - visibleWidth(name); pad > 0 {
			line += strings.Repeat(" ", pad)
		}
		return trimANSIToWidth(line, width) + ansiReset
	}

	nameStyle := ansiFgRGB(theme.FileFG)
	if e.IsDir {
		nameStyle = ansiFgRGB(theme.DirFG) + ansiBold
	}
	line := ansiFgRGB(theme.DetailFG) + detail + ansiReset + nameStyle + name + ansiReset
	return trimANSIToWidth(line, width)
}

// renderStatusLine renders the bottom row. col is the 1-based cursor
// column when a prompt is active.
func (b *Browser) renderStatusLine(width int) (line string, col int, prompting bool) {
	theme := b.theme
	if b.prompt != nil {
		prefix := " " + b.prompt.label
		line = ansiFgRGB(theme.PromptFG) + ansiBold + prefix + ansiReset + b.prompt.editor.String()
		col = utf8.RuneCountInString(prefix) + b.prompt.editor.Cursor() + 1
		return clipLine(line, width), col, true
	}
	if b.status == "" {
		return "", 1, false
	}
	style := ansiFgRGB(theme.StatusFG)
	if b.statusIsError {
		style = ansiFgRGB(theme.ErrorFG) + ansiBold
	}
	return clipLine(" "+style+b.status+ansiReset, width), 1, false
}

func (b *Browser) frameSize() (width, height int) {
	width = b.geometry.Cols
	height = b.geometry.Rows
	if width < minFrameCols {
		width = minFrameCols
	}
	if height < minFrameRows {
		height = minFrameRows
	}
	return width, height
}

// ensureVisible scrolls the list window so the selection stays inside
// the viewport.
func (b *Browser) ensureVisible(viewport int) {
	if b.selected < 0 {
		b.selected = 0
	}
	if len(b.entries) == 0 {
		b.selected = 0
		b.windowStart = 0
		return
	}
	if b.selected >= len(b.entries) {
		b.selected = len(b.entries) - 1
	}
	if b.selected < b.windowStart {
		b.windowStart = b.selected
	}
	if b.selected >= b.windowStart+viewport {
		b.windowStart = b.selected - viewport + 1
	}
	if b.windowStart < 0 {
		b.windowStart = 0
	}
}

func humanSize(bytes int64) string {
	units := []string{"B", "KB", "MB", "GB", "TB"}
	size := float64(bytes)
	idx := 0
	for size >= 1024 && idx < len(units)-1 {
		size /= 1024
		idx++
	}
	if idx == 0 {
		return fmt.Sprintf("%d %s", bytes, units[0])
	}
	return fmt.Sprintf("%.1f %s", size, units[idx])
}

func clipLine(text string, width int) string {
	if visibleWidth(text) <= width {
		return text
	}
	return trimANSIToWidth(text, width) + ansiReset
}

func visibleWidth(text string) int {
	width := 0
	for i := 0; i < len(text); {
		if text[i] == 0x1b {
			i = skipEscape(text, i+1)
			continue
		}
		_, size := utf8.DecodeRuneInString(text[i:])
		if size == 0 {
			break
		}
		i += size
		width++
	}
	return width
}

func trimANSIToWidth(text string, width int) string {
	if width <= 0 {
		return ""
	}
	var b strings.Builder
	visible := 0
	for i := 0; i < len(text); {
		if text[i] == 0x1b {
			start := i
			i = skipEscape(text, i+1)
			b.WriteString(text[start:i])
			continue
		}
		if visible >= width {
			break
		}
		r, size := utf8.DecodeRuneInString(text[i:])
		if size == 0 {
			break
		}
		b.WriteRune(r)
		i += size
		visible++
	}
	return b.String()
}

func skipEscape(text string, i int) int {
	if i >= len(text) {
		return i
	}
	switch text[i] {
	case '[':
		return skipCSI(text, i+1)
	case ']':
		return skipOSC(text, i+1)
	default:
		return i + 1
	}
}

func skipCSI(text string, i int) int {
	for i < len(text) {
		b := text[i]
		if b >= 0x40 && b <= 0x7e {
			return i + 1
		}
		i++
	}
	return i
}

func skipOSC(text string, i int) int {
	for i < len(text) {
		switch text[i] {
		case 0x07:
			return i + 1
		case 0x1b:
			if i+1 < len(text) && text[i+1] == '\\' {
				return i + 2
			}
		}
		i++
	}
	return i
}
