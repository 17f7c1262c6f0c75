// Package browser implements the structured file browser that fronts a
// spyglass connection: a scrollable remote listing with file
// operations, rendered on the alternate screen, which hands the
// terminal to the shell controller on Ctrl+S and takes it back when the
// visit ends.
package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"pkt.systems/pslog"

	"pkt.systems/spyglass/core"
	"pkt.systems/spyglass/internal/logx"
	"pkt.systems/spyglass/schema"
)

// Terminal is the console surface the browser renders to and reads
// input from.
type Terminal interface {
	Geometry() (schema.TerminalGeometry, error)
	InputChunks() <-chan []byte
	Resizes() <-chan schema.TerminalGeometry
	Output() io.Writer
}

// RemoteFS is the remote file-operation surface.
type RemoteFS interface {
	ReadDir(path string) ([]schema.FileEntry, error)
	Download(remotePath, localPath string) (int64, error)
	Upload(localPath, remotePath string) (int64, error)
	Mkdir(path string) error
	Rename(oldPath, newPath string) error
	Remove(path string, isDir bool) error
}

// ShellToggler hands the terminal to the interactive shell and back.
type ShellToggler interface {
	ToggleShell(ctx context.Context, browsedPath string) (core.ToggleResult, error)
	HasBackgroundShell() bool
}

// ConnectionStatus reports transport death.
type ConnectionStatus interface {
	Done() <-chan struct{}
	Err() error
}

// StateSaver persists per-connection browser state.
type StateSaver interface {
	Save(state schema.SessionState) error
}

// Browser drives the file-browser surface. Populate the exported
// fields and call Run; Terminal and FS are required, the rest are
// optional.
type Browser struct {
	Terminal Terminal
	FS       RemoteFS
	Shell    ShellToggler
	Conn     ConnectionStatus
	States   StateSaver
	Logger   pslog.Logger

	Host     string
	Port     int
	Username string

	InitialPath      string
	InitialSelection int
	DownloadDir      string
	ShowHidden       bool
	DirsFirst        bool
	Theme            string

	log     pslog.Logger
	screen  *screen
	theme   browserTheme
	decoder keyDecoder

	geometry      schema.TerminalGeometry
	path          string
	entries       []schema.FileEntry
	selected      int
	windowStart   int
	status        string
	statusIsError bool
	prompt        *promptState
	dirty         bool
}

type promptKind int

const (
	promptUpload promptKind = iota
	promptMkdir
	promptRename
	promptDelete
)

type promptState struct {
	kind   promptKind
	label  string
	editor lineEditor
	target schema.FileEntry
}

// Run owns the terminal until the user quits, the context is
// cancelled, or the transport dies. Transport death is returned
// wrapped in schema.ErrTransport; a clean quit returns nil.
func (b *Browser) Run(ctx context.Context) error {
	if b.Terminal == nil {
		return errors.New("terminal is required")
	}
	if b.FS == nil {
		return errors.New("remote fs is required")
	}
	b.log = b.Logger
	if b.log == nil {
		b.log = pslog.Ctx(ctx)
	}
	b.screen = newScreen(b.Terminal.Output())
	b.theme = themeForName(b.Theme)

	if geo, err := b.Terminal.Geometry(); err == nil {
		b.geometry = geo
	} else {
		b.geometry = schema.TerminalGeometry{Cols: 80, Rows: 24}
		b.log.Warn("terminal geometry unavailable", "err", err)
	}

	b.path = b.InitialPath
	if b.path == "" {
		b.path = "/"
	}
	b.selected = b.InitialSelection
	if err := b.list(); err != nil {
		// A restored path may no longer exist; fall back to the root
		// rather than stranding the session.
		if b.path != "/" {
			b.log.Warn("restored path unavailable", "path", b.path, "err", err)
			b.path = "/"
			b.selected = 0
			if err := b.list(); err != nil {
				b.setError(fmt.Sprintf("Error: %v", err))
			}
		} else {
			b.setError(fmt.Sprintf("Error: %v", err))
		}
	}
	defer b.saveState()

	b.render()
	b.log.Info("browser session start", "path", b.path, "cols", b.geometry.Cols, "rows", b.geometry.Rows)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-b.connDone():
			return fmt.Errorf("%w: %v", schema.ErrTransport, b.connErr())
		case chunk, ok := <-b.Terminal.InputChunks():
			if !ok {
				return nil
			}
			for _, k := range b.decoder.Feed(chunk) {
				quit, err := b.handleKey(ctx, k)
				if err != nil {
					return err
				}
				if quit {
					return nil
				}
			}
		case geo := <-b.Terminal.Resizes():
			b.geometry = geo
			b.dirty = true
			b.log.Debug("browser resize", "cols", geo.Cols, "rows", geo.Rows)
		}
		if b.dirty {
			b.render()
			b.dirty = false
		}
	}
}

func (b *Browser) handleKey(ctx context.Context, k key) (quit bool, err error) {
	if b.prompt != nil {
		b.handlePromptKey(k)
		return false, nil
	}
	b.dirty = true
	switch k.kind {
	case keyUp:
		b.moveSelection(-1)
	case keyDown:
		b.moveSelection(1)
	case keyPageUp:
		b.moveSelection(-b.pageStride())
	case keyPageDown:
		b.moveSelection(b.pageStride())
	case keyHome:
		b.selected = 0
	case keyEnd:
		b.selected = len(b.entries) - 1
		b.clampSelection()
	case keyEnter:
		b.openSelected()
	case keyBackspace, keyLeft:
		b.ascend()
	case keyDelete:
		b.beginDelete()
	case keyCtrlS:
		return b.toggleShell(ctx)
	case keyCtrlC:
		return true, nil
	case keyRune:
		switch k.r {
		case 'q':
			return true, nil
		case 'k':
			b.moveSelection(-1)
		case 'j':
			b.moveSelection(1)
		case 'h':
			b.ascend()
		case 'd':
			b.download()
		case 'u':
			b.beginPrompt(promptUpload, "upload local file: ", "")
		case 'n':
			b.beginPrompt(promptMkdir, "new directory name: ", "")
		case 'r':
			b.beginRename()
		case 'x':
			b.beginDelete()
		}
	}
	return false, nil
}

func (b *Browser) handlePromptKey(k key) {
	p := b.prompt
	b.dirty = true
	if p.kind == promptDelete {
		b.prompt = nil
		if k.kind == keyRune && (k.r == 'y' || k.r == 'Y') {
			b.deleteEntry(p.target)
			return
		}
		b.setStatus("delete cancelled")
		return
	}
	switch k.kind {
	case keyEnter:
		b.prompt = nil
		b.finishPrompt(p)
	case keyCtrlC:
		b.prompt = nil
		b.clearStatus()
	case keyBackspace:
		p.editor.Backspace()
	case keyDelete:
		p.editor.Delete()
	case keyLeft:
		p.editor.MoveLeft()
	case keyRight:
		p.editor.MoveRight()
	case keyHome:
		p.editor.MoveStart()
	case keyEnd:
		p.editor.MoveEnd()
	case keyCtrlU:
		p.editor.Clear()
	case keyRune:
		p.editor.InsertRune(k.r)
	}
}

func (b *Browser) finishPrompt(p *promptState) {
	value := strings.TrimSpace(p.editor.String())
	if value == "" {
		b.clearStatus()
		return
	}
	switch p.kind {
	case promptUpload:
		b.upload(value)
	case promptMkdir:
		b.mkdir(value)
	case promptRename:
		b.rename(p.target, value)
	}
}

func (b *Browser) toggleShell(ctx context.Context) (quit bool, err error) {
	if b.Shell == nil {
		b.setStatus("shell is not available")
		return false, nil
	}
	res, err := b.Shell.ToggleShell(ctx, b.path)
	b.dirty = true
	if err != nil {
		if errors.Is(err, schema.ErrTransport) {
			return false, err
		}
		if ctx.Err() != nil {
			return true, nil
		}
		b.setError(fmt.Sprintf("Shell error: %v", err))
		return false, nil
	}
	if res.Status != "" {
		b.setStatus(res.Status)
	} else {
		b.clearStatus()
	}
	return false, nil
}

func (b *Browser) openSelected() {
	e, ok := b.selectedEntry()
	if !ok {
		return
	}
	if e.IsDir {
		if e.Name == ".." {
			b.ascend()
			return
		}
		b.descend(path.Join(b.path, e.Name))
		return
	}
	b.setStatus(fmt.Sprintf("file: %s (%s %s)", e.Name, humanSize(e.Size), e.Mode))
}

func (b *Browser) descend(target string) {
	prev, prevSel := b.path, b.selected
	b.path = target
	b.selected = 0
	b.windowStart = 0
	if err := b.list(); err != nil {
		b.path, b.selected = prev, prevSel
		b.setError(fmt.Sprintf("Error: %v", err))
		return
	}
	b.clearStatus()
}

func (b *Browser) ascend() {
	if b.path == "/" {
		return
	}
	b.descend(path.Dir(b.path))
}

func (b *Browser) download() {
	e, ok := b.selectedEntry()
	if !ok || e.Name == ".." {
		return
	}
	if e.IsDir {
		b.setStatus("select a file to download")
		return
	}
	remote := path.Join(b.path, e.Name)
	local := e.Name
	if b.DownloadDir != "" {
		local = filepath.Join(b.DownloadDir, e.Name)
	}
	n, err := b.FS.Download(remote, local)
	if err != nil {
		b.setError(fmt.Sprintf("Download failed: %v", err))
		return
	}
	b.setStatus(fmt.Sprintf("Downloaded: %s (%s)", local, humanSize(n)))
}

func (b *Browser) upload(localPath string) {
	localPath = expandLocalPath(localPath)
	name := filepath.Base(localPath)
	remote := path.Join(b.path, name)
	n, err := b.FS.Upload(localPath, remote)
	if err != nil {
		b.setError(fmt.Sprintf("Upload failed: %v", err))
		return
	}
	b.relist()
	b.selectByName(name)
	b.setStatus(fmt.Sprintf("Uploaded: %s (%s)", name, humanSize(n)))
}

func (b *Browser) mkdir(name string) {
	target := path.Join(b.path, name)
	if err := b.FS.Mkdir(target); err != nil {
		b.setError(fmt.Sprintf("Create failed: %v", err))
		return
	}
	b.relist()
	b.selectByName(name)
	b.setStatus(fmt.Sprintf("Created: %s", name))
}

func (b *Browser) beginRename() {
	e, ok := b.selectedEntry()
	if !ok || e.Name == ".." {
		return
	}
	p := &promptState{kind: promptRename, label: "rename to: ", target: e}
	p.editor.SetString(e.Name)
	b.prompt = p
}

func (b *Browser) rename(target schema.FileEntry, newName string) {
	if newName == target.Name {
		b.clearStatus()
		return
	}
	oldPath := path.Join(b.path, target.Name)
	newPath := path.Join(b.path, newName)
	if err := b.FS.Rename(oldPath, newPath); err != nil {
		b.setError(fmt.Sprintf("Rename failed: %v", err))
		return
	}
	b.relist()
	b.selectByName(newName)
	b.setStatus(fmt.Sprintf("Renamed: %s to %s", target.Name, newName))
}

func (b *Browser) beginDelete() {
	e, ok := b.selectedEntry()
	if !ok || e.Name == ".." {
		return
	}
	b.prompt = &promptState{
		kind:   promptDelete,
		label:  fmt.Sprintf("delete %s? y/N: ", e.Name),
		target: e,
	}
}

func (b *Browser) deleteEntry(e schema.FileEntry) {
	full := path.Join(b.path, e.Name)
	if err := b.FS.Remove(full, e.IsDir); err != nil {
		b.setError(fmt.Sprintf("Delete failed: %v", err))
		return
	}
	b.relist()
	b.setStatus(fmt.Sprintf("Deleted: %s", e.Name))
}

func (b *Browser) beginPrompt(kind promptKind, label, initial string) {
	p := &promptState{kind: kind, label: label}
	if initial != "" {
		p.editor.SetString(initial)
	}
	b.prompt = p
}

func (b *Browser) list() error {
	log := logx.WithPath(b.log, b.path)
	entries, err := b.FS.ReadDir(b.path)
	if err != nil {
		log.Warn("list remote dir", "err", err)
		return err
	}
	b.entries = b.presentEntries(entries)
	b.clampSelection()
	b.dirty = true
	log.Debug("listed remote dir", "entries", len(b.entries))
	return nil
}

func (b *Browser) relist() {
	if err := b.list(); err != nil {
		b.setError(fmt.Sprintf("Error refreshing: %v", err))
	}
}

// presentEntries applies the hidden-file filter and dirs-first order
// and prepends the parent entry outside the root.
func (b *Browser) presentEntries(entries []schema.FileEntry) []schema.FileEntry {
	out := make([]schema.FileEntry, 0, len(entries)+1)
	if b.path != "/" {
		out = append(out, schema.FileEntry{Name: "..", IsDir: true})
	}
	for _, e := range entries {
		if !b.ShowHidden && strings.HasPrefix(e.Name, ".") {
			continue
		}
		out = append(out, e)
	}
	if b.DirsFirst {
		rest := out
		if len(out) > 0 && out[0].Name == ".." {
			rest = out[1:]
		}
		sort.SliceStable(rest, func(i, j int) bool {
			return rest[i].IsDir && !rest[j].IsDir
		})
	}
	return out
}

func (b *Browser) moveSelection(delta int) {
	b.selected += delta
	b.clampSelection()
}

func (b *Browser) clampSelection() {
	if len(b.entries) == 0 {
		b.selected = 0
		b.windowStart = 0
		return
	}
	if b.selected >= len(b.entries) {
		b.selected = len(b.entries) - 1
	}
	if b.selected < 0 {
		b.selected = 0
	}
}

func (b *Browser) selectByName(name string) {
	for i, e := range b.entries {
		if e.Name == name {
			b.selected = i
			return
		}
	}
}

func (b *Browser) selectedEntry() (schema.FileEntry, bool) {
	if b.selected < 0 || b.selected >= len(b.entries) {
		return schema.FileEntry{}, false
	}
	return b.entries[b.selected], true
}

func (b *Browser) pageStride() int {
	_, height := b.frameSize()
	stride := height - 4
	if stride < 1 {
		stride = 1
	}
	return stride
}

func (b *Browser) setStatus(msg string) {
	b.status = msg
	b.statusIsError = false
	b.dirty = true
}

func (b *Browser) setError(msg string) {
	b.status = msg
	b.statusIsError = true
	b.dirty = true
}

func (b *Browser) clearStatus() {
	b.status = ""
	b.statusIsError = false
	b.dirty = true
}

func (b *Browser) render() {
	lines, row, col, show := b.renderLines()
	if err := b.screen.Render(lines, row, col, show); err != nil {
		b.log.Warn("render failed", "err", err)
	}
}

func (b *Browser) address() string {
	return schema.Address(b.Username, b.Host, b.Port)
}

func (b *Browser) saveState() {
	if b.States == nil {
		return
	}
	state := schema.SessionState{
		Host:          b.Host,
		Port:          b.Port,
		Username:      b.Username,
		CurrentPath:   b.path,
		SelectedIndex: b.selected,
	}
	if err := b.States.Save(state); err != nil {
		b.log.Warn("save session state", "err", err)
	}
}

func (b *Browser) connDone() <-chan struct{} {
	if b.Conn == nil {
		return nil
	}
	return b.Conn.Done()
}

func (b *Browser) connErr() error {
	if b.Conn == nil {
		return nil
	}
	return b.Conn.Err()
}

func expandLocalPath(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
