package integration_test

import (
	"bufio"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	gliderssh "github.com/gliderlabs/ssh"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"pkt.systems/pslog"

	"pkt.systems/spyglass/browser"
	"pkt.systems/spyglass/core"
	"pkt.systems/spyglass/internal/persist"
	"pkt.systems/spyglass/internal/sftpfs"
	"pkt.systems/spyglass/internal/sshclient"
	"pkt.systems/spyglass/schema"
)

func TestBrowseDownloadAndFileOps(t *testing.T) {
	requireLong(t)
	stack := newStack(t)
	defer stack.close()

	root := stack.root
	writeFile(t, filepath.Join(root, "hello.txt"), "hello from the edge")

	done := stack.start(t)
	waitForOutput(t, stack.term.out, "hello.txt")

	// The listing starts on the parent entry; step down to the file.
	stack.sendKeys("j")
	stack.sendKeys("d")
	waitForOutput(t, stack.term.out, "Downloaded:")
	data, err := os.ReadFile(filepath.Join(stack.downloads, "hello.txt"))
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if string(data) != "hello from the edge" {
		t.Fatalf("unexpected download content %q", data)
	}

	stack.sendKeys("n")
	waitForOutput(t, stack.term.out, "new directory name:")
	stack.sendKeys("reports\r")
	waitForOutput(t, stack.term.out, "Created: reports")
	if fi, err := os.Stat(filepath.Join(root, "reports")); err != nil || !fi.IsDir() {
		t.Fatalf("expected reports directory on disk, got %v %v", fi, err)
	}

	local := filepath.Join(t.TempDir(), "upload.bin")
	writeFile(t, local, "payload bytes")
	stack.sendKeys("u")
	waitForOutput(t, stack.term.out, "upload local file:")
	stack.sendKeys(local + "\r")
	waitForOutput(t, stack.term.out, "Uploaded: upload.bin")
	remoteData, err := os.ReadFile(filepath.Join(root, "upload.bin"))
	if err != nil || string(remoteData) != "payload bytes" {
		t.Fatalf("expected uploaded file on disk, got %q %v", remoteData, err)
	}

	stack.sendKeys("r")
	waitForOutput(t, stack.term.out, "rename to:")
	stack.sendKeys("\x15")
	stack.sendKeys("renamed.bin\r")
	waitForOutput(t, stack.term.out, "Renamed: upload.bin to renamed.bin")
	if _, err := os.Stat(filepath.Join(root, "renamed.bin")); err != nil {
		t.Fatalf("expected renamed file on disk: %v", err)
	}

	stack.sendKeys("x")
	waitForOutput(t, stack.term.out, "delete renamed.bin? y/N:")
	stack.sendKeys("y")
	waitForOutput(t, stack.term.out, "Deleted: renamed.bin")
	if _, err := os.Stat(filepath.Join(root, "renamed.bin")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected renamed.bin removed, got %v", err)
	}

	stack.sendKeys("q")
	if err := awaitRun(t, done); err != nil {
		t.Fatalf("expected clean quit, got %v", err)
	}

	state, ok, err := stack.states.Load(stack.username, stack.host, stack.port)
	if err != nil || !ok {
		t.Fatalf("expected saved session state, got %v %v", ok, err)
	}
	if state.CurrentPath != root {
		t.Fatalf("expected saved path %q, got %q", root, state.CurrentPath)
	}
}

func TestShellToggleRoundTripWithReplay(t *testing.T) {
	requireLong(t)
	stack := newStack(t)
	defer stack.close()
	writeFile(t, filepath.Join(stack.root, "marker.txt"), "x")

	done := stack.start(t)
	waitForOutput(t, stack.term.out, "marker.txt")

	stack.sendKeys("\x13")
	waitForOutput(t, stack.term.out, "shell ready")
	stack.sendKeys("pwd\n")
	waitForOutput(t, stack.term.out, "echo:pwd")

	commands := stack.rec.all()
	if len(commands) != 1 || !strings.Contains(commands[0], "cd "+stack.root) {
		t.Fatalf("expected login shell rooted at %q, got %v", stack.root, commands)
	}

	// Ask for delayed output, then background the shell before it lands.
	stack.sendKeys("slow\n")
	stack.sendKeys("\x13")
	waitForOutput(t, stack.term.out, "[shell]")
	if strings.Contains(stack.term.out.String(), "late:done") {
		t.Fatalf("expected delayed output to be withheld while backgrounded")
	}
	time.Sleep(1200 * time.Millisecond)
	if strings.Contains(stack.term.out.String(), "late:done") {
		t.Fatalf("expected delayed output buffered, not rendered")
	}

	stack.sendKeys("\x13")
	waitForOutput(t, stack.term.out, "late:done")

	stack.sendKeys("exit\n")
	waitForOutput(t, stack.term.out, "shell exited")

	// The exited session is gone; the next toggle spawns a fresh shell.
	stack.sendKeys("\x13")
	waitFor(t, "second shell spawn", func() bool {
		return len(stack.rec.all()) == 2
	})
	waitFor(t, "second banner", func() bool {
		return strings.Count(stack.term.out.String(), "shell ready") == 2
	})
	stack.sendKeys("exit\n")
	waitFor(t, "second exit status", func() bool {
		return strings.Count(stack.term.out.String(), "shell exited") == 2
	})

	stack.sendKeys("q")
	if err := awaitRun(t, done); err != nil {
		t.Fatalf("expected clean quit, got %v", err)
	}
	if stack.term.passes() != 3 {
		t.Fatalf("expected three passthrough visits, got %d", stack.term.passes())
	}
}

func TestTransportDeathEndsBrowser(t *testing.T) {
	requireLong(t)
	stack := newStack(t)
	defer stack.close()
	writeFile(t, filepath.Join(stack.root, "a.txt"), "x")

	done := stack.start(t)
	waitForOutput(t, stack.term.out, "a.txt")

	_ = stack.srv.Close()

	err := awaitRun(t, done)
	if !errors.Is(err, schema.ErrTransport) {
		t.Fatalf("expected ErrTransport after server close, got %v", err)
	}
}

// stack wires the real client components against an in-process SSH
// server that serves a scripted PTY shell and the sftp subsystem over
// the test host's filesystem.
type stack struct {
	srv       *gliderssh.Server
	client    *sshclient.Client
	files     *sftpfs.Client
	states    *persist.SessionStateStore
	term      *scriptTerminal
	rec       *commandRecorder
	b         *browser.Browser
	root      string
	downloads string
	host      string
	port      int
	username  string
	cancel    context.CancelFunc
}

func newStack(t *testing.T) *stack {
	t.Helper()
	log := testLogger()

	signer := generateSigner(t)
	rec := &commandRecorder{}
	srv, addr := startServer(t, signer.PublicKey(), rec)

	host, port := splitAddr(t, addr)
	ctx, cancel := context.WithCancel(context.Background())
	client, err := sshclient.Dial(ctx, sshclient.Config{
		Host:                  host,
		Port:                  port,
		Username:              "demo",
		Signers:               []ssh.Signer{signer},
		InsecureIgnoreHostKey: true,
		Logger:                log,
	})
	if err != nil {
		cancel()
		t.Fatalf("dial: %v", err)
	}

	files, err := sftpfs.NewWithLogger(client.SSH(), log)
	if err != nil {
		cancel()
		t.Fatalf("sftp client: %v", err)
	}

	states, err := persist.NewSessionStateStore(t.TempDir())
	if err != nil {
		cancel()
		t.Fatalf("state store: %v", err)
	}

	term := newScriptTerminal()
	controller, err := core.NewController(schema.ShellConfig{BufferBytes: 4096}, core.ControllerDeps{
		Transport: client,
		Terminal:  term,
		Logger:    log,
	})
	if err != nil {
		cancel()
		t.Fatalf("controller: %v", err)
	}

	s := &stack{
		srv:       srv,
		client:    client,
		files:     files,
		states:    states,
		term:      term,
		rec:       rec,
		root:      t.TempDir(),
		downloads: t.TempDir(),
		host:      host,
		port:      port,
		username:  "demo",
		cancel:    cancel,
	}
	s.b = &browser.Browser{
		Terminal:    term,
		FS:          files,
		Shell:       controller,
		Conn:        client,
		States:      states,
		Logger:      log,
		Host:        host,
		Port:        port,
		Username:    "demo",
		InitialPath: s.root,
		DownloadDir: s.downloads,
		DirsFirst:   true,
	}
	return s
}

func (s *stack) start(t *testing.T) chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- s.b.Run(context.Background()) }()
	return done
}

func (s *stack) sendKeys(keys string) {
	s.term.input <- []byte(keys)
}

func (s *stack) close() {
	s.cancel()
	_ = s.files.Close()
	_ = s.client.Close()
	_ = s.srv.Close()
}

func startServer(t *testing.T, clientKey ssh.PublicKey, rec *commandRecorder) (*gliderssh.Server, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	hostSigner := generateSigner(t)
	srv := &gliderssh.Server{
		Handler: shellHandler(rec),
		PublicKeyHandler: func(ctx gliderssh.Context, key gliderssh.PublicKey) bool {
			return gliderssh.KeysEqual(key, clientKey)
		},
		SubsystemHandlers: map[string]gliderssh.SubsystemHandler{
			"sftp": func(sess gliderssh.Session) {
				server, err := sftp.NewServer(sess)
				if err != nil {
					return
				}
				_ = server.Serve()
			},
		},
	}
	srv.AddHostKey(hostSigner)
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Close() })
	return srv, ln.Addr().String()
}

// shellHandler scripts a tiny interactive shell: it banners, echoes
// lines, serves one delayed line on request, and exits on demand.
func shellHandler(rec *commandRecorder) gliderssh.Handler {
	return func(sess gliderssh.Session) {
		_, _, isPty := sess.Pty()
		if !isPty {
			_, _ = io.WriteString(sess, "pty required\n")
			_ = sess.Exit(1)
			return
		}
		rec.record(sess.RawCommand())
		_, _ = io.WriteString(sess, "shell ready\r\n")
		scanner := bufio.NewScanner(sess)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			switch line {
			case "exit":
				return
			case "slow":
				time.Sleep(750 * time.Millisecond)
				_, _ = io.WriteString(sess, "late:done\r\n")
			default:
				_, _ = fmt.Fprintf(sess, "echo:%s\r\n", line)
			}
		}
	}
}

type commandRecorder struct {
	mu       sync.Mutex
	commands []string
}

func (r *commandRecorder) record(cmd string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, cmd)
}

func (r *commandRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.commands...)
}

// scriptTerminal stands in for the local console: buffered input
// chunks, captured output, and a passthrough counter.
type scriptTerminal struct {
	out     *lockedBuffer
	input   chan []byte
	resizes chan schema.TerminalGeometry

	mu        sync.Mutex
	passCount int
}

func newScriptTerminal() *scriptTerminal {
	return &scriptTerminal{
		out:     &lockedBuffer{},
		input:   make(chan []byte, 32),
		resizes: make(chan schema.TerminalGeometry, 1),
	}
}

func (s *scriptTerminal) EnterPassthrough() (func(), error) {
	s.mu.Lock()
	s.passCount++
	s.mu.Unlock()
	return func() {}, nil
}

func (s *scriptTerminal) Geometry() (schema.TerminalGeometry, error) {
	return schema.TerminalGeometry{Cols: 120, Rows: 40}, nil
}

func (s *scriptTerminal) InputChunks() <-chan []byte              { return s.input }
func (s *scriptTerminal) Resizes() <-chan schema.TerminalGeometry { return s.resizes }
func (s *scriptTerminal) Output() io.Writer                       { return s.out }

func (s *scriptTerminal) passes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.passCount
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (w *lockedBuffer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *lockedBuffer) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func generateSigner(t *testing.T) ssh.Signer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	return signer
}

func splitAddr(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split addr: %v", err)
	}
	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		t.Fatalf("parse port: %v", err)
	}
	return host, port
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}

func awaitRun(t *testing.T, done chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatalf("browser run did not return")
		return nil
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitForOutput(t *testing.T, out *lockedBuffer, want string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(out.String(), want) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected output to contain %q, got %q", want, out.String())
}

func requireLong(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
}

func testLogger() pslog.Logger {
	return pslog.NewWithOptions(io.Discard, pslog.Options{Mode: pslog.ModeStructured, NoColor: true})
}
