package core

import (
	"context"
	"errors"
	"testing"

	"pkt.systems/spyglass/schema"
)

func startSession(t *testing.T, fc *fakeChannel, term *fakeTerminal, cfg schema.ShellConfig) *shellSession {
	t.Helper()
	tr := newFakeTransport(fc)
	s, err := spawnShell(tr, term, schema.NormalizeShellConfig(cfg), schema.TerminalGeometry{Cols: 100, Rows: 30}, "/home/u", testLogger())
	if err != nil {
		t.Fatalf("spawn shell: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func runAsync(s *shellSession) chan runOutcome {
	out := make(chan runOutcome, 1)
	go func() {
		disposition, err := s.Run(context.Background())
		out <- runOutcome{disposition: disposition, err: err}
	}()
	return out
}

func TestBridgePassesBytesVerbatimWhileForeground(t *testing.T) {
	fc := newFakeChannel()
	term := newFakeTerminal()
	s := startSession(t, fc, term, schema.ShellConfig{})

	res := runAsync(s)
	fc.emit("prompt$ ")
	waitFor(t, "prompt on terminal", func() bool { return term.output() == "prompt$ " })

	fc.emit("\x1b[31mred\x1b[0m\r\n")
	waitFor(t, "ansi bytes on terminal", func() bool {
		return term.output() == "prompt$ \x1b[31mred\x1b[0m\r\n"
	})

	term.send("ls\n")
	waitFor(t, "stdin forwarded", func() bool { return fc.stdinString() == "ls\n" })

	term.send("\x13")
	out := awaitRun(t, res)
	if out.err != nil {
		t.Fatalf("run: %v", out.err)
	}
	if out.disposition != schema.DispositionToggledBack {
		t.Fatalf("expected toggled-back, got %s", out.disposition)
	}
	if fc.stdinString() != "ls\n" {
		t.Fatalf("expected toggle byte withheld, stdin got %q", fc.stdinString())
	}
}

func TestBridgeWithholdsWholeToggleChunk(t *testing.T) {
	fc := newFakeChannel()
	term := newFakeTerminal()
	s := startSession(t, fc, term, schema.ShellConfig{})

	res := runAsync(s)
	term.send("x\x13y")
	out := awaitRun(t, res)
	if out.err != nil {
		t.Fatalf("run: %v", out.err)
	}
	if out.disposition != schema.DispositionToggledBack {
		t.Fatalf("expected toggled-back, got %s", out.disposition)
	}
	if fc.stdinString() != "" {
		t.Fatalf("expected no stdin bytes, got %q", fc.stdinString())
	}
	if s.Status() != schema.SessionActive {
		t.Fatalf("expected session to stay active, got %s", s.Status())
	}
}

func TestBridgeBuffersBackgroundOutputAndReplaysOnAttach(t *testing.T) {
	fc := newFakeChannel()
	term := newFakeTerminal()
	s := startSession(t, fc, term, schema.ShellConfig{})

	fc.emit("early ")
	waitFor(t, "background bytes buffered", func() bool { return bufferedTotal(s.bridge) == 6 })

	res := runAsync(s)
	fc.emit("live")
	waitFor(t, "replay then live output", func() bool { return term.output() == "early live" })
	term.send("\x13")
	awaitRun(t, res)

	fc.emit("bg1 ")
	fc.emit("bg2")
	waitFor(t, "background bytes buffered again", func() bool { return bufferedTotal(s.bridge) == 7 })
	if term.output() != "early live" {
		t.Fatalf("expected no terminal writes while backgrounded, got %q", term.output())
	}

	res = runAsync(s)
	waitFor(t, "second replay", func() bool { return term.output() == "early livebg1 bg2" })
	term.send("\x13")
	awaitRun(t, res)
}

func TestBridgeBackgroundBufferKeepsMostRecentBytes(t *testing.T) {
	fc := newFakeChannel()
	term := newFakeTerminal()
	s := startSession(t, fc, term, schema.ShellConfig{BufferBytes: 16})

	for i := 0; i < 4; i++ {
		fc.emit("0123456789")
	}
	waitFor(t, "all background bytes drained", func() bool { return bufferedTotal(s.bridge) == 40 })

	res := runAsync(s)
	waitFor(t, "bounded replay", func() bool { return term.output() == "4567890123456789" })
	term.send("\x13")
	awaitRun(t, res)
}

func TestBridgeRemoteExitEndsForegroundRun(t *testing.T) {
	fc := newFakeChannel()
	term := newFakeTerminal()
	s := startSession(t, fc, term, schema.ShellConfig{})

	res := runAsync(s)
	fc.closeOut()
	out := awaitRun(t, res)
	if out.err != nil {
		t.Fatalf("expected clean exit, got %v", out.err)
	}
	if out.disposition != schema.DispositionTerminated {
		t.Fatalf("expected terminated, got %s", out.disposition)
	}
	if s.Status() != schema.SessionExited {
		t.Fatalf("expected exited status, got %s", s.Status())
	}
}

func TestBridgeRemoteExitWhileBackgroundedMarksExited(t *testing.T) {
	fc := newFakeChannel()
	term := newFakeTerminal()
	s := startSession(t, fc, term, schema.ShellConfig{})

	fc.closeOut()
	waitFor(t, "session exited", func() bool { return s.Status() == schema.SessionExited })
}

func TestBridgeOutputErrorFailsSession(t *testing.T) {
	fc := newFakeChannel()
	term := newFakeTerminal()
	s := startSession(t, fc, term, schema.ShellConfig{})

	res := runAsync(s)
	fc.failOut(errors.New("connection reset"))
	out := awaitRun(t, res)
	if !errors.Is(out.err, schema.ErrRuntimeIO) {
		t.Fatalf("expected runtime i/o error, got %v", out.err)
	}
	if out.disposition != schema.DispositionFailed {
		t.Fatalf("expected failed, got %s", out.disposition)
	}
	if s.Status() != schema.SessionFailed {
		t.Fatalf("expected failed status, got %s", s.Status())
	}
}

func TestBridgeStdinErrorFailsSession(t *testing.T) {
	fc := newFakeChannel()
	fc.writeErr = errors.New("broken pipe")
	term := newFakeTerminal()
	s := startSession(t, fc, term, schema.ShellConfig{})

	res := runAsync(s)
	term.send("ls\n")
	out := awaitRun(t, res)
	if !errors.Is(out.err, schema.ErrRuntimeIO) {
		t.Fatalf("expected runtime i/o error, got %v", out.err)
	}
	if s.Status() != schema.SessionFailed {
		t.Fatalf("expected failed status, got %s", s.Status())
	}
}

func TestBridgeContextCancelReturnsControl(t *testing.T) {
	fc := newFakeChannel()
	term := newFakeTerminal()
	s := startSession(t, fc, term, schema.ShellConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan runOutcome, 1)
	go func() {
		disposition, err := s.Run(ctx)
		out <- runOutcome{disposition: disposition, err: err}
	}()
	cancel()
	got := awaitRun(t, out)
	if !errors.Is(got.err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", got.err)
	}
	if got.disposition != schema.DispositionToggledBack {
		t.Fatalf("expected toggled-back on cancel, got %s", got.disposition)
	}
	if s.Status() != schema.SessionActive {
		t.Fatalf("expected session to stay active on cancel, got %s", s.Status())
	}
}

func bufferedTotal(b *ioBridge) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffer.ring.TotalWritten()
}
