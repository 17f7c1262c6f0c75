package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"pkt.systems/pslog"
)

func TestWithConnectionAddsRemoteField(t *testing.T) {
	capture := &logCapture{}
	logger := pslog.NewWithOptions(capture, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		MinLevel:      pslog.InfoLevel,
		VerboseFields: true,
	})
	ctx := pslog.ContextWithLogger(context.Background(), logger)
	log := WithConnection(ctx, "alice@example.com:22")
	log.Info("hello")

	entry := capture.firstEntry(t)
	if entry["remote"] != "alice@example.com:22" {
		t.Fatalf("expected remote field, got %+v", entry)
	}
}

func TestWithConnectionSkipsDuplicateMarker(t *testing.T) {
	capture := &logCapture{}
	logger := pslog.NewWithOptions(capture, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		MinLevel:      pslog.InfoLevel,
		VerboseFields: true,
	})
	ctx := ContextWithConnectionLogger(context.Background(), logger.With("remote", "alice@example.com:22"), "alice@example.com:22")
	log := WithConnection(ctx, "alice@example.com:22")
	log.Info("hello")

	line := capture.firstLine()
	if bytes.Count(line, []byte("alice@example.com:22")) != 1 {
		t.Fatalf("expected remote field once, got %s", line)
	}
}

func TestWithSessionAndPathAddFields(t *testing.T) {
	capture := &logCapture{}
	logger := pslog.NewWithOptions(capture, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		MinLevel:      pslog.InfoLevel,
		VerboseFields: true,
	})
	log := WithPath(WithSession(logger, "abc123"), "/var/log")
	log.Info("hello")

	entry := capture.firstEntry(t)
	if entry["session"] != "abc123" {
		t.Fatalf("expected session field, got %+v", entry)
	}
	if entry["path"] != "/var/log" {
		t.Fatalf("expected path field, got %+v", entry)
	}
}

type logCapture struct {
	buf bytes.Buffer
}

func (c *logCapture) Write(p []byte) (int, error) {
	return c.buf.Write(p)
}

func (c *logCapture) firstLine() []byte {
	data := c.buf.Bytes()
	idx := bytes.IndexByte(data, '\n')
	if idx == -1 {
		idx = len(data)
	}
	return bytes.TrimSpace(data[:idx])
}

func (c *logCapture) firstEntry(t *testing.T) map[string]any {
	t.Helper()
	entry := map[string]any{}
	if err := json.Unmarshal(c.firstLine(), &entry); err != nil {
		t.Fatalf("parse log entry: %v", err)
	}
	return entry
}
