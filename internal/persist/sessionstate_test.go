package persist

import (
	"reflect"
	"testing"

	"pkt.systems/spyglass/schema"
)

func TestSessionStateLoadMissing(t *testing.T) {
	store, err := NewSessionStateStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	_, ok, err := store.Load("alice", "example.com", 22)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ok {
		t.Fatalf("expected missing state")
	}
}

func TestSessionStateRoundTrip(t *testing.T) {
	store, err := NewSessionStateStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	state := schema.SessionState{
		Host:          "example.com",
		Port:          22,
		Username:      "alice",
		CurrentPath:   "/var/log",
		SelectedIndex: 3,
	}
	if err := store.Save(state); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := store.Load("alice", "example.com", 22)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !ok {
		t.Fatalf("expected state to exist")
	}
	if !reflect.DeepEqual(state, got) {
		t.Fatalf("state mismatch:\nwant: %+v\ngot:  %+v", state, got)
	}
}

func TestSessionStateKeyedByRemote(t *testing.T) {
	store, err := NewSessionStateStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	first := schema.SessionState{Host: "one.example.com", Port: 22, Username: "alice", CurrentPath: "/srv"}
	second := schema.SessionState{Host: "two.example.com", Port: 22, Username: "alice", CurrentPath: "/opt"}
	if err := store.Save(first); err != nil {
		t.Fatalf("save first: %v", err)
	}
	if err := store.Save(second); err != nil {
		t.Fatalf("save second: %v", err)
	}
	got, ok, err := store.Load("alice", "one.example.com", 22)
	if err != nil || !ok {
		t.Fatalf("load first: ok=%v err=%v", ok, err)
	}
	if got.CurrentPath != "/srv" {
		t.Fatalf("expected path /srv, got %q", got.CurrentPath)
	}
	got, ok, err = store.Load("alice", "two.example.com", 22)
	if err != nil || !ok {
		t.Fatalf("load second: ok=%v err=%v", ok, err)
	}
	if got.CurrentPath != "/opt" {
		t.Fatalf("expected path /opt, got %q", got.CurrentPath)
	}
}

func TestSessionStatePortsAreDistinct(t *testing.T) {
	store, err := NewSessionStateStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Save(schema.SessionState{Host: "h", Port: 22, Username: "u", CurrentPath: "/a"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(schema.SessionState{Host: "h", Port: 2222, Username: "u", CurrentPath: "/b"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := store.Load("u", "h", 22)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if got.CurrentPath != "/a" {
		t.Fatalf("expected path /a for port 22, got %q", got.CurrentPath)
	}
}
