package schema

import (
	"errors"
	"os"
	"testing"
)

func TestParseDestinationFull(t *testing.T) {
	user, host, port, err := ParseDestination("alice@example.com:2222")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if user != "alice" || host != "example.com" || port != 2222 {
		t.Fatalf("unexpected result: %s %s %d", user, host, port)
	}
}

func TestParseDestinationDefaultPort(t *testing.T) {
	user, host, port, err := ParseDestination("bob@10.0.0.5")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if user != "bob" || host != "10.0.0.5" || port != DefaultPort {
		t.Fatalf("unexpected result: %s %s %d", user, host, port)
	}
}

func TestParseDestinationDefaultUser(t *testing.T) {
	t.Setenv("USER", "carol")
	user, host, port, err := ParseDestination("example.com")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if user != "carol" || host != "example.com" || port != DefaultPort {
		t.Fatalf("unexpected result: %s %s %d", user, host, port)
	}
}

func TestParseDestinationRootFallback(t *testing.T) {
	old, had := os.LookupEnv("USER")
	os.Unsetenv("USER")
	t.Cleanup(func() {
		if had {
			os.Setenv("USER", old)
		}
	})
	user, _, _, err := ParseDestination("example.com")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if user != "root" {
		t.Fatalf("expected root fallback, got %q", user)
	}
}

func TestParseDestinationInvalid(t *testing.T) {
	cases := []string{"", "   ", "alice@host:notaport", "alice@host:0", "alice@host:70000", "alice@:22", "@host"}
	for _, dest := range cases {
		if _, _, _, err := ParseDestination(dest); !errors.Is(err, ErrInvalidDestination) {
			t.Fatalf("destination %q: expected ErrInvalidDestination, got %v", dest, err)
		}
	}
}

func TestAddress(t *testing.T) {
	if got := Address("alice", "example.com", 22); got != "alice@example.com:22" {
		t.Fatalf("unexpected address %q", got)
	}
	conn := SavedConnection{Name: "prod", Host: "example.com", Port: 2200, Username: "deploy"}
	if got := conn.DisplayName(); got != "deploy@example.com:2200" {
		t.Fatalf("unexpected display name %q", got)
	}
}
