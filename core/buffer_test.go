package core

import (
	"bytes"
	"testing"

	"pkt.systems/spyglass/schema"
)

func TestBackgroundBufferKeepsArrivalOrder(t *testing.T) {
	b := newBackgroundBuffer(64)
	b.Write([]byte("one "))
	b.Write([]byte("two "))
	b.Write([]byte("three"))
	data, dropped := b.Drain()
	if string(data) != "one two three" {
		t.Fatalf("expected %q, got %q", "one two three", string(data))
	}
	if dropped != 0 {
		t.Fatalf("expected no dropped bytes, got %d", dropped)
	}
}

func TestBackgroundBufferEvictsOldestFirst(t *testing.T) {
	b := newBackgroundBuffer(8)
	b.Write([]byte("abcdefgh"))
	b.Write([]byte("XY"))
	data, dropped := b.Drain()
	if string(data) != "cdefghXY" {
		t.Fatalf("expected %q, got %q", "cdefghXY", string(data))
	}
	if dropped != 2 {
		t.Fatalf("expected 2 dropped bytes, got %d", dropped)
	}
}

func TestBackgroundBufferNeverExceedsCapacity(t *testing.T) {
	b := newBackgroundBuffer(16)
	for i := 0; i < 100; i++ {
		b.Write(bytes.Repeat([]byte{byte('a' + i%26)}, 5))
	}
	if b.Len() > 16 {
		t.Fatalf("expected at most 16 retained bytes, got %d", b.Len())
	}
	data, dropped := b.Drain()
	if len(data) != 16 {
		t.Fatalf("expected 16 bytes after drain, got %d", len(data))
	}
	if dropped != 500-16 {
		t.Fatalf("expected %d dropped bytes, got %d", 500-16, dropped)
	}
}

func TestBackgroundBufferDrainResets(t *testing.T) {
	b := newBackgroundBuffer(32)
	b.Write([]byte("first"))
	if data, _ := b.Drain(); string(data) != "first" {
		t.Fatalf("expected %q, got %q", "first", string(data))
	}
	if b.Len() != 0 {
		t.Fatalf("expected empty buffer after drain, got %d bytes", b.Len())
	}
	b.Write([]byte("second"))
	data, dropped := b.Drain()
	if string(data) != "second" {
		t.Fatalf("expected %q, got %q", "second", string(data))
	}
	if dropped != 0 {
		t.Fatalf("expected no dropped bytes after reset, got %d", dropped)
	}
}

func TestBackgroundBufferBadCapacityFallsBack(t *testing.T) {
	b := newBackgroundBuffer(0)
	if b.Cap() != schema.DefaultBufferBytes {
		t.Fatalf("expected default capacity %d, got %d", schema.DefaultBufferBytes, b.Cap())
	}
}
