package cache

import (
	"testing"
	"time"
)

func TestStoreSetGet(t *testing.T) {
	s := Open(t.TempDir())
	defer s.Close()

	if s.Degraded() {
		t.Fatal("fresh store should not be degraded")
	}

	s.Set("GET|public|https://example.com/a", "payload", time.Minute)

	got, ok := s.Get("GET|public|https://example.com/a")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got != "payload" {
		t.Errorf("expected 'payload', got %q", got)
	}
}

func TestStoreGet_Miss(t *testing.T) {
	s := Open(t.TempDir())
	defer s.Close()

	if _, ok := s.Get("missing"); ok {
		t.Error("expected miss for absent key")
	}
}

func TestStoreSet_ZeroTTLIsNoop(t *testing.T) {
	s := Open(t.TempDir())
	defer s.Close()

	s.Set("key", "value", 0)
	if _, ok := s.Get("key"); ok {
		t.Error("expected zero TTL entry to be dropped")
	}
}

func TestStoreExpiry(t *testing.T) {
	s := Open(t.TempDir())
	defer s.Close()

	s.Set("key", "value", 50*time.Millisecond)
	if _, ok := s.Get("key"); !ok {
		t.Fatal("expected hit before expiry")
	}

	time.Sleep(120 * time.Millisecond)
	if _, ok := s.Get("key"); ok {
		t.Error("expected miss after TTL elapsed")
	}
}

func TestStoreDegradedOnBadDirectory(t *testing.T) {
	// A file path where the store wants a directory cannot be opened.
	s := Open("/dev/null")
	defer s.Close()

	if !s.Degraded() {
		t.Fatal("expected store to degrade when open fails")
	}

	// Degraded stores pass through without errors.
	s.Set("key", "value", time.Minute)
	if _, ok := s.Get("key"); ok {
		t.Error("expected degraded store to always miss")
	}
}

func TestRequestKey(t *testing.T) {
	plain := RequestKey("GET", ScopePublic, "https://example.com/x", nil)
	if plain != "GET|public|https://example.com/x" {
		t.Errorf("unexpected key %q", plain)
	}

	withBody := RequestKey("POST", "alice", "https://example.com/x", []byte(`{"a":1}`))
	if withBody == plain {
		t.Error("expected body hash to change the key")
	}
	again := RequestKey("POST", "alice", "https://example.com/x", []byte(`{"a":1}`))
	if withBody != again {
		t.Error("expected identical requests to share a key")
	}
	other := RequestKey("POST", "alice", "https://example.com/x", []byte(`{"a":2}`))
	if withBody == other {
		t.Error("expected different bodies to produce different keys")
	}
}

func TestRequestKey_ScopeSeparation(t *testing.T) {
	a := RequestKey("GET", "alice", "https://example.com/x", nil)
	b := RequestKey("GET", "bob", "https://example.com/x", nil)
	if a == b {
		t.Error("expected per-user scopes to produce distinct keys")
	}
}

func TestMetadataKey(t *testing.T) {
	key := MetadataKey("movie", 603, "en")
	if key != "meta|movie|603|en" {
		t.Errorf("unexpected metadata key %q", key)
	}
}
