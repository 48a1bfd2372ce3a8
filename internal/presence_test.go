package internal

import (
	"testing"
	"time"
)

func TestPresenceRegistry(t *testing.T) {
	registry := NewPresenceRegistry()
	now := time.Now()

	if _, created := registry.Join("c2", "Bob", now); !created {
		t.Fatalf("first join should create")
	}
	if _, created := registry.Join("c1", "Alice", now); !created {
		t.Fatalf("first join should create")
	}
	existing, created := registry.Join("c2", "Robert", now)
	if created || existing.DisplayName != "Bob" {
		t.Fatalf("repeat join = %+v, %v", existing, created)
	}
	if names := registry.Names(); len(names) != 2 || names[0] != "Alice" || names[1] != "Bob" {
		t.Fatalf("names = %v", names)
	}

	session, ok := registry.Leave("c2")
	if !ok || session.DisplayName != "Bob" {
		t.Fatalf("leave = %+v, %v", session, ok)
	}
	if _, ok := registry.Leave("c2"); ok {
		t.Fatalf("second leave should report nothing")
	}
	if _, ok := registry.Lookup("c2"); ok {
		t.Fatalf("lookup after leave should fail")
	}
	if registry.Count() != 1 {
		t.Fatalf("count = %d", registry.Count())
	}
}

func TestSanitizeDisplayName(t *testing.T) {
	cases := map[string]string{
		"Alice":                        "Alice",
		"  <b>Bob</b>  ":               "Bob",
		"<script>alert(1)</script>Eve": "Eve",
		"":                             DefaultDisplayName,
		"\x00\x1b":                     DefaultDisplayName,
		"Tom &amp; Jerry":              "Tom & Jerry",
	}
	for in, want := range cases {
		if got := sanitizeDisplayName(in); got != want {
			t.Fatalf("sanitizeDisplayName(%q) = %q, want %q", in, got, want)
		}
	}
}
