package identity

import (
	"strings"
	"testing"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		in   string
		name string
		host string
	}{
		{"@alice.example.com", "alice", "example.com"},
		{"@bob.localhost", "bob", "localhost"},
		{"@a1_b2.sub.example.org", "a1_b2", "sub.example.org"},
		{"@0cafe.my-host.net", "0cafe", "my-host.net"},
	}

	for _, tt := range tests {
		id, err := Resolve(tt.in)
		if err != nil {
			t.Errorf("Resolve(%q) failed: %v", tt.in, err)
			continue
		}
		if id.Name != tt.name || id.Host != tt.host {
			t.Errorf("Resolve(%q) = {%s %s}, want {%s %s}", tt.in, id.Name, id.Host, tt.name, tt.host)
		}
		if id.String() != tt.in {
			t.Errorf("String() = %q, want %q", id.String(), tt.in)
		}
	}
}

func TestResolveInvalid(t *testing.T) {
	longLabel := "@alice." + strings.Repeat("x", 64) + ".com"
	longHost := "@alice." + strings.Repeat("abcdefgh.", 30) + "com"

	tests := []string{
		"",
		"alice.example.com", // no @
		"@alice",            // single segment
		"@alice.",           // empty host
		"@al!ce.example.com",
		"@_alice.example.com", // name must start alphanumeric
		"@alice.-bad.com",
		"@alice.bad-.com",
		longLabel,
		longHost,
	}

	for _, in := range tests {
		if _, err := Resolve(in); err == nil {
			t.Errorf("Resolve(%q) should fail", in)
		}
	}
}
