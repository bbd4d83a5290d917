package main

import (
	"bufio"
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/lsnp-net/lsnp"
)

func TestSplitMembers(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"plain list", "a@10.0.0.1,b@10.0.0.2", []string{"a@10.0.0.1", "b@10.0.0.2"}},
		{"spaces trimmed", " a@10.0.0.1 , b@10.0.0.2 ", []string{"a@10.0.0.1", "b@10.0.0.2"}},
		{"empty entries dropped", "a@10.0.0.1,,", []string{"a@10.0.0.1"}},
		{"single", "a@10.0.0.1", []string{"a@10.0.0.1"}},
		{"empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitMembers(tt.raw)
			if len(got) != len(tt.want) {
				t.Fatalf("splitMembers(%q) = %v, want %v", tt.raw, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("splitMembers(%q) = %v, want %v", tt.raw, got, tt.want)
				}
			}
		})
	}
}

func TestJoinOrNone(t *testing.T) {
	if got := joinOrNone(nil); got != "(none)" {
		t.Errorf("joinOrNone(nil) = %q", got)
	}
	if got := joinOrNone([]string{"a", "b"}); got != "a, b" {
		t.Errorf("joinOrNone = %q", got)
	}
}

func TestREPLSmoke(t *testing.T) {
	opts := lsnp.NewOptions()
	opts.Username = "alice"
	opts.DisplayName = "Alice"
	opts.ListenAddr = "127.0.0.1:0"
	opts.DownloadDir = t.TempDir()
	opts.PresenceInterval = time.Hour

	node, err := lsnp.New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer node.Stop()

	script := strings.Join([]string{
		"help",
		"whoami",
		"peers",
		"feed",
		"games",
		"groups",
		"bogus-command",
		"quit",
	}, "\n")

	var out bytes.Buffer
	r := newREPL(node, bufio.NewScanner(strings.NewReader(script)), &out, false)
	r.run()

	text := out.String()
	for _, want := range []string{
		"commands:",
		node.SelfID(),
		"nobody around",
		"feed is empty",
		"no games",
		"no groups",
		"unknown command",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q\n%s", want, text)
		}
	}
}
