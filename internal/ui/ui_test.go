package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
)

func TestProgressBar(t *testing.T) {
	tests := []struct {
		done, total, width int
		want               string
	}{
		{0, 4, 8, "░░░░░░░░   0%"},
		{2, 4, 8, "████░░░░  50%"},
		{4, 4, 8, "████████ 100%"},
		{0, 0, 2, "░░░░░   0%"},
	}
	for _, tc := range tests {
		if got := ProgressBar(tc.done, tc.total, tc.width); got != tc.want {
			t.Errorf("ProgressBar(%d,%d,%d) = %q, want %q", tc.done, tc.total, tc.width, got, tc.want)
		}
	}
}

func TestMonoPanel(t *testing.T) {
	SetTheme("mono")
	defer SetTheme("classic")

	var buf bytes.Buffer
	Panel(&buf, []string{"one", "three"})
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("panel lines = %d:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "+") || !strings.HasPrefix(lines[1], "| one") {
		t.Fatalf("unexpected frame:\n%s", buf.String())
	}
	for _, ln := range lines {
		if lipgloss.Width(ln) != lipgloss.Width(lines[0]) {
			t.Fatalf("ragged frame:\n%s", buf.String())
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Fatalf("got %q", got)
	}
	if got := Truncate("a very long title indeed", 10); got != "a very ..." {
		t.Fatalf("got %q", got)
	}
}

func TestIsTerminal(t *testing.T) {
	if IsTerminal(&bytes.Buffer{}) {
		t.Fatal("a buffer is not a terminal")
	}
}
