package tui

import (
	"testing"
	"time"

	"chatline/internal/session"

	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"
)

func TestFmtElapsedCompact(t *testing.T) {
	cases := []struct {
		seconds  uint64
		expected string
	}{
		{seconds: 0, expected: "0s"},
		{seconds: 59, expected: "59s"},
		{seconds: 60, expected: "1m 00s"},
		{seconds: 3*60 + 5, expected: "3m 05s"},
		{seconds: 3600, expected: "1h 00m 00s"},
		{seconds: 25*3600 + 2*60 + 3, expected: "25h 02m 03s"},
	}

	for _, tc := range cases {
		t.Run(tc.expected, func(t *testing.T) {
			t.Parallel()
			if got := fmtElapsedCompact(tc.seconds); got != tc.expected {
				t.Fatalf("fmtElapsedCompact(%d) = %q, want %q", tc.seconds, got, tc.expected)
			}
		})
	}
}

func TestStatusIndicatorPausesWhileAwaitingInput(t *testing.T) {
	now := time.Unix(0, 0)
	w := newStatusIndicator(func() time.Time { return now })

	w.Sync(session.Sending, 0)
	now = now.Add(5 * time.Second)
	w.Sync(session.AwaitingInput, 0)
	now = now.Add(10 * time.Second)
	if got := w.elapsedAt(now); got != 5*time.Second {
		t.Fatalf("expected 5s while paused, got %v", got)
	}

	w.Sync(session.Sending, 0)
	now = now.Add(3 * time.Second)
	if got := w.elapsedAt(now); got != 8*time.Second {
		t.Fatalf("expected timer to resume at 8s, got %v", got)
	}

	w.Sync(session.Idle, 0)
	if got := w.elapsedAt(now); got != 0 {
		t.Fatalf("idle should reset the timer, got %v", got)
	}
}

func TestStatusIndicatorRender(t *testing.T) {
	now := time.Unix(0, 0)
	w := newStatusIndicator(func() time.Time { return now })
	if w.Visible() {
		t.Fatalf("idle indicator should be hidden")
	}

	w.Sync(session.Sending, 2)
	got := ansi.Strip(w.Render("⣾", 80))
	want := "⣾ Working (0s • esc to interrupt) • 2 queued"
	if got != want {
		t.Fatalf("unexpected render output %q, want %q", got, want)
	}
}

func TestStatusIndicatorRenderClampsToWidth(t *testing.T) {
	w := newStatusIndicator(nil)
	w.Sync(session.Error, 0)
	got := ansi.Strip(w.Render("", 10))
	if width := runewidth.StringWidth(got); width > 10 {
		t.Fatalf("rendered width %d exceeds 10", width)
	}
}
