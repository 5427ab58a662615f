package transcript

import (
	"testing"
	"time"
)

func TestLog_AppendAndEntries(t *testing.T) {
	t.Parallel()
	l := NewLog(noopMetrics(t))
	t.Cleanup(l.Close)

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if n := l.Append(Entry{Role: RoleUser, Content: "draw a cat", Timestamp: ts}); n != 1 {
		t.Errorf("Append returned %d, want 1", n)
	}
	l.Append(Entry{Role: RoleAssistant, Content: "Here is a cat."})

	got := l.Entries()
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Content != "draw a cat" || !got[0].Timestamp.Equal(ts) {
		t.Errorf("entry 0 = %+v", got[0])
	}
	if got[1].Timestamp.IsZero() {
		t.Error("zero timestamp was not filled in")
	}

	got[0].Content = "mutated"
	if l.Entries()[0].Content != "draw a cat" {
		t.Error("Entries leaked internal slice")
	}
}

func TestLog_SubscribeReceivesLatest(t *testing.T) {
	t.Parallel()
	l := NewLog(noopMetrics(t))
	ch, cancel := l.Subscribe()
	defer cancel()

	l.Append(Entry{Role: RoleUser, Content: "one"})
	l.Append(Entry{Role: RoleAssistant, Content: "two"})

	select {
	case e := <-ch:
		if e.Content != "two" {
			t.Errorf("got %q, want latest entry", e.Content)
		}
	case <-time.After(time.Second):
		t.Fatal("no entry delivered")
	}
	if l.Len() != 2 {
		t.Errorf("Len = %d, want 2", l.Len())
	}
}

func TestLog_Reset(t *testing.T) {
	t.Parallel()
	l := NewLog(noopMetrics(t))
	l.Append(Entry{Role: RoleSystem, Content: "x"})
	l.Reset()
	if l.Len() != 0 {
		t.Errorf("Len = %d after Reset", l.Len())
	}
}
