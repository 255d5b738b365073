package gate

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestWatcherPoll(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.enable(10, 3, "1234")

	var seen []Decision
	w := NewWatcher(f.gate, time.Second, func(prev Decision, st Status) {
		seen = append(seen, st.Decision)
	}, zerolog.Nop())

	if !w.Poll(ctx) {
		t.Fatal("first Poll() should report a change")
	}
	if w.Poll(ctx) {
		t.Error("Poll() without change reported a change")
	}

	f.ledger.StartSession(ctx)
	f.clock.Advance(8 * time.Minute)
	w.Poll(ctx)

	f.clock.Advance(5 * time.Minute)
	w.Poll(ctx)
	w.Poll(ctx)

	want := []Decision{Allowed, ReminderDue, Blocked}
	if len(seen) != len(want) {
		t.Fatalf("changes = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("change[%d] = %s, want %s", i, seen[i], want[i])
		}
	}
	if w.Last() != Blocked {
		t.Errorf("Last() = %s, want %s", w.Last(), Blocked)
	}
}

func TestWatcherStartStop(t *testing.T) {
	f := newFixture(t, nil)

	fired := make(chan Decision, 1)
	w := NewWatcher(f.gate, time.Hour, func(prev Decision, st Status) {
		fired <- st.Decision
	}, zerolog.Nop())

	w.Start(context.Background())
	select {
	case d := <-fired:
		if d != Allowed {
			t.Errorf("initial decision = %s, want %s", d, Allowed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not poll on start")
	}
	w.Stop()
}
