package usage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/goodtune/ktime/internal/clock"
	"github.com/goodtune/ktime/internal/storage"
	"github.com/goodtune/ktime/internal/storage/memory"
	"github.com/rs/zerolog"
)

// failingStore rejects every operation.
type failingStore struct{}

var errBroken = errors.New("store unavailable")

func (failingStore) Get(context.Context, string) (string, error)    { return "", errBroken }
func (failingStore) Set(context.Context, string, string) error      { return errBroken }
func (failingStore) Delete(context.Context, string) error           { return errBroken }
func (failingStore) List(context.Context, string) ([]string, error) { return nil, errBroken }
func (failingStore) Close() error                                   { return nil }

var _ storage.Store = failingStore{}

func newTestLedger(t *testing.T, start time.Time) (*Ledger, *clock.TestClock, *memory.Store) {
	t.Helper()
	clk := clock.NewTestClock(start)
	store := memory.New()
	return NewLedger(store, clk, zerolog.Nop()), clk, store
}

func morning() time.Time {
	return time.Date(2024, 3, 4, 9, 0, 0, 0, time.Local)
}

func TestLedgerSessionTruncatesMinutes(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		want    int
	}{
		{"under a minute", 59 * time.Second, 0},
		{"119 seconds", 119 * time.Second, 1},
		{"exactly five minutes", 5 * time.Minute, 5},
		{"ninety minutes and change", 90*time.Minute + 59*time.Second, 90},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger, clk, _ := newTestLedger(t, morning())
			ctx := context.Background()

			ledger.StartSession(ctx)
			clk.Advance(tt.elapsed)
			if got := ledger.EndSession(ctx); got != tt.want {
				t.Errorf("EndSession() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestLedgerTotalIncludesOpenSession(t *testing.T) {
	ledger, clk, _ := newTestLedger(t, morning())
	ctx := context.Background()

	ledger.StartSession(ctx)
	clk.Advance(10 * time.Minute)
	ledger.EndSession(ctx)

	ledger.StartSession(ctx)
	clk.Advance(3*time.Minute + 30*time.Second)

	if got := ledger.CurrentSessionDuration(ctx); got != 3 {
		t.Errorf("CurrentSessionDuration() = %d, want 3", got)
	}
	if got := ledger.TotalUsageMinutes(ctx); got != 13 {
		t.Errorf("TotalUsageMinutes() = %d, want 13", got)
	}

	record := ledger.TodayUsage(ctx)
	if record.TotalMinutes != 10 {
		t.Errorf("TotalMinutes = %d, want 10", record.TotalMinutes)
	}
	if len(record.Sessions) != 2 {
		t.Fatalf("len(Sessions) = %d, want 2", len(record.Sessions))
	}
	if record.Sessions[0].Open() || !record.Sessions[1].Open() {
		t.Errorf("expected first session closed and second open")
	}
	if record.Sessions[0].ID == "" || record.Sessions[0].ID == record.Sessions[1].ID {
		t.Errorf("expected distinct session ids, got %q and %q", record.Sessions[0].ID, record.Sessions[1].ID)
	}
}

func TestLedgerRead(t *testing.T) {
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.Local)
	l, clk, _ := newTestLedger(t, start)
	ctx := context.Background()

	l.StartSession(ctx)
	clk.Advance(30 * time.Minute)
	l.EndSession(ctx)
	l.StartSession(ctx)
	clk.Advance(12*time.Minute + 59*time.Second)

	got := l.Read(ctx)
	if got.Date != "2024-03-04" || !got.At.Equal(clk.Now()) {
		t.Errorf("Read() Date = %q, At = %v", got.Date, got.At)
	}
	if got.TotalMinutes != 42 || got.CurrentSessionMinutes != 12 {
		t.Errorf("Read() = %+v, want total 42, current 12", got)
	}
}

func TestLedgerEndSessionWithoutOpenSession(t *testing.T) {
	ledger, clk, _ := newTestLedger(t, morning())
	ctx := context.Background()

	if got := ledger.EndSession(ctx); got != 0 {
		t.Fatalf("EndSession() on empty day = %d, want 0", got)
	}

	ledger.StartSession(ctx)
	clk.Advance(7 * time.Minute)
	if got := ledger.EndSession(ctx); got != 7 {
		t.Fatalf("EndSession() = %d, want 7", got)
	}

	clk.Advance(30 * time.Minute)
	if got := ledger.EndSession(ctx); got != 7 {
		t.Errorf("second EndSession() = %d, want unchanged 7", got)
	}
	if got := len(ledger.TodayUsage(ctx).Sessions); got != 1 {
		t.Errorf("len(Sessions) = %d, want 1", got)
	}
}

func TestLedgerTotalNeverDecreases(t *testing.T) {
	ledger, clk, _ := newTestLedger(t, morning())
	ctx := context.Background()

	last := 0
	for i := 0; i < 5; i++ {
		ledger.StartSession(ctx)
		clk.Advance(time.Duration(i*37) * time.Second)
		total := ledger.EndSession(ctx)
		if total < last {
			t.Fatalf("total decreased from %d to %d", last, total)
		}
		last = total
	}
}

func TestLedgerClockMovedBackwards(t *testing.T) {
	ledger, clk, _ := newTestLedger(t, morning())
	ctx := context.Background()

	ledger.StartSession(ctx)
	clk.Advance(-5 * time.Minute)

	if got := ledger.CurrentSessionDuration(ctx); got != 0 {
		t.Errorf("CurrentSessionDuration() = %d, want 0", got)
	}
	if got := ledger.EndSession(ctx); got != 0 {
		t.Errorf("EndSession() = %d, want 0", got)
	}
}

func TestLedgerDoubleStartLeavesOrphan(t *testing.T) {
	ledger, clk, _ := newTestLedger(t, morning())
	ctx := context.Background()

	ledger.StartSession(ctx)
	clk.Advance(20 * time.Minute)
	ledger.StartSession(ctx)
	clk.Advance(5 * time.Minute)

	if got := ledger.EndSession(ctx); got != 5 {
		t.Errorf("EndSession() = %d, want 5 (only the latest session is closed)", got)
	}

	record := ledger.TodayUsage(ctx)
	if len(record.Sessions) != 2 || !record.Sessions[0].Open() {
		t.Errorf("expected the first session to remain open, got %+v", record.Sessions)
	}
}

func TestLedgerPersistsJSONRecord(t *testing.T) {
	ledger, clk, store := newTestLedger(t, morning())
	ctx := context.Background()

	ledger.StartSession(ctx)
	clk.Advance(12 * time.Minute)
	ledger.EndSession(ctx)

	raw, err := store.Get(ctx, "app_usage_data_2024-03-04")
	if err != nil {
		t.Fatalf("expected record under dated key: %v", err)
	}

	var record DailyUsageRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		t.Fatalf("stored record is not JSON: %v", err)
	}
	if record.Date != "2024-03-04" || record.TotalMinutes != 12 {
		t.Errorf("stored record = %+v", record)
	}

	// A fresh ledger over the same store sees the same data
	other := NewLedger(store, clk, zerolog.Nop())
	if got := other.TotalUsageMinutes(ctx); got != 12 {
		t.Errorf("TotalUsageMinutes() from new ledger = %d, want 12", got)
	}
}

func TestLedgerNewDayStartsEmpty(t *testing.T) {
	ledger, clk, _ := newTestLedger(t, morning())
	ctx := context.Background()

	ledger.StartSession(ctx)
	clk.Advance(45 * time.Minute)
	ledger.EndSession(ctx)

	clk.Advance(24 * time.Hour)
	record := ledger.TodayUsage(ctx)
	if record.Date != "2024-03-05" {
		t.Errorf("Date = %q, want 2024-03-05", record.Date)
	}
	if record.TotalMinutes != 0 || len(record.Sessions) != 0 {
		t.Errorf("expected empty record, got %+v", record)
	}
}

func TestLedgerClearUsageData(t *testing.T) {
	ledger, clk, store := newTestLedger(t, morning())
	ctx := context.Background()

	ledger.StartSession(ctx)
	clk.Advance(15 * time.Minute)
	ledger.EndSession(ctx)

	ledger.ClearUsageData(ctx)

	if _, err := store.Get(ctx, Key("2024-03-04")); !storage.IsNotFound(err) {
		t.Fatalf("expected record deleted, got %v", err)
	}
	if got := ledger.TotalUsageMinutes(ctx); got != 0 {
		t.Errorf("TotalUsageMinutes() after clear = %d, want 0", got)
	}
}

func TestLedgerHistory(t *testing.T) {
	ledger, clk, _ := newTestLedger(t, morning())
	ctx := context.Background()

	ledger.StartSession(ctx)
	clk.Advance(30 * time.Minute)
	ledger.EndSession(ctx)

	clk.Advance(48 * time.Hour)
	ledger.StartSession(ctx)
	clk.Advance(5 * time.Minute)
	ledger.EndSession(ctx)

	history := ledger.History(ctx, 3)
	if len(history) != 3 {
		t.Fatalf("len(History) = %d, want 3", len(history))
	}

	want := []struct {
		date  string
		total int
	}{
		{"2024-03-04", 30},
		{"2024-03-05", 0},
		{"2024-03-06", 5},
	}
	for i, w := range want {
		if history[i].Date != w.date || history[i].TotalMinutes != w.total {
			t.Errorf("History[%d] = {%s %d}, want {%s %d}", i, history[i].Date, history[i].TotalMinutes, w.date, w.total)
		}
	}

	if got := ledger.History(ctx, 0); got != nil {
		t.Errorf("History(0) = %v, want nil", got)
	}
}

func TestLedgerFailsOpen(t *testing.T) {
	clk := clock.NewTestClock(morning())
	ledger := NewLedger(failingStore{}, clk, zerolog.Nop())
	ctx := context.Background()

	ledger.StartSession(ctx)
	clk.Advance(10 * time.Minute)

	if got := ledger.EndSession(ctx); got != 0 {
		t.Errorf("EndSession() = %d, want 0", got)
	}
	if got := ledger.TotalUsageMinutes(ctx); got != 0 {
		t.Errorf("TotalUsageMinutes() = %d, want 0", got)
	}
	if got := ledger.CurrentSessionDuration(ctx); got != 0 {
		t.Errorf("CurrentSessionDuration() = %d, want 0", got)
	}
	ledger.ClearUsageData(ctx)

	record := ledger.TodayUsage(ctx)
	if record.Date != "2024-03-04" || record.TotalMinutes != 0 || len(record.Sessions) != 0 {
		t.Errorf("TodayUsage() = %+v, want empty record", record)
	}
}

func TestLedgerCorruptRecordReadsEmpty(t *testing.T) {
	ledger, _, store := newTestLedger(t, morning())
	ctx := context.Background()

	_ = store.Set(ctx, Key("2024-03-04"), "{not json")

	if got := ledger.TotalUsageMinutes(ctx); got != 0 {
		t.Errorf("TotalUsageMinutes() = %d, want 0", got)
	}

	ledger.StartSession(ctx)
	if got := len(ledger.TodayUsage(ctx).Sessions); got != 1 {
		t.Errorf("expected corrupt record to be replaced, got %d sessions", got)
	}
}
