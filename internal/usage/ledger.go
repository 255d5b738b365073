package usage

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/goodtune/ktime/internal/clock"
	"github.com/goodtune/ktime/internal/metrics"
	"github.com/goodtune/ktime/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Ledger records foreground sessions and aggregates daily usage.
//
// Store failures never reach the caller: they are logged, counted and
// treated as "no data" so the gate keeps working on whatever it can read.
type Ledger struct {
	store  storage.Store
	clock  clock.Clock
	logger zerolog.Logger
	mu     sync.Mutex
}

// NewLedger creates a new usage ledger
func NewLedger(store storage.Store, clk clock.Clock, logger zerolog.Logger) *Ledger {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Ledger{
		store:  store,
		clock:  clk,
		logger: logger.With().Str("component", "usage-ledger").Logger(),
	}
}

// StartSession opens a new session in today's record.
// A second call without EndSession leaves the earlier session open forever.
func (l *Ledger) StartSession(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	record := l.load(ctx, clock.DateKey(now))
	session := Session{
		ID:    uuid.New().String(),
		Start: now,
	}
	record.Sessions = append(record.Sessions, session)
	l.save(ctx, record)

	metrics.SessionsStarted.Inc()
	l.logger.Debug().
		Str("session_id", session.ID).
		Str("date", record.Date).
		Msg("Started usage session")
}

// EndSession closes today's open session, folds its whole minutes into the
// daily total and returns the new total. Without an open session the
// current total is returned unchanged.
func (l *Ledger) EndSession(ctx context.Context) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	record := l.load(ctx, clock.DateKey(now))
	session := record.lastOpen()
	if session == nil {
		return record.TotalMinutes
	}

	end := now
	session.End = &end
	minutes := wholeMinutes(end.Sub(session.Start))
	record.TotalMinutes += minutes
	l.save(ctx, record)

	metrics.SessionsClosed.Inc()
	metrics.UsageMinutesConsumed.Add(float64(minutes))
	l.logger.Debug().
		Str("session_id", session.ID).
		Int("minutes", minutes).
		Int("total_minutes", record.TotalMinutes).
		Msg("Ended usage session")

	return record.TotalMinutes
}

// Reading is today's usage measured at a single instant.
type Reading struct {
	Date                  string
	At                    time.Time
	TotalMinutes          int // closed minutes plus the open session
	CurrentSessionMinutes int
}

// Read loads today's record once and measures it against one clock reading,
// so the total and the open session always agree.
func (l *Ledger) Read(ctx context.Context) Reading {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	record := l.load(ctx, clock.DateKey(now))
	current := currentMinutes(record, now)
	total := record.TotalMinutes + current
	metrics.UsageMinutesToday.Set(float64(total))

	return Reading{
		Date:                  record.Date,
		At:                    now,
		TotalMinutes:          total,
		CurrentSessionMinutes: current,
	}
}

// CurrentSessionDuration returns the whole minutes elapsed in today's open
// session, or 0 when none is open.
func (l *Ledger) CurrentSessionDuration(ctx context.Context) int {
	return l.Read(ctx).CurrentSessionMinutes
}

// TotalUsageMinutes returns closed minutes plus the open session's minutes.
func (l *Ledger) TotalUsageMinutes(ctx context.Context) int {
	return l.Read(ctx).TotalMinutes
}

// TodayUsage returns today's record, empty if nothing was stored yet.
func (l *Ledger) TodayUsage(ctx context.Context) DailyUsageRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	return *l.load(ctx, clock.Today(l.clock))
}

// ClearUsageData deletes today's record.
func (l *Ledger) ClearUsageData(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	date := clock.Today(l.clock)
	if err := l.store.Delete(ctx, Key(date)); err != nil {
		l.storageError("delete", err).Str("date", date).Msg("Failed to clear usage data")
		return
	}
	l.logger.Info().Str("date", date).Msg("Cleared usage data")
}

// History returns the records of the last days dates ending today, oldest
// first. Days without a stored record are returned empty.
func (l *Ledger) History(ctx context.Context, days int) []DailyUsageRecord {
	if days <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	records := make([]DailyUsageRecord, 0, days)
	for i := days - 1; i >= 0; i-- {
		date := clock.DateKey(now.AddDate(0, 0, -i))
		records = append(records, *l.load(ctx, date))
	}
	return records
}

// load reads the record for date, falling back to an empty one.
func (l *Ledger) load(ctx context.Context, date string) *DailyUsageRecord {
	empty := &DailyUsageRecord{Date: date, Sessions: []Session{}}

	raw, err := l.store.Get(ctx, Key(date))
	if err != nil {
		if !storage.IsNotFound(err) {
			l.storageError("get", err).Str("date", date).Msg("Failed to read usage record")
		}
		return empty
	}

	var record DailyUsageRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		l.storageError("decode", err).Str("date", date).Msg("Discarding unreadable usage record")
		return empty
	}
	if record.Date == "" {
		record.Date = date
	}
	if record.Sessions == nil {
		record.Sessions = []Session{}
	}
	return &record
}

// save persists record; failures are logged and dropped.
func (l *Ledger) save(ctx context.Context, record *DailyUsageRecord) {
	data, err := json.Marshal(record)
	if err != nil {
		l.storageError("encode", err).Str("date", record.Date).Msg("Failed to encode usage record")
		return
	}
	if err := l.store.Set(ctx, Key(record.Date), string(data)); err != nil {
		l.storageError("set", err).Str("date", record.Date).Msg("Failed to persist usage record")
	}
}

func (l *Ledger) storageError(op string, err error) *zerolog.Event {
	metrics.StorageErrors.WithLabelValues("usage", op).Inc()
	return l.logger.Error().Err(err).Str("op", op)
}

func currentMinutes(record *DailyUsageRecord, now time.Time) int {
	session := record.lastOpen()
	if session == nil {
		return 0
	}
	return wholeMinutes(now.Sub(session.Start))
}
