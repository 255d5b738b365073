package gate

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ChangeFunc is called with the previous decision and the new status.
// The first poll reports a change from the empty decision.
type ChangeFunc func(prev Decision, st Status)

// Watcher polls the gate and reports decision changes.
type Watcher struct {
	gate     *Gate
	interval time.Duration
	onChange ChangeFunc
	logger   zerolog.Logger

	mu   sync.Mutex
	last Decision

	stopChan chan struct{}
	done     chan struct{}
}

// NewWatcher creates a watcher polling g every interval
func NewWatcher(g *Gate, interval time.Duration, onChange ChangeFunc, logger zerolog.Logger) *Watcher {
	return &Watcher{
		gate:     g,
		interval: interval,
		onChange: onChange,
		logger:   logger.With().Str("component", "gate-watcher").Logger(),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins polling in the background
func (w *Watcher) Start(ctx context.Context) {
	go w.run(ctx)
	w.logger.Info().Dur("interval", w.interval).Msg("Gate watcher started")
}

// Stop stops polling and waits for the loop to exit
func (w *Watcher) Stop() {
	close(w.stopChan)
	<-w.done
	w.logger.Info().Msg("Gate watcher stopped")
}

// Last returns the most recently observed decision.
func (w *Watcher) Last() Decision {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.Poll(ctx)
	for {
		select {
		case <-ticker.C:
			w.Poll(ctx)
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Poll evaluates the gate once and fires the callback if the decision
// differs from the previous poll. It reports whether it fired.
func (w *Watcher) Poll(ctx context.Context) bool {
	st := w.gate.Status(ctx)

	w.mu.Lock()
	prev := w.last
	w.last = st.Decision
	w.mu.Unlock()

	if prev == st.Decision {
		return false
	}

	w.logger.Info().
		Str("from", string(prev)).
		Str("to", string(st.Decision)).
		Int("usage_minutes", st.UsageMinutes).
		Msg("Gate decision changed")

	if w.onChange != nil {
		w.onChange(prev, st)
	}
	return true
}
