package tenant

import (
	"context"
	"sync"
	"time"

	"github.com/juju/clock"
	"go.uber.org/zap"
)

// AutoSaveConfig wires an AutoSaver.
type AutoSaveConfig struct {
	// Interval is the periodic flush cadence. Zero disables the
	// periodic timer.
	Interval time.Duration

	// Debounce is the quiet period after the last edit before a flush.
	// Zero disables the debounce timer.
	Debounce time.Duration

	// Flush persists the pending edits. Required.
	Flush func(ctx context.Context) error

	Clock  clock.Clock
	Logger *zap.Logger
}

// AutoSaver flushes pending edits on two independent timers: a periodic
// one that fires at a fixed cadence, and a debounce one that fires after
// edits go quiet. Both run at once; either firing triggers a flush. Stop
// halts both wholesale, which is how a tenant switch silences stale
// saves before the context changes.
type AutoSaver struct {
	cfg AutoSaveConfig
	log *zap.Logger
	clk clock.Clock

	mu      sync.Mutex
	cancel  context.CancelFunc
	notify  chan struct{}
	done    chan struct{}
	running bool
}

// NewAutoSaver creates a stopped AutoSaver.
func NewAutoSaver(cfg AutoSaveConfig) *AutoSaver {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	return &AutoSaver{cfg: cfg, log: log, clk: clk}
}

// Start launches the timer loop. Starting a running saver is a no-op.
func (a *AutoSaver) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.notify = make(chan struct{}, 1)
	a.done = make(chan struct{})
	a.running = true
	go a.loop(ctx, a.notify, a.done)
}

// Notify records an edit, arming (or re-arming) the debounce timer.
// Safe to call from any goroutine; calls on a stopped saver are dropped.
func (a *AutoSaver) Notify() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running {
		return
	}
	select {
	case a.notify <- struct{}{}:
	default:
	}
}

// Stop cancels both timers and waits for the loop to exit. No flush runs
// after Stop returns. Stopping a stopped saver is a no-op.
func (a *AutoSaver) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.cancel()
	done := a.done
	a.running = false
	a.mu.Unlock()
	<-done
}

func (a *AutoSaver) loop(ctx context.Context, notify <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	var periodic clock.Timer
	var periodicC <-chan time.Time
	if a.cfg.Interval > 0 {
		periodic = a.clk.NewTimer(a.cfg.Interval)
		defer periodic.Stop()
		periodicC = periodic.Chan()
	}

	var debounce clock.Timer
	var debounceC <-chan time.Time
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-notify:
			if a.cfg.Debounce <= 0 {
				continue
			}
			if debounce == nil {
				debounce = a.clk.NewTimer(a.cfg.Debounce)
				debounceC = debounce.Chan()
			} else {
				debounce.Reset(a.cfg.Debounce)
			}
		case <-periodicC:
			a.flush(ctx, "periodic")
			periodic.Reset(a.cfg.Interval)
		case <-debounceC:
			a.flush(ctx, "debounce")
		}
	}
}

func (a *AutoSaver) flush(ctx context.Context, trigger string) {
	if err := a.cfg.Flush(ctx); err != nil {
		a.log.Warn("auto-save flush failed",
			zap.String("trigger", trigger),
			zap.Error(err),
		)
		return
	}
	a.log.Debug("auto-save flushed", zap.String("trigger", trigger))
}
