package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/evanschultz/memprof-client/pkg/callstack"
	"github.com/evanschultz/memprof-client/pkg/protocol"
)

var (
	ErrAlreadyConnected = errors.New("already connected")
	ErrNotConnected     = errors.New("not connected")
)

// DefaultInterval is the polling period of the driver.
const DefaultInterval = 500 * time.Millisecond

// Dialer opens a line source for a "host:port" address.
type Dialer func(ctx context.Context, addr string) (protocol.LineSource, error)

// DialTCP is the default Dialer.
func DialTCP(ctx context.Context, addr string) (protocol.LineSource, error) {
	return protocol.Dial(ctx, addr)
}

// Snapshot is what the presentation layer gets after a pass: an immutable
// copy of the tree plus how the pass went.
type Snapshot struct {
	SessionID string
	Addr      string
	Root      *callstack.ViewNode
	Stats     PassStats
	Paused    bool
	Err       error
}

// Hooks are called from the driver's goroutines. They must not block for
// long; a snapshot hook runs while the next pass is held back.
type Hooks struct {
	OnConnect    func(sessionID, addr string)
	OnSnapshot   func(Snapshot)
	OnError      func(error)
	OnDisconnect func(sessionID string, cause error)
}

// Options configure a Loop.
type Options struct {
	Interval time.Duration
	Dial     Dialer
	Logger   *zap.Logger
	Metrics  *Metrics
	Hooks    Hooks
}

// Loop drives at most one pass at a time over the current session and owns
// the connect/disconnect lifecycle.
type Loop struct {
	opts   Options
	logger *zap.Logger
	paused atomic.Bool

	mu         sync.Mutex
	sess       *Session
	cancelPass context.CancelFunc
	passCtx    context.Context
	pending    bool // disconnect requested
	cause      error
	busy       bool
	wg         sync.WaitGroup
}

// NewLoop returns an idle, disconnected loop.
func NewLoop(opts Options) *Loop {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Dial == nil {
		opts.Dial = DialTCP
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Loop{opts: opts, logger: opts.Logger}
}

// Connect dials addr and makes it the current session. Passes start on the
// next tick.
func (l *Loop) Connect(ctx context.Context, addr string) error {
	l.mu.Lock()
	connected := l.sess != nil
	l.mu.Unlock()
	if connected {
		return ErrAlreadyConnected
	}

	src, err := l.opts.Dial(ctx, addr)
	l.opts.Metrics.observeConnect(err)
	if err != nil {
		l.logger.Warn("connect failed", zap.String("addr", addr), zap.Error(err))
		return err
	}

	l.mu.Lock()
	if l.sess != nil {
		l.mu.Unlock()
		src.Close()
		return ErrAlreadyConnected
	}
	sess := New(addr, src, &l.paused, l.logger)
	l.sess = sess
	l.passCtx, l.cancelPass = context.WithCancel(context.Background())
	l.pending = false
	l.cause = nil
	l.mu.Unlock()

	sess.logger.Info("connected")
	if h := l.opts.Hooks.OnConnect; h != nil {
		h(sess.ID, addr)
	}
	return nil
}

// Disconnect cancels the running pass, if any. The session is torn down on
// the next tick once no pass is in flight.
func (l *Loop) Disconnect() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sess == nil {
		return ErrNotConnected
	}
	l.pending = true
	l.cancelPass()
	return nil
}

// Connected reports whether a session exists and is not being torn down.
func (l *Loop) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sess != nil && !l.pending
}

// Busy reports whether a pass is in flight.
func (l *Loop) Busy() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.busy
}

// TogglePause flips the pause flag and returns the new state.
func (l *Loop) TogglePause() bool {
	for {
		old := l.paused.Load()
		if l.paused.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

// Paused reports the pause flag.
func (l *Loop) Paused() bool { return l.paused.Load() }

// Tick is one polling step: nothing while a pass is running, tear down a
// pending disconnect, otherwise start exactly one pass.
func (l *Loop) Tick() {
	l.mu.Lock()
	if l.busy {
		l.mu.Unlock()
		return
	}
	if l.pending {
		notify := l.teardownLocked()
		l.mu.Unlock()
		notify()
		return
	}
	if l.sess == nil {
		l.mu.Unlock()
		return
	}

	l.busy = true
	l.wg.Add(1)
	go l.pass(l.passCtx, l.sess)
	l.mu.Unlock()
}

// Run ticks every interval until ctx is done, then shuts down.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			l.Shutdown()
			return nil
		case <-ticker.C:
			l.Tick()
		}
	}
}

// Shutdown cancels any pass, waits for it and tears the session down.
func (l *Loop) Shutdown() {
	l.mu.Lock()
	if l.sess != nil {
		l.pending = true
		l.cancelPass()
	}
	l.mu.Unlock()

	l.wg.Wait()

	notify := func() {}
	l.mu.Lock()
	if l.pending {
		notify = l.teardownLocked()
	}
	l.mu.Unlock()
	notify()
}

func (l *Loop) pass(ctx context.Context, sess *Session) {
	defer l.wg.Done()
	defer func() {
		l.mu.Lock()
		l.busy = false
		l.mu.Unlock()
	}()

	stats, err := sess.RunPass(ctx)
	l.opts.Metrics.observePass(stats)
	sess.logger.Debug("pass finished",
		zap.Stringer("outcome", stats.Outcome),
		zap.Int("records", stats.Records),
		zap.Int("skipped", stats.Skipped),
		zap.Int("pruned", stats.Pruned),
		zap.Int("nodes", stats.Nodes),
		zap.Duration("duration", stats.Duration),
		zap.Error(err))

	switch stats.Outcome {
	case PassCompleted, PassMalformed:
		if h := l.opts.Hooks.OnSnapshot; h != nil {
			h(Snapshot{
				SessionID: sess.ID,
				Addr:      sess.Addr,
				Root:      sess.Tree().Export(),
				Stats:     stats,
				Paused:    l.paused.Load(),
				Err:       err,
			})
		}
		if err != nil {
			sess.logger.Warn("report rejected", zap.Error(err))
			l.report(err)
		}
	case PassClosed:
		sess.logger.Error("report stream failed", zap.Error(err))
		l.report(err)
		l.mu.Lock()
		if l.sess == sess {
			l.pending = true
			l.cause = err
		}
		l.mu.Unlock()
	}
}

func (l *Loop) report(err error) {
	if h := l.opts.Hooks.OnError; h != nil {
		h(err)
	}
}

// teardownLocked closes the session and returns the hook call to make once
// the lock is released.
func (l *Loop) teardownLocked() func() {
	sess, cause := l.sess, l.cause
	l.sess = nil
	l.pending = false
	l.cause = nil
	l.passCtx, l.cancelPass = nil, nil
	l.paused.Store(false)
	if sess == nil {
		return func() {}
	}
	if err := sess.Close(); err != nil {
		sess.logger.Debug("close", zap.Error(err))
	}
	sess.logger.Info("disconnected", zap.Error(cause))
	return func() {
		if h := l.opts.Hooks.OnDisconnect; h != nil {
			h(sess.ID, cause)
		}
	}
}
