// Package session owns a live connection to a profiler: the line source,
// the persistent tree and the pass loop that keeps the tree in step with the
// report stream.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/evanschultz/memprof-client/pkg/callstack"
	"github.com/evanschultz/memprof-client/pkg/protocol"
	"github.com/evanschultz/memprof-client/pkg/reconcile"
)

// Outcome tells how a pass ended.
type Outcome int

const (
	// PassCompleted means the terminator was read.
	PassCompleted Outcome = iota
	// PassCancelled means the pass context was cancelled mid-pass.
	PassCancelled
	// PassMalformed means a record failed to decode.
	PassMalformed
	// PassClosed means the stream ended or failed.
	PassClosed
)

func (o Outcome) String() string {
	switch o {
	case PassCompleted:
		return "completed"
	case PassCancelled:
		return "cancelled"
	case PassMalformed:
		return "malformed"
	case PassClosed:
		return "closed"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// PassStats summarises one pass.
type PassStats struct {
	Outcome  Outcome
	Lines    int
	Records  int
	Skipped  int // lines read while paused
	Pruned   int
	Nodes    int
	Duration time.Duration
}

// Session is one connection's worth of state. Passes must not overlap; the
// Loop guarantees that.
type Session struct {
	ID     string
	Addr   string
	src    protocol.LineSource
	tree   *callstack.Tree
	rec    *reconcile.Reconciler
	paused *atomic.Bool
	logger *zap.Logger
}

// New wraps an open line source. paused may be shared with the caller so
// the pause state outlives the session; nil means never paused.
func New(addr string, src protocol.LineSource, paused *atomic.Bool, logger *zap.Logger) *Session {
	if paused == nil {
		paused = new(atomic.Bool)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	tree := callstack.NewTree()
	return &Session{
		ID:     id,
		Addr:   addr,
		src:    src,
		tree:   tree,
		rec:    reconcile.New(tree),
		paused: paused,
		logger: logger.With(zap.String("session_id", id), zap.String("addr", addr)),
	}
}

// Tree returns the session tree. Only touch it between passes.
func (s *Session) Tree() *callstack.Tree { return s.tree }

// Paused reports the pause flag.
func (s *Session) Paused() bool { return s.paused.Load() }

// Close closes the line source and drops the tree contents.
func (s *Session) Close() error {
	err := s.src.Close()
	s.tree.Reset()
	return err
}

// RunPass reads one report from the stream and folds it into the tree.
//
// Cancellation is checked before every read and ends the pass without
// pruning the tail. While paused, lines are still read so the stream stays
// aligned, but they are neither decoded nor applied. A malformed record
// stops further updates, the rest of the report is drained up to its
// terminator, and the decode error is returned. End of input prunes the
// tail and returns protocol.ErrStreamClosed.
func (s *Session) RunPass(ctx context.Context) (stats PassStats, err error) {
	start := time.Now()
	stats.Outcome = PassCompleted
	defer func() {
		stats.Duration = time.Since(start)
		stats.Nodes = s.tree.Len()
	}()

	s.rec.Begin()

	var (
		emptyRun  int
		decodeErr error
	)
	for {
		if ctx.Err() != nil {
			return s.cancelled(stats, decodeErr)
		}

		line, err := s.src.ReadLine(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil && errors.Is(err, ctx.Err()):
				return s.cancelled(stats, decodeErr)
			case errors.Is(err, io.EOF):
				stats.Outcome = PassClosed
				if decodeErr == nil && stats.Skipped == 0 {
					stats.Pruned += s.rec.Finish()
				}
				return stats, protocol.ErrStreamClosed
			default:
				stats.Outcome = PassClosed
				return stats, fmt.Errorf("read report: %w", err)
			}
		}
		stats.Lines++

		if protocol.IsEndOfRecords(line) {
			emptyRun++
			if emptyRun >= 2 {
				break
			}
			continue
		}
		emptyRun = 0

		if decodeErr != nil {
			continue
		}
		if s.paused.Load() {
			stats.Skipped++
			continue
		}

		rec, err := protocol.Decode(line)
		if err != nil {
			decodeErr = err
			s.logger.Warn("malformed record, draining report", zap.Int("line", stats.Lines), zap.Error(err))
			continue
		}
		_, pruned := s.rec.Apply(rec)
		stats.Records++
		stats.Pruned += pruned
	}

	if decodeErr != nil {
		stats.Outcome = PassMalformed
		return stats, decodeErr
	}
	// A paused pass has not seen the whole report, so its tail says
	// nothing about what went stale.
	if stats.Skipped == 0 {
		stats.Pruned += s.rec.Finish()
	}
	return stats, nil
}

// cancelled ends a pass early. The tail is left alone; a decode error seen
// before the cancellation is still reported.
func (s *Session) cancelled(stats PassStats, decodeErr error) (PassStats, error) {
	if decodeErr != nil {
		stats.Outcome = PassMalformed
		return stats, decodeErr
	}
	stats.Outcome = PassCancelled
	return stats, nil
}
