package session

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evanschultz/memprof-client/pkg/callstack"
	"github.com/evanschultz/memprof-client/pkg/protocol"
)

const (
	rootLine = "0;root;Root;1;1;10;10;;"
	aLine    = "1;a;Alloc;5;5;6;6;;"
	bLine    = "1;b;Buffer;2;2;3;3;;"
)

func report(lines ...string) string {
	return strings.Join(lines, "\n") + "\n\n\n"
}

func newReaderSession(t *testing.T, input string, paused *atomic.Bool) *Session {
	t.Helper()
	s := New("test:1", protocol.NewReaderSource(strings.NewReader(input)), paused, nil)
	t.Cleanup(func() { s.Close() })
	return s
}

func childIDs(v *callstack.ViewNode) []string {
	var ids []string
	for _, c := range v.Children {
		ids = append(ids, c.Record.ID)
	}
	return ids
}

func TestRunPassScenario(t *testing.T) {
	s := newReaderSession(t, report(rootLine, aLine)+report(rootLine), nil)
	ctx := context.Background()

	stats, err := s.RunPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, PassCompleted, stats.Outcome)
	assert.Equal(t, 2, stats.Records)
	assert.Equal(t, 4, stats.Lines)
	assert.Equal(t, 2, stats.Nodes)

	root := s.Tree().Export()
	assert.Equal(t, "root", root.Record.ID)
	assert.Equal(t, []string{"a"}, childIDs(root))

	stats, err = s.RunPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pruned)
	root = s.Tree().Export()
	assert.Equal(t, "root", root.Record.ID)
	assert.Empty(t, root.Children)

	stats, err = s.RunPass(ctx)
	assert.ErrorIs(t, err, protocol.ErrStreamClosed)
	assert.Equal(t, PassClosed, stats.Outcome)
	assert.Equal(t, 1, s.Tree().Len())
}

func TestRunPassSingleEmptyLineIsNotATerminator(t *testing.T) {
	s := newReaderSession(t, rootLine+"\n\n"+aLine+"\n\n\n", nil)

	stats, err := s.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Records)
	assert.Equal(t, 5, stats.Lines)
	assert.Equal(t, []string{"a"}, childIDs(s.Tree().Export()))
}

func TestRunPassOptionalFieldTolerance(t *testing.T) {
	s := newReaderSession(t, report(rootLine, "1;a;Alloc;lots;5;6;6;;"), nil)

	stats, err := s.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PassCompleted, stats.Outcome)

	a := s.Tree().Export().Children[0].Record
	assert.Equal(t, -1, a.TotalCount)
	assert.Equal(t, 5, a.SelfCount)
}

func TestRunPassMalformedDrainsReport(t *testing.T) {
	input := report(rootLine, aLine) +
		report(rootLine, "1;a;Alloc;5;5;oops;6;;", bLine) +
		report("0;root;Root;2;2;20;20;;")
	s := newReaderSession(t, input, nil)
	ctx := context.Background()

	_, err := s.RunPass(ctx)
	require.NoError(t, err)
	before := s.Tree().Export()

	stats, err := s.RunPass(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, protocol.ErrMalformedRecord)
	var de *protocol.DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "totalBytes", de.Field)
	assert.Equal(t, PassMalformed, stats.Outcome)
	assert.Equal(t, 1, stats.Records)
	assert.Zero(t, stats.Pruned)
	assert.Equal(t, 5, stats.Lines, "the rest of the report was consumed")
	assert.Equal(t, before, s.Tree().Export(), "tree unchanged")

	stats, err = s.RunPass(ctx)
	require.NoError(t, err, "next pass starts on a report boundary")
	assert.Equal(t, 1, stats.Records)
	assert.Equal(t, 1, stats.Pruned)
	root := s.Tree().Export()
	assert.Equal(t, 20.0, root.Record.TotalBytes)
	assert.Empty(t, root.Children)
}

func TestRunPassPausedSkipsLinesAndPruning(t *testing.T) {
	var paused atomic.Bool
	s := newReaderSession(t, report(rootLine, aLine)+report(rootLine)+report(rootLine), &paused)
	ctx := context.Background()

	_, err := s.RunPass(ctx)
	require.NoError(t, err)

	paused.Store(true)
	assert.True(t, s.Paused())
	stats, err := s.RunPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, PassCompleted, stats.Outcome)
	assert.Equal(t, 1, stats.Skipped)
	assert.Zero(t, stats.Records)
	assert.Zero(t, stats.Pruned)
	assert.Equal(t, []string{"a"}, childIDs(s.Tree().Export()), "paused pass leaves the tree alone")

	paused.Store(false)
	stats, err = s.RunPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pruned)
	assert.Empty(t, s.Tree().Export().Children)
}

func TestRunPassCancelledKeepsTail(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &scriptSource{
		lines: []string{rootLine, aLine, bLine, "", "", rootLine, aLine},
		after: 6, // cancel once the second report's root has been read
		onAfter: cancel,
	}
	s := New("test:1", src, nil, nil)

	_, err := s.RunPass(ctx)
	require.NoError(t, err)

	stats, err := s.RunPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, PassCancelled, stats.Outcome)
	assert.Equal(t, 1, stats.Records)
	assert.Zero(t, stats.Pruned)
	assert.Equal(t, []string{"a", "b"}, childIDs(s.Tree().Export()))
}

func TestRunPassCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := newReaderSession(t, report(rootLine), nil)

	stats, err := s.RunPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, PassCancelled, stats.Outcome)
	assert.Zero(t, stats.Lines)
}

func TestRunPassEOFPrunesTail(t *testing.T) {
	s := newReaderSession(t, report(rootLine, aLine, bLine)+rootLine+"\n"+aLine+"\n", nil)
	ctx := context.Background()

	_, err := s.RunPass(ctx)
	require.NoError(t, err)

	stats, err := s.RunPass(ctx)
	assert.ErrorIs(t, err, protocol.ErrStreamClosed)
	assert.Equal(t, PassClosed, stats.Outcome)
	assert.Equal(t, 1, stats.Pruned)
	assert.Equal(t, []string{"a"}, childIDs(s.Tree().Export()))
}

func TestRunPassReadError(t *testing.T) {
	boom := errors.New("connection reset")
	s := New("test:1", &scriptSource{lines: []string{rootLine}, err: boom}, nil, nil)

	stats, err := s.RunPass(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, PassClosed, stats.Outcome)
}

func TestSessionCloseResetsTree(t *testing.T) {
	src := newChanSource()
	src.send(rootLine, aLine, "", "")
	s := New("test:1", src, nil, nil)

	_, err := s.RunPass(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, s.Tree().Len())

	require.NoError(t, s.Close())
	assert.True(t, src.isClosed())
	assert.Equal(t, 1, s.Tree().Len())
}

func TestNewAssignsDistinctIDs(t *testing.T) {
	a := New("x:1", newChanSource(), nil, nil)
	b := New("x:1", newChanSource(), nil, nil)
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "x:1", a.Addr)
	assert.False(t, a.Paused())
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "completed", PassCompleted.String())
	assert.Equal(t, "cancelled", PassCancelled.String())
	assert.Equal(t, "malformed", PassMalformed.String())
	assert.Equal(t, "closed", PassClosed.String())
	assert.Equal(t, "Outcome(7)", Outcome(7).String())
}
