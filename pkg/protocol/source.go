package protocol

import (
	"bufio"
	"context"
	"io"
	"sync"
)

// MaxLineSize bounds a single report line.
const MaxLineSize = 1 << 20

// LineSource supplies report lines one at a time.
type LineSource interface {
	// ReadLine blocks until a line is available, the context is done, or
	// the source fails. End of input is reported as io.EOF.
	ReadLine(ctx context.Context) (string, error)
	Close() error
}

type lineResult struct {
	line string
	err  error
}

// ReaderSource adapts an io.Reader to LineSource. A background goroutine
// scans lines and hands them over one at a time, so a ReadLine abandoned
// through its context never drops a line.
type ReaderSource struct {
	closer io.Closer
	lines  chan lineResult
	done   chan struct{}
	once   sync.Once

	// sticky terminal error, only touched by the reading side
	err error
}

// NewReaderSource starts scanning r. If r is an io.Closer it is closed by
// Close.
func NewReaderSource(r io.Reader) *ReaderSource {
	s := &ReaderSource{
		lines: make(chan lineResult),
		done:  make(chan struct{}),
	}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	go s.scan(r)
	return s
}

func (s *ReaderSource) scan(r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
	for sc.Scan() {
		select {
		case s.lines <- lineResult{line: sc.Text()}:
		case <-s.done:
			return
		}
	}
	err := sc.Err()
	if err == nil {
		err = io.EOF
	}
	select {
	case s.lines <- lineResult{err: err}:
	case <-s.done:
	}
}

// ReadLine implements LineSource.
func (s *ReaderSource) ReadLine(ctx context.Context) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	select {
	case <-s.done:
		return "", ErrSourceClosed
	default:
	}
	select {
	case r := <-s.lines:
		if r.err != nil {
			s.err = r.err
			return "", r.err
		}
		return r.line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-s.done:
		return "", ErrSourceClosed
	}
}

// Close stops the scanner and closes the underlying reader.
func (s *ReaderSource) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		if s.closer != nil {
			err = s.closer.Close()
		}
	})
	return err
}
