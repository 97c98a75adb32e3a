package protocol

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/evanschultz/memprof-client/pkg/models"
)

// WriteSnapshot writes one report followed by its terminator.
func WriteSnapshot(w io.Writer, records []models.Record) error {
	bw := bufio.NewWriter(w)
	for _, rec := range records {
		if _, err := bw.WriteString(Encode(rec) + "\n"); err != nil {
			return err
		}
	}
	if _, err := bw.WriteString("\n\n"); err != nil {
		return err
	}
	return bw.Flush()
}

// LoadCapture reads a capture file: reports separated by one or more blank
// lines. Lines starting with '#' are comments.
func LoadCapture(r io.Reader) ([][]models.Record, error) {
	var (
		snapshots [][]models.Record
		current   []models.Record
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		if strings.TrimSpace(line) == "" {
			if len(current) > 0 {
				snapshots = append(snapshots, current)
				current = nil
			}
			continue
		}
		rec, err := Decode(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		current = append(current, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(current) > 0 {
		snapshots = append(snapshots, current)
	}
	if len(snapshots) == 0 {
		return nil, errors.New("capture contains no reports")
	}
	return snapshots, nil
}

// Server replays captured reports to every client that connects, the way
// an instrumented program resends its report once per cycle.
type Server struct {
	Snapshots [][]models.Record
	Interval  time.Duration
	Logger    *zap.Logger
}

// ListenAndServe listens on addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done. It closes ln.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if len(s.Snapshots) == 0 {
		ln.Close()
		return errors.New("no reports to serve")
	}
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		return ln.Close()
	})
	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("accept: %w", err)
			}
			logger.Info("client connected", zap.String("remote", conn.RemoteAddr().String()))
			g.Go(func() error {
				defer conn.Close()
				stop := context.AfterFunc(ctx, func() { conn.Close() })
				defer stop()
				err := s.feed(ctx, conn)
				logger.Info("client disconnected",
					zap.String("remote", conn.RemoteAddr().String()),
					zap.Error(err))
				return nil
			})
		}
	})
	err := g.Wait()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (s *Server) feed(ctx context.Context, conn net.Conn) error {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 0; ; i++ {
		snap := s.Snapshots[i%len(s.Snapshots)]
		if err := WriteSnapshot(conn, snap); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
