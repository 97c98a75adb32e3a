package protocol

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

const (
	DefaultAddr        = "127.0.0.1:7788"
	defaultDialTimeout = 10 * time.Second
)

// Client is a LineSource reading reports from a profiler over TCP.
type Client struct {
	*ReaderSource
	conn net.Conn
	addr string
}

// ParseAddr validates a "host:port" connection string.
func ParseAddr(addr string) (host string, port int, err error) {
	h, p, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid address %q: %w", addr, err)
	}
	port, err = strconv.Atoi(p)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port in address %q", addr)
	}
	return h, port, nil
}

// Dial connects to the profiler at addr.
func Dial(ctx context.Context, addr string) (*Client, error) {
	if _, _, err := ParseAddr(addr); err != nil {
		return nil, err
	}

	d := net.Dialer{Timeout: defaultDialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}

	return &Client{
		ReaderSource: NewReaderSource(conn),
		conn:         conn,
		addr:         addr,
	}, nil
}

// Addr returns the address the client dialed.
func (c *Client) Addr() string { return c.addr }

// RemoteAddr returns the peer address of the connection.
func (c *Client) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }
