package protocol

import (
	"bytes"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evanschultz/memprof-client/pkg/models"
)

const capture = `# two reports
0;root;Root;1;1;10;10;;
1;a;Alloc;5;5;6;6;;

0;root;Root;1;1;10;10;;
`

func TestLoadCapture(t *testing.T) {
	snaps, err := LoadCapture(strings.NewReader(capture))
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Len(t, snaps[0], 2)
	assert.Len(t, snaps[1], 1)
	assert.Equal(t, "a", snaps[0][1].ID)
}

func TestLoadCaptureErrors(t *testing.T) {
	_, err := LoadCapture(strings.NewReader("# only a comment\n\n"))
	assert.Error(t, err)

	_, err = LoadCapture(strings.NewReader("0;root;Root;1;1;10;10\nbroken\n"))
	assert.ErrorIs(t, err, ErrMalformedRecord)
	assert.Contains(t, err.Error(), "line 2")
}

func TestWriteSnapshot(t *testing.T) {
	var buf bytes.Buffer
	recs := []models.Record{
		{Level: 0, ID: "root", Name: "Root", TotalCount: 1, SelfCount: 1, TotalBytes: 10, SelfBytes: 10, SelfCountPerFrame: models.Unset, CallsPerFrame: models.Unset},
	}
	require.NoError(t, WriteSnapshot(&buf, recs))
	assert.Equal(t, "0;root;Root;1;1;10;10;;\n\n\n", buf.String())
}

func TestServerFeedsClients(t *testing.T) {
	snaps, err := LoadCapture(strings.NewReader(capture))
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	srv := &Server{Snapshots: snaps, Interval: 10 * time.Millisecond}
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	readCtx, readCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer readCancel()
	c, err := Dial(readCtx, ln.Addr().String())
	require.NoError(t, err)

	// the first report, its terminator, then the second report
	want := []string{
		"0;root;Root;1;1;10;10;;",
		"1;a;Alloc;5;5;6;6;;",
		"", "",
		"0;root;Root;1;1;10;10;;",
		"", "",
	}
	for i, w := range want {
		line, err := c.ReadLine(readCtx)
		require.NoError(t, err, "line %d", i)
		assert.Equal(t, w, line, "line %d", i)
	}
	require.NoError(t, c.Close())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServerRequiresReports(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &Server{}
	assert.Error(t, srv.Serve(context.Background(), ln))
}
