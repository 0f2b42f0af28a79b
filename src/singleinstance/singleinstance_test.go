package singleinstance

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// usePortRange points the package at a range unlikely to collide with a real
// resident.
func usePortRange(t *testing.T, start int) {
	t.Helper()
	t.Setenv("SINGLEINSTANCE_PORT_START", fmt.Sprint(start))
	t.Setenv("SINGLEINSTANCE_PORT_END", fmt.Sprint(start+2))
}

func startServer(t *testing.T, ctx context.Context) Server {
	t.Helper()
	srv := NewServer()
	if err := srv.Start(ctx); err != nil {
		t.Skipf("loopback listener unavailable in this environment: %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func TestServerClientRoundTrip(t *testing.T) {
	usePortRange(t, 49611)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv := startServer(t, ctx)

	port, ok := DetectResidentPort(ctx)
	require.True(t, ok)
	assert.Equal(t, srv.Port(), port)

	type reply struct {
		delegated bool
		text      string
		err       error
	}
	replyCh := make(chan reply, 1)
	go func() {
		delegated, text, err := NewClient().TryCapture(ctx, Request{Mode: "window", OutputToStdout: true})
		replyCh <- reply{delegated, text, err}
	}()

	conn, err := srv.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, Request{Mode: "window", OutputToStdout: true}, conn.Request())
	require.NoError(t, conn.RespondSuccess("Hello World"))
	require.NoError(t, conn.Close())

	r := <-replyCh
	require.NoError(t, r.err)
	assert.True(t, r.delegated)
	assert.Equal(t, "Hello World", r.text)
}

func TestClientDeferredAndError(t *testing.T) {
	usePortRange(t, 49621)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv := startServer(t, ctx)

	for _, tc := range []struct {
		respond func(Conn) error
		check   func(t *testing.T, err error)
	}{
		{
			respond: func(c Conn) error { return c.RespondDeferred() },
			check:   func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrDeferred) },
		},
		{
			respond: func(c Conn) error { return c.RespondError("no text found") },
			check:   func(t *testing.T, err error) { assert.EqualError(t, err, "no text found") },
		},
	} {
		errCh := make(chan error, 1)
		go func() {
			_, _, err := NewClient().TryCapture(ctx, Request{Mode: "area"})
			errCh <- err
		}()
		conn, err := srv.Next(ctx)
		require.NoError(t, err)
		require.NoError(t, tc.respond(conn))
		require.NoError(t, conn.Close())
		tc.check(t, <-errCh)
	}
}

func TestNoResident(t *testing.T) {
	usePortRange(t, 49631)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	delegated, _, err := NewClient().TryCapture(ctx, Request{Mode: "full"})
	assert.NoError(t, err)
	assert.False(t, delegated)
}

func TestParseRequest(t *testing.T) {
	tests := []struct {
		line string
		want Request
		ok   bool
	}{
		{"CAPTURE full CLIPBOARD\n", Request{Mode: "full"}, true},
		{"CAPTURE area STDOUT\n", Request{Mode: "area", OutputToStdout: true}, true},
		{"STDOUT\n", Request{Mode: "area", OutputToStdout: true}, true},
		{"CLIPBOARD\n", Request{Mode: "area"}, true},
		{"CAPTURE area PRINTER\n", Request{}, false},
		{"HELLO\n", Request{}, false},
		{"", Request{}, false},
	}
	for _, tc := range tests {
		got, err := parseRequest(tc.line)
		if !tc.ok {
			assert.Error(t, err, tc.line)
			continue
		}
		require.NoError(t, err, tc.line)
		assert.Equal(t, tc.want, got)
		again, err := parseRequest(encodeRequest(got))
		require.NoError(t, err)
		assert.Equal(t, got, again)
	}
}

func TestPortsFromEnv(t *testing.T) {
	t.Setenv(envPortStart, "")
	t.Setenv(envPortEnd, "")
	assert.Equal(t, PortRange{Start: defaultPortStart, End: defaultPortEnd}, Ports())

	t.Setenv(envPortStart, "80")
	t.Setenv(envPortEnd, "not-a-port")
	assert.Equal(t, PortRange{Start: 1024, End: defaultPortEnd}, Ports())

	t.Setenv(envPortStart, "50010")
	t.Setenv(envPortEnd, "50000")
	assert.Equal(t, PortRange{Start: 50000, End: 50010}, Ports())

	t.Setenv(envPortStart, "60000")
	t.Setenv(envPortEnd, "70000")
	assert.Equal(t, PortRange{Start: 60000, End: 65535}, Ports())
}
