package singleinstance

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"time"
)

type tcpClient struct{}

func newTcpClient() Client { return &tcpClient{} }

func (c *tcpClient) TryCapture(ctx context.Context, req Request) (bool, string, error) {
	_, addr, ok := findResident(ctx, 2*time.Second)
	if !ok {
		return false, "", nil
	}
	conn, err := (&net.Dialer{Timeout: 2 * time.Second}).DialContext(ctx, "tcp", addr)
	if err != nil {
		// The resident answered PING a moment ago; report it as not delegated
		// so the caller can run standalone.
		return false, "", err
	}
	text, err := exchange(ctx, conn, req)
	return true, text, err
}

func exchange(ctx context.Context, conn net.Conn, req Request) (string, error) {
	defer conn.Close()

	// The resident may wait on an interactive capture; only ctx bounds us.
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	w := bufio.NewWriter(conn)
	if _, err := w.WriteString(encodeRequest(req)); err != nil {
		return "", err
	}
	if err := w.Flush(); err != nil {
		return "", err
	}

	br := bufio.NewReader(conn)
	status, err := br.ReadString('\n')
	if err != nil {
		return "", err
	}
	body, _ := io.ReadAll(br)
	switch status {
	case statusSuccess:
		return string(body), nil
	case statusDeferred:
		return "", ErrDeferred
	case statusError:
		return "", errors.New(string(body))
	default:
		return "", errors.New("unexpected resident response")
	}
}
